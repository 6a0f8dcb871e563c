package infra

import (
	"bytes"
	"context"
	"errors"
	"log"
	"sync"
	"testing"
	"time"

	"s2r-gateway/middleware/gatekeeper/domain"

	"github.com/stretchr/testify/require"
)

type recordingReclaimer struct {
	mu     sync.Mutex
	before []domain.Day
	n      int64
	err    error
}

func (r *recordingReclaimer) Reclaim(_ context.Context, before domain.Day) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.before = append(r.before, before)
	return r.n, r.err
}

func TestNewReclaimScheduler_RejectsBadExpression(t *testing.T) {
	_, err := NewReclaimScheduler("", nil)
	require.Error(t, err)

	_, err = NewReclaimScheduler("every now and then", nil)
	require.Error(t, err)

	for _, expr := range []string{"@hourly", "0 * * * *", "30 0 * * * *", "@every 10m"} {
		_, err := NewReclaimScheduler(expr, nil)
		require.NoError(t, err, expr)
	}
}

func TestReclaimScheduler_CutoffKeepsRetentionAfterDayEnd(t *testing.T) {
	now := func() time.Time { return time.Date(2024, 5, 10, 0, 30, 0, 0, time.UTC) }

	s, err := NewReclaimScheduler("@hourly", nil, WithReclaimClock(now), WithReclaimRetention(24*time.Hour))
	require.NoError(t, err)
	// 2024-05-08 terminou há 24h30: pode sair. 2024-05-09 terminou há 30min: fica.
	require.Equal(t, domain.Day("2024-05-09"), s.Cutoff())

	s, err = NewReclaimScheduler("@hourly", nil, WithReclaimClock(now), WithReclaimRetention(0))
	require.NoError(t, err)
	require.Equal(t, domain.Day("2024-05-10"), s.Cutoff())
}

func TestReclaimScheduler_RunSumsAndJoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	a := &recordingReclaimer{n: 2}
	b := &recordingReclaimer{n: 1, err: boom}
	c := &recordingReclaimer{n: 4}

	s, err := NewReclaimScheduler("@hourly", []domain.Reclaimer{a, b, c}, WithReclaimClock(fixedNow))
	require.NoError(t, err)

	n, err := s.Run(context.Background())
	require.ErrorIs(t, err, boom)
	require.EqualValues(t, 7, n)
	for _, r := range []*recordingReclaimer{a, b, c} {
		require.Equal(t, []domain.Day{"2024-05-09"}, r.before)
	}
}

func TestReclaimScheduler_RunAgainstMemoryLedger(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	for _, d := range []domain.Day{"2024-05-07", "2024-05-08", "2024-05-09", "2024-05-10"} {
		_, err := l.TryConsume(ctx, domain.QuotaKey{Identity: "a", Day: d}, 10)
		require.NoError(t, err)
	}

	s, err := NewReclaimScheduler("@hourly", []domain.Reclaimer{l}, WithReclaimClock(fixedNow))
	require.NoError(t, err)

	n, err := s.Run(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)
	require.Equal(t, 2, l.Len())
}

func TestReclaimScheduler_StartRunsOnSchedule(t *testing.T) {
	var buf bytes.Buffer
	r := &recordingReclaimer{n: 3}

	s, err := NewReclaimScheduler("@every 1s", []domain.Reclaimer{r},
		WithReclaimLogger(log.New(&buf, "", 0)),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx))
	require.Error(t, s.Start(ctx))

	require.Eventually(t, func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		return len(r.before) > 0
	}, 3*time.Second, 50*time.Millisecond)

	s.Stop()
	require.Contains(t, buf.String(), "removed 3 stale records")
}
