package infra

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"s2r-gateway/middleware/gatekeeper/domain"

	"github.com/stretchr/testify/require"
)

// ledgerFactory cria um ledger vazio para cada subteste.
type ledgerFactory func(t *testing.T) domain.Ledger

var testDay = domain.Day("2024-05-10")

func runLedgerContract(t *testing.T, newLedger ledgerFactory) {
	t.Helper()
	ctx := context.Background()

	t.Run("AdmitsUpToCeiling", func(t *testing.T) {
		l := newLedger(t)
		key := domain.QuotaKey{Identity: "203.0.113.7", Day: testDay}

		for i := 1; i <= 3; i++ {
			c, err := l.TryConsume(ctx, key, 3)
			require.NoError(t, err)
			require.True(t, c.Admitted)
			require.Equal(t, i, c.Count)
		}

		c, err := l.TryConsume(ctx, key, 3)
		require.NoError(t, err)
		require.False(t, c.Admitted)
		require.Equal(t, 3, c.Count)
	})

	t.Run("KeysAreIndependent", func(t *testing.T) {
		l := newLedger(t)
		a := domain.QuotaKey{Identity: "198.51.100.1", Day: testDay}
		b := domain.QuotaKey{Identity: "198.51.100.1", Day: "2024-05-11"}
		other := domain.QuotaKey{Identity: "198.51.100.2", Day: testDay}

		_, err := l.TryConsume(ctx, a, 1)
		require.NoError(t, err)

		for _, k := range []domain.QuotaKey{b, other} {
			c, err := l.TryConsume(ctx, k, 1)
			require.NoError(t, err)
			require.True(t, c.Admitted, "key %+v should start fresh", k)
			require.Equal(t, 1, c.Count)
		}
	})

	t.Run("ZeroCeilingNeverAdmits", func(t *testing.T) {
		l := newLedger(t)
		c, err := l.TryConsume(ctx, domain.QuotaKey{Identity: "192.0.2.1", Day: testDay}, 0)
		require.NoError(t, err)
		require.False(t, c.Admitted)
		require.Equal(t, 0, c.Count)
	})

	t.Run("ConcurrentCallersNeverExceedCeiling", func(t *testing.T) {
		l := newLedger(t)
		key := domain.QuotaKey{Identity: "203.0.113.7", Day: testDay}

		const ceiling, extra = 20, 15
		var admitted, denied atomic.Int64
		var wg sync.WaitGroup
		errs := make(chan error, ceiling+extra)

		for i := 0; i < ceiling+extra; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				c, err := l.TryConsume(ctx, key, ceiling)
				if err != nil {
					errs <- err
					return
				}
				if c.Admitted {
					admitted.Add(1)
				} else {
					denied.Add(1)
				}
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		require.EqualValues(t, ceiling, admitted.Load())
		require.EqualValues(t, extra, denied.Load())

		c, err := l.TryConsume(ctx, key, ceiling)
		require.NoError(t, err)
		require.False(t, c.Admitted)
		require.Equal(t, ceiling, c.Count)
	})
}

func fixedNow() time.Time {
	return time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
}
