package application

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"s2r-gateway/middleware/gatekeeper/domain"
)

type fakeLedger struct {
	mu      sync.Mutex
	count   map[domain.QuotaKey]int
	err     error
	lastKey domain.QuotaKey
	calls   int
}

func (l *fakeLedger) TryConsume(_ context.Context, key domain.QuotaKey, ceiling int) (domain.Consumption, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	l.lastKey = key
	if l.err != nil {
		return domain.Consumption{}, l.err
	}
	if l.count == nil {
		l.count = make(map[domain.QuotaKey]int)
	}
	if l.count[key] >= ceiling {
		return domain.Consumption{Admitted: false, Count: l.count[key]}, nil
	}
	l.count[key]++
	return domain.Consumption{Admitted: true, Count: l.count[key]}, nil
}

type fakeOracle struct {
	out   string
	err   error
	delay time.Duration
	// ignoreCtx simula um oráculo que não respeita cancelamento
	ignoreCtx bool
	calls     int
	got       string
}

func (o *fakeOracle) Convert(ctx context.Context, text string) (string, error) {
	o.calls++
	o.got = text
	if o.delay > 0 {
		if o.ignoreCtx {
			time.Sleep(o.delay)
		} else {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(o.delay):
			}
		}
	}
	return o.out, o.err
}

type recordingStats struct {
	events []domain.StatsEvent
}

func (s *recordingStats) Record(_ context.Context, ev domain.StatsEvent) error {
	s.events = append(s.events, ev)
	return nil
}

func newTestGatekeeper(t *testing.T, ledger domain.Ledger, oracle domain.Oracle, macCalls *int) Gatekeeper {
	t.Helper()
	v := Verifier{
		Credential: mustCredential(t, "topsecret"),
		MaxAge:     300 * time.Second,
		Now:        fixedClock(1000),
		MAC: func(c domain.Credential, ts string, p []byte) []byte {
			if macCalls != nil {
				*macCalls++
			}
			return ComputeMAC(c, ts, p)
		},
	}
	return Gatekeeper{
		Verifier:        v,
		Ledger:          ledger,
		Oracle:          oracle,
		MaxPayloadBytes: 50 * 1024,
		DailyCeiling:    100,
		OracleTimeout:   time.Second,
		Now:             fixedClock(1000),
	}
}

func inbound(req domain.SignedRequest, origin string) domain.Inbound {
	return domain.Inbound{Request: req, Origin: domain.Identity(origin)}
}

func failureOf(t *testing.T, err error) *domain.Failure {
	t.Helper()
	var f *domain.Failure
	if !errors.As(err, &f) {
		t.Fatalf("expected *domain.Failure, got %T (%v)", err, err)
	}
	return f
}

func TestGatekeeper_Handle_Success(t *testing.T) {
	ledger := &fakeLedger{}
	oracle := &fakeOracle{out: "apiVersion: run.ai/v2"}
	g := newTestGatekeeper(t, ledger, oracle, nil)

	out, err := g.Handle(context.Background(), inbound(signAt(t, "topsecret", "#!/bin/bash\necho hi", 1000), "203.0.113.7"))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if out != "apiVersion: run.ai/v2" {
		t.Fatalf("unexpected output %q", out)
	}
	if oracle.got != "#!/bin/bash\necho hi" {
		t.Fatalf("oracle got %q", oracle.got)
	}
	want := domain.QuotaKey{Identity: "203.0.113.7", Day: "1970-01-01"}
	if ledger.lastKey != want {
		t.Fatalf("expected key %+v, got %+v", want, ledger.lastKey)
	}
}

func TestGatekeeper_Handle_TooLargeSkipsVerifier(t *testing.T) {
	macCalls := 0
	ledger := &fakeLedger{}
	oracle := &fakeOracle{out: "x"}
	g := newTestGatekeeper(t, ledger, oracle, &macCalls)

	payload := strings.Repeat("a", 60*1024)
	_, err := g.Handle(context.Background(), inbound(signAt(t, "topsecret", payload, 1000), "203.0.113.7"))

	f := failureOf(t, err)
	if f.Reason != domain.ReasonTooLarge {
		t.Fatalf("expected too_large, got %s", f.Reason)
	}
	if macCalls != 0 {
		t.Fatalf("expected zero MAC calls, got %d", macCalls)
	}
	if ledger.calls != 0 || oracle.calls != 0 {
		t.Fatalf("expected no ledger/oracle calls, got %d/%d", ledger.calls, oracle.calls)
	}
}

func TestGatekeeper_Handle_TooLargeIsIndependentOfSignature(t *testing.T) {
	g := newTestGatekeeper(t, &fakeLedger{}, &fakeOracle{}, nil)
	payload := strings.Repeat("b", 50*1024+1)

	valid := signAt(t, "topsecret", payload, 1000)
	invalid := valid
	invalid.Signature = "deadbeef"

	_, errValid := g.Handle(context.Background(), inbound(valid, "198.51.100.1"))
	_, errInvalid := g.Handle(context.Background(), inbound(invalid, "198.51.100.1"))

	if !reflect.DeepEqual(failureOf(t, errValid), failureOf(t, errInvalid)) {
		t.Fatalf("expected identical rejection, got %v and %v", errValid, errInvalid)
	}
}

func TestGatekeeper_Handle_UnauthorizedDoesNotConsumeQuota(t *testing.T) {
	ledger := &fakeLedger{}
	oracle := &fakeOracle{}
	g := newTestGatekeeper(t, ledger, oracle, nil)

	req := signAt(t, "wrong", "payload", 1000)
	_, err := g.Handle(context.Background(), inbound(req, "203.0.113.7"))

	f := failureOf(t, err)
	if f.Reason != domain.ReasonUnauthorized || f.Reject != domain.RejectBadSignature {
		t.Fatalf("expected unauthorized/bad_signature, got %+v", f)
	}
	if ledger.calls != 0 || oracle.calls != 0 {
		t.Fatalf("expected no ledger/oracle calls")
	}
}

func TestGatekeeper_Handle_ExpiredIsUnauthorized(t *testing.T) {
	g := newTestGatekeeper(t, &fakeLedger{}, &fakeOracle{}, nil)

	_, err := g.Handle(context.Background(), inbound(signAt(t, "topsecret", "p", 600), "203.0.113.7"))

	f := failureOf(t, err)
	if f.Reason != domain.ReasonUnauthorized || f.Reject != domain.RejectExpired {
		t.Fatalf("expected unauthorized/expired, got %+v", f)
	}
}

func TestGatekeeper_Handle_RateLimitedAfterCeiling(t *testing.T) {
	ledger := &fakeLedger{}
	oracle := &fakeOracle{out: "ok"}
	g := newTestGatekeeper(t, ledger, oracle, nil)
	req := signAt(t, "topsecret", "p", 1000)

	for i := 0; i < 100; i++ {
		if _, err := g.Handle(context.Background(), inbound(req, "203.0.113.7")); err != nil {
			t.Fatalf("call %d: %v", i+1, err)
		}
	}
	_, err := g.Handle(context.Background(), inbound(req, "203.0.113.7"))
	f := failureOf(t, err)
	if f.Reason != domain.ReasonRateLimited || f.Count != 100 {
		t.Fatalf("expected rate_limited with count 100, got %+v", f)
	}
	if oracle.calls != 100 {
		t.Fatalf("expected 100 oracle calls, got %d", oracle.calls)
	}

	// outra identidade tem a sua própria cota
	if _, err := g.Handle(context.Background(), inbound(req, "203.0.113.8")); err != nil {
		t.Fatalf("expected other identity to pass, got %v", err)
	}
}

func TestGatekeeper_Handle_StoreFailureIsInternal(t *testing.T) {
	storeErr := errors.New("connection refused")
	oracle := &fakeOracle{}
	g := newTestGatekeeper(t, &fakeLedger{err: storeErr}, oracle, nil)

	_, err := g.Handle(context.Background(), inbound(signAt(t, "topsecret", "p", 1000), "203.0.113.7"))

	f := failureOf(t, err)
	if f.Reason != domain.ReasonInternal {
		t.Fatalf("expected internal, got %s", f.Reason)
	}
	if !errors.Is(err, storeErr) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
	if oracle.calls != 0 {
		t.Fatalf("expected oracle not to be called")
	}
}

func TestGatekeeper_Handle_OracleFailureIsInternal(t *testing.T) {
	oracleErr := errors.New("model overloaded")
	g := newTestGatekeeper(t, &fakeLedger{}, &fakeOracle{err: oracleErr}, nil)

	_, err := g.Handle(context.Background(), inbound(signAt(t, "topsecret", "p", 1000), "203.0.113.7"))

	f := failureOf(t, err)
	if f.Reason != domain.ReasonInternal || f.Detail != "oracle failed" {
		t.Fatalf("expected internal/oracle failed, got %+v", f)
	}
	if !errors.Is(err, oracleErr) || !errors.Is(err, domain.ErrOracleFailed) {
		t.Fatalf("expected wrapped oracle error, got %v", err)
	}
}

func TestGatekeeper_Handle_OracleTimeoutConsumesQuota(t *testing.T) {
	ledger := &fakeLedger{}
	oracle := &fakeOracle{out: "late", delay: 200 * time.Millisecond, ignoreCtx: true}
	g := newTestGatekeeper(t, ledger, oracle, nil)
	g.OracleTimeout = 20 * time.Millisecond

	start := time.Now()
	_, err := g.Handle(context.Background(), inbound(signAt(t, "topsecret", "p", 1000), "203.0.113.7"))
	elapsed := time.Since(start)

	f := failureOf(t, err)
	if f.Reason != domain.ReasonInternal || !errors.Is(err, domain.ErrOracleTimeout) {
		t.Fatalf("expected internal/timeout, got %+v", f)
	}
	if elapsed > 150*time.Millisecond {
		t.Fatalf("expected Handle to return near the timeout, took %s", elapsed)
	}
	key := domain.QuotaKey{Identity: "203.0.113.7", Day: "1970-01-01"}
	ledger.mu.Lock()
	defer ledger.mu.Unlock()
	if ledger.count[key] != 1 {
		t.Fatalf("expected quota unit to stay consumed, got %d", ledger.count[key])
	}
}

func TestGatekeeper_Handle_CooperativeOracleTimeout(t *testing.T) {
	g := newTestGatekeeper(t, &fakeLedger{}, &fakeOracle{delay: time.Second}, nil)
	g.OracleTimeout = 10 * time.Millisecond

	_, err := g.Handle(context.Background(), inbound(signAt(t, "topsecret", "p", 1000), "203.0.113.7"))
	if !errors.Is(err, domain.ErrOracleTimeout) {
		t.Fatalf("expected ErrOracleTimeout, got %v", err)
	}
}

func TestGatekeeper_Handle_MissingDependencies(t *testing.T) {
	_, err := Gatekeeper{}.Handle(context.Background(), domain.Inbound{})
	f := failureOf(t, err)
	if f.Reason != domain.ReasonInternal {
		t.Fatalf("expected internal, got %s", f.Reason)
	}
}

func TestGatekeeper_Handle_RecordsStats(t *testing.T) {
	stats := &recordingStats{}
	g := newTestGatekeeper(t, &fakeLedger{}, &fakeOracle{out: "ok"}, nil)
	g.Stats = stats

	_, _ = g.Handle(context.Background(), inbound(signAt(t, "topsecret", "p", 1000), "203.0.113.7"))
	_, _ = g.Handle(context.Background(), inbound(signAt(t, "nope", "p", 1000), "203.0.113.7"))

	if len(stats.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(stats.events))
	}
	if stats.events[0].Outcome != domain.OutcomeConverted {
		t.Fatalf("expected converted, got %s", stats.events[0].Outcome)
	}
	if stats.events[1].Outcome != domain.OutcomeUnauthorized || stats.events[1].Reject != domain.RejectBadSignature {
		t.Fatalf("expected unauthorized/bad_signature, got %+v", stats.events[1])
	}
}
