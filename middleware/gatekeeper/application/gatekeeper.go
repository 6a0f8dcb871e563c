package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"s2r-gateway/middleware/gatekeeper/domain"
)

const (
	DefaultMaxPayloadBytes = 50 * 1024
	DefaultDailyCeiling    = 100
	DefaultOracleTimeout   = 60 * time.Second
)

// Gatekeeper orquestra verificador -> cota -> oráculo.
//
// O fluxo é linear e sem retries: uma requisição recusada ou com falha é final.
// A cota consumida no passo 4 não é devolvida se o oráculo falhar depois.
type Gatekeeper struct {
	Verifier domain.RequestVerifier
	Ledger   domain.Ledger
	Oracle   domain.Oracle
	// Stats é opcional e best-effort.
	Stats domain.StatsStore

	MaxPayloadBytes int
	DailyCeiling    int
	OracleTimeout   time.Duration
	Now             func() time.Time
}

func (g Gatekeeper) Handle(ctx context.Context, in domain.Inbound) (string, error) {
	out, err := g.handle(ctx, in)
	g.record(ctx, in.Origin, err)
	return out, err
}

func (g Gatekeeper) handle(ctx context.Context, in domain.Inbound) (string, error) {
	if err := g.guardDependencies(); err != nil {
		return "", err
	}

	// 1) tamanho antes de qualquer trabalho criptográfico
	maxBytes := g.MaxPayloadBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxPayloadBytes
	}
	if len(in.Request.Payload) > maxBytes {
		return "", &domain.Failure{
			Reason: domain.ReasonTooLarge,
			Detail: fmt.Sprintf("payload has %d bytes, max %d", len(in.Request.Payload), maxBytes),
		}
	}

	// 2) autenticidade + frescor
	if verdict := g.Verifier.Verify(in.Request); !verdict.Accepted {
		return "", &domain.Failure{Reason: domain.ReasonUnauthorized, Reject: verdict.Reason}
	}

	// 3) e 4) cota por (identidade de origem, dia UTC)
	ceiling := g.DailyCeiling
	if ceiling <= 0 {
		ceiling = DefaultDailyCeiling
	}
	key := domain.QuotaKey{Identity: in.Origin, Day: domain.DayOf(g.now())}
	cons, err := g.Ledger.TryConsume(ctx, key, ceiling)
	if err != nil {
		return "", &domain.Failure{Reason: domain.ReasonInternal, Detail: "quota store unavailable", Err: err}
	}
	if !cons.Admitted {
		return "", &domain.Failure{
			Reason: domain.ReasonRateLimited,
			Detail: fmt.Sprintf("%d of %d requests used on %s", cons.Count, ceiling, key.Day),
			Count:  cons.Count,
		}
	}

	// 5) oráculo com timeout
	out, err := g.convert(ctx, string(in.Request.Payload))
	if err != nil {
		if errors.Is(err, domain.ErrOracleTimeout) {
			return "", &domain.Failure{Reason: domain.ReasonInternal, Detail: "oracle timed out", Err: err}
		}
		return "", &domain.Failure{Reason: domain.ReasonInternal, Detail: "oracle failed", Err: err}
	}
	return out, nil
}

type oracleResult struct {
	out string
	err error
}

// convert chama o oráculo numa goroutine para que um oráculo que ignora ctx
// não segure Handle além do timeout. O resultado tardio é descartado.
func (g Gatekeeper) convert(ctx context.Context, text string) (string, error) {
	timeout := g.OracleTimeout
	if timeout <= 0 {
		timeout = DefaultOracleTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan oracleResult, 1)
	go func() {
		out, err := g.Oracle.Convert(callCtx, text)
		done <- oracleResult{out: out, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
				return "", fmt.Errorf("%w after %s: %v", domain.ErrOracleTimeout, timeout, res.err)
			}
			return "", fmt.Errorf("%w: %w", domain.ErrOracleFailed, res.err)
		}
		return res.out, nil
	case <-callCtx.Done():
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w after %s", domain.ErrOracleTimeout, timeout)
		}
		return "", fmt.Errorf("%w: %w", domain.ErrOracleFailed, callCtx.Err())
	}
}

func (g Gatekeeper) guardDependencies() error {
	var missing []string
	if g.Verifier == nil {
		missing = append(missing, "Verifier")
	}
	if g.Ledger == nil {
		missing = append(missing, "Ledger")
	}
	if g.Oracle == nil {
		missing = append(missing, "Oracle")
	}
	if len(missing) > 0 {
		return &domain.Failure{
			Reason: domain.ReasonInternal,
			Detail: fmt.Sprintf("gatekeeper missing dependencies: %v", missing),
		}
	}
	return nil
}

func (g Gatekeeper) record(ctx context.Context, origin domain.Identity, err error) {
	if g.Stats == nil {
		return
	}
	ev := domain.StatsEvent{
		Identity: origin,
		Outcome:  domain.OutcomeOf(err),
		At:       g.now(),
	}
	if f := domain.AsFailure(err); f != nil {
		ev.Reject = f.Reject
	}
	_ = g.Stats.Record(context.WithoutCancel(ctx), ev)
}

func (g Gatekeeper) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}
