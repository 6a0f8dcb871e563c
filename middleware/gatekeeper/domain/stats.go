package domain

import (
	"context"
	"time"
)

// Outcome é o desfecho de uma chamada ao gatekeeper, para estatísticas.
type Outcome string

const (
	OutcomeConverted    Outcome = "converted"
	OutcomeUnauthorized Outcome = "unauthorized"
	OutcomeRateLimited  Outcome = "rate_limited"
	OutcomeTooLarge     Outcome = "too_large"
	OutcomeInternal     Outcome = "internal"
)

// OutcomeOf traduz o erro devolvido pelo gatekeeper em Outcome.
func OutcomeOf(err error) Outcome {
	if err == nil {
		return OutcomeConverted
	}
	switch AsFailure(err).Reason {
	case ReasonUnauthorized:
		return OutcomeUnauthorized
	case ReasonRateLimited:
		return OutcomeRateLimited
	case ReasonTooLarge:
		return OutcomeTooLarge
	default:
		return OutcomeInternal
	}
}

// StatsEvent representa um desfecho do gatekeeper.
//
// Observação: cuidado com cardinalidade. Identity só deve ser persistida por
// chave quando o backend tiver expiração (ex: Redis com TTL).
type StatsEvent struct {
	Identity Identity
	Outcome  Outcome
	Reject   RejectReason

	At time.Time
}

// StatsStore é a estratégia de persistência para estatísticas.
//
// Implementações podem armazenar em Redis, Prometheus, memória, etc.
// Quem registra deve tratar erro como best-effort (não derrubar request).
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}
