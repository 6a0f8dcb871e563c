package domain

import (
	"errors"
	"fmt"
)

// Reason é a categoria estável de falha devolvida na borda.
type Reason string

const (
	ReasonUnauthorized Reason = "unauthorized"
	ReasonRateLimited  Reason = "rate_limited"
	ReasonTooLarge     Reason = "too_large"
	ReasonInternal     Reason = "internal"
)

// Retryable informa se um cliente bem comportado pode reenviar com backoff.
// RateLimited só faz sentido de novo no próximo dia UTC.
func (r Reason) Retryable() bool { return r == ReasonInternal }

var (
	ErrOracleTimeout = errors.New("oracle timed out")
	ErrOracleFailed  = errors.New("oracle failed")
)

// Failure é o erro tipado devolvido pelo Gatekeeper.
type Failure struct {
	Reason Reason
	// Reject só é preenchido para ReasonUnauthorized. Não deve ser exposto ao cliente.
	Reject RejectReason
	Detail string
	// Count é o contador atual quando Reason == ReasonRateLimited.
	Count int
	Err   error
}

func (f *Failure) Error() string {
	if f == nil {
		return "<nil failure>"
	}
	msg := string(f.Reason)
	if f.Reject != RejectNone {
		msg += " (" + string(f.Reject) + ")"
	}
	if f.Detail != "" {
		msg += ": " + f.Detail
	}
	if f.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, f.Err)
	}
	return msg
}

func (f *Failure) Unwrap() error {
	if f == nil {
		return nil
	}
	return f.Err
}

// AsFailure extrai um *Failure de err. Erros desconhecidos viram ReasonInternal.
func AsFailure(err error) *Failure {
	if err == nil {
		return nil
	}
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	return &Failure{Reason: ReasonInternal, Err: err}
}
