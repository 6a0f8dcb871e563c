package application

import (
	"crypto/hmac"
	"encoding/hex"
	"strings"
	"time"

	"s2r-gateway/middleware/gatekeeper/domain"
)

const (
	DefaultMaxAge    = 300 * time.Second
	DefaultClockSkew = 30 * time.Second
)

// Verifier decide autenticidade e frescor de uma requisição assinada.
//
// A assinatura é conferida antes do timestamp: com a assinatura errada a
// resposta é sempre BadSignature, independente da idade.
type Verifier struct {
	Credential domain.Credential
	// MaxAge é a idade máxima aceita. Se <= 0, usa DefaultMaxAge.
	MaxAge time.Duration
	// ClockSkew é quanto o relógio do cliente pode estar adiantado.
	// Zero recusa qualquer timestamp no futuro; nunca passa de MaxAge.
	// O default (DefaultClockSkew) é aplicado por quem monta o Verifier.
	ClockSkew time.Duration
	Now       func() time.Time
	// MAC é injetável para testes. Se nil, usa ComputeMAC.
	MAC MACFunc
}

var _ domain.RequestVerifier = Verifier{}

func (v Verifier) Verify(req domain.SignedRequest) domain.Verdict {
	if v.Credential.IsZero() {
		return domain.Reject(domain.RejectBadSignature)
	}
	macFn := v.MAC
	if macFn == nil {
		macFn = ComputeMAC
	}

	expected := macFn(v.Credential, req.Timestamp, req.Payload)
	got, err := hex.DecodeString(strings.TrimSpace(req.Signature))
	if err != nil {
		got = nil
	}
	if !hmac.Equal(expected, got) {
		return domain.Reject(domain.RejectBadSignature)
	}

	ts, err := domain.ParseTimestamp(req.Timestamp)
	if err != nil {
		return domain.Reject(domain.RejectExpired)
	}

	maxAge, skew := v.window()
	now := time.Now
	if v.Now != nil {
		now = v.Now
	}
	age := now().Sub(ts)
	if age > maxAge || age < -skew {
		return domain.Reject(domain.RejectExpired)
	}
	return domain.Accept()
}

func (v Verifier) window() (maxAge, skew time.Duration) {
	maxAge = v.MaxAge
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	skew = v.ClockSkew
	if skew < 0 {
		skew = 0
	}
	if skew > maxAge {
		skew = maxAge
	}
	return maxAge, skew
}
