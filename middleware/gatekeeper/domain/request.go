package domain

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

var ErrMissingCredential = errors.New("shared credential is not configured")

// Headers que carregam timestamp e assinatura no transporte HTTP.
const (
	TimestampHeader = "X-S2R-Timestamp"
	SignatureHeader = "X-S2R-Signature"
)

// Credential é o segredo compartilhado entre quem assina e o verificador.
// É imutável depois de criado: NewCredential copia os bytes recebidos.
type Credential struct {
	secret []byte
}

func NewCredential(secret []byte) (Credential, error) {
	if len(secret) == 0 {
		return Credential{}, ErrMissingCredential
	}
	cp := make([]byte, len(secret))
	copy(cp, secret)
	return Credential{secret: cp}, nil
}

func (c Credential) IsZero() bool { return len(c.secret) == 0 }

// Bytes devolve uma cópia do segredo.
func (c Credential) Bytes() []byte {
	cp := make([]byte, len(c.secret))
	copy(cp, c.secret)
	return cp
}

// String nunca expõe o segredo (logs, %v, etc).
func (c Credential) String() string {
	if c.IsZero() {
		return "credential(empty)"
	}
	return "credential(redacted)"
}

// SignedRequest é o que o cliente envia: corpo bruto + timestamp + assinatura.
//
// Timestamp é mantido como texto exatamente como foi assinado; qualquer
// alteração nele (ou no payload) invalida a assinatura.
type SignedRequest struct {
	Payload   []byte
	Timestamp string
	Signature string
}

// FormatTimestamp codifica t como segundos desde a época com precisão de microssegundos.
func FormatTimestamp(t time.Time) string {
	us := t.UnixMicro()
	sec := us / 1_000_000
	frac := us % 1_000_000
	if frac < 0 {
		sec--
		frac += 1_000_000
	}
	return fmt.Sprintf("%d.%06d", sec, frac)
}

// ParseTimestamp aceita segundos desde a época, com ou sem fração.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp: %w", err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return time.Time{}, fmt.Errorf("parse timestamp: non-finite value %q", s)
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(math.Round(frac*1e6))*int64(time.Microsecond)).UTC(), nil
}

// Inbound é a requisição já extraída do transporte.
// Origin é o endereço observado pela borda do servidor, nunca um campo do cliente.
type Inbound struct {
	Request SignedRequest
	Origin  Identity
}
