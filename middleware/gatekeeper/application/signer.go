package application

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"s2r-gateway/middleware/gatekeeper/domain"
)

// MACFunc calcula a tag de autenticação sobre (timestamp, payload).
type MACFunc func(cred domain.Credential, timestamp string, payload []byte) []byte

// ComputeMAC = HMAC-SHA256(credential, timestamp || ":" || payload).
func ComputeMAC(cred domain.Credential, timestamp string, payload []byte) []byte {
	mac := hmac.New(sha256.New, cred.Bytes())
	mac.Write([]byte(timestamp))
	mac.Write([]byte{':'})
	mac.Write(payload)
	return mac.Sum(nil)
}

// Signer roda do lado do cliente e anexa timestamp + assinatura ao payload.
type Signer struct {
	Credential domain.Credential
	// Now é injetável para testes. Se nil, usa time.Now.
	Now func() time.Time
}

func (s Signer) Sign(payload []byte) (domain.SignedRequest, error) {
	if s.Credential.IsZero() {
		return domain.SignedRequest{}, domain.ErrMissingCredential
	}
	now := s.Now
	if now == nil {
		now = time.Now
	}

	ts := domain.FormatTimestamp(now())
	return domain.SignedRequest{
		Payload:   payload,
		Timestamp: ts,
		Signature: hex.EncodeToString(ComputeMAC(s.Credential, ts, payload)),
	}, nil
}
