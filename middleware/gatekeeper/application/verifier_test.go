package application

import (
	"testing"
	"time"

	"s2r-gateway/middleware/gatekeeper/domain"
)

func signAt(t *testing.T, secret string, payload string, sec float64) domain.SignedRequest {
	t.Helper()
	req, err := Signer{Credential: mustCredential(t, secret), Now: fixedClock(sec)}.Sign([]byte(payload))
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	return req
}

func verifierAt(t *testing.T, secret string, sec float64) Verifier {
	return Verifier{
		Credential: mustCredential(t, secret),
		MaxAge:     300 * time.Second,
		Now:        fixedClock(sec),
	}
}

func TestVerifier_Verify_AcceptsFreshSignature(t *testing.T) {
	req := signAt(t, "topsecret", "#!/bin/bash\necho hi", 1000)

	if v := verifierAt(t, "topsecret", 1000).Verify(req); !v.Accepted {
		t.Fatalf("expected accept, got %+v", v)
	}
}

func TestVerifier_Verify_ExpiresAfterMaxAge(t *testing.T) {
	req := signAt(t, "topsecret", "#!/bin/bash\necho hi", 1000)

	v := verifierAt(t, "topsecret", 1301).Verify(req)
	if v.Accepted || v.Reason != domain.RejectExpired {
		t.Fatalf("expected expired, got %+v", v)
	}
}

func TestVerifier_Verify_MaxAgeBoundaries(t *testing.T) {
	req := signAt(t, "k", "payload", 5000)

	if v := verifierAt(t, "k", 5000+300-1).Verify(req); !v.Accepted {
		t.Fatalf("expected accept at maxAge-1, got %+v", v)
	}
	if v := verifierAt(t, "k", 5000+300+1).Verify(req); v.Reason != domain.RejectExpired {
		t.Fatalf("expected expired at maxAge+1, got %+v", v)
	}
}

func TestVerifier_Verify_ToleratesSmallFutureSkewOnly(t *testing.T) {
	req := signAt(t, "k", "payload", 1010)

	v := Verifier{Credential: mustCredential(t, "k"), ClockSkew: 30 * time.Second, Now: fixedClock(1000)}
	if got := v.Verify(req); !got.Accepted {
		t.Fatalf("expected accept with 10s future skew, got %+v", got)
	}

	far := signAt(t, "k", "payload", 1400)
	if got := v.Verify(far); got.Reason != domain.RejectExpired {
		t.Fatalf("expected expired for 400s future timestamp, got %+v", got)
	}
}

func TestVerifier_Verify_ZeroClockSkewRejectsFutureTimestamp(t *testing.T) {
	v := Verifier{Credential: mustCredential(t, "k"), MaxAge: 300 * time.Second, ClockSkew: 0, Now: fixedClock(1000)}

	if got := v.Verify(signAt(t, "k", "payload", 1000)); !got.Accepted {
		t.Fatalf("expected accept for current timestamp, got %+v", got)
	}
	for _, sec := range []float64{1001, 1020} {
		if got := v.Verify(signAt(t, "k", "payload", sec)); got.Accepted || got.Reason != domain.RejectExpired {
			t.Fatalf("expected expired for timestamp %v with zero skew, got %+v", sec, got)
		}
	}
}

func TestVerifier_Verify_SkewCappedAtMaxAge(t *testing.T) {
	v := Verifier{Credential: mustCredential(t, "k"), MaxAge: 10 * time.Second, ClockSkew: time.Minute, Now: fixedClock(1000)}

	if got := v.Verify(signAt(t, "k", "payload", 1010)); !got.Accepted {
		t.Fatalf("expected accept at capped skew, got %+v", got)
	}
	if got := v.Verify(signAt(t, "k", "payload", 1011)); got.Reason != domain.RejectExpired {
		t.Fatalf("expected expired beyond capped skew, got %+v", got)
	}
}

func TestVerifier_Verify_WrongSecret(t *testing.T) {
	req := signAt(t, "secret1", "payload", 1000)

	if v := verifierAt(t, "secret2", 1000).Verify(req); v.Reason != domain.RejectBadSignature {
		t.Fatalf("expected bad signature, got %+v", v)
	}
}

func TestVerifier_Verify_InvalidSignatureString(t *testing.T) {
	req := signAt(t, "k", "payload", 1000)
	req.Signature = "invalid_signature"

	if v := verifierAt(t, "k", 1000).Verify(req); v.Reason != domain.RejectBadSignature {
		t.Fatalf("expected bad signature, got %+v", v)
	}
}

func TestVerifier_Verify_AnySingleByteChangeBreaksSignature(t *testing.T) {
	req := signAt(t, "k", "#!/bin/bash\n#SBATCH --gres=gpu:2\n", 1000)
	v := verifierAt(t, "k", 1000)

	for i := range req.Payload {
		tampered := req
		tampered.Payload = append([]byte(nil), req.Payload...)
		tampered.Payload[i] ^= 0x01
		if got := v.Verify(tampered); got.Reason != domain.RejectBadSignature {
			t.Fatalf("payload byte %d: expected bad signature, got %+v", i, got)
		}
	}

	for i := range req.Timestamp {
		b := []byte(req.Timestamp)
		b[i] ^= 0x01
		tampered := req
		tampered.Timestamp = string(b)
		if got := v.Verify(tampered); got.Reason != domain.RejectBadSignature {
			t.Fatalf("timestamp byte %d: expected bad signature, got %+v", i, got)
		}
	}
}

func TestVerifier_Verify_OldSignatureWithRefreshedTimestampFails(t *testing.T) {
	old := signAt(t, "k", "payload", 1000)
	fresh := signAt(t, "k", "payload", 2000)

	replay := old
	replay.Timestamp = fresh.Timestamp
	if v := verifierAt(t, "k", 2000).Verify(replay); v.Reason != domain.RejectBadSignature {
		t.Fatalf("expected bad signature on replay with refreshed timestamp, got %+v", v)
	}
}

func TestVerifier_Verify_SignatureCheckedBeforeTimestamp(t *testing.T) {
	req := signAt(t, "k", "payload", 1000)
	req.Signature = signAt(t, "other", "payload", 1000).Signature

	// expirado E com assinatura errada: o motivo tem que ser a assinatura
	if v := verifierAt(t, "k", 9000).Verify(req); v.Reason != domain.RejectBadSignature {
		t.Fatalf("expected bad signature first, got %+v", v)
	}
}

func TestVerifier_Verify_UsesInjectedMAC(t *testing.T) {
	calls := 0
	v := verifierAt(t, "k", 1000)
	v.MAC = func(c domain.Credential, ts string, p []byte) []byte {
		calls++
		return ComputeMAC(c, ts, p)
	}

	if got := v.Verify(signAt(t, "k", "payload", 1000)); !got.Accepted {
		t.Fatalf("expected accept, got %+v", got)
	}
	if calls != 1 {
		t.Fatalf("expected MAC to be called once, got %d", calls)
	}
}

func TestVerifier_Verify_ZeroCredentialRejects(t *testing.T) {
	req := signAt(t, "k", "payload", 1000)
	if v := (Verifier{Now: fixedClock(1000)}).Verify(req); v.Accepted {
		t.Fatalf("expected reject without credential")
	}
}
