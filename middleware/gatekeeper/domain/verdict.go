package domain

// RejectReason diz por que o verificador recusou uma requisição.
// Os dois motivos chegam ao cliente como "unauthorized"; só aparecem em logs.
type RejectReason string

const (
	RejectNone         RejectReason = ""
	RejectBadSignature RejectReason = "bad_signature"
	RejectExpired      RejectReason = "expired"
)

type Verdict struct {
	Accepted bool
	Reason   RejectReason
}

func Accept() Verdict { return Verdict{Accepted: true} }

func Reject(reason RejectReason) Verdict { return Verdict{Reason: reason} }

// RequestVerifier decide autenticidade e frescor de uma requisição assinada.
type RequestVerifier interface {
	Verify(req SignedRequest) Verdict
}
