package gatekeeper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"s2r-gateway/middleware/gatekeeper/application"
	"s2r-gateway/middleware/gatekeeper/domain"

	"github.com/google/uuid"
)

const RequestIDHeader = "X-Request-ID"

// Converter é o caso de uso atrás do handler (application.Gatekeeper).
type Converter interface {
	Handle(ctx context.Context, in domain.Inbound) (string, error)
}

type Options struct {
	Gatekeeper Converter
	IdentityFn IdentityFunc
	// TrustXForwardedFor só vale quando IdentityFn é nil.
	TrustXForwardedFor bool
	Logger             *log.Logger

	// MaxPayloadBytes e DailyCeiling devem ser os mesmos do Gatekeeper; aqui
	// servem para limitar a leitura do corpo e montar as mensagens.
	MaxPayloadBytes int
	DailyCeiling    int
	Now             func() time.Time
}

// Handler expõe o Gatekeeper como POST com o script no corpo.
func Handler(opts Options) http.Handler {
	if opts.IdentityFn == nil {
		opts.IdentityFn = DefaultIdentityFunc(opts.TrustXForwardedFor)
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.MaxPayloadBytes <= 0 {
		opts.MaxPayloadBytes = application.DefaultMaxPayloadBytes
	}
	if opts.DailyCeiling <= 0 {
		opts.DailyCeiling = application.DefaultDailyCeiling
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		w.Header().Set(RequestIDHeader, reqID)

		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeError(w, http.StatusMethodNotAllowed, codeMethod, "method not allowed")
			return
		}
		if opts.Gatekeeper == nil {
			opts.Logger.Printf("request %s: gatekeeper not configured", reqID)
			writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
			return
		}

		identity := opts.IdentityFn(r)

		// lê no máximo max+1 bytes: o suficiente para o Gatekeeper saber que passou
		body, err := io.ReadAll(io.LimitReader(r.Body, int64(opts.MaxPayloadBytes)+1))
		if err != nil {
			opts.Logger.Printf("request %s from %s: read body: %v", reqID, identity, err)
			writeError(w, http.StatusBadRequest, codeBadRequest, "could not read request body")
			return
		}

		in := domain.Inbound{
			Request: domain.SignedRequest{
				Payload:   body,
				Timestamp: strings.TrimSpace(r.Header.Get(domain.TimestampHeader)),
				Signature: strings.TrimSpace(r.Header.Get(domain.SignatureHeader)),
			},
			Origin: identity,
		}

		out, err := opts.Gatekeeper.Handle(r.Context(), in)
		if err != nil {
			opts.Logger.Printf("request %s from %s rejected: %v", reqID, identity, err)
			writeFailure(w, domain.AsFailure(err), opts)
			return
		}
		writeJSON(w, http.StatusOK, successBody{RunAIConfig: out})
	})
}

func writeFailure(w http.ResponseWriter, f *domain.Failure, opts Options) {
	switch f.Reason {
	case domain.ReasonTooLarge:
		writeError(w, http.StatusRequestEntityTooLarge, codeTooLarge,
			fmt.Sprintf("payload too large (max %dKB)", opts.MaxPayloadBytes/1024))
	case domain.ReasonUnauthorized:
		// mesma mensagem para assinatura inválida e expirada
		writeError(w, http.StatusUnauthorized, codeUnauthorized, "invalid signature or expired timestamp")
	case domain.ReasonRateLimited:
		w.Header().Set("Retry-After", formatInt(retryAfterSeconds(untilNextUTCDay(opts.Now()))))
		w.Header().Set("X-Quota-Limit", formatInt(opts.DailyCeiling))
		writeError(w, http.StatusTooManyRequests, codeRateLimited,
			fmt.Sprintf("rate limit exceeded: %d requests per day", opts.DailyCeiling))
	default:
		switch {
		case errors.Is(f, domain.ErrOracleTimeout):
			writeError(w, http.StatusGatewayTimeout, codeInternal, "conversion timed out")
		case errors.Is(f, domain.ErrOracleFailed):
			writeError(w, http.StatusBadGateway, codeInternal, "conversion failed")
		default:
			writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
		}
	}
}
