package gatekeeper

import (
	"net/http"
	"time"

	"s2r-gateway/middleware/gatekeeper/application"
	"s2r-gateway/middleware/gatekeeper/infra"
)

type ConcurrencyOptions struct {
	Max            int
	AcquireTimeout time.Duration
}

// ConcurrencyMiddleware limita conversões em andamento. Quem não consegue vaga
// recebe 503 sem passar pelo gatekeeper (nenhuma cota é consumida).
func ConcurrencyMiddleware(opts ConcurrencyOptions) func(next http.Handler) http.Handler {
	if opts.Max <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	svc := application.ConversionSlots{
		Pool:           infra.NewChanPool(opts.Max),
		AcquireTimeout: opts.AcquireTimeout,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			release, ok := svc.Acquire(r.Context())
			if !ok {
				w.Header().Set("Retry-After", "1")
				writeError(w, http.StatusServiceUnavailable, codeInternal, "server busy")
				return
			}
			defer release()

			next.ServeHTTP(w, r)
		})
	}
}
