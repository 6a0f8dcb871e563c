package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"s2r-gateway/middleware/gatekeeper"
	"s2r-gateway/middleware/gatekeeper/application"
	"s2r-gateway/middleware/gatekeeper/domain"
	"s2r-gateway/middleware/gatekeeper/infra"
)

func main() {
	// Exemplo: gateway completo em um processo, sem Redis e sem chave de API.
	// Cota em memória, oráculo local (EchoOracle) e throttle de rajada.
	secret := os.Getenv("SHARED_SECRET")
	if secret == "" {
		secret = "dev-secret"
		log.Printf("SHARED_SECRET not set, using %q (development only)", secret)
	}
	cred, err := domain.NewCredential([]byte(secret))
	if err != nil {
		log.Fatalf("credential error: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	ledger := infra.NewMemoryLedger()
	stats := infra.NewMemoryStatsStore(infra.WithTrackIdentities(true))
	store := infra.NewThrottleStore(5, 10)
	store.StartJanitor(ctx)

	gk := application.Gatekeeper{
		Verifier:     application.Verifier{Credential: cred, ClockSkew: application.DefaultClockSkew},
		Ledger:       ledger,
		Oracle:       infra.EchoOracle{},
		Stats:        stats,
		DailyCeiling: 20,
	}

	h := gatekeeper.Handler(gatekeeper.Options{Gatekeeper: gk, DailyCeiling: 20})
	h = gatekeeper.ConcurrencyMiddleware(gatekeeper.ConcurrencyOptions{Max: 8})(h)
	h = gatekeeper.ThrottleMiddleware(gatekeeper.ThrottleOptions{
		Store:               store,
		RetryAfter:          store.RetryAfter(),
		AddRateLimitHeaders: true,
	})(h)

	mux := http.NewServeMux()
	mux.Handle("/", h)
	mux.Handle("/healthz", gatekeeper.HealthHandler())

	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("example server listening on %s (quota 20/day, echo oracle)", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
	log.Printf("served: converted=%d unauthorized=%d rate_limited=%d records=%d",
		stats.Count(domain.OutcomeConverted),
		stats.Count(domain.OutcomeUnauthorized),
		stats.Count(domain.OutcomeRateLimited),
		ledger.Len(),
	)
}
