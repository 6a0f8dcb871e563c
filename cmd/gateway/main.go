package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"s2r-gateway/middleware/gatekeeper"
	"s2r-gateway/middleware/gatekeeper/application"
	"s2r-gateway/middleware/gatekeeper/domain"
	"s2r-gateway/middleware/gatekeeper/infra"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := readConfig()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	cred, err := domain.NewCredential([]byte(cfg.SharedSecret))
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	ledger, reclaimers, closeLedger, err := buildLedger(ctx, cfg)
	if err != nil {
		log.Fatalf("ledger error: %v", err)
	}
	defer closeLedger()

	if len(reclaimers) > 0 {
		sched, err := infra.NewReclaimScheduler(cfg.ReclaimSchedule, reclaimers,
			infra.WithReclaimRetention(cfg.LedgerRetention),
			infra.WithReclaimLogger(log.Default()),
		)
		if err != nil {
			log.Fatalf("reclaim scheduler error: %v", err)
		}
		if err := sched.Start(ctx); err != nil {
			log.Fatalf("reclaim scheduler error: %v", err)
		}
		defer sched.Stop()
	}

	mux := http.NewServeMux()

	var stats infra.MultiStatsStore
	if cfg.MetricsEnabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		promStats, err := infra.NewPrometheusStatsStore(reg)
		if err != nil {
			log.Fatalf("metrics error: %v", err)
		}
		stats = append(stats, promStats)
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}
	if cfg.StatsRedisEnabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.StatsRedisAddr,
			Password: cfg.StatsRedisPassword,
			DB:       cfg.StatsRedisDB,
		})
		defer func() { _ = rdb.Close() }()

		if err := pingRedis(ctx, rdb); err != nil {
			log.Fatalf("redis stats ping error: %v", err)
		}
		stats = append(stats, infra.NewRedisStatsStore(
			rdb,
			infra.WithStatsPrefix(cfg.StatsPrefix),
			infra.WithStatsTTL(cfg.StatsTTL),
			infra.WithStatsBucket(cfg.StatsBucket),
			infra.WithStatsTrackIdentities(cfg.StatsTrackIdentities),
		))
	}

	gk := application.Gatekeeper{
		Verifier: application.Verifier{
			Credential: cred,
			MaxAge:     cfg.SignatureMaxAge,
			ClockSkew:  cfg.SignatureClockSkew,
		},
		Ledger:          ledger,
		Oracle:          buildOracle(cfg),
		MaxPayloadBytes: cfg.MaxPayloadBytes,
		DailyCeiling:    cfg.DailyCeiling,
		OracleTimeout:   cfg.OracleTimeout,
	}
	if len(stats) > 0 {
		gk.Stats = stats
	}

	h := gatekeeper.Handler(gatekeeper.Options{
		Gatekeeper:         gk,
		TrustXForwardedFor: cfg.TrustXFF,
		Logger:             log.Default(),
		MaxPayloadBytes:    cfg.MaxPayloadBytes,
		DailyCeiling:       cfg.DailyCeiling,
	})
	h = gatekeeper.ConcurrencyMiddleware(gatekeeper.ConcurrencyOptions{
		Max:            cfg.ConcurrencyMax,
		AcquireTimeout: cfg.ConcurrencyTimeout,
	})(h)
	if cfg.ThrottleEnabled {
		store := infra.NewThrottleStore(cfg.ThrottleRPS, cfg.ThrottleBurst)
		store.StartJanitor(ctx)
		h = gatekeeper.ThrottleMiddleware(gatekeeper.ThrottleOptions{
			Store:               store,
			TrustXForwardedFor:  cfg.TrustXFF,
			RetryAfter:          store.RetryAfter(),
			AddRateLimitHeaders: cfg.ThrottleAddHeaders,
		})(h)
	}

	mux.Handle("/healthz", gatekeeper.HealthHandler())
	mux.Handle("/", h)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// a conversão pode levar até ORACLE_TIMEOUT
		WriteTimeout: cfg.OracleTimeout + 15*time.Second,
		IdleTimeout:  90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("gateway listening on %s", cfg.ListenAddr)
	log.Printf("auth: maxAge=%s clockSkew=%s maxPayload=%d secret=%s", cfg.SignatureMaxAge, cfg.SignatureClockSkew, cfg.MaxPayloadBytes, cred)
	log.Printf("quota: ceiling=%d/day backend=%s retention=%s reclaim=%q trustXFF=%v", cfg.DailyCeiling, cfg.LedgerBackend, cfg.LedgerRetention, cfg.ReclaimSchedule, cfg.TrustXFF)
	log.Printf("oracle: backend=%s url=%s model=%s timeout=%s", cfg.OracleBackend, cfg.OracleURL, cfg.OracleModel, cfg.OracleTimeout)
	log.Printf("throttle: enabled=%v rps=%.3f burst=%d", cfg.ThrottleEnabled, cfg.ThrottleRPS, cfg.ThrottleBurst)
	log.Printf("concurrency: max=%d acquireTimeout=%s", cfg.ConcurrencyMax, cfg.ConcurrencyTimeout)
	log.Printf("stats: metrics=%v redis=%v redisAddr=%q bucket=%q ttl=%s trackIdentities=%v", cfg.MetricsEnabled, cfg.StatsRedisEnabled, cfg.StatsRedisAddr, cfg.StatsBucket, cfg.StatsTTL, cfg.StatsTrackIdentities)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server error: %v", err)
	}
}

// buildLedger escolhe o backend de cota. Devolve também quem precisa de
// limpeza periódica e uma função para fechar recursos.
func buildLedger(ctx context.Context, cfg config) (domain.Ledger, []domain.Reclaimer, func(), error) {
	switch cfg.LedgerBackend {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.LedgerRedisAddr,
			Password: cfg.LedgerRedisPassword,
			DB:       cfg.LedgerRedisDB,
		})
		if err := pingRedis(ctx, rdb); err != nil {
			_ = rdb.Close()
			return nil, nil, nil, fmt.Errorf("redis ledger ping: %w", err)
		}
		l := infra.NewRedisLedger(rdb,
			infra.WithLedgerPrefix(cfg.LedgerPrefix),
			infra.WithLedgerRetention(cfg.LedgerRetention),
		)
		// expiração nativa do Redis: nada para recolher
		return l, nil, func() { _ = rdb.Close() }, nil

	case "sqlite":
		l, err := infra.OpenSQLiteLedger(ctx, cfg.LedgerSQLitePath)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("sqlite ledger: %w", err)
		}
		return l, []domain.Reclaimer{l}, func() { _ = l.Close() }, nil

	default:
		log.Printf("quota ledger is in memory: counts reset on restart and are not shared between replicas")
		l := infra.NewMemoryLedger()
		return l, []domain.Reclaimer{l}, func() {}, nil
	}
}

func buildOracle(cfg config) domain.Oracle {
	if cfg.OracleBackend == "echo" {
		log.Printf("oracle is the local echo oracle: output is not a real conversion")
		return infra.EchoOracle{}
	}
	o := infra.NewChatOracle(cfg.OracleURL, cfg.OracleAPIKey, cfg.OracleModel)
	o.MaxTokens = cfg.OracleMaxTokens
	return o
}

func pingRedis(ctx context.Context, rdb *redis.Client) error {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	_, err := rdb.Ping(pingCtx).Result()
	return err
}
