package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"s2r-gateway/middleware/gatekeeper/application"
	"s2r-gateway/middleware/gatekeeper/infra"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type config struct {
	ListenAddr string `validate:"required"`

	SharedSecret       string        `validate:"required"`
	MaxPayloadBytes    int           `validate:"gt=0"`
	SignatureMaxAge    time.Duration `validate:"gt=0"`
	SignatureClockSkew time.Duration `validate:"gte=0"`
	DailyCeiling       int           `validate:"gt=0"`
	TrustXFF           bool

	OracleBackend   string `validate:"oneof=chat echo"`
	OracleURL       string `validate:"omitempty,url"`
	OracleAPIKey    string
	OracleModel     string
	OracleMaxTokens int           `validate:"gte=0"`
	OracleTimeout   time.Duration `validate:"gt=0"`

	LedgerBackend       string `validate:"oneof=memory redis sqlite"`
	LedgerRedisAddr     string `validate:"required_if=LedgerBackend redis"`
	LedgerRedisPassword string
	LedgerRedisDB       int `validate:"gte=0"`
	LedgerPrefix        string
	LedgerSQLitePath    string        `validate:"required_if=LedgerBackend sqlite"`
	LedgerRetention     time.Duration `validate:"gte=0"`
	ReclaimSchedule     string        `validate:"cron"`

	ThrottleEnabled    bool
	ThrottleRPS        float64
	ThrottleBurst      int
	ThrottleAddHeaders bool

	ConcurrencyMax     int `validate:"gte=0"`
	ConcurrencyTimeout time.Duration

	StatsRedisEnabled    bool
	StatsRedisAddr       string `validate:"required_if=StatsRedisEnabled true"`
	StatsRedisPassword   string
	StatsRedisDB         int `validate:"gte=0"`
	StatsPrefix          string
	StatsTTL             time.Duration
	StatsBucket          string `validate:"oneof=minute hour none"`
	StatsTrackIdentities bool

	MetricsEnabled bool
}

func readConfig() (config, error) {
	if err := loadEnvFile(getenvDefault("ENV_FILE", ".env")); err != nil {
		return config{}, err
	}

	cfg := config{}
	cfg.ListenAddr = getenvDefault("LISTEN_ADDR", ":8080")

	secret, err := readSecret()
	if err != nil {
		return config{}, err
	}
	cfg.SharedSecret = secret
	cfg.MaxPayloadBytes = getenvIntDefault("MAX_PAYLOAD_BYTES", 50*1024)
	cfg.SignatureMaxAge = getenvDurationDefault("SIGNATURE_MAX_AGE", 5*time.Minute)
	// Sem SIGNATURE_CLOCK_SKEW explícito, o default é limitado pelo max age.
	cfg.SignatureClockSkew = getenvDurationDefault("SIGNATURE_CLOCK_SKEW", min(application.DefaultClockSkew, cfg.SignatureMaxAge))
	cfg.DailyCeiling = getenvIntDefault("DAILY_CEILING", 100)
	cfg.TrustXFF = getenvBoolDefault("TRUST_XFF", false)

	cfg.OracleBackend = strings.ToLower(getenvDefault("ORACLE_BACKEND", "chat"))
	cfg.OracleURL = getenvDefault("ORACLE_URL", infra.DefaultOracleURL)
	cfg.OracleAPIKey = os.Getenv("ORACLE_API_KEY")
	cfg.OracleModel = getenvDefault("ORACLE_MODEL", infra.DefaultOracleModel)
	cfg.OracleMaxTokens = getenvIntDefault("ORACLE_MAX_TOKENS", infra.DefaultOracleMaxTokens)
	cfg.OracleTimeout = getenvDurationDefault("ORACLE_TIMEOUT", 60*time.Second)

	cfg.LedgerBackend = strings.ToLower(getenvDefault("LEDGER_BACKEND", "memory"))
	cfg.LedgerRedisAddr = os.Getenv("LEDGER_REDIS_ADDR")
	cfg.LedgerRedisPassword = os.Getenv("LEDGER_REDIS_PASSWORD")
	cfg.LedgerRedisDB = getenvIntDefault("LEDGER_REDIS_DB", 0)
	cfg.LedgerPrefix = getenvDefault("LEDGER_PREFIX", "s2r:quota")
	cfg.LedgerSQLitePath = os.Getenv("LEDGER_SQLITE_PATH")
	cfg.LedgerRetention = getenvDurationDefault("LEDGER_RETENTION", 24*time.Hour)
	cfg.ReclaimSchedule = getenvDefault("RECLAIM_SCHEDULE", "@hourly")

	cfg.ThrottleEnabled = getenvBoolDefault("THROTTLE_ENABLED", false)
	cfg.ThrottleRPS = getenvFloatDefault("THROTTLE_RPS", 1)
	// Com RPS < 1 o burst padrão deixaria passar uma rajada grande antes de bloquear.
	if burst, ok := getenvInt("THROTTLE_BURST"); ok {
		cfg.ThrottleBurst = burst
	} else {
		cfg.ThrottleBurst = 5
		if getenvIsSet("THROTTLE_RPS") && cfg.ThrottleRPS > 0 && cfg.ThrottleRPS < 1 {
			cfg.ThrottleBurst = 1
		}
	}
	cfg.ThrottleAddHeaders = getenvBoolDefault("ADD_RATELIMIT_HEADERS", false)

	cfg.ConcurrencyMax = getenvIntDefault("CONCURRENCY_MAX", 32)
	cfg.ConcurrencyTimeout = getenvDurationDefault("CONCURRENCY_TIMEOUT", 0)

	cfg.StatsRedisEnabled = getenvBoolDefault("STATS_REDIS_ENABLED", false)
	cfg.StatsRedisAddr = os.Getenv("STATS_REDIS_ADDR")
	cfg.StatsRedisPassword = os.Getenv("STATS_REDIS_PASSWORD")
	cfg.StatsRedisDB = getenvIntDefault("STATS_REDIS_DB", 0)
	cfg.StatsPrefix = getenvDefault("STATS_PREFIX", "s2r:stats")
	cfg.StatsTTL = getenvDurationDefault("STATS_TTL", 24*time.Hour)
	cfg.StatsBucket = strings.ToLower(getenvDefault("STATS_BUCKET", "minute"))
	cfg.StatsTrackIdentities = getenvBoolDefault("STATS_TRACK_IDENTITIES", false)

	cfg.MetricsEnabled = getenvBoolDefault("METRICS_ENABLED", true)

	if err := cfg.validate(); err != nil {
		return config{}, err
	}
	return cfg, nil
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("cron", func(fl validator.FieldLevel) bool {
		return infra.ValidateSchedule(strings.TrimSpace(fl.Field().String())) == nil
	}); err != nil {
		panic("gateway: failed to register cron validation: " + err.Error())
	}
	return v
}

func (c config) validate() error {
	if err := newValidator().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	if c.ThrottleEnabled {
		if c.ThrottleRPS <= 0 {
			return errors.New("THROTTLE_RPS must be > 0")
		}
		if c.ThrottleBurst <= 0 {
			return errors.New("THROTTLE_BURST must be > 0")
		}
	}
	if c.OracleBackend == "chat" && strings.TrimSpace(c.OracleURL) == "" {
		return errors.New("ORACLE_URL is required when ORACLE_BACKEND=chat")
	}
	if c.SignatureClockSkew > c.SignatureMaxAge {
		return errors.New("SIGNATURE_CLOCK_SKEW must not exceed SIGNATURE_MAX_AGE")
	}
	return nil
}

// loadEnvFile carrega um .env sem sobrescrever o ambiente. Arquivo ausente é ignorado.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// readSecret prefere SHARED_SECRET_FILE (ex: /run/secrets/s2r) a SHARED_SECRET.
func readSecret() (string, error) {
	if path := os.Getenv("SHARED_SECRET_FILE"); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read SHARED_SECRET_FILE: %w", err)
		}
		secret := strings.TrimRight(string(b), "\r\n")
		if secret == "" {
			return "", errors.New("SHARED_SECRET_FILE is empty")
		}
		return secret, nil
	}
	if secret := os.Getenv("SHARED_SECRET"); secret != "" {
		return secret, nil
	}
	return "", errors.New("SHARED_SECRET or SHARED_SECRET_FILE is required")
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getenvInt(k string) (int, bool) {
	v, ok := os.LookupEnv(k)
	if !ok || v == "" {
		return 0, false
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return i, true
}

func getenvIsSet(k string) bool {
	v, ok := os.LookupEnv(k)
	return ok && v != ""
}

func getenvFloatDefault(k string, def float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getenvBoolDefault(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvDurationDefault(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
