package client

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const DefaultTimeout = 90 * time.Second

var (
	ErrMissingEndpoint = errors.New("api endpoint is not configured (S2R_API_ENDPOINT)")
	ErrMissingSecret   = errors.New("shared secret is not configured (S2R_SHARED_SECRET)")
)

type Config struct {
	Endpoint     string `toml:"api_endpoint"`
	SharedSecret string `toml:"shared_secret"`
	// TimeoutSecs é o tempo máximo de uma conversão, em segundos.
	TimeoutSecs int `toml:"timeout_secs"`
}

func (c Config) Timeout() time.Duration {
	if c.TimeoutSecs <= 0 {
		return DefaultTimeout
	}
	return time.Duration(c.TimeoutSecs) * time.Second
}

// String não expõe o segredo.
func (c Config) String() string {
	secret := "unset"
	if c.SharedSecret != "" {
		secret = "redacted"
	}
	return fmt.Sprintf("Config{Endpoint:%q SharedSecret:%s Timeout:%s}", c.Endpoint, secret, c.Timeout())
}

func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Endpoint) == "" {
		errs = append(errs, ErrMissingEndpoint)
	} else if !strings.HasPrefix(c.Endpoint, "http://") && !strings.HasPrefix(c.Endpoint, "https://") {
		errs = append(errs, fmt.Errorf("api endpoint must be http(s): %q", c.Endpoint))
	}
	if c.SharedSecret == "" {
		errs = append(errs, ErrMissingSecret)
	}
	if c.TimeoutSecs < 0 {
		errs = append(errs, fmt.Errorf("timeout must not be negative: %d", c.TimeoutSecs))
	}
	return errors.Join(errs...)
}

// ConfigPath devolve S2R_CONFIG ou ~/.config/s2r/config.toml.
func ConfigPath() (string, error) {
	if p := os.Getenv("S2R_CONFIG"); p != "" {
		return p, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config dir: %w", err)
	}
	return filepath.Join(dir, "s2r", "config.toml"), nil
}

// LoadConfig lê o arquivo em path (ou ConfigPath se vazio), aplica as
// variáveis de ambiente e valida. Arquivo ausente não é erro.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}

	if path == "" {
		p, err := ConfigPath()
		if err == nil {
			path = p
		}
	}
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, cfg); err != nil {
				return nil, fmt.Errorf("failed to decode TOML file: %w", err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("stat config file: %w", err)
		}
	}

	if err := cfg.ApplyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ApplyEnvOverrides sobrescreve campos com as variáveis S2R_*.
// S2R_TIMEOUT aceita segundos ("90") ou duração ("1m30s").
func (c *Config) ApplyEnvOverrides() error {
	if v := os.Getenv("S2R_API_ENDPOINT"); v != "" {
		c.Endpoint = strings.TrimSpace(v)
	}
	if v := os.Getenv("S2R_SHARED_SECRET"); v != "" {
		c.SharedSecret = v
	}
	if v := strings.TrimSpace(os.Getenv("S2R_TIMEOUT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.TimeoutSecs = n
		} else if d, err := time.ParseDuration(v); err == nil {
			c.TimeoutSecs = int(d.Round(time.Second) / time.Second)
		} else {
			return fmt.Errorf("invalid S2R_TIMEOUT %q", v)
		}
	}
	return nil
}
