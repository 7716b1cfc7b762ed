package bootstrap

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/LerianStudio/beneficiary-pay/pkg/commons"
	"github.com/LerianStudio/beneficiary-pay/pkg/log"
	libZap "github.com/LerianStudio/beneficiary-pay/pkg/zap"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const ApplicationName = "beneficiary-pay"

const (
	LedgerBackendMemory = "memory"
	LedgerBackendRedis  = "redis"
	LedgerBackendSQLite = "sqlite"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the top level configuration struct for the entire application.
type Config struct {
	EnvName       string `env:"ENV_NAME" yaml:"envName"`
	LogLevel      string `env:"LOG_LEVEL" yaml:"logLevel"`
	ServerAddress string `env:"SERVER_ADDRESS" yaml:"serverAddress"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" yaml:"shutdownTimeout"`

	CustomerBaseURL       string        `env:"CUSTOMER_BASE_URL" yaml:"customerBaseURL"`
	BeneficiaryBaseURL    string        `env:"BENEFICIARY_BASE_URL" yaml:"beneficiaryBaseURL"`
	PaymentsBaseURL       string        `env:"PAYMENTS_BASE_URL" yaml:"paymentsBaseURL"`
	DownstreamTimeout     time.Duration `env:"DOWNSTREAM_TIMEOUT" yaml:"downstreamTimeout"`
	CircuitBreakerEnabled bool          `env:"CIRCUIT_BREAKER_ENABLED" yaml:"circuitBreakerEnabled"`

	ServiceAuthStaticToken  string   `env:"SERVICE_AUTH_STATIC_TOKEN" yaml:"serviceAuthStaticToken"`
	ServiceAuthClientID     string   `env:"SERVICE_AUTH_CLIENT_ID" yaml:"serviceAuthClientID"`
	ServiceAuthClientSecret string   `env:"SERVICE_AUTH_CLIENT_SECRET" yaml:"serviceAuthClientSecret"`
	ServiceAuthTokenURL     string   `env:"SERVICE_AUTH_TOKEN_URL" yaml:"serviceAuthTokenURL"`
	ServiceAuthScopes       []string `env:"SERVICE_AUTH_SCOPES" yaml:"serviceAuthScopes"`

	LedgerBackend       string        `env:"LEDGER_BACKEND" yaml:"ledgerBackend"`
	LedgerTTL           time.Duration `env:"LEDGER_TTL" yaml:"ledgerTTL"`
	LedgerSweepInterval time.Duration `env:"LEDGER_SWEEP_INTERVAL" yaml:"ledgerSweepInterval"`
	LedgerClaimTimeout  time.Duration `env:"LEDGER_CLAIM_TIMEOUT" yaml:"ledgerClaimTimeout"`
	LedgerLockExpiry    time.Duration `env:"LEDGER_LOCK_EXPIRY" yaml:"ledgerLockExpiry"`
	LedgerSQLitePath    string        `env:"LEDGER_SQLITE_PATH" yaml:"ledgerSQLitePath"`

	RedisAddress   []string `env:"REDIS_ADDRESS" yaml:"redisAddress"`
	RedisPassword  string   `env:"REDIS_PASSWORD" yaml:"redisPassword"`
	RedisDB        int      `env:"REDIS_DB" yaml:"redisDB"`
	RedisKeyPrefix string   `env:"REDIS_KEY_PREFIX" yaml:"redisKeyPrefix"`
}

func DefaultConfig() Config {
	return Config{
		EnvName:             string(libZap.EnvironmentDevelopment),
		LogLevel:            "info",
		ServerAddress:       ":8080",
		ShutdownTimeout:     30 * time.Second,
		CustomerBaseURL:     "http://localhost:8081",
		BeneficiaryBaseURL:  "http://localhost:8082",
		PaymentsBaseURL:     "http://localhost:8083",
		DownstreamTimeout:   10 * time.Second,
		LedgerBackend:       LedgerBackendMemory,
		LedgerTTL:           24 * time.Hour,
		LedgerSweepInterval: time.Minute,
		LedgerClaimTimeout:  15 * time.Second,
		LedgerLockExpiry:    60 * time.Second,
		LedgerSQLitePath:    ApplicationName + ".db",
		RedisKeyPrefix:      ApplicationName,
	}
}

// LoadConfig layers defaults, the optional YAML file at path, an optional
// .env file in the working directory and finally the environment.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)

		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if err := commons.SetConfigFromEnvVars(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	var errs []error

	switch libZap.Environment(c.EnvName) {
	case libZap.EnvironmentProduction, libZap.EnvironmentStaging, libZap.EnvironmentUAT,
		libZap.EnvironmentDevelopment, libZap.EnvironmentLocal:
	default:
		errs = append(errs, fmt.Errorf("ENV_NAME %q is not a known environment", c.EnvName))
	}

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}

	if strings.TrimSpace(c.ServerAddress) == "" {
		errs = append(errs, errors.New("SERVER_ADDRESS is required"))
	}

	for name, raw := range map[string]string{
		"CUSTOMER_BASE_URL":    c.CustomerBaseURL,
		"BENEFICIARY_BASE_URL": c.BeneficiaryBaseURL,
		"PAYMENTS_BASE_URL":    c.PaymentsBaseURL,
	} {
		if err := validateBaseURL(raw); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	for name, d := range map[string]time.Duration{
		"SHUTDOWN_TIMEOUT":      c.ShutdownTimeout,
		"DOWNSTREAM_TIMEOUT":    c.DownstreamTimeout,
		"LEDGER_TTL":            c.LedgerTTL,
		"LEDGER_SWEEP_INTERVAL": c.LedgerSweepInterval,
		"LEDGER_CLAIM_TIMEOUT":  c.LedgerClaimTimeout,
		"LEDGER_LOCK_EXPIRY":    c.LedgerLockExpiry,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative", name))
		}
	}

	switch c.LedgerBackend {
	case LedgerBackendMemory:
	case LedgerBackendSQLite:
		if strings.TrimSpace(c.LedgerSQLitePath) == "" {
			errs = append(errs, errors.New("LEDGER_SQLITE_PATH is required when LEDGER_BACKEND is sqlite"))
		}
	case LedgerBackendRedis:
		if len(c.RedisAddress) == 0 {
			errs = append(errs, errors.New("REDIS_ADDRESS is required when LEDGER_BACKEND is redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("LEDGER_BACKEND %q must be memory, redis or sqlite", c.LedgerBackend))
	}

	if c.usesOAuth2() {
		if c.ServiceAuthClientSecret == "" || c.ServiceAuthTokenURL == "" {
			errs = append(errs, errors.New("SERVICE_AUTH_CLIENT_SECRET and SERVICE_AUTH_TOKEN_URL are required with SERVICE_AUTH_CLIENT_ID"))
		} else if err := validateBaseURL(c.ServiceAuthTokenURL); err != nil {
			errs = append(errs, fmt.Errorf("SERVICE_AUTH_TOKEN_URL: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}

	return nil
}

func (c *Config) usesOAuth2() bool {
	return strings.TrimSpace(c.ServiceAuthClientID) != ""
}

func validateBaseURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return err
	}

	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%q is not an absolute http(s) URL", raw)
	}

	return nil
}
