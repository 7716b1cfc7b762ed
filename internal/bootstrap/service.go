package bootstrap

import (
	"context"
	"fmt"

	"github.com/LerianStudio/beneficiary-pay/internal/adapters/auth"
	"github.com/LerianStudio/beneficiary-pay/internal/adapters/beneficiary"
	"github.com/LerianStudio/beneficiary-pay/internal/adapters/customer"
	"github.com/LerianStudio/beneficiary-pay/internal/adapters/downstream"
	"github.com/LerianStudio/beneficiary-pay/internal/adapters/http/in"
	"github.com/LerianStudio/beneficiary-pay/internal/adapters/payment"
	"github.com/LerianStudio/beneficiary-pay/internal/beneficiarypay"
	"github.com/LerianStudio/beneficiary-pay/internal/ledger"
	"github.com/LerianStudio/beneficiary-pay/pkg/circuitbreaker"
	"github.com/LerianStudio/beneficiary-pay/pkg/commons"
	"github.com/LerianStudio/beneficiary-pay/pkg/log"
	libHTTP "github.com/LerianStudio/beneficiary-pay/pkg/net/http"
	"github.com/LerianStudio/beneficiary-pay/pkg/opentelemetry"
	libRedis "github.com/LerianStudio/beneficiary-pay/pkg/redis"
	"github.com/LerianStudio/beneficiary-pay/pkg/server"
	libZap "github.com/LerianStudio/beneficiary-pay/pkg/zap"
	"github.com/gofiber/fiber/v2"
)

var downstreamServices = []string{customer.ServiceName, beneficiary.ServiceName, payment.ServiceName}

// Service is the application glue where we put all top level components to be used.
type Service struct {
	*server.ServerManager
	App    *fiber.App
	Logger log.Logger
}

var _ commons.App = (*Service)(nil)

// Run starts the HTTP server and blocks until shutdown.
func (s *Service) Run(_ *commons.Launcher) error {
	return s.StartWithGracefulShutdownWithError()
}

// InitServers builds every component from cfg.
func InitServers(ctx context.Context, cfg *Config) (*Service, error) {
	logger, err := libZap.New(libZap.Config{
		Environment: libZap.Environment(cfg.EnvName),
		Level:       cfg.LogLevel,
		ServiceName: ApplicationName,
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	return initWithLogger(ctx, cfg, logger)
}

func initWithLogger(ctx context.Context, cfg *Config, logger log.Logger) (*Service, error) {
	ctx = commons.ContextWithLogger(ctx, logger)

	opentelemetry.SetupPropagator()

	credentials, err := newCredentialProvider(cfg)
	if err != nil {
		return nil, err
	}

	var (
		breakers circuitbreaker.Manager
		health   []libHTTP.DependencyCheck
	)

	if cfg.CircuitBreakerEnabled {
		breakers = circuitbreaker.NewManager(logger)
		breakers.RegisterStateChangeListener(&breakerLogger{logger: logger})

		for _, svc := range downstreamServices {
			breakers.GetOrCreate(svc, circuitbreaker.HTTPServiceConfig())
			health = append(health, libHTTP.DependencyCheck{Name: svc, CircuitBreaker: breakers, ServiceName: svc})
		}
	}

	gw := downstream.NewGateway(downstream.Config{
		Timeout:     cfg.DownstreamTimeout,
		Credentials: credentials,
		Breakers:    breakers,
	})

	sm := server.NewServerManager(logger)
	if cfg.ShutdownTimeout > 0 {
		sm.WithShutdownTimeout(cfg.ShutdownTimeout)
	}

	l, ledgerHealth, err := newLedger(ctx, cfg, logger, sm)
	if err != nil {
		return nil, err
	}

	if ledgerHealth != nil {
		health = append(health, *ledgerHealth)
	}

	orchestrator := beneficiarypay.NewOrchestrator(
		l,
		customer.NewClient(gw, cfg.CustomerBaseURL),
		beneficiary.NewClient(gw, cfg.BeneficiaryBaseURL),
		payment.NewClient(gw, cfg.PaymentsBaseURL),
	)

	app := in.NewRouter(logger, &in.PaymentHandler{Payer: orchestrator}, health...)
	sm.WithHTTPServer(app, cfg.ServerAddress)

	logger.Log(ctx, log.LevelInfo, "service initialized",
		log.String("ledger_backend", cfg.LedgerBackend),
		log.Bool("circuit_breaker", cfg.CircuitBreakerEnabled),
		log.Bool("oauth2", cfg.usesOAuth2()))

	return &Service{ServerManager: sm, App: app, Logger: logger}, nil
}

func newCredentialProvider(cfg *Config) (downstream.CredentialProvider, error) {
	if !cfg.usesOAuth2() {
		return auth.Static(cfg.ServiceAuthStaticToken), nil
	}

	provider, err := auth.NewOAuth2Provider(auth.OAuth2Config{
		ClientID:     cfg.ServiceAuthClientID,
		ClientSecret: cfg.ServiceAuthClientSecret,
		TokenURL:     cfg.ServiceAuthTokenURL,
		Scopes:       cfg.ServiceAuthScopes,
		Timeout:      cfg.DownstreamTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("init oauth2 credentials: %w", err)
	}

	return provider, nil
}

// newLedger builds the configured backend and registers its shutdown hooks.
func newLedger(ctx context.Context, cfg *Config, logger log.Logger, sm *server.ServerManager) (ledger.Ledger, *libHTTP.DependencyCheck, error) {
	opts := ledger.Options{
		TTL:           cfg.LedgerTTL,
		SweepInterval: cfg.LedgerSweepInterval,
		ClaimTimeout:  cfg.LedgerClaimTimeout,
	}

	switch cfg.LedgerBackend {
	case LedgerBackendRedis:
		return newRedisLedger(ctx, cfg, opts, logger, sm, newRedisLocks)
	case LedgerBackendSQLite:
		db, err := ledger.OpenSQLiteLedger(ctx, cfg.LedgerSQLitePath, opts)
		if err != nil {
			return nil, nil, fmt.Errorf("init sqlite ledger: %w", err)
		}

		db.Start(ctx)
		sm.WithCloser("idempotency ledger", db.Close)

		return db, &libHTTP.DependencyCheck{Name: "sqlite", HealthCheck: db.Ping}, nil
	default:
		mem := ledger.NewMemoryLedger(opts)
		mem.Start(ctx)
		sm.WithCloser("idempotency ledger", mem.Close)

		return mem, nil, nil
	}
}

type redisLockFactory func(client *libRedis.Client) (libRedis.LockManager, error)

func newRedisLocks(client *libRedis.Client) (libRedis.LockManager, error) {
	locks, err := libRedis.NewRedisLockManager(client)
	if err != nil {
		return nil, err
	}

	return locks, nil
}

// newRedisLedger connects to redis and builds the ledger on top of it. The
// client is closed if anything after the connection fails.
func newRedisLedger(ctx context.Context, cfg *Config, opts ledger.Options, logger log.Logger, sm *server.ServerManager, newLocks redisLockFactory) (ledger.Ledger, *libHTTP.DependencyCheck, error) {
	client, err := libRedis.New(ctx, libRedis.Config{
		Addresses: cfg.RedisAddress,
		Password:  cfg.RedisPassword,
		DB:        cfg.RedisDB,
		Logger:    logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("init redis: %w", err)
	}

	locks, err := newLocks(client)
	if err != nil {
		_ = client.Close()

		return nil, nil, fmt.Errorf("init redis lock manager: %w", err)
	}

	l, err := ledger.NewRedisLedger(client, locks, ledger.RedisOptions{
		Options:    opts,
		KeyPrefix:  cfg.RedisKeyPrefix,
		LockExpiry: cfg.LedgerLockExpiry,
	})
	if err != nil {
		_ = client.Close()

		return nil, nil, fmt.Errorf("init redis ledger: %w", err)
	}

	sm.WithCloser("redis", func(context.Context) error { return client.Close() })

	return l, &libHTTP.DependencyCheck{Name: "redis", HealthCheck: client.Ping}, nil
}

type breakerLogger struct {
	logger log.Logger
}

func (b *breakerLogger) OnStateChange(serviceName string, from, to circuitbreaker.State) {
	level := log.LevelInfo
	if to == circuitbreaker.StateOpen {
		level = log.LevelWarn
	}

	b.logger.Log(context.Background(), level, "circuit breaker state changed",
		log.String("service", serviceName), log.String("from", string(from)), log.String("to", string(to)))
}
