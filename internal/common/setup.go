package common

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strings"

	"travel-wallet-go/internal/api"
	"travel-wallet-go/internal/clients"
	"travel-wallet-go/internal/database"
	"travel-wallet-go/internal/formance"
	"travel-wallet-go/internal/gateway"
	"travel-wallet-go/internal/ledger"
	"travel-wallet-go/internal/listener"
	"travel-wallet-go/internal/lock"
	"travel-wallet-go/internal/models"
	"travel-wallet-go/internal/outbox"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	lockPrefix      = "travel-wallet:lock:"
	streamMaxLength = 100000
)

// init loads environment variables from .env file if it exists
func init() {
	// Environment variables can also be set via shell export, docker, etc.
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
	}
}

type Services struct {
	DbService  *database.Service
	Wallet     *api.WalletService
	Dispatcher *outbox.Dispatcher
	Gateways   *gateway.Registry
	Users      clients.UserDirectory
	Formance   *formance.Service
	Currencies *CurrencySettings

	cfg   *models.Config
	redis *redis.Client
}

// InitializeLogger builds the global zap logger. LOG_LEVEL=debug switches to
// the development config.
func InitializeLogger() (*zap.Logger, func()) {
	var (
		logger *zap.Logger
		err    error
	)
	if strings.EqualFold(os.Getenv("LOG_LEVEL"), "debug") {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

// InitializeServices wires the wallet engine and everything it depends on.
func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	currencies, err := loadCurrencies(cfg.Wallet.CurrenciesFile)
	if err != nil {
		return nil, err
	}

	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	s := &Services{DbService: dbService, Currencies: currencies, cfg: cfg}
	if err := s.wire(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Services) wire(ctx context.Context) error {
	cfg := s.cfg

	var locker lock.Locker = lock.NewMemoryLocker()
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return fmt.Errorf("unable to reach redis at %s: %w", cfg.Redis.Addr, err)
		}
		s.redis = rdb
		locker = lock.Chain{locker, lock.NewRedisLocker(rdb, lockPrefix, cfg.Redis.LockTTL)}
		zap.L().Info("Using redis account locks", zap.String("addr", cfg.Redis.Addr))
	}

	registry, err := buildGateways(cfg.Gateway)
	if err != nil {
		return err
	}
	s.Gateways = registry

	s.Dispatcher = outbox.NewDispatcher(s.DbService, outbox.Options{
		MaxAttempts: cfg.Listener.OutboxMaxAttempts,
		BatchSize:   cfg.Listener.OutboxBatchSize,
	})
	s.Dispatcher.Subscribe(outbox.LogPublisher{})

	if s.redis != nil && cfg.Redis.EventStream != "" {
		s.Dispatcher.Subscribe(outbox.NewStreamPublisher(s.redis, cfg.Redis.EventStream, streamMaxLength))
	}

	if cfg.Formance.Enabled {
		mirror, err := formance.NewService(ctx, cfg.Formance)
		if err != nil {
			return err
		}
		s.Formance = mirror
		s.Dispatcher.Subscribe(mirror, ledger.EventTransactionCompleted)
	}

	if cfg.Orders.BaseURL != "" {
		orders, err := clients.NewOrderClient(cfg.Orders.BaseURL, cfg.Orders.Token, cfg.Orders.Timeout)
		if err != nil {
			return err
		}
		s.Dispatcher.Subscribe(outbox.NewOrderCompletionHandler(orders), ledger.EventOrderCompletionRequested)
	} else {
		zap.L().Warn("ORDERS_BASE_URL not set, order completion requests are only logged")
	}

	if cfg.Users.BaseURL != "" {
		users, err := clients.NewUserClient(cfg.Users.BaseURL, cfg.Users.Token, cfg.Users.Timeout)
		if err != nil {
			return err
		}
		s.Users = users
	}

	s.Wallet = api.NewWalletService(s.DbService, locker, registry, s.Dispatcher, api.Options{
		RefundWindow:    cfg.Wallet.RefundWindow,
		AmountTolerance: cfg.Wallet.AmountTolerance,
		CallbackURL:     cfg.Gateway.CallbackURL,
		CreditPolicies:  s.Currencies.CreditPolicies,
		MinDueDays:      s.Currencies.MinDueDays,
		MaxDueDays:      s.Currencies.MaxDueDays,
	})

	zap.L().Info("Wallet service initialized",
		zap.Strings("gateways", registry.Names()),
		zap.String("default_gateway", registry.Default()),
		zap.Bool("formance_mirror", s.Formance != nil),
		zap.Bool("redis", s.redis != nil))
	return nil
}

func buildGateways(cfg models.GatewayConfig) (*gateway.Registry, error) {
	registry := gateway.NewRegistry(cfg.Default, cfg.Timeout)

	if cfg.SandboxEnabled {
		registry.Register(gateway.NewSandbox("", cfg.SandboxAutoPay))
	}
	for _, g := range cfg.HTTPGateways {
		client, err := gateway.NewHTTPGateway(g.Name, g.BaseURL, g.MerchantId, g.APIKey, cfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("gateway %s: %w", g.Name, err)
		}
		registry.Register(client)
	}
	if cfg.StripeSecretKey != "" {
		client, err := gateway.NewStripeCheckout(cfg.StripeSecretKey, cfg.StripeAPIURL, cfg.StripeSuccessURL, cfg.StripeCancelURL)
		if err != nil {
			return nil, fmt.Errorf("stripe gateway: %w", err)
		}
		registry.Register(client)
	}

	if len(registry.Names()) == 0 {
		return nil, errors.New("no payment gateway configured")
	}
	if _, err := registry.Get(registry.Default()); err != nil {
		return nil, fmt.Errorf("default gateway: %w", err)
	}
	return registry, nil
}

// loadCurrencies applies the currency file, falling back to built-ins when it
// does not exist.
func loadCurrencies(path string) (*CurrencySettings, error) {
	settings, err := LoadCurrencyConfig(path)
	if errors.Is(err, fs.ErrNotExist) {
		zap.L().Warn("Currency file not found, using built-in currencies", zap.String("file", path))
		return DefaultCurrencySettings(), nil
	}
	if err != nil {
		return nil, err
	}
	if err := settings.Apply(); err != nil {
		return nil, err
	}
	return settings, nil
}

// InitializeDatabaseOnly opens the store without gateways or event handlers.
// Useful for read-only operations like balance reports.
func InitializeDatabaseOnly(ctx context.Context, cfg *models.Config) (*database.Service, error) {
	if _, err := loadCurrencies(cfg.Wallet.CurrenciesFile); err != nil {
		return nil, err
	}
	return database.NewService(ctx, cfg.Database)
}

// JobRunner builds the background jobs from the listener configuration.
func (s *Services) JobRunner() *listener.JobRunner {
	lc := s.cfg.Listener
	warn := lc.CreditWarnWindow
	if s.Currencies.WarnWindow > 0 {
		warn = s.Currencies.WarnWindow
	}
	return listener.NewJobRunner(listener.JobRunnerConfig{
		Wallet:                 s.Wallet,
		Outbox:                 s.Dispatcher,
		Users:                  s.Users,
		PendingPaymentTTL:      s.cfg.Wallet.PendingPaymentTTL,
		PaymentPollInterval:    lc.PaymentPollInterval,
		PaymentRecheckAfter:    lc.PaymentRecheckAfter,
		SnapshotInterval:       lc.SnapshotInterval,
		CreditSweepInterval:    lc.CreditSweepInterval,
		CreditWarnWindow:       warn,
		WalletRecoveryInterval: lc.WalletRecoveryInterval,
		OutboxInterval:         lc.OutboxInterval,
		CleanupInterval:        lc.CleanupInterval,
	})
}

func (s *Services) Close() {
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			zap.L().Warn("Failed to close redis client", zap.Error(err))
		}
	}
	if s.DbService != nil {
		s.DbService.Close()
	}
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
