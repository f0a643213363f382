package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Config represents the application configuration
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Gateway  GatewayConfig
	Orders   ServiceEndpoint
	Users    ServiceEndpoint
	Redis    RedisConfig
	Formance FormanceConfig
	Wallet   WalletConfig
	Listener ListenerConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver          string // sqlite3 or pgx
	Path            string // sqlite file, or :memory:
	DSN             string // postgres connection string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

type ServerConfig struct {
	Addr            string
	JWTSecret       string
	JWTIssuer       string
	RunJobs         bool
	ShutdownTimeout time.Duration
}

// HTTPGatewayConfig describes one JSON payment provider.
type HTTPGatewayConfig struct {
	Name       string
	BaseURL    string
	MerchantId string
	APIKey     string
}

type GatewayConfig struct {
	Default          string
	Timeout          time.Duration
	CallbackURL      string
	SandboxEnabled   bool
	SandboxAutoPay   bool
	HTTPGateways     []HTTPGatewayConfig
	StripeSecretKey  string
	StripeAPIURL     string
	StripeSuccessURL string
	StripeCancelURL  string
}

// ServiceEndpoint is an internal collaborator reached over HTTP.
type ServiceEndpoint struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

type RedisConfig struct {
	Enabled     bool
	Addr        string
	Password    string
	DB          int
	LockTTL     time.Duration
	EventStream string
}

type FormanceConfig struct {
	Enabled      bool
	StackURL     string
	ClientID     string
	ClientSecret string
	Ledger       string
}

type WalletConfig struct {
	CurrenciesFile    string
	RefundWindow      time.Duration
	AmountTolerance   decimal.Decimal
	PendingPaymentTTL time.Duration
}

// ListenerConfig holds background job settings
type ListenerConfig struct {
	PaymentPollInterval    time.Duration
	PaymentRecheckAfter    time.Duration
	SnapshotInterval       time.Duration
	CreditSweepInterval    time.Duration
	CreditWarnWindow       time.Duration
	WalletRecoveryInterval time.Duration
	OutboxInterval         time.Duration
	OutboxBatchSize        int
	OutboxMaxAttempts      int
	CleanupInterval        time.Duration
}
