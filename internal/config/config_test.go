package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
	assert.Equal(t, "sandbox", cfg.Gateway.Default)
	assert.True(t, cfg.Gateway.SandboxEnabled)
	assert.Empty(t, cfg.Gateway.HTTPGateways)
	assert.Equal(t, 30*24*time.Hour, cfg.Wallet.RefundWindow)
	assert.True(t, decimal.RequireFromString("0.01").Equal(cfg.Wallet.AmountTolerance))
	assert.Equal(t, 8, cfg.Listener.OutboxMaxAttempts)
	assert.False(t, cfg.Redis.Enabled)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "pgx")
	t.Setenv("DATABASE_DSN", "postgres://wallet@localhost/wallet")
	t.Setenv("WALLET_AMOUNT_TOLERANCE", "0.5")
	t.Setenv("LISTENER_SNAPSHOT_INTERVAL", "24h")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("GATEWAY_HTTP_PROVIDERS", "zarinpal, pay-ir")
	t.Setenv("GATEWAY_ZARINPAL_BASE_URL", "https://zarinpal.example")
	t.Setenv("GATEWAY_ZARINPAL_MERCHANT_ID", "m-1")
	t.Setenv("GATEWAY_PAY_IR_BASE_URL", "https://pay.example")
	t.Setenv("STRIPE_API_URL", "http://localhost:12111")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "pgx", cfg.Database.Driver)
	assert.Equal(t, "postgres://wallet@localhost/wallet", cfg.Database.DSN)
	assert.True(t, decimal.RequireFromString("0.5").Equal(cfg.Wallet.AmountTolerance))
	assert.Equal(t, 24*time.Hour, cfg.Listener.SnapshotInterval)
	assert.True(t, cfg.Redis.Enabled)
	require.Len(t, cfg.Gateway.HTTPGateways, 2)
	assert.Equal(t, "zarinpal", cfg.Gateway.HTTPGateways[0].Name)
	assert.Equal(t, "m-1", cfg.Gateway.HTTPGateways[0].MerchantId)
	assert.Equal(t, "pay-ir", cfg.Gateway.HTTPGateways[1].Name)
	assert.Equal(t, "https://pay.example", cfg.Gateway.HTTPGateways[1].BaseURL)
	assert.Equal(t, "http://localhost:12111", cfg.Gateway.StripeAPIURL)
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"duration", "GATEWAY_TIMEOUT", "ten seconds"},
		{"decimal", "WALLET_AMOUNT_TOLERANCE", "abc"},
		{"negative tolerance", "WALLET_AMOUNT_TOLERANCE", "-1"},
		{"gateway without url", "GATEWAY_HTTP_PROVIDERS", "ghost"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
