package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"travel-wallet-go/internal/money"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCurrencies = `
currencies:
  - code: irr
    precision: 0
    enabled: true
    max_credit_limit: "500000000"
  - code: USD
    precision: 2
    enabled: true
    max_credit_limit: "25000.00"
  - code: GBP
    precision: 2
    enabled: true
  - code: TRY
    precision: 2
    enabled: false
credit:
  min_due_days: 7
  max_due_days: 60
  warn_days: 5
`

func TestParseAndApplyCurrencyConfig(t *testing.T) {
	t.Cleanup(money.ResetCurrencies)

	settings, err := ParseCurrencyConfig([]byte(sampleCurrencies))
	require.NoError(t, err)
	assert.Len(t, settings.Specs, 4)
	assert.Equal(t, 7, settings.MinDueDays)
	assert.Equal(t, 60, settings.MaxDueDays)
	assert.Equal(t, 5*24*time.Hour, settings.WarnWindow)

	require.NoError(t, settings.Apply())

	_, err = money.ParseCurrency("GBP")
	assert.NoError(t, err)
	_, err = money.ParseCurrency("TRY")
	assert.Error(t, err)

	policy, ok := settings.CreditPolicies[money.IRR]
	require.True(t, ok)
	assert.Equal(t, "500000000", policy.MaxLimit.Amount().String())
	assert.Equal(t, 7, policy.MinDueDays)

	_, ok = settings.CreditPolicies["GBP"]
	assert.False(t, ok)
}

func TestParseCurrencyConfigRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing code", "currencies:\n  - precision: 2\n"},
		{"duplicate", "currencies:\n  - code: USD\n  - code: usd\n"},
		{"precision", "currencies:\n  - code: USD\n    precision: 12\n"},
		{"limit not a number", "currencies:\n  - code: USD\n    precision: 2\n    max_credit_limit: lots\n"},
		{"limit too precise", "currencies:\n  - code: IRR\n    precision: 0\n    max_credit_limit: \"10.5\"\n"},
		{"due window inverted", "credit:\n  min_due_days: 30\n  max_due_days: 10\n"},
		{"not yaml", "currencies: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCurrencyConfig([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadCurrencyConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "currencies.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleCurrencies), 0o600))

	settings, err := LoadCurrencyConfig(path)
	require.NoError(t, err)
	assert.Len(t, settings.Specs, 4)

	_, err = LoadCurrencyConfig(filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
