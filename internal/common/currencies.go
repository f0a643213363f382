package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"travel-wallet-go/internal/ledger"
	"travel-wallet-go/internal/money"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"
)

const (
	defaultMinDueDays = 1
	defaultMaxDueDays = 90
	defaultWarnDays   = 3
)

type CurrencyConfig struct {
	Code           string `yaml:"code"`
	Precision      int32  `yaml:"precision"`
	Enabled        bool   `yaml:"enabled"`
	MaxCreditLimit string `yaml:"max_credit_limit"`
}

type CreditConfig struct {
	MinDueDays int `yaml:"min_due_days"`
	MaxDueDays int `yaml:"max_due_days"`
	WarnDays   int `yaml:"warn_days"`
}

type CurrenciesFile struct {
	Currencies []CurrencyConfig `yaml:"currencies"`
	Credit     CreditConfig     `yaml:"credit"`
}

// CurrencySettings is the validated content of the currency file.
type CurrencySettings struct {
	Specs          []money.CurrencySpec
	CreditPolicies map[money.Currency]ledger.CreditPolicy
	MinDueDays     int
	MaxDueDays     int
	WarnWindow     time.Duration

	maxLimits map[money.Currency]decimal.Decimal
}

func DefaultCurrencySettings() *CurrencySettings {
	return &CurrencySettings{
		CreditPolicies: map[money.Currency]ledger.CreditPolicy{},
		MinDueDays:     defaultMinDueDays,
		MaxDueDays:     defaultMaxDueDays,
		WarnWindow:     defaultWarnDays * 24 * time.Hour,
		maxLimits:      map[money.Currency]decimal.Decimal{},
	}
}

// LoadCurrencyConfig reads and validates a currencies YAML file. It does not
// touch the process-wide currency table; call Apply for that.
func LoadCurrencyConfig(currenciesFile string) (*CurrencySettings, error) {
	path := currenciesFile
	if !filepath.IsAbs(path) {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		path = filepath.Join(wd, currenciesFile)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", currenciesFile, err)
	}
	return ParseCurrencyConfig(data)
}

func ParseCurrencyConfig(data []byte) (*CurrencySettings, error) {
	var file CurrenciesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("unable to parse currency config: %w", err)
	}

	settings := DefaultCurrencySettings()
	if file.Credit.MinDueDays > 0 {
		settings.MinDueDays = file.Credit.MinDueDays
	}
	if file.Credit.MaxDueDays > 0 {
		settings.MaxDueDays = file.Credit.MaxDueDays
	}
	if file.Credit.WarnDays > 0 {
		settings.WarnWindow = time.Duration(file.Credit.WarnDays) * 24 * time.Hour
	}
	if settings.MinDueDays > settings.MaxDueDays {
		return nil, fmt.Errorf("credit min_due_days %d exceeds max_due_days %d", settings.MinDueDays, settings.MaxDueDays)
	}

	seen := make(map[string]bool)
	for i, c := range file.Currencies {
		code := strings.ToUpper(strings.TrimSpace(c.Code))
		if code == "" {
			return nil, fmt.Errorf("currency at index %d missing code", i)
		}
		if seen[code] {
			return nil, fmt.Errorf("currency %s listed twice", code)
		}
		seen[code] = true
		if c.Precision < 0 || c.Precision > 8 {
			return nil, fmt.Errorf("currency %s: precision %d out of range", code, c.Precision)
		}
		settings.Specs = append(settings.Specs, money.CurrencySpec{
			Code:      money.Currency(code),
			Precision: c.Precision,
			Enabled:   c.Enabled,
		})
	}

	// limits are checked against precision after the specs are known
	for _, c := range file.Currencies {
		if c.MaxCreditLimit == "" {
			continue
		}
		code := strings.ToUpper(strings.TrimSpace(c.Code))
		limit, err := decimal.NewFromString(c.MaxCreditLimit)
		if err != nil {
			return nil, fmt.Errorf("currency %s: invalid max_credit_limit %q: %w", code, c.MaxCreditLimit, err)
		}
		if !limit.IsPositive() {
			return nil, fmt.Errorf("currency %s: max_credit_limit must be positive", code)
		}
		if !limit.Equal(limit.Truncate(c.Precision)) {
			return nil, fmt.Errorf("currency %s: max_credit_limit %s exceeds precision %d", code, limit, c.Precision)
		}
		settings.maxLimits[money.Currency(code)] = limit
	}

	return settings, nil
}

// Apply installs the currency specs and resolves credit limits into money.
func (s *CurrencySettings) Apply() error {
	if err := money.Configure(s.Specs); err != nil {
		return err
	}
	for c, limit := range s.maxLimits {
		maxLimit, err := money.New(limit, c)
		if err != nil {
			return fmt.Errorf("currency %s: %w", c, err)
		}
		s.CreditPolicies[c] = ledger.CreditPolicy{
			MaxLimit:   maxLimit,
			MinDueDays: s.MinDueDays,
			MaxDueDays: s.MaxDueDays,
		}
	}
	return nil
}
