package database

import (
	"database/sql"
	"fmt"
	"time"

	"travel-wallet-go/internal/money"

	"github.com/shopspring/decimal"
)

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

func parseMoney(amount, currency string) (money.Money, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return money.Money{}, fmt.Errorf("failed to parse amount '%s': %w", amount, err)
	}
	m, err := money.New(d, money.Currency(currency))
	if err != nil {
		return money.Money{}, fmt.Errorf("invalid stored amount: %w", err)
	}
	return m, nil
}
