/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package money

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrNegativeAmount    = errors.New("amount must not be negative")
	ErrPrecision         = errors.New("amount has more decimal places than the currency allows")
	ErrCurrencyMismatch  = errors.New("currency mismatch")
	ErrUnknownCurrency   = errors.New("unknown currency")
	ErrInsufficientMoney = errors.New("result would be negative")
)

// Money is an immutable amount in a single currency.
type Money struct {
	amount   decimal.Decimal
	currency Currency
}

// New validates amount against the currency's precision rules.
func New(amount decimal.Decimal, currency Currency) (Money, error) {
	if _, ok := Lookup(currency); !ok {
		return Money{}, fmt.Errorf("%w: %s", ErrUnknownCurrency, currency)
	}
	if amount.IsNegative() {
		return Money{}, fmt.Errorf("%w: %s", ErrNegativeAmount, amount.String())
	}
	if !amount.Equal(amount.Truncate(currency.Precision())) {
		return Money{}, fmt.Errorf("%w: %s %s (precision %d)", ErrPrecision, amount.String(), currency, currency.Precision())
	}
	return Money{amount: amount, currency: currency}, nil
}

// MustNew is New for constants and tests.
func MustNew(amount string, currency Currency) Money {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		panic(err)
	}
	m, err := New(d, currency)
	if err != nil {
		panic(err)
	}
	return m
}

// Parse builds Money from a decimal string.
func Parse(amount string, currency Currency) (Money, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	return New(d, currency)
}

// Zero returns a zero amount in currency.
func Zero(currency Currency) Money {
	return Money{amount: decimal.Zero, currency: currency}
}

func (m Money) Amount() decimal.Decimal { return m.amount }
func (m Money) Currency() Currency      { return m.currency }
func (m Money) IsZero() bool            { return m.amount.IsZero() }
func (m Money) IsPositive() bool        { return m.amount.IsPositive() }

func (m Money) Add(o Money) (Money, error) {
	if m.currency != o.currency {
		return Money{}, fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.currency, o.currency)
	}
	return Money{amount: m.amount.Add(o.amount), currency: m.currency}, nil
}

// Sub returns m - o and refuses to produce a negative amount.
func (m Money) Sub(o Money) (Money, error) {
	if m.currency != o.currency {
		return Money{}, fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.currency, o.currency)
	}
	res := m.amount.Sub(o.amount)
	if res.IsNegative() {
		return Money{}, fmt.Errorf("%w: %s - %s", ErrInsufficientMoney, m.amount.String(), o.amount.String())
	}
	return Money{amount: res, currency: m.currency}, nil
}

func (m Money) GreaterThanOrEqual(o Money) bool {
	return m.currency == o.currency && m.amount.GreaterThanOrEqual(o.amount)
}

func (m Money) LessThan(o Money) bool {
	return m.currency == o.currency && m.amount.LessThan(o.amount)
}

func (m Money) Equal(o Money) bool {
	return m.currency == o.currency && m.amount.Equal(o.amount)
}

// StringFixed renders the amount with the currency's precision.
func (m Money) StringFixed() string {
	return m.amount.StringFixed(m.currency.Precision())
}

func (m Money) String() string {
	return m.StringFixed() + " " + string(m.currency)
}
