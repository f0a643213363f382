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
	"fmt"
	"strings"
	"sync"
)

// Currency is an ISO-4217 style code such as "IRR" or "USD".
type Currency string

const (
	IRR Currency = "IRR"
	USD Currency = "USD"
	EUR Currency = "EUR"
	AED Currency = "AED"
	TRY Currency = "TRY"
)

// CurrencySpec describes how amounts in a currency are represented.
type CurrencySpec struct {
	Code      Currency
	Precision int32
	Enabled   bool
}

var (
	registryMu sync.RWMutex
	registry   = defaultCurrencies()
)

func defaultCurrencies() map[Currency]CurrencySpec {
	return map[Currency]CurrencySpec{
		IRR: {Code: IRR, Precision: 0, Enabled: true},
		USD: {Code: USD, Precision: 2, Enabled: true},
		EUR: {Code: EUR, Precision: 2, Enabled: true},
		AED: {Code: AED, Precision: 2, Enabled: true},
		TRY: {Code: TRY, Precision: 2, Enabled: true},
	}
}

// Configure replaces or adds currency specs. Currencies absent from specs keep
// their built-in definition.
func Configure(specs []CurrencySpec) error {
	registryMu.Lock()
	defer registryMu.Unlock()

	for _, s := range specs {
		code := Currency(strings.ToUpper(strings.TrimSpace(string(s.Code))))
		if code == "" {
			return fmt.Errorf("currency code is required")
		}
		if s.Precision < 0 || s.Precision > 8 {
			return fmt.Errorf("currency %s: precision %d out of range", code, s.Precision)
		}
		s.Code = code
		registry[code] = s
	}
	return nil
}

// ResetCurrencies restores the built-in currency table.
func ResetCurrencies() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = defaultCurrencies()
}

// ParseCurrency normalizes a code and checks that it is known and enabled.
func ParseCurrency(code string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(code)))
	spec, ok := Lookup(c)
	if !ok || !spec.Enabled {
		return "", fmt.Errorf("unsupported currency %q", code)
	}
	return c, nil
}

func Lookup(c Currency) (CurrencySpec, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	spec, ok := registry[c]
	return spec, ok
}

// Precision returns the number of decimal places allowed for c. Unknown
// currencies default to 2.
func (c Currency) Precision() int32 {
	if spec, ok := Lookup(c); ok {
		return spec.Precision
	}
	return 2
}

func (c Currency) String() string {
	return string(c)
}

// Currencies lists the enabled currency codes.
func Currencies() []Currency {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]Currency, 0, len(registry))
	for code, spec := range registry {
		if spec.Enabled {
			out = append(out, code)
		}
	}
	return out
}
