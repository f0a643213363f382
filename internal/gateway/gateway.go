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

package gateway

import (
	"context"
	"errors"

	"travel-wallet-go/internal/money"

	"github.com/shopspring/decimal"
)

var (
	ErrUnknownGateway  = errors.New("unknown payment gateway")
	ErrPaymentNotFound = errors.New("payment not found at gateway")
)

type PaymentRequest struct {
	Amount      money.Money
	OrderRef    string
	Description string
	CallbackURL string
}

type PaymentSession struct {
	Gateway    string
	Authority  string
	PaymentUrl string
}

type Verification struct {
	Verified     bool
	ReferenceId  string
	ActualAmount decimal.Decimal
	Message      string
}

type Status string

const (
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
	StatusFailed  Status = "failed"
	StatusExpired Status = "expired"
)

// Terminal reports whether the gateway will not change its answer anymore.
func (s Status) Terminal() bool {
	return s == StatusPaid || s == StatusFailed || s == StatusExpired
}

type PaymentStatus struct {
	Status Status
	Amount decimal.Decimal
}

// Client is a hosted payment page provider.
type Client interface {
	Name() string
	CreatePayment(ctx context.Context, req PaymentRequest) (*PaymentSession, error)
	VerifyPayment(ctx context.Context, authority string, expected money.Money) (*Verification, error)
	GetStatus(ctx context.Context, authority string) (*PaymentStatus, error)
}
