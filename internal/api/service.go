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

package api

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"travel-wallet-go/internal/gateway"
	"travel-wallet-go/internal/ledger"
	"travel-wallet-go/internal/lock"
	"travel-wallet-go/internal/money"
	"travel-wallet-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Gateways is the payment gateway contract the service depends on.
// *gateway.Registry implements it.
type Gateways interface {
	Default() string
	CreatePayment(ctx context.Context, name string, req gateway.PaymentRequest) (*gateway.PaymentSession, error)
	VerifyPayment(ctx context.Context, name, authority string, expected money.Money) (*gateway.Verification, error)
	GetStatus(ctx context.Context, name, authority string) (*gateway.PaymentStatus, error)
}

// EventDispatcher delivers committed outbox events. *outbox.Dispatcher implements it.
type EventDispatcher interface {
	Dispatch(ctx context.Context, ids []string) (int, error)
}

type Options struct {
	Clock           func() time.Time
	RefundWindow    time.Duration
	AmountTolerance decimal.Decimal
	CallbackURL     string
	CreditPolicies  map[money.Currency]ledger.CreditPolicy
	MinDueDays      int
	MaxDueDays      int
	MaxRetries      int
}

func (o *Options) setDefaults() {
	if o.Clock == nil {
		o.Clock = func() time.Time { return time.Now().UTC() }
	}
	if o.RefundWindow <= 0 {
		o.RefundWindow = ledger.RefundWindow
	}
	if o.AmountTolerance.IsZero() {
		o.AmountTolerance = decimal.RequireFromString("0.01")
	}
	if o.MinDueDays <= 0 {
		o.MinDueDays = 1
	}
	if o.MaxDueDays <= 0 {
		o.MaxDueDays = 90
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
}

// WalletService is the wallet transaction engine
type WalletService struct {
	store    store.LedgerStore
	locker   lock.Locker
	gateways Gateways
	events   EventDispatcher
	opts     Options
}

func NewWalletService(st store.LedgerStore, locker lock.Locker, gateways Gateways, events EventDispatcher, opts Options) *WalletService {
	opts.setDefaults()
	if locker == nil {
		locker = lock.NewMemoryLocker()
	}
	return &WalletService{
		store:    st,
		locker:   locker,
		gateways: gateways,
		events:   events,
		opts:     opts,
	}
}

func (s *WalletService) now() time.Time {
	return s.opts.Clock().UTC()
}

func (s *WalletService) HealthCheck(ctx context.Context) error {
	if _, err := s.store.CountEvents(ctx, store.OutboxPending); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// eventSource is implemented by every entity that records domain events.
type eventSource interface {
	PullEvents() []ledger.Event
}

// unitOfWork is the view of one database transaction given to service code.
type unitOfWork struct {
	repo   store.Repository
	events []ledger.Event
}

func (u *unitOfWork) collect(sources ...eventSource) {
	for _, src := range sources {
		u.events = append(u.events, src.PullEvents()...)
	}
}

func (u *unitOfWork) raise(events ...ledger.Event) {
	u.events = append(u.events, events...)
}

// execute runs fn in one database transaction and appends the collected
// events to the outbox before commit. Optimistic conflicts are retried; fn
// must therefore load everything it mutates from uow.repo.
func (s *WalletService) execute(ctx context.Context, op string, fn func(ctx context.Context, uow *unitOfWork) error) ([]string, error) {
	var ids []string
	for attempt := 1; ; attempt++ {
		err := s.store.ExecuteInTransaction(ctx, func(ctx context.Context, repo store.Repository) error {
			uow := &unitOfWork{repo: repo}
			if err := fn(ctx, uow); err != nil {
				return err
			}
			ids = nil
			if len(uow.events) == 0 {
				return nil
			}
			var err error
			ids, err = repo.AppendEvents(ctx, uow.events)
			return err
		})
		if err == nil {
			return ids, nil
		}
		if errors.Is(err, store.ErrConcurrentModification) && attempt < s.opts.MaxRetries {
			zap.L().Warn("Concurrent modification, retrying",
				zap.String("operation", op),
				zap.Int("attempt", attempt))
			continue
		}
		return nil, s.translate(err)
	}
}

// withAccountLock serializes balance mutation of one currency account.
func (s *WalletService) withAccountLock(ctx context.Context, walletId string, currency money.Currency, fn func() error) error {
	return s.withLock(ctx, lock.AccountKey(walletId, string(currency)), fn)
}

// withCreditLock serializes credit line mutation of one wallet.
func (s *WalletService) withCreditLock(ctx context.Context, walletId string, fn func() error) error {
	return s.withLock(ctx, lock.AccountKey(walletId, "credit"), fn)
}

func (s *WalletService) withLock(ctx context.Context, key string, fn func() error) error {
	release, err := s.locker.Lock(ctx, key)
	if err != nil {
		return fmt.Errorf("unable to acquire lock %s: %w", key, err)
	}
	defer release()
	return fn()
}

// publish hands committed events to the dispatcher. Failures stay in the
// outbox for the background loop.
func (s *WalletService) publish(ctx context.Context, ids []string) {
	if s.events == nil || len(ids) == 0 {
		return
	}
	if _, err := s.events.Dispatch(context.WithoutCancel(ctx), ids); err != nil {
		zap.L().Warn("Inline event dispatch failed, outbox will retry",
			zap.Int("events", len(ids)),
			zap.Error(err))
	}
}

// translate maps store sentinels onto the domain taxonomy.
func (s *WalletService) translate(err error) error {
	switch {
	case err == nil:
		return nil
	case ledger.Code(err) != "":
		return err
	case errors.Is(err, store.ErrConcurrentModification):
		return fmt.Errorf("%w: concurrent update, please retry", ledger.ErrInvalidOperation)
	case errors.Is(err, store.ErrDuplicate):
		return fmt.Errorf("%w: %v", ledger.ErrDuplicateTransaction, err)
	default:
		return err
	}
}

func notFound(err error, domain error) error {
	if errors.Is(err, store.ErrNotFound) {
		return domain
	}
	return err
}

func parseMoney(amount decimal.Decimal, code string) (money.Money, error) {
	cur, err := money.ParseCurrency(code)
	if err != nil {
		return money.Money{}, fmt.Errorf("%w: %v", ledger.ErrInvalidCurrencyAccount, err)
	}
	if !amount.IsPositive() {
		return money.Money{}, fmt.Errorf("%w: amount must be greater than zero", ledger.ErrInvalidAmount)
	}
	m, err := money.New(amount, cur)
	if err != nil {
		return money.Money{}, fmt.Errorf("%w: %v", ledger.ErrInvalidAmount, err)
	}
	return m, nil
}

func (s *WalletService) withinTolerance(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(s.opts.AmountTolerance)
}

func (s *WalletService) callbackURL(gatewayName string) string {
	if s.opts.CallbackURL == "" {
		return ""
	}
	u, err := url.Parse(s.opts.CallbackURL)
	if err != nil {
		return s.opts.CallbackURL
	}
	q := u.Query()
	q.Set("gateway", gatewayName)
	u.RawQuery = q.Encode()
	return u.String()
}
