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

package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"travel-wallet-go/internal/ledger"
	"travel-wallet-go/internal/store"

	"go.uber.org/zap"
)

// Handler delivers one event. Delivery is at-least-once, so handlers must
// tolerate seeing the same event again.
type Handler interface {
	Handle(ctx context.Context, e ledger.Event) error
}

type HandlerFunc func(ctx context.Context, e ledger.Event) error

func (f HandlerFunc) Handle(ctx context.Context, e ledger.Event) error { return f(ctx, e) }

type Options struct {
	MaxAttempts int
	BatchSize   int
	Lease       time.Duration
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	Clock       func() time.Time
}

func (o *Options) setDefaults() {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 8
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 100
	}
	if o.Lease <= 0 {
		o.Lease = time.Minute
	}
	if o.BaseBackoff <= 0 {
		o.BaseBackoff = 5 * time.Second
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 30 * time.Minute
	}
	if o.Clock == nil {
		o.Clock = func() time.Time { return time.Now().UTC() }
	}
}

// Dispatcher moves events from the outbox to their handlers.
type Dispatcher struct {
	repo   store.Repository
	opts   Options
	mu     sync.RWMutex
	routes map[ledger.EventType][]Handler
	all    []Handler
}

func NewDispatcher(repo store.Repository, opts Options) *Dispatcher {
	opts.setDefaults()
	return &Dispatcher{
		repo:   repo,
		opts:   opts,
		routes: make(map[ledger.EventType][]Handler),
	}
}

// Subscribe routes events of the given types to h. With no types, h receives
// every event.
func (d *Dispatcher) Subscribe(h Handler, types ...ledger.EventType) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(types) == 0 {
		d.all = append(d.all, h)
		return
	}
	for _, t := range types {
		d.routes[t] = append(d.routes[t], h)
	}
}

func (d *Dispatcher) handlersFor(t ledger.EventType) []Handler {
	d.mu.RLock()
	defer d.mu.RUnlock()
	hs := make([]Handler, 0, len(d.all)+len(d.routes[t]))
	hs = append(hs, d.all...)
	return append(hs, d.routes[t]...)
}

// Dispatch delivers the given events, or every due event when ids is empty.
// It returns the number delivered successfully.
func (d *Dispatcher) Dispatch(ctx context.Context, ids []string) (int, error) {
	now := d.opts.Clock()
	events, err := d.repo.ClaimEvents(ctx, ids, now, d.opts.Lease, d.opts.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("unable to claim outbox events: %w", err)
	}

	delivered := 0
	for _, e := range events {
		if ctx.Err() != nil {
			return delivered, ctx.Err()
		}
		if d.deliver(ctx, e) {
			delivered++
		}
	}
	return delivered, nil
}

// RunOnce drains one batch of due events.
func (d *Dispatcher) RunOnce(ctx context.Context) (int, error) {
	return d.Dispatch(ctx, nil)
}

func (d *Dispatcher) deliver(ctx context.Context, e store.OutboxEvent) bool {
	var errs []error
	for _, h := range d.handlersFor(e.Event.Type) {
		if err := h.Handle(ctx, e.Event); err != nil {
			errs = append(errs, err)
		}
	}

	now := d.opts.Clock()
	if len(errs) == 0 {
		if err := d.repo.MarkEventDispatched(ctx, e.Id, now); err != nil {
			zap.L().Error("Unable to mark event dispatched",
				zap.String("event_id", e.Id),
				zap.Error(err))
		}
		return true
	}

	attempts := e.Attempts + 1
	dead := attempts >= d.opts.MaxAttempts
	handlerErr := errors.Join(errs...)
	next := now.Add(d.backoff(attempts))

	fields := []zap.Field{
		zap.String("event_id", e.Id),
		zap.String("event_type", string(e.Event.Type)),
		zap.String("aggregate_id", e.Event.AggregateId),
		zap.Int("attempts", attempts),
		zap.Error(handlerErr),
	}
	if dead {
		zap.L().Error("Event delivery abandoned, manual follow-up required", fields...)
	} else {
		zap.L().Warn("Event delivery failed, will retry", append(fields, zap.Time("next_attempt_at", next))...)
	}

	if err := d.repo.MarkEventFailed(ctx, e.Id, attempts, next, truncate(handlerErr.Error(), 500), dead); err != nil {
		zap.L().Error("Unable to record event failure",
			zap.String("event_id", e.Id),
			zap.Error(err))
	}
	return false
}

func (d *Dispatcher) backoff(attempts int) time.Duration {
	b := d.opts.BaseBackoff
	for i := 1; i < attempts; i++ {
		b *= 2
		if b >= d.opts.MaxBackoff {
			return d.opts.MaxBackoff
		}
	}
	return b
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
