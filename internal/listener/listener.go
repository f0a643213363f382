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

package listener

import (
	"context"
	"sync"
	"time"

	"travel-wallet-go/internal/api"
	"travel-wallet-go/internal/clients"
	"travel-wallet-go/internal/ledger"

	"go.uber.org/zap"
)

// WalletJobs is the part of the wallet service the background jobs drive.
// *api.WalletService implements it.
type WalletJobs interface {
	ListStalePendingPayments(ctx context.Context, ttl time.Duration, limit int) ([]*ledger.Transaction, error)
	ReconcilePendingPayment(ctx context.Context, tx *ledger.Transaction) (api.ReconcileOutcome, error)
	TakeDailySnapshots(ctx context.Context) (api.SnapshotReport, error)
	SweepCredits(ctx context.Context, warnWindow time.Duration) (api.SweepReport, error)
	RecoverMissingWallets(ctx context.Context, directory clients.UserDirectory) (int, error)
}

// Outbox is the event dispatcher loop body. *outbox.Dispatcher implements it.
type Outbox interface {
	RunOnce(ctx context.Context) (int, error)
}

// JobRunnerConfig contains configuration for JobRunner
type JobRunnerConfig struct {
	Wallet WalletJobs
	Outbox Outbox
	Users  clients.UserDirectory

	PendingPaymentTTL      time.Duration
	PaymentPollInterval    time.Duration
	PaymentRecheckAfter    time.Duration
	PaymentBatchSize       int
	SnapshotInterval       time.Duration
	CreditSweepInterval    time.Duration
	CreditWarnWindow       time.Duration
	WalletRecoveryInterval time.Duration
	OutboxInterval         time.Duration
	CleanupInterval        time.Duration
}

// JobRunner runs the wallet's periodic jobs, each on its own ticker. A zero
// interval disables the job.
type JobRunner struct {
	cfg JobRunnerConfig

	// authorities checked recently by the payment reconciler
	checked map[string]time.Time
	mutex   sync.RWMutex
	now     func() time.Time

	stopChan chan struct{}
	doneChan chan struct{}
	wg       sync.WaitGroup
}

func NewJobRunner(cfg JobRunnerConfig) *JobRunner {
	if cfg.PendingPaymentTTL <= 0 {
		cfg.PendingPaymentTTL = 30 * time.Minute
	}
	if cfg.PaymentRecheckAfter <= 0 {
		cfg.PaymentRecheckAfter = 5 * time.Minute
	}
	if cfg.PaymentBatchSize <= 0 {
		cfg.PaymentBatchSize = 100
	}
	if cfg.CreditWarnWindow <= 0 {
		cfg.CreditWarnWindow = 72 * time.Hour
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 15 * time.Minute
	}
	return &JobRunner{
		cfg:      cfg,
		checked:  make(map[string]time.Time),
		now:      func() time.Time { return time.Now().UTC() },
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Start launches every enabled job and returns immediately.
func (r *JobRunner) Start(ctx context.Context) {
	zap.L().Info("Starting background jobs")

	r.spawn(ctx, "payment_reconciler", r.cfg.PaymentPollInterval, r.reconcilePayments)
	r.spawn(ctx, "daily_snapshots", r.cfg.SnapshotInterval, r.takeSnapshots)
	r.spawn(ctx, "credit_sweep", r.cfg.CreditSweepInterval, r.sweepCredits)
	if r.cfg.Users != nil {
		r.spawn(ctx, "wallet_recovery", r.cfg.WalletRecoveryInterval, r.recoverWallets)
	}
	if r.cfg.Outbox != nil {
		r.spawn(ctx, "outbox", r.cfg.OutboxInterval, r.dispatchOutbox)
	}
	r.spawn(ctx, "cleanup", r.cfg.CleanupInterval, func(context.Context) { r.cleanupChecked() })

	go func() {
		r.wg.Wait()
		close(r.doneChan)
	}()

	zap.L().Info("Background jobs started",
		zap.Duration("payment_poll_interval", r.cfg.PaymentPollInterval),
		zap.Duration("snapshot_interval", r.cfg.SnapshotInterval),
		zap.Duration("credit_sweep_interval", r.cfg.CreditSweepInterval),
		zap.Duration("wallet_recovery_interval", r.cfg.WalletRecoveryInterval),
		zap.Duration("outbox_interval", r.cfg.OutboxInterval))
}

// Stop signals every job and waits for in-flight runs to finish.
func (r *JobRunner) Stop() {
	zap.L().Info("Stopping background jobs")
	close(r.stopChan)
	<-r.doneChan
	zap.L().Info("Background jobs stopped")
}

// spawn runs job immediately and then on every tick until stopped.
func (r *JobRunner) spawn(ctx context.Context, name string, interval time.Duration, job func(context.Context)) {
	if interval <= 0 {
		zap.L().Debug("Job disabled", zap.String("job", name))
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		r.runJob(ctx, name, job)
		for {
			select {
			case <-ticker.C:
				r.runJob(ctx, name, job)
			case <-r.stopChan:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (r *JobRunner) runJob(ctx context.Context, name string, job func(context.Context)) {
	defer func() {
		if p := recover(); p != nil {
			zap.L().Error("Job panicked", zap.String("job", name), zap.Any("panic", p))
		}
	}()
	job(ctx)
}
