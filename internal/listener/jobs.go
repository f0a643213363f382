package listener

import (
	"context"

	"travel-wallet-go/internal/api"

	"go.uber.org/zap"
)

// reconcilePayments resolves pending gateway deposits whose callback never
// arrived. Authorities checked recently are skipped until PaymentRecheckAfter.
func (r *JobRunner) reconcilePayments(ctx context.Context) {
	stale, err := r.cfg.Wallet.ListStalePendingPayments(ctx, r.cfg.PendingPaymentTTL, r.cfg.PaymentBatchSize)
	if err != nil {
		zap.L().Error("Failed to list stale pending payments", zap.Error(err))
		return
	}

	var completed, failed, pending int
	for _, tx := range stale {
		if ctx.Err() != nil {
			return
		}
		if r.isRecentlyChecked(tx.Id) {
			continue
		}

		outcome, err := r.cfg.Wallet.ReconcilePendingPayment(ctx, tx)
		r.markChecked(tx.Id)
		if err != nil {
			zap.L().Warn("Failed to reconcile pending payment",
				zap.String("transaction_id", tx.Id),
				zap.String("authority", tx.PaymentReferenceId),
				zap.Error(err))
		}
		switch outcome {
		case api.OutcomeCompleted:
			completed++
		case api.OutcomeFailed:
			failed++
		default:
			pending++
		}
	}

	if completed+failed+pending > 0 {
		zap.L().Info("Pending payments reconciled",
			zap.Int("completed", completed),
			zap.Int("failed", failed),
			zap.Int("still_pending", pending))
	}
}

func (r *JobRunner) isRecentlyChecked(txId string) bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	at, ok := r.checked[txId]
	return ok && r.now().Sub(at) < r.cfg.PaymentRecheckAfter
}

func (r *JobRunner) markChecked(txId string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.checked[txId] = r.now()
}

// cleanupChecked removes entries that no longer suppress a recheck.
func (r *JobRunner) cleanupChecked() {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	cutoff := r.now().Add(-r.cfg.PaymentRecheckAfter)
	cleaned := 0
	for txId, at := range r.checked {
		if at.Before(cutoff) {
			delete(r.checked, txId)
			cleaned++
		}
	}

	if cleaned > 0 {
		zap.L().Debug("Cleaned up checked payments",
			zap.Int("cleaned", cleaned),
			zap.Int("remaining", len(r.checked)))
	}
}

func (r *JobRunner) takeSnapshots(ctx context.Context) {
	report, err := r.cfg.Wallet.TakeDailySnapshots(ctx)
	if err != nil {
		zap.L().Error("Daily snapshot run failed", zap.Error(err))
		return
	}
	if len(report.Mismatches) > 0 {
		zap.L().Error("Balance audit found mismatched accounts",
			zap.Int("mismatches", len(report.Mismatches)))
	}
}

func (r *JobRunner) sweepCredits(ctx context.Context) {
	report, err := r.cfg.Wallet.SweepCredits(ctx, r.cfg.CreditWarnWindow)
	if err != nil {
		zap.L().Error("Credit sweep failed", zap.Error(err))
		return
	}
	if report.Overdue+report.Warned+report.Failed > 0 {
		zap.L().Info("Credit sweep finished",
			zap.Int("checked", report.Checked),
			zap.Int("overdue", report.Overdue),
			zap.Int("warned", report.Warned),
			zap.Int("failed", report.Failed))
	}
}

func (r *JobRunner) recoverWallets(ctx context.Context) {
	created, err := r.cfg.Wallet.RecoverMissingWallets(ctx, r.cfg.Users)
	if err != nil {
		zap.L().Error("Wallet recovery failed", zap.Int("created", created), zap.Error(err))
		return
	}
	if created > 0 {
		zap.L().Info("Recovered missing wallets", zap.Int("created", created))
	}
}

// dispatchOutbox drains due events until nothing is left to deliver.
func (r *JobRunner) dispatchOutbox(ctx context.Context) {
	for ctx.Err() == nil {
		n, err := r.cfg.Outbox.RunOnce(ctx)
		if err != nil {
			zap.L().Error("Outbox dispatch failed", zap.Error(err))
			return
		}
		if n == 0 {
			return
		}
		zap.L().Debug("Outbox batch dispatched", zap.Int("events", n))
		select {
		case <-r.stopChan:
			return
		default:
		}
	}
}
