package api

import (
	"context"
	"errors"

	"travel-wallet-go/internal/ledger"
	"travel-wallet-go/internal/models"
	"travel-wallet-go/internal/money"
	"travel-wallet-go/internal/store"

	"go.uber.org/zap"
)

const snapshotPageSize = 200

// SnapshotReport summarizes one daily snapshot run.
type SnapshotReport struct {
	Accounts   int
	Created    int
	Skipped    int
	Failed     int
	Mismatches []models.ReconciliationResult
}

// ReconcileAccount compares the stored balance with the completed,
// non-credit transaction history of the account.
func (s *WalletService) ReconcileAccount(ctx context.Context, accountId string) (*models.ReconciliationResult, error) {
	account, err := s.store.GetCurrencyAccountById(ctx, accountId)
	if err != nil {
		return nil, notFound(err, ledger.ErrInvalidCurrencyAccount)
	}
	totals, err := s.store.GetAccountTotals(ctx, accountId)
	if err != nil {
		return nil, err
	}
	return reconciliation(account, totals), nil
}

// ReconcileWallet reconciles every currency account of the user's wallet.
func (s *WalletService) ReconcileWallet(ctx context.Context, userId string) ([]models.ReconciliationResult, error) {
	w, err := s.loadWallet(ctx, s.store, userId)
	if err != nil {
		return nil, err
	}
	results := make([]models.ReconciliationResult, 0, len(w.Accounts))
	for _, a := range w.Accounts {
		totals, err := s.store.GetAccountTotals(ctx, a.Id)
		if err != nil {
			return nil, err
		}
		results = append(results, *reconciliation(a, totals))
	}
	return results, nil
}

func reconciliation(a *ledger.CurrencyAccount, totals store.AccountTotals) *models.ReconciliationResult {
	expected := totals.Expected()
	return &models.ReconciliationResult{
		AccountId: a.Id,
		WalletId:  a.WalletId,
		Currency:  string(a.Currency),
		Balance:   a.Balance.Amount(),
		Expected:  expected,
		Matches:   a.Balance.Amount().Equal(expected),
	}
}

// TakeSnapshot records a manual balance snapshot of one currency account.
func (s *WalletService) TakeSnapshot(ctx context.Context, userId, currency string) (*ledger.TransactionSnapshot, error) {
	cur, err := money.ParseCurrency(currency)
	if err != nil {
		return nil, errors.Join(ledger.ErrInvalidCurrencyAccount, err)
	}
	w, err := s.loadWallet(ctx, s.store, userId)
	if err != nil {
		return nil, err
	}
	account := w.Account(cur)
	if account == nil {
		return nil, ledger.ErrInvalidCurrencyAccount
	}

	var snapshot *ledger.TransactionSnapshot
	err = s.withAccountLock(ctx, w.Id, cur, func() error {
		_, err := s.execute(ctx, "manual_snapshot", func(ctx context.Context, uow *unitOfWork) error {
			var err error
			snapshot, err = s.snapshot(ctx, uow.repo, account.Id, ledger.SnapshotManual)
			return err
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (s *WalletService) snapshot(ctx context.Context, repo store.Repository, accountId string, typ ledger.SnapshotType) (*ledger.TransactionSnapshot, error) {
	account, err := repo.GetCurrencyAccountById(ctx, accountId)
	if err != nil {
		return nil, notFound(err, ledger.ErrInvalidCurrencyAccount)
	}
	totals, err := repo.GetAccountTotals(ctx, accountId)
	if err != nil {
		return nil, err
	}
	snap := ledger.NewSnapshot(account, typ, totals.LastTransactionId, s.now())
	if err := repo.InsertSnapshot(ctx, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// TakeDailySnapshots writes one daily snapshot per active account and audits
// the balance invariant on the way. Reruns on the same day are no-ops.
func (s *WalletService) TakeDailySnapshots(ctx context.Context) (SnapshotReport, error) {
	var (
		report SnapshotReport
		after  string
	)
	for {
		accounts, err := s.store.ListActiveCurrencyAccounts(ctx, after, snapshotPageSize)
		if err != nil {
			return report, err
		}
		for _, a := range accounts {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			report.Accounts++
			s.dailySnapshot(ctx, a, &report)
		}
		if len(accounts) < snapshotPageSize {
			break
		}
		after = accounts[len(accounts)-1].Id
	}

	zap.L().Info("Daily snapshots taken",
		zap.Int("accounts", report.Accounts),
		zap.Int("created", report.Created),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
		zap.Int("mismatches", len(report.Mismatches)))
	return report, nil
}

func (s *WalletService) dailySnapshot(ctx context.Context, a *ledger.CurrencyAccount, report *SnapshotReport) {
	var result *models.ReconciliationResult
	err := s.withAccountLock(ctx, a.WalletId, a.Currency, func() error {
		_, err := s.execute(ctx, "daily_snapshot", func(ctx context.Context, uow *unitOfWork) error {
			account, err := uow.repo.GetCurrencyAccountById(ctx, a.Id)
			if err != nil {
				return err
			}
			totals, err := uow.repo.GetAccountTotals(ctx, a.Id)
			if err != nil {
				return err
			}
			result = reconciliation(account, totals)
			snap := ledger.NewSnapshot(account, ledger.SnapshotDaily, totals.LastTransactionId, s.now())
			return uow.repo.InsertSnapshot(ctx, snap)
		})
		return err
	})

	if result != nil && !result.Matches {
		report.Mismatches = append(report.Mismatches, *result)
		zap.L().Error("Balance invariant violated",
			zap.String("account_id", result.AccountId),
			zap.String("wallet_id", result.WalletId),
			zap.String("balance", result.Balance.String()),
			zap.String("expected", result.Expected.String()))
	}
	switch {
	case err == nil:
		report.Created++
	case errors.Is(err, ledger.ErrDuplicateTransaction):
		report.Skipped++
	default:
		report.Failed++
		zap.L().Error("Daily snapshot failed", zap.String("account_id", a.Id), zap.Error(err))
	}
}
