package api

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"travel-wallet-go/internal/ledger"
	"travel-wallet-go/internal/models"
	"travel-wallet-go/internal/money"
	"travel-wallet-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const creditSweepBatch = 1000

// SweepReport counts what one credit sweep changed.
type SweepReport struct {
	Checked int
	Overdue int
	Warned  int
	Failed  int
}

func (s *WalletService) creditPolicy(c money.Currency) ledger.CreditPolicy {
	if p, ok := s.opts.CreditPolicies[c]; ok {
		return p
	}
	return ledger.CreditPolicy{MinDueDays: s.opts.MinDueDays, MaxDueDays: s.opts.MaxDueDays}
}

// AssignCredit opens a B2B credit line on the user's wallet.
func (s *WalletService) AssignCredit(ctx context.Context, userId string, limit decimal.Decimal, currency string, dueDate time.Time) (*models.CreditView, error) {
	amount, err := parseMoney(limit, currency)
	if errors.Is(err, ledger.ErrInvalidAmount) {
		return nil, fmt.Errorf("%w: %v", ledger.ErrInvalidCreditAmount, err)
	}
	if err != nil {
		return nil, err
	}
	w, err := s.activeWallet(ctx, userId)
	if err != nil {
		return nil, err
	}

	var (
		credit *ledger.Credit
		ids    []string
	)
	err = s.withCreditLock(ctx, w.Id, func() error {
		ids, err = s.execute(ctx, "assign_credit", func(ctx context.Context, uow *unitOfWork) error {
			current, err := uow.repo.GetWalletById(ctx, w.Id)
			if err != nil {
				return notFound(err, ledger.ErrWalletNotFound)
			}
			credit, err = current.AssignCredit(amount, dueDate, s.creditPolicy(amount.Currency()), s.now())
			if err != nil {
				return err
			}
			if err := uow.repo.InsertCredit(ctx, credit); err != nil {
				if errors.Is(err, store.ErrDuplicate) {
					return ledger.ErrDuplicateCredit
				}
				return err
			}
			uow.collect(credit)
			return nil
		})
		return err
	})
	if err != nil {
		zap.L().Warn("Credit assignment rejected",
			zap.String("user_id", userId),
			zap.Error(err))
		return nil, err
	}
	s.publish(ctx, ids)

	zap.L().Info("Credit assigned",
		zap.String("wallet_id", w.Id),
		zap.String("credit_id", credit.Id),
		zap.String("limit", amount.String()),
		zap.Time("due_date", credit.DueDate))
	v := creditView(credit)
	return &v, nil
}

// SettleCredit closes an active or overdue credit after the business paid it.
func (s *WalletService) SettleCredit(ctx context.Context, userId, creditId, reference string) (*models.CreditView, error) {
	if strings.TrimSpace(reference) == "" {
		return nil, fmt.Errorf("%w: settlement reference is required", ledger.ErrInvalidOperation)
	}
	w, err := s.loadWallet(ctx, s.store, userId)
	if err != nil {
		return nil, err
	}

	var (
		credit *ledger.Credit
		ids    []string
	)
	err = s.withCreditLock(ctx, w.Id, func() error {
		ids, err = s.execute(ctx, "settle_credit", func(ctx context.Context, uow *unitOfWork) error {
			credit, err = uow.repo.GetCreditById(ctx, creditId)
			if err != nil {
				return notFound(err, ledger.ErrCreditNotFound)
			}
			if credit.WalletId != w.Id {
				return ledger.ErrCreditNotFound
			}
			if err := credit.Settle(reference, s.now()); err != nil {
				return err
			}
			if err := uow.repo.UpdateCredit(ctx, credit); err != nil {
				return err
			}
			uow.collect(credit)
			return nil
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, ids)

	zap.L().Info("Credit settled",
		zap.String("credit_id", creditId),
		zap.String("reference", reference))
	v := creditView(credit)
	return &v, nil
}

// creditPurchase funds an order from the wallet's active credit line. No
// gateway is involved and the account balance does not move.
func (s *WalletService) creditPurchase(ctx context.Context, w *ledger.Wallet, total money.Money, req models.PurchaseRequest) (*models.PurchaseResult, error) {
	var (
		purchase *ledger.Transaction
		balance  money.Money
		ids      []string
	)
	err := s.withCreditLock(ctx, w.Id, func() error {
		var err error
		ids, err = s.execute(ctx, "credit_purchase", func(ctx context.Context, uow *unitOfWork) error {
			now := s.now()
			current, err := uow.repo.GetWalletById(ctx, w.Id)
			if err != nil {
				return notFound(err, ledger.ErrWalletNotFound)
			}
			credit := current.ActiveCredit()
			if credit == nil {
				return fmt.Errorf("%w: no active credit", ledger.ErrCreditNotFound)
			}
			if err := credit.Use(total, now); err != nil {
				return err
			}

			account := current.Account(total.Currency())
			if account == nil {
				if account, err = s.getOrCreateAccount(ctx, uow, w.Id, total.Currency()); err != nil {
					return err
				}
			}
			purchase, err = ledger.NewCreditPurchase(ledger.TransactionParams{
				WalletId:          w.Id,
				CurrencyAccountId: account.Id,
				UserId:            w.UserId,
				Amount:            total,
				Description:       req.Description,
				OrderContext:      req.OrderId,
				Now:               now,
			}, credit.DueDate)
			if err != nil {
				return err
			}
			if err := purchase.MarkAsCompleted(now); err != nil {
				return err
			}
			if err := uow.repo.InsertTransaction(ctx, purchase); err != nil {
				return err
			}
			if err := uow.repo.UpdateCredit(ctx, credit); err != nil {
				return err
			}
			uow.collect(purchase, credit)
			uow.raise(ledger.OrderCompletionRequested(req.OrderId, purchase.Id, now))
			balance = account.Balance
			return nil
		})
		return err
	})
	if err != nil {
		zap.L().Warn("Credit purchase rejected",
			zap.String("order_id", req.OrderId),
			zap.Error(err))
		return nil, err
	}
	s.publish(ctx, ids)

	zap.L().Info("Purchase paid on credit",
		zap.String("order_id", req.OrderId),
		zap.String("transaction_id", purchase.Id),
		zap.String("amount", total.String()))
	return &models.PurchaseResult{
		PurchaseType:          models.PurchaseCredit,
		Currency:              string(total.Currency()),
		TotalAmount:           total.Amount(),
		WalletPortion:         decimal.Zero,
		RequiredPayment:       decimal.Zero,
		WalletBalance:         balance.Amount(),
		PurchaseTransactionId: purchase.Id,
	}, nil
}

// SweepCredits flags overdue credits and warns once about credits falling due
// within warnWindow. Each credit is its own unit of work.
func (s *WalletService) SweepCredits(ctx context.Context, warnWindow time.Duration) (SweepReport, error) {
	var report SweepReport
	credits, err := s.store.ListCreditsByStatus(ctx, ledger.CreditActive, creditSweepBatch)
	if err != nil {
		return report, err
	}
	for _, c := range credits {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		report.Checked++
		overdue, warned, err := s.sweepCredit(ctx, c.WalletId, c.Id, warnWindow)
		if err != nil {
			report.Failed++
			zap.L().Error("Credit sweep failed",
				zap.String("credit_id", c.Id),
				zap.Error(err))
			continue
		}
		if overdue {
			report.Overdue++
		}
		if warned {
			report.Warned++
		}
	}
	return report, nil
}

func (s *WalletService) sweepCredit(ctx context.Context, walletId, creditId string, warnWindow time.Duration) (overdue, warned bool, err error) {
	var ids []string
	err = s.withCreditLock(ctx, walletId, func() error {
		ids, err = s.execute(ctx, "sweep_credit", func(ctx context.Context, uow *unitOfWork) error {
			overdue, warned = false, false
			c, err := uow.repo.GetCreditById(ctx, creditId)
			if err != nil {
				return notFound(err, ledger.ErrCreditNotFound)
			}
			now := s.now()
			if c.MarkOverdue(now) {
				overdue = true
				zap.L().Warn("Credit overdue",
					zap.String("credit_id", c.Id),
					zap.String("wallet_id", c.WalletId),
					zap.String("used_amount", c.UsedAmount.String()))
			} else if c.WarnDueSoon(warnWindow, now) {
				warned = true
				zap.L().Warn("Credit due soon",
					zap.String("credit_id", c.Id),
					zap.String("wallet_id", c.WalletId),
					zap.Time("due_date", c.DueDate))
			}
			if !overdue && !warned {
				return nil
			}
			if err := uow.repo.UpdateCredit(ctx, c); err != nil {
				return err
			}
			uow.collect(c)
			return nil
		})
		return err
	})
	if err != nil {
		return false, false, err
	}
	s.publish(ctx, ids)
	return overdue, warned, nil
}
