package api

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"travel-wallet-go/internal/gateway"
	"travel-wallet-go/internal/ledger"
	"travel-wallet-go/internal/models"
	"travel-wallet-go/internal/money"
	"travel-wallet-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const callbackStatusOK = "OK"

// ProcessPaymentCallback completes the pending deposit identified by the
// gateway authority exactly once. Replays of a successful callback return the
// same result without touching the balance.
func (s *WalletService) ProcessPaymentCallback(ctx context.Context, req models.CallbackRequest) (*models.CallbackResult, error) {
	authority := strings.TrimSpace(req.Authority)
	if authority == "" {
		return nil, fmt.Errorf("%w: missing authority", ledger.ErrPaymentNotFound)
	}

	tx, err := s.store.GetTransactionByPaymentReference(ctx, authority)
	if err != nil {
		return nil, notFound(err, ledger.ErrPaymentNotFound)
	}
	if tx.Type != ledger.TypeDeposit {
		return nil, fmt.Errorf("%w: authority %s is not a payment", ledger.ErrPaymentNotFound, authority)
	}

	l := zap.L().With(
		zap.String("authority", authority),
		zap.String("transaction_id", tx.Id),
		zap.String("gateway", tx.Gateway))

	switch tx.Status {
	case ledger.StatusCompleted:
		l.Info("Duplicate payment callback, returning stored result")
		return s.callbackResult(ctx, tx)
	case ledger.StatusFailed:
		return nil, fmt.Errorf("%w: transaction %s already failed", ledger.ErrPaymentVerificationFailed, tx.TransactionNumber)
	}

	if !strings.EqualFold(strings.TrimSpace(req.Status), callbackStatusOK) {
		l.Info("Payment cancelled or rejected by gateway", zap.String("status", req.Status))
		s.abandonDeposit(ctx, tx.Id, "gateway status "+req.Status)
		return nil, fmt.Errorf("%w: gateway reported status %q", ledger.ErrPaymentVerificationFailed, req.Status)
	}

	gatewayName := tx.Gateway
	if gatewayName == "" {
		gatewayName = req.Gateway
	}
	verification, err := s.gateways.VerifyPayment(ctx, gatewayName, authority, tx.Amount)
	if err != nil {
		// outcome unknown, leave pending for the reconciler
		l.Warn("Payment verification unavailable", zap.Error(err))
		return nil, ledger.ErrPaymentGateway
	}
	if !verification.Verified {
		l.Info("Payment not verified", zap.String("message", verification.Message))
		s.abandonDeposit(ctx, tx.Id, "verification failed: "+verification.Message)
		return nil, fmt.Errorf("%w: %s", ledger.ErrPaymentVerificationFailed, verification.Message)
	}

	if req.Amount != nil && !s.withinTolerance(*req.Amount, tx.Amount.Amount()) {
		l.Warn("Callback amount mismatch",
			zap.String("expected", tx.Amount.String()),
			zap.String("received", req.Amount.String()))
		s.abandonDeposit(ctx, tx.Id, "amount mismatch")
		return nil, fmt.Errorf("%w: expected %s, received %s", ledger.ErrAmountMismatch, tx.Amount.StringFixed(), req.Amount.String())
	}
	if !verification.ActualAmount.IsZero() && !s.withinTolerance(verification.ActualAmount, tx.Amount.Amount()) {
		l.Warn("Verified amount mismatch",
			zap.String("expected", tx.Amount.String()),
			zap.String("actual", verification.ActualAmount.String()))
		s.abandonDeposit(ctx, tx.Id, "amount mismatch")
		return nil, fmt.Errorf("%w: expected %s, paid %s", ledger.ErrAmountMismatch, tx.Amount.StringFixed(), verification.ActualAmount.String())
	}

	completed, account, err := s.completePayment(ctx, tx.Id, verification.ReferenceId)
	if err != nil {
		return nil, err
	}
	balance := account.Balance.Amount()
	l.Info("Payment completed",
		zap.String("reference_id", verification.ReferenceId),
		zap.String("new_balance", balance.String()))
	return &models.CallbackResult{
		Verified:      true,
		TransactionId: completed.Id,
		ReferenceId:   completed.GatewayReferenceId,
		Currency:      string(completed.Amount.Currency()),
		NewBalance:    &balance,
		Message:       "payment verified",
	}, nil
}

func (s *WalletService) callbackResult(ctx context.Context, tx *ledger.Transaction) (*models.CallbackResult, error) {
	account, err := s.store.GetCurrencyAccountById(ctx, tx.CurrencyAccountId)
	if err != nil {
		return nil, notFound(err, ledger.ErrInvalidCurrencyAccount)
	}
	balance := account.Balance.Amount()
	return &models.CallbackResult{
		Verified:      true,
		TransactionId: tx.Id,
		ReferenceId:   tx.GatewayReferenceId,
		Currency:      string(tx.Amount.Currency()),
		NewBalance:    &balance,
		Message:       "payment already processed",
	}, nil
}

// completePayment credits a verified deposit. A deposit that pays an order is
// immediately settled against it with a purchase of the same amount, and the
// order completion is requested through the outbox.
func (s *WalletService) completePayment(ctx context.Context, txId, referenceId string) (*ledger.Transaction, *ledger.CurrencyAccount, error) {
	head, err := s.store.GetTransactionById(ctx, txId)
	if err != nil {
		return nil, nil, notFound(err, ledger.ErrTransactionNotFound)
	}

	var (
		tx      *ledger.Transaction
		account *ledger.CurrencyAccount
		ids     []string
	)
	err = s.withAccountLock(ctx, head.WalletId, head.Amount.Currency(), func() error {
		ids, err = s.execute(ctx, "complete_payment", func(ctx context.Context, uow *unitOfWork) error {
			now := s.now()
			tx, err = uow.repo.GetTransactionById(ctx, txId)
			if err != nil {
				return notFound(err, ledger.ErrTransactionNotFound)
			}
			account, err = uow.repo.GetCurrencyAccountById(ctx, tx.CurrencyAccountId)
			if err != nil {
				return notFound(err, ledger.ErrInvalidCurrencyAccount)
			}
			switch tx.Status {
			case ledger.StatusCompleted:
				return nil
			case ledger.StatusFailed:
				zap.L().Error("Verified payment arrived for a failed transaction, manual follow-up required",
					zap.String("transaction_id", tx.Id),
					zap.String("authority", tx.PaymentReferenceId),
					zap.String("reference_id", referenceId))
				return fmt.Errorf("%w: transaction %s already failed", ledger.ErrPaymentVerificationFailed, tx.TransactionNumber)
			}

			if err := account.ProcessDeposit(tx, now); err != nil {
				return err
			}
			tx.GatewayReferenceId = referenceId
			if err := uow.repo.UpdateTransaction(ctx, tx, ledger.StatusPending); err != nil {
				return err
			}
			uow.collect(tx)

			if tx.OrderContext != "" {
				settlement, err := ledger.NewPurchase(ledger.TransactionParams{
					WalletId:          tx.WalletId,
					CurrencyAccountId: account.Id,
					UserId:            tx.UserId,
					Amount:            tx.Amount,
					Description:       fmt.Sprintf("Order %s (gateway payment %s)", tx.OrderContext, tx.TransactionNumber),
					OrderContext:      tx.OrderContext,
					Now:               now,
				})
				if err != nil {
					return err
				}
				settlement.RelatedTransactionId = tx.Id
				if err := account.ProcessPurchase(settlement, now); err != nil {
					return err
				}
				if err := uow.repo.InsertTransaction(ctx, settlement); err != nil {
					return err
				}
				uow.collect(settlement)
				uow.raise(ledger.OrderCompletionRequested(tx.OrderContext, settlement.Id, now))
			}
			return uow.repo.UpdateAccountBalance(ctx, account)
		})
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	s.publish(ctx, ids)
	return tx, account, nil
}

// failPendingDeposit marks a pending deposit Failed. When the deposit was the
// gateway portion of a mixed purchase, the wallet debit it was paired with is
// released by a refund in the same database transaction. Failing an already
// failed deposit is a no-op.
func (s *WalletService) failPendingDeposit(ctx context.Context, txId, reason string) (*ledger.Transaction, error) {
	head, err := s.store.GetTransactionById(ctx, txId)
	if err != nil {
		return nil, notFound(err, ledger.ErrTransactionNotFound)
	}

	var (
		tx  *ledger.Transaction
		ids []string
	)
	err = s.withAccountLock(ctx, head.WalletId, head.Amount.Currency(), func() error {
		ids, err = s.execute(ctx, "fail_payment", func(ctx context.Context, uow *unitOfWork) error {
			now := s.now()
			tx, err = uow.repo.GetTransactionById(ctx, txId)
			if err != nil {
				return notFound(err, ledger.ErrTransactionNotFound)
			}
			if tx.IsFailed() {
				return nil
			}
			if err := tx.MarkAsFailed(reason, now); err != nil {
				return err
			}
			if err := uow.repo.UpdateTransaction(ctx, tx, ledger.StatusPending); err != nil {
				return err
			}
			uow.collect(tx)

			if tx.RelatedTransactionId == "" {
				return nil
			}
			return s.releaseLinkedDebit(ctx, uow, tx, now)
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, ids)
	zap.L().Info("Pending payment failed",
		zap.String("transaction_id", txId),
		zap.String("reason", reason))
	return tx, nil
}

// releaseLinkedDebit refunds whatever is left of the purchase a failed
// deposit was paired with.
func (s *WalletService) releaseLinkedDebit(ctx context.Context, uow *unitOfWork, deposit *ledger.Transaction, now time.Time) error {
	original, err := uow.repo.GetTransactionById(ctx, deposit.RelatedTransactionId)
	if err != nil {
		return notFound(err, ledger.ErrTransactionNotFound)
	}
	if !original.IsCompleted() || original.Direction != ledger.DirectionOut {
		return nil
	}
	remaining, err := remainingRefundable(ctx, uow.repo, original)
	if err != nil {
		return err
	}
	if !remaining.IsPositive() {
		return nil
	}
	account, err := uow.repo.GetCurrencyAccountById(ctx, original.CurrencyAccountId)
	if err != nil {
		return notFound(err, ledger.ErrInvalidCurrencyAccount)
	}
	refund, err := ledger.NewRefund(ledger.TransactionParams{
		WalletId:          original.WalletId,
		CurrencyAccountId: account.Id,
		UserId:            original.UserId,
		Amount:            remaining,
		Description:       fmt.Sprintf("Release of %s after failed payment %s", original.TransactionNumber, deposit.TransactionNumber),
		OrderContext:      original.OrderContext,
		Now:               now,
	}, original)
	if err != nil {
		return err
	}
	if err := account.ProcessRefund(refund, now); err != nil {
		return err
	}
	if err := uow.repo.InsertTransaction(ctx, refund); err != nil {
		return err
	}
	if err := uow.repo.UpdateAccountBalance(ctx, account); err != nil {
		return err
	}
	uow.collect(refund)
	zap.L().Info("Wallet debit released",
		zap.String("purchase_id", original.Id),
		zap.String("refund_id", refund.Id),
		zap.String("amount", remaining.String()))
	return nil
}

// remainingRefundable is the original amount minus completed refunds linked to it.
func remainingRefundable(ctx context.Context, repo store.Repository, original *ledger.Transaction) (money.Money, error) {
	refunds, err := repo.ListRelatedRefunds(ctx, original.Id)
	if err != nil {
		return money.Money{}, err
	}
	refunded := decimal.Zero
	for _, r := range refunds {
		if r.IsCompleted() {
			refunded = refunded.Add(r.Amount.Amount())
		}
	}
	left := original.Amount.Amount().Sub(refunded)
	if !left.IsPositive() {
		return money.Zero(original.Amount.Currency()), nil
	}
	return money.New(left, original.Amount.Currency())
}

type ReconcileOutcome string

const (
	OutcomeCompleted ReconcileOutcome = "completed"
	OutcomeFailed    ReconcileOutcome = "failed"
	OutcomePending   ReconcileOutcome = "pending"
)

// ListStalePendingPayments returns pending gateway deposits older than ttl.
func (s *WalletService) ListStalePendingPayments(ctx context.Context, ttl time.Duration, limit int) ([]*ledger.Transaction, error) {
	return s.store.ListStalePendingDeposits(ctx, s.now().Add(-ttl), limit)
}

// ReconcilePendingPayment resolves a stale pending deposit from the gateway's
// view of the payment.
func (s *WalletService) ReconcilePendingPayment(ctx context.Context, tx *ledger.Transaction) (ReconcileOutcome, error) {
	if !tx.IsPending() {
		return ReconcileOutcome(tx.Status), nil
	}
	if tx.PaymentReferenceId == "" {
		if _, err := s.failPendingDeposit(ctx, tx.Id, "payment session was never opened"); err != nil {
			return OutcomePending, err
		}
		return OutcomeFailed, nil
	}

	status, err := s.gateways.GetStatus(ctx, tx.Gateway, tx.PaymentReferenceId)
	if err != nil {
		if errors.Is(err, gateway.ErrPaymentNotFound) {
			if _, err := s.failPendingDeposit(ctx, tx.Id, "payment unknown to gateway"); err != nil {
				return OutcomePending, err
			}
			return OutcomeFailed, nil
		}
		return OutcomePending, fmt.Errorf("%w: %v", ledger.ErrPaymentGateway, err)
	}

	switch status.Status {
	case gateway.StatusPaid:
		_, err := s.ProcessPaymentCallback(ctx, models.CallbackRequest{
			Authority: tx.PaymentReferenceId,
			Status:    callbackStatusOK,
			Amount:    nonZero(status.Amount),
			Gateway:   tx.Gateway,
		})
		if err != nil {
			if code := ledger.Code(err); code == "" || code == ledger.ErrPaymentGateway.Code {
				return OutcomePending, err
			}
			return OutcomeFailed, err
		}
		return OutcomeCompleted, nil
	case gateway.StatusFailed, gateway.StatusExpired:
		if _, err := s.failPendingDeposit(ctx, tx.Id, "gateway reported "+string(status.Status)); err != nil {
			return OutcomePending, err
		}
		return OutcomeFailed, nil
	default:
		return OutcomePending, nil
	}
}

func nonZero(d decimal.Decimal) *decimal.Decimal {
	if d.IsZero() {
		return nil
	}
	return &d
}
