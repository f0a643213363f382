package api

import (
	"context"
	"fmt"
	"strings"

	"travel-wallet-go/internal/ledger"
	"travel-wallet-go/internal/models"
	"travel-wallet-go/internal/money"

	"go.uber.org/zap"
)

// RefundOrder returns part or all of a completed purchase. Wallet purchases
// are credited back to the account; credit purchases give back credit usage.
func (s *WalletService) RefundOrder(ctx context.Context, req models.OrderRefundRequest) (*models.RefundResult, error) {
	if strings.TrimSpace(req.TransactionId) == "" {
		return nil, fmt.Errorf("%w: transaction id is required", ledger.ErrInvalidTransaction)
	}
	w, err := s.activeWallet(ctx, req.UserId)
	if err != nil {
		return nil, err
	}
	head, err := s.store.GetTransactionById(ctx, req.TransactionId)
	if err != nil {
		return nil, notFound(err, ledger.ErrTransactionNotFound)
	}
	if head.WalletId != w.Id || head.UserId != w.UserId {
		// do not reveal other users' transactions
		return nil, ledger.ErrTransactionNotFound
	}
	amount, err := parseMoney(req.Amount, string(head.Amount.Currency()))
	if err != nil {
		return nil, err
	}

	var (
		refund    *ledger.Transaction
		remaining money.Money
		balance   money.Money
		ids       []string
	)
	refundFn := func(ctx context.Context, uow *unitOfWork) error {
		now := s.now()
		original, err := uow.repo.GetTransactionById(ctx, req.TransactionId)
		if err != nil {
			return notFound(err, ledger.ErrTransactionNotFound)
		}
		if original.Type != ledger.TypePurchase || original.OrderContext == "" {
			return fmt.Errorf("%w: transaction %s is not an order purchase", ledger.ErrTransactionNotRefundable, original.TransactionNumber)
		}
		if !original.IsRefundableWithin(s.opts.RefundWindow, now) {
			return fmt.Errorf("%w: transaction %s", ledger.ErrTransactionNotRefundable, original.TransactionNumber)
		}
		left, err := remainingRefundable(ctx, uow.repo, original)
		if err != nil {
			return err
		}
		if left.IsZero() {
			return fmt.Errorf("%w: transaction %s already fully refunded", ledger.ErrTransactionNotRefundable, original.TransactionNumber)
		}
		if left.LessThan(amount) {
			return fmt.Errorf("%w: at most %s can be refunded", ledger.ErrInvalidAmount, left.String())
		}

		description := "Refund of " + original.TransactionNumber
		if r := strings.TrimSpace(req.Reason); r != "" {
			description += ": " + r
		}
		account, err := uow.repo.GetCurrencyAccountById(ctx, original.CurrencyAccountId)
		if err != nil {
			return notFound(err, ledger.ErrInvalidCurrencyAccount)
		}
		refund, err = ledger.NewRefund(ledger.TransactionParams{
			WalletId:          original.WalletId,
			CurrencyAccountId: account.Id,
			UserId:            original.UserId,
			Amount:            amount,
			Description:       description,
			OrderContext:      original.OrderContext,
			Now:               now,
		}, original)
		if err != nil {
			return err
		}

		if original.IsCredit {
			if err := s.releaseCredit(ctx, uow, original, amount); err != nil {
				return err
			}
			if err := refund.MarkAsCompleted(now); err != nil {
				return err
			}
		} else {
			if err := account.ProcessRefund(refund, now); err != nil {
				return err
			}
			if err := uow.repo.UpdateAccountBalance(ctx, account); err != nil {
				return err
			}
		}
		if err := uow.repo.InsertTransaction(ctx, refund); err != nil {
			return err
		}
		uow.collect(refund)

		remaining, err = left.Sub(amount)
		if err != nil {
			return err
		}
		balance = account.Balance
		return nil
	}

	run := func() error {
		ids, err = s.execute(ctx, "refund_order", refundFn)
		return err
	}
	err = s.withAccountLock(ctx, w.Id, head.Amount.Currency(), func() error {
		if head.IsCredit {
			return s.withCreditLock(ctx, w.Id, run)
		}
		return run()
	})
	if err != nil {
		zap.L().Warn("Refund rejected",
			zap.String("transaction_id", req.TransactionId),
			zap.Error(err))
		return nil, err
	}
	s.publish(ctx, ids)

	zap.L().Info("Order refunded",
		zap.String("original_transaction_id", head.Id),
		zap.String("refund_transaction_id", refund.Id),
		zap.String("amount", amount.String()),
		zap.Bool("credit", head.IsCredit))
	return &models.RefundResult{
		RefundTransactionId:   refund.Id,
		OriginalTransactionId: head.Id,
		Amount:                amount.Amount(),
		Currency:              string(amount.Currency()),
		NewBalance:            balance.Amount(),
		RemainingRefundable:   remaining.Amount(),
	}, nil
}

// releaseCredit gives amount back to the credit line that funded original.
func (s *WalletService) releaseCredit(ctx context.Context, uow *unitOfWork, original *ledger.Transaction, amount money.Money) error {
	credits, err := uow.repo.ListCredits(ctx, original.WalletId)
	if err != nil {
		return err
	}
	var credit *ledger.Credit
	for _, c := range credits {
		if c.Limit.Currency() != original.Amount.Currency() || c.Status == ledger.CreditSettled {
			continue
		}
		if original.DueDate != nil && !c.DueDate.Equal(*original.DueDate) {
			continue
		}
		credit = c
		break
	}
	if credit == nil {
		return fmt.Errorf("%w: credit for %s is already settled", ledger.ErrTransactionNotRefundable, original.TransactionNumber)
	}
	if err := credit.Release(amount, s.now()); err != nil {
		return err
	}
	return uow.repo.UpdateCredit(ctx, credit)
}

// RefundToBank records a manual payout from the wallet to a registered bank
// account. The finance team executes the transfer from the emitted event.
func (s *WalletService) RefundToBank(ctx context.Context, req models.BankRefundRequest) (*models.BankRefundResult, error) {
	if req.Currency == "" {
		req.Currency = string(money.IRR)
	}
	amount, err := parseMoney(req.Amount, req.Currency)
	if err != nil {
		return nil, err
	}
	w, err := s.activeWallet(ctx, req.UserId)
	if err != nil {
		return nil, err
	}
	bank := w.BankAccount(req.BankAccountId)
	if bank == nil {
		return nil, ledger.ErrBankAccountNotFound
	}
	if !bank.IsActive {
		return nil, fmt.Errorf("%w: bank account is inactive", ledger.ErrInvalidBankAccount)
	}
	description := strings.TrimSpace(req.Description)
	if description == "" {
		description = "Refund to bank account " + bank.Iban
	}

	var (
		payout  *ledger.Transaction
		balance money.Money
		ids     []string
	)
	err = s.withAccountLock(ctx, w.Id, amount.Currency(), func() error {
		ids, err = s.execute(ctx, "refund_to_bank", func(ctx context.Context, uow *unitOfWork) error {
			now := s.now()
			account, err := uow.repo.GetCurrencyAccount(ctx, w.Id, amount.Currency())
			if err != nil {
				return notFound(err, fmt.Errorf("%w: no balance in %s", ledger.ErrInsufficientBalance, amount.Currency()))
			}
			payout, err = ledger.NewTransferOut(ledger.TransactionParams{
				WalletId:          w.Id,
				CurrencyAccountId: account.Id,
				UserId:            w.UserId,
				Amount:            amount,
				Description:       description,
				Now:               now,
			})
			if err != nil {
				return err
			}
			if err := account.ProcessPurchase(payout, now); err != nil {
				return err
			}
			if err := uow.repo.InsertTransaction(ctx, payout); err != nil {
				return err
			}
			if err := uow.repo.UpdateAccountBalance(ctx, account); err != nil {
				return err
			}
			uow.collect(payout)
			uow.raise(ledger.Event{
				Type:        ledger.EventBankWithdrawalRequested,
				AggregateId: payout.Id,
				Payload: map[string]string{
					"transaction_id":     payout.Id,
					"transaction_number": payout.TransactionNumber,
					"wallet_id":          w.Id,
					"user_id":            w.UserId,
					"bank_account_id":    bank.Id,
					"iban":               bank.Iban,
					"holder_name":        bank.HolderName,
					"amount":             amount.StringFixed(),
					"currency":           string(amount.Currency()),
				},
				OccurredAt: now,
			})
			balance = account.Balance
			return nil
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, ids)

	zap.L().Info("Bank refund requested",
		zap.String("transaction_id", payout.Id),
		zap.String("bank_account_id", bank.Id),
		zap.String("amount", amount.String()))
	return &models.BankRefundResult{
		TransactionId:     payout.Id,
		TransactionNumber: payout.TransactionNumber,
		BankAccountId:     bank.Id,
		Amount:            amount.Amount(),
		Currency:          string(amount.Currency()),
		NewBalance:        balance.Amount(),
	}, nil
}
