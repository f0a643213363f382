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
	"fmt"
	"strings"

	"travel-wallet-go/internal/gateway"
	"travel-wallet-go/internal/ledger"
	"travel-wallet-go/internal/models"
	"travel-wallet-go/internal/money"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// purchasePlan is what the first local transaction of a purchase decided.
type purchasePlan struct {
	kind          models.PurchaseType
	balanceBefore money.Money
	balanceAfter  money.Money
	purchase      *ledger.Transaction
	deposit       *ledger.Transaction
}

// IntegratedPurchase funds an order from the wallet balance, the payment
// gateway, both, or the wallet's credit line.
func (s *WalletService) IntegratedPurchase(ctx context.Context, req models.PurchaseRequest) (*models.PurchaseResult, error) {
	total, err := parseMoney(req.TotalAmount, req.Currency)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.OrderId) == "" {
		return nil, fmt.Errorf("%w: order id is required", ledger.ErrInvalidTransaction)
	}
	if strings.TrimSpace(req.Description) == "" {
		req.Description = "Order " + req.OrderId
	}

	zap.L().Info("Processing purchase",
		zap.String("user_id", req.UserId),
		zap.String("order_id", req.OrderId),
		zap.String("amount", total.String()),
		zap.Bool("use_credit", req.UseCredit))

	w, err := s.activeWallet(ctx, req.UserId)
	if err != nil {
		return nil, err
	}
	if req.UseCredit {
		return s.creditPurchase(ctx, w, total, req)
	}

	var (
		plan purchasePlan
		ids  []string
	)
	err = s.withAccountLock(ctx, w.Id, total.Currency(), func() error {
		ids, err = s.execute(ctx, "purchase", func(ctx context.Context, uow *unitOfWork) error {
			plan = purchasePlan{}
			return s.planPurchase(ctx, uow, w, total, req, &plan)
		})
		return err
	})
	if err != nil {
		zap.L().Warn("Purchase rejected",
			zap.String("order_id", req.OrderId),
			zap.Error(err))
		return nil, err
	}
	s.publish(ctx, ids)

	result := &models.PurchaseResult{
		PurchaseType:    plan.kind,
		Currency:        string(total.Currency()),
		TotalAmount:     total.Amount(),
		WalletPortion:   decimal.Zero,
		RequiredPayment: decimal.Zero,
		WalletBalance:   plan.balanceAfter.Amount(),
	}
	if plan.purchase != nil {
		result.PurchaseTransactionId = plan.purchase.Id
		result.WalletPortion = plan.purchase.Amount.Amount()
	}
	if plan.deposit == nil {
		zap.L().Info("Purchase paid from wallet",
			zap.String("order_id", req.OrderId),
			zap.String("transaction_id", result.PurchaseTransactionId),
			zap.String("new_balance", result.WalletBalance.String()))
		return result, nil
	}

	result.PaymentTransactionId = plan.deposit.Id
	result.RequiredPayment = plan.deposit.Amount.Amount()

	session, err := s.openPaymentSession(ctx, plan.deposit, req.Gateway, req.Description)
	if err != nil {
		return nil, err
	}
	result.PaymentUrl = session.PaymentUrl
	result.Authority = session.Authority
	result.Gateway = session.Gateway

	zap.L().Info("Purchase awaiting gateway payment",
		zap.String("order_id", req.OrderId),
		zap.String("purchase_type", string(plan.kind)),
		zap.String("wallet_portion", result.WalletPortion.String()),
		zap.String("required_payment", result.RequiredPayment.String()),
		zap.String("authority", session.Authority))
	return result, nil
}

// planPurchase runs inside the first local transaction of a purchase.
func (s *WalletService) planPurchase(ctx context.Context, uow *unitOfWork, w *ledger.Wallet, total money.Money, req models.PurchaseRequest, plan *purchasePlan) error {
	now := s.now()
	account, err := s.getOrCreateAccount(ctx, uow, w.Id, total.Currency())
	if err != nil {
		return err
	}
	plan.balanceBefore = account.Balance

	params := ledger.TransactionParams{
		WalletId:          w.Id,
		CurrencyAccountId: account.Id,
		UserId:            w.UserId,
		Description:       req.Description,
		OrderContext:      req.OrderId,
		Now:               now,
	}

	switch {
	case account.Balance.GreaterThanOrEqual(total):
		plan.kind = models.PurchaseFullWallet
		params.Amount = total
		purchase, err := s.debit(ctx, uow, account, params)
		if err != nil {
			return err
		}
		plan.purchase = purchase
		uow.raise(ledger.OrderCompletionRequested(req.OrderId, purchase.Id, now))

	case account.Balance.IsZero():
		plan.kind = models.PurchaseFullPayment
		params.Amount = total
		deposit, err := ledger.NewDeposit(params)
		if err != nil {
			return err
		}
		if err := uow.repo.InsertTransaction(ctx, deposit); err != nil {
			return err
		}
		uow.collect(deposit)
		plan.deposit = deposit

	default:
		plan.kind = models.PurchaseMixed
		shortfall, err := total.Sub(account.Balance)
		if err != nil {
			return err
		}
		params.Amount = account.Balance
		params.Description = req.Description + " (wallet portion)"
		purchase, err := s.debit(ctx, uow, account, params)
		if err != nil {
			return err
		}
		params.Amount = shortfall
		params.Description = req.Description + " (gateway portion)"
		deposit, err := ledger.NewDeposit(params)
		if err != nil {
			return err
		}
		deposit.RelatedTransactionId = purchase.Id
		if err := uow.repo.InsertTransaction(ctx, deposit); err != nil {
			return err
		}
		uow.collect(deposit)
		plan.purchase = purchase
		plan.deposit = deposit
	}

	plan.balanceAfter = account.Balance
	return nil
}

// debit creates a purchase, applies it to account and persists both.
func (s *WalletService) debit(ctx context.Context, uow *unitOfWork, account *ledger.CurrencyAccount, params ledger.TransactionParams) (*ledger.Transaction, error) {
	purchase, err := ledger.NewPurchase(params)
	if err != nil {
		return nil, err
	}
	if err := account.ProcessPurchase(purchase, params.Now); err != nil {
		return nil, err
	}
	if err := uow.repo.InsertTransaction(ctx, purchase); err != nil {
		return nil, err
	}
	if err := uow.repo.UpdateAccountBalance(ctx, account); err != nil {
		return nil, err
	}
	uow.collect(purchase)
	return purchase, nil
}

// openPaymentSession asks the gateway for a hosted payment page for a pending
// deposit and stores the returned authority on it. Any failure fails the
// deposit and releases a linked wallet debit before returning.
func (s *WalletService) openPaymentSession(ctx context.Context, deposit *ledger.Transaction, gatewayName, description string) (*gateway.PaymentSession, error) {
	if gatewayName == "" {
		gatewayName = s.gateways.Default()
	}

	session, err := s.gateways.CreatePayment(ctx, gatewayName, gateway.PaymentRequest{
		Amount:      deposit.Amount,
		OrderRef:    deposit.TransactionNumber,
		Description: description,
		CallbackURL: s.callbackURL(gatewayName),
	})
	if err == nil && (session == nil || session.Authority == "") {
		err = fmt.Errorf("gateway returned no authority")
	}
	if err != nil {
		zap.L().Warn("Payment request failed",
			zap.String("gateway", gatewayName),
			zap.String("transaction_id", deposit.Id),
			zap.Error(err))
		s.abandonDeposit(ctx, deposit.Id, "payment request failed")
		return nil, ledger.ErrPaymentGateway
	}

	ids, err := s.execute(ctx, "attach_payment_reference", func(ctx context.Context, uow *unitOfWork) error {
		tx, err := uow.repo.GetTransactionById(ctx, deposit.Id)
		if err != nil {
			return err
		}
		if err := tx.SetPaymentReference(session.Gateway, session.Authority, s.now()); err != nil {
			return err
		}
		return uow.repo.UpdateTransaction(ctx, tx, ledger.StatusPending)
	})
	if err != nil {
		zap.L().Error("Unable to store payment reference",
			zap.String("transaction_id", deposit.Id),
			zap.Error(err))
		s.abandonDeposit(ctx, deposit.Id, "unable to store payment reference")
		return nil, ledger.ErrPaymentGateway
	}
	s.publish(ctx, ids)
	return session, nil
}

// abandonDeposit fails a pending deposit on a context detached from the
// caller, so a cancelled request still compensates its wallet debit.
func (s *WalletService) abandonDeposit(ctx context.Context, depositId, reason string) {
	if _, err := s.failPendingDeposit(context.WithoutCancel(ctx), depositId, reason); err != nil {
		zap.L().Error("Unable to compensate pending deposit, reconciler will retry",
			zap.String("transaction_id", depositId),
			zap.String("reason", reason),
			zap.Error(err))
	}
}

// Deposit tops up the wallet through a payment gateway.
func (s *WalletService) Deposit(ctx context.Context, req models.DepositRequest) (*models.DepositResult, error) {
	amount, err := parseMoney(req.Amount, req.Currency)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Description) == "" {
		req.Description = "Wallet top-up"
	}
	w, err := s.activeWallet(ctx, req.UserId)
	if err != nil {
		return nil, err
	}

	var deposit *ledger.Transaction
	err = s.withAccountLock(ctx, w.Id, amount.Currency(), func() error {
		ids, err := s.execute(ctx, "deposit", func(ctx context.Context, uow *unitOfWork) error {
			account, err := s.getOrCreateAccount(ctx, uow, w.Id, amount.Currency())
			if err != nil {
				return err
			}
			deposit, err = ledger.NewDeposit(ledger.TransactionParams{
				WalletId:          w.Id,
				CurrencyAccountId: account.Id,
				UserId:            w.UserId,
				Amount:            amount,
				Description:       req.Description,
				Now:               s.now(),
			})
			if err != nil {
				return err
			}
			if err := uow.repo.InsertTransaction(ctx, deposit); err != nil {
				return err
			}
			uow.collect(deposit)
			return nil
		})
		s.publish(ctx, ids)
		return err
	})
	if err != nil {
		return nil, err
	}

	session, err := s.openPaymentSession(ctx, deposit, req.Gateway, req.Description)
	if err != nil {
		return nil, err
	}
	return &models.DepositResult{
		TransactionId:     deposit.Id,
		TransactionNumber: deposit.TransactionNumber,
		Amount:            amount.Amount(),
		Currency:          string(amount.Currency()),
		PaymentUrl:        session.PaymentUrl,
		Authority:         session.Authority,
		Gateway:           session.Gateway,
	}, nil
}
