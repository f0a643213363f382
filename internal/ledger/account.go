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

package ledger

import (
	"fmt"
	"time"

	"travel-wallet-go/internal/money"

	"github.com/google/uuid"
)

// CurrencyAccount holds a wallet's balance in one currency. Balance only
// changes through ProcessDeposit, ProcessPurchase and ProcessRefund.
type CurrencyAccount struct {
	Id        string
	WalletId  string
	Currency  money.Currency
	Balance   money.Money
	IsActive  bool
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

func NewCurrencyAccount(walletId string, currency money.Currency, now time.Time) (*CurrencyAccount, error) {
	if walletId == "" {
		return nil, fmt.Errorf("%w: wallet id is required", ErrInvalidCurrencyAccount)
	}
	if _, err := money.ParseCurrency(string(currency)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCurrencyAccount, err)
	}
	now = now.UTC()
	return &CurrencyAccount{
		Id:        uuid.NewString(),
		WalletId:  walletId,
		Currency:  currency,
		Balance:   money.Zero(currency),
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (a *CurrencyAccount) checkApplicable(tx *Transaction, dir Direction) error {
	if !a.IsActive {
		return fmt.Errorf("%w: account %s is inactive", ErrInvalidCurrencyAccount, a.Id)
	}
	if tx.CurrencyAccountId != a.Id {
		return fmt.Errorf("%w: transaction %s belongs to account %s", ErrInvalidTransaction, tx.TransactionNumber, tx.CurrencyAccountId)
	}
	if tx.Amount.Currency() != a.Currency {
		return fmt.Errorf("%w: transaction currency %s on %s account", ErrInvalidTransaction, tx.Amount.Currency(), a.Currency)
	}
	if !tx.IsPending() {
		return fmt.Errorf("%w: transaction %s is %s", ErrInvalidOperation, tx.TransactionNumber, tx.Status)
	}
	if tx.IsCredit {
		return fmt.Errorf("%w: credit transactions do not move account balance", ErrInvalidTransaction)
	}
	if tx.Direction != dir {
		return fmt.Errorf("%w: expected direction %s, got %s", ErrInvalidTransaction, dir, tx.Direction)
	}
	return nil
}

// ProcessDeposit credits the account and completes tx.
func (a *CurrencyAccount) ProcessDeposit(tx *Transaction, now time.Time) error {
	if err := a.checkApplicable(tx, DirectionIn); err != nil {
		return err
	}
	return a.credit(tx, now)
}

// ProcessPurchase debits the account and completes tx. The balance is checked
// before mutation.
func (a *CurrencyAccount) ProcessPurchase(tx *Transaction, now time.Time) error {
	if err := a.checkApplicable(tx, DirectionOut); err != nil {
		return err
	}
	if a.Balance.LessThan(tx.Amount) {
		return fmt.Errorf("%w: balance %s, required %s", ErrInsufficientBalance, a.Balance.String(), tx.Amount.String())
	}
	next, err := a.Balance.Sub(tx.Amount)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInsufficientBalance, err)
	}
	if err := tx.MarkAsCompleted(now); err != nil {
		return err
	}
	a.Balance = next
	a.UpdatedAt = now.UTC()
	return nil
}

// ProcessRefund credits a refund transaction and completes it.
func (a *CurrencyAccount) ProcessRefund(tx *Transaction, now time.Time) error {
	if err := a.checkApplicable(tx, DirectionIn); err != nil {
		return err
	}
	if tx.Type != TypeRefund {
		return fmt.Errorf("%w: expected refund, got %s", ErrInvalidTransaction, tx.Type)
	}
	return a.credit(tx, now)
}

func (a *CurrencyAccount) credit(tx *Transaction, now time.Time) error {
	next, err := a.Balance.Add(tx.Amount)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTransaction, err)
	}
	if err := tx.MarkAsCompleted(now); err != nil {
		return err
	}
	a.Balance = next
	a.UpdatedAt = now.UTC()
	return nil
}
