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
	"regexp"
	"strings"
	"time"

	"travel-wallet-go/internal/money"

	"github.com/google/uuid"
)

// Wallet is the per-user aggregate root. Accounts, credits and bank accounts
// are loaded on demand by the store.
type Wallet struct {
	Id           string
	UserId       string
	IsActive     bool
	Accounts     []*CurrencyAccount
	Credits      []*Credit
	BankAccounts []*BankAccount
	CreatedAt    time.Time
	UpdatedAt    time.Time

	eventRecorder
}

func NewWallet(userId string, now time.Time) (*Wallet, error) {
	if strings.TrimSpace(userId) == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidOperation)
	}
	now = now.UTC()
	w := &Wallet{
		Id:        uuid.NewString(),
		UserId:    userId,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	w.record(EventWalletCreated, w.Id, map[string]string{"wallet_id": w.Id, "user_id": userId}, now)
	return w, nil
}

// EnsureActive returns ErrWalletInactive for soft-deactivated wallets.
func (w *Wallet) EnsureActive() error {
	if !w.IsActive {
		return fmt.Errorf("%w: wallet %s", ErrWalletInactive, w.Id)
	}
	return nil
}

func (w *Wallet) Account(currency money.Currency) *CurrencyAccount {
	for _, a := range w.Accounts {
		if a.Currency == currency {
			return a
		}
	}
	return nil
}

// ActiveCredit returns the single active credit, if any.
func (w *Wallet) ActiveCredit() *Credit {
	for _, c := range w.Credits {
		if c.Status == CreditActive {
			return c
		}
	}
	return nil
}

// AssignCredit opens a new credit line. A wallet holds at most one active credit.
func (w *Wallet) AssignCredit(limit money.Money, dueDate time.Time, policy CreditPolicy, now time.Time) (*Credit, error) {
	if err := w.EnsureActive(); err != nil {
		return nil, err
	}
	if w.ActiveCredit() != nil {
		return nil, ErrDuplicateCredit
	}
	c, err := newCredit(w.Id, limit, dueDate, policy, now)
	if err != nil {
		return nil, err
	}
	w.Credits = append(w.Credits, c)
	return c, nil
}

func (w *Wallet) BankAccount(id string) *BankAccount {
	for _, b := range w.BankAccounts {
		if b.Id == id {
			return b
		}
	}
	return nil
}

// BankAccount is a payout destination registered on a wallet.
type BankAccount struct {
	Id            string
	WalletId      string
	BankName      string
	AccountNumber string
	Iban          string
	HolderName    string
	IsActive      bool
	CreatedAt     time.Time
}

var ibanPattern = regexp.MustCompile(`^[A-Z]{2}[0-9]{2}[A-Z0-9]{11,30}$`)

func NewBankAccount(walletId, bankName, accountNumber, iban, holderName string, now time.Time) (*BankAccount, error) {
	iban = strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(iban), " ", ""))
	if walletId == "" || strings.TrimSpace(bankName) == "" || strings.TrimSpace(holderName) == "" {
		return nil, fmt.Errorf("%w: bank name and holder name are required", ErrInvalidBankAccount)
	}
	if !ibanPattern.MatchString(iban) {
		return nil, fmt.Errorf("%w: malformed IBAN", ErrInvalidBankAccount)
	}
	return &BankAccount{
		Id:            uuid.NewString(),
		WalletId:      walletId,
		BankName:      strings.TrimSpace(bankName),
		AccountNumber: strings.TrimSpace(accountNumber),
		Iban:          iban,
		HolderName:    strings.TrimSpace(holderName),
		IsActive:      true,
		CreatedAt:     now.UTC(),
	}, nil
}

type SnapshotType string

const (
	SnapshotDaily  SnapshotType = "daily"
	SnapshotManual SnapshotType = "manual"
)

// TransactionSnapshot is an append-only point-in-time balance record.
type TransactionSnapshot struct {
	Id            string
	AccountId     string
	Balance       money.Money
	SnapshotDate  time.Time
	Type          SnapshotType
	TransactionId string
	CreatedAt     time.Time
}

func NewSnapshot(account *CurrencyAccount, typ SnapshotType, lastTransactionId string, now time.Time) *TransactionSnapshot {
	now = now.UTC()
	date := now
	if typ == SnapshotDaily {
		date = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	}
	return &TransactionSnapshot{
		Id:            uuid.NewString(),
		AccountId:     account.Id,
		Balance:       account.Balance,
		SnapshotDate:  date,
		Type:          typ,
		TransactionId: lastTransactionId,
		CreatedAt:     now,
	}
}
