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

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PurchaseType string

const (
	PurchaseFullWallet  PurchaseType = "FullWallet"
	PurchaseFullPayment PurchaseType = "FullPayment"
	PurchaseMixed       PurchaseType = "Mixed"
	PurchaseCredit      PurchaseType = "Credit"
)

// PurchaseRequest is the input of an integrated purchase
type PurchaseRequest struct {
	UserId      string          `json:"-"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Currency    string          `json:"currency"`
	Gateway     string          `json:"gateway,omitempty"`
	OrderId     string          `json:"order_id"`
	Description string          `json:"description"`
	UseCredit   bool            `json:"use_credit"`
}

// PurchaseResult describes how a purchase was funded
type PurchaseResult struct {
	PurchaseType          PurchaseType    `json:"purchase_type"`
	Currency              string          `json:"currency"`
	TotalAmount           decimal.Decimal `json:"total_amount"`
	WalletPortion         decimal.Decimal `json:"wallet_portion"`
	RequiredPayment       decimal.Decimal `json:"required_payment"`
	WalletBalance         decimal.Decimal `json:"wallet_balance"`
	PurchaseTransactionId string          `json:"purchase_transaction_id,omitempty"`
	PaymentTransactionId  string          `json:"payment_transaction_id,omitempty"`
	PaymentUrl            string          `json:"payment_url,omitempty"`
	Authority             string          `json:"authority,omitempty"`
	Gateway               string          `json:"gateway,omitempty"`
}

// DepositRequest is a wallet top-up through a gateway
type DepositRequest struct {
	UserId      string          `json:"-"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Gateway     string          `json:"gateway,omitempty"`
	Description string          `json:"description"`
}

type DepositResult struct {
	TransactionId     string          `json:"transaction_id"`
	TransactionNumber string          `json:"transaction_number"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	PaymentUrl        string          `json:"payment_url"`
	Authority         string          `json:"authority"`
	Gateway           string          `json:"gateway"`
}

// CallbackRequest is what a gateway redirect or webhook reports
type CallbackRequest struct {
	Authority string           `json:"authority" form:"Authority"`
	Status    string           `json:"status" form:"Status"`
	Amount    *decimal.Decimal `json:"amount,omitempty" form:"-"`
	Gateway   string           `json:"gateway,omitempty" form:"gateway"`
}

type CallbackResult struct {
	Verified      bool             `json:"verified"`
	TransactionId string           `json:"transaction_id"`
	ReferenceId   string           `json:"reference_id,omitempty"`
	Currency      string           `json:"currency,omitempty"`
	NewBalance    *decimal.Decimal `json:"new_balance,omitempty"`
	Message       string           `json:"message,omitempty"`
}

type OrderRefundRequest struct {
	UserId        string          `json:"-"`
	TransactionId string          `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
	Reason        string          `json:"reason"`
}

type RefundResult struct {
	RefundTransactionId   string          `json:"refund_transaction_id"`
	OriginalTransactionId string          `json:"original_transaction_id"`
	Amount                decimal.Decimal `json:"amount"`
	Currency              string          `json:"currency"`
	NewBalance            decimal.Decimal `json:"new_balance"`
	RemainingRefundable   decimal.Decimal `json:"remaining_refundable"`
}

type BankRefundRequest struct {
	UserId        string          `json:"-"`
	BankAccountId string          `json:"bank_account_id"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency,omitempty"`
	Description   string          `json:"description"`
}

type BankRefundResult struct {
	TransactionId     string          `json:"transaction_id"`
	TransactionNumber string          `json:"transaction_number"`
	BankAccountId     string          `json:"bank_account_id"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	NewBalance        decimal.Decimal `json:"new_balance"`
}

type BankAccountRequest struct {
	UserId        string `json:"-"`
	BankName      string `json:"bank_name"`
	AccountNumber string `json:"account_number"`
	Iban          string `json:"iban"`
	HolderName    string `json:"holder_name"`
}

// AccountBalance represents a wallet's balance for a specific currency
type AccountBalance struct {
	AccountId string          `json:"account_id"`
	Currency  string          `json:"currency"`
	Balance   decimal.Decimal `json:"balance"`
	IsActive  bool            `json:"is_active"`
}

type CreditView struct {
	Id         string          `json:"id"`
	Currency   string          `json:"currency"`
	Limit      decimal.Decimal `json:"limit"`
	UsedAmount decimal.Decimal `json:"used_amount"`
	Available  decimal.Decimal `json:"available"`
	DueDate    time.Time       `json:"due_date"`
	Status     string          `json:"status"`
}

type BankAccountView struct {
	Id            string `json:"id"`
	BankName      string `json:"bank_name"`
	AccountNumber string `json:"account_number"`
	Iban          string `json:"iban"`
	HolderName    string `json:"holder_name"`
	IsActive      bool   `json:"is_active"`
}

type WalletView struct {
	Id           string            `json:"id"`
	UserId       string            `json:"user_id"`
	IsActive     bool              `json:"is_active"`
	Accounts     []AccountBalance  `json:"accounts"`
	Credits      []CreditView      `json:"credits,omitempty"`
	BankAccounts []BankAccountView `json:"bank_accounts,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

// TransactionRecord represents a transaction in the wallet's history
type TransactionRecord struct {
	Id                   string          `json:"id"`
	TransactionNumber    string          `json:"transaction_number"`
	Type                 string          `json:"type"`
	Direction            string          `json:"direction"`
	Status               string          `json:"status"`
	Amount               decimal.Decimal `json:"amount"`
	Currency             string          `json:"currency"`
	Description          string          `json:"description"`
	OrderContext         string          `json:"order_context,omitempty"`
	RelatedTransactionId string          `json:"related_transaction_id,omitempty"`
	IsCredit             bool            `json:"is_credit"`
	TransactionDate      time.Time       `json:"transaction_date"`
	ProcessedAt          *time.Time      `json:"processed_at,omitempty"`
}

// ReconciliationResult compares an account balance with its transaction history
type ReconciliationResult struct {
	AccountId string          `json:"account_id"`
	WalletId  string          `json:"wallet_id"`
	Currency  string          `json:"currency"`
	Balance   decimal.Decimal `json:"balance"`
	Expected  decimal.Decimal `json:"expected"`
	Matches   bool            `json:"matches"`
}
