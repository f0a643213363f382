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

import "errors"

// DomainError is a business-rule violation that is safe to show to a client.
type DomainError struct {
	Code    string
	Message string
}

func (e *DomainError) Error() string {
	return e.Message
}

// Is matches any DomainError carrying the same code.
func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

var (
	ErrWalletNotFound = &DomainError{
		Code:    "WALLET_NOT_FOUND",
		Message: "wallet not found",
	}
	ErrWalletInactive = &DomainError{
		Code:    "WALLET_INACTIVE",
		Message: "wallet is not active",
	}
	ErrInsufficientBalance = &DomainError{
		Code:    "INSUFFICIENT_BALANCE",
		Message: "insufficient wallet balance",
	}
	ErrInvalidCurrencyAccount = &DomainError{
		Code:    "INVALID_CURRENCY_ACCOUNT",
		Message: "invalid currency account",
	}
	ErrDuplicateWallet = &DomainError{
		Code:    "DUPLICATE_WALLET",
		Message: "wallet already exists for user",
	}
	ErrDuplicateTransaction = &DomainError{
		Code:    "DUPLICATE_TRANSACTION",
		Message: "transaction already exists",
	}
	ErrInvalidTransaction = &DomainError{
		Code:    "INVALID_TRANSACTION",
		Message: "invalid transaction",
	}
	ErrInvalidOperation = &DomainError{
		Code:    "INVALID_OPERATION",
		Message: "operation not allowed in current state",
	}
	ErrInvalidAmount = &DomainError{
		Code:    "INVALID_AMOUNT",
		Message: "invalid amount",
	}
	ErrInvalidBankAccount = &DomainError{
		Code:    "INVALID_BANK_ACCOUNT",
		Message: "invalid bank account",
	}
	ErrBankAccountNotFound = &DomainError{
		Code:    "BANK_ACCOUNT_NOT_FOUND",
		Message: "bank account not found",
	}
	ErrInvalidCreditAmount = &DomainError{
		Code:    "INVALID_CREDIT_AMOUNT",
		Message: "invalid credit amount",
	}
	ErrInsufficientCredit = &DomainError{
		Code:    "INSUFFICIENT_CREDIT",
		Message: "insufficient credit",
	}
	ErrDuplicateCredit = &DomainError{
		Code:    "DUPLICATE_CREDIT",
		Message: "wallet already has an active credit",
	}
	ErrCreditNotFound = &DomainError{
		Code:    "CREDIT_NOT_FOUND",
		Message: "credit not found",
	}
	ErrTransactionNotFound = &DomainError{
		Code:    "TRANSACTION_NOT_FOUND",
		Message: "transaction not found",
	}
	ErrTransactionNotRefundable = &DomainError{
		Code:    "TRANSACTION_NOT_REFUNDABLE",
		Message: "transaction is not refundable",
	}
	ErrPaymentNotFound = &DomainError{
		Code:    "PAYMENT_NOT_FOUND",
		Message: "payment not found",
	}
	ErrPaymentGateway = &DomainError{
		Code:    "PAYMENT_GATEWAY_ERROR",
		Message: "payment gateway error",
	}
	ErrPaymentVerificationFailed = &DomainError{
		Code:    "PAYMENT_VERIFICATION_FAILED",
		Message: "payment verification failed",
	}
	ErrAmountMismatch = &DomainError{
		Code:    "AMOUNT_MISMATCH",
		Message: "paid amount does not match transaction amount",
	}
)

// Code returns the domain code carried by err, or "" for infrastructure errors.
func Code(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}
