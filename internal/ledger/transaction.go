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
	"strings"
	"time"

	"travel-wallet-go/internal/money"

	"github.com/google/uuid"
)

type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

type TransactionType string

const (
	TypeDeposit  TransactionType = "deposit"
	TypePurchase TransactionType = "purchase"
	TypeRefund   TransactionType = "refund"
	TypeTransfer TransactionType = "transfer"
	TypeFee      TransactionType = "fee"
)

type TransactionStatus string

const (
	StatusPending   TransactionStatus = "pending"
	StatusCompleted TransactionStatus = "completed"
	StatusFailed    TransactionStatus = "failed"
)

// RefundWindow is how long after processing an outgoing transaction can be refunded.
const RefundWindow = 30 * 24 * time.Hour

// Transaction is an append-only ledger entry. It is created Pending and moves
// to exactly one terminal state.
type Transaction struct {
	Id                   string
	TransactionNumber    string
	WalletId             string
	CurrencyAccountId    string
	UserId               string
	Amount               money.Money
	Direction            Direction
	Type                 TransactionType
	Status               TransactionStatus
	Description          string
	PaymentReferenceId   string
	GatewayReferenceId   string
	Gateway              string
	OrderContext         string
	RelatedTransactionId string
	IsCredit             bool
	DueDate              *time.Time
	TransactionDate      time.Time
	ProcessedAt          *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time

	eventRecorder
}

// TransactionParams carries the fields shared by all factories.
type TransactionParams struct {
	WalletId          string
	CurrencyAccountId string
	UserId            string
	Amount            money.Money
	Description       string
	OrderContext      string
	Now               time.Time
}

func (p TransactionParams) validate() error {
	if !p.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be greater than zero", ErrInvalidTransaction)
	}
	if strings.TrimSpace(p.WalletId) == "" || strings.TrimSpace(p.CurrencyAccountId) == "" || strings.TrimSpace(p.UserId) == "" {
		return fmt.Errorf("%w: wallet, account and user ids are required", ErrInvalidTransaction)
	}
	if strings.TrimSpace(p.Description) == "" {
		return fmt.Errorf("%w: description is required", ErrInvalidTransaction)
	}
	return nil
}

func newTransaction(p TransactionParams, dir Direction, typ TransactionType) (*Transaction, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	now := p.Now.UTC()
	t := &Transaction{
		Id:                uuid.NewString(),
		TransactionNumber: money.NewTransactionNumber(now),
		WalletId:          p.WalletId,
		CurrencyAccountId: p.CurrencyAccountId,
		UserId:            p.UserId,
		Amount:            p.Amount,
		Direction:         dir,
		Type:              typ,
		Status:            StatusPending,
		Description:       p.Description,
		OrderContext:      p.OrderContext,
		TransactionDate:   now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	t.record(EventTransactionInitiated, t.Id, t.eventPayload(), now)
	return t, nil
}

func NewDeposit(p TransactionParams) (*Transaction, error) {
	return newTransaction(p, DirectionIn, TypeDeposit)
}

func NewPurchase(p TransactionParams) (*Transaction, error) {
	return newTransaction(p, DirectionOut, TypePurchase)
}

// NewCreditPurchase creates a purchase funded by a credit line. It never moves
// the account balance.
func NewCreditPurchase(p TransactionParams, dueDate time.Time) (*Transaction, error) {
	t, err := newTransaction(p, DirectionOut, TypePurchase)
	if err != nil {
		return nil, err
	}
	due := dueDate.UTC()
	t.IsCredit = true
	t.DueDate = &due
	return t, nil
}

// NewRefund creates an incoming refund linked to original.
func NewRefund(p TransactionParams, original *Transaction) (*Transaction, error) {
	if original == nil || original.Id == "" {
		return nil, fmt.Errorf("%w: refund requires an original transaction", ErrInvalidTransaction)
	}
	if original.Amount.Currency() != p.Amount.Currency() {
		return nil, fmt.Errorf("%w: refund currency differs from original", ErrInvalidTransaction)
	}
	t, err := newTransaction(p, DirectionIn, TypeRefund)
	if err != nil {
		return nil, err
	}
	t.RelatedTransactionId = original.Id
	t.IsCredit = original.IsCredit
	t.events[len(t.events)-1].Payload = t.eventPayload()
	t.record(EventRefundInitiated, t.Id, t.eventPayload(), t.CreatedAt)
	return t, nil
}

// NewTransferOut creates an outgoing transfer, used for bank payouts.
func NewTransferOut(p TransactionParams) (*Transaction, error) {
	return newTransaction(p, DirectionOut, TypeTransfer)
}

func NewFee(p TransactionParams) (*Transaction, error) {
	return newTransaction(p, DirectionOut, TypeFee)
}

func (t *Transaction) IsPending() bool   { return t.Status == StatusPending }
func (t *Transaction) IsCompleted() bool { return t.Status == StatusCompleted }
func (t *Transaction) IsFailed() bool    { return t.Status == StatusFailed }

// MarkAsCompleted moves a pending transaction to Completed. Completing an
// already completed transaction is a no-op.
func (t *Transaction) MarkAsCompleted(now time.Time) error {
	switch t.Status {
	case StatusCompleted:
		return nil
	case StatusFailed:
		return fmt.Errorf("%w: transaction %s already failed", ErrInvalidOperation, t.TransactionNumber)
	}
	now = now.UTC()
	t.Status = StatusCompleted
	t.ProcessedAt = &now
	t.UpdatedAt = now
	t.record(EventTransactionCompleted, t.Id, t.eventPayload(), now)
	if t.Type == TypeRefund {
		t.record(EventRefundCompleted, t.Id, t.eventPayload(), now)
	}
	return nil
}

// MarkAsFailed moves a pending transaction to Failed and appends reason to the
// description. Failing a failed transaction is a no-op.
func (t *Transaction) MarkAsFailed(reason string, now time.Time) error {
	switch t.Status {
	case StatusCompleted:
		return fmt.Errorf("%w: transaction %s already completed", ErrInvalidOperation, t.TransactionNumber)
	case StatusFailed:
		return nil
	}
	now = now.UTC()
	t.Status = StatusFailed
	t.ProcessedAt = &now
	t.UpdatedAt = now
	if reason != "" {
		t.Description = t.Description + " | Failed: " + reason
	}
	payload := t.eventPayload()
	payload["reason"] = reason
	t.record(EventTransactionFailed, t.Id, payload, now)
	return nil
}

// IsRefundable reports whether a completed outgoing transaction is still
// inside the refund window.
func (t *Transaction) IsRefundable(now time.Time) bool {
	return t.IsRefundableWithin(RefundWindow, now)
}

// IsRefundableWithin is IsRefundable with a configured window.
func (t *Transaction) IsRefundableWithin(window time.Duration, now time.Time) bool {
	if t.Status != StatusCompleted || t.Direction != DirectionOut || t.Type == TypeRefund {
		return false
	}
	if t.ProcessedAt == nil {
		return false
	}
	return now.Sub(*t.ProcessedAt) <= window
}

// SetPaymentReference stores the gateway authority on a pending transaction.
func (t *Transaction) SetPaymentReference(gateway, authority string, now time.Time) error {
	if t.Status != StatusPending {
		return fmt.Errorf("%w: reference can only be set on pending transactions", ErrInvalidOperation)
	}
	if strings.TrimSpace(authority) == "" {
		return fmt.Errorf("%w: empty payment reference", ErrInvalidTransaction)
	}
	t.Gateway = gateway
	t.PaymentReferenceId = authority
	t.UpdatedAt = now.UTC()
	return nil
}

func (t *Transaction) eventPayload() map[string]string {
	p := map[string]string{
		"transaction_id":     t.Id,
		"transaction_number": t.TransactionNumber,
		"wallet_id":          t.WalletId,
		"account_id":         t.CurrencyAccountId,
		"user_id":            t.UserId,
		"amount":             t.Amount.StringFixed(),
		"currency":           string(t.Amount.Currency()),
		"direction":          string(t.Direction),
		"type":               string(t.Type),
		"status":             string(t.Status),
	}
	if t.OrderContext != "" {
		p["order_context"] = t.OrderContext
	}
	if t.RelatedTransactionId != "" {
		p["related_transaction_id"] = t.RelatedTransactionId
	}
	if t.IsCredit {
		p["is_credit"] = "true"
	}
	if t.Gateway != "" {
		p["gateway"] = t.Gateway
	}
	if t.ProcessedAt != nil {
		p["processed_at"] = t.ProcessedAt.UTC().Format(time.RFC3339Nano)
	}
	return p
}
