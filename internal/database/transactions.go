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

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"travel-wallet-go/internal/ledger"
	"travel-wallet-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func (r *repo) InsertTransaction(ctx context.Context, t *ledger.Transaction) error {
	_, err := r.exec(ctx, queryInsertTransaction,
		t.Id,
		t.TransactionNumber,
		t.WalletId,
		t.CurrencyAccountId,
		t.UserId,
		t.Amount.Amount().String(),
		string(t.Amount.Currency()),
		string(t.Direction),
		string(t.Type),
		string(t.Status),
		t.Description,
		nullString(t.PaymentReferenceId),
		nullString(t.GatewayReferenceId),
		nullString(t.Gateway),
		nullString(t.OrderContext),
		nullString(t.RelatedTransactionId),
		t.IsCredit,
		nullTime(t.DueDate),
		t.TransactionDate.UTC(),
		nullTime(t.ProcessedAt),
		t.CreatedAt.UTC(),
		t.UpdatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: transaction %s", store.ErrDuplicate, t.TransactionNumber)
		}
		return fmt.Errorf("failed to insert transaction: %w", err)
	}

	zap.L().Debug("Inserted transaction",
		zap.String("transaction_id", t.Id),
		zap.String("number", t.TransactionNumber),
		zap.String("type", string(t.Type)),
		zap.String("status", string(t.Status)),
		zap.String("amount", t.Amount.String()))
	return nil
}

// UpdateTransaction persists status and reference changes. The row must
// still be in the expected status, so two writers cannot both finalize it.
func (r *repo) UpdateTransaction(ctx context.Context, t *ledger.Transaction, expected ledger.TransactionStatus) error {
	res, err := r.exec(ctx, queryUpdateTransaction,
		string(t.Status),
		t.Description,
		nullString(t.PaymentReferenceId),
		nullString(t.GatewayReferenceId),
		nullString(t.Gateway),
		nullTime(t.ProcessedAt),
		t.UpdatedAt.UTC(),
		t.Id,
		string(expected),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: payment reference %s", store.ErrDuplicate, t.PaymentReferenceId)
		}
		return fmt.Errorf("failed to update transaction: %w", err)
	}
	return expectOneRow(res)
}

func (r *repo) GetTransactionById(ctx context.Context, transactionId string) (*ledger.Transaction, error) {
	return scanTransaction(r.queryRow(ctx, queryGetTransactionById, transactionId))
}

func (r *repo) GetTransactionByPaymentReference(ctx context.Context, reference string) (*ledger.Transaction, error) {
	return scanTransaction(r.queryRow(ctx, queryGetTransactionByReference, reference))
}

func (r *repo) ListTransactions(ctx context.Context, accountId string, limit, offset int) ([]*ledger.Transaction, error) {
	rows, err := r.query(ctx, queryListTransactions, accountId, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query transaction history: %w", err)
	}
	return collectTransactions(rows)
}

func (r *repo) ListStalePendingDeposits(ctx context.Context, olderThan time.Time, limit int) ([]*ledger.Transaction, error) {
	rows, err := r.query(ctx, queryListStalePendingDeposits, olderThan.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending deposits: %w", err)
	}
	return collectTransactions(rows)
}

func (r *repo) ListRelatedRefunds(ctx context.Context, originalId string) ([]*ledger.Transaction, error) {
	rows, err := r.query(ctx, queryListRelatedRefunds, originalId)
	if err != nil {
		return nil, fmt.Errorf("failed to query refunds: %w", err)
	}
	return collectTransactions(rows)
}

// GetAccountTotals sums completed, non-credit transactions of an account.
func (r *repo) GetAccountTotals(ctx context.Context, accountId string) (store.AccountTotals, error) {
	totals := store.AccountTotals{In: decimal.Zero, Out: decimal.Zero}

	rows, err := r.query(ctx, queryAccountTotals, accountId, false)
	if err != nil {
		return totals, fmt.Errorf("failed to query account totals: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, amountStr, direction string
		if err := rows.Scan(&id, &amountStr, &direction); err != nil {
			return totals, fmt.Errorf("failed to scan transaction amount: %w", err)
		}
		amount, err := decimal.NewFromString(amountStr)
		if err != nil {
			return totals, fmt.Errorf("failed to parse amount '%s': %w", amountStr, err)
		}
		switch ledger.Direction(direction) {
		case ledger.DirectionIn:
			totals.In = totals.In.Add(amount)
		case ledger.DirectionOut:
			totals.Out = totals.Out.Add(amount)
		}
		totals.LastTransactionId = id
	}
	if err := rows.Err(); err != nil {
		return totals, fmt.Errorf("error iterating transactions: %w", err)
	}
	return totals, nil
}

func collectTransactions(rows *sql.Rows) ([]*ledger.Transaction, error) {
	defer rows.Close()

	var txs []*ledger.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return txs, nil
}

func scanTransaction(s scanner) (*ledger.Transaction, error) {
	var (
		t                                                  ledger.Transaction
		amountStr, currency, direction, typ, status        string
		paymentRef, gatewayRef, gateway, orderCtx, related sql.NullString
		dueDate, processedAt                               sql.NullTime
	)
	err := s.Scan(
		&t.Id,
		&t.TransactionNumber,
		&t.WalletId,
		&t.CurrencyAccountId,
		&t.UserId,
		&amountStr,
		&currency,
		&direction,
		&typ,
		&status,
		&t.Description,
		&paymentRef,
		&gatewayRef,
		&gateway,
		&orderCtx,
		&related,
		&t.IsCredit,
		&dueDate,
		&t.TransactionDate,
		&processedAt,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan transaction: %w", err)
	}

	if t.Amount, err = parseMoney(amountStr, currency); err != nil {
		return nil, err
	}
	t.Direction = ledger.Direction(direction)
	t.Type = ledger.TransactionType(typ)
	t.Status = ledger.TransactionStatus(status)
	t.PaymentReferenceId = paymentRef.String
	t.GatewayReferenceId = gatewayRef.String
	t.Gateway = gateway.String
	t.OrderContext = orderCtx.String
	t.RelatedTransactionId = related.String
	t.DueDate = timePtr(dueDate)
	t.ProcessedAt = timePtr(processedAt)
	t.TransactionDate = t.TransactionDate.UTC()
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return &t, nil
}
