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

	"travel-wallet-go/internal/ledger"
	"travel-wallet-go/internal/money"
	"travel-wallet-go/internal/store"

	"go.uber.org/zap"
)

func (r *repo) CreateCurrencyAccount(ctx context.Context, a *ledger.CurrencyAccount) error {
	if a.Version == 0 {
		a.Version = 1
	}
	_, err := r.exec(ctx, queryInsertAccount,
		a.Id, a.WalletId, string(a.Currency), a.Balance.Amount().String(), a.IsActive, a.Version,
		a.CreatedAt.UTC(), a.UpdatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s account for wallet %s", store.ErrDuplicate, a.Currency, a.WalletId)
		}
		return fmt.Errorf("failed to create currency account: %w", err)
	}
	return nil
}

func (r *repo) GetCurrencyAccount(ctx context.Context, walletId string, currency money.Currency) (*ledger.CurrencyAccount, error) {
	return scanAccount(r.queryRow(ctx, queryGetAccount, walletId, string(currency)))
}

func (r *repo) GetCurrencyAccountById(ctx context.Context, accountId string) (*ledger.CurrencyAccount, error) {
	return scanAccount(r.queryRow(ctx, queryGetAccountById, accountId))
}

func (r *repo) ListCurrencyAccounts(ctx context.Context, walletId string) ([]*ledger.CurrencyAccount, error) {
	rows, err := r.query(ctx, queryListAccounts, walletId)
	if err != nil {
		return nil, fmt.Errorf("failed to query currency accounts: %w", err)
	}
	return collectAccounts(rows)
}

func (r *repo) ListActiveCurrencyAccounts(ctx context.Context, afterId string, limit int) ([]*ledger.CurrencyAccount, error) {
	rows, err := r.query(ctx, queryListActiveAccounts, true, afterId, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query active accounts: %w", err)
	}
	return collectAccounts(rows)
}

// UpdateAccountBalance writes the new balance with optimistic locking on version.
func (r *repo) UpdateAccountBalance(ctx context.Context, a *ledger.CurrencyAccount) error {
	res, err := r.exec(ctx, queryUpdateAccountBalance, a.Balance.Amount().String(), a.UpdatedAt.UTC(), a.Id, a.Version)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	if err := expectOneRow(res); err != nil {
		zap.L().Warn("Optimistic lock conflict on account",
			zap.String("account_id", a.Id),
			zap.Int64("version", a.Version))
		return err
	}
	a.Version++
	return nil
}

func collectAccounts(rows *sql.Rows) ([]*ledger.CurrencyAccount, error) {
	defer rows.Close()

	var accounts []*ledger.CurrencyAccount
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}
	return accounts, nil
}

func scanAccount(s scanner) (*ledger.CurrencyAccount, error) {
	var (
		a          ledger.CurrencyAccount
		currency   string
		balanceStr string
	)
	err := s.Scan(&a.Id, &a.WalletId, &currency, &balanceStr, &a.IsActive, &a.Version, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan currency account: %w", err)
	}
	a.Currency = money.Currency(currency)
	if a.Balance, err = parseMoney(balanceStr, currency); err != nil {
		return nil, err
	}
	return &a, nil
}
