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

	"go.uber.org/zap"
)

func (r *repo) CreateWallet(ctx context.Context, w *ledger.Wallet) error {
	_, err := r.exec(ctx, queryInsertWallet, w.Id, w.UserId, w.IsActive, w.CreatedAt.UTC(), w.UpdatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: wallet for user %s", store.ErrDuplicate, w.UserId)
		}
		return fmt.Errorf("failed to create wallet: %w", err)
	}

	zap.L().Debug("Created wallet", zap.String("wallet_id", w.Id), zap.String("user_id", w.UserId))
	return nil
}

func (r *repo) GetWalletById(ctx context.Context, walletId string) (*ledger.Wallet, error) {
	return r.getWallet(ctx, queryGetWalletById, walletId)
}

func (r *repo) GetWalletByUserId(ctx context.Context, userId string) (*ledger.Wallet, error) {
	return r.getWallet(ctx, queryGetWalletByUserId, userId)
}

// getWallet loads the wallet together with its accounts, credits and bank accounts.
func (r *repo) getWallet(ctx context.Context, query, arg string) (*ledger.Wallet, error) {
	var w ledger.Wallet
	err := r.queryRow(ctx, query, arg).Scan(&w.Id, &w.UserId, &w.IsActive, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to query wallet: %w", err)
	}

	if w.Accounts, err = r.ListCurrencyAccounts(ctx, w.Id); err != nil {
		return nil, err
	}
	if w.Credits, err = r.ListCredits(ctx, w.Id); err != nil {
		return nil, err
	}
	if w.BankAccounts, err = r.ListBankAccounts(ctx, w.Id); err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *repo) SetWalletActive(ctx context.Context, walletId string, active bool, at time.Time) error {
	res, err := r.exec(ctx, querySetWalletActive, active, at.UTC(), walletId)
	if err != nil {
		return fmt.Errorf("failed to update wallet: %w", err)
	}
	if err := expectOneRow(res); err != nil {
		return store.ErrNotFound
	}
	return nil
}

func (r *repo) ListWalletUserIds(ctx context.Context) ([]string, error) {
	rows, err := r.query(ctx, queryListWalletUserIds)
	if err != nil {
		return nil, fmt.Errorf("failed to query wallet users: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan wallet user: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
