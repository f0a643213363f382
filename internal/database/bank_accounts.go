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
	"travel-wallet-go/internal/store"

	"go.uber.org/zap"
)

func (r *repo) InsertBankAccount(ctx context.Context, b *ledger.BankAccount) error {
	_, err := r.exec(ctx, queryInsertBankAccount,
		b.Id, b.WalletId, b.BankName, b.AccountNumber, b.Iban, b.HolderName, b.IsActive, b.CreatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: bank account %s", store.ErrDuplicate, b.Iban)
		}
		return fmt.Errorf("failed to store bank account: %w", err)
	}

	zap.L().Info("Stored bank account",
		zap.String("wallet_id", b.WalletId),
		zap.String("bank", b.BankName),
		zap.String("bank_account_id", b.Id))
	return nil
}

func (r *repo) GetBankAccount(ctx context.Context, bankAccountId string) (*ledger.BankAccount, error) {
	return scanBankAccount(r.queryRow(ctx, queryGetBankAccount, bankAccountId))
}

func (r *repo) ListBankAccounts(ctx context.Context, walletId string) ([]*ledger.BankAccount, error) {
	rows, err := r.query(ctx, queryListBankAccounts, walletId)
	if err != nil {
		return nil, fmt.Errorf("failed to query bank accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*ledger.BankAccount
	for rows.Next() {
		b, err := scanBankAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bank accounts: %w", err)
	}
	return accounts, nil
}

func scanBankAccount(s scanner) (*ledger.BankAccount, error) {
	var b ledger.BankAccount
	err := s.Scan(&b.Id, &b.WalletId, &b.BankName, &b.AccountNumber, &b.Iban, &b.HolderName, &b.IsActive, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan bank account: %w", err)
	}
	return &b, nil
}
