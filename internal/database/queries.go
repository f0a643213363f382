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

// Queries are written with ? placeholders and rebound per dialect.

// Wallet queries
const (
	queryInsertWallet = `
		INSERT INTO wallets (id, user_id, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`

	queryGetWalletById = `
		SELECT id, user_id, is_active, created_at, updated_at
		FROM wallets WHERE id = ?`

	queryGetWalletByUserId = `
		SELECT id, user_id, is_active, created_at, updated_at
		FROM wallets WHERE user_id = ?`

	querySetWalletActive = `
		UPDATE wallets SET is_active = ?, updated_at = ? WHERE id = ?`

	queryListWalletUserIds = `
		SELECT user_id FROM wallets ORDER BY user_id`
)

// Currency account queries
const (
	accountColumns = `id, wallet_id, currency, balance, is_active, version, created_at, updated_at`

	queryInsertAccount = `
		INSERT INTO currency_accounts (` + accountColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetAccount = `
		SELECT ` + accountColumns + `
		FROM currency_accounts WHERE wallet_id = ? AND currency = ?`

	queryGetAccountById = `
		SELECT ` + accountColumns + `
		FROM currency_accounts WHERE id = ?`

	queryListAccounts = `
		SELECT ` + accountColumns + `
		FROM currency_accounts WHERE wallet_id = ? ORDER BY currency`

	queryListActiveAccounts = `
		SELECT ` + accountColumns + `
		FROM currency_accounts WHERE is_active = ? AND id > ? ORDER BY id LIMIT ?`

	queryUpdateAccountBalance = `
		UPDATE currency_accounts
		SET balance = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`
)

// Transaction queries
const (
	transactionColumns = `id, transaction_number, wallet_id, currency_account_id, user_id, amount, currency,
		direction, type, status, description, payment_reference_id, gateway_reference_id, gateway,
		order_context, related_transaction_id, is_credit, due_date, transaction_date, processed_at,
		created_at, updated_at`

	queryInsertTransaction = `
		INSERT INTO transactions (` + transactionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryUpdateTransaction = `
		UPDATE transactions
		SET status = ?, description = ?, payment_reference_id = ?, gateway_reference_id = ?, gateway = ?,
			processed_at = ?, updated_at = ?
		WHERE id = ? AND status = ?`

	queryGetTransactionById = `
		SELECT ` + transactionColumns + `
		FROM transactions WHERE id = ?`

	queryGetTransactionByReference = `
		SELECT ` + transactionColumns + `
		FROM transactions WHERE payment_reference_id = ?`

	queryListTransactions = `
		SELECT ` + transactionColumns + `
		FROM transactions WHERE currency_account_id = ?
		ORDER BY transaction_date DESC, transaction_number DESC
		LIMIT ? OFFSET ?`

	queryListStalePendingDeposits = `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE status = 'pending' AND type = 'deposit' AND created_at < ?
		ORDER BY created_at
		LIMIT ?`

	queryListRelatedRefunds = `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE related_transaction_id = ? AND type = 'refund'
		ORDER BY created_at`

	// Completed, balance-moving transactions of an account, oldest first.
	queryAccountTotals = `
		SELECT id, amount, direction
		FROM transactions
		WHERE currency_account_id = ? AND status = 'completed' AND is_credit = ?
		ORDER BY processed_at, transaction_number`
)

// Credit queries
const (
	creditColumns = `id, wallet_id, limit_amount, used_amount, currency, due_date, status, settled_at,
		settlement_ref, warned_at, version, created_at, updated_at`

	queryInsertCredit = `
		INSERT INTO credits (` + creditColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryUpdateCredit = `
		UPDATE credits
		SET used_amount = ?, status = ?, settled_at = ?, settlement_ref = ?, warned_at = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`

	queryGetCreditById = `
		SELECT ` + creditColumns + `
		FROM credits WHERE id = ?`

	queryListCredits = `
		SELECT ` + creditColumns + `
		FROM credits WHERE wallet_id = ? ORDER BY created_at`

	queryListCreditsByStatus = `
		SELECT ` + creditColumns + `
		FROM credits WHERE status = ? ORDER BY due_date LIMIT ?`
)

// Bank account queries
const (
	bankAccountColumns = `id, wallet_id, bank_name, account_number, iban, holder_name, is_active, created_at`

	queryInsertBankAccount = `
		INSERT INTO bank_accounts (` + bankAccountColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetBankAccount = `
		SELECT ` + bankAccountColumns + `
		FROM bank_accounts WHERE id = ?`

	queryListBankAccounts = `
		SELECT ` + bankAccountColumns + `
		FROM bank_accounts WHERE wallet_id = ? ORDER BY created_at`
)

// Snapshot queries
const (
	snapshotColumns = `id, account_id, balance, currency, snapshot_date, snapshot_type, transaction_id, created_at`

	queryInsertSnapshot = `
		INSERT INTO transaction_snapshots (` + snapshotColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	queryListSnapshots = `
		SELECT ` + snapshotColumns + `
		FROM transaction_snapshots WHERE account_id = ?
		ORDER BY snapshot_date DESC LIMIT ?`
)

// Outbox queries
const (
	outboxColumns = `id, event_type, aggregate_id, payload, occurred_at, status, attempts, next_attempt_at,
		last_error, created_at, dispatched_at`

	queryInsertOutboxEvent = `
		INSERT INTO outbox_events (` + outboxColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryDueOutboxEvents = `
		SELECT ` + outboxColumns + `
		FROM outbox_events
		WHERE status = 'pending' AND next_attempt_at <= ?`

	queryClaimOutboxEvent = `
		UPDATE outbox_events SET next_attempt_at = ?
		WHERE id = ? AND status = 'pending' AND next_attempt_at <= ?`

	queryMarkOutboxDispatched = `
		UPDATE outbox_events SET status = 'dispatched', dispatched_at = ?, last_error = ''
		WHERE id = ?`

	queryMarkOutboxFailed = `
		UPDATE outbox_events SET status = ?, attempts = ?, next_attempt_at = ?, last_error = ?
		WHERE id = ?`

	queryCountOutboxEvents = `
		SELECT COUNT(*) FROM outbox_events WHERE status = ?`
)
