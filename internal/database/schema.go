package database

// schema is valid for both SQLite and Postgres. Amounts are stored as decimal
// strings so no precision is lost in either engine.
const schema = `
	CREATE TABLE IF NOT EXISTS wallets (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL UNIQUE,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS currency_accounts (
		id TEXT PRIMARY KEY,
		wallet_id TEXT NOT NULL REFERENCES wallets(id),
		currency TEXT NOT NULL,
		balance TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		version BIGINT NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		UNIQUE(wallet_id, currency)
	);

	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		transaction_number TEXT NOT NULL UNIQUE,
		wallet_id TEXT NOT NULL REFERENCES wallets(id),
		currency_account_id TEXT NOT NULL REFERENCES currency_accounts(id),
		user_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		direction TEXT NOT NULL,
		type TEXT NOT NULL,
		status TEXT NOT NULL,
		description TEXT NOT NULL,
		payment_reference_id TEXT,
		gateway_reference_id TEXT,
		gateway TEXT,
		order_context TEXT,
		related_transaction_id TEXT,
		is_credit BOOLEAN NOT NULL DEFAULT FALSE,
		due_date TIMESTAMP,
		transaction_date TIMESTAMP NOT NULL,
		processed_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_transactions_payment_reference
		ON transactions(payment_reference_id) WHERE payment_reference_id IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_transactions_account ON transactions(currency_account_id, status);
	CREATE INDEX IF NOT EXISTS idx_transactions_related ON transactions(related_transaction_id);
	CREATE INDEX IF NOT EXISTS idx_transactions_status_created ON transactions(status, created_at);

	CREATE TABLE IF NOT EXISTS credits (
		id TEXT PRIMARY KEY,
		wallet_id TEXT NOT NULL REFERENCES wallets(id),
		limit_amount TEXT NOT NULL,
		used_amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		due_date TIMESTAMP NOT NULL,
		status TEXT NOT NULL,
		settled_at TIMESTAMP,
		settlement_ref TEXT,
		warned_at TIMESTAMP,
		version BIGINT NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	-- at most one active credit per wallet
	CREATE UNIQUE INDEX IF NOT EXISTS idx_credits_one_active
		ON credits(wallet_id) WHERE status = 'active';
	CREATE INDEX IF NOT EXISTS idx_credits_status_due ON credits(status, due_date);

	CREATE TABLE IF NOT EXISTS bank_accounts (
		id TEXT PRIMARY KEY,
		wallet_id TEXT NOT NULL REFERENCES wallets(id),
		bank_name TEXT NOT NULL,
		account_number TEXT NOT NULL,
		iban TEXT NOT NULL,
		holder_name TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMP NOT NULL,
		UNIQUE(wallet_id, iban)
	);

	CREATE TABLE IF NOT EXISTS transaction_snapshots (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL REFERENCES currency_accounts(id),
		balance TEXT NOT NULL,
		currency TEXT NOT NULL,
		snapshot_date TIMESTAMP NOT NULL,
		snapshot_type TEXT NOT NULL,
		transaction_id TEXT,
		created_at TIMESTAMP NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_snapshots_daily
		ON transaction_snapshots(account_id, snapshot_date) WHERE snapshot_type = 'daily';

	CREATE TABLE IF NOT EXISTS outbox_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload TEXT NOT NULL,
		occurred_at TIMESTAMP NOT NULL,
		status TEXT NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		next_attempt_at TIMESTAMP NOT NULL,
		last_error TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		dispatched_at TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_outbox_due ON outbox_events(status, next_attempt_at);
`
