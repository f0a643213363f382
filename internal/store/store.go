package store

import (
	"context"
	"errors"
	"time"

	"travel-wallet-go/internal/ledger"
	"travel-wallet-go/internal/money"

	"github.com/shopspring/decimal"
)

// Sentinel errors shared across all backend implementations.
var (
	ErrNotFound               = errors.New("record not found")
	ErrDuplicate              = errors.New("duplicate record")
	ErrConcurrentModification = errors.New("concurrent modification detected")
)

type OutboxStatus string

const (
	OutboxPending    OutboxStatus = "pending"
	OutboxDispatched OutboxStatus = "dispatched"
	OutboxDead       OutboxStatus = "dead"
)

// OutboxEvent is a domain event waiting for (or done with) delivery.
type OutboxEvent struct {
	Id            string
	Event         ledger.Event
	Status        OutboxStatus
	Attempts      int
	NextAttemptAt time.Time
	LastError     string
	CreatedAt     time.Time
	DispatchedAt  *time.Time
}

// AccountTotals is the completed, non-credit transaction volume of an account.
type AccountTotals struct {
	In                decimal.Decimal
	Out               decimal.Decimal
	LastTransactionId string
}

// Expected returns the balance implied by the transaction log.
func (t AccountTotals) Expected() decimal.Decimal {
	return t.In.Sub(t.Out)
}

// Repository is the set of persistence operations, usable both on the plain
// connection and inside ExecuteInTransaction.
type Repository interface {
	// --- Wallets ---
	CreateWallet(ctx context.Context, w *ledger.Wallet) error
	GetWalletById(ctx context.Context, walletId string) (*ledger.Wallet, error)
	GetWalletByUserId(ctx context.Context, userId string) (*ledger.Wallet, error)
	SetWalletActive(ctx context.Context, walletId string, active bool, at time.Time) error
	ListWalletUserIds(ctx context.Context) ([]string, error)

	// --- Currency accounts ---
	CreateCurrencyAccount(ctx context.Context, a *ledger.CurrencyAccount) error
	GetCurrencyAccount(ctx context.Context, walletId string, currency money.Currency) (*ledger.CurrencyAccount, error)
	GetCurrencyAccountById(ctx context.Context, accountId string) (*ledger.CurrencyAccount, error)
	ListCurrencyAccounts(ctx context.Context, walletId string) ([]*ledger.CurrencyAccount, error)
	ListActiveCurrencyAccounts(ctx context.Context, afterId string, limit int) ([]*ledger.CurrencyAccount, error)
	// UpdateAccountBalance persists a.Balance if a.Version still matches the
	// stored row and bumps a.Version. Returns ErrConcurrentModification otherwise.
	UpdateAccountBalance(ctx context.Context, a *ledger.CurrencyAccount) error

	// --- Transactions ---
	InsertTransaction(ctx context.Context, t *ledger.Transaction) error
	// UpdateTransaction persists mutable fields if the stored status is still
	// expected. Returns ErrConcurrentModification otherwise.
	UpdateTransaction(ctx context.Context, t *ledger.Transaction, expected ledger.TransactionStatus) error
	GetTransactionById(ctx context.Context, transactionId string) (*ledger.Transaction, error)
	GetTransactionByPaymentReference(ctx context.Context, reference string) (*ledger.Transaction, error)
	ListTransactions(ctx context.Context, accountId string, limit, offset int) ([]*ledger.Transaction, error)
	ListStalePendingDeposits(ctx context.Context, olderThan time.Time, limit int) ([]*ledger.Transaction, error)
	ListRelatedRefunds(ctx context.Context, originalId string) ([]*ledger.Transaction, error)
	GetAccountTotals(ctx context.Context, accountId string) (AccountTotals, error)

	// --- Credits ---
	InsertCredit(ctx context.Context, c *ledger.Credit) error
	// UpdateCredit uses the same optimistic version check as UpdateAccountBalance.
	UpdateCredit(ctx context.Context, c *ledger.Credit) error
	GetCreditById(ctx context.Context, creditId string) (*ledger.Credit, error)
	ListCredits(ctx context.Context, walletId string) ([]*ledger.Credit, error)
	ListCreditsByStatus(ctx context.Context, status ledger.CreditStatus, limit int) ([]*ledger.Credit, error)

	// --- Bank accounts ---
	InsertBankAccount(ctx context.Context, b *ledger.BankAccount) error
	GetBankAccount(ctx context.Context, bankAccountId string) (*ledger.BankAccount, error)
	ListBankAccounts(ctx context.Context, walletId string) ([]*ledger.BankAccount, error)

	// --- Snapshots ---
	// InsertSnapshot returns ErrDuplicate for a second daily snapshot of the same account and day.
	InsertSnapshot(ctx context.Context, s *ledger.TransactionSnapshot) error
	ListSnapshots(ctx context.Context, accountId string, limit int) ([]*ledger.TransactionSnapshot, error)

	// --- Outbox ---
	AppendEvents(ctx context.Context, events []ledger.Event) ([]string, error)
	// ClaimEvents leases pending events whose next attempt is due. When ids is
	// non-empty only those events are considered.
	ClaimEvents(ctx context.Context, ids []string, now time.Time, lease time.Duration, limit int) ([]OutboxEvent, error)
	MarkEventDispatched(ctx context.Context, eventId string, at time.Time) error
	MarkEventFailed(ctx context.Context, eventId string, attempts int, nextAttemptAt time.Time, lastError string, dead bool) error
	CountEvents(ctx context.Context, status OutboxStatus) (int, error)
}

// LedgerStore defines the contract that every backend (SQLite, Postgres) must satisfy.
type LedgerStore interface {
	Repository

	// ExecuteInTransaction runs fn in one database transaction. The transaction
	// is rolled back if fn returns an error or panics.
	ExecuteInTransaction(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error

	// --- Lifecycle ---
	Close()
}
