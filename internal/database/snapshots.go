package database

import (
	"context"
	"database/sql"
	"fmt"

	"travel-wallet-go/internal/ledger"
	"travel-wallet-go/internal/store"
)

func (r *repo) InsertSnapshot(ctx context.Context, s *ledger.TransactionSnapshot) error {
	_, err := r.exec(ctx, queryInsertSnapshot,
		s.Id,
		s.AccountId,
		s.Balance.Amount().String(),
		string(s.Balance.Currency()),
		s.SnapshotDate.UTC(),
		string(s.Type),
		nullString(s.TransactionId),
		s.CreatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: snapshot for account %s on %s", store.ErrDuplicate, s.AccountId, s.SnapshotDate.Format("2006-01-02"))
		}
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}
	return nil
}

func (r *repo) ListSnapshots(ctx context.Context, accountId string, limit int) ([]*ledger.TransactionSnapshot, error) {
	rows, err := r.query(ctx, queryListSnapshots, accountId, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []*ledger.TransactionSnapshot
	for rows.Next() {
		var (
			s                    ledger.TransactionSnapshot
			balanceStr, currency string
			typ                  string
			txId                 sql.NullString
		)
		if err := rows.Scan(&s.Id, &s.AccountId, &balanceStr, &currency, &s.SnapshotDate, &typ, &txId, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		if s.Balance, err = parseMoney(balanceStr, currency); err != nil {
			return nil, err
		}
		s.Type = ledger.SnapshotType(typ)
		s.TransactionId = txId.String
		snapshots = append(snapshots, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshots: %w", err)
	}
	return snapshots, nil
}
