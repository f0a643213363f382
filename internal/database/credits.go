package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"travel-wallet-go/internal/ledger"
	"travel-wallet-go/internal/store"
)

func (r *repo) InsertCredit(ctx context.Context, c *ledger.Credit) error {
	if c.Version == 0 {
		c.Version = 1
	}
	_, err := r.exec(ctx, queryInsertCredit,
		c.Id,
		c.WalletId,
		c.Limit.Amount().String(),
		c.UsedAmount.Amount().String(),
		string(c.Limit.Currency()),
		c.DueDate.UTC(),
		string(c.Status),
		nullTime(c.SettledAt),
		nullString(c.SettlementRef),
		nullTime(c.WarnedAt),
		c.Version,
		c.CreatedAt.UTC(),
		c.UpdatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: active credit for wallet %s", store.ErrDuplicate, c.WalletId)
		}
		return fmt.Errorf("failed to insert credit: %w", err)
	}
	return nil
}

func (r *repo) UpdateCredit(ctx context.Context, c *ledger.Credit) error {
	res, err := r.exec(ctx, queryUpdateCredit,
		c.UsedAmount.Amount().String(),
		string(c.Status),
		nullTime(c.SettledAt),
		nullString(c.SettlementRef),
		nullTime(c.WarnedAt),
		c.UpdatedAt.UTC(),
		c.Id,
		c.Version,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: active credit for wallet %s", store.ErrDuplicate, c.WalletId)
		}
		return fmt.Errorf("failed to update credit: %w", err)
	}
	if err := expectOneRow(res); err != nil {
		return err
	}
	c.Version++
	return nil
}

func (r *repo) GetCreditById(ctx context.Context, creditId string) (*ledger.Credit, error) {
	return scanCredit(r.queryRow(ctx, queryGetCreditById, creditId))
}

func (r *repo) ListCredits(ctx context.Context, walletId string) ([]*ledger.Credit, error) {
	rows, err := r.query(ctx, queryListCredits, walletId)
	if err != nil {
		return nil, fmt.Errorf("failed to query credits: %w", err)
	}
	return collectCredits(rows)
}

func (r *repo) ListCreditsByStatus(ctx context.Context, status ledger.CreditStatus, limit int) ([]*ledger.Credit, error) {
	rows, err := r.query(ctx, queryListCreditsByStatus, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query credits by status: %w", err)
	}
	return collectCredits(rows)
}

func collectCredits(rows *sql.Rows) ([]*ledger.Credit, error) {
	defer rows.Close()

	var credits []*ledger.Credit
	for rows.Next() {
		c, err := scanCredit(rows)
		if err != nil {
			return nil, err
		}
		credits = append(credits, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating credits: %w", err)
	}
	return credits, nil
}

func scanCredit(s scanner) (*ledger.Credit, error) {
	var (
		c                           ledger.Credit
		limitStr, usedStr, currency string
		status                      string
		settledAt, warnedAt         sql.NullTime
		settlementRef               sql.NullString
	)
	err := s.Scan(&c.Id, &c.WalletId, &limitStr, &usedStr, &currency, &c.DueDate, &status,
		&settledAt, &settlementRef, &warnedAt, &c.Version, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan credit: %w", err)
	}
	if c.Limit, err = parseMoney(limitStr, currency); err != nil {
		return nil, err
	}
	if c.UsedAmount, err = parseMoney(usedStr, currency); err != nil {
		return nil, err
	}
	c.Status = ledger.CreditStatus(status)
	c.SettledAt = timePtr(settledAt)
	c.WarnedAt = timePtr(warnedAt)
	c.SettlementRef = settlementRef.String
	c.DueDate = c.DueDate.UTC()
	return &c, nil
}
