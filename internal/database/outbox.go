package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"travel-wallet-go/internal/ledger"
	"travel-wallet-go/internal/store"

	"github.com/google/uuid"
)

// AppendEvents writes events to the outbox and returns their ids.
func (r *repo) AppendEvents(ctx context.Context, events []ledger.Event) ([]string, error) {
	ids := make([]string, 0, len(events))
	for _, e := range events {
		payload, err := json.Marshal(e.Payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s payload: %w", e.Type, err)
		}
		id := uuid.NewString()
		occurred := e.OccurredAt.UTC()
		_, err = r.exec(ctx, queryInsertOutboxEvent,
			id, string(e.Type), e.AggregateId, string(payload), occurred,
			string(store.OutboxPending), 0, occurred, "", occurred, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to append %s event: %w", e.Type, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// ClaimEvents leases due events by pushing next_attempt_at forward. The
// conditional update means two dispatchers never claim the same event within
// one lease.
func (r *repo) ClaimEvents(ctx context.Context, ids []string, now time.Time, lease time.Duration, limit int) ([]store.OutboxEvent, error) {
	now = now.UTC()
	query := queryDueOutboxEvents
	args := []any{now}
	if len(ids) > 0 {
		query += " AND id IN (" + placeholders(len(ids)) + ")"
		for _, id := range ids {
			args = append(args, id)
		}
	}
	query += " ORDER BY created_at LIMIT ?"
	args = append(args, limit)

	rows, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query due events: %w", err)
	}
	candidates, err := collectOutboxEvents(rows)
	if err != nil {
		return nil, err
	}

	claimed := make([]store.OutboxEvent, 0, len(candidates))
	leaseUntil := now.Add(lease)
	for _, e := range candidates {
		res, err := r.exec(ctx, queryClaimOutboxEvent, leaseUntil, e.Id, now)
		if err != nil {
			return nil, fmt.Errorf("failed to claim event %s: %w", e.Id, err)
		}
		if expectOneRow(res) != nil {
			continue
		}
		e.NextAttemptAt = leaseUntil
		claimed = append(claimed, e)
	}
	return claimed, nil
}

func (r *repo) MarkEventDispatched(ctx context.Context, eventId string, at time.Time) error {
	_, err := r.exec(ctx, queryMarkOutboxDispatched, at.UTC(), eventId)
	if err != nil {
		return fmt.Errorf("failed to mark event dispatched: %w", err)
	}
	return nil
}

func (r *repo) MarkEventFailed(ctx context.Context, eventId string, attempts int, nextAttemptAt time.Time, lastError string, dead bool) error {
	status := store.OutboxPending
	if dead {
		status = store.OutboxDead
	}
	_, err := r.exec(ctx, queryMarkOutboxFailed, string(status), attempts, nextAttemptAt.UTC(), lastError, eventId)
	if err != nil {
		return fmt.Errorf("failed to mark event failed: %w", err)
	}
	return nil
}

func (r *repo) CountEvents(ctx context.Context, status store.OutboxStatus) (int, error) {
	var n int
	if err := r.queryRow(ctx, queryCountOutboxEvents, string(status)).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return n, nil
}

func collectOutboxEvents(rows *sql.Rows) ([]store.OutboxEvent, error) {
	defer rows.Close()

	var events []store.OutboxEvent
	for rows.Next() {
		var (
			e            store.OutboxEvent
			typ, payload string
			status       string
			dispatchedAt sql.NullTime
		)
		err := rows.Scan(&e.Id, &typ, &e.Event.AggregateId, &payload, &e.Event.OccurredAt, &status,
			&e.Attempts, &e.NextAttemptAt, &e.LastError, &e.CreatedAt, &dispatchedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox event: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &e.Event.Payload); err != nil {
			return nil, fmt.Errorf("failed to decode payload of event %s: %w", e.Id, err)
		}
		e.Event.Type = ledger.EventType(typ)
		e.Status = store.OutboxStatus(status)
		e.DispatchedAt = timePtr(dispatchedAt)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outbox events: %w", err)
	}
	return events, nil
}
