package ledger

import (
	"fmt"
	"time"

	"travel-wallet-go/internal/money"

	"github.com/google/uuid"
)

type CreditStatus string

const (
	CreditActive  CreditStatus = "active"
	CreditSettled CreditStatus = "settled"
	CreditOverdue CreditStatus = "overdue"
)

// CreditPolicy bounds what can be assigned.
type CreditPolicy struct {
	MaxLimit   money.Money
	MinDueDays int
	MaxDueDays int
}

// Credit is a B2B spending line on a wallet, settled outside the gateway.
type Credit struct {
	Id            string
	WalletId      string
	Limit         money.Money
	UsedAmount    money.Money
	DueDate       time.Time
	Status        CreditStatus
	SettledAt     *time.Time
	SettlementRef string
	WarnedAt      *time.Time
	Version       int64
	CreatedAt     time.Time
	UpdatedAt     time.Time

	eventRecorder
}

func newCredit(walletId string, limit money.Money, dueDate time.Time, policy CreditPolicy, now time.Time) (*Credit, error) {
	if !limit.IsPositive() {
		return nil, fmt.Errorf("%w: limit must be greater than zero", ErrInvalidCreditAmount)
	}
	if policy.MaxLimit.Currency() == limit.Currency() && policy.MaxLimit.IsPositive() && policy.MaxLimit.LessThan(limit) {
		return nil, fmt.Errorf("%w: limit %s exceeds maximum %s", ErrInvalidCreditAmount, limit.String(), policy.MaxLimit.String())
	}
	now = now.UTC()
	dueDate = dueDate.UTC()
	earliest := now.AddDate(0, 0, policy.MinDueDays)
	if dueDate.Before(earliest) {
		return nil, fmt.Errorf("%w: due date must be on or after %s", ErrInvalidCreditAmount, earliest.Format(time.DateOnly))
	}
	if policy.MaxDueDays > 0 {
		latest := now.AddDate(0, 0, policy.MaxDueDays)
		if dueDate.After(latest) {
			return nil, fmt.Errorf("%w: due date must be on or before %s", ErrInvalidCreditAmount, latest.Format(time.DateOnly))
		}
	}
	c := &Credit{
		Id:         uuid.NewString(),
		WalletId:   walletId,
		Limit:      limit,
		UsedAmount: money.Zero(limit.Currency()),
		DueDate:    dueDate,
		Status:     CreditActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	c.record(EventCreditAssigned, c.Id, c.eventPayload(), now)
	return c, nil
}

// Available is the unused part of the limit.
func (c *Credit) Available() money.Money {
	avail, err := c.Limit.Sub(c.UsedAmount)
	if err != nil {
		return money.Zero(c.Limit.Currency())
	}
	return avail
}

// Use consumes amount from an active credit.
func (c *Credit) Use(amount money.Money, now time.Time) error {
	if c.Status != CreditActive {
		return fmt.Errorf("%w: credit is %s", ErrInsufficientCredit, c.Status)
	}
	if !amount.IsPositive() {
		return fmt.Errorf("%w: amount must be greater than zero", ErrInvalidCreditAmount)
	}
	if amount.Currency() != c.Limit.Currency() {
		return fmt.Errorf("%w: credit is in %s", ErrInvalidCreditAmount, c.Limit.Currency())
	}
	used, err := c.UsedAmount.Add(amount)
	if err != nil {
		return err
	}
	if c.Limit.LessThan(used) {
		return fmt.Errorf("%w: available %s, requested %s", ErrInsufficientCredit, c.Available().String(), amount.String())
	}
	c.UsedAmount = used
	c.UpdatedAt = now.UTC()
	return nil
}

// Release gives back previously used credit, for refunds of credit purchases.
func (c *Credit) Release(amount money.Money, now time.Time) error {
	used, err := c.UsedAmount.Sub(amount)
	if err != nil {
		return fmt.Errorf("%w: cannot release %s of %s used", ErrInvalidCreditAmount, amount.String(), c.UsedAmount.String())
	}
	c.UsedAmount = used
	c.UpdatedAt = now.UTC()
	return nil
}

// Settle closes an active or overdue credit.
func (c *Credit) Settle(reference string, now time.Time) error {
	if c.Status == CreditSettled {
		return fmt.Errorf("%w: credit already settled", ErrInvalidOperation)
	}
	now = now.UTC()
	c.Status = CreditSettled
	c.SettledAt = &now
	c.SettlementRef = reference
	c.UpdatedAt = now
	c.record(EventCreditSettled, c.Id, c.eventPayload(), now)
	return nil
}

// MarkOverdue flags an active credit whose due date has passed. It reports
// whether the status changed.
func (c *Credit) MarkOverdue(now time.Time) bool {
	if c.Status != CreditActive || !now.After(c.DueDate) {
		return false
	}
	c.Status = CreditOverdue
	c.UpdatedAt = now.UTC()
	c.record(EventCreditOverdue, c.Id, c.eventPayload(), now)
	return true
}

// WarnDueSoon records a single due-soon warning when the due date is within
// window. It reports whether a warning was raised.
func (c *Credit) WarnDueSoon(window time.Duration, now time.Time) bool {
	if c.Status != CreditActive || c.WarnedAt != nil {
		return false
	}
	if c.DueDate.Sub(now) > window || now.After(c.DueDate) {
		return false
	}
	now = now.UTC()
	c.WarnedAt = &now
	c.UpdatedAt = now
	c.record(EventCreditDueSoon, c.Id, c.eventPayload(), now)
	return true
}

func (c *Credit) eventPayload() map[string]string {
	return map[string]string{
		"credit_id":   c.Id,
		"wallet_id":   c.WalletId,
		"limit":       c.Limit.StringFixed(),
		"used_amount": c.UsedAmount.StringFixed(),
		"currency":    string(c.Limit.Currency()),
		"due_date":    c.DueDate.Format(time.RFC3339),
		"status":      string(c.Status),
	}
}
