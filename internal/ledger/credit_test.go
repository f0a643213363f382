package ledger

import (
	"testing"
	"time"

	"travel-wallet-go/internal/money"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testPolicy = CreditPolicy{
	MaxLimit:   money.MustNew("1000000", money.IRR),
	MinDueDays: 1,
	MaxDueDays: 90,
}

func TestAssignCreditRejectsSecondActive(t *testing.T) {
	w, err := NewWallet("user-1", testNow)
	require.NoError(t, err)

	_, err = w.AssignCredit(money.MustNew("5000", money.IRR), testNow.AddDate(0, 0, 30), testPolicy, testNow)
	require.NoError(t, err)

	_, err = w.AssignCredit(money.MustNew("1000", money.IRR), testNow.AddDate(0, 0, 30), testPolicy, testNow)
	assert.ErrorIs(t, err, ErrDuplicateCredit)
	assert.Len(t, w.Credits, 1)
}

func TestAssignCreditValidation(t *testing.T) {
	tests := []struct {
		name  string
		limit string
		due   time.Time
	}{
		{name: "zero limit", limit: "0", due: testNow.AddDate(0, 0, 30)},
		{name: "over max", limit: "2000000", due: testNow.AddDate(0, 0, 30)},
		{name: "due too soon", limit: "100", due: testNow.Add(time.Hour)},
		{name: "due too late", limit: "100", due: testNow.AddDate(0, 0, 120)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, _ := NewWallet("user-1", testNow)
			_, err := w.AssignCredit(money.MustNew(tt.limit, money.IRR), tt.due, testPolicy, testNow)
			assert.ErrorIs(t, err, ErrInvalidCreditAmount)
			assert.Empty(t, w.Credits)
		})
	}

	inactive, _ := NewWallet("user-2", testNow)
	inactive.IsActive = false
	_, err := inactive.AssignCredit(money.MustNew("100", money.IRR), testNow.AddDate(0, 0, 30), testPolicy, testNow)
	assert.ErrorIs(t, err, ErrWalletInactive)
}

func TestUseCredit(t *testing.T) {
	w, _ := NewWallet("user-1", testNow)
	c, err := w.AssignCredit(money.MustNew("1000", money.IRR), testNow.AddDate(0, 0, 30), testPolicy, testNow)
	require.NoError(t, err)

	require.NoError(t, c.Use(money.MustNew("700", money.IRR), testNow))
	assert.ErrorIs(t, c.Use(money.MustNew("301", money.IRR), testNow), ErrInsufficientCredit)
	assert.Equal(t, "700", c.UsedAmount.StringFixed())
	require.NoError(t, c.Use(money.MustNew("300", money.IRR), testNow))
	assert.True(t, c.Available().IsZero())

	require.NoError(t, c.Release(money.MustNew("200", money.IRR), testNow))
	assert.Equal(t, "200", c.Available().StringFixed())
	assert.ErrorIs(t, c.Use(money.MustNew("1", money.USD), testNow), ErrInvalidCreditAmount)
}

func TestCreditLifecycle(t *testing.T) {
	w, _ := NewWallet("user-1", testNow)
	due := testNow.AddDate(0, 0, 10)
	c, err := w.AssignCredit(money.MustNew("1000", money.IRR), due, testPolicy, testNow)
	require.NoError(t, err)
	c.PullEvents()

	assert.False(t, c.WarnDueSoon(3*24*time.Hour, testNow))
	assert.True(t, c.WarnDueSoon(3*24*time.Hour, due.Add(-48*time.Hour)))
	assert.False(t, c.WarnDueSoon(3*24*time.Hour, due.Add(-24*time.Hour)))

	assert.False(t, c.MarkOverdue(due.Add(-time.Minute)))
	assert.True(t, c.MarkOverdue(due.Add(time.Minute)))
	assert.Equal(t, CreditOverdue, c.Status)
	assert.ErrorIs(t, c.Use(money.MustNew("1", money.IRR), due), ErrInsufficientCredit)

	require.NoError(t, c.Settle("WIRE-1", due.AddDate(0, 0, 2)))
	assert.Equal(t, CreditSettled, c.Status)
	assert.ErrorIs(t, c.Settle("WIRE-2", due.AddDate(0, 0, 3)), ErrInvalidOperation)

	types := []EventType{}
	for _, e := range c.PullEvents() {
		types = append(types, e.Type)
	}
	assert.Equal(t, []EventType{EventCreditDueSoon, EventCreditOverdue, EventCreditSettled}, types)

	// a settled credit frees the slot for a new one
	_, err = w.AssignCredit(money.MustNew("1000", money.IRR), due.AddDate(0, 0, 30), testPolicy, due.AddDate(0, 0, 3))
	assert.NoError(t, err)
}

func TestNewBankAccountValidatesIban(t *testing.T) {
	b, err := NewBankAccount("wallet-1", "Bank Melli", "0101", "ir06 0170 0000 0012 3456 7890 01", "Sara Ahmadi", testNow)
	require.NoError(t, err)
	assert.Equal(t, "IR060170000000123456789001", b.Iban)
	assert.True(t, b.IsActive)

	_, err = NewBankAccount("wallet-1", "Bank Melli", "0101", "not-an-iban", "Sara Ahmadi", testNow)
	assert.ErrorIs(t, err, ErrInvalidBankAccount)
}

func TestDailySnapshotTruncatesToDay(t *testing.T) {
	a, _ := NewCurrencyAccount("wallet-1", money.IRR, testNow)
	s := NewSnapshot(a, SnapshotDaily, "", testNow)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), s.SnapshotDate)

	m := NewSnapshot(a, SnapshotManual, "tx-1", testNow)
	assert.Equal(t, testNow, m.SnapshotDate)
}
