package ledger

import (
	"testing"
	"time"

	"travel-wallet-go/internal/money"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAccount(t *testing.T, balance string) *CurrencyAccount {
	t.Helper()
	a, err := NewCurrencyAccount("wallet-1", money.IRR, testNow)
	require.NoError(t, err)
	a.Id = "account-1"
	a.Balance = money.MustNew(balance, money.IRR)
	return a
}

func TestProcessDeposit(t *testing.T) {
	a := newTestAccount(t, "0")
	tx, err := NewDeposit(testParams("600"))
	require.NoError(t, err)

	require.NoError(t, a.ProcessDeposit(tx, testNow))
	assert.Equal(t, "600", a.Balance.StringFixed())
	assert.Equal(t, StatusCompleted, tx.Status)

	// completed transactions cannot be applied twice
	assert.ErrorIs(t, a.ProcessDeposit(tx, testNow), ErrInvalidOperation)
	assert.Equal(t, "600", a.Balance.StringFixed())
}

func TestProcessPurchaseRejectsOverdraft(t *testing.T) {
	a := newTestAccount(t, "400")
	tx, err := NewPurchase(testParams("1000"))
	require.NoError(t, err)

	assert.ErrorIs(t, a.ProcessPurchase(tx, testNow), ErrInsufficientBalance)
	assert.Equal(t, "400", a.Balance.StringFixed())
	assert.Equal(t, StatusPending, tx.Status)

	ok, err := NewPurchase(testParams("400"))
	require.NoError(t, err)
	require.NoError(t, a.ProcessPurchase(ok, testNow))
	assert.True(t, a.Balance.IsZero())
}

func TestProcessRefundRequiresRefundType(t *testing.T) {
	a := newTestAccount(t, "0")
	dep, _ := NewDeposit(testParams("100"))
	assert.ErrorIs(t, a.ProcessRefund(dep, testNow), ErrInvalidTransaction)

	orig, _ := NewPurchase(testParams("100"))
	ref, err := NewRefund(testParams("100"), orig)
	require.NoError(t, err)
	require.NoError(t, a.ProcessRefund(ref, testNow))
	assert.Equal(t, "100", a.Balance.StringFixed())
}

func TestMutationGuards(t *testing.T) {
	a := newTestAccount(t, "1000")

	wrongDir, _ := NewDeposit(testParams("100"))
	assert.ErrorIs(t, a.ProcessPurchase(wrongDir, testNow), ErrInvalidTransaction)

	other := testParams("100")
	other.CurrencyAccountId = "account-2"
	foreign, _ := NewPurchase(other)
	assert.ErrorIs(t, a.ProcessPurchase(foreign, testNow), ErrInvalidTransaction)

	credit, _ := NewCreditPurchase(testParams("100"), testNow.Add(time.Hour))
	assert.ErrorIs(t, a.ProcessPurchase(credit, testNow), ErrInvalidTransaction)

	a.IsActive = false
	tx, _ := NewPurchase(testParams("100"))
	assert.ErrorIs(t, a.ProcessPurchase(tx, testNow), ErrInvalidCurrencyAccount)
	assert.Equal(t, "1000", a.Balance.StringFixed())
}

func TestNewCurrencyAccountRejectsUnknownCurrency(t *testing.T) {
	_, err := NewCurrencyAccount("wallet-1", money.Currency("XYZ"), testNow)
	assert.ErrorIs(t, err, ErrInvalidCurrencyAccount)
}
