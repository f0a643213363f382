package api

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"travel-wallet-go/internal/database"
	"travel-wallet-go/internal/gateway"
	"travel-wallet-go/internal/ledger"
	"travel-wallet-go/internal/lock"
	"travel-wallet-go/internal/models"
	"travel-wallet-go/internal/outbox"
	"travel-wallet-go/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeOrders struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeOrders) CompleteOrder(_ context.Context, orderId string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, orderId)
	return true, nil
}

func (f *fakeOrders) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type env struct {
	svc     *WalletService
	db      *database.Service
	sandbox *gateway.Sandbox
	clock   *clock
	orders  *fakeOrders
	events  *eventLog
}

type eventLog struct {
	mu     sync.Mutex
	events []ledger.Event
}

func (l *eventLog) Handle(_ context.Context, e ledger.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
	return nil
}

func (l *eventLog) Types() []ledger.EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]ledger.EventType, 0, len(l.events))
	for _, e := range l.events {
		out = append(out, e.Type)
	}
	return out
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db, err := database.NewService(context.Background(), models.DatabaseConfig{
		Driver:       "sqlite3",
		Path:         ":memory:",
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		PingTimeout:  time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(db.Close)

	clk := &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	sb := gateway.NewSandbox("", false)
	registry := gateway.NewRegistry(gateway.SandboxName, 100*time.Millisecond)
	registry.Register(sb)

	orders := &fakeOrders{}
	events := &eventLog{}
	d := outbox.NewDispatcher(db, outbox.Options{Clock: clk.Now})
	d.Subscribe(events)
	d.Subscribe(outbox.NewOrderCompletionHandler(orders), ledger.EventOrderCompletionRequested)

	svc := NewWalletService(db, lock.NewMemoryLocker(), registry, d, Options{
		Clock:       clk.Now,
		CallbackURL: "https://wallet.example.com/api/v1/payments/callback",
	})
	return &env{svc: svc, db: db, sandbox: sb, clock: clk, orders: orders, events: events}
}

func irr(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

// fund tops the user's IRR account up through a paid gateway deposit.
func (e *env) fund(t *testing.T, userId string, amount int64) {
	t.Helper()
	ctx := context.Background()
	_, err := e.svc.EnsureWallet(ctx, userId)
	require.NoError(t, err)
	if amount == 0 {
		return
	}
	dep, err := e.svc.Deposit(ctx, models.DepositRequest{UserId: userId, Amount: irr(amount), Currency: "IRR"})
	require.NoError(t, err)
	require.NoError(t, e.sandbox.Pay(dep.Authority))
	_, err = e.svc.ProcessPaymentCallback(ctx, models.CallbackRequest{Authority: dep.Authority, Status: "OK"})
	require.NoError(t, err)
}

func (e *env) balance(t *testing.T, userId string) decimal.Decimal {
	t.Helper()
	balances, err := e.svc.GetBalances(context.Background(), userId)
	require.NoError(t, err)
	for _, b := range balances {
		if b.Currency == "IRR" {
			return b.Balance
		}
	}
	return decimal.Zero
}

func (e *env) assertReconciled(t *testing.T, userId string) {
	t.Helper()
	results, err := e.svc.ReconcileWallet(context.Background(), userId)
	require.NoError(t, err)
	for _, r := range results {
		assert.True(t, r.Matches, "account %s balance %s expected %s", r.AccountId, r.Balance, r.Expected)
	}
}

func purchase(userId, orderId string, amount int64) models.PurchaseRequest {
	return models.PurchaseRequest{
		UserId:      userId,
		TotalAmount: irr(amount),
		Currency:    "IRR",
		OrderId:     orderId,
		Description: "Flight booking",
	}
}

func TestEnsureWalletIsIdempotent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	w1, err := e.svc.EnsureWallet(ctx, "user-1")
	require.NoError(t, err)
	w2, err := e.svc.EnsureWallet(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, w1.Id, w2.Id)
	assert.Contains(t, e.events.Types(), ledger.EventWalletCreated)
}

func TestEnsureWalletConcurrentCreate(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	const callers = 8
	ids := make([]string, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			w, err := e.svc.EnsureWallet(ctx, "user-1")
			errs[i] = err
			if err == nil {
				ids[i] = w.Id
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
	created := 0
	for _, typ := range e.events.Types() {
		if typ == ledger.EventWalletCreated {
			created++
		}
	}
	assert.Equal(t, 1, created)
}

func TestPurchaseWithEmptyWalletRequiresFullPayment(t *testing.T) {
	e := newEnv(t)
	e.fund(t, "user-1", 0)

	res, err := e.svc.IntegratedPurchase(context.Background(), purchase("user-1", "order-1", 1000))
	require.NoError(t, err)

	assert.Equal(t, models.PurchaseFullPayment, res.PurchaseType)
	assert.NotEmpty(t, res.PaymentUrl)
	assert.NotEmpty(t, res.Authority)
	assert.True(t, res.RequiredPayment.Equal(irr(1000)))
	assert.True(t, res.WalletPortion.IsZero())
	assert.True(t, e.balance(t, "user-1").IsZero())
	assert.Empty(t, e.orders.Calls())
}

func TestPurchaseFromWalletBalance(t *testing.T) {
	e := newEnv(t)
	e.fund(t, "user-1", 1500)

	res, err := e.svc.IntegratedPurchase(context.Background(), purchase("user-1", "order-2", 1000))
	require.NoError(t, err)

	assert.Equal(t, models.PurchaseFullWallet, res.PurchaseType)
	assert.Empty(t, res.PaymentUrl)
	assert.True(t, res.WalletBalance.Equal(irr(500)))
	assert.True(t, e.balance(t, "user-1").Equal(irr(500)))

	tx, err := e.db.GetTransactionById(context.Background(), res.PurchaseTransactionId)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusCompleted, tx.Status)
	assert.Equal(t, "order-2", tx.OrderContext)
	assert.Equal(t, []string{"order-2"}, e.orders.Calls())
	e.assertReconciled(t, "user-1")
}

func TestMixedPurchaseSplitsWalletAndGateway(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.fund(t, "user-1", 400)

	res, err := e.svc.IntegratedPurchase(ctx, purchase("user-1", "order-3", 1000))
	require.NoError(t, err)

	assert.Equal(t, models.PurchaseMixed, res.PurchaseType)
	assert.True(t, res.WalletPortion.Equal(irr(400)))
	assert.True(t, res.RequiredPayment.Equal(irr(600)))
	assert.True(t, res.WalletPortion.Add(res.RequiredPayment).Equal(res.TotalAmount))
	assert.NotEmpty(t, res.PaymentUrl)
	assert.True(t, e.balance(t, "user-1").IsZero())

	deposit, err := e.db.GetTransactionByPaymentReference(ctx, res.Authority)
	require.NoError(t, err)
	assert.Equal(t, res.PaymentTransactionId, deposit.Id)
	assert.Equal(t, ledger.StatusPending, deposit.Status)
	assert.Equal(t, "order-3", deposit.OrderContext)
	assert.Equal(t, res.PurchaseTransactionId, deposit.RelatedTransactionId)
	assert.True(t, deposit.Amount.Amount().Equal(irr(600)))
	e.assertReconciled(t, "user-1")
}

func TestDuplicateCallbackCreditsOnce(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.fund(t, "user-1", 400)

	res, err := e.svc.IntegratedPurchase(ctx, purchase("user-1", "order-4", 1000))
	require.NoError(t, err)
	require.NoError(t, e.sandbox.Pay(res.Authority))

	amount := irr(600)
	req := models.CallbackRequest{Authority: res.Authority, Status: "OK", Amount: &amount, Gateway: gateway.SandboxName}
	first, err := e.svc.ProcessPaymentCallback(ctx, req)
	require.NoError(t, err)
	assert.True(t, first.Verified)
	assert.Equal(t, res.PaymentTransactionId, first.TransactionId)

	second, err := e.svc.ProcessPaymentCallback(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.Verified)
	assert.Equal(t, first.TransactionId, second.TransactionId)
	assert.True(t, first.NewBalance.Equal(*second.NewBalance))

	deposit, err := e.db.GetTransactionById(ctx, res.PaymentTransactionId)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusCompleted, deposit.Status)
	assert.NotEmpty(t, deposit.GatewayReferenceId)

	// the 600 credit is settled against the order by a linked purchase
	history, err := e.svc.ListTransactions(ctx, "user-1", "IRR", 50, 0)
	require.NoError(t, err)
	var settlements int
	for _, r := range history {
		if r.Type == string(ledger.TypePurchase) && r.RelatedTransactionId == deposit.Id {
			settlements++
			assert.True(t, r.Amount.Equal(irr(600)))
		}
	}
	assert.Equal(t, 1, settlements)
	assert.True(t, e.balance(t, "user-1").IsZero())
	assert.Equal(t, []string{"order-4"}, e.orders.Calls())
	e.assertReconciled(t, "user-1")
}

func TestTopUpCallbackCreditsWallet(t *testing.T) {
	e := newEnv(t)
	e.fund(t, "user-1", 750)
	assert.True(t, e.balance(t, "user-1").Equal(irr(750)))
	e.assertReconciled(t, "user-1")
}

func TestCallbackUnknownAuthority(t *testing.T) {
	e := newEnv(t)
	_, err := e.svc.ProcessPaymentCallback(context.Background(), models.CallbackRequest{Authority: "SBX-missing", Status: "OK"})
	assert.ErrorIs(t, err, ledger.ErrPaymentNotFound)
}

func TestCallbackNotOKReleasesWalletPortion(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.fund(t, "user-1", 400)

	res, err := e.svc.IntegratedPurchase(ctx, purchase("user-1", "order-5", 1000))
	require.NoError(t, err)

	_, err = e.svc.ProcessPaymentCallback(ctx, models.CallbackRequest{Authority: res.Authority, Status: "NOK"})
	assert.ErrorIs(t, err, ledger.ErrPaymentVerificationFailed)

	deposit, err := e.db.GetTransactionById(ctx, res.PaymentTransactionId)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusFailed, deposit.Status)
	assert.True(t, e.balance(t, "user-1").Equal(irr(400)))
	assert.Contains(t, e.events.Types(), ledger.EventRefundCompleted)
	e.assertReconciled(t, "user-1")

	// failure is terminal
	_, err = e.svc.ProcessPaymentCallback(ctx, models.CallbackRequest{Authority: res.Authority, Status: "OK"})
	assert.ErrorIs(t, err, ledger.ErrPaymentVerificationFailed)
	assert.True(t, e.balance(t, "user-1").Equal(irr(400)))
}

func TestCallbackAmountMismatch(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.fund(t, "user-1", 400)

	res, err := e.svc.IntegratedPurchase(ctx, purchase("user-1", "order-6", 1000))
	require.NoError(t, err)
	require.NoError(t, e.sandbox.Pay(res.Authority))

	wrong := irr(500)
	_, err = e.svc.ProcessPaymentCallback(ctx, models.CallbackRequest{Authority: res.Authority, Status: "OK", Amount: &wrong})
	assert.ErrorIs(t, err, ledger.ErrAmountMismatch)
	assert.True(t, e.balance(t, "user-1").Equal(irr(400)))
	e.assertReconciled(t, "user-1")
}

func TestCallbackVerifiesBeforeComparingAmount(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.fund(t, "user-1", 400)

	res, err := e.svc.IntegratedPurchase(ctx, purchase("user-1", "order-6b", 1000))
	require.NoError(t, err)

	// still unpaid at the gateway, so the supplied amount is never looked at
	wrong := irr(500)
	_, err = e.svc.ProcessPaymentCallback(ctx, models.CallbackRequest{Authority: res.Authority, Status: "OK", Amount: &wrong})
	assert.ErrorIs(t, err, ledger.ErrPaymentVerificationFailed)
	assert.NotErrorIs(t, err, ledger.ErrAmountMismatch)
	assert.True(t, e.balance(t, "user-1").Equal(irr(400)))
	e.assertReconciled(t, "user-1")
}

func TestCallbackVerifiedAmountMismatch(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.fund(t, "user-1", 0)

	res, err := e.svc.IntegratedPurchase(ctx, purchase("user-1", "order-7", 1000))
	require.NoError(t, err)
	require.NoError(t, e.sandbox.PayAmount(res.Authority, irr(10)))

	_, err = e.svc.ProcessPaymentCallback(ctx, models.CallbackRequest{Authority: res.Authority, Status: "OK"})
	assert.ErrorIs(t, err, ledger.ErrAmountMismatch)
	assert.True(t, e.balance(t, "user-1").IsZero())
}

func TestCallbackUnpaidIsNotVerified(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.fund(t, "user-1", 0)

	res, err := e.svc.IntegratedPurchase(ctx, purchase("user-1", "order-8", 1000))
	require.NoError(t, err)

	_, err = e.svc.ProcessPaymentCallback(ctx, models.CallbackRequest{Authority: res.Authority, Status: "OK"})
	assert.ErrorIs(t, err, ledger.ErrPaymentVerificationFailed)
	deposit, err := e.db.GetTransactionById(ctx, res.PaymentTransactionId)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusFailed, deposit.Status)
}

func TestMixedPurchaseGatewayFailureRestoresBalance(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.fund(t, "user-1", 400)

	e.sandbox.FailCreate(errors.New("dial tcp 10.12.0.7:8443: connect: connection refused"))
	_, err := e.svc.IntegratedPurchase(ctx, purchase("user-1", "order-9", 1000))
	assert.ErrorIs(t, err, ledger.ErrPaymentGateway)
	assert.NotContains(t, err.Error(), "10.12.0.7")
	e.sandbox.FailCreate(nil)

	assert.True(t, e.balance(t, "user-1").Equal(irr(400)))
	e.assertReconciled(t, "user-1")

	history, err := e.svc.ListTransactions(ctx, "user-1", "IRR", 50, 0)
	require.NoError(t, err)
	var failed, refunds int
	for _, r := range history {
		if r.Type == string(ledger.TypeDeposit) && r.Status == string(ledger.StatusFailed) {
			failed++
			assert.NotContains(t, r.Description, "10.12.0.7")
		}
		if r.Type == string(ledger.TypeRefund) {
			refunds++
			assert.True(t, r.Amount.Equal(irr(400)))
		}
	}
	assert.Equal(t, 1, failed)
	assert.Equal(t, 1, refunds)
	assert.Empty(t, e.orders.Calls())
}

func TestMixedPurchaseGatewayTimeoutRestoresBalance(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.fund(t, "user-1", 400)

	e.sandbox.SetDelay(time.Second)
	_, err := e.svc.IntegratedPurchase(ctx, purchase("user-1", "order-10", 1000))
	e.sandbox.SetDelay(0)
	assert.ErrorIs(t, err, ledger.ErrPaymentGateway)

	assert.True(t, e.balance(t, "user-1").Equal(irr(400)))
	e.assertReconciled(t, "user-1")
}

func TestConcurrentPurchasesNeverOverdraw(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.fund(t, "user-1", 1000)

	const workers = 10
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = map[models.PurchaseType]int{}
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := e.svc.IntegratedPurchase(ctx, purchase("user-1", "order-c"+string(rune('a'+i)), 300))
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			results[res.PurchaseType]++
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 3, results[models.PurchaseFullWallet])
	assert.Equal(t, 1, results[models.PurchaseMixed])
	assert.Equal(t, 6, results[models.PurchaseFullPayment])
	assert.True(t, e.balance(t, "user-1").IsZero())
	e.assertReconciled(t, "user-1")
}

func TestInactiveWalletRejectsPurchase(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.fund(t, "user-1", 1000)
	require.NoError(t, e.svc.DeactivateWallet(ctx, "user-1"))

	_, err := e.svc.IntegratedPurchase(ctx, purchase("user-1", "order-11", 100))
	assert.ErrorIs(t, err, ledger.ErrWalletInactive)

	require.NoError(t, e.svc.ActivateWallet(ctx, "user-1"))
	_, err = e.svc.IntegratedPurchase(ctx, purchase("user-1", "order-11", 100))
	assert.NoError(t, err)
}

func TestPurchaseValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.fund(t, "user-1", 0)

	_, err := e.svc.IntegratedPurchase(ctx, purchase("user-1", "order-12", 0))
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)

	req := purchase("user-1", "order-12", 100)
	req.Currency = "XXX"
	_, err = e.svc.IntegratedPurchase(ctx, req)
	assert.ErrorIs(t, err, ledger.ErrInvalidCurrencyAccount)

	_, err = e.svc.IntegratedPurchase(ctx, purchase("nobody", "order-12", 100))
	assert.ErrorIs(t, err, ledger.ErrWalletNotFound)
}

func TestRefundBounds(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.fund(t, "user-1", 1000)

	res, err := e.svc.IntegratedPurchase(ctx, purchase("user-1", "order-13", 600))
	require.NoError(t, err)

	refund := func(amount int64) (*models.RefundResult, error) {
		return e.svc.RefundOrder(ctx, models.OrderRefundRequest{
			UserId:        "user-1",
			TransactionId: res.PurchaseTransactionId,
			Amount:        irr(amount),
			Reason:        "cancelled",
		})
	}

	r, err := refund(400)
	require.NoError(t, err)
	assert.True(t, r.RemainingRefundable.Equal(irr(200)))
	assert.True(t, r.NewBalance.Equal(irr(800)))

	_, err = refund(300)
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)

	r, err = refund(200)
	require.NoError(t, err)
	assert.True(t, r.RemainingRefundable.IsZero())

	_, err = refund(1)
	assert.ErrorIs(t, err, ledger.ErrTransactionNotRefundable)

	assert.True(t, e.balance(t, "user-1").Equal(irr(1000)))
	assert.Contains(t, e.events.Types(), ledger.EventRefundInitiated)
	e.assertReconciled(t, "user-1")
}

func TestRefundOutsideWindowRejected(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.fund(t, "user-1", 1000)

	res, err := e.svc.IntegratedPurchase(ctx, purchase("user-1", "order-14", 600))
	require.NoError(t, err)

	e.clock.Advance(40 * 24 * time.Hour)
	_, err = e.svc.RefundOrder(ctx, models.OrderRefundRequest{
		UserId:        "user-1",
		TransactionId: res.PurchaseTransactionId,
		Amount:        irr(100),
	})
	assert.ErrorIs(t, err, ledger.ErrTransactionNotRefundable)
	assert.True(t, e.balance(t, "user-1").Equal(irr(400)))
}

func TestRefundOfAnotherUsersTransaction(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.fund(t, "user-1", 1000)
	e.fund(t, "user-2", 0)

	res, err := e.svc.IntegratedPurchase(ctx, purchase("user-1", "order-15", 600))
	require.NoError(t, err)

	_, err = e.svc.RefundOrder(ctx, models.OrderRefundRequest{
		UserId:        "user-2",
		TransactionId: res.PurchaseTransactionId,
		Amount:        irr(100),
	})
	assert.ErrorIs(t, err, ledger.ErrTransactionNotFound)
}

func TestAssignCreditOnlyOnce(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.fund(t, "user-1", 0)
	due := e.clock.Now().AddDate(0, 0, 30)

	_, err := e.svc.AssignCredit(ctx, "user-1", irr(5000), "IRR", due)
	require.NoError(t, err)

	_, err = e.svc.AssignCredit(ctx, "user-1", irr(1000), "IRR", due)
	assert.ErrorIs(t, err, ledger.ErrDuplicateCredit)

	w, err := e.svc.GetWallet(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, w.Credits, 1)
	assert.True(t, w.Credits[0].Limit.Equal(irr(5000)))
}

func TestAssignCreditValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.fund(t, "user-1", 0)

	_, err := e.svc.AssignCredit(ctx, "user-1", irr(0), "IRR", e.clock.Now().AddDate(0, 0, 30))
	assert.ErrorIs(t, err, ledger.ErrInvalidCreditAmount)

	_, err = e.svc.AssignCredit(ctx, "user-1", irr(1000), "IRR", e.clock.Now().AddDate(0, 0, 365))
	assert.ErrorIs(t, err, ledger.ErrInvalidCreditAmount)
}

func TestCreditPurchaseAndRefund(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.fund(t, "user-1", 0)

	req := purchase("user-1", "order-16", 2000)
	req.UseCredit = true
	_, err := e.svc.IntegratedPurchase(ctx, req)
	assert.ErrorIs(t, err, ledger.ErrCreditNotFound)

	credit, err := e.svc.AssignCredit(ctx, "user-1", irr(5000), "IRR", e.clock.Now().AddDate(0, 0, 30))
	require.NoError(t, err)

	res, err := e.svc.IntegratedPurchase(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, models.PurchaseCredit, res.PurchaseType)
	assert.True(t, e.balance(t, "user-1").IsZero())
	assert.Equal(t, []string{"order-16"}, e.orders.Calls())

	tx, err := e.db.GetTransactionById(ctx, res.PurchaseTransactionId)
	require.NoError(t, err)
	assert.True(t, tx.IsCredit)
	assert.Equal(t, ledger.StatusCompleted, tx.Status)
	require.NotNil(t, tx.DueDate)

	over := purchase("user-1", "order-17", 4000)
	over.UseCredit = true
	_, err = e.svc.IntegratedPurchase(ctx, over)
	assert.ErrorIs(t, err, ledger.ErrInsufficientCredit)

	_, err = e.svc.RefundOrder(ctx, models.OrderRefundRequest{UserId: "user-1", TransactionId: res.PurchaseTransactionId, Amount: irr(500)})
	require.NoError(t, err)

	w, err := e.svc.GetWallet(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, w.Credits, 1)
	assert.True(t, w.Credits[0].UsedAmount.Equal(irr(1500)))
	assert.True(t, e.balance(t, "user-1").IsZero())
	e.assertReconciled(t, "user-1")

	settled, err := e.svc.SettleCredit(ctx, "user-1", credit.Id, "INV-2026-03")
	require.NoError(t, err)
	assert.Equal(t, string(ledger.CreditSettled), settled.Status)

	_, err = e.svc.RefundOrder(ctx, models.OrderRefundRequest{UserId: "user-1", TransactionId: res.PurchaseTransactionId, Amount: irr(100)})
	assert.ErrorIs(t, err, ledger.ErrTransactionNotRefundable)
}

func TestSweepCredits(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.fund(t, "user-1", 0)

	_, err := e.svc.AssignCredit(ctx, "user-1", irr(5000), "IRR", e.clock.Now().AddDate(0, 0, 2))
	require.NoError(t, err)

	report, err := e.svc.SweepCredits(ctx, 72*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Warned)
	assert.Equal(t, 0, report.Overdue)

	report, err = e.svc.SweepCredits(ctx, 72*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Warned)

	e.clock.Advance(3 * 24 * time.Hour)
	report, err = e.svc.SweepCredits(ctx, 72*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Overdue)

	types := e.events.Types()
	assert.Contains(t, types, ledger.EventCreditDueSoon)
	assert.Contains(t, types, ledger.EventCreditOverdue)
}

func TestRefundToBank(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.fund(t, "user-1", 1000)

	bank, err := e.svc.AddBankAccount(ctx, models.BankAccountRequest{
		UserId:        "user-1",
		BankName:      "Bank Melli",
		AccountNumber: "0102680020817",
		Iban:          "IR82 0540 1026 8002 0817 9090 02",
		HolderName:    "Sara Ahmadi",
	})
	require.NoError(t, err)

	_, err = e.svc.RefundToBank(ctx, models.BankRefundRequest{UserId: "user-1", BankAccountId: "missing", Amount: irr(100)})
	assert.ErrorIs(t, err, ledger.ErrBankAccountNotFound)

	_, err = e.svc.RefundToBank(ctx, models.BankRefundRequest{UserId: "user-1", BankAccountId: bank.Id, Amount: irr(5000)})
	assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)

	res, err := e.svc.RefundToBank(ctx, models.BankRefundRequest{UserId: "user-1", BankAccountId: bank.Id, Amount: irr(300)})
	require.NoError(t, err)
	assert.True(t, res.NewBalance.Equal(irr(700)))
	assert.Equal(t, "IRR", res.Currency)
	assert.True(t, e.balance(t, "user-1").Equal(irr(700)))
	assert.Contains(t, e.events.Types(), ledger.EventBankWithdrawalRequested)
	e.assertReconciled(t, "user-1")
}

func TestRefundOrderRejectsNonOrderTransactions(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.fund(t, "user-1", 0)

	dep, err := e.svc.Deposit(ctx, models.DepositRequest{UserId: "user-1", Amount: irr(1000), Currency: "IRR"})
	require.NoError(t, err)
	require.NoError(t, e.sandbox.Pay(dep.Authority))
	_, err = e.svc.ProcessPaymentCallback(ctx, models.CallbackRequest{Authority: dep.Authority, Status: "OK"})
	require.NoError(t, err)

	bank, err := e.svc.AddBankAccount(ctx, models.BankAccountRequest{
		UserId:        "user-1",
		BankName:      "Bank Melli",
		AccountNumber: "0102680020817",
		Iban:          "IR82 0540 1026 8002 0817 9090 02",
		HolderName:    "Sara Ahmadi",
	})
	require.NoError(t, err)
	payout, err := e.svc.RefundToBank(ctx, models.BankRefundRequest{UserId: "user-1", BankAccountId: bank.Id, Amount: irr(1000)})
	require.NoError(t, err)
	require.True(t, e.balance(t, "user-1").IsZero())

	for name, id := range map[string]string{"payout": payout.TransactionId, "deposit": dep.TransactionId} {
		_, err := e.svc.RefundOrder(ctx, models.OrderRefundRequest{
			UserId:        "user-1",
			TransactionId: id,
			Amount:        irr(1000),
		})
		assert.ErrorIs(t, err, ledger.ErrTransactionNotRefundable, name)
	}

	assert.True(t, e.balance(t, "user-1").IsZero())
	assert.NotContains(t, e.events.Types(), ledger.EventRefundCompleted)
	e.assertReconciled(t, "user-1")
}

func TestAddBankAccountRejectsBadIban(t *testing.T) {
	e := newEnv(t)
	e.fund(t, "user-1", 0)
	_, err := e.svc.AddBankAccount(context.Background(), models.BankAccountRequest{
		UserId:     "user-1",
		BankName:   "Bank",
		Iban:       "not-an-iban",
		HolderName: "Sara Ahmadi",
	})
	assert.ErrorIs(t, err, ledger.ErrInvalidBankAccount)
}

func TestReconcilePendingPayments(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.fund(t, "user-1", 400)
	e.fund(t, "user-2", 0)

	mixed, err := e.svc.IntegratedPurchase(ctx, purchase("user-1", "order-18", 1000))
	require.NoError(t, err)
	full, err := e.svc.IntegratedPurchase(ctx, purchase("user-2", "order-19", 1000))
	require.NoError(t, err)

	stale, err := e.svc.ListStalePendingPayments(ctx, 30*time.Minute, 10)
	require.NoError(t, err)
	assert.Empty(t, stale)

	e.clock.Advance(time.Hour)
	require.NoError(t, e.sandbox.Expire(mixed.Authority))
	require.NoError(t, e.sandbox.Pay(full.Authority))

	stale, err = e.svc.ListStalePendingPayments(ctx, 30*time.Minute, 10)
	require.NoError(t, err)
	require.Len(t, stale, 2)

	outcomes := map[string]ReconcileOutcome{}
	for _, tx := range stale {
		outcome, err := e.svc.ReconcilePendingPayment(ctx, tx)
		require.NoError(t, err)
		outcomes[tx.Id] = outcome
	}
	assert.Equal(t, OutcomeFailed, outcomes[mixed.PaymentTransactionId])
	assert.Equal(t, OutcomeCompleted, outcomes[full.PaymentTransactionId])

	assert.True(t, e.balance(t, "user-1").Equal(irr(400)))
	assert.True(t, e.balance(t, "user-2").IsZero())
	assert.Contains(t, e.orders.Calls(), "order-19")
	e.assertReconciled(t, "user-1")
	e.assertReconciled(t, "user-2")

	stale, err = e.svc.ListStalePendingPayments(ctx, 30*time.Minute, 10)
	require.NoError(t, err)
	assert.Empty(t, stale)
}

func TestDailySnapshotsAreIdempotent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.fund(t, "user-1", 1000)
	e.fund(t, "user-2", 250)

	report, err := e.svc.TakeDailySnapshots(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Accounts)
	assert.Equal(t, 2, report.Created)
	assert.Empty(t, report.Mismatches)

	report, err = e.svc.TakeDailySnapshots(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Created)
	assert.Equal(t, 2, report.Skipped)

	snap, err := e.svc.TakeSnapshot(ctx, "user-1", "IRR")
	require.NoError(t, err)
	assert.Equal(t, ledger.SnapshotManual, snap.Type)
	assert.True(t, snap.Balance.Amount().Equal(irr(1000)))
}

func TestOutboxHoldsEveryEvent(t *testing.T) {
	e := newEnv(t)
	e.fund(t, "user-1", 500)

	pending, err := e.db.CountEvents(context.Background(), store.OutboxPending)
	require.NoError(t, err)
	assert.Zero(t, pending)
	dispatched, err := e.db.CountEvents(context.Background(), store.OutboxDispatched)
	require.NoError(t, err)
	assert.Equal(t, len(e.events.Types()), dispatched)
}

type directory []string

func (d directory) ListUserIds(context.Context) ([]string, error) { return d, nil }

func TestRecoverMissingWallets(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.fund(t, "user-1", 0)

	created, err := e.svc.RecoverMissingWallets(ctx, directory{"user-1", "user-2", "user-3"})
	require.NoError(t, err)
	assert.Equal(t, 2, created)

	created, err = e.svc.RecoverMissingWallets(ctx, directory{"user-1", "user-2", "user-3"})
	require.NoError(t, err)
	assert.Zero(t, created)

	_, err = e.svc.GetWallet(ctx, "user-3")
	assert.NoError(t, err)
}

func TestReconcileAccountMatchesHistory(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.fund(t, "user-1", 700)

	_, err := e.svc.IntegratedPurchase(ctx, purchase("user-1", "order-r", 200))
	require.NoError(t, err)

	balances, err := e.svc.GetBalances(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, balances, 1)

	r, err := e.svc.ReconcileAccount(ctx, balances[0].AccountId)
	require.NoError(t, err)
	assert.True(t, r.Matches)
	assert.True(t, r.Balance.Equal(irr(500)))

	_, err = e.svc.ReconcileAccount(ctx, "missing")
	assert.ErrorIs(t, err, ledger.ErrInvalidCurrencyAccount)
}
