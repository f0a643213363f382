package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"travel-wallet-go/internal/database"
	"travel-wallet-go/internal/ledger"
	"travel-wallet-go/internal/models"
	"travel-wallet-go/internal/store"

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

func setupStore(t *testing.T) *database.Service {
	t.Helper()
	svc, err := database.NewService(context.Background(), models.DatabaseConfig{
		Driver:       "sqlite3",
		Path:         ":memory:",
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		PingTimeout:  time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	return svc
}

type fakeOrders struct {
	mu    sync.Mutex
	fail  bool
	calls []string
}

func (f *fakeOrders) CompleteOrder(_ context.Context, orderId string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, orderId)
	if f.fail {
		return false, errors.New("order service unavailable")
	}
	return true, nil
}

func (f *fakeOrders) setFail(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = v
}

func TestDispatcherRetriesWithBackoff(t *testing.T) {
	ctx := context.Background()
	db := setupStore(t)
	clk := &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}

	_, err := db.AppendEvents(ctx, []ledger.Event{
		ledger.OrderCompletionRequested("order-1", "tx-1", clk.Now()),
		{Type: ledger.EventWalletCreated, AggregateId: "w1", Payload: map[string]string{"user_id": "u1"}, OccurredAt: clk.Now()},
	})
	require.NoError(t, err)

	orders := &fakeOrders{fail: true}
	var seen []ledger.EventType
	d := NewDispatcher(db, Options{BaseBackoff: time.Minute, Lease: 10 * time.Second, Clock: clk.Now})
	d.Subscribe(HandlerFunc(func(_ context.Context, e ledger.Event) error {
		seen = append(seen, e.Type)
		return nil
	}))
	d.Subscribe(NewOrderCompletionHandler(orders), ledger.EventOrderCompletionRequested)

	n, err := d.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, seen, 2)

	pending, err := db.CountEvents(ctx, store.OutboxPending)
	require.NoError(t, err)
	assert.Equal(t, 1, pending)

	// not due yet
	n, err = d.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Len(t, orders.calls, 1)

	orders.setFail(false)
	clk.Advance(time.Minute)
	n, err = d.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"order-1", "order-1"}, orders.calls)

	dispatched, err := db.CountEvents(ctx, store.OutboxDispatched)
	require.NoError(t, err)
	assert.Equal(t, 2, dispatched)
}

func TestDispatcherMarksDeadAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	db := setupStore(t)
	clk := &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}

	_, err := db.AppendEvents(ctx, []ledger.Event{ledger.OrderCompletionRequested("order-2", "tx-2", clk.Now())})
	require.NoError(t, err)

	d := NewDispatcher(db, Options{MaxAttempts: 2, BaseBackoff: time.Second, Clock: clk.Now})
	d.Subscribe(NewOrderCompletionHandler(&fakeOrders{fail: true}), ledger.EventOrderCompletionRequested)

	for i := 0; i < 3; i++ {
		_, err := d.RunOnce(ctx)
		require.NoError(t, err)
		clk.Advance(time.Hour)
	}

	dead, err := db.CountEvents(ctx, store.OutboxDead)
	require.NoError(t, err)
	assert.Equal(t, 1, dead)
}

func TestDispatchOnlyRequestedIds(t *testing.T) {
	ctx := context.Background()
	db := setupStore(t)
	clk := &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}

	ids, err := db.AppendEvents(ctx, []ledger.Event{
		ledger.OrderCompletionRequested("order-a", "tx-a", clk.Now()),
		ledger.OrderCompletionRequested("order-b", "tx-b", clk.Now()),
	})
	require.NoError(t, err)

	orders := &fakeOrders{}
	d := NewDispatcher(db, Options{Clock: clk.Now})
	d.Subscribe(NewOrderCompletionHandler(orders), ledger.EventOrderCompletionRequested)

	n, err := d.Dispatch(ctx, ids[1:])
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"order-b"}, orders.calls)
}

func TestBackoffIsCapped(t *testing.T) {
	d := NewDispatcher(nil, Options{BaseBackoff: time.Second, MaxBackoff: 10 * time.Second})
	assert.Equal(t, time.Second, d.backoff(1))
	assert.Equal(t, 4*time.Second, d.backoff(3))
	assert.Equal(t, 10*time.Second, d.backoff(10))
}

func TestOrderCompletionHandlerDeclined(t *testing.T) {
	h := NewOrderCompletionHandler(&declining{})
	err := h.Handle(context.Background(), ledger.OrderCompletionRequested("o", "t", time.Now()))
	assert.ErrorIs(t, err, ErrOrderNotCompleted)

	// events without an order id are dropped
	assert.NoError(t, h.Handle(context.Background(), ledger.Event{Type: ledger.EventOrderCompletionRequested}))
}

type declining struct{}

func (declining) CompleteOrder(context.Context, string) (bool, error) { return false, nil }
