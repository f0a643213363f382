package gateway

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"travel-wallet-go/internal/money"

	"go.uber.org/zap"
)

// Registry holds the configured gateways and bounds every call with a timeout.
type Registry struct {
	mu         sync.RWMutex
	clients    map[string]Client
	defaultKey string
	timeout    time.Duration
}

func NewRegistry(defaultKey string, timeout time.Duration) *Registry {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Registry{
		clients:    make(map[string]Client),
		defaultKey: defaultKey,
		timeout:    timeout,
	}
}

func (r *Registry) Register(c Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c.Name()] = c
	if r.defaultKey == "" {
		r.defaultKey = c.Name()
	}
}

// Get resolves name, falling back to the default gateway when name is empty.
func (r *Registry) Get(name string) (Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if name == "" {
		name = r.defaultKey
	}
	c, ok := r.clients[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownGateway, name)
	}
	return c, nil
}

func (r *Registry) Default() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultKey
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.clients))
	for n := range r.clients {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) CreatePayment(ctx context.Context, name string, req PaymentRequest) (*PaymentSession, error) {
	c, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	session, err := c.CreatePayment(ctx, req)
	if err != nil {
		zap.L().Warn("Gateway payment creation failed",
			zap.String("gateway", c.Name()),
			zap.String("order_ref", req.OrderRef),
			zap.Error(err))
		return nil, err
	}
	if session.Gateway == "" {
		session.Gateway = c.Name()
	}
	return session, nil
}

func (r *Registry) VerifyPayment(ctx context.Context, name, authority string, expected money.Money) (*Verification, error) {
	c, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return c.VerifyPayment(ctx, authority, expected)
}

func (r *Registry) GetStatus(ctx context.Context, name, authority string) (*PaymentStatus, error) {
	c, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return c.GetStatus(ctx, authority)
}
