package gateway

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"travel-wallet-go/internal/money"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const SandboxName = "sandbox"

type sandboxPayment struct {
	amount    money.Money
	paid      decimal.Decimal
	orderRef  string
	status    Status
	createdAt time.Time
}

// Sandbox is an in-process gateway for development and tests. Payments stay
// pending until Pay or Fail is called, unless AutoApprove is set.
type Sandbox struct {
	mu          sync.Mutex
	payments    map[string]*sandboxPayment
	baseURL     string
	createErr   error
	delay       time.Duration
	autoApprove bool
}

func NewSandbox(baseURL string, autoApprove bool) *Sandbox {
	if baseURL == "" {
		baseURL = "https://sandbox.local/pay"
	}
	return &Sandbox{
		payments:    make(map[string]*sandboxPayment),
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		autoApprove: autoApprove,
	}
}

func (s *Sandbox) Name() string { return SandboxName }

// FailCreate makes CreatePayment return err until called again with nil.
func (s *Sandbox) FailCreate(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createErr = err
}

// SetDelay makes every call wait d or until its context is done.
func (s *Sandbox) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

func (s *Sandbox) wait(ctx context.Context) error {
	s.mu.Lock()
	d := s.delay
	s.mu.Unlock()
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *Sandbox) CreatePayment(ctx context.Context, req PaymentRequest) (*PaymentSession, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("sandbox: amount must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return nil, s.createErr
	}

	authority := "SBX-" + strings.ReplaceAll(uuid.New().String(), "-", "")
	s.payments[authority] = &sandboxPayment{
		amount:    req.Amount,
		orderRef:  req.OrderRef,
		status:    StatusPending,
		createdAt: time.Now().UTC(),
	}
	return &PaymentSession{
		Gateway:    SandboxName,
		Authority:  authority,
		PaymentUrl: s.baseURL + "/" + authority,
	}, nil
}

// Pay settles the payment for its requested amount.
func (s *Sandbox) Pay(authority string) error {
	return s.settle(authority, StatusPaid, nil)
}

// PayAmount settles the payment for a different amount than requested.
func (s *Sandbox) PayAmount(authority string, amount decimal.Decimal) error {
	return s.settle(authority, StatusPaid, &amount)
}

func (s *Sandbox) Fail(authority string) error {
	return s.settle(authority, StatusFailed, nil)
}

func (s *Sandbox) Expire(authority string) error {
	return s.settle(authority, StatusExpired, nil)
}

func (s *Sandbox) settle(authority string, status Status, amount *decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[authority]
	if !ok {
		return ErrPaymentNotFound
	}
	p.status = status
	if status == StatusPaid {
		p.paid = p.amount.Amount()
		if amount != nil {
			p.paid = *amount
		}
	}
	return nil
}

// Authorities returns the authorities issued for orderRef.
func (s *Sandbox) Authorities(orderRef string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for a, p := range s.payments {
		if p.orderRef == orderRef {
			out = append(out, a)
		}
	}
	return out
}

func (s *Sandbox) VerifyPayment(ctx context.Context, authority string, expected money.Money) (*Verification, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.payments[authority]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	if s.autoApprove && p.status == StatusPending {
		p.status = StatusPaid
		p.paid = p.amount.Amount()
	}
	if p.status != StatusPaid {
		return &Verification{Verified: false, Message: "payment is " + string(p.status)}, nil
	}
	if p.amount.Currency() != expected.Currency() {
		return &Verification{Verified: false, ActualAmount: p.paid, Message: "currency mismatch"}, nil
	}
	return &Verification{
		Verified:     true,
		ReferenceId:  "REF-" + authority[len(authority)-8:],
		ActualAmount: p.paid,
	}, nil
}

func (s *Sandbox) GetStatus(ctx context.Context, authority string) (*PaymentStatus, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[authority]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	return &PaymentStatus{Status: p.status, Amount: p.paid}, nil
}
