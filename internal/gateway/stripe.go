package gateway

import (
	"context"
	"fmt"
	"strings"

	"travel-wallet-go/internal/money"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/client"
)

const StripeName = "stripe"

// StripeCheckout uses Stripe Checkout Sessions as the hosted payment page.
// The session id is the authority.
type StripeCheckout struct {
	api        *client.API
	successURL string
	cancelURL  string
}

// NewStripeCheckout talks to api.stripe.com unless apiURL points elsewhere,
// such as a stripe-mock instance.
func NewStripeCheckout(secretKey, apiURL, successURL, cancelURL string) (*StripeCheckout, error) {
	if secretKey == "" {
		return nil, fmt.Errorf("stripe secret key is required")
	}
	var backends *stripe.Backends
	if apiURL != "" {
		backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
			URL:               stripe.String(apiURL),
			MaxNetworkRetries: stripe.Int64(0),
			LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelError},
		})
		backends = &stripe.Backends{API: backend, Connect: backend, Uploads: backend}
	}
	return &StripeCheckout{
		api:        client.New(secretKey, backends),
		successURL: successURL,
		cancelURL:  cancelURL,
	}, nil
}

func (s *StripeCheckout) Name() string { return StripeName }

func (s *StripeCheckout) CreatePayment(ctx context.Context, req PaymentRequest) (*PaymentSession, error) {
	successURL := s.successURL
	if successURL == "" {
		successURL = req.CallbackURL
	}
	cancelURL := s.cancelURL
	if cancelURL == "" {
		cancelURL = req.CallbackURL
	}

	params := &stripe.CheckoutSessionParams{
		SuccessURL:         stripe.String(successURL),
		CancelURL:          stripe.String(cancelURL),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID:  stripe.String(req.OrderRef),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(strings.ToLower(req.Amount.Currency().String())),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(req.Description),
				},
				UnitAmount: stripe.Int64(toMinorUnits(req.Amount)),
			},
			Quantity: stripe.Int64(1),
		}},
	}
	params.Context = ctx

	sess, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe: create checkout session: %w", err)
	}
	return &PaymentSession{Gateway: StripeName, Authority: sess.ID, PaymentUrl: sess.URL}, nil
}

func (s *StripeCheckout) session(ctx context.Context, authority string) (*stripe.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	sess, err := s.api.CheckoutSessions.Get(authority, params)
	if err != nil {
		if se, ok := err.(*stripe.Error); ok && se.HTTPStatusCode == 404 {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("stripe: get checkout session: %w", err)
	}
	return sess, nil
}

func (s *StripeCheckout) VerifyPayment(ctx context.Context, authority string, expected money.Money) (*Verification, error) {
	sess, err := s.session(ctx, authority)
	if err != nil {
		return nil, err
	}
	actual := fromMinorUnits(sess.AmountTotal, expected.Currency())
	if sess.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		return &Verification{Verified: false, ActualAmount: actual, Message: "payment status " + string(sess.PaymentStatus)}, nil
	}
	if !strings.EqualFold(string(sess.Currency), expected.Currency().String()) {
		return &Verification{Verified: false, ActualAmount: actual, Message: "currency mismatch"}, nil
	}
	ref := sess.ID
	if sess.PaymentIntent != nil {
		ref = sess.PaymentIntent.ID
	}
	return &Verification{Verified: true, ReferenceId: ref, ActualAmount: actual}, nil
}

func (s *StripeCheckout) GetStatus(ctx context.Context, authority string) (*PaymentStatus, error) {
	sess, err := s.session(ctx, authority)
	if err != nil {
		return nil, err
	}
	cur, err := money.ParseCurrency(string(sess.Currency))
	if err != nil {
		cur = money.Currency(strings.ToUpper(string(sess.Currency)))
	}
	return &PaymentStatus{
		Status: stripeStatus(sess.Status, sess.PaymentStatus),
		Amount: fromMinorUnits(sess.AmountTotal, cur),
	}, nil
}

func stripeStatus(status stripe.CheckoutSessionStatus, payment stripe.CheckoutSessionPaymentStatus) Status {
	switch {
	case payment == stripe.CheckoutSessionPaymentStatusPaid:
		return StatusPaid
	case status == stripe.CheckoutSessionStatusExpired:
		return StatusExpired
	case status == stripe.CheckoutSessionStatusComplete:
		// completed without a paid status means the charge did not go through
		return StatusFailed
	default:
		return StatusPending
	}
}

func toMinorUnits(m money.Money) int64 {
	return m.Amount().Shift(m.Currency().Precision()).IntPart()
}

func fromMinorUnits(v int64, c money.Currency) decimal.Decimal {
	return decimal.New(v, -c.Precision())
}
