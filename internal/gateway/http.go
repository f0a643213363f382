package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"travel-wallet-go/internal/clients"
	"travel-wallet-go/internal/money"

	"github.com/shopspring/decimal"
)

// HTTPGateway talks to a provider exposing a small JSON payment API:
//
//	POST {base}/payments                    create
//	POST {base}/payments/{authority}/verify verify
//	GET  {base}/payments/{authority}        status
type HTTPGateway struct {
	name       string
	baseURL    string
	merchantId string
	apiKey     string
	hc         *http.Client
}

func NewHTTPGateway(name, baseURL, merchantId, apiKey string, timeout time.Duration) (*HTTPGateway, error) {
	if name == "" || baseURL == "" {
		return nil, fmt.Errorf("gateway name and base URL are required")
	}
	hc, err := clients.NewHTTPClient(timeout)
	if err != nil {
		return nil, fmt.Errorf("unable to create http client: %w", err)
	}
	return &HTTPGateway{
		name:       name,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		merchantId: merchantId,
		apiKey:     apiKey,
		hc:         hc,
	}, nil
}

func (g *HTTPGateway) Name() string { return g.name }

func (g *HTTPGateway) headers() map[string]string {
	h := map[string]string{"X-Merchant-Id": g.merchantId}
	if g.apiKey != "" {
		h["Authorization"] = "Bearer " + g.apiKey
	}
	return h
}

type createPaymentBody struct {
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	OrderRef    string `json:"order_ref"`
	Description string `json:"description"`
	CallbackURL string `json:"callback_url"`
}

type createPaymentReply struct {
	Authority  string `json:"authority"`
	PaymentUrl string `json:"payment_url"`
}

func (g *HTTPGateway) CreatePayment(ctx context.Context, req PaymentRequest) (*PaymentSession, error) {
	body := createPaymentBody{
		Amount:      req.Amount.StringFixed(),
		Currency:    req.Amount.Currency().String(),
		OrderRef:    req.OrderRef,
		Description: req.Description,
		CallbackURL: req.CallbackURL,
	}
	var reply createPaymentReply
	if err := clients.DoJSON(ctx, g.hc, http.MethodPost, g.baseURL+"/payments", g.headers(), body, &reply); err != nil {
		return nil, fmt.Errorf("%s: create payment: %w", g.name, err)
	}
	if reply.Authority == "" || reply.PaymentUrl == "" {
		return nil, fmt.Errorf("%s: create payment: empty authority or payment url", g.name)
	}
	return &PaymentSession{Gateway: g.name, Authority: reply.Authority, PaymentUrl: reply.PaymentUrl}, nil
}

type verifyBody struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

type verifyReply struct {
	Verified    bool   `json:"verified"`
	ReferenceId string `json:"reference_id"`
	Amount      string `json:"amount"`
	Message     string `json:"message"`
}

func (g *HTTPGateway) VerifyPayment(ctx context.Context, authority string, expected money.Money) (*Verification, error) {
	body := verifyBody{Amount: expected.StringFixed(), Currency: expected.Currency().String()}
	endpoint := g.baseURL + "/payments/" + url.PathEscape(authority) + "/verify"

	var reply verifyReply
	if err := clients.DoJSON(ctx, g.hc, http.MethodPost, endpoint, g.headers(), body, &reply); err != nil {
		return nil, g.wrapNotFound("verify payment", err)
	}
	actual, err := parseAmount(reply.Amount)
	if err != nil {
		return nil, fmt.Errorf("%s: verify payment: %w", g.name, err)
	}
	return &Verification{
		Verified:     reply.Verified,
		ReferenceId:  reply.ReferenceId,
		ActualAmount: actual,
		Message:      reply.Message,
	}, nil
}

type statusReply struct {
	Status string `json:"status"`
	Amount string `json:"amount"`
}

func (g *HTTPGateway) GetStatus(ctx context.Context, authority string) (*PaymentStatus, error) {
	var reply statusReply
	endpoint := g.baseURL + "/payments/" + url.PathEscape(authority)
	if err := clients.DoJSON(ctx, g.hc, http.MethodGet, endpoint, g.headers(), nil, &reply); err != nil {
		return nil, g.wrapNotFound("get status", err)
	}
	amount, err := parseAmount(reply.Amount)
	if err != nil {
		return nil, fmt.Errorf("%s: get status: %w", g.name, err)
	}

	status := StatusPending
	switch strings.ToLower(reply.Status) {
	case "paid", "success", "completed":
		status = StatusPaid
	case "failed", "canceled", "cancelled":
		status = StatusFailed
	case "expired":
		status = StatusExpired
	}
	return &PaymentStatus{Status: status, Amount: amount}, nil
}

func (g *HTTPGateway) wrapNotFound(op string, err error) error {
	var statusErr *clients.StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s: %s: %w", g.name, op, ErrPaymentNotFound)
	}
	return fmt.Errorf("%s: %s: %w", g.name, op, err)
}

func parseAmount(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
