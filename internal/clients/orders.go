package clients

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// OrderCompleter marks an order as paid in the order service.
type OrderCompleter interface {
	CompleteOrder(ctx context.Context, orderId string) (bool, error)
}

// OrderClient calls POST {base}/orders/{id}/complete.
type OrderClient struct {
	baseURL string
	token   string
	hc      *http.Client
}

func NewOrderClient(baseURL, token string, timeout time.Duration) (*OrderClient, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("order service base URL is required")
	}
	hc, err := NewHTTPClient(timeout)
	if err != nil {
		return nil, fmt.Errorf("unable to create http client: %w", err)
	}
	return &OrderClient{baseURL: strings.TrimSuffix(baseURL, "/"), token: token, hc: hc}, nil
}

type completeOrderResponse struct {
	Completed bool   `json:"completed"`
	Message   string `json:"message,omitempty"`
}

func (c *OrderClient) CompleteOrder(ctx context.Context, orderId string) (bool, error) {
	var resp completeOrderResponse
	endpoint := c.baseURL + "/orders/" + url.PathEscape(orderId) + "/complete"
	if err := DoJSON(ctx, c.hc, http.MethodPost, endpoint, bearer(c.token), struct{}{}, &resp); err != nil {
		return false, fmt.Errorf("unable to complete order %s: %w", orderId, err)
	}
	if !resp.Completed {
		zap.L().Warn("Order service declined completion",
			zap.String("order_id", orderId),
			zap.String("message", resp.Message))
	}
	return resp.Completed, nil
}

func bearer(token string) map[string]string {
	if token == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + token}
}
