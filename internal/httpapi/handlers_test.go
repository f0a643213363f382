package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"travel-wallet-go/internal/ledger"
	"travel-wallet-go/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWallet struct {
	purchase    models.PurchaseRequest
	callback    models.CallbackRequest
	listArgs    []any
	purchaseErr error
	healthErr   error
}

func (f *fakeWallet) EnsureWallet(_ context.Context, userId string) (*ledger.Wallet, error) {
	return &ledger.Wallet{Id: "w-1", UserId: userId, IsActive: true}, nil
}

func (f *fakeWallet) GetWallet(_ context.Context, userId string) (*models.WalletView, error) {
	if userId == "ghost" {
		return nil, ledger.ErrWalletNotFound
	}
	return &models.WalletView{Id: "w-1", UserId: userId, IsActive: true}, nil
}

func (f *fakeWallet) ListTransactions(_ context.Context, userId, currency string, limit, offset int) ([]models.TransactionRecord, error) {
	f.listArgs = []any{userId, currency, limit, offset}
	return []models.TransactionRecord{}, nil
}

func (f *fakeWallet) IntegratedPurchase(_ context.Context, req models.PurchaseRequest) (*models.PurchaseResult, error) {
	f.purchase = req
	if f.purchaseErr != nil {
		return nil, f.purchaseErr
	}
	return &models.PurchaseResult{PurchaseType: models.PurchaseFullWallet, Currency: req.Currency, TotalAmount: req.TotalAmount}, nil
}

func (f *fakeWallet) Deposit(_ context.Context, req models.DepositRequest) (*models.DepositResult, error) {
	return &models.DepositResult{TransactionId: "tx-1", Amount: req.Amount, Currency: req.Currency}, nil
}

func (f *fakeWallet) ProcessPaymentCallback(_ context.Context, req models.CallbackRequest) (*models.CallbackResult, error) {
	f.callback = req
	if req.Authority == "" {
		return nil, ledger.ErrPaymentNotFound
	}
	return &models.CallbackResult{Verified: true, TransactionId: "tx-1"}, nil
}

func (f *fakeWallet) RefundOrder(context.Context, models.OrderRefundRequest) (*models.RefundResult, error) {
	return nil, ledger.ErrTransactionNotRefundable
}

func (f *fakeWallet) RefundToBank(context.Context, models.BankRefundRequest) (*models.BankRefundResult, error) {
	return nil, ledger.ErrInsufficientBalance
}

func (f *fakeWallet) AddBankAccount(_ context.Context, req models.BankAccountRequest) (*models.BankAccountView, error) {
	return &models.BankAccountView{Id: "ba-1", Iban: req.Iban, IsActive: true}, nil
}

func (f *fakeWallet) HealthCheck(context.Context) error { return f.healthErr }

type harness struct {
	router   *gin.Engine
	wallet   *fakeWallet
	verifier *Verifier
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	v, err := NewVerifier("test-secret", "travel-wallet")
	require.NoError(t, err)
	w := &fakeWallet{}
	return &harness{
		router:   NewRouter(&Handlers{Wallet: w}, v),
		wallet:   w,
		verifier: v,
	}
}

func (h *harness) do(t *testing.T, method, path, userId string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userId != "" {
		token, err := h.verifier.Issue(userId, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestRequiresBearerToken(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/api/v1/wallet", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/wallet", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec = httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestVerifierRejectsForeignIssuerAndExpiredTokens(t *testing.T) {
	v, err := NewVerifier("test-secret", "travel-wallet")
	require.NoError(t, err)

	other, err := NewVerifier("test-secret", "someone-else")
	require.NoError(t, err)
	token, err := other.Issue("u1", time.Hour)
	require.NoError(t, err)
	_, err = v.Verify(token)
	assert.Error(t, err)

	past := time.Now().Add(-2 * time.Hour)
	v.now = func() time.Time { return past }
	token, err = v.Issue("u1", time.Hour)
	require.NoError(t, err)
	v.now = time.Now
	_, err = v.Verify(token)
	assert.Error(t, err)

	token, err = v.Issue("u1", time.Hour)
	require.NoError(t, err)
	userId, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", userId)
}

func TestNewVerifierRequiresSecret(t *testing.T) {
	_, err := NewVerifier("", "")
	assert.Error(t, err)
}

func TestPurchaseUsesTokenSubject(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/api/v1/purchases", "u1", map[string]any{
		"user_id":      "someone-else",
		"total_amount": "300",
		"currency":     "IRR",
		"order_id":     "ord-1",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "u1", h.wallet.purchase.UserId)
	assert.True(t, decimal.NewFromInt(300).Equal(h.wallet.purchase.TotalAmount))
	assert.Equal(t, "FullWallet", decode(t, rec)["purchase_type"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestDomainErrorsMapToStatus(t *testing.T) {
	h := newHarness(t)

	cases := []struct {
		err    error
		status int
	}{
		{ledger.ErrInsufficientBalance, http.StatusUnprocessableEntity},
		{ledger.ErrWalletNotFound, http.StatusNotFound},
		{ledger.ErrInvalidAmount, http.StatusBadRequest},
		{ledger.ErrDuplicateTransaction, http.StatusConflict},
		{fmt.Errorf("gateway down: %w", ledger.ErrPaymentGateway), http.StatusBadGateway},
		{errors.New("connection refused"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		h.wallet.purchaseErr = tc.err
		rec := h.do(t, http.MethodPost, "/api/v1/purchases", "u1", map[string]any{
			"total_amount": "1", "currency": "IRR", "order_id": "ord-1",
		})
		assert.Equal(t, tc.status, rec.Code, tc.err.Error())
	}

	h.wallet.purchaseErr = errors.New("pq: password authentication failed")
	rec := h.do(t, http.MethodPost, "/api/v1/purchases", "u1", map[string]any{
		"total_amount": "1", "currency": "IRR", "order_id": "ord-1",
	})
	body := decode(t, rec)
	assert.Equal(t, "INTERNAL_ERROR", body["error"])
	assert.NotContains(t, body["message"], "password")
}

func TestDomainErrorBodyHidesWrappedCause(t *testing.T) {
	h := newHarness(t)

	h.wallet.purchaseErr = fmt.Errorf("%w: Post \"https://gw.internal.corp:8443/v4/request\": dial tcp 10.12.0.7:8443: connect: connection refused", ledger.ErrPaymentGateway)
	rec := h.do(t, http.MethodPost, "/api/v1/purchases", "u1", map[string]any{
		"total_amount": "1", "currency": "IRR", "order_id": "ord-1",
	})
	require.Equal(t, http.StatusBadGateway, rec.Code)
	assert.NotContains(t, rec.Body.String(), "10.12.0.7")
	assert.NotContains(t, rec.Body.String(), "gw.internal")

	body := decode(t, rec)
	assert.Equal(t, ledger.ErrPaymentGateway.Code, body["error"])
	assert.Equal(t, ledger.ErrPaymentGateway.Message, body["message"])

	h.wallet.purchaseErr = fmt.Errorf("%w: at most 200 can be refunded", ledger.ErrInvalidAmount)
	rec = h.do(t, http.MethodPost, "/api/v1/purchases", "u1", map[string]any{
		"total_amount": "1", "currency": "IRR", "order_id": "ord-1",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, ledger.ErrInvalidAmount.Message, decode(t, rec)["message"])
}

func TestMalformedBodyIsBadRequest(t *testing.T) {
	h := newHarness(t)

	token, err := h.verifier.Issue("u1", time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/deposits", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCallbackAcceptsRedirectQuery(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/api/v1/payments/callback?Authority=A0001&Status=OK", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "A0001", h.wallet.callback.Authority)
	assert.Equal(t, "OK", h.wallet.callback.Status)
}

func TestCallbackAcceptsFormPost(t *testing.T) {
	h := newHarness(t)

	form := url.Values{"Authority": {"A0002"}, "Status": {"NOK"}}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/callback", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "A0002", h.wallet.callback.Authority)
	assert.Equal(t, "NOK", h.wallet.callback.Status)
}

func TestCallbackWithoutAuthorityIsNotFound(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/api/v1/payments/callback?Status=OK", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "PAYMENT_NOT_FOUND", decode(t, rec)["error"])
}

func TestListTransactionsPaging(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/api/v1/wallet/transactions?currency=USD&limit=10&offset=20", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{"u1", "USD", 10, 20}, h.wallet.listArgs)

	rec = h.do(t, http.MethodGet, "/api/v1/wallet/transactions?limit=1000", "u1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/v1/wallet/transactions?offset=-1", "u1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRefundErrors(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/api/v1/refunds/order", "u1", map[string]any{"transaction_id": "tx-1", "amount": "10"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "TRANSACTION_NOT_REFUNDABLE", decode(t, rec)["error"])

	rec = h.do(t, http.MethodPost, "/api/v1/refunds/bank", "u1", map[string]any{"bank_account_id": "ba-1", "amount": "10"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestWalletEndpoints(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/api/v1/wallet", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u1", decode(t, rec)["user_id"])

	rec = h.do(t, http.MethodGet, "/api/v1/wallet", "ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/v1/bank-accounts", "u1", map[string]any{"iban": "IR820540102680020817909002"})
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestHealth(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	h.wallet.healthErr = errors.New("db down")
	rec = h.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
