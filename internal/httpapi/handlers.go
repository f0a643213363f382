package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"travel-wallet-go/internal/ledger"
	"travel-wallet-go/internal/models"

	"github.com/gin-gonic/gin"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// Wallet is the service surface exposed over HTTP. *api.WalletService implements it.
type Wallet interface {
	EnsureWallet(ctx context.Context, userId string) (*ledger.Wallet, error)
	GetWallet(ctx context.Context, userId string) (*models.WalletView, error)
	ListTransactions(ctx context.Context, userId, currency string, limit, offset int) ([]models.TransactionRecord, error)
	IntegratedPurchase(ctx context.Context, req models.PurchaseRequest) (*models.PurchaseResult, error)
	Deposit(ctx context.Context, req models.DepositRequest) (*models.DepositResult, error)
	ProcessPaymentCallback(ctx context.Context, req models.CallbackRequest) (*models.CallbackResult, error)
	RefundOrder(ctx context.Context, req models.OrderRefundRequest) (*models.RefundResult, error)
	RefundToBank(ctx context.Context, req models.BankRefundRequest) (*models.BankRefundResult, error)
	AddBankAccount(ctx context.Context, req models.BankAccountRequest) (*models.BankAccountView, error)
	HealthCheck(ctx context.Context) error
}

type Handlers struct {
	Wallet Wallet
}

func (h *Handlers) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := h.Wallet.HealthCheck(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handlers) CreateWallet(c *gin.Context) {
	userId, _ := UserID(c.Request.Context())
	if _, err := h.Wallet.EnsureWallet(c.Request.Context(), userId); err != nil {
		writeError(c, err)
		return
	}
	view, err := h.Wallet.GetWallet(c.Request.Context(), userId)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handlers) GetWallet(c *gin.Context) {
	userId, _ := UserID(c.Request.Context())
	view, err := h.Wallet.GetWallet(c.Request.Context(), userId)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handlers) ListTransactions(c *gin.Context) {
	userId, _ := UserID(c.Request.Context())
	limit, err := queryInt(c, "limit", defaultPageSize)
	if err != nil || limit <= 0 || limit > maxPageSize {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "INVALID_QUERY", "message": "limit must be between 1 and 200"})
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil || offset < 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "INVALID_QUERY", "message": "offset must be non-negative"})
		return
	}

	records, err := h.Wallet.ListTransactions(c.Request.Context(), userId, c.Query("currency"), limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": records, "limit": limit, "offset": offset})
}

func (h *Handlers) Purchase(c *gin.Context) {
	var req models.PurchaseRequest
	if !bindJSON(c, &req) {
		return
	}
	req.UserId, _ = UserID(c.Request.Context())

	res, err := h.Wallet.IntegratedPurchase(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h *Handlers) Deposit(c *gin.Context) {
	var req models.DepositRequest
	if !bindJSON(c, &req) {
		return
	}
	req.UserId, _ = UserID(c.Request.Context())

	res, err := h.Wallet.Deposit(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// PaymentCallback accepts the gateway's browser redirect (query string) and
// its server-to-server notification (form or JSON body).
func (h *Handlers) PaymentCallback(c *gin.Context) {
	var req models.CallbackRequest
	var err error
	if c.Request.Method == http.MethodGet {
		err = c.ShouldBindQuery(&req)
	} else {
		err = c.ShouldBind(&req)
	}
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "INVALID_REQUEST", "message": err.Error()})
		return
	}

	res, err := h.Wallet.ProcessPaymentCallback(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handlers) RefundOrder(c *gin.Context) {
	var req models.OrderRefundRequest
	if !bindJSON(c, &req) {
		return
	}
	req.UserId, _ = UserID(c.Request.Context())

	res, err := h.Wallet.RefundOrder(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h *Handlers) RefundToBank(c *gin.Context) {
	var req models.BankRefundRequest
	if !bindJSON(c, &req) {
		return
	}
	req.UserId, _ = UserID(c.Request.Context())

	res, err := h.Wallet.RefundToBank(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h *Handlers) AddBankAccount(c *gin.Context) {
	var req models.BankAccountRequest
	if !bindJSON(c, &req) {
		return
	}
	req.UserId, _ = UserID(c.Request.Context())

	res, err := h.Wallet.AddBankAccount(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "INVALID_REQUEST", "message": err.Error()})
		return false
	}
	return true
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
