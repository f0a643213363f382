package httpapi

import (
	"github.com/gin-gonic/gin"
)

// NewRouter builds the public HTTP surface. The payment callback is
// unauthenticated because gateways call it directly.
func NewRouter(h *Handlers, v *Verifier) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger())

	r.GET("/healthz", h.Health)

	v1 := r.Group("/api/v1")
	v1.GET("/payments/callback", h.PaymentCallback)
	v1.POST("/payments/callback", h.PaymentCallback)

	authed := v1.Group("")
	authed.Use(RequireUser(v))
	authed.POST("/wallet", h.CreateWallet)
	authed.GET("/wallet", h.GetWallet)
	authed.GET("/wallet/transactions", h.ListTransactions)
	authed.POST("/purchases", h.Purchase)
	authed.POST("/deposits", h.Deposit)
	authed.POST("/refunds/order", h.RefundOrder)
	authed.POST("/refunds/bank", h.RefundToBank)
	authed.POST("/bank-accounts", h.AddBankAccount)

	return r
}
