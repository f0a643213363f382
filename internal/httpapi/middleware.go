package httpapi

import (
	"errors"
	"net/http"
	"time"

	"travel-wallet-go/internal/ledger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const headerRequestID = "X-Request-Id"

// RequestLogger assigns a request id and logs one line per request.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		rid := c.GetHeader(headerRequestID)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Writer.Header().Set(headerRequestID, rid)
		c.Set("request_id", rid)

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		fields := []zap.Field{
			zap.String("request_id", rid),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
		}
		if userId, ok := UserID(c.Request.Context()); ok {
			fields = append(fields, zap.String("user_id", userId))
		}
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			zap.L().Error("Request failed", fields...)
		case c.Writer.Status() >= http.StatusBadRequest:
			zap.L().Warn("Request rejected", fields...)
		default:
			zap.L().Info("Request handled", fields...)
		}
	}
}

// statusFor maps a domain error code to an HTTP status.
func statusFor(code string) int {
	switch code {
	case ledger.ErrWalletNotFound.Code,
		ledger.ErrTransactionNotFound.Code,
		ledger.ErrPaymentNotFound.Code,
		ledger.ErrCreditNotFound.Code,
		ledger.ErrBankAccountNotFound.Code:
		return http.StatusNotFound
	case ledger.ErrDuplicateWallet.Code,
		ledger.ErrDuplicateTransaction.Code,
		ledger.ErrDuplicateCredit.Code,
		ledger.ErrInvalidOperation.Code:
		return http.StatusConflict
	case ledger.ErrInsufficientBalance.Code,
		ledger.ErrInsufficientCredit.Code,
		ledger.ErrWalletInactive.Code,
		ledger.ErrTransactionNotRefundable.Code,
		ledger.ErrPaymentVerificationFailed.Code,
		ledger.ErrAmountMismatch.Code:
		return http.StatusUnprocessableEntity
	case ledger.ErrPaymentGateway.Code:
		return http.StatusBadGateway
	default:
		return http.StatusBadRequest
	}
}

// writeError renders domain errors as {error, message} and hides everything
// else. Clients only ever see the fixed message of the code; the wrapped
// detail goes to the log.
func writeError(c *gin.Context, err error) {
	rid, _ := c.Get("request_id")
	var de *ledger.DomainError
	if errors.As(err, &de) {
		zap.L().Warn("Request failed with domain error",
			zap.Any("request_id", rid),
			zap.String("code", de.Code),
			zap.Error(err))
		c.AbortWithStatusJSON(statusFor(de.Code), gin.H{"error": de.Code, "message": de.Message})
		return
	}
	zap.L().Error("Unhandled error",
		zap.Any("request_id", rid),
		zap.String("path", c.Request.URL.Path),
		zap.Error(err))
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL_ERROR", "message": "internal error"})
}
