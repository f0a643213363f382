package money

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewTransactionNumber returns a human-readable unique transaction number of
// the form TX-20260131-1A2B3C4D5E.
func NewTransactionNumber(now time.Time) string {
	id := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return "TX-" + now.UTC().Format("20060102") + "-" + id[:10]
}
