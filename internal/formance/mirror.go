package formance

import (
	"context"
	"fmt"
	"time"

	"travel-wallet-go/internal/ledger"
	"travel-wallet-go/internal/money"

	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// One template for every wallet movement; the posting's accounts are chosen
// by postingAccounts. Sources allow overdraft because the mirror may receive
// postings out of order while the outbox retries.
const numscriptWalletMovement = `vars {
  asset $asset
  number $amount
  account $source
  account $destination
  string $transaction_id
  string $transaction_type
  string $wallet_id
  string $user_id
  string $order_context
  string $amount_human
}

send [$asset $amount] (
  source = $source allowing unbounded overdraft
  destination = $destination
)

set_tx_meta("event_type", "wallet_transaction_completed")
set_tx_meta("transaction_id", $transaction_id)
set_tx_meta("transaction_type", $transaction_type)
set_tx_meta("wallet_id", $wallet_id)
set_tx_meta("user_id", $user_id)
set_tx_meta("order_context", $order_context)
set_tx_meta("amount_human", $amount_human)
`

// walletAccount is the mirror address of one currency account.
func walletAccount(walletId string, c money.Currency) string {
	return fmt.Sprintf("wallets:%s:%s", walletId, c)
}

// postingAccounts maps a completed wallet transaction onto source and
// destination ledger accounts.
func postingAccounts(p map[string]string, c money.Currency) (string, string, error) {
	wallet := walletAccount(p["wallet_id"], c)
	credit := "credit:" + p["wallet_id"]
	isCredit := p["is_credit"] == "true"

	switch ledger.TransactionType(p["type"]) {
	case ledger.TypeDeposit:
		gw := p["gateway"]
		if gw == "" {
			gw = "unknown"
		}
		return "gateways:" + gw, wallet, nil
	case ledger.TypePurchase:
		if isCredit {
			return credit, "merchant:orders", nil
		}
		return wallet, "merchant:orders", nil
	case ledger.TypeRefund:
		if isCredit {
			return "merchant:orders", credit, nil
		}
		return "merchant:orders", wallet, nil
	case ledger.TypeTransfer:
		return wallet, "payouts:bank", nil
	case ledger.TypeFee:
		return wallet, "platform:fees", nil
	default:
		return "", "", fmt.Errorf("unsupported transaction type %q", p["type"])
	}
}

// Handle posts a TransactionCompleted event to the ledger. The transaction
// number is the ledger reference, so a replayed event is a no-op.
func (s *Service) Handle(ctx context.Context, e ledger.Event) error {
	if e.Type != ledger.EventTransactionCompleted {
		return nil
	}
	postTx, err := buildPosting(e)
	if err != nil {
		zap.L().Error("Skipping unmirrorable transaction",
			zap.String("transaction_id", e.AggregateId),
			zap.Error(err))
		return nil
	}

	_, err = s.client.Ledger.V2.CreateTransaction(ctx, operations.V2CreateTransactionRequest{
		Ledger:            s.ledger,
		V2PostTransaction: postTx,
	})
	if err != nil {
		if isConflictError(err) {
			return nil
		}
		return fmt.Errorf("error mirroring transaction %s: %w", e.Payload["transaction_number"], err)
	}

	zap.L().Info("Transaction mirrored in Formance",
		zap.String("transaction_number", e.Payload["transaction_number"]),
		zap.String("type", e.Payload["type"]),
		zap.String("amount", e.Payload["amount"]),
		zap.String("currency", e.Payload["currency"]))
	return nil
}

func buildPosting(e ledger.Event) (shared.V2PostTransaction, error) {
	p := e.Payload
	if p["transaction_number"] == "" || p["wallet_id"] == "" {
		return shared.V2PostTransaction{}, fmt.Errorf("event payload is missing transaction fields")
	}
	c := money.Currency(p["currency"])
	amount, err := decimal.NewFromString(p["amount"])
	if err != nil {
		return shared.V2PostTransaction{}, fmt.Errorf("invalid amount %q: %w", p["amount"], err)
	}
	source, destination, err := postingAccounts(p, c)
	if err != nil {
		return shared.V2PostTransaction{}, err
	}

	orderContext := p["order_context"]
	if orderContext == "" {
		orderContext = "none"
	}

	postTx := shared.V2PostTransaction{
		Reference: strPtr(p["transaction_number"]),
		Script: &shared.V2PostTransactionScript{
			Plain: numscriptWalletMovement,
			Vars: map[string]string{
				"asset":            formanceAsset(c),
				"amount":           amount.Shift(c.Precision()).BigInt().String(),
				"source":           source,
				"destination":      destination,
				"transaction_id":   p["transaction_id"],
				"transaction_type": p["type"],
				"wallet_id":        p["wallet_id"],
				"user_id":          p["user_id"],
				"order_context":    orderContext,
				"amount_human":     p["amount"],
			},
		},
	}
	ts := e.OccurredAt
	if v, err := time.Parse(time.RFC3339Nano, p["processed_at"]); err == nil {
		ts = v
	}
	if !ts.IsZero() {
		postTx.Timestamp = &ts
	}
	return postTx, nil
}
