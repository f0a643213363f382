package ledger

import "time"

type EventType string

const (
	EventTransactionInitiated     EventType = "TransactionInitiated"
	EventTransactionCompleted     EventType = "TransactionCompleted"
	EventTransactionFailed        EventType = "TransactionFailed"
	EventRefundInitiated          EventType = "RefundInitiated"
	EventRefundCompleted          EventType = "RefundCompleted"
	EventWalletCreated            EventType = "WalletCreated"
	EventCreditAssigned           EventType = "CreditAssigned"
	EventCreditSettled            EventType = "CreditSettled"
	EventCreditOverdue            EventType = "CreditOverdue"
	EventCreditDueSoon            EventType = "CreditDueSoon"
	EventBankWithdrawalRequested  EventType = "BankWithdrawalRequested"
	EventOrderCompletionRequested EventType = "OrderCompletionRequested"
)

// Event is a domain event raised by an entity. Events are persisted to the
// outbox in the same database transaction as the state change that raised them.
type Event struct {
	Type        EventType         `json:"type"`
	AggregateId string            `json:"aggregate_id"`
	Payload     map[string]string `json:"payload"`
	OccurredAt  time.Time         `json:"occurred_at"`
}

type eventRecorder struct {
	events []Event
}

func (r *eventRecorder) record(t EventType, aggregateId string, payload map[string]string, at time.Time) {
	r.events = append(r.events, Event{Type: t, AggregateId: aggregateId, Payload: payload, OccurredAt: at.UTC()})
}

// PullEvents returns recorded events and clears them.
func (r *eventRecorder) PullEvents() []Event {
	out := r.events
	r.events = nil
	return out
}

// OrderCompletionRequested is raised by the service when a funded purchase
// needs the order service to mark the order paid.
func OrderCompletionRequested(orderId, transactionId string, at time.Time) Event {
	return Event{
		Type:        EventOrderCompletionRequested,
		AggregateId: orderId,
		Payload:     map[string]string{"order_id": orderId, "transaction_id": transactionId},
		OccurredAt:  at.UTC(),
	}
}
