// Package queue defines the ledger events exchanged over the message broker,
// the publisher used by the services and the consumer that records them.
package queue

// Queue names.  Each is a durable queue on the default exchange.
const (
	QueueConnectionPurchased = "connection.purchased"
	QueuePaymentCompleted    = "payment.completed"
	QueuePaymentFailed       = "payment.failed"
)

// Queues lists every queue the consumer listens on.
var Queues = []string{QueueConnectionPurchased, QueuePaymentCompleted, QueuePaymentFailed}

// ConnectionPurchasedEvent is published after a contact purchase commits.
type ConnectionPurchasedEvent struct {
	ConnectionID    uint64 `json:"connection_id"`
	BuyerID         uint64 `json:"buyer_id"`
	BiodataID       uint64 `json:"biodata_id"`
	TokensUsed      int64  `json:"tokens_used"`
	RemainingTokens int64  `json:"remaining_tokens"`
	PurchasedAt     string `json:"purchased_at"`
}

// PaymentEvent is published when a payment leaves pending.
type PaymentEvent struct {
	PaymentID      uint64 `json:"payment_id"`
	UserID         uint64 `json:"user_id"`
	BkashPaymentID string `json:"bkash_payment_id"`
	ProviderTrxID  string `json:"provider_trx_id,omitempty"`
	Amount         string `json:"amount"`
	Tokens         int64  `json:"tokens"`
	Status         string `json:"status"`
	Reason         string `json:"reason,omitempty"`
	OccurredAt     string `json:"occurred_at"`
}
