package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Payment statuses.  Only pending → completed and pending → failed are
// implemented; refunded is reserved.
const (
	PaymentPending   = "pending"
	PaymentCompleted = "completed"
	PaymentFailed    = "failed"
	PaymentRefunded  = "refunded"
)

// PaymentMethodBkash is the only supported payment method.
const PaymentMethodBkash = "bkash"

// Payment records a token purchase attempt through the payment gateway.
//
// Fields:
//
//	TransactionID      – merchant invoice number sent to the provider.
//	BkashTransactionID – provider paymentID returned by checkout create.
//	ProviderTrxID      – provider transaction id, set on completion.
//	PaymentDetails     – raw provider responses keyed by step ("create", "execute").
type Payment struct {
	ID                 uint64          `json:"id"`
	UserID             uint64          `json:"user_id"`
	Amount             decimal.Decimal `json:"amount"`
	Tokens             int64           `json:"tokens"`
	PaymentMethod      string          `json:"payment_method"`
	TransactionID      string          `json:"transaction_id"`
	BkashTransactionID string          `json:"bkash_transaction_id"`
	ProviderTrxID      *string         `json:"provider_trx_id,omitempty"`
	Status             string          `json:"status"`
	PaymentDetails     json.RawMessage `json:"payment_details,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}
