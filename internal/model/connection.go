package model

import "time"

// Connection statuses.  Nothing transitions a connection to expired yet; the
// state exists in the schema so that access expiry can be added without a
// migration.
const (
	ConnectionActive  = "active"
	ConnectionExpired = "expired"
)

// TokensPerConnection is the fixed price of unlocking one contact.
const TokensPerConnection = 1

// Connection records a purchase of contact access by BuyerID to BiodataID.
//
// Fields:
//
//	ID         – primary key identifier.
//	BuyerID    – user who spent the token.
//	BiodataID  – biodata whose contact fields were unlocked.
//	Status     – ConnectionActive or ConnectionExpired.
//	TokensUsed – tokens debited for the purchase.
//	CreatedAt  – purchase timestamp.
//	UpdatedAt  – last update timestamp.
type Connection struct {
	ID         uint64    `json:"id"`
	BuyerID    uint64    `json:"buyer_id"`
	BiodataID  uint64    `json:"biodata_id"`
	Status     string    `json:"status"`
	TokensUsed int64     `json:"tokens_used"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ConnectionDetail is a connection joined with the purchased contact.
type ConnectionDetail struct {
	Connection
	Biodata ContactProjection `json:"biodata"`
}

// UserConnectionStats is returned for a single user.
type UserConnectionStats struct {
	TotalPurchased  int64 `json:"total_purchased"`
	RemainingTokens int64 `json:"remaining_tokens"`
}

// GlobalConnectionStats is returned on the admin path.
type GlobalConnectionStats struct {
	TotalConnections  int64 `json:"total_connections"`
	ActiveConnections int64 `json:"active_connections"`
}
