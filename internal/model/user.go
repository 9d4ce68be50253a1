package model

import "time"

// Roles accepted in the users.role column and the JWT "role" claim.
const (
	RoleUser       = "user"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "superadmin"
)

// User represents an application user record as stored in the
// `users` table.  Each field corresponds to a column in the database.
//
// Fields:
//
//	ID               – primary key identifier of the user.
//	Email            – unique, normalised email address.
//	PasswordHash     – bcrypt hashed password.
//	Role             – one of RoleUser, RoleAdmin, RoleSuperAdmin.
//	ConnectionTokens – spendable balance; never negative.
//	IsActive         – whether the account is active.
//	CreatedAt        – timestamp of creation.
//	UpdatedAt        – timestamp of last update.
type User struct {
	ID               uint64    `json:"id"`
	Email            string    `json:"email"`
	PasswordHash     string    `json:"-"`
	Role             string    `json:"role"`
	ConnectionTokens int64     `json:"connection_tokens"`
	IsActive         bool      `json:"is_active"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Principal is the acting identity handed to every core operation.  It is
// built from the verified access token by the transport layer.
type Principal struct {
	UserID uint64
	Role   string
}

// IsAdmin reports whether the principal may use admin panel operations.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin || p.Role == RoleSuperAdmin
}

// IsSuperAdmin reports whether the principal may list global ledgers.
func (p Principal) IsSuperAdmin() bool { return p.Role == RoleSuperAdmin }

// ValidRole reports whether r is a known role name.
func ValidRole(r string) bool {
	switch r {
	case RoleUser, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}
