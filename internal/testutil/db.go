// Package testutil provides a migrated SQLite database and seed helpers for
// package tests.
package testutil

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/iliyamo/biodata-connect/internal/database"
)

// NewSQLiteDB opens a fresh SQLite database in a temp dir with every
// migration applied.  It is closed when the test ends.
func NewSQLiteDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := database.Migrate(context.Background(), db, database.DriverSQLite); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// CreateUser inserts a user with the given role and token balance and
// returns its id.  The password hash is a placeholder.
func CreateUser(t *testing.T, db *sql.DB, email, role string, tokens int64) uint64 {
	t.Helper()
	now := time.Now().UTC()
	res, err := db.Exec(
		"INSERT INTO users (email, password_hash, role, connection_tokens, is_active, created_at, updated_at) VALUES (?,?,?,?,1,?,?)",
		email, "x", role, tokens, now, now)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	id, _ := res.LastInsertId()
	return uint64(id)
}

// CreateBiodata inserts a biodata owned by ownerID with the given status and
// returns its id.  Contact fields are derived from name.
func CreateBiodata(t *testing.T, db *sql.DB, ownerID uint64, name, status string) uint64 {
	t.Helper()
	now := time.Now().UTC()
	res, err := db.Exec(
		`INSERT INTO biodata (user_id, full_name, gender, religion, district, email, own_mobile, guardian_mobile,
		                      status, view_count, created_at, updated_at)
		 VALUES (?,?,?,?,?,?,?,?,?,0,?,?)`,
		ownerID, name, "female", "islam", "Dhaka", name+"@example.com", "0171"+name, "0181"+name, status, now, now)
	if err != nil {
		t.Fatalf("create biodata: %v", err)
	}
	id, _ := res.LastInsertId()
	return uint64(id)
}

// Balance returns the user's current token balance.
func Balance(t *testing.T, db *sql.DB, userID uint64) int64 {
	t.Helper()
	var n int64
	if err := db.QueryRow("SELECT connection_tokens FROM users WHERE id = ?", userID).Scan(&n); err != nil {
		t.Fatalf("balance: %v", err)
	}
	return n
}

// CountRows returns the number of rows in table matching where.
func CountRows(t *testing.T, db *sql.DB, table, where string, args ...any) int64 {
	t.Helper()
	q := "SELECT COUNT(*) FROM " + table
	if where != "" {
		q += " WHERE " + where
	}
	var n int64
	if err := db.QueryRow(q, args...).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}
