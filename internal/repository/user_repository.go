package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/biodata-connect/internal/model"
	"github.com/iliyamo/biodata-connect/internal/utils"
)

// UserRepo owns the users table, including the connection token balance.
type UserRepo struct {
	DB   *sql.DB
	lock string
}

func NewUserRepo(db *sql.DB, driver string) *UserRepo {
	return &UserRepo{DB: db, lock: lockClause(driver)}
}

var ErrEmailExists = errors.New("email already exists")

const userColumns = "id,email,password_hash,role,connection_tokens,is_active,created_at,updated_at"

func scanUser(row interface{ Scan(...any) error }) (model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.ConnectionTokens, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	return u, notFound(err)
}

// Create inserts user and returns its ID.  New accounts start with a zero
// token balance.
func (r *UserRepo) Create(ctx context.Context, email, password, role string, cost int) (uint64, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	now := Now()
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (email, password_hash, role, connection_tokens, is_active, created_at, updated_at) VALUES (?,?,?,0,?,?,?)",
		email, hash, role, true, now, now)
	if err != nil {
		if isDuplicate(err) {
			return 0, ErrEmailExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", email))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id))
}

// GetByIDForUpdateTx loads a user inside tx and, on MySQL, locks the row
// until the transaction ends so balance checks cannot interleave.
func (r *UserRepo) GetByIDForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (model.User, error) {
	return scanUser(tx.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1"+r.lock, id))
}

// DebitTokensTx subtracts n tokens when the balance covers it.  It returns
// false without changing anything when the balance is insufficient, so the
// balance can never go negative even without a row lock.
func (r *UserRepo) DebitTokensTx(ctx context.Context, tx *sql.Tx, id uint64, n int64) (bool, error) {
	res, err := tx.ExecContext(ctx,
		"UPDATE users SET connection_tokens = connection_tokens - ?, updated_at = ? WHERE id = ? AND connection_tokens >= ?",
		n, Now(), id, n)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// CreditTokensTx adds n tokens to the user's balance.
func (r *UserRepo) CreditTokensTx(ctx context.Context, tx *sql.Tx, id uint64, n int64) error {
	res, err := tx.ExecContext(ctx,
		"UPDATE users SET connection_tokens = connection_tokens + ?, updated_at = ? WHERE id = ?",
		n, Now(), id)
	if err != nil {
		return err
	}
	if affected, err := res.RowsAffected(); err != nil {
		return err
	} else if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns users ordered by id, newest first.
func (r *UserRepo) List(ctx context.Context, limit, offset int) ([]model.User, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users ORDER BY id DESC LIMIT ? OFFSET ?", limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	users := make([]model.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// Count returns the number of user accounts.
func (r *UserRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&n)
	return n, err
}
