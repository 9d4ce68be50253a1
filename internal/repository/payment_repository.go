package repository

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/biodata-connect/internal/model"
)

// PaymentRepo provides access to the payments ledger.  A payment leaves
// pending exactly once: FinalizeTx only matches pending rows, so a second
// execution of the same payment cannot credit tokens twice.
type PaymentRepo struct {
	db *sql.DB
}

// NewPaymentRepo returns a PaymentRepo bound to db.
func NewPaymentRepo(db *sql.DB) *PaymentRepo { return &PaymentRepo{db: db} }

const paymentColumns = `id, user_id, amount, tokens, payment_method, transaction_id, bkash_transaction_id,
       provider_trx_id, status, payment_details, created_at, updated_at`

func scanPayment(row interface{ Scan(...any) error }) (model.Payment, error) {
	var (
		p       model.Payment
		trxID   sql.NullString
		details sql.NullString
	)
	err := row.Scan(&p.ID, &p.UserID, &p.Amount, &p.Tokens, &p.PaymentMethod, &p.TransactionID,
		&p.BkashTransactionID, &trxID, &p.Status, &details, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return model.Payment{}, notFound(err)
	}
	if trxID.Valid {
		s := trxID.String
		p.ProviderTrxID = &s
	}
	if details.Valid && details.String != "" {
		p.PaymentDetails = json.RawMessage(details.String)
	}
	return p, nil
}

func nullJSON(raw json.RawMessage) sql.NullString {
	if len(raw) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}

// Create inserts a pending payment and fills in its ID and timestamps.
func (r *PaymentRepo) Create(ctx context.Context, p *model.Payment) error {
	now := Now()
	if p.Status == "" {
		p.Status = model.PaymentPending
	}
	if p.PaymentMethod == "" {
		p.PaymentMethod = model.PaymentMethodBkash
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO payments (user_id, amount, tokens, payment_method, transaction_id, bkash_transaction_id,
		                       provider_trx_id, status, payment_details, created_at, updated_at)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		p.UserID, p.Amount.StringFixed(2), p.Tokens, p.PaymentMethod, p.TransactionID, p.BkashTransactionID,
		p.ProviderTrxID, p.Status, nullJSON(p.PaymentDetails), now, now)
	if err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = uint64(id)
	p.CreatedAt, p.UpdatedAt = now, now
	return nil
}

// GetByBkashID looks a payment up by the provider's paymentID.
func (r *PaymentRepo) GetByBkashID(ctx context.Context, bkashID string) (model.Payment, error) {
	return scanPayment(r.db.QueryRowContext(ctx,
		"SELECT "+paymentColumns+" FROM payments WHERE bkash_transaction_id = ?", bkashID))
}

// GetByBkashIDForUser is GetByBkashID restricted to payments owned by
// userID.  A payment owned by someone else is reported as ErrNotFound.
func (r *PaymentRepo) GetByBkashIDForUser(ctx context.Context, bkashID string, userID uint64) (model.Payment, error) {
	return scanPayment(r.db.QueryRowContext(ctx,
		"SELECT "+paymentColumns+" FROM payments WHERE bkash_transaction_id = ? AND user_id = ?", bkashID, userID))
}

// FinalizeTx moves a pending payment to status, recording the provider
// transaction id and raw details.  It reports false when the payment was no
// longer pending, in which case nothing changed.
func (r *PaymentRepo) FinalizeTx(ctx context.Context, tx *sql.Tx, id uint64, status string, providerTrxID *string, details json.RawMessage) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE payments SET status = ?, provider_trx_id = ?, payment_details = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		status, providerTrxID, nullJSON(details), Now(), id, model.PaymentPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *PaymentRepo) list(ctx context.Context, q string, args ...any) ([]model.Payment, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Payment, 0)
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListByUser returns the user's payments, newest first.
func (r *PaymentRepo) ListByUser(ctx context.Context, userID uint64) ([]model.Payment, error) {
	return r.list(ctx,
		"SELECT "+paymentColumns+" FROM payments WHERE user_id = ? ORDER BY created_at DESC, id DESC", userID)
}

// ListAll returns every payment, newest first.
func (r *PaymentRepo) ListAll(ctx context.Context, limit, offset int) ([]model.Payment, error) {
	return r.list(ctx,
		"SELECT "+paymentColumns+" FROM payments ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?", limit, offset)
}

// SumCompleted returns the number of completed payments and their total
// amount.  Amounts are added as decimals because SQLite stores them as text.
func (r *PaymentRepo) SumCompleted(ctx context.Context) (int64, decimal.Decimal, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT amount FROM payments WHERE status = ?", model.PaymentCompleted)
	if err != nil {
		return 0, decimal.Zero, err
	}
	defer rows.Close()
	var (
		n     int64
		total = decimal.Zero
	)
	for rows.Next() {
		var amt decimal.Decimal
		if err := rows.Scan(&amt); err != nil {
			return 0, decimal.Zero, err
		}
		total = total.Add(amt)
		n++
	}
	return n, total, rows.Err()
}
