package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/biodata-connect/internal/model"
)

// ConnectionRepo provides access to the connections ledger.  At most one
// active row may exist per (buyer, biodata); the uq_connections_active
// index enforces it through active_key, which is 1 for active rows and NULL
// once a row expires.
type ConnectionRepo struct {
	db *sql.DB
}

// NewConnectionRepo returns a ConnectionRepo bound to db.
func NewConnectionRepo(db *sql.DB) *ConnectionRepo { return &ConnectionRepo{db: db} }

const connectionColumns = "c.id, c.buyer_id, c.biodata_id, c.status, c.tokens_used, c.created_at, c.updated_at"

func scanConnection(row interface{ Scan(...any) error }) (model.Connection, error) {
	var c model.Connection
	err := row.Scan(&c.ID, &c.BuyerID, &c.BiodataID, &c.Status, &c.TokensUsed, &c.CreatedAt, &c.UpdatedAt)
	return c, notFound(err)
}

// CreateTx inserts an active connection within tx.  A concurrent purchase
// of the same contact surfaces as ErrDuplicate.
func (r *ConnectionRepo) CreateTx(ctx context.Context, tx *sql.Tx, buyerID, biodataID uint64, tokens int64) (model.Connection, error) {
	now := Now()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO connections (buyer_id, biodata_id, status, tokens_used, active_key, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 1, ?, ?)`,
		buyerID, biodataID, model.ConnectionActive, tokens, now, now)
	if err != nil {
		if isDuplicate(err) {
			return model.Connection{}, ErrDuplicate
		}
		return model.Connection{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Connection{}, err
	}
	return model.Connection{
		ID:         uint64(id),
		BuyerID:    buyerID,
		BiodataID:  biodataID,
		Status:     model.ConnectionActive,
		TokensUsed: tokens,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// HasActive reports whether buyerID holds an active connection to biodataID.
// Pass a *sql.Tx as q to check inside a transaction.
func (r *ConnectionRepo) HasActive(ctx context.Context, q Querier, buyerID, biodataID uint64) (bool, error) {
	if q == nil {
		q = r.db
	}
	var n int
	err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM connections WHERE buyer_id = ? AND biodata_id = ? AND status = ?",
		buyerID, biodataID, model.ConnectionActive).Scan(&n)
	return n > 0, err
}

// ListActiveByBuyer returns the buyer's active connections with the contact
// projection of each purchased biodata, newest first.
func (r *ConnectionRepo) ListActiveByBuyer(ctx context.Context, buyerID uint64) ([]model.ConnectionDetail, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+connectionColumns+`, b.id, b.full_name, b.email, b.own_mobile, b.guardian_mobile
		 FROM connections c JOIN biodata b ON b.id = c.biodata_id
		 WHERE c.buyer_id = ? AND c.status = ?
		 ORDER BY c.created_at DESC, c.id DESC`,
		buyerID, model.ConnectionActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.ConnectionDetail, 0)
	for rows.Next() {
		var d model.ConnectionDetail
		if err := rows.Scan(&d.ID, &d.BuyerID, &d.BiodataID, &d.Status, &d.TokensUsed, &d.CreatedAt, &d.UpdatedAt,
			&d.Biodata.ID, &d.Biodata.FullName, &d.Biodata.Email, &d.Biodata.OwnMobile, &d.Biodata.GuardianMobile); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// CountByBuyer returns how many connections buyerID has ever purchased.
func (r *ConnectionRepo) CountByBuyer(ctx context.Context, buyerID uint64) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM connections WHERE buyer_id = ?", buyerID).Scan(&n)
	return n, err
}

// CountGlobal returns the total and active connection counts.
func (r *ConnectionRepo) CountGlobal(ctx context.Context) (total, active int64, err error) {
	err = r.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) FROM connections",
		model.ConnectionActive).Scan(&total, &active)
	return total, active, err
}

// ListAll returns every connection, newest first.
func (r *ConnectionRepo) ListAll(ctx context.Context, limit, offset int) ([]model.Connection, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+connectionColumns+" FROM connections c ORDER BY c.created_at DESC, c.id DESC LIMIT ? OFFSET ?",
		limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Connection, 0)
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
