package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/biodata-connect/internal/model"
)

// ProfileViewRepo provides access to the profile_views ledger.
type ProfileViewRepo struct {
	db *sql.DB
}

// NewProfileViewRepo returns a ProfileViewRepo bound to db.
func NewProfileViewRepo(db *sql.DB) *ProfileViewRepo { return &ProfileViewRepo{db: db} }

// ExistsSinceTx reports whether viewerKey already has a view of biodataID
// recorded at or after since.
func (r *ProfileViewRepo) ExistsSinceTx(ctx context.Context, tx *sql.Tx, biodataID uint64, viewerKey string, since time.Time) (bool, error) {
	var n int
	err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM profile_views WHERE biodata_id = ? AND viewer_key = ? AND viewed_at >= ?",
		biodataID, viewerKey, since.UTC()).Scan(&n)
	return n > 0, err
}

// CreateTx appends v to the ledger and sets its ID.
func (r *ProfileViewRepo) CreateTx(ctx context.Context, tx *sql.Tx, v *model.ProfileView) error {
	if v.ViewedAt.IsZero() {
		v.ViewedAt = Now()
	}
	res, err := tx.ExecContext(ctx,
		"INSERT INTO profile_views (biodata_id, viewer_id, viewer_key, ip_address, user_agent, viewed_at) VALUES (?,?,?,?,?,?)",
		v.BiodataID, v.ViewerID, v.ViewerKey, v.IPAddress, v.UserAgent, v.ViewedAt.UTC())
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	v.ID = uint64(id)
	return nil
}

// CountSince counts views of biodataID recorded at or after since.  A zero
// since counts every view.
func (r *ProfileViewRepo) CountSince(ctx context.Context, biodataID uint64, since time.Time) (int64, error) {
	q := "SELECT COUNT(*) FROM profile_views WHERE biodata_id = ?"
	args := []any{biodataID}
	if !since.IsZero() {
		q += " AND viewed_at >= ?"
		args = append(args, since.UTC())
	}
	var n int64
	err := r.db.QueryRowContext(ctx, q, args...).Scan(&n)
	return n, err
}
