package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/iliyamo/biodata-connect/internal/model"
)

// BiodataRepo provides access to the biodata table.  Listing queries only
// ever select public columns; contact columns are read through the full
// record accessors used by the owner and contact access paths.
type BiodataRepo struct {
	db   *sql.DB
	lock string
}

// NewBiodataRepo returns a BiodataRepo bound to db.
func NewBiodataRepo(db *sql.DB, driver string) *BiodataRepo {
	return &BiodataRepo{db: db, lock: lockClause(driver)}
}

const biodataColumns = `id, user_id, full_name, gender, date_of_birth, marital_status, religion,
       occupation, education, district, about, email, own_mobile, guardian_mobile,
       status, view_count, created_at, updated_at`

func scanBiodata(row interface{ Scan(...any) error }) (*model.Biodata, error) {
	var (
		b      model.Biodata
		userID sql.NullInt64
		dob    sql.NullTime
		about  sql.NullString
	)
	err := row.Scan(&b.ID, &userID, &b.FullName, &b.Gender, &dob, &b.MaritalStatus, &b.Religion,
		&b.Occupation, &b.Education, &b.District, &about, &b.Email, &b.OwnMobile, &b.GuardianMobile,
		&b.Status, &b.ViewCount, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	if userID.Valid {
		uid := uint64(userID.Int64)
		b.UserID = &uid
	}
	if dob.Valid {
		d := dob.Time
		b.DateOfBirth = &d
	}
	b.About = about.String
	return &b, nil
}

// GetByID returns the full record including contact fields.
func (r *BiodataRepo) GetByID(ctx context.Context, id uint64) (*model.Biodata, error) {
	return scanBiodata(r.db.QueryRowContext(ctx,
		"SELECT "+biodataColumns+" FROM biodata WHERE id = ?", id))
}

// GetByIDTx is GetByID within tx.  With lock set the row stays locked on
// MySQL until tx ends.
func (r *BiodataRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64, lock bool) (*model.Biodata, error) {
	q := "SELECT " + biodataColumns + " FROM biodata WHERE id = ?"
	if lock {
		q += r.lock
	}
	return scanBiodata(tx.QueryRowContext(ctx, q, id))
}

// GetByUserID returns the biodata owned by userID.
func (r *BiodataRepo) GetByUserID(ctx context.Context, userID uint64) (*model.Biodata, error) {
	return scanBiodata(r.db.QueryRowContext(ctx,
		"SELECT "+biodataColumns+" FROM biodata WHERE user_id = ?", userID))
}

// SaveForUser creates or updates the biodata owned by userID.  New records
// start as Pending; updates never touch status or view_count.  The stored
// record is returned.
func (r *BiodataRepo) SaveForUser(ctx context.Context, userID uint64, b *model.Biodata) (*model.Biodata, error) {
	var dob sql.NullTime
	if b.DateOfBirth != nil {
		dob = sql.NullTime{Time: b.DateOfBirth.UTC(), Valid: true}
	}
	now := Now()
	const upd = `UPDATE biodata SET full_name=?, gender=?, date_of_birth=?, marital_status=?, religion=?,
	                    occupation=?, education=?, district=?, about=?, email=?, own_mobile=?,
	                    guardian_mobile=?, updated_at=?
	             WHERE user_id = ?`
	args := []any{b.FullName, b.Gender, dob, b.MaritalStatus, b.Religion, b.Occupation, b.Education,
		b.District, b.About, b.Email, b.OwnMobile, b.GuardianMobile, now}

	res, err := r.db.ExecContext(ctx, upd, append(args, userID)...)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		const ins = `INSERT INTO biodata (full_name, gender, date_of_birth, marital_status, religion,
		                    occupation, education, district, about, email, own_mobile, guardian_mobile,
		                    updated_at, user_id, status, view_count, created_at)
		             VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,0,?)`
		_, err = r.db.ExecContext(ctx, ins, append(args, userID, model.BiodataPending, now)...)
		// a concurrent save for the same user already inserted the row, or
		// MySQL reported zero affected rows for an unchanged update
		if err != nil && !isDuplicate(err) {
			return nil, err
		}
	}
	return r.GetByUserID(ctx, userID)
}

// SetStatus changes the approval status of a biodata.
func (r *BiodataRepo) SetStatus(ctx context.Context, id uint64, status string) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE biodata SET status = ?, updated_at = ? WHERE id = ?", status, Now(), id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		// distinguish "missing" from "already in that status" on MySQL
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// ListActive returns Active biodata matching filter, newest first, in their
// public projection.
func (r *BiodataRepo) ListActive(ctx context.Context, f model.BiodataFilter) ([]model.PublicBiodata, int64, error) {
	where := []string{"status = ?"}
	args := []any{model.BiodataActive}
	if f.Gender != "" {
		where = append(where, "gender = ?")
		args = append(args, f.Gender)
	}
	if f.Religion != "" {
		where = append(where, "religion = ?")
		args = append(args, f.Religion)
	}
	if f.District != "" {
		where = append(where, "district = ?")
		args = append(args, f.District)
	}
	cond := strings.Join(where, " AND ")

	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM biodata WHERE "+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := `SELECT id, full_name, gender, date_of_birth, marital_status, religion, occupation,
	             education, district, about, view_count
	      FROM biodata WHERE ` + cond + ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, q, append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items := make([]model.PublicBiodata, 0)
	for rows.Next() {
		var (
			p     model.PublicBiodata
			dob   sql.NullTime
			about sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.FullName, &p.Gender, &dob, &p.MaritalStatus, &p.Religion,
			&p.Occupation, &p.Education, &p.District, &about, &p.ViewCount); err != nil {
			return nil, 0, err
		}
		if dob.Valid {
			d := dob.Time
			p.DateOfBirth = &d
		}
		p.About = about.String
		items = append(items, p)
	}
	return items, total, rows.Err()
}

// IncrementViewCountTx bumps the denormalised counter by one.
func (r *BiodataRepo) IncrementViewCountTx(ctx context.Context, tx *sql.Tx, id uint64) error {
	_, err := tx.ExecContext(ctx, "UPDATE biodata SET view_count = view_count + 1 WHERE id = ?", id)
	return err
}

// ReconcileViewCounts rewrites every view_count from the profile_views
// ledger and returns the number of rows whose counter drifted.
func (r *BiodataRepo) ReconcileViewCounts(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE biodata
	    SET view_count = (SELECT COUNT(*) FROM profile_views pv WHERE pv.biodata_id = biodata.id)
	    WHERE view_count <> (SELECT COUNT(*) FROM profile_views pv WHERE pv.biodata_id = biodata.id)`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountByStatus returns the number of biodata per status.
func (r *BiodataRepo) CountByStatus(ctx context.Context) (map[string]int64, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM biodata GROUP BY status")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int64{}
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] = n
	}
	return out, rows.Err()
}
