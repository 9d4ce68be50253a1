package service

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/biodata-connect/internal/model"
	"github.com/iliyamo/biodata-connect/internal/testutil"
)

func TestAdminService(t *testing.T) {
	ctx := context.Background()
	st := newStores(t)
	svc := NewAdminService(st.users, st.biodata, st.conns, st.payments)
	owner := testutil.CreateUser(t, st.db, "o@example.com", model.RoleUser, 0)
	adminID := testutil.CreateUser(t, st.db, "a@example.com", model.RoleAdmin, 0)
	id := testutil.CreateBiodata(t, st.db, owner, "B", model.BiodataPending)

	user := model.Principal{UserID: owner, Role: model.RoleUser}
	admin := model.Principal{UserID: adminID, Role: model.RoleAdmin}

	t.Run("Given a plain user When calling admin operations Then Forbidden", func(t *testing.T) {
		if _, err := svc.Stats(ctx, user); !errors.Is(err, ErrForbidden) {
			t.Fatalf("Stats err = %v", err)
		}
		if _, err := svc.ListUsers(ctx, user, 10, 0); !errors.Is(err, ErrForbidden) {
			t.Fatalf("ListUsers err = %v", err)
		}
		if err := svc.SetBiodataStatus(ctx, user, id, model.BiodataActive); !errors.Is(err, ErrForbidden) {
			t.Fatalf("SetBiodataStatus err = %v", err)
		}
		if _, err := svc.ReconcileViewCounts(ctx, user); !errors.Is(err, ErrForbidden) {
			t.Fatalf("ReconcileViewCounts err = %v", err)
		}
	})

	t.Run("Given an admin When approving a biodata Then it becomes Active", func(t *testing.T) {
		if err := svc.SetBiodataStatus(ctx, admin, id, model.BiodataActive); err != nil {
			t.Fatal(err)
		}
		b, err := st.biodata.GetByID(ctx, id)
		if err != nil || b.Status != model.BiodataActive {
			t.Fatalf("biodata = %+v, %v", b, err)
		}
		if err := svc.SetBiodataStatus(ctx, admin, id, "Deleted"); !errors.Is(err, ErrInvalidOperation) {
			t.Fatalf("bad status err = %v", err)
		}
		if err := svc.SetBiodataStatus(ctx, admin, id+9, model.BiodataActive); !errors.Is(err, ErrNotFound) {
			t.Fatalf("missing biodata err = %v", err)
		}
	})

	t.Run("Given ledger activity When reading stats Then totals add up", func(t *testing.T) {
		if _, err := st.db.Exec(`INSERT INTO payments (user_id, amount, tokens, payment_method, transaction_id, bkash_transaction_id, status, created_at, updated_at)
			VALUES (?, '200.00', 25, 'bkash', 'INV-1', 'TR1', 'completed', CURRENT_TIMESTAMP, CURRENT_TIMESTAMP),
			       (?, '50.00', 5, 'bkash', 'INV-2', 'TR2', 'pending', CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`, owner, owner); err != nil {
			t.Fatal(err)
		}
		stats, err := svc.Stats(ctx, admin)
		if err != nil {
			t.Fatal(err)
		}
		if stats.Users != 2 || stats.BiodataByStatus[model.BiodataActive] != 1 {
			t.Fatalf("stats = %+v", stats)
		}
		if stats.CompletedPayments != 1 || !stats.Revenue.Equal(decimal.NewFromInt(200)) {
			t.Fatalf("revenue = %d / %s", stats.CompletedPayments, stats.Revenue)
		}
		users, err := svc.ListUsers(ctx, admin, 10, 0)
		if err != nil || len(users) != 2 {
			t.Fatalf("ListUsers = %d, %v", len(users), err)
		}
	})

	t.Run("Given a drifted counter When reconciling Then it matches the ledger", func(t *testing.T) {
		if _, err := st.db.Exec("UPDATE biodata SET view_count = 7 WHERE id = ?", id); err != nil {
			t.Fatal(err)
		}
		n, err := svc.ReconcileViewCounts(ctx, admin)
		if err != nil || n != 1 {
			t.Fatalf("reconciled = %d, %v", n, err)
		}
		b, _ := st.biodata.GetByID(ctx, id)
		if b.ViewCount != 0 {
			t.Fatalf("view_count = %d", b.ViewCount)
		}
	})
}
