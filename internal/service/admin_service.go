package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/biodata-connect/internal/model"
	"github.com/iliyamo/biodata-connect/internal/repository"
)

// AdminService backs the admin panel.  Every operation requires an admin or
// superadmin principal.
type AdminService struct {
	users    *repository.UserRepo
	biodata  *repository.BiodataRepo
	conns    *repository.ConnectionRepo
	payments *repository.PaymentRepo
}

func NewAdminService(users *repository.UserRepo, biodata *repository.BiodataRepo,
	conns *repository.ConnectionRepo, payments *repository.PaymentRepo) *AdminService {
	return &AdminService{users: users, biodata: biodata, conns: conns, payments: payments}
}

// GlobalStats is the admin dashboard summary.
type GlobalStats struct {
	Users             int64            `json:"users"`
	BiodataByStatus   map[string]int64 `json:"biodata_by_status"`
	TotalConnections  int64            `json:"total_connections"`
	ActiveConnections int64            `json:"active_connections"`
	CompletedPayments int64            `json:"completed_payments"`
	Revenue           decimal.Decimal  `json:"revenue"`
}

// Stats returns the dashboard summary.
func (s *AdminService) Stats(ctx context.Context, p model.Principal) (*GlobalStats, error) {
	if !p.IsAdmin() {
		return nil, ErrForbidden
	}
	var (
		st  GlobalStats
		err error
	)
	if st.Users, err = s.users.Count(ctx); err != nil {
		return nil, err
	}
	if st.BiodataByStatus, err = s.biodata.CountByStatus(ctx); err != nil {
		return nil, err
	}
	if st.TotalConnections, st.ActiveConnections, err = s.conns.CountGlobal(ctx); err != nil {
		return nil, err
	}
	if st.CompletedPayments, st.Revenue, err = s.payments.SumCompleted(ctx); err != nil {
		return nil, err
	}
	return &st, nil
}

// ListUsers returns a page of users with their token balances.
func (s *AdminService) ListUsers(ctx context.Context, p model.Principal, limit, offset int) ([]model.User, error) {
	if !p.IsAdmin() {
		return nil, ErrForbidden
	}
	return s.users.List(ctx, limit, offset)
}

// SetBiodataStatus approves, hides or rejects a biodata.
func (s *AdminService) SetBiodataStatus(ctx context.Context, p model.Principal, biodataID uint64, status string) error {
	if !p.IsAdmin() {
		return ErrForbidden
	}
	if !model.ValidBiodataStatus(status) {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidOperation, status)
	}
	err := s.biodata.SetStatus(ctx, biodataID, status)
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: biodata %d", ErrNotFound, biodataID)
	}
	if err != nil {
		return err
	}
	log.Info().Uint64("admin_id", p.UserID).Uint64("biodata_id", biodataID).Str("status", status).Msg("biodata status changed")
	return nil
}

// ReconcileViewCounts rebuilds every biodata view counter from the view
// ledger and returns how many counters were corrected.
func (s *AdminService) ReconcileViewCounts(ctx context.Context, p model.Principal) (int64, error) {
	if !p.IsAdmin() {
		return 0, ErrForbidden
	}
	n, err := s.biodata.ReconcileViewCounts(ctx)
	if err != nil {
		return 0, err
	}
	log.Info().Int64("corrected", n).Msg("view counts reconciled")
	return n, nil
}
