package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/iliyamo/biodata-connect/internal/model"
	"github.com/iliyamo/biodata-connect/internal/queue"
	"github.com/iliyamo/biodata-connect/internal/repository"
)

// ConnectionService sells and checks access to biodata contact fields.
type ConnectionService struct {
	db      *sql.DB
	users   *repository.UserRepo
	biodata *repository.BiodataRepo
	conns   *repository.ConnectionRepo
	events  EventPublisher
}

// NewConnectionService wires the connection ledger.  events may be nil.
func NewConnectionService(db *sql.DB, users *repository.UserRepo, biodata *repository.BiodataRepo,
	conns *repository.ConnectionRepo, events EventPublisher) *ConnectionService {
	if events == nil {
		events = nopPublisher{}
	}
	return &ConnectionService{db: db, users: users, biodata: biodata, conns: conns, events: events}
}

// PurchaseResult is returned by PurchaseContact.
type PurchaseResult struct {
	Connection  model.Connection  `json:"connection"`
	ContactInfo model.ContactInfo `json:"contact_info"`
}

// PurchaseContact spends one token of buyerID to unlock the contact fields of
// biodataID.  The checks and both writes happen in one transaction; the
// buyer row is locked first so concurrent purchases by the same buyer queue
// up behind it.
func (s *ConnectionService) PurchaseContact(ctx context.Context, buyerID, biodataID uint64) (*PurchaseResult, error) {
	var (
		res       PurchaseResult
		remaining int64
	)
	err := inTx(ctx, s.db, func(tx *sql.Tx) error {
		buyer, err := s.users.GetByIDForUpdateTx(ctx, tx, buyerID)
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: user %d", ErrNotFound, buyerID)
		}
		if err != nil {
			return err
		}
		if buyer.ConnectionTokens < model.TokensPerConnection {
			// a buyer who already holds access is told so rather than
			// being asked to buy more tokens
			if active, err := s.conns.HasActive(ctx, tx, buyerID, biodataID); err == nil && active {
				return ErrAlreadyGranted
			}
			return ErrInsufficientBalance
		}

		b, err := s.biodata.GetByIDTx(ctx, tx, biodataID, false)
		if errors.Is(err, repository.ErrNotFound) || (err == nil && b.Status != model.BiodataActive) {
			return fmt.Errorf("%w: biodata %d", ErrNotFound, biodataID)
		}
		if err != nil {
			return err
		}
		if b.OwnedBy(buyerID) {
			return fmt.Errorf("%w: cannot purchase own contact", ErrInvalidOperation)
		}

		active, err := s.conns.HasActive(ctx, tx, buyerID, biodataID)
		if err != nil {
			return err
		}
		if active {
			return ErrAlreadyGranted
		}

		conn, err := s.conns.CreateTx(ctx, tx, buyerID, biodataID, model.TokensPerConnection)
		if errors.Is(err, repository.ErrDuplicate) {
			return ErrAlreadyGranted
		}
		if err != nil {
			return err
		}
		ok, err := s.users.DebitTokensTx(ctx, tx, buyerID, model.TokensPerConnection)
		if err != nil {
			return err
		}
		if !ok {
			return ErrInsufficientBalance
		}

		res.Connection = conn
		res.ContactInfo = model.ContactInfo{Email: b.Email, OwnMobile: b.OwnMobile, GuardianMobile: b.GuardianMobile}
		remaining = buyer.ConnectionTokens - model.TokensPerConnection
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().Uint64("buyer_id", buyerID).Uint64("biodata_id", biodataID).
		Uint64("connection_id", res.Connection.ID).Int64("remaining_tokens", remaining).
		Msg("contact purchased")
	emit(s.events, queue.QueueConnectionPurchased, queue.ConnectionPurchasedEvent{
		ConnectionID:    res.Connection.ID,
		BuyerID:         buyerID,
		BiodataID:       biodataID,
		TokensUsed:      res.Connection.TokensUsed,
		RemainingTokens: remaining,
		PurchasedAt:     res.Connection.CreatedAt.Format(time.RFC3339),
	})
	return &res, nil
}

// HasContactAccess reports whether userID owns biodataID or holds an active
// connection to it.  A missing biodata yields false.
func (s *ConnectionService) HasContactAccess(ctx context.Context, userID, biodataID uint64) (bool, error) {
	_, ok, err := s.access(ctx, userID, biodataID)
	return ok, err
}

func (s *ConnectionService) access(ctx context.Context, userID, biodataID uint64) (*model.Biodata, bool, error) {
	b, err := s.biodata.GetByID(ctx, biodataID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if b.OwnedBy(userID) {
		return b, true, nil
	}
	ok, err := s.conns.HasActive(ctx, nil, userID, biodataID)
	if err != nil {
		return nil, false, err
	}
	return b, ok, nil
}

// GetBiodataContact returns the contact projection of biodataID when userID
// has access to it, ErrAccessDenied otherwise.
func (s *ConnectionService) GetBiodataContact(ctx context.Context, userID, biodataID uint64) (model.ContactProjection, error) {
	b, ok, err := s.access(ctx, userID, biodataID)
	if err != nil {
		return model.ContactProjection{}, err
	}
	if !ok {
		return model.ContactProjection{}, ErrAccessDenied
	}
	return b.Contact(), nil
}

// GetUserConnections lists userID's active connections with the purchased
// contacts.
func (s *ConnectionService) GetUserConnections(ctx context.Context, userID uint64) ([]model.ConnectionDetail, error) {
	return s.conns.ListActiveByBuyer(ctx, userID)
}

// ConnectionStats holds either the per-user or the global statistics.
type ConnectionStats struct {
	*model.UserConnectionStats
	*model.GlobalConnectionStats
}

// GetConnectionStats returns per-user statistics when userID is set and
// global statistics otherwise.  Users may only read their own statistics;
// the global figures and other users' statistics require an admin.
func (s *ConnectionService) GetConnectionStats(ctx context.Context, p model.Principal, userID *uint64) (ConnectionStats, error) {
	if userID == nil {
		if !p.IsAdmin() {
			return ConnectionStats{}, ErrForbidden
		}
		total, active, err := s.conns.CountGlobal(ctx)
		if err != nil {
			return ConnectionStats{}, err
		}
		return ConnectionStats{GlobalConnectionStats: &model.GlobalConnectionStats{
			TotalConnections: total, ActiveConnections: active,
		}}, nil
	}

	if *userID != p.UserID && !p.IsAdmin() {
		return ConnectionStats{}, ErrForbidden
	}
	u, err := s.users.GetByID(ctx, *userID)
	if errors.Is(err, repository.ErrNotFound) {
		return ConnectionStats{}, fmt.Errorf("%w: user %d", ErrNotFound, *userID)
	}
	if err != nil {
		return ConnectionStats{}, err
	}
	n, err := s.conns.CountByBuyer(ctx, *userID)
	if err != nil {
		return ConnectionStats{}, err
	}
	return ConnectionStats{UserConnectionStats: &model.UserConnectionStats{
		TotalPurchased: n, RemainingTokens: u.ConnectionTokens,
	}}, nil
}

// GetAllConnections lists every connection.  Superadmin only.
func (s *ConnectionService) GetAllConnections(ctx context.Context, p model.Principal, limit, offset int) ([]model.Connection, error) {
	if !p.IsSuperAdmin() {
		return nil, ErrForbidden
	}
	return s.conns.ListAll(ctx, limit, offset)
}
