package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/iliyamo/biodata-connect/internal/model"
	"github.com/iliyamo/biodata-connect/internal/repository"
)

// Reasons reported by TrackProfileView.
const (
	ReasonOwnerView        = "Owner view not counted"
	ReasonAlreadyViewed    = "Already viewed within 24 hours"
	ReasonCounted          = "View counted successfully"
	ReasonNoViewerIdentity = "Viewer identity unavailable"
)

// ViewDedupWindow is the rolling window in which a viewer counts once.
const ViewDedupWindow = 24 * time.Hour

// ViewGuard claims a (biodata, viewer) pair ahead of the database check.
type ViewGuard interface {
	Claim(ctx context.Context, biodataID uint64, viewerKey string, window time.Duration) (bool, error)
	Release(ctx context.Context, biodataID uint64, viewerKey string) error
}

// ViewService records deduplicated profile views.
type ViewService struct {
	db      *sql.DB
	biodata *repository.BiodataRepo
	views   *repository.ProfileViewRepo
	guard   ViewGuard
	loc     *time.Location
	now     func() time.Time
}

// NewViewService wires the view ledger.  guard may be nil, in which case
// the database check alone deduplicates.  loc sets where "this month"
// starts.
func NewViewService(db *sql.DB, biodata *repository.BiodataRepo, views *repository.ProfileViewRepo,
	guard ViewGuard, loc *time.Location) *ViewService {
	if loc == nil {
		loc = time.UTC
	}
	return &ViewService{db: db, biodata: biodata, views: views, guard: guard, loc: loc, now: time.Now}
}

// ViewerKey returns the dedup identity: the user id when authenticated,
// the IP address otherwise, "" when neither is known.
func ViewerKey(viewerID *uint64, ip string) string {
	if viewerID != nil {
		return "u:" + strconv.FormatUint(*viewerID, 10)
	}
	if ip != "" {
		return "ip:" + ip
	}
	return ""
}

// TrackProfileView counts a view of biodataID unless it is the owner's own
// view or the same viewer was already counted within ViewDedupWindow.
func (s *ViewService) TrackProfileView(ctx context.Context, biodataID uint64, viewerID *uint64, ip, userAgent string) (model.ViewResult, error) {
	b, err := s.biodata.GetByID(ctx, biodataID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.ViewResult{}, fmt.Errorf("%w: biodata %d", ErrNotFound, biodataID)
	}
	if err != nil {
		return model.ViewResult{}, err
	}
	if viewerID != nil && b.OwnedBy(*viewerID) {
		return model.ViewResult{Counted: false, Reason: ReasonOwnerView}, nil
	}
	key := ViewerKey(viewerID, ip)
	if key == "" {
		return model.ViewResult{Counted: false, Reason: ReasonNoViewerIdentity}, nil
	}

	claimed := false
	if s.guard != nil {
		ok, err := s.guard.Claim(ctx, biodataID, key, ViewDedupWindow)
		switch {
		case err != nil:
			log.Warn().Err(err).Msg("view guard unavailable; relying on database check")
		case !ok:
			return model.ViewResult{Counted: false, Reason: ReasonAlreadyViewed}, nil
		default:
			claimed = true
		}
	}

	now := s.now().UTC()
	counted := false
	err = inTx(ctx, s.db, func(tx *sql.Tx) error {
		// serialises concurrent views of the same biodata on MySQL
		if _, err := s.biodata.GetByIDTx(ctx, tx, biodataID, true); err != nil {
			return err
		}
		seen, err := s.views.ExistsSinceTx(ctx, tx, biodataID, key, now.Add(-ViewDedupWindow))
		if err != nil || seen {
			return err
		}
		v := &model.ProfileView{
			BiodataID: biodataID,
			ViewerID:  viewerID,
			ViewerKey: key,
			UserAgent: userAgent,
			ViewedAt:  now,
		}
		if ip != "" {
			v.IPAddress = &ip
		}
		if err := s.views.CreateTx(ctx, tx, v); err != nil {
			return err
		}
		if err := s.biodata.IncrementViewCountTx(ctx, tx, biodataID); err != nil {
			return err
		}
		counted = true
		return nil
	})
	if claimed && (err != nil || !counted) {
		// the guard must not outlive the view it stands for
		if rerr := s.guard.Release(ctx, biodataID, key); rerr != nil {
			log.Warn().Err(rerr).Msg("view guard release failed")
		}
	}
	if err != nil {
		return model.ViewResult{}, err
	}
	if !counted {
		return model.ViewResult{Counted: false, Reason: ReasonAlreadyViewed}, nil
	}
	return model.ViewResult{Counted: true, Reason: ReasonCounted}, nil
}

// GetProfileViewCount returns the denormalised view counter of biodataID.
func (s *ViewService) GetProfileViewCount(ctx context.Context, biodataID uint64) (int64, error) {
	b, err := s.biodata.GetByID(ctx, biodataID)
	if errors.Is(err, repository.ErrNotFound) {
		return 0, fmt.Errorf("%w: biodata %d", ErrNotFound, biodataID)
	}
	if err != nil {
		return 0, err
	}
	return b.ViewCount, nil
}

// GetUserProfileViewStats summarises views of userID's own biodata.  A user
// without a biodata has no views.
func (s *ViewService) GetUserProfileViewStats(ctx context.Context, userID uint64) (model.ProfileViewStats, error) {
	b, err := s.biodata.GetByUserID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.ProfileViewStats{}, nil
	}
	if err != nil {
		return model.ProfileViewStats{}, err
	}
	now := s.now()
	recent, err := s.views.CountSince(ctx, b.ID, now.Add(-7*24*time.Hour))
	if err != nil {
		return model.ProfileViewStats{}, err
	}
	month, err := s.views.CountSince(ctx, b.ID, monthStart(now, s.loc))
	if err != nil {
		return model.ProfileViewStats{}, err
	}
	return model.ProfileViewStats{TotalViews: b.ViewCount, RecentViews: recent, ViewsThisMonth: month}, nil
}

// monthStart returns local midnight on the first day of t's month in loc.
func monthStart(t time.Time, loc *time.Location) time.Time {
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), 1, 0, 0, 0, 0, loc)
}
