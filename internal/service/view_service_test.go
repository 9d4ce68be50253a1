package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/iliyamo/biodata-connect/internal/model"
	"github.com/iliyamo/biodata-connect/internal/testutil"
)

func newViewService(t *testing.T, guard ViewGuard) (*ViewService, stores) {
	t.Helper()
	st := newStores(t)
	return NewViewService(st.db, st.biodata, st.views, guard, time.UTC), st
}

func viewCount(t *testing.T, svc *ViewService, id uint64) int64 {
	t.Helper()
	n, err := svc.GetProfileViewCount(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	return n
}

func TestTrackProfileView_OwnerNotCounted(t *testing.T) {
	svc, st := newViewService(t, nil)
	owner := testutil.CreateUser(t, st.db, "o@example.com", model.RoleUser, 0)
	id := testutil.CreateBiodata(t, st.db, owner, "B", model.BiodataActive)

	res, err := svc.TrackProfileView(context.Background(), id, &owner, "1.2.3.4", "ua")
	if err != nil {
		t.Fatal(err)
	}
	if res.Counted || res.Reason != ReasonOwnerView {
		t.Fatalf("result = %+v", res)
	}
	if n := viewCount(t, svc, id); n != 0 {
		t.Fatalf("view_count = %d", n)
	}
}

func TestTrackProfileView_DedupWithinWindow(t *testing.T) {
	for _, withGuard := range []bool{false, true} {
		name := "Given no guard"
		var guard ViewGuard
		if withGuard {
			name = "Given a guard"
			guard = &fakeGuard{}
		}
		t.Run(name+" When an anonymous IP views twice within an hour Then it counts once", func(t *testing.T) {
			svc, st := newViewService(t, guard)
			owner := testutil.CreateUser(t, st.db, "o@example.com", model.RoleUser, 0)
			id := testutil.CreateBiodata(t, st.db, owner, "B", model.BiodataActive)
			now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
			svc.now = func() time.Time { return now }
			ctx := context.Background()

			first, err := svc.TrackProfileView(ctx, id, nil, "1.2.3.4", "ua")
			if err != nil || !first.Counted || first.Reason != ReasonCounted {
				t.Fatalf("first = %+v, %v", first, err)
			}
			now = now.Add(time.Hour)
			second, err := svc.TrackProfileView(ctx, id, nil, "1.2.3.4", "ua")
			if err != nil || second.Counted || second.Reason != ReasonAlreadyViewed {
				t.Fatalf("second = %+v, %v", second, err)
			}
			if n := viewCount(t, svc, id); n != 1 {
				t.Fatalf("view_count = %d, want 1", n)
			}

			other, err := svc.TrackProfileView(ctx, id, nil, "5.6.7.8", "ua")
			if err != nil || !other.Counted {
				t.Fatalf("other ip = %+v, %v", other, err)
			}
		})
	}
}

func TestTrackProfileView_WindowExpires(t *testing.T) {
	svc, st := newViewService(t, nil)
	owner := testutil.CreateUser(t, st.db, "o@example.com", model.RoleUser, 0)
	viewer := testutil.CreateUser(t, st.db, "v@example.com", model.RoleUser, 0)
	id := testutil.CreateBiodata(t, st.db, owner, "B", model.BiodataActive)
	now := time.Now().UTC().Add(-48 * time.Hour)
	svc.now = func() time.Time { return now }
	ctx := context.Background()

	if res, _ := svc.TrackProfileView(ctx, id, &viewer, "1.2.3.4", "ua"); !res.Counted {
		t.Fatal("first view not counted")
	}
	// same user from another address is the same viewer
	if res, _ := svc.TrackProfileView(ctx, id, &viewer, "9.9.9.9", "ua"); res.Counted {
		t.Fatal("same user counted twice")
	}
	now = now.Add(25 * time.Hour)
	if res, _ := svc.TrackProfileView(ctx, id, &viewer, "1.2.3.4", "ua"); !res.Counted {
		t.Fatal("view after window not counted")
	}
	if n := viewCount(t, svc, id); n != 2 {
		t.Fatalf("view_count = %d, want 2", n)
	}
}

func TestTrackProfileView_ConcurrentSameViewer(t *testing.T) {
	svc, st := newViewService(t, nil)
	owner := testutil.CreateUser(t, st.db, "o@example.com", model.RoleUser, 0)
	id := testutil.CreateBiodata(t, st.db, owner, "B", model.BiodataActive)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.TrackProfileView(context.Background(), id, nil, "1.2.3.4", "ua"); err != nil {
				t.Errorf("TrackProfileView: %v", err)
			}
		}()
	}
	wg.Wait()

	if n := viewCount(t, svc, id); n != 1 {
		t.Fatalf("view_count = %d, want 1", n)
	}
	if n := testutil.CountRows(t, st.db, "profile_views", ""); n != 1 {
		t.Fatalf("profile_views = %d, want 1", n)
	}
}

func TestTrackProfileView_GuardReleasedWhenDatabaseAlreadyHasView(t *testing.T) {
	guard := &fakeGuard{}
	svc, st := newViewService(t, guard)
	owner := testutil.CreateUser(t, st.db, "o@example.com", model.RoleUser, 0)
	id := testutil.CreateBiodata(t, st.db, owner, "B", model.BiodataActive)
	ctx := context.Background()

	if _, err := svc.TrackProfileView(ctx, id, nil, "1.2.3.4", "ua"); err != nil {
		t.Fatal(err)
	}
	// simulate a cache flush: the database still remembers the view
	guard.claims = nil
	res, err := svc.TrackProfileView(ctx, id, nil, "1.2.3.4", "ua")
	if err != nil || res.Counted {
		t.Fatalf("res = %+v, %v", res, err)
	}
	if len(guard.claims) != 0 {
		t.Fatalf("guard kept a claim for an uncounted view: %v", guard.claims)
	}
}

func TestTrackProfileView_EdgeCases(t *testing.T) {
	svc, st := newViewService(t, nil)
	owner := testutil.CreateUser(t, st.db, "o@example.com", model.RoleUser, 0)
	id := testutil.CreateBiodata(t, st.db, owner, "B", model.BiodataActive)
	ctx := context.Background()

	if _, err := svc.TrackProfileView(ctx, id+10, nil, "1.2.3.4", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing biodata err = %v", err)
	}
	res, err := svc.TrackProfileView(ctx, id, nil, "", "")
	if err != nil || res.Counted || res.Reason != ReasonNoViewerIdentity {
		t.Fatalf("anonymous without ip = %+v, %v", res, err)
	}
	if _, err := svc.GetProfileViewCount(ctx, id+10); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetProfileViewCount missing err = %v", err)
	}
}

func TestGetUserProfileViewStats(t *testing.T) {
	dhaka := time.FixedZone("BST", 6*3600)
	st := newStores(t)
	svc := NewViewService(st.db, st.biodata, st.views, nil, dhaka)
	owner := testutil.CreateUser(t, st.db, "o@example.com", model.RoleUser, 0)
	id := testutil.CreateBiodata(t, st.db, owner, "B", model.BiodataActive)
	ctx := context.Background()

	// 2026-03-02 03:00 in Dhaka is 2026-03-01 21:00 UTC
	now := time.Date(2026, 3, 1, 21, 0, 0, 0, time.UTC)
	views := []struct {
		ip string
		at time.Time
	}{
		{"10.0.0.1", now.Add(-1 * time.Hour)},       // this month, recent
		{"10.0.0.2", now.Add(-4 * time.Hour)},       // 17:00 UTC = 23:00 Mar 1 local: this month
		{"10.0.0.3", now.Add(-6 * 24 * time.Hour)},  // recent, last month
		{"10.0.0.4", now.Add(-20 * 24 * time.Hour)}, // neither
	}
	for _, v := range views {
		at := v.at
		svc.now = func() time.Time { return at }
		if res, err := svc.TrackProfileView(ctx, id, nil, v.ip, "ua"); err != nil || !res.Counted {
			t.Fatalf("seed view: %+v %v", res, err)
		}
	}
	svc.now = func() time.Time { return now }

	stats, err := svc.GetUserProfileViewStats(ctx, owner)
	if err != nil {
		t.Fatal(err)
	}
	want := model.ProfileViewStats{TotalViews: 4, RecentViews: 3, ViewsThisMonth: 2}
	if stats != want {
		t.Fatalf("stats = %+v, want %+v", stats, want)
	}

	none, err := svc.GetUserProfileViewStats(ctx, owner+100)
	if err != nil || none != (model.ProfileViewStats{}) {
		t.Fatalf("stats without biodata = %+v, %v", none, err)
	}
}

func TestMonthStart(t *testing.T) {
	loc := time.FixedZone("BST", 6*3600)
	got := monthStart(time.Date(2026, 1, 31, 20, 0, 0, 0, time.UTC), loc)
	want := time.Date(2026, 2, 1, 0, 0, 0, 0, loc)
	if !got.Equal(want) {
		t.Fatalf("monthStart = %v, want %v", got, want)
	}
}
