package service

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/iliyamo/biodata-connect/internal/database"
	"github.com/iliyamo/biodata-connect/internal/repository"
	"github.com/iliyamo/biodata-connect/internal/testutil"
)

type published struct {
	queue string
	event any
}

// fakePublisher records events; emit publishes from a goroutine so tests
// read them from the channel.
type fakePublisher struct {
	ch chan published
}

func newFakePublisher() *fakePublisher { return &fakePublisher{ch: make(chan published, 16)} }

func (f *fakePublisher) Publish(_ context.Context, queue string, event any) error {
	f.ch <- published{queue: queue, event: event}
	return nil
}

func (f *fakePublisher) next(t *testing.T) published {
	t.Helper()
	select {
	case p := <-f.ch:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("no event published")
		return published{}
	}
}

type stores struct {
	db       *sql.DB
	users    *repository.UserRepo
	biodata  *repository.BiodataRepo
	conns    *repository.ConnectionRepo
	views    *repository.ProfileViewRepo
	payments *repository.PaymentRepo
}

func newStores(t *testing.T) stores {
	t.Helper()
	db := testutil.NewSQLiteDB(t)
	return stores{
		db:       db,
		users:    repository.NewUserRepo(db, database.DriverSQLite),
		biodata:  repository.NewBiodataRepo(db, database.DriverSQLite),
		conns:    repository.NewConnectionRepo(db),
		views:    repository.NewProfileViewRepo(db),
		payments: repository.NewPaymentRepo(db),
	}
}

// fakeGuard is an in-memory ViewGuard.
type fakeGuard struct {
	mu     sync.Mutex
	claims map[string]bool
}

func (g *fakeGuard) Claim(_ context.Context, biodataID uint64, key string, _ time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.claims == nil {
		g.claims = map[string]bool{}
	}
	k := key + "@" + string(rune('0'+biodataID))
	if g.claims[k] {
		return false, nil
	}
	g.claims[k] = true
	return true, nil
}

func (g *fakeGuard) Release(_ context.Context, biodataID uint64, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.claims, key+"@"+string(rune('0'+biodataID)))
	return nil
}
