package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/rs/zerolog/log"
)

// inTx runs fn inside a transaction, committing when fn returns nil and
// rolling back otherwise.  fn must only use tx; on SQLite the pool holds a
// single connection, so touching the *sql.DB from inside fn would block.
func inTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// EventPublisher delivers ledger events to the message broker.
type EventPublisher interface {
	Publish(ctx context.Context, queue string, event any) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, string, any) error { return nil }

// emit publishes event in the background.  Events are best-effort and never
// fail or delay the operation that produced them.
func emit(p EventPublisher, queue string, event any) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.Publish(ctx, queue, event); err != nil {
			log.Warn().Err(err).Str("queue", queue).Msg("ledger event not published")
		}
	}()
}
