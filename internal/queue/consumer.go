package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Consumer listens on every ledger queue and appends one JSON line per
// event to a ledger log file.
type Consumer struct {
	url string
	mu  sync.Mutex
	out zerolog.Logger
}

// NewConsumer returns a Consumer writing to w.
func NewConsumer(url string, w io.Writer) *Consumer {
	return &Consumer{url: url, out: zerolog.New(w).With().Timestamp().Logger()}
}

// OpenLedgerLog opens (creating as needed) the append-only ledger file.
func OpenLedgerLog(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir logs: %w", err)
	}
	return os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
}

// Run connects to the broker and consumes until ctx is cancelled,
// reconnecting with exponential backoff whenever the connection drops.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			log.Warn().Err(err).Dur("retry_in", backoff).Msg("ledger-consumer: dial failed")
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn().Err(err).Msg("ledger-consumer: consume loop ended; reconnecting")
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		log.Warn().Err(err).Msg("ledger-consumer: set QoS failed")
	}

	cases := make([]reflect.SelectCase, 0, len(Queues)+1)
	cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ctx.Done())})
	for _, q := range Queues {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			return fmt.Errorf("queue declare %s: %w", q, err)
		}
		msgs, err := ch.Consume(q, "", false, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("queue consume %s: %w", q, err)
		}
		cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(msgs)})
	}
	log.Info().Strs("queues", Queues).Msg("ledger-consumer: listening")

	for {
		i, v, ok := reflect.Select(cases)
		if i == 0 {
			return ctx.Err()
		}
		if !ok {
			return errors.New("deliveries channel closed")
		}
		d := v.Interface().(amqp.Delivery)
		if err := c.Handle(Queues[i-1], d.Body); err != nil {
			log.Error().Err(err).Str("queue", Queues[i-1]).Msg("ledger-consumer: handle message failed")
			_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
			continue
		}
		_ = d.Ack(false)
	}
}

// Handle validates one message from queue and writes it to the ledger log.
func (c *Consumer) Handle(queue string, body []byte) error {
	var ev *zerolog.Event
	c.mu.Lock()
	defer c.mu.Unlock()

	switch queue {
	case QueueConnectionPurchased:
		var e ConnectionPurchasedEvent
		if err := json.Unmarshal(body, &e); err != nil {
			return fmt.Errorf("unmarshal: %w", err)
		}
		ev = c.out.Info().
			Uint64("connection_id", e.ConnectionID).
			Uint64("buyer_id", e.BuyerID).
			Uint64("biodata_id", e.BiodataID).
			Int64("tokens_used", e.TokensUsed).
			Int64("remaining_tokens", e.RemainingTokens).
			Str("purchased_at", e.PurchasedAt)
	case QueuePaymentCompleted, QueuePaymentFailed:
		var e PaymentEvent
		if err := json.Unmarshal(body, &e); err != nil {
			return fmt.Errorf("unmarshal: %w", err)
		}
		ev = c.out.Info().
			Uint64("payment_id", e.PaymentID).
			Uint64("user_id", e.UserID).
			Str("bkash_payment_id", e.BkashPaymentID).
			Str("amount", e.Amount).
			Int64("tokens", e.Tokens).
			Str("status", e.Status).
			Str("occurred_at", e.OccurredAt)
		if e.ProviderTrxID != "" {
			ev = ev.Str("provider_trx_id", e.ProviderTrxID)
		}
		if e.Reason != "" {
			ev = ev.Str("reason", e.Reason)
		}
	default:
		return fmt.Errorf("unknown queue %q", queue)
	}
	ev.Str("event", queue).Send()
	return nil
}
