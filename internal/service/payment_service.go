package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/biodata-connect/internal/bkash"
	"github.com/iliyamo/biodata-connect/internal/config"
	"github.com/iliyamo/biodata-connect/internal/model"
	"github.com/iliyamo/biodata-connect/internal/queue"
	"github.com/iliyamo/biodata-connect/internal/repository"
)

// PaymentGateway is the subset of the bKash client the payment flow uses.
type PaymentGateway interface {
	Create(ctx context.Context, req bkash.CreateRequest) (*bkash.CreateResponse, error)
	Execute(ctx context.Context, paymentID string) (*bkash.ExecuteResponse, error)
	QueryStatus(ctx context.Context, paymentID string) (*bkash.ExecuteResponse, error)
}

// PaymentService sells connection tokens through the payment gateway.
type PaymentService struct {
	db       *sql.DB
	users    *repository.UserRepo
	payments *repository.PaymentRepo
	gateway  PaymentGateway
	packages []config.TokenPackage
	events   EventPublisher
	now      func() time.Time
}

// NewPaymentService wires the payment ledger.  An empty package list
// accepts any positive amount and token count; events may be nil.
func NewPaymentService(db *sql.DB, users *repository.UserRepo, payments *repository.PaymentRepo,
	gateway PaymentGateway, packages []config.TokenPackage, events EventPublisher) *PaymentService {
	if events == nil {
		events = nopPublisher{}
	}
	return &PaymentService{
		db: db, users: users, payments: payments, gateway: gateway,
		packages: packages, events: events, now: time.Now,
	}
}

// CreatePaymentResult is returned by CreatePayment.
type CreatePaymentResult struct {
	PaymentID string        `json:"payment_id"`
	BkashURL  string        `json:"bkash_url"`
	Payment   model.Payment `json:"payment"`
}

// ExecutePaymentResult is returned by ExecutePayment.
type ExecutePaymentResult struct {
	Success       bool          `json:"success"`
	TransactionID string        `json:"transaction_id"`
	Tokens        int64         `json:"tokens"`
	Payment       model.Payment `json:"payment"`
}

// Packages returns the configured price list.
func (s *PaymentService) Packages() []config.TokenPackage { return s.packages }

func (s *PaymentService) priced(amount decimal.Decimal, tokens int64) bool {
	if tokens <= 0 || !amount.IsPositive() {
		return false
	}
	if len(s.packages) == 0 {
		return true
	}
	for _, p := range s.packages {
		if p.Tokens == tokens && p.Price.Equal(amount) {
			return true
		}
	}
	return false
}

// CreatePayment opens a checkout for tokens at amount and records it as
// pending.  Gateway failures abort before any row is written.
func (s *PaymentService) CreatePayment(ctx context.Context, userID uint64, amount decimal.Decimal, tokens int64, intent string) (*CreatePaymentResult, error) {
	if !s.priced(amount, tokens) {
		return nil, fmt.Errorf("%w: no token package of %d tokens for %s", ErrInvalidOperation, tokens, amount.StringFixed(2))
	}
	if intent == "" {
		intent = "sale"
	}
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: user %d", ErrNotFound, userID)
		}
		return nil, err
	}

	invoice := fmt.Sprintf("INV-%d-%d-%s", s.now().UnixMilli(), userID, uuid.NewString()[:8])
	created, err := s.gateway.Create(ctx, bkash.CreateRequest{
		Amount:         amount,
		PayerReference: strconv.FormatUint(userID, 10),
		Intent:         intent,
		InvoiceNumber:  invoice,
	})
	if err != nil {
		log.Warn().Err(err).Uint64("user_id", userID).Str("invoice", invoice).Msg("payment init failed")
		if errors.Is(err, bkash.ErrTimeout) {
			return nil, fmt.Errorf("%w: %w", ErrPaymentInitFailed, ErrPaymentGatewayTimeout)
		}
		return nil, fmt.Errorf("%w: %v", ErrPaymentInitFailed, err)
	}

	p := model.Payment{
		UserID:             userID,
		Amount:             amount,
		Tokens:             tokens,
		PaymentMethod:      model.PaymentMethodBkash,
		TransactionID:      invoice,
		BkashTransactionID: created.PaymentID,
		Status:             model.PaymentPending,
		PaymentDetails:     mergeDetails(nil, "create", created.Raw),
	}
	if err := s.payments.Create(ctx, &p); err != nil {
		return nil, err
	}
	log.Info().Uint64("user_id", userID).Str("payment_id", p.BkashTransactionID).
		Int64("tokens", tokens).Str("amount", amount.StringFixed(2)).Msg("payment created")
	return &CreatePaymentResult{PaymentID: created.PaymentID, BkashURL: created.BkashURL, Payment: p}, nil
}

// ExecutePayment confirms paymentID with the gateway and, on success,
// credits its tokens to userID.  Only the first successful execution
// credits; repeats return the completed payment unchanged.
func (s *PaymentService) ExecutePayment(ctx context.Context, userID uint64, paymentID string) (*ExecutePaymentResult, error) {
	p, err := s.payments.GetByBkashIDForUser(ctx, paymentID, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: payment %s", ErrNotFound, paymentID)
	}
	if err != nil {
		return nil, err
	}
	switch p.Status {
	case model.PaymentCompleted:
		return completedResult(p), nil
	case model.PaymentFailed, model.PaymentRefunded:
		return nil, fmt.Errorf("%w: payment is %s", ErrPaymentExecutionFailed, p.Status)
	}

	res, err := s.gateway.Execute(ctx, paymentID)
	if err != nil {
		if st := s.capturedStatus(ctx, paymentID); st != nil {
			return s.complete(ctx, p, st.TrxID, mergeDetails(p.PaymentDetails, "status", st.Raw))
		}
		if errors.Is(err, bkash.ErrTimeout) {
			// outcome unknown; stays pending so it can be executed again
			log.Warn().Err(err).Str("payment_id", paymentID).Msg("payment execute timed out")
			return nil, gatewayError(err)
		}
		if _, ferr := s.finalize(ctx, p, model.PaymentFailed, nil, mergeDetails(p.PaymentDetails, "execute_error", errorDetail(err))); ferr != nil {
			return nil, ferr
		}
		return nil, gatewayError(err)
	}

	details := mergeDetails(p.PaymentDetails, "execute", res.Raw)
	if res.Succeeded() {
		return s.complete(ctx, p, res.TrxID, details)
	}

	// A rejected execute may be a repeat of one the provider already
	// captured, so only a status answer that is not Completed is a decline.
	st, err := s.gateway.QueryStatus(ctx, paymentID)
	if err != nil {
		log.Warn().Err(err).Str("payment_id", paymentID).Str("status_code", res.StatusCode).
			Msg("payment status unavailable after rejected execute")
		return nil, gatewayError(err)
	}
	if st.Completed() {
		return s.complete(ctx, p, st.TrxID, mergeDetails(details, "status", st.Raw))
	}
	final, err := s.finalize(ctx, p, model.PaymentFailed, nil, mergeDetails(details, "status", st.Raw))
	if err != nil {
		return nil, err
	}
	if final.Status == model.PaymentCompleted {
		return completedResult(final), nil
	}
	return nil, fmt.Errorf("%w: %s %s", ErrPaymentExecutionFailed, res.StatusCode, res.StatusMessage)
}

// capturedStatus returns the provider's status for paymentID when it reports
// the payment captured, and nil otherwise or when it cannot be reached.
func (s *PaymentService) capturedStatus(ctx context.Context, paymentID string) *bkash.ExecuteResponse {
	st, err := s.gateway.QueryStatus(ctx, paymentID)
	if err != nil {
		log.Warn().Err(err).Str("payment_id", paymentID).Msg("payment status query failed")
		return nil
	}
	if !st.Completed() {
		return nil
	}
	return st
}

func (s *PaymentService) complete(ctx context.Context, p model.Payment, trx string, details json.RawMessage) (*ExecutePaymentResult, error) {
	var trxID *string
	if trx != "" {
		trxID = &trx
	}
	final, err := s.finalize(ctx, p, model.PaymentCompleted, trxID, details)
	if err != nil {
		return nil, err
	}
	if final.Status != model.PaymentCompleted {
		return nil, fmt.Errorf("%w: payment is %s", ErrPaymentExecutionFailed, final.Status)
	}
	return completedResult(final), nil
}

// finalize moves p out of pending and, for completion, credits its tokens in
// the same transaction.  When another request already finalized p the
// stored row is returned untouched.
func (s *PaymentService) finalize(ctx context.Context, p model.Payment, status string, trxID *string, details json.RawMessage) (model.Payment, error) {
	won := false
	err := inTx(ctx, s.db, func(tx *sql.Tx) error {
		ok, err := s.payments.FinalizeTx(ctx, tx, p.ID, status, trxID, details)
		if err != nil || !ok {
			return err
		}
		if status == model.PaymentCompleted {
			if err := s.users.CreditTokensTx(ctx, tx, p.UserID, p.Tokens); err != nil {
				return err
			}
		}
		won = true
		return nil
	})
	if err != nil {
		return model.Payment{}, err
	}
	final, err := s.payments.GetByBkashID(ctx, p.BkashTransactionID)
	if err != nil {
		return model.Payment{}, err
	}
	if won {
		ev := log.Info()
		if status != model.PaymentCompleted {
			ev = log.Warn()
		}
		ev.Uint64("user_id", p.UserID).Str("payment_id", p.BkashTransactionID).
			Str("status", status).Int64("tokens", p.Tokens).Msg("payment finalized")

		q := queue.QueuePaymentCompleted
		if status != model.PaymentCompleted {
			q = queue.QueuePaymentFailed
		}
		event := queue.PaymentEvent{
			PaymentID:      final.ID,
			UserID:         final.UserID,
			BkashPaymentID: final.BkashTransactionID,
			Amount:         final.Amount.StringFixed(2),
			Tokens:         final.Tokens,
			Status:         final.Status,
			OccurredAt:     final.UpdatedAt.Format(time.RFC3339),
		}
		if final.ProviderTrxID != nil {
			event.ProviderTrxID = *final.ProviderTrxID
		}
		emit(s.events, q, event)
	}
	return final, nil
}

func completedResult(p model.Payment) *ExecutePaymentResult {
	r := &ExecutePaymentResult{Success: true, Tokens: p.Tokens, Payment: p}
	if p.ProviderTrxID != nil {
		r.TransactionID = *p.ProviderTrxID
	}
	return r
}

// QueryPaymentStatus asks the gateway for the current state of paymentID.
// Nothing is written locally.  Non-admins may only query their own payments.
func (s *PaymentService) QueryPaymentStatus(ctx context.Context, p model.Principal, paymentID string) (*bkash.ExecuteResponse, error) {
	var err error
	if p.IsAdmin() {
		_, err = s.payments.GetByBkashID(ctx, paymentID)
	} else {
		_, err = s.payments.GetByBkashIDForUser(ctx, paymentID, p.UserID)
	}
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: payment %s", ErrNotFound, paymentID)
	}
	if err != nil {
		return nil, err
	}
	res, err := s.gateway.QueryStatus(ctx, paymentID)
	if err != nil {
		return nil, gatewayError(err)
	}
	return res, nil
}

// GetUserPayments lists userID's payments, newest first.
func (s *PaymentService) GetUserPayments(ctx context.Context, userID uint64) ([]model.Payment, error) {
	return s.payments.ListByUser(ctx, userID)
}

// GetAllPayments lists every payment, newest first.  Superadmin only.
func (s *PaymentService) GetAllPayments(ctx context.Context, p model.Principal, limit, offset int) ([]model.Payment, error) {
	if !p.IsSuperAdmin() {
		return nil, ErrForbidden
	}
	return s.payments.ListAll(ctx, limit, offset)
}

// mergeDetails sets key to raw in the JSON object existing, creating the
// object when existing is empty or not an object.
func mergeDetails(existing json.RawMessage, key string, raw json.RawMessage) json.RawMessage {
	m := map[string]json.RawMessage{}
	if len(existing) > 0 {
		if err := json.Unmarshal(existing, &m); err != nil {
			m = map[string]json.RawMessage{"previous": existing}
		} else if m == nil {
			m = map[string]json.RawMessage{}
		}
	}
	if len(raw) == 0 || !json.Valid(raw) {
		raw = json.RawMessage("null")
	}
	m[key] = raw
	out, err := json.Marshal(m)
	if err != nil {
		return existing
	}
	return out
}

func errorDetail(err error) json.RawMessage {
	b, _ := json.Marshal(map[string]string{"error": err.Error()})
	return b
}
