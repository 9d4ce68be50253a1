// Package bkash is a client for the bKash tokenized checkout API.  Every call
// is bounded by the configured timeout; the only retry is a single re-grant
// of the bearer token when the provider answers 401.
package bkash

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/biodata-connect/internal/config"
)

const (
	// StatusSuccess is the provider's statusCode for a successful call.
	StatusSuccess = "0000"
	// TransactionCompleted is the transactionStatus of a captured payment.
	TransactionCompleted = "Completed"
)

var (
	// ErrGateway is returned for transport failures, non-2xx answers and
	// unparseable responses.
	ErrGateway = errors.New("bkash: gateway error")
	// ErrTimeout is returned when a call exceeds the configured timeout.
	ErrTimeout = errors.New("bkash: timeout")
	// ErrUnauthorized is returned when the credentials are rejected even
	// after a fresh grant.
	ErrUnauthorized = errors.New("bkash: unauthorized")
)

// Client talks to a single bKash merchant account.
type Client struct {
	cfg   config.BkashConfig
	http  *http.Client
	cache TokenCache
}

// New returns a Client.  When cache is nil the bearer token is kept in
// process memory.
func New(cfg config.BkashConfig, cache TokenCache) *Client {
	if cache == nil {
		cache = NewMemoryTokenCache()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg:   cfg,
		http:  &http.Client{Timeout: cfg.Timeout},
		cache: cache,
	}
}

// CreateRequest describes a checkout to open.
type CreateRequest struct {
	Amount         decimal.Decimal
	PayerReference string
	Intent         string
	InvoiceNumber  string
}

// CreateResponse is the provider's answer to checkout create.
type CreateResponse struct {
	PaymentID     string `json:"paymentID"`
	BkashURL      string `json:"bkashURL"`
	StatusCode    string `json:"statusCode"`
	StatusMessage string `json:"statusMessage"`

	Raw json.RawMessage `json:"-"`
}

// ExecuteResponse is the provider's answer to checkout execute and payment
// status queries.
type ExecuteResponse struct {
	PaymentID             string `json:"paymentID"`
	TrxID                 string `json:"trxID"`
	TransactionStatus     string `json:"transactionStatus"`
	Amount                string `json:"amount"`
	Currency              string `json:"currency"`
	MerchantInvoiceNumber string `json:"merchantInvoiceNumber"`
	StatusCode            string `json:"statusCode"`
	StatusMessage         string `json:"statusMessage"`

	Raw json.RawMessage `json:"-"`
}

// Succeeded reports whether the provider accepted the call.
func (r *ExecuteResponse) Succeeded() bool { return r.StatusCode == StatusSuccess }

// Completed reports whether the provider holds the payment as captured.
func (r *ExecuteResponse) Completed() bool {
	return r.Succeeded() && r.TransactionStatus == TransactionCompleted
}

// providerError is the alternative error body some endpoints return with a
// 200 status.
type providerError struct {
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

type grantResponse struct {
	IDToken    string `json:"id_token"`
	ExpiresIn  int64  `json:"expires_in"`
	StatusCode string `json:"statusCode"`
	StatusMsg  string `json:"statusMessage"`
}

// Grant returns a bearer token, from the cache when still valid.
func (c *Client) Grant(ctx context.Context) (string, error) {
	if tok, ok, err := c.cache.Get(ctx); err != nil {
		log.Warn().Err(err).Msg("bkash token cache read failed")
	} else if ok {
		return tok, nil
	}
	return c.grant(ctx)
}

func (c *Client) grant(ctx context.Context) (string, error) {
	body := map[string]string{"app_key": c.cfg.AppKey, "app_secret": c.cfg.AppSecret}
	hdr := http.Header{}
	hdr.Set("username", c.cfg.Username)
	hdr.Set("password", c.cfg.Password)

	status, raw, err := c.post(ctx, "/tokenized/checkout/token/grant", hdr, body)
	if err != nil {
		return "", err
	}
	if status == http.StatusUnauthorized {
		return "", ErrUnauthorized
	}
	if status/100 != 2 {
		return "", fmt.Errorf("%w: token grant returned HTTP %d", ErrGateway, status)
	}
	var gr grantResponse
	if err := json.Unmarshal(raw, &gr); err != nil {
		return "", fmt.Errorf("%w: decode token grant: %v", ErrGateway, err)
	}
	if gr.IDToken == "" {
		return "", fmt.Errorf("%w: token grant: %s %s", ErrGateway, gr.StatusCode, gr.StatusMsg)
	}
	if ttl := time.Duration(gr.ExpiresIn)*time.Second - time.Minute; ttl > 0 {
		if err := c.cache.Set(ctx, gr.IDToken, ttl); err != nil {
			log.Warn().Err(err).Msg("bkash token cache write failed")
		}
	}
	return gr.IDToken, nil
}

// Create opens a checkout.  A statusCode other than "0000" is an error.
func (c *Client) Create(ctx context.Context, req CreateRequest) (*CreateResponse, error) {
	body := map[string]string{
		"mode":                  "0011",
		"payerReference":        req.PayerReference,
		"callbackURL":           c.cfg.CallbackURL,
		"amount":                req.Amount.StringFixed(2),
		"currency":              "BDT",
		"intent":                req.Intent,
		"merchantInvoiceNumber": req.InvoiceNumber,
	}
	raw, err := c.authorized(ctx, "/tokenized/checkout/create", body)
	if err != nil {
		return nil, err
	}
	var out CreateResponse
	if err := decode(raw, &out, &out.StatusCode, &out.StatusMessage); err != nil {
		return nil, err
	}
	out.Raw = raw
	if out.StatusCode != StatusSuccess || out.PaymentID == "" {
		return &out, fmt.Errorf("%w: create: %s %s", ErrGateway, out.StatusCode, out.StatusMessage)
	}
	return &out, nil
}

// Execute completes a checkout the payer has approved.  Provider-side
// declines come back as a response with a non-success StatusCode and a nil
// error; only transport-level problems are returned as errors.
func (c *Client) Execute(ctx context.Context, paymentID string) (*ExecuteResponse, error) {
	return c.paymentCall(ctx, "/tokenized/checkout/execute", paymentID)
}

// QueryStatus returns the provider's current view of a payment.
func (c *Client) QueryStatus(ctx context.Context, paymentID string) (*ExecuteResponse, error) {
	return c.paymentCall(ctx, "/tokenized/checkout/payment/status", paymentID)
}

func (c *Client) paymentCall(ctx context.Context, path, paymentID string) (*ExecuteResponse, error) {
	raw, err := c.authorized(ctx, path, map[string]string{"paymentID": paymentID})
	if err != nil {
		return nil, err
	}
	var out ExecuteResponse
	if err := decode(raw, &out, &out.StatusCode, &out.StatusMessage); err != nil {
		return nil, err
	}
	out.Raw = raw
	return &out, nil
}

// authorized posts body with the bearer token, re-granting once on 401.
func (c *Client) authorized(ctx context.Context, path string, body any) (json.RawMessage, error) {
	for attempt := 0; ; attempt++ {
		tok, err := c.Grant(ctx)
		if err != nil {
			return nil, err
		}
		hdr := http.Header{}
		hdr.Set("Authorization", tok)
		hdr.Set("X-APP-Key", c.cfg.AppKey)

		status, raw, err := c.post(ctx, path, hdr, body)
		if err != nil {
			return nil, err
		}
		if status == http.StatusUnauthorized {
			if err := c.cache.Delete(ctx); err != nil {
				log.Warn().Err(err).Msg("bkash token cache delete failed")
			}
			if attempt == 0 {
				continue
			}
			return nil, ErrUnauthorized
		}
		if status/100 != 2 {
			return nil, fmt.Errorf("%w: %s returned HTTP %d", ErrGateway, path, status)
		}
		return raw, nil
	}
}

func (c *Client) post(ctx context.Context, path string, hdr http.Header, body any) (int, json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	buf, err := json.Marshal(body)
	if err != nil {
		return 0, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(buf))
	if err != nil {
		return 0, nil, err
	}
	req.Header = hdr
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Dur("latency", time.Since(start)).Msg("bkash call failed")
		if isTimeout(err) {
			return 0, nil, fmt.Errorf("%w: %s", ErrTimeout, path)
		}
		return 0, nil, fmt.Errorf("%w: %v", ErrGateway, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		if isTimeout(err) {
			return 0, nil, fmt.Errorf("%w: %s", ErrTimeout, path)
		}
		return 0, nil, fmt.Errorf("%w: read body: %v", ErrGateway, err)
	}
	log.Debug().Str("path", path).Int("status", resp.StatusCode).Dur("latency", time.Since(start)).Msg("bkash call")
	return resp.StatusCode, raw, nil
}

// decode unmarshals raw into out and, when the body uses the errorCode
// shape instead of statusCode, copies the error into code and msg.
func decode(raw json.RawMessage, out any, code, msg *string) error {
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrGateway, err)
	}
	if *code == "" {
		var pe providerError
		if err := json.Unmarshal(raw, &pe); err == nil && pe.ErrorCode != "" {
			*code, *msg = pe.ErrorCode, pe.ErrorMessage
		}
	}
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
