package bkash

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/biodata-connect/internal/config"
)

type fakeProvider struct {
	grants     atomic.Int32
	executes   atomic.Int32
	reject401  atomic.Int32 // number of authorized calls to answer with 401
	executeRes string
	delay      time.Duration
}

func (f *fakeProvider) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/tokenized/checkout/token/grant", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("username") != "merchant" || r.Header.Get("password") != "pw" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		n := f.grants.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"statusCode": "0000", "id_token": "tok-" + string(rune('0'+n)), "expires_in": 3600,
		})
	})
	authorized := func(w http.ResponseWriter, r *http.Request) bool {
		if r.Header.Get("X-APP-Key") != "key" || r.Header.Get("Authorization") == "" {
			t.Errorf("missing auth headers on %s", r.URL.Path)
		}
		if f.reject401.Load() > 0 {
			f.reject401.Add(-1)
			w.WriteHeader(http.StatusUnauthorized)
			return false
		}
		return true
	}
	mux.HandleFunc("/tokenized/checkout/create", func(w http.ResponseWriter, r *http.Request) {
		if !authorized(w, r) {
			return
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["mode"] != "0011" || body["currency"] != "BDT" || body["callbackURL"] != "https://app/cb" {
			t.Errorf("unexpected create body %v", body)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"statusCode": "0000", "paymentID": "TR0011", "bkashURL": "https://pay/TR0011", "amount": body["amount"],
		})
	})
	mux.HandleFunc("/tokenized/checkout/execute", func(w http.ResponseWriter, r *http.Request) {
		if f.delay > 0 {
			time.Sleep(f.delay)
		}
		if !authorized(w, r) {
			return
		}
		f.executes.Add(1)
		_, _ = w.Write([]byte(f.executeRes))
	})
	return mux
}

func newTestClient(t *testing.T, f *fakeProvider, timeout time.Duration) *Client {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	return New(config.BkashConfig{
		BaseURL: srv.URL, Username: "merchant", Password: "pw",
		AppKey: "key", AppSecret: "secret", CallbackURL: "https://app/cb", Timeout: timeout,
	}, nil)
}

func TestCreate_CachesGrantedToken(t *testing.T) {
	f := &fakeProvider{}
	c := newTestClient(t, f, time.Second)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := c.Create(ctx, CreateRequest{Amount: decimal.NewFromInt(200), PayerReference: "7", Intent: "sale", InvoiceNumber: "INV-1-7"})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		if res.PaymentID != "TR0011" || res.BkashURL == "" || len(res.Raw) == 0 {
			t.Fatalf("unexpected response %+v", res)
		}
	}
	if got := f.grants.Load(); got != 1 {
		t.Fatalf("grants = %d, want 1", got)
	}
}

func TestAuthorized_RegrantsOnceOn401(t *testing.T) {
	tests := []struct {
		name       string
		rejections int32
		wantErr    error
		wantGrants int32
	}{
		{"Given a stale token When the provider answers 401 once Then the call succeeds after one re-grant", 1, nil, 2},
		{"Given rejected credentials When the provider answers 401 twice Then ErrUnauthorized is returned", 2, ErrUnauthorized, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeProvider{executeRes: `{"statusCode":"0000","trxID":"X1","transactionStatus":"Completed"}`}
			f.reject401.Store(tt.rejections)
			c := newTestClient(t, f, time.Second)

			_, err := c.Execute(context.Background(), "TR0011")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if got := f.grants.Load(); got != tt.wantGrants {
				t.Fatalf("grants = %d, want %d", got, tt.wantGrants)
			}
		})
	}
}

func TestExecute_ProviderDeclineIsNotAnError(t *testing.T) {
	f := &fakeProvider{executeRes: `{"errorCode":"2056","errorMessage":"Invalid Payment State"}`}
	c := newTestClient(t, f, time.Second)

	res, err := c.Execute(context.Background(), "TR0011")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Succeeded() || res.StatusCode != "2056" || res.StatusMessage != "Invalid Payment State" {
		t.Fatalf("unexpected response %+v", res)
	}
}

func TestExecute_TimeoutMapsToErrTimeout(t *testing.T) {
	f := &fakeProvider{executeRes: `{"statusCode":"0000"}`, delay: 300 * time.Millisecond}
	c := newTestClient(t, f, 100*time.Millisecond)

	_, err := c.Execute(context.Background(), "TR0011")
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
}

func TestGrant_BadCredentials(t *testing.T) {
	f := &fakeProvider{}
	srv := httptest.NewServer(f.handler(t))
	defer srv.Close()
	c := New(config.BkashConfig{BaseURL: srv.URL, Username: "merchant", Password: "wrong", Timeout: time.Second}, nil)

	if _, err := c.Grant(context.Background()); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
}

func TestMemoryTokenCacheExpiry(t *testing.T) {
	now := time.Unix(1000, 0)
	m := NewMemoryTokenCache()
	m.now = func() time.Time { return now }
	ctx := context.Background()

	_ = m.Set(ctx, "abc", time.Minute)
	if tok, ok, _ := m.Get(ctx); !ok || tok != "abc" {
		t.Fatalf("Get = %q, %v", tok, ok)
	}
	now = now.Add(2 * time.Minute)
	if _, ok, _ := m.Get(ctx); ok {
		t.Fatal("expired token still returned")
	}
}
