package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/biodata-connect/internal/bkash"
	"github.com/iliyamo/biodata-connect/internal/config"
	"github.com/iliyamo/biodata-connect/internal/model"
	"github.com/iliyamo/biodata-connect/internal/queue"
	"github.com/iliyamo/biodata-connect/internal/testutil"
)

type fakeGateway struct {
	create      func(ctx context.Context, req bkash.CreateRequest) (*bkash.CreateResponse, error)
	execute     func(ctx context.Context, paymentID string) (*bkash.ExecuteResponse, error)
	queryStatus func(ctx context.Context, paymentID string) (*bkash.ExecuteResponse, error)
	executes    atomic.Int32
}

func (f *fakeGateway) Create(ctx context.Context, req bkash.CreateRequest) (*bkash.CreateResponse, error) {
	return f.create(ctx, req)
}

func (f *fakeGateway) Execute(ctx context.Context, paymentID string) (*bkash.ExecuteResponse, error) {
	f.executes.Add(1)
	return f.execute(ctx, paymentID)
}

func (f *fakeGateway) QueryStatus(ctx context.Context, paymentID string) (*bkash.ExecuteResponse, error) {
	if f.queryStatus == nil {
		return statusWith("Initiated")(ctx, paymentID)
	}
	return f.queryStatus(ctx, paymentID)
}

func okCreate(_ context.Context, req bkash.CreateRequest) (*bkash.CreateResponse, error) {
	raw := json.RawMessage(fmt.Sprintf(`{"statusCode":"0000","paymentID":"TR-%s","amount":"%s"}`, req.InvoiceNumber, req.Amount.StringFixed(2)))
	return &bkash.CreateResponse{PaymentID: "TR-" + req.InvoiceNumber, BkashURL: "https://pay/" + req.InvoiceNumber, StatusCode: "0000", Raw: raw}, nil
}

func executeWith(code string) func(context.Context, string) (*bkash.ExecuteResponse, error) {
	return func(_ context.Context, id string) (*bkash.ExecuteResponse, error) {
		raw := json.RawMessage(fmt.Sprintf(`{"statusCode":%q,"paymentID":%q,"trxID":"TRX9"}`, code, id))
		return &bkash.ExecuteResponse{PaymentID: id, TrxID: "TRX9", StatusCode: code, Raw: raw}, nil
	}
}

func statusWith(status string) func(context.Context, string) (*bkash.ExecuteResponse, error) {
	return func(_ context.Context, id string) (*bkash.ExecuteResponse, error) {
		raw := json.RawMessage(fmt.Sprintf(`{"statusCode":"0000","paymentID":%q,"trxID":"TRX7","transactionStatus":%q}`, id, status))
		return &bkash.ExecuteResponse{PaymentID: id, TrxID: "TRX7", TransactionStatus: status, StatusCode: bkash.StatusSuccess, Raw: raw}, nil
	}
}

var testPackages = []config.TokenPackage{
	{Tokens: 5, Price: decimal.NewFromInt(50)},
	{Tokens: 25, Price: decimal.NewFromInt(200)},
}

func newPaymentService(t *testing.T, gw *fakeGateway) (*PaymentService, stores, *fakePublisher) {
	t.Helper()
	st := newStores(t)
	pub := newFakePublisher()
	return NewPaymentService(st.db, st.users, st.payments, gw, testPackages, pub), st, pub
}

func TestCreatePayment(t *testing.T) {
	ctx := context.Background()
	gw := &fakeGateway{create: okCreate}
	svc, st, _ := newPaymentService(t, gw)
	user := testutil.CreateUser(t, st.db, "u@example.com", model.RoleUser, 0)

	res, err := svc.CreatePayment(ctx, user, decimal.NewFromInt(200), 25, "")
	if err != nil {
		t.Fatalf("CreatePayment: %v", err)
	}
	if res.PaymentID == "" || res.BkashURL == "" {
		t.Fatalf("result = %+v", res)
	}
	p := res.Payment
	if p.Status != model.PaymentPending || p.Tokens != 25 || p.BkashTransactionID != res.PaymentID {
		t.Fatalf("payment = %+v", p)
	}
	if !strings.HasPrefix(p.TransactionID, "INV-") || !strings.Contains(p.TransactionID, fmt.Sprintf("-%d-", user)) {
		t.Fatalf("invoice = %q", p.TransactionID)
	}
	var details map[string]json.RawMessage
	if err := json.Unmarshal(p.PaymentDetails, &details); err != nil || details["create"] == nil {
		t.Fatalf("details = %s", p.PaymentDetails)
	}
	if got := testutil.Balance(t, st.db, user); got != 0 {
		t.Fatalf("balance changed on create: %d", got)
	}
}

func TestCreatePayment_Failures(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name    string
		amount  int64
		tokens  int64
		create  func(context.Context, bkash.CreateRequest) (*bkash.CreateResponse, error)
		want    error
		also    error
		unknown bool
	}{
		{name: "Given an unlisted price When creating Then InvalidOperation", amount: 10, tokens: 25, create: okCreate, want: ErrInvalidOperation},
		{name: "Given zero tokens When creating Then InvalidOperation", amount: 0, tokens: 0, create: okCreate, want: ErrInvalidOperation},
		{name: "Given an unknown user When creating Then NotFound", amount: 200, tokens: 25, create: okCreate, want: ErrNotFound, unknown: true},
		{
			name: "Given a grant failure When creating Then PaymentInitFailed", amount: 200, tokens: 25,
			create: func(context.Context, bkash.CreateRequest) (*bkash.CreateResponse, error) { return nil, bkash.ErrUnauthorized },
			want:   ErrPaymentInitFailed, also: ErrPaymentGateway,
		},
		{
			name: "Given a timeout When creating Then PaymentInitFailed and GatewayTimeout", amount: 200, tokens: 25,
			create: func(context.Context, bkash.CreateRequest) (*bkash.CreateResponse, error) { return nil, bkash.ErrTimeout },
			want:   ErrPaymentInitFailed, also: ErrPaymentGatewayTimeout,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, st, _ := newPaymentService(t, &fakeGateway{create: tt.create})
			user := testutil.CreateUser(t, st.db, "u@example.com", model.RoleUser, 0)
			if tt.unknown {
				user += 100
			}
			_, err := svc.CreatePayment(ctx, user, decimal.NewFromInt(tt.amount), tt.tokens, "sale")
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if tt.also != nil && !errors.Is(err, tt.also) {
				t.Fatalf("err = %v, want also %v", err, tt.also)
			}
			if n := testutil.CountRows(t, st.db, "payments", ""); n != 0 {
				t.Fatalf("payments = %d, want no orphan rows", n)
			}
		})
	}
}

func TestExecutePayment_SuccessCreditsOnce(t *testing.T) {
	ctx := context.Background()
	gw := &fakeGateway{create: okCreate, execute: executeWith(bkash.StatusSuccess)}
	svc, st, pub := newPaymentService(t, gw)
	user := testutil.CreateUser(t, st.db, "u@example.com", model.RoleUser, 0)

	created, err := svc.CreatePayment(ctx, user, decimal.NewFromInt(200), 25, "sale")
	if err != nil {
		t.Fatal(err)
	}
	res, err := svc.ExecutePayment(ctx, user, created.PaymentID)
	if err != nil {
		t.Fatalf("ExecutePayment: %v", err)
	}
	if !res.Success || res.Tokens != 25 || res.TransactionID != "TRX9" || res.Payment.Status != model.PaymentCompleted {
		t.Fatalf("result = %+v", res)
	}
	if got := testutil.Balance(t, st.db, user); got != 25 {
		t.Fatalf("balance = %d, want 25", got)
	}
	var details map[string]json.RawMessage
	if err := json.Unmarshal(res.Payment.PaymentDetails, &details); err != nil || details["create"] == nil || details["execute"] == nil {
		t.Fatalf("details = %s", res.Payment.PaymentDetails)
	}
	if ev := pub.next(t); ev.queue != queue.QueuePaymentCompleted {
		t.Fatalf("queue = %s", ev.queue)
	}

	again, err := svc.ExecutePayment(ctx, user, created.PaymentID)
	if err != nil || !again.Success {
		t.Fatalf("second execute = %+v, %v", again, err)
	}
	if got := testutil.Balance(t, st.db, user); got != 25 {
		t.Fatalf("balance after repeat = %d, want 25", got)
	}
	if n := gw.executes.Load(); n != 1 {
		t.Fatalf("provider executes = %d, want 1", n)
	}
}

func TestExecutePayment_ConcurrentCreditsOnce(t *testing.T) {
	ctx := context.Background()
	gw := &fakeGateway{create: okCreate, execute: executeWith(bkash.StatusSuccess)}
	svc, st, _ := newPaymentService(t, gw)
	user := testutil.CreateUser(t, st.db, "u@example.com", model.RoleUser, 0)
	created, err := svc.CreatePayment(ctx, user, decimal.NewFromInt(50), 5, "sale")
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.ExecutePayment(ctx, user, created.PaymentID); err != nil {
				t.Errorf("ExecutePayment: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := testutil.Balance(t, st.db, user); got != 5 {
		t.Fatalf("balance = %d, want 5", got)
	}
}

func TestExecutePayment_DeclinedMarksFailed(t *testing.T) {
	ctx := context.Background()
	gw := &fakeGateway{create: okCreate, execute: executeWith("2056")}
	svc, st, pub := newPaymentService(t, gw)
	user := testutil.CreateUser(t, st.db, "u@example.com", model.RoleUser, 0)
	created, err := svc.CreatePayment(ctx, user, decimal.NewFromInt(200), 25, "sale")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.ExecutePayment(ctx, user, created.PaymentID); !errors.Is(err, ErrPaymentExecutionFailed) {
		t.Fatalf("err = %v, want ErrPaymentExecutionFailed", err)
	}
	if got := testutil.Balance(t, st.db, user); got != 0 {
		t.Fatalf("balance = %d, want 0", got)
	}
	p, err := st.payments.GetByBkashID(ctx, created.PaymentID)
	if err != nil || p.Status != model.PaymentFailed {
		t.Fatalf("payment = %+v, %v", p, err)
	}
	if ev := pub.next(t); ev.queue != queue.QueuePaymentFailed {
		t.Fatalf("queue = %s", ev.queue)
	}

	// a failed payment is final
	gw.execute = executeWith(bkash.StatusSuccess)
	if _, err := svc.ExecutePayment(ctx, user, created.PaymentID); !errors.Is(err, ErrPaymentExecutionFailed) {
		t.Fatalf("retry err = %v", err)
	}
	if got := testutil.Balance(t, st.db, user); got != 0 {
		t.Fatalf("balance after retry = %d", got)
	}
}

func TestExecutePayment_GatewayErrors(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name       string
		err        error
		want       error
		wantStatus string
	}{
		{"Given a timeout When executing Then GatewayTimeout and the payment stays pending", bkash.ErrTimeout, ErrPaymentGatewayTimeout, model.PaymentPending},
		{"Given a gateway error When executing Then PaymentGateway and the payment fails", bkash.ErrGateway, ErrPaymentGateway, model.PaymentFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := &fakeGateway{create: okCreate, execute: func(context.Context, string) (*bkash.ExecuteResponse, error) {
				return nil, tt.err
			}}
			svc, st, _ := newPaymentService(t, gw)
			user := testutil.CreateUser(t, st.db, "u@example.com", model.RoleUser, 0)
			created, err := svc.CreatePayment(ctx, user, decimal.NewFromInt(50), 5, "sale")
			if err != nil {
				t.Fatal(err)
			}
			if _, err := svc.ExecutePayment(ctx, user, created.PaymentID); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			p, err := st.payments.GetByBkashID(ctx, created.PaymentID)
			if err != nil || p.Status != tt.wantStatus {
				t.Fatalf("status = %s, %v; want %s", p.Status, err, tt.wantStatus)
			}
			if got := testutil.Balance(t, st.db, user); got != 0 {
				t.Fatalf("balance = %d", got)
			}
		})
	}
}

func TestExecutePayment_RetryAfterTimeoutChecksProviderStatus(t *testing.T) {
	ctx := context.Background()
	gw := &fakeGateway{create: okCreate, execute: func(context.Context, string) (*bkash.ExecuteResponse, error) {
		return nil, bkash.ErrTimeout
	}}
	svc, st, pub := newPaymentService(t, gw)
	user := testutil.CreateUser(t, st.db, "u@example.com", model.RoleUser, 0)
	created, err := svc.CreatePayment(ctx, user, decimal.NewFromInt(50), 5, "sale")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.ExecutePayment(ctx, user, created.PaymentID); !errors.Is(err, ErrPaymentGatewayTimeout) {
		t.Fatalf("first err = %v, want ErrPaymentGatewayTimeout", err)
	}

	// the timed-out call went through, so the retry is told it already completed
	gw.execute = executeWith("2062")
	gw.queryStatus = statusWith(bkash.TransactionCompleted)
	res, err := svc.ExecutePayment(ctx, user, created.PaymentID)
	if err != nil {
		t.Fatalf("retry err = %v", err)
	}
	if !res.Success || res.Tokens != 5 || res.TransactionID != "TRX7" {
		t.Fatalf("result = %+v", res)
	}
	if got := testutil.Balance(t, st.db, user); got != 5 {
		t.Fatalf("balance = %d, want 5", got)
	}
	p, err := st.payments.GetByBkashID(ctx, created.PaymentID)
	if err != nil || p.Status != model.PaymentCompleted {
		t.Fatalf("payment = %+v, %v", p, err)
	}
	if ev := pub.next(t); ev.queue != queue.QueuePaymentCompleted {
		t.Fatalf("queue = %s", ev.queue)
	}
}

func TestExecutePayment_TimeoutWithCapturedStatusCompletes(t *testing.T) {
	ctx := context.Background()
	gw := &fakeGateway{
		create: okCreate,
		execute: func(context.Context, string) (*bkash.ExecuteResponse, error) {
			return nil, bkash.ErrTimeout
		},
		queryStatus: statusWith(bkash.TransactionCompleted),
	}
	svc, st, _ := newPaymentService(t, gw)
	user := testutil.CreateUser(t, st.db, "u@example.com", model.RoleUser, 0)
	created, err := svc.CreatePayment(ctx, user, decimal.NewFromInt(50), 5, "sale")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.ExecutePayment(ctx, user, created.PaymentID); err != nil {
		t.Fatalf("err = %v", err)
	}
	if got := testutil.Balance(t, st.db, user); got != 5 {
		t.Fatalf("balance = %d, want 5", got)
	}
}

func TestExecutePayment_RejectedWithoutStatusStaysPending(t *testing.T) {
	ctx := context.Background()
	gw := &fakeGateway{
		create:  okCreate,
		execute: executeWith("2062"),
		queryStatus: func(context.Context, string) (*bkash.ExecuteResponse, error) {
			return nil, bkash.ErrTimeout
		},
	}
	svc, st, _ := newPaymentService(t, gw)
	user := testutil.CreateUser(t, st.db, "u@example.com", model.RoleUser, 0)
	created, err := svc.CreatePayment(ctx, user, decimal.NewFromInt(50), 5, "sale")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.ExecutePayment(ctx, user, created.PaymentID); !errors.Is(err, ErrPaymentGatewayTimeout) {
		t.Fatalf("err = %v, want ErrPaymentGatewayTimeout", err)
	}
	p, err := st.payments.GetByBkashID(ctx, created.PaymentID)
	if err != nil || p.Status != model.PaymentPending {
		t.Fatalf("payment = %+v, %v", p, err)
	}
}

func TestExecutePayment_OtherUsersPayment(t *testing.T) {
	ctx := context.Background()
	gw := &fakeGateway{create: okCreate, execute: executeWith(bkash.StatusSuccess)}
	svc, st, _ := newPaymentService(t, gw)
	owner := testutil.CreateUser(t, st.db, "u@example.com", model.RoleUser, 0)
	thief := testutil.CreateUser(t, st.db, "t@example.com", model.RoleUser, 0)
	created, err := svc.CreatePayment(ctx, owner, decimal.NewFromInt(50), 5, "sale")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.ExecutePayment(ctx, thief, created.PaymentID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if gw.executes.Load() != 0 {
		t.Fatal("provider called for a foreign payment")
	}
	if got := testutil.Balance(t, st.db, thief); got != 0 {
		t.Fatalf("thief balance = %d", got)
	}
}

func TestQueryPaymentStatus(t *testing.T) {
	ctx := context.Background()
	var queries atomic.Int32
	gw := &fakeGateway{
		create: okCreate,
		queryStatus: func(_ context.Context, id string) (*bkash.ExecuteResponse, error) {
			queries.Add(1)
			return &bkash.ExecuteResponse{PaymentID: id, TransactionStatus: "Completed", StatusCode: "0000"}, nil
		},
	}
	svc, st, _ := newPaymentService(t, gw)
	owner := testutil.CreateUser(t, st.db, "u@example.com", model.RoleUser, 0)
	other := testutil.CreateUser(t, st.db, "o@example.com", model.RoleUser, 0)
	admin := testutil.CreateUser(t, st.db, "a@example.com", model.RoleAdmin, 0)
	created, err := svc.CreatePayment(ctx, owner, decimal.NewFromInt(50), 5, "sale")
	if err != nil {
		t.Fatal(err)
	}

	res, err := svc.QueryPaymentStatus(ctx, model.Principal{UserID: owner, Role: model.RoleUser}, created.PaymentID)
	if err != nil || res.TransactionStatus != "Completed" {
		t.Fatalf("owner query = %+v, %v", res, err)
	}
	if _, err := svc.QueryPaymentStatus(ctx, model.Principal{UserID: admin, Role: model.RoleAdmin}, created.PaymentID); err != nil {
		t.Fatalf("admin query: %v", err)
	}
	if _, err := svc.QueryPaymentStatus(ctx, model.Principal{UserID: other, Role: model.RoleUser}, created.PaymentID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign query err = %v", err)
	}

	// a status query never credits, even when the provider reports completion
	p, _ := st.payments.GetByBkashID(ctx, created.PaymentID)
	if p.Status != model.PaymentPending || testutil.Balance(t, st.db, owner) != 0 {
		t.Fatalf("status query mutated state: %+v", p)
	}
	if n := queries.Load(); n != 2 {
		t.Fatalf("provider queries = %d, want 2", n)
	}
}

func TestPaymentListings(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newPaymentService(t, &fakeGateway{create: okCreate})
	user := testutil.CreateUser(t, st.db, "u@example.com", model.RoleUser, 0)
	root := testutil.CreateUser(t, st.db, "r@example.com", model.RoleSuperAdmin, 0)
	for _, pkg := range testPackages {
		if _, err := svc.CreatePayment(ctx, user, pkg.Price, pkg.Tokens, "sale"); err != nil {
			t.Fatal(err)
		}
	}

	mine, err := svc.GetUserPayments(ctx, user)
	if err != nil || len(mine) != 2 || mine[0].Tokens != 25 {
		t.Fatalf("GetUserPayments = %+v, %v", mine, err)
	}
	if _, err := svc.GetAllPayments(ctx, model.Principal{UserID: user, Role: model.RoleAdmin}, 50, 0); !errors.Is(err, ErrForbidden) {
		t.Fatalf("admin GetAllPayments err = %v", err)
	}
	all, err := svc.GetAllPayments(ctx, model.Principal{UserID: root, Role: model.RoleSuperAdmin}, 50, 0)
	if err != nil || len(all) != 2 {
		t.Fatalf("GetAllPayments = %d, %v", len(all), err)
	}
}

func TestMergeDetails(t *testing.T) {
	got := mergeDetails(json.RawMessage(`{"create":{"a":1}}`), "execute", json.RawMessage(`{"b":2}`))
	var m map[string]map[string]int
	if err := json.Unmarshal(got, &m); err != nil {
		t.Fatal(err)
	}
	if m["create"]["a"] != 1 || m["execute"]["b"] != 2 {
		t.Fatalf("merged = %s", got)
	}

	got = mergeDetails(json.RawMessage("null"), "execute", json.RawMessage(`{"b":2}`))
	if string(got) != `{"execute":{"b":2}}` {
		t.Fatalf("merged onto null = %s", got)
	}
}
