package paypal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	paymentdomain "github.com/smallbiznis/lms/internal/payment/domain"
)

type fakePayPal struct {
	tokenCalls   atomic.Int32
	captureCalls atomic.Int32

	mu         sync.Mutex
	lastOrder  createOrderRequest
	requestIDs []string

	captureStatus int
	captureBody   string
}

func (f *fakePayPal) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls.Add(1)
		user, pass, ok := r.BasicAuth()
		if !ok || user != "client" || pass != "secret" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid_client"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-1","token_type":"Bearer","expires_in":32400}`))
	})
	mux.HandleFunc("/v2/checkout/orders", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			t.Errorf("missing bearer token")
		}
		var body createOrderRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode order: %v", err)
		}
		f.mu.Lock()
		f.requestIDs = append(f.requestIDs, r.Header.Get("PayPal-Request-Id"))
		f.lastOrder = body
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"5O190127TN364715T","status":"CREATED"}`))
	})
	mux.HandleFunc("/v2/checkout/orders/5O190127TN364715T/capture", func(w http.ResponseWriter, r *http.Request) {
		f.captureCalls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(f.captureStatus)
		_, _ = w.Write([]byte(f.captureBody))
	})
	mux.HandleFunc("/v2/checkout/orders/5O190127TN364715T", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"5O190127TN364715T","status":"COMPLETED","purchase_units":[{"custom_id":"10:200","amount":{"currency_code":"USD","value":"49.99"},"payments":{"captures":[{"id":"3C679366HH908993F","status":"COMPLETED"}]}}]}`))
	})
	return mux
}

func newTestAdapter(t *testing.T, fake *fakePayPal) paymentdomain.Gateway {
	t.Helper()
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)

	gw, err := NewFactory().NewAdapter(paymentdomain.AdapterConfig{Config: map[string]any{
		"client_id":     "client",
		"client_secret": "secret",
		"base_url":      srv.URL,
	}})
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	return gw
}

func TestCreateOrder(t *testing.T) {
	fake := &fakePayPal{}
	gw := newTestAdapter(t, fake)

	order, err := gw.CreateOrder(context.Background(), paymentdomain.OrderRequest{
		Amount:      decimal.RequireFromString("49.9"),
		Currency:    "usd",
		Description: "Enrollment: Go Basics",
		CustomID:    "1:2",
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if order.ID != "5O190127TN364715T" || order.Status != paymentdomain.StatusCreated {
		t.Fatalf("unexpected order: %+v", order)
	}

	fake.mu.Lock()
	sent := fake.lastOrder
	requestIDs := append([]string(nil), fake.requestIDs...)
	fake.mu.Unlock()

	if sent.Intent != "CAPTURE" || len(sent.PurchaseUnits) != 1 {
		t.Fatalf("unexpected order body: %+v", sent)
	}
	unit := sent.PurchaseUnits[0]
	if unit.Amount.Value != "49.90" || unit.Amount.CurrencyCode != "USD" {
		t.Fatalf("unexpected amount: %+v", unit.Amount)
	}
	if unit.Description != "Enrollment: Go Basics" {
		t.Fatalf("unexpected description: %s", unit.Description)
	}
	if len(requestIDs) != 1 || requestIDs[0] == "" {
		t.Fatalf("expected PayPal-Request-Id header")
	}

	if _, err := gw.CreateOrder(context.Background(), paymentdomain.OrderRequest{
		Amount:   decimal.RequireFromString("10"),
		Currency: "USD",
	}); err != nil {
		t.Fatalf("second create: %v", err)
	}
	if got := fake.tokenCalls.Load(); got != 1 {
		t.Fatalf("expected cached token, got %d token calls", got)
	}
}

func TestCreateOrderRejectsZeroAmount(t *testing.T) {
	gw := newTestAdapter(t, &fakePayPal{})
	_, err := gw.CreateOrder(context.Background(), paymentdomain.OrderRequest{Amount: decimal.Zero, Currency: "USD"})
	if !errors.Is(err, paymentdomain.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestCaptureOrder(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus string
		wantID     string
		wantErr    error
	}{
		{
			name:       "completed",
			status:     http.StatusCreated,
			body:       `{"id":"5O190127TN364715T","status":"COMPLETED","purchase_units":[{"payments":{"captures":[{"id":"3C679366HH908993F","status":"COMPLETED"}]}}]}`,
			wantStatus: paymentdomain.StatusCompleted,
			wantID:     "3C679366HH908993F",
		},
		{
			name:       "completed without capture",
			status:     http.StatusCreated,
			body:       `{"id":"5O190127TN364715T","status":"COMPLETED","purchase_units":[]}`,
			wantStatus: paymentdomain.StatusCompleted,
		},
		{
			name:       "not approved",
			status:     http.StatusUnprocessableEntity,
			body:       `{"name":"UNPROCESSABLE_ENTITY","details":[{"issue":"ORDER_NOT_APPROVED"}]}`,
			wantStatus: paymentdomain.StatusPending,
		},
		{
			name:       "already captured",
			status:     http.StatusUnprocessableEntity,
			body:       `{"name":"UNPROCESSABLE_ENTITY","details":[{"issue":"ORDER_ALREADY_CAPTURED"}]}`,
			wantStatus: paymentdomain.StatusCompleted,
			wantID:     "3C679366HH908993F",
		},
		{
			name:    "provider outage",
			status:  http.StatusServiceUnavailable,
			body:    `{"name":"SERVICE_UNAVAILABLE"}`,
			wantErr: paymentdomain.ErrUnavailable,
		},
		{
			name:    "rejected",
			status:  http.StatusBadRequest,
			body:    `{"name":"INVALID_REQUEST"}`,
			wantErr: paymentdomain.ErrRejected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakePayPal{captureStatus: tt.status, captureBody: tt.body}
			gw := newTestAdapter(t, fake)

			capture, err := gw.CaptureOrder(context.Background(), "5O190127TN364715T")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("capture: %v", err)
			}
			if capture.Status != tt.wantStatus {
				t.Fatalf("expected status %s, got %s", tt.wantStatus, capture.Status)
			}
			if capture.CaptureID != tt.wantID {
				t.Fatalf("expected capture id %q, got %q", tt.wantID, capture.CaptureID)
			}
		})
	}
}

func TestCaptureOrderBlankID(t *testing.T) {
	gw := newTestAdapter(t, &fakePayPal{})
	if _, err := gw.CaptureOrder(context.Background(), "  "); !errors.Is(err, paymentdomain.ErrInvalidOrderID) {
		t.Fatalf("expected ErrInvalidOrderID, got %v", err)
	}
}

func TestNewAdapterRequiresCredentials(t *testing.T) {
	_, err := NewFactory().NewAdapter(paymentdomain.AdapterConfig{Config: map[string]any{"client_id": "x"}})
	if !errors.Is(err, paymentdomain.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestGetOrderReturnsTerms(t *testing.T) {
	gw := newTestAdapter(t, &fakePayPal{})

	order, err := gw.GetOrder(context.Background(), "5O190127TN364715T")
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if order.Status != paymentdomain.StatusCompleted {
		t.Fatalf("expected completed, got %s", order.Status)
	}
	if order.CustomID != "10:200" || order.Currency != "USD" || !order.Amount.Equal(decimal.RequireFromString("49.99")) {
		t.Fatalf("unexpected terms: %+v", order.Terms)
	}

	if _, err := gw.GetOrder(context.Background(), " "); !errors.Is(err, paymentdomain.ErrInvalidOrderID) {
		t.Fatalf("expected ErrInvalidOrderID, got %v", err)
	}
}

func TestCaptureOrderReadsTermsFromCapture(t *testing.T) {
	fake := &fakePayPal{
		captureStatus: http.StatusCreated,
		captureBody:   `{"id":"5O190127TN364715T","status":"COMPLETED","purchase_units":[{"payments":{"captures":[{"id":"CAP9","status":"COMPLETED","custom_id":"11:200","amount":{"currency_code":"usd","value":"19.00"}}]}}]}`,
	}
	gw := newTestAdapter(t, fake)

	capture, err := gw.CaptureOrder(context.Background(), "5O190127TN364715T")
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if capture.CustomID != "11:200" {
		t.Fatalf("expected custom id from capture, got %q", capture.CustomID)
	}
	if capture.Currency != "USD" || !capture.Amount.Equal(decimal.RequireFromString("19")) {
		t.Fatalf("unexpected amount %s %s", capture.Amount, capture.Currency)
	}
}
