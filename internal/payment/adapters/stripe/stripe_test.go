package stripe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	paymentdomain "github.com/smallbiznis/lms/internal/payment/domain"
)

func newTestAdapter(t *testing.T, handler http.Handler) paymentdomain.Gateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	gw, err := NewFactory().NewAdapter(paymentdomain.AdapterConfig{Config: map[string]any{
		"secret_key": "sk_test_123",
		"base_url":   srv.URL,
	}})
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	return gw
}

func TestCreateOrderSendsManualCaptureIntent(t *testing.T) {
	var mu sync.Mutex
	var form map[string]string
	var auth, idempotency string

	gw := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/payment_intents" {
			http.NotFound(w, r)
			return
		}
		_ = r.ParseForm()
		mu.Lock()
		form = map[string]string{}
		for key := range r.PostForm {
			form[key] = r.PostForm.Get(key)
		}
		auth = r.Header.Get("Authorization")
		idempotency = r.Header.Get("Idempotency-Key")
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"pi_123","status":"requires_payment_method"}`))
	}))

	order, err := gw.CreateOrder(context.Background(), paymentdomain.OrderRequest{
		Amount:      decimal.RequireFromString("49.99"),
		Currency:    "USD",
		Description: "Enrollment: Go Basics",
		CustomID:    "1:2",
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if order.ID != "pi_123" || order.Status != paymentdomain.StatusPending {
		t.Fatalf("unexpected order: %+v", order)
	}

	mu.Lock()
	defer mu.Unlock()
	if form["amount"] != "4999" || form["currency"] != "usd" || form["capture_method"] != "manual" {
		t.Fatalf("unexpected form: %v", form)
	}
	if form["metadata[custom_id]"] != "1:2" {
		t.Fatalf("missing custom id metadata: %v", form)
	}
	if auth != "Bearer sk_test_123" {
		t.Fatalf("unexpected auth header: %q", auth)
	}
	if idempotency == "" {
		t.Fatalf("expected Idempotency-Key header")
	}
}

func TestCaptureOrder(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		retrieve   string
		wantStatus string
		wantID     string
		wantErr    error
	}{
		{
			name:       "succeeded",
			status:     http.StatusOK,
			body:       `{"id":"pi_123","status":"succeeded","latest_charge":"ch_abc"}`,
			wantStatus: paymentdomain.StatusCompleted,
			wantID:     "ch_abc",
		},
		{
			name:       "still requires action",
			status:     http.StatusOK,
			body:       `{"id":"pi_123","status":"requires_action"}`,
			wantStatus: paymentdomain.StatusPending,
		},
		{
			name:       "already captured",
			status:     http.StatusBadRequest,
			body:       `{"error":{"type":"invalid_request_error","code":"payment_intent_unexpected_state"}}`,
			retrieve:   `{"id":"pi_123","status":"succeeded","latest_charge":"ch_prev"}`,
			wantStatus: paymentdomain.StatusCompleted,
			wantID:     "ch_prev",
		},
		{
			name:    "outage",
			status:  http.StatusBadGateway,
			body:    `{"error":{"type":"api_error"}}`,
			wantErr: paymentdomain.ErrUnavailable,
		},
		{
			name:    "rejected",
			status:  http.StatusBadRequest,
			body:    `{"error":{"type":"invalid_request_error","code":"resource_missing"}}`,
			wantErr: paymentdomain.ErrRejected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				switch {
				case r.Method == http.MethodPost && r.URL.Path == "/v1/payment_intents/pi_123/capture":
					w.WriteHeader(tt.status)
					_, _ = w.Write([]byte(tt.body))
				case r.Method == http.MethodGet && r.URL.Path == "/v1/payment_intents/pi_123":
					_, _ = w.Write([]byte(tt.retrieve))
				default:
					w.WriteHeader(http.StatusNotFound)
				}
			}))

			capture, err := gw.CaptureOrder(context.Background(), "pi_123")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("capture: %v", err)
			}
			if capture.Status != tt.wantStatus || capture.CaptureID != tt.wantID {
				t.Fatalf("unexpected capture: %+v", capture)
			}
		})
	}
}

func TestGetOrderReturnsTerms(t *testing.T) {
	gw := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/v1/payment_intents/pi_123" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"pi_123","status":"requires_capture","amount":4999,"currency":"usd","metadata":{"custom_id":"10:200"}}`))
	}))

	order, err := gw.GetOrder(context.Background(), "pi_123")
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if order.Status != paymentdomain.StatusPending {
		t.Fatalf("expected pending, got %s", order.Status)
	}
	if order.CustomID != "10:200" || order.Currency != "USD" || !order.Amount.Equal(decimal.RequireFromString("49.99")) {
		t.Fatalf("unexpected terms: %+v", order.Terms)
	}

	if _, err := gw.GetOrder(context.Background(), "pi_missing"); !errors.Is(err, paymentdomain.ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
}

func TestCaptureOrderReportsAmountReceived(t *testing.T) {
	gw := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"pi_123","status":"succeeded","latest_charge":"ch_abc","amount":4999,"amount_received":1900,"currency":"usd","metadata":{"custom_id":"11:200"}}`))
	}))

	capture, err := gw.CaptureOrder(context.Background(), "pi_123")
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if capture.CustomID != "11:200" {
		t.Fatalf("expected custom id, got %q", capture.CustomID)
	}
	if !capture.Amount.Equal(decimal.RequireFromString("19")) {
		t.Fatalf("expected amount received 19.00, got %s", capture.Amount)
	}
}
