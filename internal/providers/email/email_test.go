package email

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"sync"
	"testing"

	"github.com/smallbiznis/lms/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testFrom = `"My Course Platform" <no-reply@courses.com>`

func TestSMTPSendBuildsPlainTextMessage(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte

	p := NewSMTP(Config{Host: "smtp.example.com", Port: 587, Username: "u", Password: "p", From: testFrom})
	p.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	}

	err := p.Send(context.Background(), Message{
		To:      "ada@example.com",
		Subject: "Course Enrollment Confirmation",
		Body:    "Hi Ada,\n\nYou've successfully enrolled in Go. Enjoy learning!",
	})
	require.NoError(t, err)

	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Equal(t, "no-reply@courses.com", gotFrom)
	assert.Equal(t, []string{"ada@example.com"}, gotTo)
	msg := string(gotMsg)
	assert.Contains(t, msg, "Subject: Course Enrollment Confirmation\r\n")
	assert.Contains(t, msg, "Hi Ada,\r\n\r\nYou've successfully enrolled in Go. Enjoy learning!")
}

func TestSMTPSendWrapsFailures(t *testing.T) {
	p := NewSMTP(Config{Host: "smtp.example.com", Port: 25, From: testFrom})
	p.send = func(string, smtp.Auth, string, []string, []byte) error {
		return errors.New("connection refused")
	}

	err := p.Send(context.Background(), Message{To: "ada@example.com"})
	assert.ErrorIs(t, err, ErrDeliveryFailed)

	err = p.Send(context.Background(), Message{To: "not an address"})
	assert.ErrorIs(t, err, ErrInvalidRecipient)
}

func TestSendGridSend(t *testing.T) {
	var mu sync.Mutex
	var payload map[string]any
	var auth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		_ = json.Unmarshal(body, &payload)
		auth = r.Header.Get("Authorization")
		mu.Unlock()
		if r.URL.Path != "/v3/mail/send" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	p := NewSendGrid("SG.key", testFrom)
	p.host = srv.URL

	err := p.Send(context.Background(), Message{To: "ada@example.com", ToName: "Ada", Subject: "hello", Body: "body"})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "Bearer SG.key", auth)
	assert.Equal(t, "hello", payload["subject"])
	from, _ := payload["from"].(map[string]any)
	assert.Equal(t, "no-reply@courses.com", from["email"])
	assert.Equal(t, "My Course Platform", from["name"])
}

func TestSendGridRejectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := NewSendGrid("bad", testFrom)
	p.host = srv.URL

	err := p.Send(context.Background(), Message{To: "ada@example.com"})
	assert.ErrorIs(t, err, ErrDeliveryFailed)
}

func TestNewFromConfig(t *testing.T) {
	cases := map[string]string{
		config.EmailProviderSMTP:     "smtp",
		config.EmailProviderSendGrid: "noop",
		config.EmailProviderNoop:     "noop",
		"":                           "noop",
	}
	for provider, want := range cases {
		got := NewFromConfig(config.Config{Email: config.EmailConfig{Provider: provider, From: testFrom}}, zap.NewNop())
		assert.Equal(t, want, got.Name(), "provider %q", provider)
	}
	assert.True(t, strings.HasPrefix(NewFromConfig(config.Config{Email: config.EmailConfig{
		Provider: config.EmailProviderSendGrid, SendGridAPIKey: "k",
	}}, zap.NewNop()).Name(), "send"))
}
