package notification

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/lms/internal/config"
	"github.com/smallbiznis/lms/internal/providers/email"
	userdomain "github.com/smallbiznis/lms/internal/user/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeUsers struct {
	users map[snowflake.ID]userdomain.User
}

func (f *fakeUsers) GetByID(ctx context.Context, id snowflake.ID) (userdomain.User, error) {
	user, ok := f.users[id]
	if !ok {
		return userdomain.User{}, userdomain.ErrNotFound
	}
	return user, nil
}

type recordingProvider struct {
	mu   sync.Mutex
	sent []email.Message
	err  error
}

func (p *recordingProvider) Name() string { return "recording" }

func (p *recordingProvider) Send(ctx context.Context, msg email.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, msg)
	return nil
}

func (p *recordingProvider) messages() []email.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]email.Message(nil), p.sent...)
}

func newDispatcher(provider email.Provider, settings config.EnrollmentSettings, cfg Config) *Dispatcher {
	return NewDispatcher(Params{
		Log: zap.NewNop(),
		Users: &fakeUsers{users: map[snowflake.ID]userdomain.User{
			1: {ID: 1, Name: "Ada", Email: "ada@example.com"},
		}},
		Provider: provider,
		Settings: config.NewStaticEnrollmentSettings(settings),
		Config:   cfg,
	})
}

func TestDispatcherSendsConfirmation(t *testing.T) {
	provider := &recordingProvider{}
	d := newDispatcher(provider, config.DefaultEnrollmentSettings(), Config{})

	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)
	defer func() {
		cancel()
		d.Wait()
	}()

	d.Notify(context.Background(), Notice{StudentID: 1, CourseID: 7, CourseTitle: "Go Basics"})

	require.Eventually(t, func() bool { return len(provider.messages()) == 1 }, time.Second, 10*time.Millisecond)
	msg := provider.messages()[0]
	assert.Equal(t, "ada@example.com", msg.To)
	assert.Equal(t, "Course Enrollment Confirmation", msg.Subject)
	assert.Equal(t, "Hi Ada,\n\nYou've successfully enrolled in Go Basics. Enjoy learning!", msg.Body)
}

func TestDispatcherIsolatesFailures(t *testing.T) {
	provider := &recordingProvider{err: errors.New("smtp down")}
	d := newDispatcher(provider, config.DefaultEnrollmentSettings(), Config{Workers: 1})

	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)

	d.Notify(context.Background(), Notice{StudentID: 1, CourseTitle: "Go"})
	d.Notify(context.Background(), Notice{StudentID: 99, CourseTitle: "Go"})

	require.Eventually(t, func() bool { return len(d.queue) == 0 }, time.Second, 10*time.Millisecond)
	cancel()
	d.Wait()
	assert.Empty(t, provider.messages())
}

func TestNotifyDropsWhenQueueFull(t *testing.T) {
	d := newDispatcher(&recordingProvider{}, config.DefaultEnrollmentSettings(), Config{QueueSize: 1})

	d.Notify(context.Background(), Notice{StudentID: 1})
	d.Notify(context.Background(), Notice{StudentID: 1})

	assert.Len(t, d.queue, 1)
}

func TestDispatcherSkipsWhenDisabled(t *testing.T) {
	settings := config.DefaultEnrollmentSettings()
	settings.NotificationsEnabled = false
	provider := &recordingProvider{}
	d := newDispatcher(provider, settings, Config{})

	d.deliver(context.Background(), job{notice: Notice{StudentID: 1, CourseTitle: "Go"}})
	assert.Empty(t, provider.messages())
}

func TestRender(t *testing.T) {
	out, err := Render("Hi {{.Name}}, welcome to {{.CourseTitle}}", "Ada", "Go")
	require.NoError(t, err)
	assert.Equal(t, "Hi Ada, welcome to Go", out)

	_, err = Render("{{.Missing}}", "Ada", "Go")
	assert.Error(t, err)
}
