package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/lms/internal/audit/domain"
	"github.com/smallbiznis/lms/internal/clock"
	"github.com/smallbiznis/lms/internal/config"
	"github.com/smallbiznis/lms/internal/reconciliation/domain"
	"github.com/smallbiznis/lms/internal/reconciliation/repository"
	"github.com/smallbiznis/lms/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const schema = `CREATE TABLE reconciliation_items (
	id INTEGER PRIMARY KEY,
	student_id INTEGER NOT NULL,
	course_id INTEGER NOT NULL,
	provider TEXT NOT NULL,
	external_order_id TEXT NOT NULL,
	capture_id TEXT,
	reason TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'open',
	payload TEXT NOT NULL DEFAULT '{}',
	note TEXT,
	resolved_by INTEGER,
	created_at DATETIME NOT NULL,
	resolved_at DATETIME
)`

const schemaIndex = `CREATE UNIQUE INDEX ux_reconciliation_items_order_reason ON reconciliation_items (provider, external_order_id, reason)`

type recordingSlack struct {
	mu       sync.Mutex
	messages []string
}

func (r *recordingSlack) PostMessage(ctx context.Context, channelID string, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, message)
	return nil
}

func (r *recordingSlack) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

func (r *recordingSlack) last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.messages) == 0 {
		return ""
	}
	return r.messages[len(r.messages)-1]
}

type failingAudit struct {
	entries []auditdomain.Entry
}

func (f *failingAudit) Record(ctx context.Context, entry auditdomain.Entry) error {
	f.entries = append(f.entries, entry)
	return errors.New("audit store down")
}

func (f *failingAudit) ListByTarget(ctx context.Context, targetType string, targetID string) ([]auditdomain.AuditLog, error) {
	return nil, nil
}

func newTestService(t *testing.T) (domain.Service, *recordingSlack) {
	t.Helper()
	return newTestServiceWith(t, zap.NewNop(), nil)
}

func newTestServiceWith(t *testing.T, log *zap.Logger, audit auditdomain.Service) (domain.Service, *recordingSlack) {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	alerts := &recordingSlack{}
	svc := New(Params{
		DB:       dbtest.Open(t, schema, schemaIndex),
		Log:      log,
		Cfg:      config.Config{Slack: config.SlackConfig{Channel: "#ops"}},
		GenID:    node,
		Clock:    clock.NewFakeClock(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)),
		Repo:     repository.Provide(),
		Slack:    alerts,
		AuditSvc: audit,
	})
	return svc, alerts
}

func TestRecordIsIdempotentPerOrderAndReason(t *testing.T) {
	svc, alerts := newTestService(t)
	ctx := context.Background()

	req := domain.RecordRequest{
		StudentID:       1,
		CourseID:        2,
		Provider:        "paypal",
		ExternalOrderID: "5O190127TN364715T",
		CaptureID:       "3C679366HH908993F",
		Reason:          domain.ReasonDuplicateCapture,
		Detail:          map[string]any{"status": "COMPLETED"},
	}

	item, err := svc.Record(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOpen, item.Status)

	_, err = svc.Record(ctx, req)
	require.NoError(t, err)

	open, err := svc.ListOpen(ctx, 0)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, domain.ReasonDuplicateCapture, open[0].Reason)
	require.NotNil(t, open[0].CaptureID)
	assert.Equal(t, "3C679366HH908993F", *open[0].CaptureID)
	assert.Equal(t, "COMPLETED", open[0].Payload["status"])

	require.Eventually(t, func() bool { return alerts.count() == 1 }, time.Second, 10*time.Millisecond)
	assert.Contains(t, alerts.last(), "duplicate_capture")
	assert.NotContains(t, alerts.last(), "5O190127TN364715T")
}

func TestRecordValidates(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Record(ctx, domain.RecordRequest{Reason: "other"})
	assert.ErrorIs(t, err, domain.ErrInvalidReason)

	_, err = svc.Record(ctx, domain.RecordRequest{Reason: domain.ReasonMissingCaptureID, Provider: "paypal"})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestResolveAndSweep(t *testing.T) {
	svc, alerts := newTestService(t)
	ctx := context.Background()

	count, err := svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	item, err := svc.Record(ctx, domain.RecordRequest{
		StudentID:       1,
		CourseID:        2,
		Provider:        "stripe",
		ExternalOrderID: "pi_123456789",
		Reason:          domain.ReasonMissingCaptureID,
	})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return alerts.count() == 1 }, time.Second, 10*time.Millisecond)

	count, err = svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.True(t, strings.HasPrefix(alerts.last(), ":warning: 1 payment(s)"))

	resolved, err := svc.Resolve(ctx, item.ID, 99, "refunded manually")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusResolved, resolved.Status)
	require.NotNil(t, resolved.Note)
	assert.Equal(t, "refunded manually", *resolved.Note)

	_, err = svc.Resolve(ctx, item.ID, 99, "")
	assert.ErrorIs(t, err, domain.ErrAlreadyResolved)

	_, err = svc.Resolve(ctx, 12345, 99, "")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	open, err := svc.ListOpen(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestResolveLogsAuditFailureWithoutFailing(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	audit := &failingAudit{}
	svc, _ := newTestServiceWith(t, zap.New(core), audit)
	ctx := context.Background()

	item, err := svc.Record(ctx, domain.RecordRequest{
		StudentID:       1,
		CourseID:        2,
		Provider:        "paypal",
		ExternalOrderID: "ORDER-1",
		CaptureID:       "CAP-1",
		Reason:          domain.ReasonOrderMismatch,
	})
	require.NoError(t, err)

	resolved, err := svc.Resolve(ctx, item.ID, 99, "refunded")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusResolved, resolved.Status)

	require.Len(t, audit.entries, 1)
	assert.Equal(t, item.ID.String(), audit.entries[0].TargetID)

	warned := logs.FilterMessage("audit record for resolved item failed").All()
	require.Len(t, warned, 1)
	assert.Equal(t, item.ID.String(), warned[0].ContextMap()["item_id"])
	assert.Equal(t, "audit store down", warned[0].ContextMap()["error"])
}
