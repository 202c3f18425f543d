package service

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/lms/internal/audit/domain"
	"github.com/smallbiznis/lms/internal/audit/repository"
	"github.com/smallbiznis/lms/internal/clock"
	obscontext "github.com/smallbiznis/lms/internal/observability/context"
	"github.com/smallbiznis/lms/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const auditSchema = `CREATE TABLE audit_logs (
	id INTEGER PRIMARY KEY,
	actor_type TEXT NOT NULL,
	actor_id TEXT,
	action TEXT NOT NULL,
	target_type TEXT NOT NULL,
	target_id TEXT,
	metadata TEXT NOT NULL DEFAULT '{}',
	created_at DATETIME NOT NULL
)`

func newTestService(t *testing.T) auditdomain.Service {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return NewService(Params{
		DB:    dbtest.Open(t, auditSchema),
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.SystemClock{},
		Repo:  repository.Provide(),
	})
}

func TestRecordUsesContextActorAndRequestID(t *testing.T) {
	svc := newTestService(t)

	ctx := obscontext.WithRequestID(context.Background(), "req-1")
	ctx = obscontext.WithActor(ctx, "42", "student")

	require.NoError(t, svc.Record(ctx, auditdomain.Entry{
		Action:     auditdomain.ActionEnrollmentCreated,
		TargetType: "enrollment",
		TargetID:   "900",
		Metadata:   map[string]any{"course_id": "7", "": "dropped"},
	}))

	logs, err := svc.ListByTarget(ctx, "enrollment", "900")
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "user", logs[0].ActorType)
	require.NotNil(t, logs[0].ActorID)
	assert.Equal(t, "42", *logs[0].ActorID)
	assert.Equal(t, "req-1", logs[0].Metadata["request_id"])
	assert.Equal(t, "7", logs[0].Metadata["course_id"])
	assert.NotContains(t, logs[0].Metadata, "")
}

func TestRecordMasksPaymentReferences(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Record(ctx, auditdomain.Entry{
		Action:     auditdomain.ActionReconciliationResolved,
		TargetType: "reconciliation_item",
		TargetID:   "5",
		Metadata: map[string]any{
			"external_order_id": "8XK12345AB678901",
			"email":             "ada@example.com",
			"reason":            "duplicate_capture",
		},
	}))

	logs, err := svc.ListByTarget(ctx, "reconciliation_item", "5")
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "system", logs[0].ActorType)
	assert.Nil(t, logs[0].ActorID)
	assert.Equal(t, "****8901", logs[0].Metadata["external_order_id"])
	assert.Equal(t, "a****@example.com", logs[0].Metadata["email"])
	assert.Equal(t, "duplicate_capture", logs[0].Metadata["reason"])
}

func TestRecordRejectsUnknownAction(t *testing.T) {
	svc := newTestService(t)

	err := svc.Record(context.Background(), auditdomain.Entry{Action: " "})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidAction)

	err = svc.Record(context.Background(), auditdomain.Entry{Action: "invoice.created"})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidAction)
}
