package domain

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

const (
	ActionEnrollmentCreated      = "enrollment.created"
	ActionEnrollmentOrderCreated = "enrollment.order_created"
	ActionReconciliationResolved = "reconciliation.resolved"
	ActionAuthorizationDenied    = "authorization.denied"
)

// KnownActions lists the actions the audit trail accepts.
var KnownActions = map[string]struct{}{
	ActionEnrollmentCreated:      {},
	ActionEnrollmentOrderCreated: {},
	ActionReconciliationResolved: {},
	ActionAuthorizationDenied:    {},
}

// Entry describes one audited event. Empty actor fields are filled from the
// request context.
type Entry struct {
	ActorType  ActorType
	ActorID    string
	Action     string
	TargetType string
	TargetID   string
	Metadata   map[string]any
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	ListByTarget(ctx context.Context, db *gorm.DB, targetType string, targetID string) ([]AuditLog, error)
}

type Service interface {
	Record(ctx context.Context, entry Entry) error
	ListByTarget(ctx context.Context, targetType string, targetID string) ([]AuditLog, error)
}

var ErrInvalidAction = errors.New("invalid_action")
