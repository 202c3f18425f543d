package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Reason string

const (
	// ReasonMissingCaptureID: the provider reported a completed capture without an id.
	ReasonMissingCaptureID Reason = "missing_capture_id"
	// ReasonLedgerWriteFailed: money was captured but the enrollment could not be stored.
	ReasonLedgerWriteFailed Reason = "ledger_write_failed"
	// ReasonDuplicateCapture: a capture succeeded for a student who was already enrolled.
	ReasonDuplicateCapture Reason = "duplicate_capture"
	// ReasonOrderMismatch: a captured order was issued for another student,
	// course or amount.
	ReasonOrderMismatch Reason = "order_mismatch"
)

func (r Reason) Valid() bool {
	switch r {
	case ReasonMissingCaptureID, ReasonLedgerWriteFailed, ReasonDuplicateCapture, ReasonOrderMismatch:
		return true
	default:
		return false
	}
}

type Status string

const (
	StatusOpen     Status = "open"
	StatusResolved Status = "resolved"
)

// Item is a payment that moved money without a matching enrollment.
type Item struct {
	ID              snowflake.ID      `gorm:"primaryKey" json:"id"`
	StudentID       snowflake.ID      `gorm:"not null" json:"student_id"`
	CourseID        snowflake.ID      `gorm:"not null" json:"course_id"`
	Provider        string            `gorm:"not null" json:"provider"`
	ExternalOrderID string            `gorm:"not null" json:"external_order_id"`
	CaptureID       *string           `json:"capture_id,omitempty"`
	Reason          Reason            `gorm:"not null" json:"reason"`
	Status          Status            `gorm:"not null" json:"status"`
	Payload         datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"payload"`
	Note            *string           `json:"note,omitempty"`
	ResolvedBy      *snowflake.ID     `json:"resolved_by,omitempty"`
	CreatedAt       time.Time         `gorm:"not null" json:"created_at"`
	ResolvedAt      *time.Time        `json:"resolved_at,omitempty"`
}

func (Item) TableName() string { return "reconciliation_items" }

type RecordRequest struct {
	StudentID       snowflake.ID
	CourseID        snowflake.ID
	Provider        string
	ExternalOrderID string
	CaptureID       string
	Reason          Reason
	Detail          map[string]any
}

type Repository interface {
	// Insert stores the item unless one already exists for (provider, order, reason).
	Insert(ctx context.Context, db *gorm.DB, item *Item) (bool, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Item, error)
	ListByStatus(ctx context.Context, db *gorm.DB, status Status, limit int) ([]Item, error)
	CountByStatus(ctx context.Context, db *gorm.DB, status Status) (int64, error)
	MarkResolved(ctx context.Context, db *gorm.DB, id snowflake.ID, resolvedBy snowflake.ID, note *string, at time.Time) (bool, error)
}

type Service interface {
	Record(ctx context.Context, req RecordRequest) (Item, error)
	ListOpen(ctx context.Context, limit int) ([]Item, error)
	Resolve(ctx context.Context, id snowflake.ID, resolvedBy snowflake.ID, note string) (Item, error)
	// Sweep re-alerts on items that are still open and returns how many there are.
	Sweep(ctx context.Context) (int, error)
}

var (
	ErrNotFound        = errors.New("reconciliation_item_not_found")
	ErrInvalidReason   = errors.New("invalid_reconciliation_reason")
	ErrInvalidRequest  = errors.New("invalid_reconciliation_request")
	ErrAlreadyResolved = errors.New("reconciliation_item_already_resolved")
)
