package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/lms/internal/audit/domain"
	"github.com/smallbiznis/lms/internal/audit/masking"
	"github.com/smallbiznis/lms/internal/clock"
	"github.com/smallbiznis/lms/internal/config"
	obscontext "github.com/smallbiznis/lms/internal/observability/context"
	obslogger "github.com/smallbiznis/lms/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/lms/internal/observability/metrics"
	"github.com/smallbiznis/lms/internal/providers/slack"
	"github.com/smallbiznis/lms/internal/reconciliation/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	alertTimeout    = 10 * time.Second
	sweepAlertLimit = 10
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Cfg      config.Config
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     domain.Repository
	Slack    slack.Provider
	Metrics  *obsmetrics.Metrics `optional:"true"`
	AuditSvc auditdomain.Service `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	channel  string
	genID    *snowflake.Node
	clock    clock.Clock
	repo     domain.Repository
	slack    slack.Provider
	metrics  *obsmetrics.Metrics
	auditSvc auditdomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("reconciliation.service"),
		channel:  p.Cfg.Slack.Channel,
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		slack:    p.Slack,
		metrics:  p.Metrics,
		auditSvc: p.AuditSvc,
	}
}

// Record persists a reconciliation item. The write ignores caller cancellation
// because the money has already moved.
func (s *Service) Record(ctx context.Context, req domain.RecordRequest) (domain.Item, error) {
	if !req.Reason.Valid() {
		return domain.Item{}, domain.ErrInvalidReason
	}
	provider := strings.TrimSpace(req.Provider)
	orderID := strings.TrimSpace(req.ExternalOrderID)
	if provider == "" || orderID == "" || req.StudentID == 0 || req.CourseID == 0 {
		return domain.Item{}, domain.ErrInvalidRequest
	}

	payload := map[string]any{}
	for key, value := range req.Detail {
		if key != "" {
			payload[key] = value
		}
	}
	if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
		payload["request_id"] = requestID
	}

	item := domain.Item{
		ID:              s.genID.Generate(),
		StudentID:       req.StudentID,
		CourseID:        req.CourseID,
		Provider:        provider,
		ExternalOrderID: orderID,
		Reason:          req.Reason,
		Status:          domain.StatusOpen,
		Payload:         datatypes.JSONMap(payload),
		CreatedAt:       s.clock.Now(),
	}
	if captureID := strings.TrimSpace(req.CaptureID); captureID != "" {
		item.CaptureID = &captureID
	}

	writeCtx := context.WithoutCancel(ctx)
	log := obslogger.WithContext(ctx, s.log).With(
		zap.String("reason", string(item.Reason)),
		zap.String("provider", item.Provider),
		zap.String("external_order_id", masking.MaskReference(item.ExternalOrderID)),
		zap.String("student_id", item.StudentID.String()),
		zap.String("course_id", item.CourseID.String()),
	)

	inserted, err := s.repo.Insert(writeCtx, s.db, &item)
	if err != nil {
		log.Error("failed to persist reconciliation item", zap.Error(err))
		return domain.Item{}, err
	}
	if !inserted {
		log.Warn("reconciliation item already recorded")
		return item, nil
	}

	s.metrics.RecordReconciliationItem(ctx, string(item.Reason))
	log.Error("payment requires reconciliation", zap.String("item_id", item.ID.String()))

	go s.alert(writeCtx, formatItemAlert(item))
	return item, nil
}

func (s *Service) ListOpen(ctx context.Context, limit int) ([]domain.Item, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repo.ListByStatus(ctx, s.db, domain.StatusOpen, limit)
}

func (s *Service) Resolve(ctx context.Context, id snowflake.ID, resolvedBy snowflake.ID, note string) (domain.Item, error) {
	if id == 0 || resolvedBy == 0 {
		return domain.Item{}, domain.ErrInvalidRequest
	}

	item, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Item{}, err
	}
	if item == nil {
		return domain.Item{}, domain.ErrNotFound
	}
	if item.Status == domain.StatusResolved {
		return domain.Item{}, domain.ErrAlreadyResolved
	}

	var notePtr *string
	if trimmed := strings.TrimSpace(note); trimmed != "" {
		notePtr = &trimmed
	}
	now := s.clock.Now()

	updated, err := s.repo.MarkResolved(ctx, s.db, id, resolvedBy, notePtr, now)
	if err != nil {
		return domain.Item{}, err
	}
	if !updated {
		return domain.Item{}, domain.ErrAlreadyResolved
	}

	item.Status = domain.StatusResolved
	item.ResolvedBy = &resolvedBy
	item.ResolvedAt = &now
	item.Note = notePtr

	if s.auditSvc != nil {
		err := s.auditSvc.Record(ctx, auditdomain.Entry{
			ActorType:  auditdomain.ActorTypeUser,
			ActorID:    resolvedBy.String(),
			Action:     auditdomain.ActionReconciliationResolved,
			TargetType: "reconciliation_item",
			TargetID:   id.String(),
			Metadata: map[string]any{
				"reason":            string(item.Reason),
				"provider":          item.Provider,
				"external_order_id": item.ExternalOrderID,
			},
		})
		if err != nil {
			obslogger.WithContext(ctx, s.log).Warn("audit record for resolved item failed",
				zap.String("item_id", id.String()),
				zap.Error(err),
			)
		}
	}

	obslogger.WithContext(ctx, s.log).Info("reconciliation item resolved",
		zap.String("item_id", id.String()),
		zap.String("resolved_by", resolvedBy.String()),
	)
	return *item, nil
}

func (s *Service) Sweep(ctx context.Context) (int, error) {
	count, err := s.repo.CountByStatus(ctx, s.db, domain.StatusOpen)
	if err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, nil
	}

	items, err := s.repo.ListByStatus(ctx, s.db, domain.StatusOpen, sweepAlertLimit)
	if err != nil {
		return 0, err
	}

	s.log.Warn("open reconciliation items", zap.Int64("count", count))
	s.alert(ctx, formatSweepAlert(count, items))
	return int(count), nil
}

func (s *Service) alert(ctx context.Context, message string) {
	ctx, cancel := context.WithTimeout(ctx, alertTimeout)
	defer cancel()
	if err := s.slack.PostMessage(ctx, s.channel, message); err != nil {
		s.log.Warn("reconciliation alert failed", zap.Error(err))
	}
}

func formatItemAlert(item domain.Item) string {
	capture := "none"
	if item.CaptureID != nil {
		capture = masking.MaskReference(*item.CaptureID)
	}
	return fmt.Sprintf(
		":rotating_light: Payment needs reconciliation (%s)\nprovider: %s order: %s capture: %s\nstudent: %s course: %s item: %s",
		item.Reason,
		item.Provider,
		masking.MaskReference(item.ExternalOrderID),
		capture,
		item.StudentID,
		item.CourseID,
		item.ID,
	)
}

func formatSweepAlert(count int64, items []domain.Item) string {
	var b strings.Builder
	fmt.Fprintf(&b, ":warning: %d payment(s) still awaiting reconciliation", count)
	for _, item := range items {
		fmt.Fprintf(&b, "\n- %s %s %s since %s",
			item.ID,
			item.Reason,
			masking.MaskReference(item.ExternalOrderID),
			item.CreatedAt.UTC().Format(time.RFC3339),
		)
	}
	return b.String()
}
