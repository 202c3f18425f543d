package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/lms/internal/audit/domain"
	"github.com/smallbiznis/lms/internal/audit/masking"
	"github.com/smallbiznis/lms/internal/clock"
	obscontext "github.com/smallbiznis/lms/internal/observability/context"
	obslogger "github.com/smallbiznis/lms/internal/observability/logger"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Metadata keys whose values are masked before they are stored.
var maskedReferenceKeys = map[string]struct{}{
	"payment_reference":  {},
	"capture_id":         {},
	"external_order_id":  {},
	"existing_reference": {},
}

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  auditdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  auditdomain.Repository
}

func NewService(p Params) auditdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Record(ctx context.Context, entry auditdomain.Entry) error {
	action := strings.TrimSpace(entry.Action)
	if _, ok := auditdomain.KnownActions[action]; !ok {
		return fmt.Errorf("%w: %q", auditdomain.ErrInvalidAction, action)
	}

	targetType := strings.TrimSpace(entry.TargetType)
	if targetType == "" {
		targetType = "unknown"
	}
	actorType, actorID := resolveActor(ctx, entry.ActorType, entry.ActorID)

	metadata := sanitizeMetadata(entry.Metadata)
	if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
		metadata["request_id"] = requestID
	}

	row := auditdomain.AuditLog{
		ID:         s.genID.Generate(),
		ActorType:  string(actorType),
		ActorID:    optional(actorID),
		Action:     action,
		TargetType: targetType,
		TargetID:   optional(entry.TargetID),
		Metadata:   datatypes.JSONMap(metadata),
		CreatedAt:  s.clock.Now(),
	}

	if err := s.repo.Insert(ctx, s.db, &row); err != nil {
		obslogger.WithContext(ctx, s.log).Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
		return err
	}
	return nil
}

func (s *Service) ListByTarget(ctx context.Context, targetType string, targetID string) ([]auditdomain.AuditLog, error) {
	return s.repo.ListByTarget(ctx, s.db, strings.TrimSpace(targetType), strings.TrimSpace(targetID))
}

// resolveActor falls back to the authenticated actor on the context, then to
// the system actor for scheduled jobs.
func resolveActor(ctx context.Context, actorType auditdomain.ActorType, actorID string) (auditdomain.ActorType, string) {
	actorID = strings.TrimSpace(actorID)
	if actorType == "" {
		if ctxID, _ := obscontext.ActorFromContext(ctx); ctxID != "" {
			actorType = auditdomain.ActorTypeUser
			if actorID == "" {
				actorID = ctxID
			}
		}
	}
	if actorType == "" {
		actorType = auditdomain.ActorTypeSystem
	}
	return actorType, actorID
}

func sanitizeMetadata(in map[string]any) map[string]any {
	out := make(map[string]any, len(in)+1)
	for key, value := range in {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if str, ok := value.(string); ok {
			switch {
			case key == "email":
				value = masking.MaskEmail(str)
			case isMaskedReference(key):
				value = masking.MaskReference(str)
			}
		}
		out[key] = value
	}
	return out
}

func isMaskedReference(key string) bool {
	_, ok := maskedReferenceKeys[key]
	return ok
}

func optional(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
