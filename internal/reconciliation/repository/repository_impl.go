package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/lms/internal/reconciliation/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, item *domain.Item) (bool, error) {
	tx := db.WithContext(ctx).Exec(
		`INSERT INTO reconciliation_items (
			id, student_id, course_id, provider, external_order_id, capture_id,
			reason, status, payload, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (provider, external_order_id, reason) DO NOTHING`,
		item.ID,
		item.StudentID,
		item.CourseID,
		item.Provider,
		item.ExternalOrderID,
		item.CaptureID,
		item.Reason,
		item.Status,
		item.Payload,
		item.CreatedAt,
	)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected == 1, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Item, error) {
	var items []domain.Item
	err := db.WithContext(ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

func (r *repo) ListByStatus(ctx context.Context, db *gorm.DB, status domain.Status, limit int) ([]domain.Item, error) {
	var items []domain.Item
	stmt := db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at asc, id asc")
	if limit > 0 {
		stmt = stmt.Limit(limit)
	}
	if err := stmt.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) CountByStatus(ctx context.Context, db *gorm.DB, status domain.Status) (int64, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&domain.Item{}).
		Where("status = ?", status).
		Count(&count).Error
	return count, err
}

func (r *repo) MarkResolved(ctx context.Context, db *gorm.DB, id snowflake.ID, resolvedBy snowflake.ID, note *string, at time.Time) (bool, error) {
	tx := db.WithContext(ctx).
		Model(&domain.Item{}).
		Where("id = ? AND status = ?", id, domain.StatusOpen).
		Updates(map[string]any{
			"status":      domain.StatusResolved,
			"resolved_by": resolvedBy,
			"note":        note,
			"resolved_at": at,
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected == 1, nil
}
