package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/lms/internal/auth/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func New() domain.Repository {
	return &repo{}
}

func (r *repo) IsRevoked(ctx context.Context, db *gorm.DB, tokenHash string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&domain.RevokedToken{}).
		Where("token_hash = ?", tokenHash).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) Revoke(ctx context.Context, db *gorm.DB, token *domain.RevokedToken) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(token).Error
}

func (r *repo) PurgeExpired(ctx context.Context, db *gorm.DB, before time.Time) (int64, error) {
	tx := db.WithContext(ctx).
		Where("expires_at < ?", before).
		Delete(&domain.RevokedToken{})
	return tx.RowsAffected, tx.Error
}
