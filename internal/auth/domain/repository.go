package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	IsRevoked(ctx context.Context, db *gorm.DB, tokenHash string) (bool, error)
	Revoke(ctx context.Context, db *gorm.DB, token *RevokedToken) error
	PurgeExpired(ctx context.Context, db *gorm.DB, before time.Time) (int64, error)
}
