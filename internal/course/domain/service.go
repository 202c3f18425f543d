package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// Service resolves courses for the enrollment workflow. Soft-deleted courses
// are reported as not found.
type Service interface {
	GetByID(ctx context.Context, id snowflake.ID) (Course, error)
}

var (
	ErrNotFound     = errors.New("course_not_found")
	ErrInvalidID    = errors.New("invalid_course_id")
	ErrInvalidPrice = errors.New("invalid_course_price")
)
