package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// Insert writes the enrollment unless one already exists for the same
	// student and course. It reports false when the row was not written.
	Insert(ctx context.Context, db *gorm.DB, enrollment *Enrollment) (bool, error)
	FindByStudentAndCourse(ctx context.Context, db *gorm.DB, studentID, courseID snowflake.ID) (*Enrollment, error)
	ListByCourse(ctx context.Context, db *gorm.DB, courseID snowflake.ID) ([]Enrollment, error)
}
