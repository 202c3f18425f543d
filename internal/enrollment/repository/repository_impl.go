package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/lms/internal/enrollment/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, enrollment *domain.Enrollment) (bool, error) {
	tx := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "student_id"}, {Name: "course_id"}},
			DoNothing: true,
		}).
		Create(enrollment)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected == 1, nil
}

func (r *repo) FindByStudentAndCourse(ctx context.Context, db *gorm.DB, studentID, courseID snowflake.ID) (*domain.Enrollment, error) {
	var rows []domain.Enrollment
	err := db.WithContext(ctx).
		Where("student_id = ? AND course_id = ?", studentID, courseID).
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// ListByCourse returns the course's enrollments newest first, with each
// student's name and email.
func (r *repo) ListByCourse(ctx context.Context, db *gorm.DB, courseID snowflake.ID) ([]domain.Enrollment, error) {
	var rows []domain.Enrollment
	err := db.WithContext(ctx).
		Table("enrollments AS e").
		Select("e.*, COALESCE(u.name, '') AS student_name, COALESCE(u.email, '') AS student_email").
		Joins("LEFT JOIN users AS u ON u.id = e.student_id").
		Where("e.course_id = ?", courseID).
		Order("e.enrolled_at DESC").
		Order("e.id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
