package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/lms/internal/course/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo domain.Repository
}

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("course.service"),
		repo: p.Repo,
	}
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (domain.Course, error) {
	if id <= 0 {
		return domain.Course{}, domain.ErrInvalidID
	}

	course, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Course{}, fmt.Errorf("find course: %w", err)
	}
	if course == nil || course.Deleted {
		return domain.Course{}, domain.ErrNotFound
	}
	if course.Price.IsNegative() {
		s.log.Error("course has negative price", zap.String("course_id", course.ID.String()))
		return domain.Course{}, domain.ErrInvalidPrice
	}

	return *course, nil
}
