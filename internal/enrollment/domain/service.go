package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/smallbiznis/lms/internal/auth/domain"
)

// InitiateResult holds exactly one of Enrollment (free course) or OrderID
// (paid course awaiting capture).
type InitiateResult struct {
	Enrollment *Enrollment
	OrderID    string
}

func (r InitiateResult) Enrolled() bool {
	return r.Enrollment != nil
}

type CaptureRequest struct {
	CourseID        snowflake.ID
	ExternalOrderID string
}

type Service interface {
	Initiate(ctx context.Context, caller authdomain.Caller, courseID snowflake.ID) (InitiateResult, error)
	Capture(ctx context.Context, caller authdomain.Caller, req CaptureRequest) (Enrollment, error)
	ListByCourse(ctx context.Context, caller authdomain.Caller, courseID snowflake.ID) ([]Enrollment, error)
}
