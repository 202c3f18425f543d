package authorization

import (
	"context"

	authdomain "github.com/smallbiznis/lms/internal/auth/domain"
)

type Service interface {
	Authorize(ctx context.Context, caller authdomain.Caller, object string, action string) error
}
