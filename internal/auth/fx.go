package auth

import (
	"github.com/smallbiznis/lms/internal/auth/repository"
	"github.com/smallbiznis/lms/internal/auth/service"
	"go.uber.org/fx"
)

var Module = fx.Module("auth.service",
	fx.Provide(repository.New),
	fx.Provide(service.New),
)
