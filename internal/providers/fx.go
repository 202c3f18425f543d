package providers

import (
	"github.com/smallbiznis/lms/internal/providers/email"
	"github.com/smallbiznis/lms/internal/providers/slack"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	email.Module,
	slack.Module,
)
