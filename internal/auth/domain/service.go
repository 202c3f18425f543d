package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	// Authenticate verifies a raw bearer token and returns its caller.
	Authenticate(ctx context.Context, rawToken string) (Caller, error)
	// Issue signs a token for the given identity. Credential checks happen upstream.
	Issue(ctx context.Context, userID snowflake.ID, role string) (string, time.Time, error)
	// Revoke blacklists a token until its expiry.
	Revoke(ctx context.Context, rawToken string) error
	PurgeRevoked(ctx context.Context) (int64, error)
}
