package authorization

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/smallbiznis/lms/internal/auth/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) Service {
	t.Helper()
	enforcer, err := NewMemoryEnforcer()
	require.NoError(t, err)
	return NewService(Params{Log: zap.NewNop(), Enforcer: enforcer})
}

func TestAuthorizeRoleMatrix(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	student := authdomain.Caller{ID: snowflake.ID(1), Role: authdomain.RoleStudent}
	instructor := authdomain.Caller{ID: snowflake.ID(2), Role: authdomain.RoleInstructor}
	admin := authdomain.Caller{ID: snowflake.ID(3), Role: authdomain.RoleAdmin}

	cases := []struct {
		name   string
		caller authdomain.Caller
		object string
		action string
		want   error
	}{
		{"student initiates", student, ObjectEnrollment, ActionEnrollmentInitiate, nil},
		{"student captures", student, ObjectEnrollment, ActionEnrollmentCapture, nil},
		{"student cannot list", student, ObjectEnrollment, ActionEnrollmentList, ErrForbidden},
		{"instructor cannot initiate", instructor, ObjectEnrollment, ActionEnrollmentInitiate, ErrForbidden},
		{"instructor cannot capture", instructor, ObjectEnrollment, ActionEnrollmentCapture, ErrForbidden},
		{"admin cannot initiate", admin, ObjectEnrollment, ActionEnrollmentInitiate, ErrForbidden},
		{"admin lists", admin, ObjectEnrollment, ActionEnrollmentList, nil},
		{"admin resolves", admin, ObjectReconciliation, ActionReconciliationResolve, nil},
		{"anonymous", authdomain.Caller{}, ObjectEnrollment, ActionEnrollmentInitiate, ErrInvalidActor},
		{"blank action", student, ObjectEnrollment, " ", ErrInvalidAction},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := svc.Authorize(ctx, tc.caller, tc.object, tc.action)
			if tc.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestAuthorizeFollowsRoleChange(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	id := snowflake.ID(10)
	require.NoError(t, svc.Authorize(ctx, authdomain.Caller{ID: id, Role: authdomain.RoleStudent}, ObjectEnrollment, ActionEnrollmentInitiate))

	err := svc.Authorize(ctx, authdomain.Caller{ID: id, Role: authdomain.RoleInstructor}, ObjectEnrollment, ActionEnrollmentInitiate)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestSeedPoliciesIsIdempotent(t *testing.T) {
	enforcer, err := NewMemoryEnforcer()
	require.NoError(t, err)

	require.NoError(t, seedPolicies(enforcer))

	rules, err := enforcer.GetPolicy()
	require.NoError(t, err)
	assert.Len(t, rules, len(defaultPolicies))

	svc := NewService(Params{Log: zap.NewNop(), Enforcer: enforcer})
	caller := authdomain.Caller{ID: snowflake.ID(7), Role: authdomain.RoleStudent}
	require.NoError(t, svc.Authorize(context.Background(), caller, ObjectEnrollment, ActionEnrollmentInitiate))

	links, err := enforcer.GetGroupingPolicy()
	require.NoError(t, err)
	assert.Empty(t, links)
}
