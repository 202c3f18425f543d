package server

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	authdomain "github.com/smallbiznis/lms/internal/auth/domain"
	obscontext "github.com/smallbiznis/lms/internal/observability/context"
	"github.com/smallbiznis/lms/internal/observability/logger"
	"github.com/smallbiznis/lms/internal/ratelimit"
	"go.uber.org/zap"
)

const (
	contextCallerKey = "caller"
	contextTokenKey  = "bearer_token"

	rateLimitReasonStudentRate     = "student-rate"
	rateLimitReasonCaptureInFlight = "capture-in-flight"
)

// BearerAuth resolves the caller from the Authorization header. Handlers
// behind it can rely on callerFromContext.
func (s *Server) BearerAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		caller, err := s.authsvc.Authenticate(c.Request.Context(), raw)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		ctx := obscontext.WithActor(c.Request.Context(), caller.ID.String(), caller.Role)
		c.Request = c.Request.WithContext(ctx)
		c.Set(contextCallerKey, caller)
		c.Set(contextTokenKey, raw)
		c.Next()
	}
}

// authorizeAction gates a route on the caller's role policy. It runs before
// body parsing and rate limiting so a wrong role is always answered with 403.
func (s *Server) authorizeAction(object, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := callerFromContext(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if err := s.authzSvc.Authorize(c.Request.Context(), caller, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

// EnrollmentRateLimit throttles enrollment writes per student. Redis errors
// let the request through.
func (s *Server) EnrollmentRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Enabled() {
			c.Next()
			return
		}
		caller, ok := callerFromContext(c)
		if !ok {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		endpoint := normalizeRateLimitEndpoint(c)
		res, err := s.limiter.AllowStudent(ctx, caller.ID.String(), endpoint)
		if err != nil {
			logger.FromContext(ctx).Warn("enrollment rate limit check failed", zap.Error(err))
			c.Next()
			return
		}
		if !res.Allowed {
			logger.FromContext(ctx).Warn("enrollment rate limit exceeded",
				zap.String("reason", rateLimitReasonStudentRate),
				zap.String("endpoint", endpoint),
			)
			c.Header("Retry-After", retryAfterSeconds(res.RetryAfter.Seconds()))
			c.Header("X-Rate-Limited-Reason", rateLimitReasonStudentRate)
			AbortWithError(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}

// CaptureGuard lets one capture per (student, course) run at a time. A
// concurrent duplicate is answered with 409 without reaching the gateway.
func (s *Server) CaptureGuard() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Enabled() {
			c.Next()
			return
		}
		caller, ok := callerFromContext(c)
		if !ok {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		studentID := caller.ID.String()
		courseID := strings.TrimSpace(c.Param("courseId"))

		lease, err := s.limiter.LockCapture(ctx, studentID, courseID)
		switch {
		case errors.Is(err, ratelimit.ErrLockHeld):
			logger.FromContext(ctx).Info("capture already in progress",
				zap.String("reason", rateLimitReasonCaptureInFlight),
			)
			c.Header("X-Rate-Limited-Reason", rateLimitReasonCaptureInFlight)
			AbortWithError(c, ErrConflict)
			return
		case err != nil:
			logger.FromContext(ctx).Warn("capture lock failed", zap.Error(err))
		}
		defer func() {
			if err := lease.Release(ctx); err != nil {
				logger.FromContext(ctx).Warn("capture unlock failed", zap.Error(err))
			}
		}()
		c.Next()
	}
}

func callerFromContext(c *gin.Context) (authdomain.Caller, bool) {
	value, ok := c.Get(contextCallerKey)
	if !ok {
		return authdomain.Caller{}, false
	}
	caller, ok := value.(authdomain.Caller)
	if !ok || caller.IsZero() {
		return authdomain.Caller{}, false
	}
	return caller, true
}

func bearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return "", false
	}
	token := strings.TrimSpace(header[7:])
	return token, token != ""
}

func retryAfterSeconds(seconds float64) string {
	if seconds < 1 {
		return "1"
	}
	return strconv.Itoa(int(math.Ceil(seconds)))
}

func normalizeRateLimitEndpoint(c *gin.Context) string {
	if c == nil {
		return "unknown"
	}
	endpoint := strings.TrimSpace(c.FullPath())
	if endpoint == "" {
		endpoint = strings.TrimSpace(c.Request.URL.Path)
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	return endpoint
}
