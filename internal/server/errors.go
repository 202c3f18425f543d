package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	authdomain "github.com/smallbiznis/lms/internal/auth/domain"
	"github.com/smallbiznis/lms/internal/authorization"
	enrollmentdomain "github.com/smallbiznis/lms/internal/enrollment/domain"
	reconciliationdomain "github.com/smallbiznis/lms/internal/reconciliation/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

// httpError is what a domain error looks like on the wire.
type httpError struct {
	status  int
	typ     string
	message string
}

var internalError = httpError{http.StatusInternalServerError, "internal_error", "internal server error"}

// errorRoutes is matched top to bottom with errors.Is. Anything unmatched,
// including persistence failures, is reported as internal_error.
var errorRoutes = []struct {
	targets []error
	out     httpError
}{
	{
		[]error{ErrUnauthorized, enrollmentdomain.ErrUnauthorized, authdomain.ErrMissingToken, authdomain.ErrInvalidToken},
		httpError{http.StatusUnauthorized, "unauthorized", "unauthorized"},
	},
	{
		[]error{authdomain.ErrTokenRevoked},
		httpError{http.StatusForbidden, "forbidden", "token has been revoked"},
	},
	{
		[]error{enrollmentdomain.ErrOrderMismatch},
		httpError{http.StatusForbidden, "order_mismatch", "payment order does not match this enrollment"},
	},
	{
		[]error{ErrForbidden, enrollmentdomain.ErrForbidden, authorization.ErrForbidden, authorization.ErrInvalidActor},
		httpError{http.StatusForbidden, "forbidden", "forbidden"},
	},
	{
		[]error{enrollmentdomain.ErrAlreadyEnrolled},
		httpError{http.StatusConflict, "conflict", "already enrolled in this course"},
	},
	{
		[]error{ErrConflict, reconciliationdomain.ErrAlreadyResolved},
		httpError{http.StatusConflict, "conflict", "conflict"},
	},
	{
		[]error{enrollmentdomain.ErrNoEnrollments},
		httpError{http.StatusNotFound, "not_found", "no students enrolled in this course"},
	},
	{
		[]error{enrollmentdomain.ErrCourseNotFound, reconciliationdomain.ErrNotFound, gorm.ErrRecordNotFound},
		httpError{http.StatusNotFound, "not_found", "not found"},
	},
	{
		[]error{enrollmentdomain.ErrPaymentNotCompleted},
		httpError{http.StatusPaymentRequired, "payment_not_completed", "payment not completed"},
	},
	{
		[]error{ErrRateLimited},
		httpError{http.StatusTooManyRequests, "rate_limited", "too many requests"},
	},
	{
		[]error{enrollmentdomain.ErrPaymentGateway},
		httpError{http.StatusInternalServerError, "payment_gateway_error", "payment provider request failed"},
	},
	{
		[]error{enrollmentdomain.ErrPaymentRecording},
		httpError{http.StatusInternalServerError, "payment_recording_error", "payment captured but could not be recorded"},
	},
	{
		[]error{ErrServiceUnavailable},
		httpError{http.StatusServiceUnavailable, "service_unavailable", "service unavailable"},
	},
}

// fieldErrors turns bare sentinel errors into a single-field validation error.
var fieldErrors = []struct {
	targets []error
	field   ValidationError
}{
	{
		[]error{ErrInvalidRequest, reconciliationdomain.ErrInvalidRequest},
		ValidationError{Field: "request", Code: "invalid_request", Message: "invalid request"},
	},
	{
		[]error{enrollmentdomain.ErrInvalidRequest},
		ValidationError{Field: "externalOrderId", Code: "required", Message: "field is required"},
	},
	{
		[]error{enrollmentdomain.ErrInvalidState},
		ValidationError{Field: "courseId", Code: "invalid_enrollment_state", Message: "course does not require payment"},
	},
}

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		last := c.Errors.Last()
		if last == nil || c.Writer.Written() {
			return
		}
		status, payload := mapError(last.Err)
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

// AbortWithError records err for ErrorHandlingMiddleware and stops the chain.
func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{Errors: []ValidationError{{Field: field, Code: code, Message: message}}}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return internalError.status, errorPayload{Type: internalError.typ, Message: internalError.message}
	}

	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return http.StatusBadRequest, validationPayload(vErr.Errors...)
	}
	for _, fe := range fieldErrors {
		if isAny(err, fe.targets) {
			return http.StatusBadRequest, validationPayload(fe.field)
		}
	}

	out := internalError
	for _, route := range errorRoutes {
		if isAny(err, route.targets) {
			out = route.out
			break
		}
	}
	return out.status, errorPayload{Type: out.typ, Message: out.message}
}

func validationPayload(fields ...ValidationError) errorPayload {
	return errorPayload{Type: "validation_error", Message: "validation error", Errors: fields}
}

// classifyErrorForLog returns the error type and code written to request logs.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	if len(payload.Errors) > 0 {
		return payload.Type, payload.Errors[0].Code
	}
	return payload.Type, payload.Type
}

func isAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
