package domain

import "errors"

var (
	ErrUnauthorized        = errors.New("unauthorized")
	ErrForbidden           = errors.New("forbidden")
	ErrCourseNotFound      = errors.New("course_not_found")
	ErrNoEnrollments       = errors.New("no_enrollments")
	ErrAlreadyEnrolled     = errors.New("already_enrolled")
	ErrInvalidState        = errors.New("invalid_enrollment_state")
	ErrInvalidRequest      = errors.New("invalid_request")
	ErrPaymentGateway      = errors.New("payment_gateway_error")
	ErrPaymentNotCompleted = errors.New("payment_not_completed")
	ErrPaymentRecording    = errors.New("payment_recording_error")
	ErrOrderMismatch       = errors.New("order_mismatch")
	ErrPersistence         = errors.New("persistence_error")
)
