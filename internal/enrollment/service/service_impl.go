package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/lms/internal/audit/domain"
	"github.com/smallbiznis/lms/internal/audit/masking"
	authdomain "github.com/smallbiznis/lms/internal/auth/domain"
	"github.com/smallbiznis/lms/internal/authorization"
	"github.com/smallbiznis/lms/internal/clock"
	"github.com/smallbiznis/lms/internal/config"
	coursedomain "github.com/smallbiznis/lms/internal/course/domain"
	"github.com/smallbiznis/lms/internal/enrollment/domain"
	"github.com/smallbiznis/lms/internal/notification"
	obslogger "github.com/smallbiznis/lms/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/lms/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/lms/internal/payment/domain"
	reconciliationdomain "github.com/smallbiznis/lms/internal/reconciliation/domain"
	"github.com/smallbiznis/lms/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	flowFree     = "free"
	flowInitiate = "initiate"
	flowCapture  = "capture"

	targetEnrollment = "enrollment"
	targetCourse     = "course"
)

type Params struct {
	fx.In

	DB             *gorm.DB
	Log            *zap.Logger
	GenID          *snowflake.Node
	Clock          clock.Clock
	Repo           domain.Repository
	Courses        coursedomain.Service
	Authz          authorization.Service
	Gateway        paymentdomain.Gateway
	Settings       *config.EnrollmentSettingsHolder
	Notifier       notification.Notifier
	Reconciliation reconciliationdomain.Service
	AuditSvc       auditdomain.Service `optional:"true"`
	Metrics        *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db             *gorm.DB
	log            *zap.Logger
	genID          *snowflake.Node
	clock          clock.Clock
	repo           domain.Repository
	courses        coursedomain.Service
	authz          authorization.Service
	gateway        paymentdomain.Gateway
	settings       *config.EnrollmentSettingsHolder
	notifier       notification.Notifier
	reconciliation reconciliationdomain.Service
	auditSvc       auditdomain.Service
	metrics        *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:             p.DB,
		log:            p.Log.Named("enrollment.service"),
		genID:          p.GenID,
		clock:          p.Clock,
		repo:           p.Repo,
		courses:        p.Courses,
		authz:          p.Authz,
		gateway:        p.Gateway,
		settings:       p.Settings,
		notifier:       p.Notifier,
		reconciliation: p.Reconciliation,
		auditSvc:       p.AuditSvc,
		metrics:        p.Metrics,
	}
}

func (s *Service) Initiate(ctx context.Context, caller authdomain.Caller, courseID snowflake.ID) (domain.InitiateResult, error) {
	if err := s.authorize(ctx, caller, authorization.ActionEnrollmentInitiate); err != nil {
		return domain.InitiateResult{}, err
	}

	course, err := s.loadCourse(ctx, courseID)
	if err != nil {
		return domain.InitiateResult{}, err
	}
	if err := s.ensureNotEnrolled(ctx, caller.ID, course.ID); err != nil {
		return domain.InitiateResult{}, err
	}

	log := obslogger.WithContext(ctx, s.log).With(
		zap.String("student_id", caller.ID.String()),
		zap.String("course_id", course.ID.String()),
	)

	if course.IsFree() {
		enrollment, err := s.insert(ctx, caller.ID, course.ID, nil, nil)
		if err != nil {
			s.metrics.RecordEnrollmentOutcome(ctx, flowFree, outcomeOf(err))
			return domain.InitiateResult{}, err
		}
		s.metrics.RecordEnrollmentOutcome(ctx, flowFree, "enrolled")
		log.Info("enrolled in free course", zap.String("enrollment_id", enrollment.ID.String()))
		s.afterEnroll(ctx, caller, course, enrollment)
		return domain.InitiateResult{Enrollment: &enrollment}, nil
	}

	settings := s.settings.Get()
	order, err := s.callCreateOrder(ctx, paymentdomain.OrderRequest{
		Amount:      course.Price,
		Currency:    settings.Currency,
		Description: settings.OrderDescriptionPrefix + course.Title,
		CustomID:    customID(caller.ID, course.ID),
	})
	if err != nil {
		s.metrics.RecordEnrollmentOutcome(ctx, flowInitiate, "gateway_error")
		log.Warn("create order failed", zap.Error(err))
		return domain.InitiateResult{}, fmt.Errorf("%w: %v", domain.ErrPaymentGateway, err)
	}

	s.metrics.RecordEnrollmentOutcome(ctx, flowInitiate, "order_created")
	log.Info("payment order created",
		zap.String("provider", order.Provider),
		zap.String("external_order_id", masking.MaskReference(order.ID)),
	)
	s.audit(ctx, caller, auditdomain.ActionEnrollmentOrderCreated, targetCourse, course.ID.String(), map[string]any{
		"provider":          order.Provider,
		"external_order_id": order.ID,
		"amount":            course.Price.StringFixed(2),
		"currency":          settings.Currency,
	})
	return domain.InitiateResult{OrderID: order.ID}, nil
}

func (s *Service) Capture(ctx context.Context, caller authdomain.Caller, req domain.CaptureRequest) (domain.Enrollment, error) {
	if err := s.authorize(ctx, caller, authorization.ActionEnrollmentCapture); err != nil {
		return domain.Enrollment{}, err
	}
	orderID := strings.TrimSpace(req.ExternalOrderID)
	if orderID == "" {
		return domain.Enrollment{}, fmt.Errorf("%w: externalOrderId is required", domain.ErrInvalidRequest)
	}

	course, err := s.loadCourse(ctx, req.CourseID)
	if err != nil {
		return domain.Enrollment{}, err
	}
	if err := s.ensureNotEnrolled(ctx, caller.ID, course.ID); err != nil {
		return domain.Enrollment{}, err
	}
	if course.IsFree() {
		return domain.Enrollment{}, fmt.Errorf("%w: course does not require payment", domain.ErrInvalidState)
	}

	log := obslogger.WithContext(ctx, s.log).With(
		zap.String("student_id", caller.ID.String()),
		zap.String("course_id", course.ID.String()),
		zap.String("external_order_id", masking.MaskReference(orderID)),
	)
	expected := paymentdomain.Terms{
		Amount:   course.Price,
		Currency: s.settings.Get().Currency,
		CustomID: customID(caller.ID, course.ID),
	}

	// The order must have been created for this student, course and price
	// before anything is captured.
	order, err := s.callGetOrder(ctx, orderID)
	if err != nil {
		s.metrics.RecordEnrollmentOutcome(ctx, flowCapture, "gateway_error")
		log.Warn("get order failed", zap.Error(err))
		return domain.Enrollment{}, fmt.Errorf("%w: %v", domain.ErrPaymentGateway, err)
	}
	if fields := termMismatches(expected, order.Terms, true); len(fields) > 0 {
		s.metrics.RecordEnrollmentOutcome(ctx, flowCapture, "order_mismatch")
		log.Warn("order does not match enrollment", zap.Strings("fields", fields))
		return domain.Enrollment{}, fmt.Errorf("%w: %s", domain.ErrOrderMismatch, strings.Join(fields, ","))
	}

	capture, err := s.callCaptureOrder(ctx, orderID)
	if err != nil {
		s.metrics.RecordEnrollmentOutcome(ctx, flowCapture, "gateway_error")
		log.Warn("capture order failed", zap.Error(err))
		return domain.Enrollment{}, fmt.Errorf("%w: %v", domain.ErrPaymentGateway, err)
	}
	if !capture.Completed() {
		s.metrics.RecordEnrollmentOutcome(ctx, flowCapture, "not_completed")
		log.Info("payment not completed", zap.String("status", capture.Status))
		return domain.Enrollment{}, fmt.Errorf("%w: status %s", domain.ErrPaymentNotCompleted, capture.Status)
	}

	provider := capture.Provider
	if provider == "" {
		provider = s.gateway.Provider()
	}
	captureID := strings.TrimSpace(capture.CaptureID)

	// Money has moved, so a mismatch here is queued for an operator rather
	// than enrolled.
	if fields := termMismatches(expected, capture.Terms, false); len(fields) > 0 {
		s.metrics.RecordEnrollmentOutcome(ctx, flowCapture, "order_mismatch")
		log.Error("captured order does not match enrollment", zap.Strings("fields", fields))
		s.recordReconciliation(context.WithoutCancel(ctx), caller.ID, course.ID, provider, orderID, captureID, reconciliationdomain.ReasonOrderMismatch, map[string]any{
			"fields":            fields,
			"captured_custom":   capture.CustomID,
			"captured_amount":   capture.Amount.StringFixed(2),
			"captured_currency": capture.Currency,
		})
		return domain.Enrollment{}, fmt.Errorf("%w: captured %s", domain.ErrOrderMismatch, strings.Join(fields, ","))
	}
	if captureID == "" {
		s.metrics.RecordEnrollmentOutcome(ctx, flowCapture, "recording_error")
		s.recordReconciliation(ctx, caller.ID, course.ID, provider, orderID, "", reconciliationdomain.ReasonMissingCaptureID, nil)
		return domain.Enrollment{}, fmt.Errorf("%w: completed capture has no id", domain.ErrPaymentRecording)
	}

	// Money has moved. The ledger write must not be abandoned with the request.
	writeCtx := context.WithoutCancel(ctx)
	enrollment, err := s.insert(writeCtx, caller.ID, course.ID, &captureID, &provider)
	switch {
	case errors.Is(err, domain.ErrAlreadyEnrolled):
		s.metrics.RecordEnrollmentOutcome(ctx, flowCapture, "conflict")
		s.handleLostCapture(writeCtx, caller.ID, course.ID, provider, orderID, captureID)
		return domain.Enrollment{}, err
	case err != nil:
		s.metrics.RecordEnrollmentOutcome(ctx, flowCapture, "persistence_error")
		s.recordReconciliation(writeCtx, caller.ID, course.ID, provider, orderID, captureID, reconciliationdomain.ReasonLedgerWriteFailed, map[string]any{
			"error": err.Error(),
		})
		return domain.Enrollment{}, err
	}

	s.metrics.RecordEnrollmentOutcome(ctx, flowCapture, "enrolled")
	log.Info("enrolled after payment capture",
		zap.String("enrollment_id", enrollment.ID.String()),
		zap.String("capture_id", masking.MaskReference(captureID)),
	)
	s.afterEnroll(ctx, caller, course, enrollment)
	return enrollment, nil
}

func (s *Service) ListByCourse(ctx context.Context, caller authdomain.Caller, courseID snowflake.ID) ([]domain.Enrollment, error) {
	if err := s.authorize(ctx, caller, authorization.ActionEnrollmentList); err != nil {
		return nil, err
	}
	if courseID <= 0 {
		return nil, domain.ErrCourseNotFound
	}

	enrollments, err := s.repo.ListByCourse(ctx, s.db, courseID)
	if err != nil {
		obslogger.WithContext(ctx, s.log).Error("list enrollments failed", zap.Error(err))
		return nil, fmt.Errorf("%w: list enrollments: %v", domain.ErrPersistence, err)
	}
	if len(enrollments) == 0 {
		return nil, domain.ErrNoEnrollments
	}
	return enrollments, nil
}

// authorize runs before any lookup or gateway call.
func (s *Service) authorize(ctx context.Context, caller authdomain.Caller, action string) error {
	if caller.IsZero() {
		return domain.ErrUnauthorized
	}
	err := s.authz.Authorize(ctx, caller, authorization.ObjectEnrollment, action)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, authorization.ErrForbidden), errors.Is(err, authorization.ErrInvalidActor):
		return domain.ErrForbidden
	default:
		obslogger.WithContext(ctx, s.log).Error("authorization check failed", zap.Error(err))
		return fmt.Errorf("%w: authorize: %v", domain.ErrPersistence, err)
	}
}

func (s *Service) loadCourse(ctx context.Context, courseID snowflake.ID) (coursedomain.Course, error) {
	course, err := s.courses.GetByID(ctx, courseID)
	switch {
	case err == nil:
		return course, nil
	case errors.Is(err, coursedomain.ErrNotFound), errors.Is(err, coursedomain.ErrInvalidID):
		return coursedomain.Course{}, domain.ErrCourseNotFound
	default:
		return coursedomain.Course{}, fmt.Errorf("%w: load course: %v", domain.ErrPersistence, err)
	}
}

func (s *Service) ensureNotEnrolled(ctx context.Context, studentID, courseID snowflake.ID) error {
	existing, err := s.repo.FindByStudentAndCourse(ctx, s.db, studentID, courseID)
	if err != nil {
		return fmt.Errorf("%w: find enrollment: %v", domain.ErrPersistence, err)
	}
	if existing != nil {
		return domain.ErrAlreadyEnrolled
	}
	return nil
}

func (s *Service) insert(ctx context.Context, studentID, courseID snowflake.ID, reference, provider *string) (domain.Enrollment, error) {
	now := s.clock.Now()
	enrollment := domain.Enrollment{
		ID:               s.genID.Generate(),
		StudentID:        studentID,
		CourseID:         courseID,
		Status:           domain.StatusActive,
		EnrolledAt:       now,
		PaymentReference: reference,
		PaymentProvider:  provider,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	inserted, err := s.repo.Insert(ctx, s.db, &enrollment)
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.Enrollment{}, domain.ErrAlreadyEnrolled
		}
		obslogger.WithContext(ctx, s.log).Error("insert enrollment failed",
			zap.String("student_id", studentID.String()),
			zap.String("course_id", courseID.String()),
			zap.Error(err),
		)
		return domain.Enrollment{}, fmt.Errorf("%w: insert enrollment: %v", domain.ErrPersistence, err)
	}
	if !inserted {
		return domain.Enrollment{}, domain.ErrAlreadyEnrolled
	}
	return enrollment, nil
}

// handleLostCapture runs when a completed capture lost the insert race. A
// retry of the same capture is harmless; a different capture id means the
// student paid twice.
func (s *Service) handleLostCapture(ctx context.Context, studentID, courseID snowflake.ID, provider, orderID, captureID string) {
	existing, err := s.repo.FindByStudentAndCourse(ctx, s.db, studentID, courseID)
	if err == nil && existing != nil && existing.PaymentReference != nil && *existing.PaymentReference == captureID {
		return
	}
	detail := map[string]any{}
	if existing != nil && existing.PaymentReference != nil {
		detail["existing_reference"] = masking.MaskReference(*existing.PaymentReference)
	}
	s.recordReconciliation(ctx, studentID, courseID, provider, orderID, captureID, reconciliationdomain.ReasonDuplicateCapture, detail)
}

func (s *Service) recordReconciliation(ctx context.Context, studentID, courseID snowflake.ID, provider, orderID, captureID string, reason reconciliationdomain.Reason, detail map[string]any) {
	_, err := s.reconciliation.Record(ctx, reconciliationdomain.RecordRequest{
		StudentID:       studentID,
		CourseID:        courseID,
		Provider:        provider,
		ExternalOrderID: orderID,
		CaptureID:       captureID,
		Reason:          reason,
		Detail:          detail,
	})
	if err != nil {
		obslogger.WithContext(ctx, s.log).Error("failed to record reconciliation item",
			zap.String("reason", string(reason)),
			zap.String("student_id", studentID.String()),
			zap.String("course_id", courseID.String()),
			zap.String("external_order_id", masking.MaskReference(orderID)),
			zap.Error(err),
		)
	}
}

// afterEnroll runs once the enrollment row is committed. Neither step can
// fail the request.
func (s *Service) afterEnroll(ctx context.Context, caller authdomain.Caller, course coursedomain.Course, enrollment domain.Enrollment) {
	metadata := map[string]any{
		"course_id": course.ID.String(),
		"paid":      enrollment.Paid(),
	}
	if enrollment.PaymentProvider != nil {
		metadata["provider"] = *enrollment.PaymentProvider
	}
	if enrollment.PaymentReference != nil {
		metadata["payment_reference"] = *enrollment.PaymentReference
	}
	s.audit(ctx, caller, auditdomain.ActionEnrollmentCreated, targetEnrollment, enrollment.ID.String(), metadata)

	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, notification.Notice{
		StudentID:   enrollment.StudentID,
		CourseID:    enrollment.CourseID,
		CourseTitle: course.Title,
	})
}

func (s *Service) audit(ctx context.Context, caller authdomain.Caller, action, targetType, targetID string, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	err := s.auditSvc.Record(ctx, auditdomain.Entry{
		ActorType:  auditdomain.ActorTypeUser,
		ActorID:    caller.ID.String(),
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		Metadata:   metadata,
	})
	if err != nil {
		obslogger.WithContext(ctx, s.log).Warn("audit log failed", zap.String("action", action), zap.Error(err))
	}
}

func (s *Service) callCreateOrder(ctx context.Context, req paymentdomain.OrderRequest) (paymentdomain.Order, error) {
	start := time.Now()
	order, err := s.gateway.CreateOrder(ctx, req)
	s.metrics.RecordGatewayCall(ctx, s.gateway.Provider(), "create_order", gatewayOutcome(err), time.Since(start))
	if err != nil {
		return paymentdomain.Order{}, err
	}
	if strings.TrimSpace(order.ID) == "" {
		return paymentdomain.Order{}, paymentdomain.ErrInvalidResponse
	}
	if order.Provider == "" {
		order.Provider = s.gateway.Provider()
	}
	return order, nil
}

func (s *Service) callGetOrder(ctx context.Context, orderID string) (paymentdomain.Order, error) {
	start := time.Now()
	order, err := s.gateway.GetOrder(ctx, orderID)
	s.metrics.RecordGatewayCall(ctx, s.gateway.Provider(), "get_order", gatewayOutcome(err), time.Since(start))
	return order, err
}

func (s *Service) callCaptureOrder(ctx context.Context, orderID string) (paymentdomain.Capture, error) {
	start := time.Now()
	capture, err := s.gateway.CaptureOrder(ctx, orderID)
	s.metrics.RecordGatewayCall(ctx, s.gateway.Provider(), "capture_order", gatewayOutcome(err), time.Since(start))
	return capture, err
}

func customID(studentID, courseID snowflake.ID) string {
	return studentID.String() + ":" + courseID.String()
}

// termMismatches names the fields of got that differ from want. With strict
// set, a field the provider left empty also counts as a mismatch.
func termMismatches(want, got paymentdomain.Terms, strict bool) []string {
	var fields []string
	if got.CustomID != "" || strict {
		if got.CustomID != want.CustomID {
			fields = append(fields, "custom_id")
		}
	}
	if !got.Amount.IsZero() || strict {
		if !got.Amount.Equal(want.Amount) {
			fields = append(fields, "amount")
		}
	}
	if got.Currency != "" || strict {
		if !strings.EqualFold(got.Currency, want.Currency) {
			fields = append(fields, "currency")
		}
	}
	return fields
}

func gatewayOutcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, domain.ErrAlreadyEnrolled):
		return "conflict"
	default:
		return "persistence_error"
	}
}
