package notification

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"text/template"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/lms/internal/audit/masking"
	"github.com/smallbiznis/lms/internal/config"
	obscontext "github.com/smallbiznis/lms/internal/observability/context"
	obslogger "github.com/smallbiznis/lms/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/lms/internal/observability/metrics"
	"github.com/smallbiznis/lms/internal/providers/email"
	userdomain "github.com/smallbiznis/lms/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	OutcomeSent    = "sent"
	OutcomeFailed  = "failed"
	OutcomeDropped = "dropped"
	OutcomeSkipped = "skipped"
)

// Notice asks for an enrollment confirmation to be sent to a student.
type Notice struct {
	StudentID   snowflake.ID
	CourseID    snowflake.ID
	CourseTitle string
}

// Notifier accepts notices without blocking the caller.
type Notifier interface {
	Notify(ctx context.Context, notice Notice)
}

type Config struct {
	QueueSize   int
	Workers     int
	SendTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{QueueSize: 256, Workers: 2, SendTimeout: 15 * time.Second}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.QueueSize <= 0 {
		c.QueueSize = def.QueueSize
	}
	if c.Workers <= 0 {
		c.Workers = def.Workers
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = def.SendTimeout
	}
	return c
}

type Params struct {
	fx.In

	Log      *zap.Logger
	Users    userdomain.Service
	Provider email.Provider
	Settings *config.EnrollmentSettingsHolder
	Metrics  *obsmetrics.Metrics `optional:"true"`
	Config   Config              `optional:"true"`
}

type job struct {
	notice    Notice
	requestID string
}

type Dispatcher struct {
	log      *zap.Logger
	users    userdomain.Service
	provider email.Provider
	settings *config.EnrollmentSettingsHolder
	metrics  *obsmetrics.Metrics
	cfg      Config

	queue chan job
	wg    sync.WaitGroup
}

func NewDispatcher(p Params) *Dispatcher {
	cfg := p.Config.withDefaults()
	return &Dispatcher{
		log:      p.Log.Named("notification.dispatcher"),
		users:    p.Users,
		provider: p.Provider,
		settings: p.Settings,
		metrics:  p.Metrics,
		cfg:      cfg,
		queue:    make(chan job, cfg.QueueSize),
	}
}

// Notify enqueues a notice. A full queue drops the notice.
func (d *Dispatcher) Notify(ctx context.Context, notice Notice) {
	j := job{notice: notice, requestID: obscontext.RequestIDFromContext(ctx)}
	select {
	case d.queue <- j:
	default:
		d.metrics.RecordNotification(ctx, OutcomeDropped)
		obslogger.WithContext(ctx, d.log).Warn("notification queue full, dropping",
			zap.String("student_id", notice.StudentID.String()),
			zap.String("course_id", notice.CourseID.String()),
		)
	}
}

// Start launches the worker pool. Workers exit when ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.run(ctx)
		}()
	}
}

// Wait blocks until all workers have exited.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-d.queue:
			d.deliver(ctx, j)
		}
	}
}

func (d *Dispatcher) deliver(parent context.Context, j job) {
	ctx, cancel := context.WithTimeout(obscontext.WithRequestID(parent, j.requestID), d.cfg.SendTimeout)
	defer cancel()

	log := obslogger.WithContext(ctx, d.log).With(
		zap.String("student_id", j.notice.StudentID.String()),
		zap.String("course_id", j.notice.CourseID.String()),
	)

	defer func() {
		if r := recover(); r != nil {
			d.metrics.RecordNotification(ctx, OutcomeFailed)
			log.Error("notification panicked", zap.Any("panic", r))
		}
	}()

	settings := d.settings.Get()
	if !settings.NotificationsEnabled {
		d.metrics.RecordNotification(ctx, OutcomeSkipped)
		return
	}

	student, err := d.users.GetByID(ctx, j.notice.StudentID)
	if err != nil {
		d.metrics.RecordNotification(ctx, OutcomeFailed)
		log.Warn("notification recipient lookup failed", zap.Error(err))
		return
	}

	body, err := Render(settings.NotificationBody, student.Name, j.notice.CourseTitle)
	if err != nil {
		d.metrics.RecordNotification(ctx, OutcomeFailed)
		log.Warn("notification template failed", zap.Error(err))
		return
	}

	err = d.provider.Send(ctx, email.Message{
		To:      student.Email,
		ToName:  student.Name,
		Subject: settings.NotificationSubject,
		Body:    body,
	})
	if err != nil {
		d.metrics.RecordNotification(ctx, OutcomeFailed)
		log.Warn("enrollment email failed",
			zap.String("provider", d.provider.Name()),
			zap.String("to", masking.MaskEmail(student.Email)),
			zap.Error(err),
		)
		return
	}

	d.metrics.RecordNotification(ctx, OutcomeSent)
	log.Info("enrollment email sent",
		zap.String("provider", d.provider.Name()),
		zap.String("to", masking.MaskEmail(student.Email)),
	)
}

// Render fills the confirmation template with the student name and course title.
func Render(body string, name string, courseTitle string) (string, error) {
	tmpl, err := template.New("enrollment").Option("missingkey=error").Parse(body)
	if err != nil {
		return "", fmt.Errorf("parse template: %w", err)
	}
	var out bytes.Buffer
	if err := tmpl.Execute(&out, struct {
		Name        string
		CourseTitle string
	}{Name: name, CourseTitle: courseTitle}); err != nil {
		return "", fmt.Errorf("execute template: %w", err)
	}
	return out.String(), nil
}
