package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	authdomain "github.com/smallbiznis/lms/internal/auth/domain"
	"github.com/smallbiznis/lms/internal/authorization"
	"github.com/smallbiznis/lms/internal/config"
	enrollmentdomain "github.com/smallbiznis/lms/internal/enrollment/domain"
	"github.com/smallbiznis/lms/internal/observability"
	obsmiddleware "github.com/smallbiznis/lms/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/lms/internal/observability/metrics"
	obstracing "github.com/smallbiznis/lms/internal/observability/tracing"
	"github.com/smallbiznis/lms/internal/ratelimit"
	reconciliationdomain "github.com/smallbiznis/lms/internal/reconciliation/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const readyTimeout = 2 * time.Second

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Provide(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	registerValidators()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, s *Server) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine            *gin.Engine
	cfg               config.Config
	authsvc           authdomain.Service
	authzSvc          authorization.Service
	enrollmentSvc     enrollmentdomain.Service
	reconciliationSvc reconciliationdomain.Service
	limiter           *ratelimit.EnrollmentLimiter
	db                *gorm.DB
}

type ServerParams struct {
	fx.In

	Gin               *gin.Engine
	Cfg               config.Config
	Authsvc           authdomain.Service
	AuthzSvc          authorization.Service
	EnrollmentSvc     enrollmentdomain.Service
	ReconciliationSvc reconciliationdomain.Service
	Limiter           *ratelimit.EnrollmentLimiter `optional:"true"`
	DB                *gorm.DB                     `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:            p.Gin,
		cfg:               p.Cfg,
		authsvc:           p.Authsvc,
		authzSvc:          p.AuthzSvc,
		enrollmentSvc:     p.EnrollmentSvc,
		reconciliationSvc: p.ReconciliationSvc,
		limiter:           p.Limiter,
		db:                p.DB,
	}

	svc.engine.GET("/ready", svc.Ready)
	svc.registerAuthRoutes()
	svc.registerEnrollmentRoutes()
	svc.registerAdminRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Ready reports whether the database answers a ping. Redis is not checked
// since every Redis-backed path fails open.
func (s *Server) Ready(c *gin.Context) {
	if s.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), readyTimeout)
		defer cancel()
		sqlDB, err := s.db.DB()
		if err == nil {
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			obsmiddleware.FromContext(ctx).Warn("readiness check failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) registerAuthRoutes() {
	auth := s.engine.Group("/auth")

	auth.POST("/logout", s.BearerAuth(), s.Logout)
}

func (s *Server) registerEnrollmentRoutes() {
	enrollments := s.engine.Group("/enrollments", s.BearerAuth())

	enrollments.POST("/:courseId/create-order",
		s.authorizeAction(authorization.ObjectEnrollment, authorization.ActionEnrollmentInitiate),
		s.EnrollmentRateLimit(),
		s.InitiateEnrollment,
	)
	enrollments.POST("/:courseId/capture-order",
		s.authorizeAction(authorization.ObjectEnrollment, authorization.ActionEnrollmentCapture),
		s.EnrollmentRateLimit(),
		s.CaptureGuard(),
		s.CaptureEnrollment,
	)
	enrollments.GET("/:courseId", s.ListEnrolledStudents)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin", s.BearerAuth())

	// -------- Reconciliation --------
	admin.GET("/reconciliation",
		s.authorizeAction(authorization.ObjectReconciliation, authorization.ActionReconciliationView),
		s.ListReconciliationItems,
	)
	admin.POST("/reconciliation/:id/resolve",
		s.authorizeAction(authorization.ObjectReconciliation, authorization.ActionReconciliationResolve),
		s.ResolveReconciliationItem,
	)
}
