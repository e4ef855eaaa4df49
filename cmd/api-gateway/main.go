package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/lesson-queue-api/api/swagger"
	"github.com/noah-isme/lesson-queue-api/internal/handler"
	internalmiddleware "github.com/noah-isme/lesson-queue-api/internal/middleware"
	"github.com/noah-isme/lesson-queue-api/internal/repository"
	"github.com/noah-isme/lesson-queue-api/internal/scheduler"
	"github.com/noah-isme/lesson-queue-api/internal/service"
	"github.com/noah-isme/lesson-queue-api/pkg/cache"
	"github.com/noah-isme/lesson-queue-api/pkg/config"
	"github.com/noah-isme/lesson-queue-api/pkg/database"
	"github.com/noah-isme/lesson-queue-api/pkg/export"
	"github.com/noah-isme/lesson-queue-api/pkg/jobs"
	"github.com/noah-isme/lesson-queue-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/lesson-queue-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/lesson-queue-api/pkg/middleware/requestid"
)

const (
	sessionSweepInterval = time.Minute
	shutdownTimeout      = 15 * time.Second
)

// @title Lesson Queue API
// @version 0.1.0
// @description Instructor lesson queue editing and scheduling service
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect postgres", "error", err)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, db, logr); err != nil {
			logr.Sugar().Fatalw("failed to run migrations", "error", err)
		}
	}

	var redisClient redis.UniversalClient
	if client, err := cache.NewRedis(cfg.Redis); err != nil {
		logr.Warn("redis unavailable, snapshot cache and change feed disabled", zap.Error(err))
	} else {
		redisClient = client
		defer client.Close()
	}

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	eventRepo := repository.NewEventRepository(db)
	teacherRepo := repository.NewTeacherRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	feedRepo := repository.NewChangeFeedRepository(redisClient, cfg.Scheduler.FeedChannel, logr)

	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Scheduler.SnapshotCacheTTL, logr, redisClient != nil)
	eventSvc := service.NewEventService(eventRepo, teacherRepo, feedRepo, cacheSvc, validate, service.EventServiceConfig{
		SnapshotTTL: cfg.Scheduler.SnapshotCacheTTL,
	}, logr)
	teacherSvc := service.NewTeacherService(teacherRepo, cacheSvc, validate, logr)
	exportSvc := service.NewExportService(service.ExportConfig{Title: cfg.Exports.PDFTitle}, logr, export.NewCSVExporter(), export.NewPDFExporter())
	sessionSvc := service.NewSessionService(eventSvc, exportSvc, metricsSvc, validate, service.SessionConfig{
		TTL:      cfg.Scheduler.SessionTTL,
		Defaults: defaultSettings(cfg.Scheduler.Defaults),
	}, logr)
	feedSvc := service.NewFeedService(feedRepo, sessionSvc, logr)

	go sessionSvc.Run(ctx, sessionSweepInterval)

	if cfg.Scheduler.FeedEnabled && redisClient != nil {
		refreshQueue := jobs.NewQueue("session-refresh", feedSvc.HandleJob, jobs.QueueConfig{
			Workers:    cfg.Scheduler.RefreshWorkers,
			MaxRetries: cfg.Scheduler.RefreshRetries,
			Logger:     logr,
		})
		refreshQueue.Start(ctx)
		defer refreshQueue.Stop()

		go func() {
			if err := feedSvc.Run(ctx, refreshQueue); err != nil && !errors.Is(err, context.Canceled) {
				logr.Error("change feed stopped", zap.Error(err))
			}
		}()
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsSvc, "/metrics"))
	r.Use(internalmiddleware.WithResponseMeta())

	checks := []handler.ReadinessCheck{{Name: "postgres", Check: db.PingContext}}
	if redisClient != nil {
		checks = append(checks, handler.ReadinessCheck{Name: "redis", Check: func(ctx context.Context) error {
			return cache.Ping(ctx, redisClient)
		}})
	}
	metricsHandler := handler.NewMetricsHandler(metricsSvc, checks...)
	r.GET("/metrics", metricsHandler.Prometheus)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix, internalmiddleware.School())
	registerTeacherRoutes(api.Group("/teachers"), handler.NewTeacherHandler(teacherSvc))
	registerEventRoutes(api.Group("/events"), handler.NewEventHandler(eventSvc))
	registerSessionRoutes(api.Group("/sessions"), handler.NewSessionHandler(sessionSvc))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Errorw("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}

func registerTeacherRoutes(group *gin.RouterGroup, h *handler.TeacherHandler) {
	group.GET("", h.List)
	group.POST("", h.Create)
	group.GET("/:id", h.Get)
}

func registerEventRoutes(group *gin.RouterGroup, h *handler.EventHandler) {
	group.GET("", h.Day)
	group.POST("", h.Create)
	group.PATCH("/:id", h.Update)
	group.DELETE("/:id", h.Delete)
	group.POST("/bulk-update", h.BulkUpdate)
	group.POST("/bulk-delete", h.BulkDelete)
	group.POST("/bulk-status", h.BulkStatus)
}

func registerSessionRoutes(group *gin.RouterGroup, h *handler.SessionHandler) {
	group.POST("", h.Open)
	group.GET("/:id", h.Get)
	group.DELETE("/:id", h.Close)
	group.POST("/:id/adjustment", h.EnterAdjustment)
	group.DELETE("/:id/adjustment", h.CancelAdjustment)
	group.POST("/:id/discard", h.Discard)
	group.PUT("/:id/settings", h.UpdateSettings)
	group.POST("/:id/time", h.AdjustTime)
	group.POST("/:id/location", h.AdjustLocation)
	group.POST("/:id/lock-time", h.LockTime)
	group.POST("/:id/lock-location", h.LockLocation)
	group.GET("/:id/lock-status", h.LockStatus)
	group.GET("/:id/changes", h.Changes)
	group.POST("/:id/submit", h.Submit)
	group.POST("/:id/lessons", h.DropLesson)
	group.GET("/:id/export", h.Export)

	teachers := group.Group("/:id/teachers/:teacherId")
	teachers.POST("/opt-in", h.OptIn)
	teachers.DELETE("/opt-in", h.OptOut)
	teachers.POST("/lock", h.ToggleLock)
	teachers.POST("/optimise", h.Optimise)
	teachers.POST("/events/:eventId/:action", h.EventAction)
	teachers.DELETE("/events/:eventId", h.DeleteEvent)
}

func defaultSettings(d config.SchedulerDefaults) scheduler.ControllerSettings {
	return scheduler.ControllerSettings{
		SubmitTime:       d.SubmitTime,
		Location:         d.Location,
		DurationCapOne:   d.DurationCapOne,
		DurationCapTwo:   d.DurationCapTwo,
		DurationCapThree: d.DurationCapThree,
		GapMinutes:       d.GapMinutes,
		StepDuration:     d.StepDuration,
		MinDuration:      d.MinDuration,
		MaxDuration:      d.MaxDuration,
		Locked:           d.Locked,
	}
}
