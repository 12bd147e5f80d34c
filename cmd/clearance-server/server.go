package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/nuvia/clearance/internal/config"
	"github.com/nuvia/clearance/internal/domain/eligibility"
	"github.com/nuvia/clearance/internal/platform/auth"
	"github.com/nuvia/clearance/internal/platform/db"
	"github.com/nuvia/clearance/internal/platform/events"
	"github.com/nuvia/clearance/internal/platform/hipaa"
	"github.com/nuvia/clearance/internal/platform/intake"
	"github.com/nuvia/clearance/internal/platform/middleware"
	"github.com/nuvia/clearance/internal/platform/sandbox"
	"github.com/nuvia/clearance/internal/platform/websocket"
)

const (
	exportPath          = "/api/v1/patients/export.xlsx"
	feedPath            = "/api/v1/ws"
	recommendationsPath = "/api/v1/patients/:id/recommendations"
)

// app holds everything the serve command starts and must stop.
type app struct {
	cfg       *config.Config
	logger    zerolog.Logger
	echo      *echo.Echo
	svc       *eligibility.Service
	pool      *pgxpool.Pool
	redis     *redis.Client
	publisher *events.Publisher
	consumer  *intake.Consumer
	hub       *websocket.Hub
}

// newApp connects storage and the optional Redis and Kafka integrations and
// builds the HTTP server. It does not start anything.
func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	var repo eligibility.Repository
	switch cfg.Storage {
	case config.StoragePostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		a.pool = pool
		repo = eligibility.NewPGRepo(pool)
		logger.Info().Msg("connected to database")
	default:
		repo = eligibility.NewMemoryRepo()
		logger.Warn().Msg("using in-memory storage; data is lost on restart")
	}

	a.svc = eligibility.NewService(repo)
	a.svc.SetLogger(logger)
	a.svc.SetWriteTimeout(cfg.WriteTimeout)

	a.hub = websocket.NewHub(logger)
	notifiers := eligibility.Notifiers{a.hub}
	if cfg.EventsEnabled() {
		a.publisher = events.NewPublisher(events.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic), logger, 0)
		notifiers = append(notifiers, a.publisher)
		logger.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopic).Msg("publishing status changes")
	}
	a.svc.SetNotifier(notifiers)

	if cfg.IntakeEnabled() {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			a.close(ctx)
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		a.redis = redis.NewClient(opts)
		a.consumer = intake.NewConsumer(a.redis, a.svc, logger, intake.Options{
			Stream:   cfg.IntakeStream,
			Group:    cfg.IntakeGroup,
			Consumer: cfg.IntakeConsumer,
		})
	}

	if cfg.SeedDemo {
		res, err := sandbox.NewSeeder(a.svc, sandbox.DefaultSeedConfig(), logger).Seed(ctx)
		if err != nil {
			a.close(ctx)
			return nil, fmt.Errorf("seed demo data: %w", err)
		}
		logger.Info().Int("patients", res.Patients).Bool("skipped", res.Skipped).Msg("demo data ready")
	}

	a.echo = a.buildServer()
	return a, nil
}

func (a *app) buildServer() *echo.Echo {
	cfg, logger := a.cfg, a.logger

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = middleware.NewValidator()

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(middleware.BodyLimit("1M", "4M", func(c echo.Context) bool {
		return c.Request().Method == http.MethodPut && c.Path() == recommendationsPath
	}))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout, func(c echo.Context) bool {
		return c.Path() == exportPath || c.Path() == feedPath
	}))

	// Auth middleware
	jwtCfg := auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		SigningKey: []byte(cfg.AuthSigningKey),
		Skipper:    auth.AuthSkipper,
	}
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware(cfg.DevActor, jwtCfg))
	} else {
		e.Use(auth.JWTMiddleware(jwtCfg))
	}

	// Audit middleware
	var recorder middleware.AccessRecorder
	if a.pool != nil {
		recorder = hipaa.NewAccessLogger(a.pool, logger)
	}
	e.Use(middleware.Audit(logger, recorder))

	checks := []db.Check{{Name: "storage", Ping: a.svc.Ping}}
	if a.redis != nil {
		checks = append(checks, db.Check{Name: "redis", Ping: func(ctx context.Context) error {
			return a.redis.Ping(ctx).Err()
		}})
	}
	if a.publisher != nil {
		checks = append(checks, db.Check{Name: "kafka", Ping: events.BrokerCheck(cfg.KafkaBrokers)})
	}
	e.GET("/health", db.HealthHandler(a.pool, checks...))

	apiV1 := e.Group("/api/v1")
	eligibility.NewHandler(a.svc).RegisterRoutes(apiV1)
	feedGroup := apiV1.Group("", auth.RequireRole(auth.RoleStaff, auth.RoleSurgeon, auth.RoleCRNA, auth.RoleCoordinator))
	websocket.NewHandler(a.hub, cfg.CORSOrigins).RegisterRoutes(feedGroup)

	return e
}

// startConsumer runs the intake consumer until ctx is cancelled. The returned
// WaitGroup is done when it has stopped.
func (a *app) startConsumer(ctx context.Context) (*sync.WaitGroup, error) {
	var wg sync.WaitGroup
	if a.consumer == nil {
		return &wg, nil
	}
	if err := a.consumer.EnsureGroup(ctx); err != nil {
		return nil, fmt.Errorf("create intake consumer group: %w", err)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := a.consumer.Run(ctx); err != nil {
			a.logger.Error().Err(err).Msg("intake consumer stopped")
		}
	}()
	a.logger.Info().Str("stream", a.cfg.IntakeStream).Str("group", a.cfg.IntakeGroup).Msg("intake consumer started")
	return &wg, nil
}

// close releases connections in reverse order of creation. Events still
// queued are flushed within ctx.
func (a *app) close(ctx context.Context) {
	if a.hub != nil {
		a.hub.CloseAll()
	}
	if a.publisher != nil {
		if err := a.publisher.Close(ctx); err != nil {
			a.logger.Error().Err(err).Int64("dropped", a.publisher.Dropped()).Msg("event publisher did not flush")
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error().Err(err).Msg("redis close failed")
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

func runServer(cfg *config.Config, logger zerolog.Logger) error {
	a, err := newApp(context.Background(), cfg, logger)
	if err != nil {
		return err
	}

	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	defer stopConsumer()
	consumerDone, err := a.startConsumer(consumerCtx)
	if err != nil {
		a.close(context.Background())
		return err
	}

	serverErr := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Str("storage", cfg.Storage).Msg("starting server")
		if err := a.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	var runErr error
	select {
	case <-quit:
		logger.Info().Msg("shutting down server")
	case runErr = <-serverErr:
		logger.Error().Err(runErr).Msg("server error")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.echo.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	stopConsumer()
	consumerDone.Wait()
	a.close(ctx)
	logger.Info().Msg("server stopped")
	return runErr
}
