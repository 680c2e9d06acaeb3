package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/course-feedback-api/api/swagger"
	"github.com/noah-isme/course-feedback-api/internal/handler"
	"github.com/noah-isme/course-feedback-api/internal/middleware"
	"github.com/noah-isme/course-feedback-api/internal/repository"
	"github.com/noah-isme/course-feedback-api/internal/service"
	"github.com/noah-isme/course-feedback-api/pkg/cache"
	"github.com/noah-isme/course-feedback-api/pkg/config"
	"github.com/noah-isme/course-feedback-api/pkg/database"
	"github.com/noah-isme/course-feedback-api/pkg/jobs"
	"github.com/noah-isme/course-feedback-api/pkg/logger"
	"github.com/noah-isme/course-feedback-api/pkg/messaging"
	corsmiddleware "github.com/noah-isme/course-feedback-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/course-feedback-api/pkg/middleware/requestid"
	"github.com/noah-isme/course-feedback-api/pkg/router"
	"github.com/noah-isme/course-feedback-api/pkg/storage"
)

// App owns every long-lived dependency of the API process.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	db        *sqlx.DB
	redis     *redis.Client
	publisher *messaging.RabbitMQPublisher
	queue     *jobs.Queue
	exports   *service.ExportService

	table  *router.Table
	engine *gin.Engine
	server *http.Server

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New connects to the backing services and assembles the HTTP engine.
func New(ctx context.Context, cfg *config.Config, logr *zap.Logger) (*App, error) {
	if logr == nil {
		logr = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logr}

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	a.db = db

	if cfg.Database.AutoMigrate {
		migrator, err := database.NewMigrator(db, cfg.Database.Name)
		if err != nil {
			a.closeResources()
			return nil, err
		}
		if err := migrator.Up(); err != nil {
			a.closeResources()
			return nil, err
		}
		logr.Info("database migrations applied")
	}

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		a.closeResources()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	a.redis = redisClient

	deps, err := a.buildDependencies()
	if err != nil {
		a.closeResources()
		return nil, err
	}

	table, err := Routes(cfg.APIPrefix, deps)
	if err != nil {
		a.closeResources()
		return nil, err
	}
	a.table = table
	engine, err := a.buildEngine(deps.metrics)
	if err != nil {
		a.closeResources()
		return nil, err
	}
	a.engine = engine

	a.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return a, nil
}

// Dependencies groups the handlers and gates the route table is built from.
type Dependencies struct {
	Auth    *handler.AuthHandler
	Profile *handler.ProfileHandler
	Course  *handler.CourseHandler
	Message *handler.MessageHandler
	Guest   *handler.GuestHandler
	Admin   *handler.AdminHandler
	Web     *handler.WebHandler
	System  *handler.MetricsHandler

	Bearer  middleware.CredentialVerifier
	Session middleware.CredentialVerifier
	Audit   middleware.AuditWriter

	metrics *service.MetricsService
}

func (a *App) buildDependencies() (*Dependencies, error) {
	cfg := a.cfg
	logr := a.logger
	validate := validator.New()
	metrics := service.NewMetricsService()

	userRepo := repository.NewUserRepository(a.db)
	courseRepo := repository.NewCourseRepository(a.db)
	messageRepo := repository.NewMessageRepository(a.db)
	commentRepo := repository.NewCommentRepository(a.db)
	sessionRepo := repository.NewSessionRepository(a.redis)
	accessRepo := repository.NewGuestAccessRepository(a.redis)
	cacheRepo := repository.NewCacheRepository(a.redis, logr)

	boardCache := service.NewBoardCache(cacheRepo, metrics, cfg.Board.CacheTTL, logr, cfg.Board.CacheEnabled)

	events, err := a.buildEvents(metrics)
	if err != nil {
		return nil, err
	}

	authSvc := service.NewAuthService(userRepo, sessionRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
		SessionTTL:         cfg.Session.TTL,
	})
	courseSvc := service.NewCourseService(courseRepo, userRepo, validate, logr)
	messageSvc := service.NewMessageService(messageRepo, courseRepo, boardCache, events, logr)
	guestSvc := service.NewGuestService(courseRepo, messageRepo, commentRepo, accessRepo, boardCache, events, metrics, logr, service.GuestConfig{
		MaxAttempts: cfg.Guest.PinMaxAttempts,
		Lockout:     cfg.Guest.PinLockout,
		GrantTTL:    cfg.Guest.GrantTTL,
	})
	userSvc := service.NewUserService(userRepo, logr)

	files, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		return nil, err
	}
	exportSigner := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
	a.exports = service.NewExportService(courseSvc, messageRepo, files, exportSigner, userRepo, service.ExportConfig{
		APIPrefix: cfg.APIPrefix,
		ResultTTL: cfg.Exports.SignedURLTTL,
		CSVBOM:    cfg.Exports.CSVBOM,
	}, logr)

	profileSvc, err := a.buildProfileService(userRepo)
	if err != nil {
		return nil, err
	}

	cookies := middleware.NewSessionCookies(cfg.Session.CookieName, cfg.Session.Secret, cfg.Session.TTL, cfg.Session.Secure)
	messageHandler := handler.NewMessageHandler(messageSvc, courseSvc)

	return &Dependencies{
		Auth:    handler.NewAuthHandler(authSvc),
		Profile: handler.NewProfileHandler(profileSvc),
		Course:  handler.NewCourseHandler(courseSvc, a.exports),
		Message: messageHandler,
		Guest:   handler.NewGuestHandler(guestSvc, cfg.Guest.CookieName, cfg.Session.Secure),
		Admin:   handler.NewAdminHandler(userSvc, courseSvc, metrics),
		Web:     handler.NewWebHandler(authSvc, cookies, courseSvc, messageSvc, messageHandler),
		System:  handler.NewMetricsHandler(metrics, a.db),
		Bearer:  middleware.NewBearerVerifier(authSvc),
		Session: middleware.NewSessionVerifier(cookies, authSvc),
		Audit:   userRepo,
		metrics: metrics,
	}, nil
}

// buildEvents wires the broker publisher behind a worker queue when events are enabled.
func (a *App) buildEvents(metrics *service.MetricsService) (*service.EventService, error) {
	if !a.cfg.Events.Enabled {
		return service.NewEventService(nil, a.logger), nil
	}
	publisher, err := messaging.NewRabbitMQPublisher(a.cfg.Events.RabbitMQURL, a.cfg.Events.Exchange, a.logger)
	if err != nil {
		return nil, fmt.Errorf("connect rabbitmq: %w", err)
	}
	a.publisher = publisher
	a.queue = jobs.NewQueue("events", service.NewEventPublishHandler(publisher, metrics), jobs.QueueConfig{
		Workers:    a.cfg.Events.Workers,
		MaxRetries: a.cfg.Events.Retries,
		Logger:     a.logger,
	})
	return service.NewEventService(a.queue, a.logger), nil
}

func (a *App) buildProfileService(users *repository.UserRepository) (*service.ProfileService, error) {
	media := a.cfg.Media
	signer := storage.NewSignedURLSigner(media.SignedURLSecret, media.SignedURLTTL)
	profileCfg := service.ProfileConfig{
		APIPrefix:     a.cfg.APIPrefix,
		MaxImageBytes: media.MaxImageBytes,
		AllowedTypes:  media.AllowedMIMETypes,
	}
	if !media.Enabled {
		return service.NewProfileService(users, nil, signer, profileCfg, a.logger), nil
	}
	objects, err := storage.NewMinIOStorage(media)
	if err != nil {
		return nil, fmt.Errorf("connect object storage: %w", err)
	}
	return service.NewProfileService(users, objects, signer, profileCfg, a.logger), nil
}

func (a *App) buildEngine(metrics *service.MetricsService) (*gin.Engine, error) {
	if a.cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	// ClientIP keys PIN lockouts, so forwarded headers count only from known proxies.
	if err := r.SetTrustedProxies(a.cfg.TrustedProxies); err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(a.logger))
	r.Use(corsmiddleware.New(a.cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))
	r.Use(middleware.WithResponseMeta())

	if a.cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	r.NoRoute(a.table.Dispatch())
	return r, nil
}

// Handler exposes the assembled engine.
func (a *App) Handler() http.Handler {
	return a.engine
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	bgCtx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	if a.queue != nil {
		a.queue.Start(bgCtx)
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.exports.RunCleanup(bgCtx, a.cfg.Exports.CleanupInterval)
	}()

	errCh := make(chan error, 1)
	go func() {
		a.logger.Sugar().Infow("server starting", "addr", a.server.Addr, "env", a.cfg.Env, "routes", len(a.table.Routes()))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		a.shutdown()
		if ok {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 15*time.Second)
	defer stop()
	err := a.server.Shutdown(shutdownCtx)
	a.shutdown()
	if err != nil {
		return fmt.Errorf("shutdown http: %w", err)
	}
	a.logger.Info("server stopped")
	return nil
}

// shutdown stops background work before closing the connections it uses.
func (a *App) shutdown() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.queue != nil {
		a.queue.Stop()
	}
	a.wg.Wait()
	a.closeResources()
}

func (a *App) closeResources() {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("close rabbitmq publisher", zap.Error(err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("close redis", zap.Error(err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("close database", zap.Error(err))
		}
	}
}
