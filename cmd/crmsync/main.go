package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"crmsync/internal/auth"
	"crmsync/internal/client/clint"
	"crmsync/internal/config"
	cronrunner "crmsync/internal/cron"
	"crmsync/internal/db"
	"crmsync/internal/handler"
	"crmsync/internal/lock"
	"crmsync/internal/logger"
	"crmsync/internal/opslog"
	gormrepository "crmsync/internal/repository/gorm"
	"crmsync/internal/resolver"
	"crmsync/internal/service"

	_ "crmsync/docs"
)

func main() {
	cfgPath := os.Getenv("CRM_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("CRM_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	dbConn, err := db.Open(cfg.DB, logger)
	if err != nil {
		logger.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(dbConn)

	if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
		logger.Warn("failed to set timezone", zap.Error(err))
	}
	if err := db.AutoMigrate(dbConn); err != nil {
		logger.Fatal("auto-migrate failed", zap.Error(err))
	}

	store := gormrepository.New(dbConn.Gorm, gormrepository.WithLogger(logger))
	settingsSvc := &service.SystemSettingsService{Repo: store}
	if err := settingsSvc.EnsureDefaultSwitches(context.Background()); err != nil {
		logger.Warn("init default system switches failed", zap.Error(err))
	}

	clintHTTP := &http.Client{Timeout: cfg.Clint.Timeout}
	clintClient := clint.NewClient(clintHTTP, cfg.Clint.BaseURL,
		clint.WithToken(cfg.Clint.Token),
		clint.WithAuthHeader(cfg.Clint.AuthHeader),
		clint.WithLogger(logger),
	)
	if strings.TrimSpace(cfg.Clint.Token) == "" {
		logger.Warn("clint token is empty; remote calls will be rejected")
	}

	lockCtx, cancelLock := context.WithTimeout(context.Background(), 5*time.Second)
	locker, err := lock.New(lockCtx, cfg.Lock)
	cancelLock()
	if err != nil {
		logger.Fatal("lock backend init failed", zap.String("backend", cfg.Lock.Backend), zap.Error(err))
	}

	opsLog := opslog.New(cfg.OpsLog, logger)

	syncService := &service.CRMSyncService{
		Store:    store,
		Client:   clintClient,
		Resolver: resolver.New(store),
		Locker:   locker,
		Switches: settingsSvc,
		OpsLog:   opsLog,
		Logger:   logger,
		Options: service.CRMSyncOptions{
			PerPage:      cfg.Clint.PerPage,
			AutoMaxPages: cfg.Sync.AutoMaxPages,
			FullMaxPages: cfg.Sync.FullMaxPages,
			PageDelay:    cfg.Sync.PageDelay,
			LockTTL:      cfg.Lock.TTL,
		},
	}

	if err := auth.Validate(cfg.Auth); err != nil {
		if !strings.EqualFold(cfg.App.Env, "dev") {
			logger.Fatal("refusing to start with open api auth; set auth.token, auth.jwt_secret or auth.disabled", zap.Error(err))
		}
		logger.Warn("api auth accepts any bearer token", zap.Error(err))
	}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())
	engine.Use(auth.RequireBearer(cfg.Auth))
	engine.Use(opslog.AuditMiddleware(opsLog))

	healthHandler := &handler.HealthHandler{DB: dbConn.Gorm, Checks: readinessChecks(locker)}
	healthHandler.Register(engine)
	syncHandler := &handler.SyncHandler{Service: syncService, Logger: logger}
	syncHandler.Register(engine)
	settingsHandler := &handler.SettingsHandler{Settings: settingsSvc}
	settingsHandler.Register(engine)

	engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cronRunner := cronrunner.New(logger, ctx)
	if cfg.Cron.Enabled {
		task := &cronrunner.SyncTask{
			Service:   syncService,
			Switches:  settingsSvc,
			OriginIDs: cfg.Sync.OriginIDs,
			Logger:    logger,
		}
		if _, err := cronRunner.Add(cfg.Cron.Sync, task.Run); err != nil {
			logger.Warn("cron register sync failed", zap.String("spec", cfg.Cron.Sync), zap.Error(err))
		}
	}
	cronRunner.Start()
	defer cronRunner.Stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func readinessChecks(locker lock.Locker) map[string]handler.ReadinessCheck {
	checks := map[string]handler.ReadinessCheck{}
	if rl, ok := locker.(*lock.RedisLocker); ok {
		checks["redis"] = func(ctx context.Context) error {
			return rl.Client.Ping(ctx).Err()
		}
	}
	return checks
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
