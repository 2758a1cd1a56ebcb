package app

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"skilllab_backend/internal/config"
	"skilllab_backend/internal/controller"
	"skilllab_backend/internal/repository"
	"skilllab_backend/internal/service"
	"skilllab_backend/pkg/configwatcher"
	"skilllab_backend/pkg/database"
	"skilllab_backend/pkg/logger"
	"skilllab_backend/pkg/monitoring"
	"skilllab_backend/pkg/security"
	"skilllab_backend/pkg/tracing"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config          *config.Config
	Router          *gin.Engine
	DB              *gorm.DB
	Redis           *redis.Client
	services        *services
	tracer          *sdktrace.TracerProvider
	stopWatcher     chan struct{}
	configCallbacks []func(*config.Config)
}

type repositories struct {
	lab        *repository.LabRepository
	submission *repository.SubmissionRepository
}

type services struct {
	storage       *service.StorageService
	chunks        *service.ChunkService
	media         *service.MediaService
	transcription *service.TranscriptionService
	grading       *service.GradingService
	ledger        *service.LedgerService
	pipeline      *service.PipelineService
}

type controllers struct {
	submission *controller.SubmissionController
	health     *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

func (a *App) initRepositories(db *gorm.DB) *repositories {
	return &repositories{
		lab:        repository.NewLabRepository(db),
		submission: repository.NewSubmissionRepository(db),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config, rdb *redis.Client) (*services, error) {
	s := &services{}

	storage, err := service.NewStorageService(cfg)
	if err != nil {
		return nil, err
	}
	s.storage = storage

	// 没有 Redis 时进度只保存在本进程内存中
	var tracker service.SessionTracker
	if rdb != nil {
		tracker = service.NewRedisSessionTracker(rdb)
	} else {
		tracker = service.NewMemorySessionTracker()
	}
	s.chunks = service.NewChunkService(cfg.Media.ScratchDir, tracker)

	s.media = service.NewMediaService(cfg.Media)
	s.transcription = service.NewTranscriptionService(cfg.Transcription)
	s.grading = service.NewGradingService(cfg.AI)
	s.ledger = service.NewLedgerService(repos.lab, repos.submission)

	s.pipeline = service.NewPipelineService(
		s.chunks,
		s.media,
		s.storage,
		s.transcription,
		s.grading,
		s.ledger,
		cfg.Pipeline,
	)

	return s, nil
}

func (a *App) initControllers(s *services, db *gorm.DB) *controllers {
	return &controllers{
		submission: controller.NewSubmissionController(s.pipeline, s.chunks, s.ledger),
		health:     controller.NewHealthController(db),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())
	router.Use(security.RateLimiter(cfg.RateLimit.MaxRequests, time.Duration(cfg.RateLimit.WindowMinutes)*time.Minute, security.ByClientIP))

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

func (a *App) seedLabs(cfg *config.Config) {
	if cfg.Labs.SeedFile == "" {
		return
	}
	seeds, err := database.LoadLabSeeds(cfg.Labs.SeedFile)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Log.Warn("Lab seed file not found, skipping", zap.String("file", cfg.Labs.SeedFile))
			return
		}
		logger.Log.Fatal("Failed to load lab seeds", zap.Error(err))
	}
	if err := database.SeedLabs(a.DB, seeds); err != nil {
		logger.Log.Fatal("Failed to seed labs", zap.Error(err))
	}
	logger.Log.Info("Labs seeded", zap.Int("count", len(seeds)))
}

// watchConfig 配置文件变更时只热更新流水线的超时与重试
func (a *App) watchConfig() {
	a.RegisterConfigCallback(func(newCfg *config.Config) {
		a.services.pipeline.UpdateSettings(newCfg.Pipeline)
		logger.Log.Info("Pipeline settings reloaded",
			zap.Duration("uploadTimeout", newCfg.Pipeline.UploadTimeout),
			zap.Int("maxAttempts", newCfg.Pipeline.MaxAttempts),
			zap.Duration("retryBackoff", newCfg.Pipeline.RetryBackoff))
	})

	a.stopWatcher = make(chan struct{})
	go func() {
		err := configwatcher.WatchConfig(filepath.Join("configs", "config.yaml"), func(newCfg *config.Config) {
			for _, cb := range a.configCallbacks {
				cb(newCfg)
			}
		}, a.stopWatcher)
		if err != nil {
			logger.Log.Error("Config watcher stopped", zap.Error(err))
		}
	}()
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)
	defer logger.Log.Sync()

	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(&cfg.Database, cfg.Server.Mode == "debug")
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
		log.Fatalf("Failed to initialize database: %v", err)
	}

	app := &App{
		Config: cfg,
		DB:     db,
	}

	// release 模式下只有显式指定才迁移
	if cfg.Server.Mode != "release" || cfg.ForceMigrate {
		if err := database.Migrate(db); err != nil {
			logger.Log.Fatal("Failed to migrate database", zap.Error(err))
		}
		app.seedLabs(cfg)
	}
	if cfg.MigrateOnly {
		return app
	}

	if cfg.Redis.Enabled {
		rdb, err := database.InitRedis(&cfg.Redis)
		if err != nil {
			logger.Log.Fatal("Failed to initialize redis", zap.Error(err))
		}
		app.Redis = rdb
	}

	repos := app.initRepositories(db)
	services, err := app.initServices(repos, cfg, app.Redis)
	if err != nil {
		logger.Log.Fatal("Failed to initialize services", zap.Error(err))
	}
	app.services = services
	controllers := app.initControllers(services, db)

	// 监控初始化
	monitoring.Init()

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	app.Router = router

	app.setupMiddlewares(router, cfg)

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer("skilllab-backend", cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		app.tracer = tp
	}

	app.registerRoutes(router, controllers, cfg)

	if cfg.Storage.Type == "local" {
		router.Static("/uploads", cfg.Storage.LocalPath)
	}

	app.watchConfig()

	return app
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	// 启动服务器
	go func() {
		logger.Log.Info("Server running", zap.String("port", a.Config.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// 等待中断信号；评分请求可能持续数分钟，关闭时多等一会
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info("Shutting down server...")

	if a.stopWatcher != nil {
		close(a.stopWatcher)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Error("Server forced to shutdown", zap.Error(err))
	}

	if a.tracer != nil {
		if err := a.tracer.Shutdown(context.Background()); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}
	if a.Redis != nil {
		a.Redis.Close()
	}

	logger.Log.Info("Server exiting")
}
