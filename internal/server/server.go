package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/reelforge/reelforge/internal/config"
	"github.com/reelforge/reelforge/internal/service"
	"github.com/reelforge/reelforge/internal/service/generator"
	"github.com/reelforge/reelforge/internal/service/renderer"
	"github.com/reelforge/reelforge/internal/service/storage"
	"github.com/reelforge/reelforge/internal/vault"
	"github.com/reelforge/reelforge/pkg/ffmpeg"
)

type Server struct {
	Config *config.Config
	DB     *gorm.DB
	Router *gin.Engine
	Logger *zap.Logger
	Server *http.Server

	// Services
	Auth       *service.AuthService
	Store      *service.JobStore
	Registry   *service.TenantRegistry
	Monitor    *service.MonitoringService
	Generation *service.GenerationService
	Frames     *service.FrameService
	Assembly   *service.AssemblyService
	Upload     *service.UploadService
	Scheduler  *service.Scheduler
	Stats      *service.StatsUpdater
}

func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	// Set gin mode
	gin.SetMode(cfg.Server.Mode)

	// Initialize database
	db, err := service.NewDatabase(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Initialize collaborators
	v, err := vault.NewAESGCM(cfg.Vault.MasterKey)
	if err != nil {
		return nil, fmt.Errorf("failed to open vault: %w", err)
	}

	shared, err := storage.NewClient(context.Background(), storage.Config{
		Endpoint:        cfg.Storage.Endpoint,
		Region:          cfg.Storage.Region,
		Bucket:          cfg.Storage.Bucket,
		AccessKeyID:     cfg.Storage.AccessKeyID,
		SecretAccessKey: cfg.Storage.SecretAccessKey,
		PublicBaseURL:   cfg.Storage.PublicBaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize shared storage: %w", err)
	}

	drafter := generator.NewClient(
		cfg.Generator.BaseURL,
		cfg.Generator.APIKey,
		cfg.Generator.Model,
		parseDuration(cfg.Generator.Timeout),
	)
	frameRenderer := renderer.NewClient(
		cfg.Renderer.BaseURL,
		cfg.Renderer.APIKey,
		parseDuration(cfg.Renderer.Timeout),
	)
	encoder := ffmpeg.New(ffmpeg.WithBinary(cfg.Pipeline.FFmpegBinary))

	// Initialize services
	store := service.NewJobStore(db, logger)
	registry := service.NewTenantRegistry(db, v, shared, parseDuration(cfg.Registry.CacheTTL), logger)
	monitor := service.NewMonitoringService(db, logger)
	selector := service.NewFormatSelector(0)

	generation := service.NewGenerationService(&cfg.Pipeline, store, registry, drafter, selector, monitor, logger)
	frames := service.NewFrameService(&cfg.Pipeline, store, frameRenderer, monitor, logger)
	assembly := service.NewAssemblyService(&cfg.Pipeline, store, registry, encoder, monitor, logger)
	upload := service.NewUploadService(&cfg.Hosting, &cfg.Pipeline, store, registry, monitor, logger)

	scheduler := service.NewScheduler(&cfg.Scheduler, generation, frames, assembly, upload, logger)
	stats := service.NewStatsUpdater(&cfg.Stats, monitor, logger)
	auth := service.NewAuthService(logger, cfg.Auth.TriggerToken)

	// Create router
	router := gin.New()

	// Create server
	srv := &Server{
		Config:     cfg,
		DB:         db,
		Router:     router,
		Logger:     logger,
		Auth:       auth,
		Store:      store,
		Registry:   registry,
		Monitor:    monitor,
		Generation: generation,
		Frames:     frames,
		Assembly:   assembly,
		Upload:     upload,
		Scheduler:  scheduler,
		Stats:      stats,
	}

	// Setup middleware and routes
	srv.setupMiddleware()
	srv.setupRoutes()

	return srv, nil
}

func (s *Server) setupMiddleware() {
	// Recovery middleware
	s.Router.Use(gin.Recovery())

	// Logger middleware
	s.Router.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
	}))

	// CORS middleware
	s.Router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})
}

func (s *Server) setupRoutes() {
	// Health check
	s.Router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Unix(),
		})
	})

	// API routes
	api := s.Router.Group("/api/v1")
	api.Use(s.Auth.AuthMiddleware())
	{
		// Stage triggers
		pipeline := api.Group("/pipeline")
		{
			pipeline.POST("/generate", s.handleTrigger(s.Generation, true))
			pipeline.POST("/frames", s.handleTrigger(s.Frames, true))
			pipeline.POST("/assemble", s.handleTrigger(s.Assembly, !s.Config.Pipeline.AsyncAssembly))
			pipeline.POST("/upload", s.handleTrigger(s.Upload, true))
		}

		// Job management
		jobs := api.Group("/jobs")
		{
			jobs.POST("", s.handleCreateJobs)
			jobs.GET("", s.handleListJobs)
			jobs.GET("/:id", s.handleGetJob)
		}

		// Monitoring
		api.GET("/stats/summary", s.handleStatsSummary)
	}
}

func (s *Server) Start(ctx context.Context) error {
	// Start scheduler
	if err := s.Scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	// Start stats updater
	s.Stats.Start(ctx)

	addr := fmt.Sprintf("%s:%d", s.Config.Server.Host, s.Config.Server.Port)

	s.Server = &http.Server{
		Addr:    addr,
		Handler: s.Router,
	}

	s.Logger.Info("Starting HTTP server", zap.String("addr", addr))

	if s.Config.Server.CertFile != "" && s.Config.Server.KeyFile != "" {
		return s.Server.ListenAndServeTLS(s.Config.Server.CertFile, s.Config.Server.KeyFile)
	}

	return s.Server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	// Stop background work first so in-flight cycles finish cleanly
	s.Scheduler.Stop()
	s.Stats.Stop()

	if s.Server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	return s.Server.Shutdown(shutdownCtx)
}

// parseDuration trusts config validation; LoadConfig rejects bad values
// before a Server is ever constructed.
func parseDuration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}
