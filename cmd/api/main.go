package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/drewmudry/remixengine-api/internal/blob"
	"github.com/drewmudry/remixengine-api/internal/config"
	"github.com/drewmudry/remixengine-api/internal/platform"
	"github.com/drewmudry/remixengine-api/progress"
	"github.com/drewmudry/remixengine-api/projects"
	"github.com/drewmudry/remixengine-api/queue"
	"github.com/drewmudry/remixengine-api/remix"
	"github.com/drewmudry/remixengine-api/scraper"
	"github.com/drewmudry/remixengine-api/store"
	"github.com/drewmudry/remixengine-api/videos"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Server struct {
	DB     *gorm.DB
	Redis  *redis.Client
	Router *gin.Engine

	cfg    *config.Config
	logger *zap.Logger
	store  *store.Store
	queue  *queue.Client
	hub    *progress.Hub
	blobs  blob.Store
	yt     *scraper.YouTubeClient
}

func NewServer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Server, error) {
	db, err := platform.NewDBConnection(cfg.DatabaseURL, logger)
	if err != nil {
		return nil, err
	}
	if err := store.AutoMigrate(db); err != nil {
		return nil, err
	}

	rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL, logger)
	if err != nil {
		return nil, err
	}

	minioStore, err := blob.NewMinioStore(blob.StorageConfig{
		Endpoint:  cfg.MinIOEndpoint,
		AccessKey: cfg.MinIOAccessKey,
		SecretKey: cfg.MinIOSecretKey,
		UseSSL:    cfg.MinIOUseSSL,
		Bucket:    cfg.MinIOBucket,
	})
	if err != nil {
		return nil, err
	}
	if err := minioStore.EnsureBucket(ctx); err != nil {
		return nil, err
	}

	yt, err := scraper.NewYouTubeClient(ctx, cfg.YouTubeAPIKey)
	if err != nil {
		return nil, err
	}

	// Create Gin router with CORS middleware
	router := gin.Default()

	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", cfg.FrontendURL)
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, PATCH, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	server := &Server{
		DB:     db,
		Redis:  rdb,
		Router: router,
		cfg:    cfg,
		logger: logger,
		store:  store.New(db),
		queue: queue.NewClient(rdb, queue.Config{
			Prefix:      cfg.QueuePrefix,
			MaxAttempts: cfg.JobMaxAttempts,
			BaseDelay:   cfg.RetryBaseDelay,
			ConsumerTTL: cfg.ConsumerTTL,
		}, logger),
		hub:   progress.NewHub(rdb, logger),
		blobs: minioStore,
		yt:    yt,
	}

	server.setupRoutes()

	return server, nil
}

func (s *Server) setupRoutes() {
	s.Router.GET("/health", func(c *gin.Context) {
		if err := s.store.Ping(c.Request.Context()); err != nil {
			c.JSON(500, gin.H{"status": "unhealthy", "error": err.Error()})
			return
		}
		if err := s.Redis.Ping(c.Request.Context()).Err(); err != nil {
			c.JSON(500, gin.H{"status": "unhealthy", "error": err.Error()})
			return
		}

		c.JSON(200, gin.H{
			"status":   "healthy",
			"database": "connected",
			"redis":    "connected",
		})
	})
	s.Router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.Router.GET("/", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "Remix Engine API v1"})
	})

	projectHandler := projects.NewHandler(s.store, s.logger)
	videoHandler := videos.NewHandler(s.store, s.queue, s.blobs, s.hub, s.cfg.StorageRoot, s.logger)
	videoHandler.Metadata = s.yt
	videoHandler.Channels = s.yt
	videoHandler.MaxVideoDuration = s.cfg.MaxVideoDuration
	remixHandler := remix.NewHandler(remix.NewService(s.store, s.queue, s.logger), s.logger)

	api := s.Router.Group("/api/remix-engine")
	projectHandler.Register(api)
	videoHandler.Register(api)
	remixHandler.Register(api)
}

// Run serves until ctx is cancelled, then drains open requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    ":" + s.cfg.Port,
		Handler: s.Router,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", zap.String("port", s.cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger, err := platform.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal("Failed to create logger:", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server, err := NewServer(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to create server", zap.Error(err))
	}

	if err := server.Run(ctx); err != nil {
		logger.Fatal("failed to run server", zap.Error(err))
	}
}
