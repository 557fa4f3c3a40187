package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/drewmudry/remixengine-api/internal/blob"
	"github.com/drewmudry/remixengine-api/internal/config"
	"github.com/drewmudry/remixengine-api/internal/events"
	"github.com/drewmudry/remixengine-api/internal/metrics"
	"github.com/drewmudry/remixengine-api/internal/platform"
	"github.com/drewmudry/remixengine-api/internal/tracing"
	"github.com/drewmudry/remixengine-api/processing"
	"github.com/drewmudry/remixengine-api/progress"
	"github.com/drewmudry/remixengine-api/queue"
	"github.com/drewmudry/remixengine-api/scraper"
	"github.com/drewmudry/remixengine-api/store"
	"github.com/drewmudry/remixengine-api/tasks"
	"github.com/drewmudry/remixengine-api/worker"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

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

	if cfg.TracingEndpoint != "" {
		tp, err := tracing.InitTracer(ctx, cfg.TracingEndpoint, "remix-engine-worker")
		if err != nil {
			logger.Fatal("failed to init tracer", zap.Error(err))
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			tp.Shutdown(shutdownCtx)
		}()
	}

	db, err := platform.NewDBConnection(cfg.DatabaseURL, logger)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	if err := store.AutoMigrate(db); err != nil {
		logger.Fatal("failed to migrate database", zap.Error(err))
	}

	rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL, logger)
	if err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	blobs, err := blob.NewMinioStore(blob.StorageConfig{
		Endpoint:  cfg.MinIOEndpoint,
		AccessKey: cfg.MinIOAccessKey,
		SecretKey: cfg.MinIOSecretKey,
		UseSSL:    cfg.MinIOUseSSL,
		Bucket:    cfg.MinIOBucket,
	})
	if err != nil {
		logger.Fatal("failed to create blob store", zap.Error(err))
	}
	if err := blobs.EnsureBucket(ctx); err != nil {
		logger.Fatal("failed to ensure bucket", zap.Error(err))
	}

	openaiClient := processing.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.VisionModel)
	falClient := processing.NewFalClient(cfg.FalAPIKey, cfg.FalBaseURL, cfg.FalModel)
	timeouts := processing.DefaultTimeouts()
	timeouts.Text = cfg.TextTimeout
	timeouts.Vision = cfg.VisionTimeout
	timeouts.Image = cfg.ImageTimeout
	generator := processing.NewGenerator(openaiClient, openaiClient, falClient, timeouts)

	youtube, err := scraper.NewYouTubeClient(ctx, cfg.YouTubeAPIKey)
	if err != nil {
		logger.Fatal("failed to create youtube client", zap.Error(err))
	}
	ytdlp := scraper.NewYtDlp(cfg.YtDlpPath, cfg.TempDir, cfg.SubtitleTimeout)
	if err := ytdlp.CheckInstalled(); err != nil {
		// Scrapes still complete without a transcript.
		logger.Warn("yt-dlp unavailable, transcripts disabled", zap.Error(err))
	}

	var publisher events.Publisher = events.Noop{}
	if cfg.RabbitMQURL != "" {
		conn, err := amqp.Dial(cfg.RabbitMQURL)
		if err != nil {
			logger.Fatal("failed to connect to rabbitmq", zap.Error(err))
		}
		defer conn.Close()

		amqpPublisher, err := events.NewAMQPPublisher(conn, cfg.RabbitMQExchange)
		if err != nil {
			logger.Fatal("failed to create event publisher", zap.Error(err))
		}
		defer amqpPublisher.Close()
		publisher = amqpPublisher
	}

	proc := worker.NewProcessor(worker.Deps{
		Store:            store.New(db),
		Generator:        generator,
		Blobs:            blobs,
		Progress:         progress.NewHub(rdb, logger),
		Events:           publisher,
		Supervisor:       worker.NewSupervisor(cfg.BookkeepingLimit, 10*time.Second, logger),
		Logger:           logger,
		StorageRoot:      cfg.StorageRoot,
		Metadata:         youtube,
		Subtitles:        ytdlp,
		MaxVideoDuration: cfg.MaxVideoDuration,
	})

	client := queue.NewClient(rdb, queue.Config{
		Prefix:      cfg.QueuePrefix,
		MaxAttempts: cfg.JobMaxAttempts,
		BaseDelay:   cfg.RetryBaseDelay,
		ConsumerTTL: cfg.ConsumerTTL,
	}, logger)

	pools := []*queue.Pool{
		queue.NewPool(client, queue.PoolConfig{
			Queue:       tasks.QueueScrape,
			Consumer:    cfg.WorkerID,
			Concurrency: cfg.ScrapeConcurrency,
		}, proc.HandleScrape, logger),
		queue.NewPool(client, queue.PoolConfig{
			Queue:       tasks.QueueRemix,
			Consumer:    cfg.WorkerID,
			Concurrency: cfg.RemixConcurrency,
		}, proc.HandleRemix, logger),
	}

	metricsSrv := metrics.StartMetricsServer(ctx, cfg.MetricsPort, logger)

	logger.Info("worker started, waiting for queue tasks...", zap.String("worker_id", cfg.WorkerID))

	var wg sync.WaitGroup
	for _, pool := range pools {
		wg.Add(1)
		go func(p *queue.Pool) {
			defer wg.Done()
			if err := p.Start(ctx); err != nil {
				logger.Error("worker pool stopped", zap.Error(err))
				stop()
			}
		}(pool)
	}
	wg.Wait()

	// Pools have drained; let pending bookkeeping writes land.
	proc.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	metricsSrv.Shutdown(shutdownCtx)
	logger.Info("worker stopped")
}
