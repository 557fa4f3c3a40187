package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/drewmudry/remixengine-api/internal/config"
	"github.com/drewmudry/remixengine-api/internal/metrics"
	"github.com/drewmudry/remixengine-api/internal/platform"
	"github.com/drewmudry/remixengine-api/queue"
	"github.com/drewmudry/remixengine-api/tasks"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// watchedQueues are the queues that have consumers.
var watchedQueues = []string{tasks.QueueScrape, tasks.QueueRemix}

// sweeper requeues tasks held by dead consumers and records queue depth.
type sweeper struct {
	client *queue.Client
	logger *zap.Logger
}

func (s *sweeper) sweep(ctx context.Context) {
	for _, q := range watchedQueues {
		n, err := s.client.RecoverOrphaned(ctx, q)
		if err != nil {
			s.logger.Error("recovering orphaned tasks failed", zap.String("queue", q), zap.Error(err))
		}
		if n > 0 {
			metrics.RecoveredTotal.WithLabelValues(q).Add(float64(n))
			s.logger.Info("requeued orphaned tasks", zap.String("queue", q), zap.Int("count", n))
		}

		stats, err := s.client.Stats(ctx, q)
		if err != nil {
			s.logger.Warn("reading queue stats failed", zap.String("queue", q), zap.Error(err))
			continue
		}
		metrics.QueueDepth.WithLabelValues(q, "waiting").Set(float64(stats.Waiting))
		metrics.QueueDepth.WithLabelValues(q, "active").Set(float64(stats.Active))
		metrics.QueueDepth.WithLabelValues(q, "delayed").Set(float64(stats.Delayed))
		metrics.QueueDepth.WithLabelValues(q, "dead").Set(float64(stats.Dead))
	}
}

// Only one scheduler instance should run; recovery is not coordinated.
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

	rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL, logger)
	if err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	s := &sweeper{
		client: queue.NewClient(rdb, queue.Config{
			Prefix:      cfg.QueuePrefix,
			MaxAttempts: cfg.JobMaxAttempts,
			BaseDelay:   cfg.RetryBaseDelay,
			ConsumerTTL: cfg.ConsumerTTL,
		}, logger),
		logger: logger,
	}

	c := cron.New()
	if _, err := c.AddFunc(cfg.RecoverySchedule, func() { s.sweep(ctx) }); err != nil {
		logger.Fatal("invalid recovery schedule", zap.String("schedule", cfg.RecoverySchedule), zap.Error(err))
	}
	c.Start()

	metricsSrv := metrics.StartMetricsServer(ctx, cfg.MetricsPort, logger)

	logger.Info("scheduler started", zap.String("schedule", cfg.RecoverySchedule))
	<-ctx.Done()

	<-c.Stop().Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	metricsSrv.Shutdown(shutdownCtx)
	logger.Info("scheduler stopped")
}
