package queue

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/drewmudry/remixengine-api/internal/metrics"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Handler processes one task. A nil return acks it; an error wrapped with
// Permanent dead-letters it; any other error is retried with backoff.
type Handler func(ctx context.Context, task *Task) error

// Pool runs a fixed number of workers against one named queue.
type Pool struct {
	client      *Client
	queue       string
	consumer    string
	concurrency int
	handler     Handler
	logger      *zap.Logger

	pollTimeout     time.Duration
	promoteInterval time.Duration
	wg              sync.WaitGroup
}

type PoolConfig struct {
	Queue       string
	Consumer    string
	Concurrency int
}

func NewPool(client *Client, cfg PoolConfig, handler Handler, logger *zap.Logger) *Pool {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Pool{
		client:          client,
		queue:           cfg.Queue,
		consumer:        cfg.Consumer + ":" + cfg.Queue,
		concurrency:     cfg.Concurrency,
		handler:         handler,
		logger:          logger.With(zap.String("queue", cfg.Queue)),
		pollTimeout:     time.Second,
		promoteInterval: time.Second,
	}
}

// Start blocks until ctx is cancelled, then waits for in-flight tasks.
// Tasks that are running at shutdown finish on a context detached from ctx.
// A consumer id reused after a crash gets its unacked tasks back first.
func (p *Pool) Start(ctx context.Context) error {
	n, err := p.client.Reclaim(ctx, p.queue, p.consumer)
	if err != nil {
		return err
	}
	if n > 0 {
		metrics.RecoveredTotal.WithLabelValues(p.queue).Add(float64(n))
	}

	if err := p.client.Heartbeat(ctx, p.queue, p.consumer); err != nil {
		return err
	}

	p.logger.Info("starting worker pool",
		zap.Int("workers", p.concurrency),
		zap.String("consumer", p.consumer),
	)

	p.wg.Add(1)
	go p.maintain(ctx)

	for i := 0; i < p.concurrency; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}

	<-ctx.Done()
	p.logger.Info("context cancelled, waiting for workers to finish")
	p.wg.Wait()
	return nil
}

// maintain keeps the heartbeat alive and promotes due retries.
func (p *Pool) maintain(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.promoteInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.client.Heartbeat(ctx, p.queue, p.consumer); err != nil && ctx.Err() == nil {
				p.logger.Warn("heartbeat failed", zap.Error(err))
			}
			n, err := p.client.PromoteDelayed(ctx, p.queue)
			if err != nil && ctx.Err() == nil {
				p.logger.Warn("promote delayed failed", zap.Error(err))
			}
			if n > 0 {
				p.logger.Debug("promoted delayed tasks", zap.Int("count", n))
			}
		}
	}
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	log := p.logger.With(zap.Int("worker_id", id))
	log.Info("worker started")

	for {
		if ctx.Err() != nil {
			log.Info("worker shutting down")
			return
		}

		task, err := p.client.Dequeue(ctx, p.queue, p.consumer, p.pollTimeout)
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			log.Error("dequeue failed", zap.Error(err))
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
			}
			continue
		}

		p.process(context.WithoutCancel(ctx), task, log)
	}
}

func (p *Pool) process(ctx context.Context, task *Task, log *zap.Logger) {
	log = log.With(
		zap.String("task_id", task.ID),
		zap.String("type", task.Type),
		zap.Int("attempt", task.Attempt),
	)

	metrics.ActiveWorkers.WithLabelValues(p.queue).Inc()
	start := time.Now()
	err := p.run(ctx, task)
	metrics.JobProcessingDuration.WithLabelValues(task.Type).Observe(time.Since(start).Seconds())
	metrics.ActiveWorkers.WithLabelValues(p.queue).Dec()

	if err == nil {
		metrics.JobsProcessedTotal.WithLabelValues(p.queue, task.Type, "success").Inc()
		if ackErr := p.client.Ack(ctx, task, p.consumer); ackErr != nil {
			log.Error("ack failed", zap.Error(ackErr))
		}
		return
	}

	outcome, failErr := p.client.Fail(ctx, task, p.consumer, err)
	if failErr != nil {
		log.Error("recording failure failed", zap.Error(failErr), zap.NamedError("cause", err))
		return
	}

	switch outcome {
	case DeadLettered:
		metrics.JobsProcessedTotal.WithLabelValues(p.queue, task.Type, "failed").Inc()
		metrics.DeadLetterTotal.WithLabelValues(p.queue).Inc()
		log.Warn("task dead-lettered", zap.Error(err), zap.Bool("permanent", IsPermanent(err)))
	case Retried:
		metrics.JobsProcessedTotal.WithLabelValues(p.queue, task.Type, "retry").Inc()
		metrics.RetryTotal.WithLabelValues(p.queue, strconv.Itoa(task.Attempt)).Inc()
		log.Info("task failed, retry scheduled", zap.Error(err), zap.Duration("delay", p.client.Backoff(task.Attempt)))
	}
}

// run calls the handler, turning a panic into a permanent failure.
func (p *Pool) run(ctx context.Context, task *Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = Permanent(errors.New("handler panicked"))
			p.logger.Error("handler panic", zap.String("task_id", task.ID), zap.Any("panic", r))
		}
	}()
	return p.handler(ctx, task)
}
