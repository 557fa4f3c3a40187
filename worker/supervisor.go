package worker

import (
	"context"
	"sync"
	"time"

	"github.com/drewmudry/remixengine-api/internal/metrics"
	"go.uber.org/zap"
)

// Supervisor runs bookkeeping writes that the job does not wait on.
// Tasks sharing a key run one at a time in submission order, so a late
// "processing" write can never overtake "complete" for the same record.
// Failures are logged and counted, never returned to the job.
type Supervisor struct {
	logger  *zap.Logger
	sem     chan struct{}
	timeout time.Duration

	mu    sync.Mutex
	tails map[string]chan struct{}
	wg    sync.WaitGroup
}

func NewSupervisor(limit int, timeout time.Duration, logger *zap.Logger) *Supervisor {
	if limit <= 0 {
		limit = 16
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Supervisor{
		logger:  logger,
		sem:     make(chan struct{}, limit),
		timeout: timeout,
		tails:   make(map[string]chan struct{}),
	}
}

// Go schedules fn behind every earlier task with the same key.
func (s *Supervisor) Go(key, name string, fn func(ctx context.Context) error) {
	done := make(chan struct{})

	s.mu.Lock()
	prev := s.tails[key]
	s.tails[key] = done
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			close(done)
			s.mu.Lock()
			if s.tails[key] == done {
				delete(s.tails, key)
			}
			s.mu.Unlock()
		}()

		if prev != nil {
			<-prev
		}

		s.sem <- struct{}{}
		defer func() { <-s.sem }()

		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			metrics.BookkeepingFailures.WithLabelValues(name).Inc()
			s.logger.Warn("bookkeeping write failed",
				zap.String("task", name),
				zap.String("key", key),
				zap.Error(err),
			)
		}
	}()
}

// Wait blocks until every scheduled task has finished.
func (s *Supervisor) Wait() {
	s.wg.Wait()
}

// Flush waits for every task already scheduled under key.
func (s *Supervisor) Flush(ctx context.Context, key string) error {
	s.mu.Lock()
	tail := s.tails[key]
	s.mu.Unlock()
	if tail == nil {
		return nil
	}

	select {
	case <-tail:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
