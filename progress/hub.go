// Package progress fans job status and progress out to observers over Redis pub/sub.
package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/drewmudry/remixengine-api/models"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Update is the job state pushed to subscribers.
type Update struct {
	JobID        string           `json:"job_id"`
	Type         models.JobType   `json:"type"`
	Status       models.JobStatus `json:"status"`
	Progress     int              `json:"progress"`
	ErrorMessage string           `json:"error_message,omitempty"`
	Result       map[string]any   `json:"result,omitempty"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

func FromJob(j *models.Job) Update {
	u := Update{
		JobID:     j.ID,
		Type:      j.Type,
		Status:    j.Status,
		Progress:  j.Progress,
		Result:    j.Result,
		UpdatedAt: time.Now().UTC(),
	}
	if j.ErrorMessage != nil {
		u.ErrorMessage = *j.ErrorMessage
	}
	return u
}

// Terminal reports whether no further updates will follow.
func (u Update) Terminal() bool {
	return u.Status.Terminal()
}

func Channel(jobID string) string {
	return "job:" + jobID
}

// Loader reads the current row for a job.
type Loader func(ctx context.Context, jobID string) (*models.Job, error)

type Hub struct {
	rdb    *redis.Client
	logger *zap.Logger
}

func NewHub(rdb *redis.Client, logger *zap.Logger) *Hub {
	return &Hub{rdb: rdb, logger: logger}
}

// Publish pushes the job's current state to its channel.
func (h *Hub) Publish(ctx context.Context, job *models.Job) error {
	body, err := json.Marshal(FromJob(job))
	if err != nil {
		return err
	}
	if err := h.rdb.Publish(ctx, Channel(job.ID), body).Err(); err != nil {
		return fmt.Errorf("publish progress for %s: %w", job.ID, err)
	}
	return nil
}

// Subscription delivers the current row once, then every published update.
// Callers must Close it.
type Subscription struct {
	updates  chan Update
	pubsub   *redis.PubSub
	done     chan struct{}
	finished chan struct{}
	once     sync.Once
	closeErr error
}

func (s *Subscription) Updates() <-chan Update {
	return s.updates
}

// Close unsubscribes and returns once the forwarding goroutine has exited.
func (s *Subscription) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.closeErr = s.pubsub.Close()
		<-s.finished
	})
	return s.closeErr
}

// Subscribe confirms the channel subscription before reading the current row,
// so no update published after the read can be missed.
func (h *Hub) Subscribe(ctx context.Context, jobID string, load Loader) (*Subscription, error) {
	pubsub := h.rdb.Subscribe(ctx, Channel(jobID))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe to %s: %w", Channel(jobID), err)
	}

	current, err := load(ctx, jobID)
	if err != nil {
		pubsub.Close()
		return nil, err
	}

	s := &Subscription{
		updates:  make(chan Update, 16),
		pubsub:   pubsub,
		done:     make(chan struct{}),
		finished: make(chan struct{}),
	}
	s.updates <- FromJob(current)

	messages := pubsub.Channel()
	go func() {
		defer close(s.finished)
		defer close(s.updates)

		for {
			select {
			case <-s.done:
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var u Update
				if err := json.Unmarshal([]byte(msg.Payload), &u); err != nil {
					h.logger.Warn("dropping malformed progress message", zap.String("channel", msg.Channel), zap.Error(err))
					continue
				}
				select {
				case s.updates <- u:
				case <-s.done:
					return
				}
			}
		}
	}()

	return s, nil
}
