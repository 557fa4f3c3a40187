package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxBackoff = 60 * time.Second

// Task is the envelope stored for every queued job.
type Task struct {
	ID          string          `json:"id"`
	Queue       string          `json:"queue"`
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	Attempt     int             `json:"attempt"`
	MaxAttempts int             `json:"max_attempts"`
	LastError   string          `json:"last_error,omitempty"`
	EnqueuedAt  time.Time       `json:"enqueued_at"`
}

// Config controls key naming and the retry policy.
type Config struct {
	Prefix      string
	MaxAttempts int
	BaseDelay   time.Duration
	ConsumerTTL time.Duration
}

// Client enqueues tasks and moves them between the per-queue Redis keys:
//
//	<prefix>:<queue>:wait             list of ids, LPUSH in, RPOP out
//	<prefix>:<queue>:jobs             hash id -> envelope
//	<prefix>:<queue>:active:<worker>  ids a consumer is working on
//	<prefix>:<queue>:delayed          zset of ids scored by due time
//	<prefix>:<queue>:dead             ids that exhausted their attempts
//	<prefix>:<queue>:consumers        set of consumer ids
//	<prefix>:consumers:<worker>       heartbeat, expires after ConsumerTTL
type Client struct {
	rdb    *redis.Client
	cfg    Config
	logger *zap.Logger
}

func NewClient(rdb *redis.Client, cfg Config, logger *zap.Logger) *Client {
	if cfg.Prefix == "" {
		cfg.Prefix = "remix-engine"
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 2 * time.Second
	}
	if cfg.ConsumerTTL <= 0 {
		cfg.ConsumerTTL = 30 * time.Second
	}
	return &Client{rdb: rdb, cfg: cfg, logger: logger}
}

func (c *Client) key(queue, part string) string {
	return c.cfg.Prefix + ":" + queue + ":" + part
}

func (c *Client) waitKey(queue string) string    { return c.key(queue, "wait") }
func (c *Client) jobsKey(queue string) string    { return c.key(queue, "jobs") }
func (c *Client) delayedKey(queue string) string { return c.key(queue, "delayed") }
func (c *Client) deadKey(queue string) string    { return c.key(queue, "dead") }
func (c *Client) consumersKey(queue string) string {
	return c.key(queue, "consumers")
}
func (c *Client) activeKey(queue, consumer string) string {
	return c.key(queue, "active:"+consumer)
}
func (c *Client) heartbeatKey(consumer string) string {
	return c.cfg.Prefix + ":consumers:" + consumer
}

type enqueueOptions struct {
	id          string
	maxAttempts int
}

type Option func(*enqueueOptions)

// WithJobID makes the enqueue idempotent on id: a second enqueue with the
// same id while the task is still held by the queue is a no-op.
func WithJobID(id string) Option {
	return func(o *enqueueOptions) { o.id = id }
}

func WithMaxAttempts(n int) Option {
	return func(o *enqueueOptions) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

// KEYS: jobs hash, wait list. ARGV: id, envelope.
var enqueueScript = redis.NewScript(`
if redis.call('HSETNX', KEYS[1], ARGV[1], ARGV[2]) == 1 then
	redis.call('LPUSH', KEYS[2], ARGV[1])
	return 1
end
return 0
`)

// Enqueue schedules a task and returns its id. An error means the task was not scheduled.
func (c *Client) Enqueue(ctx context.Context, queue, taskType string, payload interface{}, opts ...Option) (string, error) {
	o := enqueueOptions{maxAttempts: c.cfg.MaxAttempts}
	for _, opt := range opts {
		opt(&o)
	}
	if o.id == "" {
		o.id = uuid.NewString()
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal %s payload: %w", taskType, err)
	}
	env, err := json.Marshal(Task{
		ID:          o.id,
		Queue:       queue,
		Type:        taskType,
		Payload:     raw,
		MaxAttempts: o.maxAttempts,
		EnqueuedAt:  time.Now().UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("marshal envelope: %w", err)
	}

	created, err := enqueueScript.Run(ctx, c.rdb, []string{c.jobsKey(queue), c.waitKey(queue)}, o.id, env).Int()
	if err != nil {
		return "", fmt.Errorf("enqueue %s on %s: %w", taskType, queue, err)
	}
	if created == 0 {
		c.logger.Debug("task already queued", zap.String("queue", queue), zap.String("task_id", o.id))
	}
	return o.id, nil
}

// Dequeue blocks up to timeout for the next task and moves it to the consumer's
// active list. It returns redis.Nil when nothing arrived.
func (c *Client) Dequeue(ctx context.Context, queue, consumer string, timeout time.Duration) (*Task, error) {
	id, err := c.rdb.BRPopLPush(ctx, c.waitKey(queue), c.activeKey(queue, consumer), timeout).Result()
	if err != nil {
		return nil, err
	}

	env, err := c.rdb.HGet(ctx, c.jobsKey(queue), id).Result()
	if errors.Is(err, redis.Nil) {
		// Acked by a previous delivery; drop the stale id.
		if err := c.rdb.LRem(ctx, c.activeKey(queue, consumer), 1, id).Err(); err != nil {
			c.logger.Warn("dropping stale id failed", zap.String("queue", queue), zap.String("task_id", id), zap.Error(err))
		}
		return nil, redis.Nil
	}
	if err != nil {
		return nil, fmt.Errorf("load task %s: %w", id, err)
	}

	var task Task
	if err := json.Unmarshal([]byte(env), &task); err != nil {
		c.logger.Error("dropping undecodable envelope", zap.String("queue", queue), zap.String("task_id", id), zap.Error(err))
		_, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.LRem(ctx, c.activeKey(queue, consumer), 1, id)
			p.LPush(ctx, c.deadKey(queue), id)
			return nil
		})
		if err != nil {
			c.logger.Error("dead-lettering undecodable envelope failed", zap.String("queue", queue), zap.String("task_id", id), zap.Error(err))
		}
		return nil, redis.Nil
	}

	task.Attempt++
	if err := c.save(ctx, c.rdb, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

func (c *Client) save(ctx context.Context, cmd redis.Cmdable, task *Task) error {
	env, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if err := cmd.HSet(ctx, c.jobsKey(task.Queue), task.ID, env).Err(); err != nil {
		return fmt.Errorf("save task %s: %w", task.ID, err)
	}
	return nil
}

// Ack removes a finished task.
func (c *Client) Ack(ctx context.Context, task *Task, consumer string) error {
	_, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LRem(ctx, c.activeKey(task.Queue, consumer), 1, task.ID)
		p.HDel(ctx, c.jobsKey(task.Queue), task.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("ack task %s: %w", task.ID, err)
	}
	return nil
}

// Outcome is what Fail decided to do with a task.
type Outcome int

const (
	Retried Outcome = iota
	DeadLettered
)

// Final reports whether a failure on this attempt ends the task.
func (t *Task) Final(err error) bool {
	return IsPermanent(err) || t.Attempt >= t.MaxAttempts
}

// Fail records the error and either schedules a retry with exponential backoff
// or moves the task to the dead list.
func (c *Client) Fail(ctx context.Context, task *Task, consumer string, cause error) (Outcome, error) {
	task.LastError = cause.Error()
	dead := task.Final(cause)

	_, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LRem(ctx, c.activeKey(task.Queue, consumer), 1, task.ID)
		if err := c.save(ctx, p, task); err != nil {
			return err
		}
		if dead {
			p.LPush(ctx, c.deadKey(task.Queue), task.ID)
			return nil
		}
		due := time.Now().Add(c.Backoff(task.Attempt))
		p.ZAdd(ctx, c.delayedKey(task.Queue), &redis.Z{Score: float64(due.UnixMilli()), Member: task.ID})
		return nil
	})
	if err != nil {
		return Retried, fmt.Errorf("fail task %s: %w", task.ID, err)
	}
	if dead {
		return DeadLettered, nil
	}
	return Retried, nil
}

// Backoff is base * 2^(attempt-1), capped at one minute.
func (c *Client) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := c.cfg.BaseDelay * time.Duration(math.Pow(2, float64(attempt-1)))
	if delay > maxBackoff || delay <= 0 {
		delay = maxBackoff
	}
	return delay
}

// PromoteDelayed moves retries whose backoff elapsed back onto the wait list.
func (c *Client) PromoteDelayed(ctx context.Context, queue string) (int, error) {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	ids, err := c.rdb.ZRangeByScore(ctx, c.delayedKey(queue), &redis.ZRangeBy{Min: "-inf", Max: now}).Result()
	if err != nil {
		return 0, fmt.Errorf("read delayed %s: %w", queue, err)
	}

	promoted := 0
	for _, id := range ids {
		// Only the caller that wins the ZREM pushes the id.
		removed, err := c.rdb.ZRem(ctx, c.delayedKey(queue), id).Result()
		if err != nil {
			return promoted, fmt.Errorf("promote %s: %w", id, err)
		}
		if removed == 0 {
			continue
		}
		if err := c.rdb.LPush(ctx, c.waitKey(queue), id).Err(); err != nil {
			return promoted, fmt.Errorf("promote %s: %w", id, err)
		}
		promoted++
	}
	return promoted, nil
}

// Heartbeat registers the consumer on the queue and refreshes its liveness key.
func (c *Client) Heartbeat(ctx context.Context, queue, consumer string) error {
	_, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.SAdd(ctx, c.consumersKey(queue), consumer)
		p.Set(ctx, c.heartbeatKey(consumer), time.Now().Unix(), c.cfg.ConsumerTTL)
		return nil
	})
	return err
}

// RecoverOrphaned requeues the in-flight tasks of consumers whose heartbeat
// expired. Those tasks are delivered again, so handlers must be idempotent.
func (c *Client) RecoverOrphaned(ctx context.Context, queue string) (int, error) {
	consumers, err := c.rdb.SMembers(ctx, c.consumersKey(queue)).Result()
	if err != nil {
		return 0, fmt.Errorf("list consumers for %s: %w", queue, err)
	}

	recovered := 0
	for _, consumer := range consumers {
		alive, err := c.rdb.Exists(ctx, c.heartbeatKey(consumer)).Result()
		if err != nil {
			return recovered, err
		}
		if alive > 0 {
			continue
		}

		n, err := c.requeueActive(ctx, queue, consumer)
		recovered += n
		if err != nil {
			return recovered, err
		}
		if err := c.rdb.SRem(ctx, c.consumersKey(queue), consumer).Err(); err != nil {
			c.logger.Warn("unregistering dead consumer failed", zap.String("queue", queue), zap.String("consumer", consumer), zap.Error(err))
		}
		c.logger.Info("recovered dead consumer", zap.String("queue", queue), zap.String("consumer", consumer))
	}
	return recovered, nil
}

// Reclaim requeues tasks left in consumer's own active list by an earlier
// process that ran under the same id. Call it before the consumer's first
// heartbeat: once the heartbeat is live, RecoverOrphaned skips the consumer.
func (c *Client) Reclaim(ctx context.Context, queue, consumer string) (int, error) {
	n, err := c.requeueActive(ctx, queue, consumer)
	if n > 0 {
		c.logger.Info("reclaimed in-flight tasks from previous run",
			zap.String("queue", queue),
			zap.String("consumer", consumer),
			zap.Int("count", n),
		)
	}
	return n, err
}

// requeueActive moves a consumer's active list back onto the wait list.
func (c *Client) requeueActive(ctx context.Context, queue, consumer string) (int, error) {
	moved := 0
	for {
		_, err := c.rdb.RPopLPush(ctx, c.activeKey(queue, consumer), c.waitKey(queue)).Result()
		if errors.Is(err, redis.Nil) {
			return moved, nil
		}
		if err != nil {
			return moved, fmt.Errorf("requeue %s/%s: %w", queue, consumer, err)
		}
		moved++
	}
}

// Stats is a snapshot of a queue's depth per state.
type Stats struct {
	Waiting int64
	Active  int64
	Delayed int64
	Dead    int64
}

func (c *Client) Stats(ctx context.Context, queue string) (Stats, error) {
	var s Stats
	var err error
	if s.Waiting, err = c.rdb.LLen(ctx, c.waitKey(queue)).Result(); err != nil {
		return s, err
	}
	if s.Delayed, err = c.rdb.ZCard(ctx, c.delayedKey(queue)).Result(); err != nil {
		return s, err
	}
	if s.Dead, err = c.rdb.LLen(ctx, c.deadKey(queue)).Result(); err != nil {
		return s, err
	}

	consumers, err := c.rdb.SMembers(ctx, c.consumersKey(queue)).Result()
	if err != nil {
		return s, err
	}
	for _, consumer := range consumers {
		n, err := c.rdb.LLen(ctx, c.activeKey(queue, consumer)).Result()
		if err != nil {
			return s, err
		}
		s.Active += n
	}
	return s, nil
}

// Task returns the stored envelope for id, if the queue still holds it.
func (c *Client) Task(ctx context.Context, queue, id string) (*Task, error) {
	env, err := c.rdb.HGet(ctx, c.jobsKey(queue), id).Result()
	if err != nil {
		return nil, err
	}
	var task Task
	if err := json.Unmarshal([]byte(env), &task); err != nil {
		return nil, err
	}
	return &task, nil
}
