package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newTestClient(t *testing.T, cfg Config) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewClient(rdb, cfg, zap.NewNop()), mr
}

type payload struct {
	VideoID string `json:"video_id"`
}

func TestEnqueueWithJobIDIsIdempotent(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestClient(t, Config{})

	id, err := c.Enqueue(ctx, "remix", "remix_title", payload{VideoID: "v1"}, WithJobID("job-1"))
	require.NoError(t, err)
	assert.Equal(t, "job-1", id)

	id, err = c.Enqueue(ctx, "remix", "remix_title", payload{VideoID: "v1"}, WithJobID("job-1"))
	require.NoError(t, err)
	assert.Equal(t, "job-1", id)

	stats, err := c.Stats(ctx, "remix")
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.Waiting)
}

func TestEnqueueGeneratesID(t *testing.T) {
	c, _ := newTestClient(t, Config{})
	id, err := c.Enqueue(context.Background(), "remix", "remix_title", payload{})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}

func TestEnqueueFailsWhenRedisIsDown(t *testing.T) {
	c, mr := newTestClient(t, Config{})
	mr.Close()

	_, err := c.Enqueue(context.Background(), "remix", "remix_title", payload{})
	assert.Error(t, err)
}

func TestDequeueIsFIFO(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestClient(t, Config{})

	for _, id := range []string{"a", "b", "c"} {
		_, err := c.Enqueue(ctx, "scrape", "scrape", payload{VideoID: id}, WithJobID(id))
		require.NoError(t, err)
	}

	for _, want := range []string{"a", "b", "c"} {
		task, err := c.Dequeue(ctx, "scrape", "w1", time.Second)
		require.NoError(t, err)
		assert.Equal(t, want, task.ID)
		assert.Equal(t, 1, task.Attempt)
		assert.JSONEq(t, `{"video_id":"`+want+`"}`, string(task.Payload))
	}

	stats, err := c.Stats(ctx, "scrape")
	require.NoError(t, err)
	assert.EqualValues(t, 0, stats.Waiting)
}

func TestAckRemovesTask(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestClient(t, Config{})
	require.NoError(t, c.Heartbeat(ctx, "remix", "w1"))

	_, err := c.Enqueue(ctx, "remix", "remix_title", payload{}, WithJobID("j"))
	require.NoError(t, err)
	task, err := c.Dequeue(ctx, "remix", "w1", time.Second)
	require.NoError(t, err)

	stats, _ := c.Stats(ctx, "remix")
	assert.EqualValues(t, 1, stats.Active)

	require.NoError(t, c.Ack(ctx, task, "w1"))
	stats, _ = c.Stats(ctx, "remix")
	assert.EqualValues(t, 0, stats.Active)

	_, err = c.Task(ctx, "remix", "j")
	assert.ErrorIs(t, err, redis.Nil)
}

func TestFailSchedulesRetryThenDeadLetters(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestClient(t, Config{MaxAttempts: 2, BaseDelay: time.Millisecond})

	_, err := c.Enqueue(ctx, "remix", "remix_script", payload{}, WithJobID("j"))
	require.NoError(t, err)

	task, err := c.Dequeue(ctx, "remix", "w1", time.Second)
	require.NoError(t, err)
	outcome, err := c.Fail(ctx, task, "w1", errors.New("OpenAI API error: timeout"))
	require.NoError(t, err)
	assert.Equal(t, Retried, outcome)

	stats, _ := c.Stats(ctx, "remix")
	assert.EqualValues(t, 1, stats.Delayed)

	time.Sleep(5 * time.Millisecond)
	n, err := c.PromoteDelayed(ctx, "remix")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	task, err = c.Dequeue(ctx, "remix", "w1", time.Second)
	require.NoError(t, err)
	assert.Equal(t, 2, task.Attempt)
	assert.Equal(t, "OpenAI API error: timeout", task.LastError)

	outcome, err = c.Fail(ctx, task, "w1", errors.New("still down"))
	require.NoError(t, err)
	assert.Equal(t, DeadLettered, outcome)

	stats, _ = c.Stats(ctx, "remix")
	assert.EqualValues(t, 1, stats.Dead)
	assert.EqualValues(t, 0, stats.Delayed)

	stored, err := c.Task(ctx, "remix", "j")
	require.NoError(t, err)
	assert.Equal(t, "still down", stored.LastError)
}

func TestPermanentFailureSkipsRetry(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestClient(t, Config{MaxAttempts: 5})

	_, err := c.Enqueue(ctx, "remix", "remix_title", payload{}, WithJobID("j"))
	require.NoError(t, err)
	task, err := c.Dequeue(ctx, "remix", "w1", time.Second)
	require.NoError(t, err)

	cause := Permanent(errors.New("schema validation failed"))
	assert.True(t, task.Final(cause))
	outcome, err := c.Fail(ctx, task, "w1", cause)
	require.NoError(t, err)
	assert.Equal(t, DeadLettered, outcome)
}

func TestPermanentWrapping(t *testing.T) {
	base := errors.New("boom")
	err := Permanent(base)
	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, base)
	assert.False(t, IsPermanent(base))
	assert.Nil(t, Permanent(nil))
}

func TestBackoffIsExponentialAndCapped(t *testing.T) {
	c, _ := newTestClient(t, Config{BaseDelay: 2 * time.Second})
	assert.Equal(t, 2*time.Second, c.Backoff(1))
	assert.Equal(t, 4*time.Second, c.Backoff(2))
	assert.Equal(t, 8*time.Second, c.Backoff(3))
	assert.Equal(t, 60*time.Second, c.Backoff(10))
}

func TestRecoverOrphanedRequeuesDeadConsumerTasks(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestClient(t, Config{ConsumerTTL: 10 * time.Second})

	require.NoError(t, c.Heartbeat(ctx, "scrape", "crashed"))
	_, err := c.Enqueue(ctx, "scrape", "scrape", payload{}, WithJobID("j"))
	require.NoError(t, err)
	_, err = c.Dequeue(ctx, "scrape", "crashed", time.Second)
	require.NoError(t, err)

	// Still alive: nothing to recover.
	n, err := c.RecoverOrphaned(ctx, "scrape")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	mr.FastForward(11 * time.Second)
	n, err = c.RecoverOrphaned(ctx, "scrape")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	task, err := c.Dequeue(ctx, "scrape", "healthy", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "j", task.ID)
	assert.Equal(t, 2, task.Attempt)
}

func TestPoolProcessesAndRetries(t *testing.T) {
	c, _ := newTestClient(t, Config{MaxAttempts: 3, BaseDelay: time.Millisecond})

	var mu sync.Mutex
	attempts := map[string]int{}
	done := make(chan string, 4)

	handler := func(ctx context.Context, task *Task) error {
		mu.Lock()
		attempts[task.ID]++
		n := attempts[task.ID]
		mu.Unlock()

		if task.ID == "flaky" && n == 1 {
			return errors.New("transient")
		}
		if task.ID == "broken" {
			done <- task.ID
			return Permanent(errors.New("bad output"))
		}
		done <- task.ID
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	pool := NewPool(c, PoolConfig{Queue: "remix", Consumer: "w1", Concurrency: 2}, handler, zap.NewNop())
	stopped := make(chan struct{})
	go func() {
		_ = pool.Start(ctx)
		close(stopped)
	}()

	for _, id := range []string{"ok", "flaky", "broken"} {
		_, err := c.Enqueue(context.Background(), "remix", "remix_title", payload{}, WithJobID(id))
		require.NoError(t, err)
	}

	seen := map[string]bool{}
	timeout := time.After(10 * time.Second)
	for len(seen) < 3 {
		select {
		case id := <-done:
			seen[id] = true
		case <-timeout:
			t.Fatalf("timed out, processed %v", seen)
		}
	}

	cancel()
	<-stopped

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, attempts["ok"])
	assert.Equal(t, 2, attempts["flaky"])
	assert.Equal(t, 1, attempts["broken"])

	stats, err := c.Stats(context.Background(), "remix")
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.Dead)
	assert.EqualValues(t, 0, stats.Waiting)
}

func TestPoolRestartUnderSameIDRedeliversInFlightTask(t *testing.T) {
	c, _ := newTestClient(t, Config{ConsumerTTL: 10 * time.Second})

	// The previous process took job-1 and died before acking it.
	_, err := c.Enqueue(context.Background(), "remix", "remix_title", payload{VideoID: "v1"}, WithJobID("job-1"))
	require.NoError(t, err)
	_, err = c.Dequeue(context.Background(), "remix", "host-a:remix", time.Second)
	require.NoError(t, err)

	delivered := make(chan *Task, 1)
	handler := func(ctx context.Context, task *Task) error {
		delivered <- task
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	pool := NewPool(c, PoolConfig{Queue: "remix", Consumer: "host-a", Concurrency: 1}, handler, zap.NewNop())
	stopped := make(chan struct{})
	go func() {
		_ = pool.Start(ctx)
		close(stopped)
	}()

	select {
	case task := <-delivered:
		assert.Equal(t, "job-1", task.ID)
		assert.Equal(t, 2, task.Attempt)
	case <-time.After(10 * time.Second):
		t.Fatal("in-flight task was not redelivered after restart")
	}

	cancel()
	<-stopped

	stats, err := c.Stats(context.Background(), "remix")
	require.NoError(t, err)
	assert.EqualValues(t, 0, stats.Active)
	assert.EqualValues(t, 0, stats.Waiting)
}

func TestReclaimLeavesOtherConsumersAlone(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestClient(t, Config{})

	for _, id := range []string{"a", "b"} {
		_, err := c.Enqueue(ctx, "remix", "remix_title", payload{}, WithJobID(id))
		require.NoError(t, err)
	}
	_, err := c.Dequeue(ctx, "remix", "mine", time.Second)
	require.NoError(t, err)
	_, err = c.Dequeue(ctx, "remix", "theirs", time.Second)
	require.NoError(t, err)

	n, err := c.Reclaim(ctx, "remix", "mine")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = c.Reclaim(ctx, "remix", "mine")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	stats, err := c.Stats(ctx, "remix")
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.Waiting)
}

func newObservedClient(t *testing.T) (*Client, *miniredis.Miniredis, *observer.ObservedLogs) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	core, logs := observer.New(zapcore.DebugLevel)
	return NewClient(rdb, Config{}, zap.New(core)), mr, logs
}

func TestDequeueDeadLettersUndecodableEnvelope(t *testing.T) {
	ctx := context.Background()
	c, mr, logs := newObservedClient(t)

	_, err := c.Enqueue(ctx, "remix", "remix_title", payload{}, WithJobID("garbled"))
	require.NoError(t, err)
	mr.HSet("remix-engine:remix:jobs", "garbled", "{not json")

	_, err = c.Dequeue(ctx, "remix", "w1", time.Second)
	assert.ErrorIs(t, err, redis.Nil)

	stats, err := c.Stats(ctx, "remix")
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.Dead)
	assert.False(t, mr.Exists("remix-engine:remix:active:w1"))

	assert.Equal(t, 1, logs.FilterMessage("dropping undecodable envelope").Len())
	assert.Zero(t, logs.FilterMessage("dead-lettering undecodable envelope failed").Len())
}

func TestDequeueDropsStaleID(t *testing.T) {
	ctx := context.Background()
	c, mr, logs := newObservedClient(t)

	_, err := c.Enqueue(ctx, "remix", "remix_title", payload{}, WithJobID("acked"))
	require.NoError(t, err)
	mr.HDel("remix-engine:remix:jobs", "acked")

	_, err = c.Dequeue(ctx, "remix", "w1", time.Second)
	assert.ErrorIs(t, err, redis.Nil)

	assert.False(t, mr.Exists("remix-engine:remix:active:w1"))
	assert.Zero(t, logs.FilterMessage("dropping stale id failed").Len())
}
