// Package queue holds the Redis-backed delay queue for deferred batch checks.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	rd "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"storefront/internal/batch"
	sredis "storefront/pkg/redis"
)

const popLimit = 16

// envelope 是写入有序集合的成员；ID 保证相同 Task 多次入队不被 ZADD 合并。
type envelope struct {
	ID   string     `json:"id"`
	Task batch.Task `json:"task"`
}

// DelayQueue 将批量检查任务放入 Redis 有序集合，score 为到期毫秒时间戳。
// 语义：任务被 pop 后即视为已消费，handler 失败不会重新入队。
type DelayQueue struct {
	rdb   *rd.Client
	key   string
	clock clockwork.Clock
	poll  time.Duration
	log   *zap.Logger
}

var _ batch.Scheduler = (*DelayQueue)(nil)

func NewDelayQueue(rdb *rd.Client, key string, clk clockwork.Clock, poll time.Duration, log *zap.Logger) *DelayQueue {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	if log == nil {
		log = zap.NewNop()
	}
	if poll <= 0 {
		poll = 250 * time.Millisecond
	}
	return &DelayQueue{rdb: rdb, key: key, clock: clk, poll: poll, log: log.Named("delay_queue")}
}

func (q *DelayQueue) Schedule(ctx context.Context, delay time.Duration, task batch.Task) error {
	member, err := encodeTask(uuid.NewString(), task)
	if err != nil {
		return err
	}
	return sredis.PushDelayed(ctx, q.rdb, q.key, member, q.clock.Now().Add(delay))
}

// Run polls for due tasks until ctx is cancelled.
func (q *DelayQueue) Run(ctx context.Context, handle batch.Handler) {
	q.log.Info("delay queue started", zap.String("key", q.key), zap.Duration("poll", q.poll))
	backoff := q.poll
	for {
		if ctx.Err() != nil {
			q.log.Info("delay queue stopped")
			return
		}

		n, err := q.drain(ctx, handle)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				continue
			}
			q.log.Warn("pop due tasks", zap.Error(err), zap.Duration("retry_in", backoff))
			sleep(ctx, backoff)
			backoff = min(backoff*2, 5*time.Second)
			continue
		case n == popLimit:
			// 可能还有积压，立即再取
			backoff = q.poll
			continue
		}
		backoff = q.poll
		sleep(ctx, q.poll)
	}
}

// drain pops one batch of due tasks and handles them in order.
func (q *DelayQueue) drain(ctx context.Context, handle batch.Handler) (int, error) {
	items, err := sredis.PopDue(ctx, q.rdb, q.key, q.clock.Now(), popLimit)
	if err != nil {
		return 0, err
	}
	for _, item := range items {
		task, err := decodeTask(item)
		if err != nil {
			// 脏消息直接丢弃，避免阻塞队列
			q.log.Error("drop malformed task", zap.String("member", item), zap.Error(err))
			continue
		}
		q.dispatch(ctx, handle, task)
	}
	return len(items), nil
}

func (q *DelayQueue) dispatch(ctx context.Context, handle batch.Handler, task batch.Task) {
	defer func() {
		if r := recover(); r != nil {
			q.log.Error("batch task panicked",
				zap.String("customer_email", task.CustomerEmail),
				zap.String("order", task.OrderUniqueID),
				zap.Any("panic", r))
		}
	}()
	handle(context.WithoutCancel(ctx), task)
}

func encodeTask(id string, task batch.Task) (string, error) {
	b, err := json.Marshal(envelope{ID: id, Task: task})
	if err != nil {
		return "", errors.Wrap(err, "encode task")
	}
	return string(b), nil
}

func decodeTask(member string) (batch.Task, error) {
	var env envelope
	if err := json.Unmarshal([]byte(member), &env); err != nil {
		return batch.Task{}, errors.Wrap(err, "decode task")
	}
	if env.Task.CustomerEmail == "" {
		return batch.Task{}, fmt.Errorf("task %s has no customer_email", env.ID)
	}
	return env.Task, nil
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
