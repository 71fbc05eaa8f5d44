package infra_redis_queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/ekuzmich/collabrun/internal/model"
	"github.com/redis/go-redis/v9"
)

// Queue is a redis list job queue. Enqueue pushes JSON jobs onto the pending
// list; Claim atomically moves one onto the claiming consumer's processing
// list, so a job survives a worker crash and can be requeued by Reclaim.
// Delivery is at-least-once: clients deduplicate results by job id.
type Queue struct {
	rdb  *redis.Client
	name string
}

func New(rdb *redis.Client, name string) *Queue {
	return &Queue{rdb: rdb, name: name}
}

func (q *Queue) pendingKey() string { return q.name + ":pending" }

func (q *Queue) processingKey(consumer string) string {
	return q.name + ":processing:" + consumer
}

func (q *Queue) Enqueue(ctx context.Context, job model.ExecutionJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.rdb.LPush(ctx, q.pendingKey(), data).Err()
}

// Claim blocks until a job is available and moves it to the consumer's
// processing list in one step. Returns the job and its raw payload; the
// payload is what Ack removes.
func (q *Queue) Claim(ctx context.Context, consumer string) (model.ExecutionJob, []byte, error) {
	var job model.ExecutionJob
	raw, err := q.rdb.BLMove(ctx, q.pendingKey(), q.processingKey(consumer), "RIGHT", "LEFT", 0).Result()
	if err != nil {
		return job, nil, err
	}
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		// Malformed payloads cannot be processed; drop the claim so the
		// processing list does not accumulate garbage.
		q.rdb.LRem(ctx, q.processingKey(consumer), 1, raw)
		return job, nil, err
	}
	return job, []byte(raw), nil
}

func (q *Queue) Ack(ctx context.Context, consumer string, payload []byte) error {
	return q.rdb.LRem(ctx, q.processingKey(consumer), 1, payload).Err()
}

// Reclaim pushes everything left on a consumer's processing list back onto
// the pending list. Run on worker start so jobs claimed by a crashed
// predecessor with the same consumer name are not lost.
func (q *Queue) Reclaim(ctx context.Context, consumer string) (int, error) {
	moved := 0
	for {
		err := q.rdb.LMove(ctx, q.processingKey(consumer), q.pendingKey(), "RIGHT", "LEFT").Err()
		if errors.Is(err, redis.Nil) {
			return moved, nil
		}
		if err != nil {
			return moved, err
		}
		moved++
	}
}

func (q *Queue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.pendingKey()).Result()
}

// WaitEmpty polls until the pending list drains or the context expires.
// Used by integration tests only.
func (q *Queue) WaitEmpty(ctx context.Context) error {
	for {
		n, err := q.Len(ctx)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}
