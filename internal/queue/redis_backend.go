package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "contesthub:queue:"

func redisJobKey(id string) string      { return redisKeyPrefix + "job:" + id }
func redisDueKey(name string) string    { return redisKeyPrefix + "due:" + name }
func redisFailedKey(name string) string { return redisKeyPrefix + "failed:" + name }

// reserveAttempts bounds how often Reserve retries after losing a race for
// the head of the schedule to another worker.
const reserveAttempts = 5

// RedisBackend stores each job as a JSON string and its schedule in a sorted
// set scored by due time in milliseconds. ZREM decides which worker owns a
// due job, so several processes can share one queue.
type RedisBackend struct {
	client *redis.Client
}

// NewRedisBackend takes ownership of client.
func NewRedisBackend(client *redis.Client) *RedisBackend {
	return &RedisBackend{client: client}
}

func (b *RedisBackend) Schedule(ctx context.Context, job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job %s: %w", job.ID, err)
	}

	pipe := b.client.TxPipeline()
	pipe.Set(ctx, redisJobKey(job.ID), data, 0)
	pipe.ZAdd(ctx, redisDueKey(job.Name), redis.Z{Score: float64(job.DueAt.UnixMilli()), Member: job.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", job.ID, err)
	}
	return nil
}

func (b *RedisBackend) Reserve(ctx context.Context, name string, now time.Time) (*Job, error) {
	for i := 0; i < reserveAttempts; i++ {
		ids, err := b.client.ZRangeByScore(ctx, redisDueKey(name), &redis.ZRangeBy{
			Min:   "-inf",
			Max:   strconv.FormatInt(now.UnixMilli(), 10),
			Count: 1,
		}).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read %s schedule: %w", name, err)
		}
		if len(ids) == 0 {
			return nil, nil
		}

		removed, err := b.client.ZRem(ctx, redisDueKey(name), ids[0]).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to claim job %s: %w", ids[0], err)
		}
		if removed == 0 {
			// Another worker claimed it first.
			continue
		}

		job, err := b.get(ctx, ids[0])
		if errors.Is(err, ErrJobNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		job.State = StateActive
		if err := b.put(ctx, job); err != nil {
			return nil, err
		}
		return &job, nil
	}
	return nil, nil
}

func (b *RedisBackend) Finish(ctx context.Context, job Job) error {
	if err := b.put(ctx, job); err != nil {
		return err
	}
	if job.State == StateFailed {
		if err := b.client.SAdd(ctx, redisFailedKey(job.Name), job.ID).Err(); err != nil {
			return fmt.Errorf("failed to retain job %s: %w", job.ID, err)
		}
	}
	return nil
}

func (b *RedisBackend) Delete(ctx context.Context, id string) error {
	job, err := b.get(ctx, id)
	if errors.Is(err, ErrJobNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	pipe := b.client.TxPipeline()
	pipe.ZRem(ctx, redisDueKey(job.Name), id)
	pipe.SRem(ctx, redisFailedKey(job.Name), id)
	pipe.Del(ctx, redisJobKey(id))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete job %s: %w", id, err)
	}
	return nil
}

func (b *RedisBackend) Cancel(ctx context.Context, id string) (bool, error) {
	job, err := b.get(ctx, id)
	if errors.Is(err, ErrJobNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if job.State != StatePending {
		return false, nil
	}

	removed, err := b.client.ZRem(ctx, redisDueKey(job.Name), id).Result()
	if err != nil {
		return false, fmt.Errorf("failed to cancel job %s: %w", id, err)
	}
	if removed == 0 {
		// A worker reserved it in the meantime.
		return false, nil
	}
	if err := b.client.Del(ctx, redisJobKey(id)).Err(); err != nil {
		return true, fmt.Errorf("failed to delete cancelled job %s: %w", id, err)
	}
	return true, nil
}

func (b *RedisBackend) Failed(ctx context.Context, name string) ([]Job, error) {
	ids, err := b.client.SMembers(ctx, redisFailedKey(name)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list failed %s jobs: %w", name, err)
	}

	jobs := make([]Job, 0, len(ids))
	for _, id := range ids {
		job, err := b.get(ctx, id)
		if err != nil {
			// Skip jobs that couldn't be retrieved
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (b *RedisBackend) Close() error {
	return b.client.Close()
}

func (b *RedisBackend) get(ctx context.Context, id string) (Job, error) {
	data, err := b.client.Get(ctx, redisJobKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Job{}, ErrJobNotFound
		}
		return Job{}, fmt.Errorf("failed to get job %s: %w", id, err)
	}
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return Job{}, fmt.Errorf("failed to unmarshal job %s: %w", id, err)
	}
	return job, nil
}

func (b *RedisBackend) put(ctx context.Context, job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job %s: %w", job.ID, err)
	}
	if err := b.client.Set(ctx, redisJobKey(job.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save job %s: %w", job.ID, err)
	}
	return nil
}
