package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Finished jobs stay inspectable for a week.
const finishedRetention = 7 * 24 * time.Hour

const redisPollInterval = 250 * time.Millisecond

// popScript atomically moves the oldest waiting job to the active list and
// grants it a lease.
var popScript = redis.NewScript(`
local id = redis.call('RPOPLPUSH', KEYS[1], KEYS[2])
if not id then return false end
redis.call('ZADD', KEYS[3], ARGV[1], id)
return id
`)

// reapScript requeues jobs whose lease deadline passed, ahead of waiting jobs.
var reapScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
for _, id in ipairs(ids) do
  redis.call('ZREM', KEYS[1], id)
  redis.call('LREM', KEYS[2], 0, id)
  redis.call('RPUSH', KEYS[3], id)
end
return ids
`)

// promoteScript moves due retries to the wait list.
var promoteScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
for _, id in ipairs(ids) do
  redis.call('ZREM', KEYS[1], id)
  redis.call('LPUSH', KEYS[2], id)
end
return #ids
`)

var removeScript = redis.NewScript(`
local removed = redis.call('LREM', KEYS[1], 0, ARGV[1])
removed = removed + redis.call('ZREM', KEYS[2], ARGV[1])
return removed
`)

// RedisBackend stores jobs as JSON documents with a wait list, an active list,
// a lease sorted set and a delayed sorted set, all under one key prefix.
type RedisBackend struct {
	client *redis.Client
	logger *slog.Logger
	prefix string
	now    func() time.Time
}

// NewRedisClient connects and pings the server.
func NewRedisClient(addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to reach redis at %s: %w", addr, err)
	}
	return client, nil
}

func NewRedisBackend(client *redis.Client, prefix string, logger *slog.Logger) *RedisBackend {
	if prefix == "" {
		prefix = "dokku-deployer"
	}
	return &RedisBackend{client: client, logger: logger, prefix: prefix + ":jobs:", now: time.Now}
}

func (b *RedisBackend) jobKey(id string) string { return b.prefix + "job:" + id }
func (b *RedisBackend) waitKey() string         { return b.prefix + "wait" }
func (b *RedisBackend) activeKey() string       { return b.prefix + "active" }
func (b *RedisBackend) leasesKey() string       { return b.prefix + "leases" }
func (b *RedisBackend) delayedKey() string      { return b.prefix + "delayed" }

func score(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func (b *RedisBackend) Push(ctx context.Context, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}
	_, err = b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, b.jobKey(job.ID), data, 0)
		pipe.LPush(ctx, b.waitKey(), job.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to push job %s: %w", job.ID, err)
	}
	return nil
}

func (b *RedisBackend) Pop(ctx context.Context, timeout, lease time.Duration) (*Job, error) {
	deadline := time.Now().Add(timeout)
	keys := []string{b.waitKey(), b.activeKey(), b.leasesKey()}

	for {
		id, err := popScript.Run(ctx, b.client, keys, score(b.now().Add(lease))).Text()
		switch {
		case err == nil:
			return b.markRunning(ctx, id)
		case !errors.Is(err, redis.Nil):
			return nil, fmt.Errorf("failed to pop job: %w", err)
		}

		wait := time.Until(deadline)
		if wait <= 0 {
			return nil, nil
		}
		if wait > redisPollInterval {
			wait = redisPollInterval
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (b *RedisBackend) markRunning(ctx context.Context, id string) (*Job, error) {
	job, err := b.Get(ctx, id)
	if err != nil {
		// A lease without a document cannot be processed; drop it.
		b.client.LRem(ctx, b.activeKey(), 0, id)
		b.client.ZRem(ctx, b.leasesKey(), id)
		return nil, fmt.Errorf("popped job %s is unreadable: %w", id, err)
	}
	job.Status = StatusRunning
	job.Attempts++
	job.StartedAt = b.now().UTC()
	job.RunAt = time.Time{}
	if err := b.save(ctx, b.client, job, 0); err != nil {
		return nil, err
	}
	return job, nil
}

func (b *RedisBackend) save(ctx context.Context, cmd redis.Cmdable, job *Job, ttl time.Duration) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}
	return cmd.Set(ctx, b.jobKey(job.ID), data, ttl).Err()
}

func (b *RedisBackend) Extend(ctx context.Context, id string, lease time.Duration) error {
	if err := b.client.ZScore(ctx, b.leasesKey(), id).Err(); err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrLeaseLost
		}
		return fmt.Errorf("failed to read lease of %s: %w", id, err)
	}
	member := redis.Z{Score: float64(b.now().Add(lease).UnixMilli()), Member: id}
	if err := b.client.ZAddXX(ctx, b.leasesKey(), member).Err(); err != nil {
		return fmt.Errorf("failed to extend lease of %s: %w", id, err)
	}
	return nil
}

func (b *RedisBackend) Complete(ctx context.Context, job *Job) error {
	return b.finish(ctx, job)
}

func (b *RedisBackend) Fail(ctx context.Context, job *Job) error {
	return b.finish(ctx, job)
}

func (b *RedisBackend) finish(ctx context.Context, job *Job) error {
	var saveErr error
	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		saveErr = b.save(ctx, pipe, job, finishedRetention)
		pipe.LRem(ctx, b.activeKey(), 0, job.ID)
		pipe.ZRem(ctx, b.leasesKey(), job.ID)
		return nil
	})
	if saveErr != nil {
		return saveErr
	}
	if err != nil {
		return fmt.Errorf("failed to finish job %s: %w", job.ID, err)
	}
	return nil
}

func (b *RedisBackend) Retry(ctx context.Context, job *Job, delay time.Duration) error {
	stored := job.clone()
	stored.Status = StatusQueued
	stored.RunAt = b.now().Add(delay).UTC()

	var saveErr error
	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		saveErr = b.save(ctx, pipe, stored, 0)
		pipe.LRem(ctx, b.activeKey(), 0, job.ID)
		pipe.ZRem(ctx, b.leasesKey(), job.ID)
		pipe.ZAdd(ctx, b.delayedKey(), redis.Z{Score: float64(stored.RunAt.UnixMilli()), Member: job.ID})
		return nil
	})
	if saveErr != nil {
		return saveErr
	}
	if err != nil {
		return fmt.Errorf("failed to schedule retry of %s: %w", job.ID, err)
	}
	return nil
}

func (b *RedisBackend) Remove(ctx context.Context, id string) error {
	removed, err := removeScript.Run(ctx, b.client, []string{b.waitKey(), b.delayedKey()}, id).Int()
	if err != nil {
		return fmt.Errorf("failed to remove job %s: %w", id, err)
	}

	job, err := b.Get(ctx, id)
	if err != nil {
		return err
	}
	if removed == 0 {
		return ErrJobNotCancellable
	}

	job.Status = StatusCancelled
	job.FinishedAt = b.now().UTC()
	return b.save(ctx, b.client, job, finishedRetention)
}

func (b *RedisBackend) Get(ctx context.Context, id string) (*Job, error) {
	data, err := b.client.Get(ctx, b.jobKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to load job %s: %w", id, err)
	}
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to decode job %s: %w", id, err)
	}
	return &job, nil
}

func (b *RedisBackend) Maintain(ctx context.Context) (int, error) {
	now := score(b.now())

	ids, err := reapScript.Run(ctx, b.client, []string{b.leasesKey(), b.activeKey(), b.waitKey()}, now).StringSlice()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("failed to reap stalled jobs: %w", err)
	}
	for _, id := range ids {
		job, err := b.Get(ctx, id)
		if err != nil {
			b.logger.Warn("Stalled job has no document", "job_id", id, "error", err)
			continue
		}
		job.Status = StatusQueued
		if err := b.save(ctx, b.client, job, 0); err != nil {
			b.logger.Warn("Failed to mark stalled job as queued", "job_id", id, "error", err)
		}
	}

	if err := promoteScript.Run(ctx, b.client, []string{b.delayedKey(), b.waitKey()}, now).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return len(ids), fmt.Errorf("failed to promote delayed jobs: %w", err)
	}
	return len(ids), nil
}

func (b *RedisBackend) Close() error {
	return b.client.Close()
}
