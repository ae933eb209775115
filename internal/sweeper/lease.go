package sweeper

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisLease implements the per-job run lock as a redis key with a TTL. The
// TTL bounds how long a crashed run can block the job; a live run releases
// on completion.
type RedisLease struct {
	client *redis.Client
	ttl    time.Duration
	holder string
}

func NewRedisLease(client *redis.Client, ttl time.Duration) *RedisLease {
	return &RedisLease{client: client, ttl: ttl, holder: uuid.NewString()}
}

func (l *RedisLease) Acquire(ctx context.Context, job string) (bool, error) {
	return l.client.SetNX(ctx, leaseKey(job), l.holder, l.ttl).Result()
}

// Release deletes the lease only if this instance still holds it, so a run
// that outlived its TTL cannot drop a successor's lease.
func (l *RedisLease) Release(ctx context.Context, job string) error {
	v, err := l.client.Get(ctx, leaseKey(job)).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return err
	}
	if v != l.holder {
		return nil
	}
	return l.client.Del(ctx, leaseKey(job)).Err()
}

func leaseKey(job string) string { return "sweep:lease:" + job }
