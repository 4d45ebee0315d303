package lease

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0`)

	renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
)

// Redis shares claims between processes through SET NX PX. Renew and Release
// compare the stored owner before touching the key.
type Redis struct {
	client *redis.Client
	prefix string
}

func NewRedis(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = "roundtable:lease:"
	}
	return &Redis{client: client, prefix: prefix}
}

// Dial connects to addr and verifies the server answers.
func Dial(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

func (r *Redis) Acquire(ctx context.Context, key, owner string, ttl time.Duration) error {
	err := r.client.SetArgs(ctx, r.prefix+key, owner, redis.SetArgs{Mode: "NX", TTL: ttl}).Err()
	if errors.Is(err, redis.Nil) {
		cur, getErr := r.client.Get(ctx, r.prefix+key).Result()
		if getErr == nil && cur == owner {
			return r.Renew(ctx, key, owner, ttl)
		}
		return ErrHeld
	}
	return err
}

func (r *Redis) Renew(ctx context.Context, key, owner string, ttl time.Duration) error {
	n, err := renewScript.Run(ctx, r.client, []string{r.prefix + key}, owner, ttl.Milliseconds()).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}

func (r *Redis) Release(ctx context.Context, key, owner string) error {
	return releaseScript.Run(ctx, r.client, []string{r.prefix + key}, owner).Err()
}
