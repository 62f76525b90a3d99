// Package counter wraps the fast key-value store used for attempt counters
// and the refresh allow-list. Every call is bounded by a per-operation
// timeout and every transport failure is reported as ErrUnavailable.
package counter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrUnavailable indicates the store could not be reached or did not answer
// in time.
var ErrUnavailable = errors.New("counter store unavailable")

const defaultTimeout = 500 * time.Millisecond

// incrWithin increments KEYS[1] and arms its expiry on the first hit of a
// window, or when a previous writer left the key without one.
var incrWithin = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 or redis.call('PTTL', KEYS[1]) < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return n
`)

type Config struct {
	KeyPrefix string
	Timeout   time.Duration
}

// Client is safe for concurrent use.
type Client struct {
	redis   redis.UniversalClient
	prefix  string
	timeout time.Duration
}

func New(rdb redis.UniversalClient, cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		redis:   rdb,
		prefix:  strings.TrimSuffix(cfg.KeyPrefix, ":"),
		timeout: timeout,
	}
}

// Key joins parts under the configured prefix.
func (c *Client) Key(parts ...string) string {
	key := strings.Join(parts, ":")
	if c.prefix == "" {
		return key
	}
	return c.prefix + ":" + key
}

func (c *Client) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, c.timeout)
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// IncrWithin increments key and returns the new value. The key expires
// window after the first increment; later increments do not extend it.
func (c *Client) IncrWithin(ctx context.Context, key string, window time.Duration) (int64, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()

	n, err := incrWithin.Run(ctx, c.redis, []string{key}, window.Milliseconds()).Int64()
	if err != nil {
		return 0, unavailable(err)
	}
	return n, nil
}

// Count returns the integer at key, or zero when it is absent.
func (c *Client) Count(ctx context.Context, key string) (int64, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()

	n, err := c.redis.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, unavailable(err)
	}
	if n < 0 {
		return 0, nil
	}
	return n, nil
}

// Remaining returns the time left before key expires. Absent keys and keys
// without expiry report zero.
func (c *Client) Remaining(ctx context.Context, key string) (time.Duration, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()

	d, err := c.redis.PTTL(ctx, key).Result()
	if err != nil {
		return 0, unavailable(err)
	}
	if d < 0 {
		return 0, nil
	}
	return d, nil
}

// SetEX stores value under key with a time-to-live in a single command.
func (c *Client) SetEX(ctx context.Context, key, value string, ttl time.Duration) error {
	ctx, cancel := c.bound(ctx)
	defer cancel()

	if err := c.redis.Set(ctx, key, value, ttl).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// Get returns the value at key and whether it was present.
func (c *Client) Get(ctx context.Context, key string) (string, bool, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()

	v, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, unavailable(err)
	}
	return v, true, nil
}

// Take reads and deletes key atomically. Of any number of concurrent callers
// at most one observes the value.
func (c *Client) Take(ctx context.Context, key string) (string, bool, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()

	v, err := c.redis.GetDel(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, unavailable(err)
	}
	return v, true, nil
}

// Del removes keys. Missing keys are not an error.
func (c *Client) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	ctx, cancel := c.bound(ctx)
	defer cancel()

	if err := c.redis.Del(ctx, keys...).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// Ping checks connectivity and returns the round-trip latency.
func (c *Client) Ping(ctx context.Context) (time.Duration, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()

	start := time.Now()
	if err := c.redis.Ping(ctx).Err(); err != nil {
		return 0, unavailable(err)
	}
	return time.Since(start), nil
}
