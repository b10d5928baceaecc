package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLocked is returned by Lock when another holder owns the key.
var ErrLocked = errors.New("cache: key is locked")

type Options struct {
	Addr        string
	Password    string
	User        string
	DB          int
	MaxRetries  int
	DialTimeout time.Duration
	Timeout     time.Duration
}

type Cache struct {
	Db *redis.Client
}

func New(ctx context.Context, opts Options) (*Cache, error) {
	const op = "cache.New"
	db := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		Username:     opts.User,
		MaxRetries:   opts.MaxRetries,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.Timeout,
		WriteTimeout: opts.Timeout,
	})

	if err := db.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Cache{Db: db}, nil
}

func (c *Cache) Close() error { return c.Db.Close() }

func (c *Cache) Get(ctx context.Context, key string, result any) (bool, error) {
	const op = "cache.Get"
	val, err := c.Db.Get(ctx, key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if err := json.Unmarshal([]byte(val), result); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return true, nil
}

func (c *Cache) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	jsonData, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.Db.Set(ctx, key, jsonData, expiration).Err()
}

func (c *Cache) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.Db.Del(ctx, keys...).Err()
}

// unlockScript deletes the key only when it still holds our token, so an
// expired lock re-acquired by someone else is left alone.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lock acquires key for ttl. The returned func releases it; calling it after
// the ttl elapsed is harmless.
func (c *Cache) Lock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	const op = "cache.Lock"
	token := uuid.NewString()
	ok, err := c.Db.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		return nil, ErrLocked
	}
	return func(ctx context.Context) error {
		return unlockScript.Run(ctx, c.Db, []string{key}, token).Err()
	}, nil
}

// FirstSeen records now under key unless a value is already there, and
// returns whichever time is stored.
func (c *Cache) FirstSeen(ctx context.Context, key string, now time.Time, ttl time.Duration) (time.Time, error) {
	const op = "cache.FirstSeen"
	if _, err := c.Db.SetNX(ctx, key, now.UnixMilli(), ttl).Result(); err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", op, err)
	}
	raw, err := c.Db.Get(ctx, key).Result()
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", op, err)
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", op, err)
	}
	return time.UnixMilli(ms), nil
}

// Seen returns the time stored by FirstSeen without recording one.
func (c *Cache) Seen(ctx context.Context, key string) (time.Time, bool, error) {
	raw, err := c.Db.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("cache.Seen: %w", err)
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("cache.Seen: %w", err)
	}
	return time.UnixMilli(ms), true, nil
}

// Forget drops a FirstSeen record.
func (c *Cache) Forget(ctx context.Context, key string) error {
	return c.Db.Del(ctx, key).Err()
}
