package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"gatherly/internal/models"
)

// Config настройки подключения к Redis/Valkey
type Config struct {
	Addr      string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password  string        `env:"REDIS_PASSWORD"`
	DB        int           `env:"REDIS_DB" envDefault:"0"`
	KeyPrefix string        `env:"REDIS_KEY_PREFIX" envDefault:"gatherly:"`
	LockTTL   time.Duration `env:"REDIS_LOCK_TTL" envDefault:"1m"`
}

// RedisClient caches purchase results and provides the scheduler's distributed lock.
type RedisClient struct {
	client  redis.UniversalClient
	prefix  string
	lockTTL time.Duration
}

func NewRedisClient(cfg Config) (*RedisClient, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		DialTimeout:  5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return newRedisClient(rdb, cfg), nil
}

func newRedisClient(rdb redis.UniversalClient, cfg Config) *RedisClient {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = time.Minute
	}
	return &RedisClient{
		client:  rdb,
		prefix:  cfg.KeyPrefix,
		lockTTL: cfg.LockTTL,
	}
}

func (r *RedisClient) purchaseKey(key string) string {
	return r.prefix + "purchase:" + key
}

// GetPurchase returns nil, nil on a cache miss.
func (r *RedisClient) GetPurchase(ctx context.Context, key string) (*models.PurchaseResponse, error) {
	raw, err := r.client.Get(ctx, r.purchaseKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("cache lookup error: %w", err)
	}

	var resp models.PurchaseResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("invalid cached purchase: %w", err)
	}
	return &resp, nil
}

func (r *RedisClient) SetPurchase(ctx context.Context, key string, resp *models.PurchaseResponse, ttl time.Duration) error {
	raw, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.purchaseKey(key), raw, ttl).Err(); err != nil {
		return fmt.Errorf("cache write error: %w", err)
	}
	return nil
}

// ErrLockHeld is returned when another worker holds the job lock.
var ErrLockHeld = errors.New("lock held by another worker")

// Lock implements gocron.Locker so a job runs on one worker at a time.
func (r *RedisClient) Lock(ctx context.Context, key string) (gocron.Lock, error) {
	token := uuid.NewString()
	lockKey := r.prefix + "lock:" + key

	ok, err := r.client.SetNX(ctx, lockKey, token, r.lockTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return &redisLock{client: r.client, key: lockKey, token: token}, nil
}

// unlockScript deletes the key only if it still holds our token.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type redisLock struct {
	client redis.UniversalClient
	key    string
	token  string
}

func (l *redisLock) Unlock(ctx context.Context) error {
	return unlockScript.Run(ctx, l.client, []string{l.key}, l.token).Err()
}

func (r *RedisClient) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisClient) Close() error {
	return r.client.Close()
}
