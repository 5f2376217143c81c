package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisConfig struct {
	RedisHost     string
	RedisPort     int
	RedisPassword string
	RedisDB       int
}

type Redis struct {
	conn *redis.Client
}

func NewRedis(cfg RedisConfig) (*Redis, error) {
	conn := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.RedisHost, cfg.RedisPort),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	return &Redis{conn: conn}, nil
}

// NewRedisWithClient wraps an existing client (tests, custom dialers)
func NewRedisWithClient(client *redis.Client) *Redis {
	return &Redis{conn: client}
}

func (r *Redis) HealthCheck(ctx context.Context) error {
	return r.conn.Ping(ctx).Err()
}

func (r *Redis) GetClient() *redis.Client {
	return r.conn
}

func (r *Redis) Close() error {
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}

// SetNX sets key only when absent; reports whether it was set
func (r *Redis) SetNX(ctx context.Context, key, value string, expiration time.Duration) (bool, error) {
	return r.conn.SetNX(ctx, key, value, expiration).Result()
}

// compareAndDelete removes KEYS[1] only while it still holds ARGV[1]
var compareAndDelete = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// DeleteIfValue deletes key only if its value still equals value
func (r *Redis) DeleteIfValue(ctx context.Context, key, value string) (bool, error) {
	n, err := compareAndDelete.Run(ctx, r.conn, []string{key}, value).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
