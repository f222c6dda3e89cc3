package lock

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Lock 结算互斥锁接口。
// TryLock 非阻塞：锁被占用时返回 false，调用方跳过本轮而不是等待。
type Lock interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
	Close() error
}

// Config 锁配置
type Config struct {
	Enabled    bool
	Prefix     string
	DefaultTTL time.Duration
	Redis      RedisConfig
}

// RedisConfig Redis 连接配置
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// New 根据配置创建锁实例。未启用时返回 NopLock（单实例模式，零开销）。
func New(config *Config) (Lock, error) {
	if !config.Enabled {
		return NewNopLock(), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Redis.Addr,
		Password: config.Redis.Password,
		DB:       config.Redis.DB,
		PoolSize: config.Redis.PoolSize,
	})
	return NewRedisLock(client, config.Prefix), nil
}

// NopLock 空实现（单实例模式）
type NopLock struct{}

func NewNopLock() *NopLock {
	return &NopLock{}
}

func (n *NopLock) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return true, nil
}

func (n *NopLock) Unlock(ctx context.Context, key string) error {
	return nil
}

func (n *NopLock) Close() error {
	return nil
}
