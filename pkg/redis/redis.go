package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lojamoda/storefront-auth/config"
	"github.com/lojamoda/storefront-auth/pkg/logger"
	"github.com/redis/go-redis/v9"
)

const blacklistPrefix = "auth:revoked:"

// Connect opens a client and pings it.
func Connect(cfg *config.RedisConfig) (*redis.Client, error) {
	logger.Info("Initializing Redis connection", map[string]interface{}{
		"host": cfg.Host,
		"port": cfg.Port,
		"db":   cfg.DB,
	})

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		logger.Error("Failed to connect to Redis", err, map[string]interface{}{
			"host": cfg.Host,
			"port": cfg.Port,
		})
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Redis connection established successfully")
	return client, nil
}

// Blacklist records revoked access tokens by jti until they would have expired anyway.
type Blacklist interface {
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

type redisBlacklist struct {
	client redis.Cmdable
}

func NewBlacklist(client redis.Cmdable) Blacklist {
	return &redisBlacklist{client: client}
}

func (b *redisBlacklist) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		// Already expired, nothing to remember.
		return nil
	}
	if err := b.client.Set(ctx, blacklistPrefix+tokenID, "revoked", ttl).Err(); err != nil {
		logger.Error("Failed to blacklist token", err)
		return err
	}
	logger.Debug("Token blacklisted", map[string]interface{}{
		"ttl": ttl.String(),
	})
	return nil
}

func (b *redisBlacklist) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	_, err := b.client.Get(ctx, blacklistPrefix+tokenID).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		logger.Error("Failed to check token blacklist", err)
		return false, err
	}
	return true, nil
}

// NopBlacklist is used when Redis is not configured. Logout then only clears
// the cookie and tokens stay valid until they expire.
type NopBlacklist struct{}

func (NopBlacklist) Revoke(context.Context, string, time.Duration) error { return nil }

func (NopBlacklist) IsRevoked(context.Context, string) (bool, error) { return false, nil }
