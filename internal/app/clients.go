package app

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/platform/logger"
)

type Clients struct {
	// Redis is nil when REDIS_ADDR is unset; locks and job events then stay in-process.
	Redis goredis.UniversalClient
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config) (Clients, error) {
	if cfg.RedisAddr == "" {
		log.Warn("REDIS_ADDR not set; using in-process locks and no job event publishing")
		return Clients{}, nil
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return Clients{}, fmt.Errorf("redis ping %s: %w", cfg.RedisAddr, err)
	}
	log.Info("redis connected", "addr", cfg.RedisAddr)
	return Clients{Redis: rdb}, nil
}

func (c Clients) Close() {
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
}
