package cache

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"

	"github.com/obafemi/settlecore/internal/pkg/env"
)

// Connect creates the Redis client used for fraud counters and short-lived
// operational state. The client is injected into consumers; the settlement
// ledger itself never depends on the cache.
func Connect() *redis.Client {
	host := env.GetEnv("CACHE_HOST", "localhost")
	port := env.GetEnv("CACHE_PORT", "6379")
	password := env.GetEnv("CACHE_PASSWORD", "")

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", host, port),
		Password: password,
		DB:       0,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		log.Warnf("cache unreachable at startup: %v", err)
	}
	return client
}
