package router

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/storage/redis"

	"github.com/ManuelReschke/MarketFox/internal/pkg/config"
)

// limiterDatabase keeps rate limit counters apart from the cache and job keys.
const limiterDatabase = 1

// NewLimiterStorage returns Redis storage for the rate limiters when the
// cache driver is redis, nil otherwise.
func NewLimiterStorage(cfg *config.Config) fiber.Storage {
	if cfg.CacheDriver != "redis" {
		return nil
	}
	port, err := strconv.Atoi(cfg.CachePort)
	if err != nil {
		log.Warnf("[Router] Invalid CACHE_PORT %q, rate limits stay in memory", cfg.CachePort)
		return nil
	}
	return redis.New(redis.Config{
		Host:     cfg.CacheHost,
		Port:     port,
		Password: cfg.CachePassword,
		Database: limiterDatabase,
		Reset:    false,
	})
}
