package ratelimit

import (
	"context"
	"fmt"
	"strings"

	"github.com/edgepulse/edgepulse/internal/config"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

var Module = fx.Module("rate.limit",
	fx.Provide(NewIngestLimiter),
)

const keyIngestTenant = "ingest:tenant:%s"

// IngestLimiter throttles submissions per tenant. Disabled unless
// configured; a nil limiter always allows.
type IngestLimiter struct {
	enabled bool

	bucket *TokenBucket

	tenantRate  float64
	tenantBurst int
}

func NewIngestLimiter(cfg config.Config) (*IngestLimiter, error) {
	if !cfg.RateLimitEnabled {
		return nil, nil
	}

	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil, fmt.Errorf("rate limit redis addr is required")
	}
	if cfg.IngestTenantRate <= 0 || cfg.IngestTenantBurst <= 0 {
		return nil, fmt.Errorf("ingest tenant rate limit must be positive")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	return &IngestLimiter{
		enabled:     true,
		bucket:      NewTokenBucket(client),
		tenantRate:  cfg.IngestTenantRate,
		tenantBurst: cfg.IngestTenantBurst,
	}, nil
}

func (l *IngestLimiter) Enabled() bool {
	return l != nil && l.enabled
}

func (l *IngestLimiter) AllowTenant(ctx context.Context, tenantID string) (bool, error) {
	if !l.Enabled() {
		return true, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyIngestTenant, strings.TrimSpace(tenantID)), l.tenantRate, l.tenantBurst)
}
