package config

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/annotation-sync/internal/transport"
)

// Resources bundles the external connections used by the process so that
// their lifecycle can be managed in a single place.
type Resources struct {
	HTTP  *http.Client
	Redis *redis.Client
	cfg   Config
}

// NewResources builds all external dependencies using the provided
// configuration. Redis is only dialled when an address is configured.
func NewResources(ctx context.Context, cfg Config) (*Resources, error) {
	res := &Resources{
		HTTP: transport.NewClient(),
		cfg:  cfg,
	}
	if cfg.RedisEnabled() {
		res.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	}

	if err := res.HealthCheck(ctx); err != nil {
		res.Close()
		return nil, err
	}

	return res, nil
}

// HealthCheck verifies that all dependencies are reachable.
func (r *Resources) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if r.Redis != nil {
		if err := r.Redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis healthcheck failed: %w", err)
		}
	}

	return nil
}

// Close disposes all active connections.
func (r *Resources) Close() {
	if r.Redis != nil {
		_ = r.Redis.Close()
	}
	if r.HTTP != nil {
		r.HTTP.CloseIdleConnections()
	}
}
