package services

import (
	"context"

	"github.com/wavecast/broadcast-gateway/pkg/redis"
)

// HealthService answers liveness probes: the API is healthy when its
// Redis backbone answers. The database is intentionally not probed
// here; reads degrade gracefully while dispatch is queue-driven.
type HealthService struct {
	adapter redis.RedisAdapter
}

func NewHealthService(adapter redis.RedisAdapter) *HealthService {
	return &HealthService{adapter: adapter}
}

func (s *HealthService) Check(ctx context.Context) error {
	return s.adapter.Client().Ping(ctx).Err()
}
