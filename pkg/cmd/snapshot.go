package cmd

import (
	"context"
	"log/slog"

	"github.com/cryptodashboard/reportgen/pkg/market"
)

// NewSnapshotSource connects to the market snapshot cache. An empty redisURL
// disables real-time data and returns a nil source.
func NewSnapshotSource(ctx context.Context, logger *slog.Logger, redisURL string, cfg market.Config) (*market.RedisSource, error) {
	if redisURL == "" {
		logger.Info("market snapshot cache disabled")

		return nil, nil
	}

	return market.NewRedisSource(ctx, logger, redisURL, cfg)
}
