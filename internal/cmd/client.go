package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/gravitrone/kgeditor/internal/api"
	"github.com/gravitrone/kgeditor/internal/config"
)

const commandTimeout = 30 * time.Second

// session loads config and builds a client for one-shot commands.
func session(ctx context.Context) (context.Context, context.CancelFunc, *config.Config, *api.Client, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("not logged in: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	return ctx, cancel, cfg, NewClient(cfg), nil
}

// NewClient builds the API client described by cfg, throttled to its rate limit.
func NewClient(cfg *config.Config) *api.Client {
	return api.NewDefaultClient(cfg.ServerURL, cfg.Token, rateLimit(cfg))
}

func rateLimit(cfg *config.Config) api.Option {
	return api.WithRateLimit(cfg.RateLimit.PerSecond, cfg.RateLimit.Burst)
}
