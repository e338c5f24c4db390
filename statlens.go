// Package statlens serves a bounded, live view of an upstream real-time
// statistics stream.
package statlens

import (
	"context"

	"github.com/utrack/statlens/internal/app"
	"github.com/utrack/statlens/internal/config"
	"go.uber.org/zap"
)

// Run loads configuration from the environment and serves until ctx is done.
func Run(ctx context.Context, logger *zap.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	rt, err := app.New(cfg, logger)
	if err != nil {
		return err
	}
	return rt.Run(ctx)
}
