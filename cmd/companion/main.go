package main

import (
	"context"
	"database/sql"
	"time"

	"bw-companion/internal/constants"
	fxmodules "bw-companion/internal/fx"
	"bw-companion/internal/tracker"

	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

func main() {
	fx.New(
		fxmodules.Module,
		fx.Invoke(runTracker),
	).Run()
}

func runTracker(
	lc fx.Lifecycle,
	t *tracker.Tracker,
	db *sql.DB,
	logger zerolog.Logger,
) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				t.Run(ctx)
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			logger.Info().Msg("shutting down")
			cancel()
			select {
			case <-done:
			case <-time.After(constants.ShutdownTimeout):
				logger.Warn().Msg("tracker did not stop in time")
			}
			if err := db.Close(); err != nil {
				logger.Warn().Err(err).Msg("error closing database connection")
			}
			logger.Info().Msg("stopped gracefully")
			return nil
		},
	})
}
