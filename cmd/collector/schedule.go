package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/gorhill/cronexpr"

	"github.com/aluiziolira/go-scrape-fuel/client"
	"github.com/aluiziolira/go-scrape-fuel/config"
)

// runScheduled repeats runOnce on the configured cron schedule until the
// context is canceled. A failed run is logged and remembered in the exit
// code but does not stop the scheduler.
func runScheduled(ctx context.Context, cfg *config.Config, metrics *client.Metrics) int {
	expr, err := cronexpr.Parse(cfg.Schedule)
	if err != nil {
		slog.Error("invalid schedule",
			slog.String("schedule", cfg.Schedule),
			slog.Any("error", err),
		)
		return 1
	}

	slog.Info("running on schedule", slog.String("schedule", cfg.Schedule))

	exit := 0
	for {
		next := expr.Next(time.Now())
		if next.IsZero() {
			slog.Error("schedule has no future run", slog.String("schedule", cfg.Schedule))
			return exit
		}
		slog.Info("next run scheduled", slog.Time("at", next))

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			slog.Info("scheduler stopped")
			return exit
		case <-timer.C:
		}

		if code := runOnce(ctx, cfg, metrics); code != 0 {
			exit = code
		}
		if ctx.Err() != nil {
			return exit
		}
	}
}
