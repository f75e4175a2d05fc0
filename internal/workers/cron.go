package workers

import (
	"log/slog"

	"github.com/robfig/cron/v3"
)

// NewCron returns a scheduler whose jobs recover from panics and never
// overlap with their previous run. Cron's own messages go to logger.
func NewCron(logger *slog.Logger) *cron.Cron {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	return cron.New(cron.WithChain(
		cron.Recover(cronLogger),
		cron.SkipIfStillRunning(cronLogger),
	))
}
