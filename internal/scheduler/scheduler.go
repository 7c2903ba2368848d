// Package scheduler runs recurring maintenance jobs for the concierge,
// currently the pruning of abandoned guided-review dialogues.
package scheduler

import (
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Scheduler wraps a cron runner using the standard 5-field syntax
// (minute, hour, day of month, month, day of week). Panicking jobs are
// recovered so one bad run does not kill the runner.
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler creates and starts the cron runner.
func NewScheduler() *Scheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	runner := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	runner.Start()
	return &Scheduler{cron: runner}
}

// AddJob registers a task under the given cron expression. Invalid
// expressions are rejected before anything is scheduled.
func (s *Scheduler) AddJob(expr string, task func()) error {
	id, err := s.cron.AddFunc(expr, task)
	if err != nil {
		return err
	}
	slog.Debug("Scheduler job registered", "entry_id", id, "schedule", expr)
	return nil
}

// Stop halts the runner. Jobs already in flight run to completion.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}
