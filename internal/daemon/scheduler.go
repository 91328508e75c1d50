package daemon

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Scheduler triggers periodic rebuilds so remote source changes are picked up
// even without a webhook.
type Scheduler struct {
	scheduler gocron.Scheduler
	interval  time.Duration
}

// NewScheduler creates a scheduler that fires a rebuild trigger every interval.
func NewScheduler(interval time.Duration, target Triggerer) (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create gocron scheduler: %w", err)
	}

	_, err = s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			if !target.Trigger(TriggerSchedule) {
				slog.Debug("Scheduled rebuild skipped, run already pending")
			}
		}),
		gocron.WithName("periodic-rebuild"),
	)
	if err != nil {
		return nil, fmt.Errorf("create periodic rebuild job: %w", err)
	}

	return &Scheduler{scheduler: s, interval: interval}, nil
}

// Start begins the schedule.
func (s *Scheduler) Start() {
	slog.Info("Starting periodic rebuilds", slog.Duration("interval", s.interval))
	s.scheduler.Start()
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() error {
	return s.scheduler.Shutdown()
}
