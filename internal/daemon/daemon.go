// Package daemon runs the pipeline continuously, triggered by source changes,
// a periodic schedule, or webhook requests.
//
// Triggers are coalesced: while a run is in flight, any number of further
// triggers collapse into at most one pending run. A later run always publishes
// a newer build, so dropping intermediate triggers loses nothing.
package daemon

import (
	"context"
	stderrors "errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"git.home.luguber.info/inful/sitepub/internal/config"
	"git.home.luguber.info/inful/sitepub/internal/errors"
	"git.home.luguber.info/inful/sitepub/internal/history"
	"git.home.luguber.info/inful/sitepub/internal/logfields"
	"git.home.luguber.info/inful/sitepub/internal/notify"
	"git.home.luguber.info/inful/sitepub/internal/pipeline"
	"git.home.luguber.info/inful/sitepub/internal/retry"
)

// Trigger identifies why a run started.
const (
	TriggerManual   = "manual"
	TriggerWatch    = "watch"
	TriggerSchedule = "schedule"
	TriggerWebhook  = "webhook"
	TriggerRetry    = "retry"
)

// Runner executes one pipeline run. Satisfied by *pipeline.Pipeline.
type Runner interface {
	Run(ctx context.Context, trigger string) (*pipeline.PublishSummary, error)
}

// Daemon coordinates triggers, runs, and the HTTP surface.
type Daemon struct {
	cfg      *config.Config
	runner   Runner
	store    history.Store
	notifier notify.Notifier
	policy   retry.Policy
	metricsH http.Handler

	triggers chan string

	mu        sync.RWMutex
	startTime time.Time
	running   bool
	lastRun   *RunStatus
}

// RunStatus is the daemon's view of the most recent run.
type RunStatus struct {
	RunID      string    `json:"run_id"`
	Trigger    string    `json:"trigger"`
	Outcome    string    `json:"outcome"`
	Revision   string    `json:"revision,omitempty"`
	NoChange   bool      `json:"no_change"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Option customizes a Daemon.
type Option func(*Daemon)

func WithRunner(r Runner) Option            { return func(d *Daemon) { d.runner = r } }
func WithStore(s history.Store) Option      { return func(d *Daemon) { d.store = s } }
func WithNotifier(n notify.Notifier) Option { return func(d *Daemon) { d.notifier = n } }
func WithRetryPolicy(p retry.Policy) Option { return func(d *Daemon) { d.policy = p } }

// WithMetricsHTTP exposes h on the server's /metrics endpoint.
func WithMetricsHTTP(h http.Handler) Option { return func(d *Daemon) { d.metricsH = h } }

// New creates a daemon for the configuration.
func New(cfg *config.Config, opts ...Option) (*Daemon, error) {
	d := &Daemon{
		cfg:      cfg,
		store:    history.NoopStore{},
		notifier: notify.NoopNotifier{},
		policy:   retry.DefaultPolicy(),
		triggers: make(chan string, 1),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.runner == nil {
		d.runner = pipeline.New(cfg)
	}
	return d, nil
}

// Trigger requests a run. Returns false if a run was already pending; the
// pending run will pick up the same state, so the caller needs no retry.
func (d *Daemon) Trigger(reason string) bool {
	select {
	case d.triggers <- reason:
		return true
	default:
		return false
	}
}

// Run starts the trigger sources and processes runs until ctx is canceled.
func (d *Daemon) Run(ctx context.Context) error {
	d.mu.Lock()
	d.startTime = time.Now()
	d.running = true
	d.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup

	if d.cfg.Daemon.WatchEnabled() && d.cfg.Source.Path != "" {
		watcher, err := NewSourceWatcher(d.cfg.Source.Path, d.cfg.Daemon.DebounceDuration(), d)
		if err != nil {
			return errors.WrapError(err, errors.CategoryDaemon, "source watcher start failed")
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			watcher.Watch(ctx)
		}()
	}

	if interval := d.cfg.Daemon.IntervalDuration(); interval > 0 {
		scheduler, err := NewScheduler(interval, d)
		if err != nil {
			return errors.WrapError(err, errors.CategoryDaemon, "scheduler start failed")
		}
		scheduler.Start()
		defer func() {
			if err := scheduler.Stop(); err != nil {
				slog.Warn("Scheduler shutdown failed", logfields.Error(err))
			}
		}()
	}

	if d.cfg.Daemon.Listen != "" {
		server := NewServer(d.cfg.Daemon.Listen, d)
		if d.metricsH != nil {
			server.WithMetricsHandler(d.metricsH)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := server.Serve(ctx); err != nil {
				slog.Error("HTTP server stopped", logfields.Error(err))
			}
		}()
	}

	slog.Info("Daemon started",
		slog.String("listen", d.cfg.Daemon.Listen),
		slog.Bool("watch", d.cfg.Daemon.WatchEnabled()),
		slog.String("interval", d.cfg.Daemon.Interval))

	// Initial run so a fresh daemon publishes current state without waiting
	// for a trigger.
	d.Trigger(TriggerManual)

	err := d.loop(ctx)

	d.mu.Lock()
	d.running = false
	d.mu.Unlock()

	wg.Wait()
	return err
}

func (d *Daemon) loop(ctx context.Context) error {
	retries := 0
	var retryTimer *time.Timer
	defer func() {
		if retryTimer != nil {
			retryTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case reason := <-d.triggers:
			err := d.runOnce(ctx, reason)
			switch {
			case err == nil:
				retries = 0
			case errors.IsRetryable(err) && !d.policy.Exhausted(retries):
				retries++
				delay := d.policy.Delay(retries)
				slog.Warn("Run failed on retryable error, scheduling retry",
					slog.Int("attempt", retries),
					slog.Duration("delay", delay),
					logfields.Error(err))
				if retryTimer != nil {
					retryTimer.Stop()
				}
				retryTimer = time.AfterFunc(delay, func() {
					d.Trigger(TriggerRetry)
				})
			default:
				retries = 0
				slog.Error("Run failed", logfields.Error(err))
			}
		}
	}
}

// runOnce executes one pipeline run and records the result.
func (d *Daemon) runOnce(ctx context.Context, trigger string) error {
	started := time.Now()
	summary, err := d.runner.Run(ctx, trigger)

	status := &RunStatus{
		Trigger:    trigger,
		StartedAt:  started,
		FinishedAt: time.Now(),
	}
	record := history.Record{
		Trigger:    trigger,
		StartedAt:  started,
		DurationMS: time.Since(started).Milliseconds(),
	}
	event := notify.RunEvent{Trigger: trigger}

	if err != nil {
		outcome := "failed"
		// A run aborted by shutdown is not a failure.
		if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
			outcome = "canceled"
		}
		status.Outcome = outcome
		status.Error = err.Error()
		record.Outcome = outcome
		record.Error = err.Error()
		event.Outcome = outcome
		event.Error = err.Error()
	} else {
		status.RunID = summary.RunID
		status.Outcome = summary.Report.Outcome
		status.Revision = summary.Revision
		status.NoChange = summary.NoChange
		record.RunID = summary.RunID
		record.Outcome = summary.Report.Outcome
		record.Revision = summary.Revision
		record.NoChange = summary.NoChange
		event.RunID = summary.RunID
		event.Outcome = summary.Report.Outcome
		event.Ref = summary.Ref
		event.Revision = summary.Revision
		event.NoChange = summary.NoChange
	}

	d.mu.Lock()
	d.lastRun = status
	d.mu.Unlock()

	if storeErr := d.store.RecordRun(ctx, record); storeErr != nil {
		slog.Warn("Failed to record run history", logfields.Error(storeErr))
	}
	if notifyErr := d.notifier.NotifyRun(ctx, event); notifyErr != nil {
		slog.Warn("Failed to publish run event", logfields.Error(notifyErr))
	}

	return err
}

// Status returns the daemon's current state.
func (d *Daemon) Status() DaemonStatus {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status := DaemonStatus{
		Running:   d.running,
		StartTime: d.startTime,
		LastRun:   d.lastRun,
	}
	if d.running {
		status.Uptime = time.Since(d.startTime).Round(time.Second).String()
	}
	return status
}

// DaemonStatus is the JSON body of the status endpoint.
type DaemonStatus struct {
	Running   bool             `json:"running"`
	StartTime time.Time        `json:"start_time"`
	Uptime    string           `json:"uptime,omitempty"`
	LastRun   *RunStatus       `json:"last_run,omitempty"`
	Recent    []history.Record `json:"recent,omitempty"`
}
