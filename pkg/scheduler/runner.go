package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/venkytv/meeting-reminder/internal/models"
)

// ErrNotRunning is returned by commands sent after the runner stopped.
var ErrNotRunning = errors.New("reminder runner is not running")

const cleanupInterval = time.Hour

type command struct {
	fn   func(s *ReminderScheduler)
	done chan struct{}
}

// Runner owns a ReminderScheduler and drives it from a single goroutine:
// poll ticks, new event snapshots and presentation commands are handled one
// at a time.
type Runner struct {
	scheduler *ReminderScheduler
	updates   <-chan []*models.MeetingEvent
	clock     clock.Clock
	interval  time.Duration
	logger    *slog.Logger

	commands chan command
	stopped  chan struct{}

	// events is only touched by the Run goroutine.
	events []*models.MeetingEvent
}

// NewRunner creates a runner evaluating the scheduler every poll interval of
// its configuration and whenever a snapshot arrives on updates.
func NewRunner(s *ReminderScheduler, updates <-chan []*models.MeetingEvent, clk clock.Clock, logger *slog.Logger) *Runner {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Runner{
		scheduler: s,
		updates:   updates,
		clock:     clk,
		interval:  s.Config().PollInterval,
		logger:    logger,
		commands:  make(chan command),
		stopped:   make(chan struct{}),
	}
}

// Run evaluates once, then loops until ctx is done.
func (r *Runner) Run(ctx context.Context) error {
	defer close(r.stopped)

	ticker := r.clock.Ticker(r.interval)
	defer ticker.Stop()
	cleanup := r.clock.Ticker(cleanupInterval)
	defer cleanup.Stop()

	r.logger.Info("Starting reminder loop", "poll_interval", r.interval, "lead_time", r.scheduler.LeadTime())
	r.scheduler.Evaluate(r.events)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Reminder loop stopped")
			return ctx.Err()
		case <-ticker.C:
			r.scheduler.Evaluate(r.events)
		case events, ok := <-r.updates:
			if !ok {
				r.updates = nil
				continue
			}
			r.events = events
			r.logger.Debug("Received event snapshot", "count", len(events))
			r.scheduler.Evaluate(r.events)
		case cmd := <-r.commands:
			cmd.fn(r.scheduler)
			close(cmd.done)
		case <-cleanup.C:
			r.scheduler.CleanupOldEvents()
		}
	}
}

// Do runs fn on the loop goroutine. Once accepted a command always runs to
// completion; ctx only bounds the wait for the loop to accept it.
func (r *Runner) Do(ctx context.Context, fn func(s *ReminderScheduler)) error {
	cmd := command{fn: fn, done: make(chan struct{})}

	select {
	case r.commands <- cmd:
	case <-r.stopped:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}

	<-cmd.done
	return nil
}

// Dismiss closes the active reminder.
func (r *Runner) Dismiss(ctx context.Context) (Change, bool, error) {
	var change Change
	var ok bool
	err := r.Do(ctx, func(s *ReminderScheduler) {
		change, ok = s.Dismiss()
	})
	return change, ok, err
}

// Snooze snoozes the active reminder for minutes.
func (r *Runner) Snooze(ctx context.Context, minutes int) (Change, bool, error) {
	var change Change
	var ok bool
	err := r.Do(ctx, func(s *ReminderScheduler) {
		change, ok = s.Snooze(minutes)
	})
	return change, ok, err
}

// Join opens the active reminder's link and closes it.
func (r *Runner) Join(ctx context.Context) (Change, bool, error) {
	var change Change
	var ok bool
	err := r.Do(ctx, func(s *ReminderScheduler) {
		change, ok = s.JoinMeeting(ctx)
	})
	return change, ok, err
}

// Active returns the reminder currently shown, or nil.
func (r *Runner) Active(ctx context.Context) (*models.MeetingEvent, error) {
	var active *models.MeetingEvent
	err := r.Do(ctx, func(s *ReminderScheduler) {
		active = s.Active()
	})
	return active, err
}

// Stats returns the scheduler statistics.
func (r *Runner) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	err := r.Do(ctx, func(s *ReminderScheduler) {
		stats = s.Stats()
	})
	return stats, err
}
