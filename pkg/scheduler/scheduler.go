package scheduler

import (
	"context"
	"log/slog"
	"net/url"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/venkytv/meeting-reminder/internal/models"
	"github.com/venkytv/meeting-reminder/pkg/metrics"
)

const (
	// DefaultLeadMinutes is used when the configured lead time is 0.
	DefaultLeadMinutes = 5
	MinLeadMinutes     = 1
	MaxLeadMinutes     = 30

	DefaultSnoozeMinutes = 1
	DefaultPollInterval  = 30 * time.Second

	// justStartedWindow is how long after its start a meeting can still trigger.
	justStartedWindow = time.Minute

	// shownRetention is how long a shown occurrence is remembered after it ends.
	shownRetention = 24 * time.Hour
)

// Trigger names the condition that raised a reminder.
type Trigger string

const (
	TriggerUpcoming    Trigger = "upcoming"
	TriggerJustStarted Trigger = "just_started"
)

// Opener opens a meeting link, typically in the user's browser.
type Opener interface {
	Open(ctx context.Context, link *url.URL) error
}

// Sound plays the alert that accompanies a new reminder.
type Sound interface {
	PlayAlert()
}

// Observer is notified of every reminder state change.
type Observer interface {
	ReminderChanged(change Change)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(change Change)

// ReminderChanged calls f(change).
func (f ObserverFunc) ReminderChanged(change Change) {
	f(change)
}

// Change describes one transition of the active reminder.
type Change struct {
	Kind         models.NoticeKind
	Event        *models.MeetingEvent
	Trigger      Trigger
	At           time.Time
	SnoozedUntil time.Time
}

// Notice renders the change in its wire form.
func (c Change) Notice() *models.Notice {
	notice := models.NewNotice(c.Kind, c.Event, c.At)
	if !c.SnoozedUntil.IsZero() {
		until := c.SnoozedUntil
		notice.SnoozedUntil = &until
	}
	return notice
}

// Config holds the scheduler configuration. The zero value plays the alert
// sound; set DisableSound to silence it.
type Config struct {
	LeadMinutes   int           `yaml:"lead_minutes"`
	DisableSound  bool          `yaml:"disable_sound"`
	SnoozeMinutes int           `yaml:"snooze_minutes"`
	PollInterval  time.Duration `yaml:"poll_interval"`
}

// DefaultConfig returns a default scheduler configuration
func DefaultConfig() *Config {
	return &Config{
		LeadMinutes:   DefaultLeadMinutes,
		SnoozeMinutes: DefaultSnoozeMinutes,
		PollInterval:  DefaultPollInterval,
	}
}

// ClampLeadMinutes maps a configured lead time onto the supported range.
// Zero selects the default rather than "no lead time".
func ClampLeadMinutes(minutes int) int {
	switch {
	case minutes == 0:
		return DefaultLeadMinutes
	case minutes < MinLeadMinutes:
		return MinLeadMinutes
	case minutes > MaxLeadMinutes:
		return MaxLeadMinutes
	}
	return minutes
}

// ReminderScheduler decides when to raise a reminder and tracks which
// occurrences were shown or snoozed. It is not safe for concurrent use; the
// Runner serializes every call onto one goroutine.
type ReminderScheduler struct {
	config    Config
	clock     clock.Clock
	opener    Opener
	sound     Sound
	observers []Observer
	metrics   *metrics.Metrics
	logger    *slog.Logger

	// shown maps occurrence id to occurrence end, for cleanup.
	shown        map[string]time.Time
	snoozedUntil map[string]time.Time
	active       *models.MeetingEvent
}

// NewReminderScheduler creates a scheduler. opener and sound may be nil.
func NewReminderScheduler(config *Config, clk clock.Clock, opener Opener, sound Sound, m *metrics.Metrics, logger *slog.Logger) *ReminderScheduler {
	if config == nil {
		config = DefaultConfig()
	}
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = slog.Default()
	}

	cfg := *config
	cfg.LeadMinutes = ClampLeadMinutes(cfg.LeadMinutes)
	if cfg.SnoozeMinutes <= 0 {
		cfg.SnoozeMinutes = DefaultSnoozeMinutes
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}

	return &ReminderScheduler{
		config:       cfg,
		clock:        clk,
		opener:       opener,
		sound:        sound,
		metrics:      m,
		logger:       logger,
		shown:        make(map[string]time.Time),
		snoozedUntil: make(map[string]time.Time),
	}
}

// AddObserver registers an observer for reminder changes.
func (s *ReminderScheduler) AddObserver(observer Observer) {
	s.observers = append(s.observers, observer)
}

// Config returns the effective configuration after clamping.
func (s *ReminderScheduler) Config() Config {
	return s.config
}

// LeadTime returns the effective reminder lead time.
func (s *ReminderScheduler) LeadTime() time.Duration {
	return time.Duration(s.config.LeadMinutes) * time.Minute
}

// Active returns the reminder currently shown, or nil.
func (s *ReminderScheduler) Active() *models.MeetingEvent {
	return s.active
}

// Evaluate runs one tick over events, which must be sorted by start time.
// It returns the event that was triggered, if any.
func (s *ReminderScheduler) Evaluate(events []*models.MeetingEvent) *models.MeetingEvent {
	now := s.clock.Now()
	s.expireSnoozes(now)

	if s.active != nil {
		return nil
	}

	lead := s.LeadTime()
	for _, event := range events {
		if _, ok := s.shown[event.ID]; ok {
			continue
		}
		if _, ok := s.snoozedUntil[event.ID]; ok {
			continue
		}

		trigger, ok := triggerFor(event.TimeUntilStart(now), lead)
		if !ok {
			continue
		}

		s.trigger(event, trigger, now)
		return event
	}

	return nil
}

func triggerFor(until, lead time.Duration) (Trigger, bool) {
	switch {
	case until > 0 && until <= lead:
		return TriggerUpcoming, true
	case until > -justStartedWindow && until <= 0:
		return TriggerJustStarted, true
	}
	return "", false
}

func (s *ReminderScheduler) expireSnoozes(now time.Time) {
	for id, until := range s.snoozedUntil {
		if !now.Before(until) {
			delete(s.snoozedUntil, id)
			s.logger.Debug("Snooze expired", "event_id", id)
		}
	}
}

func (s *ReminderScheduler) trigger(event *models.MeetingEvent, trigger Trigger, now time.Time) {
	s.shown[event.ID] = event.EndDate
	s.active = event

	s.logger.Info("Triggering reminder",
		"event_id", event.ID,
		"title", event.Title,
		"trigger", trigger,
		"time_until", event.FormattedTimeUntil(now),
		"video_service", event.VideoService)

	if !s.config.DisableSound && s.sound != nil {
		s.sound.PlayAlert()
	}

	s.metrics.RecordTrigger(string(trigger))
	s.notify(Change{Kind: models.NoticeTriggered, Event: event, Trigger: trigger, At: now})
}

// Dismiss closes the active reminder. The occurrence stays shown and will not
// trigger again. It reports false when nothing is active.
func (s *ReminderScheduler) Dismiss() (Change, bool) {
	return s.close(models.NoticeDismissed, time.Time{})
}

// Snooze closes the active reminder and suppresses it for the given number of
// minutes, after which it may trigger again. minutes <= 0 selects the
// configured default.
func (s *ReminderScheduler) Snooze(minutes int) (Change, bool) {
	if s.active == nil {
		return Change{}, false
	}
	if minutes <= 0 {
		minutes = s.config.SnoozeMinutes
	}

	until := s.clock.Now().Add(time.Duration(minutes) * time.Minute)
	id := s.active.ID
	s.snoozedUntil[id] = until
	delete(s.shown, id)

	s.logger.Info("Snoozing reminder", "event_id", id, "minutes", minutes, "until", until.Format(time.RFC3339))
	return s.close(models.NoticeSnoozed, until)
}

// JoinMeeting opens the active reminder's video link and closes the reminder.
// Without an active reminder or a link it does nothing and reports false.
func (s *ReminderScheduler) JoinMeeting(ctx context.Context) (Change, bool) {
	if s.active == nil || s.active.VideoLink == nil {
		return Change{}, false
	}

	if s.opener != nil {
		if err := s.opener.Open(ctx, s.active.VideoLink); err != nil {
			s.logger.Warn("Failed to open meeting link",
				"event_id", s.active.ID,
				"video_link", s.active.VideoLinkString(),
				"error", err)
		}
	}

	return s.close(models.NoticeJoined, time.Time{})
}

func (s *ReminderScheduler) close(kind models.NoticeKind, snoozedUntil time.Time) (Change, bool) {
	if s.active == nil {
		return Change{}, false
	}

	event := s.active
	s.active = nil

	if kind != models.NoticeSnoozed {
		s.logger.Info("Closing reminder", "event_id", event.ID, "action", kind)
	}

	change := Change{
		Kind:         kind,
		Event:        event,
		At:           s.clock.Now(),
		SnoozedUntil: snoozedUntil,
	}
	s.metrics.RecordAction(string(kind))
	s.notify(change)
	return change, true
}

func (s *ReminderScheduler) notify(change Change) {
	for _, observer := range s.observers {
		observer.ReminderChanged(change)
	}
}

// IsShown reports whether the occurrence already triggered and will not
// trigger again.
func (s *ReminderScheduler) IsShown(id string) bool {
	_, ok := s.shown[id]
	return ok
}

// SnoozedUntil returns the resume time of a pending snooze.
func (s *ReminderScheduler) SnoozedUntil(id string) (time.Time, bool) {
	until, ok := s.snoozedUntil[id]
	return until, ok
}

// CleanupOldEvents forgets shown occurrences that ended more than a day ago.
func (s *ReminderScheduler) CleanupOldEvents() {
	cutoff := s.clock.Now().Add(-shownRetention)

	removed := 0
	for id, end := range s.shown {
		if s.active != nil && s.active.ID == id {
			continue
		}
		if end.Before(cutoff) {
			delete(s.shown, id)
			removed++
			s.logger.Debug("Cleaned up old event", "event_id", id)
		}
	}

	if removed > 0 {
		s.logger.Info("Cleaned up old events", "count", removed)
	}
}

// Stats returns scheduler statistics
func (s *ReminderScheduler) Stats() Stats {
	stats := Stats{
		ShownEvents:   len(s.shown),
		SnoozedEvents: len(s.snoozedUntil),
		LeadMinutes:   s.config.LeadMinutes,
		SoundEnabled:  !s.config.DisableSound,
	}
	if s.active != nil {
		stats.ActiveEventID = s.active.ID
	}
	return stats
}

// Stats holds statistics about the scheduler
type Stats struct {
	ShownEvents   int    `json:"shown_events"`
	SnoozedEvents int    `json:"snoozed_events"`
	ActiveEventID string `json:"active_event_id,omitempty"`
	LeadMinutes   int    `json:"lead_minutes"`
	SoundEnabled  bool   `json:"sound_enabled"`
}
