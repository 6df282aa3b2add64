package calendar

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/venkytv/meeting-reminder/internal/models"
	"github.com/venkytv/meeting-reminder/pkg/linkdetect"
	"github.com/venkytv/meeting-reminder/pkg/metrics"
)

const (
	DefaultLookback        = 5 * time.Minute
	DefaultRefreshInterval = 5 * time.Minute
)

// EventStore is the part of Manager the Source depends on.
type EventStore interface {
	GetAllEvents(ctx context.Context, from, to time.Time, allowedCalendarIDs ...string) ([]*models.Event, error)
	GetAllCalendars(ctx context.Context) ([]*Calendar, error)
	Watch(ctx context.Context, onChange func()) error
}

// SourceConfig controls the visibility window and refresh cadence.
type SourceConfig struct {
	Lookback           time.Duration
	RefreshInterval    time.Duration
	AllowedCalendarIDs []string
	Location           *time.Location
}

// Source turns raw provider events into the filtered list of meetings the
// scheduler works from. It refreshes periodically and on provider change
// notifications, and publishes each new snapshot on Updates.
type Source struct {
	store   EventStore
	config  SourceConfig
	clock   clock.Clock
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu            sync.RWMutex
	events        []*models.MeetingEvent
	calendars     []*Calendar
	accessGranted bool
	lastRefresh   time.Time

	updates chan []*models.MeetingEvent
	changed chan struct{}
}

// NewSource creates a Source. A nil clock uses the wall clock.
func NewSource(store EventStore, config SourceConfig, clk clock.Clock, m *metrics.Metrics, logger *slog.Logger) *Source {
	if config.Lookback <= 0 {
		config.Lookback = DefaultLookback
	}
	if config.RefreshInterval <= 0 {
		config.RefreshInterval = DefaultRefreshInterval
	}
	if config.Location == nil {
		config.Location = time.Local
	}
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Source{
		store:         store,
		config:        config,
		clock:         clk,
		logger:        logger,
		metrics:       m,
		accessGranted: true,
		updates:       make(chan []*models.MeetingEvent, 1),
		changed:       make(chan struct{}, 1),
	}
}

// EndOfDay returns 23:59:59 of the day containing now, in loc.
func EndOfDay(now time.Time, loc *time.Location) time.Time {
	local := now.In(loc)
	y, m, d := local.Date()
	return time.Date(y, m, d, 23, 59, 59, 0, loc)
}

// FetchVisibleEvents queries the providers for [now - lookback, windowEnd] and
// returns the meetings that should be considered for reminders, ordered by
// start time. Provider errors are logged and degrade to a partial or empty
// list.
func (s *Source) FetchVisibleEvents(ctx context.Context, now, windowEnd time.Time, allowed []string) []*models.MeetingEvent {
	from := now.Add(-s.config.Lookback)

	raw, err := s.store.GetAllEvents(ctx, from, windowEnd, allowed...)
	result := metrics.RefreshOK
	switch {
	case err == nil:
		s.setAccessGranted(true)
	case errors.Is(err, ErrAccessDenied):
		s.logger.Warn("Calendar access denied", "error", err)
		s.setAccessGranted(false)
		result = metrics.RefreshAccessDenied
	default:
		s.logger.Warn("Failed to fetch some calendar events", "error", err)
		s.setAccessGranted(true)
		result = metrics.RefreshPartial
	}

	visible := VisibleEvents(raw, from, windowEnd, allowed, s.logger)
	s.metrics.RecordRefresh(result, len(visible))
	return visible
}

// VisibleEvents filters raw events down to reminder candidates: not all-day,
// not declined, not cancelled, in an allowed calendar (all calendars when
// allowed is empty) and starting within [from, to]. Survivors are converted
// with their detected video link and sorted by start time.
func VisibleEvents(raw []*models.Event, from, to time.Time, allowed []string, logger *slog.Logger) []*models.MeetingEvent {
	if logger == nil {
		logger = slog.Default()
	}

	allowedSet := make(map[string]bool, len(allowed))
	for _, id := range allowed {
		allowedSet[id] = true
	}

	visible := make([]*models.MeetingEvent, 0, len(raw))
	for _, event := range raw {
		switch {
		case event.AllDay:
			continue
		case event.IsDeclined():
			continue
		case event.IsCancelled():
			continue
		case len(allowedSet) > 0 && !allowedSet[event.CalendarID]:
			continue
		case event.StartTime.Before(from) || event.StartTime.After(to):
			continue
		}

		if event.EndTime.Before(event.StartTime) {
			logger.Warn("Event ends before it starts, clamping end time",
				"event_id", event.ID,
				"title", event.Title,
				"start", event.StartTime,
				"end", event.EndTime)
		}

		var link *linkdetect.Match
		if match, ok := linkdetect.DetectLinkString(event.URL, event.Description, event.Location); ok {
			link = match
		}

		meeting := toMeetingEvent(event, link)
		visible = append(visible, meeting)
	}

	sort.SliceStable(visible, func(i, j int) bool {
		a, b := visible[i], visible[j]
		if !a.StartDate.Equal(b.StartDate) {
			return a.StartDate.Before(b.StartDate)
		}
		return a.ID < b.ID
	})

	return visible
}

func toMeetingEvent(event *models.Event, link *linkdetect.Match) *models.MeetingEvent {
	if link == nil {
		return models.NewMeetingEvent(event, nil, "")
	}
	return models.NewMeetingEvent(event, link.URL, link.Service)
}

// Refresh fetches today's meetings and the calendar list, caches them and
// publishes the new meeting list on Updates.
func (s *Source) Refresh(ctx context.Context) []*models.MeetingEvent {
	now := s.clock.Now()
	events := s.FetchVisibleEvents(ctx, now, EndOfDay(now, s.config.Location), s.config.AllowedCalendarIDs)

	calendars, err := s.store.GetAllCalendars(ctx)
	if err != nil {
		s.logger.Warn("Failed to list some calendars", "error", err)
	}

	s.mu.Lock()
	s.events = events
	if calendars != nil || err == nil {
		s.calendars = calendars
	}
	s.lastRefresh = now
	s.mu.Unlock()

	s.logger.Debug("Refreshed calendar events",
		"visible_events", len(events),
		"calendars", len(calendars))

	s.publish(events)
	return events
}

// publish replaces any snapshot the consumer has not picked up yet.
func (s *Source) publish(events []*models.MeetingEvent) {
	select {
	case <-s.updates:
	default:
	}
	select {
	case s.updates <- events:
	default:
	}
}

// Run refreshes immediately, then on every refresh interval and whenever a
// provider reports a change. It blocks until ctx is done.
func (s *Source) Run(ctx context.Context) error {
	go func() {
		if err := s.store.Watch(ctx, s.notifyChanged); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Warn("Calendar watch stopped", "error", err)
		}
	}()

	ticker := s.clock.Ticker(s.config.RefreshInterval)
	defer ticker.Stop()

	s.Refresh(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Refresh(ctx)
		case <-s.changed:
			s.logger.Debug("Calendar store changed, refreshing")
			s.Refresh(ctx)
		}
	}
}

func (s *Source) notifyChanged() {
	select {
	case s.changed <- struct{}{}:
	default:
	}
}

// Updates delivers the latest meeting list after each refresh. Only the most
// recent snapshot is retained.
func (s *Source) Updates() <-chan []*models.MeetingEvent {
	return s.updates
}

// Events returns the cached meeting list from the last refresh.
func (s *Source) Events() []*models.MeetingEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.MeetingEvent, len(s.events))
	copy(out, s.events)
	return out
}

// Calendars returns the cached calendar list from the last refresh.
func (s *Source) Calendars() []*Calendar {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Calendar, len(s.calendars))
	copy(out, s.calendars)
	return out
}

// AccessGranted reports whether the last fetch was allowed by the providers.
func (s *Source) AccessGranted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessGranted
}

// LastRefresh returns when the cache was last refreshed.
func (s *Source) LastRefresh() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRefresh
}

func (s *Source) setAccessGranted(granted bool) {
	s.mu.Lock()
	s.accessGranted = granted
	s.mu.Unlock()
}
