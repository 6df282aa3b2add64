package calendar

import (
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/venkytv/meeting-reminder/internal/models"
	"github.com/venkytv/meeting-reminder/pkg/linkdetect"
)

// CoordinatorConfig holds configuration for multi-calendar coordination.
// ProviderPriorities is keyed by the configured calendar name (case
// insensitive); lower values win.
type CoordinatorConfig struct {
	DeduplicationEnabled bool           `yaml:"deduplication_enabled"`
	DeduplicationWindow  time.Duration  `yaml:"deduplication_window"`
	ProviderPriorities   map[string]int `yaml:"provider_priorities"`
}

// DefaultCoordinatorConfig returns a default configuration for multi-calendar coordination
func DefaultCoordinatorConfig() *CoordinatorConfig {
	return &CoordinatorConfig{
		DeduplicationEnabled: true,
		DeduplicationWindow:  time.Minute,
		ProviderPriorities:   map[string]int{},
	}
}

// EventCoordinator merges the event lists of several providers into one
// ordered list without duplicate occurrences.
type EventCoordinator struct {
	config *CoordinatorConfig
	logger *slog.Logger
}

// NewEventCoordinator creates a new event coordinator
func NewEventCoordinator(config *CoordinatorConfig, logger *slog.Logger) *EventCoordinator {
	if config == nil {
		config = DefaultCoordinatorConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	normalized := *config
	normalized.ProviderPriorities = make(map[string]int, len(config.ProviderPriorities))
	for name, priority := range config.ProviderPriorities {
		normalized.ProviderPriorities[strings.ToLower(name)] = priority
	}

	return &EventCoordinator{
		config: &normalized,
		logger: logger,
	}
}

// CoordinateEvents removes duplicate occurrences and sorts the result by start
// time. When the same meeting shows up in several calendars, the copy from the
// calendar with the best (lowest) priority is kept.
func (c *EventCoordinator) CoordinateEvents(events []*models.Event) []*models.Event {
	if len(events) == 0 {
		return events
	}

	ordered := make([]*models.Event, len(events))
	copy(ordered, events)
	c.prioritize(ordered)

	coordinated := ordered
	if c.config.DeduplicationEnabled {
		coordinated = c.deduplicate(ordered)
	}

	sort.SliceStable(coordinated, func(i, j int) bool {
		a, b := coordinated[i], coordinated[j]
		if !a.StartTime.Equal(b.StartTime) {
			return a.StartTime.Before(b.StartTime)
		}
		return a.OccurrenceID() < b.OccurrenceID()
	})

	return coordinated
}

// priority looks up an event by its provider name, then by its calendar name.
func (c *EventCoordinator) priority(event *models.Event) (int, bool) {
	for _, key := range []string{event.Provider, event.CalendarName} {
		if key == "" {
			continue
		}
		if p, ok := c.config.ProviderPriorities[strings.ToLower(key)]; ok {
			return p, true
		}
	}
	return 0, false
}

// prioritize sorts events so that preferred calendars come first
func (c *EventCoordinator) prioritize(events []*models.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		nameA := strings.ToLower(events[i].Provider + "/" + events[i].CalendarName)
		nameB := strings.ToLower(events[j].Provider + "/" + events[j].CalendarName)

		priorityA, okA := c.priority(events[i])
		priorityB, okB := c.priority(events[j])

		switch {
		case okA && okB:
			return priorityA < priorityB
		case okA:
			return true
		case okB:
			return false
		}
		return nameA < nameB
	})
}

func (c *EventCoordinator) deduplicate(events []*models.Event) []*models.Event {
	keptByID := make(map[string]int, len(events))
	var kept []*models.Event

	for _, event := range events {
		id := event.OccurrenceID()
		if i, ok := keptByID[id]; ok {
			c.logger.Debug("Dropped duplicate occurrence", "event_id", id, "calendar", event.CalendarName)
			kept[i] = mergeVideoLink(kept[i], event)
			continue
		}

		if i := c.findSimilar(event, kept); i >= 0 {
			dup := kept[i]
			c.logger.Debug("Dropped duplicate meeting from another calendar",
				"event_id", id,
				"kept_event_id", dup.OccurrenceID(),
				"title", event.Title,
				"calendar", event.CalendarName,
				"kept_calendar", dup.CalendarName)
			kept[i] = mergeVideoLink(dup, event)
			keptByID[id] = i
			continue
		}

		keptByID[id] = len(kept)
		kept = append(kept, event)
	}

	return kept
}

// mergeVideoLink returns kept, or a copy of it carrying the video link of the
// dropped duplicate when only the dropped copy has one.
func mergeVideoLink(kept, dropped *models.Event) *models.Event {
	if _, ok := linkdetect.DetectLinkString(kept.URL, kept.Description, kept.Location); ok {
		return kept
	}
	match, ok := linkdetect.DetectLinkString(dropped.URL, dropped.Description, dropped.Location)
	if !ok {
		return kept
	}

	merged := *kept
	merged.URL = match.URL.String()
	return &merged
}

// findSimilar returns the index of an already kept event for the same meeting,
// or -1: same normalized title, start within the deduplication window, other
// calendar.
func (c *EventCoordinator) findSimilar(event *models.Event, kept []*models.Event) int {
	title := normalizeTitle(event.Title)
	if title == "" {
		return -1
	}

	for i, other := range kept {
		if other.CalendarID == event.CalendarID {
			continue
		}
		if normalizeTitle(other.Title) != title {
			continue
		}
		diff := event.StartTime.Sub(other.StartTime)
		if diff < 0 {
			diff = -diff
		}
		if diff <= c.config.DeduplicationWindow {
			return i
		}
	}
	return -1
}

func normalizeTitle(title string) string {
	return strings.Join(strings.Fields(strings.ToLower(title)), " ")
}
