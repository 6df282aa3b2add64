package calendar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/venkytv/meeting-reminder/internal/models"
)

// ErrAccessDenied is returned by providers when the calendar rejects the
// configured credentials.
var ErrAccessDenied = errors.New("calendar access denied")

// Provider defines the interface that all calendar implementations must satisfy
type Provider interface {
	// Name returns the human-readable name of the calendar provider
	Name() string

	// Type returns the provider type identifier (e.g., "google", "ical")
	Type() string

	// SetLogger replaces the provider's logger
	SetLogger(logger *slog.Logger)

	// Initialize sets up the calendar provider from its configuration
	Initialize(ctx context.Context, cfg ProviderConfig) error

	// GetEvents retrieves events from the specified calendar IDs within the time range
	GetEvents(ctx context.Context, calendarIDs []string, from, to time.Time) ([]*models.Event, error)

	// GetCalendars returns a list of available calendars for this provider
	GetCalendars(ctx context.Context) ([]*Calendar, error)

	// IsHealthy performs a health check on the calendar provider
	IsHealthy(ctx context.Context) error

	// Close cleans up any resources used by the provider
	Close() error
}

// Watcher is implemented by providers that can tell when their underlying
// calendar store changed. Watch blocks until ctx is done.
type Watcher interface {
	Watch(ctx context.Context, onChange func()) error
}

// ProviderConfig carries the per-calendar settings a provider needs.
type ProviderConfig struct {
	URL             string
	Username        string
	Password        string
	Email           string
	CredentialsPath string
	TokenPath       string
	CalendarIDs     []string
}

// ProviderFactory creates calendar providers based on configuration
type ProviderFactory interface {
	// CreateProvider creates a new calendar provider instance
	CreateProvider(providerType string) (Provider, error)

	// SupportedTypes returns a list of supported provider types
	SupportedTypes() []string
}

// Manager coordinates multiple calendar providers
type Manager struct {
	mu          sync.RWMutex
	providers   map[string]Provider
	calendarIDs map[string][]string
	coordinator *EventCoordinator
	logger      *slog.Logger
}

// NewManager creates a new calendar manager with the default coordinator
func NewManager(logger *slog.Logger) *Manager {
	return NewManagerWithCoordinator(nil, logger)
}

// NewManagerWithCoordinator creates a new calendar manager with custom coordinator and logger
func NewManagerWithCoordinator(coordinatorConfig *CoordinatorConfig, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		providers:   make(map[string]Provider),
		calendarIDs: make(map[string][]string),
		coordinator: NewEventCoordinator(coordinatorConfig, logger),
		logger:      logger,
	}
}

// AddProvider adds a calendar provider to the manager. calendarIDs restricts
// which of the provider's calendars are fetched; empty means all of them.
func (m *Manager) AddProvider(name string, provider Provider, calendarIDs ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.providers[name] = provider
	m.calendarIDs[name] = calendarIDs
}

// GetProvider retrieves a calendar provider by name
func (m *Manager) GetProvider(name string) (Provider, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	provider, exists := m.providers[name]
	return provider, exists
}

// GetProviderList returns the sorted names of all configured providers
func (m *Manager) GetProviderList() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.providers))
	for name := range m.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetAllEvents retrieves events from all configured providers concurrently.
// A failing provider contributes no events; its error is joined into the
// returned error while the events of the healthy providers are still returned.
// When allowedCalendarIDs is non-empty, events from other calendars are
// dropped before duplicates are merged, so an allowed copy is never lost to a
// copy from a calendar that is filtered out.
func (m *Manager) GetAllEvents(ctx context.Context, from, to time.Time, allowedCalendarIDs ...string) ([]*models.Event, error) {
	names := m.GetProviderList()

	m.logger.Debug("Fetching events from all providers",
		"provider_count", len(names),
		"from", from.Format(time.RFC3339),
		"to", to.Format(time.RFC3339))

	results := make([][]*models.Event, len(names))
	errs := make([]error, len(names))

	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		provider, _ := m.GetProvider(name)
		g.Go(func() error {
			events, err := m.fetchProvider(gctx, name, provider, from, to)
			if err != nil {
				errs[i] = fmt.Errorf("provider %s: %w", name, err)
				return nil
			}
			results[i] = events
			return nil
		})
	}
	_ = g.Wait()

	allowed := make(map[string]bool, len(allowedCalendarIDs))
	for _, id := range allowedCalendarIDs {
		allowed[id] = true
	}

	var allEvents []*models.Event
	for _, events := range results {
		for _, event := range events {
			if len(allowed) > 0 && !allowed[event.CalendarID] {
				continue
			}
			allEvents = append(allEvents, event)
		}
	}

	coordinated := m.coordinator.CoordinateEvents(allEvents)

	m.logger.Debug("Event coordination completed",
		"raw_events", len(allEvents),
		"coordinated_events", len(coordinated),
		"duplicates_removed", len(allEvents)-len(coordinated))

	return coordinated, errors.Join(errs...)
}

func (m *Manager) fetchProvider(ctx context.Context, name string, provider Provider, from, to time.Time) ([]*models.Event, error) {
	m.mu.RLock()
	calendarIDs := m.calendarIDs[name]
	m.mu.RUnlock()

	if len(calendarIDs) == 0 {
		calendars, err := provider.GetCalendars(ctx)
		if err != nil {
			m.logger.Error("Failed to get calendars from provider",
				"provider_name", name,
				"provider_type", provider.Type(),
				"error", err)
			return nil, err
		}
		for _, cal := range calendars {
			calendarIDs = append(calendarIDs, cal.ID)
		}
	}

	if len(calendarIDs) == 0 {
		m.logger.Debug("No calendars found for provider",
			"provider_name", name,
			"provider_type", provider.Type())
		return nil, nil
	}

	events, err := provider.GetEvents(ctx, calendarIDs, from, to)
	if err != nil {
		m.logger.Error("Failed to get events from provider",
			"provider_name", name,
			"provider_type", provider.Type(),
			"error", err)
		return nil, err
	}

	for _, event := range events {
		event.Provider = name
		if event.CalendarName == "" {
			event.CalendarName = name
		}
	}

	m.logger.Debug("Fetched events from provider",
		"provider_name", name,
		"provider_type", provider.Type(),
		"event_count", len(events))

	return events, nil
}

// GetAllCalendars returns the distinct calendars of every provider, sorted by
// name. Failing providers are skipped and their errors joined.
func (m *Manager) GetAllCalendars(ctx context.Context) ([]*Calendar, error) {
	seen := make(map[string]bool)
	var calendars []*Calendar
	var errs []error

	for _, name := range m.GetProviderList() {
		provider, _ := m.GetProvider(name)
		list, err := provider.GetCalendars(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("provider %s: %w", name, err))
			continue
		}
		for _, cal := range list {
			if seen[cal.ID] {
				continue
			}
			seen[cal.ID] = true
			calendars = append(calendars, cal)
		}
	}

	sort.SliceStable(calendars, func(i, j int) bool {
		return lessFold(calendars[i].Name, calendars[j].Name)
	})

	return calendars, errors.Join(errs...)
}

// Watch forwards change notifications from every provider that implements
// Watcher to onChange. It blocks until ctx is done.
func (m *Manager) Watch(ctx context.Context, onChange func()) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, name := range m.GetProviderList() {
		provider, _ := m.GetProvider(name)
		watcher, ok := provider.(Watcher)
		if !ok {
			continue
		}
		g.Go(func() error {
			m.logger.Debug("Watching provider for changes", "provider_name", name)
			if err := watcher.Watch(gctx, onChange); err != nil && !errors.Is(err, context.Canceled) {
				m.logger.Warn("Provider watch stopped", "provider_name", name, "error", err)
			}
			return nil
		})
	}

	return g.Wait()
}

// Close closes all providers
func (m *Manager) Close() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var errs []error
	for name, provider := range m.providers {
		if err := provider.Close(); err != nil {
			errs = append(errs, fmt.Errorf("provider %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// HealthCheck performs health checks on all providers
func (m *Manager) HealthCheck(ctx context.Context) map[string]error {
	results := make(map[string]error)
	for _, name := range m.GetProviderList() {
		provider, _ := m.GetProvider(name)
		results[name] = provider.IsHealthy(ctx)
	}
	return results
}
