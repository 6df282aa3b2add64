package caldav

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/venkytv/meeting-reminder/internal/models"
	"github.com/venkytv/meeting-reminder/pkg/calendar"
	"github.com/venkytv/meeting-reminder/pkg/calendar/ical"
)

// SimpleProvider fetches a CalDAV calendar collection as a single iCalendar
// export using HTTP basic authentication.
type SimpleProvider struct {
	name      string
	url       string
	username  string
	userEmail string
	fetcher   *ical.Fetcher
	logger    *slog.Logger
}

// NewSimpleProvider creates a new CalDAV provider
func NewSimpleProvider() *SimpleProvider {
	logger := slog.Default()
	return &SimpleProvider{
		name:    "CalDAV",
		fetcher: ical.NewFetcher(logger),
		logger:  logger,
	}
}

// Name returns the provider name
func (p *SimpleProvider) Name() string {
	return p.name
}

// Type returns the provider type identifier
func (p *SimpleProvider) Type() string {
	return "caldav"
}

// SetLogger sets the logger for this provider
func (p *SimpleProvider) SetLogger(logger *slog.Logger) {
	if logger != nil {
		p.logger = logger
		p.fetcher.SetLogger(logger)
	}
}

// Initialize configures the collection URL and credentials. The username is
// used as the attendee address when cfg.Email is empty.
func (p *SimpleProvider) Initialize(ctx context.Context, cfg calendar.ProviderConfig) error {
	if cfg.URL == "" {
		return fmt.Errorf("CalDAV URL is required")
	}
	if cfg.Username == "" {
		return fmt.Errorf("CalDAV username is required")
	}
	if cfg.Password == "" {
		return fmt.Errorf("CalDAV password is required")
	}

	u, err := url.Parse(cfg.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("CalDAV URL must be http or https: %q", cfg.URL)
	}

	p.url = cfg.URL
	p.username = cfg.Username
	p.userEmail = cfg.Email
	if p.userEmail == "" && strings.Contains(cfg.Username, "@") {
		p.userEmail = cfg.Username
	}
	p.fetcher.Username = cfg.Username
	p.fetcher.Password = cfg.Password

	p.logger.Info("Initialized CalDAV provider", "url", p.url, "username", p.username)
	return nil
}

// GetEvents retrieves events from the CalDAV collection
func (p *SimpleProvider) GetEvents(ctx context.Context, calendarIDs []string, from, to time.Time) ([]*models.Event, error) {
	if p.url == "" {
		return nil, fmt.Errorf("CalDAV provider not initialized")
	}

	icalData, err := p.fetcher.Fetch(ctx, p.url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch CalDAV data: %w", err)
	}

	return ical.ParseICalData(icalData, ical.ParseOptions{
		CalendarID: p.url,
		UserEmail:  p.userEmail,
	}, from, to, p.logger)
}

// GetCalendars returns the configured collection as a single calendar
func (p *SimpleProvider) GetCalendars(ctx context.Context) ([]*calendar.Calendar, error) {
	if p.url == "" {
		return nil, fmt.Errorf("CalDAV provider not initialized")
	}

	return []*calendar.Calendar{{
		ID:          p.url,
		Name:        "CalDAV Calendar",
		Description: fmt.Sprintf("Calendar from %s", p.url),
		Primary:     true,
		AccessRole:  "owner",
		Provider:    p.Type(),
	}}, nil
}

// IsHealthy performs a health check by attempting to fetch calendar data
func (p *SimpleProvider) IsHealthy(ctx context.Context) error {
	if p.url == "" {
		return fmt.Errorf("CalDAV provider not initialized")
	}

	if _, err := p.fetcher.Fetch(ctx, p.url); err != nil {
		return fmt.Errorf("CalDAV health check failed: %w", err)
	}
	return nil
}

// Close cleans up resources
func (p *SimpleProvider) Close() error {
	return nil
}
