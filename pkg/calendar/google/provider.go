package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/venkytv/meeting-reminder/internal/models"
	calendarPkg "github.com/venkytv/meeting-reminder/pkg/calendar"
)

// maxPages bounds pagination of a single list call.
const maxPages = 20

// Provider implements the calendar.Provider interface for Google Calendar
type Provider struct {
	name   string
	logger *slog.Logger
	tokens *TokenManager

	// newService builds the API client; replaced in tests.
	newService func(ctx context.Context) (*calendar.Service, error)

	mu      sync.Mutex
	service *calendar.Service
}

// NewProvider creates a new Google Calendar provider
func NewProvider() *Provider {
	return &Provider{
		name:   "Google Calendar",
		logger: slog.Default(),
	}
}

// Name returns the human-readable name of the provider
func (p *Provider) Name() string {
	return p.name
}

// Type returns the provider type identifier
func (p *Provider) Type() string {
	return "google"
}

// SetLogger sets the logger for this provider
func (p *Provider) SetLogger(logger *slog.Logger) {
	if logger != nil {
		p.logger = logger
	}
}

// Initialize loads the OAuth2 client credentials. The token itself is read
// lazily so a missing token surfaces as calendar.ErrAccessDenied at fetch time
// rather than preventing start-up.
func (p *Provider) Initialize(ctx context.Context, cfg calendarPkg.ProviderConfig) error {
	if cfg.CredentialsPath == "" {
		return fmt.Errorf("google credentials path is required")
	}

	tokens, err := NewTokenManager(cfg.CredentialsPath, cfg.TokenPath, p.logger)
	if err != nil {
		return err
	}
	p.tokens = tokens
	if p.newService == nil {
		p.newService = p.serviceFromToken
	}

	if !tokens.IsTokenValid() {
		p.logger.Warn("No usable Google OAuth2 token, run google-auth", "token_file", cfg.TokenPath)
	}

	p.logger.Info("Initialized Google Calendar provider", "credentials", cfg.CredentialsPath)
	return nil
}

// TokenManager exposes the provider's token manager for the auth flow.
func (p *Provider) TokenManager() *TokenManager {
	return p.tokens
}

func (p *Provider) serviceFromToken(ctx context.Context) (*calendar.Service, error) {
	// The client outlives this call, so it must not be bound to ctx.
	client, err := p.tokens.GetClient(context.WithoutCancel(ctx))
	if err != nil {
		return nil, err
	}
	return calendar.NewService(ctx, option.WithHTTPClient(client))
}

func (p *Provider) getService(ctx context.Context) (*calendar.Service, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.service != nil {
		return p.service, nil
	}
	if p.newService == nil {
		return nil, fmt.Errorf("calendar service not initialized")
	}

	service, err := p.newService(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to create Calendar client: %w", err)
	}
	p.service = service
	return service, nil
}

// resetOnAuthError drops the cached client when the API rejected its token,
// so the next call reloads the token file.
func (p *Provider) resetOnAuthError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && (apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden) {
		p.mu.Lock()
		p.service = nil
		p.mu.Unlock()
		return fmt.Errorf("%w: %v", calendarPkg.ErrAccessDenied, err)
	}
	return err
}

// GetEvents retrieves the single-event expansion of every calendar in
// calendarIDs within [from, to].
func (p *Provider) GetEvents(ctx context.Context, calendarIDs []string, from, to time.Time) ([]*models.Event, error) {
	service, err := p.getService(ctx)
	if err != nil {
		return nil, err
	}

	var allEvents []*models.Event
	for _, calendarID := range calendarIDs {
		events, err := p.listEvents(ctx, service, calendarID, from, to)
		if err != nil {
			return nil, p.resetOnAuthError(fmt.Errorf("unable to retrieve events for calendar %s: %w", calendarID, err))
		}
		allEvents = append(allEvents, events...)
	}

	return allEvents, nil
}

func (p *Provider) listEvents(ctx context.Context, service *calendar.Service, calendarID string, from, to time.Time) ([]*models.Event, error) {
	var events []*models.Event
	pageToken := ""

	for page := 0; page < maxPages; page++ {
		call := service.Events.List(calendarID).
			Context(ctx).
			TimeMin(from.Format(time.RFC3339)).
			TimeMax(to.Format(time.RFC3339)).
			SingleEvents(true).
			OrderBy("startTime")
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		result, err := call.Do()
		if err != nil {
			return nil, err
		}

		for _, item := range result.Items {
			event, err := p.convertEvent(item, calendarID, result.Summary)
			if err != nil {
				p.logger.Warn("Skipping unconvertible event",
					"event_id", item.Id,
					"calendar_id", calendarID,
					"error", err)
				continue
			}
			events = append(events, event)
		}

		if result.NextPageToken == "" {
			return events, nil
		}
		pageToken = result.NextPageToken
	}

	p.logger.Warn("Event list truncated", "calendar_id", calendarID, "pages", maxPages)
	return events, nil
}

// GetCalendars returns available Google calendars
func (p *Provider) GetCalendars(ctx context.Context) ([]*calendarPkg.Calendar, error) {
	service, err := p.getService(ctx)
	if err != nil {
		return nil, err
	}

	var calendars []*calendarPkg.Calendar
	pageToken := ""
	for page := 0; page < maxPages; page++ {
		call := service.CalendarList.List().Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		list, err := call.Do()
		if err != nil {
			return nil, p.resetOnAuthError(fmt.Errorf("unable to retrieve calendar list: %w", err))
		}

		for _, item := range list.Items {
			name := item.Summary
			if item.SummaryOverride != "" {
				name = item.SummaryOverride
			}
			calendars = append(calendars, &calendarPkg.Calendar{
				ID:          item.Id,
				Name:        name,
				Description: item.Description,
				TimeZone:    item.TimeZone,
				Primary:     item.Primary,
				AccessRole:  item.AccessRole,
				Provider:    p.Type(),
			})
		}

		if list.NextPageToken == "" {
			break
		}
		pageToken = list.NextPageToken
	}

	return calendars, nil
}

// IsHealthy performs a health check on the Google Calendar connection
func (p *Provider) IsHealthy(ctx context.Context) error {
	service, err := p.getService(ctx)
	if err != nil {
		return err
	}

	if _, err := service.CalendarList.List().Context(ctx).MaxResults(1).Do(); err != nil {
		return p.resetOnAuthError(fmt.Errorf("health check failed: %w", err))
	}
	return nil
}

// Close cleans up resources
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.service = nil
	return nil
}
