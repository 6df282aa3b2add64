package ical

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/venkytv/meeting-reminder/internal/models"
	"github.com/venkytv/meeting-reminder/pkg/calendar"
)

// Provider is an iCal provider using the arran4/golang-ical library. It reads
// either an HTTP(S) feed or a local .ics file.
type Provider struct {
	name      string
	url       string
	path      string
	userEmail string
	fetcher   *Fetcher
	logger    *slog.Logger

	mu           sync.RWMutex
	calendarName string
}

// NewProvider creates a new iCal provider
func NewProvider() *Provider {
	logger := slog.Default()
	return &Provider{
		name:    "iCal",
		fetcher: NewFetcher(logger),
		logger:  logger,
	}
}

// Name returns the provider name
func (p *Provider) Name() string {
	return p.name
}

// Type returns the provider type identifier
func (p *Provider) Type() string {
	return "ical"
}

// SetLogger sets the logger for this provider
func (p *Provider) SetLogger(logger *slog.Logger) {
	if logger != nil {
		p.logger = logger
		p.fetcher.SetLogger(logger)
	}
}

// Initialize sets up the provider. cfg.URL is an http(s) URL, a file:// URL
// or a plain path to a local .ics file.
func (p *Provider) Initialize(ctx context.Context, cfg calendar.ProviderConfig) error {
	if cfg.URL == "" {
		return fmt.Errorf("iCal URL is required")
	}

	path, isFile, err := localPath(cfg.URL)
	if err != nil {
		return err
	}

	p.url = cfg.URL
	p.path = ""
	if isFile {
		p.path = path
	}
	p.userEmail = cfg.Email
	p.fetcher.Username = cfg.Username
	p.fetcher.Password = cfg.Password

	p.logger.Info("Initialized iCal provider", "url", cfg.URL, "local_file", isFile)
	return nil
}

// localPath reports whether raw names a local file and returns its path.
func localPath(raw string) (string, bool, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", false, fmt.Errorf("invalid iCal URL %q: %w", raw, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return "", false, nil
	case "file":
		return u.Path, true, nil
	case "":
		return raw, true, nil
	default:
		return "", false, fmt.Errorf("unsupported iCal URL scheme %q", u.Scheme)
	}
}

// GetEvents retrieves events from the feed. calendarIDs is ignored since a
// feed holds exactly one calendar.
func (p *Provider) GetEvents(ctx context.Context, calendarIDs []string, from, to time.Time) ([]*models.Event, error) {
	if p.url == "" {
		return nil, fmt.Errorf("iCal provider not initialized")
	}

	icalData, err := p.load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch iCal data: %w", err)
	}

	events, err := ParseICalData(icalData, ParseOptions{
		CalendarID: p.url,
		UserEmail:  p.userEmail,
	}, from, to, p.logger)
	if err != nil {
		return nil, err
	}

	if len(events) > 0 {
		p.mu.Lock()
		p.calendarName = events[0].CalendarName
		p.mu.Unlock()
	}

	return events, nil
}

func (p *Provider) load(ctx context.Context) (string, error) {
	if p.path == "" {
		return p.fetcher.Fetch(ctx, p.url)
	}

	data, err := os.ReadFile(p.path)
	if err != nil {
		if errors.Is(err, os.ErrPermission) {
			return "", fmt.Errorf("%w: %v", calendar.ErrAccessDenied, err)
		}
		return "", err
	}
	return string(data), nil
}

// GetCalendars returns the single calendar this feed represents
func (p *Provider) GetCalendars(ctx context.Context) ([]*calendar.Calendar, error) {
	if p.url == "" {
		return nil, fmt.Errorf("iCal provider not initialized")
	}

	p.mu.RLock()
	name := p.calendarName
	p.mu.RUnlock()
	if name == "" {
		name = "iCal Calendar"
	}

	return []*calendar.Calendar{{
		ID:          p.url,
		Name:        name,
		Description: fmt.Sprintf("Calendar from %s", p.url),
		Primary:     true,
		AccessRole:  "reader",
		Provider:    p.Type(),
	}}, nil
}

// IsHealthy performs a health check by attempting to load calendar data
func (p *Provider) IsHealthy(ctx context.Context) error {
	if p.url == "" {
		return fmt.Errorf("iCal provider not initialized")
	}

	if _, err := p.load(ctx); err != nil {
		return fmt.Errorf("iCal health check failed: %w", err)
	}
	return nil
}

// Watch reports changes to a local .ics file. Remote feeds have nothing to
// watch and return when ctx is done.
func (p *Provider) Watch(ctx context.Context, onChange func()) error {
	if p.path == "" {
		<-ctx.Done()
		return ctx.Err()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	// Editors often replace the file, so watch the directory.
	dir := filepath.Dir(p.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	target := filepath.Clean(p.path)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				p.logger.Debug("Calendar file changed", "path", p.path, "op", event.Op.String())
				onChange()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			p.logger.Warn("File watcher error", "path", p.path, "error", err)
		}
	}
}

// Close cleans up resources
func (p *Provider) Close() error {
	return nil
}
