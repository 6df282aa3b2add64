package ical

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/venkytv/meeting-reminder/pkg/calendar"
	"github.com/venkytv/meeting-reminder/pkg/retry"
)

const userAgent = "meeting-reminder/1.0"

// maxFeedSize bounds how much of a feed is read into memory.
const maxFeedSize = 16 << 20

// Fetcher downloads iCalendar documents over HTTP with retries.
type Fetcher struct {
	Client   *http.Client
	Retryer  *retry.Retryer
	Logger   *slog.Logger
	Username string
	Password string
}

// NewFetcher returns a Fetcher with the default timeout and retry policy.
func NewFetcher(logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		Client:  &http.Client{Timeout: 30 * time.Second},
		Retryer: retry.NewRetryer(retry.DefaultConfig(), logger),
		Logger:  logger,
	}
}

// SetLogger replaces the logger used by the fetcher and its retryer.
func (f *Fetcher) SetLogger(logger *slog.Logger) {
	if logger == nil {
		return
	}
	f.Logger = logger
	f.Retryer = retry.NewRetryer(retry.DefaultConfig(), logger)
}

// Fetch retrieves the document at url. Credentials rejected by the server
// (401 or 403) are reported as calendar.ErrAccessDenied.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	body, err := retry.Value(ctx, f.Retryer, func() (string, error) {
		return f.fetchOnce(ctx, url)
	})
	if err != nil {
		var httpErr *retry.HTTPError
		if errors.As(err, &httpErr) && httpErr.IsUnauthorized() {
			return "", fmt.Errorf("%w: %v", calendar.ErrAccessDenied, err)
		}
		f.Logger.Error("Failed to fetch iCal data after retries",
			"url", url,
			"error", err)
		return "", err
	}
	return body, nil
}

func (f *Fetcher) fetchOnce(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "text/calendar,application/calendar")
	req.Header.Set("User-Agent", userAgent)
	if f.Username != "" {
		req.SetBasicAuth(f.Username, f.Password)
	}

	f.Logger.Debug("Fetching iCal data", "url", url)

	resp, err := f.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		f.Logger.Warn("HTTP error when fetching iCal data",
			"url", url,
			"status_code", resp.StatusCode,
			"status", resp.Status)
		return "", retry.NewHTTPError(resp.StatusCode, resp.Status, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedSize))
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	f.Logger.Debug("Successfully fetched iCal data",
		"url", url,
		"content_length", len(body))

	return string(body), nil
}
