package main

import (
	"bytes"
	"log/slog"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/venkytv/meeting-reminder/internal/models"
	"github.com/venkytv/meeting-reminder/pkg/calendar"
	"github.com/venkytv/meeting-reminder/pkg/config"
)

func TestSetupLogger(t *testing.T) {
	tests := []struct {
		name      string
		cfg       config.LoggingConfig
		debug     bool
		wantDebug bool
		wantWarn  bool
		wantJSON  bool
	}{
		{"json info", config.LoggingConfig{Level: "info", Format: "json"}, false, false, true, true},
		{"text debug", config.LoggingConfig{Level: "debug", Format: "text"}, false, true, true, false},
		{"flag forces debug", config.LoggingConfig{Level: "error", Format: "json"}, true, true, true, true},
		{"error hides warn", config.LoggingConfig{Level: "error", Format: "json"}, false, false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := setupLogger(&buf, tt.cfg, tt.debug)

			ctx := t.Context()
			assert.Equal(t, tt.wantDebug, logger.Enabled(ctx, slog.LevelDebug))
			assert.Equal(t, tt.wantWarn, logger.Enabled(ctx, slog.LevelWarn))

			logger.Error("probe")
			assert.Equal(t, tt.wantJSON, strings.HasPrefix(buf.String(), "{"))
		})
	}
}

func TestFindGoogleCalendar(t *testing.T) {
	cfg := &config.Config{Calendars: []config.CalendarConfig{
		{Name: "feed", Type: config.TypeICal},
		{Name: "work", Type: config.TypeGoogle, Credentials: "/w/creds.json"},
	}}

	cal, err := findGoogleCalendar(cfg, "")
	require.NoError(t, err)
	assert.Equal(t, "work", cal.Name)

	_, err = findGoogleCalendar(cfg, "feed")
	assert.ErrorContains(t, err, `no google calendar named "feed"`)

	cfg.Calendars = append(cfg.Calendars, config.CalendarConfig{Name: "home", Type: config.TypeGoogle})
	_, err = findGoogleCalendar(cfg, "")
	assert.ErrorContains(t, err, "--calendar")

	cal, err = findGoogleCalendar(cfg, "home")
	require.NoError(t, err)
	assert.Equal(t, "home", cal.Name)
}

func TestPrintCalendars(t *testing.T) {
	calendars := []*calendar.Calendar{
		{ID: "primary", Name: "Me", Primary: true, Provider: "google"},
		{ID: "team", Name: "Team", Provider: "google"},
	}

	var buf bytes.Buffer
	printCalendars(&buf, calendars, []string{"team"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "no")
	assert.Contains(t, lines[1], "Me (primary)")
	assert.True(t, strings.HasPrefix(lines[2], "yes"))
}

func TestPrintUpcoming(t *testing.T) {
	now := time.Date(2025, 10, 27, 9, 0, 0, 0, time.UTC)
	link, _ := url.Parse("https://zoom.us/j/123")

	var buf bytes.Buffer
	printUpcoming(&buf, nil, now)
	assert.Equal(t, "No more meetings today\n", buf.String())

	buf.Reset()
	printUpcoming(&buf, []*models.MeetingEvent{
		{ID: "a", Title: "Standup", StartDate: now.Add(10 * time.Minute), CalendarName: "Work", VideoLink: link, VideoService: "Zoom"},
		{ID: "b", Title: "Lunch", StartDate: now.Add(3 * time.Hour), CalendarName: "Home"},
	}, now)

	out := buf.String()
	assert.Contains(t, out, "Standup")
	assert.Contains(t, out, "10 minutes")
	assert.Contains(t, out, "Zoom")
	assert.Contains(t, out, "Lunch")
}

func TestRootCommand(t *testing.T) {
	root := newRootCommand()

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"run", "calendars", "upcoming", "google-auth", "version"})

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "Meeting Reminder dev")
}

func TestRunCommand_MissingConfig(t *testing.T) {
	root := newRootCommand()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"--config", t.TempDir() + "/missing.yaml", "--env-file", t.TempDir() + "/.env"})

	err := root.Execute()
	assert.ErrorContains(t, err, "failed to load config")
}
