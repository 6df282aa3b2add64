package calendar

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/venkytv/meeting-reminder/internal/models"
)

var sourceNow = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

type fakeStore struct {
	mu        sync.Mutex
	events    []*models.Event
	calendars []*Calendar
	err       error
	calls     int
	lastFrom  time.Time
	lastTo    time.Time
	onChange  func()
}

func (f *fakeStore) GetAllEvents(ctx context.Context, from, to time.Time, allowedCalendarIDs ...string) ([]*models.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastFrom, f.lastTo = from, to
	return f.events, f.err
}

func (f *fakeStore) GetAllCalendars(ctx context.Context) ([]*Calendar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calendars, nil
}

func (f *fakeStore) Watch(ctx context.Context, onChange func()) error {
	f.mu.Lock()
	f.onChange = onChange
	f.mu.Unlock()
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeStore) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeStore) fireChange() bool {
	f.mu.Lock()
	onChange := f.onChange
	f.mu.Unlock()
	if onChange == nil {
		return false
	}
	onChange()
	return true
}

func event(id string, start time.Time) *models.Event {
	return &models.Event{
		ID:         id,
		Title:      id,
		StartTime:  start,
		EndTime:    start.Add(30 * time.Minute),
		CalendarID: "work",
	}
}

func TestVisibleEvents_Filters(t *testing.T) {
	from := sourceNow.Add(-5 * time.Minute)
	to := EndOfDay(sourceNow, time.UTC)

	allDay := event("all-day", sourceNow.Add(time.Hour))
	allDay.AllDay = true

	declined := event("declined", sourceNow.Add(time.Hour))
	declined.ResponseStatus = models.ResponseDeclined

	cancelled := event("cancelled", sourceNow.Add(time.Hour))
	cancelled.Status = models.StatusCancelled

	otherCalendar := event("other-calendar", sourceNow.Add(time.Hour))
	otherCalendar.CalendarID = "personal"

	tests := []struct {
		name     string
		events   []*models.Event
		allowed  []string
		expected []string
	}{
		{
			name:     "all-day dropped",
			events:   []*models.Event{allDay},
			expected: []string{},
		},
		{
			name:     "declined dropped",
			events:   []*models.Event{declined},
			expected: []string{},
		},
		{
			name:     "cancelled dropped",
			events:   []*models.Event{cancelled},
			expected: []string{},
		},
		{
			name:     "empty allow-list admits every calendar",
			events:   []*models.Event{event("a", sourceNow.Add(time.Hour)), otherCalendar},
			expected: []string{"a", "other-calendar"},
		},
		{
			name:     "allow-list restricts calendars",
			events:   []*models.Event{event("a", sourceNow.Add(time.Hour)), otherCalendar},
			allowed:  []string{"work"},
			expected: []string{"a"},
		},
		{
			name: "start window is inclusive",
			events: []*models.Event{
				event("too-early", from.Add(-time.Second)),
				event("at-lookback", from),
				event("at-end", to),
				event("tomorrow", to.Add(time.Second)),
			},
			expected: []string{"at-lookback", "at-end"},
		},
		{
			name: "sorted by start",
			events: []*models.Event{
				event("late", sourceNow.Add(3*time.Hour)),
				event("early", sourceNow.Add(time.Hour)),
			},
			expected: []string{"early", "late"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			visible := VisibleEvents(tt.events, from, to, tt.allowed, nil)

			titles := make([]string, 0, len(visible))
			for _, m := range visible {
				titles = append(titles, m.Title)
			}
			assert.Equal(t, tt.expected, titles)
		})
	}
}

func TestVisibleEvents_LinkDetection(t *testing.T) {
	from := sourceNow.Add(-5 * time.Minute)
	to := EndOfDay(sourceNow, time.UTC)

	structured := event("structured", sourceNow.Add(time.Hour))
	structured.URL = "https://meet.google.com/abc-defg-hij"
	structured.Description = "https://zoom.us/j/123"

	notes := event("notes", sourceNow.Add(2*time.Hour))
	notes.Description = "Join: https://zoom.us/j/987654321?pwd=x)"
	notes.Location = "https://teams.microsoft.com/l/meetup-join/abc"

	location := event("location", sourceNow.Add(3*time.Hour))
	location.Location = "https://acme.webex.com/meet/room"

	none := event("none", sourceNow.Add(4*time.Hour))
	none.Location = "Room 4"

	visible := VisibleEvents([]*models.Event{structured, notes, location, none}, from, to, nil, nil)
	require.Len(t, visible, 4)

	assert.Equal(t, "https://meet.google.com/abc-defg-hij", visible[0].VideoLinkString())
	assert.Equal(t, "Google Meet", visible[0].VideoService)

	assert.Equal(t, "https://zoom.us/j/987654321?pwd=x", visible[1].VideoLinkString())
	assert.Equal(t, "Zoom", visible[1].VideoService)

	assert.Equal(t, "Webex", visible[2].VideoService)

	assert.Nil(t, visible[3].VideoLink)
	assert.Empty(t, visible[3].VideoService)
}

func TestVisibleEvents_ConvertsToOccurrence(t *testing.T) {
	e := event("series", sourceNow.Add(time.Hour))
	e.Title = ""
	e.EndTime = e.StartTime.Add(-time.Minute)

	visible := VisibleEvents([]*models.Event{e}, sourceNow, EndOfDay(sourceNow, time.UTC), nil, nil)
	require.Len(t, visible, 1)

	assert.Equal(t, models.OccurrenceID("series", e.StartTime), visible[0].ID)
	assert.Equal(t, models.UntitledMeeting, visible[0].Title)
	assert.True(t, visible[0].EndDate.Equal(visible[0].StartDate))
}

func TestEndOfDay(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	got := EndOfDay(time.Date(2025, 3, 10, 23, 30, 0, 0, time.UTC), loc)

	assert.Equal(t, time.Date(2025, 3, 11, 23, 59, 59, 0, loc), got)
}

func TestSource_FetchVisibleEventsAccessDenied(t *testing.T) {
	store := &fakeStore{err: ErrAccessDenied}
	source := NewSource(store, SourceConfig{Location: time.UTC}, clock.NewMock(), nil, nil)

	events := source.FetchVisibleEvents(context.Background(), sourceNow, EndOfDay(sourceNow, time.UTC), nil)
	assert.Empty(t, events)
	assert.False(t, source.AccessGranted())

	store.err = nil
	store.events = []*models.Event{event("a", sourceNow.Add(time.Hour))}

	events = source.FetchVisibleEvents(context.Background(), sourceNow, EndOfDay(sourceNow, time.UTC), nil)
	assert.Len(t, events, 1)
	assert.True(t, source.AccessGranted())
}

func TestSource_FetchVisibleEventsPartialFailure(t *testing.T) {
	store := &fakeStore{
		events: []*models.Event{event("a", sourceNow.Add(time.Hour))},
		err:    errors.New("provider home: timeout"),
	}
	source := NewSource(store, SourceConfig{Location: time.UTC}, clock.NewMock(), nil, nil)

	events := source.FetchVisibleEvents(context.Background(), sourceNow, EndOfDay(sourceNow, time.UTC), nil)
	assert.Len(t, events, 1)
	assert.True(t, source.AccessGranted())
}

func TestSource_Refresh(t *testing.T) {
	mock := clock.NewMock()
	mock.Set(sourceNow)

	store := &fakeStore{
		events:    []*models.Event{event("a", sourceNow.Add(time.Hour))},
		calendars: []*Calendar{{ID: "work", Name: "Work"}},
	}
	source := NewSource(store, SourceConfig{Location: time.UTC}, mock, nil, nil)

	events := source.Refresh(context.Background())
	require.Len(t, events, 1)

	assert.Equal(t, sourceNow.Add(-DefaultLookback), store.lastFrom)
	assert.Equal(t, time.Date(2025, 3, 10, 23, 59, 59, 0, time.UTC), store.lastTo)
	assert.Len(t, source.Events(), 1)
	assert.Equal(t, "Work", source.Calendars()[0].Name)
	assert.Equal(t, sourceNow, source.LastRefresh())

	select {
	case snapshot := <-source.Updates():
		assert.Len(t, snapshot, 1)
	default:
		t.Fatal("expected a snapshot on Updates")
	}
}

func TestSource_UpdatesKeepsLatestSnapshot(t *testing.T) {
	mock := clock.NewMock()
	mock.Set(sourceNow)

	store := &fakeStore{}
	source := NewSource(store, SourceConfig{Location: time.UTC}, mock, nil, nil)

	source.Refresh(context.Background())
	store.events = []*models.Event{event("a", sourceNow.Add(time.Hour))}
	source.Refresh(context.Background())

	snapshot := <-source.Updates()
	assert.Len(t, snapshot, 1)

	select {
	case <-source.Updates():
		t.Fatal("expected only the latest snapshot to be retained")
	default:
	}
}

func TestSource_Run(t *testing.T) {
	mock := clock.NewMock()
	mock.Set(sourceNow)

	store := &fakeStore{}
	source := NewSource(store, SourceConfig{Location: time.UTC, RefreshInterval: time.Minute}, mock, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- source.Run(ctx) }()

	require.Eventually(t, func() bool { return store.Calls() == 1 }, time.Second, 5*time.Millisecond)

	mock.Add(time.Minute)
	require.Eventually(t, func() bool { return store.Calls() == 2 }, time.Second, 5*time.Millisecond)

	require.Eventually(t, store.fireChange, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return store.Calls() == 3 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}

func TestFetchVisibleEvents_AllowListKeepsDuplicateFromAllowedCalendar(t *testing.T) {
	start := sourceNow.Add(3 * time.Minute)

	alpha := NewMockProvider("alpha", "mock")
	alpha.SetEvents([]*models.Event{{ID: "standup-a", Title: "Standup", StartTime: start, EndTime: start.Add(15 * time.Minute), CalendarID: "cal-a"}})
	beta := NewMockProvider("beta", "mock")
	beta.SetEvents([]*models.Event{{ID: "standup-b", Title: "Standup", StartTime: start, EndTime: start.Add(15 * time.Minute), CalendarID: "cal-b"}})

	manager := NewManager(nil)
	manager.AddProvider("alpha", alpha, "cal-a")
	manager.AddProvider("beta", beta, "cal-b")

	source := NewSource(manager, SourceConfig{Location: time.UTC}, clock.NewMock(), nil, nil)

	visible := source.FetchVisibleEvents(context.Background(), sourceNow, EndOfDay(sourceNow, time.UTC), []string{"cal-b"})
	require.Len(t, visible, 1, "meeting in the allowed calendar must survive dedup")
	assert.Equal(t, "cal-b", visible[0].CalendarID)

	all := source.FetchVisibleEvents(context.Background(), sourceNow, EndOfDay(sourceNow, time.UTC), nil)
	assert.Len(t, all, 1, "copies are still merged without an allow-list")
}
