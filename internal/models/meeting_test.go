package models

import (
	"net/url"
	"testing"
	"time"
)

var testNow = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func makeMeeting(startingIn, duration time.Duration) *MeetingEvent {
	start := testNow.Add(startingIn)
	return &MeetingEvent{
		ID:           OccurrenceID("test", start),
		Title:        "Test Meeting",
		StartDate:    start,
		EndDate:      start.Add(duration),
		CalendarName: "Work",
	}
}

func TestFormattedTimeUntil(t *testing.T) {
	tests := []struct {
		name       string
		startingIn time.Duration
		expected   string
	}{
		{"already started", -1 * time.Minute, "Now"},
		{"exactly now", 0, "Now"},
		{"half a minute rounds up", 30 * time.Second, "1 minute"},
		{"several minutes", 5 * time.Minute, "5 minutes"},
		{"exact hour", 60 * time.Minute, "1 h"},
		{"hour and a half", 90 * time.Minute, "1 h 30 min"},
		{"multiple hours", 150 * time.Minute, "2 h 30 min"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := makeMeeting(tt.startingIn, 30*time.Minute)
			if got := event.FormattedTimeUntil(testNow); got != tt.expected {
				t.Errorf("FormattedTimeUntil() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestMinutesUntilStart(t *testing.T) {
	if got := makeMeeting(10*time.Minute, time.Hour).MinutesUntilStart(testNow); got != 10 {
		t.Errorf("Expected 10 minutes, got %d", got)
	}

	if got := makeMeeting(2*time.Minute+6*time.Second, time.Hour).MinutesUntilStart(testNow); got != 3 {
		t.Errorf("Expected ceiling of 2.1 minutes to be 3, got %d", got)
	}

	if got := makeMeeting(-5*time.Minute, time.Hour).MinutesUntilStart(testNow); got >= 0 {
		t.Errorf("Expected negative minutes for a started meeting, got %d", got)
	}
}

func TestIsHappeningSoon(t *testing.T) {
	tests := []struct {
		name       string
		startingIn time.Duration
		expected   bool
	}{
		{"within ten minutes", 5 * time.Minute, true},
		{"exactly ten minutes", 10 * time.Minute, true},
		{"far future", 60 * time.Minute, false},
		{"already started", -1 * time.Minute, false},
		{"starting now", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := makeMeeting(tt.startingIn, 30*time.Minute).IsHappeningSoon(testNow); got != tt.expected {
				t.Errorf("IsHappeningSoon() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestIsInProgress(t *testing.T) {
	if !makeMeeting(-5*time.Minute, 30*time.Minute).IsInProgress(testNow) {
		t.Error("Expected meeting to be in progress")
	}
	if !makeMeeting(0, 30*time.Minute).IsInProgress(testNow) {
		t.Error("Expected meeting starting now to be in progress")
	}
	if makeMeeting(10*time.Minute, 30*time.Minute).IsInProgress(testNow) {
		t.Error("Expected future meeting to not be in progress")
	}
	if makeMeeting(-60*time.Minute, 30*time.Minute).IsInProgress(testNow) {
		t.Error("Expected finished meeting to not be in progress")
	}
	if makeMeeting(-30*time.Minute, 30*time.Minute).IsInProgress(testNow) {
		t.Error("Expected meeting ending exactly now to not be in progress")
	}
}

func TestEqualityBasedOnID(t *testing.T) {
	a := &MeetingEvent{ID: "same", Title: "A", CalendarName: "X"}
	b := &MeetingEvent{ID: "same", Title: "B", CalendarName: "Y"}
	c := &MeetingEvent{ID: "other", Title: "A", CalendarName: "X"}

	if !a.Equal(b) {
		t.Error("Expected events with the same ID to be equal")
	}
	if a.Equal(c) {
		t.Error("Expected events with different IDs to differ")
	}
	if a.Equal(nil) {
		t.Error("Expected event to differ from nil")
	}
}

func TestNewMeetingEvent(t *testing.T) {
	start := testNow.Add(15 * time.Minute)
	link, _ := url.Parse("https://meet.google.com/abc-defg-hij")

	raw := &Event{
		ID:           "series",
		StartTime:    start,
		EndTime:      start.Add(-10 * time.Minute),
		CalendarID:   "cal-1",
		CalendarName: "Work",
	}

	event := NewMeetingEvent(raw, link, "Google Meet")

	if event.Title != UntitledMeeting {
		t.Errorf("Expected placeholder title, got %q", event.Title)
	}
	if !event.EndDate.Equal(start) {
		t.Errorf("Expected end before start to be clamped to start, got %v", event.EndDate)
	}
	if event.ID != OccurrenceID("series", start) {
		t.Errorf("Unexpected ID %s", event.ID)
	}
	if event.VideoLinkString() != "https://meet.google.com/abc-defg-hij" {
		t.Errorf("Unexpected video link %s", event.VideoLinkString())
	}
	if event.VideoService != "Google Meet" {
		t.Errorf("Unexpected video service %s", event.VideoService)
	}
}

func TestFormattedStartTime(t *testing.T) {
	event := makeMeeting(0, time.Hour)
	if got := event.FormattedStartTime(time.UTC); got != "9:00AM" {
		t.Errorf("FormattedStartTime() = %q, want %q", got, "9:00AM")
	}
	if event.FormattedStartTime(nil) == "" {
		t.Error("Expected non-empty start time with nil location")
	}
}

func TestNewNotice(t *testing.T) {
	event := makeMeeting(90*time.Minute, time.Hour)
	notice := NewNotice(NoticeTriggered, event, testNow)

	if notice.Kind != NoticeTriggered {
		t.Errorf("Expected kind %s, got %s", NoticeTriggered, notice.Kind)
	}
	if notice.TimeUntil != "1 h 30 min" {
		t.Errorf("Expected time until %q, got %q", "1 h 30 min", notice.TimeUntil)
	}
	if notice.VideoLink != "" {
		t.Errorf("Expected empty video link, got %q", notice.VideoLink)
	}
}
