package google

import (
	"log/slog"
	"testing"
	"time"

	"google.golang.org/api/calendar/v3"

	"github.com/venkytv/meeting-reminder/internal/models"
)

func TestParseEventTime(t *testing.T) {
	tests := []struct {
		name       string
		eventTime  *calendar.EventDateTime
		wantErr    bool
		expectHour int
		expectDay  int
	}{
		{
			name: "DateTime with timezone",
			eventTime: &calendar.EventDateTime{
				DateTime: "2025-10-27T14:00:00-07:00",
			},
			expectHour: 14,
			expectDay:  27,
		},
		{
			name: "All-day event with date only",
			eventTime: &calendar.EventDateTime{
				Date: "2025-10-27",
			},
			expectDay: 27,
		},
		{
			name: "All-day event in calendar timezone",
			eventTime: &calendar.EventDateTime{
				Date:     "2025-10-27",
				TimeZone: "Asia/Tokyo",
			},
			expectDay: 27,
		},
		{
			name:      "Nil event time",
			eventTime: nil,
			wantErr:   true,
		},
		{
			name:      "Empty event time",
			eventTime: &calendar.EventDateTime{},
			wantErr:   true,
		},
		{
			name:      "Malformed datetime",
			eventTime: &calendar.EventDateTime{DateTime: "tomorrow"},
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseEventTime(tt.eventTime)
			if (err != nil) != tt.wantErr {
				t.Errorf("parseEventTime() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr {
				if got.Day() != tt.expectDay {
					t.Errorf("parseEventTime() day = %v, want %v", got.Day(), tt.expectDay)
				}
				if tt.expectHour > 0 && got.Hour() != tt.expectHour {
					t.Errorf("parseEventTime() hour = %v, want %v", got.Hour(), tt.expectHour)
				}
			}
		})
	}
}

func TestConferenceURL(t *testing.T) {
	tests := []struct {
		name     string
		item     *calendar.Event
		expected string
	}{
		{
			name:     "hangout link",
			item:     &calendar.Event{HangoutLink: "https://meet.google.com/abc-defg-hij"},
			expected: "https://meet.google.com/abc-defg-hij",
		},
		{
			name: "video entry point",
			item: &calendar.Event{ConferenceData: &calendar.ConferenceData{
				EntryPoints: []*calendar.EntryPoint{
					{EntryPointType: "phone", Uri: "tel:+1-555-0100"},
					{EntryPointType: "video", Uri: "https://zoom.us/j/123456789"},
				},
			}},
			expected: "https://zoom.us/j/123456789",
		},
		{
			name:     "no conference",
			item:     &calendar.Event{},
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := conferenceURL(tt.item); got != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestExtractResponseStatus(t *testing.T) {
	tests := []struct {
		name      string
		attendees []*calendar.EventAttendee
		expected  string
	}{
		{name: "no attendees", expected: ""},
		{
			name: "self declined",
			attendees: []*calendar.EventAttendee{
				{Email: "other@example.com", ResponseStatus: "accepted"},
				{Email: "me@example.com", Self: true, ResponseStatus: "declined"},
			},
			expected: models.ResponseDeclined,
		},
		{
			name: "self needs action",
			attendees: []*calendar.EventAttendee{
				{Email: "me@example.com", Self: true, ResponseStatus: "needsAction"},
			},
			expected: models.ResponseNeedsAction,
		},
		{
			name: "self not in list",
			attendees: []*calendar.EventAttendee{
				{Email: "other@example.com", ResponseStatus: "declined"},
			},
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractResponseStatus(&calendar.Event{Attendees: tt.attendees})
			if got != tt.expected {
				t.Errorf("Expected response status %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestConvertEvent(t *testing.T) {
	p := NewProvider()
	p.SetLogger(slog.Default())

	item := &calendar.Event{
		Id:               "abc_20251027T210000Z",
		RecurringEventId: "abc",
		Summary:          "Weekly Sync",
		Description:      "Notes",
		Location:         "Room 1",
		HangoutLink:      "https://meet.google.com/abc-defg-hij",
		Status:           "confirmed",
		Start:            &calendar.EventDateTime{DateTime: "2025-10-27T14:00:00-07:00"},
		End:              &calendar.EventDateTime{DateTime: "2025-10-27T14:30:00-07:00"},
		Created:          "2025-10-01T10:00:00Z",
		Updated:          "2025-10-02T10:00:00Z",
	}

	event, err := p.convertEvent(item, "primary", "Work")
	if err != nil {
		t.Fatalf("convertEvent() error = %v", err)
	}

	if event.ID != "abc" {
		t.Errorf("Expected series ID 'abc', got %s", event.ID)
	}
	if event.Title != "Weekly Sync" {
		t.Errorf("Expected title 'Weekly Sync', got %s", event.Title)
	}
	if event.URL != "https://meet.google.com/abc-defg-hij" {
		t.Errorf("Expected hangout link as URL, got %s", event.URL)
	}
	if event.CalendarID != "primary" || event.CalendarName != "Work" {
		t.Errorf("Unexpected calendar %s/%s", event.CalendarID, event.CalendarName)
	}
	if event.AllDay {
		t.Error("Expected timed event")
	}
	if event.EndTime.Sub(event.StartTime) != 30*time.Minute {
		t.Errorf("Expected 30 minute duration, got %v", event.EndTime.Sub(event.StartTime))
	}
	if event.CreatedAt.IsZero() || event.ModifiedAt.IsZero() {
		t.Error("Expected created and updated times to be parsed")
	}

	allDay, err := p.convertEvent(&calendar.Event{
		Id:     "holiday",
		Status: "cancelled",
		Start:  &calendar.EventDateTime{Date: "2025-10-27"},
		End:    &calendar.EventDateTime{Date: "2025-10-28"},
	}, "primary", "Work")
	if err != nil {
		t.Fatalf("convertEvent() error = %v", err)
	}
	if !allDay.AllDay {
		t.Error("Expected date-only event to be all-day")
	}
	if !allDay.IsCancelled() {
		t.Error("Expected cancelled status to carry over")
	}

	if _, err := p.convertEvent(&calendar.Event{Id: "broken"}, "primary", "Work"); err == nil {
		t.Error("Expected error for event without start")
	}
}
