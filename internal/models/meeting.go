package models

import (
	"fmt"
	"math"
	"net/url"
	"time"
)

// UntitledMeeting is used when a provider event has no title.
const UntitledMeeting = "Untitled Meeting"

// happeningSoonWindow is how far ahead a meeting counts as "happening soon".
const happeningSoonWindow = 10 * time.Minute

// MeetingEvent is one concrete occurrence of a meeting. Values are built fresh
// on every fetch and never mutated afterwards.
type MeetingEvent struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	StartDate    time.Time `json:"start_date"`
	EndDate      time.Time `json:"end_date"`
	CalendarID   string    `json:"calendar_id"`
	CalendarName string    `json:"calendar_name"`
	VideoLink    *url.URL  `json:"-"`
	VideoService string    `json:"video_service,omitempty"`
	AllDay       bool      `json:"all_day,omitempty"`
}

// OccurrenceID combines a series identifier with an occurrence start so that
// each instance of a recurring series is distinguishable.
func OccurrenceID(seriesID string, start time.Time) string {
	return seriesID + "_" + start.UTC().Format(time.RFC3339)
}

// NewMeetingEvent builds the occurrence value for a provider event. An end
// before the start is clamped to the start.
func NewMeetingEvent(e *Event, videoLink *url.URL, videoService string) *MeetingEvent {
	title := e.Title
	if title == "" {
		title = UntitledMeeting
	}

	end := e.EndTime
	if end.Before(e.StartTime) {
		end = e.StartTime
	}

	return &MeetingEvent{
		ID:           e.OccurrenceID(),
		Title:        title,
		StartDate:    e.StartTime,
		EndDate:      end,
		CalendarID:   e.CalendarID,
		CalendarName: e.CalendarName,
		VideoLink:    videoLink,
		VideoService: videoService,
		AllDay:       e.AllDay,
	}
}

// Equal compares occurrences by identity only.
func (m *MeetingEvent) Equal(other *MeetingEvent) bool {
	if m == nil || other == nil {
		return m == other
	}
	return m.ID == other.ID
}

// TimeUntilStart returns the signed duration from now until the meeting starts.
func (m *MeetingEvent) TimeUntilStart(now time.Time) time.Duration {
	return m.StartDate.Sub(now)
}

// MinutesUntilStart rounds the time until start up to whole minutes.
func (m *MeetingEvent) MinutesUntilStart(now time.Time) int {
	return int(math.Ceil(m.TimeUntilStart(now).Seconds() / 60))
}

// IsHappeningSoon reports whether the meeting starts within the next ten minutes.
func (m *MeetingEvent) IsHappeningSoon(now time.Time) bool {
	until := m.TimeUntilStart(now)
	return until > 0 && until <= happeningSoonWindow
}

// IsInProgress reports whether now falls in [start, end).
func (m *MeetingEvent) IsInProgress(now time.Time) bool {
	return !now.Before(m.StartDate) && now.Before(m.EndDate)
}

// FormattedTimeUntil renders the time until start for display.
func (m *MeetingEvent) FormattedTimeUntil(now time.Time) string {
	return FormatMinutesUntil(m.MinutesUntilStart(now))
}

// FormattedStartTime renders the start time in the given location.
func (m *MeetingEvent) FormattedStartTime(loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return m.StartDate.In(loc).Format(time.Kitchen)
}

// VideoLinkString returns the video link as a string, or "" when absent.
func (m *MeetingEvent) VideoLinkString() string {
	if m.VideoLink == nil {
		return ""
	}
	return m.VideoLink.String()
}

// FormatMinutesUntil renders a minute count the way reminders show it.
func FormatMinutesUntil(totalMinutes int) string {
	switch {
	case totalMinutes <= 0:
		return "Now"
	case totalMinutes == 1:
		return "1 minute"
	case totalMinutes < 60:
		return fmt.Sprintf("%d minutes", totalMinutes)
	}

	hours := totalMinutes / 60
	minutes := totalMinutes % 60
	if minutes == 0 {
		return fmt.Sprintf("%d h", hours)
	}
	return fmt.Sprintf("%d h %d min", hours, minutes)
}
