package models

import (
	"time"
)

// NoticeKind describes what happened to a reminder.
type NoticeKind string

const (
	NoticeTriggered NoticeKind = "triggered"
	NoticeDismissed NoticeKind = "dismissed"
	NoticeSnoozed   NoticeKind = "snoozed"
	NoticeJoined    NoticeKind = "joined"
)

// Notice is the message format sent to presentation layers over NATS and HTTP.
type Notice struct {
	Kind         NoticeKind `json:"kind"`
	EventID      string     `json:"event_id"`
	Title        string     `json:"title"`
	Start        time.Time  `json:"start"`
	End          time.Time  `json:"end"`
	Calendar     string     `json:"calendar,omitempty"`
	VideoLink    string     `json:"video_link,omitempty"`
	VideoService string     `json:"video_service,omitempty"`
	TimeUntil    string     `json:"time_until"`
	SnoozedUntil *time.Time `json:"snoozed_until,omitempty"`
	EmittedAt    time.Time  `json:"emitted_at"`
}

// NewNotice creates a Notice for an event at the given instant.
func NewNotice(kind NoticeKind, event *MeetingEvent, at time.Time) *Notice {
	return &Notice{
		Kind:         kind,
		EventID:      event.ID,
		Title:        event.Title,
		Start:        event.StartDate,
		End:          event.EndDate,
		Calendar:     event.CalendarName,
		VideoLink:    event.VideoLinkString(),
		VideoService: event.VideoService,
		TimeUntil:    event.FormattedTimeUntil(at),
		EmittedAt:    at,
	}
}
