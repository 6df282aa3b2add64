package models

import (
	"time"
)

// Response statuses for the authenticated user on an event.
const (
	ResponseAccepted    = "accepted"
	ResponseDeclined    = "declined"
	ResponseTentative   = "tentative"
	ResponseNeedsAction = "needsAction"
)

// StatusCancelled marks an event the organizer has cancelled.
const StatusCancelled = "cancelled"

// Event represents a calendar event as delivered by a provider, before any
// visibility filtering or link detection.
type Event struct {
	// ID identifies the series (or the single event) at the provider.
	// Occurrences of one recurring series share it.
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Description    string    `json:"description,omitempty"`
	Location       string    `json:"location,omitempty"`
	URL            string    `json:"url,omitempty"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	AllDay         bool      `json:"all_day,omitempty"`
	CalendarID     string    `json:"calendar_id"`
	CalendarName   string    `json:"calendar_name"`
	Provider       string    `json:"provider,omitempty"` // configured provider name, set by the manager
	Status         string    `json:"status,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	ModifiedAt     time.Time `json:"modified_at"`
	ResponseStatus string    `json:"response_status,omitempty"` // accepted, declined, tentative, needsAction
}

// OccurrenceID returns the identifier of this particular occurrence.
func (e *Event) OccurrenceID() string {
	return OccurrenceID(e.ID, e.StartTime)
}

// IsDeclined returns true if the user has declined the invitation.
// Empty response status means the provider had no attendee info for the user.
func (e *Event) IsDeclined() bool {
	return e.ResponseStatus == ResponseDeclined
}

// IsCancelled returns true if the organizer cancelled the event.
func (e *Event) IsCancelled() bool {
	return e.Status == StatusCancelled
}
