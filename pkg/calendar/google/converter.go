package google

import (
	"fmt"
	"strings"
	"time"

	"google.golang.org/api/calendar/v3"

	"github.com/venkytv/meeting-reminder/internal/models"
)

// convertEvent converts a Google Calendar event to our internal Event model
func (p *Provider) convertEvent(item *calendar.Event, calendarID, calendarName string) (*models.Event, error) {
	startTime, err := parseEventTime(item.Start)
	if err != nil {
		return nil, fmt.Errorf("failed to parse start time: %w", err)
	}

	endTime, err := parseEventTime(item.End)
	if err != nil {
		p.logger.Warn("Failed to parse end time, using start time",
			"event_id", item.Id,
			"error", err)
		endTime = startTime
	}

	var createdAt time.Time
	if item.Created != "" {
		createdAt, err = time.Parse(time.RFC3339, item.Created)
		if err != nil {
			p.logger.Warn("Failed to parse created time, using zero value",
				"event_id", item.Id,
				"error", err)
		}
	}

	var modifiedAt time.Time
	if item.Updated != "" {
		modifiedAt, err = time.Parse(time.RFC3339, item.Updated)
		if err != nil {
			p.logger.Warn("Failed to parse updated time, using zero value",
				"event_id", item.Id,
				"error", err)
		}
	}

	// Instances of a recurring series share the series id; the occurrence id
	// adds the start time.
	id := item.Id
	if item.RecurringEventId != "" {
		id = item.RecurringEventId
	}

	event := &models.Event{
		ID:             id,
		Title:          item.Summary,
		Description:    item.Description,
		Location:       item.Location,
		URL:            conferenceURL(item),
		StartTime:      startTime,
		EndTime:        endTime,
		AllDay:         item.Start != nil && item.Start.DateTime == "" && item.Start.Date != "",
		CalendarID:     calendarID,
		CalendarName:   calendarName,
		Status:         strings.ToLower(item.Status),
		CreatedAt:      createdAt,
		ModifiedAt:     modifiedAt,
		ResponseStatus: extractResponseStatus(item),
	}

	return event, nil
}

// conferenceURL returns the structured meeting link of an event: the Meet
// hangout link, or the video entry point of its conference data.
func conferenceURL(item *calendar.Event) string {
	if item.HangoutLink != "" {
		return item.HangoutLink
	}
	if item.ConferenceData == nil {
		return ""
	}
	for _, entry := range item.ConferenceData.EntryPoints {
		if entry != nil && entry.EntryPointType == "video" && entry.Uri != "" {
			return entry.Uri
		}
	}
	return ""
}

// parseEventTime parses Google Calendar event time (handles both dateTime and date fields)
func parseEventTime(eventTime *calendar.EventDateTime) (time.Time, error) {
	if eventTime == nil {
		return time.Time{}, fmt.Errorf("event time is nil")
	}

	if eventTime.DateTime != "" {
		t, err := time.Parse(time.RFC3339, eventTime.DateTime)
		if err != nil {
			return time.Time{}, fmt.Errorf("failed to parse datetime: %w", err)
		}
		return t, nil
	}

	// All-day events only carry a date
	if eventTime.Date != "" {
		loc := time.Local
		if eventTime.TimeZone != "" {
			if l, err := time.LoadLocation(eventTime.TimeZone); err == nil {
				loc = l
			}
		}
		t, err := time.ParseInLocation("2006-01-02", eventTime.Date, loc)
		if err != nil {
			return time.Time{}, fmt.Errorf("failed to parse date: %w", err)
		}
		return t, nil
	}

	return time.Time{}, fmt.Errorf("no datetime or date field found")
}

// extractResponseStatus extracts the authenticated user's response status from attendees
func extractResponseStatus(item *calendar.Event) string {
	for _, attendee := range item.Attendees {
		if attendee == nil || !attendee.Self {
			continue
		}
		// Google uses the same vocabulary as the internal model
		switch attendee.ResponseStatus {
		case models.ResponseAccepted, models.ResponseDeclined, models.ResponseTentative, models.ResponseNeedsAction:
			return attendee.ResponseStatus
		default:
			return strings.ToLower(attendee.ResponseStatus)
		}
	}

	// No "self" attendee: an event the user organizes, or no attendee list.
	return ""
}
