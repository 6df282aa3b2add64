package ical

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/google/uuid"
	"github.com/teambition/rrule-go"

	"github.com/venkytv/meeting-reminder/internal/models"
)

const (
	icalTimestampUTC   = "20060102T150405Z"
	icalTimestampLocal = "20060102T150405"
	icalDate           = "20060102"
)

// seriesNamespace seeds the UUIDs assigned to events that have no UID.
var seriesNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("meeting-reminder/ical"))

// ParseOptions describes the calendar a feed belongs to.
type ParseOptions struct {
	CalendarID   string
	CalendarName string
	UserEmail    string
}

// ParseICalData parses an iCalendar document and returns the event
// occurrences overlapping [from, to]. Recurring series are expanded; EXDATE
// entries are skipped and RECURRENCE-ID overrides replace the instance they
// modify.
func ParseICalData(icalData string, opts ParseOptions, from, to time.Time, logger *slog.Logger) ([]*models.Event, error) {
	if logger == nil {
		logger = slog.Default()
	}

	calendar, err := ics.ParseCalendar(strings.NewReader(icalData))
	if err != nil {
		return nil, fmt.Errorf("failed to parse iCal data: %w", err)
	}

	if opts.CalendarName == "" {
		opts.CalendarName = CalendarName(calendar)
	}

	// Overrides are keyed by UID and the instant of the instance they replace.
	overrides := make(map[string]map[int64]bool)
	for _, vevent := range calendar.Events() {
		recurrenceID := vevent.GetProperty(ics.ComponentPropertyRecurrenceId)
		if recurrenceID == nil || vevent.Id() == "" {
			continue
		}
		instant, _, err := parseTimeProperty(recurrenceID)
		if err != nil {
			logger.Warn("Failed to parse RECURRENCE-ID", "error", err, "event_id", vevent.Id(), "calendar_id", opts.CalendarID)
			continue
		}
		if overrides[vevent.Id()] == nil {
			overrides[vevent.Id()] = make(map[int64]bool)
		}
		overrides[vevent.Id()][instant.Unix()] = true
	}

	var events []*models.Event
	for _, vevent := range calendar.Events() {
		base, err := ConvertICSEventToInternalEvent(vevent, opts, logger)
		if err != nil {
			logger.Warn("Failed to convert iCal event", "error", err, "calendar_id", opts.CalendarID)
			continue
		}

		rule := vevent.GetProperty(ics.ComponentPropertyRrule)
		if rule == nil || vevent.HasProperty(ics.ComponentPropertyRecurrenceId) {
			if overlaps(base, from, to) {
				events = append(events, base)
			}
			continue
		}

		occurrences, err := expandRecurrence(vevent, base, rule.Value, overrides[base.ID], from, to)
		if err != nil {
			logger.Warn("Failed to expand recurring event, using first occurrence only",
				"error", err,
				"event_id", base.ID,
				"calendar_id", opts.CalendarID)
			if overlaps(base, from, to) {
				events = append(events, base)
			}
			continue
		}
		events = append(events, occurrences...)
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].StartTime.Before(events[j].StartTime)
	})

	return events, nil
}

// CalendarName returns the X-WR-CALNAME of the calendar, if any.
func CalendarName(calendar *ics.Calendar) string {
	for _, prop := range calendar.CalendarProperties {
		if prop.IANAToken == string(ics.PropertyXWRCalName) {
			return ics.FromText(prop.Value)
		}
	}
	return ""
}

func overlaps(event *models.Event, from, to time.Time) bool {
	if event.EndTime.Equal(event.StartTime) {
		return !event.StartTime.Before(from) && !event.StartTime.After(to)
	}
	return event.StartTime.Before(to) && event.EndTime.After(from)
}

// expandRecurrence returns the occurrences of a recurring series that overlap
// [from, to], each a copy of base moved to its own start.
func expandRecurrence(vevent *ics.VEvent, base *models.Event, rule string, overridden map[int64]bool, from, to time.Time) ([]*models.Event, error) {
	option, err := rrule.StrToROptionInLocation(rule, base.StartTime.Location())
	if err != nil {
		return nil, fmt.Errorf("invalid RRULE %q: %w", rule, err)
	}
	option.Dtstart = base.StartTime

	recurrence, err := rrule.NewRRule(*option)
	if err != nil {
		return nil, fmt.Errorf("invalid RRULE %q: %w", rule, err)
	}

	set := &rrule.Set{}
	set.RRule(recurrence)
	for _, prop := range vevent.GetProperties(ics.ComponentPropertyExdate) {
		exdates, err := parseTimeList(prop)
		if err != nil {
			return nil, fmt.Errorf("invalid EXDATE: %w", err)
		}
		for _, exdate := range exdates {
			set.ExDate(exdate)
		}
	}

	duration := base.EndTime.Sub(base.StartTime)
	var occurrences []*models.Event
	for _, start := range set.Between(from.Add(-duration), to, true) {
		if overridden[start.Unix()] {
			continue
		}

		occurrence := *base
		occurrence.StartTime = start
		occurrence.EndTime = start.Add(duration)
		if overlaps(&occurrence, from, to) {
			occurrences = append(occurrences, &occurrence)
		}
	}

	return occurrences, nil
}

// ConvertICSEventToInternalEvent converts an ics.VEvent to our internal Event model
func ConvertICSEventToInternalEvent(event *ics.VEvent, opts ParseOptions, logger *slog.Logger) (*models.Event, error) {
	if logger == nil {
		logger = slog.Default()
	}

	internalEvent := &models.Event{
		ID:           event.Id(),
		CalendarID:   opts.CalendarID,
		CalendarName: opts.CalendarName,
	}

	internalEvent.Title = textProperty(event, ics.ComponentPropertySummary)
	internalEvent.Description = textProperty(event, ics.ComponentPropertyDescription)
	internalEvent.Location = textProperty(event, ics.ComponentPropertyLocation)
	internalEvent.URL = strings.TrimSpace(textProperty(event, ics.ComponentPropertyUrl))
	internalEvent.Status = strings.ToLower(textProperty(event, ics.ComponentPropertyStatus))

	startProp := event.GetProperty(ics.ComponentPropertyDtStart)
	if startProp == nil {
		return nil, fmt.Errorf("event missing start time")
	}
	startTime, allDay, err := parseTimeProperty(startProp)
	if err != nil {
		return nil, fmt.Errorf("failed to parse start time: %w", err)
	}
	internalEvent.StartTime = startTime
	internalEvent.AllDay = allDay

	if endProp := event.GetProperty(ics.ComponentPropertyDtEnd); endProp != nil {
		endTime, _, err := parseTimeProperty(endProp)
		if err != nil {
			logger.Warn("Failed to parse end time, using default duration", "error", err, "event_id", internalEvent.ID)
			internalEvent.EndTime = defaultEnd(startTime, allDay)
		} else {
			internalEvent.EndTime = endTime
		}
	} else {
		internalEvent.EndTime = defaultEnd(startTime, allDay)
	}

	if created, err := timeProperty(event, ics.ComponentPropertyCreated); err == nil {
		internalEvent.CreatedAt = created
	}
	if modified, err := event.GetLastModifiedAt(); err == nil {
		internalEvent.ModifiedAt = modified
	}

	internalEvent.ResponseStatus = extractResponseStatusFromAttendees(event, opts.UserEmail)

	if internalEvent.ID == "" {
		internalEvent.ID = fallbackSeriesID(opts.CalendarID, internalEvent.Title, startTime)
		logger.Debug("Event missing UID, derived stable id", "event_id", internalEvent.ID, "title", internalEvent.Title)
	}

	return internalEvent, nil
}

// fallbackSeriesID derives a stable identifier for an event without a UID, so
// the same event keeps its identity across refreshes.
func fallbackSeriesID(calendarID, title string, start time.Time) string {
	name := calendarID + "\x00" + title + "\x00" + start.UTC().Format(time.RFC3339)
	return uuid.NewSHA1(seriesNamespace, []byte(name)).String()
}

// Events without DTEND last one hour, or one day when all-day.
func defaultEnd(start time.Time, allDay bool) time.Time {
	if allDay {
		return start.AddDate(0, 0, 1)
	}
	return start.Add(time.Hour)
}

func textProperty(event *ics.VEvent, property ics.ComponentProperty) string {
	if prop := event.GetProperty(property); prop != nil {
		return ics.FromText(prop.Value)
	}
	return ""
}

func timeProperty(event *ics.VEvent, property ics.ComponentProperty) (time.Time, error) {
	prop := event.GetProperty(property)
	if prop == nil {
		return time.Time{}, fmt.Errorf("property %s not found", property)
	}
	t, _, err := parseTimeProperty(prop)
	return t, err
}

// parseTimeProperty parses a DATE or DATE-TIME property value, honoring TZID.
// The boolean reports whether the value is a date without a time.
func parseTimeProperty(prop *ics.IANAProperty) (time.Time, bool, error) {
	times, allDay, err := parseTimes(prop, strings.TrimSpace(prop.Value))
	if err != nil {
		return time.Time{}, false, err
	}
	return times[0], allDay, nil
}

// parseTimeList parses a property holding a comma separated list of times,
// like EXDATE.
func parseTimeList(prop *ics.IANAProperty) ([]time.Time, error) {
	times, _, err := parseTimes(prop, prop.Value)
	return times, err
}

func parseTimes(prop *ics.IANAProperty, value string) ([]time.Time, bool, error) {
	loc := time.Local
	if tzid, ok := prop.ICalParameters[string(ics.ParameterTzid)]; ok && len(tzid) > 0 {
		l, err := time.LoadLocation(strings.Trim(tzid[0], `"`))
		if err != nil {
			return nil, false, fmt.Errorf("unknown TZID %q: %w", tzid[0], err)
		}
		loc = l
	}

	dateOnly := false
	if v, ok := prop.ICalParameters[string(ics.ParameterValue)]; ok && len(v) > 0 {
		dateOnly = strings.EqualFold(v[0], string(ics.ValueDataTypeDate))
	}

	var times []time.Time
	for _, raw := range strings.Split(value, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}

		var (
			t   time.Time
			err error
		)
		switch {
		case len(raw) == len(icalDate):
			dateOnly = true
			t, err = time.ParseInLocation(icalDate, raw, loc)
		case strings.HasSuffix(raw, "Z"):
			t, err = time.ParseInLocation(icalTimestampUTC, raw, time.UTC)
		default:
			t, err = time.ParseInLocation(icalTimestampLocal, raw, loc)
		}
		if err != nil {
			return nil, false, fmt.Errorf("invalid time value %q: %w", raw, err)
		}
		times = append(times, t)
	}

	if len(times) == 0 {
		return nil, false, fmt.Errorf("empty time value")
	}
	return times, dateOnly, nil
}

// extractResponseStatusFromAttendees extracts the user's response status from ATTENDEE properties
func extractResponseStatusFromAttendees(event *ics.VEvent, userEmail string) string {
	attendees := event.GetProperties(ics.ComponentPropertyAttendee)
	if len(attendees) == 0 || userEmail == "" {
		return ""
	}

	normalizedUserEmail := strings.ToLower(strings.TrimSpace(userEmail))

	for _, attendee := range attendees {
		// ATTENDEE value is typically "mailto:email@example.com"
		attendeeValue := strings.ToLower(strings.TrimSpace(attendee.Value))
		attendeeEmail := strings.TrimPrefix(attendeeValue, "mailto:")
		if attendeeEmail != normalizedUserEmail {
			continue
		}

		partstat := attendee.ICalParameters[string(ics.ParameterParticipationStatus)]
		if len(partstat) == 0 {
			return models.ResponseNeedsAction
		}
		switch status := strings.ToLower(partstat[0]); status {
		case "accepted":
			return models.ResponseAccepted
		case "declined":
			return models.ResponseDeclined
		case "tentative":
			return models.ResponseTentative
		case "needs-action":
			return models.ResponseNeedsAction
		default:
			return status
		}
	}

	// User not among the attendees; treat like an event without attendee info.
	return ""
}
