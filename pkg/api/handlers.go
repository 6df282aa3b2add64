package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/venkytv/meeting-reminder/internal/models"
	"github.com/venkytv/meeting-reminder/pkg/calendar"
	"github.com/venkytv/meeting-reminder/pkg/scheduler"
)

type healthResponse struct {
	Status        string            `json:"status"`
	AccessGranted bool              `json:"access_granted"`
	LastRefresh   *time.Time        `json:"last_refresh,omitempty"`
	Providers     map[string]string `json:"providers,omitempty"`
	Scheduler     *scheduler.Stats  `json:"scheduler,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:        "ok",
		AccessGranted: s.events.AccessGranted(),
	}
	if last := s.events.LastRefresh(); !last.IsZero() {
		resp.LastRefresh = &last
	}
	if !resp.AccessGranted {
		resp.Status = "degraded"
	}

	if s.health != nil {
		resp.Providers = make(map[string]string)
		for name, err := range s.health.HealthCheck(r.Context()) {
			if err != nil {
				resp.Providers[name] = err.Error()
				resp.Status = "degraded"
				continue
			}
			resp.Providers[name] = "ok"
		}
	}

	if stats, err := s.reminders.Stats(r.Context()); err == nil {
		resp.Scheduler = &stats
	} else {
		resp.Status = "degraded"
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, resp)
}

func (s *Server) handleActive(w http.ResponseWriter, r *http.Request) {
	active, err := s.reminders.Active(r.Context())
	if err != nil {
		s.writeCommandError(w, err)
		return
	}
	if active == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.writeJSON(w, http.StatusOK, models.NewNotice(models.NoticeTriggered, active, s.clock.Now()))
}

func (s *Server) handleDismiss(w http.ResponseWriter, r *http.Request) {
	change, ok, err := s.reminders.Dismiss(r.Context())
	s.writeChange(w, change, ok, err, "no active reminder")
}

type snoozeRequest struct {
	Minutes int `json:"minutes"`
}

func (s *Server) handleSnooze(w http.ResponseWriter, r *http.Request) {
	var req snoozeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, http.StatusBadRequest, "Error parsing request body: "+err.Error())
		return
	}

	change, ok, err := s.reminders.Snooze(r.Context(), req.Minutes)
	s.writeChange(w, change, ok, err, "no active reminder")
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	change, ok, err := s.reminders.Join(r.Context())
	s.writeChange(w, change, ok, err, "no active reminder with a video link")
}

func (s *Server) writeChange(w http.ResponseWriter, change scheduler.Change, ok bool, err error, conflict string) {
	switch {
	case err != nil:
		s.writeCommandError(w, err)
	case !ok:
		s.writeError(w, http.StatusConflict, conflict)
	default:
		s.writeJSON(w, http.StatusOK, change.Notice())
	}
}

type eventView struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	CalendarID    string    `json:"calendar_id"`
	Calendar      string    `json:"calendar"`
	VideoLink     string    `json:"video_link,omitempty"`
	VideoService  string    `json:"video_service,omitempty"`
	TimeUntil     string    `json:"time_until"`
	HappeningSoon bool      `json:"happening_soon"`
	InProgress    bool      `json:"in_progress"`
}

type eventsResponse struct {
	AccessGranted bool        `json:"access_granted"`
	Events        []eventView `json:"events"`
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	now := s.clock.Now()
	events := s.events.Events()

	resp := eventsResponse{
		AccessGranted: s.events.AccessGranted(),
		Events:        make([]eventView, 0, len(events)),
	}
	for _, event := range events {
		resp.Events = append(resp.Events, eventView{
			ID:            event.ID,
			Title:         event.Title,
			Start:         event.StartDate,
			End:           event.EndDate,
			CalendarID:    event.CalendarID,
			Calendar:      event.CalendarName,
			VideoLink:     event.VideoLinkString(),
			VideoService:  event.VideoService,
			TimeUntil:     event.FormattedTimeUntil(now),
			HappeningSoon: event.IsHappeningSoon(now),
			InProgress:    event.IsInProgress(now),
		})
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCalendars(w http.ResponseWriter, r *http.Request) {
	calendars := s.events.Calendars()
	if calendars == nil {
		calendars = []*calendar.Calendar{}
	}
	s.writeJSON(w, http.StatusOK, calendars)
}
