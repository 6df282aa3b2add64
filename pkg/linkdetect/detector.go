// Package linkdetect finds joinable video-conference links in calendar event
// fields.
package linkdetect

import (
	"net/url"
	"regexp"
	"strings"
)

// GenericService is returned by ServiceName for hosts that match no known provider.
const GenericService = "Meeting"

// trailingPunctuation is over-captured by the greedy \S+ tails of the patterns.
const trailingPunctuation = `){}"'>`

// Match is a detected video link together with the service whose pattern matched.
type Match struct {
	URL     *url.URL
	Service string
}

type servicePattern struct {
	name    string
	pattern *regexp.Regexp
}

// patterns is scanned in order; the order is the tie-break between services.
var patterns = []servicePattern{
	{"Zoom", regexp.MustCompile(`(?i)https?://[\w.-]*zoom\.us/j/\S+`)},
	{"Google Meet", regexp.MustCompile(`(?i)https?://meet\.google\.com/[a-z]+-[a-z]+-[a-z]+\S*`)},
	{"Microsoft Teams", regexp.MustCompile(`(?i)https?://teams\.microsoft\.com/l/meetup-join/\S+`)},
	{"Webex", regexp.MustCompile(`(?i)https?://[\w.-]*webex\.com/\S+`)},
	{"Slack Huddle", regexp.MustCompile(`(?i)https?://app\.slack\.com/huddle/\S+`)},
}

// hostServices maps host substrings to display names for ServiceName.
var hostServices = []struct {
	host string
	name string
}{
	{"zoom.us", "Zoom"},
	{"meet.google.com", "Google Meet"},
	{"teams.microsoft.com", "Teams"},
	{"webex.com", "Webex"},
	{"slack.com", "Slack"},
}

// DetectLink returns the video link for an event. A structured candidate URL
// that matches a known service always wins; otherwise the free-text fields are
// scanned in order.
func DetectLink(candidate *url.URL, fields ...string) (*Match, bool) {
	if candidate != nil {
		if name, ok := matchService(candidate.String()); ok {
			return &Match{URL: candidate, Service: name}, true
		}
	}

	for _, text := range fields {
		if match, ok := FindVideoURL(text); ok {
			return match, true
		}
	}

	return nil, false
}

// DetectLinkString is DetectLink for a candidate that is still a raw string.
// An unparseable candidate is ignored.
func DetectLinkString(candidate string, fields ...string) (*Match, bool) {
	var u *url.URL
	if candidate = strings.TrimSpace(candidate); candidate != "" {
		if parsed, err := url.Parse(candidate); err == nil {
			u = parsed
		}
	}
	return DetectLink(u, fields...)
}

// IsVideoLink reports whether u matches any known service pattern.
func IsVideoLink(u *url.URL) bool {
	if u == nil {
		return false
	}
	_, ok := matchService(u.String())
	return ok
}

// FindVideoURL returns the first video link found in text, scanning the
// service patterns in order.
func FindVideoURL(text string) (*Match, bool) {
	if text == "" {
		return nil, false
	}

	for _, p := range patterns {
		raw := p.pattern.FindString(text)
		if raw == "" {
			continue
		}

		u, ok := parseCandidate(strings.TrimRight(raw, trailingPunctuation))
		if !ok {
			continue
		}
		return &Match{URL: u, Service: p.name}, true
	}

	return nil, false
}

// ServiceName names the service behind u from its host alone.
func ServiceName(u *url.URL) string {
	if u == nil {
		return GenericService
	}

	host := strings.ToLower(u.Hostname())
	for _, hs := range hostServices {
		if strings.Contains(host, hs.host) {
			return hs.name
		}
	}
	return GenericService
}

func matchService(s string) (string, bool) {
	for _, p := range patterns {
		if p.pattern.MatchString(s) {
			return p.name, true
		}
	}
	return "", false
}

func parseCandidate(s string) (*url.URL, bool) {
	if s == "" {
		return nil, false
	}
	u, err := url.Parse(s)
	if err != nil {
		return nil, false
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, false
	}
	return u, true
}
