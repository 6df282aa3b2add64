package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/venkytv/meeting-reminder/pkg/calendar"
	"github.com/venkytv/meeting-reminder/pkg/scheduler"
)

// Provider types understood by the calendar factory.
const (
	TypeICal   = "ical"
	TypeCalDAV = "caldav"
	TypeGoogle = "google"
)

const (
	DefaultNATSSubject     = "meetings.reminders"
	DefaultRefreshInterval = 5 * time.Minute
	DefaultLookback        = 5 * time.Minute
)

type Config struct {
	Reminder     ReminderConfig              `yaml:"reminder"`
	Calendars    []CalendarConfig            `yaml:"calendars"`
	Coordination *calendar.CoordinatorConfig `yaml:"coordination"`
	NATS         NATSConfig                  `yaml:"nats"`
	API          APIConfig                   `yaml:"api"`
	Logging      LoggingConfig               `yaml:"logging"`
}

type ReminderConfig struct {
	LeadMinutes        int           `yaml:"lead_minutes"`
	SoundEnabled       *bool         `yaml:"sound_enabled"`
	EnabledCalendarIDs []string      `yaml:"enabled_calendar_ids"`
	SnoozeMinutes      int           `yaml:"snooze_minutes"`
	PollInterval       time.Duration `yaml:"poll_interval"`
	RefreshInterval    time.Duration `yaml:"refresh_interval"`
	Lookback           time.Duration `yaml:"lookback"`
}

type CalendarConfig struct {
	Name        string   `yaml:"name"`
	Type        string   `yaml:"type"`
	URL         string   `yaml:"url"`
	Username    string   `yaml:"username"`
	Password    string   `yaml:"password"`
	Email       string   `yaml:"email"`
	Credentials string   `yaml:"credentials"`
	Token       string   `yaml:"token"`
	CalendarIDs []string `yaml:"calendar_ids"`
}

// NATSConfig is optional; an empty URL disables publishing.
type NATSConfig struct {
	URL            string `yaml:"url"`
	Subject        string `yaml:"subject"`
	CommandSubject string `yaml:"command_subject"`
}

// APIConfig is optional; an empty listen address disables the HTTP API.
type APIConfig struct {
	Listen string `yaml:"listen"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

var envReference = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv replaces ${VAR} references. Bare $VAR is left alone so secrets
// containing a dollar sign survive.
func expandEnv(data []byte) []byte {
	return envReference.ReplaceAllFunc(data, func(ref []byte) []byte {
		name := envReference.FindSubmatch(ref)[1]
		return []byte(os.Getenv(string(name)))
	})
}

// LoadDotEnv loads environment variables from the given .env files. Missing
// files are skipped and variables already set are not overridden.
func LoadDotEnv(paths ...string) error {
	for _, path := range paths {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
	}
	return nil
}

func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes and validates a YAML configuration.
func Parse(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(expandEnv(data), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func (c *Config) validate() error {
	if len(c.Calendars) == 0 {
		return fmt.Errorf("at least one calendar must be configured")
	}

	names := make(map[string]bool)
	for i, cal := range c.Calendars {
		if cal.Name == "" {
			return fmt.Errorf("calendar[%d]: name is required", i)
		}
		if names[cal.Name] {
			return fmt.Errorf("calendar[%d]: duplicate name %q", i, cal.Name)
		}
		names[cal.Name] = true

		switch cal.Type {
		case "":
			return fmt.Errorf("calendar[%d]: type is required", i)
		case TypeICal:
			if cal.URL == "" {
				return fmt.Errorf("calendar[%d]: url is required for %s calendars", i, cal.Type)
			}
		case TypeCalDAV:
			if cal.URL == "" {
				return fmt.Errorf("calendar[%d]: url is required for %s calendars", i, cal.Type)
			}
			if cal.Username == "" {
				return fmt.Errorf("calendar[%d]: username is required for %s calendars", i, cal.Type)
			}
		case TypeGoogle:
			if cal.Credentials == "" {
				return fmt.Errorf("calendar[%d]: credentials path is required", i)
			}
			if cal.Token == "" {
				c.Calendars[i].Token = filepath.Join(filepath.Dir(cal.Credentials), "token.json")
			}
		default:
			return fmt.Errorf("calendar[%d]: unknown type %q", i, cal.Type)
		}
	}

	// Reminder values are clamped, never rejected.
	r := &c.Reminder
	r.LeadMinutes = scheduler.ClampLeadMinutes(r.LeadMinutes)
	if r.SoundEnabled == nil {
		enabled := true
		r.SoundEnabled = &enabled
	}
	if r.SnoozeMinutes <= 0 {
		r.SnoozeMinutes = scheduler.DefaultSnoozeMinutes
	}
	if r.PollInterval <= 0 {
		r.PollInterval = scheduler.DefaultPollInterval
	}
	if r.RefreshInterval <= 0 {
		r.RefreshInterval = DefaultRefreshInterval
	}
	if r.Lookback <= 0 {
		r.Lookback = DefaultLookback
	}

	if c.NATS.URL != "" {
		if c.NATS.Subject == "" {
			c.NATS.Subject = DefaultNATSSubject
		}
		if c.NATS.CommandSubject == "" {
			c.NATS.CommandSubject = c.NATS.Subject + ".commands"
		}
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	return nil
}

// SchedulerConfig returns the reminder settings in the scheduler's form.
func (c *Config) SchedulerConfig() *scheduler.Config {
	return &scheduler.Config{
		LeadMinutes:   c.Reminder.LeadMinutes,
		DisableSound:  c.Reminder.SoundEnabled != nil && !*c.Reminder.SoundEnabled,
		SnoozeMinutes: c.Reminder.SnoozeMinutes,
		PollInterval:  c.Reminder.PollInterval,
	}
}

// SourceConfig returns the event source settings.
func (c *Config) SourceConfig() calendar.SourceConfig {
	return calendar.SourceConfig{
		Lookback:           c.Reminder.Lookback,
		RefreshInterval:    c.Reminder.RefreshInterval,
		AllowedCalendarIDs: c.Reminder.EnabledCalendarIDs,
	}
}

// ProviderConfig returns the provider settings of one calendar.
func (cal CalendarConfig) ProviderConfig() calendar.ProviderConfig {
	return calendar.ProviderConfig{
		URL:             cal.URL,
		Username:        cal.Username,
		Password:        cal.Password,
		Email:           cal.Email,
		CredentialsPath: cal.Credentials,
		TokenPath:       cal.Token,
		CalendarIDs:     cal.CalendarIDs,
	}
}
