package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/venkytv/meeting-reminder/internal/models"
	"github.com/venkytv/meeting-reminder/pkg/calendar"
	"github.com/venkytv/meeting-reminder/pkg/calendar/google"
	"github.com/venkytv/meeting-reminder/pkg/config"
)

const queryTimeout = time.Minute

func newCalendarsCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "calendars",
		Short: "List the calendars available to the configured providers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.loadConfig()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), queryTimeout)
			defer cancel()

			manager, err := buildManager(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer manager.Close()

			calendars, err := manager.GetAllCalendars(ctx)
			if err != nil {
				logger.Warn("Failed to list some calendars", "error", err)
			}

			printCalendars(cmd.OutOrStdout(), calendars, cfg.Reminder.EnabledCalendarIDs)
			return nil
		},
	}
}

func printCalendars(w io.Writer, calendars []*calendar.Calendar, enabled []string) {
	allowed := make(map[string]bool, len(enabled))
	for _, id := range enabled {
		allowed[id] = true
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ENABLED\tPROVIDER\tID\tNAME")
	for _, cal := range calendars {
		mark := "yes"
		if len(allowed) > 0 && !allowed[cal.ID] {
			mark = "no"
		}
		name := cal.Name
		if cal.Primary {
			name += " (primary)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", mark, cal.Provider, cal.ID, name)
	}
	tw.Flush()
}

func newUpcomingCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "upcoming",
		Short: "Print the rest of today's meetings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.loadConfig()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), queryTimeout)
			defer cancel()

			manager, err := buildManager(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer manager.Close()

			source := calendar.NewSource(manager, cfg.SourceConfig(), nil, nil, logger)
			events := source.Refresh(ctx)
			if !source.AccessGranted() {
				logger.Warn("Calendar access was denied, the list may be incomplete")
			}

			printUpcoming(cmd.OutOrStdout(), events, time.Now())
			return nil
		},
	}
}

func printUpcoming(w io.Writer, events []*models.MeetingEvent, now time.Time) {
	if len(events) == 0 {
		fmt.Fprintln(w, "No more meetings today")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "START\tIN\tTITLE\tCALENDAR\tVIDEO")
	for _, event := range events {
		video := event.VideoService
		if video == "" {
			video = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			event.FormattedStartTime(nil),
			event.FormattedTimeUntil(now),
			event.Title,
			event.CalendarName,
			video)
	}
	tw.Flush()
}

func newGoogleAuthCommand(opts *options) *cobra.Command {
	var (
		calendarName string
		code         string
	)

	cmd := &cobra.Command{
		Use:   "google-auth",
		Short: "Authorize access to a Google calendar",
		Long: `Without --code, prints the URL to visit to authorize read-only calendar
access. Run again with the code shown after authorizing to save the token.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.loadConfig()
			if err != nil {
				return err
			}

			calendarCfg, err := findGoogleCalendar(cfg, calendarName)
			if err != nil {
				return err
			}

			tokens, err := google.NewTokenManager(calendarCfg.Credentials, calendarCfg.Token, logger)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if code == "" {
				fmt.Fprintf(out, "Visit this URL to authorize %s:\n\n%s\n\n", calendarCfg.Name, tokens.GetAuthURL())
				fmt.Fprintf(out, "Then run: meeting-reminder google-auth --calendar %s --code <code>\n", calendarCfg.Name)
				return nil
			}

			if _, err := tokens.ExchangeCode(cmd.Context(), code); err != nil {
				return err
			}
			fmt.Fprintf(out, "Token saved to %s\n", calendarCfg.Token)
			return nil
		},
	}

	cmd.Flags().StringVar(&calendarName, "calendar", "", "Name of the Google calendar in the config (default: the only one)")
	cmd.Flags().StringVar(&code, "code", "", "Authorization code to exchange for a token")
	return cmd
}

// findGoogleCalendar returns the named Google calendar, or the only one when
// name is empty.
func findGoogleCalendar(cfg *config.Config, name string) (config.CalendarConfig, error) {
	var matches []config.CalendarConfig
	for _, cal := range cfg.Calendars {
		if cal.Type != config.TypeGoogle {
			continue
		}
		if name == "" || cal.Name == name {
			matches = append(matches, cal)
		}
	}

	switch {
	case len(matches) == 1:
		return matches[0], nil
	case len(matches) == 0 && name != "":
		return config.CalendarConfig{}, fmt.Errorf("no google calendar named %q in config", name)
	case len(matches) == 0:
		return config.CalendarConfig{}, fmt.Errorf("no google calendar in config")
	default:
		return config.CalendarConfig{}, fmt.Errorf("several google calendars configured, pick one with --calendar")
	}
}
