// Package notify provides the local side effects of a reminder: opening the
// meeting link, the alert sound and a log of every change.
package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"

	"github.com/venkytv/meeting-reminder/pkg/scheduler"
)

// ExecOpener opens links with the platform's URL handler.
type ExecOpener struct {
	// Command overrides the opener, e.g. ["firefox", "--new-window"]. The
	// link is appended as the last argument.
	Command []string

	// start launches the command without waiting for it; replaced in tests.
	start func(name string, args ...string) error
}

// NewExecOpener returns an opener for the current platform.
func NewExecOpener(command ...string) *ExecOpener {
	return &ExecOpener{Command: command}
}

func defaultCommand(goos string) []string {
	switch goos {
	case "darwin":
		return []string{"open"}
	case "windows":
		return []string{"rundll32", "url.dll,FileProtocolHandler"}
	default:
		return []string{"xdg-open"}
	}
}

// Open launches the handler for link and returns without waiting for it.
// Only http and https links are opened.
func (o *ExecOpener) Open(ctx context.Context, link *url.URL) error {
	if link == nil {
		return fmt.Errorf("empty URL")
	}
	if scheme := strings.ToLower(link.Scheme); scheme != "http" && scheme != "https" {
		return fmt.Errorf("refusing to open %q link", link.Scheme)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	command := o.Command
	if len(command) == 0 {
		command = defaultCommand(runtime.GOOS)
	}
	args := append(append([]string{}, command[1:]...), link.String())

	start := o.start
	if start == nil {
		start = startDetached
	}
	if err := start(command[0], args...); err != nil {
		return fmt.Errorf("failed to run %s: %w", command[0], err)
	}
	return nil
}

func startDetached(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return err
	}
	go cmd.Wait()
	return nil
}

// BellSound rings the terminal bell.
type BellSound struct {
	mu sync.Mutex
	w  io.Writer
}

// NewBellSound writes the bell to w, or to stderr when w is nil.
func NewBellSound(w io.Writer) *BellSound {
	if w == nil {
		w = os.Stderr
	}
	return &BellSound{w: w}
}

// PlayAlert rings the bell.
func (b *BellSound) PlayAlert() {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, _ = io.WriteString(b.w, "\a")
}

// LogObserver logs every reminder change.
type LogObserver struct {
	logger *slog.Logger
}

// NewLogObserver creates a LogObserver.
func NewLogObserver(logger *slog.Logger) *LogObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogObserver{logger: logger}
}

// ReminderChanged implements scheduler.Observer.
func (l *LogObserver) ReminderChanged(change scheduler.Change) {
	attrs := []any{
		"kind", change.Kind,
		"event_id", change.Event.ID,
		"title", change.Event.Title,
		"start", change.Event.StartDate,
		"time_until", change.Event.FormattedTimeUntil(change.At),
	}
	if change.Trigger != "" {
		attrs = append(attrs, "trigger", change.Trigger)
	}
	if change.Event.VideoLink != nil {
		attrs = append(attrs, "video_service", change.Event.VideoService, "video_link", change.Event.VideoLinkString())
	}
	if !change.SnoozedUntil.IsZero() {
		attrs = append(attrs, "snoozed_until", change.SnoozedUntil)
	}
	l.logger.Info("Reminder changed", attrs...)
}
