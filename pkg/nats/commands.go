package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/venkytv/meeting-reminder/internal/models"
	"github.com/venkytv/meeting-reminder/pkg/scheduler"
)

// Command actions accepted on the command subject.
const (
	ActionDismiss = "dismiss"
	ActionSnooze  = "snooze"
	ActionJoin    = "join"
)

const commandTimeout = 5 * time.Second

// Command is a presentation-layer request for the active reminder.
type Command struct {
	Action  string `json:"action"`
	Minutes int    `json:"minutes,omitempty"`
}

// Reply answers a command when the request carried a reply subject.
type Reply struct {
	OK     bool           `json:"ok"`
	Notice *models.Notice `json:"notice,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// Commander executes reminder commands; implemented by scheduler.Runner.
type Commander interface {
	Dismiss(ctx context.Context) (scheduler.Change, bool, error)
	Snooze(ctx context.Context, minutes int) (scheduler.Change, bool, error)
	Join(ctx context.Context) (scheduler.Change, bool, error)
}

// CommandSubscriber forwards commands received over NATS to the reminder loop.
type CommandSubscriber struct {
	conn      Conn
	subject   string
	commander Commander
	logger    *slog.Logger
	sub       *nats.Subscription
}

// NewCommandSubscriber creates a subscriber for subject.
func NewCommandSubscriber(conn Conn, subject string, commander Commander, logger *slog.Logger) *CommandSubscriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &CommandSubscriber{
		conn:      conn,
		subject:   subject,
		commander: commander,
		logger:    logger,
	}
}

// Start subscribes to the command subject.
func (s *CommandSubscriber) Start() error {
	sub, err := s.conn.Subscribe(s.subject, s.handle)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", s.subject, err)
	}
	s.sub = sub
	s.logger.Info("Listening for reminder commands", "subject", s.subject)
	return nil
}

// Stop removes the subscription.
func (s *CommandSubscriber) Stop() error {
	if s.sub == nil {
		return nil
	}
	err := s.sub.Unsubscribe()
	s.sub = nil
	return err
}

func (s *CommandSubscriber) handle(msg *nats.Msg) {
	var reply Reply

	var cmd Command
	if err := json.Unmarshal(msg.Data, &cmd); err != nil {
		s.logger.Warn("Ignoring malformed command", "subject", msg.Subject, "error", err)
		reply.Error = fmt.Sprintf("malformed command: %v", err)
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		reply = s.execute(ctx, cmd)
		cancel()
	}

	if msg.Reply == "" {
		return
	}

	data, err := json.Marshal(reply)
	if err != nil {
		s.logger.Error("Failed to marshal command reply", "error", err)
		return
	}
	if err := s.conn.Publish(msg.Reply, data); err != nil {
		s.logger.Error("Failed to send command reply", "reply", msg.Reply, "error", err)
	}
}

func (s *CommandSubscriber) execute(ctx context.Context, cmd Command) Reply {
	var (
		change scheduler.Change
		ok     bool
		err    error
	)

	switch cmd.Action {
	case ActionDismiss:
		change, ok, err = s.commander.Dismiss(ctx)
	case ActionSnooze:
		change, ok, err = s.commander.Snooze(ctx, cmd.Minutes)
	case ActionJoin:
		change, ok, err = s.commander.Join(ctx)
	default:
		return Reply{Error: fmt.Sprintf("unknown action %q", cmd.Action)}
	}

	s.logger.Debug("Executed reminder command", "action", cmd.Action, "applied", ok, "error", err)

	switch {
	case err != nil:
		return Reply{Error: err.Error()}
	case !ok && cmd.Action == ActionJoin:
		return Reply{Error: "no active reminder with a video link"}
	case !ok:
		return Reply{Error: "no active reminder"}
	}
	return Reply{OK: true, Notice: change.Notice()}
}
