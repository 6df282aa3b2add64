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

// Conn is the subset of *nats.Conn used by this package.
type Conn interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error)
}

// Publisher publishes reminder notices to NATS
type Publisher struct {
	nc      *nats.Conn
	conn    Conn
	subject string
	logger  *slog.Logger
}

// Config holds NATS publisher configuration
type Config struct {
	URL             string        `yaml:"url"`
	Subject         string        `yaml:"subject"`
	CommandSubject  string        `yaml:"command_subject"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
	ReconnectWait   time.Duration `yaml:"reconnect_wait"`
	MaxReconnects   int           `yaml:"max_reconnects"`
	PingInterval    time.Duration `yaml:"ping_interval"`
	MaxPingsOut     int           `yaml:"max_pings_out"`
	ReconnectBuffer int           `yaml:"reconnect_buffer"`
}

// DefaultConfig returns a default NATS configuration
func DefaultConfig() *Config {
	return &Config{
		URL:             "nats://localhost:4222",
		Subject:         "meetings.reminders",
		CommandSubject:  "meetings.reminders.commands",
		ConnectTimeout:  5 * time.Second,
		ReconnectWait:   2 * time.Second,
		MaxReconnects:   -1, // a long-running daemon keeps trying
		PingInterval:    2 * time.Minute,
		MaxPingsOut:     2,
		ReconnectBuffer: 1024 * 1024,
	}
}

// NewPublisher connects to NATS with the given configuration
func NewPublisher(config *Config, logger *slog.Logger) (*Publisher, error) {
	if config == nil {
		config = DefaultConfig()
	}

	if logger == nil {
		logger = slog.Default()
	}

	options := []nats.Option{
		nats.Name("meeting-reminder"),
		nats.Timeout(config.ConnectTimeout),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.PingInterval(config.PingInterval),
		nats.MaxPingsOutstanding(config.MaxPingsOut),
		nats.ReconnectBufSize(config.ReconnectBuffer),
		nats.RetryOnFailedConnect(true),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info("NATS connection closed")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			subject := ""
			if sub != nil {
				subject = sub.Subject
			}
			logger.Error("NATS error", "error", err, "subject", subject)
		}),
	}

	conn, err := nats.Connect(config.URL, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", config.URL, err)
	}

	publisher := newPublisher(conn, config.Subject, logger)
	publisher.nc = conn

	logger.Info("NATS publisher initialized",
		"url", config.URL,
		"subject", config.Subject,
		"connected_url", conn.ConnectedUrl())

	return publisher, nil
}

func newPublisher(conn Conn, subject string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		conn:    conn,
		subject: subject,
		logger:  logger,
	}
}

// Conn returns the underlying connection for subscribers sharing it.
func (p *Publisher) Conn() Conn {
	return p.conn
}

// PublishNotice publishes a single reminder notice to NATS
func (p *Publisher) PublishNotice(ctx context.Context, notice *models.Notice) error {
	if p.conn == nil || (p.nc != nil && p.nc.IsClosed()) {
		return fmt.Errorf("NATS connection is not available")
	}

	data, err := json.Marshal(notice)
	if err != nil {
		return fmt.Errorf("failed to marshal notice: %w", err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		if err := p.conn.Publish(p.subject, data); err != nil {
			return fmt.Errorf("failed to publish notice: %w", err)
		}
	}

	p.logger.Debug("Published notice",
		"subject", p.subject,
		"kind", notice.Kind,
		"event_id", notice.EventID,
		"title", notice.Title)

	return nil
}

// ReminderChanged publishes every scheduler change. Publish failures are
// logged; the reminder loop never waits on NATS.
func (p *Publisher) ReminderChanged(change scheduler.Change) {
	if err := p.PublishNotice(context.Background(), change.Notice()); err != nil {
		p.logger.Error("Failed to publish notice",
			"error", err,
			"kind", change.Kind,
			"event_id", change.Event.ID)
	}
}

// Flush ensures all published messages have been sent
func (p *Publisher) Flush(timeout time.Duration) error {
	if p.nc == nil || p.nc.IsClosed() {
		return fmt.Errorf("NATS connection is not available")
	}

	if err := p.nc.FlushTimeout(timeout); err != nil {
		return fmt.Errorf("failed to flush NATS messages: %w", err)
	}

	return nil
}

// IsHealthy checks if the NATS connection is healthy
func (p *Publisher) IsHealthy() error {
	if p.nc == nil {
		return fmt.Errorf("NATS connection is nil")
	}

	if p.nc.IsClosed() {
		return fmt.Errorf("NATS connection is closed")
	}

	if !p.nc.IsConnected() {
		return fmt.Errorf("NATS is not connected")
	}

	return nil
}

// Stats returns connection statistics
func (p *Publisher) Stats() nats.Statistics {
	if p.nc == nil {
		return nats.Statistics{}
	}
	return p.nc.Stats()
}

// Close gracefully closes the NATS connection
func (p *Publisher) Close() error {
	if p.nc != nil && !p.nc.IsClosed() {
		if err := p.Flush(5 * time.Second); err != nil {
			p.logger.Warn("Failed to flush messages on close", "error", err)
		}

		p.nc.Close()
		p.logger.Info("NATS publisher closed")
	}
	return nil
}
