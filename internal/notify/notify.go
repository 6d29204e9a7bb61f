// Package notify publishes build-completed events to NATS.
package notify

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"git.home.luguber.info/inful/pagetree/internal/config"
	perrors "git.home.luguber.info/inful/pagetree/internal/errors"
	"git.home.luguber.info/inful/pagetree/internal/logfields"
	"git.home.luguber.info/inful/pagetree/internal/site"
)

// BuildEvent is the message body published after every build.
type BuildEvent struct {
	BuildID     string    `json:"build_id"`
	Outcome     string    `json:"outcome"`
	Pages       int       `json:"pages"`
	Rendered    int       `json:"rendered"`
	FailedPages []string  `json:"failed_pages,omitempty"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	Revision    string    `json:"revision,omitempty"`
	OutputDir   string    `json:"output_dir"`
	DurationMS  int64     `json:"duration_ms"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewBuildEvent summarizes a finished build.
func NewBuildEvent(r *site.BuildReport) BuildEvent {
	return BuildEvent{
		BuildID:     r.BuildID,
		Outcome:     string(r.Outcome),
		Pages:       r.Pages,
		Rendered:    r.RenderedPages,
		FailedPages: r.FailedPages,
		Fingerprint: r.Fingerprint,
		Revision:    r.Revision,
		OutputDir:   r.OutputDir,
		DurationMS:  r.Duration().Milliseconds(),
		Timestamp:   r.End,
	}
}

// Conn is the subset of *nats.Conn the notifier needs.
type Conn interface {
	Publish(subject string, data []byte) error
	FlushTimeout(timeout time.Duration) error
	Close()
}

// Notifier publishes BuildEvents on one subject. It is a site.BuildObserver.
type Notifier struct {
	site.NoopObserver

	conn    Conn
	subject string
	timeout time.Duration
}

// Connect dials the NATS server configured in cfg.
func Connect(cfg config.NotifyConfig) (*Notifier, error) {
	conn, err := nats.Connect(cfg.NATSURL,
		nats.Name("pagetree"),
		nats.MaxReconnects(5),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, perrors.WrapRetryable(err, perrors.CategoryRuntime, perrors.SeverityError,
			"failed to connect to NATS").WithContext("url", cfg.NATSURL)
	}
	slog.Info("Connected to NATS", logfields.URL(cfg.NATSURL), slog.String("subject", cfg.Subject))
	return New(conn, cfg.Subject), nil
}

// New wraps an existing connection.
func New(conn Conn, subject string) *Notifier {
	return &Notifier{conn: conn, subject: subject, timeout: 5 * time.Second}
}

// Publish sends the event and waits for the server to acknowledge the flush.
func (n *Notifier) Publish(ev BuildEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return perrors.InternalError("failed to marshal build event", err)
	}
	if err := n.conn.Publish(n.subject, data); err != nil {
		return perrors.WrapRetryable(err, perrors.CategoryRuntime, perrors.SeverityWarning, "failed to publish build event")
	}
	if err := n.conn.FlushTimeout(n.timeout); err != nil {
		return perrors.WrapRetryable(err, perrors.CategoryRuntime, perrors.SeverityWarning, "failed to flush build event")
	}
	return nil
}

// OnBuildComplete publishes the finished build. Failures are logged; a
// notification never changes a build's outcome.
func (n *Notifier) OnBuildComplete(r *site.BuildReport) {
	if err := n.Publish(NewBuildEvent(r)); err != nil {
		slog.Warn("Build event not published", logfields.BuildID(r.BuildID), logfields.Error(err))
		return
	}
	slog.Debug("Build event published", logfields.BuildID(r.BuildID), slog.String("subject", n.subject))
}

// Close closes the underlying connection.
func (n *Notifier) Close() {
	if n.conn != nil {
		n.conn.Close()
	}
}
