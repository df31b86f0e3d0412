// Package natssink publishes mirror events to NATS subjects.
package natssink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/c360/simmirror/errors"
	"github.com/c360/simmirror/events"
	"github.com/c360/simmirror/metric"
	"github.com/c360/simmirror/pkg/retry"
)

// DefaultSubjectPrefix is prepended to the event kind to form the subject.
const DefaultSubjectPrefix = "simmirror"

// Config describes the NATS connection and publishing behaviour.
type Config struct {
	Enabled       bool          `json:"enabled" yaml:"enabled"`
	URL           string        `json:"url" yaml:"url"`
	SubjectPrefix string        `json:"subject_prefix,omitempty" yaml:"subject_prefix,omitempty"`
	Name          string        `json:"name,omitempty" yaml:"name,omitempty"`
	Username      string        `json:"username,omitempty" yaml:"username,omitempty"`
	Password      string        `json:"password,omitempty" yaml:"password,omitempty"`
	Token         string        `json:"token,omitempty" yaml:"token,omitempty"`
	MaxReconnects int           `json:"max_reconnects,omitempty" yaml:"max_reconnects,omitempty"`
	ReconnectWait time.Duration `json:"reconnect_wait,omitempty" yaml:"reconnect_wait,omitempty"`
	// Kinds limits publishing to the listed event kinds; empty publishes all.
	Kinds []string     `json:"kinds,omitempty" yaml:"kinds,omitempty"`
	Retry retry.Config `json:"retry,omitempty" yaml:"retry,omitempty"`
}

// DefaultConfig returns a disabled sink pointed at a local server.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		SubjectPrefix: DefaultSubjectPrefix,
		Name:          "simmirror",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		Retry:         retry.DefaultConfig(),
	}
}

// Validate checks an enabled config.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.URL == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "natssink", "Validate", "url is required")
	}
	if strings.ContainsAny(c.SubjectPrefix, " \t*>") {
		return errors.WrapInvalid(fmt.Errorf("%w: subject prefix %q", errors.ErrInvalidConfig, c.SubjectPrefix),
			"natssink", "Validate", "check subject prefix")
	}
	for _, k := range c.Kinds {
		switch events.Kind(k) {
		case events.CollectionChanged, events.LogAppended, events.ConnectionChanged, events.SessionReset:
		default:
			return errors.WrapInvalid(fmt.Errorf("%w: unknown event kind %q", errors.ErrInvalidConfig, k),
				"natssink", "Validate", "check kinds")
		}
	}
	return nil
}

// Publisher is the subset of *nats.Conn used by the sink.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Deps holds runtime dependencies for a Sink
type Deps struct {
	MetricsRegistry *metric.MetricsRegistry // optional
	Logger          *slog.Logger            // optional
}

// Sink is an events.Observer that publishes each event as JSON on
// "<prefix>.<kind>". Publishing through *nats.Conn buffers and does not
// block the tick loop.
type Sink struct {
	pub     Publisher
	prefix  string
	kinds   map[events.Kind]bool
	logger  *slog.Logger
	metrics *metric.Metrics
	failed  bool
}

// New creates a sink over pub.
func New(pub Publisher, cfg Config, deps Deps) *Sink {
	prefix := strings.TrimSuffix(cfg.SubjectPrefix, ".")
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}

	var kinds map[events.Kind]bool
	if len(cfg.Kinds) > 0 {
		kinds = make(map[events.Kind]bool, len(cfg.Kinds))
		for _, k := range cfg.Kinds {
			kinds[events.Kind(k)] = true
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Sink{
		pub:    pub,
		prefix: prefix,
		kinds:  kinds,
		logger: logger.With("component", "nats-sink"),
	}
	if deps.MetricsRegistry != nil {
		s.metrics = deps.MetricsRegistry.CoreMetrics()
	}
	return s
}

// Subject returns the subject used for kind.
func (s *Sink) Subject(kind events.Kind) string {
	return s.prefix + "." + string(kind)
}

// OnEvent publishes e. Failures are logged once per outage and never
// propagate to the caller.
func (s *Sink) OnEvent(e events.Event) {
	if s.kinds != nil && !s.kinds[e.Kind] {
		return
	}

	data, err := json.Marshal(e)
	if err != nil {
		s.logger.Error("Failed to encode event", "kind", e.Kind, "error", err)
		return
	}

	if err := s.pub.Publish(s.Subject(e.Kind), data); err != nil {
		if !s.failed {
			s.logger.Warn("Event publish failed", "subject", s.Subject(e.Kind), "error", err)
		}
		s.failed = true
		return
	}
	if s.failed {
		s.logger.Info("Event publishing recovered")
		s.failed = false
	}
	if s.metrics != nil {
		s.metrics.RecordEventPublished(string(e.Kind))
	}
}

// Connect dials NATS with cfg, retrying per cfg.Retry. The returned
// connection reconnects on its own afterwards.
func Connect(ctx context.Context, cfg Config, logger *slog.Logger) (*nats.Conn, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "nats-sink")

	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", "url", c.ConnectedUrl())
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			logger.Debug("NATS connection closed")
		}),
	}
	if cfg.ReconnectWait > 0 {
		opts = append(opts, nats.ReconnectWait(cfg.ReconnectWait))
	}
	if cfg.Name != "" {
		opts = append(opts, nats.Name(cfg.Name))
	}
	if cfg.Username != "" && cfg.Password != "" {
		opts = append(opts, nats.UserInfo(cfg.Username, cfg.Password))
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	retryCfg := cfg.Retry
	if retryCfg.InitialDelay <= 0 {
		retryCfg = retry.DefaultConfig()
	}

	var conn *nats.Conn
	err := retry.Do(ctx, retryCfg, func() error {
		c, err := nats.Connect(cfg.URL, opts...)
		if err != nil {
			logger.Debug("NATS connect attempt failed", "url", cfg.URL, "error", err)
			return err
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "natssink", "Connect", "connect to "+cfg.URL)
	}
	logger.Info("Connected to NATS", "url", conn.ConnectedUrl())
	return conn, nil
}
