// Package supervisor keeps a frame transport connected on a tick-driven
// retry cadence.
package supervisor

import (
	"context"
	"log/slog"
	"time"

	"github.com/c360/simmirror/frame"
	"github.com/c360/simmirror/metric"
	"github.com/c360/simmirror/pkg/retry"
)

// DefaultRetryInterval is the reconnect cadence when none is configured.
const DefaultRetryInterval = 2 * time.Second

// Stream is the transport surface the supervisor drives. *frame.Transport
// satisfies it.
type Stream interface {
	Connect(ctx context.Context, host string, port int) error
	Poll() [][]byte
	Status() frame.ConnectionState
	LastError() error
	Close()
}

// Transition describes one reported state change.
type Transition struct {
	Channel string
	From    frame.ConnectionState
	To      frame.ConnectionState
	Err     error
	// RetryIn is the wait before the next connect attempt when To is not Connected.
	RetryIn time.Duration
}

// Deps holds runtime dependencies for a Supervisor
type Deps struct {
	Channel         string
	Retry           retry.Config            // zero value uses a fixed 2s cadence
	MetricsRegistry *metric.MetricsRegistry // optional
	Logger          *slog.Logger            // optional
	// OnTransition is called for every transition that is also logged.
	OnTransition func(Transition)
}

// Supervisor re-issues Connect while its stream is not connected. All methods
// must be called from the tick goroutine; none of them block.
type Supervisor struct {
	stream       Stream
	channel      string
	sched        *retry.Schedule
	logger       *slog.Logger
	metrics      *metric.Metrics
	onTransition func(Transition)

	ctx    context.Context
	cancel context.CancelFunc

	enabled  bool
	host     string
	port     int
	accum    time.Duration
	last     frame.ConnectionState // last observed
	reported frame.ConnectionState // last logged
}

// New creates a disabled supervisor around stream.
func New(stream Stream, deps Deps) *Supervisor {
	cfg := deps.Retry
	if cfg.InitialDelay <= 0 {
		cfg = retry.Fixed(DefaultRetryInterval)
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var metrics *metric.Metrics
	if deps.MetricsRegistry != nil {
		metrics = deps.MetricsRegistry.CoreMetrics()
	}

	return &Supervisor{
		stream:       stream,
		channel:      deps.Channel,
		sched:        retry.NewSchedule(cfg),
		logger:       logger.With("component", "supervisor", "channel", deps.Channel),
		metrics:      metrics,
		onTransition: deps.OnTransition,
	}
}

// Enable starts supervising host:port and issues the first connect
// immediately. Calling Enable again retargets the stream.
func (s *Supervisor) Enable(host string, port int) error {
	if s.cancel != nil {
		s.cancel()
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.host, s.port = host, port
	s.accum = 0
	s.sched.Reset()

	if err := s.stream.Connect(s.ctx, host, port); err != nil {
		s.enabled = false
		s.cancel()
		s.cancel = nil
		return err
	}
	s.enabled = true
	s.logger.Info("Stream supervision enabled", "host", host, "port", port)
	return nil
}

// Disable stops supervision and closes the stream.
func (s *Supervisor) Disable() {
	wasEnabled := s.enabled
	s.enabled = false
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.stream.Close()
	s.accum = 0

	if s.last != frame.Disconnected || s.reported != frame.Disconnected {
		s.report(s.last, frame.Disconnected, nil)
	}
	s.last = frame.Disconnected
	s.reported = frame.Disconnected
	if wasEnabled {
		s.logger.Info("Stream supervision disabled")
	}
}

// Enabled reports whether supervision is active.
func (s *Supervisor) Enabled() bool {
	return s.enabled
}

// State returns the last observed connection state.
func (s *Supervisor) State() frame.ConnectionState {
	return s.last
}

// RetryInterval returns the current wait between connect attempts.
func (s *Supervisor) RetryInterval() time.Duration {
	return s.sched.Interval()
}

// Failures returns the number of consecutive failed connect attempts.
func (s *Supervisor) Failures() int {
	return s.sched.Failures()
}

// Tick polls the stream, observes its status and reconnects once the retry
// interval has elapsed while not connected. It returns the payloads decoded
// during this tick.
func (s *Supervisor) Tick(dt time.Duration) [][]byte {
	if !s.enabled {
		return nil
	}

	payloads := s.stream.Poll()
	state := s.stream.Status()
	s.observe(state)

	if state == frame.Connected {
		s.accum = 0
		return payloads
	}

	s.accum += dt
	if s.accum >= s.sched.Interval() {
		s.accum = 0
		s.reconnect()
	}
	return payloads
}

func (s *Supervisor) reconnect() {
	if s.metrics != nil {
		s.metrics.RecordReconnect(s.channel)
	}
	if err := s.stream.Connect(s.ctx, s.host, s.port); err != nil {
		s.logger.Warn("Reconnect rejected", "error", err)
		return
	}
	// Every attempt starts from Connecting, so a repeat failure counts again.
	s.last = frame.Connecting
	s.logger.Debug("Reconnect issued", "attempt", s.sched.Failures()+1)
}

// observe updates the backoff on every state change, but logs only when the
// change is news: a retry's Connecting phase and a repeat of the same failure
// state are folded into the previously reported state.
func (s *Supervisor) observe(state frame.ConnectionState) {
	if state == s.last {
		return
	}
	from := s.last
	s.last = state

	switch state {
	case frame.Connected:
		s.sched.Reset()
	case frame.Error, frame.Disconnected:
		s.sched.Failed()
	}

	if state == frame.Connecting && s.sched.Failures() > 0 {
		return
	}
	if state == s.reported {
		return
	}
	s.report(from, state, s.stream.LastError())
}

func (s *Supervisor) report(from, to frame.ConnectionState, err error) {
	s.reported = to
	tr := Transition{Channel: s.channel, From: from, To: to, Err: err}

	switch to {
	case frame.Connected:
		s.logger.Info("Stream connected", "host", s.host, "port", s.port)
	case frame.Connecting:
		s.logger.Info("Stream connecting", "host", s.host, "port", s.port)
	case frame.Error, frame.Disconnected:
		if s.enabled {
			tr.RetryIn = s.sched.Interval()
			s.logger.Warn("Stream unavailable, retrying",
				"state", to.String(), "retry_in", tr.RetryIn, "error", err)
		}
	}

	if s.onTransition != nil {
		s.onTransition(tr)
	}
}
