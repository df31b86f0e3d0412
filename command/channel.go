// Package command sends newline-terminated command lines to the simulation
// over a dedicated TCP connection.
package command

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/simmirror/errors"
	"github.com/c360/simmirror/frame"
	"github.com/c360/simmirror/metric"
)

// DefaultMaxPending bounds the bytes queued for the writer.
const DefaultMaxPending = 4096

// Config tunes one command channel.
type Config struct {
	// Channel labels logs and metrics. Defaults to "command".
	Channel string
	// MaxPending is the queued byte limit above which Send reports busy.
	MaxPending int
	// DialTimeout bounds one connect attempt. Zero means no timeout.
	DialTimeout time.Duration
}

// Deps holds runtime dependencies for a Channel
type Deps struct {
	Config          Config
	Dialer          frame.Dialer            // nil uses a net.Dialer
	MetricsRegistry *metric.MetricsRegistry // optional
	Logger          *slog.Logger            // optional
}

// Channel owns the command connection. Like frame.Transport it is driven from
// a single goroutine and never blocks: dialing and writing happen on a
// goroutine owned by the current connection. It satisfies supervisor.Stream.
type Channel struct {
	cfg     Config
	dialer  frame.Dialer
	logger  *slog.Logger
	metrics *metric.Metrics

	sess     *session
	observed frame.ConnectionState
}

// session is the goroutine-owned half of one connection.
type session struct {
	cancel context.CancelFunc
	state  atomic.Int32
	err    atomic.Pointer[error]

	mu      sync.Mutex
	pending []byte
	wake    chan struct{}
}

func (s *session) fail(state frame.ConnectionState, err error) {
	if err != nil {
		s.err.Store(&err)
	}
	s.state.Store(int32(state))
}

func (s *session) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// take hands every pending byte to the writer.
func (s *session) take() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	data := s.pending
	s.pending = nil
	return data
}

// NewChannel creates a disconnected command channel.
func NewChannel(deps Deps) *Channel {
	cfg := deps.Config
	if cfg.Channel == "" {
		cfg.Channel = "command"
	}
	if cfg.MaxPending <= 0 {
		cfg.MaxPending = DefaultMaxPending
	}

	dialer := deps.Dialer
	if dialer == nil {
		dialer = &net.Dialer{}
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var metrics *metric.Metrics
	if deps.MetricsRegistry != nil {
		metrics = deps.MetricsRegistry.CoreMetrics()
	}

	return &Channel{
		cfg:     cfg,
		dialer:  dialer,
		logger:  logger.With("component", "command-channel", "channel", cfg.Channel),
		metrics: metrics,
	}
}

// Connect drops any current connection and dials host:port asynchronously.
// Lines queued on the previous connection are discarded.
func (c *Channel) Connect(ctx context.Context, host string, port int) error {
	if host == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Channel", "Connect", "empty host")
	}
	if port <= 0 || port > 65535 {
		return errors.WrapInvalid(fmt.Errorf("%w: port %d", errors.ErrInvalidConfig, port),
			"Channel", "Connect", "validate port")
	}

	c.drop()

	sessCtx, cancel := context.WithCancel(ctx)
	s := &session{cancel: cancel, wake: make(chan struct{}, 1)}
	s.state.Store(int32(frame.Connecting))
	c.sess = s

	go c.run(sessCtx, s, net.JoinHostPort(host, strconv.Itoa(port)))
	return nil
}

func (c *Channel) run(ctx context.Context, s *session, addr string) {
	dialCtx := ctx
	if c.cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, c.cfg.DialTimeout)
		defer cancel()
	}

	conn, err := c.dialer.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		if ctx.Err() == nil {
			s.fail(frame.Error, errors.WrapTransient(err, "Channel", "Connect", "dial "+addr))
		}
		return
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer func() {
		stop()
		_ = conn.Close()
	}()

	s.state.Store(int32(frame.Connected))
	go c.watch(ctx, s, conn)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.wake:
		}

		data := s.take()
		if len(data) == 0 {
			continue
		}
		if _, err := conn.Write(data); err != nil {
			if ctx.Err() == nil {
				s.fail(frame.Error, errors.WrapTransient(err, "Channel", "Send", "write"))
			}
			return
		}
	}
}

// watch discards replies and detects the peer closing the connection.
func (c *Channel) watch(ctx context.Context, s *session, conn net.Conn) {
	_, err := io.Copy(io.Discard, conn)
	if ctx.Err() != nil {
		return
	}
	if err == nil || stderrors.Is(err, io.EOF) {
		s.fail(frame.Disconnected, errors.ErrConnectionLost)
	} else {
		s.fail(frame.Error, errors.WrapTransient(err, "Channel", "Poll", "read"))
	}
	s.cancel()
}

// Send queues one command line. The line must be printable ASCII without
// embedded line breaks; a trailing newline is added. When the writer has
// not yet drained earlier lines, Send polls once and retries once before
// returning a transient ErrBusy.
func (c *Channel) Send(line string) error {
	line = strings.TrimRight(line, "\r\n")
	if err := validateLine(line, c.cfg.MaxPending); err != nil {
		c.record("error")
		return err
	}

	s := c.sess
	if s == nil || frame.ConnectionState(s.state.Load()) != frame.Connected {
		c.record("error")
		return errors.WrapTransient(errors.ErrNoConnection, "Channel", "Send", "check connection")
	}

	err := c.enqueue(s, line)
	if stderrors.Is(err, errors.ErrBusy) {
		c.Poll()
		err = c.enqueue(s, line)
	}
	if err != nil {
		c.record("busy")
		c.logger.Debug("Command channel busy", "pending", c.Pending())
		return errors.WrapTransient(err, "Channel", "Send", "queue line")
	}

	c.record("ok")
	return nil
}

func (c *Channel) enqueue(s *session, line string) error {
	s.mu.Lock()
	if len(s.pending)+len(line)+1 > c.cfg.MaxPending {
		s.mu.Unlock()
		return errors.ErrBusy
	}
	s.pending = append(s.pending, line...)
	s.pending = append(s.pending, '\n')
	s.mu.Unlock()

	s.signal()
	return nil
}

func validateLine(line string, limit int) error {
	if line == "" {
		return errors.WrapInvalid(fmt.Errorf("%w: empty command", errors.ErrInvalidData),
			"Channel", "Send", "validate line")
	}
	if len(line)+1 > limit {
		return errors.WrapInvalid(fmt.Errorf("%w: command of %d bytes exceeds %d", errors.ErrInvalidData, len(line), limit),
			"Channel", "Send", "validate line")
	}
	for i := 0; i < len(line); i++ {
		if b := line[i]; b != '\t' && (b < 0x20 || b > 0x7e) {
			return errors.WrapInvalid(fmt.Errorf("%w: byte 0x%02x at %d", errors.ErrInvalidData, b, i),
				"Channel", "Send", "validate line")
		}
	}
	return nil
}

// Poll nudges the writer when bytes are pending and observes the connection
// state. The command channel carries no inbound frames, so it always returns
// nil.
func (c *Channel) Poll() [][]byte {
	if s := c.sess; s != nil && c.Pending() > 0 {
		s.signal()
	}
	c.Status()
	return nil
}

// Pending returns the number of queued bytes not yet handed to the writer.
func (c *Channel) Pending() int {
	s := c.sess
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Status returns the connection state, logging only on change.
func (c *Channel) Status() frame.ConnectionState {
	state := frame.Disconnected
	if c.sess != nil {
		state = frame.ConnectionState(c.sess.state.Load())
	}
	c.observe(state)
	return state
}

// LastError returns the error behind the last Error or Disconnected state.
func (c *Channel) LastError() error {
	if c.sess == nil {
		return nil
	}
	if p := c.sess.err.Load(); p != nil {
		return *p
	}
	return nil
}

// Close disconnects and discards queued lines.
func (c *Channel) Close() {
	c.drop()
	c.observe(frame.Disconnected)
}

func (c *Channel) drop() {
	if c.sess == nil {
		return
	}
	c.sess.cancel()
	c.sess = nil
}

func (c *Channel) observe(state frame.ConnectionState) {
	if state == c.observed {
		return
	}
	prev := c.observed
	c.observed = state
	c.logger.Debug("Command channel status changed", "from", prev.String(), "to", state.String())
	if c.metrics != nil {
		c.metrics.RecordConnectionStatus(c.cfg.Channel, int(state))
	}
}

func (c *Channel) record(status string) {
	if c.metrics != nil {
		c.metrics.RecordCommand(status)
	}
}
