package frame

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/c360/simmirror/errors"
	"github.com/c360/simmirror/metric"
)

// Dialer opens stream connections. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Config tunes one transport.
type Config struct {
	// Channel labels logs and metrics ("log", "snapshot").
	Channel string
	// ReadChunkSize bounds each socket read. Defaults to 4096.
	ReadChunkSize int
	// QueueSize is the number of read chunks held for Poll. Defaults to 256.
	QueueSize int
	// DialTimeout bounds one connect attempt. Zero means no timeout.
	DialTimeout time.Duration
	// LargeFrameWarnBytes overrides the package default when non-zero.
	LargeFrameWarnBytes uint32
}

// Deps holds runtime dependencies for a Transport
type Deps struct {
	Config          Config
	Dialer          Dialer                  // nil uses a net.Dialer
	MetricsRegistry *metric.MetricsRegistry // optional
	Logger          *slog.Logger            // optional
}

// Transport owns one framed TCP stream. Connect, Poll, Status and Close are
// meant to be called from a single goroutine (the tick loop) and never block.
// Blocking dial and read calls run on a goroutine owned by the current
// connection; bytes reach Poll through a buffered channel.
type Transport struct {
	cfg     Config
	dialer  Dialer
	logger  *slog.Logger
	metrics *metric.Metrics

	decoder  *Decoder
	conn     *connection
	pending  [][]byte // complete payloads salvaged from a replaced connection
	observed ConnectionState
}

// connection is the goroutine-owned half of one connect attempt.
type connection struct {
	cancel context.CancelFunc
	chunks chan []byte
	state  atomic.Int32
	err    atomic.Pointer[error]
}

func (c *connection) setState(s ConnectionState) {
	c.state.Store(int32(s))
}

func (c *connection) fail(s ConnectionState, err error) {
	if err != nil {
		c.err.Store(&err)
	}
	c.setState(s)
}

// NewTransport creates a disconnected transport.
func NewTransport(deps Deps) *Transport {
	cfg := deps.Config
	if cfg.ReadChunkSize <= 0 {
		cfg.ReadChunkSize = 4096
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.Channel == "" {
		cfg.Channel = "stream"
	}

	dialer := deps.Dialer
	if dialer == nil {
		dialer = &net.Dialer{}
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "frame-transport", "channel", cfg.Channel)

	var metrics *metric.Metrics
	if deps.MetricsRegistry != nil {
		metrics = deps.MetricsRegistry.CoreMetrics()
	}

	t := &Transport{
		cfg:     cfg,
		dialer:  dialer,
		logger:  logger,
		metrics: metrics,
		decoder: &Decoder{WarnBytes: cfg.LargeFrameWarnBytes},
	}
	t.decoder.OnLargeFrame = t.warnLargeFrame
	return t
}

// Channel returns the channel label.
func (t *Transport) Channel() string {
	return t.cfg.Channel
}

// Connect drops any current connection, resets the decoder and starts an
// asynchronous dial. Complete frames the old connection already received are
// kept for the next Poll; only a trailing partial frame is discarded. Status
// is Connecting when Connect returns nil. Only an invalid address is reported
// here; dial failures surface through Status.
func (t *Transport) Connect(ctx context.Context, host string, port int) error {
	if host == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Transport", "Connect", "empty host")
	}
	if port <= 0 || port > 65535 {
		return errors.WrapInvalid(fmt.Errorf("%w: port %d", errors.ErrInvalidConfig, port),
			"Transport", "Connect", "validate port")
	}

	t.pending = append(t.pending, t.drain()...)
	t.drop()
	t.decoder.Reset()

	connCtx, cancel := context.WithCancel(ctx)
	c := &connection{
		cancel: cancel,
		chunks: make(chan []byte, t.cfg.QueueSize),
	}
	c.setState(Connecting)
	t.conn = c

	go t.run(connCtx, c, net.JoinHostPort(host, strconv.Itoa(port)))
	return nil
}

// run dials and then reads until the connection ends or is cancelled.
func (t *Transport) run(ctx context.Context, c *connection, addr string) {
	dialCtx := ctx
	if t.cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, t.cfg.DialTimeout)
		defer cancel()
	}

	conn, err := t.dialer.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		c.fail(Error, errors.WrapTransient(err, "Transport", "Connect", "dial "+addr))
		return
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer func() {
		stop()
		_ = conn.Close()
	}()

	c.setState(Connected)

	buf := make([]byte, t.cfg.ReadChunkSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case c.chunks <- chunk:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if stderrors.Is(err, io.EOF) {
				c.fail(Disconnected, errors.ErrConnectionLost)
			} else {
				c.fail(Error, errors.WrapTransient(err, "Transport", "Poll", "read"))
			}
			return
		}
	}
}

// Poll drains every chunk read since the last call, feeds the decoder and
// returns all complete payloads in order. It never blocks.
func (t *Transport) Poll() [][]byte {
	payloads := t.pending
	t.pending = nil
	return append(payloads, t.drain()...)
}

func (t *Transport) drain() [][]byte {
	c := t.conn
	if c == nil {
		return nil
	}

	received := 0
drain:
	for {
		select {
		case chunk := <-c.chunks:
			t.decoder.Feed(chunk)
			received += len(chunk)
		default:
			break drain
		}
	}

	payloads := t.decoder.Drain()
	if t.metrics != nil {
		if received > 0 {
			t.metrics.RecordBytes(t.cfg.Channel, received)
		}
		if len(payloads) > 0 {
			t.metrics.RecordFrames(t.cfg.Channel, len(payloads))
		}
	}
	return payloads
}

// Status returns the current connection state, logging only when it differs
// from the previously observed value.
func (t *Transport) Status() ConnectionState {
	state := Disconnected
	if t.conn != nil {
		state = ConnectionState(t.conn.state.Load())
	}
	t.observe(state)
	return state
}

// LastError returns the error that moved the connection to Error or
// Disconnected, if any.
func (t *Transport) LastError() error {
	if t.conn == nil {
		return nil
	}
	if p := t.conn.err.Load(); p != nil {
		return *p
	}
	return nil
}

// Buffered returns the number of undecoded bytes held by the decoder.
func (t *Transport) Buffered() int {
	return t.decoder.Buffered()
}

// Close disconnects, discards undelivered payloads and any partial frame,
// and resets the observed status to Disconnected. Safe to call in any state.
func (t *Transport) Close() {
	t.pending = nil
	t.drop()
	t.decoder.Reset()
	t.observe(Disconnected)
}

// drop cancels the current connection goroutine without waiting for it.
func (t *Transport) drop() {
	if t.conn == nil {
		return
	}
	t.conn.cancel()
	t.conn = nil
}

func (t *Transport) observe(state ConnectionState) {
	if state == t.observed {
		return
	}
	prev := t.observed
	t.observed = state

	attrs := []any{"from", prev.String(), "to", state.String()}
	if err := t.LastError(); err != nil && (state == Error || state == Disconnected) {
		attrs = append(attrs, "error", err)
	}
	t.logger.Debug("Stream status changed", attrs...)

	if t.metrics != nil {
		t.metrics.RecordConnectionStatus(t.cfg.Channel, int(state))
	}
}

func (t *Transport) warnLargeFrame(length uint32) {
	t.logger.Warn("Frame header declares an unusually large payload; accumulating anyway",
		"declared_bytes", length)
	if t.metrics != nil {
		t.metrics.RecordLargeFrame(t.cfg.Channel)
	}
}
