package mirror

import (
	"cmp"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/c360/simmirror/command"
	"github.com/c360/simmirror/config"
	"github.com/c360/simmirror/errors"
	"github.com/c360/simmirror/events"
	"github.com/c360/simmirror/frame"
	"github.com/c360/simmirror/health"
	"github.com/c360/simmirror/logring"
	"github.com/c360/simmirror/metric"
	"github.com/c360/simmirror/reconcile"
	"github.com/c360/simmirror/selection"
	"github.com/c360/simmirror/snapshot"
	"github.com/c360/simmirror/supervisor"
)

// Channel names used for logs, metrics and events.
const (
	ChannelSnapshot = "snapshot"
	ChannelLog      = "log"
	ChannelCommand  = "command"
)

// Deps holds runtime dependencies for a Client
type Deps struct {
	Config          *config.Config          // nil uses config.Default()
	Decoder         snapshot.Decoder        // nil uses snapshot.JSONDecoder
	Dialer          frame.Dialer            // nil uses a net.Dialer
	MetricsRegistry *metric.MetricsRegistry // optional
	Logger          *slog.Logger            // optional
	Now             func() time.Time        // optional, stamps synthetic records and events
}

// Selections holds the cursors kept valid across collection changes. Each
// site has its own fallback policy.
type Selections struct {
	Tile         *selection.Cursor[uint64]
	Influencer   *selection.Cursor[uint64]
	PowerNode    *selection.Cursor[uint64]
	CultureLayer *selection.Cursor[uint64]
}

func newSelections() Selections {
	return Selections{
		Tile:         selection.New[uint64](selection.ResetToNone),
		Influencer:   selection.New[uint64](selection.ResetToFirstAvailable),
		PowerNode:    selection.New[uint64](selection.ResetToNone),
		CultureLayer: selection.New[uint64](selection.ResetToFirstAvailable),
	}
}

func (s Selections) clear() {
	s.Tile.Clear()
	s.Influencer.Clear()
	s.PowerNode.Clear()
	s.CultureLayer.Clear()
}

// TickStats summarises one Tick.
type TickStats struct {
	Snapshots  int
	Deltas     int
	Dropped    int
	Skipped    int // records left out of otherwise readable payloads
	LogRecords int
}

// stream pairs a supervisor with its channel settings.
type stream struct {
	name    string
	cfg     config.StreamConfig
	sup     *supervisor.Supervisor
	lastErr func() error
}

// Client mirrors simulation state from the snapshot and log streams and
// forwards commands. Every method must be called from the tick goroutine
// except Subscribe and the health monitor, which are safe for concurrent use.
type Client struct {
	cfg     *config.Config
	decoder snapshot.Decoder
	logger  *slog.Logger
	metrics *metric.Metrics
	now     func() time.Time

	snapshots *frame.Transport
	logs      *frame.Transport
	commands  *command.Channel
	streams   []*stream // snapshot, log, command

	state    *reconcile.Reconciler
	ring     *logring.Ring
	sel      Selections
	bus      events.Bus
	monitor  *health.Monitor
	session  string
	decodeKO int
}

// New builds a client with every stream disabled. Call Start to connect.
func New(deps Deps) (*Client, error) {
	cfg := deps.Config
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	decoder := deps.Decoder
	if decoder == nil {
		decoder = snapshot.JSONDecoder{}
	}

	now := deps.Now
	if now == nil {
		now = time.Now
	}

	c := &Client{
		cfg:     cfg,
		decoder: decoder,
		logger:  logger.With("component", "mirror"),
		now:     now,
		sel:     newSelections(),
		monitor: health.NewMonitor(),
		session: uuid.NewString(),
	}
	if deps.MetricsRegistry != nil {
		c.metrics = deps.MetricsRegistry.CoreMetrics()
	}

	ring, err := logring.NewRing(cfg.LogBuffer.Capacity, logring.Deps{
		MetricsRegistry: deps.MetricsRegistry,
		Logger:          logger,
	})
	if err != nil {
		return nil, errors.WrapFatal(err, "Client", "New", "create log ring")
	}
	c.ring = ring
	c.ApplyLogFilter(cfg.LogBuffer)

	c.state = reconcile.New(reconcile.Deps{MetricsRegistry: deps.MetricsRegistry, Logger: logger})

	c.snapshots = c.newTransport(ChannelSnapshot, cfg.Snapshot, deps)
	c.logs = c.newTransport(ChannelLog, cfg.Log, deps)
	c.commands = command.NewChannel(command.Deps{
		Config: command.Config{
			Channel:     ChannelCommand,
			MaxPending:  cfg.Client.CommandMaxPending,
			DialTimeout: cfg.Command.DialTimeout,
		},
		Dialer:          deps.Dialer,
		MetricsRegistry: deps.MetricsRegistry,
		Logger:          logger,
	})

	c.streams = []*stream{
		c.supervise(ChannelSnapshot, cfg.Snapshot, c.snapshots, deps),
		c.supervise(ChannelLog, cfg.Log, c.logs, deps),
		c.supervise(ChannelCommand, cfg.Command, c.commands, deps),
	}
	c.updateHealth()
	return c, nil
}

func (c *Client) newTransport(name string, sc config.StreamConfig, deps Deps) *frame.Transport {
	return frame.NewTransport(frame.Deps{
		Config: frame.Config{
			Channel:             name,
			ReadChunkSize:       c.cfg.Client.ReadChunkSize,
			QueueSize:           c.cfg.Client.QueueSize,
			DialTimeout:         sc.DialTimeout,
			LargeFrameWarnBytes: c.cfg.Client.LargeFrameWarnBytes,
		},
		Dialer:          deps.Dialer,
		MetricsRegistry: deps.MetricsRegistry,
		Logger:          deps.Logger,
	})
}

func (c *Client) supervise(name string, sc config.StreamConfig, s supervisor.Stream, deps Deps) *stream {
	return &stream{
		name: name,
		cfg:  sc,
		sup: supervisor.New(s, supervisor.Deps{
			Channel:         name,
			Retry:           c.cfg.Supervisor.Retry,
			MetricsRegistry: deps.MetricsRegistry,
			Logger:          deps.Logger,
			OnTransition:    c.onTransition,
		}),
		lastErr: s.LastError,
	}
}

// Start enables every configured stream. Streams that fail to start are
// reported together; the others keep running.
func (c *Client) Start() error {
	var errs []error
	for _, s := range c.streams {
		if !s.cfg.Enabled {
			continue
		}
		if err := s.sup.Enable(s.cfg.Host, s.cfg.Port); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
		}
	}
	c.updateHealth()
	if len(errs) > 0 {
		return errors.Wrap(stderrors.Join(errs...), "Client", "Start", "enable streams")
	}
	c.logger.Info("Mirror client started", "session", c.session)
	return nil
}

// Stop disables every stream and drops partial frames. Mirrored state is kept.
func (c *Client) Stop() {
	for _, s := range c.streams {
		s.sup.Disable()
	}
	c.updateHealth()
	c.logger.Info("Mirror client stopped", "session", c.session)
}

// Tick advances every stream by dt, reconciles decoded snapshots, appends log
// records and keeps selections valid. It never blocks.
func (c *Client) Tick(dt time.Duration) TickStats {
	var stats TickStats

	for _, payload := range c.streams[0].sup.Tick(dt) {
		c.applySnapshot(payload, &stats)
	}
	for _, payload := range c.streams[1].sup.Tick(dt) {
		c.appendLog(payload, &stats)
	}
	c.streams[2].sup.Tick(dt)

	c.updateHealth()
	return stats
}

func (c *Client) applySnapshot(payload []byte, stats *TickStats) {
	s, err := c.decoder.Decode(payload)
	if err != nil || s == nil {
		stats.Dropped++
		c.dropped(ChannelSnapshot, "decode")
		if c.decodeKO == 0 {
			c.logger.Warn("Dropping undecodable snapshot payload", "bytes", len(payload), "error", err)
		}
		c.decodeKO++
		return
	}
	if c.decodeKO > 0 {
		c.logger.Info("Snapshot payloads decoding again", "dropped", c.decodeKO)
		c.decodeKO = 0
	}

	if s.Skipped > 0 {
		stats.Skipped += s.Skipped
		if c.metrics != nil {
			c.metrics.RecordSkipped("undecodable", s.Skipped)
		}
		c.logger.Debug("Skipped unreadable snapshot records", "records", s.Skipped)
	}

	cs := c.state.Apply(s)
	if cs.Kind == reconcile.KindDelta {
		stats.Deltas++
	} else {
		stats.Snapshots++
	}
	c.revalidate(cs)
	c.emitChanges(cs)
}

func (c *Client) appendLog(payload []byte, stats *TickStats) {
	rec, err := c.ring.AppendPayload(payload)
	if err != nil {
		stats.Dropped++
		c.dropped(ChannelLog, "parse")
		c.logger.Debug("Dropping malformed log payload", "bytes", len(payload), "error", err)
		return
	}
	stats.LogRecords++
	c.emitLog(rec)
}

func (c *Client) dropped(channel, reason string) {
	if c.metrics != nil {
		c.metrics.RecordPayloadDropped(channel, reason)
	}
}

// revalidate re-checks the cursors of the categories touched by cs.
func (c *Client) revalidate(cs reconcile.ChangeSet) {
	if cs.Changed(reconcile.Tiles) {
		follow(c.sel.Tile, c.state.Tiles)
	}
	if cs.Changed(reconcile.Influencers) {
		follow(c.sel.Influencer, c.state.Influencers)
	}
	if cs.Changed(reconcile.PowerNodes) {
		follow(c.sel.PowerNode, c.state.PowerNodes)
	}
	if cs.Changed(reconcile.CultureLayers) {
		follow(c.sel.CultureLayer, c.state.CultureLayers)
	}
}

// follow keeps cur valid against coll. Keys are sorted only when a
// first-available cursor lost its key.
func follow[V any](cur *selection.Cursor[uint64], coll *reconcile.Collection[uint64, V]) {
	var keys func() []uint64
	if cur.Policy() == selection.ResetToFirstAvailable {
		keys = func() []uint64 { return coll.Keys(cmp.Compare[uint64]) }
	}
	cur.Revalidate(coll.Has, keys)
}

func (c *Client) emitChanges(cs reconcile.ChangeSet) {
	for _, ch := range cs.Changes {
		c.emit(events.Event{
			Kind: events.CollectionChanged,
			Collection: &events.Collection{
				Category: string(ch.Category),
				Batch:    cs.Kind,
				Rebuilt:  ch.Rebuilt,
				Upserted: ch.Upserted,
				Removed:  ch.Removed,
				Skipped:  ch.Skipped,
				Size:     c.state.Len(ch.Category),
			},
		})
	}
}

func (c *Client) emitLog(rec logring.Record) {
	c.emit(events.Event{
		Kind: events.LogAppended,
		Log: &events.Log{
			Level:     rec.Level,
			Target:    rec.Target,
			Message:   rec.Message,
			Synthetic: rec.Synthetic,
		},
	})
}

// onTransition turns a reported stream transition into a connection event
// and, for the mirrored streams, a synthetic log record.
func (c *Client) onTransition(tr supervisor.Transition) {
	conn := &events.Connection{
		Channel:   tr.Channel,
		From:      tr.From.String(),
		To:        tr.To.String(),
		RetryInMs: tr.RetryIn.Milliseconds(),
	}
	if tr.Err != nil {
		conn.Error = tr.Err.Error()
	}
	c.emit(events.Event{Kind: events.ConnectionChanged, Connection: conn})

	if tr.Channel == ChannelCommand {
		return
	}

	level := "INFO"
	fields := map[string]any{"channel": tr.Channel, "state": conn.To}
	msg := fmt.Sprintf("%s stream %s", tr.Channel, conn.To)
	if tr.To == frame.Error || (tr.To == frame.Disconnected && tr.Err != nil) {
		level = "WARN"
		if conn.Error != "" {
			fields["error"] = conn.Error
		}
		if tr.RetryIn > 0 {
			fields["retry_in"] = tr.RetryIn.String()
		}
	}
	rec := logring.SyntheticRecord(c.now(), level, msg, fields)
	c.ring.Append(rec)
	c.emitLog(rec)
}

func (c *Client) emit(e events.Event) {
	e.Session = c.session
	e.Time = c.now()
	if turn, ok := c.state.Turn(); ok {
		e.Turn = &turn
	}
	c.bus.OnEvent(e)
}

func (c *Client) updateHealth() {
	for _, s := range c.streams {
		c.monitor.UpdateStream(s.name, health.StreamInfo{
			Enabled:  s.sup.Enabled(),
			State:    s.sup.State(),
			Err:      s.lastErr(),
			Failures: s.sup.Failures(),
		})
	}
}

// ApplyLogFilter sets the view's level threshold and target from lb. The
// text query is kept. Capacity is fixed for the life of the client.
func (c *Client) ApplyLogFilter(lb config.LogBufferConfig) {
	f := logring.DefaultFilter()
	if lb.MinLevel != "" {
		f.Threshold = logring.SeverityOf(lb.MinLevel)
	}
	f.Target = lb.Target
	f.Query = c.ring.Filter().Query
	c.ring.SetFilter(f)
}

// Send queues one command line on the command stream. A busy channel is
// polled once and retried once before a transient ErrBusy is returned.
func (c *Client) Send(line string) error {
	return c.commands.Send(line)
}

// ResetSession clears every collection, the log ring and the selections and
// starts a new session id.
func (c *Client) ResetSession() {
	c.state.Reset()
	c.ring.Reset()
	c.sel.clear()
	c.decodeKO = 0
	c.session = uuid.NewString()
	c.logger.Info("Session reset", "session", c.session)
	c.emit(events.Event{Kind: events.SessionReset})
}

// Subscribe registers an observer for change notifications.
func (c *Client) Subscribe(o events.Observer) {
	c.bus.Subscribe(o)
}

// Session returns the current session id.
func (c *Client) Session() string {
	return c.session
}

// State returns the reconciled collections and scalars.
func (c *Client) State() *reconcile.Reconciler {
	return c.state
}

// Logs returns the log ring.
func (c *Client) Logs() *logring.Ring {
	return c.ring
}

// Selections returns the selection cursors.
func (c *Client) Selections() Selections {
	return c.sel
}

// Health returns the per-stream health monitor.
func (c *Client) Health() *health.Monitor {
	return c.monitor
}

// Status returns the last observed state of a channel.
func (c *Client) Status(channel string) frame.ConnectionState {
	for _, s := range c.streams {
		if s.name == channel {
			return s.sup.State()
		}
	}
	return frame.Disconnected
}

// PendingCommandBytes returns the bytes queued on the command stream.
func (c *Client) PendingCommandBytes() int {
	return c.commands.Pending()
}
