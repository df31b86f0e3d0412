package mirror

import (
	"bufio"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/simmirror/config"
	"github.com/c360/simmirror/errors"
	"github.com/c360/simmirror/events"
	"github.com/c360/simmirror/frame"
	"github.com/c360/simmirror/logring"
	"github.com/c360/simmirror/metric"
	"github.com/c360/simmirror/pkg/retry"
	"github.com/c360/simmirror/reconcile"
)

// server accepts connections on a loopback port and hands them to the test.
func server(t *testing.T) (int, <-chan net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	conns := make(chan net.Conn, 4)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			t.Cleanup(func() { _ = conn.Close() })
			conns <- conn
		}
	}()
	return ln.Addr().(*net.TCPAddr).Port, conns
}

// closedPort returns a loopback port with nothing listening on it.
func closedPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func accept(t *testing.T, conns <-chan net.Conn) net.Conn {
	t.Helper()
	select {
	case conn := <-conns:
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("no connection accepted")
		return nil
	}
}

func writeFrames(t *testing.T, conn net.Conn, payloads ...string) {
	t.Helper()
	var buf []byte
	for _, p := range payloads {
		buf = frame.AppendFrame(buf, []byte(p))
	}
	_, err := conn.Write(buf)
	require.NoError(t, err)
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Snapshot.Enabled = false
	cfg.Log.Enabled = false
	cfg.Command.Enabled = false
	cfg.Supervisor.Retry = retry.Fixed(50 * time.Millisecond)
	return cfg
}

func enable(sc *config.StreamConfig, port int) {
	sc.Enabled = true
	sc.Host = "127.0.0.1"
	sc.Port = port
}

func tickUntil(t *testing.T, c *Client, cond func() bool) {
	t.Helper()
	require.Eventually(t, func() bool {
		c.Tick(10 * time.Millisecond)
		return cond()
	}, 3*time.Second, 5*time.Millisecond)
}

func newClient(t *testing.T, cfg *config.Config, registry *metric.MetricsRegistry) (*Client, *events.Recorder) {
	t.Helper()
	c, err := New(Deps{Config: cfg, MetricsRegistry: registry})
	require.NoError(t, err)
	rec := &events.Recorder{}
	c.Subscribe(rec)
	require.NoError(t, c.Start())
	t.Cleanup(c.Stop)
	return c, rec
}

func TestClient_MirrorsSnapshotsAndDeltas(t *testing.T) {
	port, conns := server(t)
	cfg := testConfig()
	enable(&cfg.Snapshot, port)
	c, rec := newClient(t, cfg, nil)

	conn := accept(t, conns)
	writeFrames(t, conn,
		`{"turn": 1, "tiles": [{"entity": 1, "terrain": 2}, {"entity": 2, "terrain": 2}], "influencers": [{"id": 9}, {"id": 4}]}`,
		`{"turn": 2, "tile_updates": [{"entity": 3, "terrain": 5}], "tile_removed": [1]}`,
	)

	tickUntil(t, c, func() bool {
		turn, ok := c.State().Turn()
		return ok && turn == 2
	})

	assert.ElementsMatch(t, []uint64{2, 3}, c.State().Tiles.Keys(nil))
	assert.Equal(t, map[int64]int{2: 1, 5: 1}, c.State().TerrainHistogram.Counts())

	changed := rec.OfKind(events.CollectionChanged)
	require.Len(t, changed, 3)
	assert.Equal(t, reconcile.KindSnapshot, changed[0].Collection.Batch)
	last := changed[2]
	assert.Equal(t, "tiles", last.Collection.Category)
	assert.Equal(t, reconcile.KindDelta, last.Collection.Batch)
	assert.Equal(t, 1, last.Collection.Upserted)
	assert.Equal(t, 1, last.Collection.Removed)
	assert.Equal(t, 2, last.Collection.Size)
	require.NotNil(t, last.Turn)
	assert.Equal(t, int64(2), *last.Turn)
	assert.Equal(t, c.Session(), last.Session)

	status, ok := c.Health().Get(ChannelSnapshot)
	require.True(t, ok)
	assert.True(t, status.IsHealthy())
	assert.Equal(t, frame.Connected, c.Status(ChannelSnapshot))
}

func TestClient_SelectionFollowsRemovals(t *testing.T) {
	port, conns := server(t)
	cfg := testConfig()
	enable(&cfg.Snapshot, port)
	c, _ := newClient(t, cfg, nil)
	conn := accept(t, conns)

	writeFrames(t, conn, `{"turn": 1, "tiles": [{"entity": 5}, {"entity": 6}]}`)
	tickUntil(t, c, func() bool { return c.State().Tiles.Len() == 2 })
	require.True(t, c.Selections().Tile.Select(6, c.State().Tiles.Keys(nil)))

	writeFrames(t, conn, `{"turn": 2, "tile_removed": [6]}`)
	tickUntil(t, c, func() bool { return c.State().Tiles.Len() == 1 })

	_, ok := c.Selections().Tile.Current()
	assert.False(t, ok, "tile cursor resets to none")
}

func TestClient_InfluencerSelectionFallsBackToFirst(t *testing.T) {
	port, conns := server(t)
	cfg := testConfig()
	enable(&cfg.Snapshot, port)
	c, _ := newClient(t, cfg, nil)
	conn := accept(t, conns)

	writeFrames(t, conn, `{"turn": 1, "influencers": [{"id": 9}, {"id": 4}, {"id": 7}]}`)
	tickUntil(t, c, func() bool { return c.State().Influencers.Len() == 3 })

	// Nothing is selected until the user picks something.
	_, ok := c.Selections().Influencer.Current()
	assert.False(t, ok)
	require.True(t, c.Selections().Influencer.Select(9, c.State().Influencers.Keys(nil)))

	writeFrames(t, conn, `{"turn": 2, "influencer_removed": [9]}`)
	tickUntil(t, c, func() bool { return c.State().Influencers.Len() == 2 })

	sel, ok := c.Selections().Influencer.Current()
	require.True(t, ok)
	assert.Equal(t, uint64(4), sel, "lowest remaining id")

	c.Selections().Influencer.Clear()
	writeFrames(t, conn, `{"turn": 3, "influencer_updates": [{"id": 1}]}`)
	tickUntil(t, c, func() bool { return c.State().Influencers.Len() == 3 })
	_, ok = c.Selections().Influencer.Current()
	assert.False(t, ok, "a cleared cursor stays cleared")
}

func TestClient_DropsMalformedSnapshotPayload(t *testing.T) {
	port, conns := server(t)
	cfg := testConfig()
	enable(&cfg.Snapshot, port)
	registry := metric.NewMetricsRegistry()
	c, _ := newClient(t, cfg, registry)
	conn := accept(t, conns)

	writeFrames(t, conn, `{"tiles": [`, ``,
		`{"turn": 7, "tiles": [{"entity": 1}, {"entity": 2, "terrain_tags": -1}, {"entity": 3}]}`)

	var total TickStats
	require.Eventually(t, func() bool {
		stats := c.Tick(10 * time.Millisecond)
		total.Dropped += stats.Dropped
		total.Snapshots += stats.Snapshots
		total.Skipped += stats.Skipped
		_, ok := c.State().Turn()
		return ok
	}, 3*time.Second, 5*time.Millisecond)

	assert.Equal(t, 2, total.Dropped)
	assert.Equal(t, 1, total.Snapshots)
	assert.Equal(t, 1, total.Skipped)
	assert.ElementsMatch(t, []uint64{1, 3}, c.State().Tiles.Keys(nil), "one bad record does not sink the batch")
	m := registry.CoreMetrics()
	assert.Equal(t, 2.0, testutil.ToFloat64(m.PayloadsDropped.WithLabelValues(ChannelSnapshot, "decode")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecordsSkipped.WithLabelValues("undecodable")))
}

func TestClient_AppendsLogRecordsAndSyntheticStatus(t *testing.T) {
	port, conns := server(t)
	cfg := testConfig()
	enable(&cfg.Log, port)
	c, rec := newClient(t, cfg, nil)
	conn := accept(t, conns)

	writeFrames(t, conn,
		`{"timestamp_ms": 1000, "level": "warn", "target": "core_sim::power", "message": "grid stress"}`,
		`not json`,
		`{"timestamp_ms": 1001, "level": "debug", "target": "core_sim::ai", "message": "plan"}`,
	)

	tickUntil(t, c, func() bool { return c.Logs().TargetCounts()["core_sim::ai"] == 1 })

	var synthetic, streamed []logring.Record
	for _, r := range c.Logs().Records() {
		if r.Synthetic {
			synthetic = append(synthetic, r)
		} else {
			streamed = append(streamed, r)
		}
	}
	require.Len(t, streamed, 2)
	assert.Equal(t, "WARN", streamed[0].Level)
	require.NotEmpty(t, synthetic)
	assert.Equal(t, logring.SyntheticTarget, synthetic[len(synthetic)-1].Target)
	assert.Contains(t, synthetic[len(synthetic)-1].Message, "log stream connected")

	logs := rec.OfKind(events.LogAppended)
	assert.GreaterOrEqual(t, len(logs), 3)
	conn2 := rec.OfKind(events.ConnectionChanged)
	require.NotEmpty(t, conn2)
	assert.Equal(t, ChannelLog, conn2[len(conn2)-1].Connection.Channel)
	assert.Equal(t, "connected", conn2[len(conn2)-1].Connection.To)
}

func TestClient_LogFilterFromConfig(t *testing.T) {
	cfg := testConfig()
	cfg.LogBuffer.MinLevel = "warn"
	cfg.LogBuffer.Target = "Core_Sim::Power"
	c, err := New(Deps{Config: cfg})
	require.NoError(t, err)

	f := c.Logs().Filter()
	assert.Equal(t, logring.SeverityWarn, f.Threshold)
	assert.Equal(t, "core_sim::power", f.Target)
}

func TestClient_RefusedStreamIsUnhealthyAndRetries(t *testing.T) {
	cfg := testConfig()
	enable(&cfg.Snapshot, closedPort(t))
	registry := metric.NewMetricsRegistry()
	c, rec := newClient(t, cfg, registry)

	tickUntil(t, c, func() bool {
		s, _ := c.Health().Get(ChannelSnapshot)
		return s.IsUnhealthy()
	})

	var warn *logring.Record
	for _, r := range c.Logs().Records() {
		if r.Synthetic && r.Level == "WARN" {
			warn = &r
			break
		}
	}
	require.NotNil(t, warn)
	assert.Contains(t, warn.Text, "retry_in=50ms")

	conn := rec.OfKind(events.ConnectionChanged)
	require.NotEmpty(t, conn)
	assert.Equal(t, int64(50), conn[len(conn)-1].Connection.RetryInMs)

	tickUntil(t, c, func() bool {
		return testutil.ToFloat64(registry.CoreMetrics().ReconnectAttempts.WithLabelValues(ChannelSnapshot)) >= 1
	})
	assert.True(t, c.Health().AggregateHealth("simmirror").IsUnhealthy())
}

func TestClient_SendCommands(t *testing.T) {
	c, err := New(Deps{Config: testConfig()})
	require.NoError(t, err)
	err = c.Send("turn 1")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrNoConnection)
	assert.True(t, errors.IsTransient(err))

	port, conns := server(t)
	cfg := testConfig()
	enable(&cfg.Command, port)
	c, _ = newClient(t, cfg, nil)
	conn := accept(t, conns)
	tickUntil(t, c, func() bool { return c.Status(ChannelCommand) == frame.Connected })

	require.NoError(t, c.Send("map_size 80 52"))
	line, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "map_size 80 52\n", line)

	err = c.Send("bad\x00line")
	assert.True(t, errors.IsInvalid(err))
}

func TestClient_ResetSession(t *testing.T) {
	port, conns := server(t)
	cfg := testConfig()
	enable(&cfg.Snapshot, port)
	c, rec := newClient(t, cfg, nil)
	conn := accept(t, conns)

	writeFrames(t, conn, `{"turn": 3, "influencers": [{"id": 1}]}`)
	tickUntil(t, c, func() bool { return c.State().Influencers.Len() == 1 })
	before := c.Session()

	c.ResetSession()

	assert.NotEqual(t, before, c.Session())
	assert.Zero(t, c.State().Influencers.Len())
	assert.Zero(t, c.Logs().Len())
	_, ok := c.Selections().Influencer.Current()
	assert.False(t, ok)

	resets := rec.OfKind(events.SessionReset)
	require.Len(t, resets, 1)
	assert.Equal(t, c.Session(), resets[0].Session)
	assert.Nil(t, resets[0].Turn)
}

func TestClient_StopDisconnectsEveryStream(t *testing.T) {
	port, conns := server(t)
	cfg := testConfig()
	enable(&cfg.Log, port)
	c, err := New(Deps{Config: cfg})
	require.NoError(t, err)
	require.NoError(t, c.Start())
	accept(t, conns)
	tickUntil(t, c, func() bool { return c.Status(ChannelLog) == frame.Connected })

	c.Stop()
	assert.Equal(t, frame.Disconnected, c.Status(ChannelLog))
	s, _ := c.Health().Get(ChannelLog)
	assert.True(t, s.IsHealthy(), "disabled streams report healthy")

	last := c.Logs().Records()[c.Logs().Len()-1]
	assert.True(t, strings.HasSuffix(last.Message, "disconnected"))
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.LogBuffer.Capacity = 0
	_, err := New(Deps{Config: cfg})
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}
