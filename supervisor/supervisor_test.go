package supervisor

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cerrors "github.com/c360/simmirror/errors"
	"github.com/c360/simmirror/frame"
	"github.com/c360/simmirror/metric"
	"github.com/c360/simmirror/pkg/retry"
)

// fakeStream lets tests script connection outcomes.
type fakeStream struct {
	state    frame.ConnectionState
	err      error
	connects int
	closes   int
	payloads [][]byte
	// onConnect decides the state right after Connect; default Connecting.
	onConnect func(n int) frame.ConnectionState
}

func (f *fakeStream) Connect(_ context.Context, host string, port int) error {
	if host == "" {
		return cerrors.ErrInvalidConfig
	}
	f.connects++
	f.state = frame.Connecting
	if f.onConnect != nil {
		f.state = f.onConnect(f.connects)
	}
	return nil
}

func (f *fakeStream) Poll() [][]byte {
	p := f.payloads
	f.payloads = nil
	return p
}

func (f *fakeStream) Status() frame.ConnectionState { return f.state }
func (f *fakeStream) LastError() error              { return f.err }
func (f *fakeStream) Close() {
	f.closes++
	f.state = frame.Disconnected
}

func TestSupervisor_RetriesOnFixedCadence(t *testing.T) {
	stream := &fakeStream{}
	var transitions []Transition
	sup := New(stream, Deps{Channel: "log", OnTransition: func(tr Transition) {
		transitions = append(transitions, tr)
	}})

	require.NoError(t, sup.Enable("127.0.0.1", 41003))
	assert.Equal(t, 1, stream.connects)

	sup.Tick(0)
	stream.state = frame.Error
	stream.err = cerrors.ErrConnectRefused

	// 1.9s of ticks: no reconnect yet
	for i := 0; i < 19; i++ {
		sup.Tick(100 * time.Millisecond)
	}
	assert.Equal(t, 1, stream.connects)

	sup.Tick(100 * time.Millisecond)
	assert.Equal(t, 2, stream.connects)
	assert.Equal(t, DefaultRetryInterval, sup.RetryInterval())

	// Next retry happens after another full interval
	stream.state = frame.Error
	for i := 0; i < 20; i++ {
		sup.Tick(100 * time.Millisecond)
	}
	assert.Equal(t, 3, stream.connects)

	// connecting, error: the retry cycle does not repeat the log
	require.Len(t, transitions, 2)
	assert.Equal(t, frame.Connecting, transitions[0].To)
	assert.Equal(t, frame.Error, transitions[1].To)
	assert.Equal(t, DefaultRetryInterval, transitions[1].RetryIn)
	assert.ErrorIs(t, transitions[1].Err, cerrors.ErrConnectRefused)
}

func TestSupervisor_NoRetryWhileConnected(t *testing.T) {
	stream := &fakeStream{onConnect: func(int) frame.ConnectionState { return frame.Connected }}
	sup := New(stream, Deps{})

	require.NoError(t, sup.Enable("h", 1))
	for i := 0; i < 100; i++ {
		sup.Tick(time.Second)
	}
	assert.Equal(t, 1, stream.connects)
	assert.Equal(t, frame.Connected, sup.State())
}

func TestSupervisor_ReconnectsAfterDisconnect(t *testing.T) {
	stream := &fakeStream{onConnect: func(int) frame.ConnectionState { return frame.Connected }}
	var transitions []Transition
	registry := metric.NewMetricsRegistry()
	sup := New(stream, Deps{
		Channel:         "snapshot",
		MetricsRegistry: registry,
		OnTransition:    func(tr Transition) { transitions = append(transitions, tr) },
	})

	require.NoError(t, sup.Enable("h", 1))
	sup.Tick(0)

	stream.state = frame.Disconnected
	stream.err = cerrors.ErrConnectionLost
	sup.Tick(time.Second)
	sup.Tick(time.Second)

	assert.Equal(t, 2, stream.connects)
	sup.Tick(0)
	assert.Equal(t, frame.Connected, sup.State())

	var tos []frame.ConnectionState
	for _, tr := range transitions {
		tos = append(tos, tr.To)
	}
	assert.Equal(t, []frame.ConnectionState{frame.Connected, frame.Disconnected, frame.Connected}, tos)
	assert.Equal(t, 1.0, testutil.ToFloat64(registry.CoreMetrics().ReconnectAttempts.WithLabelValues("snapshot")))
}

func TestSupervisor_ExponentialBackoff(t *testing.T) {
	stream := &fakeStream{onConnect: func(int) frame.ConnectionState { return frame.Error }}
	sup := New(stream, Deps{Retry: retry.Config{
		InitialDelay: time.Second,
		MaxDelay:     4 * time.Second,
		Multiplier:   2,
	}})

	require.NoError(t, sup.Enable("h", 1))

	var intervals []time.Duration
	for i := 0; i < 4; i++ {
		before := stream.connects
		elapsed := time.Duration(0)
		for stream.connects == before {
			sup.Tick(250 * time.Millisecond)
			elapsed += 250 * time.Millisecond
			require.Less(t, elapsed, time.Minute)
		}
		intervals = append(intervals, elapsed)
	}

	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 4 * time.Second}, intervals)
}

func TestSupervisor_DisableStopsRetries(t *testing.T) {
	stream := &fakeStream{onConnect: func(int) frame.ConnectionState { return frame.Error }}
	sup := New(stream, Deps{})

	require.NoError(t, sup.Enable("h", 1))
	sup.Tick(0)
	sup.Disable()

	assert.False(t, sup.Enabled())
	assert.Equal(t, 1, stream.closes)
	assert.Nil(t, sup.Tick(10*time.Second))
	assert.Equal(t, 1, stream.connects)
	assert.Equal(t, frame.Disconnected, sup.State())
}

func TestSupervisor_EnableRejectsInvalidAddress(t *testing.T) {
	stream := &fakeStream{}
	sup := New(stream, Deps{})

	err := sup.Enable("", 1)
	require.Error(t, err)
	assert.False(t, sup.Enabled())
	assert.Nil(t, sup.Tick(time.Second))
}

func TestSupervisor_PassesPayloadsThrough(t *testing.T) {
	stream := &fakeStream{onConnect: func(int) frame.ConnectionState { return frame.Connected }}
	sup := New(stream, Deps{})
	require.NoError(t, sup.Enable("h", 1))

	stream.payloads = [][]byte{[]byte("a"), []byte("b")}
	assert.Equal(t, [][]byte{[]byte("a"), []byte("b")}, sup.Tick(time.Millisecond))
}

func TestSupervisor_WithRealTransport(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	tr := frame.NewTransport(frame.Deps{Config: frame.Config{Channel: "log"}})
	sup := New(tr, Deps{Channel: "log", Retry: retry.Fixed(50 * time.Millisecond)})
	defer sup.Disable()

	require.NoError(t, sup.Enable("127.0.0.1", port))
	require.Eventually(t, func() bool {
		sup.Tick(10 * time.Millisecond)
		return sup.State() == frame.Error
	}, 2*time.Second, 10*time.Millisecond)

	// Start listening on the same port; the next retry connects.
	ln, err = net.Listen("tcp", ln.Addr().String())
	if err != nil {
		t.Skipf("port reuse unavailable: %v", err)
	}
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_, _ = conn.Write(frame.Encode([]byte("ready")))
		time.Sleep(time.Second)
	}()

	var got [][]byte
	require.Eventually(t, func() bool {
		got = append(got, sup.Tick(10*time.Millisecond)...)
		return len(got) == 1
	}, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, []byte("ready"), got[0])
	assert.Equal(t, frame.Connected, sup.State())
}
