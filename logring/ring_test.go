package logring

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/simmirror/errors"
	"github.com/c360/simmirror/metric"
)

func rec(level, target, message string) Record {
	return NewRecord(Envelope{TimestampMs: 1_700_000_000_123, Level: level, Target: target, Message: message})
}

func TestSeverityOf(t *testing.T) {
	tests := map[string]Severity{
		"TRACE":     0,
		"debug":     1,
		"INFO":      2,
		"WARN":      3,
		" Warning ": 3,
		"ERROR":     4,
		"COMMAND":   2,
		"SCRIPT":    2,
		"FATAL":     2,
		"":          2,
	}
	for level, want := range tests {
		assert.Equal(t, want, SeverityOf(level), level)
	}
}

func TestNewRecord_Formatting(t *testing.T) {
	r := NewRecord(Envelope{
		TimestampMs: 3_723_004, // 01:02:03.004
		Level:       "warn",
		Target:      " Core_Sim::Power ",
		Message:     "Grid stress high",
		Fields:      map[string]any{"node": float64(7), "alert": true, "detail": map[string]any{"a": 1}},
	})

	assert.Equal(t, `[01:02:03.004] WARN Core_Sim::Power: Grid stress high alert=true detail={"a":1} node=7`, r.Text)
	assert.Equal(t, "core_sim::power", r.TargetKey)
	assert.Equal(t, " Core_Sim::Power ", r.Target)
	assert.Equal(t, "WARN", r.Level)
	assert.Equal(t, SeverityWarn, r.Severity())
	assert.Contains(t, r.SearchText, "grid stress high")
	assert.False(t, r.Synthetic)
}

func TestSyntheticRecord(t *testing.T) {
	now := time.UnixMilli(5_000)
	r := SyntheticRecord(now, "INFO", "Log stream connected", nil)
	assert.True(t, r.Synthetic)
	assert.Equal(t, SyntheticTarget, r.TargetKey)
	assert.Equal(t, int64(5_000), r.TimestampMs)
	assert.Equal(t, "[00:00:05.000] INFO client: Log stream connected", r.Text)
}

func TestParseEnvelope(t *testing.T) {
	env, err := ParseEnvelope([]byte(`{"timestamp_ms": 12, "level": "INFO", "target": "sim", "message": "tick", "fields": {"turn": 4}}`))
	require.NoError(t, err)
	assert.Equal(t, int64(12), env.TimestampMs)
	assert.Equal(t, float64(4), env.Fields["turn"])

	_, err = ParseEnvelope([]byte(`{"level":`))
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
	assert.ErrorIs(t, err, errors.ErrParsingFailed)
}

func TestRing_BoundAndTargetCounts(t *testing.T) {
	const capacity = 10
	ring, err := NewRing(capacity, Deps{})
	require.NoError(t, err)

	for i := 0; i < capacity+5; i++ {
		target := "alpha"
		if i%3 == 0 {
			target = "Beta"
		}
		ring.Append(rec("INFO", target, fmt.Sprintf("m%d", i)))
	}

	require.Equal(t, capacity, ring.Len())
	records := ring.Records()
	assert.Equal(t, "m5", records[0].Message)
	assert.Equal(t, "m14", records[capacity-1].Message)

	// Counts describe exactly the retained records
	want := map[string]int{}
	for _, r := range records {
		want[r.TargetKey]++
	}
	assert.Equal(t, want, ring.TargetCounts())
	assert.Equal(t, map[string]int{"alpha": 7, "beta": 3}, ring.TargetCounts())
	assert.Equal(t, int64(5), ring.Evicted())

	// Reset empties the ring without counting evictions
	ring.Reset()
	assert.Equal(t, 0, ring.Len())
	assert.Equal(t, int64(5), ring.Evicted())
}

func TestRing_EvictionDropsEmptyTargets(t *testing.T) {
	ring, err := NewRing(2, Deps{})
	require.NoError(t, err)

	ring.Append(rec("INFO", "once", "a"))
	ring.Append(rec("INFO", "x", "b"))
	ring.Append(rec("INFO", "x", "c"))

	assert.Equal(t, map[string]int{"x": 2}, ring.TargetCounts())
}

func TestRing_FilterBySeverity(t *testing.T) {
	ring, err := NewRing(16, Deps{})
	require.NoError(t, err)

	// severities 0, 2, 3, 4, 3
	for i, level := range []string{"TRACE", "INFO", "WARN", "ERROR", "WARNING"} {
		ring.Append(rec(level, "sim", fmt.Sprintf("m%d", i)))
	}

	ring.SetFilter(Filter{Threshold: SeverityWarn})
	var got []string
	for _, r := range ring.View() {
		got = append(got, r.Message)
	}
	assert.Equal(t, []string{"m2", "m3", "m4"}, got)
}

func TestRing_FilterByTargetAndQuery(t *testing.T) {
	ring, err := NewRing(16, Deps{})
	require.NoError(t, err)

	ring.Append(rec("INFO", "Power", "Node 4 overloaded"))
	ring.Append(rec("INFO", "power", "node 5 ok"))
	ring.Append(rec("INFO", "trade", "Node 4 route opened"))

	ring.SetFilter(Filter{Target: " POWER "})
	assert.Len(t, ring.View(), 2)

	ring.SetFilter(Filter{Target: "power", Query: "NODE 4"})
	view := ring.View()
	require.Len(t, view, 1)
	assert.Equal(t, "Node 4 overloaded", view[0].Message)

	ring.SetFilter(Filter{Query: "node 4"})
	assert.Len(t, ring.View(), 2)

	ring.SetFilter(Filter{Target: "missing"})
	assert.Empty(t, ring.View())

	assert.True(t, Filter{Query: "ROUTE"}.Match(ring.Records()[2]))
}

func TestRing_ViewIsCachedUntilMutation(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	ring, err := NewRing(4, Deps{MetricsRegistry: registry})
	require.NoError(t, err)
	builds := registry.CoreMetrics().LogViewBuilds

	ring.Append(rec("INFO", "a", "one"))
	first := ring.View()
	ring.View()
	assert.Equal(t, 1.0, testutil.ToFloat64(builds))

	ring.Append(rec("INFO", "a", "two"))
	second := ring.View()
	assert.Equal(t, 2.0, testutil.ToFloat64(builds))
	assert.Len(t, first, 1)
	assert.Len(t, second, 2)

	ring.SetFilter(Filter{Query: "two"})
	assert.Len(t, ring.View(), 1)
	assert.Equal(t, 3.0, testutil.ToFloat64(builds))
	assert.Equal(t, 2.0, testutil.ToFloat64(registry.CoreMetrics().LogRecords))
}

func TestRing_Reset(t *testing.T) {
	ring, err := NewRing(4, Deps{})
	require.NoError(t, err)

	ring.Append(rec("ERROR", "a", "boom"))
	ring.SetFilter(Filter{Threshold: SeverityError, Target: "a"})
	require.Len(t, ring.View(), 1)

	ring.Reset()
	assert.Zero(t, ring.Len())
	assert.Empty(t, ring.TargetCounts())
	assert.Equal(t, DefaultFilter(), ring.Filter())
	assert.Empty(t, ring.View())

	ring.Append(rec("TRACE", "b", "after"))
	assert.Len(t, ring.View(), 1)
	assert.Equal(t, map[string]int{"b": 1}, ring.TargetCounts())
}

func TestRing_AppendPayload(t *testing.T) {
	ring, err := NewRing(0, Deps{})
	require.NoError(t, err)
	assert.Equal(t, DefaultCapacity, ring.Capacity())

	r, err := ring.AppendPayload([]byte(`{"timestamp_ms": 0, "level": "SCRIPT", "target": "lua", "message": "ran"}`))
	require.NoError(t, err)
	assert.Equal(t, SeverityInfo, r.Severity())
	assert.Equal(t, 1, ring.Len())

	_, err = ring.AppendPayload([]byte("not json"))
	require.Error(t, err)
	assert.Equal(t, 1, ring.Len())
}
