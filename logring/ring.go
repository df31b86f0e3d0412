package logring

import (
	"log/slog"
	"maps"

	"github.com/c360/simmirror/metric"
	"github.com/c360/simmirror/pkg/buffer"
)

// DefaultCapacity is the ring size used when none is configured.
const DefaultCapacity = 2000

// Deps holds runtime dependencies for a Ring
type Deps struct {
	MetricsRegistry *metric.MetricsRegistry // optional
	Logger          *slog.Logger            // optional
}

// Ring is a bounded log store with per-target counts and a cached filtered
// view. It is driven from the tick goroutine.
type Ring struct {
	buf     buffer.Buffer[Record]
	counts  map[string]int
	filter  Filter
	view    []Record
	dirty   bool
	logger  *slog.Logger
	metrics *metric.Metrics
}

// NewRing creates a ring holding at most capacity records; the oldest is
// evicted first. A non-positive capacity uses DefaultCapacity.
func NewRing(capacity int, deps Deps) (*Ring, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := &Ring{
		counts: make(map[string]int),
		filter: DefaultFilter(),
		dirty:  true,
		logger: logger.With("component", "log-ring"),
	}
	if deps.MetricsRegistry != nil {
		r.metrics = deps.MetricsRegistry.CoreMetrics()
	}

	buf, err := buffer.NewCircularBuffer[Record](capacity,
		buffer.WithOverflowPolicy[Record](buffer.DropOldest),
		buffer.WithDropCallback[Record](r.evicted),
		buffer.WithMetrics[Record](deps.MetricsRegistry, "log_ring"),
	)
	if err != nil {
		return nil, err
	}
	r.buf = buf
	return r, nil
}

// evicted runs for every record leaving the ring.
func (r *Ring) evicted(rec Record) {
	if r.counts[rec.TargetKey] <= 1 {
		delete(r.counts, rec.TargetKey)
		return
	}
	r.counts[rec.TargetKey]--
}

// Append adds rec at the tail, evicting the head when full.
func (r *Ring) Append(rec Record) {
	r.counts[rec.TargetKey]++
	r.buf.Write(rec)
	r.dirty = true
	if r.metrics != nil {
		r.metrics.RecordLogAppend(r.buf.Size())
	}
}

// AppendPayload parses one log frame payload and appends it.
func (r *Ring) AppendPayload(payload []byte) (Record, error) {
	env, err := ParseEnvelope(payload)
	if err != nil {
		return Record{}, err
	}
	rec := NewRecord(env)
	r.Append(rec)
	return rec, nil
}

// SetFilter replaces the filter and invalidates the view.
func (r *Ring) SetFilter(f Filter) {
	r.filter = f.normalized()
	r.dirty = true
}

// Filter returns the current filter.
func (r *Ring) Filter() Filter {
	return r.filter
}

// View returns the filtered records oldest first. The slice is cached until
// the next mutation; callers must not modify it.
func (r *Ring) View() []Record {
	if !r.dirty {
		return r.view
	}

	view := make([]Record, 0, len(r.view))
	r.buf.Each(func(rec Record) bool {
		if r.filter.match(rec) {
			view = append(view, rec)
		}
		return true
	})
	r.view = view
	r.dirty = false

	if r.metrics != nil {
		r.metrics.LogViewBuilds.Inc()
	}
	return r.view
}

// Evicted returns how many records have been pushed out of the ring since it
// was created. Reset does not count.
func (r *Ring) Evicted() int64 {
	return r.buf.Stats().Drops()
}

// Records returns every stored record oldest first.
func (r *Ring) Records() []Record {
	return r.buf.Items()
}

// Reset drops all records and counts and restores the default filter.
func (r *Ring) Reset() {
	r.logger.Debug("Log ring reset", "discarded", r.buf.Size())
	r.buf.Clear()
	clear(r.counts)
	r.filter = DefaultFilter()
	r.view = nil
	r.dirty = true
	if r.metrics != nil {
		r.metrics.LogRecords.Set(0)
	}
}

// TargetCounts returns a copy of the normalised target → record count map.
func (r *Ring) TargetCounts() map[string]int {
	return maps.Clone(r.counts)
}

// Len returns the number of stored records.
func (r *Ring) Len() int {
	return r.buf.Size()
}

// Capacity returns the maximum number of records.
func (r *Ring) Capacity() int {
	return r.buf.Capacity()
}
