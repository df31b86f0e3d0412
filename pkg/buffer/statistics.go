package buffer

import "sync/atomic"

// Statistics counts buffer activity.
type Statistics struct {
	writes    atomic.Int64
	overflows atomic.Int64
	drops     atomic.Int64
}

// NewStatistics creates a new statistics tracker.
func NewStatistics() *Statistics {
	return &Statistics{}
}

func (s *Statistics) Write()    { s.writes.Add(1) }
func (s *Statistics) Overflow() { s.overflows.Add(1) }
func (s *Statistics) Drop()     { s.drops.Add(1) }

func (s *Statistics) Writes() int64    { return s.writes.Load() }
func (s *Statistics) Overflows() int64 { return s.overflows.Load() }

// Drops counts items evicted or rejected on overflow. Clear is not a drop.
func (s *Statistics) Drops() int64 { return s.drops.Load() }
