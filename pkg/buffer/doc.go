// Package buffer provides a generic, thread-safe bounded buffer with
// configurable overflow policies.
//
// CircularBuffer keeps items in insertion order. When full it either evicts
// the oldest item (DropOldest) or rejects the new one (DropNewest), and the
// dropped item is handed to an optional DropCallback so the owner can keep
// per-item bookkeeping consistent with what is still buffered. Statistics are
// always collected; Prometheus metrics are opt-in via WithMetrics.
//
//	ring, err := buffer.NewCircularBuffer[Record](1000,
//	    buffer.WithDropCallback(func(r Record) { counts[r.Key]-- }),
//	    buffer.WithMetrics[Record](registry, "logring"),
//	)
//
// The drop callback is invoked after the internal lock is released, so it may
// call read methods on the same buffer.
package buffer
