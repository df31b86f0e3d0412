package buffer

// Buffer is a bounded, insertion-ordered store of items of type T.
type Buffer[T any] interface {
	// Write appends an item. Behavior when full depends on the overflow policy.
	Write(item T)

	// Items returns a copy of the contents, oldest first.
	Items() []T

	// Each calls fn for every item oldest first until fn returns false.
	Each(fn func(item T) bool)

	Size() int
	Capacity() int

	// Clear removes all items, invoking the drop callback for each.
	Clear()

	// Stats returns buffer statistics (always available).
	Stats() *Statistics
}

// OverflowPolicy defines how the buffer behaves when it reaches capacity.
type OverflowPolicy int

const (
	// DropOldest evicts the oldest item to make room for the new one.
	DropOldest OverflowPolicy = iota

	// DropNewest discards the incoming item when the buffer is full.
	DropNewest
)

// String returns a human-readable representation of the overflow policy.
func (p OverflowPolicy) String() string {
	switch p {
	case DropOldest:
		return "DropOldest"
	case DropNewest:
		return "DropNewest"
	default:
		return "Unknown"
	}
}

// DropCallback is called with every item that leaves the buffer: overflow
// evictions, rejected writes and Clear.
type DropCallback[T any] func(item T)

// NewCircularBuffer creates a circular buffer with the given capacity.
// Returns an error if metrics registration fails when metrics are requested.
func NewCircularBuffer[T any](capacity int, options ...Option[T]) (Buffer[T], error) {
	opts := applyOptions(options...)
	return newCircularBuffer(capacity, opts)
}
