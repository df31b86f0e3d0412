package reconcile

import "slices"

// KeyFunc extracts the identity of a record. ok is false for records that
// cannot be keyed; those are skipped.
type KeyFunc[K comparable, V any] func(v V) (key K, ok bool)

// Index is a derived view maintained alongside a Collection. Every method is
// called while the collection mutates, so an index always reflects the
// collection contents exactly.
type Index[K comparable, V any] interface {
	Insert(key K, v V)
	Remove(key K, v V)
	// Replace is called when key already held old and now holds v.
	Replace(key K, old, v V)
	Clear()
}

// Collection maps keys to records and keeps its indices in step with every
// mutation. It is not safe for concurrent use.
type Collection[K comparable, V any] struct {
	items   map[K]V
	keyOf   KeyFunc[K, V]
	indices []Index[K, V]
}

// NewCollection creates an empty collection.
func NewCollection[K comparable, V any](keyOf func(V) (K, bool), indices ...Index[K, V]) *Collection[K, V] {
	return &Collection[K, V]{
		items:   make(map[K]V),
		keyOf:   keyOf,
		indices: indices,
	}
}

// Rebuild replaces the whole collection with records. Indices are cleared and
// replayed as one insert per stored record. Later duplicates in records win.
func (c *Collection[K, V]) Rebuild(records []V) (applied, skipped int) {
	c.Clear()
	return c.Upsert(records)
}

// Upsert inserts or overwrites each keyable record in order, so the last
// duplicate within a batch wins.
func (c *Collection[K, V]) Upsert(records []V) (applied, skipped int) {
	for _, v := range records {
		key, ok := c.keyOf(v)
		if !ok {
			skipped++
			continue
		}
		if old, exists := c.items[key]; exists {
			for _, idx := range c.indices {
				idx.Replace(key, old, v)
			}
		} else {
			for _, idx := range c.indices {
				idx.Insert(key, v)
			}
		}
		c.items[key] = v
		applied++
	}
	return applied, skipped
}

// Remove erases keys. Missing keys are ignored; the count of erased records
// is returned.
func (c *Collection[K, V]) Remove(keys []K) int {
	removed := 0
	for _, key := range keys {
		old, exists := c.items[key]
		if !exists {
			continue
		}
		for _, idx := range c.indices {
			idx.Remove(key, old)
		}
		delete(c.items, key)
		removed++
	}
	return removed
}

// Clear empties the collection and its indices.
func (c *Collection[K, V]) Clear() {
	clear(c.items)
	for _, idx := range c.indices {
		idx.Clear()
	}
}

// Get returns the record stored under key.
func (c *Collection[K, V]) Get(key K) (V, bool) {
	v, ok := c.items[key]
	return v, ok
}

// Has reports whether key is present.
func (c *Collection[K, V]) Has(key K) bool {
	_, ok := c.items[key]
	return ok
}

// Len returns the number of records.
func (c *Collection[K, V]) Len() int {
	return len(c.items)
}

// Each calls fn for every record in unspecified order until fn returns false.
func (c *Collection[K, V]) Each(fn func(key K, v V) bool) {
	for k, v := range c.items {
		if !fn(k, v) {
			return
		}
	}
}

// Keys returns the keys ordered by cmp, or in map order when cmp is nil.
func (c *Collection[K, V]) Keys(cmp func(a, b K) int) []K {
	keys := make([]K, 0, len(c.items))
	for k := range c.items {
		keys = append(keys, k)
	}
	if cmp != nil {
		slices.SortFunc(keys, cmp)
	}
	return keys
}
