// Package selection tracks a user-selected record key across collection
// refreshes.
package selection

import "slices"

// Policy decides what a cursor does when its key disappears.
type Policy int

const (
	// ResetToNone clears the selection.
	ResetToNone Policy = iota
	// ResetToFirstAvailable moves to the first remaining key.
	ResetToFirstAvailable
)

// String returns the policy name.
func (p Policy) String() string {
	switch p {
	case ResetToNone:
		return "reset_to_none"
	case ResetToFirstAvailable:
		return "reset_to_first_available"
	default:
		return "unknown"
	}
}

// Cursor holds an optional selected key. The zero value is an empty cursor
// with ResetToNone.
type Cursor[K comparable] struct {
	policy Policy
	key    K
	ok     bool
}

// New creates an empty cursor with policy.
func New[K comparable](policy Policy) *Cursor[K] {
	return &Cursor[K]{policy: policy}
}

// Policy returns the cursor's fallback policy.
func (c *Cursor[K]) Policy() Policy {
	return c.policy
}

// Current returns the selected key, if any.
func (c *Cursor[K]) Current() (K, bool) {
	return c.key, c.ok
}

// Select moves the cursor to key when key is in keys. Otherwise the cursor
// is unchanged and false is returned.
func (c *Cursor[K]) Select(key K, keys []K) bool {
	if !slices.Contains(keys, key) {
		return false
	}
	c.key, c.ok = key, true
	return true
}

// Clear drops the selection.
func (c *Cursor[K]) Clear() {
	var zero K
	c.key, c.ok = zero, false
}

// Validate re-checks the selection against the current keys, given in the
// caller's display order. When the selected key is gone the policy applies:
// ResetToNone clears, ResetToFirstAvailable picks keys[0] or clears when keys
// is empty. An empty cursor stays empty, so a Clear is never undone. It
// reports whether the selection changed.
func (c *Cursor[K]) Validate(keys []K) bool {
	return c.Revalidate(
		func(k K) bool { return slices.Contains(keys, k) },
		func() []K { return keys },
	)
}

// Revalidate is Validate for large collections: has answers membership and
// keys, which may be nil under ResetToNone, is called only when a
// ResetToFirstAvailable cursor needs a replacement.
func (c *Cursor[K]) Revalidate(has func(K) bool, keys func() []K) bool {
	if !c.ok || has(c.key) {
		return false
	}

	if c.policy == ResetToFirstAvailable && keys != nil {
		if ks := keys(); len(ks) > 0 {
			c.key = ks[0]
			return true
		}
	}

	c.Clear()
	return true
}
