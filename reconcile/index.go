package reconcile

import (
	"maps"
	"math/bits"
	"slices"
)

// Histogram counts records per attribute value. Buckets that reach zero are
// deleted.
type Histogram[K comparable, V any, A comparable] struct {
	attr   func(V) A
	counts map[A]int
}

// NewHistogram creates a histogram over attr.
func NewHistogram[K comparable, V any, A comparable](attr func(V) A) *Histogram[K, V, A] {
	return &Histogram[K, V, A]{attr: attr, counts: make(map[A]int)}
}

func (h *Histogram[K, V, A]) Insert(_ K, v V) {
	h.counts[h.attr(v)]++
}

func (h *Histogram[K, V, A]) Remove(_ K, v V) {
	a := h.attr(v)
	if h.counts[a] <= 1 {
		delete(h.counts, a)
		return
	}
	h.counts[a]--
}

func (h *Histogram[K, V, A]) Replace(key K, old, v V) {
	if h.attr(old) == h.attr(v) {
		return
	}
	h.Remove(key, old)
	h.Insert(key, v)
}

func (h *Histogram[K, V, A]) Clear() {
	clear(h.counts)
}

// Count returns the number of records whose attribute equals a.
func (h *Histogram[K, V, A]) Count(a A) int {
	return h.counts[a]
}

// Counts returns a copy of all non-zero buckets.
func (h *Histogram[K, V, A]) Counts() map[A]int {
	return maps.Clone(h.counts)
}

// Len returns the number of non-zero buckets.
func (h *Histogram[K, V, A]) Len() int {
	return len(h.counts)
}

// BitmaskHistogram counts, per bit position, the records whose mask has that
// bit set. A record with k set bits contributes to k buckets.
type BitmaskHistogram[K comparable, V any] struct {
	mask   func(V) uint64
	counts map[int]int
}

// NewBitmaskHistogram creates a bit histogram over mask.
func NewBitmaskHistogram[K comparable, V any](mask func(V) uint64) *BitmaskHistogram[K, V] {
	return &BitmaskHistogram[K, V]{mask: mask, counts: make(map[int]int)}
}

func (h *BitmaskHistogram[K, V]) Insert(_ K, v V) {
	for m := h.mask(v); m != 0; m &= m - 1 {
		h.counts[bits.TrailingZeros64(m)]++
	}
}

func (h *BitmaskHistogram[K, V]) Remove(_ K, v V) {
	for m := h.mask(v); m != 0; m &= m - 1 {
		b := bits.TrailingZeros64(m)
		if h.counts[b] <= 1 {
			delete(h.counts, b)
			continue
		}
		h.counts[b]--
	}
}

func (h *BitmaskHistogram[K, V]) Replace(key K, old, v V) {
	if h.mask(old) == h.mask(v) {
		return
	}
	h.Remove(key, old)
	h.Insert(key, v)
}

func (h *BitmaskHistogram[K, V]) Clear() {
	clear(h.counts)
}

// Count returns the number of records with bit set.
func (h *BitmaskHistogram[K, V]) Count(bit int) int {
	return h.counts[bit]
}

// Counts returns a copy of all non-zero bit buckets.
func (h *BitmaskHistogram[K, V]) Counts() map[int]int {
	return maps.Clone(h.counts)
}

// ReverseIndex maps an attribute value to the keys of the records carrying
// it. Removal is O(1) by swapping with the bucket's last key, so key order
// inside a bucket is unspecified.
type ReverseIndex[K comparable, V any, A comparable] struct {
	attr    func(V) A
	buckets map[A][]K
	pos     map[K]int
}

// NewReverseIndex creates a reverse index over attr.
func NewReverseIndex[K comparable, V any, A comparable](attr func(V) A) *ReverseIndex[K, V, A] {
	return &ReverseIndex[K, V, A]{
		attr:    attr,
		buckets: make(map[A][]K),
		pos:     make(map[K]int),
	}
}

func (r *ReverseIndex[K, V, A]) Insert(key K, v V) {
	a := r.attr(v)
	r.pos[key] = len(r.buckets[a])
	r.buckets[a] = append(r.buckets[a], key)
}

func (r *ReverseIndex[K, V, A]) Remove(key K, v V) {
	a := r.attr(v)
	bucket := r.buckets[a]
	i, ok := r.pos[key]
	if !ok || i >= len(bucket) || bucket[i] != key {
		return
	}

	last := len(bucket) - 1
	if i != last {
		moved := bucket[last]
		bucket[i] = moved
		r.pos[moved] = i
	}
	bucket = bucket[:last]
	delete(r.pos, key)

	if len(bucket) == 0 {
		delete(r.buckets, a)
		return
	}
	r.buckets[a] = bucket
}

func (r *ReverseIndex[K, V, A]) Replace(key K, old, v V) {
	if r.attr(old) == r.attr(v) {
		return
	}
	r.Remove(key, old)
	r.Insert(key, v)
}

func (r *ReverseIndex[K, V, A]) Clear() {
	clear(r.buckets)
	clear(r.pos)
}

// Keys returns a copy of the keys whose attribute equals a.
func (r *ReverseIndex[K, V, A]) Keys(a A) []K {
	return slices.Clone(r.buckets[a])
}

// Len returns the number of non-empty buckets.
func (r *ReverseIndex[K, V, A]) Len() int {
	return len(r.buckets)
}

// Values returns every attribute value that has at least one key.
func (r *ReverseIndex[K, V, A]) Values() []A {
	return slices.Collect(maps.Keys(r.buckets))
}
