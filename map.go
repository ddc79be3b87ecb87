// Package rhmap provides a generic hash table that maps caller defined
// records to themselves. It uses open addressing with linear probing
// and robin hood hashing as collision strategy. The records are values,
// key identity is defined entirely by the configured hash and compare
// functions.
package rhmap

import (
	"errors"
	"fmt"
	"unsafe"
)

const (
	// minCapacity is the floor for the bucket array. The initial
	// capacity is never below this value and shrinking never goes
	// below the initial capacity.
	minCapacity = 16
)

var (
	// ErrNoHasher signals a Config without a hash function.
	ErrNoHasher = errors.New("missing hash function")
	// ErrNoCompare signals a Config without a compare function.
	ErrNoCompare = errors.New("missing compare function")
	// ErrOutOfMemory signals a denied bucket array allocation.
	ErrOutOfMemory = errors.New("out of memory")
)

type bucket[T any] struct {
	// dib is the distance to the initial bucket, counted from 1.
	// Zero signals a free slot. dib-1 is the probe sequence length
	// (PSL) known from the literature.
	// inspired from:
	//  - https://programming.guide/robin-hood-hashing.html
	//  - https://cs.uwaterloo.ca/research/tr/1986/CS-86-14.pdf
	dib int16
	// hash is the record digest computed at insertion time with the
	// high bit cleared. It is compared before the record itself and
	// reused during a resize.
	hash uint64
	item T
}

// Map is a hash map that stores records of type T keyed by the
// configured callbacks. The map tracks the distance of every record
// from its optimum bucket and minimizes the variance over all buckets,
// which keeps probe chains short at high load. The bucket array grows
// at 75% load and shrinks again at 10%, never below the initial
// capacity.
//
// A Map is not safe for concurrent use. All returned records are
// copies, indirect state they reference stays shared with the caller.
type Map[T any] struct {
	buckets []bucket[T]
	hasher  HashFn[T]
	compare CompareFn[T]
	free    FreeFn[T]
	alloc   Allocator
	// length stores the current inserted elements
	length uintptr
	// capMinus1 is used for a bitwise AND on the hash value,
	// because the size of the underlying array is a power of two value
	capMinus1 uintptr
	// growAt and shrinkAt are the occupancy thresholds that trigger
	// a resize, recomputed whenever the capacity changes.
	growAt   uintptr
	shrinkAt uintptr
	// initialCap is the floor the bucket array never shrinks below.
	initialCap uintptr
	// stride is the byte size of one bucket, used for the allocation
	// accounting.
	stride uintptr
	seed0  uint64
	seed1  uint64
	oom    bool
}

// Config is used to create and configure a Map instance.
type Config[T any] struct {
	// Capacity sizes the initial bucket array to hold at least this
	// many buckets. Zero uses the default floor of 16. The value is
	// rounded up to the next power of two.
	Capacity uintptr
	// Seed0 and Seed1 are passed to every Hasher invocation.
	Seed0, Seed1 uint64
	// Hasher computes the record digest. Required.
	Hasher HashFn[T]
	// Compare reports key equality of two records. Required.
	Compare CompareFn[T]
	// Free is called for every record the map discards on Clear and
	// on a full Free. It is not called when Set replaces a record or
	// when Delete removes one, there the record is handed back to the
	// caller instead. Optional.
	Free FreeFn[T]
	// Allocator accounts for the bucket array storage.
	// If unset every allocation is granted.
	Allocator Allocator
}

// MustNew same as 'New' but panics if and only if an error occurs.
func MustNew[T any](cfg Config[T]) *Map[T] {
	m, err := New(cfg)
	if err != nil {
		panic(err.Error())
	}
	return m
}

// New creates a ready to use Map from the given config. The returned
// error is ErrNoHasher or ErrNoCompare for an incomplete config, or
// wraps ErrOutOfMemory if the allocator denies the initial bucket
// array. No partial map is ever returned.
func New[T any](cfg Config[T]) (*Map[T], error) {
	if cfg.Hasher == nil {
		return nil, ErrNoHasher
	}
	if cfg.Compare == nil {
		return nil, ErrNoCompare
	}

	capacity := cfg.Capacity
	if capacity < minCapacity {
		capacity = minCapacity
	}
	capacity = uintptr(NextPowerOf2(uint64(capacity)))

	alloc := cfg.Allocator
	if alloc == nil {
		alloc = runtimeAllocator{}
	}

	m := &Map[T]{
		hasher:     cfg.Hasher,
		compare:    cfg.Compare,
		free:       cfg.Free,
		alloc:      alloc,
		initialCap: capacity,
		stride:     unsafe.Sizeof(bucket[T]{}),
		seed0:      cfg.Seed0,
		seed1:      cfg.Seed1,
	}

	if !m.alloc.Allocate(capacity * m.stride) {
		return nil, fmt.Errorf("%d buckets: %w", capacity, ErrOutOfMemory)
	}

	m.buckets = make([]bucket[T], capacity)
	m.capMinus1 = capacity - 1
	m.growAt = capacity / 4 * 3
	m.shrinkAt = capacity / 10

	return m, nil
}

// hash runs the configured hasher and clears the high bit of the
// digest. The high bit is reserved, clearing it keeps stored and
// probed digests comparable.
func (m *Map[T]) hash(item T) uint64 {
	return m.hasher(item, m.seed0, m.seed1) &^ (1 << 63)
}

// Set inserts the given record, or replaces the record that carries
// the same key. On a replace the previous record and true are
// returned, the caller owns whatever it references. On a plain insert
// the zero value and false are returned.
//
// The same zero/false result is returned when a required grow is
// denied by the allocator. The map is then unchanged and OOM reports
// true until the next successful Set.
func (m *Map[T]) Set(item T) (T, bool) {
	var prev T

	if m.length >= m.growAt {
		if !m.resize((m.capMinus1 + 1) * 2) {
			m.oom = true
			return prev, false
		}
	}
	m.oom = false

	var (
		h   = m.hash(item)
		idx = uintptr(h) & m.capMinus1
		dib = int16(1)
	)

	// search for the key
	for ; dib <= m.buckets[idx].dib; dib++ {
		if m.buckets[idx].hash == h && m.compare(m.buckets[idx].item, item) == 0 {
			prev = m.buckets[idx].item
			m.buckets[idx].item = item
			return prev, true
		}
		// next index
		idx = (idx + 1) & m.capMinus1
	}

	entry := bucket[T]{dib: dib, hash: h, item: item}
	m.emplace(&entry, idx)
	m.length++

	return prev, false
}

// emplace applies the robin hood creed to all following buckets until
// an empty one is found.
// Robin hood creed: "takes from the rich and gives to the poor".
// rich means, low dib
// poor means, higher dib
//
// It expects that the record is not already in the table.
//
//go:inline
func (m *Map[T]) emplace(entry *bucket[T], idx uintptr) {
	for {
		if m.buckets[idx].dib == 0 {
			// emplace the element, a free bucket was found
			m.buckets[idx] = *entry
			return
		}

		if entry.dib > m.buckets[idx].dib {
			// swap values, apply the robin hood creed
			*entry, m.buckets[idx] = m.buckets[idx], *entry
		}

		// next index
		idx = (idx + 1) & m.capMinus1
		entry.dib++
	}
}

// Get returns a copy of the record stored under the same key as the
// given record, or false if there is no such record.
func (m *Map[T]) Get(key T) (T, bool) {
	var (
		h   = m.hash(key)
		idx = uintptr(h) & m.capMinus1
		v   T
	)

	for dib := int16(1); ; dib++ {
		if m.buckets[idx].dib < dib {
			// a record further along would violate the robin hood
			// property, this covers the free slot case as well
			return v, false
		}
		if m.buckets[idx].hash == h && m.compare(m.buckets[idx].item, key) == 0 {
			return m.buckets[idx].item, true
		}
		// next index
		idx = (idx + 1) & m.capMinus1
	}
}

// Delete removes the record stored under the same key as the given
// record and returns it. The configured Free is not called, the
// caller receives the record and owns whatever it references.
// Returns false if there is no such record.
func (m *Map[T]) Delete(key T) (T, bool) {
	var (
		h    = m.hash(key)
		idx  = uintptr(h) & m.capMinus1
		prev T
	)

	// search for the key
	for dib := int16(1); ; dib++ {
		if m.buckets[idx].dib < dib {
			return prev, false
		}
		if m.buckets[idx].hash == h && m.compare(m.buckets[idx].item, key) == 0 {
			prev = m.buckets[idx].item
			break
		}
		// next index
		idx = (idx + 1) & m.capMinus1
	}

	// now, back shift all following buckets until an empty or a home
	// positioned one terminates the chain
	current := &m.buckets[idx]
	for {
		idx = (idx + 1) & m.capMinus1
		next := &m.buckets[idx]
		if next.dib <= 1 {
			*current = bucket[T]{}
			break
		}
		*current = *next
		current.dib--
		current = next
	}

	m.length--
	if m.length <= m.shrinkAt && m.capMinus1+1 > m.initialCap {
		// a denied shrink keeps the map at its current capacity
		m.resize((m.capMinus1 + 1) / 2)
	}

	return prev, true
}

// resize moves all records into a fresh bucket array of n buckets. The
// cached digests are reused, the hasher is not called. Returns false
// and leaves the map untouched if the allocator denies the new array.
func (m *Map[T]) resize(n uintptr) bool {
	if !m.alloc.Allocate(n * m.stride) {
		return false
	}

	newm := Map[T]{
		buckets:   make([]bucket[T], n),
		capMinus1: n - 1,
	}

	for i := range m.buckets {
		if m.buckets[i].dib == 0 {
			continue
		}
		entry := m.buckets[i]
		entry.dib = 1
		newm.emplace(&entry, uintptr(entry.hash)&newm.capMinus1)
	}

	m.alloc.Release((m.capMinus1 + 1) * m.stride)
	m.buckets = newm.buckets
	m.capMinus1 = newm.capMinus1
	m.growAt = n / 4 * 3
	m.shrinkAt = n / 10

	return true
}

// Clear removes all records from the map. The configured Free is
// called once for every stored record. With resetCap the bucket array
// is reallocated at the initial capacity; if the allocator denies
// that, the current array is kept and emptied in place.
func (m *Map[T]) Clear(resetCap bool) {
	if m.free != nil {
		for i := range m.buckets {
			if m.buckets[i].dib != 0 {
				m.free(m.buckets[i].item)
			}
		}
	}
	m.length = 0

	if resetCap && m.capMinus1+1 != m.initialCap {
		if m.alloc.Allocate(m.initialCap * m.stride) {
			m.alloc.Release((m.capMinus1 + 1) * m.stride)
			m.buckets = make([]bucket[T], m.initialCap)
			m.capMinus1 = m.initialCap - 1
			m.growAt = m.initialCap / 4 * 3
			m.shrinkAt = m.initialCap / 10
			return
		}
	}

	for i := range m.buckets {
		m.buckets[i] = bucket[T]{}
	}
}

// Free releases the map. The configured Free is called once for every
// stored record, then the bucket array is handed back to the
// allocator. The map must not be used afterwards.
func (m *Map[T]) Free() {
	if m.free != nil {
		for i := range m.buckets {
			if m.buckets[i].dib != 0 {
				m.free(m.buckets[i].item)
			}
		}
	}
	m.alloc.Release((m.capMinus1 + 1) * m.stride)
	m.buckets = nil
	m.length = 0
}

// Count returns the number of records in the map.
func (m *Map[T]) Count() int {
	return int(m.length)
}

// Load returns the current load of the map.
func (m *Map[T]) Load() float32 {
	return float32(m.length) / float32(len(m.buckets))
}

// OOM reports whether the most recent Set failed because the allocator
// denied a grow. A successful Set resets it.
func (m *Map[T]) OOM() bool {
	return m.oom
}

// Scan calls 'fn' on every record in the map in no particular order.
// If 'fn' returns false, the scan stops and Scan returns false, a
// completed scan returns true. The map must not be mutated from inside
// 'fn'.
func (m *Map[T]) Scan(fn func(item T) bool) bool {
	for i := range m.buckets {
		if m.buckets[i].dib != 0 {
			if !fn(m.buckets[i].item) {
				return false
			}
		}
	}
	return true
}

// Iter steps a caller held cursor to the next record. The cursor
// starts at zero and is advanced past the returned record, so a loop
// of Iter calls visits every record exactly once:
//
//	var i uint64
//	for item, ok := m.Iter(&i); ok; item, ok = m.Iter(&i) {
//		...
//	}
//
// Returns false and leaves the cursor untouched when no records
// remain. Mutating the map between calls is undefined.
func (m *Map[T]) Iter(i *uint64) (T, bool) {
	var v T
	for idx := *i; idx < uint64(len(m.buckets)); idx++ {
		if m.buckets[idx].dib != 0 {
			*i = idx + 1
			return m.buckets[idx].item, true
		}
	}
	return v, false
}

// Probe reads the bucket at position 'pos & (cap-1)' and returns its
// record, or false if the bucket is free. Intended for sampling and
// debugging.
func (m *Map[T]) Probe(pos uint64) (T, bool) {
	var v T
	idx := uintptr(pos) & m.capMinus1
	if m.buckets[idx].dib == 0 {
		return v, false
	}
	return m.buckets[idx].item, true
}
