package history

import (
	"reflect"
	"sync"
)

// EqualFunc reports whether two values are deep-equal.
//
// It must be total, reflexive, symmetric and stable for every value ever
// stored, and must not depend on field or map ordering. Set relies on it to
// suppress no-op edits; an unreliable EqualFunc lets unchanged values leak
// into the history.
type EqualFunc[T any] func(a, b T) bool

// Snapshot - copy of the store's three-part record
type Snapshot[T any] struct {
	Past    []T `json:"past"`
	Present T   `json:"present"`
	Future  []T `json:"future"`
}

// Option configures a Store.
type Option[T any] func(*Store[T])

// WithOnChange registers a listener called with the new present after every
// state-changing operation. It runs outside the store's lock, so it may read
// the store again, but it must not mutate it.
//
// Deliveries are serialized and never go backwards: when a newer change has
// already been delivered, an older one is dropped, so the listener's last
// value is always the latest present.
func WithOnChange[T any](fn func(present T)) Option[T] {
	return func(s *Store[T]) {
		s.onChange = fn
	}
}

// Store is a linear undo/redo container over values of T.
//
// past holds superseded values oldest first, future holds undone values with
// the next redo target at index 0. All operations are serialized by a single
// mutex.
type Store[T any] struct {
	mu sync.Mutex

	past    []T
	present T
	future  []T

	equal    EqualFunc[T]
	onChange func(T)

	// version counts state changes; delivered is the newest version passed
	// to onChange. Both guard listener ordering.
	version   uint64
	notifyMu  sync.Mutex
	delivered uint64
}

// New creates a store with initial as the present value and empty history.
// A nil equal falls back to reflect.DeepEqual.
func New[T any](initial T, equal EqualFunc[T], opts ...Option[T]) *Store[T] {
	if equal == nil {
		equal = func(a, b T) bool { return reflect.DeepEqual(a, b) }
	}

	s := &Store[T]{
		present: initial,
		equal:   equal,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewComparable creates a store whose equality is the == operator of T.
func NewComparable[T comparable](initial T, opts ...Option[T]) *Store[T] {
	return New(initial, func(a, b T) bool { return a == b }, opts...)
}

// Current returns the present value.
func (s *Store[T]) Current() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.present
}

// Set replaces the present with value.
// Returns false without touching the history when value equals the present.
// Otherwise the old present is pushed onto past and future is discarded.
func (s *Store[T]) Set(value T) bool {
	return s.apply(func(T) T { return value })
}

// SetWith computes the new present from the current one.
// fn is called under the store's lock and must not call back into the store.
func (s *Store[T]) SetWith(fn func(prev T) T) bool {
	return s.apply(fn)
}

func (s *Store[T]) apply(fn func(T) T) bool {
	s.mu.Lock()
	next := fn(s.present)
	if s.equal(next, s.present) {
		s.mu.Unlock()
		return false
	}

	s.past = append(s.past, s.present)
	s.present = next
	// Branch discard: a fresh edit makes the undone values unreachable.
	s.future = nil
	version := s.bump()
	s.mu.Unlock()

	s.notify(version, next)
	return true
}

// Undo restores the most recent past value.
// Returns false when there is nothing to undo.
func (s *Store[T]) Undo() bool {
	s.mu.Lock()
	if len(s.past) == 0 {
		s.mu.Unlock()
		return false
	}

	last := len(s.past) - 1
	prev := s.past[last]
	s.past = s.past[:last:last]

	future := make([]T, 0, len(s.future)+1)
	future = append(future, s.present)
	s.future = append(future, s.future...)

	s.present = prev
	version := s.bump()
	s.mu.Unlock()

	s.notify(version, prev)
	return true
}

// Redo re-applies the nearest undone value.
// Returns false when there is nothing to redo.
func (s *Store[T]) Redo() bool {
	s.mu.Lock()
	if len(s.future) == 0 {
		s.mu.Unlock()
		return false
	}

	next := s.future[0]
	// Clear the vacated head so the backing array stops referencing it.
	var zero T
	s.future[0] = zero
	s.future = s.future[1:]
	if len(s.future) == 0 {
		s.future = nil
	}
	s.past = append(s.past, s.present)
	s.present = next
	version := s.bump()
	s.mu.Unlock()

	s.notify(version, next)
	return true
}

// CanUndo returns true if past is non-empty.
func (s *Store[T]) CanUndo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.past) > 0
}

// CanRedo returns true if future is non-empty.
func (s *Store[T]) CanRedo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.future) > 0
}

// Snapshot returns a copy of past, present and future.
func (s *Store[T]) Snapshot() Snapshot[T] {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Snapshot[T]{
		Past:    append([]T(nil), s.past...),
		Present: s.present,
		Future:  append([]T(nil), s.future...),
	}
}

// bump must be called with mu held.
func (s *Store[T]) bump() uint64 {
	s.version++
	return s.version
}

func (s *Store[T]) notify(version uint64, present T) {
	if s.onChange == nil {
		return
	}
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	if version <= s.delivered {
		return
	}
	s.delivered = version
	s.onChange(present)
}
