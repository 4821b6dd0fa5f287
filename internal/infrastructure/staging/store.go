// Package staging is an in-process keyed store for transient, TTL-bounded state:
// verification tickets, unverified signups, reset grants and parked login approvals.
// Nothing here survives a restart.
package staging

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-restaurant-api/internal/domain"
)

// Entry is a copy of a staged value and its bookkeeping. Mutating it has no effect on the store.
type Entry[T any] struct {
	Key       string
	Value     T
	CreatedAt time.Time
	ExpiresAt time.Time
	Attempts  int
}

// An entry is expired at ExpiresAt, not after it.
func (e *Entry[T]) expired(now time.Time) bool { return !now.Before(e.ExpiresAt) }

// Op is what Apply does with the entry it inspected.
type Op int

const (
	Keep Op = iota
	Touch
	Remove
)

// Option configures a Store.
type Option func(*options)

type options struct {
	now  func() time.Time
	name string
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithName labels the store in sweep logs.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// Store maps keys to values with an expiry instant and an attempt counter.
// Every operation, the sweep included, runs under one mutex, so read-then-write
// sequences such as Touch never lose updates.
type Store[T any] struct {
	mu       sync.Mutex
	entries  map[string]*Entry[T]
	evicted  []Entry[T]
	onExpire func(key string, value T)
	now      func() time.Time
	name     string
}

// New creates an empty store.
func New[T any](opts ...Option) *Store[T] {
	o := options{now: time.Now, name: "staging"}
	for _, opt := range opts {
		opt(&o)
	}
	return &Store[T]{
		entries: make(map[string]*Entry[T]),
		now:     o.now,
		name:    o.name,
	}
}

// OnExpire registers fn to be called once for every entry that leaves the store by
// expiring, whether noticed on access or by the sweep. fn runs outside the lock.
func (s *Store[T]) OnExpire(fn func(key string, value T)) {
	s.mu.Lock()
	s.onExpire = fn
	s.mu.Unlock()
}

// Put stores value under key for ttl, replacing any existing entry and resetting attempts.
func (s *Store[T]) Put(key string, value T, ttl time.Duration) {
	s.do(func(now time.Time) {
		s.live(key, now)
		s.entries[key] = &Entry[T]{Key: key, Value: value, CreatedAt: now, ExpiresAt: now.Add(ttl)}
	})
}

// Get returns the live value for key or a domain.ErrNotFound wrapped error.
func (s *Store[T]) Get(key string) (T, error) {
	e, err := s.Lookup(key)
	return e.Value, err
}

// Lookup returns a copy of the live entry for key.
func (s *Store[T]) Lookup(key string) (Entry[T], error) {
	var out Entry[T]
	found := false
	s.do(func(now time.Time) {
		if e, ok := s.live(key, now); ok {
			out, found = *e, true
		}
	})
	if !found {
		return out, notFound(key)
	}
	return out, nil
}

// Touch increments the attempt counter of key and returns the new count.
func (s *Store[T]) Touch(key string) (int, error) {
	n, found := 0, false
	s.do(func(now time.Time) {
		if e, ok := s.live(key, now); ok {
			e.Attempts++
			n, found = e.Attempts, true
		}
	})
	if !found {
		return 0, notFound(key)
	}
	return n, nil
}

// Remove deletes key. Removing an absent key is a no-op.
func (s *Store[T]) Remove(key string) {
	s.do(func(time.Time) { delete(s.entries, key) })
}

// Take removes key and returns its value. Only one concurrent caller can win.
func (s *Store[T]) Take(key string) (T, error) {
	var v T
	found := false
	s.do(func(now time.Time) {
		if e, ok := s.live(key, now); ok {
			v, found = e.Value, true
			delete(s.entries, key)
		}
	})
	if !found {
		return v, notFound(key)
	}
	return v, nil
}

// Compute atomically derives the value stored under key from the current live entry
// (found is false when there is none). A returned error leaves the store untouched;
// otherwise the result is stored as by Put.
func (s *Store[T]) Compute(key string, fn func(cur Entry[T], found bool) (T, time.Duration, error)) (T, error) {
	var (
		next T
		err  error
	)
	s.do(func(now time.Time) {
		var cur Entry[T]
		e, ok := s.live(key, now)
		if ok {
			cur = *e
		}
		var ttl time.Duration
		next, ttl, err = fn(cur, ok)
		if err != nil {
			return
		}
		s.entries[key] = &Entry[T]{Key: key, Value: next, CreatedAt: now, ExpiresAt: now.Add(ttl)}
	})
	return next, err
}

// Apply runs fn against the live entry for key and carries out the Op it returns,
// all in one critical section. It returns the entry as it stands after the Op
// (the removed copy for Remove).
func (s *Store[T]) Apply(key string, fn func(e Entry[T]) Op) (Entry[T], error) {
	var out Entry[T]
	found := false
	s.do(func(now time.Time) {
		e, ok := s.live(key, now)
		if !ok {
			return
		}
		found = true
		switch fn(*e) {
		case Touch:
			e.Attempts++
		case Remove:
			delete(s.entries, key)
		}
		out = *e
	})
	if !found {
		return out, notFound(key)
	}
	return out, nil
}

// Update replaces the value of a live entry, keeping its expiry and attempts.
// An error from fn leaves the entry as it was and is returned.
func (s *Store[T]) Update(key string, fn func(v T) (T, error)) error {
	found := false
	var err error
	s.do(func(now time.Time) {
		e, ok := s.live(key, now)
		if !ok {
			return
		}
		found = true
		var next T
		if next, err = fn(e.Value); err == nil {
			e.Value = next
		}
	})
	if !found {
		return notFound(key)
	}
	return err
}

// Len counts stored entries, including expired ones the sweep has not reached yet.
func (s *Store[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Sweep evicts every expired entry and returns how many it removed.
func (s *Store[T]) Sweep() int {
	n := 0
	s.do(func(now time.Time) {
		for key := range s.entries {
			if _, ok := s.live(key, now); !ok {
				n++
			}
		}
	})
	return n
}

// Run sweeps every interval until ctx is cancelled.
func (s *Store[T]) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := s.Sweep(); n > 0 {
				slog.Debug("staging sweep", "store", s.name, "evicted", n)
			}
		}
	}
}

// do runs fn under the lock, then reports evictions to the expiry hook.
func (s *Store[T]) do(fn func(now time.Time)) {
	s.mu.Lock()
	fn(s.now())
	evicted := s.evicted
	s.evicted = nil
	hook := s.onExpire
	s.mu.Unlock()

	if hook == nil {
		return
	}
	for _, e := range evicted {
		hook(e.Key, e.Value)
	}
}

// live returns the unexpired entry for key, evicting it if it has expired.
// Caller holds s.mu.
func (s *Store[T]) live(key string, now time.Time) (*Entry[T], bool) {
	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	if e.expired(now) {
		delete(s.entries, key)
		s.evicted = append(s.evicted, *e)
		return nil, false
	}
	return e, true
}

func notFound(key string) error {
	return fmt.Errorf("staged entry %q: %w", key, domain.ErrNotFound)
}
