package presence

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-restaurant-api/internal/domain"
)

type entry struct {
	record domain.AdminPresenceRecord
	seq    uint64
}

// Registry tracks which administrators hold a live realtime connection.
// There is at most one record per admin; a reconnect replaces the old one.
type Registry struct {
	mu      sync.RWMutex
	byAdmin map[string]*entry
	seq     uint64
	now     func() time.Time
}

// NewRegistry returns an empty registry. now may be nil.
func NewRegistry(now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	return &Registry{byAdmin: make(map[string]*entry), now: now}
}

// Register records adminID as present on address. Re-authenticating on the same
// address keeps the original registration order.
func (r *Registry) Register(adminID, address, displayName string) domain.AdminPresenceRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.byAdmin[adminID]; ok && e.record.ChannelAddress == address {
		e.record.DisplayName = displayName
		return e.record
	}
	// An address belongs to one admin at a time.
	for id, e := range r.byAdmin {
		if e.record.ChannelAddress == address {
			delete(r.byAdmin, id)
		}
	}
	r.seq++
	e := &entry{
		record: domain.AdminPresenceRecord{
			AdminID:        adminID,
			ChannelAddress: address,
			DisplayName:    displayName,
			ConnectedAt:    r.now(),
		},
		seq: r.seq,
	}
	r.byAdmin[adminID] = e
	return e.record
}

// Unregister removes every record that uses address and returns the earliest
// of them. A stale address (the admin already reconnected elsewhere) removes nothing.
func (r *Registry) Unregister(address string) (domain.AdminPresenceRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var first *entry
	for id, e := range r.byAdmin {
		if e.record.ChannelAddress != address {
			continue
		}
		delete(r.byAdmin, id)
		if first == nil || e.seq < first.seq {
			first = e
		}
	}
	if first == nil {
		return domain.AdminPresenceRecord{}, false
	}
	return first.record, true
}

func (r *Registry) AnyPresent() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byAdmin) > 0
}

func (r *Registry) IsPresent(adminID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byAdmin[adminID]
	return ok
}

// FirstPresent returns the earliest registered admin.
func (r *Registry) FirstPresent() (domain.AdminPresenceRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var first *entry
	for _, e := range r.byAdmin {
		if first == nil || e.seq < first.seq {
			first = e
		}
	}
	if first == nil {
		return domain.AdminPresenceRecord{}, fmt.Errorf("no administrator present: %w", domain.ErrNotFound)
	}
	return first.record, nil
}

// List returns every present admin in registration order.
func (r *Registry) List() []domain.AdminPresenceRecord {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.byAdmin))
	for _, e := range r.byAdmin {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	out := make([]domain.AdminPresenceRecord, len(entries))
	for i, e := range entries {
		out[i] = e.record
	}
	return out
}
