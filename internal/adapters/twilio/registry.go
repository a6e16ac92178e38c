package twilio

import (
	"context"
	"sort"
	"sync"
)

// Sender is what the service needs from a provider client.
type Sender interface {
	SendMessage(ctx context.Context, from, to, body string) (*MessageResource, error)
}

// Entry is a registered client and the number it sends from.
type Entry struct {
	Client     Sender
	FromNumber string
}

// Registry maps tenant ids to their provider client. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	entries  map[int64]Entry
	fallback *Entry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[int64]Entry)}
}

// Register installs or replaces the client of a tenant.
func (r *Registry) Register(tenantID int64, client Sender, fromNumber string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[tenantID] = Entry{Client: client, FromNumber: fromNumber}
}

func (r *Registry) Get(tenantID int64) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[tenantID]
	return e, ok
}

func (r *Registry) Remove(tenantID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, tenantID)
}

// Tenants returns the registered tenant ids in ascending order.
func (r *Registry) Tenants() []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]int64, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// SetDefault installs the client used when a tenant has no credentials of its own.
func (r *Registry) SetDefault(client Sender, fromNumber string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if client == nil {
		r.fallback = nil
		return
	}
	r.fallback = &Entry{Client: client, FromNumber: fromNumber}
}

func (r *Registry) Default() (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.fallback == nil {
		return Entry{}, false
	}
	return *r.fallback, true
}
