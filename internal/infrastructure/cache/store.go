package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// Entry is one cached result.
type Entry struct {
	Fingerprint string    `json:"fingerprint"`
	Payload     []byte    `json:"payload"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Expired reports whether the entry must no longer be served at now.
func (e Entry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// Store is the pluggable storage behind the statistics cache.
// Implementations only store bytes; expiry is decided by the Cache.
type Store interface {
	// Get returns the entry for key. found is false on a miss.
	Get(ctx context.Context, key string) (entry Entry, found bool, err error)
	Set(ctx context.Context, entry Entry) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Len(ctx context.Context) (int, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// IN-MEMORY LRU STORE
// ══════════════════════════════════════════════════════════════════════════════

// DefaultMaxEntries bounds a MemoryStore created with a non-positive size.
const DefaultMaxEntries = 1024

// MemoryStore keeps at most maxEntries entries and evicts the least
// recently used one when full. Safe for concurrent use.
type MemoryStore struct {
	mu         sync.Mutex
	maxEntries int
	order      *list.List
	items      map[string]*list.Element
	onEvict    func(key string)
}

// NewMemoryStore creates an LRU store. onEvict, when non-nil, is called
// for every capacity eviction (not for Delete or Clear).
func NewMemoryStore(maxEntries int, onEvict func(key string)) *MemoryStore {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &MemoryStore{
		maxEntries: maxEntries,
		order:      list.New(),
		items:      make(map[string]*list.Element),
		onEvict:    onEvict,
	}
}

// Get returns a copy of the entry and marks it recently used.
func (s *MemoryStore) Get(_ context.Context, key string) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.items[key]
	if !ok {
		return Entry{}, false, nil
	}
	s.order.MoveToFront(el)
	return el.Value.(Entry), true, nil
}

// Set inserts or replaces an entry, evicting the oldest when over capacity.
func (s *MemoryStore) Set(_ context.Context, entry Entry) error {
	s.mu.Lock()
	var evicted []string

	if el, ok := s.items[entry.Fingerprint]; ok {
		el.Value = entry
		s.order.MoveToFront(el)
	} else {
		s.items[entry.Fingerprint] = s.order.PushFront(entry)
		for s.order.Len() > s.maxEntries {
			oldest := s.order.Back()
			key := oldest.Value.(Entry).Fingerprint
			s.order.Remove(oldest)
			delete(s.items, key)
			evicted = append(evicted, key)
		}
	}
	s.mu.Unlock()

	if s.onEvict != nil {
		for _, key := range evicted {
			s.onEvict(key)
		}
	}
	return nil
}

// Delete removes key if present.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.items[key]; ok {
		s.order.Remove(el)
		delete(s.items, key)
	}
	return nil
}

// Clear removes every entry.
func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.order.Init()
	s.items = make(map[string]*list.Element)
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (s *MemoryStore) Len(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len(), nil
}
