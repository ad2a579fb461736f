package dedup

import (
	"fmt"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"honeywatch/pkg/models"
)

// DefaultCapacity bounds the identity set.
const DefaultCapacity = 200000

// Policies.
const (
	PolicyClear = "clear"
	PolicyLRU   = "lru"
)

// Deduplicator rejects events that were already processed.
type Deduplicator interface {
	// Seen records key and reports whether it was already present.
	Seen(key string) bool
}

// New returns a deduplicator for the named policy.
func New(policy string, capacity int) (Deduplicator, error) {
	switch strings.ToLower(strings.TrimSpace(policy)) {
	case "", PolicyClear:
		return NewSet(capacity), nil
	case PolicyLRU:
		return NewLRU(capacity)
	default:
		return nil, fmt.Errorf("unknown dedup policy: %s", policy)
	}
}

// Key builds the identity key of an event. Network records only have an
// identity when the sensor assigned them a record id; without one, equal
// packets are distinct observations and Key returns "".
func Key(e *models.Event) string {
	if e.Source == models.SourceNetwork && e.RecordID == "" {
		return ""
	}
	var b strings.Builder
	b.WriteString(e.TimestampText)
	b.WriteByte(':')
	if e.UpstreamID != "" {
		b.WriteString(e.UpstreamID)
	} else {
		b.WriteString(e.Kind)
	}
	b.WriteByte(':')
	b.WriteString(e.SessionID)
	b.WriteByte(':')
	b.WriteString(e.SourceIdentity)
	if e.Source == models.SourceNetwork {
		b.WriteByte(':')
		b.WriteString(e.RecordID)
		b.WriteByte(':')
		b.WriteString(strings.Join(e.PortStrings(), ","))
	}
	return b.String()
}

// Set is an approximate identity set. Once it grows past capacity the
// whole set is dropped, so a duplicate arriving right after a reset is
// processed again.
type Set struct {
	mu       sync.Mutex
	keys     map[string]struct{}
	capacity int
	resets   int
}

// NewSet creates a clear-on-overflow set.
func NewSet(capacity int) *Set {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Set{
		keys:     make(map[string]struct{}),
		capacity: capacity,
	}
}

// Seen implements Deduplicator.
func (s *Set) Seen(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.keys[key]; ok {
		return true
	}
	if len(s.keys) >= s.capacity {
		s.keys = make(map[string]struct{})
		s.resets++
	}
	s.keys[key] = struct{}{}
	return false
}

// Len returns the number of keys currently held.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys)
}

// Resets returns how many times the set was cleared.
func (s *Set) Resets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resets
}

// LRU is a strict bounded identity cache that evicts the oldest key
// instead of clearing everything.
type LRU struct {
	cache *lru.Cache[string, struct{}]
}

// NewLRU creates an LRU-backed deduplicator.
func NewLRU(capacity int) (*LRU, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	c, err := lru.New[string, struct{}](capacity)
	if err != nil {
		return nil, fmt.Errorf("create dedup cache: %w", err)
	}
	return &LRU{cache: c}, nil
}

// Seen implements Deduplicator.
func (l *LRU) Seen(key string) bool {
	found, _ := l.cache.ContainsOrAdd(key, struct{}{})
	return found
}
