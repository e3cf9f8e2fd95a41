// Package cache implements the two-tier cache (C6): an in-process LRU+TTL
// tier backed by a shared Redis tier, composed into a single layered Cache.
package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	domaincache "github.com/sentinelpdp/policy-engine/internal/domain/cache"
)

// localEntry is one doubly-linked-list node, the same shape as the
// teacher's lruEntry in internal/service/policy_service.go, generalized
// with a per-entry expiry instead of a cache-wide TTL.
type localEntry struct {
	key     string
	value   []byte
	expires time.Time
}

// Local is Tier 1: a bounded LRU with per-entry TTL. A single mutex guards
// the map and list, per spec 5's "a single lock over the LRU data is
// acceptable". Map keys are xxhash.Sum64 of the caller's string key rather
// than the string itself, the same non-cryptographic hash EvaluationKey's
// doc comment contrasts itself against.
type Local struct {
	mu       sync.Mutex
	maxSize  int
	entries  map[uint64]*list.Element
	order    *list.List // front = MRU, back = LRU
	hits     uint64
	misses   uint64
}

// NewLocal builds a Tier 1 cache bounded to maxSize entries.
func NewLocal(maxSize int) *Local {
	if maxSize <= 0 {
		maxSize = 10000
	}
	return &Local{
		maxSize: maxSize,
		entries: make(map[uint64]*list.Element),
		order:   list.New(),
	}
}

// Get returns the value for key if present and unexpired, moving it to
// MRU position on a hit.
func (l *Local) Get(key string) ([]byte, bool) {
	h := xxhash.Sum64String(key)

	l.mu.Lock()
	defer l.mu.Unlock()

	el, ok := l.entries[h]
	if !ok {
		l.misses++
		return nil, false
	}
	entry := el.Value.(*localEntry)
	if time.Now().After(entry.expires) {
		l.order.Remove(el)
		delete(l.entries, h)
		l.misses++
		return nil, false
	}
	l.order.MoveToFront(el)
	l.hits++
	return entry.value, true
}

// Set inserts or overwrites key, evicting the LRU entry if at capacity.
func (l *Local) Set(key string, value []byte, ttl time.Duration) {
	h := xxhash.Sum64String(key)
	expires := time.Now().Add(ttl)

	l.mu.Lock()
	defer l.mu.Unlock()

	if el, ok := l.entries[h]; ok {
		entry := el.Value.(*localEntry)
		entry.value = value
		entry.expires = expires
		l.order.MoveToFront(el)
		return
	}

	if len(l.entries) >= l.maxSize {
		l.evictLRULocked()
	}

	el := l.order.PushFront(&localEntry{key: key, value: value, expires: expires})
	l.entries[h] = el
}

func (l *Local) evictLRULocked() {
	back := l.order.Back()
	if back == nil {
		return
	}
	entry := back.Value.(*localEntry)
	l.order.Remove(back)
	delete(l.entries, xxhash.Sum64String(entry.key))
}

// Delete removes key, if present.
func (l *Local) Delete(key string) {
	h := xxhash.Sum64String(key)

	l.mu.Lock()
	defer l.mu.Unlock()
	if el, ok := l.entries[h]; ok {
		l.order.Remove(el)
		delete(l.entries, h)
	}
}

// Has reports presence without refreshing LRU order or affecting hit/miss
// counters; it still honors expiry.
func (l *Local) Has(key string) bool {
	h := xxhash.Sum64String(key)

	l.mu.Lock()
	defer l.mu.Unlock()
	el, ok := l.entries[h]
	if !ok {
		return false
	}
	return !time.Now().After(el.Value.(*localEntry).expires)
}

// Clear empties the cache.
func (l *Local) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = make(map[uint64]*list.Element)
	l.order.Init()
}

// Sweep removes every expired entry; intended to run on a periodic ticker.
func (l *Local) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	removed := 0
	for el := l.order.Back(); el != nil; {
		prev := el.Prev()
		entry := el.Value.(*localEntry)
		if now.After(entry.expires) {
			l.order.Remove(el)
			delete(l.entries, xxhash.Sum64String(entry.key))
			removed++
		}
		el = prev
	}
	return removed
}

// Stats reports the running hit/miss/size counters.
func (l *Local) Stats() domaincache.Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return domaincache.Stats{Hits: l.hits, Misses: l.misses, Size: len(l.entries)}
}

// StartSweeper runs Sweep on interval until ctx is cancelled. The returned
// function does not cancel anything itself: it blocks until the sweeper
// goroutine has exited, so call it after cancelling ctx. Grounded on the teacher's rate limiter's background
// cleanup goroutine lifecycle (StartCleanup/Stop via context).
func (l *Local) StartSweeper(ctx context.Context, interval time.Duration) (stop func()) {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				close(done)
				return
			case <-ticker.C:
				l.Sweep()
			}
		}
	}()
	return func() { <-done }
}
