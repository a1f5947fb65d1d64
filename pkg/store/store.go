// Package store implements CacheForge's sharded in-memory keyspace.
//
// The keyspace is partitioned into a fixed number of shards, each guarded by
// its own mutex and holding an intrusive LRU list alongside its key->entry
// map. Reads and writes against different shards run fully in parallel;
// within a shard, the critical section is short enough that a single mutex
// (no reader/writer split) outperforms the overhead of a split lock.
//
// Expiration is handled two ways: lazily, on every touch of a key whose
// expiry has passed, and by a background sweeper that takes a bounded pass
// over each shard in turn. Neither mechanism makes promptness guarantees;
// together they bound the time an expired key can keep occupying its slot.
package store

import (
	"container/list"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
)

// NumShards is the number of independent partitions of the keyspace.
// Fixed at a power of two so the shard index can be computed with a mask
// instead of a modulo.
const NumShards = 16

// ErrInvalidTTL is returned by SetTTL when a caller asks for a non-positive
// TTL; the store is left unchanged. Expire refuses the same case by
// returning false.
var ErrInvalidTTL = errors.New("store: ttl seconds must be positive")

// entry is one live (or not-yet-reaped) key/value pair. elem points back
// into its shard's LRU list so touch and evict are both O(1); there is
// exactly one list node per map entry.
type entry struct {
	value     string
	expiresAt time.Time // zero value means "no TTL"
	elem      *list.Element
}

func (e *entry) hasTTL() bool { return !e.expiresAt.IsZero() }

func (e *entry) expired(now time.Time) bool {
	return e.hasTTL() && !now.Before(e.expiresAt)
}

// shard is one partition of the keyspace: a map plus the doubly-linked LRU
// list ordering its keys, front = most-recently-used, back = next to evict.
type shard struct {
	mu       sync.Mutex
	data     map[string]*entry
	lru      *list.List
	capacity int
}

func newShard(capacity int) *shard {
	return &shard{
		data:     make(map[string]*entry),
		lru:      list.New(),
		capacity: capacity,
	}
}

// Store is a sharded, concurrent, capacity-bounded keyspace.
// Construct with New and, if background expiration sweeping
// is wanted, call StartSweeper.
type Store struct {
	shards [NumShards]*shard

	expiredKeys uint64
	evictedKeys uint64

	sweepStop chan struct{}
	sweepDone chan struct{}
}

// New creates a Store capped at maxKeys total live entries, distributed
// evenly (within rounding) across NumShards shards. Each shard independently
// caps at max(1, maxKeys/NumShards); the effective global cap is that value
// times NumShards.
func New(maxKeys int) *Store {
	perShard := maxKeys / NumShards
	if perShard < 1 {
		perShard = 1
	}
	s := &Store{}
	for i := range s.shards {
		s.shards[i] = newShard(perShard)
	}
	return s
}

// MaxKeysPerShard returns the per-shard capacity this store was built with.
func (s *Store) MaxKeysPerShard() int {
	return s.shards[0].capacity
}

func (s *Store) shardFor(key string) *shard {
	h := xxhash.Sum64String(key)
	return s.shards[h&(NumShards-1)]
}

// Set inserts or replaces key's value, clearing any prior TTL and touching
// the key to most-recently-used.
func (s *Store) Set(key, value string) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	s.insertOrUpdate(sh, key, value, time.Time{})
}

// SetTTL is like Set but also records an expiry instant seconds from now.
// seconds must be positive; a non-positive value is a caller precondition
// failure and is reported via ErrInvalidTTL without mutating the store.
func (s *Store) SetTTL(key, value string, seconds int64) error {
	if seconds <= 0 {
		return ErrInvalidTTL
	}
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	s.insertOrUpdate(sh, key, value, time.Now().Add(time.Duration(seconds)*time.Second))
	return nil
}

// insertOrUpdate must be called with sh.mu held.
func (s *Store) insertOrUpdate(sh *shard, key, value string, expiresAt time.Time) {
	if e, ok := sh.data[key]; ok {
		e.value = value
		e.expiresAt = expiresAt
		sh.lru.MoveToFront(e.elem)
		return
	}
	s.evictIfNeeded(sh)
	elem := sh.lru.PushFront(key)
	sh.data[key] = &entry{value: value, expiresAt: expiresAt, elem: elem}
}

// evictIfNeeded must be called with sh.mu held. It repeatedly evicts the
// LRU tail until the shard has room for one more entry.
func (s *Store) evictIfNeeded(sh *shard) {
	for len(sh.data) >= sh.capacity {
		back := sh.lru.Back()
		if back == nil {
			return
		}
		key := back.Value.(string)
		sh.lru.Remove(back)
		delete(sh.data, key)
		atomic.AddUint64(&s.evictedKeys, 1)
	}
}

// removeExpired must be called with sh.mu held, with it pointing at an
// entry already known to be expired.
func (s *Store) removeExpired(sh *shard, key string, e *entry) {
	sh.lru.Remove(e.elem)
	delete(sh.data, key)
	atomic.AddUint64(&s.expiredKeys, 1)
}

// Get returns the live value for key and touches it to most-recently-used.
// An expired entry is removed as a side effect and reported as absent.
func (s *Store) Get(key string) (string, bool) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.data[key]
	if !ok {
		return "", false
	}
	if e.expired(time.Now()) {
		s.removeExpired(sh, key, e)
		return "", false
	}
	sh.lru.MoveToFront(e.elem)
	return e.value, true
}

// Delete removes key and reports whether a live entry existed. An expired
// entry is reaped as a side effect but reported as already-absent.
func (s *Store) Delete(key string) bool {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.data[key]
	if !ok {
		return false
	}
	if e.expired(time.Now()) {
		s.removeExpired(sh, key, e)
		return false
	}
	sh.lru.Remove(e.elem)
	delete(sh.data, key)
	return true
}

// Expire sets key's expiry to seconds from now, provided key currently
// holds a live entry. Returns false (and reaps the entry) if it was
// already expired, and false without side effects if it never existed.
// seconds <= 0 is refused without mutating the store, mirroring SetTTL.
func (s *Store) Expire(key string, seconds int64) bool {
	if seconds <= 0 {
		return false
	}
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.data[key]
	if !ok {
		return false
	}
	if e.expired(time.Now()) {
		s.removeExpired(sh, key, e)
		return false
	}
	e.expiresAt = time.Now().Add(time.Duration(seconds) * time.Second)
	return true
}

// TTL returns key's remaining whole seconds to live: -1 if live with no
// expiry, -2 if absent or expired, otherwise a floored, non-negative count.
func (s *Store) TTL(key string) int64 {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.data[key]
	if !ok {
		return -2
	}
	now := time.Now()
	if e.expired(now) {
		s.removeExpired(sh, key, e)
		return -2
	}
	if !e.hasTTL() {
		return -1
	}
	remaining := int64(e.expiresAt.Sub(now) / time.Second)
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

// Size returns the sum of per-shard entry counts, each read under its own
// shard lock; concurrent mutation elsewhere means this is a point-in-time
// approximation, not a globally consistent snapshot.
func (s *Store) Size() int {
	total := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		total += len(sh.data)
		sh.mu.Unlock()
	}
	return total
}

// ExpiredKeys is the running count of entries reaped via lazy touch or
// background sweep.
func (s *Store) ExpiredKeys() uint64 { return atomic.LoadUint64(&s.expiredKeys) }

// EvictedKeys is the running count of entries reaped to make room under
// capacity pressure.
func (s *Store) EvictedKeys() uint64 { return atomic.LoadUint64(&s.evictedKeys) }
