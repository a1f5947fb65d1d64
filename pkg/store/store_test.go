package store

import (
	"fmt"
	"testing"
	"time"
)

func TestSetGet(t *testing.T) {
	s := New(160)
	s.Set("foo", "bar")

	v, ok := s.Get("foo")
	if !ok || v != "bar" {
		t.Fatalf("Get(foo) = %q, %v; want bar, true", v, ok)
	}

	if _, ok := s.Get("missing"); ok {
		t.Fatalf("Get(missing) reported a hit")
	}
}

func TestSetOverwritesValueAndClearsTTL(t *testing.T) {
	s := New(160)
	if err := s.SetTTL("foo", "bar", 100); err != nil {
		t.Fatalf("SetTTL: %v", err)
	}
	s.Set("foo", "baz")

	if ttl := s.TTL("foo"); ttl != -1 {
		t.Fatalf("TTL after plain Set = %d, want -1 (no ttl)", ttl)
	}
	if v, _ := s.Get("foo"); v != "baz" {
		t.Fatalf("Get(foo) = %q, want baz", v)
	}
}

func TestDelete(t *testing.T) {
	s := New(160)
	s.Set("foo", "bar")

	if !s.Delete("foo") {
		t.Fatalf("Delete(foo) = false, want true")
	}
	if s.Delete("foo") {
		t.Fatalf("second Delete(foo) = true, want false")
	}
	if _, ok := s.Get("foo"); ok {
		t.Fatalf("Get(foo) after delete reported a hit")
	}
}

func TestTTLSemantics(t *testing.T) {
	s := New(160)

	if ttl := s.TTL("nope"); ttl != -2 {
		t.Fatalf("TTL(nope) = %d, want -2", ttl)
	}

	s.Set("foo", "bar")
	if ttl := s.TTL("foo"); ttl != -1 {
		t.Fatalf("TTL(foo) = %d, want -1", ttl)
	}

	if err := s.SetTTL("foo", "bar", 10); err != nil {
		t.Fatalf("SetTTL: %v", err)
	}
	ttl := s.TTL("foo")
	if ttl <= 0 || ttl > 10 {
		t.Fatalf("TTL(foo) = %d, want in (0,10]", ttl)
	}
}

func TestSetTTLRejectsNonPositiveSeconds(t *testing.T) {
	s := New(160)
	if err := s.SetTTL("foo", "bar", 0); err != ErrInvalidTTL {
		t.Fatalf("SetTTL(seconds=0) error = %v, want ErrInvalidTTL", err)
	}
	if err := s.SetTTL("foo", "bar", -5); err != ErrInvalidTTL {
		t.Fatalf("SetTTL(seconds=-5) error = %v, want ErrInvalidTTL", err)
	}
	if _, ok := s.Get("foo"); ok {
		t.Fatalf("rejected SetTTL should not have created the key")
	}
}

func TestExpireRejectsNonPositiveSeconds(t *testing.T) {
	s := New(160)
	s.Set("foo", "bar")
	if s.Expire("foo", 0) {
		t.Fatalf("Expire(seconds=0) = true, want false")
	}
	if ttl := s.TTL("foo"); ttl != -1 {
		t.Fatalf("TTL(foo) after rejected Expire = %d, want -1", ttl)
	}
}

func TestExpireOnMissingKey(t *testing.T) {
	s := New(160)
	if s.Expire("nope", 10) {
		t.Fatalf("Expire(nope) = true, want false")
	}
}

func TestGetReapsExpiredEntry(t *testing.T) {
	s := New(160)
	if err := s.SetTTL("foo", "bar", 1); err != nil {
		t.Fatalf("SetTTL: %v", err)
	}
	time.Sleep(1100 * time.Millisecond)

	if _, ok := s.Get("foo"); ok {
		t.Fatalf("Get(foo) after expiry reported a hit")
	}
	if got := s.ExpiredKeys(); got != 1 {
		t.Fatalf("ExpiredKeys() = %d, want 1", got)
	}
}

func TestEvictionAtCapacity(t *testing.T) {
	// 16 shards, maxKeys=16 => capacity 1 per shard, so inserting a second
	// key that lands in the same shard must evict the first.
	s := New(16)

	s.Set("a", "1")
	for i := 0; i < 50; i++ {
		s.Set(fmt.Sprintf("k%d", i), "v")
	}

	if s.Size() > 16 {
		t.Fatalf("Size() = %d, want <= 16", s.Size())
	}
	if s.EvictedKeys() == 0 {
		t.Fatalf("EvictedKeys() = 0, want > 0 after overfilling capacity")
	}
}

func TestLRUOrderEvictsLeastRecentlyUsed(t *testing.T) {
	// maxKeys=32 gives every shard capacity 2. Pick three keys that hash to
	// the same shard, touch the first so the second becomes least recently
	// used, then insert the third: the second must be the one evicted.
	s := New(32)
	target := s.shardFor("k0")
	keys := []string{"k0"}
	for i := 1; len(keys) < 3; i++ {
		key := fmt.Sprintf("k%d", i)
		if s.shardFor(key) == target {
			keys = append(keys, key)
		}
	}
	a, b, c := keys[0], keys[1], keys[2]

	s.Set(a, "1")
	s.Set(b, "2")
	if _, ok := s.Get(a); !ok {
		t.Fatalf("Get(%s) = false before any eviction", a)
	}
	s.Set(c, "3")

	if _, ok := s.Get(b); ok {
		t.Fatalf("Get(%s) = true; least recently used key should have been evicted", b)
	}
	if _, ok := s.Get(a); !ok {
		t.Fatalf("Get(%s) = false; recently touched key should survive", a)
	}
	if _, ok := s.Get(c); !ok {
		t.Fatalf("Get(%s) = false; most recently set key should survive", c)
	}
}

func TestSweeperReapsExpiredEntries(t *testing.T) {
	s := New(160)
	if err := s.SetTTL("foo", "bar", 1); err != nil {
		t.Fatalf("SetTTL: %v", err)
	}
	s.StartSweeper()
	defer s.StopSweeper()

	time.Sleep(2 * time.Second)

	if got := s.ExpiredKeys(); got == 0 {
		t.Fatalf("ExpiredKeys() = 0 after sweeper should have reaped the key")
	}
}

// checkShardInvariants verifies that every shard's map and LRU list agree:
// equal sizes, one list node per entry, and each entry's elem pointing at
// the node carrying its own key.
func checkShardInvariants(t *testing.T, s *Store) {
	t.Helper()
	for i, sh := range s.shards {
		sh.mu.Lock()
		if got, want := sh.lru.Len(), len(sh.data); got != want {
			t.Errorf("shard %d: lru len %d != map len %d", i, got, want)
		}
		if len(sh.data) > sh.capacity {
			t.Errorf("shard %d: %d entries exceeds capacity %d", i, len(sh.data), sh.capacity)
		}
		for key, e := range sh.data {
			if e.elem.Value.(string) != key {
				t.Errorf("shard %d: entry %q points at list node for %q", i, key, e.elem.Value)
			}
		}
		sh.mu.Unlock()
	}
}

func TestShardInvariantsUnderMixedOperations(t *testing.T) {
	s := New(64)
	for i := 0; i < 200; i++ {
		key := fmt.Sprintf("k%d", i)
		s.Set(key, "v")
		if i%3 == 0 {
			s.Get(key)
		}
		if i%5 == 0 {
			s.Delete(fmt.Sprintf("k%d", i/2))
		}
		if i%7 == 0 {
			s.Expire(key, 100)
		}
	}
	checkShardInvariants(t, s)
}

func TestSizeReflectsLiveEntries(t *testing.T) {
	s := New(160)
	for i := 0; i < 5; i++ {
		s.Set(fmt.Sprintf("k%d", i), "v")
	}
	if got := s.Size(); got != 5 {
		t.Fatalf("Size() = %d, want 5", got)
	}
}
