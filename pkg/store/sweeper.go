package store

import "time"

// sweepBatchSize bounds how many entries of a single shard the background
// sweeper inspects per pass, so a sweep never holds a shard's lock long
// enough to stall a foreground Get/Set.
const sweepBatchSize = 100

// sweepInterval is the pause between one full rotation over all shards and
// the next.
const sweepInterval = 500 * time.Millisecond

// StartSweeper launches the background goroutine that round-robins over
// shards reaping expired entries proactively, bounding how long a key can
// occupy its slot after expiry when nothing happens to touch it. Safe to
// call at most once per Store; call StopSweeper to join it before the
// process exits.
func (s *Store) StartSweeper() {
	s.sweepStop = make(chan struct{})
	s.sweepDone = make(chan struct{})
	go s.sweepLoop()
}

// StopSweeper signals the sweeper to stop and blocks until it has returned.
// It is a no-op if StartSweeper was never called.
func (s *Store) StopSweeper() {
	if s.sweepStop == nil {
		return
	}
	close(s.sweepStop)
	<-s.sweepDone
}

func (s *Store) sweepLoop() {
	defer close(s.sweepDone)
	for {
		for _, sh := range s.shards {
			select {
			case <-s.sweepStop:
				return
			default:
			}
			s.sweepShard(sh)
		}

		select {
		case <-s.sweepStop:
			return
		case <-time.After(sweepInterval):
		}
	}
}

// sweepShard takes up to sweepBatchSize entries from sh, oldest-first, and
// removes whichever of them have expired.
func (s *Store) sweepShard(sh *shard) {
	sh.mu.Lock()
	defer sh.mu.Unlock()

	now := time.Now()
	elem := sh.lru.Back()
	scanned := 0
	for elem != nil && scanned < sweepBatchSize {
		prev := elem.Prev()
		key := elem.Value.(string)
		if e, ok := sh.data[key]; ok && e.expired(now) {
			s.removeExpired(sh, key, e)
		}
		elem = prev
		scanned++
	}
}
