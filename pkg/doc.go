// Package cacheforge is the root of the CacheForge in-memory cache server:
// a single-node TCP key-value cache with per-key TTL, approximate-LRU
// eviction, and append-only persistence.
//
// # Overview
//
// CacheForge exposes a small, line-oriented text protocol over TCP
// (PING, SET, GET, DEL, EXPIRE, TTL, STATS). It holds string values keyed
// by string keys, shards the keyspace for concurrent access, evicts
// least-recently-used entries under capacity pressure, and durably
// records mutations to an append-only log it replays at startup.
//
// # Architecture Components
//
// Sharded store (pkg/store):
//   - 16-shard concurrent map, each shard with its own mutex and LRU list
//   - Lazy expiration on touch plus a bounded background sweep
//   - Exact-capacity eviction: each shard independently caps at
//     max(1, max_keys/16)
//
// Persistence (pkg/aof):
//   - Background-flushed append-only command log
//   - Startup replay that reconstructs store state from the log
//   - A logging gate that silences the writer during replay
//
// Wire protocol (pkg/protocol):
//   - Newline-delimited ASCII parser and reply formatter
//   - Shared token grammar between the wire protocol and the log format
//
// Command dispatch (pkg/dispatch):
//   - Pure function from parsed command to reply string
//   - Drives the store and append log, maintains request counters
//
// Connection fabric (internal/server):
//   - Single-reactor non-blocking accept/read/write loop (epoll)
//   - Worker pool with an at-most-one-in-flight-per-connection guarantee
//   - Preserves per-connection reply order
//
// Configuration (pkg/config):
//   - Flags, environment variables, and an optional YAML file
//   - Three-tier precedence: flags > environment > file/defaults
//
// Client (pkg/client):
//   - Minimal single-node line-protocol client used by the CLI and
//     benchmark tool
//
// # Usage
//
// Running the server:
//
//	cacheforge-server --port 6380 --threads 4 --aof-path ./cache.aof
//
// Talking to it with the bundled client:
//
//	import "github.com/cacheforge/cacheforge/pkg/client"
//
//	c, err := client.Dial("localhost:6380")
//	err = c.Set("user:123", "alice")
//	value, ok, err := c.Get("user:123")
//	deleted, err := c.Del("user:123")
//
// # Non-goals
//
// No cluster-wide replication, no multi-key transactions, no pub/sub, no
// value types beyond opaque strings, no snapshot persistence, no TLS or
// authentication.
package cacheforge
