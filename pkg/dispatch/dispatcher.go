// Package dispatch turns a parsed protocol command into a reply string,
// driving the store and append log as a side effect and keeping the
// running counters the STATS command reports.
package dispatch

import (
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cacheforge/cacheforge/pkg/aof"
	"github.com/cacheforge/cacheforge/pkg/protocol"
	"github.com/cacheforge/cacheforge/pkg/store"
)

// logger is the subset of *aof.Writer the Dispatcher needs; naming it lets
// tests substitute a no-op log without starting a real Writer.
type logger interface {
	LogSet(key, value string)
	LogDel(key string)
	LogExpire(key string, seconds int64)
}

var _ logger = (*aof.Writer)(nil)

// Dispatcher is stateful only in its counters; all actual data lives in
// the Store it wraps. One Dispatcher is shared across every worker.
type Dispatcher struct {
	store *store.Store
	log   logger
	start time.Time

	totalRequests atomic.Uint64
	totalReads    atomic.Uint64
	totalWrites   atomic.Uint64
	cacheHits     atomic.Uint64
	cacheMisses   atomic.Uint64
}

// New builds a Dispatcher over s, logging mutations through log.
func New(s *store.Store, log logger) *Dispatcher {
	return &Dispatcher{store: s, log: log, start: time.Now()}
}

// Dispatch executes cmd and returns the exact reply line to send back,
// including its trailing newline.
func (d *Dispatcher) Dispatch(cmd protocol.Command) string {
	d.totalRequests.Add(1)

	switch cmd.Verb {
	case protocol.Ping:
		return protocol.Pong()
	case protocol.Set:
		return d.doSet(cmd.Args)
	case protocol.Get:
		return d.doGet(cmd.Args)
	case protocol.Del:
		return d.doDel(cmd.Args)
	case protocol.Expire:
		return d.doExpire(cmd.Args)
	case protocol.TTL:
		return d.doTTL(cmd.Args)
	case protocol.Stats:
		return d.doStats()
	default:
		return protocol.Error("unknown command")
	}
}

func arityError(cmdName string) string {
	return protocol.Error(fmt.Sprintf("wrong number of arguments for '%s' command", cmdName))
}

func (d *Dispatcher) doSet(args []string) string {
	if len(args) < 2 {
		return arityError("set")
	}
	d.totalWrites.Add(1)
	key, value := args[0], args[1]
	d.store.Set(key, value)
	d.log.LogSet(key, value)
	return protocol.OK()
}

func (d *Dispatcher) doGet(args []string) string {
	if len(args) < 1 {
		return arityError("get")
	}
	d.totalReads.Add(1)
	v, ok := d.store.Get(args[0])
	if !ok {
		d.cacheMisses.Add(1)
		return protocol.Nil()
	}
	d.cacheHits.Add(1)
	return protocol.Value(v)
}

func (d *Dispatcher) doDel(args []string) string {
	if len(args) < 1 {
		return arityError("del")
	}
	d.totalWrites.Add(1)
	key := args[0]
	if d.store.Delete(key) {
		d.log.LogDel(key)
		return protocol.Integer(1)
	}
	return protocol.Integer(0)
}

func (d *Dispatcher) doExpire(args []string) string {
	if len(args) < 2 {
		return arityError("expire")
	}
	d.totalWrites.Add(1)
	seconds, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return protocol.Error("value is not an integer or out of range")
	}
	key := args[0]
	if d.store.Expire(key, seconds) {
		d.log.LogExpire(key, seconds)
		return protocol.Integer(1)
	}
	return protocol.Integer(0)
}

func (d *Dispatcher) doTTL(args []string) string {
	if len(args) < 1 {
		return arityError("ttl")
	}
	return protocol.Integer(d.store.TTL(args[0]))
}

func (d *Dispatcher) doStats() string {
	fields := []string{
		statField("total_requests", d.totalRequests.Load()),
		statField("total_reads", d.totalReads.Load()),
		statField("total_writes", d.totalWrites.Load()),
		statField("cache_hits", d.cacheHits.Load()),
		statField("cache_misses", d.cacheMisses.Load()),
		statField("expired_keys", d.store.ExpiredKeys()),
		statField("evicted_keys", d.store.EvictedKeys()),
		statField("current_keys", uint64(d.store.Size())),
		statField("uptime_seconds", uint64(time.Since(d.start)/time.Second)),
	}
	return protocol.Value(strings.Join(fields, ","))
}

// The accessors below expose the same counters doStats reports, one
// field at a time, so internal/metrics can mirror them as Prometheus
// gauges/counters without depending on the wire STATS format.

func (d *Dispatcher) TotalRequests() uint64 { return d.totalRequests.Load() }
func (d *Dispatcher) TotalReads() uint64    { return d.totalReads.Load() }
func (d *Dispatcher) TotalWrites() uint64   { return d.totalWrites.Load() }
func (d *Dispatcher) CacheHits() uint64     { return d.cacheHits.Load() }
func (d *Dispatcher) CacheMisses() uint64   { return d.cacheMisses.Load() }
func (d *Dispatcher) ExpiredKeys() uint64   { return d.store.ExpiredKeys() }
func (d *Dispatcher) EvictedKeys() uint64   { return d.store.EvictedKeys() }
func (d *Dispatcher) CurrentKeys() uint64   { return uint64(d.store.Size()) }

func statField(name string, value uint64) string {
	return name + ":" + strconv.FormatUint(value, 10)
}
