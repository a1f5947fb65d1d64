// Package metrics mirrors the Dispatcher's monotonic counters as
// Prometheus metrics, exposed on an optional HTTP listener. This is
// additive observability alongside the STATS wire command, not a
// replacement for it — the wire protocol remains the source of truth a
// client talks to; Prometheus is for operators scraping from outside.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Source is the subset of dispatch.Dispatcher's counter accessors this
// package samples from (the key counts are forwarded from its store.Store).
// Kept as an interface so metrics has no import-time dependency on either
// concrete package.
type Source interface {
	CurrentKeys() uint64
	ExpiredKeys() uint64
	EvictedKeys() uint64
	TotalRequests() uint64
	TotalReads() uint64
	TotalWrites() uint64
	CacheHits() uint64
	CacheMisses() uint64
}

// Registry owns the Prometheus collectors mirroring a Source's counters.
type Registry struct {
	source Source
	reg    *prometheus.Registry

	currentKeys   prometheus.GaugeFunc
	expiredKeys   prometheus.CounterFunc
	evictedKeys   prometheus.CounterFunc
	totalRequests prometheus.CounterFunc
	totalReads    prometheus.CounterFunc
	totalWrites   prometheus.CounterFunc
	cacheHits     prometheus.CounterFunc
	cacheMisses   prometheus.CounterFunc
}

// NewRegistry builds and registers every gauge/counter against a fresh
// Prometheus registry sourced from src.
func NewRegistry(src Source) *Registry {
	r := &Registry{source: src, reg: prometheus.NewRegistry()}

	r.currentKeys = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "cacheforge", Name: "current_keys",
		Help: "Number of live keys currently held across all shards.",
	}, func() float64 { return float64(src.CurrentKeys()) })

	r.expiredKeys = prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: "cacheforge", Name: "expired_keys_total",
		Help: "Keys reaped by lazy touch or the background sweeper.",
	}, func() float64 { return float64(src.ExpiredKeys()) })

	r.evictedKeys = prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: "cacheforge", Name: "evicted_keys_total",
		Help: "Keys reaped to make room under shard capacity pressure.",
	}, func() float64 { return float64(src.EvictedKeys()) })

	r.totalRequests = prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: "cacheforge", Name: "requests_total",
		Help: "Total commands dispatched.",
	}, func() float64 { return float64(src.TotalRequests()) })

	r.totalReads = prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: "cacheforge", Name: "reads_total",
		Help: "Total GET commands dispatched.",
	}, func() float64 { return float64(src.TotalReads()) })

	r.totalWrites = prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: "cacheforge", Name: "writes_total",
		Help: "Total SET/DEL/EXPIRE commands dispatched.",
	}, func() float64 { return float64(src.TotalWrites()) })

	r.cacheHits = prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: "cacheforge", Name: "cache_hits_total",
		Help: "GET commands that found a live value.",
	}, func() float64 { return float64(src.CacheHits()) })

	r.cacheMisses = prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: "cacheforge", Name: "cache_misses_total",
		Help: "GET commands that found no live value.",
	}, func() float64 { return float64(src.CacheMisses()) })

	r.reg.MustRegister(
		r.currentKeys, r.expiredKeys, r.evictedKeys, r.totalRequests,
		r.totalReads, r.totalWrites, r.cacheHits, r.cacheMisses,
	)
	return r
}

// Serve starts an HTTP server exposing /metrics on addr and blocks until
// ctx is cancelled, then shuts the server down gracefully.
func (r *Registry) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		return srv.Shutdown(context.Background())
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
