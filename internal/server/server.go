// Package server wires together the reactor, worker pool, store, and
// append log into the listening CacheForge service.
package server

import (
	"fmt"
	"runtime"
	"sync"
	"syscall"

	"github.com/cacheforge/cacheforge/pkg/aof"
	"github.com/cacheforge/cacheforge/pkg/dispatch"
	"github.com/cacheforge/cacheforge/pkg/protocol"
	"github.com/cacheforge/cacheforge/pkg/store"
	"go.uber.org/zap"
)

// Config collects everything Server needs to start.
type Config struct {
	Port       uint16
	NumThreads int // 0 means runtime.NumCPU()
	AOFEnabled bool
	AOFPath    string
	MaxKeys    int
}

// Dispatcher returns the server's Dispatcher, which New has already built,
// so it is valid before Run is called. Used by cmd/cacheforge-server to
// attach the optional Prometheus registry.
func (s *Server) Dispatcher() *dispatch.Dispatcher { return s.dispatcher }

// Server owns the full request path: the sharded store, the append log,
// the dispatcher, the worker pool, and the reactor driving it all. Mirrors
// the lifecycle of a single long-lived process: New wires dependencies,
// Run replays the log and blocks serving connections, Stop tears
// everything down in dependency order.
type Server struct {
	cfg    Config
	logger *zap.Logger

	store      *store.Store
	aofWriter  *aof.Writer
	dispatcher *dispatch.Dispatcher
	pool       *WorkerPool
	reactor    *Reactor

	listenFD int
	stopOnce sync.Once
}

// New constructs a Server and its store/append-log/dispatcher, so
// Dispatcher() is usable (e.g. to attach a Prometheus registry) before
// Run is called. Run still does the actual log replay and starts serving.
func New(cfg Config, logger *zap.Logger) *Server {
	if cfg.NumThreads <= 0 {
		cfg.NumThreads = runtime.NumCPU()
	}
	if cfg.MaxKeys <= 0 {
		cfg.MaxKeys = 1 << 20
	}

	s := &Server{cfg: cfg, logger: logger}
	s.store = store.New(cfg.MaxKeys)
	s.aofWriter = aof.NewWriter(cfg.AOFPath, logger)
	if !cfg.AOFEnabled {
		s.aofWriter.SetEnabled(false)
	}
	s.dispatcher = dispatch.New(s.store, s.aofWriter)
	return s
}

// Run replays any existing append log, arms the listening socket, and
// blocks running the reactor loop until Stop is called. Returns an error
// only for startup failures (bind/listen, log open) — per spec those are
// fatal and should cause the caller to exit non-zero before any
// connection is accepted.
func (s *Server) Run() error {
	s.store.StartSweeper()

	if s.cfg.AOFEnabled {
		if err := s.aofWriter.Start(); err != nil {
			return fmt.Errorf("failed to start append log at %s: %w", s.cfg.AOFPath, err)
		}

		s.aofWriter.SetEnabled(false)
		stats, err := aof.Replay(s.cfg.AOFPath, s.store, s.logger)
		s.aofWriter.SetEnabled(true)
		if err != nil {
			return fmt.Errorf("failed to replay append log at %s: %w", s.cfg.AOFPath, err)
		}
		s.logger.Info("replayed append log",
			zap.String("path", s.cfg.AOFPath),
			zap.Uint64("commands_replayed", stats.CommandsReplayed),
			zap.Uint64("lines_skipped", stats.LinesSkipped),
			zap.Uint64("errors", stats.Errors),
		)
	}

	listenFD, err := s.listen()
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", s.cfg.Port, err)
	}
	s.listenFD = listenFD

	s.pool = NewWorkerPool(s.cfg.NumThreads)

	reactor, err := NewReactor(listenFD, s.pool, s.handleLine, s.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize reactor: %w", err)
	}
	s.reactor = reactor

	s.logger.Info("cacheforge listening",
		zap.Uint16("port", s.cfg.Port),
		zap.Int("threads", s.cfg.NumThreads),
		zap.Bool("aof_enabled", s.cfg.AOFEnabled),
	)

	s.reactor.Run()
	return nil
}

// handleLine is the Reactor's onCommand callback: parse one line and run
// it through the dispatcher. Runs on a worker goroutine.
func (s *Server) handleLine(_ *Connection, line string) string {
	cmd := protocol.Parse(line)
	return s.dispatcher.Dispatch(cmd)
}

// Stop shuts the server down in dependency order: reactor first (so no new
// work is accepted), then the worker pool (let in-flight tasks finish),
// then the append log (flush what's queued), then any client connections
// still open, then the store's sweeper, and finally the listening socket.
// Idempotent, since a shutdown signal and a run error can race.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		if s.reactor != nil {
			s.reactor.Stop()
		}
		if s.pool != nil {
			s.pool.Stop()
		}
		if s.aofWriter != nil {
			s.aofWriter.Stop()
		}
		if s.reactor != nil {
			s.reactor.mu.Lock()
			for fd := range s.reactor.connections {
				_ = syscall.Close(fd)
			}
			s.reactor.mu.Unlock()
		}
		if s.store != nil {
			s.store.StopSweeper()
		}
		if s.listenFD != 0 {
			_ = syscall.Close(s.listenFD)
		}
	})
}

// listen creates a non-blocking IPv4 TCP listening socket bound to
// s.cfg.Port, built directly on syscall rather than net.Listener so its
// raw fd can be registered with the reactor's epoll instance.
func (s *Server) listen() (int, error) {
	fd, err := syscall.Socket(syscall.AF_INET, syscall.SOCK_STREAM, 0)
	if err != nil {
		return 0, err
	}

	if err := syscall.SetsockoptInt(fd, syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1); err != nil {
		_ = syscall.Close(fd)
		return 0, err
	}

	addr := &syscall.SockaddrInet4{Port: int(s.cfg.Port)}
	if err := syscall.Bind(fd, addr); err != nil {
		_ = syscall.Close(fd)
		return 0, err
	}

	if err := syscall.Listen(fd, syscall.SOMAXCONN); err != nil {
		_ = syscall.Close(fd)
		return 0, err
	}

	if err := syscall.SetNonblock(fd, true); err != nil {
		_ = syscall.Close(fd)
		return 0, err
	}

	return fd, nil
}
