package server

import (
	"sync"
	"syscall"

	"go.uber.org/zap"
)

// pollTimeoutMs bounds how long a single epoll_wait call blocks, so Stop
// takes effect within one poll timeout of being called.
const pollTimeoutMs = 100

// Reactor is the single thread doing non-blocking accept plus
// readiness-multiplexed read/write over every open connection. It owns
// the listening socket and the fd -> *Connection map; while Run is active
// the map is touched only from the reactor's own goroutine (Server.Stop
// closes whatever connections remain in it after Run returns), but individual
// Connections are shared with worker goroutines via the pool, so their
// internals use their own locks/atomics (see connection.go).
type Reactor struct {
	loop      *eventLoop
	listenFD  int
	pool      *WorkerPool
	onCommand func(conn *Connection, line string) string
	logger    *zap.Logger

	mu          sync.Mutex
	connections map[int]*Connection

	stopCh chan struct{}
	done   chan struct{}
}

// NewReactor wraps an already-listening, already-non-blocking socket fd.
// onCommand is invoked by a worker goroutine for each parsed line and must
// return the reply to send back.
func NewReactor(listenFD int, pool *WorkerPool, onCommand func(*Connection, string) string, logger *zap.Logger) (*Reactor, error) {
	loop, err := newEventLoop()
	if err != nil {
		return nil, err
	}
	if err := loop.addFD(listenFD, evRead); err != nil {
		_ = loop.close()
		return nil, err
	}

	return &Reactor{
		loop:        loop,
		listenFD:    listenFD,
		pool:        pool,
		onCommand:   onCommand,
		logger:      logger,
		connections: make(map[int]*Connection),
		stopCh:      make(chan struct{}),
		done:        make(chan struct{}),
	}, nil
}

// Run is the reactor's blocking poll loop. Call it in its own goroutine;
// it returns once Stop has been called.
func (r *Reactor) Run() {
	defer close(r.done)
	for {
		select {
		case <-r.stopCh:
			return
		default:
		}

		events, err := r.loop.wait(pollTimeoutMs)
		if err != nil {
			r.logger.Error("reactor: epoll wait failed", zap.Error(err))
			continue
		}

		for _, ev := range events {
			switch {
			case ev.fd == r.listenFD:
				r.acceptConnections()
			case ev.events&evErrHangup != 0:
				r.closeConnection(ev.fd)
			case ev.events&evRead != 0:
				r.handleRead(ev.fd)
			case ev.events&evWrite != 0:
				r.handleWrite(ev.fd)
			}
		}
	}
}

// Stop signals Run to exit and blocks until it has returned. It does not
// itself close client connections; the caller closes the listener and any
// remaining connections after Run returns.
func (r *Reactor) Stop() {
	close(r.stopCh)
	<-r.done
}

func (r *Reactor) acceptConnections() {
	for {
		fd, _, err := syscall.Accept(r.listenFD)
		if err != nil {
			if err == syscall.EAGAIN || err == syscall.EWOULDBLOCK {
				return
			}
			r.logger.Warn("reactor: accept failed", zap.Error(err))
			return
		}

		if err := syscall.SetNonblock(fd, true); err != nil {
			r.logger.Warn("reactor: failed to set nonblocking", zap.Error(err))
			_ = syscall.Close(fd)
			continue
		}

		conn := NewConnection(fd)
		if err := r.loop.addFD(fd, evRead); err != nil {
			r.logger.Warn("reactor: failed to register fd", zap.Error(err))
			_ = syscall.Close(fd)
			continue
		}

		r.mu.Lock()
		r.connections[fd] = conn
		r.mu.Unlock()

		r.logger.Debug("reactor: accepted connection",
			zap.Int("fd", fd), zap.String("conn_id", conn.ID.String()))
	}
}

func (r *Reactor) handleRead(fd int) {
	r.mu.Lock()
	conn, ok := r.connections[fd]
	r.mu.Unlock()
	if !ok {
		return
	}
	if conn.IsInFlight() {
		// A worker is still processing this connection's last batch;
		// skip the read entirely rather than growing the buffer further
		// or submitting overlapping work.
		return
	}

	lines, closed := conn.ReadAndParse()
	if closed {
		r.closeConnection(fd)
		return
	}

	if len(lines) > 0 {
		// Only the reactor goroutine ever sets the flag, and it saw it
		// clear above, so the CAS cannot fail here; it stays a CAS to keep
		// the gate's enforcement in one place.
		if conn.TrySetInFlight() {
			r.dispatch(conn, lines)
		}
	}

	r.updateEpollEvents(conn)
}

// dispatch hands every line from one read batch to a single worker task,
// which executes them in order and clears in_flight only once all have
// been answered, preserving per-connection reply order. The worker sends
// each reply inline; whatever the socket won't take is parked in the write
// buffer and the reactor drains it under write-readiness.
func (r *Reactor) dispatch(conn *Connection, lines []string) {
	r.pool.Submit(func() {
		for _, line := range lines {
			reply := r.onCommand(conn, line)
			conn.SendResponse(reply)
		}
		conn.ClearInFlight()
		r.updateEpollEvents(conn)
	})
}

func (r *Reactor) handleWrite(fd int) {
	r.mu.Lock()
	conn, ok := r.connections[fd]
	r.mu.Unlock()
	if !ok {
		return
	}

	conn.FlushWriteBuffer()
	if conn.HasError() {
		r.closeConnection(fd)
		return
	}
	r.updateEpollEvents(conn)
}

func (r *Reactor) updateEpollEvents(conn *Connection) {
	events := uint32(evRead)
	if conn.WantWrite() {
		events |= evWrite
	}
	err := r.loop.modifyFD(conn.FD, events)
	if err != nil && err != syscall.EBADF && err != syscall.ENOENT {
		// EBADF/ENOENT mean the reactor closed this connection while a
		// worker was still finishing; the late re-arm is harmless.
		r.logger.Warn("reactor: failed to update epoll events", zap.Error(err))
	}
}

func (r *Reactor) closeConnection(fd int) {
	r.mu.Lock()
	conn, ok := r.connections[fd]
	if ok {
		delete(r.connections, fd)
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	r.loop.removeFD(fd)
	_ = syscall.Close(fd)
	r.logger.Debug("reactor: closed connection",
		zap.Int("fd", fd), zap.String("conn_id", conn.ID.String()))
}
