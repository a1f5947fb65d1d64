package server

import (
	"strings"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/google/uuid"
)

// readBufferSize is the scratch buffer size for one non-blocking recv.
const readBufferSize = 4096

// Connection owns one accepted socket's buffers and flags. It is shared
// between the reactor goroutine (which owns reads and the read buffer)
// and worker goroutines (which append to the write buffer and may run
// concurrently with the reactor flushing it), so every field touched from
// more than one goroutine is behind a lock or is atomic.
type Connection struct {
	FD int
	ID uuid.UUID

	readBuf strings.Builder

	writeMu  sync.Mutex
	writeBuf []byte

	hasError atomic.Bool
	inFlight atomic.Bool
}

// NewConnection wraps an already-accepted, already-non-blocking fd.
func NewConnection(fd int) *Connection {
	return &Connection{FD: fd, ID: uuid.New()}
}

// ReadAndParse performs one non-blocking recv, appends it to the
// connection's read buffer, and extracts any complete (newline-terminated)
// lines, stripping an optional trailing '\r'. Must only be called from the
// reactor goroutine — it is not safe for concurrent use with itself.
func (c *Connection) ReadAndParse() (lines []string, closed bool) {
	var buf [readBufferSize]byte
	n, err := syscall.Read(c.FD, buf[:])

	if n < 0 {
		n = 0
	}
	if n > 0 {
		c.readBuf.Write(buf[:n])
	}

	if err != nil {
		if err == syscall.EAGAIN || err == syscall.EWOULDBLOCK {
			return extractLines(&c.readBuf), false
		}
		c.hasError.Store(true)
		return extractLines(&c.readBuf), true
	}
	if n == 0 {
		c.hasError.Store(true)
		return extractLines(&c.readBuf), true
	}

	return extractLines(&c.readBuf), false
}

// extractLines pulls every complete line out of buf, leaving any trailing
// partial line in place for the next read.
func extractLines(buf *strings.Builder) []string {
	data := buf.String()
	var lines []string

	for {
		idx := strings.IndexByte(data, '\n')
		if idx < 0 {
			break
		}
		line := data[:idx]
		data = data[idx+1:]
		line = strings.TrimSuffix(line, "\r")
		if line != "" {
			lines = append(lines, line)
		}
	}

	buf.Reset()
	buf.WriteString(data)
	return lines
}

// QueueResponse appends response to the write buffer under its lock. Safe
// to call from a worker goroutine while the reactor concurrently flushes.
func (c *Connection) QueueResponse(response string) {
	c.writeMu.Lock()
	c.writeBuf = append(c.writeBuf, response...)
	c.writeMu.Unlock()
}

// SendResponse attempts to send response immediately from the calling
// goroutine (typically a worker), parking whatever the socket does not
// accept in the write buffer for the reactor to flush under
// write-readiness. Returns true iff the whole response went out inline.
func (c *Connection) SendResponse(response string) bool {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if len(c.writeBuf) > 0 {
		// Earlier bytes are still parked; append behind them so the reply
		// stream stays in order.
		c.writeBuf = append(c.writeBuf, response...)
		return false
	}

	data := []byte(response)
	for len(data) > 0 {
		n, err := syscall.Write(c.FD, data)
		if n > 0 {
			data = data[n:]
		}
		if err != nil {
			if err == syscall.EAGAIN || err == syscall.EWOULDBLOCK {
				c.writeBuf = append(c.writeBuf, data...)
				return false
			}
			c.hasError.Store(true)
			return false
		}
		if n == 0 {
			c.writeBuf = append(c.writeBuf, data...)
			return false
		}
	}
	return true
}

// FlushWriteBuffer attempts to send as much of the write buffer as the
// socket will currently accept. Returns true once the buffer is fully
// drained. Intended to be called from the reactor goroutine on
// write-readiness, but takes the write lock so a racing QueueResponse from
// a worker is safe.
func (c *Connection) FlushWriteBuffer() bool {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	for len(c.writeBuf) > 0 {
		n, err := syscall.Write(c.FD, c.writeBuf)
		if n > 0 {
			c.writeBuf = c.writeBuf[n:]
		}
		if err != nil {
			if err == syscall.EAGAIN || err == syscall.EWOULDBLOCK {
				return false
			}
			c.hasError.Store(true)
			return false
		}
		if n == 0 {
			return false
		}
	}
	return true
}

// WantWrite reports whether there is unsent data parked in the write
// buffer.
func (c *Connection) WantWrite() bool {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return len(c.writeBuf) > 0
}

// HasError reports whether the connection hit EOF or an unrecoverable I/O
// error and should be closed on the reactor's next visit.
func (c *Connection) HasError() bool {
	return c.hasError.Load()
}

// TrySetInFlight atomically marks the connection as having an outstanding
// worker task, returning true only if it was previously clear. This is the
// single enforcement point for "at most one worker per connection."
func (c *Connection) TrySetInFlight() bool {
	return c.inFlight.CompareAndSwap(false, true)
}

// ClearInFlight marks the connection as free to receive its next task,
// called by the worker after it has sent its reply.
func (c *Connection) ClearInFlight() {
	c.inFlight.Store(false)
}

// IsInFlight reports the current in-flight state.
func (c *Connection) IsInFlight() bool {
	return c.inFlight.Load()
}
