// Package aof implements CacheForge's append-only persistence log: a
// background-flushed writer that durably records mutating commands, and a
// replay reader that reconstructs store state from a log file at startup.
package aof

import (
	"bufio"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cacheforge/cacheforge/pkg/protocol"
	"go.uber.org/zap"
)

// flushInterval bounds how long a write can sit unflushed in the writer's
// queue, and how often the writer wakes even absent new writes.
const flushInterval = 100 * time.Millisecond

// Writer is the single background writer draining a queue of encoded
// command lines into an append-only file. Construct with NewWriter, call
// Start once, and Stop before process exit to flush and join cleanly.
type Writer struct {
	path   string
	logger *zap.Logger

	mu    sync.Mutex
	queue []string

	notify  chan struct{}
	stopCh  chan struct{}
	done    chan struct{}
	enabled atomic.Bool
	stopped atomic.Bool
	written atomic.Uint64

	file *os.File
}

// NewWriter prepares a Writer targeting path. The file is not opened until
// Start is called.
func NewWriter(path string, logger *zap.Logger) *Writer {
	w := &Writer{
		path:   path,
		logger: logger,
		notify: make(chan struct{}, 1),
	}
	w.enabled.Store(true)
	return w
}

// Start opens the log file in append mode and launches the background
// writer goroutine.
func (w *Writer) Start() error {
	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	w.file = f
	w.stopCh = make(chan struct{})
	w.done = make(chan struct{})
	go w.writerLoop()
	return nil
}

// Stop requests the writer goroutine to drain and exit, then flushes and
// closes the file. Safe to call once; further Log* calls after Stop are
// silently discarded per the stopped latch.
func (w *Writer) Stop() {
	w.stopped.Store(true)
	if w.stopCh != nil {
		close(w.stopCh)
	}
	if w.done != nil {
		<-w.done
	}
	if w.file != nil {
		_ = w.file.Sync()
		_ = w.file.Close()
	}
}

// SetEnabled toggles whether Log* calls enqueue records. Used to silence
// logging while replay is re-applying the very records being read back.
func (w *Writer) SetEnabled(enabled bool) {
	w.enabled.Store(enabled)
}

// IsEnabled reports the current enabled state.
func (w *Writer) IsEnabled() bool {
	return w.enabled.Load()
}

// PendingCount returns the current queue depth.
func (w *Writer) PendingCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.queue)
}

// WrittenCount returns the number of records successfully written to the
// file so far.
func (w *Writer) WrittenCount() uint64 {
	return w.written.Load()
}

// LogSet enqueues a SET record, unless the writer is disabled.
func (w *Writer) LogSet(key, value string) {
	if !w.enabled.Load() {
		return
	}
	w.enqueue("SET " + protocol.QuoteIfNeeded(key) + " " + protocol.QuoteIfNeeded(value))
}

// LogDel enqueues a DEL record, unless the writer is disabled.
func (w *Writer) LogDel(key string) {
	if !w.enabled.Load() {
		return
	}
	w.enqueue("DEL " + protocol.QuoteIfNeeded(key))
}

// LogExpire enqueues an EXPIRE record, unless the writer is disabled.
func (w *Writer) LogExpire(key string, seconds int64) {
	if !w.enabled.Load() {
		return
	}
	w.enqueue("EXPIRE " + protocol.QuoteIfNeeded(key) + " " + strconv.FormatInt(seconds, 10))
}

func (w *Writer) enqueue(cmd string) {
	if w.stopped.Load() {
		return
	}
	w.mu.Lock()
	w.queue = append(w.queue, cmd)
	w.mu.Unlock()

	select {
	case w.notify <- struct{}{}:
	default:
	}
}

// takeBatch atomically empties and returns the current queue.
func (w *Writer) takeBatch() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.queue) == 0 {
		return nil
	}
	batch := w.queue
	w.queue = nil
	return batch
}

// writerLoop wakes on new data or the flush interval, drains the whole
// queue into a batch, writes it, and flushes. It exits once stop has been
// requested and the queue has been fully drained.
func (w *Writer) writerLoop() {
	defer close(w.done)
	writer := bufio.NewWriter(w.file)
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.notify:
		case <-ticker.C:
		case <-w.stopCh:
		}

		batch := w.takeBatch()
		for _, line := range batch {
			if _, err := writer.WriteString(line); err != nil {
				w.logger.Error("aof writer: write error, stream in bad state", zap.Error(err))
				break
			}
			if err := writer.WriteByte('\n'); err != nil {
				w.logger.Error("aof writer: write error, stream in bad state", zap.Error(err))
				break
			}
			w.written.Add(1)
		}
		if len(batch) > 0 {
			if err := writer.Flush(); err != nil {
				w.logger.Error("aof writer: flush error", zap.Error(err))
			}
		}

		select {
		case <-w.stopCh:
			if batch == nil {
				// Stop was requested and this pass found nothing new to
				// drain: the queue is empty, safe to exit.
				return
			}
			// Fall through to another pass in case enqueue raced with
			// the stop signal between takeBatch and here.
		default:
		}
	}
}
