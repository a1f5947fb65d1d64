//go:build linux

package server

import (
	"golang.org/x/sys/unix"
)

// maxEvents bounds how many ready descriptors a single epoll_wait call
// returns per pass.
const maxEvents = 64

// eventLoop wraps a Linux epoll instance: the readiness multiplexer the
// Reactor polls for accept/read/write events.
type eventLoop struct {
	epfd int
}

func newEventLoop() (*eventLoop, error) {
	fd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, err
	}
	return &eventLoop{epfd: fd}, nil
}

func (e *eventLoop) close() error {
	return unix.Close(e.epfd)
}

func (e *eventLoop) addFD(fd int, events uint32) error {
	return unix.EpollCtl(e.epfd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{
		Fd:     int32(fd),
		Events: events,
	})
}

func (e *eventLoop) modifyFD(fd int, events uint32) error {
	return unix.EpollCtl(e.epfd, unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{
		Fd:     int32(fd),
		Events: events,
	})
}

func (e *eventLoop) removeFD(fd int) {
	// EPOLL_CTL_DEL ignores the event argument, but pass one anyway for
	// compatibility with kernels that are pickier about a nil pointer.
	_ = unix.EpollCtl(e.epfd, unix.EPOLL_CTL_DEL, fd, &unix.EpollEvent{})
}

// readyEvent is one ready descriptor and the readiness bits epoll reported
// for it.
type readyEvent struct {
	fd     int
	events uint32
}

// wait blocks up to timeoutMs for ready descriptors (timeoutMs < 0 blocks
// indefinitely) and returns them.
func (e *eventLoop) wait(timeoutMs int) ([]readyEvent, error) {
	raw := make([]unix.EpollEvent, maxEvents)
	n, err := unix.EpollWait(e.epfd, raw, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}

	out := make([]readyEvent, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, readyEvent{fd: int(raw[i].Fd), events: raw[i].Events})
	}
	return out, nil
}

const (
	evRead      = unix.EPOLLIN
	evWrite     = unix.EPOLLOUT
	evErrHangup = unix.EPOLLERR | unix.EPOLLHUP
)
