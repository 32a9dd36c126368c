// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package reactor

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Readiness event flags, mirroring epoll's. Every registration in this
// package uses level-triggered semantics, epoll's default: a socket
// that remains readable/writable keeps reporting ready every
// iteration until drained.
const (
	Readable = unix.EPOLLIN
	Writable = unix.EPOLLOUT
)

// poller wraps a single epoll instance. It is the one source of the
// reactor's single blocking syscall per iteration.
type poller struct {
	epfd int
}

// newPoller creates an epoll instance.
func newPoller() (*poller, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("reactor: epoll_create1: %w", err)
	}
	return &poller{epfd: fd}, nil
}

// Close releases the epoll instance.
func (p *poller) Close() error {
	return unix.Close(p.epfd)
}

// Add registers fd for the given event mask, tagging the event with
// userData (the fd itself for session sockets and listeners) so Wait
// can report which descriptor became ready without a separate lookup.
func (p *poller) Add(fd int, events uint32) error {
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{
		Events: events,
		Fd:     int32(fd),
	})
}

// Modify changes the event mask for an already-registered fd. The
// reactor calls this whenever a session's interest changes, switching
// between EPOLLIN and EPOLLOUT as its deferred queue fills and drains.
func (p *poller) Modify(fd int, events uint32) error {
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{
		Events: events,
		Fd:     int32(fd),
	})
}

// Remove deregisters fd. Safe to call after the fd has already been
// closed by the caller (EBADF is ignored) since closing a descriptor
// implicitly drops its epoll registration.
func (p *poller) Remove(fd int) error {
	err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	if err == unix.EBADF || err == unix.ENOENT {
		return nil
	}
	return err
}

// Wait blocks in epoll_wait with no timeout until at least one
// descriptor is ready, filling events and returning the count. This
// is the reactor's one suspension point per iteration; the
// main-notify lock must be released by the caller before Wait and
// reacquired immediately after.
func (p *poller) Wait(events []unix.EpollEvent) (int, error) {
	return unix.EpollWait(p.epfd, events, -1)
}
