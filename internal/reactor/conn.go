// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package reactor

import (
	"fmt"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// fdConn adapts an accepted net.Conn into session.Conn's non-blocking
// contract. Ordinary net.Conn.Read/Write park the calling goroutine in
// Go's own runtime poller when the socket isn't ready, which would
// hide backpressure from the deferred queue behind the Go scheduler
// instead of surfacing it as a short write. fdConn instead performs
// exactly one raw, non-blocking syscall per Read/Write call via
// SyscallConn, so every I/O syscall on a session socket is
// non-blocking and never suspends the reactor beyond the next poll
// iteration.
type fdConn struct {
	conn net.Conn
	raw  syscall.RawConn
	fd   int
}

// newFDConn wraps conn, extracting its file descriptor once (via
// SyscallConn.Control) for epoll registration and read/write access.
// conn must stay alive for the fd to remain valid; fdConn always keeps
// a reference to it.
func newFDConn(conn net.Conn) (*fdConn, error) {
	syscaller, ok := conn.(syscall.Conn)
	if !ok {
		return nil, fmt.Errorf("reactor: connection type %T has no raw fd", conn)
	}
	raw, err := syscaller.SyscallConn()
	if err != nil {
		return nil, fmt.Errorf("reactor: SyscallConn: %w", err)
	}

	fc := &fdConn{conn: conn, raw: raw}
	var controlErr error
	err = raw.Control(func(fd uintptr) {
		fc.fd = int(fd)
		if flags, fcntlErr := unix.FcntlInt(fd, unix.F_GETFL, 0); fcntlErr == nil {
			_, controlErr = unix.FcntlInt(fd, unix.F_SETFL, flags|unix.O_NONBLOCK)
		} else {
			controlErr = fcntlErr
		}
	})
	if err != nil {
		return nil, fmt.Errorf("reactor: Control: %w", err)
	}
	if controlErr != nil {
		return nil, fmt.Errorf("reactor: set nonblocking: %w", controlErr)
	}
	return fc, nil
}

// FD returns the underlying descriptor, for epoll registration.
func (c *fdConn) FD() int { return c.fd }

// Close closes the underlying connection.
func (c *fdConn) Close() error { return c.conn.Close() }

// RemoteAddr exposes the peer address for fingerprinting. Never
// logged directly; only fed through peerid.Compute.
func (c *fdConn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// Read performs one non-blocking read attempt. A would-block result
// is reported as syscall.EAGAIN, which session.isRetryable already
// recognizes.
func (c *fdConn) Read(p []byte) (int, error) {
	var n int
	var readErr error
	err := c.raw.Read(func(fd uintptr) (done bool) {
		n, readErr = syscall.Read(int(fd), p)
		return true
	})
	if err != nil {
		return 0, err
	}
	if readErr != nil {
		return 0, readErr
	}
	return n, nil
}

// Write performs one non-blocking write attempt. A would-block result
// is reported as syscall.EAGAIN.
func (c *fdConn) Write(p []byte) (int, error) {
	var n int
	var writeErr error
	err := c.raw.Write(func(fd uintptr) (done bool) {
		n, writeErr = syscall.Write(int(fd), p)
		return true
	})
	if err != nil {
		return 0, err
	}
	if writeErr != nil {
		return 0, writeErr
	}
	return n, nil
}
