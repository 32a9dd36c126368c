// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package reactor

import (
	"fmt"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// accepted is the tuple the listener collaborator yields: descriptor,
// peer address, and uid if known. peerAddr is kept only long enough to
// compute a fingerprint; the reactor never logs it directly.
type accepted struct {
	conn     *fdConn
	peerAddr string
	uid      uint32
	uidKnown bool
}

// listener is the listener collaborator: it registers a listening
// descriptor for readiness and yields accepted connections with peer
// identity when known.
type listener interface {
	FD() int
	Accept() (accepted, error)
	Close() error
}

// tcpListener wraps a TCP net.Listener. TCP peers have no OS-level
// uid: every TCP accept reports uidKnown=false.
type tcpListener struct {
	ln *net.TCPListener
	fd int
}

// newTCPListener binds addr and extracts its descriptor for epoll
// registration via SyscallConn, the same pattern fdConn uses for
// accepted connections.
func newTCPListener(addr string) (*tcpListener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("reactor: listen %s: %w", addr, err)
	}
	tcpLn := ln.(*net.TCPListener)

	raw, err := tcpLn.SyscallConn()
	if err != nil {
		tcpLn.Close()
		return nil, fmt.Errorf("reactor: SyscallConn: %w", err)
	}
	var fd int
	if err := raw.Control(func(f uintptr) { fd = int(f) }); err != nil {
		tcpLn.Close()
		return nil, fmt.Errorf("reactor: Control: %w", err)
	}
	return &tcpListener{ln: tcpLn, fd: fd}, nil
}

func (t *tcpListener) FD() int { return t.fd }

func (t *tcpListener) Accept() (accepted, error) {
	conn, err := t.ln.AcceptTCP()
	if err != nil {
		return accepted{}, err
	}
	fc, err := newFDConn(conn)
	if err != nil {
		conn.Close()
		return accepted{}, err
	}
	return accepted{
		conn:     fc,
		peerAddr: conn.RemoteAddr().String(),
		uidKnown: false,
	}, nil
}

func (t *tcpListener) Close() error { return t.ln.Close() }

// peerCredUID extracts the connecting process's uid via SO_PEERCRED,
// the standard Linux mechanism for Unix-socket credential passing.
// Used by the admin snapshot server (snapshot.go), which runs its own
// accept loop off the session reactor's epoll instance entirely: the
// admin socket is read-only diagnostics and never shares the hot
// session-I/O loop. Returns ok=false if the platform or socket
// doesn't support it.
func peerCredUID(fd int) (uint32, bool) {
	cred, err := unix.GetsockoptUcred(fd, syscall.SOL_SOCKET, unix.SO_PEERCRED)
	if err != nil {
		return 0, false
	}
	return cred.Uid, true
}
