// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package reactor

import (
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/harmonyd/harmonyd/lib/codec"
	"github.com/harmonyd/harmonyd/lib/netutil"
)

// SessionSnapshot is one live session's diagnostic state: sequence
// number, fingerprint, buffer occupancy, command-list state, and idle
// subscription mask. Never includes raw peer addresses, uids, or
// command text.
type SessionSnapshot struct {
	Sequence           uint64   `cbor:"sequence"`
	Fingerprint        string   `cbor:"fingerprint"`
	InputOccupancy     int      `cbor:"input_occupancy"`
	DeferredBytes      int      `cbor:"deferred_bytes"`
	CommandListMode    string   `cbor:"command_list_mode"`
	CommandListSize    int      `cbor:"command_list_size"`
	IdleWaiting        bool     `cbor:"idle_waiting"`
	IdleSubscriptions  []string `cbor:"idle_subscriptions"`
	LastActivitySecAgo float64  `cbor:"last_activity_sec_ago"`
}

// Snapshot is the response to every admin socket request: a
// point-in-time dump of reactor state.
type Snapshot struct {
	Sessions         []SessionSnapshot `cbor:"sessions"`
	LiveSessionCount int               `cbor:"live_session_count"`
	MaxConnections   int               `cbor:"max_connections"`
}

// snapshotRequest is the bare request the admin protocol accepts. It
// carries no fields today, left as an extension point for future
// filters.
type snapshotRequest struct{}

// Snapshot builds a point-in-time dump of every live session,
// acquiring the main-notify lock so it never observes a session
// mid-mutation by the reactor loop.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	sessions := make([]SessionSnapshot, 0, len(m.sessions))
	for _, entry := range m.sessions {
		c := entry.client
		sessions = append(sessions, SessionSnapshot{
			Sequence:           c.Sequence(),
			Fingerprint:        c.Fingerprint().String(),
			InputOccupancy:     c.InputOccupancy(),
			DeferredBytes:      c.DeferredBytes(),
			CommandListMode:    c.CommandListMode().String(),
			CommandListSize:    c.CommandListSize(),
			IdleWaiting:        c.IdleWaiting(),
			IdleSubscriptions:  c.IdleSubscriptions().Names(),
			LastActivitySecAgo: now.Sub(c.LastActivity()).Seconds(),
		})
	}
	return Snapshot{
		Sessions:         sessions,
		LiveSessionCount: len(m.sessions),
		MaxConnections:   m.maxConnections,
	}
}

// SnapshotServer serves the CBOR admin protocol on a Unix socket. It
// runs entirely off the session reactor's epoll instance: each
// connection is handled synchronously on its own
// goroutine using ordinary blocking net.Conn I/O, since this socket
// never sits on the session hot path and its request/response
// exchange is tiny. It only ever touches reactor state through
// Manager.Snapshot, which takes the main-notify lock.
type SnapshotServer struct {
	manager *Manager
	logger  *slog.Logger
	ln      *net.UnixListener
	path    string
}

// NewSnapshotServer binds path and returns a server ready for Serve.
func NewSnapshotServer(manager *Manager, path string, logger *slog.Logger) (*SnapshotServer, error) {
	os.Remove(path) // stale socket from a prior crashed run
	ln, err := net.ListenUnix("unix", &net.UnixAddr{Name: path, Net: "unix"})
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SnapshotServer{manager: manager, logger: logger, ln: ln, path: path}, nil
}

// Serve accepts admin connections until the listener is closed
// (typically via Close from another goroutine on shutdown).
func (s *SnapshotServer) Serve() {
	for {
		conn, err := s.ln.AcceptUnix()
		if err != nil {
			if !netutil.IsExpectedCloseError(err) {
				s.logger.Warn("admin accept failed", "error", err)
			}
			return
		}
		go s.handle(conn)
	}
}

// Close stops accepting new admin connections and removes the socket
// file.
func (s *SnapshotServer) Close() error {
	defer os.Remove(s.path)
	return s.ln.Close()
}

func (s *SnapshotServer) handle(conn *net.UnixConn) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))

	if raw, err := conn.SyscallConn(); err == nil {
		raw.Control(func(fd uintptr) {
			if uid, ok := peerCredUID(int(fd)); ok {
				s.logger.Debug("admin connection", "peer_uid", uid)
			}
		})
	}

	var req snapshotRequest
	if err := codec.NewDecoder(conn).Decode(&req); err != nil {
		s.logger.Debug("admin request decode failed", "error", err)
		return
	}

	snap := s.manager.Snapshot()
	if err := codec.NewEncoder(conn).Encode(snap); err != nil {
		s.logger.Debug("admin response encode failed", "error", err)
	}
}
