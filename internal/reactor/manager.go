// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package reactor implements the session manager: the single-threaded
// readiness loop that drives every internal/session.Client through
// accept, read, dispatch, and drain, plus the ambient admin snapshot
// protocol that observes reactor state from other goroutines.
package reactor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/harmonyd/harmonyd/internal/command"
	"github.com/harmonyd/harmonyd/internal/history"
	"github.com/harmonyd/harmonyd/internal/peerid"
	"github.com/harmonyd/harmonyd/internal/protocol"
	"github.com/harmonyd/harmonyd/internal/session"
	"github.com/harmonyd/harmonyd/lib/clock"
	"github.com/harmonyd/harmonyd/lib/netutil"
)

// sessionEntry pairs a session with the raw connection the reactor
// needs for epoll bookkeeping, plus the last interest mask registered
// for it (so Manager only calls epoll_ctl when the mask actually
// changes: the readable/writable sets are recomputed every iteration,
// but re-arming an unchanged registration is wasted work).
type sessionEntry struct {
	client   *session.Client
	conn     *fdConn
	lastMask uint32
}

// Manager is the session manager / reactor. One Manager owns one
// music-protocol listener, one epoll instance, and the live session
// set; the admin snapshot server (snapshot.go) runs alongside it on
// its own goroutine, synchronized through mu (the main-notify lock).
type Manager struct {
	mu sync.Mutex

	clock    clock.Clock
	logger   *slog.Logger
	executor command.Executor
	history  *history.Log

	poller *poller
	music  *tcpListener
	wake   int // eventfd used to interrupt EpollWait on Shutdown

	connectionTimeout time.Duration
	maxConnections    int
	commandListLimit  int
	outputBufferLimit int

	sessions     map[int]*sessionEntry
	nextSequence uint64
	shuttingDown bool
}

// Options bundles the tunables a Manager needs, mirroring the
// configuration source collaborator (concretely lib/config.Config).
type Options struct {
	ListenAddress     string
	ConnectionTimeout time.Duration
	MaxConnections    int
	CommandListLimit  int
	OutputBufferLimit int
}

// New builds a Manager bound to opts.ListenAddress. The returned
// Manager owns the listener and epoll instance; Run releases them when
// it returns after Shutdown or ctx cancellation.
func New(opts Options, executor command.Executor, hist *history.Log, clk clock.Clock, logger *slog.Logger) (*Manager, error) {
	if opts.MaxConnections <= 0 {
		return nil, fmt.Errorf("reactor: max connections must be positive")
	}

	music, err := newTCPListener(opts.ListenAddress)
	if err != nil {
		return nil, err
	}
	p, err := newPoller()
	if err != nil {
		music.Close()
		return nil, err
	}
	wakeFD, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		p.Close()
		music.Close()
		return nil, fmt.Errorf("reactor: eventfd: %w", err)
	}

	if err := p.Add(music.FD(), Readable); err != nil {
		unix.Close(wakeFD)
		p.Close()
		music.Close()
		return nil, fmt.Errorf("reactor: register listener: %w", err)
	}
	if err := p.Add(wakeFD, Readable); err != nil {
		unix.Close(wakeFD)
		p.Close()
		music.Close()
		return nil, fmt.Errorf("reactor: register wake fd: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		clock:             clk,
		logger:            logger,
		executor:          executor,
		history:           hist,
		poller:            p,
		music:             music,
		wake:              wakeFD,
		connectionTimeout: opts.ConnectionTimeout,
		maxConnections:    opts.MaxConnections,
		commandListLimit:  opts.CommandListLimit,
		outputBufferLimit: opts.OutputBufferLimit,
		sessions:          make(map[int]*sessionEntry),
	}, nil
}

// Run drives the readiness loop until Shutdown is called or ctx is
// cancelled, whichever comes first. It returns nil on a clean
// shutdown and a non-nil error only for fatal reactor conditions (a
// readiness wait error other than interrupt).
func (m *Manager) Run(ctx context.Context) error {
	stopWatcher := make(chan struct{})
	defer close(stopWatcher)
	go func() {
		select {
		case <-ctx.Done():
			m.Shutdown()
		case <-stopWatcher:
		}
	}()

	events := make([]unix.EpollEvent, 64)

	m.mu.Lock()
	defer m.mu.Unlock()

	for {
		if m.shuttingDown {
			m.closeAllLocked()
			return nil
		}

		m.syncInterestLocked()

		// Release the main-notify lock exactly around the one blocking
		// syscall per iteration, then reacquire it.
		m.mu.Unlock()
		n, err := m.poller.Wait(events)
		m.mu.Lock()

		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return fmt.Errorf("reactor: epoll_wait: %w", err)
		}

		for i := 0; i < n && !m.shuttingDown; i++ {
			fd := int(events[i].Fd)
			switch fd {
			case m.wake:
				drainEventfd(m.wake)
			case m.music.FD():
				m.acceptOnce()
			default:
				m.handleSessionEvent(fd, events[i].Events)
			}
		}
	}
}

// Shutdown marks the manager as shutting down, zeroes the connection
// cap so no new session is admitted, and wakes the blocked reactor loop
// so it can observe the flag; Run then closes and frees every session
// before returning. Safe to call from any goroutine, any number of
// times.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.shuttingDown = true
	m.maxConnections = 0
	m.mu.Unlock()

	var one [8]byte
	one[7] = 1
	unix.Write(m.wake, one[:])
}

// closeAllLocked tears down every live session and releases the
// listener, poller, and eventfd. Called once, from Run, holding mu.
func (m *Manager) closeAllLocked() {
	for fd, entry := range m.sessions {
		entry.conn.Close()
		delete(m.sessions, fd)
	}
	m.poller.Remove(m.music.FD())
	m.music.Close()
	unix.Close(m.wake)
	m.poller.Close()
}

// Raise applies mask to every live session's pending idle flags,
// called by external event sources. A session that was idle-waiting
// and had this raise delivered to it has its activity clock touched,
// matching the synchronous delivery path in the dispatch loop and
// keeping the next expiry sweep from closing it immediately after
// notifying it. It acquires the main-notify lock, so it is safe to
// call concurrently with Run.
func (m *Manager) Raise(mask protocol.EventMask) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock.Now()
	for _, entry := range m.sessions {
		if entry.client.Expired() {
			continue
		}
		wasWaiting := entry.client.IdleWaiting()
		entry.client.Raise(mask)
		if wasWaiting && !entry.client.IdleWaiting() {
			entry.client.Touch(now)
		}
	}
}

// ExpirySweep detaches already-expired sessions, and closes
// non-idle-waiting sessions whose last activity predates the
// connection timeout (idle-waiting sessions are exempt from the
// timeout). Callers (cmd/harmonyd) invoke this on a ticker.
func (m *Manager) ExpirySweep() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock.Now()
	for fd, entry := range m.sessions {
		if entry.client.Expired() {
			m.detachLocked(fd, entry)
			continue
		}
		if entry.client.IdleWaiting() {
			continue
		}
		if now.Sub(entry.client.LastActivity()) > m.connectionTimeout {
			m.logger.Info("session timed out",
				"fingerprint", entry.client.Fingerprint(),
				"sequence", entry.client.Sequence())
			entry.client.Expire()
			m.recordDisconnect(entry.client)
			m.detachLocked(fd, entry)
		}
	}
}

// LiveSessions reports the current live-session count, for tests and
// the admin snapshot server.
func (m *Manager) LiveSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Addr returns the music listener's bound address, useful when
// ListenAddress uses port 0 (tests, ephemeral ports).
func (m *Manager) Addr() net.Addr { return m.music.ln.Addr() }

// acceptOnce accepts a single connection pending on the music
// listener. net.Listener.Accept blocks the calling
// goroutine when no connection is queued rather than returning a
// would-block error, so unlike the raw-syscall paths elsewhere in
// this package, the accept step must not drain-loop until an error:
// a second call with nothing queued would park the reactor goroutine
// indefinitely, holding the main-notify lock. Level-triggered epoll
// re-reports the listener as readable on the next iteration if more
// connections remain in the backlog, so accepting one per readiness
// notification loses nothing.
func (m *Manager) acceptOnce() {
	acc, err := m.music.Accept()
	if err != nil {
		if !isTemporary(err) {
			m.logger.Warn("accept failed", "error", err)
		}
		return
	}
	m.admit(acc)
}

// admit performs accept admission: connection-cap check, epoll
// registration, session construction, and the synchronous greeting
// write.
func (m *Manager) admit(acc accepted) {
	if len(m.sessions) >= m.maxConnections {
		acc.conn.Close()
		m.logger.Warn("connection cap reached, rejecting", "max_connections", m.maxConnections)
		return
	}

	if err := m.poller.Add(acc.conn.FD(), Readable); err != nil {
		m.logger.Error("registering session fd failed", "error", err)
		acc.conn.Close()
		return
	}

	m.nextSequence++
	sequence := m.nextSequence
	fp := peerid.Compute(acc.peerAddr, acc.uid, acc.uidKnown)
	now := m.clock.Now()

	client := session.New(acc.conn, sequence, acc.uid, acc.uidKnown, command.DefaultPermission(),
		fp, m.history, m.commandListLimit, m.outputBufferLimit, now)

	if err := writeSync(acc.conn, []byte(protocol.Greeting())); err != nil {
		if netutil.IsExpectedCloseError(err) {
			m.logger.Debug("peer disconnected before greeting", "fingerprint", fp)
		} else {
			m.logger.Warn("greeting write failed", "fingerprint", fp, "error", err)
		}
		m.poller.Remove(acc.conn.FD())
		acc.conn.Close()
		return
	}

	m.sessions[acc.conn.FD()] = &sessionEntry{client: client, conn: acc.conn, lastMask: Readable}
	if m.history != nil {
		m.history.Record(sequence, fp, history.Connected, "")
	}
	m.logger.Info("session accepted", "fingerprint", fp, "sequence", sequence)
}

// handleSessionEvent processes one ready session descriptor: a
// readable event runs the read/dispatch loop, a writable event drains
// the deferred queue.
func (m *Manager) handleSessionEvent(fd int, events uint32) {
	entry, ok := m.sessions[fd]
	if !ok {
		return
	}
	now := m.clock.Now()

	if events&unix.EPOLLIN != 0 {
		m.readAndDispatch(entry, now)
	}
	if !entry.client.Expired() && events&unix.EPOLLOUT != 0 {
		if entry.client.Drain() == session.DrainError {
			entry.client.Expire()
		} else {
			entry.client.Touch(now)
		}
	}
	if entry.client.Expired() {
		m.recordDisconnect(entry.client)
		m.detachLocked(fd, entry)
	}
}

// readAndDispatch implements the read step followed by line dispatch
// for every complete line the read yielded.
func (m *Manager) readAndDispatch(entry *sessionEntry, now time.Time) {
	client := entry.client
	outcome := client.Read()
	if outcome.Close {
		client.Expire()
		return
	}
	if outcome.N == 0 {
		return
	}
	client.Touch(now)

	for {
		line, ok := client.NextLine()
		if !ok {
			break
		}
		result := client.HandleLine(m.executor, string(line), now)
		switch result {
		case session.Close:
			client.Expire()
			return
		case session.Kill:
			m.logger.Warn("command layer requested reactor shutdown",
				"fingerprint", client.Fingerprint(), "sequence", client.Sequence())
			m.shuttingDown = true
			return
		}
		if client.Expired() {
			return
		}
	}

	if client.Reframe() {
		client.Expire()
	}
}

// detachLocked removes fd from the epoll instance and the session
// map, and closes the underlying connection. Callers hold mu.
func (m *Manager) detachLocked(fd int, entry *sessionEntry) {
	m.poller.Remove(fd)
	entry.conn.Close()
	delete(m.sessions, fd)
}

// recordDisconnect appends a disconnected event to the history log
// for a session about to be detached.
func (m *Manager) recordDisconnect(c *session.Client) {
	if m.history == nil {
		return
	}
	m.history.Record(c.Sequence(), c.Fingerprint(), history.Disconnected, "")
}

// syncInterestLocked recomputes each live session's epoll interest:
// readable while the deferred queue is empty, writable while it is
// not. Only changed masks incur an epoll_ctl call.
func (m *Manager) syncInterestLocked() {
	for fd, entry := range m.sessions {
		if entry.client.Expired() {
			continue
		}
		var mask uint32
		if entry.client.DeferredEmpty() {
			mask = Readable
		} else {
			mask = Writable
		}
		if mask != entry.lastMask {
			if err := m.poller.Modify(fd, mask); err != nil {
				m.logger.Error("epoll_ctl mod failed", "error", err)
				continue
			}
			entry.lastMask = mask
		}
	}
}

// drainEventfd empties the wake eventfd's counter so it stops
// reporting readable.
func drainEventfd(fd int) {
	var buf [8]byte
	unix.Read(fd, buf[:])
}

// isTemporary reports whether an accept error is transient (the
// listener would simply block on the next attempt).
func isTemporary(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EINTR)
}

// writeSync writes the full greeting even if the initial non-blocking
// attempt returns a would-block error; it is the only synchronous
// write outside the staged path. The greeting is a few bytes on a
// socket with an empty send buffer immediately after accept, so this
// practically never spins more than once.
func writeSync(w *fdConn, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if err != nil {
			if isTemporary(err) {
				continue
			}
			return err
		}
		p = p[n:]
	}
	return nil
}
