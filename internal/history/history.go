// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package history implements the session activity history collaborator:
// an in-memory ring of recent connect/disconnect/idle-notify events,
// with an optional periodic flush of a compressed segment to disk.
// This is diagnostics, not request persistence: it never replays a
// command and never affects protocol behavior.
package history

import (
	"sync"
	"time"

	"github.com/harmonyd/harmonyd/internal/peerid"
	"github.com/harmonyd/harmonyd/lib/clock"
)

// Kind identifies what happened to a session.
type Kind string

const (
	Connected    Kind = "connected"
	Disconnected Kind = "disconnected"
	IdleWoken    Kind = "idle-woken"
	Expired      Kind = "expired"
)

// Event is one lifecycle record. Sessions are identified by sequence
// number and fingerprint, never by raw peer address, matching the
// reactor's own logging discipline.
type Event struct {
	Time        time.Time `cbor:"time"`
	Sequence    uint64    `cbor:"sequence"`
	Fingerprint string    `cbor:"fingerprint"`
	Kind        Kind      `cbor:"kind"`
	Detail      string    `cbor:"detail,omitempty"`
}

// Log is a fixed-capacity ring of recent Events plus an optional
// on-disk flush path. Record is fire-and-forget: it never blocks the
// reactor loop and never fails visibly to the caller.
type Log struct {
	mu       sync.Mutex
	clock    clock.Clock
	ring     []Event
	capacity int
	next     int
	filled   int

	flusher *flusher
}

// New creates a Log holding at most capacity events in memory. clk is
// used to timestamp events and to schedule periodic flushes; pass
// clock.Real() in production and clock.Fake() in tests.
func New(capacity int, clk clock.Clock) *Log {
	if capacity <= 0 {
		capacity = 256
	}
	return &Log{
		clock:    clk,
		ring:     make([]Event, capacity),
		capacity: capacity,
	}
}

// Record appends an event with the current clock time. It never
// blocks and never returns an error: a full ring simply overwrites
// its oldest entry.
func (l *Log) Record(sequence uint64, fp peerid.Fingerprint, kind Kind, detail string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.ring[l.next] = Event{
		Time:        l.clock.Now(),
		Sequence:    sequence,
		Fingerprint: fp.String(),
		Kind:        kind,
		Detail:      detail,
	}
	l.next = (l.next + 1) % l.capacity
	if l.filled < l.capacity {
		l.filled++
	}
}

// Snapshot returns a copy of the ring's contents in chronological
// order, oldest first.
func (l *Log) Snapshot() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Event, l.filled)
	start := l.next - l.filled
	if start < 0 {
		start += l.capacity
	}
	for i := 0; i < l.filled; i++ {
		out[i] = l.ring[(start+i)%l.capacity]
	}
	return out
}

// drainLocked returns and clears every event currently in the ring.
// Must be called with l.mu held.
func (l *Log) drainLocked() []Event {
	start := l.next - l.filled
	if start < 0 {
		start += l.capacity
	}
	out := make([]Event, l.filled)
	for i := 0; i < l.filled; i++ {
		out[i] = l.ring[(start+i)%l.capacity]
	}
	l.filled = 0
	l.next = 0
	return out
}
