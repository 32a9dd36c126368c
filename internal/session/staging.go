// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import "io"

// stagingCapacity is the fixed size of a session's outbound staging
// buffer.
const stagingCapacity = 4096

// Staging is the small per-session byte buffer that collects reply
// bytes from the command layer before write_out flushes them to the
// socket or the deferred queue. Appending beyond
// capacity auto-flushes and continues filling the now-empty buffer,
// so callers never need to size their writes to the buffer.
type Staging struct {
	data [stagingCapacity]byte
	used int
}

// Len reports the number of staged, unflushed bytes.
func (s *Staging) Len() int { return s.used }

// Append copies p into the staging buffer, flushing through w/q via
// write_out whenever the buffer fills, and repeating until every byte
// of p has been consumed. It returns false if a flush failed, in
// which case the caller must expire the session.
func (s *Staging) Append(w io.Writer, q *DeferredQueue, p []byte) bool {
	for len(p) > 0 {
		room := len(s.data) - s.used
		n := len(p)
		if n > room {
			n = room
		}
		copy(s.data[s.used:], p[:n])
		s.used += n
		p = p[n:]
		if s.used == len(s.data) {
			if !s.Flush(w, q) {
				return false
			}
		}
	}
	return true
}

// WriteLine appends line followed by '\n'.
func (s *Staging) WriteLine(w io.Writer, q *DeferredQueue, line string) bool {
	if !s.Append(w, q, []byte(line)) {
		return false
	}
	return s.Append(w, q, []byte{'\n'})
}

// Flush hands any staged bytes to write_out and clears the buffer,
// regardless of whether it was full. The session's dispatch loop
// calls this once after each processed line or command list.
func (s *Staging) Flush(w io.Writer, q *DeferredQueue) bool {
	if s.used == 0 {
		return true
	}
	ok := WriteOut(w, q, s.data[:s.used])
	s.used = 0
	return ok
}

// WriteOut implements the session's write_out policy: a session with
// anything already queued must preserve ordering by enqueueing, never
// attempting a direct write out of turn; only a session with an empty
// deferred queue may attempt the direct-write fast path, falling back
// to enqueueing whatever the socket didn't accept immediately. New
// bytes onto a non-empty queue are always enqueued first, then an
// opportunistic drain is attempted in case the socket has since become
// writable, rather than waiting for the next readiness iteration.
//
// It returns false when the payload could not be enqueued because
// doing so would exceed the configured output buffer limit, or when
// the opportunistic drain hits a hard write error, in either case
// requiring the caller to expire the session.
func WriteOut(w io.Writer, q *DeferredQueue, payload []byte) bool {
	if len(payload) == 0 {
		return true
	}
	if !q.Empty() {
		if !q.Enqueue(payload) {
			return false
		}
		return q.Drain(w) != DrainError
	}
	n, err := w.Write(payload)
	if err != nil {
		if isRetryable(err) {
			return q.Enqueue(payload)
		}
		// A hard write error on the direct path is reported the same
		// way as a full deferred-queue overflow: the caller closes the
		// session rather than trying to distinguish the two failure
		// reasons any further.
		return false
	}
	if n < len(payload) {
		return q.Enqueue(payload[n:])
	}
	return true
}
