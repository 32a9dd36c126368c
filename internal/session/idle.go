// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import "github.com/harmonyd/harmonyd/internal/protocol"

// IdleState is the per-session idle subscription engine: a
// subscription mask chosen when the client enters idle mode, a
// pending-flags mask accumulated since subscription began, and a
// waiting flag that gates delivery.
//
// IdleState holds bit-tracking logic only; formatting and writing the
// "changed:" lines is the caller's job (see Client.deliverIdle), keeping
// this type trivially unit-testable in isolation.
type IdleState struct {
	waiting       bool
	subscriptions protocol.EventMask
	pending       protocol.EventMask
}

// Waiting reports whether the session is currently blocked awaiting
// an idle notification.
func (s *IdleState) Waiting() bool { return s.waiting }

// Subscriptions reports the mask most recently passed to Wait, for
// diagnostics (the admin snapshot protocol).
func (s *IdleState) Subscriptions() protocol.EventMask { return s.subscriptions }

// Wait enters idle mode with the given subscription mask. It reports
// true if flags already pending for this mask
// mean delivery should happen synchronously and immediately, rather
// than the caller returning to the readiness loop to wait for a
// future Raise.
func (s *IdleState) Wait(mask protocol.EventMask) (deliverNow bool) {
	s.subscriptions = mask
	s.waiting = true
	return s.pending&mask != 0
}

// Raise ORs mask into the pending flags, called for every session by
// external subsystems. It reports true when the
// session is currently idle-waiting and the newly-pending flags
// intersect its subscriptions, meaning the caller should deliver and
// flush now.
func (s *IdleState) Raise(mask protocol.EventMask) (deliverNow bool) {
	s.pending |= mask
	return s.waiting && s.pending&s.subscriptions != 0
}

// Deliver returns the subscribed subsystem names that have pending
// flags, in canonical order, and clears pending and waiting. The
// caller is responsible for formatting and
// writing the corresponding "changed:" lines plus the terminating
// success marker, and for updating the session's last-activity
// timestamp.
func (s *IdleState) Deliver() []string {
	names := (s.pending & s.subscriptions).Names()
	s.pending = 0
	s.waiting = false
	return names
}

// NoIdle handles the literal "noidle" line: it reports whether the
// session was waiting (in which case the caller must emit the success
// terminator and flush) and clears the wait flag unconditionally. When
// the session was not waiting, this is a silent no-op.
func (s *IdleState) NoIdle() (wasWaiting bool) {
	wasWaiting = s.waiting
	s.waiting = false
	return wasWaiting
}
