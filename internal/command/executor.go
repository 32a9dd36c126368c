// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package command implements the command interpreter collaborator:
// the Executor interface the session manager dispatches lines to, a
// reference Default implementation sufficient to drive every
// session-manager code path, and the permission bitmask sessions
// carry but never interpret themselves.
package command

import "github.com/harmonyd/harmonyd/internal/protocol"

// Result codes follow MPD's command-handler convention: negative
// means close the session, zero means the caller should emit the
// terminating success marker, positive means the handler already
// wrote its own terminator.
const (
	ResultOK    = 0
	ResultClose = -1
	ResultKill  = -2
)

// SessionHandle is the narrow view of a session the command layer is
// allowed to touch: writing reply bytes, reading identity and
// permission, and entering idle mode. internal/session.Client
// satisfies this structurally; command never imports internal/session,
// keeping the dependency one-directional.
type SessionHandle interface {
	// Write appends raw reply bytes to the session's staging buffer.
	Write(p []byte)
	// WriteLine appends line followed by '\n'.
	WriteLine(line string)
	// Sequence returns the session's monotonic connection number.
	Sequence() uint64
	// UID returns the peer's user id and whether it was obtainable.
	UID() (uid uint32, ok bool)
	// Permission returns the session's current permission mask.
	Permission() Permission
	// SetPermission replaces the session's permission mask.
	SetPermission(Permission)
	// IdleWait enters idle mode subscribed to mask. It reports true if
	// flags already pending for mask meant delivery happened
	// synchronously, in which case the caller must not treat this as a
	// blocking wait.
	IdleWait(mask protocol.EventMask) bool
}

// Executor is the command interpreter collaborator: Process and
// ProcessList, both returning one of the Result codes above as a side
// effect of writing reply bytes through SessionHandle.
type Executor interface {
	Process(s SessionHandle, line string) int
	ProcessList(s SessionHandle, ackEachItem bool, lines []string) int
}
