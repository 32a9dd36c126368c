// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import "github.com/harmonyd/harmonyd/internal/command"

// Result is the disposition returned by the command executor and
// propagated up through the session's line dispatch.
type Result int

const (
	// Continue means the session stays open and normal processing
	// resumes on the next line.
	Continue Result = iota
	// Close means this session should be dropped: mark it expired and
	// let the next sweep detach it.
	Close
	// Kill means the entire reactor should shut down, surfaced
	// without further mutation of any other session.
	Kill
)

// resultFromCode maps a command executor's numeric return convention
// onto a Result plus whether a success marker should be emitted:
// negative (or the expired marker) closes the session, zero emits the
// terminating success marker, positive means the executor already
// wrote its own reply. command.ResultKill additionally tears down the
// whole reactor rather than just this session.
func resultFromCode(code int) (result Result, emitSuccess bool) {
	switch {
	case code == command.ResultKill:
		return Kill, false
	case code < 0:
		return Close, false
	case code == 0:
		return Continue, true
	default:
		return Continue, false
	}
}
