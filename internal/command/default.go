// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"strconv"
	"strings"
	"time"

	"github.com/harmonyd/harmonyd/internal/protocol"
)

// Default is a reference Executor sufficient to exercise every
// session-manager code path: it stands in for the real player-state
// command interpreter, which this package does not implement.
type Default struct {
	// started is the daemon's start time, used to fabricate a
	// plausible "uptime" field in the status reply.
	started time.Time
}

// NewDefault constructs a Default executor. started is used only to
// compute the status reply's uptime field.
func NewDefault(started time.Time) *Default {
	return &Default{started: started}
}

// Process dispatches a single opaque line.
func (d *Default) Process(s SessionHandle, line string) int {
	verb, rest, _ := strings.Cut(line, " ")
	switch verb {
	case "ping":
		return ResultOK
	case "status":
		d.writeStatus(s)
		return ResultOK
	case "currentsong":
		// No track is ever playing in this reference implementation;
		// an empty body plus the terminating OK is a valid reply.
		return ResultOK
	case "idle":
		return d.idle(s, rest)
	case "kill":
		return ResultKill
	case "close":
		return ResultClose
	default:
		s.WriteLine(strings.TrimSuffix(protocol.AckError(protocol.ErrorUnknownCommand, 0, verb, "unknown command"), "\n"))
		// The ACK line is itself the terminator: report a positive code
		// so the caller does not additionally emit "OK\n" after it.
		return 1
	}
}

// ProcessList runs every accumulated line through Process in order,
// emitting a list_OK line after each when ackEachItem is set. It stops
// at the first non-continue result, matching MPD's "prior successes
// are already flushed" semantics for its command-list loop.
func (d *Default) ProcessList(s SessionHandle, ackEachItem bool, lines []string) int {
	for _, line := range lines {
		code := d.Process(s, line)
		if code < 0 {
			return code
		}
		if ackEachItem {
			s.WriteLine(strings.TrimSuffix(protocol.ListSuccess, "\n"))
		}
	}
	return ResultOK
}

func (d *Default) idle(s SessionHandle, arg string) int {
	mask := protocol.ParseEventMask(arg)
	if mask == 0 {
		mask = protocol.AllEvents()
	}
	s.IdleWait(mask)
	// idle never writes a reply itself: delivery (synchronous or
	// deferred) is entirely the idle engine's responsibility. Report
	// a positive code so the caller does not additionally emit "OK\n"
	// here.
	return 1
}

func (d *Default) writeStatus(s SessionHandle) {
	uptime := strconv.Itoa(int(time.Since(d.started).Seconds()))
	s.WriteLine("volume: 0")
	s.WriteLine("state: stop")
	s.WriteLine("uptime: " + uptime)
	s.WriteLine("playlist: 0")
	s.WriteLine("playlistlength: 0")
}
