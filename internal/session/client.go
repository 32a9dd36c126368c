// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"io"
	"time"

	"github.com/harmonyd/harmonyd/internal/command"
	"github.com/harmonyd/harmonyd/internal/history"
	"github.com/harmonyd/harmonyd/internal/peerid"
	"github.com/harmonyd/harmonyd/internal/protocol"
)

// Conn is the narrow socket interface a Client needs: non-blocking
// reads and writes. internal/reactor supplies the concrete
// implementation (a net.Conn placed into non-blocking mode at accept
// time).
type Conn interface {
	io.Reader
	io.Writer
}

// Client is the aggregate per-connection session state: a deferred
// output queue, an input buffer, a small outbound staging buffer, a
// command-list accumulator, an idle engine, identity, timing, and
// permission. It also carries fingerprint and history, used for
// diagnostics and the activity log rather than protocol dispatch.
type Client struct {
	conn Conn

	sequence    uint64
	uid         uint32
	uidOK       bool
	permission  command.Permission
	fingerprint peerid.Fingerprint
	history     *history.Log

	expired      bool
	lastActivity time.Time

	input   InputBuffer
	staging Staging
	out     *DeferredQueue
	list    *CommandList
	idle    IdleState
}

// New constructs a session for a freshly accepted connection: sequence
// number, uid (if known), and default permission are assigned by the
// caller; commandListLimit and outputBufferLimit come from
// configuration.
func New(conn Conn, sequence uint64, uid uint32, uidOK bool, perm command.Permission, fp peerid.Fingerprint, log *history.Log, commandListLimit, outputBufferLimit int, now time.Time) *Client {
	return &Client{
		conn:         conn,
		sequence:     sequence,
		uid:          uid,
		uidOK:        uidOK,
		permission:   perm,
		fingerprint:  fp,
		history:      log,
		lastActivity: now,
		out:          NewDeferredQueue(outputBufferLimit),
		list:         NewCommandList(commandListLimit),
	}
}

// Sequence, UID, Permission, SetPermission, and Fingerprint implement
// the command executor's client-identity accessor surface, plus the
// fingerprint accessor used for logging and diagnostics.
func (c *Client) Sequence() uint64                       { return c.sequence }
func (c *Client) UID() (uid uint32, ok bool)              { return c.uid, c.uidOK }
func (c *Client) Permission() command.Permission          { return c.permission }
func (c *Client) SetPermission(p command.Permission)      { c.permission = p }
func (c *Client) Fingerprint() peerid.Fingerprint         { return c.fingerprint }
func (c *Client) LastActivity() time.Time                 { return c.lastActivity }
func (c *Client) IdleWaiting() bool                       { return c.idle.Waiting() }
func (c *Client) DeferredBytes() int                      { return c.out.Bytes() }
func (c *Client) CommandListSize() int                    { return c.list.Size() }
func (c *Client) CommandListMode() ListMode               { return c.list.Mode() }
func (c *Client) IdleSubscriptions() protocol.EventMask   { return c.idle.Subscriptions() }
func (c *Client) InputOccupancy() int                     { return c.input.Filled() - c.input.Consumed() }

// Expired reports whether this session has been marked for removal.
// An expired session performs no further I/O; the reactor's sweep
// detaches it.
func (c *Client) Expired() bool { return c.expired }

// Expire marks the session for removal on the next sweep. Idempotent.
func (c *Client) Expire() { c.expired = true }

// Write appends raw bytes to the staging buffer, implementing
// command.SessionHandle. A write that cannot be enqueued (deferred
// queue over the output-buffer limit) marks the session expired; the
// command layer never needs to check for this itself.
func (c *Client) Write(p []byte) {
	if c.expired {
		return
	}
	if !c.staging.Append(c.conn, c.out, p) {
		c.expired = true
	}
}

// WriteLine appends line followed by '\n'.
func (c *Client) WriteLine(line string) {
	c.Write(append([]byte(line), '\n'))
}

// IdleWait implements command.SessionHandle's idle-wait entry point.
// It reports whether flags already pending at call time triggered
// synchronous delivery.
func (c *Client) IdleWait(mask protocol.EventMask) bool {
	if c.idle.Wait(mask) {
		c.deliverIdle()
		return true
	}
	return false
}

// Raise ORs mask into this session's pending idle flags, called by
// the reactor for every session. If the session is idle-waiting and
// the new flags intersect its subscriptions, this delivers and
// flushes immediately.
func (c *Client) Raise(mask protocol.EventMask) {
	if c.idle.Raise(mask) {
		c.deliverIdle()
		if c.history != nil {
			c.history.Record(c.sequence, c.fingerprint, history.IdleWoken, "")
		}
	}
}

// deliverIdle emits one "changed:" line per pending subscribed
// subsystem plus the terminating success marker, then flushes. It
// does not update lastActivity itself; callers
// touch the session's activity clock with the current reactor time.
func (c *Client) deliverIdle() {
	for _, name := range c.idle.Deliver() {
		c.Write([]byte(protocol.ChangedLine(name)))
	}
	c.Write([]byte(protocol.Success))
	c.flush()
}

// Read pulls new bytes from the socket into the input buffer. The
// caller should follow a successful Read with repeated
// NextLine/HandleLine calls, then Reframe.
func (c *Client) Read() ReadOutcome {
	return c.input.Read(c.conn)
}

// NextLine and Reframe expose the input buffer's framing surface
// directly; the reactor drives the read-dispatch loop.
func (c *Client) NextLine() (line []byte, ok bool) { return c.input.NextLine() }
func (c *Client) Reframe() (overflow bool)         { return c.input.Reframe() }

// Drain attempts to empty the deferred queue onto the socket. The
// reactor calls this when the session's descriptor is writable.
func (c *Client) Drain() DrainResult { return c.out.Drain(c.conn) }

// DeferredEmpty reports whether the deferred queue is empty, gating
// readiness-set membership in the reactor's readable/writable
// recomputation.
func (c *Client) DeferredEmpty() bool { return c.out.Empty() }

// touch updates the last-activity timestamp.
func (c *Client) touch(now time.Time) { c.lastActivity = now }

// Touch updates the last-activity timestamp from outside the dispatch
// path: the reactor calls this after any successful socket read (even
// a partial one yielding no complete line) and after every deferred-
// queue drain, matching MPD's unconditional lastTime update in those
// same two places.
func (c *Client) Touch(now time.Time) { c.touch(now) }

// flush hands any staged bytes to write_out, marking the session
// expired on failure. Returns false when the session became expired.
func (c *Client) flush() bool {
	if !c.staging.Flush(c.conn, c.out) {
		c.expired = true
		return false
	}
	return true
}

func (c *Client) appendLine(line string) bool {
	c.Write([]byte(line))
	return !c.expired
}

// HandleLine dispatches one input line, evaluated against the three
// orthogonal modes (idle-waiting, list-accumulating, normal). now is
// used to update the session's
// last-activity timestamp on every code path that doesn't already
// leave the session expired.
func (c *Client) HandleLine(ex command.Executor, line string, now time.Time) Result {
	// "noidle" is handled before any mode check: outside idle-waiting
	// mode it is a silent no-op, matching MPD's client.c, which returns
	// 0 with no output rather than dispatching it as an unknown verb.
	if line == protocol.VerbNoIdle {
		wasWaiting := c.idle.NoIdle()
		if !wasWaiting {
			c.touch(now)
			return Continue
		}
		if !c.appendLine(protocol.Success) {
			return Close
		}
		if !c.flush() {
			return Close
		}
		c.touch(now)
		return Continue
	}

	// Idle-waiting mode accepts only "noidle" (handled above); anything
	// else is a protocol violation.
	if c.idle.Waiting() {
		c.expired = true
		return Close
	}

	// List-accumulating mode.
	if c.list.Mode() != ListOff {
		if line == protocol.VerbCommandListEnd {
			ackEachItem := c.list.AckEachItem()
			lines := c.list.End()
			code := ex.ProcessList(c, ackEachItem, lines)
			return c.finishDispatch(code, now)
		}
		if !c.list.Add(line) {
			c.expired = true
			return Close
		}
		return Continue
	}

	// Enter list-accumulating mode.
	switch line {
	case protocol.VerbCommandListBegin:
		c.list.Begin(false)
		return Continue
	case protocol.VerbCommandListOKBegin:
		c.list.Begin(true)
		return Continue
	}

	// Normal dispatch.
	code := ex.Process(c, line)
	return c.finishDispatch(code, now)
}

// finishDispatch interprets a command-layer result code, emits the
// success marker when required, flushes, and updates activity timing.
func (c *Client) finishDispatch(code int, now time.Time) Result {
	result, emitSuccess := resultFromCode(code)
	switch result {
	case Close:
		c.expired = true
		return Close
	case Kill:
		return Kill
	}
	if emitSuccess {
		if !c.appendLine(protocol.Success) {
			return Close
		}
	}
	if !c.flush() {
		return Close
	}
	c.touch(now)
	return Continue
}
