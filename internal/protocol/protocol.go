// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import "fmt"

// Version is the protocol version advertised in the greeting line.
// Clients may use it to gate feature availability; the session
// manager itself never inspects it.
const Version = "0.24.0"

// Greeting is the line written synchronously to every newly accepted
// connection, before any staged or deferred output. It is the only
// write on the accept path that bypasses the staging/deferred
// machinery.
func Greeting() string {
	return fmt.Sprintf("OK MPD %s\n", Version)
}

// Control verbs intercepted by the session manager itself. Every
// other line is opaque to the manager and forwarded verbatim to the
// command executor collaborator.
const (
	VerbCommandListBegin   = "command_list_begin"
	VerbCommandListOKBegin = "command_list_ok_begin"
	VerbCommandListEnd     = "command_list_end"
	VerbNoIdle             = "noidle"
)

// Success is the terminating success marker appended after a verb (or
// a full command list) completes with no error.
const Success = "OK\n"

// ListSuccess is the per-item acknowledgment emitted after each
// command inside a command_list_ok_begin batch.
const ListSuccess = "list_OK\n"

// ChangedLine formats one idle notification line for the given
// subsystem name.
func ChangedLine(name string) string {
	return fmt.Sprintf("changed: %s\n", name)
}

// AckError formats a command-layer error reply in MPD's ACK wire
// format: an error code, a zero-based command-list index, the
// offending command name (blank when not applicable), and a
// human-readable message.
func AckError(code int, listIndex int, currentCommand, message string) string {
	return fmt.Sprintf("ACK [%d@%d] {%s} %s\n", code, listIndex, currentCommand, message)
}

// Error codes used by the reference command executor (internal/command).
// These mirror MPD's ack.h constants closely enough for a reference/test
// executor; the real command interpreter is free to define its own
// richer set.
const (
	ErrorUnknownCommand = 5
	ErrorArgument       = 2
)
