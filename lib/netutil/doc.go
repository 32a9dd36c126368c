// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil provides network I/O helpers for the daemon's
// reactor.
//
// [IsExpectedCloseError] classifies errors that occur during normal
// connection teardown (EOF, ECONNRESET, EPIPE, net.ErrClosed) so
// callers can distinguish a peer hanging up from a genuine I/O fault
// worth logging as an error.
package netutil
