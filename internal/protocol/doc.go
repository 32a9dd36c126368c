// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package protocol defines the wire-level constants of the
// music-playback control protocol: the greeting format, the control
// verbs the session manager intercepts itself, the success and ACK
// reply formats, and the canonical idle event name registry. The
// command layer's result codes live in internal/command.
//
// This package holds data only. It has no dependency on session or
// reactor state and never performs I/O.
package protocol
