// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the daemon's standard CBOR encoding
// configuration.
//
// The wire protocol itself is line-oriented ASCII (internal/protocol);
// CBOR is used for the admin snapshot socket
// (internal/reactor/snapshot.go), a diagnostics channel separate from
// the client-facing listener, and for the session history log's
// on-disk segments (internal/history). This package provides the shared
// encoding and decoding modes so the daemon and harmonytop agree byte
// for byte. The encoder uses Core Deterministic Encoding (RFC 8949
// §4.2): sorted map keys, smallest integer encoding, no
// indefinite-length items. Same logical data always produces
// identical bytes.
//
// For buffer-oriented operations:
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For stream-oriented operations (the admin socket):
//
//	encoder := codec.NewEncoder(conn)
//	decoder := codec.NewDecoder(conn)
package codec
