// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package peerid computes short, non-reversible fingerprints for
// remote peers so the reactor can correlate log lines for one client
// across its lifetime without ever writing a raw IP address or
// username to a log.
package peerid

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// domainKey is an ASCII domain-separation string, zero-padded to the
// 32-byte key BLAKE3's keyed mode requires.
var domainKey = padKey("harmonyd.peerid.v1")

func padKey(s string) [32]byte {
	var k [32]byte
	copy(k[:], s)
	return k
}

// Fingerprint is a 12-hex-character identifier derived from a peer's
// remote address and uid. Two connections from the same address and
// uid produce the same fingerprint; the daemon's actual uid/address
// pair is not recoverable from it.
type Fingerprint string

// Compute derives a Fingerprint from remoteAddr and an optional uid
// (uidOK false for "unknown").
func Compute(remoteAddr string, uid uint32, uidOK bool) Fingerprint {
	h, err := blake3.NewKeyed(domainKey[:])
	if err != nil {
		// NewKeyed only fails on a wrong-size key, which padKey never
		// produces.
		panic(err)
	}
	h.Write([]byte(remoteAddr))
	var uidBytes [5]byte
	binary.BigEndian.PutUint32(uidBytes[:4], uid)
	if uidOK {
		uidBytes[4] = 1
	}
	h.Write(uidBytes[:])
	sum := h.Sum(nil)
	return Fingerprint(hex.EncodeToString(sum[:6]))
}

func (f Fingerprint) String() string { return string(f) }
