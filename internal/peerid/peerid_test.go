// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package peerid

import "testing"

func TestComputeIsDeterministic(t *testing.T) {
	a := Compute("192.0.2.1:5555", 1000, true)
	b := Compute("192.0.2.1:5555", 1000, true)
	if a != b {
		t.Errorf("expected deterministic fingerprint, got %q and %q", a, b)
	}
}

func TestComputeDistinguishesInputs(t *testing.T) {
	base := Compute("192.0.2.1:5555", 1000, true)

	cases := []Fingerprint{
		Compute("192.0.2.2:5555", 1000, true),
		Compute("192.0.2.1:5556", 1000, true),
		Compute("192.0.2.1:5555", 1001, true),
		Compute("192.0.2.1:5555", 1000, false),
	}
	for _, c := range cases {
		if c == base {
			t.Errorf("expected distinct fingerprint, got collision with base %q", base)
		}
	}
}

func TestComputeLength(t *testing.T) {
	fp := Compute("[::1]:1", 0, false)
	if len(fp) != 12 {
		t.Errorf("expected a 12-hex-character fingerprint, got %q (len %d)", fp, len(fp))
	}
}
