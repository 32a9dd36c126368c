// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"bytes"
	"strings"
	"testing"
)

func TestInputBufferNextLineStripsCRLF(t *testing.T) {
	var b InputBuffer
	b.Read(strings.NewReader("ping\r\ncurrentsong\n"))

	line, ok := b.NextLine()
	if !ok || string(line) != "ping" {
		t.Fatalf("expected %q, got %q ok=%v", "ping", line, ok)
	}
	line, ok = b.NextLine()
	if !ok || string(line) != "currentsong" {
		t.Fatalf("expected %q, got %q ok=%v", "currentsong", line, ok)
	}
	if _, ok := b.NextLine(); ok {
		t.Fatal("expected no further lines")
	}
}

func TestInputBufferReframeNoopWhenNotFull(t *testing.T) {
	var b InputBuffer
	line := strings.Repeat("a", 100) + "\n"
	b.Read(strings.NewReader(line))
	if _, ok := b.NextLine(); !ok {
		t.Fatal("expected a line")
	}
	if b.Consumed() != len(line) || b.Filled() != len(line) {
		t.Fatalf("unexpected cursors: consumed=%d filled=%d", b.Consumed(), b.Filled())
	}

	if overflow := b.Reframe(); overflow {
		t.Fatal("did not expect overflow")
	}
	if b.Consumed() != len(line) || b.Filled() != len(line) {
		t.Errorf("expected reframe to be a no-op when buffer isn't full, consumed=%d filled=%d", b.Consumed(), b.Filled())
	}
}

func TestInputBufferOverflow(t *testing.T) {
	var b InputBuffer
	full := bytes.Repeat([]byte("A"), InputCapacity)
	outcome := b.Read(bytes.NewReader(full))
	if outcome.Close {
		t.Fatal("a full buffer with no terminator should not itself trigger CLOSE from Read")
	}
	if _, ok := b.NextLine(); ok {
		t.Fatal("expected no complete line")
	}
	if overflow := b.Reframe(); !overflow {
		t.Fatal("expected overflow: buffer is full with no terminator anywhere")
	}
}

func TestInputBufferCompactsPartialTail(t *testing.T) {
	var b InputBuffer
	// capacity-11 x's plus the '\n' leave exactly 10 bytes of room.
	first := strings.Repeat("x", InputCapacity-11) + "\n"
	b.Read(strings.NewReader(first))
	if _, ok := b.NextLine(); !ok {
		t.Fatal("expected a line")
	}
	// Fill the remaining space so the buffer is full but has an
	// already-consumed prefix that should be compacted away.
	rest := strings.Repeat("y", 10)
	b.Read(strings.NewReader(rest))
	if b.Filled() != InputCapacity {
		t.Fatalf("expected full buffer, filled=%d", b.Filled())
	}
	if overflow := b.Reframe(); overflow {
		t.Fatal("did not expect overflow: prefix was already consumed")
	}
	if b.Consumed() != 0 {
		t.Errorf("expected compaction to reset consumed to 0, got %d", b.Consumed())
	}
	if b.Filled() != 10 {
		t.Errorf("expected filled to shrink to unconsumed tail length 10, got %d", b.Filled())
	}
}

func TestInputBufferReadEOFClosess(t *testing.T) {
	var b InputBuffer
	outcome := b.Read(strings.NewReader(""))
	if !outcome.Close {
		t.Error("expected EOF-like zero read to report Close")
	}
}
