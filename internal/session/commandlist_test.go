// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import "testing"

func TestCommandListAccumulatesInArrivalOrder(t *testing.T) {
	l := NewCommandList(1000)
	l.Begin(false)
	if l.Mode() != ListPlain {
		t.Fatalf("expected ListPlain, got %v", l.Mode())
	}
	for _, line := range []string{"A", "B", "C"} {
		if !l.Add(line) {
			t.Fatalf("Add(%q) failed unexpectedly", line)
		}
	}
	lines := l.End()
	want := []string{"A", "B", "C"}
	if len(lines) != len(want) {
		t.Fatalf("expected %v, got %v", want, lines)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("index %d: expected %q, got %q", i, want[i], lines[i])
		}
	}
	if l.Mode() != ListOff {
		t.Errorf("expected ListOff after End, got %v", l.Mode())
	}
}

func TestCommandListAckEachItem(t *testing.T) {
	l := NewCommandList(1000)
	l.Begin(true)
	if !l.AckEachItem() {
		t.Fatal("expected AckEachItem to be true after command_list_ok_begin")
	}
	l.End()
	l.Begin(false)
	if l.AckEachItem() {
		t.Fatal("expected AckEachItem to be false after command_list_begin")
	}
}

func TestCommandListSizeLimit(t *testing.T) {
	l := NewCommandList(5)
	l.Begin(false)
	if !l.Add("ab") { // 3 bytes accounted (len+1)
		t.Fatal("expected first short line to fit")
	}
	if l.Add("cdefgh") {
		t.Fatal("expected size-limit violation to fail Add")
	}
}

func TestCommandListSizeAccounting(t *testing.T) {
	l := NewCommandList(1000)
	l.Begin(false)
	l.Add("abc")
	if got, want := l.Size(), len("abc")+1; got != want {
		t.Errorf("Size() = %d, want %d", got, want)
	}
}
