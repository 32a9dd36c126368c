// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"testing"

	"github.com/harmonyd/harmonyd/internal/protocol"
)

func TestIdleWaitBlocksWithNoPendingFlags(t *testing.T) {
	var s IdleState
	if deliverNow := s.Wait(0b011); deliverNow {
		t.Fatal("expected blocked wait with no pending flags")
	}
	if !s.Waiting() {
		t.Fatal("expected waiting=true")
	}
}

func TestIdleWaitDeliversImmediatelyOnAlreadyPending(t *testing.T) {
	var s IdleState
	s.Raise(0b001)
	if deliverNow := s.Wait(0b011); !deliverNow {
		t.Fatal("expected synchronous delivery when raise precedes wait")
	}
}

func TestIdleRaiseAfterWaitTriggersDelivery(t *testing.T) {
	var s IdleState
	s.Wait(0b010)
	if deliverNow := s.Raise(0b001); deliverNow {
		t.Fatal("did not expect delivery: raised bit is not subscribed")
	}
	if deliverNow := s.Raise(0b010); !deliverNow {
		t.Fatal("expected delivery once a subscribed bit is raised")
	}
}

func TestIdleDeliverClearsStateAndReturnsCanonicalOrder(t *testing.T) {
	var s IdleState
	playerBit, _ := protocol.EventBit("player")
	mixerBit, _ := protocol.EventBit("mixer")
	s.Wait(playerBit | mixerBit)
	s.Raise(mixerBit | playerBit)

	names := s.Deliver()
	if len(names) != 2 || names[0] != "player" || names[1] != "mixer" {
		t.Fatalf("expected canonical order [player mixer], got %v", names)
	}
	if s.Waiting() {
		t.Error("expected waiting cleared after Deliver")
	}
}

func TestIdleNoIdle(t *testing.T) {
	var s IdleState
	if wasWaiting := s.NoIdle(); wasWaiting {
		t.Fatal("expected NoIdle on a non-waiting session to report false")
	}
	s.Wait(0b1)
	if wasWaiting := s.NoIdle(); !wasWaiting {
		t.Fatal("expected NoIdle on a waiting session to report true")
	}
	if s.Waiting() {
		t.Error("expected waiting cleared by NoIdle")
	}
}
