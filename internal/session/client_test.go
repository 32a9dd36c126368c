// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/harmonyd/harmonyd/internal/command"
	"github.com/harmonyd/harmonyd/internal/protocol"
)

func newTestClient() (*Client, *bytes.Buffer) {
	conn := &bytes.Buffer{}
	c := New(conn, 1, 0, false, command.DefaultPermission(), "", nil, 1<<20, 1<<20, time.Unix(0, 0))
	return c, conn
}

func TestClientPingProducesOnlyOK(t *testing.T) {
	c, conn := newTestClient()
	ex := command.NewDefault(time.Now())

	result := c.HandleLine(ex, "ping", time.Unix(1, 0))
	if result != Continue {
		t.Fatalf("expected Continue, got %v", result)
	}
	if got := conn.String(); got != "OK\n" {
		t.Errorf("expected %q, got %q", "OK\n", got)
	}
	if c.LastActivity() != time.Unix(1, 0) {
		t.Error("expected last-activity timestamp updated")
	}
}

func TestClientUnknownCommandRepliesAckOnly(t *testing.T) {
	c, conn := newTestClient()
	ex := command.NewDefault(time.Now())

	result := c.HandleLine(ex, "frobnicate", time.Unix(1, 0))
	if result != Continue {
		t.Fatalf("expected Continue, got %v", result)
	}
	if got := conn.String(); !strings.Contains(got, "ACK") || strings.Contains(got, "OK\n") {
		t.Errorf("expected an ACK error with no trailing OK, got %q", got)
	}
}

func TestClientCommandListBatchingPlain(t *testing.T) {
	c, conn := newTestClient()
	ex := command.NewDefault(time.Now())

	lines := []string{"command_list_begin", "ping", "ping", "command_list_end"}
	var last Result
	for _, l := range lines {
		last = c.HandleLine(ex, l, time.Unix(1, 0))
	}
	if last != Continue {
		t.Fatalf("expected Continue, got %v", last)
	}
	if got := conn.String(); got != "OK\n" {
		t.Errorf("expected exactly one trailing OK, got %q", got)
	}
}

func TestClientCommandListBatchingAck(t *testing.T) {
	c, conn := newTestClient()
	ex := command.NewDefault(time.Now())

	lines := []string{"command_list_ok_begin", "ping", "ping", "command_list_end"}
	for _, l := range lines {
		c.HandleLine(ex, l, time.Unix(1, 0))
	}
	if got, want := conn.String(), "list_OK\nlist_OK\nOK\n"; got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestClientCommandListSizeLimitCloses(t *testing.T) {
	c, conn := newTestClient()
	c.list = NewCommandList(4)
	ex := command.NewDefault(time.Now())

	c.HandleLine(ex, "command_list_begin", time.Unix(1, 0))
	result := c.HandleLine(ex, "this line is way too long", time.Unix(1, 0))
	if result != Close {
		t.Fatalf("expected Close on command-list overflow, got %v", result)
	}
	if !c.Expired() {
		t.Error("expected session marked expired")
	}
	_ = conn
}

func TestClientIdleDeliversSynchronouslyWhenAlreadyPending(t *testing.T) {
	c, _ := newTestClient()
	c.Raise(mustBit(t, "player"))

	conn := c.conn.(*bytes.Buffer)
	ex := command.NewDefault(time.Now())
	result := c.HandleLine(ex, "idle player", time.Unix(1, 0))
	if result != Continue {
		t.Fatalf("expected Continue, got %v", result)
	}
	if got, want := conn.String(), "changed: player\nOK\n"; got != want {
		t.Errorf("expected synchronous delivery %q, got %q", want, got)
	}
	if c.IdleWaiting() {
		t.Error("expected idle-waiting cleared after synchronous delivery")
	}
}

func TestClientIdleDeliversAsynchronouslyOnLaterRaise(t *testing.T) {
	c, conn := newTestClient()
	ex := command.NewDefault(time.Now())

	result := c.HandleLine(ex, "idle player", time.Unix(1, 0))
	if result != Continue {
		t.Fatalf("expected Continue, got %v", result)
	}
	if got := conn.String(); got != "" {
		t.Fatalf("expected no output before a raise, got %q", got)
	}
	if !c.IdleWaiting() {
		t.Fatal("expected the session to be idle-waiting")
	}

	c.Raise(mustBit(t, "player"))
	if got, want := conn.String(), "changed: player\nOK\n"; got != want {
		t.Errorf("expected asynchronous delivery %q, got %q", want, got)
	}
}

func TestClientNoIdleWithoutPriorRaise(t *testing.T) {
	c, conn := newTestClient()
	ex := command.NewDefault(time.Now())

	c.HandleLine(ex, "idle player", time.Unix(1, 0))
	result := c.HandleLine(ex, "noidle", time.Unix(2, 0))
	if result != Continue {
		t.Fatalf("expected Continue, got %v", result)
	}
	if got, want := conn.String(), "OK\n"; got != want {
		t.Errorf("expected exactly %q, got %q", want, got)
	}
}

func TestClientProtocolViolationWhileIdleCloses(t *testing.T) {
	c, _ := newTestClient()
	ex := command.NewDefault(time.Now())

	c.HandleLine(ex, "idle player", time.Unix(1, 0))
	result := c.HandleLine(ex, "status", time.Unix(2, 0))
	if result != Close {
		t.Fatalf("expected Close for a non-noidle line while idle-waiting, got %v", result)
	}
	if !c.Expired() {
		t.Error("expected session marked expired")
	}
}

func TestClientKillPropagates(t *testing.T) {
	c, _ := newTestClient()
	ex := command.NewDefault(time.Now())

	result := c.HandleLine(ex, "kill", time.Unix(1, 0))
	if result != Kill {
		t.Fatalf("expected Kill, got %v", result)
	}
	if c.Expired() {
		t.Error("kill should not itself mark this session expired")
	}
}

func mustBit(t *testing.T, name string) protocol.EventMask {
	t.Helper()
	bit, ok := protocol.EventBit(name)
	if !ok {
		t.Fatalf("unknown event name %q", name)
	}
	return bit
}
