// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package reactor

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/harmonyd/harmonyd/internal/command"
	"github.com/harmonyd/harmonyd/internal/protocol"
	"github.com/harmonyd/harmonyd/lib/clock"
)

func newTestManager(t *testing.T, clk clock.Clock, opts Options) (*Manager, func()) {
	t.Helper()
	if opts.ListenAddress == "" {
		opts.ListenAddress = "127.0.0.1:0"
	}
	if opts.ConnectionTimeout == 0 {
		opts.ConnectionTimeout = time.Minute
	}
	if opts.MaxConnections == 0 {
		opts.MaxConnections = 10
	}
	if opts.CommandListLimit == 0 {
		opts.CommandListLimit = 1 << 20
	}
	if opts.OutputBufferLimit == 0 {
		opts.OutputBufferLimit = 1 << 20
	}

	m, err := New(opts, command.NewDefault(clk.Now()), nil, clk, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	cleanup := func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("reactor did not shut down within 2s")
		}
	}
	return m, cleanup
}

func waitForLine(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	line, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("ReadString: %v", err)
	}
	return line
}

func TestGreetingOnAccept(t *testing.T) {
	m, cleanup := newTestManager(t, clock.Real(), Options{})
	defer cleanup()

	conn, err := net.Dial("tcp", m.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line := waitForLine(t, bufio.NewReader(conn))
	if !strings.HasPrefix(line, "OK MPD ") {
		t.Errorf("expected greeting prefix, got %q", line)
	}
}

func TestOverLongLineCloses(t *testing.T) {
	m, cleanup := newTestManager(t, clock.Real(), Options{})
	defer cleanup()

	conn, err := net.Dial("tcp", m.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	r := bufio.NewReader(conn)
	waitForLine(t, r) // greeting

	overlong := strings.Repeat("A", 5000)
	conn.Write([]byte(overlong))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 16)
	_, err = conn.Read(buf)
	if err == nil {
		t.Fatal("expected the connection to be closed on buffer overflow")
	}
}

func TestCommandListBatchingEndToEnd(t *testing.T) {
	m, cleanup := newTestManager(t, clock.Real(), Options{})
	defer cleanup()

	conn, err := net.Dial("tcp", m.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	r := bufio.NewReader(conn)
	waitForLine(t, r) // greeting

	conn.Write([]byte("command_list_begin\nping\nping\ncommand_list_end\n"))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line := waitForLine(t, r)
	if line != "OK\n" {
		t.Errorf("expected exactly one trailing OK, got %q", line)
	}
}

func TestIdleSubscribeAndWakeEndToEnd(t *testing.T) {
	m, cleanup := newTestManager(t, clock.Real(), Options{})
	defer cleanup()

	conn, err := net.Dial("tcp", m.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	r := bufio.NewReader(conn)
	waitForLine(t, r) // greeting

	conn.Write([]byte("idle player\n"))
	time.Sleep(50 * time.Millisecond) // give the reactor a moment to register the wait

	playerBit, ok := protocol.EventBit("player")
	if !ok {
		t.Fatal("player is not a registered event")
	}
	m.Raise(playerBit)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	changed := waitForLine(t, r)
	ok2 := waitForLine(t, r)
	if changed != "changed: player\n" || ok2 != "OK\n" {
		t.Errorf("expected changed:player then OK, got %q %q", changed, ok2)
	}
}

func TestConnectionCapRejectsExtraConnections(t *testing.T) {
	m, cleanup := newTestManager(t, clock.Real(), Options{MaxConnections: 2})
	defer cleanup()

	var conns []net.Conn
	for i := 0; i < 2; i++ {
		conn, err := net.Dial("tcp", m.Addr().String())
		if err != nil {
			t.Fatalf("Dial %d: %v", i, err)
		}
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		waitForLine(t, bufio.NewReader(conn))
		conns = append(conns, conn)
	}
	defer func() {
		for _, c := range conns {
			c.Close()
		}
	}()

	third, err := net.Dial("tcp", m.Addr().String())
	if err != nil {
		t.Fatalf("Dial third: %v", err)
	}
	defer third.Close()

	third.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 16)
	n, err := third.Read(buf)
	if err == nil {
		t.Fatalf("expected the third connection to be closed with no greeting, got %d bytes %q", n, buf[:n])
	}
}

func TestExpirySweepTimeoutExemption(t *testing.T) {
	clk := clock.Fake(time.Unix(0, 0))
	m, cleanup := newTestManager(t, clk, Options{ConnectionTimeout: 10 * time.Second})
	defer cleanup()

	idleConn, err := net.Dial("tcp", m.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer idleConn.Close()
	idleConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	waitForLine(t, bufio.NewReader(idleConn))
	idleConn.Write([]byte("idle player\n"))

	normalConn, err := net.Dial("tcp", m.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer normalConn.Close()
	normalConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	waitForLine(t, bufio.NewReader(normalConn))

	time.Sleep(50 * time.Millisecond) // let both lines land before advancing time
	clk.Advance(time.Hour)
	m.ExpirySweep()
	time.Sleep(50 * time.Millisecond)

	if got := m.LiveSessions(); got != 1 {
		t.Errorf("expected exactly the idle-waiting session to survive the sweep, got %d live", got)
	}
}
