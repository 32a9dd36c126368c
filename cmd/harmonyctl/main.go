// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Harmonyctl is a small interactive client for the harmonyd protocol.
// It puts the local terminal into raw mode, forwards each line typed
// verbatim to the daemon, and prints replies as they arrive. It tracks
// whether a command-list is open only for prompt cosmetics; every
// actual protocol rule is enforced server-side.
package main

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/term"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var addr string
	pflag.StringVar(&addr, "host", "127.0.0.1:6600", "harmonyd address to connect to")
	pflag.Parse()

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", addr, err)
	}
	defer conn.Close()

	stdinFd := int(os.Stdin.Fd())
	var oldState *term.State
	if term.IsTerminal(stdinFd) {
		oldState, err = term.MakeRaw(stdinFd)
		if err != nil {
			return fmt.Errorf("set terminal raw mode: %w", err)
		}
		defer term.Restore(stdinFd, oldState)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		if oldState != nil {
			term.Restore(stdinFd, oldState)
		}
		conn.Close()
		os.Exit(0)
	}()

	go printReplies(conn)

	return readAndForward(conn, os.Stdin)
}

// printReplies copies every byte the daemon sends back to the local
// terminal, translating bare '\n' into "\r\n" since the terminal is in
// raw mode.
func printReplies(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 8192), 1<<20)
	for scanner.Scan() {
		fmt.Fprintf(os.Stdout, "%s\r\n", scanner.Text())
	}
}

// readAndForward reads lines from in and writes them verbatim to the
// connection, tracking command-list mode purely to vary the prompt.
func readAndForward(conn net.Conn, in io.Reader) error {
	reader := bufio.NewReader(in)
	inList := false
	prompt(inList)

	var line strings.Builder
	for {
		b, err := reader.ReadByte()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}

		switch b {
		case '\r', '\n':
			fmt.Fprint(os.Stdout, "\r\n")
			text := line.String()
			line.Reset()
			if _, err := fmt.Fprintf(conn, "%s\n", text); err != nil {
				return err
			}
			switch text {
			case "command_list_begin", "command_list_ok_begin":
				inList = true
			case "command_list_end":
				inList = false
			}
			prompt(inList)
		case 0x7f, 0x08: // backspace/delete
			if line.Len() > 0 {
				s := line.String()
				line.Reset()
				line.WriteString(s[:len(s)-1])
				fmt.Fprint(os.Stdout, "\b \b")
			}
		case 0x03: // Ctrl-C
			return nil
		default:
			line.WriteByte(b)
			os.Stdout.Write([]byte{b})
		}
	}
}

func prompt(inList bool) {
	if inList {
		fmt.Fprint(os.Stdout, "... ")
		return
	}
	fmt.Fprint(os.Stdout, "harmonyctl> ")
}
