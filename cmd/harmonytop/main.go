// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Harmonytop is a live terminal monitor for a running harmonyd
// instance. It polls the admin snapshot socket on an interval and
// renders a table of live sessions: buffer occupancy, command-list
// state, and idle subscriptions.
package main

import (
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"github.com/harmonyd/harmonyd/cmd/harmonytop/internal/monitor"
)

func main() {
	var (
		socketPath string
		interval   time.Duration
	)
	pflag.StringVar(&socketPath, "socket", "/run/harmonyd/admin.sock", "path to the harmonyd admin snapshot socket")
	pflag.DurationVar(&interval, "interval", time.Second, "how often to poll the admin socket")
	pflag.Parse()

	model := monitor.NewModel(socketPath, interval)
	program := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
