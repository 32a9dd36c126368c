// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package monitor implements the bubbletea model behind harmonytop:
// a live table of harmonyd sessions polled from the admin snapshot
// socket.
package monitor

import (
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/harmonyd/harmonyd/internal/reactor"
	"github.com/harmonyd/harmonyd/lib/codec"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	staleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

var tableColumns = []table.Column{
	{Title: "SEQ", Width: 8},
	{Title: "FINGERPRINT", Width: 14},
	{Title: "IN-BUF", Width: 8},
	{Title: "OUT-BUF", Width: 8},
	{Title: "LIST", Width: 6},
	{Title: "L-SIZE", Width: 8},
	{Title: "SUBSCRIPTIONS", Width: 30},
	{Title: "IDLE-AGE", Width: 10},
}

func newSessionTable() table.Model {
	styles := table.DefaultStyles()
	styles.Header = styles.Header.Bold(true).Foreground(lipgloss.Color("212")).BorderBottom(true)
	styles.Selected = styles.Selected.Foreground(lipgloss.Color("229")).Background(lipgloss.Color("57"))
	t := table.New(
		table.WithColumns(tableColumns),
		table.WithFocused(true),
		table.WithHeight(20),
	)
	t.SetStyles(styles)
	return t
}

// tickMsg drives the polling cadence.
type tickMsg time.Time

// snapshotMsg carries a freshly polled admin snapshot, or the error
// from trying to fetch one.
type snapshotMsg struct {
	snapshot reactor.Snapshot
	err      error
}

// Model is the harmonytop bubbletea model.
type Model struct {
	socketPath string
	interval   time.Duration

	table     table.Model
	snapshot  reactor.Snapshot
	lastErr   error
	fetchedAt time.Time

	width, height int
}

// NewModel constructs a monitor that polls socketPath every interval.
func NewModel(socketPath string, interval time.Duration) Model {
	return Model{socketPath: socketPath, interval: interval, table: newSessionTable()}
}

// Init kicks off the first poll and schedules the tick loop.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.poll(), tick(m.interval))
}

func tick(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// poll dials the admin socket, sends the bare snapshot request, and
// decodes the response. Any failure (daemon down, socket missing) is
// surfaced in the model rather than crashing the program.
func (m Model) poll() tea.Cmd {
	socketPath := m.socketPath
	return func() tea.Msg {
		conn, err := net.DialTimeout("unix", socketPath, 2*time.Second)
		if err != nil {
			return snapshotMsg{err: fmt.Errorf("dial %s: %w", socketPath, err)}
		}
		defer conn.Close()
		conn.SetDeadline(time.Now().Add(2 * time.Second))

		if err := codec.NewEncoder(conn).Encode(struct{}{}); err != nil {
			return snapshotMsg{err: fmt.Errorf("send request: %w", err)}
		}
		var snap reactor.Snapshot
		if err := codec.NewDecoder(conn).Decode(&snap); err != nil {
			return snapshotMsg{err: fmt.Errorf("decode response: %w", err)}
		}
		return snapshotMsg{snapshot: snap}
	}
}

// Update handles bubbletea messages: resize, quit keys, tick-driven
// re-polls, and snapshot arrivals. Keys not claimed above (arrows,
// page up/down, home/end) fall through to the embedded table for
// scrolling and row selection.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		// Reserve rows for the two header lines and the footer.
		tableHeight := m.height - 5
		if tableHeight < 1 {
			tableHeight = 1
		}
		m.table.SetHeight(tableHeight)
		m.table.SetWidth(m.width)
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
		var cmd tea.Cmd
		m.table, cmd = m.table.Update(msg)
		return m, cmd
	case tickMsg:
		return m, tea.Batch(m.poll(), tick(m.interval))
	case snapshotMsg:
		if msg.err != nil {
			m.lastErr = msg.err
			return m, nil
		}
		m.lastErr = nil
		m.snapshot = msg.snapshot
		m.fetchedAt = time.Now()
		m.table.SetRows(sessionRows(m.snapshot.Sessions))
		return m, nil
	}
	return m, nil
}

// sessionRows sorts a snapshot's sessions by sequence number and
// converts each into a table.Row matching tableColumns' order.
func sessionRows(sessions []reactor.SessionSnapshot) []table.Row {
	sorted := append([]reactor.SessionSnapshot(nil), sessions...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Sequence < sorted[j].Sequence })

	rows := make([]table.Row, 0, len(sorted))
	for _, s := range sorted {
		subs := strings.Join(s.IdleSubscriptions, ",")
		if subs == "" {
			subs = "-"
		}
		idleAge := strconv.FormatFloat(s.LastActivitySecAgo, 'f', 1, 64) + "s"
		if s.IdleWaiting {
			idleAge += "*"
		}
		rows = append(rows, table.Row{
			strconv.FormatUint(s.Sequence, 10),
			s.Fingerprint,
			strconv.Itoa(s.InputOccupancy),
			strconv.Itoa(s.DeferredBytes),
			s.CommandListMode,
			strconv.Itoa(s.CommandListSize),
			subs,
			idleAge,
		})
	}
	return rows
}

// View renders the current snapshot as a bubbles/table.Model, framed
// by a header line and a footer showing the last poll's freshness or
// its error.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("harmonytop — %d/%d sessions", m.snapshot.LiveSessionCount, m.snapshot.MaxConnections)))
	b.WriteString("\n\n")

	if m.lastErr != nil {
		b.WriteString(errorStyle.Render(m.lastErr.Error()))
		b.WriteString("\n")
	}

	b.WriteString(m.table.View())

	b.WriteString("\n")
	if !m.fetchedAt.IsZero() {
		b.WriteString(dimStyle.Render(fmt.Sprintf("last updated %s ago", time.Since(m.fetchedAt).Round(time.Millisecond))))
	} else {
		b.WriteString(staleStyle.Render("waiting for first snapshot..."))
	}
	b.WriteString(dimStyle.Render("  (q to quit)"))
	return b.String()
}
