package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	colorPrimary   = lipgloss.Color("#7C3AED")
	colorSecondary = lipgloss.Color("#06B6D4")
	colorText      = lipgloss.Color("#E5E7EB")
	colorTextMuted = lipgloss.Color("#9CA3AF")
	colorBorder    = lipgloss.Color("#374151")

	titleStyle = lipgloss.NewStyle().
			Foreground(colorPrimary).
			Bold(true)

	headerStyle = lipgloss.NewStyle().
			Foreground(colorSecondary).
			Bold(true)

	textStyle = lipgloss.NewStyle().
			Foreground(colorText)

	mutedStyle = lipgloss.NewStyle().
			Foreground(colorTextMuted)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)
)

// View renders the dashboard.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("go-latency-collector"))
	b.WriteString(mutedStyle.Render(fmt.Sprintf("  up %s  events %d  rec/s %.0f (60s %.0f)  (q to quit)",
		m.Elapsed().Truncate(1e9), len(m.rows), m.rates.Rate1s, m.rates.Rate60s)))
	b.WriteString("\n")
	b.WriteString(mutedStyle.Render(fmt.Sprintf("tcp %s  udp %s  metrics http://%s/metrics",
		m.tcpAddr, m.udpAddr, m.metricsAddr)))
	b.WriteString("\n\n")

	b.WriteString(panelStyle.Render(m.renderTable()))
	b.WriteString("\n")

	return b.String()
}

// renderTable renders one row per event: sample count and the five summary
// values, in the same order as the wire report.
func (m Model) renderTable() string {
	var b strings.Builder

	b.WriteString(headerStyle.Render(fmt.Sprintf("%-24s %10s %8s %8s %8s %8s %8s",
		"EVENT", "SAMPLES", "MIN", "50%", "90%", "99%", "99.9%")))
	b.WriteString("\n")

	if len(m.rows) == 0 {
		b.WriteString(mutedStyle.Render("waiting for records..."))
		return b.String()
	}

	maxRows := m.height - 8
	if maxRows < 1 {
		maxRows = 1
	}

	for i, row := range m.rows {
		if i >= maxRows {
			b.WriteString(mutedStyle.Render(fmt.Sprintf("... %d more", len(m.rows)-maxRows)))
			break
		}

		name := row.Event
		if len(name) > 24 {
			name = name[:21] + "..."
		}

		s := row.Summary
		b.WriteString(textStyle.Render(fmt.Sprintf("%-24s %10d %8d %8d %8d %8d %8d",
			name, row.Count, s.Min, s.Median, s.P90Under122, s.P99Under140, s.P999Under145)))
		b.WriteString("\n")
	}

	return strings.TrimRight(b.String(), "\n")
}
