// Package tui provides a live terminal dashboard for the collector.
//
// The TUI uses Bubble Tea for the application framework and Lipgloss for
// styling. It refreshes the per-event summaries once a second from the
// stats registry; this takes the registry lock like any other reader, so
// the dashboard is just one more serialized query path.
package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/go-latency-collector/internal/stats"
	"github.com/randomizedcoder/go-latency-collector/internal/timeseries"
)

// TickMsg is sent periodically to refresh the display.
type TickMsg time.Time

// StatsSource provides the per-event summaries. Implemented by
// *stats.Registry.
type StatsSource interface {
	Snapshot() []stats.EventSummary
}

// Config holds TUI configuration.
type Config struct {
	TCPAddr     string
	UDPAddr     string
	MetricsAddr string
	Source      StatsSource

	// Rates supplies the ingest rates for the header, optional.
	Rates func() timeseries.RateStats
}

// Model represents the TUI state.
type Model struct {
	tcpAddr     string
	udpAddr     string
	metricsAddr string
	source      StatsSource
	ratesFn     func() timeseries.RateStats

	rows       []stats.EventSummary
	rates      timeseries.RateStats
	startTime  time.Time
	lastUpdate time.Time

	width    int
	height   int
	quitting bool
}

// New creates a new TUI model.
func New(cfg Config) Model {
	return Model{
		tcpAddr:     cfg.TCPAddr,
		udpAddr:     cfg.UDPAddr,
		metricsAddr: cfg.MetricsAddr,
		source:      cfg.Source,
		ratesFn:     cfg.Rates,
		startTime:   time.Now(),
		lastUpdate:  time.Now(),
		width:       80,
		height:      24,
	}
}

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "r":
			return m, tickCmd()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case TickMsg:
		if m.source != nil {
			m.rows = m.source.Snapshot()
		}
		if m.ratesFn != nil {
			m.rates = m.ratesFn()
		}
		m.lastUpdate = time.Now()
		return m, tickCmd()
	}

	return m, nil
}

// tickCmd returns a command that sends a tick after one second.
func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// Elapsed returns the time since the collector started.
func (m Model) Elapsed() time.Duration {
	return time.Since(m.startTime)
}
