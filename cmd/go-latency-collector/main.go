// Package main provides the go-latency-collector CLI entry point.
//
// go-latency-collector ingests structured log records from a one-shot file,
// a named pipe and streaming TCP connections, maintains a microsecond
// resolution latency distribution per event name, and answers live UDP
// queries with per-event summaries.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/go-latency-collector/internal/config"
	"github.com/randomizedcoder/go-latency-collector/internal/ingest"
	"github.com/randomizedcoder/go-latency-collector/internal/logging"
	"github.com/randomizedcoder/go-latency-collector/internal/metrics"
	"github.com/randomizedcoder/go-latency-collector/internal/preflight"
	"github.com/randomizedcoder/go-latency-collector/internal/stats"
	"github.com/randomizedcoder/go-latency-collector/internal/tui"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0" ./cmd/go-latency-collector
var version = "dev"

// publishInterval drives rate sampling and the approximate delay
// percentile gauges.
const publishInterval = 1 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	if len(os.Args) > 1 {
		arg := os.Args[1]
		if arg == "-version" || arg == "--version" || arg == "version" {
			fmt.Printf("go-latency-collector %s\n", version)
			return 0
		}
	}

	cfg, err := config.ParseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		return 1
	}

	// When the TUI owns the terminal, suppress logs entirely.
	var logger *slog.Logger
	if cfg.TUIEnabled {
		logger = logging.NewLoggerWithWriter(io.Discard, "json", "info")
	} else {
		logger = logging.NewLogger(cfg.LogFormat, "info", cfg.Verbose)
	}
	logging.SetDefault(logger)

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return 1
	}

	checks := preflight.RunAll(cfg)
	if !checks.Passed {
		fmt.Fprint(os.Stderr, checks.Format())
		logger.Error("preflight_failed")
		return 1
	}
	if cfg.Verbose && !cfg.TUIEnabled {
		fmt.Fprint(os.Stderr, checks.Format())
	}

	logger.Info("starting",
		"version", version,
		"input_file", cfg.InputFilePath,
		"fifo", cfg.FIFOPath,
		"tcp_addr", cfg.TCPAddr,
		"udp_addr", cfg.UDPAddr,
		"metrics_addr", cfg.MetricsAddr,
	)

	registry := stats.NewRegistry()
	collector := metrics.NewCollector(func() float64 {
		return float64(registry.EventCount())
	})

	// Fatal setup errors: report once and exit without entering the loop.
	dispatcher, err := ingest.New(cfg, registry, collector, logger)
	if err != nil {
		logger.Error("setup_failed", "error", err)
		return 1
	}
	defer dispatcher.Close()

	if cfg.MetricsAddr != "" {
		dump := func() string {
			collector.Dump()
			return registry.DumpAll()
		}
		srv := metrics.NewServer(cfg.MetricsAddr, collector.Registry(), dump, logger)
		srv.Start()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Shutdown(ctx)
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Operator dump requests. Dumps go to stdout; logs stay on stderr.
	dumpCh := make(chan os.Signal, 1)
	signal.Notify(dumpCh, syscall.SIGUSR1, syscall.SIGUSR2)
	go func() {
		for range dumpCh {
			collector.Dump()
			fmt.Print(registry.DumpAll())
		}
	}()

	go publishLoop(ctx, collector)

	if !cfg.TUIEnabled {
		printBanner(cfg)
		if err := dispatcher.Run(ctx); err != nil {
			logger.Error("dispatcher_failed", "error", err)
			return 1
		}
	} else if code := runWithTUI(ctx, stop, cfg, registry, collector, dispatcher); code != 0 {
		return code
	}

	logger.Info("stopped", "events_tracked", registry.EventCount())
	return 0
}

// runWithTUI runs the dispatcher in the background while the dashboard owns
// the terminal. Quitting the dashboard stops the collector.
func runWithTUI(ctx context.Context, stop context.CancelFunc, cfg *config.Config, registry *stats.Registry, collector *metrics.Collector, dispatcher *ingest.Dispatcher) int {
	errCh := make(chan error, 1)
	go func() {
		errCh <- dispatcher.Run(ctx)
	}()

	program := tea.NewProgram(tui.New(tui.Config{
		TCPAddr:     cfg.TCPAddr,
		UDPAddr:     cfg.UDPAddr,
		MetricsAddr: cfg.MetricsAddr,
		Source:      registry,
		Rates:       collector.RecordRate,
	}), tea.WithAltScreen())

	go func() {
		<-ctx.Done()
		program.Quit()
	}()

	if _, err := program.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Dashboard error: %v\n", err)
		stop()
		<-errCh
		return 1
	}

	stop()
	if err := <-errCh; err != nil {
		fmt.Fprintf(os.Stderr, "Dispatcher error: %v\n", err)
		return 1
	}
	return 0
}

// publishLoop samples the ingest rate tracker and refreshes the delay
// percentile gauges once a second.
func publishLoop(ctx context.Context, collector *metrics.Collector) {
	ticker := time.NewTicker(publishInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			collector.SampleRates()
			collector.PublishPercentiles()
		}
	}
}

// printBanner prints the startup banner.
func printBanner(cfg *config.Config) {
	fmt.Println()
	fmt.Println("go-latency-collector - per-event latency distributions from log record streams")
	fmt.Println()
	fmt.Printf("  Input file:  %s (drained once at startup)\n", cfg.InputFilePath)
	fmt.Printf("  FIFO:        %s\n", cfg.FIFOPath)
	fmt.Printf("  TCP ingest:  %s\n", cfg.TCPAddr)
	fmt.Printf("  UDP query:   %s\n", cfg.UDPAddr)
	if cfg.MetricsAddr != "" {
		fmt.Printf("  Metrics:     http://%s/metrics\n", cfg.MetricsAddr)
	}
	fmt.Println()
	fmt.Println("SIGUSR1 dumps all distributions. Press Ctrl+C to stop.")
	fmt.Println()
}
