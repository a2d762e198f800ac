package config

import (
	"flag"
	"fmt"
	"io"
)

// ParseFlags parses command-line flags into a Config. The args slice should
// not include the program name. Usage and errors go to errOut.
func ParseFlags(args []string, errOut io.Writer) (*Config, error) {
	cfg := DefaultConfig()

	fs := flag.NewFlagSet("go-latency-collector", flag.ContinueOnError)
	fs.SetOutput(errOut)

	fs.Usage = func() {
		fmt.Fprintf(errOut, `go-latency-collector - latency telemetry collection from log record streams

Usage:
  go-latency-collector [flags]

Ingestion Sources:
  -input, -fifo, -tcp

Query:
  -udp

Dispatch:
  -poll-interval

Observability:
  -metrics, -v, -log-format, -tui

Flags:
`)
		fs.PrintDefaults()
		fmt.Fprintf(errOut, `
Examples:
  # Defaults: file + fifo in the working directory, TCP :12345, UDP :12346
  go-latency-collector

  # Custom paths and ports
  go-latency-collector -input /var/log/svc.log -fifo /run/svc.fifo -tcp :9999

  # Query a running collector
  printf 'eventName' | nc -u -w1 localhost 12346

Send SIGUSR1 for a full distribution dump on stdout; SIGINT stops the
collector.
`)
	}

	// Ingestion sources
	fs.StringVar(&cfg.InputFilePath, "input", cfg.InputFilePath, "One-shot input file, drained before the dispatch loop starts (created if absent)")
	fs.StringVar(&cfg.FIFOPath, "fifo", cfg.FIFOPath, "Named pipe for live ingestion (recreated at startup)")
	fs.StringVar(&cfg.TCPAddr, "tcp", cfg.TCPAddr, "TCP ingest listen address")

	// Query
	fs.StringVar(&cfg.UDPAddr, "udp", cfg.UDPAddr, "UDP query listen address")

	// Dispatch
	fs.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "Bounded readiness wait per dispatch round")

	// Observability
	fs.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "Prometheus metrics address")
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Verbose logging")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, `Log format: "json" or "text"`)

	// Dashboard
	fs.BoolVar(&cfg.TUIEnabled, "tui", cfg.TUIEnabled, "Enable live terminal dashboard (suppresses logs)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected positional arguments: %v", fs.Args())
	}

	return cfg, nil
}
