// Package config provides configuration management for go-latency-collector.
package config

import "time"

// Config holds all configuration options for the collector.
type Config struct {
	// Ingestion sources
	InputFilePath string `json:"input_file_path"` // one-shot file, drained at startup
	FIFOPath      string `json:"fifo_path"`       // named pipe, recreated at startup
	TCPAddr       string `json:"tcp_addr"`        // streaming ingest listener
	UDPAddr       string `json:"udp_addr"`        // query socket

	// Dispatch loop
	PollInterval time.Duration `json:"poll_interval"` // readiness wait bound

	// Observability
	MetricsAddr string `json:"metrics_addr"`
	Verbose     bool   `json:"verbose"`
	LogFormat   string `json:"log_format"` // json, text

	// Dashboard
	TUIEnabled bool `json:"tui"`
}

// DefaultConfig returns a Config with the stock defaults.
func DefaultConfig() *Config {
	return &Config{
		InputFilePath: "input_file.txt",
		FIFOPath:      "input_fifo.txt",
		TCPAddr:       ":12345",
		UDPAddr:       ":12346",

		PollInterval: 3 * time.Second,

		MetricsAddr: "0.0.0.0:17092",
		Verbose:     false,
		LogFormat:   "json",

		TUIEnabled: false,
	}
}
