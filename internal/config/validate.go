package config

import (
	"errors"
	"fmt"
	"time"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration for errors and inconsistencies.
// Returns nil if valid, or an error describing every problem found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.InputFilePath == "" {
		errs = append(errs, ValidationError{
			Field:   "input",
			Message: "one-shot input file path is required",
		})
	}

	if cfg.FIFOPath == "" {
		errs = append(errs, ValidationError{
			Field:   "fifo",
			Message: "FIFO path is required",
		})
	}

	if cfg.InputFilePath != "" && cfg.InputFilePath == cfg.FIFOPath {
		errs = append(errs, ValidationError{
			Field:   "fifo",
			Message: "FIFO path must differ from the one-shot input file path",
		})
	}

	if cfg.TCPAddr == "" {
		errs = append(errs, ValidationError{
			Field:   "tcp",
			Message: "TCP ingest address is required",
		})
	}

	if cfg.UDPAddr == "" {
		errs = append(errs, ValidationError{
			Field:   "udp",
			Message: "UDP query address is required",
		})
	}

	if cfg.PollInterval < 10*time.Millisecond {
		errs = append(errs, ValidationError{
			Field:   "poll-interval",
			Message: "must be at least 10ms",
		})
	}

	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		errs = append(errs, ValidationError{
			Field:   "log-format",
			Message: `must be "json" or "text"`,
		})
	}

	return errors.Join(errs...)
}
