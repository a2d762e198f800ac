// Package preflight provides startup validation checks.
//
// The checks catch environment problems before the ingest sources are
// opened, so the operator sees one readable report instead of the first
// syscall error. A failed required check means source setup would fail
// anyway; warnings flag conditions the collector tolerates.
package preflight

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/randomizedcoder/go-latency-collector/internal/config"
)

// Check represents the result of a single preflight check.
type Check struct {
	Name    string
	Passed  bool
	Warning bool // true when a failure is tolerable
	Message string
}

// Result holds the results of all preflight checks.
type Result struct {
	Checks []Check
	Passed bool
}

// String returns a human-readable summary of the check.
func (c Check) String() string {
	status := "✓"
	if !c.Passed {
		status = "✗"
	} else if c.Warning {
		status = "⚠"
	}
	return fmt.Sprintf("  %s %s: %s", status, c.Name, c.Message)
}

// RunAll executes all preflight checks against the configuration.
func RunAll(cfg *config.Config) *Result {
	result := &Result{Passed: true}

	for _, check := range []Check{
		checkAddr("tcp_ingest_addr", "tcp", cfg.TCPAddr),
		checkAddr("udp_query_addr", "udp", cfg.UDPAddr),
		checkParentDir("input_file_dir", cfg.InputFilePath),
		checkParentDir("fifo_dir", cfg.FIFOPath),
		checkFIFOPath(cfg.FIFOPath),
		checkFileDescriptors(),
	} {
		result.Checks = append(result.Checks, check)
		if !check.Passed {
			result.Passed = false
		}
	}

	return result
}

// checkAddr verifies a listen address resolves.
func checkAddr(name, network, addr string) Check {
	var err error
	switch network {
	case "tcp":
		_, err = net.ResolveTCPAddr(network, addr)
	default:
		_, err = net.ResolveUDPAddr(network, addr)
	}
	if err != nil {
		return Check{
			Name:    name,
			Passed:  false,
			Message: fmt.Sprintf("%s does not resolve: %v", addr, err),
		}
	}
	return Check{
		Name:    name,
		Passed:  true,
		Message: addr,
	}
}

// checkParentDir verifies the directory holding a path exists and is
// writable, since both the input file and the FIFO are created there.
func checkParentDir(name, path string) Check {
	dir := filepath.Dir(path)

	info, err := os.Stat(dir)
	if err != nil {
		return Check{
			Name:    name,
			Passed:  false,
			Message: fmt.Sprintf("%s: %v", dir, err),
		}
	}
	if !info.IsDir() {
		return Check{
			Name:    name,
			Passed:  false,
			Message: fmt.Sprintf("%s is not a directory", dir),
		}
	}
	if err := unix.Access(dir, unix.W_OK); err != nil {
		return Check{
			Name:    name,
			Passed:  false,
			Message: fmt.Sprintf("%s is not writable: %v", dir, err),
		}
	}
	return Check{
		Name:    name,
		Passed:  true,
		Message: dir,
	}
}

// checkFIFOPath warns when the FIFO path is occupied by something other
// than a named pipe. Startup removes and recreates the path, so a stray
// regular file there would be destroyed.
func checkFIFOPath(path string) Check {
	info, err := os.Lstat(path)
	if err != nil {
		// Absent is the common case; the FIFO gets created at startup.
		return Check{
			Name:    "fifo_path",
			Passed:  true,
			Message: fmt.Sprintf("%s (will be created)", path),
		}
	}
	if info.Mode()&os.ModeNamedPipe != 0 {
		return Check{
			Name:    "fifo_path",
			Passed:  true,
			Message: fmt.Sprintf("%s (existing pipe, will be recreated)", path),
		}
	}
	return Check{
		Name:    "fifo_path",
		Passed:  true,
		Warning: true,
		Message: fmt.Sprintf("%s exists and is not a pipe; it will be removed", path),
	}
}

// checkFileDescriptors verifies headroom for the listeners, the FIFO and a
// reasonable number of concurrent TCP ingest connections.
func checkFileDescriptors() Check {
	var limit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &limit); err != nil {
		return Check{
			Name:    "file_descriptors",
			Passed:  true,
			Warning: true,
			Message: fmt.Sprintf("unable to read rlimit: %v", err),
		}
	}

	// Four source descriptors plus stdio plus headroom for connections.
	const required = 128
	actual := int(limit.Cur)

	return Check{
		Name:    "file_descriptors",
		Passed:  actual >= required,
		Message: fmt.Sprintf("ulimit -n %d (need %d)", actual, required),
	}
}

// Format renders the full result the way it appears on stderr at startup.
func (r *Result) Format() string {
	var b strings.Builder
	b.WriteString("Preflight checks:\n")
	for _, check := range r.Checks {
		b.WriteString(check.String())
		b.WriteString("\n")
		if !check.Passed {
			b.WriteString(fmt.Sprintf("    Fix: %s\n", suggestFix(check.Name)))
		}
	}
	return b.String()
}

// suggestFix returns a suggestion for fixing a failed check.
func suggestFix(name string) string {
	switch name {
	case "file_descriptors":
		return "ulimit -n 1024 (or edit /etc/security/limits.conf)"
	case "tcp_ingest_addr", "udp_query_addr":
		return "use host:port, e.g. :12345 or 127.0.0.1:12345"
	case "input_file_dir", "fifo_dir":
		return "create the directory or point the flag somewhere writable"
	default:
		return "see documentation"
	}
}
