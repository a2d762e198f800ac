package ingest

import (
	"context"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/randomizedcoder/go-latency-collector/internal/config"
	"github.com/randomizedcoder/go-latency-collector/internal/metrics"
	"github.com/randomizedcoder/go-latency-collector/internal/stats"
)

// testRecord builds one wire-format record ending in a newline.
func testRecord(event, delay string) string {
	return "[2026-08-29 10:00:00]\t" + event + "\t" + strings.Repeat("f\t", 13) + delay + "\n"
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startDispatcher opens a dispatcher on loopback with ephemeral ports and a
// fast poll interval, runs it, and registers full teardown with t.Cleanup.
func startDispatcher(t *testing.T, inputContent string) (*Dispatcher, *stats.Registry) {
	t.Helper()

	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.InputFilePath = filepath.Join(dir, "input_file.txt")
	cfg.FIFOPath = filepath.Join(dir, "input_fifo.txt")
	cfg.TCPAddr = "127.0.0.1:0"
	cfg.UDPAddr = "127.0.0.1:0"
	cfg.PollInterval = 50 * time.Millisecond

	if inputContent != "" {
		if err := os.WriteFile(cfg.InputFilePath, []byte(inputContent), 0o644); err != nil {
			t.Fatalf("write input file: %v", err)
		}
	}

	registry := stats.NewRegistry()
	collector := metrics.NewCollector(func() float64 { return float64(registry.EventCount()) })

	d, err := New(cfg, registry, collector, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Run returned error: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("Run did not return after cancel")
		}
		d.Wait()
		d.Close()
	})

	return d, registry
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestDispatcherDrainsInputFile(t *testing.T) {
	input := testRecord("boot", "100") + testRecord("boot", "200")
	_, registry := startDispatcher(t, input)

	waitFor(t, "input file records", func() bool {
		return registry.Count("boot") == 2
	})
}

func TestDispatcherCreatesInputFile(t *testing.T) {
	d, _ := startDispatcher(t, "")

	waitFor(t, "input file creation", func() bool {
		_, err := os.Stat(d.cfg.InputFilePath)
		return err == nil
	})
}

func TestDispatcherTCPIngest(t *testing.T) {
	d, registry := startDispatcher(t, "")

	conn, err := net.Dial("tcp", d.TCPAddr().String())
	if err != nil {
		t.Fatalf("dial tcp: %v", err)
	}

	// Split one record across two writes; the per-connection parser must
	// stitch them back together.
	rec := testRecord("checkout", "1500")
	if _, err := conn.Write([]byte(rec[:10])); err != nil {
		t.Fatalf("write: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if _, err := conn.Write([]byte(rec[10:])); err != nil {
		t.Fatalf("write: %v", err)
	}
	conn.Close()

	waitFor(t, "tcp record", func() bool {
		return registry.Count("checkout") == 1
	})
}

func TestDispatcherTCPMalformedRecordRecovers(t *testing.T) {
	d, registry := startDispatcher(t, "")

	conn, err := net.Dial("tcp", d.TCPAddr().String())
	if err != nil {
		t.Fatalf("dial tcp: %v", err)
	}
	defer conn.Close()

	// A record with an empty delay field is skipped; the next record on the
	// same connection still lands.
	if _, err := conn.Write([]byte(testRecord("bad", "") + testRecord("good", "42"))); err != nil {
		t.Fatalf("write: %v", err)
	}

	waitFor(t, "record after malformed one", func() bool {
		return registry.Count("good") == 1
	})
	if n := registry.Count("bad"); n != 0 {
		t.Errorf("Count(bad) = %d, want 0", n)
	}
}

func TestDispatcherConcurrentTCPConnections(t *testing.T) {
	d, registry := startDispatcher(t, "")

	for i := 0; i < 4; i++ {
		conn, err := net.Dial("tcp", d.TCPAddr().String())
		if err != nil {
			t.Fatalf("dial tcp: %v", err)
		}
		if _, err := conn.Write([]byte(testRecord("parallel", "10"))); err != nil {
			t.Fatalf("write: %v", err)
		}
		conn.Close()
	}

	waitFor(t, "records from all connections", func() bool {
		return registry.Count("parallel") == 4
	})
}

func TestDispatcherUDPQuery(t *testing.T) {
	d, registry := startDispatcher(t, "")
	registry.Record("warm", 10)

	conn, err := net.Dial("udp", d.UDPAddr().String())
	if err != nil {
		t.Fatalf("dial udp: %v", err)
	}
	defer conn.Close()

	query := func(event, want string) {
		t.Helper()
		if _, err := conn.Write([]byte(event)); err != nil {
			t.Fatalf("write query: %v", err)
		}
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		buf := make([]byte, 512)
		n, err := conn.Read(buf)
		if err != nil {
			t.Fatalf("read reply: %v", err)
		}
		if got := string(buf[:n]); got != want {
			t.Errorf("query %q reply = %q, want %q", event, got, want)
		}
	}

	query("warm", "warm min=10 50%=10 90%=10 99%=10 99.9%=10\n")
	// Unknown names are created on the spot and report zeros.
	query("ghost", "ghost min=0 50%=0 90%=0 99%=0 99.9%=0\n")

	if n := registry.EventCount(); n != 2 {
		t.Errorf("EventCount() = %d, want 2", n)
	}
}

func TestDispatcherFIFOIngest(t *testing.T) {
	d, registry := startDispatcher(t, "")

	// The read end is already open nonblocking, so this open does not wait.
	w, err := os.OpenFile(d.cfg.FIFOPath, os.O_WRONLY, 0)
	if err != nil {
		t.Fatalf("open fifo for write: %v", err)
	}
	if _, err := w.WriteString(testRecord("piped", "77")); err != nil {
		t.Fatalf("write fifo: %v", err)
	}
	w.Close()

	waitFor(t, "fifo record", func() bool {
		return registry.Count("piped") == 1
	})
}

func TestDispatcherFIFOSurvivesWriterClose(t *testing.T) {
	d, registry := startDispatcher(t, "")

	for i := 0; i < 2; i++ {
		w, err := os.OpenFile(d.cfg.FIFOPath, os.O_WRONLY, 0)
		if err != nil {
			t.Fatalf("open fifo for write (round %d): %v", i, err)
		}
		if _, err := w.WriteString(testRecord("piped", "5")); err != nil {
			t.Fatalf("write fifo (round %d): %v", i, err)
		}
		w.Close()

		want := uint64(i + 1)
		waitFor(t, "fifo record after writer close", func() bool {
			return registry.Count("piped") == want
		})
	}
}

func TestNewFailsOnBadAddress(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.InputFilePath = filepath.Join(dir, "input_file.txt")
	cfg.FIFOPath = filepath.Join(dir, "input_fifo.txt")
	cfg.TCPAddr = "256.0.0.1:99999"
	cfg.UDPAddr = "127.0.0.1:0"

	registry := stats.NewRegistry()
	collector := metrics.NewCollector(func() float64 { return 0 })

	d, err := New(cfg, registry, collector, testLogger())
	if err == nil {
		d.Close()
		t.Fatal("New succeeded with unusable TCP address")
	}
}
