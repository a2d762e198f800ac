// Package ingest multiplexes the collector's input sources.
//
// One dispatcher goroutine owns a poll(2) readiness loop over the FIFO read
// end, the TCP ingest listener and the UDP query socket. FIFO drains and
// UDP request/response cycles run inline on the dispatcher; every accepted
// TCP connection gets its own goroutine and its own parser. The one-shot
// input file is drained synchronously before the loop starts: a regular
// file is always readable, so mixing it into the readiness set would spin.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/randomizedcoder/go-latency-collector/internal/config"
	"github.com/randomizedcoder/go-latency-collector/internal/metrics"
	"github.com/randomizedcoder/go-latency-collector/internal/parser"
	"github.com/randomizedcoder/go-latency-collector/internal/stats"
)

const (
	// readBufSize is the chunk size for file, FIFO and TCP reads.
	readBufSize = 64 * 1024

	// maxDatagramSize bounds a UDP query payload. The whole payload is the
	// event name.
	maxDatagramSize = 1024

	// acceptGrace bounds Accept after the listener polled ready. Readiness
	// can go stale if the peer resets before we get to it.
	acceptGrace = 100 * time.Millisecond
)

// registrySink forwards parsed records into the stats registry and accounts
// them against one source label.
type registrySink struct {
	registry  *stats.Registry
	collector *metrics.Collector
	source    string
}

func (s *registrySink) Record(event string, delay uint32) {
	s.registry.Record(event, delay)
	// The registry stores delays modulo 1s; keep the digest aligned.
	s.collector.ObserveRecord(s.source, delay%stats.MicrosecondsPerSecond)
}

// Dispatcher owns the ingest sources and the readiness loop.
//
// Construction opens every source; any failure there is fatal and New
// returns it without retrying. After Run returns, in-flight TCP workers may
// still be running; they are not cancelled (abrupt-shutdown model).
type Dispatcher struct {
	cfg       *config.Config
	registry  *stats.Registry
	collector *metrics.Collector
	logger    *slog.Logger

	inputFile *os.File

	fifoFD     int
	fifoParser *parser.RecordParser

	listener   *net.TCPListener
	listenerFD int

	udp   *net.UDPConn
	udpFD int

	workers sync.WaitGroup
}

// New opens the one-shot input file, recreates and opens the FIFO, and
// binds the TCP and UDP sockets. Every failure is a fatal setup error.
func New(cfg *config.Config, registry *stats.Registry, collector *metrics.Collector, logger *slog.Logger) (*Dispatcher, error) {
	d := &Dispatcher{
		cfg:       cfg,
		registry:  registry,
		collector: collector,
		logger:    logger,
		fifoFD:    -1,
	}
	d.fifoParser = parser.New(&registrySink{
		registry:  registry,
		collector: collector,
		source:    metrics.SourceFIFO,
	})

	ok := false
	defer func() {
		if !ok {
			d.Close()
		}
	}()

	var err error
	d.inputFile, err = os.OpenFile(cfg.InputFilePath, os.O_RDONLY|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open input file %s: %w", cfg.InputFilePath, err)
	}

	d.fifoFD, err = openFIFO(cfg.FIFOPath)
	if err != nil {
		return nil, err
	}

	ln, err := net.Listen("tcp", cfg.TCPAddr)
	if err != nil {
		return nil, fmt.Errorf("listen tcp %s: %w", cfg.TCPAddr, err)
	}
	d.listener = ln.(*net.TCPListener)
	d.listenerFD, err = sysConnFD(d.listener)
	if err != nil {
		return nil, fmt.Errorf("tcp listener fd: %w", err)
	}

	pc, err := net.ListenPacket("udp", cfg.UDPAddr)
	if err != nil {
		return nil, fmt.Errorf("listen udp %s: %w", cfg.UDPAddr, err)
	}
	d.udp = pc.(*net.UDPConn)
	d.udpFD, err = sysConnFD(d.udp)
	if err != nil {
		return nil, fmt.Errorf("udp socket fd: %w", err)
	}

	ok = true
	return d, nil
}

// openFIFO recreates the named pipe and opens its read end nonblocking, so
// opening does not wait for a writer and drains never stall the loop.
func openFIFO(path string) (int, error) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return -1, fmt.Errorf("remove stale fifo %s: %w", path, err)
	}
	if err := unix.Mkfifo(path, 0o600); err != nil {
		return -1, fmt.Errorf("mkfifo %s: %w", path, err)
	}
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return -1, fmt.Errorf("open fifo %s: %w", path, err)
	}
	return fd, nil
}

// sysConnFD extracts the file descriptor backing a socket for poll(2). The
// runtime keeps polling the same descriptor through its own netpoller;
// level-triggered poll from this side does not disturb it.
func sysConnFD(c syscall.Conn) (int, error) {
	raw, err := c.SyscallConn()
	if err != nil {
		return -1, err
	}
	fd := -1
	if err := raw.Control(func(f uintptr) { fd = int(f) }); err != nil {
		return -1, err
	}
	return fd, nil
}

// TCPAddr returns the bound TCP ingest address, useful when configured
// with port 0.
func (d *Dispatcher) TCPAddr() net.Addr { return d.listener.Addr() }

// UDPAddr returns the bound UDP query address.
func (d *Dispatcher) UDPAddr() net.Addr { return d.udp.LocalAddr() }

// Run drains the one-shot input file and then blocks in the readiness loop
// until ctx is cancelled. Cancellation stops new readiness rounds only:
// in-flight TCP workers and an in-progress UDP exchange finish on their own.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.drainInputFile()

	timeoutMs := int(d.cfg.PollInterval.Milliseconds())
	buf := make([]byte, readBufSize)

	fds := make([]unix.PollFd, 3)
	for ctx.Err() == nil {
		fds[0] = unix.PollFd{Fd: int32(d.fifoFD), Events: unix.POLLIN}
		fds[1] = unix.PollFd{Fd: int32(d.listenerFD), Events: unix.POLLIN}
		fds[2] = unix.PollFd{Fd: int32(d.udpFD), Events: unix.POLLIN}

		n, err := unix.Poll(fds, timeoutMs)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("poll: %w", err)
		}
		if n == 0 {
			d.logger.Debug("poll_timeout")
			continue
		}

		// POLLHUP on the FIFO means every writer closed; drain what is
		// left and reopen for the next writer.
		if fds[0].Revents&(unix.POLLIN|unix.POLLHUP) != 0 {
			d.drainFIFO(buf)
		}
		if fds[2].Revents&unix.POLLIN != 0 {
			d.handleUDPQuery()
		}
		if fds[1].Revents&unix.POLLIN != 0 {
			d.acceptTCP()
		}
	}

	d.logger.Info("dispatcher_stopped", "reason", context.Cause(ctx))
	return nil
}

// drainInputFile reads the one-shot file to EOF through its own parser.
// Read errors terminate only this source.
func (d *Dispatcher) drainInputFile() {
	defer d.inputFile.Close()

	p := parser.New(&registrySink{
		registry:  d.registry,
		collector: d.collector,
		source:    metrics.SourceFile,
	})

	buf := make([]byte, readBufSize)
	for {
		n, err := d.inputFile.Read(buf)
		if n > 0 {
			d.collector.AddBytes(metrics.SourceFile, n)
			d.reportParseErrors(metrics.SourceFile, p.Feed(buf[:n]))
		}
		if err != nil {
			if err != io.EOF {
				d.logger.Error("input_file_read_failed", "path", d.cfg.InputFilePath, "error", err)
			}
			break
		}
	}

	_, records, errs := p.Stats()
	d.logger.Info("input_file_drained", "path", d.cfg.InputFilePath, "records", records, "parse_errors", errs)
}

// drainFIFO reads everything currently buffered in the pipe. The FIFO keeps
// one persistent parser: chunk boundaries between drains are arbitrary.
func (d *Dispatcher) drainFIFO(buf []byte) {
	for {
		n, err := unix.Read(d.fifoFD, buf)
		if n > 0 {
			d.collector.AddBytes(metrics.SourceFIFO, n)
			d.reportParseErrors(metrics.SourceFIFO, d.fifoParser.Feed(buf[:n]))
		}
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			if err != unix.EAGAIN {
				d.logger.Warn("fifo_read_failed", "path", d.cfg.FIFOPath, "error", err)
			}
			return
		}
		if n == 0 {
			// EOF: all writers are gone. Reopen so the next writer gets a
			// fresh read end instead of a permanently hung-up pipe.
			d.reopenFIFO()
			return
		}
	}
}

func (d *Dispatcher) reopenFIFO() {
	unix.Close(d.fifoFD)
	fd, err := unix.Open(d.cfg.FIFOPath, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		// Poll ignores negative descriptors, so the FIFO source just goes
		// dark; TCP and UDP keep working.
		d.logger.Error("fifo_reopen_failed", "path", d.cfg.FIFOPath, "error", err)
		d.fifoFD = -1
		return
	}
	d.fifoFD = fd
	d.logger.Debug("fifo_reopened", "path", d.cfg.FIFOPath)
}

// acceptTCP accepts one pending connection and hands it to a worker. The
// dispatcher does not wait for the worker.
func (d *Dispatcher) acceptTCP() {
	d.listener.SetDeadline(time.Now().Add(acceptGrace))
	conn, err := d.listener.Accept()
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return
		}
		d.logger.Warn("accept_failed", "error", err)
		return
	}

	d.collector.ConnOpened()
	d.workers.Add(1)
	go d.handleConn(conn)
}

// handleConn runs one TCP ingest connection to EOF with its own parser.
// A panic here is contained to this connection; the process keeps running.
func (d *Dispatcher) handleConn(conn net.Conn) {
	remote := conn.RemoteAddr().String()
	defer d.workers.Done()
	defer d.collector.ConnClosed()
	defer conn.Close()
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("tcp_worker_panic", "remote", remote, "panic", r)
		}
	}()

	p := parser.New(&registrySink{
		registry:  d.registry,
		collector: d.collector,
		source:    metrics.SourceTCP,
	})

	buf := make([]byte, readBufSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			d.collector.AddBytes(metrics.SourceTCP, n)
			d.reportParseErrors(metrics.SourceTCP, p.Feed(buf[:n]))
		}
		if err != nil {
			if err != io.EOF {
				d.logger.Debug("tcp_read_ended", "remote", remote, "error", err)
			}
			break
		}
	}

	_, records, errs := p.Stats()
	d.logger.Debug("tcp_connection_done", "remote", remote, "records", records, "parse_errors", errs)
}

// handleUDPQuery serves one query inline on the dispatcher: the datagram
// payload is the event name, verbatim; the reply is the one-line summary.
// The receive has no deadline; a peer that provoked readiness and then
// stalls blocks the whole loop until the datagram arrives.
func (d *Dispatcher) handleUDPQuery() {
	buf := make([]byte, maxDatagramSize)
	n, addr, err := d.udp.ReadFromUDP(buf)
	if err != nil {
		d.logger.Warn("udp_read_failed", "error", err)
		return
	}

	event := string(buf[:n])
	report := d.registry.QueryOne(event)
	d.collector.UDPQuery()

	if _, err := d.udp.WriteToUDP([]byte(report), addr); err != nil {
		d.logger.Warn("udp_reply_failed", "remote", addr.String(), "error", err)
	}
}

// reportParseErrors surfaces malformed records as warnings; ingestion has
// already moved on to the next record.
func (d *Dispatcher) reportParseErrors(source string, errs []parser.ParseError) {
	for i := range errs {
		d.collector.ParseError(source)
		d.logger.Warn("record_skipped", "source", source, "event", errs[i].Event, "reason", errs[i].Reason)
	}
}

// Wait blocks until all TCP workers have finished. The shutdown path does
// not call this (workers are abandoned at process exit); tests do.
func (d *Dispatcher) Wait() {
	d.workers.Wait()
}

// Close releases the sources. Safe to call after a failed New.
func (d *Dispatcher) Close() error {
	if d.inputFile != nil {
		d.inputFile.Close() // no-op when the startup drain already closed it
	}
	if d.fifoFD >= 0 {
		unix.Close(d.fifoFD)
		d.fifoFD = -1
	}
	if d.listener != nil {
		d.listener.Close()
	}
	if d.udp != nil {
		d.udp.Close()
	}
	return nil
}
