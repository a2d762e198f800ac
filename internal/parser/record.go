// Package parser turns raw ingest bytes into (event, delay) records.
//
// The wire format is one bracketed field (typically a timestamp, contents
// ignored), then tab-separated fields: the event name first, thirteen filler
// fields, and the delay in microseconds as a run of digits ended by any
// non-digit byte:
//
//	[<ignored>]\t<event>\t<filler>×13\t<digits><non-digit>
//
// A RecordParser consumes one byte stream and survives arbitrary chunk
// boundaries: feeding the same bytes in one call or split across any number
// of calls yields the same records. Each transport therefore gets its own
// parser instance and simply forwards whatever it read.
package parser

import (
	"fmt"
	"strconv"
	"sync/atomic"
)

// fieldsBeforeDelay is the tab count, starting from the tab that ends the
// event field, after which the delay field begins: the event terminator plus
// thirteen filler fields.
const fieldsBeforeDelay = 14

// RecordSink receives parsed records. Implemented by the ingest paths,
// which forward into the stats registry.
type RecordSink interface {
	Record(event string, delay uint32)
}

// ParseError reports one malformed record. The parser recovers on its own;
// the error exists so callers can count or log the skip.
type ParseError struct {
	Event  string // event name of the abandoned record, may help find the producer
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed record for event %q: %s", e.Event, e.Reason)
}

type state int

const (
	// scanStart discards bytes until the ']' closing the leading bracketed
	// field.
	scanStart state = iota
	// expectTab requires the byte right after ']' to be a tab; anything else
	// abandons the record without reconsidering the byte.
	expectTab
	// readEvent accumulates the event name up to the next tab.
	readEvent
	// skipFillers discards the thirteen filler fields by counting tabs.
	skipFillers
	// readDelay accumulates digits; the first non-digit terminates the
	// record and is consumed.
	readDelay
)

// RecordParser is the forward-only streaming state machine for one source.
// It is not safe for concurrent use; each source owns exactly one.
type RecordParser struct {
	sink RecordSink

	state state
	event []byte
	delay []byte
	tabs  int

	// Counters are atomic so health reporting can read them while the
	// owning goroutine keeps feeding.
	bytesFed  atomic.Int64
	emitted   atomic.Int64
	parseErrs atomic.Int64
}

// New creates a parser emitting into sink.
func New(sink RecordSink) *RecordParser {
	return &RecordParser{sink: sink}
}

// Feed consumes one chunk of input, emitting every record completed within
// it. Malformed records (empty or overflowing delay field) are returned as
// ParseErrors; parsing has already resumed at the next record by the time
// Feed returns, so callers log the errors and keep feeding.
func (p *RecordParser) Feed(data []byte) []ParseError {
	p.bytesFed.Add(int64(len(data)))

	var errs []ParseError
	for _, c := range data {
		switch p.state {
		case scanStart:
			if c == ']' {
				p.state = expectTab
			}

		case expectTab:
			if c == '\t' {
				p.event = p.event[:0]
				p.state = readEvent
			} else {
				// Abandoned record. The byte is consumed, not rescanned
				// for a new bracket.
				p.state = scanStart
			}

		case readEvent:
			if c == '\t' {
				p.tabs = 1
				p.state = skipFillers
			} else {
				p.event = append(p.event, c)
			}

		case skipFillers:
			if c == '\t' {
				p.tabs++
			}
			if p.tabs == fieldsBeforeDelay {
				p.delay = p.delay[:0]
				p.state = readDelay
			}

		case readDelay:
			if c >= '0' && c <= '9' {
				p.delay = append(p.delay, c)
				continue
			}
			// Terminator reached and consumed.
			if err := p.emit(); err != nil {
				errs = append(errs, *err)
			}
			p.state = scanStart
		}
	}
	return errs
}

// emit converts the buffered record and hands it to the sink.
func (p *RecordParser) emit() *ParseError {
	if len(p.delay) == 0 {
		p.parseErrs.Add(1)
		return &ParseError{Event: string(p.event), Reason: "empty delay field"}
	}

	v, err := strconv.ParseUint(string(p.delay), 10, 32)
	if err != nil {
		p.parseErrs.Add(1)
		return &ParseError{Event: string(p.event), Reason: "delay overflows uint32"}
	}

	p.sink.Record(string(p.event), uint32(v))
	p.emitted.Add(1)
	return nil
}

// Stats returns (bytesFed, recordsEmitted, parseErrors).
func (p *RecordParser) Stats() (bytesFed, emitted, parseErrs int64) {
	return p.bytesFed.Load(), p.emitted.Load(), p.parseErrs.Load()
}
