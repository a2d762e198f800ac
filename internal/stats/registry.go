package stats

import (
	"sort"
	"strings"
	"sync"
)

// Registry maps event names to their statistics behind one coarse lock.
//
// Every mutation (creating an entry, recording a sample) and every read
// (recompute + format) runs as a single critical section, so all ingestion
// paths and all queries are serialized with respect to each other. This
// bounds peak throughput but guarantees every report reflects a consistent,
// non-torn view of an event's counters.
//
// Entries are created implicitly on first use and never removed. A Registry
// must be constructed with NewRegistry and passed explicitly to everything
// that needs it; there is no package-level instance.
type Registry struct {
	mu     sync.Mutex
	events map[string]*EventStats
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{events: make(map[string]*EventStats)}
}

// ensureLocked returns the entry for event, creating a zero-valued one if
// absent. Caller must hold mu.
func (r *Registry) ensureLocked(event string) *EventStats {
	e, ok := r.events[event]
	if !ok {
		e = &EventStats{}
		r.events[event] = e
	}
	return e
}

// EnsureEvent creates a zero-valued entry for event if absent. Idempotent.
func (r *Registry) EnsureEvent(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ensureLocked(event)
}

// Record adds one delay sample to event, creating the entry if needed.
// Safe for unboundedly many concurrent callers.
func (r *Registry) Record(event string, delay uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ensureLocked(event).Observe(delay)
}

// QueryOne recomputes and returns the single-line summary for event,
// prefixed with the event name and terminated with a newline. Querying an
// unseen name is not an error: it creates a zero-valued entry and reports
// all zeros.
func (r *Registry) QueryOne(event string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.ensureLocked(event)
	e.Recompute()
	return event + " " + e.FormatSummary() + "\n"
}

// DumpAll recomputes every event and returns, per event, the summary line
// followed by the full distribution table and a blank line. Iteration order
// is implementation-defined; events are emitted sorted by name so repeated
// dumps are comparable.
func (r *Registry) DumpAll() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.events))
	for name := range r.events {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		e := r.events[name]
		e.Recompute()
		b.WriteString(name + " " + e.FormatSummary() + "\n")
		b.WriteString(e.FormatDistribution())
		b.WriteString("\n")
	}
	return b.String()
}

// EventCount returns the number of tracked events.
func (r *Registry) EventCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// Count returns the total number of samples recorded for event, or 0 if the
// event is unknown. Unlike the query paths it does not create an entry.
func (r *Registry) Count(event string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.events[event]; ok {
		return e.hist.total
	}
	return 0
}

// EventSummary is one row of a Snapshot.
type EventSummary struct {
	Event   string
	Count   uint64
	Summary Summary
}

// Snapshot recomputes every event and returns the summaries sorted by
// name. Used by the live dashboard.
func (r *Registry) Snapshot() []EventSummary {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]EventSummary, 0, len(r.events))
	for name, e := range r.events {
		e.Recompute()
		out = append(out, EventSummary{
			Event:   name,
			Count:   e.hist.total,
			Summary: e.summary,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Event < out[j].Event })
	return out
}
