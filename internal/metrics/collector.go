// Package metrics provides Prometheus metrics collection and export.
//
// These metrics describe the collector's own health (ingest volume, parse
// failures, connection churn), not the per-event latency summaries - those
// are served exactly over UDP and the dump path. The only latency numbers
// here are approximate cross-event percentiles from a T-Digest, useful for
// dashboards where the exact per-event reports are too fine-grained.
package metrics

import (
	"math"
	"sync"

	"github.com/influxdata/tdigest"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/randomizedcoder/go-latency-collector/internal/timeseries"
)

// Source label values used by the ingest counters.
const (
	SourceFile = "file"
	SourceFIFO = "fifo"
	SourceTCP  = "tcp"
)

// Collector owns the collector-health metrics and their Prometheus
// registry. All methods are safe for concurrent use.
type Collector struct {
	registry *prometheus.Registry

	recordsTotal     *prometheus.CounterVec
	parseErrorsTotal *prometheus.CounterVec
	bytesReadTotal   *prometheus.CounterVec

	tcpConnectionsTotal prometheus.Counter
	tcpActiveConns      prometheus.Gauge
	udpQueriesTotal     prometheus.Counter
	dumpsTotal          prometheus.Counter

	delayP50 prometheus.Gauge
	delayP95 prometheus.Gauge
	delayP99 prometheus.Gauge

	recordRate1s  prometheus.Gauge
	recordRate60s prometheus.Gauge

	// recordRate tracks ingest rate across all sources. Sampled once a
	// second by the publish loop.
	recordRate *timeseries.RateTracker

	// T-Digest of stored delays across all events. Not thread-safe, so it
	// has its own lock rather than riding on the stats registry's.
	digestMu sync.Mutex
	digest   *tdigest.TDigest
}

// NewCollector creates a Collector with its own Prometheus registry.
// eventCount feeds the tracked-events gauge; it is read at scrape time.
func NewCollector(eventCount func() float64) *Collector {
	c := &Collector{
		registry:   prometheus.NewRegistry(),
		digest:     tdigest.NewWithCompression(100),
		recordRate: timeseries.NewRateTracker(),

		recordsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "latency_collector_records_total",
				Help: "Records ingested, by source",
			},
			[]string{"source"},
		),
		parseErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "latency_collector_parse_errors_total",
				Help: "Malformed records skipped, by source",
			},
			[]string{"source"},
		),
		bytesReadTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "latency_collector_bytes_read_total",
				Help: "Raw bytes read from ingest sources, by source",
			},
			[]string{"source"},
		),

		tcpConnectionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "latency_collector_tcp_connections_total",
				Help: "TCP ingest connections accepted",
			},
		),
		tcpActiveConns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "latency_collector_tcp_active_connections",
				Help: "TCP ingest connections currently open",
			},
		),
		udpQueriesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "latency_collector_udp_queries_total",
				Help: "UDP query datagrams answered",
			},
		),
		dumpsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "latency_collector_dumps_total",
				Help: "Operator-triggered full dumps",
			},
		),

		delayP50: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "latency_collector_delay_p50_microseconds",
				Help: "Approximate median of stored delays across all events (T-Digest)",
			},
		),
		delayP95: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "latency_collector_delay_p95_microseconds",
				Help: "Approximate 95th percentile of stored delays across all events (T-Digest)",
			},
		),
		delayP99: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "latency_collector_delay_p99_microseconds",
				Help: "Approximate 99th percentile of stored delays across all events (T-Digest)",
			},
		),

		recordRate1s: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "latency_collector_record_rate_1s",
				Help: "Records per second over the last second, all sources",
			},
		),
		recordRate60s: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "latency_collector_record_rate_60s",
				Help: "Records per second over the last minute, all sources",
			},
		),
	}

	eventsTracked := prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "latency_collector_events_tracked",
			Help: "Distinct event names with a histogram",
		},
		eventCount,
	)

	c.registry.MustRegister(
		c.recordsTotal,
		c.parseErrorsTotal,
		c.bytesReadTotal,
		c.tcpConnectionsTotal,
		c.tcpActiveConns,
		c.udpQueriesTotal,
		c.dumpsTotal,
		c.delayP50,
		c.delayP95,
		c.delayP99,
		c.recordRate1s,
		c.recordRate60s,
		eventsTracked,
	)

	return c
}

// Registry returns the Prometheus registry backing this collector.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// ObserveRecord accounts one ingested record and feeds the delay digest.
// The delay is the stored (already wrapped) microsecond value.
func (c *Collector) ObserveRecord(source string, delay uint32) {
	c.recordsTotal.WithLabelValues(source).Inc()
	c.recordRate.Add(1)

	c.digestMu.Lock()
	c.digest.Add(float64(delay), 1)
	c.digestMu.Unlock()
}

// ParseError accounts one skipped malformed record.
func (c *Collector) ParseError(source string) {
	c.parseErrorsTotal.WithLabelValues(source).Inc()
}

// AddBytes accounts raw bytes read from a source.
func (c *Collector) AddBytes(source string, n int) {
	c.bytesReadTotal.WithLabelValues(source).Add(float64(n))
}

// ConnOpened accounts an accepted TCP ingest connection.
func (c *Collector) ConnOpened() {
	c.tcpConnectionsTotal.Inc()
	c.tcpActiveConns.Inc()
}

// ConnClosed accounts a finished TCP ingest connection.
func (c *Collector) ConnClosed() {
	c.tcpActiveConns.Dec()
}

// UDPQuery accounts one answered UDP query.
func (c *Collector) UDPQuery() {
	c.udpQueriesTotal.Inc()
}

// Dump accounts one operator-triggered full dump.
func (c *Collector) Dump() {
	c.dumpsTotal.Inc()
}

// PublishPercentiles refreshes the approximate delay percentile gauges from
// the digest. Called periodically; cheap enough for a tight interval.
func (c *Collector) PublishPercentiles() {
	c.digestMu.Lock()
	p50 := c.digest.Quantile(0.50)
	p95 := c.digest.Quantile(0.95)
	p99 := c.digest.Quantile(0.99)
	c.digestMu.Unlock()

	// Quantile returns NaN on an empty digest; leave the gauges at zero.
	if !math.IsNaN(p50) {
		c.delayP50.Set(p50)
	}
	if !math.IsNaN(p95) {
		c.delayP95.Set(p95)
	}
	if !math.IsNaN(p99) {
		c.delayP99.Set(p99)
	}
}

// SampleRates snapshots the record rate tracker and refreshes the rate
// gauges. Called once a second by the publish loop.
func (c *Collector) SampleRates() {
	c.recordRate.RecordSample()
	rates := c.recordRate.Stats()
	c.recordRate1s.Set(rates.Rate1s)
	c.recordRate60s.Set(rates.Rate60s)
}

// RecordRate returns the current ingest rates for the dashboard.
func (c *Collector) RecordRate() timeseries.RateStats {
	return c.recordRate.Stats()
}
