package metrics

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// scrape serves the collector's registry over httptest and parses the
// exposition text back into metric families.
func scrape(t *testing.T, c *Collector) map[string]*dto.MetricFamily {
	t.Helper()

	srv := httptest.NewServer(promhttp.HandlerFor(c.Registry(), promhttp.HandlerOpts{}))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	defer resp.Body.Close()

	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(resp.Body)
	if err != nil {
		t.Fatalf("parse exposition: %v", err)
	}
	return families
}

// counterValue finds the counter with the given source label, or -1.
func counterValue(fam *dto.MetricFamily, source string) float64 {
	for _, m := range fam.GetMetric() {
		for _, l := range m.GetLabel() {
			if l.GetName() == "source" && l.GetValue() == source {
				return m.GetCounter().GetValue()
			}
		}
	}
	return -1
}

func TestCollectorIngestCounters(t *testing.T) {
	c := NewCollector(func() float64 { return 3 })

	c.ObserveRecord(SourceTCP, 100)
	c.ObserveRecord(SourceTCP, 200)
	c.ObserveRecord(SourceFIFO, 300)
	c.ParseError(SourceFile)
	c.AddBytes(SourceTCP, 4096)

	families := scrape(t, c)

	records := families["latency_collector_records_total"]
	if records == nil {
		t.Fatal("records_total not exposed")
	}
	if got := counterValue(records, SourceTCP); got != 2 {
		t.Errorf("records_total{source=tcp} = %g, want 2", got)
	}
	if got := counterValue(records, SourceFIFO); got != 1 {
		t.Errorf("records_total{source=fifo} = %g, want 1", got)
	}

	parseErrs := families["latency_collector_parse_errors_total"]
	if parseErrs == nil {
		t.Fatal("parse_errors_total not exposed")
	}
	if got := counterValue(parseErrs, SourceFile); got != 1 {
		t.Errorf("parse_errors_total{source=file} = %g, want 1", got)
	}

	bytesRead := families["latency_collector_bytes_read_total"]
	if bytesRead == nil {
		t.Fatal("bytes_read_total not exposed")
	}
	if got := counterValue(bytesRead, SourceTCP); got != 4096 {
		t.Errorf("bytes_read_total{source=tcp} = %g, want 4096", got)
	}

	tracked := families["latency_collector_events_tracked"]
	if tracked == nil {
		t.Fatal("events_tracked not exposed")
	}
	if got := tracked.GetMetric()[0].GetGauge().GetValue(); got != 3 {
		t.Errorf("events_tracked = %g, want 3", got)
	}
}

func TestCollectorConnectionGauge(t *testing.T) {
	c := NewCollector(func() float64 { return 0 })

	c.ConnOpened()
	c.ConnOpened()
	c.ConnClosed()

	families := scrape(t, c)

	total := families["latency_collector_tcp_connections_total"]
	if got := total.GetMetric()[0].GetCounter().GetValue(); got != 2 {
		t.Errorf("tcp_connections_total = %g, want 2", got)
	}
	active := families["latency_collector_tcp_active_connections"]
	if got := active.GetMetric()[0].GetGauge().GetValue(); got != 1 {
		t.Errorf("tcp_active_connections = %g, want 1", got)
	}
}

func TestCollectorPercentileGauges(t *testing.T) {
	c := NewCollector(func() float64 { return 0 })

	// An empty digest must leave the gauges at zero rather than NaN.
	c.PublishPercentiles()
	families := scrape(t, c)
	if got := families["latency_collector_delay_p50_microseconds"].GetMetric()[0].GetGauge().GetValue(); got != 0 {
		t.Errorf("p50 before any samples = %g, want 0", got)
	}

	for i := 0; i < 100; i++ {
		c.ObserveRecord(SourceTCP, 1000)
	}
	c.PublishPercentiles()

	families = scrape(t, c)
	if got := families["latency_collector_delay_p50_microseconds"].GetMetric()[0].GetGauge().GetValue(); got != 1000 {
		t.Errorf("p50 = %g, want 1000", got)
	}
	if got := families["latency_collector_delay_p99_microseconds"].GetMetric()[0].GetGauge().GetValue(); got != 1000 {
		t.Errorf("p99 = %g, want 1000", got)
	}
}

func TestCollectorRecordRate(t *testing.T) {
	c := NewCollector(func() float64 { return 0 })

	for i := 0; i < 50; i++ {
		c.ObserveRecord(SourceFIFO, 10)
	}
	c.SampleRates()

	if got := c.RecordRate().Total; got != 50 {
		t.Errorf("RecordRate().Total = %d, want 50", got)
	}

	families := scrape(t, c)
	for _, name := range []string{"latency_collector_record_rate_1s", "latency_collector_record_rate_60s"} {
		if families[name] == nil {
			t.Errorf("%s not exposed", name)
		}
	}
}

func TestServerEndpoints(t *testing.T) {
	c := NewCollector(func() float64 { return 0 })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dump := func() string { return "checkout min=10 50%=10 90%=10 99%=10 99.9%=10\n" }
	s := NewServer("127.0.0.1:0", c.Registry(), dump, logger)

	// Exercise the mux directly rather than binding a port.
	get := func(path string) *httptest.ResponseRecorder {
		t.Helper()
		rec := httptest.NewRecorder()
		s.server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	for _, path := range []string{"/health", "/healthz"} {
		rec := get(path)
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, rec.Code)
		}
		if body := rec.Body.String(); !strings.Contains(body, "ok") {
			t.Errorf("GET %s body = %q, want ok", path, body)
		}
	}

	if rec := get("/metrics"); !strings.Contains(rec.Body.String(), "latency_collector_tcp_connections_total") {
		t.Error("GET /metrics missing expected metric family")
	}

	if rec := get("/dump"); !strings.Contains(rec.Body.String(), "checkout min=10") {
		t.Errorf("GET /dump body = %q, want the dump output", rec.Body.String())
	}

	if rec := get("/"); !strings.Contains(rec.Body.String(), "/dump") {
		t.Errorf("GET / body = %q, want endpoint index", rec.Body.String())
	}

	if rec := get("/nope"); rec.Code != http.StatusNotFound {
		t.Errorf("GET /nope = %d, want 404", rec.Code)
	}
}
