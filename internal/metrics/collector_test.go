package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCounterIdentity(t *testing.T) {
	c := NewCollector()
	a := c.Counter("test_total", "help", "")
	b := c.Counter("test_total", "help", "")
	if a != b {
		t.Error("same name and labels must return the same counter")
	}
	labeled := c.Counter("test_total", "help", `channel="sms"`)
	if labeled == a {
		t.Error("different label sets must be distinct series")
	}
}

func TestCounterAndGauge(t *testing.T) {
	c := NewCollector()
	ctr := c.Counter("requests_total", "Requests", "")
	ctr.Inc()
	ctr.Add(2)
	if ctr.Value() != 3 {
		t.Errorf("counter = %d, want 3", ctr.Value())
	}

	g := c.Gauge("connections", "Connections", "")
	g.Inc()
	g.Inc()
	g.Dec()
	if g.Value() != 1 {
		t.Errorf("gauge = %d, want 1", g.Value())
	}
}

func TestHistogramBuckets(t *testing.T) {
	c := NewCollector()
	h := c.Histogram("latency_seconds", "Latency", "", []float64{0.1, 1, 10})
	h.Observe(0.05)
	h.Observe(0.5)
	h.Observe(100)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.count != 3 {
		t.Errorf("count = %d", h.count)
	}
	if h.buckets[0].count != 1 || h.buckets[1].count != 2 || h.buckets[2].count != 2 {
		t.Errorf("buckets = %+v", h.buckets)
	}
}

func TestHandlerExposition(t *testing.T) {
	c := NewCollector()
	c.Counter("dealer_sends_total", "Sends", `channel="sms"`).Add(5)
	c.Gauge("dealer_connections", "Connections", "").Set(2)
	c.Histogram("dealer_latency_seconds", "Latency", "", []float64{1}).Observe(0.5)

	rec := httptest.NewRecorder()
	c.Handler()(rec, httptest.NewRequest("GET", "/metrics", nil))

	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("content type = %q", ct)
	}
	body := rec.Body.String()
	for _, want := range []string{
		"# TYPE dealer_sends_total counter",
		`dealer_sends_total{channel="sms"} 5`,
		"dealer_connections 2",
		`dealer_latency_seconds_bucket{le="1"} 1`,
		"dealer_latency_seconds_count 1",
		"dealerlink_uptime_seconds",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("exposition missing %q\n%s", want, body)
		}
	}
}

func TestSendCounter(t *testing.T) {
	if SendCounter("sms") != SendsSMS || SendCounter("email") != SendsEmail {
		t.Error("known channels must map to the predefined counters")
	}
	custom := SendCounter("carrier-pigeon")
	if custom == nil || custom == SendsSMS {
		t.Error("unknown channels get their own labeled series")
	}
}
