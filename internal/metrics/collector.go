// Package metrics provides a lightweight, Prometheus-compatible metrics
// collector. It renders text/plain in Prometheus exposition format without
// pulling in the full prometheus/client_golang dependency.
package metrics

import (
	"fmt"
	"math"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Collector is the process-wide metrics collector.
var Collector = NewCollector()

// MetricsCollector aggregates counters, gauges, and histograms.
type MetricsCollector struct {
	counters   sync.Map // key -> *Counter
	gauges     sync.Map // key -> *Gauge
	histograms sync.Map // key -> *Histogram
	startTime  time.Time
}

func NewCollector() *MetricsCollector {
	return &MetricsCollector{startTime: time.Now()}
}

// Uptime returns how long the collector has been running.
func (c *MetricsCollector) Uptime() time.Duration {
	return time.Since(c.startTime)
}

// Counter is a monotonically increasing counter.
type Counter struct {
	name   string
	help   string
	labels string
	value  atomic.Int64
}

func (c *Counter) Inc()         { c.value.Add(1) }
func (c *Counter) Add(n int64)  { c.value.Add(n) }
func (c *Counter) Value() int64 { return c.value.Load() }

// Gauge is a value that can go up and down.
type Gauge struct {
	name   string
	help   string
	labels string
	value  atomic.Int64
}

func (g *Gauge) Set(v int64)  { g.value.Store(v) }
func (g *Gauge) Inc()         { g.value.Add(1) }
func (g *Gauge) Dec()         { g.value.Add(-1) }
func (g *Gauge) Value() int64 { return g.value.Load() }

// Histogram tracks the distribution of observed values.
type Histogram struct {
	name    string
	help    string
	labels  string
	mu      sync.Mutex
	count   int64
	sum     float64
	buckets []histBucket
}

type histBucket struct {
	le    float64
	count int64
}

func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += v
	for i := range h.buckets {
		if v <= h.buckets[i].le {
			h.buckets[i].count++
		}
	}
}

// Counter returns or creates a counter with the given name and label set.
func (c *MetricsCollector) Counter(name, help, labels string) *Counter {
	key := name + "{" + labels + "}"
	if v, ok := c.counters.Load(key); ok {
		return v.(*Counter)
	}
	ctr := &Counter{name: name, help: help, labels: labels}
	actual, _ := c.counters.LoadOrStore(key, ctr)
	return actual.(*Counter)
}

// Gauge returns or creates a gauge with the given name and label set.
func (c *MetricsCollector) Gauge(name, help, labels string) *Gauge {
	key := name + "{" + labels + "}"
	if v, ok := c.gauges.Load(key); ok {
		return v.(*Gauge)
	}
	g := &Gauge{name: name, help: help, labels: labels}
	actual, _ := c.gauges.LoadOrStore(key, g)
	return actual.(*Gauge)
}

// Histogram returns or creates a histogram with the given name and buckets.
func (c *MetricsCollector) Histogram(name, help, labels string, buckets []float64) *Histogram {
	key := name + "{" + labels + "}"
	if v, ok := c.histograms.Load(key); ok {
		return v.(*Histogram)
	}
	sort.Float64s(buckets)
	hb := make([]histBucket, len(buckets))
	for i, b := range buckets {
		hb[i] = histBucket{le: b}
	}
	h := &Histogram{name: name, help: help, labels: labels, buckets: hb}
	actual, _ := c.histograms.LoadOrStore(key, h)
	return actual.(*Histogram)
}

// Handler renders all metrics in Prometheus text exposition format.
func (c *MetricsCollector) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		var sb strings.Builder

		fmt.Fprintf(&sb, "# HELP dealerlink_uptime_seconds Time since start in seconds\n")
		fmt.Fprintf(&sb, "# TYPE dealerlink_uptime_seconds gauge\n")
		fmt.Fprintf(&sb, "dealerlink_uptime_seconds %d\n\n", int64(c.Uptime().Seconds()))

		helpWritten := make(map[string]bool)
		c.counters.Range(func(_, value any) bool {
			ctr := value.(*Counter)
			if !helpWritten[ctr.name] {
				fmt.Fprintf(&sb, "# HELP %s %s\n", ctr.name, ctr.help)
				fmt.Fprintf(&sb, "# TYPE %s counter\n", ctr.name)
				helpWritten[ctr.name] = true
			}
			writeSample(&sb, ctr.name, ctr.labels, fmt.Sprintf("%d", ctr.Value()))
			return true
		})

		helpWritten = make(map[string]bool)
		c.gauges.Range(func(_, value any) bool {
			g := value.(*Gauge)
			if !helpWritten[g.name] {
				fmt.Fprintf(&sb, "# HELP %s %s\n", g.name, g.help)
				fmt.Fprintf(&sb, "# TYPE %s gauge\n", g.name)
				helpWritten[g.name] = true
			}
			writeSample(&sb, g.name, g.labels, fmt.Sprintf("%d", g.Value()))
			return true
		})

		c.histograms.Range(func(_, value any) bool {
			h := value.(*Histogram)
			h.mu.Lock()
			defer h.mu.Unlock()

			fmt.Fprintf(&sb, "# HELP %s %s\n", h.name, h.help)
			fmt.Fprintf(&sb, "# TYPE %s histogram\n", h.name)
			for _, b := range h.buckets {
				le := fmt.Sprintf("%g", b.le)
				if math.IsInf(b.le, 1) {
					le = "+Inf"
				}
				bucketLabels := fmt.Sprintf("le=%q", le)
				if h.labels != "" {
					bucketLabels = h.labels + "," + bucketLabels
				}
				writeSample(&sb, h.name+"_bucket", bucketLabels, fmt.Sprintf("%d", b.count))
			}
			writeSample(&sb, h.name+"_count", h.labels, fmt.Sprintf("%d", h.count))
			writeSample(&sb, h.name+"_sum", h.labels, fmt.Sprintf("%f", h.sum))
			return true
		})

		fmt.Fprint(w, sb.String())
	}
}

func writeSample(sb *strings.Builder, name, labels, value string) {
	if labels != "" {
		fmt.Fprintf(sb, "%s{%s} %s\n", name, labels, value)
	} else {
		fmt.Fprintf(sb, "%s %s\n", name, value)
	}
}

// Pre-defined metrics used across the engine.
var (
	InboundReplies  = Collector.Counter("dealerlink_inbound_replies_total", "Inbound customer replies processed", "")
	RoutingTotal    = Collector.Counter("dealerlink_routing_decisions_total", "Routing decisions made", "")
	Escalations     = Collector.Counter("dealerlink_escalations_total", "Decisions escalated to a human agent", "")
	SendsSMS        = Collector.Counter("dealerlink_sends_total", "Outbound send attempts", `channel="sms"`)
	SendsEmail      = Collector.Counter("dealerlink_sends_total", "Outbound send attempts", `channel="email"`)
	SendsWebChat    = Collector.Counter("dealerlink_sends_total", "Outbound send attempts", `channel="webchat"`)
	SendFailures    = Collector.Counter("dealerlink_send_failures_total", "Failed send attempts", "")
	OptOuts         = Collector.Counter("dealerlink_sms_optouts_total", "SMS opt-out commands processed", "")
	LiveConnections = Collector.Gauge("dealerlink_webchat_connections", "Current live webchat connections", "")

	RoutingLatency = Collector.Histogram("dealerlink_routing_latency_seconds", "Routing decision latency in seconds", "",
		[]float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5})
	SendLatency = Collector.Histogram("dealerlink_send_latency_seconds", "Channel send latency in seconds", "",
		[]float64{0.05, 0.1, 0.5, 1, 5, 10, 30})
)

// SendCounter returns the send counter for a channel name.
func SendCounter(channel string) *Counter {
	switch channel {
	case "sms":
		return SendsSMS
	case "email":
		return SendsEmail
	case "webchat":
		return SendsWebChat
	default:
		return Collector.Counter("dealerlink_sends_total", "Outbound send attempts", fmt.Sprintf("channel=%q", channel))
	}
}
