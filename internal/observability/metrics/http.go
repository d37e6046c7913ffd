// Package metrics collects request-level counters and latency histograms
// and renders them in the Prometheus text exposition format, without pulling
// in a metrics library.
package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

type seriesKey struct {
	handler string
	method  string
	code    string
}

type histogram struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

func newHistogram() *histogram {
	buckets := []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}
	return &histogram{buckets: buckets, counts: make([]uint64, len(buckets))}
}

func (h *histogram) observe(value float64) {
	h.count++
	h.sum += value
	for idx, bound := range h.buckets {
		if value <= bound {
			for i := idx; i < len(h.counts); i++ {
				h.counts[i]++
			}
			return
		}
	}
	// Values past the last bound only land in the implicit +Inf bucket.
}

type collector struct {
	mu       sync.Mutex
	requests map[seriesKey]uint64
	failures map[seriesKey]uint64
	latency  map[seriesKey]*histogram
}

var httpCollector = &collector{
	requests: make(map[seriesKey]uint64),
	failures: make(map[seriesKey]uint64),
	latency:  make(map[seriesKey]*histogram),
}

// ObserveRequest records one HTTP request's outcome and duration.
func ObserveRequest(handler, method string, status int, duration time.Duration) {
	httpCollector.observe(handler, method, status, duration)
}

func (c *collector) observe(handler, method string, status int, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := seriesKey{handler: handler, method: method, code: strconv.Itoa(status)}
	c.requests[key]++
	if status >= 500 {
		c.failures[seriesKey{handler: handler, method: method}]++
	}

	latKey := seriesKey{handler: handler, method: method}
	hist := c.latency[latKey]
	if hist == nil {
		hist = newHistogram()
		c.latency[latKey] = hist
	}
	hist.observe(duration.Seconds())
}

// Handler exposes the collected metrics.
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = fmt.Fprint(w, httpCollector.render())
	})
}

func (c *collector) render() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var builder strings.Builder
	builder.Grow(1024)

	builder.WriteString("# HELP finmitra_http_requests_total Total number of HTTP requests processed.\n")
	builder.WriteString("# TYPE finmitra_http_requests_total counter\n")
	for _, key := range sortedKeys(c.requests) {
		builder.WriteString(fmt.Sprintf("finmitra_http_requests_total{handler=%q,method=%q,code=%q} %d\n",
			key.handler, key.method, key.code, c.requests[key]))
	}

	builder.WriteString("# HELP finmitra_http_request_errors_total Total number of HTTP requests that ended in a server error.\n")
	builder.WriteString("# TYPE finmitra_http_request_errors_total counter\n")
	for _, key := range sortedKeys(c.failures) {
		builder.WriteString(fmt.Sprintf("finmitra_http_request_errors_total{handler=%q,method=%q} %d\n",
			key.handler, key.method, c.failures[key]))
	}

	builder.WriteString("# HELP finmitra_http_request_duration_seconds HTTP request duration in seconds.\n")
	builder.WriteString("# TYPE finmitra_http_request_duration_seconds histogram\n")
	latKeys := make([]seriesKey, 0, len(c.latency))
	for key := range c.latency {
		latKeys = append(latKeys, key)
	}
	sortKeys(latKeys)
	for _, key := range latKeys {
		hist := c.latency[key]
		for idx, bound := range hist.buckets {
			builder.WriteString(fmt.Sprintf("finmitra_http_request_duration_seconds_bucket{handler=%q,method=%q,le=%q} %d\n",
				key.handler, key.method, formatFloat(bound), hist.counts[idx]))
		}
		builder.WriteString(fmt.Sprintf("finmitra_http_request_duration_seconds_bucket{handler=%q,method=%q,le=\"+Inf\"} %d\n",
			key.handler, key.method, hist.count))
		builder.WriteString(fmt.Sprintf("finmitra_http_request_duration_seconds_sum{handler=%q,method=%q} %s\n",
			key.handler, key.method, formatFloat(hist.sum)))
		builder.WriteString(fmt.Sprintf("finmitra_http_request_duration_seconds_count{handler=%q,method=%q} %d\n",
			key.handler, key.method, hist.count))
	}

	return builder.String()
}

func sortedKeys(series map[seriesKey]uint64) []seriesKey {
	keys := make([]seriesKey, 0, len(series))
	for key := range series {
		keys = append(keys, key)
	}
	sortKeys(keys)
	return keys
}

func sortKeys(keys []seriesKey) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].handler != keys[j].handler {
			return keys[i].handler < keys[j].handler
		}
		if keys[i].method != keys[j].method {
			return keys[i].method < keys[j].method
		}
		return keys[i].code < keys[j].code
	})
}

func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
