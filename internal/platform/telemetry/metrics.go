// Package telemetry keeps in-process HTTP and record-access metrics and
// serves them in the Prometheus text exposition format.
package telemetry

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/wellness/portal/internal/platform/middleware"
)

// durationBuckets are the request duration boundaries in seconds.
var durationBuckets = []float64{
	0.005, 0.010, 0.025, 0.050, 0.100, 0.250, 0.500, 1.0, 2.5, 5.0,
}

// histogram counts observations per bucket. Bucket counts are stored
// non-cumulative; export accumulates them.
type histogram struct {
	boundaries   []float64
	bucketCounts []int64
	count        int64
	sum          uint64 // math.Float64bits
	mu           sync.Mutex
}

func newHistogram(boundaries []float64) *histogram {
	return &histogram{
		boundaries:   boundaries,
		bucketCounts: make([]int64, len(boundaries)),
	}
}

// Observe records a single value.
func (h *histogram) Observe(v float64) {
	atomic.AddInt64(&h.count, 1)
	for {
		old := atomic.LoadUint64(&h.sum)
		next := math.Float64bits(math.Float64frombits(old) + v)
		if atomic.CompareAndSwapUint64(&h.sum, old, next) {
			break
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for i, b := range h.boundaries {
		if v <= b {
			h.bucketCounts[i]++
			return
		}
	}
}

// Count returns the number of observations.
func (h *histogram) Count() int64 { return atomic.LoadInt64(&h.count) }

// Sum returns the sum of all observations.
func (h *histogram) Sum() float64 { return math.Float64frombits(atomic.LoadUint64(&h.sum)) }

func (h *histogram) cumulative() []int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	cum := make([]int64, len(h.bucketCounts))
	var running int64
	for i, c := range h.bucketCounts {
		running += c
		cum[i] = running
	}
	return cum
}

// labelKey joins label values into a map key.
func labelKey(values ...string) string { return strings.Join(values, "|") }

// Metrics holds every series the server exposes. The zero value is not
// usable; call New.
type Metrics struct {
	active int64

	mu        sync.RWMutex
	durations map[string]*histogram // method|route|status
	access    map[string]*int64     // action|outcome
}

// New returns an empty metrics registry.
func New() *Metrics {
	return &Metrics{
		durations: make(map[string]*histogram),
		access:    make(map[string]*int64),
	}
}

// Middleware records the in-flight gauge and a duration histogram per
// method, route pattern and status code.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			atomic.AddInt64(&m.active, 1)
			start := time.Now()

			err := next(c)

			atomic.AddInt64(&m.active, -1)
			status := c.Response().Status
			if err != nil && !c.Response().Committed {
				status = statusOf(err)
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			m.histogram(labelKey(c.Request().Method, route, strconv.Itoa(status))).
				Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// RecordAccess counts patient record access by action and outcome. It
// satisfies middleware.AuditRecorder.
func (m *Metrics) RecordAccess(entry middleware.AuditEntry) error {
	outcome := "success"
	switch {
	case entry.StatusCode >= 500:
		outcome = "error"
	case entry.StatusCode >= 400:
		outcome = "rejected"
	}
	key := labelKey(entry.Action, outcome)

	m.mu.RLock()
	p, ok := m.access[key]
	m.mu.RUnlock()
	if !ok {
		m.mu.Lock()
		if p, ok = m.access[key]; !ok {
			p = new(int64)
			m.access[key] = p
		}
		m.mu.Unlock()
	}
	atomic.AddInt64(p, 1)
	return nil
}

// AccessCount returns the access counter for action and outcome.
func (m *Metrics) AccessCount(action, outcome string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.access[labelKey(action, outcome)]; ok {
		return atomic.LoadInt64(p)
	}
	return 0
}

// Active returns the number of requests in flight.
func (m *Metrics) Active() int64 { return atomic.LoadInt64(&m.active) }

func (m *Metrics) histogram(key string) *histogram {
	m.mu.RLock()
	h, ok := m.durations[key]
	m.mu.RUnlock()
	if ok {
		return h
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok = m.durations[key]; !ok {
		h = newHistogram(durationBuckets)
		m.durations[key] = h
	}
	return h
}

// Handler serves all series in Prometheus text format.
func (m *Metrics) Handler() echo.HandlerFunc {
	return func(c echo.Context) error {
		var b strings.Builder

		b.WriteString("# HELP http_server_active_requests Number of in-flight HTTP requests.\n")
		b.WriteString("# TYPE http_server_active_requests gauge\n")
		fmt.Fprintf(&b, "http_server_active_requests %d\n\n", m.Active())

		m.mu.RLock()
		durations := make(map[string]*histogram, len(m.durations))
		for k, v := range m.durations {
			durations[k] = v
		}
		access := make(map[string]int64, len(m.access))
		for k, p := range m.access {
			access[k] = atomic.LoadInt64(p)
		}
		m.mu.RUnlock()

		const name = "http_server_request_duration_seconds"
		fmt.Fprintf(&b, "# HELP %s Duration of HTTP requests in seconds.\n", name)
		fmt.Fprintf(&b, "# TYPE %s histogram\n", name)
		for _, key := range sortedKeys(durations) {
			parts := strings.SplitN(key, "|", 3)
			labels := fmt.Sprintf("method=%q,route=%q,status_code=%q", parts[0], parts[1], parts[2])
			writeHistogram(&b, name, labels, durations[key])
		}
		b.WriteByte('\n')

		b.WriteString("# HELP patient_record_access_total Patient record accesses by action and outcome.\n")
		b.WriteString("# TYPE patient_record_access_total counter\n")
		for _, key := range sortedKeys(access) {
			parts := strings.SplitN(key, "|", 2)
			fmt.Fprintf(&b, "patient_record_access_total{action=%q,outcome=%q} %d\n", parts[0], parts[1], access[key])
		}

		return c.Blob(http.StatusOK, "text/plain; version=0.0.4; charset=utf-8", []byte(b.String()))
	}
}

func writeHistogram(b *strings.Builder, name, labels string, h *histogram) {
	cum := h.cumulative()
	for i, boundary := range h.boundaries {
		fmt.Fprintf(b, "%s_bucket{%s,le=\"%g\"} %d\n", name, labels, boundary, cum[i])
	}
	fmt.Fprintf(b, "%s_bucket{%s,le=\"+Inf\"} %d\n", name, labels, h.Count())
	fmt.Fprintf(b, "%s_sum{%s} %g\n", name, labels, h.Sum())
	fmt.Fprintf(b, "%s_count{%s} %d\n", name, labels, h.Count())
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func statusOf(err error) int {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return http.StatusInternalServerError
}
