// Package analytics tracks API usage in memory for operational
// visibility: request volume, error rate, and latency per endpoint.
// Counters reset on restart; durable metrics are out of scope.
package analytics

import (
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// EndpointSummary is the per-route aggregate exposed over the stats API.
type EndpointSummary struct {
	Path         string        `json:"path"`
	Method       string        `json:"method"`
	RequestCount int64         `json:"request_count"`
	ErrorCount   int64         `json:"error_count"`
	AvgLatency   time.Duration `json:"avg_latency_ns"`
}

// Overview aggregates across all endpoints.
type Overview struct {
	TotalRequests int64         `json:"total_requests"`
	TotalErrors   int64         `json:"total_errors"`
	ErrorRate     float64       `json:"error_rate"`
	AvgLatency    time.Duration `json:"avg_latency_ns"`
	Endpoints     int           `json:"endpoints"`
	Since         time.Time     `json:"since"`
}

type endpointStats struct {
	path         string
	method       string
	requestCount int64
	errorCount   int64
	totalLatency time.Duration
}

// UsageTracker accumulates request metrics keyed by method+route.
type UsageTracker struct {
	mu        sync.Mutex
	endpoints map[string]*endpointStats
	since     time.Time
}

func NewUsageTracker() *UsageTracker {
	return &UsageTracker{
		endpoints: make(map[string]*endpointStats),
		since:     time.Now().UTC(),
	}
}

// Record adds one request observation. Status codes >= 500 count as
// errors; client errors are normal traffic.
func (t *UsageTracker) Record(method, path string, status int, latency time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := method + " " + path
	ep := t.endpoints[key]
	if ep == nil {
		ep = &endpointStats{path: path, method: method}
		t.endpoints[key] = ep
	}
	ep.requestCount++
	ep.totalLatency += latency
	if status >= http.StatusInternalServerError {
		ep.errorCount++
	}
}

func (t *UsageTracker) Overview() *Overview {
	t.mu.Lock()
	defer t.mu.Unlock()

	var requests, errCount int64
	var latency time.Duration
	for _, ep := range t.endpoints {
		requests += ep.requestCount
		errCount += ep.errorCount
		latency += ep.totalLatency
	}

	ov := &Overview{
		TotalRequests: requests,
		TotalErrors:   errCount,
		Endpoints:     len(t.endpoints),
		Since:         t.since,
	}
	if requests > 0 {
		ov.ErrorRate = float64(errCount) / float64(requests)
		ov.AvgLatency = latency / time.Duration(requests)
	}
	return ov
}

// TopEndpoints returns up to limit endpoints by request volume.
func (t *UsageTracker) TopEndpoints(limit int) []*EndpointSummary {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]*EndpointSummary, 0, len(t.endpoints))
	for _, ep := range t.endpoints {
		s := &EndpointSummary{
			Path:         ep.path,
			Method:       ep.method,
			RequestCount: ep.requestCount,
			ErrorCount:   ep.errorCount,
		}
		if ep.requestCount > 0 {
			s.AvgLatency = ep.totalLatency / time.Duration(ep.requestCount)
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestCount > out[j].RequestCount })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// UsageMiddleware records every request against its registered route,
// so path parameters do not explode the key space.
func UsageMiddleware(tracker *UsageTracker) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				} else {
					status = http.StatusInternalServerError
				}
			}
			tracker.Record(c.Request().Method, c.Path(), status, time.Since(start))
			return err
		}
	}
}

// UsageHandler exposes the tracked stats.
type UsageHandler struct {
	tracker *UsageTracker
}

func NewUsageHandler(tracker *UsageTracker) *UsageHandler {
	return &UsageHandler{tracker: tracker}
}

func (h *UsageHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/stats/overview", h.HandleOverview)
	g.GET("/stats/endpoints", h.HandleTopEndpoints)
}

func (h *UsageHandler) HandleOverview(c echo.Context) error {
	return c.JSON(http.StatusOK, h.tracker.Overview())
}

func (h *UsageHandler) HandleTopEndpoints(c echo.Context) error {
	return c.JSON(http.StatusOK, h.tracker.TopEndpoints(20))
}
