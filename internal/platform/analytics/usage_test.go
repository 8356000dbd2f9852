package analytics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func TestRecordAggregatesPerEndpoint(t *testing.T) {
	tracker := NewUsageTracker()
	tracker.Record(http.MethodGet, "/api/v1/appointments", http.StatusOK, 10*time.Millisecond)
	tracker.Record(http.MethodGet, "/api/v1/appointments", http.StatusInternalServerError, 30*time.Millisecond)
	tracker.Record(http.MethodPost, "/api/v1/appointments", http.StatusCreated, 20*time.Millisecond)

	ov := tracker.Overview()
	if ov.TotalRequests != 3 {
		t.Errorf("total = %d, want 3", ov.TotalRequests)
	}
	if ov.TotalErrors != 1 {
		t.Errorf("errors = %d, want 1", ov.TotalErrors)
	}
	if ov.Endpoints != 2 {
		t.Errorf("endpoints = %d, want 2", ov.Endpoints)
	}
	if ov.AvgLatency != 20*time.Millisecond {
		t.Errorf("avg latency = %s, want 20ms", ov.AvgLatency)
	}
}

func TestClientErrorsNotCountedAsErrors(t *testing.T) {
	tracker := NewUsageTracker()
	tracker.Record(http.MethodGet, "/x", http.StatusNotFound, time.Millisecond)
	tracker.Record(http.MethodGet, "/x", http.StatusConflict, time.Millisecond)

	if ov := tracker.Overview(); ov.TotalErrors != 0 {
		t.Errorf("errors = %d, want 0", ov.TotalErrors)
	}
}

func TestTopEndpointsOrderedByVolume(t *testing.T) {
	tracker := NewUsageTracker()
	for i := 0; i < 5; i++ {
		tracker.Record(http.MethodGet, "/busy", http.StatusOK, time.Millisecond)
	}
	tracker.Record(http.MethodGet, "/quiet", http.StatusOK, time.Millisecond)

	top := tracker.TopEndpoints(1)
	if len(top) != 1 || top[0].Path != "/busy" {
		t.Fatalf("unexpected top endpoints: %+v", top)
	}
	if top[0].RequestCount != 5 {
		t.Errorf("count = %d, want 5", top[0].RequestCount)
	}
}

func TestUsageMiddlewareRecordsRoute(t *testing.T) {
	tracker := NewUsageTracker()
	e := echo.New()
	e.Use(UsageMiddleware(tracker))
	e.GET("/items/:id", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	for _, id := range []string{"1", "2", "3"} {
		req := httptest.NewRequest(http.MethodGet, "/items/"+id, nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
	}

	top := tracker.TopEndpoints(10)
	if len(top) != 1 {
		t.Fatalf("expected one route key, got %d", len(top))
	}
	if top[0].Path != "/items/:id" || top[0].RequestCount != 3 {
		t.Errorf("got %+v", top[0])
	}
}

func TestUsageHandlerOverview(t *testing.T) {
	tracker := NewUsageTracker()
	tracker.Record(http.MethodGet, "/x", http.StatusOK, time.Millisecond)

	e := echo.New()
	NewUsageHandler(tracker).RegisterRoutes(e.Group(""))

	req := httptest.NewRequest(http.MethodGet, "/stats/overview", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
