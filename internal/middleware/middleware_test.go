// Highscore - Casual Game Score and Leaderboard Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/highscore

package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/highscore/internal/metrics"
)

func TestRequestID_GeneratesNewID(t *testing.T) {
	t.Parallel()

	var capturedID string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedID = GetRequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", nil))

	responseID := rec.Header().Get(RequestIDHeader)
	if _, err := uuid.Parse(responseID); err != nil {
		t.Errorf("X-Request-ID %q is not a UUID: %v", responseID, err)
	}
	if capturedID != responseID {
		t.Errorf("context id = %q, want %q", capturedID, responseID)
	}
}

func TestRequestID_UpstreamID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		upstream string
		keep     bool
	}{
		{"plain", "req-123", true},
		{"too long", strings.Repeat("a", maxRequestIDLength+1), false},
		{"newline", "abc\ninjected", false},
		{"space", "a b", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			handler := RequestID(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set(RequestIDHeader, tt.upstream)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			got := rec.Header().Get(RequestIDHeader)
			if (got == tt.upstream) != tt.keep {
				t.Errorf("X-Request-ID = %q, kept upstream = %v, want %v", got, got == tt.upstream, tt.keep)
			}
		})
	}
}

func TestPrometheusMetrics_UsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(PrometheusMetrics)
	r.Get("/api/game/stats/{deviceId}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	route := "/api/game/stats/{deviceId}"
	before := testutil.ToFloat64(metrics.APIRequestsTotal.WithLabelValues("GET", route, "404"))
	for _, id := range []string{"a", "b", "c"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/game/stats/"+id, nil))
	}
	after := testutil.ToFloat64(metrics.APIRequestsTotal.WithLabelValues("GET", route, "404"))
	if after-before != 3 {
		t.Errorf("requests counted under %s = %v, want 3", route, after-before)
	}
	if v := testutil.ToFloat64(metrics.APIActiveRequests); v != 0 {
		t.Errorf("active requests = %v after completion, want 0", v)
	}
}

func TestCompression(t *testing.T) {
	t.Parallel()

	body := strings.Repeat("leaderboard ", 200)
	handler := Compression(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, body)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/game/ranking", nil)
	req.Header.Set("Accept-Encoding", "gzip, deflate")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Header().Get("Content-Encoding") != "gzip" {
		t.Fatalf("Content-Encoding = %q, want gzip", rec.Header().Get("Content-Encoding"))
	}
	zr, err := gzip.NewReader(rec.Body)
	if err != nil {
		t.Fatal(err)
	}
	got, _ := io.ReadAll(zr)
	if string(got) != body {
		t.Error("decompressed body does not match")
	}

	plain := httptest.NewRecorder()
	handler.ServeHTTP(plain, httptest.NewRequest(http.MethodGet, "/", nil))
	if plain.Header().Get("Content-Encoding") != "" || plain.Body.String() != body {
		t.Error("a client without Accept-Encoding should get the plain body")
	}
}

func TestPerformanceMonitor(t *testing.T) {
	t.Parallel()

	pm := NewPerformanceMonitor(3)
	now := time.Now()
	pm.Record(RequestSample{Route: "/old", Method: "GET", Duration: time.Second, StatusCode: 200, Timestamp: now})
	for i := 0; i < 3; i++ {
		pm.Record(RequestSample{Route: "/r", Method: "GET", Duration: time.Duration(i+1) * 10 * time.Millisecond, StatusCode: 200 + 150*i, Timestamp: now})
	}

	stats := pm.Stats()
	if len(stats) != 1 {
		t.Fatalf("Stats() = %+v, want only /r after the window rolled over", stats)
	}
	s := stats[0]
	if s.Endpoint != "GET /r" || s.RequestCount != 3 || s.MaxMs != 30 || s.P50Ms != 20 || s.Errors != 1 {
		t.Errorf("Stats()[0] = %+v", s)
	}
}

func TestPerformanceMonitor_Middleware(t *testing.T) {
	t.Parallel()

	pm := NewPerformanceMonitor(10)
	r := chi.NewRouter()
	r.Use(pm.Middleware)
	r.Get("/api/game/history/{deviceId}", func(http.ResponseWriter, *http.Request) {})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/game/history/x", nil))
	stats := pm.Stats()
	if len(stats) != 1 || stats[0].Endpoint != "GET /api/game/history/{deviceId}" {
		t.Errorf("Stats() = %+v", stats)
	}
}
