// Highscore - Casual Game Score and Leaderboard Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/highscore

package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/goccy/go-json"

	"github.com/tomtom215/highscore/internal/cache"
	"github.com/tomtom215/highscore/internal/config"
	"github.com/tomtom215/highscore/internal/database"
	"github.com/tomtom215/highscore/internal/kv"
	"github.com/tomtom215/highscore/internal/models"
	"github.com/tomtom215/highscore/internal/ratelimit"
	"github.com/tomtom215/highscore/internal/scores"
)

const testDevice = "dddddddddddddddddddddddddddddddd"

// DuckDB is opened one at a time across the package's tests.
var testDBMutex sync.Mutex

func testConfig() *config.Config {
	return &config.Config{
		RateLimit: config.RateLimitConfig{
			Enabled:     true,
			Window:      time.Minute,
			DeviceLimit: 60,
			IPLimit:     100,
			StatsLimit:  100,
			Timeout:     time.Second,
		},
		Ranking: config.RankingConfig{
			APILimit: 50,
			MaxLimit: 100,
		},
		Scores: config.ScoresConfig{MaxScore: 999999, ReplaceOnTie: true},
	}
}

type testServer struct {
	handler http.Handler
	cache   *cache.Cache
	redis   *miniredis.Miniredis
}

func setupTestServer(t *testing.T, cfg *config.Config) *testServer {
	t.Helper()

	testDBMutex.Lock()
	db, err := database.New(&config.DatabaseConfig{Path: ":memory:", MaxMemory: "256MB"})
	testDBMutex.Unlock()
	if err != nil {
		t.Fatalf("database.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	c := cache.New(cache.Options{MemoryOnly: true})
	t.Cleanup(func() { _ = c.Close() })

	svc, err := scores.NewService(db, c, scores.ServiceOptions{
		Ledger:   scores.LedgerOptions{MaxScore: cfg.Scores.MaxScore, ReplaceOnTie: cfg.Scores.ReplaceOnTie},
		Location: time.UTC,
	})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}

	mr := miniredis.RunT(t)
	rs := kv.NewRedisStore(kv.RedisOptions{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rs.Close() })
	limiter := ratelimit.New(rs, cfg.RateLimit.Window, cfg.RateLimit.Timeout, ratelimit.WithEscalation(ratelimit.Escalation{
		BurstLimit:    cfg.RateLimit.BurstLimit,
		BurstWindow:   cfg.RateLimit.BurstWindow,
		BlockDuration: cfg.RateLimit.BlockDuration,
		Allowlist:     cfg.RateLimit.IPAllowlist,
	}))

	h := NewHandler(svc, c, limiter, cfg)
	return &testServer{
		handler: NewRouter(h, nil).SetupChi(),
		cache:   c,
		redis:   mr,
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
	Meta    APIMeta         `json:"meta"`
}

func do(t *testing.T, h http.Handler, method, target, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 && strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode %s %s response: %v\n%s", method, target, err, w.Body.String())
		}
	}
	return w, env
}

func decodeData(t *testing.T, env envelope, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(env.Data, v); err != nil {
		t.Fatalf("decode data: %v\n%s", err, env.Data)
	}
}

func TestSubmitScore_EndToEnd(t *testing.T) {
	ts := setupTestServer(t, testConfig())

	w, env := do(t, ts.handler, http.MethodPost, "/api/game/submit", `{"deviceId":"`+testDevice+`","score":500}`)
	if w.Code != http.StatusOK || !env.Success {
		t.Fatalf("first submit status = %d, body = %s", w.Code, w.Body.String())
	}
	var first models.SubmitResult
	decodeData(t, env, &first)
	if !first.IsNewBest || first.BestScore != 500 || first.RecordID == "" {
		t.Errorf("first submit = %+v, want new best 500 with a record id", first)
	}
	if env.Meta.RequestID == "" || env.Meta.Timestamp == 0 {
		t.Errorf("meta = %+v, want request id and timestamp", env.Meta)
	}

	_, env = do(t, ts.handler, http.MethodPost, "/api/game/submit", `{"deviceId":"`+testDevice+`","score":300}`)
	var second models.SubmitResult
	decodeData(t, env, &second)
	if second.IsNewBest || second.BestScore != 500 || second.RecordID != "" {
		t.Errorf("second submit = %+v, want kept best 500", second)
	}

	w, env = do(t, ts.handler, http.MethodGet, "/api/game/stats/"+testDevice, "")
	if w.Code != http.StatusOK {
		t.Fatalf("stats status = %d, body = %s", w.Code, w.Body.String())
	}
	var stats models.DeviceStats
	decodeData(t, env, &stats)
	if stats.BestScore != 500 || stats.Rank == nil || *stats.Rank != 1 {
		t.Errorf("stats = %+v, want best 500 rank 1", stats)
	}

	w, env = do(t, ts.handler, http.MethodGet, "/api/game/ranking?type=all&limit=10", "")
	if w.Code != http.StatusOK {
		t.Fatalf("ranking status = %d, body = %s", w.Code, w.Body.String())
	}
	var ranking RankingResponse
	decodeData(t, env, &ranking)
	if ranking.Total != 1 || ranking.Type != models.TimeRangeAll {
		t.Fatalf("ranking = %+v, want one all-time entry", ranking)
	}
	if got := ranking.Rankings[0]; got.DeviceID != testDevice || got.Score != 500 || got.Rank != 1 {
		t.Errorf("ranking[0] = %+v", got)
	}
}

func TestSubmitScore_RankingNotStaleAfterSubmit(t *testing.T) {
	ts := setupTestServer(t, testConfig())
	other := strings.Repeat("e", 32)

	do(t, ts.handler, http.MethodPost, "/api/game/submit", `{"deviceId":"`+testDevice+`","score":100}`)
	// warm the cached leaderboard
	do(t, ts.handler, http.MethodGet, "/api/game/ranking", "")
	do(t, ts.handler, http.MethodPost, "/api/game/submit", `{"deviceId":"`+other+`","score":200}`)

	_, env := do(t, ts.handler, http.MethodGet, "/api/game/ranking", "")
	var ranking RankingResponse
	decodeData(t, env, &ranking)
	if ranking.Total != 2 || ranking.Rankings[0].DeviceID != other {
		t.Errorf("ranking after submit = %+v, want %s first", ranking.Rankings, other)
	}
}

func TestSubmitScore_Validation(t *testing.T) {
	ts := setupTestServer(t, testConfig())

	tests := []struct {
		name     string
		body     string
		wantCode string
	}{
		{"malformed json", `{"deviceId":`, ErrCodeValidation},
		{"fractional score", `{"deviceId":"` + testDevice + `","score":1.5}`, ErrCodeValidation},
		{"missing score", `{"deviceId":"` + testDevice + `"}`, ErrCodeValidation},
		{"negative score", `{"deviceId":"` + testDevice + `","score":-1}`, ErrCodeValidation},
		{"score above max", `{"deviceId":"` + testDevice + `","score":1000000}`, ErrCodeValidation},
		{"missing device", `{"score":10}`, ErrCodeValidation},
		{"uppercase device", `{"deviceId":"` + strings.ToUpper(testDevice) + `","score":10}`, ErrCodeInvalidDeviceID},
		{"short device", `{"deviceId":"abc","score":10}`, ErrCodeInvalidDeviceID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, env := do(t, ts.handler, http.MethodPost, "/api/game/submit", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400; body = %s", w.Code, w.Body.String())
			}
			if env.Error == nil || env.Error.Code != tt.wantCode {
				t.Errorf("error = %+v, want code %s", env.Error, tt.wantCode)
			}
		})
	}
}

func TestSubmitScore_DeviceRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.DeviceLimit = 2
	ts := setupTestServer(t, cfg)
	body := `{"deviceId":"` + testDevice + `","score":1}`

	for i := 0; i < 2; i++ {
		if w, _ := do(t, ts.handler, http.MethodPost, "/api/game/submit", body); w.Code != http.StatusOK {
			t.Fatalf("submit %d status = %d", i+1, w.Code)
		}
	}
	w, env := do(t, ts.handler, http.MethodPost, "/api/game/submit", body)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("third submit status = %d, want 429", w.Code)
	}
	if env.Error == nil || env.Error.Code != ErrCodeRateLimitExceeded {
		t.Errorf("error = %+v", env.Error)
	}
	if got := w.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Errorf("X-RateLimit-Remaining = %q, want 0", got)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header missing")
	}

	// next window
	ts.redis.FastForward(time.Minute + time.Second)
	if w, _ := do(t, ts.handler, http.MethodPost, "/api/game/submit", body); w.Code != http.StatusOK {
		t.Errorf("submit after window status = %d, want 200", w.Code)
	}
}

func TestRanking_IPBlockedAfterRepeatedViolations(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.IPLimit = 2
	cfg.RateLimit.BurstLimit = 1
	cfg.RateLimit.BurstWindow = 5 * time.Minute
	cfg.RateLimit.BlockDuration = 15 * time.Minute
	ts := setupTestServer(t, cfg)

	for i := 0; i < 2; i++ {
		if w, _ := do(t, ts.handler, http.MethodGet, "/api/game/ranking", ""); w.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i+1, w.Code)
		}
	}
	w, env := do(t, ts.handler, http.MethodGet, "/api/game/ranking", "")
	if w.Code != http.StatusTooManyRequests || env.Error == nil || env.Error.Code != ErrCodeRateLimitExceeded {
		t.Fatalf("first violation = %d %+v, want 429 %s", w.Code, env.Error, ErrCodeRateLimitExceeded)
	}
	w, env = do(t, ts.handler, http.MethodGet, "/api/game/ranking", "")
	if w.Code != http.StatusTooManyRequests || env.Error == nil || env.Error.Code != ErrCodeIPBlocked {
		t.Fatalf("second violation = %d %+v, want 429 %s", w.Code, env.Error, ErrCodeIPBlocked)
	}
	if got := w.Header().Get("Retry-After"); got != "900" {
		t.Errorf("Retry-After = %q, want the 900s block", got)
	}
	if w.Header().Get("X-RateLimit-Reset") == "" {
		t.Error("X-RateLimit-Reset header missing")
	}

	// the IP window resets but the block holds
	ts.redis.FastForward(time.Minute + time.Second)
	if _, env := do(t, ts.handler, http.MethodGet, "/api/game/ranking", ""); env.Error == nil || env.Error.Code != ErrCodeIPBlocked {
		t.Errorf("after window error = %+v, want %s", env.Error, ErrCodeIPBlocked)
	}

	ts.redis.FastForward(15 * time.Minute)
	if w, _ := do(t, ts.handler, http.MethodGet, "/api/game/ranking", ""); w.Code != http.StatusOK {
		t.Errorf("after block status = %d, want 200", w.Code)
	}
}

func TestRanking_AllowlistedIPSkipsLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.IPLimit = 1
	cfg.RateLimit.IPAllowlist = []string{"192.0.2.1"} // httptest's RemoteAddr
	ts := setupTestServer(t, cfg)

	for i := 0; i < 3; i++ {
		if w, _ := do(t, ts.handler, http.MethodGet, "/api/game/ranking", ""); w.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i+1, w.Code)
		}
	}
}

func TestRateLimit_FailsOpenWhenStoreDown(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.DeviceLimit = 1
	ts := setupTestServer(t, cfg)
	ts.redis.Close()

	body := `{"deviceId":"` + testDevice + `","score":1}`
	for i := 0; i < 3; i++ {
		if w, _ := do(t, ts.handler, http.MethodPost, "/api/game/submit", body); w.Code != http.StatusOK {
			t.Fatalf("submit %d status = %d, want 200 with limiter down", i+1, w.Code)
		}
	}
}

func TestRanking_QueryValidation(t *testing.T) {
	ts := setupTestServer(t, testConfig())

	tests := []struct {
		query    string
		wantCode string
	}{
		{"?type=monthly", ErrCodeInvalidRankType},
		{"?limit=0", ErrCodeInvalidLimit},
		{"?limit=101", ErrCodeInvalidLimit},
		{"?limit=ten", ErrCodeInvalidLimit},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			w, env := do(t, ts.handler, http.MethodGet, "/api/game/ranking"+tt.query, "")
			if w.Code != http.StatusBadRequest || env.Error == nil || env.Error.Code != tt.wantCode {
				t.Errorf("status = %d, error = %+v, want 400 %s", w.Code, env.Error, tt.wantCode)
			}
		})
	}
}

func TestRanking_WeeklyEmpty(t *testing.T) {
	ts := setupTestServer(t, testConfig())

	w, env := do(t, ts.handler, http.MethodGet, "/api/game/ranking?type=weekly", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var ranking RankingResponse
	decodeData(t, env, &ranking)
	if ranking.Type != models.TimeRangeWeekly || ranking.Total != 0 || ranking.Rankings == nil {
		t.Errorf("ranking = %+v, want empty non-nil weekly list", ranking)
	}
}

func TestDeviceStats_NotFound(t *testing.T) {
	ts := setupTestServer(t, testConfig())

	w, env := do(t, ts.handler, http.MethodGet, "/api/game/stats/"+testDevice, "")
	if w.Code != http.StatusNotFound || env.Error == nil || env.Error.Code != ErrCodeDeviceNotFound {
		t.Errorf("status = %d, error = %+v, want 404 DEVICE_NOT_FOUND", w.Code, env.Error)
	}

	w, env = do(t, ts.handler, http.MethodGet, "/api/game/stats/not-a-device", "")
	if w.Code != http.StatusBadRequest || env.Error == nil || env.Error.Code != ErrCodeInvalidDeviceID {
		t.Errorf("status = %d, error = %+v, want 400 INVALID_DEVICE_ID", w.Code, env.Error)
	}
}

func TestHistory_Paging(t *testing.T) {
	ts := setupTestServer(t, testConfig())
	do(t, ts.handler, http.MethodPost, "/api/game/submit", `{"deviceId":"`+testDevice+`","score":10}`)
	do(t, ts.handler, http.MethodPost, "/api/game/submit", `{"deviceId":"`+testDevice+`","score":20}`)

	w, env := do(t, ts.handler, http.MethodGet, "/api/game/history/"+testDevice+"?limit=5", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var page models.HistoryPage
	decodeData(t, env, &page)
	// only the live best record survives
	if page.Total != 1 || len(page.Records) != 1 || page.Records[0].Score != 20 || page.HasMore {
		t.Errorf("page = %+v, want the single record with score 20", page)
	}

	for _, q := range []string{"?limit=0", "?limit=101", "?offset=-1", "?offset=x"} {
		if w, _ := do(t, ts.handler, http.MethodGet, "/api/game/history/"+testDevice+q, ""); w.Code != http.StatusBadRequest {
			t.Errorf("history%s status = %d, want 400", q, w.Code)
		}
	}
}

// failingService returns a storage error from every call.
type failingService struct{}

var errStoreDown = errors.New("connection refused")

func (failingService) Submit(context.Context, string, int64) (models.SubmitResult, error) {
	return models.SubmitResult{}, &scores.StorageError{Op: "raise best score", Err: errStoreDown}
}

func (failingService) GetRanking(context.Context, models.TimeRange, int) ([]models.RankingItem, error) {
	return nil, &scores.StorageError{Op: "all-time ranking", Err: errStoreDown}
}

func (failingService) GetStatsWithRank(context.Context, string) (models.DeviceStats, error) {
	return models.DeviceStats{}, &scores.StorageError{Op: "get device stats", Err: errStoreDown}
}

func (failingService) GetHistory(context.Context, string, int, int) (models.HistoryPage, error) {
	return models.HistoryPage{}, errors.New("unexpected")
}

func (failingService) Ping(context.Context) error { return errStoreDown }

func TestHandlers_StorageErrors(t *testing.T) {
	t.Parallel()

	h := NewRouter(NewHandler(failingService{}, nil, nil, testConfig()), nil).SetupChi()

	w, env := do(t, h, http.MethodPost, "/api/game/submit", `{"deviceId":"`+testDevice+`","score":1}`)
	if w.Code != http.StatusInternalServerError || env.Error == nil || env.Error.Code != ErrCodeDatabaseError {
		t.Errorf("submit status = %d, error = %+v, want 500 DATABASE_ERROR", w.Code, env.Error)
	}
	if env.Error != nil && strings.Contains(env.Error.Message, "refused") {
		t.Errorf("error message leaks cause: %q", env.Error.Message)
	}

	w, env = do(t, h, http.MethodGet, "/api/game/ranking", "")
	if w.Code != http.StatusInternalServerError || env.Error == nil || env.Error.Code != ErrCodeDatabaseError {
		t.Errorf("ranking status = %d, error = %+v", w.Code, env.Error)
	}

	w, env = do(t, h, http.MethodGet, "/api/game/history/"+testDevice, "")
	if w.Code != http.StatusInternalServerError || env.Error == nil || env.Error.Code != ErrCodeInternalError {
		t.Errorf("history status = %d, error = %+v, want 500 INTERNAL_ERROR", w.Code, env.Error)
	}

	w, env = do(t, h, http.MethodGet, "/api/health", "")
	if w.Code != http.StatusServiceUnavailable || env.Success {
		t.Errorf("health status = %d, success = %v, want 503", w.Code, env.Success)
	}
}

func TestHealth_DegradedWithoutCache(t *testing.T) {
	ts := setupTestServer(t, testConfig())

	w, env := do(t, ts.handler, http.MethodGet, "/api/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var hs HealthStatus
	decodeData(t, env, &hs)
	if hs.Status != "healthy" || !hs.DatabaseConnected || !hs.CacheAvailable {
		t.Errorf("health = %+v, want healthy with memory-only cache", hs)
	}

	// a cache with a dead remote tier only degrades the service
	rs := kv.NewRedisStore(kv.RedisOptions{Addr: "127.0.0.1:1"})
	t.Cleanup(func() { _ = rs.Close() })
	dead := cache.New(cache.Options{Remote: rs, RemoteTimeout: 50 * time.Millisecond})
	t.Cleanup(func() { _ = dead.Close() })

	testDBMutex.Lock()
	db, err := database.New(&config.DatabaseConfig{Path: ":memory:", MaxMemory: "256MB"})
	testDBMutex.Unlock()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	svc, err := scores.NewService(db, dead, scores.ServiceOptions{})
	if err != nil {
		t.Fatal(err)
	}
	h := NewRouter(NewHandler(svc, dead, nil, testConfig()), nil).SetupChi()

	w, env = do(t, h, http.MethodGet, "/api/health", "")
	decodeData(t, env, &hs)
	if w.Code != http.StatusOK || hs.Status != "degraded" || hs.CacheAvailable {
		t.Errorf("status = %d, health = %+v, want 200 degraded", w.Code, hs)
	}
}

func TestStatus_ReportsCacheAndLimits(t *testing.T) {
	ts := setupTestServer(t, testConfig())
	do(t, ts.handler, http.MethodGet, "/api/game/ranking", "")
	do(t, ts.handler, http.MethodGet, "/api/game/ranking", "")

	w, env := do(t, ts.handler, http.MethodGet, "/api/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var st ServiceStatus
	decodeData(t, env, &st)
	if st.Cache == nil || st.Cache.MemoryHits < 1 {
		t.Errorf("cache stats = %+v, want at least one memory hit", st.Cache)
	}
	if !st.RateLimit.Enabled || st.RateLimit.DeviceLimit != 60 {
		t.Errorf("rate limit = %+v", st.RateLimit)
	}
	if len(st.Endpoints) == 0 {
		t.Error("endpoints empty, want the ranking route sampled")
	}
}

func TestRouter_CORSAndFallbacks(t *testing.T) {
	t.Parallel()

	h := NewRouter(NewHandler(failingService{}, nil, nil, testConfig()), nil).SetupChi()

	req := httptest.NewRequest(http.MethodOptions, "/api/game/submit", nil)
	req.Header.Set("Origin", "https://game.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
	}

	w, env := do(t, h, http.MethodGet, "/api/nope", "")
	if w.Code != http.StatusNotFound || env.Error == nil || env.Error.Code != ErrCodeNotFound {
		t.Errorf("unknown route status = %d, error = %+v", w.Code, env.Error)
	}

	w, env = do(t, h, http.MethodGet, "/api/game/submit", "")
	if w.Code != http.StatusMethodNotAllowed || env.Error == nil || env.Error.Code != ErrCodeMethodNotAllowed {
		t.Errorf("GET submit status = %d, error = %+v", w.Code, env.Error)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Request-ID", "upstream-123")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if got := w.Header().Get("X-Request-ID"); got != "upstream-123" {
		t.Errorf("X-Request-ID = %q, want upstream id echoed", got)
	}
}

func TestSubmitScore_BodyTooLarge(t *testing.T) {
	t.Parallel()

	h := NewRouter(NewHandler(failingService{}, nil, nil, testConfig()), nil).SetupChi()
	body := `{"deviceId":"` + testDevice + `","score":1,"pad":"` + string(bytes.Repeat([]byte("x"), 2048)) + `"}`
	if w, _ := do(t, h, http.MethodPost, "/api/game/submit", body); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}
