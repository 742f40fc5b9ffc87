package handler

import (
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"thsrquery/internal/aggregator"
	"thsrquery/internal/auth"
	"thsrquery/internal/middleware"
)

const version = "1.0.0"

// Stats tracks server-wide request metrics.
type Stats struct {
	startTime        time.Time
	requestCount     atomic.Int64
	rateLimitBlocked atomic.Int64
}

func NewStats() *Stats {
	return &Stats{startTime: time.Now()}
}

func (s *Stats) IncRequests()         { s.requestCount.Add(1) }
func (s *Stats) IncRateLimitBlocked() { s.rateLimitBlocked.Add(1) }

// Count is middleware that counts every request.
func (s *Stats) Count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.IncRequests()
		next.ServeHTTP(w, r)
	})
}

type StatsHandler struct {
	stats       *Stats
	aggregator  func() aggregator.Stats
	tokens      func() auth.Stats
	rateLimiter func() middleware.Stats
}

func NewStatsHandler(stats *Stats, agg func() aggregator.Stats, tokens func() auth.Stats, rateLimiter func() middleware.Stats) *StatsHandler {
	return &StatsHandler{
		stats:       stats,
		aggregator:  agg,
		tokens:      tokens,
		rateLimiter: rateLimiter,
	}
}

type StatsResponse struct {
	Server      ServerStatsResponse `json:"server"`
	Upstream    aggregator.Stats    `json:"upstream"`
	Token       auth.Stats          `json:"token"`
	RateLimiter middleware.Stats    `json:"rate_limiter"`
	Go          GoStatsResponse     `json:"go"`
}

type ServerStatsResponse struct {
	Uptime        string    `json:"uptime"`
	UptimeSeconds float64   `json:"uptime_seconds"`
	StartTime     time.Time `json:"start_time"`
	RequestCount  int64     `json:"request_count"`
	RateLimited   int64     `json:"rate_limited"`
	Version       string    `json:"version"`
}

type GoStatsResponse struct {
	Goroutines  int     `json:"goroutines"`
	HeapAlloc   uint64  `json:"heap_alloc_bytes"`
	HeapAllocMB float64 `json:"heap_alloc_mb"`
	NumGC       uint32  `json:"num_gc"`
	GoVersion   string  `json:"go_version"`
}

func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(h.stats.startTime)

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	response := StatsResponse{
		Server: ServerStatsResponse{
			Uptime:        uptime.Round(time.Second).String(),
			UptimeSeconds: uptime.Seconds(),
			StartTime:     h.stats.startTime,
			RequestCount:  h.stats.requestCount.Load(),
			RateLimited:   h.stats.rateLimitBlocked.Load(),
			Version:       version,
		},
		Upstream:    h.aggregator(),
		Token:       h.tokens(),
		RateLimiter: h.rateLimiter(),
		Go: GoStatsResponse{
			Goroutines:  runtime.NumGoroutine(),
			HeapAlloc:   mem.HeapAlloc,
			HeapAllocMB: float64(mem.HeapAlloc) / 1024 / 1024,
			NumGC:       mem.NumGC,
			GoVersion:   runtime.Version(),
		},
	}

	w.Header().Set("Cache-Control", "no-cache")
	respondJSON(w, http.StatusOK, response)
}
