// Package health exposes liveness and readiness endpoints covering the
// stores and upstream services the session engine depends on.
package health

import (
	"context"
	"database/sql"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

type ComponentStatus struct {
	Status    Status `json:"status"`
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

type RuntimeStats struct {
	Goroutines         int    `json:"goroutines"`
	MemoryAllocMB      uint64 `json:"memory_alloc_mb"`
	MemoryTotalAllocMB uint64 `json:"memory_total_alloc_mb"`
	MemorySysMB        uint64 `json:"memory_sys_mb"`
	NumGC              uint32 `json:"num_gc"`
}

type SessionStats struct {
	LiveSessions int `json:"live_sessions"`
}

type Stats struct {
	Sessions SessionStats `json:"sessions"`
	Runtime  RuntimeStats `json:"runtime"`
}

type HealthResponse struct {
	Status        Status                     `json:"status"`
	Timestamp     time.Time                  `json:"timestamp"`
	Version       string                     `json:"version"`
	UptimeSeconds int64                      `json:"uptime_seconds"`
	Stats         Stats                      `json:"stats"`
	Components    map[string]ComponentStatus `json:"components"`
}

// SessionCounter reports how many practice sessions this instance holds.
type SessionCounter interface {
	Count() int
}

type Handler struct {
	db            *gorm.DB
	redis         redis.UniversalClient
	sessions      SessionCounter
	credentialURL string
	gradingURL    string
	httpClient    *http.Client
	version       string
	startTime     time.Time
}

func NewHandler(db *gorm.DB, rdb redis.UniversalClient, sessions SessionCounter, credentialURL, gradingURL, version string) *Handler {
	return &Handler{
		db:            db,
		redis:         rdb,
		sessions:      sessions,
		credentialURL: credentialURL,
		gradingURL:    gradingURL,
		httpClient:    &http.Client{Timeout: 5 * time.Second},
		version:       version,
		startTime:     time.Now(),
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Liveness)
	e.GET("/readyz", h.Readiness)
}

func (h *Handler) Liveness(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) Readiness(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	components := make(map[string]ComponentStatus)
	var mu sync.Mutex
	var wg sync.WaitGroup

	checks := []struct {
		name  string
		check func(context.Context) ComponentStatus
	}{
		{"database", h.checkDatabase},
		{"redis", h.checkRedis},
		{"credential_service", func(ctx context.Context) ComponentStatus {
			return h.checkHTTP(ctx, h.credentialURL)
		}},
		{"grading_service", func(ctx context.Context) ComponentStatus {
			return h.checkHTTP(ctx, h.gradingURL)
		}},
	}

	wg.Add(len(checks))
	for _, check := range checks {
		go func(name string, fn func(context.Context) ComponentStatus) {
			defer wg.Done()
			status := fn(ctx)
			mu.Lock()
			components[name] = status
			mu.Unlock()
		}(check.name, check.check)
	}
	wg.Wait()

	overall := h.computeOverallStatus(components)

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	live := 0
	if h.sessions != nil {
		live = h.sessions.Count()
	}

	resp := HealthResponse{
		Status:        overall,
		Timestamp:     time.Now().UTC(),
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Stats: Stats{
			Sessions: SessionStats{LiveSessions: live},
			Runtime: RuntimeStats{
				Goroutines:         runtime.NumGoroutine(),
				MemoryAllocMB:      memStats.Alloc / 1024 / 1024,
				MemoryTotalAllocMB: memStats.TotalAlloc / 1024 / 1024,
				MemorySysMB:        memStats.Sys / 1024 / 1024,
				NumGC:              memStats.NumGC,
			},
		},
		Components: components,
	}

	statusCode := http.StatusOK
	if overall == StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}
	return c.JSON(statusCode, resp)
}

func (h *Handler) checkDatabase(ctx context.Context) ComponentStatus {
	start := time.Now()
	if h.db == nil {
		return ComponentStatus{Status: StatusUnhealthy, LatencyMs: time.Since(start).Milliseconds(), Error: "database not configured"}
	}

	sqlDB, err := h.db.DB()
	if err != nil {
		return ComponentStatus{Status: StatusUnhealthy, LatencyMs: time.Since(start).Milliseconds(), Error: "failed to get underlying db"}
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return ComponentStatus{Status: StatusUnhealthy, LatencyMs: time.Since(start).Milliseconds(), Error: "ping failed"}
	}

	return ComponentStatus{
		Status:    h.evaluateDBStats(sqlDB.Stats()),
		LatencyMs: time.Since(start).Milliseconds(),
	}
}

func (h *Handler) evaluateDBStats(stats sql.DBStats) Status {
	if stats.OpenConnections >= stats.MaxOpenConnections && stats.MaxOpenConnections > 0 {
		return StatusDegraded
	}
	return StatusHealthy
}

func (h *Handler) checkRedis(ctx context.Context) ComponentStatus {
	start := time.Now()
	if h.redis == nil {
		return ComponentStatus{Status: StatusUnhealthy, LatencyMs: time.Since(start).Milliseconds(), Error: "redis not configured"}
	}
	if err := h.redis.Ping(ctx).Err(); err != nil {
		return ComponentStatus{Status: StatusUnhealthy, LatencyMs: time.Since(start).Milliseconds(), Error: "ping failed"}
	}
	return ComponentStatus{Status: StatusHealthy, LatencyMs: time.Since(start).Milliseconds()}
}

// checkHTTP treats any HTTP response as reachable; the upstream owns its
// own semantics, we only care that it answers.
func (h *Handler) checkHTTP(ctx context.Context, baseURL string) ComponentStatus {
	start := time.Now()
	if baseURL == "" {
		return ComponentStatus{Status: StatusDegraded, LatencyMs: time.Since(start).Milliseconds(), Error: "not configured"}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/healthz", nil)
	if err != nil {
		return ComponentStatus{Status: StatusUnhealthy, LatencyMs: time.Since(start).Milliseconds(), Error: "bad url"}
	}
	resp, err := h.httpClient.Do(req)
	if err != nil {
		return ComponentStatus{Status: StatusUnhealthy, LatencyMs: time.Since(start).Milliseconds(), Error: "unreachable"}
	}
	resp.Body.Close()
	return ComponentStatus{Status: StatusHealthy, LatencyMs: time.Since(start).Milliseconds()}
}

func (h *Handler) computeOverallStatus(components map[string]ComponentStatus) Status {
	criticalComponents := []string{"database", "redis"}

	for _, name := range criticalComponents {
		if status, ok := components[name]; ok && status.Status == StatusUnhealthy {
			return StatusUnhealthy
		}
	}

	hasIssue := false
	for _, status := range components {
		if status.Status != StatusHealthy {
			hasIssue = true
		}
	}
	if hasIssue {
		return StatusDegraded
	}
	return StatusHealthy
}
