package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// PoolStats represents database connection pool statistics.
type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireCount    int64  `json:"acquire_count"`
	AcquireDuration string `json:"acquire_duration"`
}

// GetPoolStats returns connection pool statistics.
func GetPoolStats(pool *pgxpool.Pool) *PoolStats {
	stat := pool.Stat()
	return &PoolStats{
		TotalConns:      stat.TotalConns(),
		IdleConns:       stat.IdleConns(),
		AcquiredConns:   stat.AcquiredConns(),
		MaxConns:        stat.MaxConns(),
		AcquireCount:    stat.AcquireCount(),
		AcquireDuration: stat.AcquireDuration().String(),
	}
}

// HealthCheck is one named dependency probe.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// PingCheck probes anything with a Ping method, such as a *pgxpool.Pool.
func PingCheck(name string, p interface{ Ping(context.Context) error }) HealthCheck {
	return HealthCheck{Name: name, Check: p.Ping}
}

// HealthResponse is the body of the health endpoint.
type HealthResponse struct {
	Status string                 `json:"status"`
	Checks map[string]string      `json:"checks"`
	Info   map[string]interface{} `json:"info,omitempty"`
}

// HealthHandler runs every check with a 5 second budget. Any failing check
// makes the endpoint answer 503. info is evaluated per request and added to
// the body as-is.
func HealthHandler(info func() map[string]interface{}, checks ...HealthCheck) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		resp := HealthResponse{Status: "healthy", Checks: make(map[string]string, len(checks))}
		code := http.StatusOK
		for _, hc := range checks {
			if err := hc.Check(ctx); err != nil {
				resp.Checks[hc.Name] = err.Error()
				resp.Status = "unhealthy"
				code = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[hc.Name] = "ok"
		}
		if info != nil {
			resp.Info = info()
		}
		return c.JSON(code, resp)
	}
}
