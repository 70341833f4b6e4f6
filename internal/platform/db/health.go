package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// PoolStats holds a snapshot of connection pool statistics.
type PoolStats struct {
	TotalConns      int32         `json:"total_conns"`
	IdleConns       int32         `json:"idle_conns"`
	AcquiredConns   int32         `json:"acquired_conns"`
	MaxConns        int32         `json:"max_conns"`
	AcquireCount    int64         `json:"acquire_count"`
	AcquireDuration time.Duration `json:"acquire_duration"`
	Healthy         bool          `json:"healthy"`
}

// GetPoolStats returns current pool statistics with a health check ping.
func GetPoolStats(ctx context.Context, pool *pgxpool.Pool) PoolStats {
	stat := pool.Stat()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	healthy := pool.Ping(pingCtx) == nil

	return PoolStats{
		TotalConns:      stat.TotalConns(),
		IdleConns:       stat.IdleConns(),
		AcquiredConns:   stat.AcquiredConns(),
		MaxConns:        stat.MaxConns(),
		AcquireCount:    stat.AcquireCount(),
		AcquireDuration: stat.AcquireDuration(),
		Healthy:         healthy,
	}
}

// HealthHandler returns an echo handler that reports database pool health.
// It responds 200 with pool statistics when the database is reachable and
// 503 otherwise.
func HealthHandler(pool *pgxpool.Pool) echo.HandlerFunc {
	return func(c echo.Context) error {
		stats := GetPoolStats(c.Request().Context(), pool)
		if !stats.Healthy {
			return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
				"status": "unhealthy",
				"pool":   stats,
			})
		}
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status": "healthy",
			"pool":   stats,
		})
	}
}
