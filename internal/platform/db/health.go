package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

const healthPingTimeout = 3 * time.Second

// poolStats is the slice of pgxpool counters worth watching: saturation
// (acquired vs max) and contention (empty acquires, average wait).
type poolStats struct {
	MaxConns       int32  `json:"max_conns"`
	TotalConns     int32  `json:"total_conns"`
	AcquiredConns  int32  `json:"acquired_conns"`
	IdleConns      int32  `json:"idle_conns"`
	EmptyAcquires  int64  `json:"empty_acquires"`
	AvgAcquireWait string `json:"avg_acquire_wait"`
}

func snapshot(pool *pgxpool.Pool) poolStats {
	st := pool.Stat()
	var wait time.Duration
	if n := st.AcquireCount(); n > 0 {
		wait = st.AcquireDuration() / time.Duration(n)
	}
	return poolStats{
		MaxConns:       st.MaxConns(),
		TotalConns:     st.TotalConns(),
		AcquiredConns:  st.AcquiredConns(),
		IdleConns:      st.IdleConns(),
		EmptyAcquires:  st.EmptyAcquireCount(),
		AvgAcquireWait: wait.String(),
	}
}

// HealthHandler answers GET /health/db. It pings the database with a
// short deadline and reports pool pressure either way, so a saturated
// pool is visible before it turns into failed pings.
func HealthHandler(pool *pgxpool.Pool) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), healthPingTimeout)
		defer cancel()

		if err := pool.Ping(ctx); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
				"status": "unhealthy",
				"error":  err.Error(),
				"pool":   snapshot(pool),
			})
		}
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status": "healthy",
			"pool":   snapshot(pool),
		})
	}
}
