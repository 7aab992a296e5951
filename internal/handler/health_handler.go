package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/zarlabs/zar/internal/database"
	"github.com/zarlabs/zar/internal/models"
)

// HealthHandler answers the probe endpoints. /live only confirms the
// process runs; /ready and /health also check Postgres and Redis so load
// balancers stop routing to an instance that lost a dependency.
type HealthHandler struct {
	postgres *database.PostgresDB
	redis    *database.RedisDB
	version  string
}

func NewHealthHandler(pg *database.PostgresDB, redis *database.RedisDB, version string) *HealthHandler {
	return &HealthHandler{postgres: pg, redis: redis, version: version}
}

// Health handles GET /health with a per-service breakdown. Unhealthy
// instances answer 503 so balancers drain them.
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	services := make(map[string]string)
	healthy := true

	if err := h.postgres.Health(ctx); err != nil {
		services["postgres"] = "error: " + err.Error()
		healthy = false
	} else {
		services["postgres"] = "ok"
	}

	if err := h.redis.Health(ctx); err != nil {
		services["redis"] = "error: " + err.Error()
		healthy = false
	} else {
		services["redis"] = "ok"
	}

	response := models.HealthResponse{Version: h.version, Services: services}
	if healthy {
		response.Status = "healthy"
		c.JSON(http.StatusOK, response)
		return
	}
	response.Status = "unhealthy"
	c.JSON(http.StatusServiceUnavailable, response)
}

// Ready handles GET /ready: bare 200/503 for readiness probes.
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	if err := h.postgres.Health(ctx); err != nil {
		c.Status(http.StatusServiceUnavailable)
		return
	}
	if err := h.redis.Health(ctx); err != nil {
		c.Status(http.StatusServiceUnavailable)
		return
	}
	c.Status(http.StatusOK)
}

// Live handles GET /live. No dependency checks; restart loops would follow.
func (h *HealthHandler) Live(c *gin.Context) {
	c.Status(http.StatusOK)
}
