package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/partsync/backend/internal/interfaces/http/dto"
)

const healthCheckTimeout = 2 * time.Second

// HealthCheck checks one dependency. A nil error means healthy.
type HealthCheck func(ctx context.Context) error

// SystemHandler serves health and build information
type SystemHandler struct {
	BaseHandler
	version   string
	startTime time.Time
	checks    map[string]HealthCheck
	poolStats func() (dto.PoolStats, error)
}

// SystemOption configures a SystemHandler
type SystemOption func(*SystemHandler)

// WithPoolStats reports catalog pool usage on the info endpoint
func WithPoolStats(fn func() (dto.PoolStats, error)) SystemOption {
	return func(h *SystemHandler) { h.poolStats = fn }
}

// NewSystemHandler creates a new SystemHandler. checks are keyed by the
// dependency name reported in the response.
func NewSystemHandler(version string, checks map[string]HealthCheck, opts ...SystemOption) *SystemHandler {
	h := &SystemHandler{
		version:   version,
		startTime: time.Now(),
		checks:    checks,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health godoc
// @ID           health
// @Summary      Health check
// @Description  Reports the status of the catalog database and other dependencies
// @Tags         system
// @Produce      json
// @Success      200 {object} dto.Response{data=dto.HealthResponse}
// @Failure      503 {object} dto.Response{data=dto.HealthResponse}
// @Router       /health [get]
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	resp := dto.HealthResponse{
		Status:  "ok",
		Version: h.version,
		Checks:  make(map[string]string, len(h.checks)),
		Uptime:  time.Since(h.startTime).Round(time.Second).String(),
	}
	status := http.StatusOK
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			resp.Checks[name] = err.Error()
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}
	c.JSON(status, dto.Response{Success: status == http.StatusOK, Data: resp})
}

// SystemInfoResponse represents the system information response
type SystemInfoResponse struct {
	Name      string         `json:"name"`
	Version   string         `json:"version"`
	GoVersion string         `json:"go_version"`
	Uptime    string         `json:"uptime"`
	Database  *dto.PoolStats `json:"database,omitempty"`
}

// GetSystemInfo godoc
// @ID           getSystemInfo
// @Summary      Get system information
// @Tags         system
// @Produce      json
// @Success      200 {object} dto.Response{data=SystemInfoResponse}
// @Router       /system/info [get]
func (h *SystemHandler) GetSystemInfo(c *gin.Context) {
	info := SystemInfoResponse{
		Name:      "partsync",
		Version:   h.version,
		GoVersion: runtime.Version(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
	}
	// a stats failure only drops the pool section
	if h.poolStats != nil {
		if stats, err := h.poolStats(); err == nil {
			info.Database = &stats
		}
	}
	h.Success(c, info)
}
