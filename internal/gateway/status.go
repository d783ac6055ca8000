package gateway

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"

	"lighthouse/pkg/api/common"
)

// statusResponse is the payload for GET /api/status (spec.md §6).
type statusResponse struct {
	UptimeSeconds     float64 `json:"uptime_seconds"`
	ActiveStreams     int     `json:"active_streams"`
	PendingReviews    int     `json:"pending_reviews"`
	CloudFallbackRate float64 `json:"cloud_fallback_rate"`
	AvgResponseMS     float64 `json:"avg_response_ms"`
	GoroutineCount    int     `json:"goroutine_count"`
	MemAllocBytes     uint64  `json:"mem_alloc_bytes"`
}

func (h *Handlers) handleStatus(c *gin.Context) {
	summary := h.streams.Summary()

	pending, err := h.store.ListPendingFlags(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, common.Fail("failed to load pending reviews"))
		return
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	stats := h.pipeline.Stats()

	c.JSON(http.StatusOK, common.OK(statusResponse{
		UptimeSeconds:     time.Since(h.startTime).Seconds(),
		ActiveStreams:     summary.ActiveStreams,
		PendingReviews:    len(pending),
		CloudFallbackRate: stats.CloudFallbackRate,
		AvgResponseMS:     stats.AvgResponseMS,
		GoroutineCount:    runtime.NumGoroutine(),
		MemAllocBytes:     mem.Alloc,
	}))
}

// handleHealth reports 200 when the Store answers a ping; stream intake
// is not probed.
func (h *Handlers) handleHealth(c *gin.Context) {
	ctx := c.Request.Context()
	if err := h.store.DB().PingContext(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, common.Fail("store unreachable"))
		return
	}
	c.JSON(http.StatusOK, common.OK(gin.H{"status": "healthy"}))
}
