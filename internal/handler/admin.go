package handler

import (
	"net/http"
	"runtime"
	"time"

	"capture-relay-api/internal/repository"
	"capture-relay-api/internal/service"
	"capture-relay-api/pkg/apierror"
	"capture-relay-api/pkg/response"
)

// AdminHandler handles admin-related HTTP requests.
type AdminHandler struct {
	uploadRepo repository.UploadRepository
	cleanup    *service.CleanupScheduler
	relayMode  string // redis or memory
	startTime  time.Time
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(
	uploadRepo repository.UploadRepository,
	cleanup *service.CleanupScheduler,
	relayMode string,
) *AdminHandler {
	return &AdminHandler{
		uploadRepo: uploadRepo,
		cleanup:    cleanup,
		relayMode:  relayMode,
		startTime:  time.Now(),
	}
}

// GetStats handles GET /api/v1/admin/stats
func (h *AdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats := make(map[string]interface{})

	// System info
	stats["uptime_seconds"] = int64(time.Since(h.startTime).Seconds())
	stats["uptime_human"] = time.Since(h.startTime).Round(time.Second).String()
	stats["server_time"] = time.Now().Format(time.RFC3339)
	stats["relay_mode"] = h.relayMode

	// Memory stats
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	stats["memory"] = map[string]interface{}{
		"alloc_mb":       float64(memStats.Alloc) / 1024 / 1024,
		"total_alloc_mb": float64(memStats.TotalAlloc) / 1024 / 1024,
		"sys_mb":         float64(memStats.Sys) / 1024 / 1024,
		"heap_alloc_mb":  float64(memStats.HeapAlloc) / 1024 / 1024,
		"heap_inuse_mb":  float64(memStats.HeapInuse) / 1024 / 1024,
		"num_gc":         memStats.NumGC,
		"goroutines":     runtime.NumGoroutine(),
	}

	// Upload store stats
	if h.uploadRepo != nil {
		storeStats, err := h.uploadRepo.Stats(ctx)
		if err == nil {
			storeStats["status"] = "connected"
			stats["store"] = storeStats
		} else {
			stats["store"] = map[string]interface{}{
				"status": "error",
				"error":  err.Error(),
			}
		}
	} else {
		stats["store"] = map[string]interface{}{
			"status": "not_configured",
		}
	}

	// Runtime info
	stats["runtime"] = map[string]interface{}{
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"cpus":       runtime.NumCPU(),
	}

	response.OK(w, stats)
}

// TriggerSweep handles POST /api/v1/admin/sweep - runs the retention
// sweeper immediately instead of waiting for the next tick.
func (h *AdminHandler) TriggerSweep(w http.ResponseWriter, r *http.Request) {
	if h.cleanup == nil {
		response.Error(w, apierror.ServiceUnavailable("retention sweeper not configured"))
		return
	}

	removed, err := h.cleanup.RunNow()
	if err != nil {
		response.Error(w, apierror.InternalError(""))
		return
	}

	response.OK(w, map[string]interface{}{
		"removed":  removed,
		"swept_at": time.Now().UTC().Format(time.RFC3339),
	})
}

// GetHealth handles GET /api/v1/admin/health
func (h *AdminHandler) GetHealth(w http.ResponseWriter, r *http.Request) {
	response.OK(w, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}
