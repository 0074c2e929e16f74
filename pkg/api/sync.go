package api

import (
	"net/http"
	"time"

	"github.com/Sternrassler/coin-sync/pkg/syncer"
	"github.com/gin-gonic/gin"
)

// SyncController exposes the scheduler.
type SyncController struct {
	scheduler SyncTrigger
	status    SyncStatus
}

// NewSyncController creates a new sync controller.
func NewSyncController(trigger SyncTrigger, status SyncStatus) *SyncController {
	return &SyncController{
		scheduler: trigger,
		status:    status,
	}
}

// StatusResponse describes the scheduler and the last finished cycle.
type StatusResponse struct {
	State    string          `json:"state"`
	Interval string          `json:"interval"`
	NextRun  *time.Time      `json:"next_run,omitempty"`
	Cycles   int64           `json:"cycles"`
	Result   string          `json:"result,omitempty"`
	Last     *syncer.Summary `json:"last,omitempty"`
}

// Status returns the scheduler state and last cycle summary
// GET /api/sync/status
func (sc *SyncController) Status(c *gin.Context) {
	resp := StatusResponse{
		State:    sc.scheduler.State().String(),
		Interval: sc.scheduler.Interval().String(),
		Cycles:   sc.status.Cycles(),
	}
	if next := sc.scheduler.NextRun(); !next.IsZero() {
		resp.NextRun = &next
	}
	if summary, ok := sc.status.LastSummary(); ok {
		resp.Last = &summary
		resp.Result = summary.Result()
	}

	c.JSON(http.StatusOK, resp)
}

// Trigger starts a cycle unless one is running
// POST /api/sync/trigger
func (sc *SyncController) Trigger(c *gin.Context) {
	if !sc.scheduler.Trigger() {
		c.JSON(http.StatusConflict, gin.H{"error": "Sync cycle already running"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "Sync cycle started"})
}
