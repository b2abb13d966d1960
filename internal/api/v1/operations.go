package v1

import (
	"net/http"

	"github.com/flexprice/billing/internal/logger"
	"github.com/flexprice/billing/internal/scheduler"
	"github.com/gin-gonic/gin"
)

// OperationsHandler runs background passes on demand
type OperationsHandler struct {
	scheduler *scheduler.Scheduler
	logger    *logger.Logger
}

func NewOperationsHandler(scheduler *scheduler.Scheduler, logger *logger.Logger) *OperationsHandler {
	return &OperationsHandler{
		scheduler: scheduler,
		logger:    logger,
	}
}

// RunRenewals godoc
// @Summary Run a renewal pass now
// @Description Waits for a scheduled pass in progress, then runs one and returns its outcome counts
// @Tags Operations
// @Produce json
// @Success 200 {object} service.RenewalPassResult
// @Failure 500 {object} ierr.ErrorResponse
// @Router /renewals/run [post]
func (h *OperationsHandler) RunRenewals(c *gin.Context) {
	h.run(c, scheduler.JobRenewal)
}

// DispatchOutbox godoc
// @Summary Dispatch pending outbox events now
// @Tags Operations
// @Produce json
// @Success 200 {object} outbox.DispatchResult
// @Failure 500 {object} ierr.ErrorResponse
// @Router /outbox/dispatch [post]
func (h *OperationsHandler) DispatchOutbox(c *gin.Context) {
	h.run(c, scheduler.JobOutbox)
}

func (h *OperationsHandler) run(c *gin.Context, job string) {
	h.logger.Infow("manual job run requested", "job", job)

	result, err := h.scheduler.RunOnce(c.Request.Context(), job)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, result)
}
