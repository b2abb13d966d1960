package v1

import (
	"net/http"

	"github.com/flexprice/billing/internal/api/dto"
	ierr "github.com/flexprice/billing/internal/errors"
	"github.com/flexprice/billing/internal/logger"
	"github.com/flexprice/billing/internal/service"
	"github.com/gin-gonic/gin"
)

type UsageHandler struct {
	usageService service.UsageService
	logger       *logger.Logger
}

func NewUsageHandler(usageService service.UsageService, logger *logger.Logger) *UsageHandler {
	return &UsageHandler{
		usageService: usageService,
		logger:       logger,
	}
}

// RecordUsage godoc
// @Summary Record feature usage
// @Description Counts usage against a subscription feature. A replayed correlation id is accepted once.
// @Tags Usage
// @Accept json
// @Produce json
// @Param request body dto.RecordUsageRequest true "Usage"
// @Success 200 {object} dto.RecordUsageResponse "replayed correlation id"
// @Success 201 {object} dto.RecordUsageResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Failure 429 {object} ierr.ErrorResponse
// @Router /usage [post]
func (h *UsageHandler) RecordUsage(c *gin.Context) {
	var req dto.RecordUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).WithHint("Invalid request format").Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.usageService.RecordUsage(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}

	status := http.StatusCreated
	if resp.Duplicate {
		status = http.StatusOK
	}
	c.JSON(status, resp)
}
