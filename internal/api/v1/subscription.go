package v1

import (
	"net/http"

	"github.com/flexprice/billing/internal/api/dto"
	ierr "github.com/flexprice/billing/internal/errors"
	"github.com/flexprice/billing/internal/logger"
	"github.com/flexprice/billing/internal/service"
	"github.com/gin-gonic/gin"
)

type SubscriptionHandler struct {
	renewalService service.RenewalService
	logger         *logger.Logger
}

func NewSubscriptionHandler(renewalService service.RenewalService, logger *logger.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{
		renewalService: renewalService,
		logger:         logger,
	}
}

// GetSubscription godoc
// @Summary Get a subscription
// @Tags Subscriptions
// @Produce json
// @Param id path string true "Subscription ID"
// @Success 200 {object} dto.SubscriptionResponse
// @Failure 404 {object} ierr.ErrorResponse
// @Router /subscriptions/{id} [get]
func (h *SubscriptionHandler) GetSubscription(c *gin.Context) {
	resp, err := h.renewalService.GetSubscription(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// CancelSubscription godoc
// @Summary Cancel a subscription
// @Tags Subscriptions
// @Accept json
// @Produce json
// @Param id path string true "Subscription ID"
// @Param request body dto.CancelSubscriptionRequest false "Cancellation reason"
// @Success 200 {object} dto.SubscriptionResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Failure 404 {object} ierr.ErrorResponse
// @Router /subscriptions/{id}/cancel [post]
func (h *SubscriptionHandler) CancelSubscription(c *gin.Context) {
	var req dto.CancelSubscriptionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.Error(ierr.WithError(err).WithHint("Invalid request format").Mark(ierr.ErrValidation))
			return
		}
	}

	resp, err := h.renewalService.CancelSubscription(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		h.logger.Debugw("failed to cancel subscription", "subscription_id", c.Param("id"), "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// ListChanges godoc
// @Summary List the change log of a subscription
// @Tags Subscriptions
// @Produce json
// @Param id path string true "Subscription ID"
// @Success 200 {object} dto.ListSubscriptionChangesResponse
// @Failure 404 {object} ierr.ErrorResponse
// @Router /subscriptions/{id}/changes [get]
func (h *SubscriptionHandler) ListChanges(c *gin.Context) {
	resp, err := h.renewalService.ListChanges(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
