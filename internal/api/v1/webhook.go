package v1

import (
	"net/http"

	"github.com/flexprice/billing/internal/api/dto"
	ierr "github.com/flexprice/billing/internal/errors"
	"github.com/flexprice/billing/internal/logger"
	"github.com/flexprice/billing/internal/service"
	"github.com/flexprice/billing/internal/types"
	"github.com/gin-gonic/gin"
)

// WebhookHandler manages outgoing webhook endpoints and their delivery log
type WebhookHandler struct {
	webhookService service.WebhookService
	logger         *logger.Logger
}

func NewWebhookHandler(webhookService service.WebhookService, logger *logger.Logger) *WebhookHandler {
	return &WebhookHandler{
		webhookService: webhookService,
		logger:         logger,
	}
}

// CreateEndpoint godoc
// @Summary Create a webhook endpoint
// @Description The signing secret is only returned here and on rotation
// @Tags Webhooks
// @Accept json
// @Produce json
// @Param request body dto.CreateWebhookEndpointRequest true "Endpoint"
// @Success 201 {object} dto.WebhookEndpointSecretResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Router /webhooks/endpoints [post]
func (h *WebhookHandler) CreateEndpoint(c *gin.Context) {
	var req dto.CreateWebhookEndpointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).WithHint("Invalid request format").Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.webhookService.CreateEndpoint(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// ListEndpoints godoc
// @Summary List webhook endpoints
// @Tags Webhooks
// @Produce json
// @Param filter query types.WebhookEndpointFilter false "Filter"
// @Success 200 {object} dto.ListWebhookEndpointsResponse
// @Router /webhooks/endpoints [get]
func (h *WebhookHandler) ListEndpoints(c *gin.Context) {
	filter := types.WebhookEndpointFilter{QueryFilter: types.NewDefaultQueryFilter()}
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.Error(ierr.WithError(err).WithHint("Invalid query parameters").Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.webhookService.ListEndpoints(c.Request.Context(), &filter)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GetEndpoint godoc
// @Summary Get a webhook endpoint
// @Tags Webhooks
// @Produce json
// @Param id path string true "Endpoint ID"
// @Success 200 {object} dto.WebhookEndpointResponse
// @Failure 404 {object} ierr.ErrorResponse
// @Router /webhooks/endpoints/{id} [get]
func (h *WebhookHandler) GetEndpoint(c *gin.Context) {
	resp, err := h.webhookService.GetEndpoint(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// UpdateEndpoint godoc
// @Summary Update a webhook endpoint
// @Tags Webhooks
// @Accept json
// @Produce json
// @Param id path string true "Endpoint ID"
// @Param request body dto.UpdateWebhookEndpointRequest true "Changes"
// @Success 200 {object} dto.WebhookEndpointResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Failure 404 {object} ierr.ErrorResponse
// @Router /webhooks/endpoints/{id} [put]
func (h *WebhookHandler) UpdateEndpoint(c *gin.Context) {
	var req dto.UpdateWebhookEndpointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).WithHint("Invalid request format").Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.webhookService.UpdateEndpoint(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// DeleteEndpoint godoc
// @Summary Delete a webhook endpoint
// @Tags Webhooks
// @Param id path string true "Endpoint ID"
// @Success 204
// @Failure 404 {object} ierr.ErrorResponse
// @Router /webhooks/endpoints/{id} [delete]
func (h *WebhookHandler) DeleteEndpoint(c *gin.Context) {
	if err := h.webhookService.DeleteEndpoint(c.Request.Context(), c.Param("id")); err != nil {
		c.Error(err)
		return
	}

	c.Status(http.StatusNoContent)
}

// ActivateEndpoint godoc
// @Summary Resume deliveries to an endpoint
// @Tags Webhooks
// @Produce json
// @Param id path string true "Endpoint ID"
// @Success 200 {object} dto.WebhookEndpointResponse
// @Router /webhooks/endpoints/{id}/activate [post]
func (h *WebhookHandler) ActivateEndpoint(c *gin.Context) {
	resp, err := h.webhookService.Activate(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// DeactivateEndpoint godoc
// @Summary Pause deliveries to an endpoint
// @Tags Webhooks
// @Produce json
// @Param id path string true "Endpoint ID"
// @Success 200 {object} dto.WebhookEndpointResponse
// @Router /webhooks/endpoints/{id}/deactivate [post]
func (h *WebhookHandler) DeactivateEndpoint(c *gin.Context) {
	resp, err := h.webhookService.Deactivate(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// RotateSecret godoc
// @Summary Rotate the signing secret of an endpoint
// @Tags Webhooks
// @Produce json
// @Param id path string true "Endpoint ID"
// @Success 200 {object} dto.WebhookEndpointSecretResponse
// @Router /webhooks/endpoints/{id}/rotate-secret [post]
func (h *WebhookHandler) RotateSecret(c *gin.Context) {
	resp, err := h.webhookService.RotateSecret(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// PingEndpoint godoc
// @Summary Send a test event to an endpoint
// @Description Returns the endpoint's answer. A rejected ping is still a 200.
// @Tags Webhooks
// @Produce json
// @Param id path string true "Endpoint ID"
// @Success 200 {object} dto.TestWebhookResponse
// @Router /webhooks/endpoints/{id}/ping [post]
func (h *WebhookHandler) PingEndpoint(c *gin.Context) {
	resp, err := h.webhookService.TestPing(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// ListDeliveries godoc
// @Summary List delivery attempts of an endpoint
// @Tags Webhooks
// @Produce json
// @Param id path string true "Endpoint ID"
// @Param filter query types.WebhookDeliveryFilter false "Filter"
// @Success 200 {object} dto.ListWebhookDeliveriesResponse
// @Router /webhooks/endpoints/{id}/deliveries [get]
func (h *WebhookHandler) ListDeliveries(c *gin.Context) {
	filter := types.WebhookDeliveryFilter{QueryFilter: types.NewDefaultQueryFilter()}
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.Error(ierr.WithError(err).WithHint("Invalid query parameters").Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.webhookService.ListDeliveries(c.Request.Context(), c.Param("id"), &filter)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
