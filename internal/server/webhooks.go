package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	reconcilerdomain "github.com/smallbiznis/entitlement/internal/reconciler/domain"
)

// handleBillingWebhook ingests one provider event. A 2xx acknowledges the
// delivery; a 5xx tells the provider to retry. Authenticity is verified
// upstream before the request reaches this handler.
func (s *Server) handleBillingWebhook(c *gin.Context) {
	var event reconcilerdomain.WebhookEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	result, err := s.reconcilerSvc.ProcessEvent(c.Request.Context(), event)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
