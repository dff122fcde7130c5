package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	subscriptiondomain "github.com/smallbiznis/entitlement/internal/subscription/domain"
)

func (s *Server) handleListSubscriptions(c *gin.Context) {
	req := subscriptiondomain.ListByUserRequest{
		UserID: c.Param("id"),
		Status: c.Query("status"),
	}

	resp, err := s.subscriptionSvc.ListByUser(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
