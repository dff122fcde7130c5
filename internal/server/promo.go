package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	promodomain "github.com/smallbiznis/entitlement/internal/promo/domain"
)

func (s *Server) handlePromoRedeem(c *gin.Context) {
	var req promodomain.RedeemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	resp, err := s.promoSvc.Redeem(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) handlePromoCreate(c *gin.Context) {
	var req promodomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	resp, err := s.promoSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}
