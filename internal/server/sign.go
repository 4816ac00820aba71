package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	issuancedomain "github.com/smallbiznis/trustmark/internal/issuance/domain"
)

func (s *Server) Sign(c *gin.Context) {
	var req issuancedomain.SignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.issuanceSvc.Sign(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Set("product_id", resp.Payload.ID)
	c.JSON(http.StatusOK, gin.H{"data": resp})
}
