package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	verificationdomain "github.com/smallbiznis/trustmark/internal/verification/domain"
)

type verifyTokenRequest struct {
	Token string `json:"token"`
}

// VerifyToken answers 200 for valid and invalid tokens alike; the verdict is
// in the body.
func (s *Server) VerifyToken(c *gin.Context) {
	var req verifyTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	s.verify(c, req.Token)
}

// VerifyLanding is the target of the QR verification URL.
func (s *Server) VerifyLanding(c *gin.Context) {
	raw, ok := c.GetQuery("t")
	if !ok {
		AbortWithError(c, newValidationError("t", "required", "t is required"))
		return
	}
	s.verify(c, raw)
}

func (s *Server) verify(c *gin.Context, raw string) {
	result, err := s.verifySvc.Verify(c.Request.Context(), verificationdomain.Request{
		Token:     raw,
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	outcome := "valid"
	if !result.Valid {
		outcome = result.Reason
	}
	c.Set("verify_outcome", outcome)
	if result.Payload != nil {
		c.Set("product_id", result.Payload.ID)
	}

	c.JSON(http.StatusOK, result)
}

func (s *Server) PublicKey(c *gin.Context) {
	if s.keys == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}
	info, err := s.keys.Info()
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.Header("Cache-Control", "public, max-age=300")
	c.JSON(http.StatusOK, info)
}
