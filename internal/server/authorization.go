package server

import (
	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/trustmark/internal/audit/domain"
)

func (s *Server) authorize(object string, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.authorizeWithContext(c, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func (s *Server) authorizeWithContext(c *gin.Context, object string, action string) error {
	actor, ok := actorFromContext(c)
	if !ok {
		return ErrUnauthorized
	}

	switch actor.Type {
	case string(auditdomain.ActorTypeSystem):
		// Only IssuerAuth sets the system actor, and only with auth disabled.
		if s.cfg.IssuerAuthRequired {
			return ErrUnauthorized
		}
		return nil
	case string(auditdomain.ActorTypeAPIKey):
		if s.authzSvc == nil {
			return ErrForbidden
		}
		return s.authzSvc.Authorize(c.Request.Context(), actor, object, action)
	default:
		return ErrUnauthorized
	}
}
