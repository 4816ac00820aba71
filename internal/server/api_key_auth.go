package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/trustmark/internal/audit/domain"
	auditcontext "github.com/smallbiznis/trustmark/internal/auditcontext"
	"github.com/smallbiznis/trustmark/internal/authorization"
	obscontext "github.com/smallbiznis/trustmark/internal/observability/context"
)

const contextActorKey = "actor"

// anonymousIssuer stands in for the caller when issuer auth is switched off.
const anonymousIssuer = "anonymous-issuer"

// APIKeyRequired authenticates requests using an issuer API key only.
func (s *Server) APIKeyRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.authenticateAPIKey(c); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

// IssuerAuth guards /sign and the product routes. With ISSUER_AUTH_REQUIRED
// off, requests without a bearer key run as the system actor.
func (s *Server) IssuerAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.cfg.IssuerAuthRequired && strings.TrimSpace(c.GetHeader("Authorization")) == "" {
			s.setActor(c, authorization.Actor{
				Type: string(auditdomain.ActorTypeSystem),
				ID:   anonymousIssuer,
			})
			c.Next()
			return
		}

		if err := s.authenticateAPIKey(c); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func (s *Server) authenticateAPIKey(c *gin.Context) error {
	if s.apiKeySvc == nil {
		return ErrServiceUnavailable
	}

	raw, ok := bearerToken(c.GetHeader("Authorization"))
	if !ok {
		return ErrUnauthorized
	}

	principal, err := s.apiKeySvc.Authenticate(c.Request.Context(), raw)
	if err != nil {
		return err
	}

	s.setActor(c, authorization.Actor{
		Type:  string(auditdomain.ActorTypeAPIKey),
		ID:    principal.KeyID,
		Roles: principal.Roles,
	})
	return nil
}

func (s *Server) setActor(c *gin.Context, actor authorization.Actor) {
	ctx := c.Request.Context()
	ctx = auditcontext.WithActor(ctx, actor.Type, actor.ID)
	ctx = obscontext.WithActor(ctx, actor.Type, actor.ID)
	c.Request = c.Request.WithContext(ctx)
	c.Set(contextActorKey, actor)
}

func actorFromContext(c *gin.Context) (authorization.Actor, bool) {
	value, ok := c.Get(contextActorKey)
	if !ok {
		return authorization.Actor{}, false
	}
	actor, ok := value.(authorization.Actor)
	return actor, ok
}

func bearerToken(header string) (string, bool) {
	parts := strings.Fields(strings.TrimSpace(header))
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return parts[1], true
}
