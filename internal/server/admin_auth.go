package server

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/donara/internal/observability/context"
)

const adminActorID = "admin_token"

// AdminRequired authenticates admin routes with the static bearer token from
// ADMIN_TOKEN. The routes are hidden when no token is configured.
func (s *Server) AdminRequired() gin.HandlerFunc {
	expected := strings.TrimSpace(s.cfg.AdminToken)
	return func(c *gin.Context) {
		if expected == "" {
			AbortWithError(c, ErrNotFound)
			return
		}

		header := strings.TrimSpace(c.GetHeader("Authorization"))
		parts := strings.Fields(header)
		if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		if subtle.ConstantTimeCompare([]byte(parts[1]), []byte(expected)) != 1 {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		ctx := obscontext.WithActor(c.Request.Context(), obscontext.ActorAdmin, adminActorID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
