package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Logout revokes the bearer token used for this request.
func (s *Server) Logout(c *gin.Context) {
	raw := c.GetString(contextTokenKey)
	if raw == "" {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	if err := s.authsvc.Revoke(c.Request.Context(), raw); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
