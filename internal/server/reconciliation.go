package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	defaultReconciliationLimit = 50
	maxReconciliationLimit     = 200
)

type resolveReconciliationRequest struct {
	Note string `json:"note"`
}

func (s *Server) ListReconciliationItems(c *gin.Context) {
	limit := defaultReconciliationLimit
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			AbortWithError(c, newValidationError("limit", "invalid_limit", "limit must be a positive integer"))
			return
		}
		limit = parsed
	}
	if limit > maxReconciliationLimit {
		limit = maxReconciliationLimit
	}

	items, err := s.reconciliationSvc.ListOpen(c.Request.Context(), limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) ResolveReconciliationItem(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req resolveReconciliationRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}
	caller, _ := callerFromContext(c)

	item, err := s.reconciliationSvc.Resolve(c.Request.Context(), id, caller.ID, strings.TrimSpace(req.Note))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}
