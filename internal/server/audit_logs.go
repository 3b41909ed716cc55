package server

import (
	"net/http"
	"strings"
	"time"

	auditdomain "github.com/digiurban/billing/internal/audit/domain"
	"github.com/gin-gonic/gin"
)

type listAuditLogsQuery struct {
	Action     string `form:"action"`
	TargetType string `form:"target_type"`
	TargetID   string `form:"target_id"`
	InvoiceID  string `form:"invoice_id"`
	ActorType  string `form:"actor_type"`
	ActorID    string `form:"actor_id"`
	StartAt    string `form:"start_at"`
	EndAt      string `form:"end_at"`
	Cursor     string `form:"cursor"`
	Limit      int    `form:"limit"`
}

// ListAuditLogs serves the operator action trail, newest first.
func (s *Server) ListAuditLogs(c *gin.Context) {
	var query listAuditLogsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	startAt, ok := parseTimeParam(c, "start_at", query.StartAt)
	if !ok {
		return
	}
	endAt, ok := parseTimeParam(c, "end_at", query.EndAt)
	if !ok {
		return
	}

	resp, err := s.auditSvc.List(c.Request.Context(), auditdomain.ListAuditLogRequest{
		Action:     strings.TrimSpace(query.Action),
		TargetType: strings.TrimSpace(query.TargetType),
		TargetID:   strings.TrimSpace(query.TargetID),
		InvoiceID:  strings.TrimSpace(query.InvoiceID),
		ActorType:  strings.TrimSpace(query.ActorType),
		ActorID:    strings.TrimSpace(query.ActorID),
		StartAt:    startAt,
		EndAt:      endAt,
		Cursor:     query.Cursor,
		Limit:      query.Limit,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.AuditLogs, "next_cursor": resp.NextCursor})
}

// parseTimeParam reads an optional RFC 3339 query value. On a bad value it
// aborts the request and reports false.
func parseTimeParam(c *gin.Context, field, raw string) (*time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, true
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		AbortWithError(c, newValidationError(field, "invalid_"+field, "expected an RFC 3339 timestamp"))
		return nil, false
	}
	return &parsed, true
}
