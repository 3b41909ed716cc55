package domain

import (
	"context"
	"errors"
	"time"
)

type ListAuditLogRequest struct {
	Action     string
	TargetType string
	TargetID   string
	// InvoiceID narrows to one invoice's trail and overrides the target fields.
	InvoiceID string
	ActorType string
	ActorID   string
	StartAt   *time.Time
	EndAt     *time.Time
	Cursor    string
	Limit     int
}

type ListAuditLogResponse struct {
	AuditLogs []AuditLog `json:"audit_logs"`
	// NextCursor is empty on the last page.
	NextCursor string `json:"next_cursor,omitempty"`
}

type Service interface {
	AuditLog(ctx context.Context, actorType string, actorID *string, action string, targetType string, targetID *string, metadata map[string]any) error
	List(ctx context.Context, req ListAuditLogRequest) (ListAuditLogResponse, error)
}

var (
	ErrInvalidTimeRange = errors.New("invalid_time_range")
	ErrInvalidAction    = errors.New("invalid_action")
	ErrInvalidCursor    = errors.New("invalid_cursor")
)
