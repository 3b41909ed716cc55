package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/digiurban/billing/internal/audit/domain"
	"github.com/digiurban/billing/internal/auditcontext"
	"github.com/digiurban/billing/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 50
	maxPageSize     = 250
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  auditdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  auditdomain.Repository
}

func NewService(p Params) auditdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

// AuditLog records action against a billing target. An empty actorType takes
// the operator from the request context, falling back to the system actor.
// The request id, client IP and user agent are copied from the context.
func (s *Service) AuditLog(ctx context.Context, actorType string, actorID *string, action string, targetType string, targetID *string, metadata map[string]any) error {
	action = strings.TrimSpace(action)
	if action == "" {
		return auditdomain.ErrInvalidAction
	}
	md := auditcontext.FromContext(ctx)

	entry := auditdomain.AuditLog{
		ID:         s.genID.Generate(),
		Action:     action,
		TargetType: firstNonEmpty(targetType, "unknown"),
		TargetID:   optional(deref(targetID)),
		Metadata:   datatypes.JSONMap{},
		IPAddress:  optional(md.IPAddress),
		UserAgent:  optional(md.UserAgent),
		CreatedAt:  s.clock.Now(),
	}
	entry.ActorType, entry.ActorID = actorFor(md, actorType, deref(actorID))

	for key, value := range metadata {
		if key != "" {
			entry.Metadata[key] = value
		}
	}
	if md.RequestID != "" {
		entry.Metadata["request_id"] = md.RequestID
	}

	if err := s.repo.Insert(ctx, s.db, &entry); err != nil {
		s.log.Warn("audit entry not written",
			zap.String("action", action),
			zap.String("target_type", entry.TargetType),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// List returns entries newest first. Pass the returned NextCursor back as
// Cursor for the following page.
func (s *Service) List(ctx context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	if req.StartAt != nil && req.EndAt != nil && req.StartAt.After(*req.EndAt) {
		return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidTimeRange
	}

	filter := auditdomain.ListFilter{
		Action:     req.Action,
		TargetType: req.TargetType,
		TargetID:   req.TargetID,
		ActorType:  req.ActorType,
		ActorID:    req.ActorID,
		StartAt:    req.StartAt,
		EndAt:      req.EndAt,
		Limit:      min(max(req.Limit, 0), maxPageSize),
	}
	if filter.Limit == 0 {
		filter.Limit = defaultPageSize
	}
	if invoiceID := strings.TrimSpace(req.InvoiceID); invoiceID != "" {
		filter.TargetType = auditdomain.TargetInvoice
		filter.TargetID = invoiceID
	}
	if cursor := strings.TrimSpace(req.Cursor); cursor != "" {
		id, err := snowflake.ParseString(cursor)
		if err != nil || id <= 0 {
			return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidCursor
		}
		filter.BeforeID = id
	}

	// One extra row tells whether another page exists.
	page := filter.Limit
	filter.Limit++
	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return auditdomain.ListAuditLogResponse{}, err
	}

	resp := auditdomain.ListAuditLogResponse{AuditLogs: make([]auditdomain.AuditLog, 0, min(len(items), page))}
	for _, item := range items {
		if item == nil {
			continue
		}
		if len(resp.AuditLogs) == page {
			resp.NextCursor = resp.AuditLogs[page-1].ID.String()
			break
		}
		resp.AuditLogs = append(resp.AuditLogs, *item)
	}
	return resp, nil
}

func actorFor(md auditcontext.Metadata, actorType, actorID string) (string, *string) {
	actorType = strings.TrimSpace(actorType)
	if actorType == "" {
		actorType = md.ActorType
		if strings.TrimSpace(actorID) == "" {
			actorID = md.ActorID
		}
	}
	return firstNonEmpty(actorType, string(auditdomain.ActorTypeSystem)), optional(actorID)
}

func firstNonEmpty(value, fallback string) string {
	if value = strings.TrimSpace(value); value != "" {
		return value
	}
	return fallback
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func optional(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
