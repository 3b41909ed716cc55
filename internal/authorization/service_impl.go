package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/casbin/casbin/v2/persist"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/digiurban/billing/internal/audit/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	RoleSuperAdmin    = "super_admin"
	RoleBillingViewer = "billing_viewer"
	RoleSystem        = "system"
)

const (
	ObjectInvoice  = "invoice"
	ObjectTenant   = "tenant"
	ObjectAuditLog = "audit_log"
)

const (
	ActionInvoiceView     = "invoice.view"
	ActionInvoiceCreate   = "invoice.create"
	ActionInvoiceMarkPaid = "invoice.mark_paid"
	ActionInvoiceCancel   = "invoice.cancel"
	ActionInvoiceRemind   = "invoice.remind"
	ActionInvoiceBulk     = "invoice.bulk"
	ActionInvoiceExport   = "invoice.export"
	ActionInvoiceGenerate = "invoice.generate"

	ActionTenantView   = "tenant.view"
	ActionTenantCreate = "tenant.create"

	ActionAuditLogView = "audit_log.view"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	auditSvc auditdomain.Service
}

// NewEnforcer persists policies in casbin_rule through the gorm adapter.
func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	return newEnforcer(adapter)
}

// NewMemoryEnforcer keeps the seeded policies in memory only.
func NewMemoryEnforcer() (*casbin.SyncedEnforcer, error) {
	return newEnforcer(nil)
}

func newEnforcer(adapter persist.Adapter) (*casbin.SyncedEnforcer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}

	var enforcer *casbin.SyncedEnforcer
	if adapter != nil {
		enforcer, err = casbin.NewSyncedEnforcer(m, adapter)
	} else {
		enforcer, err = casbin.NewSyncedEnforcer(m)
	}
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoBuildRoleLinks(true)
	if adapter != nil {
		enforcer.EnableAutoSave(true)
		if err := enforcer.LoadPolicy(); err != nil {
			return nil, err
		}
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, subject string, role string, object string, action string) error {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return ErrInvalidActor
	}
	role = strings.ToLower(strings.TrimSpace(role))
	if role == "" {
		s.auditDenied(ctx, subject, object, action)
		return ErrInvalidRole
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	roleName := fmt.Sprintf("role:%s", role)
	if err := s.ensureGrouping(subject, roleName); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Debug("authorization denied",
			zap.String("subject", subject),
			zap.String("role", role),
			zap.String("object", object),
			zap.String("action", action),
		)
		s.auditDenied(ctx, subject, object, action)
		return ErrForbidden
	}
	return nil
}

// ensureGrouping binds subject to exactly one role, the one carried by its
// current token.
func (s *ServiceImpl) ensureGrouping(subject string, roleName string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 {
			continue
		}
		if rule[1] != roleName {
			params := make([]interface{}, 0, len(rule))
			for _, value := range rule {
				params = append(params, value)
			}
			_, _ = s.enforcer.RemoveGroupingPolicy(params...)
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName)
	return err
}

func (s *ServiceImpl) auditDenied(ctx context.Context, subject string, object string, action string) {
	if s.auditSvc == nil {
		return
	}
	actorType, actorID := splitSubject(subject)
	targetID := "capability"
	_ = s.auditSvc.AuditLog(ctx, actorType, actorID, "authorization.denied", "authorization", &targetID, map[string]any{
		"object":  object,
		"action":  action,
		"subject": subject,
	})
}

func splitSubject(subject string) (string, *string) {
	kind, id, ok := strings.Cut(subject, ":")
	if !ok || strings.TrimSpace(id) == "" {
		return string(auditdomain.ActorTypeSystem), nil
	}
	id = strings.TrimSpace(id)
	return kind, &id
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Viewers read and export.
		{"role:billing_viewer", ObjectInvoice, ActionInvoiceView},
		{"role:billing_viewer", ObjectInvoice, ActionInvoiceExport},
		{"role:billing_viewer", ObjectTenant, ActionTenantView},

		{"role:super_admin", ObjectInvoice, ActionInvoiceView},
		{"role:super_admin", ObjectInvoice, ActionInvoiceCreate},
		{"role:super_admin", ObjectInvoice, ActionInvoiceMarkPaid},
		{"role:super_admin", ObjectInvoice, ActionInvoiceCancel},
		{"role:super_admin", ObjectInvoice, ActionInvoiceRemind},
		{"role:super_admin", ObjectInvoice, ActionInvoiceBulk},
		{"role:super_admin", ObjectInvoice, ActionInvoiceExport},
		{"role:super_admin", ObjectInvoice, ActionInvoiceGenerate},
		{"role:super_admin", ObjectTenant, ActionTenantView},
		{"role:super_admin", ObjectTenant, ActionTenantCreate},
		{"role:super_admin", ObjectAuditLog, ActionAuditLogView},

		// Scheduler and operator tooling.
		{"role:system", ObjectInvoice, ActionInvoiceView},
		{"role:system", ObjectInvoice, ActionInvoiceGenerate},
		{"role:system", ObjectInvoice, ActionInvoiceMarkPaid},
	}

	for _, policy := range policies {
		has, err := enforcer.HasPolicy(policy)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
