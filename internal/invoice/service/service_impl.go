package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/digiurban/billing/internal/audit/domain"
	billingeventdomain "github.com/digiurban/billing/internal/billingevent/domain"
	"github.com/digiurban/billing/internal/clock"
	"github.com/digiurban/billing/internal/config"
	invoicedomain "github.com/digiurban/billing/internal/invoice/domain"
	"github.com/digiurban/billing/internal/invoice/format"
	obslogger "github.com/digiurban/billing/internal/observability/logger"
	obsmetrics "github.com/digiurban/billing/internal/observability/metrics"
	"github.com/digiurban/billing/internal/providers/email"
	"github.com/digiurban/billing/internal/providers/pdf"
	"github.com/digiurban/billing/internal/ratelimit"
	tenantdomain "github.com/digiurban/billing/internal/tenant/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Repo      invoicedomain.Repository
	TenantSvc tenantdomain.Service
	AuditSvc  auditdomain.Service
	Events    billingeventdomain.Service
	Email     email.Provider
	PDF       pdf.Provider
	Billing   *config.BillingConfigHolder
	Locker    *ratelimit.Locker           `optional:"true"`
	Metrics   *obsmetrics.BillingMetrics `optional:"true"`
}

// reminderLocker guards reminder delivery across replicas. A nil value
// leaves the cooldown to the stored last_reminder_at alone.
type reminderLocker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, key, token string) error
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock

	repo      invoicedomain.Repository
	tenantSvc tenantdomain.Service
	auditSvc  auditdomain.Service
	events    billingeventdomain.Service
	email     email.Provider
	pdf       pdf.Provider
	billing   *config.BillingConfigHolder
	locker    reminderLocker
	metrics   *obsmetrics.BillingMetrics
}

func New(p Params) invoicedomain.Service {
	svc := &Service{
		db:    p.DB,
		log:   p.Log.Named("invoice.service"),
		genID: p.GenID,
		clock: p.Clock,

		repo:      p.Repo,
		tenantSvc: p.TenantSvc,
		auditSvc:  p.AuditSvc,
		events:    p.Events,
		email:     p.Email,
		pdf:       p.PDF,
		billing:   p.Billing,
		metrics:   p.Metrics,
	}
	if p.Locker != nil {
		svc.locker = p.Locker
	}
	return svc
}

func (s *Service) List(ctx context.Context, req invoicedomain.ListInvoiceRequest) (invoicedomain.ListInvoiceResponse, error) {
	invoices, err := s.listFiltered(ctx, req.Filter)
	if err != nil {
		return invoicedomain.ListInvoiceResponse{}, err
	}
	return invoicedomain.ListInvoiceResponse{Invoices: invoices}, nil
}

func (s *Service) Summary(ctx context.Context, req invoicedomain.ListInvoiceRequest) (invoicedomain.Metrics, error) {
	invoices, err := s.listFiltered(ctx, req.Filter)
	if err != nil {
		return invoicedomain.Metrics{}, err
	}
	return invoicedomain.ComputeMetrics(invoices, s.clock.Now()), nil
}

func (s *Service) GetByID(ctx context.Context, id string) (invoicedomain.Invoice, error) {
	invoiceID, err := parseID(id)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	item, err := s.repo.FindByID(ctx, s.db, invoiceID)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	if item == nil {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvoiceNotFound
	}

	item.EffectiveStatus = item.StatusAt(s.clock.Now())
	return *item, nil
}

func (s *Service) Create(ctx context.Context, req invoicedomain.CreateInvoiceRequest) (invoicedomain.Invoice, error) {
	tenant, err := s.resolveTenant(ctx, req.TenantID)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	plan := tenant.Plan
	if strings.TrimSpace(req.Plan) != "" {
		parsed, ok := tenantdomain.ParsePlan(req.Plan)
		if !ok {
			return invoicedomain.Invoice{}, invoicedomain.ErrInvalidPlan
		}
		plan = parsed
	}

	if req.PeriodStart.IsZero() {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidPeriod
	}
	periodStart := format.PeriodStart(req.PeriodStart)

	cfg := s.billing.Get()
	items, err := buildItems(cfg, plan, periodStart, req.Items)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	now := s.clock.Now()
	dueDate := defaultDueDate(cfg, periodStart, now)
	if req.DueDate != nil {
		dueDate = req.DueDate.UTC()
		if dueDate.Before(periodStart) {
			return invoicedomain.Invoice{}, invoicedomain.ErrInvalidDueDate
		}
	}

	var created invoicedomain.Invoice
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err := s.insertInvoice(ctx, tx, cfg, tenant, plan, invoicedomain.InvoiceSourceManual, periodStart, dueDate, items, now)
		if err != nil {
			return err
		}
		created = *inv
		return nil
	})
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	s.metrics.RecordInvoiceCreated()
	s.emitAudit(ctx, "invoice.created", &created, map[string]any{"source": string(created.Source)})
	s.logger(ctx).Info("invoice created",
		zap.String("invoice_id", created.ID.String()),
		zap.String("number", created.Number),
		zap.String("tenant_id", created.TenantID.String()),
		zap.Int64("amount", created.Amount),
	)

	created.EffectiveStatus = created.StatusAt(now)
	return created, nil
}

// insertInvoice allocates the invoice number and writes the invoice, its
// items and the created event on tx.
func (s *Service) insertInvoice(
	ctx context.Context,
	tx *gorm.DB,
	cfg config.BillingConfig,
	tenant tenantdomain.Tenant,
	plan tenantdomain.Plan,
	source invoicedomain.InvoiceSource,
	periodStart time.Time,
	dueDate time.Time,
	items []invoicedomain.InvoiceItem,
	now time.Time,
) (*invoicedomain.Invoice, error) {
	template := cfg.InvoiceNumberTemplate
	if template == "" {
		template = format.DefaultInvoiceNumberTemplate
	}

	in := format.NumberInput{IssuedAt: now, TenantCode: tenant.Code}
	seq, err := s.repo.NextSequence(ctx, tx, format.SequenceScope(template, in), now)
	if err != nil {
		return nil, err
	}
	in.Sequence = seq
	number, err := format.FormatInvoiceNumber(template, in)
	if err != nil {
		return nil, err
	}

	invoiceID := s.genID.Generate()
	for i := range items {
		items[i].ID = s.genID.Generate()
		items[i].InvoiceID = invoiceID
		items[i].Position = i + 1
	}

	inv := invoicedomain.Invoice{
		ID:          invoiceID,
		Number:      number,
		TenantID:    tenant.ID,
		Tenant:      tenant,
		Plan:        plan,
		Status:      invoicedomain.InvoiceStatusPending,
		Source:      source,
		Currency:    cfg.Currency,
		Period:      format.PeriodLabel(periodStart),
		PeriodStart: periodStart,
		DueDate:     dueDate,
		Items:       items,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Insert(ctx, tx, &inv); err != nil {
		return nil, err
	}

	if err := s.events.Record(ctx, tx, billingeventdomain.NewEvent{
		Type:        billingeventdomain.EventInvoiceCreated,
		AggregateID: inv.ID,
		DedupeKey:   billingeventdomain.EventInvoiceCreated + ":" + inv.ID.String(),
		Payload:     eventPayload(&inv),
	}); err != nil {
		return nil, err
	}
	return &inv, nil
}

func (s *Service) listFiltered(ctx context.Context, filter invoicedomain.Filter) ([]invoicedomain.Invoice, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	listFilter := invoicedomain.ListFilter{}
	if tenantID := strings.TrimSpace(filter.TenantID); tenantID != "" && !strings.EqualFold(tenantID, invoicedomain.FilterAll) {
		id, err := snowflake.ParseString(tenantID)
		if err != nil {
			return nil, invoicedomain.ErrInvalidTenant
		}
		listFilter.TenantID = id
	}
	// Effective status has to see PENDING rows to promote them, so the status
	// criterion is only pushed down in stored mode.
	if status := strings.TrimSpace(filter.Status); status != "" && !strings.EqualFold(status, invoicedomain.FilterAll) &&
		filter.StatusMode != invoicedomain.StatusModeEffective {
		listFilter.Status = invoicedomain.InvoiceStatus(strings.ToUpper(status))
	}
	if plan := strings.TrimSpace(filter.Plan); plan != "" && !strings.EqualFold(plan, invoicedomain.FilterAll) {
		listFilter.Plan = tenantdomain.Plan(strings.ToUpper(plan))
	}

	items, err := s.repo.List(ctx, s.db, listFilter)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	invoices := make([]invoicedomain.Invoice, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		item.EffectiveStatus = item.StatusAt(now)
		invoices = append(invoices, *item)
	}

	return invoicedomain.ApplyFilterAt(invoices, filter, now), nil
}

func (s *Service) resolveTenant(ctx context.Context, rawID string) (tenantdomain.Tenant, error) {
	tenant, err := s.tenantSvc.GetByID(ctx, rawID)
	if err != nil {
		if errors.Is(err, tenantdomain.ErrInvalidID) || errors.Is(err, tenantdomain.ErrNotFound) {
			return tenantdomain.Tenant{}, invoicedomain.ErrInvalidTenant
		}
		return tenantdomain.Tenant{}, err
	}
	if tenant.Status != tenantdomain.TenantStatusActive {
		return tenantdomain.Tenant{}, invoicedomain.ErrTenantInactive
	}
	return tenant, nil
}

func buildItems(cfg config.BillingConfig, plan tenantdomain.Plan, periodStart time.Time, reqs []invoicedomain.CreateInvoiceItemRequest) ([]invoicedomain.InvoiceItem, error) {
	if len(reqs) == 0 {
		price, ok := cfg.Plan(string(plan))
		if !ok {
			return nil, invoicedomain.ErrInvalidPlan
		}
		return []invoicedomain.InvoiceItem{{
			Description: subscriptionDescription(plan, periodStart),
			Quantity:    1,
			UnitPrice:   price.MonthlyPrice,
		}}, nil
	}

	items := make([]invoicedomain.InvoiceItem, 0, len(reqs))
	for _, req := range reqs {
		description := strings.TrimSpace(req.Description)
		if description == "" || req.Quantity <= 0 || req.UnitPrice <= 0 {
			return nil, invoicedomain.ErrInvalidItems
		}
		items = append(items, invoicedomain.InvoiceItem{
			Description: description,
			Quantity:    req.Quantity,
			UnitPrice:   req.UnitPrice,
		})
	}
	return items, nil
}

func subscriptionDescription(plan tenantdomain.Plan, periodStart time.Time) string {
	return fmt.Sprintf("Assinatura DigiUrban %s - %s", plan, format.PeriodLabel(periodStart))
}

// defaultDueDate counts the configured due days from the later of the
// period start and the issue date.
func defaultDueDate(cfg config.BillingConfig, periodStart, now time.Time) time.Time {
	base := periodStart
	if now.After(base) {
		base = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	}
	return base.AddDate(0, 0, cfg.DueDays)
}

func (s *Service) emitAudit(ctx context.Context, action string, invoice *invoicedomain.Invoice, extra map[string]any) {
	if s.auditSvc == nil || invoice == nil {
		return
	}
	metadata := map[string]any{
		"number":    invoice.Number,
		"tenant_id": invoice.TenantID.String(),
		"plan":      string(invoice.Plan),
		"status":    string(invoice.Status),
		"amount":    invoice.Amount,
		"currency":  invoice.Currency,
		"period":    invoice.Period,
	}
	for key, value := range extra {
		if key == "" {
			continue
		}
		metadata[key] = value
	}

	targetID := invoice.ID.String()
	_ = s.auditSvc.AuditLog(ctx, "", nil, action, "invoice", &targetID, metadata)
}

func eventPayload(invoice *invoicedomain.Invoice) map[string]any {
	return map[string]any{
		"invoice_id": invoice.ID.String(),
		"number":     invoice.Number,
		"tenant_id":  invoice.TenantID.String(),
		"plan":       string(invoice.Plan),
		"status":     string(invoice.Status),
		"amount":     invoice.Amount,
		"currency":   invoice.Currency,
		"due_date":   invoice.DueDate.Format(time.RFC3339),
	}
}

func (s *Service) logger(ctx context.Context) *zap.Logger {
	return obslogger.WithContext(ctx, s.log)
}

func parseID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil || id == 0 {
		return 0, invoicedomain.ErrInvalidID
	}
	return id, nil
}
