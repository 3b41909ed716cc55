package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	billingeventdomain "github.com/digiurban/billing/internal/billingevent/domain"
	invoicedomain "github.com/digiurban/billing/internal/invoice/domain"
	"github.com/digiurban/billing/internal/invoice/format"
	"github.com/digiurban/billing/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// GeneratePeriodInvoices issues one subscription invoice per active tenant
// for the month containing periodStart. Tenants that already hold a
// non-cancelled subscription invoice for the period are skipped, so the run
// is safe to repeat. The tenant row lock and the partial unique index on
// (tenant_id, period_start) keep concurrent runs from issuing a second one.
func (s *Service) GeneratePeriodInvoices(ctx context.Context, periodStart time.Time) (invoicedomain.GenerateResult, error) {
	if periodStart.IsZero() {
		return invoicedomain.GenerateResult{}, invoicedomain.ErrInvalidPeriod
	}
	periodStart = format.PeriodStart(periodStart)

	tenants, err := s.tenantSvc.ListActive(ctx)
	if err != nil {
		return invoicedomain.GenerateResult{}, err
	}

	cfg := s.billing.Get()
	now := s.clock.Now()
	result := invoicedomain.GenerateResult{Created: []string{}, Skipped: []string{}}
	created := make([]*invoicedomain.Invoice, 0, len(tenants))

	for _, tenant := range tenants {
		var inv *invoicedomain.Invoice
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := s.repo.LockTenant(ctx, tx, tenant.ID); err != nil {
				return err
			}
			exists, err := s.repo.ExistsForPeriod(ctx, tx, tenant.ID, periodStart, invoicedomain.InvoiceSourceSubscription)
			if err != nil {
				return err
			}
			if exists {
				return nil
			}

			items, err := buildItems(cfg, tenant.Plan, periodStart, nil)
			if err != nil {
				return err
			}
			inv, err = s.insertInvoice(ctx, tx, cfg, tenant, tenant.Plan, invoicedomain.InvoiceSourceSubscription,
				periodStart, defaultDueDate(cfg, periodStart, now), items, now)
			return err
		})
		if isPeriodConflict(err) {
			// Another generator committed this tenant's invoice first.
			inv = nil
			err = nil
		}
		if err != nil {
			return result, fmt.Errorf("generate invoice for tenant %s: %w", tenant.ID, err)
		}
		if inv == nil {
			result.Skipped = append(result.Skipped, tenant.ID.String())
			continue
		}
		created = append(created, inv)
		result.Created = append(result.Created, inv.ID.String())
	}

	for _, inv := range created {
		s.metrics.RecordInvoiceCreated()
		s.emitAudit(ctx, "invoice.created", inv, map[string]any{"source": string(inv.Source)})
	}

	s.logger(ctx).Info("period invoices generated",
		zap.String("period", format.PeriodLabel(periodStart)),
		zap.Int("created", len(result.Created)),
		zap.Int("skipped", len(result.Skipped)),
	)
	return result, nil
}

// ReconcileOverdue persists OVERDUE on pending invoices whose due date has
// passed. Reads already project the status; this makes it durable and emits
// the overdue event once per invoice.
func (s *Service) ReconcileOverdue(ctx context.Context) (int, error) {
	now := s.clock.Now()

	var updated []*invoicedomain.Invoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoices, err := s.repo.ListPendingDueBefore(ctx, tx, now)
		if err != nil {
			return err
		}
		for _, inv := range invoices {
			if err := s.repo.Update(ctx, tx, inv.ID, map[string]any{
				"status":     invoicedomain.InvoiceStatusOverdue,
				"updated_at": now,
			}); err != nil {
				return err
			}
			inv.Status = invoicedomain.InvoiceStatusOverdue
			inv.UpdatedAt = now

			payload := eventPayload(inv)
			payload["previous_status"] = string(invoicedomain.InvoiceStatusPending)
			if err := s.events.Record(ctx, tx, billingeventdomain.NewEvent{
				Type:        billingeventdomain.EventInvoiceOverdue,
				AggregateID: inv.ID,
				DedupeKey:   billingeventdomain.EventInvoiceOverdue + ":" + inv.ID.String(),
				Payload:     payload,
			}); err != nil {
				return err
			}
			updated = append(updated, inv)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, inv := range updated {
		s.emitAudit(ctx, "invoice.overdue", inv, map[string]any{"previous_status": string(invoicedomain.InvoiceStatusPending)})
	}
	if len(updated) > 0 {
		s.logger(ctx).Info("overdue invoices reconciled", zap.Int("count", len(updated)))
	}
	return len(updated), nil
}

// isPeriodConflict reports a violation of ux_invoices_subscription_period.
// Sqlite names the columns instead of the index.
func isPeriodConflict(err error) bool {
	if !db.IsDuplicateKeyErr(err) {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "ux_invoices_subscription_period") ||
		strings.Contains(msg, "invoices.tenant_id, invoices.period_start")
}
