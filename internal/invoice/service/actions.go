package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	billingeventdomain "github.com/digiurban/billing/internal/billingevent/domain"
	invoicedomain "github.com/digiurban/billing/internal/invoice/domain"
	"github.com/digiurban/billing/internal/invoice/format"
	"github.com/digiurban/billing/internal/providers/email"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const reminderLockKey = "billing:reminder:%s"

// appliedAction is the outcome of one action inside a transaction; side
// effects are replayed from it once the transaction commits.
type appliedAction struct {
	invoice  *invoicedomain.Invoice
	previous invoicedomain.InvoiceStatus
}

func (s *Service) MarkPaid(ctx context.Context, id string) (invoicedomain.Invoice, error) {
	return s.single(ctx, invoicedomain.ActionMarkPaid, id, "")
}

func (s *Service) Cancel(ctx context.Context, req invoicedomain.CancelInvoiceRequest) (invoicedomain.Invoice, error) {
	return s.single(ctx, invoicedomain.ActionCancel, req.ID, req.Reason)
}

func (s *Service) SendReminder(ctx context.Context, id string) (invoicedomain.Invoice, error) {
	return s.single(ctx, invoicedomain.ActionSendReminder, id, "")
}

func (s *Service) single(ctx context.Context, action invoicedomain.Action, rawID, reason string) (invoicedomain.Invoice, error) {
	invoiceID, err := parseID(rawID)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	applied, skipped, err := s.apply(ctx, action, []snowflake.ID{invoiceID}, reason)
	if err != nil {
		s.metrics.RecordAction(string(action), 1, err)
		return invoicedomain.Invoice{}, err
	}
	if len(skipped) > 0 {
		s.metrics.RecordReminderThrottled()
		s.metrics.RecordAction(string(action), 1, invoicedomain.ErrReminderThrottled)
		return invoicedomain.Invoice{}, invoicedomain.ErrReminderThrottled
	}

	s.afterCommit(ctx, action, applied)
	s.metrics.RecordAction(string(action), 1, nil)

	inv := *applied[0].invoice
	inv.EffectiveStatus = inv.StatusAt(s.clock.Now())
	return inv, nil
}

func (s *Service) BulkAction(ctx context.Context, req invoicedomain.BulkActionRequest) (invoicedomain.BulkActionResult, error) {
	action, err := invoicedomain.ParseAction(req.Action)
	if err != nil {
		return invoicedomain.BulkActionResult{}, err
	}

	ids, err := normalizeSelection(req.InvoiceIDs)
	if err != nil {
		return invoicedomain.BulkActionResult{}, err
	}
	if limit := s.billing.Get().MaxBulkSize; limit > 0 && len(ids) > limit {
		return invoicedomain.BulkActionResult{}, invoicedomain.ErrBulkTooLarge
	}

	applied, skipped, err := s.apply(ctx, action, ids, "")
	if err != nil {
		s.metrics.RecordAction(string(action), len(ids), err)
		s.logger(ctx).Warn("bulk action rolled back",
			zap.String("action", string(action)),
			zap.Int("selected", len(ids)),
			zap.Error(err),
		)
		return invoicedomain.BulkActionResult{}, err
	}

	s.afterCommit(ctx, action, applied)
	s.metrics.RecordAction(string(action), len(applied), nil)
	for range skipped {
		s.metrics.RecordReminderThrottled()
	}

	result := invoicedomain.BulkActionResult{
		Action:    action,
		Processed: make([]string, 0, len(applied)),
	}
	for _, a := range applied {
		result.Processed = append(result.Processed, a.invoice.ID.String())
	}
	for _, id := range skipped {
		result.Skipped = append(result.Skipped, id.String())
	}

	if s.auditSvc != nil {
		_ = s.auditSvc.AuditLog(ctx, "", nil, "invoice.bulk_action", "invoice", nil, map[string]any{
			"action":    string(action),
			"selected":  len(ids),
			"processed": result.Processed,
			"skipped":   result.Skipped,
		})
	}
	s.logger(ctx).Info("bulk action applied",
		zap.String("action", string(action)),
		zap.Int("processed", len(result.Processed)),
		zap.Int("skipped", len(result.Skipped)),
	)
	return result, nil
}

// normalizeSelection parses and de-duplicates ids, keeping first occurrence order.
func normalizeSelection(raw []string) ([]snowflake.ID, error) {
	seen := make(map[snowflake.ID]struct{}, len(raw))
	ids := make([]snowflake.ID, 0, len(raw))
	for _, value := range raw {
		id, err := parseID(value)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, invoicedomain.ErrEmptySelection
	}
	return ids, nil
}

// apply runs action over ids in one transaction. Any missing invoice or
// rejected transition rolls back the whole selection. Reminders still inside
// their cooldown are returned as skipped instead of failing the batch.
func (s *Service) apply(ctx context.Context, action invoicedomain.Action, ids []snowflake.ID, reason string) ([]appliedAction, []snowflake.ID, error) {
	now := s.clock.Now()
	cooldown := s.billing.Get().ReminderCooldown

	var (
		applied []appliedAction
		skipped []snowflake.ID
		locks   = map[string]string{}
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		found, err := s.repo.FindForUpdate(ctx, tx, ids)
		if err != nil {
			return err
		}
		byID := make(map[snowflake.ID]*invoicedomain.Invoice, len(found))
		for _, inv := range found {
			byID[inv.ID] = inv
		}

		for _, id := range ids {
			inv, ok := byID[id]
			if !ok {
				return fmt.Errorf("%w: %s", invoicedomain.ErrInvoiceNotFound, id)
			}
			if err := invoicedomain.CheckTransition(action, inv.Status); err != nil {
				return fmt.Errorf("%w: %s", err, inv.Number)
			}

			if action == invoicedomain.ActionSendReminder {
				token, allowed, err := s.acquireReminder(ctx, inv, cooldown, now)
				if err != nil {
					return err
				}
				if !allowed {
					skipped = append(skipped, inv.ID)
					continue
				}
				if token != "" {
					locks[inv.ID.String()] = token
				}
			}

			previous := inv.Status
			values, eventType := transition(action, inv, reason, now)
			if err := s.repo.Update(ctx, tx, inv.ID, values); err != nil {
				return err
			}

			dedupe := eventType + ":" + inv.ID.String()
			if action == invoicedomain.ActionSendReminder {
				dedupe = fmt.Sprintf("%s:%d", dedupe, inv.ReminderCount)
			}
			payload := eventPayload(inv)
			payload["previous_status"] = string(previous)
			if err := s.events.Record(ctx, tx, billingeventdomain.NewEvent{
				Type:        eventType,
				AggregateID: inv.ID,
				DedupeKey:   dedupe,
				Payload:     payload,
			}); err != nil {
				return err
			}

			applied = append(applied, appliedAction{invoice: inv, previous: previous})
		}
		return nil
	})
	if err != nil {
		s.releaseLocks(ctx, locks)
		return nil, nil, err
	}
	return applied, skipped, nil
}

// transition mutates inv in memory and returns the column updates for action.
func transition(action invoicedomain.Action, inv *invoicedomain.Invoice, reason string, now time.Time) (map[string]any, string) {
	inv.UpdatedAt = now
	switch action {
	case invoicedomain.ActionMarkPaid:
		inv.Status = invoicedomain.InvoiceStatusPaid
		inv.PaidAt = &now
		return map[string]any{
			"status":     inv.Status,
			"paid_at":    now,
			"updated_at": now,
		}, billingeventdomain.EventInvoicePaid
	case invoicedomain.ActionCancel:
		inv.Status = invoicedomain.InvoiceStatusCancelled
		inv.CancelledAt = &now
		inv.CancelReason = strings.TrimSpace(reason)
		return map[string]any{
			"status":        inv.Status,
			"cancelled_at":  now,
			"cancel_reason": inv.CancelReason,
			"updated_at":    now,
		}, billingeventdomain.EventInvoiceCancelled
	default:
		inv.ReminderCount++
		inv.LastReminderAt = &now
		return map[string]any{
			"reminder_count":   inv.ReminderCount,
			"last_reminder_at": now,
			"updated_at":       now,
		}, billingeventdomain.EventInvoiceReminderSent
	}
}

// acquireReminder reports whether a reminder may go out now. The stored
// last_reminder_at is authoritative; the redis lock keeps two replicas from
// sending the same reminder concurrently.
func (s *Service) acquireReminder(ctx context.Context, inv *invoicedomain.Invoice, cooldown time.Duration, now time.Time) (string, bool, error) {
	if cooldown <= 0 {
		return "", true, nil
	}
	if inv.LastReminderAt != nil && now.Sub(*inv.LastReminderAt) < cooldown {
		return "", false, nil
	}
	if s.locker == nil {
		return "", true, nil
	}

	token, ok, err := s.locker.TryLock(ctx, fmt.Sprintf(reminderLockKey, inv.ID.String()), cooldown)
	if err != nil {
		s.logger(ctx).Warn("reminder lock unavailable, relying on stored cooldown",
			zap.String("invoice_id", inv.ID.String()),
			zap.Error(err),
		)
		return "", true, nil
	}
	return token, ok, nil
}

func (s *Service) releaseLocks(ctx context.Context, locks map[string]string) {
	if s.locker == nil {
		return
	}
	for id, token := range locks {
		if err := s.locker.Release(ctx, fmt.Sprintf(reminderLockKey, id), token); err != nil {
			s.logger(ctx).Warn("failed to release reminder lock", zap.String("invoice_id", id), zap.Error(err))
		}
	}
}

// afterCommit delivers reminder emails and writes audit entries. Delivery
// failures are logged; the reminder stays recorded and its event is relayed.
func (s *Service) afterCommit(ctx context.Context, action invoicedomain.Action, applied []appliedAction) {
	now := s.clock.Now()
	for _, a := range applied {
		inv := a.invoice
		extra := map[string]any{"previous_status": string(a.previous)}

		switch action {
		case invoicedomain.ActionMarkPaid:
			s.emitAudit(ctx, "invoice.paid", inv, extra)
		case invoicedomain.ActionCancel:
			if inv.CancelReason != "" {
				extra["reason"] = inv.CancelReason
			}
			s.emitAudit(ctx, "invoice.cancelled", inv, extra)
		case invoicedomain.ActionSendReminder:
			extra["reminder_count"] = inv.ReminderCount
			if err := s.deliverReminder(ctx, inv, now); err != nil {
				extra["delivery_error"] = err.Error()
				s.logger(ctx).Error("reminder delivery failed",
					zap.String("invoice_id", inv.ID.String()),
					zap.String("number", inv.Number),
					zap.Error(err),
				)
			}
			s.emitAudit(ctx, "invoice.reminder_sent", inv, extra)
		}
	}
}

func (s *Service) deliverReminder(ctx context.Context, inv *invoicedomain.Invoice, now time.Time) error {
	if s.email == nil {
		return nil
	}
	to := strings.TrimSpace(inv.Tenant.BillingEmail)
	if to == "" {
		return errors.New("tenant has no billing email")
	}
	return s.email.SendTemplate(ctx, []string{to}, "invoice_reminder", email.TemplateData{
		Subject: fmt.Sprintf("Lembrete de pagamento - fatura %s", inv.Number),
		Values: map[string]any{
			"tenant_name":    inv.Tenant.Name,
			"invoice_number": inv.Number,
			"period":         inv.Period,
			"amount":         format.BRL(inv.Amount),
			"due_date":       format.Date(inv.DueDate),
			"overdue":        inv.IsOverdue(now),
		},
	})
}
