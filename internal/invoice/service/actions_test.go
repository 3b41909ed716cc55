package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	auditdomain "github.com/digiurban/billing/internal/audit/domain"
	billingeventdomain "github.com/digiurban/billing/internal/billingevent/domain"
	"github.com/digiurban/billing/internal/config"
	invoicedomain "github.com/digiurban/billing/internal/invoice/domain"
	"github.com/digiurban/billing/internal/ratelimit"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestMarkPaid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inv, err := f.svc.MarkPaid(ctx, "2")
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, inv.Status)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, inv.EffectiveStatus)
	require.NotNil(t, inv.PaidAt)
	assert.True(t, f.clock.Now().Equal(*inv.PaidAt))

	stored := f.stored(t, 2)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, stored.Status)
	assert.NotNil(t, stored.PaidAt)
	assert.Equal(t, int64(1), f.countEvents(t, billingeventdomain.EventInvoicePaid, 2))

	_, err = f.svc.MarkPaid(ctx, "2")
	assert.ErrorIs(t, err, invoicedomain.ErrInvoiceAlreadyPaid)

	overdue, err := f.svc.MarkPaid(ctx, "3")
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, overdue.Status)
}

func TestSingleActionErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.MarkPaid(ctx, "abc")
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidID)

	_, err = f.svc.MarkPaid(ctx, "999")
	assert.ErrorIs(t, err, invoicedomain.ErrInvoiceNotFound)

	_, err = f.svc.MarkPaid(ctx, "5")
	assert.ErrorIs(t, err, invoicedomain.ErrInvoiceCancelled)

	_, err = f.svc.Cancel(ctx, invoicedomain.CancelInvoiceRequest{ID: "5"})
	assert.ErrorIs(t, err, invoicedomain.ErrInvoiceAlreadyCancelled)

	_, err = f.svc.SendReminder(ctx, "1")
	assert.ErrorIs(t, err, invoicedomain.ErrReminderNotAllowed)
}

func TestCancelStoresReason(t *testing.T) {
	f := newFixture(t)

	inv, err := f.svc.Cancel(context.Background(), invoicedomain.CancelInvoiceRequest{ID: "1", Reason: "  Emitida em duplicidade "})
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusCancelled, inv.Status)
	assert.Equal(t, "Emitida em duplicidade", inv.CancelReason)

	stored := f.stored(t, 1)
	assert.Equal(t, invoicedomain.InvoiceStatusCancelled, stored.Status)
	assert.Equal(t, "Emitida em duplicidade", stored.CancelReason)
	assert.NotNil(t, stored.CancelledAt)
	assert.Equal(t, int64(1), f.countEvents(t, billingeventdomain.EventInvoiceCancelled, 1))
}

func TestSendReminderRespectsCooldown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.email.On("SendTemplate", []string{"financeiro@santos.sp.gov.br"}, "invoice_reminder", mock.Anything).Return(nil)

	inv, err := f.svc.SendReminder(ctx, "3")
	require.NoError(t, err)
	assert.Equal(t, 2, inv.ReminderCount)
	require.NotNil(t, inv.LastReminderAt)

	_, err = f.svc.SendReminder(ctx, "3")
	assert.ErrorIs(t, err, invoicedomain.ErrReminderThrottled)
	assert.Equal(t, 2, f.stored(t, 3).ReminderCount)

	f.clock.Advance(25 * time.Hour)
	inv, err = f.svc.SendReminder(ctx, "3")
	require.NoError(t, err)
	assert.Equal(t, 3, inv.ReminderCount)

	f.email.AssertNumberOfCalls(t, "SendTemplate", 2)
	assert.Equal(t, int64(2), f.countEvents(t, billingeventdomain.EventInvoiceReminderSent, 3))
}

func TestSendReminderDeliveryFailureIsAudited(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.email.On("SendTemplate", mock.Anything, "invoice_reminder", mock.Anything).Return(errors.New("smtp down"))

	inv, err := f.svc.SendReminder(ctx, "2")
	require.NoError(t, err)
	assert.Equal(t, 1, inv.ReminderCount)
	assert.Equal(t, 1, f.stored(t, 2).ReminderCount)

	var entry auditdomain.AuditLog
	require.NoError(t, f.db.Where("action = ?", "invoice.reminder_sent").First(&entry).Error)
	assert.Equal(t, "smtp down", entry.Metadata["delivery_error"])
	require.NotNil(t, entry.TargetID)
	assert.Equal(t, "2", *entry.TargetID)
}

func TestBulkActionMarkPaid(t *testing.T) {
	f := newFixture(t)

	result, err := f.svc.BulkAction(context.Background(), invoicedomain.BulkActionRequest{
		Action:     "mark-paid",
		InvoiceIDs: []string{"2", "4", "2"},
	})
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.ActionMarkPaid, result.Action)
	assert.Equal(t, []string{"2", "4"}, result.Processed)
	assert.Empty(t, result.Skipped)

	assert.Equal(t, invoicedomain.InvoiceStatusPaid, f.stored(t, 2).Status)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, f.stored(t, 4).Status)

	var entry auditdomain.AuditLog
	require.NoError(t, f.db.Where("action = ?", "invoice.bulk_action").First(&entry).Error)
	assert.Equal(t, "mark-paid", entry.Metadata["action"])
}

func TestBulkActionRollsBackOnInvalidTransition(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.BulkAction(context.Background(), invoicedomain.BulkActionRequest{
		Action:     "mark-paid",
		InvoiceIDs: []string{"2", "1"},
	})
	require.ErrorIs(t, err, invoicedomain.ErrInvoiceAlreadyPaid)
	assert.Contains(t, err.Error(), "INV-2025-001")

	assert.Equal(t, invoicedomain.InvoiceStatusPending, f.stored(t, 2).Status)
	assert.Zero(t, f.countEvents(t, billingeventdomain.EventInvoicePaid, 2))

	_, err = f.svc.BulkAction(context.Background(), invoicedomain.BulkActionRequest{
		Action:     "cancel",
		InvoiceIDs: []string{"2", "999"},
	})
	require.ErrorIs(t, err, invoicedomain.ErrInvoiceNotFound)
	assert.Equal(t, invoicedomain.InvoiceStatusPending, f.stored(t, 2).Status)
}

func TestBulkActionValidation(t *testing.T) {
	cfg := config.DefaultBillingConfig()
	cfg.MaxBulkSize = 2
	f := newFixture(t, withBilling(cfg))
	ctx := context.Background()

	_, err := f.svc.BulkAction(ctx, invoicedomain.BulkActionRequest{Action: "archive", InvoiceIDs: []string{"2"}})
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidAction)

	_, err = f.svc.BulkAction(ctx, invoicedomain.BulkActionRequest{Action: "cancel"})
	assert.ErrorIs(t, err, invoicedomain.ErrEmptySelection)

	_, err = f.svc.BulkAction(ctx, invoicedomain.BulkActionRequest{Action: "cancel", InvoiceIDs: []string{"2", "x"}})
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidID)

	_, err = f.svc.BulkAction(ctx, invoicedomain.BulkActionRequest{Action: "cancel", InvoiceIDs: []string{"1", "2", "3"}})
	assert.ErrorIs(t, err, invoicedomain.ErrBulkTooLarge)
}

func TestBulkReminderSkipsThrottled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.email.On("SendTemplate", mock.Anything, "invoice_reminder", mock.Anything).Return(nil)

	first, err := f.svc.BulkAction(ctx, invoicedomain.BulkActionRequest{Action: "send-reminder", InvoiceIDs: []string{"2", "3"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "3"}, first.Processed)
	assert.Empty(t, first.Skipped)

	second, err := f.svc.BulkAction(ctx, invoicedomain.BulkActionRequest{Action: "send-reminder", InvoiceIDs: []string{"2", "3"}})
	require.NoError(t, err)
	assert.Empty(t, second.Processed)
	assert.Equal(t, []string{"2", "3"}, second.Skipped)

	f.email.AssertNumberOfCalls(t, "SendTemplate", 2)
}

func TestReminderLockAcrossReplicas(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := newFixture(t, withLocker(ratelimit.NewLocker(client)))
	ctx := context.Background()
	f.email.On("SendTemplate", mock.Anything, "invoice_reminder", mock.Anything).Return(nil)

	// Another replica already holds the reminder for invoice 2.
	require.NoError(t, mr.Set("billing:reminder:2", "other-replica"))
	_, err := f.svc.SendReminder(ctx, "2")
	assert.ErrorIs(t, err, invoicedomain.ErrReminderThrottled)
	assert.Zero(t, f.stored(t, 2).ReminderCount)

	_, err = f.svc.SendReminder(ctx, "4")
	require.NoError(t, err)
	assert.True(t, mr.Exists("billing:reminder:4"))
	assert.Equal(t, 24*time.Hour, mr.TTL("billing:reminder:4"))
}

func TestReminderLockReleasedOnRollback(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := newFixture(t, withLocker(ratelimit.NewLocker(client)))

	_, err := f.svc.BulkAction(context.Background(), invoicedomain.BulkActionRequest{
		Action:     "send-reminder",
		InvoiceIDs: []string{"4", "5"},
	})
	require.ErrorIs(t, err, invoicedomain.ErrReminderNotAllowed)

	assert.False(t, mr.Exists("billing:reminder:4"))
	assert.Zero(t, f.stored(t, 4).ReminderCount)
	f.email.AssertNotCalled(t, "SendTemplate", mock.Anything, mock.Anything, mock.Anything)
}
