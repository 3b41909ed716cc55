package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditrepository "github.com/digiurban/billing/internal/audit/repository"
	auditservice "github.com/digiurban/billing/internal/audit/service"
	billingeventdomain "github.com/digiurban/billing/internal/billingevent/domain"
	"github.com/digiurban/billing/internal/billingevent/publisher"
	billingeventrepository "github.com/digiurban/billing/internal/billingevent/repository"
	billingeventservice "github.com/digiurban/billing/internal/billingevent/service"
	"github.com/digiurban/billing/internal/clock"
	"github.com/digiurban/billing/internal/config"
	invoicedomain "github.com/digiurban/billing/internal/invoice/domain"
	"github.com/digiurban/billing/internal/invoice/repository"
	"github.com/digiurban/billing/internal/migration"
	"github.com/digiurban/billing/internal/providers/email"
	"github.com/digiurban/billing/internal/providers/pdf"
	"github.com/digiurban/billing/internal/ratelimit"
	"github.com/digiurban/billing/internal/seed"
	tenantrepository "github.com/digiurban/billing/internal/tenant/repository"
	tenantservice "github.com/digiurban/billing/internal/tenant/service"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type mockEmail struct {
	mock.Mock
}

func (m *mockEmail) Send(ctx context.Context, to []string, subject string, htmlBody string) error {
	return m.Called(to, subject).Error(0)
}

func (m *mockEmail) SendTemplate(ctx context.Context, to []string, templateName string, data email.TemplateData) error {
	return m.Called(to, templateName, data).Error(0)
}

type fixture struct {
	svc   invoicedomain.Service
	db    *gorm.DB
	clock *clock.FakeClock
	email *mockEmail
}

type fixtureOption func(*Params)

func withBilling(cfg config.BillingConfig) fixtureOption {
	return func(p *Params) { p.Billing = config.NewStaticBillingConfigHolder(cfg) }
}

func withLocker(l *ratelimit.Locker) fixtureOption {
	return func(p *Params) { p.Locker = l }
}

// newFixture wires the invoice service over a seeded in-memory database with
// the clock parked on 2025-01-20 12:00 UTC.
func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, migration.AutoMigrate(db))
	require.NoError(t, seed.EnsureDemoData(db))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	log := zaptest.NewLogger(t)
	clk := clock.NewFakeClock(time.Date(2025, 1, 20, 12, 0, 0, 0, time.UTC))
	mailer := &mockEmail{}

	params := Params{
		DB:    db,
		Log:   log,
		GenID: node,
		Clock: clk,
		Repo:  repository.Provide(),
		TenantSvc: tenantservice.New(tenantservice.Params{
			DB: db, Log: log, GenID: node, Clock: clk, Repo: tenantrepository.Provide(),
		}),
		AuditSvc: auditservice.NewService(auditservice.Params{
			DB: db, Log: log, GenID: node, Clock: clk, Repo: auditrepository.Provide(),
		}),
		Events: billingeventservice.New(billingeventservice.Params{
			DB: db, Log: log, GenID: node, Clock: clk,
			Repo:      billingeventrepository.Provide(),
			Publisher: publisher.NewLogPublisher(log),
		}),
		Email:   mailer,
		PDF:     pdf.New(),
		Billing: config.NewStaticBillingConfigHolder(config.DefaultBillingConfig()),
	}
	for _, opt := range opts {
		opt(&params)
	}

	return &fixture{svc: New(params), db: db, clock: clk, email: mailer}
}

func (f *fixture) stored(t *testing.T, id int64) invoicedomain.Invoice {
	t.Helper()
	found, err := repository.Provide().FindByID(context.Background(), f.db, snowflake.ID(id))
	require.NoError(t, err)
	require.NotNil(t, found)
	return *found
}

func (f *fixture) countEvents(t *testing.T, eventType string, aggregateID int64) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.db.Model(&billingeventdomain.BillingEvent{}).
		Where("event_type = ? AND aggregate_id = ?", eventType, aggregateID).
		Count(&count).Error)
	return count
}

func invoiceNumbers(invoices []invoicedomain.Invoice) []string {
	out := make([]string, 0, len(invoices))
	for _, inv := range invoices {
		out = append(out, inv.Number)
	}
	return out
}

func TestListAppliesFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		filter invoicedomain.Filter
		want   []string
	}{
		{"all", invoicedomain.Filter{Status: "all", Plan: "all", TenantID: "all"},
			[]string{"INV-2025-001", "INV-2025-002", "INV-2025-003", "INV-2025-004", "INV-2025-005"}},
		{"search by tenant name", invoicedomain.Filter{Search: "campinas"}, []string{"INV-2025-002"}},
		{"plan", invoicedomain.Filter{Plan: "professional"}, []string{"INV-2025-002", "INV-2025-004"}},
		{"stored status", invoicedomain.Filter{Status: "OVERDUE"}, []string{"INV-2025-003"}},
		{"tenant", invoicedomain.Filter{TenantID: "102"}, []string{"INV-2025-002"}},
		{"intersection", invoicedomain.Filter{Plan: "PROFESSIONAL", Status: "PENDING", Search: "soro"}, []string{"INV-2025-004"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := f.svc.List(ctx, invoicedomain.ListInvoiceRequest{Filter: tc.filter})
			require.NoError(t, err)
			assert.Equal(t, tc.want, invoiceNumbers(resp.Invoices))
		})
	}

	_, err := f.svc.List(ctx, invoicedomain.ListInvoiceRequest{Filter: invoicedomain.Filter{Status: "DRAFT"}})
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidStatusFilter)
}

func TestListEffectiveStatusPromotesPastDuePending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.clock.Set(time.Date(2025, 2, 12, 12, 0, 0, 0, time.UTC))

	stored, err := f.svc.List(ctx, invoicedomain.ListInvoiceRequest{Filter: invoicedomain.Filter{Status: "OVERDUE"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"INV-2025-003"}, invoiceNumbers(stored.Invoices))

	effective, err := f.svc.List(ctx, invoicedomain.ListInvoiceRequest{Filter: invoicedomain.Filter{
		Status:     "OVERDUE",
		StatusMode: invoicedomain.StatusModeEffective,
	}})
	require.NoError(t, err)
	assert.Equal(t, []string{"INV-2025-002", "INV-2025-003"}, invoiceNumbers(effective.Invoices))
	assert.Equal(t, invoicedomain.InvoiceStatusPending, effective.Invoices[0].Status)
	assert.Equal(t, invoicedomain.InvoiceStatusOverdue, effective.Invoices[0].EffectiveStatus)
}

func TestSummaryOverSeededInvoices(t *testing.T) {
	f := newFixture(t)

	m, err := f.svc.Summary(context.Background(), invoicedomain.ListInvoiceRequest{})
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.Metrics{
		Total:         5,
		Pending:       2,
		Paid:          1,
		Overdue:       1,
		PendingAmount: 1_000_000,
		PaidAmount:    1_000_000,
		OverdueAmount: 250_000,
		TotalAmount:   3_250_000,
	}, m)

	m, err = f.svc.Summary(context.Background(), invoicedomain.ListInvoiceRequest{Filter: invoicedomain.Filter{Plan: "ENTERPRISE"}})
	require.NoError(t, err)
	assert.Equal(t, 2, m.Total)
	assert.Equal(t, 1, m.Paid)
	assert.Equal(t, int64(2_000_000), m.TotalAmount)
}

func TestGetByID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inv, err := f.svc.GetByID(ctx, "3")
	require.NoError(t, err)
	assert.Equal(t, "INV-2025-003", inv.Number)
	assert.Equal(t, "Prefeitura de Santos", inv.Tenant.Name)
	assert.Equal(t, int64(250_000), inv.Amount)
	require.Len(t, inv.Items, 1)
	assert.Equal(t, int64(250_000), inv.Items[0].Total)

	_, err = f.svc.GetByID(ctx, "abc")
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidID)

	_, err = f.svc.GetByID(ctx, "999")
	assert.ErrorIs(t, err, invoicedomain.ErrInvoiceNotFound)
}

func TestCreateDefaultsToPlanItem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inv, err := f.svc.Create(ctx, invoicedomain.CreateInvoiceRequest{
		TenantID:    "102",
		PeriodStart: time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	assert.Equal(t, "INV-2025-006", inv.Number)
	assert.Equal(t, invoicedomain.InvoiceStatusPending, inv.Status)
	assert.Equal(t, invoicedomain.InvoiceSourceManual, inv.Source)
	assert.Equal(t, "Fevereiro 2025", inv.Period)
	assert.Equal(t, time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), inv.PeriodStart)
	assert.Equal(t, time.Date(2025, 2, 11, 0, 0, 0, 0, time.UTC), inv.DueDate)
	assert.Equal(t, int64(500_000), inv.Amount)
	require.Len(t, inv.Items, 1)
	assert.Equal(t, "Assinatura DigiUrban PROFESSIONAL - Fevereiro 2025", inv.Items[0].Description)

	stored := f.stored(t, inv.ID.Int64())
	assert.Equal(t, inv.Number, stored.Number)
	assert.Equal(t, int64(500_000), stored.Amount)
	assert.Equal(t, int64(1), f.countEvents(t, billingeventdomain.EventInvoiceCreated, inv.ID.Int64()))
}

func TestCreateWithItemsAndPlanOverride(t *testing.T) {
	f := newFixture(t)

	due := time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC)
	inv, err := f.svc.Create(context.Background(), invoicedomain.CreateInvoiceRequest{
		TenantID:    "103",
		Plan:        "enterprise",
		PeriodStart: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
		DueDate:     &due,
		Items: []invoicedomain.CreateInvoiceItemRequest{
			{Description: "Implantação", Quantity: 2, UnitPrice: 100_00},
			{Description: "Treinamento", Quantity: 1, UnitPrice: 50_00},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.Plan("ENTERPRISE"), inv.Plan)
	assert.Equal(t, due, inv.DueDate)
	assert.Equal(t, int64(250_00), inv.Amount)
	require.Len(t, inv.Items, 2)
	assert.Equal(t, 1, inv.Items[0].Position)
	assert.Equal(t, 2, inv.Items[1].Position)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	periodStart := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	early := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		req  invoicedomain.CreateInvoiceRequest
		want error
	}{
		{"unknown tenant", invoicedomain.CreateInvoiceRequest{TenantID: "999", PeriodStart: periodStart}, invoicedomain.ErrInvalidTenant},
		{"malformed tenant", invoicedomain.CreateInvoiceRequest{TenantID: "x", PeriodStart: periodStart}, invoicedomain.ErrInvalidTenant},
		{"bad plan", invoicedomain.CreateInvoiceRequest{TenantID: "101", Plan: "GOLD", PeriodStart: periodStart}, invoicedomain.ErrInvalidPlan},
		{"missing period", invoicedomain.CreateInvoiceRequest{TenantID: "101"}, invoicedomain.ErrInvalidPeriod},
		{"due before period", invoicedomain.CreateInvoiceRequest{TenantID: "101", PeriodStart: periodStart, DueDate: &early}, invoicedomain.ErrInvalidDueDate},
		{"zero quantity", invoicedomain.CreateInvoiceRequest{TenantID: "101", PeriodStart: periodStart,
			Items: []invoicedomain.CreateInvoiceItemRequest{{Description: "x", Quantity: 0, UnitPrice: 1}}}, invoicedomain.ErrInvalidItems},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestGeneratePeriodInvoicesIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	jan, err := f.svc.GeneratePeriodInvoices(ctx, time.Date(2025, 1, 17, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Len(t, jan.Created, 2)
	assert.ElementsMatch(t, []string{"101", "102", "104"}, jan.Skipped)

	feb := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	first, err := f.svc.GeneratePeriodInvoices(ctx, feb)
	require.NoError(t, err)
	assert.Len(t, first.Created, 5)
	assert.Empty(t, first.Skipped)

	again, err := f.svc.GeneratePeriodInvoices(ctx, feb)
	require.NoError(t, err)
	assert.Empty(t, again.Created)
	assert.Len(t, again.Skipped, 5)

	resp, err := f.svc.List(ctx, invoicedomain.ListInvoiceRequest{})
	require.NoError(t, err)
	generated := 0
	for _, inv := range resp.Invoices {
		if inv.Period != "Fevereiro 2025" {
			continue
		}
		generated++
		assert.Equal(t, invoicedomain.InvoiceSourceSubscription, inv.Source)
		assert.True(t, time.Date(2025, 2, 11, 0, 0, 0, 0, time.UTC).Equal(inv.DueDate), inv.DueDate)
	}
	assert.Equal(t, 5, generated)

	_, err = f.svc.GeneratePeriodInvoices(ctx, time.Time{})
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidPeriod)
}

// staleExistsRepo answers "no invoice yet" for every period, as a generator
// that read before a concurrent run committed would.
type staleExistsRepo struct {
	invoicedomain.Repository
}

func (staleExistsRepo) ExistsForPeriod(context.Context, *gorm.DB, snowflake.ID, time.Time, invoicedomain.InvoiceSource) (bool, error) {
	return false, nil
}

func TestGeneratePeriodInvoicesSkipsPeriodConflicts(t *testing.T) {
	f := newFixture(t, func(p *Params) { p.Repo = staleExistsRepo{Repository: repository.Provide()} })
	ctx := context.Background()

	result, err := f.svc.GeneratePeriodInvoices(ctx, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Len(t, result.Created, 2)
	assert.ElementsMatch(t, []string{"101", "102", "104"}, result.Skipped)

	var live int64
	require.NoError(t, f.db.Model(&invoicedomain.Invoice{}).
		Where("tenant_id = ? AND source = ? AND status <> ?", 102, invoicedomain.InvoiceSourceSubscription, invoicedomain.InvoiceStatusCancelled).
		Count(&live).Error)
	assert.Equal(t, int64(1), live)

	var created int64
	require.NoError(t, f.db.Model(&billingeventdomain.BillingEvent{}).
		Where("event_type = ?", billingeventdomain.EventInvoiceCreated).
		Count(&created).Error)
	assert.Equal(t, int64(2), created)
}

func TestReconcileOverduePersistsStatusOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	count, err := f.svc.ReconcileOverdue(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	f.clock.Set(time.Date(2025, 2, 12, 12, 0, 0, 0, time.UTC))

	count, err = f.svc.ReconcileOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, invoicedomain.InvoiceStatusOverdue, f.stored(t, 2).Status)
	assert.Equal(t, invoicedomain.InvoiceStatusPending, f.stored(t, 4).Status)
	assert.Equal(t, int64(1), f.countEvents(t, billingeventdomain.EventInvoiceOverdue, 2))

	count, err = f.svc.ReconcileOverdue(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}
