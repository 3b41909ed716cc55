package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	tenantdomain "github.com/digiurban/billing/internal/tenant/domain"
)

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func timePtr(t time.Time) *time.Time { return &t }

// MockTenants is the fixed tenant set referenced by MockInvoices.
func MockTenants() []tenantdomain.Tenant {
	created := date(2024, time.January, 15)
	mk := func(id int64, code, name, taxID, email string, plan Plan) tenantdomain.Tenant {
		return tenantdomain.Tenant{
			ID:           snowflake.ID(id),
			Code:         code,
			Name:         name,
			TaxID:        taxID,
			BillingEmail: email,
			Plan:         plan,
			Status:       tenantdomain.TenantStatusActive,
			CreatedAt:    created,
			UpdatedAt:    created,
		}
	}
	return []tenantdomain.Tenant{
		mk(101, "PREFEITURA-DE-SAO-PAULO", "Prefeitura de São Paulo", "46.395.000/0001-39", "financeiro@prefeitura.sp.gov.br", tenantdomain.PlanEnterprise),
		mk(102, "PREFEITURA-DE-CAMPINAS", "Prefeitura de Campinas", "51.885.242/0001-40", "financeiro@campinas.sp.gov.br", tenantdomain.PlanProfessional),
		mk(103, "PREFEITURA-DE-SANTOS", "Prefeitura de Santos", "58.200.015/0001-83", "financeiro@santos.sp.gov.br", tenantdomain.PlanStarter),
		mk(104, "PREFEITURA-DE-SOROCABA", "Prefeitura de Sorocaba", "46.634.044/0001-74", "financeiro@sorocaba.sp.gov.br", tenantdomain.PlanProfessional),
		mk(105, "PREFEITURA-DE-RIBEIRAO-PRETO", "Prefeitura de Ribeirão Preto", "56.024.581/0001-56", "financeiro@ribeiraopreto.sp.gov.br", tenantdomain.PlanEnterprise),
	}
}

// MockInvoices is the five-invoice fallback list shown when the billing API
// cannot be reached. It doubles as the development seed.
func MockInvoices() []Invoice {
	tenants := MockTenants()

	mk := func(id int64, number string, tenant tenantdomain.Tenant, status InvoiceStatus, price int64, period string, periodStart, created, due time.Time) Invoice {
		inv := Invoice{
			ID:          snowflake.ID(id),
			Number:      number,
			TenantID:    tenant.ID,
			Tenant:      tenant,
			Plan:        tenant.Plan,
			Status:      status,
			Source:      InvoiceSourceSubscription,
			Currency:    "BRL",
			Period:      period,
			PeriodStart: periodStart,
			DueDate:     due,
			Items: []InvoiceItem{{
				ID:          snowflake.ID(id*10 + 1),
				InvoiceID:   snowflake.ID(id),
				Position:    1,
				Description: "Assinatura DigiUrban " + string(tenant.Plan) + " - " + period,
				Quantity:    1,
				UnitPrice:   price,
			}},
			CreatedAt: created,
			UpdatedAt: created,
		}
		inv.Recalculate()
		return inv
	}

	jan := date(2025, time.January, 1)
	dec := date(2024, time.December, 1)

	paid := mk(1, "INV-2025-001", tenants[0], InvoiceStatusPaid, 1_000_000, "Janeiro 2025", jan, jan, date(2025, time.January, 10))
	paid.PaidAt = timePtr(date(2025, time.January, 8))
	paid.UpdatedAt = *paid.PaidAt

	pending := mk(2, "INV-2025-002", tenants[1], InvoiceStatusPending, 500_000, "Janeiro 2025", jan, jan, date(2025, time.February, 10))

	overdue := mk(3, "INV-2025-003", tenants[2], InvoiceStatusOverdue, 250_000, "Dezembro 2024", dec, dec, date(2025, time.January, 10))
	overdue.ReminderCount = 1
	overdue.LastReminderAt = timePtr(date(2025, time.January, 12))

	pending2 := mk(4, "INV-2025-004", tenants[3], InvoiceStatusPending, 500_000, "Janeiro 2025", jan, date(2025, time.January, 5), date(2025, time.February, 15))

	cancelled := mk(5, "INV-2025-005", tenants[4], InvoiceStatusCancelled, 1_000_000, "Janeiro 2025", jan, jan, date(2025, time.February, 10))
	cancelled.CancelledAt = timePtr(date(2025, time.January, 15))
	cancelled.CancelReason = "Contrato encerrado"
	cancelled.UpdatedAt = *cancelled.CancelledAt

	return []Invoice{paid, pending, overdue, pending2, cancelled}
}
