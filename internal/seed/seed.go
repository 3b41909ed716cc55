package seed

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	invoicedomain "github.com/digiurban/billing/internal/invoice/domain"
	invoicerepository "github.com/digiurban/billing/internal/invoice/repository"
	tenantrepository "github.com/digiurban/billing/internal/tenant/repository"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EnsureDemoData seeds the demo municipalities and their invoices. Rows that
// already exist are left untouched, so it is safe to run on every start.
func EnsureDemoData(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureTenantsTx(ctx, tx); err != nil {
			return err
		}
		invoices, err := ensureInvoicesTx(ctx, tx)
		if err != nil {
			return err
		}
		return ensureInvoiceSequencesTx(ctx, tx, invoices)
	})
}

func ensureTenantsTx(ctx context.Context, tx *gorm.DB) error {
	repo := tenantrepository.Provide()
	for _, tenant := range invoicedomain.MockTenants() {
		existing, err := repo.FindByID(ctx, tx, tenant.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}
		if err := repo.Insert(ctx, tx, &tenant); err != nil {
			return err
		}
	}
	return nil
}

func ensureInvoicesTx(ctx context.Context, tx *gorm.DB) ([]invoicedomain.Invoice, error) {
	repo := invoicerepository.Provide()
	invoices := invoicedomain.MockInvoices()
	for i := range invoices {
		existing, err := repo.FindByID(ctx, tx, invoices[i].ID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			continue
		}
		if err := repo.Insert(ctx, tx, &invoices[i]); err != nil {
			return nil, err
		}
	}
	return invoices, nil
}

// ensureInvoiceSequencesTx moves each yearly counter past the seeded numbers
// so the next allocated number does not collide with them.
func ensureInvoiceSequencesTx(ctx context.Context, tx *gorm.DB, invoices []invoicedomain.Invoice) error {
	last := map[string]int64{}
	for _, inv := range invoices {
		year, seq, ok := splitNumber(inv.Number)
		if !ok {
			continue
		}
		scope := "invoice:" + year
		if seq > last[scope] {
			last[scope] = seq
		}
	}

	now := time.Now().UTC()
	for scope, value := range last {
		err := tx.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&invoicedomain.InvoiceSequence{
			Scope:     scope,
			LastValue: 0,
			UpdatedAt: now,
		}).Error
		if err != nil {
			return err
		}
		err = tx.WithContext(ctx).Exec(
			`UPDATE invoice_sequences SET last_value = ?, updated_at = ? WHERE scope = ? AND last_value < ?`,
			value, now, scope, value,
		).Error
		if err != nil {
			return err
		}
	}
	return nil
}

// splitNumber reads the year and sequence out of an INV-YYYY-NNN number.
func splitNumber(number string) (string, int64, bool) {
	parts := strings.Split(number, "-")
	if len(parts) != 3 {
		return "", 0, false
	}
	seq, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return "", 0, false
	}
	return parts[1], seq, true
}
