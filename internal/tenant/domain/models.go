package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Plan is the subscription tier a municipality is billed for.
type Plan string

const (
	PlanStarter      Plan = "STARTER"
	PlanProfessional Plan = "PROFESSIONAL"
	PlanEnterprise   Plan = "ENTERPRISE"
)

func (p Plan) Valid() bool {
	switch p {
	case PlanStarter, PlanProfessional, PlanEnterprise:
		return true
	default:
		return false
	}
}

// ParsePlan normalizes user input into a Plan.
func ParsePlan(raw string) (Plan, bool) {
	plan := Plan(strings.ToUpper(strings.TrimSpace(raw)))
	return plan, plan.Valid()
}

type TenantStatus string

const (
	TenantStatusActive    TenantStatus = "ACTIVE"
	TenantStatusSuspended TenantStatus = "SUSPENDED"
)

// Tenant is a municipality subscribed to the platform.
type Tenant struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	Code         string       `gorm:"type:text;not null;uniqueIndex" json:"code"`
	Name         string       `gorm:"type:text;not null" json:"name"`
	TaxID        string       `gorm:"column:tax_id;type:text;not null;uniqueIndex" json:"cnpj"`
	BillingEmail string       `gorm:"type:text;not null" json:"billing_email"`
	Plan         Plan         `gorm:"type:text;not null" json:"plan"`
	Status       TenantStatus `gorm:"type:text;not null" json:"status"`
	CreatedAt    time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time    `gorm:"not null" json:"updated_at"`
}

func (Tenant) TableName() string { return "tenants" }
