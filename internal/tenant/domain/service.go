package domain

import (
	"context"
	"errors"
)

type ListTenantRequest struct {
	Status string
	Plan   string
}

type ListTenantFilter struct {
	Status TenantStatus
	Plan   Plan
}

type ListTenantResponse struct {
	Tenants []Tenant `json:"tenants"`
}

type CreateTenantRequest struct {
	Name         string `json:"name"`
	TaxID        string `json:"cnpj"`
	BillingEmail string `json:"billing_email"`
	Plan         string `json:"plan"`
}

type Service interface {
	Create(context.Context, CreateTenantRequest) (Tenant, error)
	List(context.Context, ListTenantRequest) (ListTenantResponse, error)
	GetByID(context.Context, string) (Tenant, error)
	ListActive(context.Context) ([]Tenant, error)
}

var (
	ErrInvalidName   = errors.New("invalid_name")
	ErrInvalidTaxID  = errors.New("invalid_cnpj")
	ErrInvalidEmail  = errors.New("invalid_email")
	ErrInvalidPlan   = errors.New("invalid_plan")
	ErrInvalidStatus = errors.New("invalid_status")
	ErrInvalidID     = errors.New("invalid_id")
	ErrNotFound      = errors.New("tenant_not_found")
	ErrAlreadyExists = errors.New("tenant_already_exists")
)
