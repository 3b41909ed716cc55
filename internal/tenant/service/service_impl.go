package service

import (
	"context"
	"net/mail"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/digiurban/billing/internal/clock"
	"github.com/digiurban/billing/internal/tenant/domain"
	"github.com/digiurban/billing/pkg/db"
	"github.com/gosimple/slug"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("tenant.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateTenantRequest) (domain.Tenant, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Tenant{}, domain.ErrInvalidName
	}

	taxID, err := domain.NormalizeCNPJ(req.TaxID)
	if err != nil {
		return domain.Tenant{}, err
	}

	email := strings.TrimSpace(req.BillingEmail)
	if _, err := mail.ParseAddress(email); err != nil {
		return domain.Tenant{}, domain.ErrInvalidEmail
	}

	plan, ok := domain.ParsePlan(req.Plan)
	if !ok {
		return domain.Tenant{}, domain.ErrInvalidPlan
	}

	now := s.clock.Now()
	tenant := domain.Tenant{
		ID:           s.genID.Generate(),
		Code:         strings.ToUpper(slug.Make(name)),
		Name:         name,
		TaxID:        taxID,
		BillingEmail: email,
		Plan:         plan,
		Status:       domain.TenantStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.Insert(ctx, s.db, &tenant); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.Tenant{}, domain.ErrAlreadyExists
		}
		return domain.Tenant{}, err
	}

	s.log.Info("tenant created",
		zap.String("tenant_id", tenant.ID.String()),
		zap.String("code", tenant.Code),
		zap.String("plan", string(tenant.Plan)),
	)
	return tenant, nil
}

func (s *Service) List(ctx context.Context, req domain.ListTenantRequest) (domain.ListTenantResponse, error) {
	filter := domain.ListTenantFilter{}
	if status := strings.ToUpper(strings.TrimSpace(req.Status)); status != "" {
		switch domain.TenantStatus(status) {
		case domain.TenantStatusActive, domain.TenantStatusSuspended:
			filter.Status = domain.TenantStatus(status)
		default:
			return domain.ListTenantResponse{}, domain.ErrInvalidStatus
		}
	}
	if strings.TrimSpace(req.Plan) != "" {
		plan, ok := domain.ParsePlan(req.Plan)
		if !ok {
			return domain.ListTenantResponse{}, domain.ErrInvalidPlan
		}
		filter.Plan = plan
	}

	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return domain.ListTenantResponse{}, err
	}

	tenants := make([]domain.Tenant, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		tenants = append(tenants, *item)
	}
	return domain.ListTenantResponse{Tenants: tenants}, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.Tenant, error) {
	tenantID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || tenantID == 0 {
		return domain.Tenant{}, domain.ErrInvalidID
	}

	item, err := s.repo.FindByID(ctx, s.db, tenantID)
	if err != nil {
		return domain.Tenant{}, err
	}
	if item == nil {
		return domain.Tenant{}, domain.ErrNotFound
	}
	return *item, nil
}

func (s *Service) ListActive(ctx context.Context) ([]domain.Tenant, error) {
	resp, err := s.List(ctx, domain.ListTenantRequest{Status: string(domain.TenantStatusActive)})
	if err != nil {
		return nil, err
	}
	return resp.Tenants, nil
}
