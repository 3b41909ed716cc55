package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/digiurban/billing/internal/tenant/domain"
	"github.com/digiurban/billing/pkg/db/option"
	"github.com/digiurban/billing/pkg/repository"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, tenant *domain.Tenant) error {
	return repository.On[domain.Tenant](db).Create(ctx, tenant)
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Tenant, error) {
	return repository.On[domain.Tenant](db).First(ctx, option.WithWhere("id = ?", id))
}

// List orders by name so the console tenant picker is alphabetical.
func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListTenantFilter) ([]*domain.Tenant, error) {
	var opts []option.QueryOption
	if filter.Status != "" {
		opts = append(opts, option.WithWhere("status = ?", filter.Status))
	}
	if filter.Plan != "" {
		opts = append(opts, option.WithWhere("plan = ?", filter.Plan))
	}
	opts = append(opts, option.WithSortBy("name", "asc"), option.WithSortBy("id", "asc"))
	return repository.On[domain.Tenant](db).Find(ctx, opts...)
}
