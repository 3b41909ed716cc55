package repository

import (
	"context"
	"errors"

	"github.com/digiurban/billing/pkg/db/option"
	"gorm.io/gorm"
)

// createBatchSize bounds one INSERT; invoices rarely carry more items.
const createBatchSize = 100

type store[T any] struct {
	db *gorm.DB
}

func (s store[T]) query(ctx context.Context, opts []option.QueryOption) *gorm.DB {
	stmt := s.db.WithContext(ctx).Model(new(T))
	for _, opt := range opts {
		stmt = opt.Apply(stmt)
	}
	return stmt
}

func (s store[T]) Find(ctx context.Context, opts ...option.QueryOption) ([]*T, error) {
	var rows []*T
	if err := s.query(ctx, opts).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (s store[T]) First(ctx context.Context, opts ...option.QueryOption) (*T, error) {
	var row T
	err := s.query(ctx, opts).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (s store[T]) Count(ctx context.Context, opts ...option.QueryOption) (int64, error) {
	var n int64
	err := s.query(ctx, opts).Count(&n).Error
	return n, err
}

func (s store[T]) Create(ctx context.Context, rows ...*T) error {
	if len(rows) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).CreateInBatches(rows, createBatchSize).Error
}
