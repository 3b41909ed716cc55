// Package repository is the generic gorm access shared by the tenant and
// invoice repositories.
package repository

import (
	"context"

	"github.com/digiurban/billing/pkg/db/option"
	"gorm.io/gorm"
)

// Store reads and writes rows of T on the db it was bound to. Bind it to a
// transaction handle to take part in that transaction.
type Store[T any] interface {
	Find(ctx context.Context, opts ...option.QueryOption) ([]*T, error)
	// First returns (nil, nil) when nothing matches.
	First(ctx context.Context, opts ...option.QueryOption) (*T, error)
	Count(ctx context.Context, opts ...option.QueryOption) (int64, error)
	// Create inserts rows in batches; it is a no-op for zero rows.
	Create(ctx context.Context, rows ...*T) error
}

// On binds a Store for T to db.
func On[T any](db *gorm.DB) Store[T] {
	return store[T]{db: db}
}
