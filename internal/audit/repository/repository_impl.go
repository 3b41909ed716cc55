package repository

import (
	"context"
	"strings"

	"github.com/digiurban/billing/internal/audit/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// Insert runs on whatever db it is handed, so invoice services can write the
// entry inside their own transaction.
func (r *repo) Insert(ctx context.Context, db *gorm.DB, entry *domain.AuditLog) error {
	if entry == nil {
		return nil
	}
	return db.WithContext(ctx).Create(entry).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.AuditLog, error) {
	var logs []*domain.AuditLog
	err := db.WithContext(ctx).
		Scopes(matchEquals(map[string]string{
			"action":      filter.Action,
			"target_type": filter.TargetType,
			"target_id":   filter.TargetID,
			"actor_type":  filter.ActorType,
			"actor_id":    filter.ActorID,
		}), withinRange(filter)).
		Order("id desc").
		Limit(filter.Limit).
		Find(&logs).Error
	return logs, err
}

func matchEquals(columns map[string]string) func(*gorm.DB) *gorm.DB {
	return func(tx *gorm.DB) *gorm.DB {
		for column, value := range columns {
			if value = strings.TrimSpace(value); value != "" {
				tx = tx.Where(column+" = ?", value)
			}
		}
		return tx
	}
}

// withinRange applies the time window and the id cursor. Snowflake ids grow
// with creation time, so id order matches created_at order.
func withinRange(filter domain.ListFilter) func(*gorm.DB) *gorm.DB {
	return func(tx *gorm.DB) *gorm.DB {
		if filter.StartAt != nil {
			tx = tx.Where("created_at >= ?", filter.StartAt.UTC())
		}
		if filter.EndAt != nil {
			tx = tx.Where("created_at <= ?", filter.EndAt.UTC())
		}
		if filter.BeforeID != 0 {
			tx = tx.Where("id < ?", filter.BeforeID)
		}
		return tx
	}
}
