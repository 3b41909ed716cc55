package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/digiurban/billing/internal/billingevent/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, event *domain.BillingEvent) (bool, error) {
	result := db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(event)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) ListPending(ctx context.Context, db *gorm.DB, limit int) ([]*domain.BillingEvent, error) {
	var events []*domain.BillingEvent
	stmt := db.WithContext(ctx).
		Where("published = ?", false).
		Order("created_at asc, id asc")
	if limit > 0 {
		stmt = stmt.Limit(limit)
	}
	if err := stmt.Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (r *repo) MarkPublished(ctx context.Context, db *gorm.DB, ids []snowflake.ID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return db.WithContext(ctx).Exec(
		`UPDATE billing_events
		 SET published = ?, published_at = ?, last_error = ''
		 WHERE id IN ?`,
		true,
		at,
		ids,
	).Error
}

func (r *repo) MarkFailed(ctx context.Context, db *gorm.DB, ids []snowflake.ID, reason string) error {
	if len(ids) == 0 {
		return nil
	}
	return db.WithContext(ctx).Exec(
		`UPDATE billing_events
		 SET attempts = attempts + 1, last_error = ?
		 WHERE id IN ?`,
		reason,
		ids,
	).Error
}
