package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type NewEvent struct {
	Type        string
	AggregateID snowflake.ID
	DedupeKey   string
	Payload     map[string]any
}

type Service interface {
	// Record stores the event on tx so it commits or rolls back with the caller.
	Record(ctx context.Context, tx *gorm.DB, event NewEvent) error
	// PublishPending relays up to limit unpublished events and returns how many were sent.
	PublishPending(ctx context.Context, limit int) (int, error)
}

var (
	ErrInvalidEventType = errors.New("invalid_event_type")
	ErrMissingTx        = errors.New("missing_transaction")
)
