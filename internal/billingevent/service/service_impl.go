package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/digiurban/billing/internal/billingevent/domain"
	"github.com/digiurban/billing/internal/billingevent/publisher"
	"github.com/digiurban/billing/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Repo      domain.Repository
	Publisher publisher.Publisher
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      domain.Repository
	publisher publisher.Publisher
}

func New(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("billingevent.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		publisher: p.Publisher,
	}
}

func (s *Service) Record(ctx context.Context, tx *gorm.DB, event domain.NewEvent) error {
	if tx == nil {
		return domain.ErrMissingTx
	}
	eventType := strings.TrimSpace(event.Type)
	if eventType == "" {
		return domain.ErrInvalidEventType
	}

	payload := make(map[string]any, len(event.Payload))
	for key, value := range event.Payload {
		if key == "" {
			continue
		}
		payload[key] = value
	}

	row := domain.BillingEvent{
		ID:          s.genID.Generate(),
		EventType:   eventType,
		AggregateID: event.AggregateID,
		Payload:     datatypes.JSONMap(payload),
		CreatedAt:   s.clock.Now(),
	}
	if key := strings.TrimSpace(event.DedupeKey); key != "" {
		row.DedupeKey = &key
	}

	inserted, err := s.repo.Insert(ctx, tx, &row)
	if err != nil {
		return err
	}
	if !inserted {
		s.log.Debug("duplicate billing event ignored",
			zap.String("event_type", eventType),
			zap.String("dedupe_key", event.DedupeKey),
		)
	}
	return nil
}

func (s *Service) PublishPending(ctx context.Context, limit int) (int, error) {
	events, err := s.repo.ListPending(ctx, s.db, limit)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}

	ids := make([]snowflake.ID, 0, len(events))
	msgs := make([]publisher.Message, 0, len(events))
	for _, event := range events {
		body, err := json.Marshal(envelope{
			ID:          event.ID.String(),
			Type:        event.EventType,
			AggregateID: event.AggregateID.String(),
			OccurredAt:  event.CreatedAt.UTC().Format(time.RFC3339),
			Data:        event.Payload,
		})
		if err != nil {
			return 0, err
		}
		ids = append(ids, event.ID)
		msgs = append(msgs, publisher.Message{
			ID:          event.ID.String(),
			Type:        event.EventType,
			AggregateID: event.AggregateID.String(),
			OccurredAt:  event.CreatedAt,
			Body:        body,
		})
	}

	if err := s.publisher.Publish(ctx, msgs...); err != nil {
		if markErr := s.repo.MarkFailed(ctx, s.db, ids, err.Error()); markErr != nil {
			s.log.Warn("failed to record publish failure", zap.Error(markErr))
		}
		return 0, err
	}

	if err := s.repo.MarkPublished(ctx, s.db, ids, s.clock.Now()); err != nil {
		return 0, err
	}
	return len(ids), nil
}

type envelope struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	AggregateID string         `json:"aggregate_id"`
	OccurredAt  string         `json:"occurred_at"`
	Data        map[string]any `json:"data"`
}
