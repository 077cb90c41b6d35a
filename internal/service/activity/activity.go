// internal/service/activity/activity.go
package activity

import (
	"context"
	"fmt"

	"crm-service/internal/domain/activity"
	"crm-service/internal/pkg/actor"
	"crm-service/internal/store"

	"go.uber.org/zap"
)

// ActivityService writes the append-only activity log. There is no update path.
type ActivityService struct {
	store  store.Client
	logger *zap.Logger
}

func NewActivityService(client store.Client, logger *zap.Logger) *ActivityService {
	return &ActivityService{
		store:  client,
		logger: logger,
	}
}

// Record inserts a single activity.
func (s *ActivityService) Record(ctx context.Context, a *activity.Activity) error {
	if err := s.prepare(ctx, a); err != nil {
		return err
	}
	if err := s.store.Set(ctx, store.CollectionActivities, a.ID, a); err != nil {
		return fmt.Errorf("failed to record activity: %w", err)
	}
	return nil
}

// Stage adds the activity to b so it commits with the change it describes.
func (s *ActivityService) Stage(ctx context.Context, b store.Batch, a *activity.Activity) error {
	if err := s.prepare(ctx, a); err != nil {
		return err
	}
	b.Set(store.CollectionActivities, a.ID, a)
	return nil
}

func (s *ActivityService) prepare(ctx context.Context, a *activity.Activity) error {
	if err := a.Validate(); err != nil {
		return err
	}
	if a.ID == "" {
		a.ID = s.store.NewID()
	}
	if a.ActorID == "" {
		a.ActorID = actor.FromContext(ctx)
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.store.Now()
	}
	return nil
}

// ListByOwner returns activities whose owner field matches any of ids.
// field is one of "customerId", "conversationId", "caseId".
func (s *ActivityService) ListByOwner(ctx context.Context, field string, ids []string) ([]activity.Activity, error) {
	var out []activity.Activity
	for _, chunk := range store.Chunk(ids, store.MaxInValues) {
		snaps, err := s.store.Query(ctx, store.CollectionActivities, store.Query{
			Filters: []store.Filter{store.WhereIn(field, chunk)},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list activities by %s: %w", field, err)
		}
		for _, snap := range snaps {
			var a activity.Activity
			if err := snap.DataTo(&a); err != nil {
				s.logger.Warn("skipping undecodable activity", zap.String("activity_id", snap.ID), zap.Error(err))
				continue
			}
			out = append(out, a)
		}
	}
	return out, nil
}
