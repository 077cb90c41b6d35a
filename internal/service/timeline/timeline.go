// internal/service/timeline/timeline.go
package timeline

import (
	"context"
	"fmt"
	"sort"

	"crm-service/internal/domain/activity"
	"crm-service/internal/domain/cases"
	"crm-service/internal/domain/conversation"
	"crm-service/internal/domain/customer"
	activitysvc "crm-service/internal/service/activity"
	"crm-service/internal/store"

	"go.uber.org/zap"
)

const maxSummaryLength = 140

type TimelineService struct {
	store      store.Client
	activities *activitysvc.ActivityService
	logger     *zap.Logger
}

func NewTimelineService(client store.Client, activities *activitysvc.ActivityService, logger *zap.Logger) *TimelineService {
	return &TimelineService{
		store:      client,
		activities: activities,
		logger:     logger,
	}
}

// GetUnifiedTimeline merges the customer's activities (including those of its
// conversations, cases and absorbed customers) with one entry per message,
// newest first. Entries without a timestamp are dropped. Read-only.
func (s *TimelineService) GetUnifiedTimeline(ctx context.Context, customerID string, opts activity.TimelineOptions) ([]activity.TimelineEntry, error) {
	snap, err := s.store.Get(ctx, store.CollectionCustomers, customerID)
	if err != nil {
		return nil, err
	}
	var c customer.Customer
	if err := snap.DataTo(&c); err != nil {
		return nil, fmt.Errorf("failed to decode customer: %w", err)
	}

	convs, err := s.conversations(ctx, customerID)
	if err != nil {
		return nil, err
	}
	caseIDs, err := s.caseIDs(ctx, customerID)
	if err != nil {
		return nil, err
	}

	convIDs := make([]string, 0, len(convs))
	threadIDs := make([]string, 0, len(convs))
	channels := make(map[string]string, len(convs))
	for _, cv := range convs {
		convIDs = append(convIDs, cv.ID)
		threadIDs = append(threadIDs, cv.ID)
		threadIDs = append(threadIDs, cv.MergedFrom...)
		channels[cv.ID] = cv.Channel
	}

	var entries []activity.TimelineEntry
	seen := make(map[string]struct{})
	addActivities := func(field string, ids []string) error {
		if len(ids) == 0 {
			return nil
		}
		acts, err := s.activities.ListByOwner(ctx, field, ids)
		if err != nil {
			return err
		}
		for _, a := range acts {
			if _, dup := seen[a.ID]; dup {
				continue
			}
			seen[a.ID] = struct{}{}
			entries = append(entries, fromActivity(a))
		}
		return nil
	}

	owners := append([]string{customerID}, c.MergedIDs...)
	if err := addActivities("customerId", owners); err != nil {
		return nil, err
	}
	if err := addActivities("conversationId", threadIDs); err != nil {
		return nil, err
	}
	if err := addActivities("caseId", caseIDs); err != nil {
		return nil, err
	}

	if opts.IncludeMessages == nil || *opts.IncludeMessages {
		msgs, err := s.messages(ctx, convIDs)
		if err != nil {
			return nil, err
		}
		for _, m := range msgs {
			entries = append(entries, fromMessage(m, channels[m.ConversationID]))
		}
	}

	return filterAndSort(entries, opts), nil
}

func filterAndSort(entries []activity.TimelineEntry, opts activity.TimelineOptions) []activity.TimelineEntry {
	types := make(map[string]struct{}, len(opts.Types))
	for _, t := range opts.Types {
		types[t] = struct{}{}
	}

	out := make([]activity.TimelineEntry, 0, len(entries))
	for _, e := range entries {
		if e.Timestamp.IsZero() {
			continue
		}
		if opts.Before != nil && !e.Timestamp.Before(*opts.Before) {
			continue
		}
		if len(types) > 0 {
			if _, ok := types[e.Type]; !ok {
				continue
			}
		}
		out = append(out, e)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})

	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out
}

func fromActivity(a activity.Activity) activity.TimelineEntry {
	return activity.TimelineEntry{
		ID:             a.ID,
		Source:         activity.SourceActivity,
		Type:           string(a.Type),
		Timestamp:      a.CreatedAt,
		ActorID:        a.ActorID,
		Summary:        a.Description,
		ConversationID: a.ConversationID,
		Metadata:       a.Metadata,
	}
}

func fromMessage(m conversation.Message, channel string) activity.TimelineEntry {
	typ := activity.EntryMessageInbound
	if m.Direction == conversation.DirectionOutbound {
		typ = activity.EntryMessageOutbound
	}
	if m.Channel != "" {
		channel = m.Channel
	}
	return activity.TimelineEntry{
		ID:             m.ID,
		Source:         activity.SourceMessage,
		Type:           typ,
		Timestamp:      m.CreatedAt,
		ActorID:        m.Author,
		Summary:        truncate(m.Body, maxSummaryLength),
		ConversationID: m.ConversationID,
		Channel:        channel,
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

func (s *TimelineService) conversations(ctx context.Context, customerID string) ([]conversation.Conversation, error) {
	snaps, err := s.store.Query(ctx, store.CollectionConversations, store.Query{
		Filters: []store.Filter{store.Where("customerId", customerID)},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load conversations: %w", err)
	}
	out := make([]conversation.Conversation, 0, len(snaps))
	for _, snap := range snaps {
		var cv conversation.Conversation
		if err := snap.DataTo(&cv); err != nil {
			s.logger.Warn("skipping undecodable conversation", zap.String("conversation_id", snap.ID), zap.Error(err))
			continue
		}
		cv.ID = snap.ID
		out = append(out, cv)
	}
	return out, nil
}

func (s *TimelineService) caseIDs(ctx context.Context, customerID string) ([]string, error) {
	snaps, err := s.store.Query(ctx, store.CollectionCases, store.Query{
		Filters: []store.Filter{store.Where("customerId", customerID)},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load cases: %w", err)
	}
	out := make([]string, 0, len(snaps))
	for _, snap := range snaps {
		var cs cases.Case
		if err := snap.DataTo(&cs); err != nil {
			continue
		}
		out = append(out, snap.ID)
	}
	return out, nil
}

func (s *TimelineService) messages(ctx context.Context, conversationIDs []string) ([]conversation.Message, error) {
	var out []conversation.Message
	for _, chunk := range store.Chunk(conversationIDs, store.MaxInValues) {
		snaps, err := s.store.Query(ctx, store.CollectionMessages, store.Query{
			Filters: []store.Filter{store.WhereIn("conversationId", chunk)},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to load messages: %w", err)
		}
		for _, snap := range snaps {
			var m conversation.Message
			if err := snap.DataTo(&m); err != nil {
				s.logger.Warn("skipping undecodable message", zap.String("message_id", snap.ID), zap.Error(err))
				continue
			}
			m.ID = snap.ID
			out = append(out, m)
		}
	}
	return out, nil
}
