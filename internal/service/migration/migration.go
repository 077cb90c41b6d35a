// internal/service/migration/migration.go
package migration

import (
	"context"
	"fmt"
	"time"

	"crm-service/internal/domain/activity"
	"crm-service/internal/domain/conversation"
	"crm-service/internal/domain/customer"
	"crm-service/internal/domain/outcome"
	"crm-service/internal/metrics"
	activitysvc "crm-service/internal/service/activity"
	"crm-service/internal/store"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
)

const (
	DefaultLockTTL = 30 * time.Minute

	loadPageSize = 500
	// moveBatchSize leaves room in each batch for the primary's own update
	// and its activity.
	moveBatchSize = 450
)

type Options struct {
	DryRun bool `json:"dryRun"`
}

type GroupReport struct {
	Key           string   `json:"key"`
	PrimaryID     string   `json:"primaryId"`
	DuplicateIDs  []string `json:"duplicateIds"`
	Size          int      `json:"size"`
	MessagesMoved int      `json:"messagesMoved"`
	Deleted       []string `json:"deleted"`
	Error         string   `json:"error,omitempty"`
}

type Report struct {
	DryRun               bool          `json:"dryRun"`
	StartedAt            time.Time     `json:"startedAt"`
	FinishedAt           time.Time     `json:"finishedAt"`
	TotalConversations   int           `json:"totalConversations"`
	Unkeyed              int           `json:"unkeyed"`
	Groups               []GroupReport `json:"groups"`
	GroupsMerged         int           `json:"groupsMerged"`
	GroupsFailed         int           `json:"groupsFailed"`
	ConversationsDeleted int           `json:"conversationsDeleted"`
	MessagesMoved        int           `json:"messagesMoved"`
}

type MigrationService struct {
	store      store.Client
	activities *activitysvc.ActivityService
	locker     Locker
	lockTTL    time.Duration
	reporter   outcome.Reporter
	logger     *zap.Logger
}

// NewMigrationService builds the engine. A nil locker disables run locking.
func NewMigrationService(client store.Client, activities *activitysvc.ActivityService, locker Locker, lockTTL time.Duration, reporter outcome.Reporter, logger *zap.Logger) *MigrationService {
	if lockTTL <= 0 {
		lockTTL = DefaultLockTTL
	}
	if reporter == nil {
		reporter = outcome.NopReporter{}
	}
	return &MigrationService{
		store:      client,
		activities: activities,
		locker:     locker,
		lockTTL:    lockTTL,
		reporter:   reporter,
		logger:     logger,
	}
}

// Run collapses duplicate conversation threads. Each group is handled on its
// own: a failing group keeps its duplicates and the run moves on. The report
// is always returned; the error aggregates every group failure.
func (s *MigrationService) Run(ctx context.Context, opts Options) (*Report, error) {
	mode := "live"
	if opts.DryRun {
		mode = "dry_run"
	}
	start := time.Now()
	defer func() {
		metrics.MigrationDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())
	}()

	if !opts.DryRun && s.locker != nil {
		release, err := s.locker.Acquire(ctx, LockKey, s.lockTTL)
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("failed to release migration lock", zap.Error(err))
			}
		}()
	}

	report := &Report{DryRun: opts.DryRun, StartedAt: s.store.Now()}

	convs, err := s.loadConversations(ctx)
	if err != nil {
		return nil, err
	}
	report.TotalConversations = len(convs)

	customers, err := s.loadCustomers(ctx)
	if err != nil {
		return nil, err
	}

	groups, unkeyed := groupConversations(convs, customers)
	report.Unkeyed = unkeyed

	s.logger.Info("conversation migration started",
		zap.Bool("dry_run", opts.DryRun),
		zap.Int("conversations", len(convs)),
		zap.Int("groups", len(groups)),
	)

	var errs *multierror.Error
	for _, g := range groups {
		gr := GroupReport{
			Key:          g.key,
			PrimaryID:    g.primary.ID,
			DuplicateIDs: ids(g.duplicates),
			Size:         len(g.duplicates) + 1,
			Deleted:      []string{},
		}

		var err error
		if opts.DryRun {
			gr.MessagesMoved, err = s.countMessages(ctx, gr.DuplicateIDs)
		} else {
			err = s.migrateGroup(ctx, g, &gr)
		}

		if err != nil {
			gr.Error = err.Error()
			report.GroupsFailed++
			errs = multierror.Append(errs, fmt.Errorf("group %s (primary %s): %w", g.key, g.primary.ID, err))
			metrics.MigrationGroupsTotal.WithLabelValues(metrics.StatusError).Inc()
			s.logger.Error("conversation group migration failed",
				zap.String("group_key", g.key),
				zap.String("primary_id", g.primary.ID),
				zap.Strings("duplicate_ids", gr.DuplicateIDs),
				zap.Error(err),
			)
			if !opts.DryRun {
				s.reporter.Report(ctx, outcome.Failed(outcome.OpMigrationGroup, g.primary.ID, err))
			}
		} else {
			report.GroupsMerged++
			if !opts.DryRun {
				metrics.MigrationGroupsTotal.WithLabelValues(metrics.StatusSuccess).Inc()
				s.reporter.Report(ctx, outcome.Succeeded(outcome.OpMigrationGroup, g.primary.ID, "", gr.MessagesMoved))
			}
		}

		report.MessagesMoved += gr.MessagesMoved
		report.ConversationsDeleted += len(gr.Deleted)
		report.Groups = append(report.Groups, gr)
	}

	report.FinishedAt = s.store.Now()
	s.logger.Info("conversation migration finished",
		zap.Bool("dry_run", opts.DryRun),
		zap.Int("groups_merged", report.GroupsMerged),
		zap.Int("groups_failed", report.GroupsFailed),
		zap.Int("messages_moved", report.MessagesMoved),
		zap.Int("conversations_deleted", report.ConversationsDeleted),
	)
	return report, errs.ErrorOrNil()
}

// migrateGroup moves every duplicate's messages onto the primary, confirms
// none are left behind and only then deletes the duplicates.
func (s *MigrationService) migrateGroup(ctx context.Context, g group, gr *GroupReport) error {
	msgs, err := s.loadMessages(ctx, gr.DuplicateIDs)
	if err != nil {
		return err
	}

	primary := g.primary
	lastMessageAt := primary.LastMessageAt
	for _, m := range msgs {
		if lastMessageAt == nil || m.CreatedAt.After(*lastMessageAt) {
			t := m.CreatedAt
			lastMessageAt = &t
		}
	}
	for _, d := range g.duplicates {
		if d.LastMessageAt != nil && (lastMessageAt == nil || d.LastMessageAt.After(*lastMessageAt)) {
			lastMessageAt = d.LastMessageAt
		}
	}

	now := s.store.Now()
	mergedFrom := append(append([]string{}, primary.MergedFrom...), gr.DuplicateIDs...)
	messageCount := primary.MessageCount
	for _, d := range g.duplicates {
		messageCount += d.MessageCount
	}
	if messageCount < len(msgs) {
		messageCount = len(msgs)
	}

	// Messages keep their ids and timestamps; only the owner changes.
	for start := 0; start < len(msgs) || start == 0; start += moveBatchSize {
		end := start + moveBatchSize
		if end > len(msgs) {
			end = len(msgs)
		}
		last := end == len(msgs)

		b := s.store.Batch()
		for _, m := range msgs[start:end] {
			b.Update(store.CollectionMessages, m.ID, map[string]interface{}{"conversationId": primary.ID})
		}
		if last {
			fields := map[string]interface{}{
				"mergedFrom":   mergedFrom,
				"messageCount": messageCount,
				"updatedAt":    now,
			}
			if lastMessageAt != nil {
				fields["lastMessageAt"] = *lastMessageAt
			}
			b.Update(store.CollectionConversations, primary.ID, fields)
			if err := s.activities.Stage(ctx, b, &activity.Activity{
				Type:           activity.TypeConversationMerged,
				ConversationID: primary.ID,
				Description:    fmt.Sprintf("merged %d duplicate conversations", len(g.duplicates)),
				Metadata: map[string]interface{}{
					"groupKey":      g.key,
					"duplicateIds":  gr.DuplicateIDs,
					"messagesMoved": len(msgs),
				},
			}); err != nil {
				return err
			}
		}
		if err := b.Commit(ctx); err != nil {
			return fmt.Errorf("failed to move messages: %w", err)
		}
		gr.MessagesMoved = end
		if last {
			break
		}
	}

	left, err := s.countMessages(ctx, gr.DuplicateIDs)
	if err != nil {
		return fmt.Errorf("failed to verify moved messages: %w", err)
	}
	if left > 0 {
		return fmt.Errorf("%d messages still reference duplicates, not deleting", left)
	}

	b := s.store.Batch()
	for _, id := range gr.DuplicateIDs {
		b.Delete(store.CollectionConversations, id)
	}
	if err := b.Commit(ctx); err != nil {
		return fmt.Errorf("failed to delete duplicates: %w", err)
	}
	gr.Deleted = append(gr.Deleted, gr.DuplicateIDs...)

	s.logger.Info("conversation group merged",
		zap.String("group_key", g.key),
		zap.String("primary_id", primary.ID),
		zap.Int("duplicates", len(gr.DuplicateIDs)),
		zap.Int("messages_moved", gr.MessagesMoved),
	)
	return nil
}

func (s *MigrationService) loadConversations(ctx context.Context) ([]*conversation.Conversation, error) {
	var out []*conversation.Conversation
	after := ""
	for {
		snaps, err := s.store.Query(ctx, store.CollectionConversations, store.Query{After: after, Limit: loadPageSize})
		if err != nil {
			return nil, fmt.Errorf("failed to load conversations: %w", err)
		}
		for _, snap := range snaps {
			var c conversation.Conversation
			if err := snap.DataTo(&c); err != nil {
				s.logger.Warn("skipping undecodable conversation", zap.String("conversation_id", snap.ID), zap.Error(err))
				continue
			}
			c.ID = snap.ID
			out = append(out, &c)
		}
		if len(snaps) < loadPageSize {
			return out, nil
		}
		after = snaps[len(snaps)-1].ID
	}
}

func (s *MigrationService) loadCustomers(ctx context.Context) ([]*customer.Customer, error) {
	var out []*customer.Customer
	after := ""
	for {
		snaps, err := s.store.Query(ctx, store.CollectionCustomers, store.Query{After: after, Limit: loadPageSize})
		if err != nil {
			return nil, fmt.Errorf("failed to load customers: %w", err)
		}
		for _, snap := range snaps {
			var c customer.Customer
			if err := snap.DataTo(&c); err != nil {
				s.logger.Warn("skipping undecodable customer", zap.String("customer_id", snap.ID), zap.Error(err))
				continue
			}
			c.ID = snap.ID
			out = append(out, &c)
		}
		if len(snaps) < loadPageSize {
			return out, nil
		}
		after = snaps[len(snaps)-1].ID
	}
}

func (s *MigrationService) loadMessages(ctx context.Context, conversationIDs []string) ([]conversation.Message, error) {
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
				return nil, fmt.Errorf("failed to decode message %s: %w", snap.ID, err)
			}
			m.ID = snap.ID
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *MigrationService) countMessages(ctx context.Context, conversationIDs []string) (int, error) {
	msgs, err := s.loadMessages(ctx, conversationIDs)
	if err != nil {
		return 0, err
	}
	return len(msgs), nil
}

func ids(convs []*conversation.Conversation) []string {
	out := make([]string, 0, len(convs))
	for _, c := range convs {
		out = append(out, c.ID)
	}
	return out
}
