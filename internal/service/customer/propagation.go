// internal/service/customer/propagation.go
package customer

import (
	"context"
	"fmt"

	"crm-service/internal/domain/customer"
	"crm-service/internal/domain/outcome"
	"crm-service/internal/store"

	"go.uber.org/zap"
)

// propagationBatchSize keeps each sender batch under hosted-store write limits.
const propagationBatchSize = 400

// propagateSender rewrites the sender snapshot on every conversation of c.
// Failures are logged and reported; the customer write is already committed.
func (s *CustomerService) propagateSender(ctx context.Context, c *customer.Customer) outcome.Secondary {
	res, err := s.writeSender(ctx, c)
	if err != nil {
		s.logger.Warn("sender propagation failed",
			zap.String("customer_id", c.ID),
			zap.Int("updated", res),
			zap.Error(err),
		)
		o := outcome.Failed(outcome.OpSenderPropagation, c.ID, err)
		o.Affected = res
		return s.report(ctx, o)
	}
	return s.report(ctx, outcome.Succeeded(outcome.OpSenderPropagation, c.ID, "", res))
}

func (s *CustomerService) writeSender(ctx context.Context, c *customer.Customer) (int, error) {
	snaps, err := s.store.Query(ctx, store.CollectionConversations, store.Query{
		Filters: []store.Filter{store.Where("customerId", c.ID)},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to load conversations: %w", err)
	}
	if len(snaps) == 0 {
		return 0, nil
	}

	sender := senderOf(c)
	now := s.store.Now()
	updated := 0

	for start := 0; start < len(snaps); start += propagationBatchSize {
		end := start + propagationBatchSize
		if end > len(snaps) {
			end = len(snaps)
		}

		b := s.store.Batch()
		for _, snap := range snaps[start:end] {
			b.Update(store.CollectionConversations, snap.ID, map[string]interface{}{
				"sender":    sender,
				"updatedAt": now,
			})
		}
		if err := b.Commit(ctx); err != nil {
			return updated, fmt.Errorf("failed to update sender on conversations: %w", err)
		}
		updated += end - start
	}
	return updated, nil
}
