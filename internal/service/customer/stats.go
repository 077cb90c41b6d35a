// internal/service/customer/stats.go
package customer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"crm-service/internal/domain/activity"
	"crm-service/internal/domain/cases"
	"crm-service/internal/domain/customer"
	xerrors "crm-service/internal/pkg/errors"
	"crm-service/internal/store"

	"go.uber.org/zap"
)

// Stats are written only here and by the merge engine.

// RecordContact counts one inbound contact at time at.
func (s *CustomerService) RecordContact(ctx context.Context, id string, at time.Time) (*customer.Customer, error) {
	c, err := s.GetCustomer(ctx, id)
	if err != nil {
		return nil, err
	}

	c.Stats.ConversationCount++
	if c.Stats.FirstContactAt == nil || at.Before(*c.Stats.FirstContactAt) {
		c.Stats.FirstContactAt = timePtr(at)
	}
	if c.Stats.LastContactAt == nil || at.After(*c.Stats.LastContactAt) {
		c.Stats.LastContactAt = timePtr(at)
	}
	c.UpdatedAt = s.store.Now()

	if err := s.store.Update(ctx, store.CollectionCustomers, c.ID, map[string]interface{}{
		"stats":     c.Stats,
		"updatedAt": c.UpdatedAt,
	}); err != nil {
		return nil, fmt.Errorf("failed to record contact: %w", err)
	}
	return c, nil
}

// OpenCase creates an open case for the customer and counts it.
func (s *CustomerService) OpenCase(ctx context.Context, customerID, title string, value float64) (*cases.Case, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("%w: case title is required", xerrors.ErrInvalidInput)
	}
	if value < 0 {
		return nil, fmt.Errorf("%w: case value cannot be negative", xerrors.ErrInvalidInput)
	}

	c, err := s.GetCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}

	now := s.store.Now()
	cs := &cases.Case{
		ID:         s.store.NewID(),
		CustomerID: c.ID,
		Title:      title,
		Status:     cases.StatusOpen,
		Value:      value,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	applyCaseOutcome(&c.Stats, "", 0, cs.Status, cs.Value)

	b := s.store.Batch()
	b.Set(store.CollectionCases, cs.ID, cs)
	b.Update(store.CollectionCustomers, c.ID, map[string]interface{}{
		"stats":     c.Stats,
		"updatedAt": now,
	})
	if err := s.activities.Stage(ctx, b, &activity.Activity{
		Type:        activity.TypeCaseOutcomeRecorded,
		CaseID:      cs.ID,
		Description: "case opened",
		Metadata:    map[string]interface{}{"status": string(cs.Status), "value": cs.Value},
	}); err != nil {
		return nil, err
	}
	if err := b.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to open case: %w", err)
	}

	s.logger.Info("case opened",
		zap.String("case_id", cs.ID),
		zap.String("customer_id", c.ID),
	)
	return cs, nil
}

// RecordCaseOutcome moves a case to a new status and adjusts its customer's
// counters and lifetime value in the same batch.
func (s *CustomerService) RecordCaseOutcome(ctx context.Context, caseID string, req *cases.RecordOutcomeRequest) (*cases.Case, error) {
	if !req.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown case status %q", xerrors.ErrInvalidInput, req.Status)
	}
	if req.Value < 0 {
		return nil, fmt.Errorf("%w: case value cannot be negative", xerrors.ErrInvalidInput)
	}

	snap, err := s.store.Get(ctx, store.CollectionCases, caseID)
	if err != nil {
		return nil, err
	}
	var cs cases.Case
	if err := snap.DataTo(&cs); err != nil {
		return nil, fmt.Errorf("failed to decode case %s: %w", caseID, err)
	}

	c, err := s.GetCustomer(ctx, cs.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load case owner: %w", err)
	}

	prevStatus, prevValue := cs.Status, cs.Value
	applyCaseOutcome(&c.Stats, prevStatus, prevValue, req.Status, req.Value)

	now := s.store.Now()
	cs.Status = req.Status
	cs.Value = req.Value
	cs.UpdatedAt = now

	b := s.store.Batch()
	b.Update(store.CollectionCases, cs.ID, map[string]interface{}{
		"status":    cs.Status,
		"value":     cs.Value,
		"updatedAt": now,
	})
	b.Update(store.CollectionCustomers, c.ID, map[string]interface{}{
		"stats":     c.Stats,
		"updatedAt": now,
	})
	if err := s.activities.Stage(ctx, b, &activity.Activity{
		Type:   activity.TypeCaseOutcomeRecorded,
		CaseID: cs.ID,
		Metadata: map[string]interface{}{
			"from":  string(prevStatus),
			"to":    string(cs.Status),
			"value": cs.Value,
		},
	}); err != nil {
		return nil, err
	}
	if err := b.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to record case outcome: %w", err)
	}

	s.logger.Info("case outcome recorded",
		zap.String("case_id", cs.ID),
		zap.String("customer_id", c.ID),
		zap.String("status", string(cs.Status)),
	)
	return &cs, nil
}

// applyCaseOutcome moves one case between outcome buckets. An empty prev
// status means the case is new.
func applyCaseOutcome(st *customer.Stats, prev cases.Status, prevValue float64, next cases.Status, nextValue float64) {
	if prev == "" {
		st.CaseCount++
	}
	switch prev {
	case cases.StatusOpen:
		st.OpenCases--
	case cases.StatusWon:
		st.WonCases--
		st.LifetimeValue -= prevValue
	case cases.StatusLost:
		st.LostCases--
	}
	switch next {
	case cases.StatusOpen:
		st.OpenCases++
	case cases.StatusWon:
		st.WonCases++
		st.LifetimeValue += nextValue
	case cases.StatusLost:
		st.LostCases++
	}
}
