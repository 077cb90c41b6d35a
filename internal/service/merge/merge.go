// internal/service/merge/merge.go
package merge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"crm-service/internal/domain/activity"
	"crm-service/internal/domain/company"
	"crm-service/internal/domain/conversation"
	"crm-service/internal/domain/customer"
	"crm-service/internal/domain/outcome"
	"crm-service/internal/metrics"
	xerrors "crm-service/internal/pkg/errors"
	activitysvc "crm-service/internal/service/activity"
	"crm-service/internal/store"

	"go.uber.org/zap"
)

// Syncer is the company side of a merged customer.
type Syncer interface {
	OnCustomerUpdated(ctx context.Context, customerID string) outcome.Secondary
}

type Result struct {
	Customer           *customer.Customer `json:"customer"`
	SecondaryID        string             `json:"secondaryId"`
	ConversationsMoved int                `json:"conversationsMoved"`
	CasesMoved         int                `json:"casesMoved"`
	// UnlinkedCompanyID is the secondary's company when the primary already
	// had one. It is left without a linked customer.
	UnlinkedCompanyID  string             `json:"unlinkedCompanyId,omitempty"`
	Sync               outcome.Secondary  `json:"sync"`
}

type MergeService struct {
	store      store.Client
	activities *activitysvc.ActivityService
	sync       Syncer
	reporter   outcome.Reporter
	logger     *zap.Logger
}

func NewMergeService(client store.Client, activities *activitysvc.ActivityService, sync Syncer, reporter outcome.Reporter, logger *zap.Logger) *MergeService {
	if reporter == nil {
		reporter = outcome.NopReporter{}
	}
	return &MergeService{
		store:      client,
		activities: activities,
		sync:       sync,
		reporter:   reporter,
		logger:     logger,
	}
}

// Merge folds secondary into primary in one atomic batch: the combined
// customer, every re-pointed conversation and case, the secondary's deletion
// and the merge activity either all commit or none do.
func (s *MergeService) Merge(ctx context.Context, primaryID, secondaryID string) (*Result, error) {
	if primaryID == "" || secondaryID == "" {
		return nil, fmt.Errorf("%w: both customer ids are required", xerrors.ErrInvalidInput)
	}
	if primaryID == secondaryID {
		return nil, fmt.Errorf("%w: cannot merge a customer into itself", xerrors.ErrInvalidInput)
	}

	primary, err := s.loadCustomer(ctx, primaryID)
	if err != nil {
		return nil, fmt.Errorf("primary customer %s: %w", primaryID, err)
	}
	secondary, err := s.loadCustomer(ctx, secondaryID)
	if err != nil {
		return nil, fmt.Errorf("secondary customer %s: %w", secondaryID, err)
	}

	convs, err := s.references(ctx, store.CollectionConversations, secondaryID)
	if err != nil {
		return nil, err
	}
	caseSnaps, err := s.references(ctx, store.CollectionCases, secondaryID)
	if err != nil {
		return nil, err
	}

	secondaryCompany, err := s.companyLinkedTo(ctx, secondary)
	if err != nil {
		return nil, err
	}

	now := s.store.Now()
	merged := combine(primary, secondary, now)
	sender := conversation.Sender{
		Name:    merged.Name,
		Email:   merged.Email,
		Phone:   merged.Phone,
		Company: merged.Company.Name,
	}

	b := s.store.Batch()
	b.Set(store.CollectionCustomers, merged.ID, merged)
	for _, snap := range convs {
		b.Update(store.CollectionConversations, snap.ID, map[string]interface{}{
			"customerId": merged.ID,
			"sender":     sender,
			"updatedAt":  now,
		})
	}
	for _, snap := range caseSnaps {
		b.Update(store.CollectionCases, snap.ID, map[string]interface{}{
			"customerId": merged.ID,
			"updatedAt":  now,
		})
	}
	b.Delete(store.CollectionCustomers, secondary.ID)

	// The secondary's company follows the merged customer when it was
	// adopted, otherwise it is released.
	unlinked := ""
	if secondaryCompany != "" {
		linkedTo := merged.ID
		if merged.LinkedCompanyID != secondaryCompany {
			linkedTo = ""
			unlinked = secondaryCompany
		}
		b.Update(store.CollectionCompanies, secondaryCompany, map[string]interface{}{
			"linkedCustomerId": linkedTo,
			"updatedAt":        now,
		})
	}

	meta := map[string]interface{}{
		"secondaryId":        secondary.ID,
		"secondaryName":      secondary.Name,
		"conversationsMoved": len(convs),
		"casesMoved":         len(caseSnaps),
	}
	if unlinked != "" {
		meta["unlinkedCompanyId"] = unlinked
	}
	if err := s.activities.Stage(ctx, b, &activity.Activity{
		Type:        activity.TypeCustomerMerged,
		CustomerID:  merged.ID,
		Description: fmt.Sprintf("merged %s into %s", displayName(secondary), displayName(primary)),
		Metadata:    meta,
	}); err != nil {
		return nil, err
	}

	if err := b.Commit(ctx); err != nil {
		metrics.MergesTotal.WithLabelValues(metrics.StatusError).Inc()
		s.logger.Error("customer merge failed",
			zap.String("primary_id", primaryID),
			zap.String("secondary_id", secondaryID),
			zap.Int("writes", b.Len()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to merge customers: %w", err)
	}
	metrics.MergesTotal.WithLabelValues(metrics.StatusSuccess).Inc()

	s.logger.Info("customers merged",
		zap.String("primary_id", primaryID),
		zap.String("secondary_id", secondaryID),
		zap.Int("conversations_moved", len(convs)),
		zap.Int("cases_moved", len(caseSnaps)),
		zap.String("unlinked_company_id", unlinked),
	)

	res := &Result{
		Customer:           merged,
		SecondaryID:        secondary.ID,
		ConversationsMoved: len(convs),
		CasesMoved:         len(caseSnaps),
		UnlinkedCompanyID:  unlinked,
	}
	s.reporter.Report(ctx, outcome.Succeeded(outcome.OpCustomerMerge, merged.ID, secondary.ID, len(convs)))

	if s.sync != nil {
		res.Sync = s.sync.OnCustomerUpdated(ctx, merged.ID)
	} else {
		res.Sync = outcome.Skipped(outcome.OpCompanySync, merged.ID, "company sync not configured")
	}
	metrics.SecondaryOutcomesTotal.WithLabelValues(res.Sync.Operation, string(res.Sync.Status)).Inc()
	s.reporter.Report(ctx, res.Sync)
	return res, nil
}

// companyLinkedTo returns the id of the company that points back at c, or ""
// when c's link is dangling or was never set.
func (s *MergeService) companyLinkedTo(ctx context.Context, c *customer.Customer) (string, error) {
	if c.LinkedCompanyID == "" {
		return "", nil
	}
	snap, err := s.store.Get(ctx, store.CollectionCompanies, c.LinkedCompanyID)
	if err != nil {
		if xerrors.Is(err, xerrors.ErrNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("failed to load company %s: %w", c.LinkedCompanyID, err)
	}
	var co company.Company
	if err := snap.DataTo(&co); err != nil {
		return "", fmt.Errorf("failed to decode company %s: %w", snap.ID, err)
	}
	if co.LinkedCustomerID != c.ID {
		return "", nil
	}
	return snap.ID, nil
}

// combine builds the surviving record. Nothing the secondary holds is dropped:
// its primary contacts become alternates, blanks in the primary are filled and
// counters are summed.
func combine(primary, secondary *customer.Customer, now time.Time) *customer.Customer {
	merged := *primary
	merged.AlternativeContacts = append([]customer.AlternativeContact{}, primary.AlternativeContacts...)
	merged.Tags = append([]string{}, primary.Tags...)

	stamp := now
	if secondary.Email != "" {
		merged.AddAlternativeContact(customer.AlternativeContact{
			Type: customer.ContactEmail, Value: secondary.Email, Channel: customer.ChannelMerged, AddedAt: &stamp,
		})
	}
	if secondary.Phone != "" {
		merged.AddAlternativeContact(customer.AlternativeContact{
			Type: customer.ContactPhone, Value: secondary.Phone, Channel: customer.ChannelMerged, AddedAt: &stamp,
		})
	}
	for _, alt := range secondary.AlternativeContacts {
		merged.AddAlternativeContact(alt)
	}

	for _, tag := range secondary.Tags {
		if !merged.HasTag(tag) {
			merged.Tags = append(merged.Tags, tag)
		}
	}

	merged.Stats = sumStats(primary.Stats, secondary.Stats)
	merged.Notes = mergeNotes(primary, secondary, now)
	fillCompany(&merged.Company, secondary.Company)
	fillTaxInfo(&merged.TaxInfo, secondary.TaxInfo)

	if merged.LinkedCompanyID == "" {
		merged.LinkedCompanyID = secondary.LinkedCompanyID
	}
	if merged.Name == "" {
		merged.Name = secondary.Name
	}
	if secondary.CreatedAt.Before(merged.CreatedAt) && !secondary.CreatedAt.IsZero() {
		merged.CreatedAt = secondary.CreatedAt
	}

	merged.MergedIDs = append(append([]string{}, primary.MergedIDs...), secondary.ID)
	merged.MergedIDs = append(merged.MergedIDs, secondary.MergedIDs...)
	merged.UpdatedAt = now
	return &merged
}

func sumStats(a, b customer.Stats) customer.Stats {
	out := customer.Stats{
		ConversationCount: a.ConversationCount + b.ConversationCount,
		CaseCount:         a.CaseCount + b.CaseCount,
		OpenCases:         a.OpenCases + b.OpenCases,
		WonCases:          a.WonCases + b.WonCases,
		LostCases:         a.LostCases + b.LostCases,
		LifetimeValue:     a.LifetimeValue + b.LifetimeValue,
		FirstContactAt:    a.FirstContactAt,
		LastContactAt:     a.LastContactAt,
	}
	if b.FirstContactAt != nil && (out.FirstContactAt == nil || b.FirstContactAt.Before(*out.FirstContactAt)) {
		out.FirstContactAt = b.FirstContactAt
	}
	if b.LastContactAt != nil && (out.LastContactAt == nil || b.LastContactAt.After(*out.LastContactAt)) {
		out.LastContactAt = b.LastContactAt
	}
	return out
}

func mergeNotes(primary, secondary *customer.Customer, now time.Time) string {
	marker := fmt.Sprintf("--- merged from %s (%s) on %s ---",
		displayName(secondary), secondary.ID, now.Format("2006-01-02"))

	parts := make([]string, 0, 3)
	if n := strings.TrimSpace(primary.Notes); n != "" {
		parts = append(parts, n)
	}
	parts = append(parts, marker)
	if n := strings.TrimSpace(secondary.Notes); n != "" {
		parts = append(parts, n)
	}
	return strings.Join(parts, "\n\n")
}

func fillCompany(dst *customer.CompanyInfo, src customer.CompanyInfo) {
	fill := func(dst *string, v string) {
		if *dst == "" {
			*dst = v
		}
	}
	fill(&dst.Name, src.Name)
	fill(&dst.Position, src.Position)
	fill(&dst.Website, src.Website)
	fill(&dst.Industry, src.Industry)
	fill(&dst.Size, src.Size)
	fill(&dst.Address, src.Address)
	fill(&dst.Country, src.Country)
	fill(&dst.City, src.City)
}

func fillTaxInfo(dst *customer.TaxInfo, src customer.TaxInfo) {
	if dst.TaxOffice == "" {
		dst.TaxOffice = src.TaxOffice
	}
	if dst.TaxNumber == "" {
		dst.TaxNumber = src.TaxNumber
	}
	if dst.RegistryNumber == "" {
		dst.RegistryNumber = src.RegistryNumber
	}
}

func displayName(c *customer.Customer) string {
	switch {
	case c.Name != "":
		return c.Name
	case c.Email != "":
		return c.Email
	}
	return c.ID
}

func (s *MergeService) loadCustomer(ctx context.Context, id string) (*customer.Customer, error) {
	snap, err := s.store.Get(ctx, store.CollectionCustomers, id)
	if err != nil {
		return nil, err
	}
	var c customer.Customer
	if err := snap.DataTo(&c); err != nil {
		return nil, fmt.Errorf("failed to decode customer: %w", err)
	}
	return &c, nil
}

func (s *MergeService) references(ctx context.Context, collection, customerID string) ([]store.Snapshot, error) {
	snaps, err := s.store.Query(ctx, collection, store.Query{
		Filters: []store.Filter{store.Where("customerId", customerID)},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load %s of customer %s: %w", collection, customerID, err)
	}
	return snaps, nil
}

