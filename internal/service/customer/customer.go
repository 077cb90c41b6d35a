// internal/service/customer/customer.go
package customer

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"crm-service/internal/domain/activity"
	"crm-service/internal/domain/conversation"
	"crm-service/internal/domain/customer"
	"crm-service/internal/domain/outcome"
	"crm-service/internal/metrics"
	xerrors "crm-service/internal/pkg/errors"
	"crm-service/internal/pkg/phone"
	activitysvc "crm-service/internal/service/activity"
	"crm-service/internal/service/identity"
	"crm-service/internal/store"

	"go.uber.org/zap"
)

var (
	ErrCustomerHasConversations = fmt.Errorf("customer has conversations: %w", xerrors.ErrHasDependents)
	ErrCustomerHasCases         = fmt.Errorf("customer has cases: %w", xerrors.ErrHasDependents)
)

// SyncPort is the company side of customer writes. It is implemented by the
// company sync engine and injected at startup.
type SyncPort interface {
	OnCustomerCreated(ctx context.Context, customerID string) outcome.Secondary
	OnCustomerUpdated(ctx context.Context, customerID string) outcome.Secondary
}

type CustomerService struct {
	store      store.Client
	resolver   *identity.Resolver
	activities *activitysvc.ActivityService
	sync       SyncPort
	reporter   outcome.Reporter
	logger     *zap.Logger
}

func NewCustomerService(
	client store.Client,
	resolver *identity.Resolver,
	activities *activitysvc.ActivityService,
	sync SyncPort,
	reporter outcome.Reporter,
	logger *zap.Logger,
) *CustomerService {
	if reporter == nil {
		reporter = outcome.NopReporter{}
	}
	return &CustomerService{
		store:      client,
		resolver:   resolver,
		activities: activities,
		sync:       sync,
		reporter:   reporter,
		logger:     logger,
	}
}

// CreateResult is the committed customer plus the company sync outcome.
type CreateResult struct {
	Customer *customer.Customer `json:"customer"`
	Sync     outcome.Secondary  `json:"sync"`
}

// UpdateResult is the committed customer plus every secondary outcome.
type UpdateResult struct {
	Customer    *customer.Customer `json:"customer"`
	Propagation outcome.Secondary  `json:"propagation"`
	Sync        outcome.Secondary  `json:"sync"`
}

// CreateCustomer validates, enforces one canonical customer per contact and
// inserts the record together with its "customer created" activity.
func (s *CustomerService) CreateCustomer(ctx context.Context, req *customer.CreateCustomerRequest) (*CreateResult, error) {
	c, err := s.buildCustomer(req)
	if err != nil {
		return nil, err
	}

	if c.Email != "" || c.Phone != "" {
		existing, err := s.resolver.Resolve(ctx, c.Email, c.Phone)
		switch {
		case err == nil:
			return nil, fmt.Errorf("%w: contact belongs to customer %s", xerrors.ErrConflict, existing.ID)
		case !xerrors.Is(err, xerrors.ErrNotFound):
			return nil, fmt.Errorf("failed to resolve contact: %w", err)
		}
	}
	for _, alt := range c.AlternativeContacts {
		email, canonical := contactParts(alt)
		if err := s.ensureUnclaimed(ctx, "", email, canonical); err != nil {
			return nil, err
		}
	}

	now := s.store.Now()
	c.ID = s.store.NewID()
	c.CreatedAt = now
	if req.CreatedAt != nil && !req.CreatedAt.IsZero() {
		c.CreatedAt = req.CreatedAt.UTC()
		c.MigratedAt = &now
	}
	c.UpdatedAt = now
	first := c.CreatedAt
	c.Stats = customer.Stats{FirstContactAt: &first}

	b := s.store.Batch()
	b.Set(store.CollectionCustomers, c.ID, c)
	if err := s.activities.Stage(ctx, b, &activity.Activity{
		Type:        activity.TypeCustomerCreated,
		CustomerID:  c.ID,
		Description: "customer created",
		Metadata:    map[string]interface{}{"source": c.Source, "migrated": c.MigratedAt != nil},
	}); err != nil {
		return nil, err
	}
	if err := b.Commit(ctx); err != nil {
		metrics.CustomerOperationsTotal.WithLabelValues("create", metrics.StatusError).Inc()
		s.logger.Error("failed to create customer", zap.Error(err))
		return nil, fmt.Errorf("failed to create customer: %w", err)
	}
	metrics.CustomerOperationsTotal.WithLabelValues("create", metrics.StatusSuccess).Inc()

	s.logger.Info("customer created",
		zap.String("customer_id", c.ID),
		zap.String("source", c.Source),
		zap.Bool("migrated", c.MigratedAt != nil),
	)

	return &CreateResult{
		Customer: c,
		Sync:     s.syncCreated(ctx, c.ID),
	}, nil
}

func (s *CustomerService) buildCustomer(req *customer.CreateCustomerRequest) (*customer.Customer, error) {
	c := &customer.Customer{
		Name:     strings.TrimSpace(req.Name),
		Email:    customer.NormalizeEmail(req.Email),
		Phone:    phone.Normalize(req.Phone),
		Company:  req.Company,
		TaxInfo:  req.TaxInfo,
		Type:     req.Type,
		Priority: req.Priority,
		Notes:    req.Notes,
		Source:   req.Source,
		Tags:     uniqueTags(req.Tags),
	}

	if c.Name == "" && c.Email == "" && c.Phone == "" {
		return nil, fmt.Errorf("%w: name, email or phone is required", xerrors.ErrInvalidInput)
	}
	if err := validateContact(req.Email, req.Phone); err != nil {
		return nil, err
	}
	if c.Type == "" {
		c.Type = customer.TypeLead
	}
	if !c.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown customer type %q", xerrors.ErrInvalidInput, c.Type)
	}
	if c.Priority == "" {
		c.Priority = customer.PriorityNormal
	}
	if c.Source == "" {
		c.Source = customer.ChannelManual
	}
	if c.Name == "" {
		c.Name = displayName(c.Email, c.Phone)
	}

	c.AlternativeContacts = []customer.AlternativeContact{}
	for _, alt := range req.AlternativeContacts {
		normalized, err := normalizeContact(alt)
		if err != nil {
			return nil, err
		}
		if c.HasContact(normalized.Type, normalized.Value) {
			continue
		}
		c.AlternativeContacts = append(c.AlternativeContacts, normalized)
	}
	return c, nil
}

// GetCustomer retrieves a customer by ID
func (s *CustomerService) GetCustomer(ctx context.Context, id string) (*customer.Customer, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: customer id is required", xerrors.ErrInvalidInput)
	}
	snap, err := s.store.Get(ctx, store.CollectionCustomers, id)
	if err != nil {
		return nil, err
	}
	var c customer.Customer
	if err := snap.DataTo(&c); err != nil {
		return nil, fmt.Errorf("failed to decode customer %s: %w", id, err)
	}
	return &c, nil
}

// ListCustomers returns customers newest first, filtered by type and tag.
func (s *CustomerService) ListCustomers(ctx context.Context, filters *customer.CustomerListFilters) (*customer.CustomerListResponse, error) {
	if filters.Page < 1 {
		filters.Page = 1
	}
	if filters.PageSize < 1 {
		filters.PageSize = 20
	}
	if filters.PageSize > 100 {
		filters.PageSize = 100
	}

	q := store.Query{}
	if filters.Type != "" {
		q.Filters = append(q.Filters, store.Where("type", string(filters.Type)))
	}
	snaps, err := s.store.Query(ctx, store.CollectionCustomers, q)
	if err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}

	customers := make([]customer.Customer, 0, len(snaps))
	for _, snap := range snaps {
		var c customer.Customer
		if err := snap.DataTo(&c); err != nil {
			s.logger.Warn("skipping undecodable customer", zap.String("customer_id", snap.ID), zap.Error(err))
			continue
		}
		if filters.Tag != "" && !c.HasTag(filters.Tag) {
			continue
		}
		customers = append(customers, c)
	}
	sort.SliceStable(customers, func(i, j int) bool {
		return customers[i].CreatedAt.After(customers[j].CreatedAt)
	})

	start := (filters.Page - 1) * filters.PageSize
	if start > len(customers) {
		start = len(customers)
	}
	end := start + filters.PageSize
	if end > len(customers) {
		end = len(customers)
	}

	return &customer.CustomerListResponse{
		Customers: customers[start:end],
		Page:      filters.Page,
		PageSize:  filters.PageSize,
		HasMore:   end < len(customers),
	}, nil
}

// UpdateCustomer applies a partial update. Company and tax info are merged
// field by field. Identity changes are copied to the customer's conversations
// after the customer write commits; that copy is reported, never raised.
func (s *CustomerService) UpdateCustomer(ctx context.Context, id string, req *customer.UpdateCustomerRequest) (*UpdateResult, error) {
	c, err := s.GetCustomer(ctx, id)
	if err != nil {
		return nil, err
	}
	before := senderOf(c)

	changed, err := s.applyUpdate(ctx, c, req)
	if err != nil {
		return nil, err
	}
	c.UpdatedAt = s.store.Now()

	b := s.store.Batch()
	b.Set(store.CollectionCustomers, c.ID, c)
	if err := s.activities.Stage(ctx, b, &activity.Activity{
		Type:        activity.TypeCustomerUpdated,
		CustomerID:  c.ID,
		Description: "customer updated",
		Metadata:    map[string]interface{}{"fields": changed},
	}); err != nil {
		return nil, err
	}
	if err := b.Commit(ctx); err != nil {
		metrics.CustomerOperationsTotal.WithLabelValues("update", metrics.StatusError).Inc()
		return nil, fmt.Errorf("failed to update customer: %w", err)
	}
	metrics.CustomerOperationsTotal.WithLabelValues("update", metrics.StatusSuccess).Inc()

	s.logger.Info("customer updated",
		zap.String("customer_id", c.ID),
		zap.Strings("fields", changed),
	)

	res := &UpdateResult{Customer: c}
	if senderOf(c) != before {
		res.Propagation = s.propagateSender(ctx, c)
	} else {
		res.Propagation = outcome.Skipped(outcome.OpSenderPropagation, c.ID, "identity fields unchanged")
	}
	res.Sync = s.syncUpdated(ctx, c.ID)
	return res, nil
}

func (s *CustomerService) applyUpdate(ctx context.Context, c *customer.Customer, req *customer.UpdateCustomerRequest) ([]string, error) {
	var changed []string

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name cannot be empty", xerrors.ErrInvalidInput)
		}
		c.Name = name
		changed = append(changed, "name")
	}
	if req.Email != nil {
		email := customer.NormalizeEmail(*req.Email)
		if err := validateContact(email, ""); err != nil {
			return nil, err
		}
		if err := s.ensureUnclaimed(ctx, c.ID, email, ""); err != nil {
			return nil, err
		}
		c.Email = email
		changed = append(changed, "email")
	}
	if req.Phone != nil {
		if err := validateContact("", *req.Phone); err != nil {
			return nil, err
		}
		canonical := phone.Normalize(*req.Phone)
		if err := s.ensureUnclaimed(ctx, c.ID, "", canonical); err != nil {
			return nil, err
		}
		c.Phone = canonical
		changed = append(changed, "phone")
	}
	if req.Company != nil {
		mergeCompany(&c.Company, req.Company)
		changed = append(changed, "company")
	}
	if req.TaxInfo != nil {
		mergeTaxInfo(&c.TaxInfo, req.TaxInfo)
		changed = append(changed, "taxInfo")
	}
	if req.Type != nil {
		if !req.Type.Valid() {
			return nil, fmt.Errorf("%w: unknown customer type %q", xerrors.ErrInvalidInput, *req.Type)
		}
		c.Type = *req.Type
		changed = append(changed, "type")
	}
	if req.Priority != nil {
		c.Priority = *req.Priority
		changed = append(changed, "priority")
	}
	if req.Tags != nil {
		c.Tags = uniqueTags(req.Tags)
		changed = append(changed, "tags")
	}
	if req.Notes != nil {
		c.Notes = *req.Notes
		changed = append(changed, "notes")
	}

	if len(changed) == 0 {
		return nil, fmt.Errorf("%w: no fields to update", xerrors.ErrInvalidInput)
	}
	return changed, nil
}

// ensureUnclaimed fails when the contact already resolves to another customer.
func (s *CustomerService) ensureUnclaimed(ctx context.Context, ownerID, email, canonical string) error {
	if email == "" && canonical == "" {
		return nil
	}
	other, err := s.resolver.Resolve(ctx, email, canonical)
	if err != nil {
		if xerrors.Is(err, xerrors.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to resolve contact: %w", err)
	}
	if other.ID != ownerID {
		return fmt.Errorf("%w: contact belongs to customer %s", xerrors.ErrConflict, other.ID)
	}
	return nil
}

// DeleteCustomer removes a customer that no conversation or case references.
func (s *CustomerService) DeleteCustomer(ctx context.Context, id string) error {
	c, err := s.GetCustomer(ctx, id)
	if err != nil {
		return err
	}

	if n, err := s.countReferences(ctx, store.CollectionConversations, id); err != nil {
		return err
	} else if n > 0 {
		return ErrCustomerHasConversations
	}
	if n, err := s.countReferences(ctx, store.CollectionCases, id); err != nil {
		return err
	} else if n > 0 {
		return ErrCustomerHasCases
	}

	if err := s.store.Delete(ctx, store.CollectionCustomers, id); err != nil {
		metrics.CustomerOperationsTotal.WithLabelValues("delete", metrics.StatusError).Inc()
		return fmt.Errorf("failed to delete customer: %w", err)
	}
	metrics.CustomerOperationsTotal.WithLabelValues("delete", metrics.StatusSuccess).Inc()

	s.logger.Info("customer deleted",
		zap.String("customer_id", id),
		zap.String("linked_company_id", c.LinkedCompanyID),
	)
	return nil
}

func (s *CustomerService) countReferences(ctx context.Context, collection, customerID string) (int, error) {
	snaps, err := s.store.Query(ctx, collection, store.Query{
		Filters: []store.Filter{store.Where("customerId", customerID)},
		Limit:   1,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to check %s: %w", collection, err)
	}
	return len(snaps), nil
}

// Resync re-runs sender propagation and company sync for a customer. Both are
// idempotent, so this is the retry path after a reported failure.
func (s *CustomerService) Resync(ctx context.Context, id string) (*UpdateResult, error) {
	c, err := s.GetCustomer(ctx, id)
	if err != nil {
		return nil, err
	}
	return &UpdateResult{
		Customer:    c,
		Propagation: s.propagateSender(ctx, c),
		Sync:        s.syncUpdated(ctx, c.ID),
	}, nil
}

func (s *CustomerService) syncCreated(ctx context.Context, id string) outcome.Secondary {
	if s.sync == nil {
		return outcome.Skipped(outcome.OpCompanySync, id, "company sync not configured")
	}
	return s.report(ctx, s.sync.OnCustomerCreated(ctx, id))
}

func (s *CustomerService) syncUpdated(ctx context.Context, id string) outcome.Secondary {
	if s.sync == nil {
		return outcome.Skipped(outcome.OpCompanySync, id, "company sync not configured")
	}
	return s.report(ctx, s.sync.OnCustomerUpdated(ctx, id))
}

func (s *CustomerService) report(ctx context.Context, o outcome.Secondary) outcome.Secondary {
	metrics.SecondaryOutcomesTotal.WithLabelValues(o.Operation, string(o.Status)).Inc()
	s.reporter.Report(ctx, o)
	return o
}

func senderOf(c *customer.Customer) conversation.Sender {
	return conversation.Sender{
		Name:    c.Name,
		Email:   c.Email,
		Phone:   c.Phone,
		Company: c.Company.Name,
	}
}

func mergeCompany(dst *customer.CompanyInfo, p *customer.CompanyPatch) {
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = strings.TrimSpace(*v)
		}
	}
	set(&dst.Name, p.Name)
	set(&dst.Position, p.Position)
	set(&dst.Website, p.Website)
	set(&dst.Industry, p.Industry)
	set(&dst.Size, p.Size)
	set(&dst.Address, p.Address)
	set(&dst.Country, p.Country)
	set(&dst.City, p.City)
}

func mergeTaxInfo(dst *customer.TaxInfo, p *customer.TaxInfoPatch) {
	if p.TaxOffice != nil {
		dst.TaxOffice = strings.TrimSpace(*p.TaxOffice)
	}
	if p.TaxNumber != nil {
		dst.TaxNumber = strings.TrimSpace(*p.TaxNumber)
	}
	if p.RegistryNumber != nil {
		dst.RegistryNumber = strings.TrimSpace(*p.RegistryNumber)
	}
}

func validateContact(email, rawPhone string) error {
	if email = strings.TrimSpace(email); email != "" {
		if at := strings.Index(email, "@"); at < 1 || at == len(email)-1 {
			return fmt.Errorf("%w: invalid email %q", xerrors.ErrInvalidInput, email)
		}
	}
	if strings.TrimSpace(rawPhone) != "" && !phone.Valid(phone.Normalize(rawPhone)) {
		return fmt.Errorf("%w: invalid phone number %q", xerrors.ErrInvalidInput, rawPhone)
	}
	return nil
}

func normalizeContact(alt customer.AlternativeContact) (customer.AlternativeContact, error) {
	switch alt.Type {
	case customer.ContactEmail:
		if err := validateContact(alt.Value, ""); err != nil {
			return alt, err
		}
		alt.Value = customer.NormalizeEmail(alt.Value)
	case customer.ContactPhone:
		if err := validateContact("", alt.Value); err != nil {
			return alt, err
		}
		alt.Value = phone.Normalize(alt.Value)
	default:
		return alt, fmt.Errorf("%w: unknown contact type %q", xerrors.ErrInvalidInput, alt.Type)
	}
	if alt.Value == "" {
		return alt, fmt.Errorf("%w: contact value is required", xerrors.ErrInvalidInput)
	}
	return alt, nil
}

func uniqueTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func displayName(email, canonicalPhone string) string {
	if email != "" {
		return email
	}
	return phone.ToDisplay(canonicalPhone)
}

func timePtr(t time.Time) *time.Time { return &t }
