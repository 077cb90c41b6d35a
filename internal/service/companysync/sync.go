// internal/service/companysync/sync.go
package companysync

import (
	"context"
	"fmt"
	"strings"
	"time"

	"crm-service/internal/domain/activity"
	"crm-service/internal/domain/company"
	"crm-service/internal/domain/customer"
	"crm-service/internal/domain/outcome"
	"crm-service/internal/metrics"
	xerrors "crm-service/internal/pkg/errors"
	"crm-service/internal/pkg/phone"
	activitysvc "crm-service/internal/service/activity"
	"crm-service/internal/store"

	"go.uber.org/zap"
)

const (
	companyMatchLimit = 10
	companyScanPage   = 100
	companyScanLimit  = 500
)

// SyncService keeps Customer and Company records paired. Every entry point
// returns an outcome and never an error: the customer write that triggered
// it has already committed.
type SyncService struct {
	store      store.Client
	tables     Tables
	activities *activitysvc.ActivityService
	reporter   outcome.Reporter
	logger     *zap.Logger
}

// NewSyncService validates the translation tables; a bad table stops startup.
func NewSyncService(client store.Client, tables Tables, activities *activitysvc.ActivityService, reporter outcome.Reporter, logger *zap.Logger) (*SyncService, error) {
	if err := tables.Validate(); err != nil {
		return nil, fmt.Errorf("invalid status tables: %w", err)
	}
	if reporter == nil {
		reporter = outcome.NopReporter{}
	}
	return &SyncService{
		store:      client,
		tables:     tables,
		activities: activities,
		reporter:   reporter,
		logger:     logger,
	}, nil
}

// OnCustomerCreated links the customer to its company, creating the company
// when none exists.
func (s *SyncService) OnCustomerCreated(ctx context.Context, customerID string) outcome.Secondary {
	o, err := s.linkOrCreate(ctx, customerID)
	if err != nil {
		return s.failed(customerID, "link", err)
	}
	return o
}

// OnCustomerUpdated copies customer fields onto the linked company. An
// unlinked customer goes through link-or-create, so this is also the retry
// path for a failed OnCustomerCreated.
func (s *SyncService) OnCustomerUpdated(ctx context.Context, customerID string) outcome.Secondary {
	c, err := s.loadCustomer(ctx, customerID)
	if err != nil {
		return s.failed(customerID, "load customer", err)
	}

	co, err := s.findCompany(ctx, c)
	if err != nil {
		return s.failed(customerID, "find company", err)
	}
	if co == nil {
		o, err := s.linkOrCreate(ctx, customerID)
		if err != nil {
			return s.failed(customerID, "link", err)
		}
		return o
	}

	now := s.store.Now()
	b := s.store.Batch()
	b.Update(store.CollectionCompanies, co.ID, s.companyFields(c, now))
	if c.LinkedCompanyID != co.ID {
		b.Update(store.CollectionCustomers, c.ID, map[string]interface{}{"linkedCompanyId": co.ID})
	}
	if err := b.Commit(ctx); err != nil {
		return s.failed(customerID, "update company", err)
	}

	s.logger.Info("company synced from customer",
		zap.String("customer_id", c.ID),
		zap.String("company_id", co.ID),
	)
	return outcome.Succeeded(outcome.OpCompanySync, c.ID, co.ID, 1)
}

// OnCompanyUpdated copies company status and non-identity fields back onto
// the linked customer. Identity fields are left alone, so the write needs no
// sender propagation and cannot trigger another company sync.
func (s *SyncService) OnCompanyUpdated(ctx context.Context, companyID string) outcome.Secondary {
	o := s.reverseSync(ctx, companyID)
	metrics.SecondaryOutcomesTotal.WithLabelValues(o.Operation, string(o.Status)).Inc()
	s.reporter.Report(ctx, o)
	return o
}

func (s *SyncService) reverseSync(ctx context.Context, companyID string) outcome.Secondary {
	snap, err := s.store.Get(ctx, store.CollectionCompanies, companyID)
	if err != nil {
		return s.failed(companyID, "load company", err)
	}
	var co company.Company
	if err := snap.DataTo(&co); err != nil {
		return s.failed(companyID, "decode company", err)
	}

	customerID, err := s.linkedCustomerID(ctx, &co)
	if err != nil {
		return s.failed(companyID, "find customer", err)
	}
	if customerID == "" {
		return outcome.Skipped(outcome.OpCompanySync, companyID, "company has no linked customer")
	}

	typ, ok := s.tables.StatusToType[co.Status]
	if !ok {
		return s.failed(companyID, "translate status", fmt.Errorf("%w: company status %q", xerrors.ErrInvalidInput, co.Status))
	}

	fields := map[string]interface{}{
		"type":                   typ,
		"company.website":        co.Website,
		"company.industry":       co.Industry,
		"company.size":           co.Size,
		"company.address":        co.Address,
		"company.city":           co.City,
		"company.country":        co.Country,
		"taxInfo.taxOffice":      co.TaxOffice,
		"taxInfo.taxNumber":      co.TaxNumber,
		"taxInfo.registryNumber": co.RegistryNumber,
		"linkedCompanyId":        co.ID,
		"updatedAt":              s.store.Now(),
	}
	if err := s.store.Update(ctx, store.CollectionCustomers, customerID, fields); err != nil {
		return s.failed(companyID, "update customer", err)
	}

	s.logger.Info("customer synced from company",
		zap.String("company_id", co.ID),
		zap.String("customer_id", customerID),
		zap.String("type", string(typ)),
	)
	return outcome.Succeeded(outcome.OpCompanySync, companyID, customerID, 1)
}

func (s *SyncService) linkOrCreate(ctx context.Context, customerID string) (outcome.Secondary, error) {
	c, err := s.loadCustomer(ctx, customerID)
	if err != nil {
		return outcome.Secondary{}, err
	}

	co, err := s.findCompany(ctx, c)
	if err != nil {
		return outcome.Secondary{}, err
	}

	now := s.store.Now()
	b := s.store.Batch()
	created := false

	switch {
	case co != nil:
		b.Update(store.CollectionCompanies, co.ID, s.companyFields(c, now))
	case strings.TrimSpace(c.Company.Name) == "":
		return outcome.Skipped(outcome.OpCompanySync, c.ID, "customer has no company name"), nil
	default:
		co = s.newCompany(c, now)
		b.Set(store.CollectionCompanies, co.ID, co)
		created = true
	}

	if c.LinkedCompanyID == co.ID && !created {
		if err := b.Commit(ctx); err != nil {
			return outcome.Secondary{}, err
		}
		return outcome.Succeeded(outcome.OpCompanySync, c.ID, co.ID, 1), nil
	}

	b.Update(store.CollectionCustomers, c.ID, map[string]interface{}{"linkedCompanyId": co.ID})
	if err := s.activities.Stage(ctx, b, &activity.Activity{
		Type:        activity.TypeCompanyLinked,
		CustomerID:  c.ID,
		Description: "linked to company " + co.Name,
		Metadata:    map[string]interface{}{"companyId": co.ID, "created": created},
	}); err != nil {
		return outcome.Secondary{}, err
	}
	if err := b.Commit(ctx); err != nil {
		return outcome.Secondary{}, err
	}

	s.logger.Info("customer linked to company",
		zap.String("customer_id", c.ID),
		zap.String("company_id", co.ID),
		zap.Bool("created", created),
	)
	return outcome.Succeeded(outcome.OpCompanySync, c.ID, co.ID, 1), nil
}

// findCompany follows the customer's link, then the company-side link, then
// looks for an unclaimed company sharing the customer's email or phone, and
// last one with the same tax number. Contact equality is the resolver's:
// case-insensitive email, canonical phone.
func (s *SyncService) findCompany(ctx context.Context, c *customer.Customer) (*company.Company, error) {
	if c.LinkedCompanyID != "" {
		co, err := s.loadCompany(ctx, c.LinkedCompanyID)
		if err == nil {
			return co, nil
		}
		if !xerrors.Is(err, xerrors.ErrNotFound) {
			return nil, err
		}
		s.logger.Warn("linked company missing, relinking",
			zap.String("customer_id", c.ID),
			zap.String("company_id", c.LinkedCompanyID),
		)
	}

	co, err := s.queryCompany(ctx, store.Where("linkedCustomerId", c.ID))
	if err != nil || co != nil {
		return co, err
	}

	claimable := func(co *company.Company) bool {
		return co.LinkedCustomerID == "" || co.LinkedCustomerID == c.ID
	}

	email := customer.NormalizeEmail(c.Email)
	canonical := phone.Normalize(c.Phone)

	if email != "" {
		if co, err := s.firstCompany(ctx, store.Where("email", email), claimable); err != nil || co != nil {
			return co, err
		}
	}
	if canonical != "" {
		if co, err := s.firstCompany(ctx, store.Where("phone", canonical), claimable); err != nil || co != nil {
			return co, err
		}
	}
	if email != "" || canonical != "" {
		// Companies created outside this service may hold mixed-case email
		// or formatted phones.
		co, err := s.scanCompanies(ctx, func(co *company.Company) bool {
			if !claimable(co) {
				return false
			}
			if email != "" && strings.EqualFold(strings.TrimSpace(co.Email), email) {
				return true
			}
			return canonical != "" && phone.Equal(co.Phone, canonical)
		})
		if err != nil || co != nil {
			return co, err
		}
	}

	if c.TaxInfo.TaxNumber != "" {
		return s.firstCompany(ctx, store.Where("taxNumber", c.TaxInfo.TaxNumber), claimable)
	}
	return nil, nil
}

func (s *SyncService) linkedCustomerID(ctx context.Context, co *company.Company) (string, error) {
	if co.LinkedCustomerID != "" {
		_, err := s.store.Get(ctx, store.CollectionCustomers, co.LinkedCustomerID)
		if err == nil {
			return co.LinkedCustomerID, nil
		}
		if !xerrors.Is(err, xerrors.ErrNotFound) {
			return "", err
		}
	}
	snaps, err := s.store.Query(ctx, store.CollectionCustomers, store.Query{
		Filters: []store.Filter{store.Where("linkedCompanyId", co.ID)},
		Limit:   1,
	})
	if err != nil {
		return "", err
	}
	if len(snaps) == 0 {
		return "", nil
	}
	return snaps[0].ID, nil
}

func (s *SyncService) newCompany(c *customer.Customer, now time.Time) *company.Company {
	co := &company.Company{
		ID:               s.store.NewID(),
		Source:           company.SourceCRMSync,
		LinkedCustomerID: c.ID,
		CreatedAt:        now,
	}
	applyCustomer(co, c, s.tables.TypeToStatus[c.Type], now)
	return co
}

func (s *SyncService) companyFields(c *customer.Customer, now time.Time) map[string]interface{} {
	var co company.Company
	applyCustomer(&co, c, s.tables.TypeToStatus[c.Type], now)
	return map[string]interface{}{
		"name":             co.Name,
		"email":            co.Email,
		"phone":            co.Phone,
		"website":          co.Website,
		"industry":         co.Industry,
		"size":             co.Size,
		"address":          co.Address,
		"city":             co.City,
		"country":          co.Country,
		"contactPerson":    co.ContactPerson,
		"contactPosition":  co.ContactPosition,
		"taxOffice":        co.TaxOffice,
		"taxNumber":        co.TaxNumber,
		"registryNumber":   co.RegistryNumber,
		"status":           co.Status,
		"linkedCustomerId": c.ID,
		"updatedAt":        now,
		"lastSyncedAt":     now,
	}
}

func applyCustomer(co *company.Company, c *customer.Customer, status company.Status, now time.Time) {
	co.Name = c.Company.Name
	if co.Name == "" {
		co.Name = c.Name
	}
	co.Email = c.Email
	co.Phone = c.Phone
	co.Website = c.Company.Website
	co.Industry = c.Company.Industry
	co.Size = c.Company.Size
	co.Address = c.Company.Address
	co.City = c.Company.City
	co.Country = c.Company.Country
	co.ContactPerson = c.Name
	co.ContactPosition = c.Company.Position
	co.TaxOffice = c.TaxInfo.TaxOffice
	co.TaxNumber = c.TaxInfo.TaxNumber
	co.RegistryNumber = c.TaxInfo.RegistryNumber
	co.Status = status
	co.UpdatedAt = now
	synced := now
	co.LastSyncedAt = &synced
}

func (s *SyncService) loadCustomer(ctx context.Context, id string) (*customer.Customer, error) {
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

func (s *SyncService) loadCompany(ctx context.Context, id string) (*company.Company, error) {
	snap, err := s.store.Get(ctx, store.CollectionCompanies, id)
	if err != nil {
		return nil, err
	}
	var co company.Company
	if err := snap.DataTo(&co); err != nil {
		return nil, fmt.Errorf("failed to decode company %s: %w", id, err)
	}
	return &co, nil
}

func (s *SyncService) queryCompany(ctx context.Context, f store.Filter) (*company.Company, error) {
	return s.firstCompany(ctx, f, func(*company.Company) bool { return true })
}

// firstCompany returns the first company matching f that accept allows.
func (s *SyncService) firstCompany(ctx context.Context, f store.Filter, accept func(*company.Company) bool) (*company.Company, error) {
	snaps, err := s.store.Query(ctx, store.CollectionCompanies, store.Query{
		Filters: []store.Filter{f},
		Limit:   companyMatchLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query companies: %w", err)
	}
	for _, snap := range snaps {
		var co company.Company
		if err := snap.DataTo(&co); err != nil {
			return nil, fmt.Errorf("failed to decode company %s: %w", snap.ID, err)
		}
		co.ID = snap.ID
		if accept(&co) {
			return &co, nil
		}
	}
	return nil, nil
}

// scanCompanies walks companies in id order, up to companyScanLimit.
func (s *SyncService) scanCompanies(ctx context.Context, match func(*company.Company) bool) (*company.Company, error) {
	after := ""
	for scanned := 0; scanned < companyScanLimit; {
		snaps, err := s.store.Query(ctx, store.CollectionCompanies, store.Query{After: after, Limit: companyScanPage})
		if err != nil {
			return nil, fmt.Errorf("failed to scan companies: %w", err)
		}
		for _, snap := range snaps {
			scanned++
			var co company.Company
			if err := snap.DataTo(&co); err != nil {
				s.logger.Warn("skipping undecodable company during scan",
					zap.String("company_id", snap.ID), zap.Error(err))
				continue
			}
			co.ID = snap.ID
			if match(&co) {
				return &co, nil
			}
		}
		if len(snaps) < companyScanPage {
			return nil, nil
		}
		after = snaps[len(snaps)-1].ID
	}
	s.logger.Warn("company contact scan truncated", zap.Int("scan_limit", companyScanLimit))
	return nil, nil
}

func (s *SyncService) failed(subjectID, step string, err error) outcome.Secondary {
	s.logger.Warn("company sync failed",
		zap.String("subject_id", subjectID),
		zap.String("step", step),
		zap.Error(err),
	)
	return outcome.Failed(outcome.OpCompanySync, subjectID, fmt.Errorf("%s: %w", step, err))
}
