// internal/service/customer/contacts.go
package customer

import (
	"context"
	"fmt"
	"strings"

	"crm-service/internal/domain/activity"
	"crm-service/internal/domain/customer"
	"crm-service/internal/domain/outcome"
	xerrors "crm-service/internal/pkg/errors"
	"crm-service/internal/pkg/phone"
	"crm-service/internal/service/identity"
	"crm-service/internal/store"

	"go.uber.org/zap"
)

// AddTag adds tag to the customer's tag set.
func (s *CustomerService) AddTag(ctx context.Context, id, tag string) (*customer.Customer, error) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return nil, fmt.Errorf("%w: tag is required", xerrors.ErrInvalidInput)
	}
	c, err := s.GetCustomer(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.HasTag(tag) {
		return c, nil
	}
	c.Tags = append(c.Tags, tag)
	if err := s.writeTags(ctx, c, activity.TypeTagAdded, tag); err != nil {
		return nil, err
	}
	return c, nil
}

// RemoveTag removes tag; removing an absent tag is a no-op.
func (s *CustomerService) RemoveTag(ctx context.Context, id, tag string) (*customer.Customer, error) {
	c, err := s.GetCustomer(ctx, id)
	if err != nil {
		return nil, err
	}
	if !c.HasTag(tag) {
		return c, nil
	}
	kept := c.Tags[:0]
	for _, t := range c.Tags {
		if t != tag {
			kept = append(kept, t)
		}
	}
	c.Tags = kept
	if err := s.writeTags(ctx, c, activity.TypeTagRemoved, tag); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *CustomerService) writeTags(ctx context.Context, c *customer.Customer, typ activity.Type, tag string) error {
	c.UpdatedAt = s.store.Now()

	b := s.store.Batch()
	b.Update(store.CollectionCustomers, c.ID, map[string]interface{}{
		"tags":      c.Tags,
		"updatedAt": c.UpdatedAt,
	})
	if err := s.activities.Stage(ctx, b, &activity.Activity{
		Type:       typ,
		CustomerID: c.ID,
		Metadata:   map[string]interface{}{"tag": tag},
	}); err != nil {
		return err
	}
	if err := b.Commit(ctx); err != nil {
		return fmt.Errorf("failed to update tags: %w", err)
	}
	return nil
}

// AddAlternativeContact attaches an extra email or phone. The value must not
// already resolve to a different customer.
func (s *CustomerService) AddAlternativeContact(ctx context.Context, id string, req *customer.AddAlternativeContactRequest) (*customer.Customer, error) {
	contact, err := normalizeContact(customer.AlternativeContact{
		Type:    req.Type,
		Value:   req.Value,
		Channel: req.Channel,
	})
	if err != nil {
		return nil, err
	}
	if contact.Channel == "" {
		contact.Channel = customer.ChannelManual
	}

	c, err := s.GetCustomer(ctx, id)
	if err != nil {
		return nil, err
	}

	email, canonical := contactParts(contact)
	if err := s.ensureUnclaimed(ctx, c.ID, email, canonical); err != nil {
		return nil, err
	}

	if err := s.attachContact(ctx, c, contact); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *CustomerService) attachContact(ctx context.Context, c *customer.Customer, contact customer.AlternativeContact) error {
	now := s.store.Now()
	contact.AddedAt = &now
	if !c.AddAlternativeContact(contact) {
		return nil
	}
	c.UpdatedAt = now

	b := s.store.Batch()
	b.Update(store.CollectionCustomers, c.ID, map[string]interface{}{
		"alternativeContacts": c.AlternativeContacts,
		"updatedAt":           c.UpdatedAt,
	})
	if err := s.activities.Stage(ctx, b, &activity.Activity{
		Type:       activity.TypeContactAdded,
		CustomerID: c.ID,
		Metadata: map[string]interface{}{
			"type":    string(contact.Type),
			"value":   contact.Value,
			"channel": contact.Channel,
		},
	}); err != nil {
		return err
	}
	if err := b.Commit(ctx); err != nil {
		return fmt.Errorf("failed to add alternative contact: %w", err)
	}

	s.logger.Info("alternative contact added",
		zap.String("customer_id", c.ID),
		zap.String("type", string(contact.Type)),
		zap.String("channel", contact.Channel),
	)
	return nil
}

// IdentifyResult is the outcome of an inbound contact.
type IdentifyResult struct {
	Customer *customer.Customer `json:"customer"`
	Created  bool               `json:"created"`
	Match    identity.Match     `json:"match"`
	Sync     outcome.Secondary  `json:"sync"`
}

// IdentifyContact resolves an inbound contact to its canonical customer,
// creating one when nothing matches, and records the contact on its stats.
// A contact that matched on one field absorbs the other as an alternate.
func (s *CustomerService) IdentifyContact(ctx context.Context, req *customer.ContactRequest) (*IdentifyResult, error) {
	if strings.TrimSpace(req.Email) == "" && strings.TrimSpace(req.Phone) == "" {
		return nil, fmt.Errorf("%w: email or phone is required", xerrors.ErrInvalidInput)
	}
	if err := validateContact(req.Email, req.Phone); err != nil {
		return nil, err
	}

	email := customer.NormalizeEmail(req.Email)
	canonical := phone.Normalize(req.Phone)

	res, err := s.resolver.ResolveDetailed(ctx, email, canonical)
	if err != nil {
		return nil, err
	}

	if res.Customer == nil {
		created, err := s.CreateCustomer(ctx, &customer.CreateCustomerRequest{
			Name:    req.Name,
			Email:   email,
			Phone:   canonical,
			Company: customer.CompanyInfo{Name: strings.TrimSpace(req.Company)},
			Source:  req.Channel,
		})
		if err != nil {
			return nil, err
		}
		c, err := s.RecordContact(ctx, created.Customer.ID, s.store.Now())
		if err != nil {
			return nil, err
		}
		return &IdentifyResult{Customer: c, Created: true, Match: identity.MatchNone, Sync: created.Sync}, nil
	}

	c := res.Customer
	if email != "" && !c.HasContact(customer.ContactEmail, email) {
		if err := s.absorb(ctx, c, customer.ContactEmail, email, req.Channel); err != nil {
			return nil, err
		}
	}
	if canonical != "" && !c.HasContact(customer.ContactPhone, canonical) {
		if err := s.absorb(ctx, c, customer.ContactPhone, canonical, req.Channel); err != nil {
			return nil, err
		}
	}

	c, err = s.RecordContact(ctx, c.ID, s.store.Now())
	if err != nil {
		return nil, err
	}
	return &IdentifyResult{
		Customer: c,
		Match:    res.Match,
		Sync:     outcome.Skipped(outcome.OpCompanySync, c.ID, "existing customer"),
	}, nil
}

// absorb attaches value unless it already identifies another customer, in
// which case the contact is left for a manual merge.
func (s *CustomerService) absorb(ctx context.Context, c *customer.Customer, kind customer.ContactType, value, channel string) error {
	email, canonical := "", ""
	if kind == customer.ContactEmail {
		email = value
	} else {
		canonical = value
	}
	if err := s.ensureUnclaimed(ctx, c.ID, email, canonical); err != nil {
		if xerrors.Is(err, xerrors.ErrConflict) {
			s.logger.Warn("inbound contact matches two customers",
				zap.String("customer_id", c.ID),
				zap.String("contact_type", string(kind)),
				zap.Error(err),
			)
			return nil
		}
		return err
	}
	return s.attachContact(ctx, c, customer.AlternativeContact{Type: kind, Value: value, Channel: channel})
}

// contactParts splits a normalized contact into resolver arguments.
func contactParts(contact customer.AlternativeContact) (email, canonical string) {
	if contact.Type == customer.ContactEmail {
		return contact.Value, ""
	}
	return "", contact.Value
}
