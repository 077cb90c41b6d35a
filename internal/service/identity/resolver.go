// internal/service/identity/resolver.go
package identity

import (
	"context"
	"fmt"

	"crm-service/internal/domain/customer"
	"crm-service/internal/metrics"
	xerrors "crm-service/internal/pkg/errors"
	"crm-service/internal/pkg/phone"
	"crm-service/internal/store"

	"go.uber.org/zap"
)

// DefaultScanLimit bounds the alternate-contact scan. The scan reads customers
// page by page and is linear in the collection size; it is the resolver's
// scaling limit.
const DefaultScanLimit = 500

const scanPageSize = 100

type Match string

const (
	MatchEmail     Match = "email"
	MatchPhone     Match = "phone"
	MatchAlternate Match = "alternate"
	MatchNone      Match = "none"
)

// Result reports how a lookup was decided.
type Result struct {
	Customer  *customer.Customer `json:"customer,omitempty"`
	Match     Match              `json:"match"`
	Scanned   int                `json:"scanned"`
	Truncated bool               `json:"truncated"`
}

type Resolver struct {
	store     store.Client
	scanLimit int
	logger    *zap.Logger
}

func NewResolver(client store.Client, scanLimit int, logger *zap.Logger) *Resolver {
	if scanLimit <= 0 {
		scanLimit = DefaultScanLimit
	}
	return &Resolver{
		store:     client,
		scanLimit: scanLimit,
		logger:    logger,
	}
}

func (r *Resolver) ScanLimit() int { return r.scanLimit }

// Resolve returns the canonical customer for the contact, or xerrors.ErrNotFound.
func (r *Resolver) Resolve(ctx context.Context, email, rawPhone string) (*customer.Customer, error) {
	res, err := r.ResolveDetailed(ctx, email, rawPhone)
	if err != nil {
		return nil, err
	}
	if res.Customer == nil {
		return nil, xerrors.ErrNotFound
	}
	return res.Customer, nil
}

// ResolveDetailed tries the primary email, then the primary phone, then scans
// alternate contacts. A nil Customer with a nil error means no match.
func (r *Resolver) ResolveDetailed(ctx context.Context, email, rawPhone string) (*Result, error) {
	email = customer.NormalizeEmail(email)
	canonical := phone.Normalize(rawPhone)

	if email == "" && canonical == "" {
		return &Result{Match: MatchNone}, nil
	}

	if email != "" {
		c, err := r.findOne(ctx, "email", email)
		if err != nil {
			return nil, err
		}
		if c != nil {
			return r.matched(&Result{Customer: c, Match: MatchEmail}), nil
		}
	}

	if canonical != "" {
		c, err := r.findOne(ctx, "phone", canonical)
		if err != nil {
			return nil, err
		}
		if c != nil {
			return r.matched(&Result{Customer: c, Match: MatchPhone}), nil
		}
	}

	res, err := r.scan(ctx, email, canonical)
	if err != nil {
		return nil, err
	}
	return r.matched(res), nil
}

func (r *Resolver) findOne(ctx context.Context, field, value string) (*customer.Customer, error) {
	snaps, err := r.store.Query(ctx, store.CollectionCustomers, store.Query{
		Filters: []store.Filter{store.Where(field, value)},
		Limit:   1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to look up customer by %s: %w", field, err)
	}
	if len(snaps) == 0 {
		return nil, nil
	}

	var c customer.Customer
	if err := snaps[0].DataTo(&c); err != nil {
		return nil, fmt.Errorf("failed to decode customer %s: %w", snaps[0].ID, err)
	}
	return &c, nil
}

// scan walks customers in id order. Primary phones are compared too, so
// records written before canonicalization still resolve.
func (r *Resolver) scan(ctx context.Context, email, canonical string) (*Result, error) {
	res := &Result{Match: MatchNone}
	after := ""

	for res.Scanned < r.scanLimit {
		limit := scanPageSize
		if remaining := r.scanLimit - res.Scanned; remaining < limit {
			limit = remaining
		}

		snaps, err := r.store.Query(ctx, store.CollectionCustomers, store.Query{After: after, Limit: limit})
		if err != nil {
			return nil, fmt.Errorf("failed to scan customers: %w", err)
		}

		for _, snap := range snaps {
			res.Scanned++
			var c customer.Customer
			if err := snap.DataTo(&c); err != nil {
				r.logger.Warn("skipping undecodable customer during scan",
					zap.String("customer_id", snap.ID), zap.Error(err))
				continue
			}
			if matchesContact(&c, email, canonical) {
				res.Customer = &c
				res.Match = MatchAlternate
				metrics.ResolveScannedCustomers.Observe(float64(res.Scanned))
				return res, nil
			}
		}

		if len(snaps) < limit {
			metrics.ResolveScannedCustomers.Observe(float64(res.Scanned))
			return res, nil
		}
		after = snaps[len(snaps)-1].ID
	}

	// Limit reached: truncated only if more customers remain.
	more, err := r.store.Query(ctx, store.CollectionCustomers, store.Query{After: after, Limit: 1})
	if err != nil {
		return nil, fmt.Errorf("failed to scan customers: %w", err)
	}
	metrics.ResolveScannedCustomers.Observe(float64(res.Scanned))
	if len(more) > 0 {
		res.Truncated = true
		metrics.ResolveScanTruncatedTotal.Inc()
		r.logger.Warn("alternate contact scan truncated",
			zap.Int("scan_limit", r.scanLimit),
			zap.Int("scanned", res.Scanned),
			zap.Bool("has_email", email != ""),
			zap.Bool("has_phone", canonical != ""),
		)
	}
	return res, nil
}

func matchesContact(c *customer.Customer, email, canonical string) bool {
	if canonical != "" && phone.Equal(c.Phone, canonical) {
		return true
	}
	for _, alt := range c.AlternativeContacts {
		if alt.Matches(email, canonical) {
			return true
		}
	}
	return false
}

func (r *Resolver) matched(res *Result) *Result {
	metrics.ResolveTotal.WithLabelValues(string(res.Match)).Inc()
	return res
}
