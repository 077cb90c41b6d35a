// internal/service/companysync/tables.go
package companysync

import (
	"fmt"

	"crm-service/internal/domain/company"
	"crm-service/internal/domain/customer"
)

// Tables translates between the two status vocabularies, one table per
// direction. Each table must cover every value of its source vocabulary.
type Tables struct {
	TypeToStatus map[customer.Type]company.Status
	StatusToType map[company.Status]customer.Type
}

var DefaultTables = Tables{
	TypeToStatus: map[customer.Type]company.Status{
		customer.TypeLead:     company.StatusPotential,
		customer.TypeProspect: company.StatusNegotiation,
		customer.TypeCustomer: company.StatusActive,
		customer.TypeInactive: company.StatusPassive,
		customer.TypeLost:     company.StatusChurned,
	},
	StatusToType: map[company.Status]customer.Type{
		company.StatusPotential:   customer.TypeLead,
		company.StatusNegotiation: customer.TypeProspect,
		company.StatusActive:      customer.TypeCustomer,
		company.StatusSuspended:   customer.TypeInactive,
		company.StatusPassive:     customer.TypeInactive,
		company.StatusChurned:     customer.TypeLost,
	},
}

// Validate checks both tables are exhaustive and only name known values.
func (t Tables) Validate() error {
	for _, typ := range customer.Types {
		status, ok := t.TypeToStatus[typ]
		if !ok {
			return fmt.Errorf("customer type %q has no company status", typ)
		}
		if !status.Valid() {
			return fmt.Errorf("customer type %q maps to unknown company status %q", typ, status)
		}
	}
	if len(t.TypeToStatus) != len(customer.Types) {
		return fmt.Errorf("type table has %d entries for %d customer types", len(t.TypeToStatus), len(customer.Types))
	}

	for _, status := range company.Statuses {
		typ, ok := t.StatusToType[status]
		if !ok {
			return fmt.Errorf("company status %q has no customer type", status)
		}
		if !typ.Valid() {
			return fmt.Errorf("company status %q maps to unknown customer type %q", status, typ)
		}
	}
	if len(t.StatusToType) != len(company.Statuses) {
		return fmt.Errorf("status table has %d entries for %d company statuses", len(t.StatusToType), len(company.Statuses))
	}
	return nil
}
