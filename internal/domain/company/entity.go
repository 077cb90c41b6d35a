// internal/domain/company/entity.go
package company

import "time"

// Status is the external Company system's lifecycle vocabulary.
type Status string

const (
	StatusPotential   Status = "potential"
	StatusNegotiation Status = "negotiation"
	StatusActive      Status = "active"
	StatusSuspended   Status = "suspended"
	StatusPassive     Status = "passive"
	StatusChurned     Status = "churned"
)

var Statuses = []Status{
	StatusPotential,
	StatusNegotiation,
	StatusActive,
	StatusSuspended,
	StatusPassive,
	StatusChurned,
}

func (s Status) Valid() bool {
	for _, v := range Statuses {
		if v == s {
			return true
		}
	}
	return false
}

// SourceCRMSync marks companies created from a customer record.
const SourceCRMSync = "crm-sync"

type Company struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Website  string `json:"website,omitempty"`
	Industry string `json:"industry,omitempty"`
	Size     string `json:"size,omitempty"`
	Address  string `json:"address,omitempty"`
	City     string `json:"city,omitempty"`
	Country  string `json:"country,omitempty"`

	ContactPerson   string `json:"contactPerson,omitempty"`
	ContactPosition string `json:"contactPosition,omitempty"`

	TaxOffice      string `json:"taxOffice,omitempty"`
	TaxNumber      string `json:"taxNumber,omitempty"`
	RegistryNumber string `json:"registryNumber,omitempty"`

	Status           Status     `json:"status"`
	LinkedCustomerID string     `json:"linkedCustomerId,omitempty"`
	Source           string     `json:"source,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
	LastSyncedAt     *time.Time `json:"lastSyncedAt,omitempty"`
}
