// internal/domain/customer/entity.go
package customer

import (
	"strings"
	"time"

	"crm-service/internal/pkg/phone"
)

type Type string

const (
	TypeLead     Type = "lead"
	TypeProspect Type = "prospect"
	TypeCustomer Type = "customer"
	TypeInactive Type = "inactive"
	TypeLost     Type = "lost"
)

// Types lists every customer type; the company sync tables must cover all of them.
var Types = []Type{TypeLead, TypeProspect, TypeCustomer, TypeInactive, TypeLost}

func (t Type) Valid() bool {
	for _, v := range Types {
		if v == t {
			return true
		}
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

type ContactType string

const (
	ContactEmail ContactType = "email"
	ContactPhone ContactType = "phone"
)

// Channels a contact value can originate from.
const (
	ChannelForm      = "form"
	ChannelWhatsApp  = "whatsapp"
	ChannelInstagram = "instagram"
	ChannelEmail     = "email"
	ChannelManual    = "manual"
	ChannelMigration = "migration"
	ChannelMerged    = "merged"
)

type AlternativeContact struct {
	Type    ContactType `json:"type"`
	Value   string      `json:"value"`
	Channel string      `json:"channel,omitempty"`
	AddedAt *time.Time  `json:"addedAt,omitempty"`
}

// Matches compares using the contact type's equality rule.
func (a AlternativeContact) Matches(email, phoneNumber string) bool {
	switch a.Type {
	case ContactEmail:
		return email != "" && strings.EqualFold(strings.TrimSpace(a.Value), strings.TrimSpace(email))
	case ContactPhone:
		return phoneNumber != "" && phone.Equal(a.Value, phoneNumber)
	}
	return false
}

type CompanyInfo struct {
	Name     string `json:"name,omitempty"`
	Position string `json:"position,omitempty"`
	Website  string `json:"website,omitempty"`
	Industry string `json:"industry,omitempty"`
	Size     string `json:"size,omitempty"`
	Address  string `json:"address,omitempty"`
	Country  string `json:"country,omitempty"`
	City     string `json:"city,omitempty"`
}

type TaxInfo struct {
	TaxOffice      string `json:"taxOffice,omitempty"`
	TaxNumber      string `json:"taxNumber,omitempty"`
	RegistryNumber string `json:"registryNumber,omitempty"`
}

// Stats are maintained only by the customer service's aggregation routines and by merge.
type Stats struct {
	ConversationCount int        `json:"conversationCount"`
	CaseCount         int        `json:"caseCount"`
	OpenCases         int        `json:"openCases"`
	WonCases          int        `json:"wonCases"`
	LostCases         int        `json:"lostCases"`
	LifetimeValue     float64    `json:"lifetimeValue"`
	FirstContactAt    *time.Time `json:"firstContactAt,omitempty"`
	LastContactAt     *time.Time `json:"lastContactAt,omitempty"`
}

type Customer struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`

	Company             CompanyInfo          `json:"company"`
	TaxInfo             TaxInfo              `json:"taxInfo"`
	AlternativeContacts []AlternativeContact `json:"alternativeContacts"`

	// Classification
	Type     Type     `json:"type"`
	Priority Priority `json:"priority"`
	Tags     []string `json:"tags"`
	Notes    string   `json:"notes,omitempty"`
	Source   string   `json:"source,omitempty"`

	Stats           Stats  `json:"stats"`
	LinkedCompanyID string `json:"linkedCompanyId,omitempty"`

	// MergedIDs lists customers absorbed into this one. Their activities
	// keep the old owner id and are read through this list.
	MergedIDs []string `json:"mergedIds,omitempty"`

	// Timestamps
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
	MigratedAt *time.Time `json:"migratedAt,omitempty"`
	CreatedBy  string     `json:"createdBy,omitempty"`
}

// HasTag reports whether tag is already present.
func (c *Customer) HasTag(tag string) bool {
	for _, t := range c.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// HasContact reports whether value is this customer's primary or alternate contact.
func (c *Customer) HasContact(kind ContactType, value string) bool {
	switch kind {
	case ContactEmail:
		if value != "" && strings.EqualFold(c.Email, strings.TrimSpace(value)) {
			return true
		}
		for _, alt := range c.AlternativeContacts {
			if alt.Type == ContactEmail && alt.Matches(value, "") {
				return true
			}
		}
	case ContactPhone:
		if phone.Equal(c.Phone, value) {
			return true
		}
		for _, alt := range c.AlternativeContacts {
			if alt.Type == ContactPhone && alt.Matches("", value) {
				return true
			}
		}
	}
	return false
}

// AddAlternativeContact appends a contact unless the customer already owns it.
// It returns false when nothing was added.
func (c *Customer) AddAlternativeContact(contact AlternativeContact) bool {
	if contact.Value == "" || c.HasContact(contact.Type, contact.Value) {
		return false
	}
	c.AlternativeContacts = append(c.AlternativeContacts, contact)
	return true
}

// NormalizeEmail lower-cases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
