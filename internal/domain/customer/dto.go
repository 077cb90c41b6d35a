// internal/domain/customer/dto.go
package customer

import "time"

type CreateCustomerRequest struct {
	Name                string               `json:"name" binding:"max=255"`
	Email               string               `json:"email" binding:"omitempty,email,max=255"`
	Phone               string               `json:"phone" binding:"max=32"`
	Company             CompanyInfo          `json:"company"`
	TaxInfo             TaxInfo              `json:"taxInfo"`
	AlternativeContacts []AlternativeContact `json:"alternativeContacts"`
	Type                Type                 `json:"type"`
	Priority            Priority             `json:"priority"`
	Tags                []string             `json:"tags"`
	Notes               string               `json:"notes"`
	Source              string               `json:"source"`

	// CreatedAt is set only when importing history from a legacy system.
	CreatedAt *time.Time `json:"createdAt"`
}

// CompanyPatch carries only the company fields to overwrite.
type CompanyPatch struct {
	Name     *string `json:"name"`
	Position *string `json:"position"`
	Website  *string `json:"website"`
	Industry *string `json:"industry"`
	Size     *string `json:"size"`
	Address  *string `json:"address"`
	Country  *string `json:"country"`
	City     *string `json:"city"`
}

type TaxInfoPatch struct {
	TaxOffice      *string `json:"taxOffice"`
	TaxNumber      *string `json:"taxNumber"`
	RegistryNumber *string `json:"registryNumber"`
}

type UpdateCustomerRequest struct {
	Name     *string       `json:"name" binding:"omitempty,max=255"`
	Email    *string       `json:"email" binding:"omitempty,max=255"`
	Phone    *string       `json:"phone" binding:"omitempty,max=32"`
	Company  *CompanyPatch `json:"company"`
	TaxInfo  *TaxInfoPatch `json:"taxInfo"`
	Type     *Type         `json:"type"`
	Priority *Priority     `json:"priority"`
	Tags     []string      `json:"tags"`
	Notes    *string       `json:"notes"`
}

// TouchesIdentity reports whether the patch changes fields cached on conversations.
func (r *UpdateCustomerRequest) TouchesIdentity() bool {
	return r.Name != nil || r.Email != nil || r.Phone != nil ||
		(r.Company != nil && r.Company.Name != nil)
}

type AddAlternativeContactRequest struct {
	Type    ContactType `json:"type" binding:"required,oneof=email phone"`
	Value   string      `json:"value" binding:"required,max=255"`
	Channel string      `json:"channel"`
}

// ContactRequest is an inbound contact from a form, a messaging channel or manual entry.
type ContactRequest struct {
	Name    string `json:"name" binding:"max=255"`
	Email   string `json:"email" binding:"omitempty,email,max=255"`
	Phone   string `json:"phone" binding:"max=32"`
	Company string `json:"company" binding:"max=255"`
	Channel string `json:"channel" binding:"required"`
}

type CustomerListFilters struct {
	Type     Type   `form:"type"`
	Tag      string `form:"tag"`
	Page     int    `form:"page"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1,max=100"`
}

type CustomerListResponse struct {
	Customers []Customer `json:"customers"`
	Page      int        `json:"page"`
	PageSize  int        `json:"page_size"`
	HasMore   bool       `json:"has_more"`
}
