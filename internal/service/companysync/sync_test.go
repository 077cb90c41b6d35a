package companysync

import (
	"context"
	"testing"

	"crm-service/internal/domain/company"
	"crm-service/internal/domain/customer"
	"crm-service/internal/domain/outcome"
	activitysvc "crm-service/internal/service/activity"
	"crm-service/internal/store"
	"crm-service/internal/store/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupSync(t *testing.T) (*SyncService, *memory.Store) {
	t.Helper()
	s := memory.New()
	svc, err := NewSyncService(s, DefaultTables, activitysvc.NewActivityService(s, zap.NewNop()), nil, zap.NewNop())
	require.NoError(t, err)
	return svc, s
}

func putCustomer(t *testing.T, s store.Client, c customer.Customer) {
	t.Helper()
	require.NoError(t, s.Set(context.Background(), store.CollectionCustomers, c.ID, c))
}

func getCustomer(t *testing.T, s store.Client, id string) customer.Customer {
	t.Helper()
	snap, err := s.Get(context.Background(), store.CollectionCustomers, id)
	require.NoError(t, err)
	var c customer.Customer
	require.NoError(t, snap.DataTo(&c))
	return c
}

func getCompany(t *testing.T, s store.Client, id string) company.Company {
	t.Helper()
	snap, err := s.Get(context.Background(), store.CollectionCompanies, id)
	require.NoError(t, err)
	var co company.Company
	require.NoError(t, snap.DataTo(&co))
	return co
}

func TestTables_Validate(t *testing.T) {
	require.NoError(t, DefaultTables.Validate())

	missing := Tables{
		TypeToStatus: map[customer.Type]company.Status{customer.TypeLead: company.StatusPotential},
		StatusToType: DefaultTables.StatusToType,
	}
	assert.Error(t, missing.Validate())

	unknown := Tables{
		TypeToStatus: DefaultTables.TypeToStatus,
		StatusToType: map[company.Status]customer.Type{},
	}
	for k, v := range DefaultTables.StatusToType {
		unknown.StatusToType[k] = v
	}
	unknown.StatusToType[company.StatusActive] = customer.Type("vip")
	assert.Error(t, unknown.Validate())

	_, err := NewSyncService(memory.New(), missing, nil, nil, zap.NewNop())
	assert.Error(t, err)
}

func TestOnCustomerCreated_CreatesAndLinksOnce(t *testing.T) {
	svc, s := setupSync(t)
	ctx := context.Background()
	putCustomer(t, s, customer.Customer{
		ID:      "c1",
		Name:    "Ayse Yilmaz",
		Email:   "ayse@example.com",
		Type:    customer.TypeProspect,
		Company: customer.CompanyInfo{Name: "Yilmaz Tekstil", City: "Bursa", Position: "Buyer"},
	})

	o := svc.OnCustomerCreated(ctx, "c1")
	require.Equal(t, outcome.StatusSucceeded, o.Status, o.Error)

	c := getCustomer(t, s, "c1")
	require.Equal(t, o.TargetID, c.LinkedCompanyID)

	co := getCompany(t, s, c.LinkedCompanyID)
	assert.Equal(t, "Yilmaz Tekstil", co.Name)
	assert.Equal(t, company.StatusNegotiation, co.Status)
	assert.Equal(t, "c1", co.LinkedCustomerID)
	assert.Equal(t, "Ayse Yilmaz", co.ContactPerson)
	assert.Equal(t, company.SourceCRMSync, co.Source)

	again := svc.OnCustomerCreated(ctx, "c1")
	assert.Equal(t, outcome.StatusSucceeded, again.Status)
	assert.Equal(t, o.TargetID, again.TargetID)
	assert.Equal(t, 1, s.Count(store.CollectionCompanies))
}

func TestOnCustomerCreated_SkipsWithoutCompanyName(t *testing.T) {
	svc, s := setupSync(t)
	putCustomer(t, s, customer.Customer{ID: "c1", Name: "Walk-in", Type: customer.TypeLead})

	o := svc.OnCustomerCreated(context.Background(), "c1")
	assert.Equal(t, outcome.StatusSkipped, o.Status)
	assert.Equal(t, 0, s.Count(store.CollectionCompanies))
}

func TestOnCustomerCreated_LinksByTaxNumber(t *testing.T) {
	svc, s := setupSync(t)
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, store.CollectionCompanies, "co-1", company.Company{
		ID: "co-1", Name: "Acme AS", TaxNumber: "1234567890", Status: company.StatusActive,
	}))
	putCustomer(t, s, customer.Customer{
		ID: "c1", Name: "Ali", Type: customer.TypeCustomer,
		Company: customer.CompanyInfo{Name: "Acme"},
		TaxInfo: customer.TaxInfo{TaxNumber: "1234567890"},
	})

	o := svc.OnCustomerCreated(ctx, "c1")
	require.Equal(t, outcome.StatusSucceeded, o.Status, o.Error)
	assert.Equal(t, "co-1", o.TargetID)
	assert.Equal(t, 1, s.Count(store.CollectionCompanies))
	assert.Equal(t, "c1", getCompany(t, s, "co-1").LinkedCustomerID)
}

func TestOnCustomerUpdated_PropagatesFields(t *testing.T) {
	svc, s := setupSync(t)
	ctx := context.Background()
	putCustomer(t, s, customer.Customer{
		ID: "c1", Name: "Ayse", Type: customer.TypeLead,
		Company: customer.CompanyInfo{Name: "Yilmaz Tekstil"},
	})
	require.Equal(t, outcome.StatusSucceeded, svc.OnCustomerCreated(ctx, "c1").Status)

	c := getCustomer(t, s, "c1")
	require.NoError(t, s.Update(ctx, store.CollectionCustomers, "c1", map[string]interface{}{
		"type":             customer.TypeCustomer,
		"company.industry": "Textile",
	}))

	o := svc.OnCustomerUpdated(ctx, "c1")
	require.Equal(t, outcome.StatusSucceeded, o.Status, o.Error)

	co := getCompany(t, s, c.LinkedCompanyID)
	assert.Equal(t, company.StatusActive, co.Status)
	assert.Equal(t, "Textile", co.Industry)
	assert.NotNil(t, co.LastSyncedAt)
}

func TestOnCompanyUpdated_WritesNonIdentityFields(t *testing.T) {
	svc, s := setupSync(t)
	ctx := context.Background()
	putCustomer(t, s, customer.Customer{
		ID: "c1", Name: "Ayse", Email: "ayse@example.com", Type: customer.TypeCustomer,
		Company: customer.CompanyInfo{Name: "Yilmaz Tekstil"},
	})
	require.Equal(t, outcome.StatusSucceeded, svc.OnCustomerCreated(ctx, "c1").Status)
	companyID := getCustomer(t, s, "c1").LinkedCompanyID

	require.NoError(t, s.Update(ctx, store.CollectionCompanies, companyID, map[string]interface{}{
		"status":  company.StatusSuspended,
		"website": "https://yilmaz.example.com",
		"name":    "Renamed Externally",
		"email":   "other@example.com",
	}))

	o := svc.OnCompanyUpdated(ctx, companyID)
	require.Equal(t, outcome.StatusSucceeded, o.Status, o.Error)

	c := getCustomer(t, s, "c1")
	assert.Equal(t, customer.TypeInactive, c.Type)
	assert.Equal(t, "https://yilmaz.example.com", c.Company.Website)
	assert.Equal(t, "Yilmaz Tekstil", c.Company.Name)
	assert.Equal(t, "ayse@example.com", c.Email)
}

func TestSyncFailuresAreReturnedNotRaised(t *testing.T) {
	svc, _ := setupSync(t)

	o := svc.OnCustomerUpdated(context.Background(), "missing")
	assert.Equal(t, outcome.StatusFailed, o.Status)
	assert.NotEmpty(t, o.Error)

	o = svc.OnCompanyUpdated(context.Background(), "missing")
	assert.Equal(t, outcome.StatusFailed, o.Status)
}

func TestOnCustomerCreated_LinksByContact(t *testing.T) {
	tests := []struct {
		name    string
		company company.Company
	}{
		{
			name:    "canonical email and phone",
			company: company.Company{ID: "co-1", Name: "Acme", Email: "a@x.com", Phone: "905365923035", Status: company.StatusActive},
		},
		{
			name:    "mixed-case email",
			company: company.Company{ID: "co-1", Name: "Acme", Email: " A@X.com", Status: company.StatusActive},
		},
		{
			name:    "formatted phone",
			company: company.Company{ID: "co-1", Name: "Acme", Phone: "0536 592 30 35", Status: company.StatusActive},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, s := setupSync(t)
			ctx := context.Background()
			require.NoError(t, s.Set(ctx, store.CollectionCompanies, tt.company.ID, tt.company))
			putCustomer(t, s, customer.Customer{
				ID: "c1", Name: "Ali", Email: "a@x.com", Phone: "905365923035",
				Type:    customer.TypeCustomer,
				Company: customer.CompanyInfo{Name: "Acme"},
			})

			o := svc.OnCustomerCreated(ctx, "c1")
			require.Equal(t, outcome.StatusSucceeded, o.Status, o.Error)
			assert.Equal(t, "co-1", o.TargetID)
			assert.Equal(t, 1, s.Count(store.CollectionCompanies))
			assert.Equal(t, "c1", getCompany(t, s, "co-1").LinkedCustomerID)
			assert.Equal(t, "co-1", getCustomer(t, s, "c1").LinkedCompanyID)
		})
	}
}

func TestOnCustomerCreated_IgnoresCompanyClaimedByOtherCustomer(t *testing.T) {
	svc, s := setupSync(t)
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, store.CollectionCompanies, "co-1", company.Company{
		ID: "co-1", Name: "Acme", Email: "a@x.com", LinkedCustomerID: "someone-else", Status: company.StatusActive,
	}))
	putCustomer(t, s, customer.Customer{
		ID: "c1", Name: "Ali", Email: "a@x.com", Type: customer.TypeLead,
		Company: customer.CompanyInfo{Name: "Ali Ltd"},
	})

	o := svc.OnCustomerCreated(ctx, "c1")
	require.Equal(t, outcome.StatusSucceeded, o.Status, o.Error)
	assert.NotEqual(t, "co-1", o.TargetID)
	assert.Equal(t, 2, s.Count(store.CollectionCompanies))
	assert.Equal(t, "someone-else", getCompany(t, s, "co-1").LinkedCustomerID)
}
