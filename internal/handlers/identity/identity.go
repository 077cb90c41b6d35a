// internal/handlers/identity/identity.go
package identity

import (
	"net/http"

	"crm-service/internal/domain/customer"
	"crm-service/internal/pkg/response"
	customersvc "crm-service/internal/service/customer"
	service "crm-service/internal/service/identity"

	"github.com/gin-gonic/gin"
)

type IdentityHandler struct {
	resolver        *service.Resolver
	customerService *customersvc.CustomerService
}

func NewIdentityHandler(resolver *service.Resolver, customerService *customersvc.CustomerService) *IdentityHandler {
	return &IdentityHandler{
		resolver:        resolver,
		customerService: customerService,
	}
}

// Resolve looks a contact up without creating anything. No match is a 404
// carrying the scan details.
func (h *IdentityHandler) Resolve(c *gin.Context) {
	email := c.Query("email")
	phone := c.Query("phone")
	if email == "" && phone == "" {
		response.ValidationError(c, "email or phone is required", nil)
		return
	}

	result, err := h.resolver.ResolveDetailed(c.Request.Context(), email, phone)
	if err != nil {
		response.FromError(c, "failed to resolve contact", err)
		return
	}
	if result.Customer == nil {
		response.Error(c, http.StatusNotFound, "no customer matches this contact", nil, result)
		return
	}

	response.Success(c, http.StatusOK, "customer resolved", result)
}

// IdentifyContact resolves an inbound contact or creates its customer.
func (h *IdentityHandler) IdentifyContact(c *gin.Context) {
	var req customer.ContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	result, err := h.customerService.IdentifyContact(c.Request.Context(), &req)
	if err != nil {
		response.FromError(c, "failed to identify contact", err)
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	response.Success(c, status, "contact identified", result)
}
