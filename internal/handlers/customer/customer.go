// internal/handlers/customer/customer.go
package customer

import (
	"net/http"

	"crm-service/internal/domain/cases"
	"crm-service/internal/domain/customer"
	"crm-service/internal/pkg/response"
	service "crm-service/internal/service/customer"

	"github.com/gin-gonic/gin"
)

type CustomerHandler struct {
	customerService *service.CustomerService
}

func NewCustomerHandler(customerService *service.CustomerService) *CustomerHandler {
	return &CustomerHandler{
		customerService: customerService,
	}
}

// CreateCustomer creates a customer unless its email or phone already
// resolves to one.
func (h *CustomerHandler) CreateCustomer(c *gin.Context) {
	var req customer.CreateCustomerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	result, err := h.customerService.CreateCustomer(c.Request.Context(), &req)
	if err != nil {
		response.FromError(c, "failed to create customer", err)
		return
	}

	response.Success(c, http.StatusCreated, "customer created", result)
}

func (h *CustomerHandler) GetCustomer(c *gin.Context) {
	result, err := h.customerService.GetCustomer(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.FromError(c, "customer not found", err)
		return
	}

	response.Success(c, http.StatusOK, "customer retrieved", result)
}

func (h *CustomerHandler) ListCustomers(c *gin.Context) {
	var filters customer.CustomerListFilters
	if err := c.ShouldBindQuery(&filters); err != nil {
		response.ValidationError(c, "invalid query parameters", err)
		return
	}

	result, err := h.customerService.ListCustomers(c.Request.Context(), &filters)
	if err != nil {
		response.FromError(c, "failed to list customers", err)
		return
	}

	response.Success(c, http.StatusOK, "customers retrieved", result)
}

// UpdateCustomer returns the committed customer together with the
// propagation and company sync outcomes. A failed secondary is still a 200.
func (h *CustomerHandler) UpdateCustomer(c *gin.Context) {
	var req customer.UpdateCustomerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	result, err := h.customerService.UpdateCustomer(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		response.FromError(c, "failed to update customer", err)
		return
	}

	response.Success(c, http.StatusOK, "customer updated", result)
}

func (h *CustomerHandler) DeleteCustomer(c *gin.Context) {
	if err := h.customerService.DeleteCustomer(c.Request.Context(), c.Param("id")); err != nil {
		response.FromError(c, "failed to delete customer", err)
		return
	}

	response.Success(c, http.StatusOK, "customer deleted", nil)
}

type tagRequest struct {
	Tag string `json:"tag" binding:"required"`
}

func (h *CustomerHandler) AddTag(c *gin.Context) {
	var req tagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	result, err := h.customerService.AddTag(c.Request.Context(), c.Param("id"), req.Tag)
	if err != nil {
		response.FromError(c, "failed to add tag", err)
		return
	}

	response.Success(c, http.StatusOK, "tag added", result)
}

func (h *CustomerHandler) RemoveTag(c *gin.Context) {
	tag := c.Query("tag")
	if tag == "" {
		response.ValidationError(c, "tag query parameter is required", nil)
		return
	}

	result, err := h.customerService.RemoveTag(c.Request.Context(), c.Param("id"), tag)
	if err != nil {
		response.FromError(c, "failed to remove tag", err)
		return
	}

	response.Success(c, http.StatusOK, "tag removed", result)
}

func (h *CustomerHandler) AddAlternativeContact(c *gin.Context) {
	var req customer.AddAlternativeContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	result, err := h.customerService.AddAlternativeContact(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		response.FromError(c, "failed to add alternative contact", err)
		return
	}

	response.Success(c, http.StatusOK, "alternative contact added", result)
}

// Resync reruns sender propagation and company sync for a customer. It is
// the manual retry for a failed secondary outcome.
func (h *CustomerHandler) Resync(c *gin.Context) {
	result, err := h.customerService.Resync(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.FromError(c, "failed to sync customer", err)
		return
	}

	response.Success(c, http.StatusOK, "customer synced", result)
}

func (h *CustomerHandler) OpenCase(c *gin.Context) {
	var req cases.OpenCaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	result, err := h.customerService.OpenCase(c.Request.Context(), c.Param("id"), req.Title, req.Value)
	if err != nil {
		response.FromError(c, "failed to open case", err)
		return
	}

	response.Success(c, http.StatusCreated, "case opened", result)
}

func (h *CustomerHandler) RecordCaseOutcome(c *gin.Context) {
	var req cases.RecordOutcomeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	result, err := h.customerService.RecordCaseOutcome(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		response.FromError(c, "failed to record case outcome", err)
		return
	}

	response.Success(c, http.StatusOK, "case outcome recorded", result)
}
