// internal/handlers/company/company.go
package company

import (
	"net/http"

	"crm-service/internal/domain/outcome"
	"crm-service/internal/pkg/response"
	"crm-service/internal/service/companysync"

	"github.com/gin-gonic/gin"
)

type CompanyHandler struct {
	syncService *companysync.SyncService
}

func NewCompanyHandler(syncService *companysync.SyncService) *CompanyHandler {
	return &CompanyHandler{syncService: syncService}
}

// SyncCompany is the webhook the company system calls after it changes a
// company. The outcome is the body; a failed sync answers 502 so the caller
// retries.
func (h *CompanyHandler) SyncCompany(c *gin.Context) {
	result := h.syncService.OnCompanyUpdated(c.Request.Context(), c.Param("id"))
	if result.Status == outcome.StatusFailed {
		response.Error(c, http.StatusBadGateway, "company sync failed", nil, result)
		return
	}

	response.Success(c, http.StatusOK, "company synced", result)
}
