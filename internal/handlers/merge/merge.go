// internal/handlers/merge/merge.go
package merge

import (
	"net/http"

	"crm-service/internal/pkg/response"
	service "crm-service/internal/service/merge"

	"github.com/gin-gonic/gin"
)

type MergeHandler struct {
	mergeService *service.MergeService
}

func NewMergeHandler(mergeService *service.MergeService) *MergeHandler {
	return &MergeHandler{mergeService: mergeService}
}

type mergeRequest struct {
	SecondaryID string `json:"secondaryId" binding:"required"`
}

// Merge folds the secondary customer into the one named in the path.
func (h *MergeHandler) Merge(c *gin.Context) {
	var req mergeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	result, err := h.mergeService.Merge(c.Request.Context(), c.Param("id"), req.SecondaryID)
	if err != nil {
		response.FromError(c, "failed to merge customers", err)
		return
	}

	response.Success(c, http.StatusOK, "customers merged", result)
}
