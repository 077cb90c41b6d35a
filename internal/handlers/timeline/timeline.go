// internal/handlers/timeline/timeline.go
package timeline

import (
	"net/http"
	"strings"

	"crm-service/internal/domain/activity"
	"crm-service/internal/pkg/response"
	service "crm-service/internal/service/timeline"

	"github.com/gin-gonic/gin"
)

type TimelineHandler struct {
	timelineService *service.TimelineService
}

func NewTimelineHandler(timelineService *service.TimelineService) *TimelineHandler {
	return &TimelineHandler{timelineService: timelineService}
}

func (h *TimelineHandler) GetTimeline(c *gin.Context) {
	var opts activity.TimelineOptions
	if err := c.ShouldBindQuery(&opts); err != nil {
		response.ValidationError(c, "invalid query parameters", err)
		return
	}
	// types=a,b is accepted as well as repeated types=
	if len(opts.Types) == 1 && strings.Contains(opts.Types[0], ",") {
		opts.Types = strings.Split(opts.Types[0], ",")
	}

	entries, err := h.timelineService.GetUnifiedTimeline(c.Request.Context(), c.Param("id"), opts)
	if err != nil {
		response.FromError(c, "failed to load timeline", err)
		return
	}

	response.Success(c, http.StatusOK, "timeline retrieved", map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
}
