// internal/handlers/maintenance/maintenance.go
package maintenance

import (
	"context"
	"net/http"

	"crm-service/internal/pkg/response"
	"crm-service/internal/service/migration"
	ws "crm-service/internal/websocket"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// EventPublisher announces a finished run on the admin stream.
type EventPublisher interface {
	Publish(ctx context.Context, channel ws.ChannelType, eventType ws.EventType, data interface{}) error
}

type MaintenanceHandler struct {
	migrationService *migration.MigrationService
	events           EventPublisher
	logger           *zap.Logger
}

func NewMaintenanceHandler(migrationService *migration.MigrationService, events EventPublisher, logger *zap.Logger) *MaintenanceHandler {
	return &MaintenanceHandler{
		migrationService: migrationService,
		events:           events,
		logger:           logger,
	}
}

type migrateRequest struct {
	DryRun bool `json:"dryRun"`
}

// MigrateConversations runs the duplicate conversation migration. Group
// failures do not fail the request; they are listed in the report and the
// response is a 207.
func (h *MaintenanceHandler) MigrateConversations(c *gin.Context) {
	var req migrateRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.ValidationError(c, "invalid request", err)
			return
		}
	}

	report, err := h.migrationService.Run(c.Request.Context(), migration.Options{DryRun: req.DryRun})
	if report == nil {
		response.FromError(c, "conversation migration failed", err)
		return
	}

	if h.events != nil {
		if perr := h.events.Publish(c.Request.Context(), ws.ChannelMigration, ws.EventTypeMigrationFinished, report); perr != nil {
			h.logger.Warn("failed to publish migration report", zap.Error(perr))
		}
	}

	if err != nil {
		response.Success(c, http.StatusMultiStatus, "conversation migration finished with failures", report)
		return
	}
	response.Success(c, http.StatusOK, "conversation migration finished", report)
}
