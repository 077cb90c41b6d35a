// internal/app/router.go
package app

import (
	"net/http"

	companyHandler "crm-service/internal/handlers/company"
	customerHandler "crm-service/internal/handlers/customer"
	identityHandler "crm-service/internal/handlers/identity"
	maintenanceHandler "crm-service/internal/handlers/maintenance"
	mergeHandler "crm-service/internal/handlers/merge"
	timelineHandler "crm-service/internal/handlers/timeline"
	wsHandler "crm-service/internal/handlers/websocket"
	"crm-service/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Handlers struct {
	IdentityHandler    *identityHandler.IdentityHandler
	CustomerHandler    *customerHandler.CustomerHandler
	MergeHandler       *mergeHandler.MergeHandler
	TimelineHandler    *timelineHandler.TimelineHandler
	CompanyHandler     *companyHandler.CompanyHandler
	MaintenanceHandler *maintenanceHandler.MaintenanceHandler
	WSHandler          *wsHandler.WebSocketHandler
	AuthMiddleware     *middleware.AuthMiddleware
}

func SetupRouter(r *gin.Engine, logger *zap.Logger, h *Handlers) {
	api := r.Group("/api/v1")

	// ==================== Health Check ====================
	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// ==================== Metrics ====================
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// ==================== WebSocket ====================
	r.GET("/ws", h.WSHandler.HandleConnection)

	// ==================== Identity ====================
	identity := api.Group("/identity")
	identity.Use(h.AuthMiddleware.Auth())
	{
		identity.GET("/resolve", h.IdentityHandler.Resolve)
		identity.POST("/contacts", h.IdentityHandler.IdentifyContact)
	}

	// ==================== Customers ====================
	customers := api.Group("/customers")
	customers.Use(h.AuthMiddleware.Auth())
	{
		customers.POST("", h.CustomerHandler.CreateCustomer)
		customers.GET("", h.CustomerHandler.ListCustomers)
		customers.GET("/:id", h.CustomerHandler.GetCustomer)
		customers.PATCH("/:id", h.CustomerHandler.UpdateCustomer)
		customers.DELETE("/:id", h.CustomerHandler.DeleteCustomer)

		customers.POST("/:id/tags", h.CustomerHandler.AddTag)
		customers.DELETE("/:id/tags", h.CustomerHandler.RemoveTag)
		customers.POST("/:id/alternative-contacts", h.CustomerHandler.AddAlternativeContact)

		customers.POST("/:id/merge", h.MergeHandler.Merge)
		customers.POST("/:id/sync", h.CustomerHandler.Resync)
		customers.GET("/:id/timeline", h.TimelineHandler.GetTimeline)
		customers.POST("/:id/cases", h.CustomerHandler.OpenCase)
	}

	// ==================== Cases ====================
	cases := api.Group("/cases")
	cases.Use(h.AuthMiddleware.Auth())
	{
		cases.POST("/:id/outcome", h.CustomerHandler.RecordCaseOutcome)
	}

	// ==================== Companies ====================
	companies := api.Group("/companies")
	companies.Use(h.AuthMiddleware.Auth())
	{
		companies.POST("/:id/sync", h.CompanyHandler.SyncCompany)
	}

	// ==================== Maintenance (admin) ====================
	maintenance := api.Group("/maintenance")
	maintenance.Use(h.AuthMiddleware.AdminOnly()...)
	{
		maintenance.POST("/conversations/migrate", h.MaintenanceHandler.MigrateConversations)
		maintenance.GET("/ws/stats", h.WSHandler.GetStats)
	}

	logger.Info("routes registered", zap.Int("count", len(r.Routes())))
}
