// internal/app/server.go
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"crm-service/internal/config"
	"crm-service/internal/db"
	"crm-service/internal/events"
	companyHandler "crm-service/internal/handlers/company"
	customerHandler "crm-service/internal/handlers/customer"
	identityHandler "crm-service/internal/handlers/identity"
	maintenanceHandler "crm-service/internal/handlers/maintenance"
	mergeHandler "crm-service/internal/handlers/merge"
	timelineHandler "crm-service/internal/handlers/timeline"
	wsHandler "crm-service/internal/handlers/websocket"
	"crm-service/internal/middleware"
	"crm-service/internal/pkg/jwt"
	"crm-service/internal/websocket"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Server struct {
	cfg     config.AppConfig
	engine  *gin.Engine
	http    *http.Server
	logger  *zap.Logger
	cleanup []func()
	cancel  context.CancelFunc
}

func NewServer(cfg config.AppConfig, logger *zap.Logger) *Server {
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	return &Server{
		cfg:    cfg,
		engine: engine,
		logger: logger,
		http: &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Start wires every dependency and serves until Shutdown. It returns
// http.ErrServerClosed after a clean shutdown.
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	if err := s.cfg.Validate(); err != nil {
		return err
	}

	// ----- Document store -----
	client, closeStore, err := OpenStore(ctx, s.cfg, s.logger)
	if err != nil {
		return err
	}
	s.cleanup = append(s.cleanup, closeStore)

	// ----- Redis -----
	var redisClient redis.UniversalClient
	if s.cfg.RedisAddr != "" {
		redisClient, err = db.NewRedis(ctx, db.ParseRedisAddrs(s.cfg.RedisAddr, s.cfg.RedisPass))
		if err != nil {
			return err
		}
		s.cleanup = append(s.cleanup, func() { redisClient.Close() })
		s.logger.Info("redis connected", zap.String("addr", s.cfg.RedisAddr))
	}

	// ----- JWT -----
	verifier, err := jwt.LoadVerifier(s.cfg.JWT)
	if err != nil {
		return fmt.Errorf("failed to load JWT verifier: %w", err)
	}

	// ----- WebSocket hub + events -----
	hub := websocket.NewHub(verifier, s.logger)
	go hub.Run(ctx)

	publisher := events.NewPublisher(redisClient, s.cfg.EventsChannel, hub, s.logger)
	go func() {
		if err := publisher.Relay(ctx); err != nil {
			s.logger.Error("event relay stopped", zap.Error(err))
		}
	}()

	// ----- Services -----
	engines, err := NewEngines(client, s.cfg, redisClient, publisher, s.logger)
	if err != nil {
		return err
	}

	// ----- Handlers -----
	handlers := &Handlers{
		IdentityHandler:    identityHandler.NewIdentityHandler(engines.Resolver, engines.Customers),
		CustomerHandler:    customerHandler.NewCustomerHandler(engines.Customers),
		MergeHandler:       mergeHandler.NewMergeHandler(engines.Merge),
		TimelineHandler:    timelineHandler.NewTimelineHandler(engines.Timeline),
		CompanyHandler:     companyHandler.NewCompanyHandler(engines.Sync),
		MaintenanceHandler: maintenanceHandler.NewMaintenanceHandler(engines.Migration, publisher, s.logger),
		WSHandler:          wsHandler.NewWebSocketHandler(hub, s.cfg.AllowedOrigins, s.logger),
		AuthMiddleware:     middleware.NewAuthMiddleware(verifier),
	}

	s.engine.Use(
		middleware.RecoveryMiddleware(s.logger),
		middleware.LoggingMiddleware(s.logger),
	)
	SetupRouter(s.engine, s.logger, handlers)

	s.logger.Info("server running",
		zap.String("addr", s.cfg.HTTPAddr),
		zap.String("store_backend", s.cfg.StoreBackend),
	)
	return s.http.ListenAndServe()
}

// Shutdown drains HTTP, stops the hub and relay, then releases the store and
// Redis.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.http.Shutdown(ctx)
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	if s.cancel != nil {
		s.cancel()
	}
	for i := len(s.cleanup) - 1; i >= 0; i-- {
		s.cleanup[i]()
	}
	return err
}
