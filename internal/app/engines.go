// internal/app/engines.go
package app

import (
	"context"
	"fmt"

	"crm-service/internal/config"
	"crm-service/internal/domain/outcome"
	"crm-service/internal/repository/firestore"
	"crm-service/internal/repository/postgres"
	activitysvc "crm-service/internal/service/activity"
	"crm-service/internal/service/companysync"
	customersvc "crm-service/internal/service/customer"
	"crm-service/internal/service/identity"
	mergesvc "crm-service/internal/service/merge"
	"crm-service/internal/service/migration"
	timelinesvc "crm-service/internal/service/timeline"
	"crm-service/internal/store"
	"crm-service/internal/store/memory"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Engines is every service the HTTP server and crmctl share.
type Engines struct {
	Store      store.Client
	Resolver   *identity.Resolver
	Activities *activitysvc.ActivityService
	Sync       *companysync.SyncService
	Customers  *customersvc.CustomerService
	Merge      *mergesvc.MergeService
	Migration  *migration.MigrationService
	Timeline   *timelinesvc.TimelineService
}

// OpenStore connects the backend cfg.StoreBackend names. The returned func
// releases it.
func OpenStore(ctx context.Context, cfg config.AppConfig, logger *zap.Logger) (store.Client, func(), error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		db, err := postgres.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		if err := db.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to prepare schema: %w", err)
		}
		logger.Info("document store ready", zap.String("backend", cfg.StoreBackend))
		return postgres.NewDocumentStore(db), db.Close, nil

	case config.BackendFirestore:
		fs, err := firestore.NewDocumentStore(ctx, cfg.FirestoreProjectID)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open Firestore: %w", err)
		}
		logger.Info("document store ready",
			zap.String("backend", cfg.StoreBackend),
			zap.String("project_id", cfg.FirestoreProjectID),
		)
		return fs, func() {
			if err := fs.Close(); err != nil {
				logger.Warn("failed to close Firestore client", zap.Error(err))
			}
		}, nil

	case config.BackendMemory:
		logger.Warn("using in-memory document store; data is lost on exit")
		return memory.New(), func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// NewEngines wires the services in dependency order. redisClient may be nil,
// which disables the migration run lock.
func NewEngines(client store.Client, cfg config.AppConfig, redisClient redis.UniversalClient, reporter outcome.Reporter, logger *zap.Logger) (*Engines, error) {
	resolver := identity.NewResolver(client, cfg.ResolverScanLimit, logger)
	activities := activitysvc.NewActivityService(client, logger)

	syncService, err := companysync.NewSyncService(client, companysync.DefaultTables, activities, reporter, logger)
	if err != nil {
		return nil, fmt.Errorf("invalid company status tables: %w", err)
	}

	var locker migration.Locker
	if redisClient != nil {
		locker = migration.NewRedisLocker(redisClient)
	} else {
		logger.Warn("redis not configured; conversation migration runs without a lock")
	}

	return &Engines{
		Store:      client,
		Resolver:   resolver,
		Activities: activities,
		Sync:       syncService,
		Customers:  customersvc.NewCustomerService(client, resolver, activities, syncService, reporter, logger),
		Merge:      mergesvc.NewMergeService(client, activities, syncService, reporter, logger),
		Migration:  migration.NewMigrationService(client, activities, locker, cfg.MigrationLockTTL, reporter, logger),
		Timeline:   timelinesvc.NewTimelineService(client, activities, logger),
	}, nil
}

// NewLogger builds the production logger, or the development one when
// APP_ENV=development.
func NewLogger(cfg config.AppConfig) (*zap.Logger, error) {
	if cfg.IsDevelopment() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
