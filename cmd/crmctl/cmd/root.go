package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"crm-service/internal/app"
	"crm-service/internal/config"
	"crm-service/internal/db"
	"crm-service/internal/events"
	"crm-service/internal/pkg/actor"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	envFile      string
	outputFormat string
	actorID      string

	cfg    config.AppConfig
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "crmctl",
	Short: "Maintenance CLI for the CRM identity service",
	Long: `crmctl runs the customer identity engines directly against the document
store: conversation migration, customer merges, company sync retries and
contact resolution.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if envFile != "" {
			if err := godotenv.Load(envFile); err != nil {
				return fmt.Errorf("failed to load %s: %w", envFile, err)
			}
		} else {
			_ = godotenv.Load()
		}

		cfg = config.Load()
		if outputFormat != "text" && outputFormat != "json" {
			return fmt.Errorf("unsupported output format: %s", outputFormat)
		}

		var err error
		logger, err = app.NewLogger(cfg)
		if err != nil {
			return fmt.Errorf("failed to build logger: %w", err)
		}

		cmd.SetContext(actor.WithID(cmd.Context(), actorID))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "env file to load (default .env when present)")
	rootCmd.PersistentFlags().StringVar(&actorID, "actor", "crmctl", "actor id recorded on activities")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "text", "output format (text, json)")
}

// openEngines connects the configured store and Redis. Outcomes are published
// on the events channel so a running API relays them to admin clients.
func openEngines(ctx context.Context) (*app.Engines, func(), error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	client, closeStore, err := app.OpenStore(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	cleanup := []func(){closeStore}
	release := func() {
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
	}

	var redisClient redis.UniversalClient
	if cfg.RedisAddr != "" {
		redisClient, err = db.NewRedis(ctx, db.ParseRedisAddrs(cfg.RedisAddr, cfg.RedisPass))
		if err != nil {
			release()
			return nil, nil, err
		}
		cleanup = append(cleanup, func() { redisClient.Close() })
	}

	publisher := events.NewPublisher(redisClient, cfg.EventsChannel, nil, logger)
	engines, err := app.NewEngines(client, cfg, redisClient, publisher, logger)
	if err != nil {
		release()
		return nil, nil, err
	}
	return engines, release, nil
}

// printJSON writes v indented.
func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func isJSON() bool {
	return outputFormat == "json"
}
