package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"storm-truck-count/internal/adapters/arcgis"
	"storm-truck-count/internal/adapters/repositories"
	"storm-truck-count/internal/config"
	"storm-truck-count/internal/domain"
	"storm-truck-count/internal/platform/obs"
	"storm-truck-count/internal/services"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath string
	envFile    string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "truckcount",
	Short: "Publish the active snow-plow truck count to ArcGIS Online",
	Long: `Queries the CHART database for the number of active snow-plow trucks and
writes it into the TRUCK_COUNT attribute of the single record in a hosted
feature layer/table on ArcGIS Online. The STORM web map widget reads that record.

Runs once and exits; schedule it externally.`,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "doit_STORM_credentials.toml", "Path to the credentials file (TOML)")
	rootCmd.Flags().StringVar(&envFile, "env-file", "", "Dotenv file with STORM_<SECTION>_<KEY> overrides (default .env if present)")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log every remote request and timing line")
}

// main is the composition root.
// It wires the SQL count source and the ArcGIS client behind ports and runs the job once.
func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	start := time.Now()

	if err := config.LoadEnv(envFile, envFile != ""); err != nil {
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := obs.NewLogger(cfg.Logging.Level, cfg.Logging.Format, verbose)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	zap.ReplaceGlobals(logger)

	runID := uuid.NewString()
	reporter := obs.NewReporter(logger.With(zap.String("run_id", runID)), start)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = obs.WithRunID(ctx, runID)

	logger.Info("starting truck count sync",
		zap.String("run_id", runID),
		zap.String("config", configPath),
		zap.String("driver", cfg.Database.Driver),
		zap.String("root_url", cfg.AGOL.RootURL),
		zap.String("locator", string(cfg.AGOL.Target.Strategy)),
	)

	if err := syncTruckCount(ctx, cfg, logger, reporter); err != nil {
		reporter.Fail(domain.Kind(err), err)
		return err
	}

	return nil
}

func syncTruckCount(ctx context.Context, cfg *config.Config, logger *zap.Logger, reporter *obs.Reporter) error {
	dsn, err := cfg.Database.ConnString()
	if err != nil {
		return err
	}
	source := repositories.NewSQLTruckCountRepository(cfg.Database.Driver, dsn, cfg.Database.TruckCountSQL)

	client, err := arcgis.NewClient(arcgis.Options{
		RootURL:      cfg.AGOL.RootURL,
		Username:     cfg.AGOL.User,
		Password:     cfg.AGOL.Password,
		Timeout:      cfg.AGOL.Timeout,
		ReadAttempts: cfg.AGOL.ReadAttempts,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrConfig, err)
	}

	req := services.SyncTruckCountRequest{
		Target:    cfg.AGOL.Target,
		FieldName: cfg.AGOL.FieldName,
	}

	_, err = services.SyncTruckCount(ctx, req, source, client, reporter)
	return err
}
