package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"storm-truck-count/internal/adapters/repositories"
	"storm-truck-count/internal/config"
	"storm-truck-count/internal/platform/db"
	"storm-truck-count/internal/platform/obs"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath string
	envFile    string
	seedPath   string
)

var rootCmd = &cobra.Command{
	Use:   "dbtool",
	Short: "Create and seed the ACTIVE_TRUCKS table for local runs",
	Long: `Creates the ACTIVE_TRUCKS table in the database named by the [DATABASE]
section of the credentials file and replaces its rows with the trucks listed
in a JSON seed file. Use it against SQLite or a scratch Postgres, never CHART.`,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "doit_STORM_credentials.toml", "Path to the credentials file (TOML)")
	rootCmd.Flags().StringVar(&envFile, "env-file", "", "Dotenv file with STORM_<SECTION>_<KEY> overrides")
	rootCmd.Flags().StringVar(&seedPath, "seed", "data/seeds/active_trucks.json", "JSON file of active trucks")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	if err := config.LoadEnv(envFile, envFile != ""); err != nil {
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := obs.NewLogger(cfg.Logging.Level, cfg.Logging.Format, false)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	dsn, err := cfg.Database.ConnString()
	if err != nil {
		return err
	}

	ctx := context.Background()
	conn, err := db.Open(ctx, cfg.Database.Driver, dsn)
	if err != nil {
		return err
	}
	defer conn.Close()

	return initAndSeed(ctx, logger, conn, cfg.Database.Driver, seedPath)
}

func initAndSeed(ctx context.Context, logger *zap.Logger, conn *sql.DB, driver, seedPath string) error {
	logger.Info("Initializing database schema...")
	if err := repositories.InitSchema(ctx, conn); err != nil {
		return fmt.Errorf("init and seed: %w", err)
	}
	logger.Info("Schema ready.")

	logger.Info("Seeding database...", zap.String("seed", seedPath))
	n, err := repositories.SeedFromJSON(ctx, conn, driver, seedPath)
	if err != nil {
		return fmt.Errorf("init and seed: %w", err)
	}
	logger.Info("Seeding complete.", zap.Int("trucks", n))

	return nil
}
