package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"valuation/server/config"
	"valuation/server/internal/api"
	"valuation/server/internal/database"
	"valuation/server/internal/estimation"
	"valuation/server/internal/geocoding"
	"valuation/server/internal/notification"
	"valuation/server/internal/processor"
	"valuation/server/internal/scheduler"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var envFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "valuation",
		Short: "Instant property valuation service",
		Long:  `Estimates residential property prices from comparable historical sales`,
		// Running the binary without a subcommand starts the server
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), false)
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "optional env file loaded before the environment")

	rootCmd.AddCommand(createServeCmd())
	rootCmd.AddCommand(createImportCmd())
	rootCmd.AddCommand(createGeocodeCmd())
	rootCmd.AddCommand(createEstimateCmd())
	rootCmd.AddCommand(createMigrateCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setup() (*config.Config, *logrus.Logger, error) {
	cfg, err := config.LoadConfig(envFile)
	if err != nil {
		return nil, nil, err
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	logger.SetLevel(level)

	return cfg, logger, nil
}

func openDatabase(cfg *config.Config, logger *logrus.Logger) (*database.Database, error) {
	if cfg.Database.Driver == "sqlite" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.DSN), 0o755); err != nil {
			return nil, err
		}
	}
	logger.WithField("driver", cfg.Database.Driver).Info("Opening database")

	db, err := database.Open(cfg.Database.Driver, cfg.Database.DSN, logger)
	if err != nil {
		return nil, err
	}
	if err := db.RunMigrations(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func newGeocoder(cfg *config.Config, logger *logrus.Logger) (geocoding.Geocoder, error) {
	opts := geocoding.Options{
		BaseURL:   cfg.Geocoder.BaseURL,
		UserAgent: cfg.Geocoder.UserAgent,
		Timeout:   cfg.Geocoder.Timeout,

		RatePerSecond: cfg.Geocoder.RatePerSecond,
	}
	if region := config.GetRegionByName(cfg.Estimation.Region); region != nil {
		opts.Focus = region.Center
	}
	return geocoding.New(cfg.Geocoder.Provider, opts, logger)
}

func newEngine(cfg *config.Config, geocoder geocoding.Geocoder, db *database.Database, logger *logrus.Logger) *estimation.Engine {
	return estimation.NewEngine(geocoder, db, config.GetRegionByName(cfg.Estimation.Region), estimation.Options{
		MinComparables: cfg.Estimation.MinComparables,
		MaxComparables: cfg.Estimation.MaxComparables,
		GeocodeTimeout: cfg.Geocoder.Timeout,
		StoreTimeout:   cfg.Estimation.StoreTimeout,
	}, logger)
}

func createServeCmd() *cobra.Command {
	var geocodeMissing bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), geocodeMissing)
		},
	}
	cmd.Flags().BoolVar(&geocodeMissing, "geocode-missing", false, "geocode stored sales without coordinates once at startup")
	return cmd
}

// maintenanceJobs lists the background jobs of the server
func maintenanceJobs(cfg *config.Config, db *database.Database, geocoder geocoding.Geocoder, atStartup bool, logger *logrus.Logger) []scheduler.Job {
	if cfg.Maintenance.GeocodeInterval <= 0 && !atStartup {
		return nil
	}
	return []scheduler.Job{{
		Name:         "geocode_missing_sales",
		Interval:     cfg.Maintenance.GeocodeInterval,
		RunAtStartup: atStartup,
		Run: func(ctx context.Context) error {
			report, err := db.UpdateMissingCoordinates(ctx, geocoder, cfg.Maintenance.GeocodeBatchSize)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			}
			logger.WithField("report", report).Info("Geocoding pass finished")
			return nil
		},
	}}
}

func runServe(ctx context.Context, geocodeMissing bool) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	db, err := openDatabase(cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	geocoder, err := newGeocoder(cfg, logger)
	if err != nil {
		return err
	}

	jobs := scheduler.NewScheduler(logger, maintenanceJobs(cfg, db, geocoder, geocodeMissing, logger)...)
	jobs.Start(ctx)
	defer jobs.Stop()

	notifier, err := notification.FromConfig(ctx, cfg, logger)
	if err != nil {
		return err
	}
	dispatcher := notification.NewDispatcher(notifier, cfg.Notification.QueueSize, logger)

	handler := api.NewHandler(newEngine(cfg, geocoder, db, logger), geocoder, dispatcher, api.Options{
		NotifyOnEstimate: cfg.Notification.NotifyOnEstimate,
		SuggestTimeout:   cfg.Geocoder.Timeout,
	}, logger)

	gin.SetMode(gin.ReleaseMode)
	server := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: api.NewRouter(handler, logger),
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Infof("Starting server on port %s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")
	jobs.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server shutdown failed")
	}
	if err := dispatcher.Close(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Pending notifications were not sent")
	}
	return nil
}

func createImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <csv-file>...",
		Short: "Import historical sales from DVF CSV files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			db, err := openDatabase(cfg, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			importer := processor.NewBatchImporter(db, cfg, logger)
			var total processor.ImportReport
			for _, path := range args {
				report, err := importer.ImportFile(cmd.Context(), path)
				if err != nil {
					return err
				}
				total.Read += report.Read
				total.Imported += report.Imported
				total.Skipped += report.Skipped
				total.Merged += report.Merged
				total.FailedBatches += report.FailedBatches
			}
			return printJSON(cmd, total)
		},
	}
}

func createGeocodeCmd() *cobra.Command {
	var batchSize int
	cmd := &cobra.Command{
		Use:   "geocode",
		Short: "Fill in coordinates of stored sales",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			db, err := openDatabase(cfg, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			geocoder, err := newGeocoder(cfg, logger)
			if err != nil {
				return err
			}
			report, err := db.UpdateMissingCoordinates(cmd.Context(), geocoder, batchSize)
			if err != nil {
				return err
			}
			return printJSON(cmd, report)
		},
	}
	cmd.Flags().IntVar(&batchSize, "batch-size", 10, "sales updated per transaction")
	return cmd
}

func createEstimateCmd() *cobra.Command {
	var req estimation.Request
	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Estimate a single property and print the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			query, err := req.Query()
			if err != nil {
				return err
			}

			db, err := openDatabase(cfg, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			geocoder, err := newGeocoder(cfg, logger)
			if err != nil {
				return err
			}
			result, err := newEngine(cfg, geocoder, db, logger).Estimate(cmd.Context(), query)
			if err != nil {
				return errors.New(estimation.PublicMessage(err))
			}
			return printJSON(cmd, result)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&req.Address, "address", "", "postal address of the property")
	flags.StringVar(&req.Type, "type", "apartment", "house or apartment")
	flags.Float64Var(&req.LivingArea, "area", 0, "living area in square metres")
	flags.IntVar(&req.Rooms, "rooms", 0, "number of rooms")
	flags.StringVar(&req.Condition, "condition", "", "condition label, e.g. \"Bon état\"")
	cmd.MarkFlagRequired("address")
	cmd.MarkFlagRequired("area")
	cmd.MarkFlagRequired("rooms")
	return cmd
}

func createMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			db, err := openDatabase(cfg, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			count, err := db.CountSales(cmd.Context())
			if err != nil {
				return err
			}
			logger.WithField("sales", count).Info("Database schema is up to date")
			return nil
		},
	}
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
