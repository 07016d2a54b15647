package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/storeplane/storeplane/pkg/api"
	"github.com/storeplane/storeplane/pkg/audit"
	"github.com/storeplane/storeplane/pkg/config"
	"github.com/storeplane/storeplane/pkg/lifecycle"
	"github.com/storeplane/storeplane/pkg/log"
	"github.com/storeplane/storeplane/pkg/maintenance"
	"github.com/storeplane/storeplane/pkg/orchestrator"
	"github.com/storeplane/storeplane/pkg/quota"
	"github.com/storeplane/storeplane/pkg/storage"
)

const shutdownTimeout = 30 * time.Second

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the provisioning control plane",
	Long: `Run the provisioning control plane.

The server is stateless: all state lives in PostgreSQL, so any number of
replicas may run against the same database.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		console, _ := cmd.Flags().GetBool("console")
		return runServer(configPath, console)
	},
}

func init() {
	serverCmd.Flags().String("config", "", "Path to YAML config file (optional)")
	serverCmd.Flags().Bool("console", false, "Human-readable log output instead of JSON")
}

func runServer(configPath string, console bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log.Init(log.Config{
		Level:      log.Level(cfg.LogLevel),
		JSONOutput: cfg.LogJSON && !console,
		Output:     os.Stdout,
	})
	logger := log.WithComponent("server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	store, err := storage.Open(ctx, cfg.DSN())
	cancel()
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer store.Close()

	ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
	err = store.InitSchema(ctx)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	logger.Info().Str("host", cfg.DBHost).Str("db", cfg.DBName).Msg("database ready")

	recorder := audit.NewRecorder(store, 256)

	orch := orchestrator.NewCommandClient(
		orchestrator.NewExecRunner(cfg.CommandTimeout),
		cfg.HelmBin, cfg.KubectlBin,
	)

	gate := quota.NewGate(quota.Limits{
		GlobalActive:      cfg.MaxStoresGlobal,
		TenantActive:      cfg.MaxStoresPerTenant,
		TenantHourly:      cfg.MaxStoresPerHour,
		IdempotencyWindow: cfg.IdempotencyWindow,
	})

	engine := lifecycle.NewEngine(store, orch, gate, lifecycle.Config{
		ChartPath:              cfg.ChartPath,
		DNSSuffix:              cfg.DNSSuffix,
		ProvisioningTimeout:    cfg.ProvisioningTimeout,
		ReadinessCheckInterval: cfg.ReadinessCheckInterval,
		MaxReadinessChecks:     cfg.MaxReadinessChecks,
	})

	janitor := maintenance.NewJanitor(store, maintenance.Config{
		Interval:            cfg.JanitorInterval,
		IdempotencyWindow:   cfg.IdempotencyWindow,
		ProvisioningTimeout: cfg.ProvisioningTimeout,
	})
	janitor.Start()

	server := api.NewServer(engine, store, recorder, api.Config{
		Addr:         cfg.ListenAddr,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("API server error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("HTTP shutdown incomplete")
	}

	janitor.Stop()
	engine.Wait()
	recorder.Close()

	logger.Info().Msg("shutdown complete")
	return nil
}
