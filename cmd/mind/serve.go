package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nidhogg/nuka-mind/internal/api"
	"github.com/nidhogg/nuka-mind/internal/orchestrator"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP service",
	Long: `Run the HTTP service. Minds are restored from PostgreSQL when it is
configured, then any profile in the profiles directory that is not yet
registered is created.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "listen port (overrides server.port)")
	_ = viper.BindPFlag("port", serveCmd.Flags().Lookup("port"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, cfgPath, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := newLogger(cfg.Server.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Info("Starting Nuka Mind...", zap.String("version", version))
	if cfgPath == "" {
		logger.Warn("no config file found, using defaults")
	} else {
		logger.Info("Config loaded", zap.String("path", cfgPath))
	}

	ctx := context.Background()
	a, err := newApp(ctx, cfg, logger, true)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	if _, err := a.registry.Restore(ctx); err != nil {
		logger.Warn("failed to restore minds", zap.Error(err))
	}
	if n := a.loadProfiles(ctx, cfg.ProfilesDir); n > 0 {
		logger.Info("Created minds from profiles", zap.Int("count", n))
	}

	// Initialize orchestrator
	scheduler := orchestrator.NewScheduler(a.registry, cfg.Orchestrator.PoolSize, logger)
	sweeper := orchestrator.NewSweeper(a.registry, cfg.Orchestrator.SweepInterval.Duration, cfg.Orchestrator.SweepThreshold, logger)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	// Build HTTP handler
	opts := []api.Option{api.WithProviders(a.router), api.WithSweeper(sweeper)}
	if a.pg != nil {
		opts = append(opts, api.WithEvents(a.pg))
	}
	handler := api.NewHandler(a.registry, scheduler, logger, opts...)

	port := viper.GetInt("port")
	if port == 0 {
		port = cfg.Server.Port
	}
	if port == 0 {
		port = 8080
	}
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: handler.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Nuka Mind listening", zap.Int("port", port))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info("Shutting down Nuka Mind...")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
