package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/excalidraw-organizer/backend/internal/catalog"
	"github.com/excalidraw-organizer/backend/internal/checkpoint"
	"github.com/excalidraw-organizer/backend/internal/config"
	"github.com/excalidraw-organizer/backend/internal/database"
	"github.com/excalidraw-organizer/backend/internal/logging"
	"github.com/excalidraw-organizer/backend/internal/server"
	"github.com/excalidraw-organizer/backend/internal/session"
	"github.com/excalidraw-organizer/backend/internal/workspace"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "organizer-api",
		Short: "Canvas organizer persistence service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().Duration("checkpoint-interval", defaults.GetDuration("checkpoint.interval"), "Interval between checkpoint ticks")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "checkpoint.interval", "checkpoint-interval")
	bindFlag(cmd, "log.level", "log-level")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	accessor, err := workspace.NewAccessor(workspace.AccessorConfig{
		Storage:    workspace.NewMemoryStorage(),
		IDProvider: catalog.NewUUIDProvider(),
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	catalogService, err := catalog.NewService(catalog.ServiceConfig{
		Database:   db,
		Workspace:  accessor,
		Clock:      time.Now,
		IDProvider: catalog.NewUUIDProvider(),
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	if err := catalogService.Bootstrap(ctx); err != nil {
		return err
	}

	saver, err := checkpoint.NewSaver(checkpoint.SaverConfig{
		Catalog:   catalogService,
		Workspace: accessor,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	scheduler, err := checkpoint.NewScheduler(checkpoint.SchedulerConfig{
		Saver:     saver,
		Workspace: accessor,
		Interval:  appConfig.CheckpointInterval,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	switcher, err := session.NewSwitcher(session.SwitcherConfig{
		Catalog:   catalogService,
		Workspace: accessor,
		Saver:     saver,
		Reloader:  session.StorageReloader{Workspace: accessor},
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		CatalogService: catalogService,
		Switcher:       switcher,
		Workspace:      accessor,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go scheduler.Run(signalCtx)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
