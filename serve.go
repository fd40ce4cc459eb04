package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"bahr/analytics/config"
	"bahr/analytics/database"
	"bahr/analytics/handlers"
	"bahr/analytics/store"
	"bahr/analytics/utils"
)

func newServeCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the telemetry collector",
		Long:  "Accept forwarded analytics events into ClickHouse and serve usage statistics to operators.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cfg)
		},
	}
}

func runServe(ctx context.Context, cfg *config.Config) error {
	if cfg.GinMode == gin.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}

	chClient, err := database.NewClickHouseDB(ctx, database.ClickHouseOptions{
		Addr:     cfg.ClickHouseAddr(),
		Database: cfg.ClickHouseDBName,
		Username: cfg.ClickHouseUsername,
		Password: cfg.ClickHousePassword,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize ClickHouse: %w", err)
	}
	defer chClient.Close()

	analyticsStore := store.NewAnalyticsStore(chClient)
	if err := analyticsStore.EnsureSchema(ctx); err != nil {
		return err
	}

	routerCfg := handlers.RouterConfig{
		Analytics: handlers.NewAnalyticsHandlers(analyticsStore),
		APIKey:    cfg.AuthDefault,
		FEOrigin:  cfg.FEOrigin,
	}

	// Operator accounts need both Postgres and a signing secret; without them
	// the stats endpoints are only reachable with AUTH_DEFAULT.
	if cfg.JWTSecret != "" {
		pgClient, err := database.NewPostgresDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
		}
		defer pgClient.Close()

		userStore := store.NewUserStore(pgClient.DB)
		if err := userStore.EnsureSchema(ctx); err != nil {
			return err
		}
		tokens, err := utils.NewTokenIssuer(cfg.JWTSecret, time.Hour)
		if err != nil {
			return err
		}
		auth := handlers.NewAuthHandlers(userStore, tokens)
		auth.SecureCookie = cfg.GinMode == gin.ReleaseMode
		routerCfg.Auth = auth
		routerCfg.Tokens = tokens
	} else {
		log.Println("JWT_SECRET_KEY not set; operator login disabled.")
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handlers.NewRouter(routerCfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Printf("Collector starting on http://localhost:%d", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("collector failed to start: %w", err)
		}
	case <-quit:
	}
	log.Println("Shutting down collector...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("collector forced to shutdown: %w", err)
	}

	log.Println("Collector exiting.")
	return nil
}
