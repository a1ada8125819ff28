package main

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"graph-persistence/internal/admin"
	"graph-persistence/internal/api"
	"graph-persistence/internal/auth"
	"graph-persistence/internal/instrument"
	"graph-persistence/internal/service"
	"graph-persistence/internal/store"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := buildRuntime(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.registry.Initialize(ctx); err != nil {
				return fmt.Errorf("initialize entity registry: %w", err)
			}

			svc := service.New(rt.registry, logger,
				service.WithIDAttribute(cfg.Schema.IDAttribute),
				service.WithMaxDepth(cfg.Schema.MaxDepth))

			events := instrument.NewEventBuffer(instrument.LogSink{Logger: logger}, 100, 2*time.Second)
			defer events.Stop()

			app := api.NewApp(logger, instrument.NewInstrumenter(events))
			app.Use(recover.New())

			var guards []fiber.Handler
			if cfg.Auth.Enabled() {
				opts := auth.Options{JWTSecret: cfg.Auth.JWTSecret, APIKeyHash: cfg.Auth.APIKeyHash}
				app.Post("/auth/token", auth.TokenHandler(opts))
				guards = append(guards, auth.Middleware(opts))
			} else {
				logger.Warn("auth is not configured; the API is open")
			}
			admin.RegisterAdminRoutes(app, admin.NewHandler(rt.store, rt, logger), guards...)
			api.RegisterRoutes(app, api.NewHandler(svc, rt.registry, rt.setters, logger), guards...)

			errc := make(chan error, 1)
			go func() {
				addr := fmt.Sprintf(":%d", cfg.Server.Port)
				logger.Info("starting server", zap.String("addr", addr))
				errc <- app.Listen(addr)
			}()

			select {
			case err := <-errc:
				return err
			case <-ctx.Done():
				logger.Info("shutting down")
				return app.ShutdownWithTimeout(10 * time.Second)
			}
		},
	}
}

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate descriptor and handle registration against the entity catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := buildRuntime(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.registry.Initialize(ctx); err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "FAIL  %v\n", err)
				return err
			}
			for _, t := range rt.registry.EntityTypes() {
				desc, err := rt.registry.Descriptor(t)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "OK    %-24s storage=%s fields=%d\n", t, desc.Storage, len(desc.Paths()))
			}
			return nil
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or extend tables for SQL-backed descriptors and record them in the catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := buildRuntime(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := store.NewMigrator(rt.store, logger).MigrateAll(ctx, rt.descriptors); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrated %d entity types\n", len(rt.descriptors))
			return nil
		},
	}
}

func hashKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-key <api-key>",
		Short: "Print the bcrypt hash to use as auth.api_key_hash",
		Args:  cobra.ExactArgs(1),
		// No config needed.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := auth.HashAPIKey(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}
