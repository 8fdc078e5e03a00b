// Command migrate applies schema migrations to the control namespace and to
// every active tenant namespace, then prints a per-tenant summary. It exits
// non-zero when any tenant failed, so deployment automation can gate on it.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/agentgrid/tenancy-plane/internal/config"
	"github.com/agentgrid/tenancy-plane/internal/database"
	"github.com/agentgrid/tenancy-plane/internal/tenancy"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	db, err := database.NewPool(ctx, cfg.Database)
	if err != nil {
		slog.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	sessions := database.NewSessionFactory(db, cfg.Database.ControlSchema)
	registry := tenancy.NewRegistry(sessions, nil)

	controlMigrator := database.NewMigrator(os.DirFS(filepath.Join(cfg.Database.MigrationsPath, "control")))
	tenantMigrator := database.NewMigrator(os.DirFS(filepath.Join(cfg.Database.MigrationsPath, "tenant")))

	orchestrator := tenancy.NewOrchestrator(
		registry,
		cfg.Database.ControlSchema,
		tenancy.NewPoolDDL(db, sessions, controlMigrator),
		tenancy.NewPoolDDL(db, sessions, tenantMigrator),
	)

	summary, err := orchestrator.MigrateAll(ctx)
	if err != nil {
		slog.Error("migration run aborted", "error", err)
		os.Exit(1)
	}

	fmt.Printf("migration run %s\n", summary.RunID)
	if sess, err := sessions.AcquireNamespace(ctx, cfg.Database.ControlSchema); err == nil {
		if version, err := controlMigrator.CurrentVersion(ctx, sess); err == nil && version != "" {
			fmt.Printf("control schema at version %s\n", version)
		}
		sess.Release()
	}
	fmt.Printf("succeeded (%d):\n", len(summary.Succeeded))
	for _, slug := range summary.Succeeded {
		fmt.Printf("  %s\n", slug)
	}
	fmt.Printf("failed (%d):\n", len(summary.Failed))
	for _, f := range summary.Failed {
		fmt.Printf("  %s: %v\n", f.Tenant, f.Err)
	}

	if len(summary.Failed) > 0 {
		os.Exit(1)
	}
}
