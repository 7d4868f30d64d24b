package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Veraticus/spendlens/internal/challenge"
	"github.com/Veraticus/spendlens/internal/classification"
	"github.com/Veraticus/spendlens/internal/cli"
	"github.com/Veraticus/spendlens/internal/storage"
)

func migrateCmd(state *rootState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Initialize or update the database schema to the latest version.

This command also seeds the built-in merchant rules and challenge catalog.
Seeding is idempotent: existing rules are left alone and challenge
definitions are updated in place.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			status, _ := cmd.Flags().GetBool("status")
			if status {
				return runMigrateStatus(cmd, state)
			}
			return runMigrate(cmd, state)
		},
	}

	cmd.Flags().Bool("status", false, "Show current migration status without applying changes")

	return cmd
}

func runMigrateStatus(cmd *cobra.Command, state *rootState) error {
	ctx := cmd.Context()
	store, err := storage.Open(ctx, state.cfg.StorageConfig())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = store.Close() }()

	out := cmd.OutOrStdout()
	current, err := store.SchemaVersion(ctx)
	if err != nil {
		slog.Debug("No schema version found", "error", err)
		current = 0
	}

	fmt.Fprintln(out, cli.FormatTitle("Database Migration Status"))
	fmt.Fprintf(out, "Driver:          %s\n", store.Driver())
	fmt.Fprintf(out, "Current version: %d\n", current)
	fmt.Fprintf(out, "Latest version:  %d\n", storage.ExpectedSchemaVersion)
	if current < storage.ExpectedSchemaVersion {
		fmt.Fprintln(out, cli.FormatWarning("Migrations pending. Run: spendlens migrate"))
	} else {
		fmt.Fprintln(out, cli.FormatSuccess("Schema is up to date"))
	}
	return nil
}

func runMigrate(cmd *cobra.Command, state *rootState) error {
	ctx := cmd.Context()

	slog.Info("Running database migrations", "driver", state.cfg.Database.Driver)

	a, err := state.openApp(ctx)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	defer func() { _ = a.Close() }()

	seeded, err := a.store.SeedSystemRules(ctx, classification.DefaultRules())
	if err != nil {
		return fmt.Errorf("failed to seed system rules: %w", err)
	}

	catalog := challenge.DefaultCatalog()
	for i := range catalog {
		if err := a.store.SaveChallenge(ctx, &catalog[i]); err != nil {
			return fmt.Errorf("failed to seed challenge %s: %w", catalog[i].ID, err)
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, cli.FormatSuccess("Database migrations completed successfully!"))
	fmt.Fprintf(out, "Seeded %d system rules and %d challenges\n", seeded, len(catalog))
	return nil
}
