package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Veraticus/spendlens/internal/cli"
	"github.com/Veraticus/spendlens/internal/ofx"
)

func importCmd(state *rootState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import [files...]",
		Short: "Import transactions from OFX/QFX files",
		Long: `Import transactions from OFX or QFX files exported from your bank. Each
account in a file becomes a connection; re-importing a file is safe.

Examples:
  # Import a single statement
  spendlens import ~/Downloads/statement_jan_2024.ofx

  # Import every statement in a directory
  spendlens import ~/Downloads/*.qfx`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, state, args)
		},
	}

	cmd.Flags().BoolP("dry-run", "d", false, "Preview import without saving")

	return cmd
}

func runImport(cmd *cobra.Command, state *rootState, args []string) error {
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	files, err := expandFiles(args)
	if err != nil {
		return err
	}

	handler := cli.NewInterruptHandler(cmd.ErrOrStderr())
	ctx, stop := handler.HandleInterrupts(cmd.Context(), "Import", "spendlens import")
	defer stop()

	a, err := state.openApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	parser := ofx.NewParser()
	out := cmd.OutOrStdout()
	var imported int

	for _, path := range files {
		statements, err := parseStatementFile(cmd, parser, path)
		if err != nil {
			return err
		}

		for _, stmt := range statements {
			from, to := stmt.Range()
			if from.IsZero() {
				slog.Warn("No transactions in statement", "file", filepath.Base(path), "account", stmt.AccountID)
				continue
			}

			if dryRun {
				fmt.Fprintf(out, "%s: account %s, %d transactions from %s to %s\n",
					filepath.Base(path), stmt.AccountID, len(stmt.Transactions),
					from.Format("2006-01-02"), to.Format("2006-01-02"))
				continue
			}

			conn, err := a.connection(ctx, ofx.ProviderName, stmt.AccountID, fmt.Sprintf("%s %s", stmt.AccountType, stmt.AccountID))
			if err != nil {
				return fmt.Errorf("failed to register account %s: %w", stmt.AccountID, err)
			}

			result, err := a.syncService(ofx.NewStatementFetcher(stmt)).Sync(ctx, a.userID, conn.ID, from, to)
			if result != nil {
				imported += result.Transactions
				fmt.Fprintln(out, cli.RenderSyncResult(result))
			}
			if err != nil {
				return fmt.Errorf("failed to import %s: %w", filepath.Base(path), err)
			}
		}
	}

	if !dryRun {
		fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Imported %d transactions from %d files", imported, len(files))))
	}
	return nil
}

func parseStatementFile(cmd *cobra.Command, parser *ofx.Parser, path string) ([]ofx.Statement, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	statements, err := parser.ParseFile(cmd.Context(), f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	return statements, nil
}

// expandFiles resolves glob patterns into existing files.
func expandFiles(patterns []string) ([]string, error) {
	var files []string
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %s: %w", pattern, err)
		}
		if len(matches) == 0 {
			// If no glob matches, check if it's a direct file
			if _, err := os.Stat(pattern); err == nil {
				files = append(files, pattern)
			} else {
				slog.Warn("No files found matching pattern", "pattern", pattern)
			}
			continue
		}
		files = append(files, matches...)
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("no files found to import")
	}
	return files, nil
}
