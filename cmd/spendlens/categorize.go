package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/Veraticus/spendlens/internal/cli"
	"github.com/Veraticus/spendlens/internal/common"
	"github.com/Veraticus/spendlens/internal/model"
	"github.com/Veraticus/spendlens/internal/service"
)

const categorizeBatchSize = 100

func categorizeCmd(state *rootState) *cobra.Command {
	var (
		fromDate          string
		toDate            string
		onlyUncategorized bool
		dryRun            bool
	)

	cmd := &cobra.Command{
		Use:   "categorize",
		Short: "Re-run merchant rules over stored transactions",
		Long: `Apply the current merchant rules to transactions already in the database.

Examples:
  # Categorize everything
  spendlens categorize

  # Only transactions from 2024 that have no category yet
  spendlens categorize --from 2024-01-01 --to 2024-12-31 --only-uncategorized

  # Preview the changes
  spendlens categorize --dry-run`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			start, end, err := parseDateRange(fromDate, toDate)
			if err != nil {
				return err
			}

			handler := cli.NewInterruptHandler(cmd.ErrOrStderr())
			ctx, stop := handler.HandleInterrupts(cmd.Context(), "Categorization", "spendlens categorize --only-uncategorized")
			defer stop()

			a, err := state.openApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			txns, err := a.store.GetTransactions(ctx, service.TransactionFilter{
				UserID: a.userID,
				Start:  start,
				End:    end,
			})
			if err != nil {
				return fmt.Errorf("failed to load transactions: %w", err)
			}

			if onlyUncategorized {
				pending := txns[:0]
				for _, txn := range txns {
					if txn.TransactionCategory == "" {
						pending = append(pending, txn)
					}
				}
				txns = pending
			}

			out := cmd.OutOrStdout()
			if len(txns) == 0 {
				fmt.Fprintln(out, cli.FormatInfo("No transactions to categorize"))
				return nil
			}

			progress := cli.NewProgress(cmd.ErrOrStderr(), len(txns), "Categorizing transactions...")
			changed := make(map[string]int)
			var updated int

			for i := 0; i < len(txns); i += categorizeBatchSize {
				if err := ctx.Err(); err != nil {
					return err
				}
				chunk := txns[i:min(i+categorizeBatchSize, len(txns))]

				categorized, err := a.classifier.CategorizeBatch(ctx, a.userID, chunk)
				if err != nil {
					return fmt.Errorf("failed to categorize transactions: %w", err)
				}

				changes := categoryChanges(chunk, categorized)
				for _, category := range changes {
					changed[category]++
				}
				if !dryRun && len(changes) > 0 {
					if err := a.store.UpdateTransactionCategories(ctx, changes); err != nil {
						return common.StorageError("failed to save categories", err)
					}
				}
				updated += len(changes)
				progress.Add(len(chunk))
			}
			progress.Finish()

			verb := "Updated"
			if dryRun {
				verb = "Would update"
			}
			fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("%s %d of %d transactions", verb, updated, len(txns))))
			for category, n := range changed {
				fmt.Fprintf(out, "  %-16s %d\n", category, n)
			}

			slog.Info("Categorization finished", "checked", len(txns), "updated", updated, "dry_run", dryRun)
			return nil
		},
	}

	cmd.Flags().StringVar(&fromDate, "from", "", "Start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&toDate, "to", "", "End date (YYYY-MM-DD, inclusive)")
	cmd.Flags().BoolVar(&onlyUncategorized, "only-uncategorized", false, "Skip transactions that already have a category")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would change without saving")

	return cmd
}

func recategorizeCmd(state *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "recategorize <transaction-id> <category>",
		Short: "Move a transaction's merchant to another category",
		Long: `Override the category of a transaction. The override is remembered for
the merchant, so every past and future transaction from it follows.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := state.openApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			ctx = common.WithUserID(ctx, a.userID)
			n, err := a.classifier.UpdateTransactionCategory(ctx, args[0], args[1])
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Moved %d transactions to %s", n, args[1])))
			return nil
		},
	}
}

// categoryChanges returns the new category of every transaction whose
// category differs after categorization.
func categoryChanges(before, after []model.Transaction) map[string]string {
	changes := make(map[string]string)
	for i := range after {
		if i < len(before) && before[i].TransactionCategory != after[i].TransactionCategory {
			changes[after[i].ID] = after[i].TransactionCategory
		}
	}
	return changes
}

// parseDateRange parses optional YYYY-MM-DD bounds. The end date is inclusive.
func parseDateRange(fromDate, toDate string) (start, end *time.Time, err error) {
	if fromDate != "" {
		parsed, err := time.Parse(time.DateOnly, fromDate)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid from date format (use YYYY-MM-DD): %w", err)
		}
		start = &parsed
	}
	if toDate != "" {
		parsed, err := time.Parse(time.DateOnly, toDate)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid to date format (use YYYY-MM-DD): %w", err)
		}
		// Exclusive upper bound at the next midnight
		next := parsed.AddDate(0, 0, 1)
		end = &next
	}

	// Ensure from date is before to date
	if start != nil && end != nil && !start.Before(*end) {
		return nil, nil, fmt.Errorf("from date must be before to date")
	}
	return start, end, nil
}
