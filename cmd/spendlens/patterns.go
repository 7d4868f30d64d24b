package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/Veraticus/spendlens/internal/cli"
	"github.com/Veraticus/spendlens/internal/common"
	"github.com/Veraticus/spendlens/internal/model"
	"github.com/Veraticus/spendlens/internal/service"
)

func patternsCmd(state *rootState) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "patterns",
		Aliases: []string{"pattern"},
		Short:   "Find recurring income, payments and seasonal spending",
		Long: `Analyze stored transactions for recurring income and payments, months
that run above or below your average, and payments scheduled for the future.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			months, _ := cmd.Flags().GetInt("months")
			if months <= 0 {
				return fmt.Errorf("months must be positive")
			}

			a, err := state.openApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			start := a.clock.Now().AddDate(0, -months, 0)
			txns, err := a.store.GetTransactions(ctx, service.TransactionFilter{
				UserID: a.userID,
				Start:  &start,
			})
			if err != nil {
				return fmt.Errorf("failed to load transactions: %w", err)
			}

			out := cmd.OutOrStdout()
			currencies, groups := groupByCurrency(txns)
			if len(currencies) == 0 {
				_, err = fmt.Fprint(out, cli.RenderPatternReport(nil, ""))
				return err
			}
			// Amounts in different currencies never share a pattern or a
			// seasonal average.
			for _, currency := range currencies {
				set, err := a.detector.Detect(groups[currency])
				if err != nil {
					return common.NewUserError("couldn't analyze "+currency+" transactions", err)
				}
				if _, err := fmt.Fprint(out, cli.RenderPatternReport(set, currency)); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().Int("months", 12, "How many months of history to analyze")

	return cmd
}

// groupByCurrency splits transactions by currency, returning the currencies
// in sorted order. A missing currency is treated as GBP.
func groupByCurrency(txns []model.Transaction) ([]string, map[string][]model.Transaction) {
	groups := make(map[string][]model.Transaction)
	for _, txn := range txns {
		currency := txn.Currency
		if currency == "" {
			currency = "GBP"
		}
		groups[currency] = append(groups[currency], txn)
	}
	currencies := make([]string, 0, len(groups))
	for currency := range groups {
		currencies = append(currencies, currency)
	}
	sort.Strings(currencies)
	return currencies, groups
}
