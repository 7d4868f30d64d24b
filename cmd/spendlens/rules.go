package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Veraticus/spendlens/internal/cli"
	"github.com/Veraticus/spendlens/internal/model"
)

func rulesCmd(state *rootState) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "rules",
		Aliases: []string{"rule"},
		Short:   "Inspect merchant categorization rules",
	}

	cmd.AddCommand(rulesListCmd(state))

	return cmd
}

func rulesListCmd(state *rootState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the rules applied to your transactions",
		Long: `List the merchant rules in the order they are applied. Your own
overrides come first, then the built-in rules. The first match wins.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			category, _ := cmd.Flags().GetString("category")

			a, err := state.openApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			rules, err := a.classifier.LoadRules(ctx, a.userID)
			if err != nil {
				return fmt.Errorf("failed to load rules: %w", err)
			}

			if category != "" {
				var filtered []model.MerchantCategoryRule
				for _, r := range rules {
					if strings.EqualFold(r.Category, category) {
						filtered = append(filtered, r)
					}
				}
				rules = filtered
			}

			_, err = fmt.Fprint(cmd.OutOrStdout(), cli.RenderRules(rules))
			return err
		},
	}

	cmd.Flags().String("category", "", "Only show rules for this category")

	return cmd
}
