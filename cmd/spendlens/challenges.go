package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/Veraticus/spendlens/internal/cli"
	"github.com/Veraticus/spendlens/internal/model"
	"github.com/Veraticus/spendlens/internal/service"
)

func challengesCmd(state *rootState) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "challenges",
		Aliases: []string{"challenge"},
		Short:   "Browse, start and track savings challenges",
	}

	cmd.AddCommand(challengesListCmd(state))
	cmd.AddCommand(challengesStartCmd(state))
	cmd.AddCommand(challengesUpdateCmd(state))
	cmd.AddCommand(challengesBudgetCmd(state))

	return cmd
}

func challengesListCmd(state *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List challenges with your progress",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			a, err := state.openApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			catalog, err := a.store.GetChallenges(ctx)
			if err != nil {
				return fmt.Errorf("failed to load challenges: %w", err)
			}
			attempts, err := a.store.GetUserChallenges(ctx, a.userID)
			if err != nil {
				return fmt.Errorf("failed to load your challenges: %w", err)
			}
			xp, err := a.store.GetUserXP(ctx, a.userID)
			if err != nil {
				return fmt.Errorf("failed to load xp: %w", err)
			}
			badges, err := a.store.GetUserBadges(ctx, a.userID)
			if err != nil {
				return fmt.Errorf("failed to load badges: %w", err)
			}

			_, err = fmt.Fprint(cmd.OutOrStdout(), cli.RenderChallenges(challengeRows(catalog, attempts), xp, badges))
			return err
		},
	}
}

// challengeRows pairs each challenge with the user's most recent attempt.
func challengeRows(catalog []model.Challenge, attempts []model.UserChallenge) []cli.ChallengeRow {
	latest := make(map[string]*model.UserChallenge, len(attempts))
	for i := range attempts {
		uc := &attempts[i]
		if prev, ok := latest[uc.ChallengeID]; !ok || uc.StartedAt.After(prev.StartedAt) {
			latest[uc.ChallengeID] = uc
		}
	}

	rows := make([]cli.ChallengeRow, 0, len(catalog))
	for _, c := range catalog {
		rows = append(rows, cli.ChallengeRow{Challenge: c, Attempt: latest[c.ID]})
	}
	return rows
}

func challengesStartCmd(state *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "start <challenge-id>",
		Short: "Start a challenge",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := state.openApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			uc, err := a.orchestrator.StartChallenge(ctx, a.userID, args[0])
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Started %s (%s)", args[0], uc.ID)))
			return nil
		},
	}
}

func challengesUpdateCmd(state *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: "Evaluate your active challenges against stored transactions",
		Long: `Evaluate every active challenge against the transactions recorded since
it started. Syncing and importing do this automatically for new transactions.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			a, err := state.openApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			active, err := a.store.GetActiveUserChallenges(ctx, a.userID)
			if err != nil {
				return fmt.Errorf("failed to load active challenges: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(active) == 0 {
				fmt.Fprintln(out, cli.FormatInfo("No active challenges. Start one with: spendlens challenges start <id>"))
				return nil
			}

			var since time.Time
			for _, uc := range active {
				if since.IsZero() || uc.StartedAt.Before(since) {
					since = uc.StartedAt
				}
			}
			txns, err := a.store.GetTransactions(ctx, service.TransactionFilter{UserID: a.userID, Start: &since})
			if err != nil {
				return fmt.Errorf("failed to load transactions: %w", err)
			}

			result, err := a.orchestrator.UpdateChallengeProgress(ctx, a.userID, txns)
			if result != nil {
				fmt.Fprintf(out, "Evaluated %d challenges: %d completed, %d failed, %d in progress\n",
					result.Evaluated, result.Completed, result.Failed, result.Updated)
				if result.XPAwarded > 0 {
					fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("+%d XP", result.XPAwarded)))
				}
				for _, badge := range result.BadgesAwarded {
					fmt.Fprintln(out, cli.FormatSuccess("New badge: "+badge))
				}
			}
			return err
		},
	}
}

func challengesBudgetCmd(state *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "budget <category> <limit>",
		Short: "Set your monthly limit for a category",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			limit, err := strconv.ParseFloat(args[1], 64)
			if err != nil || limit < 0 {
				return fmt.Errorf("invalid limit %q: must be a non-negative number", args[1])
			}

			a, err := state.openApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if err := a.store.SetCategoryBudget(ctx, a.userID, args[0], limit); err != nil {
				return fmt.Errorf("failed to set budget: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("%s budget set to %.2f", args[0], limit)))
			return nil
		},
	}
}
