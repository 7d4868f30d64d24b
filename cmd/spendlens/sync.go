package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Veraticus/spendlens/internal/certs"
	"github.com/Veraticus/spendlens/internal/cli"
	"github.com/Veraticus/spendlens/internal/config"
	"github.com/Veraticus/spendlens/internal/plaid"
	"github.com/Veraticus/spendlens/internal/provider"
	"github.com/Veraticus/spendlens/internal/truelayer"
)

func syncCmd(state *rootState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync transactions and balances from your bank",
		Long: `Fetch recent transactions and balances from TrueLayer or Plaid, categorize
and store them, and update your active challenges.

Examples:
  # Last 90 days from TrueLayer
  spendlens sync

  # Last 30 days from Plaid
  spendlens sync --provider plaid --days 30`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			providerName, _ := cmd.Flags().GetString("provider")
			days, _ := cmd.Flags().GetInt("days")
			if days <= 0 {
				return fmt.Errorf("days must be positive")
			}

			handler := cli.NewInterruptHandler(cmd.ErrOrStderr())
			ctx, stop := handler.HandleInterrupts(cmd.Context(), "Sync", "spendlens sync --provider "+providerName)
			defer stop()

			a, err := state.openApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			fetcher, accountID, err := newFetcher(ctx, a, providerName)
			if err != nil {
				return err
			}

			conn, err := a.connection(ctx, fetcher.Name(), accountID, fetcher.Name()+" "+accountID)
			if err != nil {
				return fmt.Errorf("failed to register connection: %w", err)
			}

			to := a.clock.Now()
			from := to.AddDate(0, 0, -days)
			result, err := a.syncService(fetcher).Sync(ctx, a.userID, conn.ID, from, to)
			if result != nil {
				fmt.Fprintln(cmd.OutOrStdout(), cli.RenderSyncResult(result))
			}
			return err
		},
	}

	cmd.Flags().String("provider", truelayer.ProviderName, "Provider to sync from (truelayer, plaid)")
	cmd.Flags().Int("days", 90, "Number of days to fetch")

	cmd.AddCommand(truelayerAuthCmd(state))

	return cmd
}

func newFetcher(ctx context.Context, a *app, providerName string) (provider.TransactionFetcher, string, error) {
	switch providerName {
	case truelayer.ProviderName:
		client, err := truelayer.NewClient(a.cfg.TrueLayerClientConfig())
		if err != nil {
			return nil, "", fmt.Errorf("failed to create TrueLayer client: %w", err)
		}
		accountID := a.cfg.TrueLayer.AccountID
		if accountID == "" {
			accounts, err := client.GetAccounts(ctx)
			if err != nil {
				return nil, "", fmt.Errorf("failed to list TrueLayer accounts: %w", err)
			}
			if len(accounts) == 0 {
				return nil, "", truelayer.ErrNoAccount
			}
			accountID = accounts[0].AccountID
			slog.Info("Using first TrueLayer account",
				"account_id", accountID,
				"name", accounts[0].DisplayName,
				"accounts", len(accounts))
		}
		return truelayer.NewFetcher(client, accountID), accountID, nil

	case plaid.ProviderName:
		client, err := plaid.NewClient(a.cfg.PlaidClientConfig())
		if err != nil {
			return nil, "", fmt.Errorf("failed to create Plaid client: %w", err)
		}
		accountID := a.cfg.Plaid.AccountID
		if accountID == "" {
			accountID = "item"
		}
		return client, accountID, nil

	default:
		return nil, "", fmt.Errorf("unknown provider %q: must be %s or %s", providerName, truelayer.ProviderName, plaid.ProviderName)
	}
}

func truelayerAuthCmd(state *rootState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth [code]",
		Short: "Connect a bank through TrueLayer",
		Long: `Without arguments, print the TrueLayer consent URL. After approving access,
pass the code from the redirect to print a refresh token for truelayer.refresh_token.

With --listen, serve the redirect on a local HTTPS listener and exchange the
code as soon as the browser returns.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			listen, _ := cmd.Flags().GetString("listen")
			out := cmd.OutOrStdout()

			cfg := state.cfg.TrueLayerClientConfig()
			cfg.RefreshToken = ""
			if listen != "" && cfg.RedirectURL == "" {
				_, port, err := net.SplitHostPort(listen)
				if err != nil {
					return fmt.Errorf("invalid listen address %q: %w", listen, err)
				}
				cfg.RedirectURL = "https://localhost:" + port + truelayer.CallbackPath
			}
			client, err := truelayer.NewClient(cfg)
			if err != nil {
				return fmt.Errorf("failed to create TrueLayer client: %w", err)
			}

			var code string
			switch {
			case len(args) == 1:
				code = args[0]
			case listen != "":
				code, err = waitForConsent(cmd.Context(), cmd, client, listen)
				if err != nil {
					return err
				}
			default:
				fmt.Fprintln(out, cli.FormatInfo("Open this URL to connect your bank:"))
				fmt.Fprintln(out, client.AuthCodeURL("spendlens"))
				return nil
			}

			tok, err := client.Exchange(cmd.Context(), code)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, cli.FormatSuccess("Connected. Add this to your config as truelayer.refresh_token:"))
			fmt.Fprintln(out, tok.RefreshToken)
			return nil
		},
	}
	cmd.Flags().String("listen", "", "Serve the OAuth redirect locally on this address (e.g. :3000)")
	return cmd
}

func waitForConsent(ctx context.Context, cmd *cobra.Command, client *truelayer.Client, listen string) (string, error) {
	certDir := config.ExpandPath("~/.config/spendlens/certs")
	tlsConfig, err := certs.NewFileManager(certDir, nil).TLSConfig()
	if err != nil {
		return "", fmt.Errorf("failed to prepare callback certificate: %w", err)
	}

	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return "", fmt.Errorf("failed to listen on %s: %w", listen, err)
	}

	handler := cli.NewInterruptHandler(cmd.ErrOrStderr())
	ctx, stop := handler.HandleInterrupts(ctx, "Authorization", "")
	defer stop()

	oauthState := uuid.NewString()
	fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo("Open this URL to connect your bank:"))
	fmt.Fprintln(cmd.OutOrStdout(), client.AuthCodeURL(oauthState))

	return truelayer.WaitForCode(ctx, ln, tlsConfig, oauthState)
}
