package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/spendlens/internal/clock"
	"github.com/Veraticus/spendlens/internal/common"
	"github.com/Veraticus/spendlens/internal/config"
)

var version = "dev"

// rootState is shared by every subcommand of one invocation.
type rootState struct {
	v       *viper.Viper
	cfg     *config.Config
	clock   clock.Clock
	cfgFile string
}

func newRootCmd() *cobra.Command {
	return newRootCmdWithClock(clock.NewReal())
}

func newRootCmdWithClock(c clock.Clock) *cobra.Command {
	state := &rootState{v: viper.New(), clock: c}

	rootCmd := &cobra.Command{
		Use:   "spendlens",
		Short: "🔍 Personal spending insights for UK bank accounts",
		Long: `spendlens syncs your bank transactions, categorizes them by merchant,
finds recurring patterns and tracks your savings challenges.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return state.initConfig(cmd)
		},
	}

	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&state.cfgFile, "config", "", "config file (default: $HOME/.config/spendlens/config.yaml)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "console", "log format (console, json)")
	flags.String("db", "", "SQLite database path")
	flags.String("user", "", "user ID")

	// Bind flags to viper
	_ = state.v.BindPFlag("logging.level", flags.Lookup("log-level"))
	_ = state.v.BindPFlag("logging.format", flags.Lookup("log-format"))
	_ = state.v.BindPFlag("database.path", flags.Lookup("db"))
	_ = state.v.BindPFlag("user.id", flags.Lookup("user"))

	rootCmd.AddCommand(migrateCmd(state))
	rootCmd.AddCommand(rulesCmd(state))
	rootCmd.AddCommand(categorizeCmd(state))
	rootCmd.AddCommand(recategorizeCmd(state))
	rootCmd.AddCommand(patternsCmd(state))
	rootCmd.AddCommand(challengesCmd(state))
	rootCmd.AddCommand(importCmd(state))
	rootCmd.AddCommand(syncCmd(state))
	rootCmd.AddCommand(versionCmd())

	return rootCmd
}

func main() {
	// Set up signal handling
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			slog.Info("Received interrupt signal, shutting down gracefully...")
			cancel()
		case <-ctx.Done():
		}
	}()

	err := newRootCmd().ExecuteContext(ctx)
	cancel() // Always cleanup

	if err != nil {
		fmt.Fprintln(os.Stderr, userMessage(err))
		os.Exit(1)
	}
}

// userMessage prefers the user-facing text of a UserError.
func userMessage(err error) string {
	var userErr *common.UserError
	if errors.As(err, &userErr) {
		return userErr.UserMessage
	}
	return err.Error()
}

func (s *rootState) initConfig(_ *cobra.Command) error {
	v := s.v

	// Set up config file
	if s.cfgFile != "" {
		v.SetConfigFile(s.cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}

		// Search for config in standard locations
		v.AddConfigPath(fmt.Sprintf("%s/.config/spendlens", home))
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	// Environment variables
	v.SetEnvPrefix("SPENDLENS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK, we'll use defaults
	}

	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	s.cfg = cfg

	level, err := common.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	if err := common.SetupLogger(level, cfg.Logging.Format); err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	return nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "spendlens %s\n", version)
		},
	}
}
