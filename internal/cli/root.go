package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	appconfig "github.com/i-zrhe2016/amazing-3.1/config"
	"github.com/i-zrhe2016/amazing-3.1/internal/cli/backtest"
	"github.com/i-zrhe2016/amazing-3.1/internal/cli/config"
	"github.com/i-zrhe2016/amazing-3.1/internal/cli/data"
	"github.com/i-zrhe2016/amazing-3.1/internal/cli/journal"
	"github.com/i-zrhe2016/amazing-3.1/internal/cli/optimize"
	"github.com/i-zrhe2016/amazing-3.1/pkg/errs"
)

// Version is set at build time with -ldflags "-X ...cli.Version=...".
var Version = "dev"

// Exit codes.
const (
	ExitOK    = 0
	ExitError = 1
	// ExitInput covers bad parameters and unusable history.
	ExitInput = 2
)

func NewRootCmd() *cobra.Command {
	rc := config.NewRootConfig()

	cmd := &cobra.Command{
		Use:   "amazing",
		Short: "Amazing3.1 grid EA backtester and parameter optimizer",
		Long: `Amazing replays the Amazing3.1 grid/martingale EA on M5 bid histories with
a margin-aware account simulator and searches its parameters for the most
profitable set that never blows up the account.

Commands:
  optimize  - Random or adaptive search over yearly windows
  backtest  - Run one parameter set
  data      - Fetch, inspect or synthesize histories
  journal   - Query recorded runs
  config    - Generate or validate configuration files`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global / persistent flags
	cmd.PersistentFlags().StringVar(&rc.ConfigPath, "config", "", "Path to config file (YAML or JSON)")
	cmd.PersistentFlags().StringVar(&rc.EnvFile, "env-file", rc.EnvFile, "Dotenv file with AMAZING_* overrides")
	cmd.PersistentFlags().StringVar(&rc.Cfg.Log.Level, "log-level", rc.Cfg.Log.Level, "Log level: trace|debug|info|warn|error")
	cmd.PersistentFlags().BoolVar(&rc.Cfg.Log.NoColor, "no-color", rc.Cfg.Log.NoColor, "Disable colored log output")

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return rc.SetupLogging()
	}

	cmd.AddCommand(
		optimize.New(rc),
		backtest.New(rc),
		data.New(rc),
		data.NewFetchCmd(rc),
		journal.New(rc),
		newConfigCmd(),
	)

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "amazing %s\n", Version)
		},
	})

	return cmd
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Generate or validate configuration files",
		Long: `Manage configuration files.

Examples:
  amazing config init -o amazing.yaml
  amazing config validate -f amazing.yaml`,
	}

	var output string
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Generate a default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := appconfig.Default().SaveToFile(output); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "✓ Created default configuration: %s\n", output)
			fmt.Fprintln(out, "\nEdit the file and run with:")
			fmt.Fprintf(out, "  amazing optimize --config %s\n", output)
			return nil
		},
	}
	initCmd.Flags().StringVarP(&output, "output", "o", "amazing.yaml", "output config file path")

	var path string
	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := appconfig.LoadFromFile(path)
			if err != nil {
				return fmt.Errorf("validation failed: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "✓ Configuration valid: %s\n", path)
			fmt.Fprintf(out, "  Account: %.2f %s, 1:%d\n", cfg.Account.Balance, cfg.Account.Currency, cfg.Account.Leverage)
			fmt.Fprintf(out, "  Symbol: %s (%s)\n", cfg.Data.Symbol, cfg.Cost)
			fmt.Fprintf(out, "  Search: %s/%s, %d trials, seed %d\n", cfg.Optimize.Algorithm, cfg.Optimize.Mode, cfg.Optimize.Trials, cfg.Optimize.Seed)
			fmt.Fprintf(out, "  Params: %s\n", cfg.Params)
			fmt.Fprintf(out, "  Journal: %s\n", cfg.Journal.Type)
			return nil
		},
	}
	validateCmd.Flags().StringVarP(&path, "file", "f", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("file")

	cmd.AddCommand(initCmd, validateCmd)
	return cmd
}

// ExitCode maps an error to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errs.IsData(err), errs.IsParameter(err):
		return ExitInput
	}
	return ExitError
}

// Run executes the command tree with args and returns the exit status.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := NewRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	err := cmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
	}
	return ExitCode(err)
}

func Execute() {
	os.Exit(Run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}
