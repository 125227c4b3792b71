package journal

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/i-zrhe2016/amazing-3.1/internal/cli/config"
	"github.com/i-zrhe2016/amazing-3.1/journal"
	"github.com/i-zrhe2016/amazing-3.1/pkg/errs"
	"github.com/i-zrhe2016/amazing-3.1/report"
)

func New(rc *config.RootConfig) *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Query recorded runs, trials and trades",
		Long: `Query the SQLite journal written by optimize --db and backtest --db.

Examples:
  amazing journal run <run-id> --db runs.sqlite
  amazing journal trades <run-id> --db runs.sqlite
  amazing journal day 2024-01-15 --db runs.sqlite`,
	}
	cmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "./amazing.sqlite", "path to SQLite journal DB")

	open := func() (*journal.SQLite, error) {
		if err := rc.SetupLogging(); err != nil {
			return nil, err
		}
		j, err := journal.NewSQLite(dbPath)
		if err != nil {
			return nil, fmt.Errorf("open db: %w", err)
		}
		return j, nil
	}

	var top int
	runCmd := &cobra.Command{
		Use:   "run <run-id>",
		Short: "Show a run and its best trials",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := open()
			if err != nil {
				return err
			}
			defer j.Close()

			run, err := j.GetRun(args[0])
			if err != nil {
				return fmt.Errorf("get run: %w", err)
			}
			trials, err := j.TopTrials(run.RunID, top)
			if err != nil {
				return fmt.Errorf("query trials: %w", err)
			}
			report.PrintRun(cmd.OutOrStdout(), run, trials)
			return nil
		},
	}
	runCmd.Flags().IntVar(&top, "top", 10, "number of trials to show (0 = all)")

	tradesCmd := &cobra.Command{
		Use:   "trades <run-id>",
		Short: "List the trades of a backtest run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := open()
			if err != nil {
				return err
			}
			defer j.Close()

			recs, err := j.ListTradesByRun(args[0])
			if err != nil {
				return fmt.Errorf("query trades: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), journal.FormatTradesOrg(recs))
			return nil
		},
	}

	dayCmd := &cobra.Command{
		Use:   "day <YYYY-MM-DD>",
		Short: "List trades closed on a specific day (UTC)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			start, end, err := dayBounds(time.UTC, args[0])
			if err != nil {
				return errs.Param("day", "%v", err)
			}
			j, err := open()
			if err != nil {
				return err
			}
			defer j.Close()

			recs, err := j.ListTradesClosedBetween(start, end)
			if err != nil {
				return fmt.Errorf("query trades: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), journal.FormatTradesOrg(recs))
			return nil
		},
	}

	cmd.AddCommand(runCmd, tradesCmd, dayCmd)
	return cmd
}

func dayBounds(loc *time.Location, day string) (time.Time, time.Time, error) {
	t, err := time.ParseInLocation(time.DateOnly, day, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	return start, start.Add(24 * time.Hour), nil
}
