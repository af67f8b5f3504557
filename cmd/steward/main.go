// Command steward is the supplier quality notification pipeline CLI.
//
// Usage:
//
//	steward migrate
//	steward evaluate --snapshots ./snapshots --recipients ./recipients.json
//	steward dispatch --out ./reports
//	steward report --run <run-id> --out ./reports
//	steward run --snapshots ./snapshots --recipients ./recipients.json --out ./reports
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"steward/internal/config"
	"steward/internal/database"
	"steward/internal/dispatch"
	"steward/internal/email"
	"steward/internal/logging"
	"steward/internal/recipients"
	"steward/internal/rules"
	"steward/internal/schedule"
	"steward/internal/snapshot"
)

var logger = logging.NewLoggerWithService("steward")

func main() {
	config.LoadEnv(logger)

	root := &cobra.Command{
		Use:           "steward",
		Short:         "Supplier quality notification pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(migrateCmd())
	root.AddCommand(evaluateCmd())
	root.AddCommand(dispatchCmd())
	root.AddCommand(reportCmd())
	root.AddCommand(runCmd())

	if err := root.Execute(); err != nil {
		logger.WithError(err).Error("Command failed")
		os.Exit(1)
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the steward database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(ctx context.Context, db database.PostgresConn) error {
				return database.EnsureSchema(ctx, db, logger)
			})
		},
	}
}

func evaluateCmd() *cobra.Command {
	var snapshotsDir, recipientsPath, asOfFlag string
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate snapshots and ingest the resulting candidates",
		RunE: func(cmd *cobra.Command, args []string) error {
			asOf, err := parseAsOf(asOfFlag)
			if err != nil {
				return err
			}
			return withStore(func(ctx context.Context, db database.PostgresConn) error {
				_, err := evaluateAndIngest(ctx, db, snapshotsDir, recipientsPath, asOf)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&snapshotsDir, "snapshots", "./snapshots", "Directory of supplier snapshot JSON files")
	cmd.Flags().StringVar(&recipientsPath, "recipients", "./recipients.json", "Recipient directory file")
	cmd.Flags().StringVar(&asOfFlag, "as-of", "", "Evaluation date (YYYY-MM-DD, default today)")
	return cmd
}

func dispatchCmd() *cobra.Command {
	var asOfFlag, outDir string
	cmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Send due notifications and write the delivery report",
		RunE: func(cmd *cobra.Command, args []string) error {
			asOf, err := parseAsOf(asOfFlag)
			if err != nil {
				return err
			}
			return withStore(func(ctx context.Context, db database.PostgresConn) error {
				return dispatchDue(ctx, db, asOf, outDir)
			})
		},
	}
	cmd.Flags().StringVar(&asOfFlag, "as-of", "", "Dispatch date (YYYY-MM-DD, default today)")
	cmd.Flags().StringVar(&outDir, "out", "./reports", "Delivery report output directory")
	return cmd
}

func reportCmd() *cobra.Command {
	var runID, outDir string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Regenerate the delivery report for a past run",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(ctx context.Context, db database.PostgresConn) error {
				store := schedule.NewStore(db, logger)

				if runID == "" {
					latest, err := store.LatestRunID(ctx)
					if err == database.ErrNoRows {
						return fmt.Errorf("no dispatch run recorded yet")
					}
					if err != nil {
						return err
					}
					runID = latest
				}

				outcomes, err := store.OutcomesForRun(ctx, runID)
				if err != nil {
					return err
				}
				if len(outcomes) == 0 {
					return fmt.Errorf("no outcomes recorded for run %s", runID)
				}

				path, err := dispatch.WriteReport(outDir, dispatch.BuildReport(runID, outcomes, time.Now()))
				if err != nil {
					return err
				}
				logger.WithFields(logging.Fields{"run_id": runID, "path": path}).Info("Delivery report written")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&runID, "run", "", "Run id (default: most recent run)")
	cmd.Flags().StringVar(&outDir, "out", "./reports", "Delivery report output directory")
	return cmd
}

func runCmd() *cobra.Command {
	var snapshotsDir, recipientsPath, asOfFlag, outDir string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Evaluate, ingest and dispatch in one pass",
		RunE: func(cmd *cobra.Command, args []string) error {
			asOf, err := parseAsOf(asOfFlag)
			if err != nil {
				return err
			}
			return withStore(func(ctx context.Context, db database.PostgresConn) error {
				if _, err := evaluateAndIngest(ctx, db, snapshotsDir, recipientsPath, asOf); err != nil {
					return err
				}
				return dispatchDue(ctx, db, asOf, outDir)
			})
		},
	}
	cmd.Flags().StringVar(&snapshotsDir, "snapshots", "./snapshots", "Directory of supplier snapshot JSON files")
	cmd.Flags().StringVar(&recipientsPath, "recipients", "./recipients.json", "Recipient directory file")
	cmd.Flags().StringVar(&asOfFlag, "as-of", "", "Pipeline date (YYYY-MM-DD, default today)")
	cmd.Flags().StringVar(&outDir, "out", "./reports", "Delivery report output directory")
	return cmd
}

// withStore handles env validation, database connection and signal-aware
// context for every subcommand.
func withStore(fn func(ctx context.Context, db database.PostgresConn) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	dbCfg := database.DefaultConfig()
	dbCfg.URL = config.RequireEnv("DATABASE_URL")

	db, err := database.Connect(dbCfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	return fn(ctx, db)
}

func evaluateAndIngest(ctx context.Context, db database.PostgresConn, snapshotsDir, recipientsPath string, asOf time.Time) (schedule.IngestSummary, error) {
	var summary schedule.IngestSummary

	dir, err := recipients.Load(recipientsPath)
	if err != nil {
		return summary, fmt.Errorf("load recipient directory: %w", err)
	}

	snaps, err := snapshot.LoadBatch(snapshotsDir, logger)
	if err != nil {
		return summary, err
	}

	renderer, err := rules.NewRenderer()
	if err != nil {
		return summary, err
	}
	evaluator := rules.NewEvaluator(thresholdsFromEnv(), dir, renderer, logger)
	scheduler := schedule.NewScheduler(schedule.NewStore(db, logger), rules.DefaultPolicy(), logger)

	start := time.Now()
	for _, snap := range snaps {
		s, err := scheduler.Ingest(ctx, evaluator.Evaluate(snap, asOf), asOf)
		if err != nil {
			return summary, err
		}
		summary.Scheduled += s.Scheduled
		summary.Immediates += s.Immediates
		summary.Dropped += s.Dropped
	}

	logger.WithFields(logging.Fields{
		"snapshots":  len(snaps),
		"scheduled":  summary.Scheduled,
		"immediates": summary.Immediates,
		"dropped":    summary.Dropped,
		"duration":   time.Since(start).Round(time.Millisecond).String(),
	}).Info("Evaluation pass finished")
	return summary, nil
}

func dispatchDue(ctx context.Context, db database.PostgresConn, asOf time.Time, outDir string) error {
	sender := email.NewSender(email.FromEnv())
	if !sender.IsConfigured() {
		return fmt.Errorf("SMTP is not configured; set SMTP_HOST and FROM_EMAIL")
	}

	renderer, err := rules.NewRenderer()
	if err != nil {
		return err
	}
	store := schedule.NewStore(db, logger)
	dispatcher := dispatch.NewDispatcher(store, rules.DefaultPolicy(), sender, renderer, logger)

	result, err := dispatcher.Run(ctx, asOf)
	if err != nil {
		return err
	}

	outcomes, err := store.OutcomesForRun(ctx, result.RunID)
	if err != nil {
		return err
	}
	path, err := dispatch.WriteReport(outDir, dispatch.BuildReport(result.RunID, outcomes, time.Now()))
	if err != nil {
		return err
	}
	logger.WithFields(logging.Fields{"run_id": result.RunID, "path": path}).Info("Delivery report written")
	return nil
}

func thresholdsFromEnv() rules.Thresholds {
	cfg := rules.DefaultThresholds()
	cfg.TrendIncreasePct = config.GetEnvFloat("TREND_INCREASE_PCT", cfg.TrendIncreasePct)
	cfg.WarningFloor = config.GetEnvFloat("QPM_WARNING_FLOOR", cfg.WarningFloor)
	cfg.CriticalFloor = config.GetEnvFloat("QPM_CRITICAL_FLOOR", cfg.CriticalFloor)
	cfg.ExpiryFarDays = config.GetEnvInt("EXPIRY_FAR_DAYS", cfg.ExpiryFarDays)
	cfg.ExpiryNearDays = config.GetEnvInt("EXPIRY_NEAR_DAYS", cfg.ExpiryNearDays)
	cfg.StalenessWindowDays = config.GetEnvInt("STALENESS_WINDOW_DAYS", cfg.StalenessWindowDays)
	return cfg
}

func parseAsOf(flag string) (time.Time, error) {
	if flag == "" {
		now := time.Now().UTC()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	asOf, err := time.Parse("2006-01-02", flag)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --as-of date %q: %w", flag, err)
	}
	return asOf, nil
}
