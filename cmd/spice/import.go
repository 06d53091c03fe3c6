package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/Veraticus/spice-sms/internal/cli"
	"github.com/Veraticus/spice-sms/internal/common"
	"github.com/Veraticus/spice-sms/internal/engine"
	"github.com/Veraticus/spice-sms/internal/smsbackup"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <backup file>",
		Short: "Import transactions from an SMS backup",
		Long: `Import bank transactions from an "SMS Backup & Restore" XML export or a
JSON-lines message dump.

Messages are parsed, categorized and stored. Only messages newer than the last
import are processed unless --full is given, and transactions already in the
database are skipped automatically.`,
		Args: cobra.ExactArgs(1),
		RunE: runImport,
	}

	cmd.Flags().Bool("full", false, "re-process every message, not only those since the last import")
	cmd.Flags().String("sender", "", "only import messages from this sender")
	cmd.Flags().String("since", "", "only import messages received on or after this date (format: 2006-01-02)")
	cmd.Flags().IntP("workers", "w", 0, "parallel parse workers (default: number of CPUs)")
	cmd.Flags().Int("batch-size", engine.DefaultConfig().BatchSize, "messages per checkpoint")
	cmd.Flags().Bool("no-progress", false, "hide the progress bar")

	_ = viper.BindPFlag("import.workers", cmd.Flags().Lookup("workers"))

	return cmd
}

func runImport(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	full, _ := cmd.Flags().GetBool("full")
	sender, _ := cmd.Flags().GetString("sender")
	sinceStr, _ := cmd.Flags().GetString("since")
	batchSize, _ := cmd.Flags().GetInt("batch-size")
	noProgress, _ := cmd.Flags().GetBool("no-progress")

	filter := smsbackup.Filter{Sender: sender}
	if sinceStr != "" {
		since, err := time.ParseInLocation("2006-01-02", sinceStr, time.Local)
		if err != nil {
			return common.NewUserError("Invalid --since date (use YYYY-MM-DD)", err)
		}
		filter.Since = since
	}

	settings, err := loadSettings()
	if err != nil {
		return err
	}

	msgs, err := smsbackup.ReadFile(args[0])
	if err != nil {
		if errors.Is(err, common.ErrUnknownFormat) {
			return common.NewUserError("Unrecognized backup format; expected XML or JSON lines", err)
		}
		return err
	}
	msgs = filter.Apply(msgs)

	interrupts := cli.NewInterruptHandler(out)
	ctx, cancel := interrupts.HandleInterrupts(cmd.Context(), "spice import "+args[0])
	defer cancel()

	store, err := initStorage(ctx, settings)
	if err != nil {
		return err
	}
	defer closeStorage(store)

	if err := store.WarmMappingCache(ctx); err != nil {
		common.LogWarn("Failed to warm merchant mapping cache", common.Fields{"error": err.Error()})
	}

	importer := engine.NewWithConfig(store,
		initParser(settings, store),
		initCategorizer(settings, store),
		engine.Config{Workers: settings.Workers, BatchSize: batchSize, Full: full},
	)

	writeln(out, cli.FormatTitle(fmt.Sprintf("Importing %d messages from %s", len(msgs), args[0])))
	if !noProgress && len(msgs) > 0 {
		bar := cli.NewProgressBar(out, len(msgs), "Parsing messages...")
		importer.OnProgress(cli.ProgressFunc(bar))
	}

	stats, err := importer.Import(ctx, msgs)
	if err != nil {
		if interrupts.WasInterrupted() {
			return nil
		}
		return fmt.Errorf("import failed: %w", err)
	}

	printImportSummary(cmd, stats)
	return nil
}

func printImportSummary(cmd *cobra.Command, stats engine.Stats) {
	out := cmd.OutOrStdout()

	lines := fmt.Sprintf("Messages read: %d\nAlready imported: %d\nTransactions parsed: %d\nNew transactions: %d\nDuplicates: %d\nSkipped: %d",
		stats.Received, stats.Stale, stats.Parsed, stats.Inserted, stats.Duplicates, stats.Skipped)
	for _, reason := range stats.Reasons() {
		lines += fmt.Sprintf("\n  • %s: %d", reason, stats.SkipReasons[reason])
	}

	writeln(out, cli.RenderBox(cli.ChartIcon+" Import Summary", lines))
	if stats.Inserted > 0 {
		writeln(out, cli.FormatInfo("Review low-confidence transactions with: spice transactions review"))
	}
}
