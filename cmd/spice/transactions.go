package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/Veraticus/spice-sms/internal/cli"
	"github.com/Veraticus/spice-sms/internal/common"
	"github.com/Veraticus/spice-sms/internal/model"
	"github.com/Veraticus/spice-sms/internal/storage"
	"github.com/spf13/cobra"
)

func transactionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "transactions",
		Aliases: []string{"txns"},
		Short:   "List and review imported transactions",
	}

	// Subcommands
	cmd.AddCommand(transactionsListCmd())
	cmd.AddCommand(transactionsReviewCmd())

	return cmd
}

func transactionsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List imported transactions",
		Long:  `List imported transactions, newest first.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter, err := transactionFilterFromFlags(cmd)
			if err != nil {
				return err
			}

			return withStorage(cmd, func(store *storage.SQLiteStorage) error {
				txns, err := store.GetTransactions(cmd.Context(), filter)
				if err != nil {
					if errors.Is(err, storage.ErrInvalidDateRange) {
						return common.NewUserError("--from must not be after --to", nil)
					}
					return err
				}

				out := cmd.OutOrStdout()
				if len(txns) == 0 {
					writeln(out, cli.FormatInfo("No transactions found"))
					return nil
				}

				for _, txn := range txns {
					writef(out, "%s  %12s  %-28s %-18s %s  %s\n",
						txn.Date.UTC().Format("2006-01-02"),
						cli.FormatAmount(txn.Amount, txn.IsDebit),
						truncate(txn.NormalizedMerchant, 28),
						truncate(categoryLabel(txn.Category), 18),
						cli.FormatScore(txn.Confidence),
						cli.FormatBand(txn.Band()),
					)
				}
				writeln(out, cli.SubtleStyle.Render(fmt.Sprintf("%d transactions", len(txns))))
				return nil
			})
		},
	}

	cmd.Flags().String("band", "", "only show this review band (auto_accept, light_review, manual_review)")
	cmd.Flags().Bool("unreviewed", false, "only show transactions not yet reviewed")
	cmd.Flags().String("from", "", "start date (format: 2006-01-02)")
	cmd.Flags().String("to", "", "end date, inclusive (format: 2006-01-02)")
	cmd.Flags().Int("limit", 50, "maximum number of transactions to show (0 for all)")

	return cmd
}

func transactionsReviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Review low-confidence transactions",
		Long: `Walk through unreviewed transactions that did not score high enough to be
accepted automatically. Accepting or changing a category marks the transaction
reviewed; a changed category can be remembered for the merchant so future
imports categorize it the same way.`,
		RunE: runReview,
	}

	cmd.Flags().String("band", "", "only review this band (light_review, manual_review)")
	cmd.Flags().Int("limit", 0, "maximum number of transactions to review (0 for all)")

	return cmd
}

func runReview(cmd *cobra.Command, _ []string) error {
	bandStr, _ := cmd.Flags().GetString("band")
	limit, _ := cmd.Flags().GetInt("limit")

	band, err := parseBand(bandStr)
	if err != nil {
		return err
	}

	return withStorage(cmd, func(store *storage.SQLiteStorage) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		txns, err := store.GetTransactions(ctx, storage.TransactionFilter{Band: band, Unreviewed: true})
		if err != nil {
			return err
		}
		queue := reviewQueue(txns, limit)
		if len(queue) == 0 {
			writeln(out, cli.FormatSuccess("Nothing to review"))
			return nil
		}

		prompter := cli.NewReviewPrompter(cmd.InOrStdin(), out)
		prompter.SetTotal(len(queue))

		for _, txn := range queue {
			decision, err := prompter.Review(ctx, txn)
			if err != nil {
				if errors.Is(err, cli.ErrInputTerminated) {
					break
				}
				return err
			}
			if decision.Action == cli.ReviewQuit {
				break
			}
			if decision.Action == cli.ReviewSkip {
				continue
			}

			if err := store.MarkReviewed(ctx, txn.ID, decision.Category); err != nil {
				return fmt.Errorf("failed to mark transaction %s reviewed: %w", txn.ID, err)
			}
			if decision.Remember {
				mapping := &model.MerchantMapping{
					Alias:          txn.NormalizedMerchant,
					NormalizedName: txn.NormalizedMerchant,
					Category:       decision.Category,
					Source:         model.MappingSourceReview,
				}
				if err := store.SaveMapping(ctx, mapping); err != nil {
					common.LogWarn("Failed to remember merchant category", common.Fields{
						"merchant": txn.NormalizedMerchant,
						"error":    err.Error(),
					})
				}
			}
		}

		prompter.ShowCompletion()
		return nil
	})
}

// reviewQueue keeps transactions outside the auto-accept band.
func reviewQueue(txns []model.StoredTransaction, limit int) []model.StoredTransaction {
	var queue []model.StoredTransaction
	for _, txn := range txns {
		if txn.Band() == model.BandAutoAccept {
			continue
		}
		queue = append(queue, txn)
		if limit > 0 && len(queue) == limit {
			break
		}
	}
	return queue
}

func transactionFilterFromFlags(cmd *cobra.Command) (storage.TransactionFilter, error) {
	bandStr, _ := cmd.Flags().GetString("band")
	unreviewed, _ := cmd.Flags().GetBool("unreviewed")
	fromStr, _ := cmd.Flags().GetString("from")
	toStr, _ := cmd.Flags().GetString("to")
	limit, _ := cmd.Flags().GetInt("limit")

	band, err := parseBand(bandStr)
	if err != nil {
		return storage.TransactionFilter{}, err
	}

	filter := storage.TransactionFilter{Band: band, Unreviewed: unreviewed, Limit: limit}
	if fromStr != "" {
		from, err := time.ParseInLocation("2006-01-02", fromStr, time.UTC)
		if err != nil {
			return filter, common.NewUserError("Invalid --from date (use YYYY-MM-DD)", err)
		}
		filter.From = &from
	}
	if toStr != "" {
		to, err := time.ParseInLocation("2006-01-02", toStr, time.UTC)
		if err != nil {
			return filter, common.NewUserError("Invalid --to date (use YYYY-MM-DD)", err)
		}
		end := to.AddDate(0, 0, 1).Add(-time.Nanosecond)
		filter.To = &end
	}
	return filter, nil
}

func parseBand(s string) (model.Band, error) {
	switch band := model.Band(s); band {
	case "", model.BandAutoAccept, model.BandLightReview, model.BandManualReview:
		return band, nil
	default:
		return "", common.NewUserError(fmt.Sprintf("Unknown band %q (use auto_accept, light_review or manual_review)", s), nil)
	}
}
