package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Veraticus/spice-sms/internal/cli"
	"github.com/Veraticus/spice-sms/internal/model"
	"github.com/Veraticus/spice-sms/internal/parser"
	"github.com/spf13/cobra"
)

// parseOutput is the JSON shape printed by parse --json.
type parseOutput struct {
	Category    *model.CategorizationResult `json:"category,omitempty"`
	Confidence  *model.ConfidenceScore      `json:"confidence,omitempty"`
	Date        string                      `json:"date,omitempty"`
	Amount      string                      `json:"amount,omitempty"`
	Merchant    string                      `json:"merchant,omitempty"`
	Bank        string                      `json:"bank,omitempty"`
	Type        string                      `json:"type,omitempty"`
	Reference   string                      `json:"referenceNumber,omitempty"`
	Fingerprint string                      `json:"fingerprint,omitempty"`
	Band        string                      `json:"band,omitempty"`
	Failure     string                      `json:"failure,omitempty"`
	Success     bool                        `json:"success"`
}

func parseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parse <message body>",
		Short: "Parse a single SMS",
		Long: `Parse one SMS body and show the extracted transaction, its confidence
breakdown and category. Use "-" to read the body from stdin.

Nothing is written to the database.`,
		Example: `  spice parse --sender VM-HDFCBK "Rs.500 debited from a/c for SWIGGY on 01-01-24. Ref No 123456789"
  pbpaste | spice parse --sender AD-ICICIB -`,
		Args: cobra.MinimumNArgs(1),
		RunE: runParse,
	}

	cmd.Flags().StringP("sender", "s", "", "sender address of the message")
	cmd.Flags().Int64("timestamp", 0, "delivery time in epoch milliseconds (default: now)")
	cmd.Flags().Bool("json", false, "print the result as JSON")
	_ = cmd.MarkFlagRequired("sender")

	return cmd
}

func runParse(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	sender, _ := cmd.Flags().GetString("sender")
	timestamp, _ := cmd.Flags().GetInt64("timestamp")
	asJSON, _ := cmd.Flags().GetBool("json")

	body := strings.Join(args, " ")
	if body == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("failed to read message from stdin: %w", err)
		}
		body = strings.TrimSpace(string(data))
	}
	if timestamp == 0 {
		timestamp = time.Now().UnixMilli()
	}

	settings, err := loadSettings()
	if err != nil {
		return err
	}

	p := initParser(settings, nil)
	txn, parseErr := p.Parse(ctx, model.SMS{Sender: sender, Body: body, Timestamp: timestamp})
	if parseErr != nil {
		var pe *parser.ParseError
		if !errors.As(parseErr, &pe) {
			return parseErr
		}
		if asJSON {
			return writeJSON(out, parseOutput{Failure: pe.Reason})
		}
		writeln(out, cli.FormatWarning("Not a transaction: "+pe.Reason))
		return nil
	}

	category := initCategorizer(settings, nil).Categorize(ctx, txn.NormalizedMerchant)

	if asJSON {
		return writeJSON(out, parseOutput{
			Success:     true,
			Date:        txn.Date.Format("2006-01-02"),
			Amount:      txn.Amount.String(),
			Merchant:    txn.NormalizedMerchant,
			Bank:        txn.BankName,
			Type:        string(txn.Type),
			Reference:   txn.ReferenceNumber,
			Fingerprint: txn.Fingerprint,
			Band:        string(txn.Confidence.Band()),
			Confidence:  &txn.Confidence,
			Category:    &category,
		})
	}

	writeln(out, cli.RenderBox("Transaction", cli.FormatTransaction(txn)+
		"\n"+cli.BoldStyle.Render("Category:")+" "+cli.FormatCategory(category)))
	writeln(out, cli.RenderBox("Confidence", cli.FormatBreakdown(txn.Confidence)))
	if p.Degraded() {
		writeln(out, cli.FormatWarning("Bank rules could not be loaded; only fallback patterns were used"))
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}
