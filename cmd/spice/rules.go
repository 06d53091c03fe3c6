package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Veraticus/spice-sms/internal/cli"
	"github.com/Veraticus/spice-sms/internal/common"
	"github.com/Veraticus/spice-sms/internal/model"
	"github.com/Veraticus/spice-sms/internal/rules"
	"github.com/spf13/cobra"
)

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect and validate rule documents",
		Long:  `Validate bank and merchant rule documents and show the rules currently in effect.`,
	}

	cmd.PersistentFlags().Bool("merchant", false, "operate on merchant category rules instead of bank rules")

	// Subcommands
	cmd.AddCommand(rulesValidateCmd())
	cmd.AddCommand(rulesShowCmd())
	cmd.AddCommand(rulesReloadCheckCmd())

	return cmd
}

func rulesValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a rule document",
		Long: `Load a JSON or YAML rule document, check its structure and compile every
pattern. Patterns that are not valid regular expressions are reported; at
runtime they match as plain text.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			merchant, _ := cmd.Flags().GetBool("merchant")
			source := rules.FileSource{Path: args[0]}

			var (
				summary       string
				patternErrors []error
				err           error
			)
			if merchant {
				loader := rules.NewMerchantLoader(source)
				var doc model.MerchantRulesConfig
				doc, err = loader.Load(cmd.Context())
				summary = merchantSummary(doc)
				patternErrors = loader.PatternErrors()
			} else {
				loader := rules.NewBankLoader(source)
				var doc model.RuleDocument
				doc, err = loader.Load(cmd.Context())
				summary = bankSummary(doc)
				patternErrors = loader.PatternErrors()
			}
			if err != nil {
				return common.NewUserError("Rule document is invalid", unwrapLoadError(err))
			}

			out := cmd.OutOrStdout()
			writeln(out, cli.FormatSuccess(args[0]+" is valid"))
			writeln(out, summary)
			writePatternErrors(out, patternErrors)
			return nil
		},
	}
}

func rulesShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the rules in effect",
		Long:  `Show the configured rule document, or the embedded default when none is configured.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			merchant, _ := cmd.Flags().GetBool("merchant")
			settings, err := loadSettings()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if merchant {
				loader := merchantLoader(settings)
				doc, err := loader.Load(cmd.Context())
				if err != nil {
					return common.NewUserError("Failed to load merchant rules", err)
				}
				writeln(out, cli.FormatTitle("Merchant rules from "+loader.SourceName()))
				writeln(out, merchantSummary(doc))
				for _, rule := range doc.Categories {
					writef(out, "  %d. %s %s %s\n", rule.Priority, rule.Emoji, rule.Name,
						cli.SubtleStyle.Render(fmt.Sprintf("(%d patterns)", len(rule.Patterns))))
				}
				return nil
			}

			loader := bankLoader(settings)
			doc, err := loader.Load(cmd.Context())
			if err != nil {
				return common.NewUserError("Failed to load bank rules", err)
			}
			writeln(out, cli.FormatTitle("Bank rules from "+loader.SourceName()))
			writeln(out, bankSummary(doc))
			for _, bank := range doc.Banks {
				writef(out, "  %-8s %-24s %s\n", bank.Code, bank.DisplayName,
					cli.SubtleStyle.Render(strings.Join(bank.SenderPatterns, " | ")))
			}
			return nil
		},
	}
}

func rulesReloadCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reload-check",
		Short: "Verify the configured rules reload cleanly",
		Long: `Load the configured rule document, reload it, and verify the reloaded
document is equivalent. Use this after editing a rules file to confirm a
running import would pick it up unchanged.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			merchant, _ := cmd.Flags().GetBool("merchant")
			settings, err := loadSettings()
			if err != nil {
				return err
			}

			var first, second string
			if merchant {
				first, second, err = reloadTwice(cmd.Context(), merchantLoader(settings), merchantSummary)
			} else {
				first, second, err = reloadTwice(cmd.Context(), bankLoader(settings), bankSummary)
			}
			if err != nil {
				return common.NewUserError("Rule reload failed", err)
			}
			if first != second {
				return common.NewUserError("Reloaded rules differ from the initial load", nil)
			}

			out := cmd.OutOrStdout()
			writeln(out, cli.FormatSuccess("Rules reload cleanly"))
			writeln(out, second)
			return nil
		},
	}
}

func reloadTwice[T rules.Document](ctx context.Context, loader *rules.Loader[T], summarize func(T) string) (string, string, error) {
	first, err := loader.Load(ctx)
	if err != nil {
		return "", "", err
	}
	second, err := loader.Reload(ctx)
	if err != nil {
		return "", "", err
	}
	return summarize(first), summarize(second), nil
}

func bankSummary(doc model.RuleDocument) string {
	return fmt.Sprintf("Version: %s\nBanks: %d\nPatterns: %d",
		doc.Version, len(doc.Banks), len(doc.PatternStrings()))
}

func merchantSummary(doc model.MerchantRulesConfig) string {
	return fmt.Sprintf("Version: %s\nCategories: %d\nPatterns: %d\nFallback: %s",
		doc.Version, len(doc.Categories), len(doc.PatternStrings()), doc.FallbackCategory)
}

func writePatternErrors(w io.Writer, errs []error) {
	if len(errs) == 0 {
		return
	}
	writeln(w, cli.FormatWarning(fmt.Sprintf("%d patterns are not valid regular expressions and will match literally:", len(errs))))
	for _, err := range errs {
		var pe *rules.PatternError
		if errors.As(err, &pe) {
			writef(w, "  %s\n", pe.Pattern)
		}
	}
}

// unwrapLoadError drops the source prefix the user already typed.
func unwrapLoadError(err error) error {
	var le *rules.LoadError
	if errors.As(err, &le) {
		return le.Err
	}
	return err
}
