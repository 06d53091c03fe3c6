package main

import (
	"fmt"
	"strings"

	"github.com/Veraticus/spice-sms/internal/cli"
	"github.com/Veraticus/spice-sms/internal/common"
	"github.com/spf13/cobra"
)

func categorizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "categorize <merchant>...",
		Short: "Show the category for merchant names",
		Long: `Categorize one or more merchant names using saved mappings and the
merchant category rules.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runCategorize,
	}

	cmd.Flags().Bool("rules-only", false, "ignore saved merchant mappings")

	return cmd
}

func runCategorize(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	rulesOnly, _ := cmd.Flags().GetBool("rules-only")

	settings, err := loadSettings()
	if err != nil {
		return err
	}

	engine := initCategorizer(settings, nil)
	if !rulesOnly {
		store, err := initStorage(ctx, settings)
		if err != nil {
			return err
		}
		defer closeStorage(store)
		engine = initCategorizer(settings, store)
	}

	for _, merchant := range args {
		result := engine.Categorize(ctx, merchant)

		source := "fallback"
		if result.MatchedPattern != nil {
			source = *result.MatchedPattern
		}
		writef(out, "%-30s %s %s\n",
			common.NormalizeMerchant(merchant),
			cli.FormatCategory(result),
			cli.SubtleStyle.Render(fmt.Sprintf("[%d%% %s]", result.Confidence, strings.TrimSpace(source))))
	}

	if engine.Degraded() {
		writeln(out, cli.FormatWarning("Merchant rules could not be loaded; built-in keywords were used"))
	}
	return nil
}
