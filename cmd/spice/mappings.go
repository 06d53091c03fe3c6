package main

import (
	"fmt"

	"github.com/Veraticus/spice-sms/internal/cli"
	"github.com/Veraticus/spice-sms/internal/common"
	"github.com/Veraticus/spice-sms/internal/model"
	"github.com/Veraticus/spice-sms/internal/storage"
	"github.com/spf13/cobra"
)

func mappingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mappings",
		Short: "Manage merchant mappings",
		Long: `View, edit, and delete merchant mappings.

A mapping rewrites a merchant alias as it appears in messages to a canonical
name, and can pin that merchant to a category ahead of the category rules.`,
	}

	// Subcommands
	cmd.AddCommand(mappingsListCmd())
	cmd.AddCommand(mappingsSetCmd())
	cmd.AddCommand(mappingsDeleteCmd())

	return cmd
}

func mappingsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all merchant mappings",
		Long:  `List all merchant mappings with their usage statistics.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStorage(cmd, func(store *storage.SQLiteStorage) error {
				mappings, err := store.ListMappings(cmd.Context())
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if len(mappings) == 0 {
					writeln(out, cli.FormatInfo("No merchant mappings yet"))
					return nil
				}

				writeln(out, cli.TableHeaderStyle.Render(fmt.Sprintf("%-24s %-24s %-20s %-8s %6s", "Alias", "Normalized", "Category", "Source", "Used")))
				for _, m := range mappings {
					writef(out, "%-24s %-24s %-20s %-8s %6d\n",
						truncate(m.Alias, 24), truncate(m.NormalizedName, 24),
						truncate(categoryLabel(m.Category), 20), m.Source, m.UseCount)
				}
				writeln(out, cli.SubtleStyle.Render(fmt.Sprintf("%d mappings", len(mappings))))
				return nil
			})
		},
	}
}

func mappingsSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <alias>",
		Short: "Create or update a merchant mapping",
		Long: `Create or update the mapping for a merchant alias. The alias is normalized
the same way merchants in messages are, so "SWIGGY*BANGALORE" and
"swiggy bangalore" refer to the same mapping.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			normalized, _ := cmd.Flags().GetString("normalized")
			category, _ := cmd.Flags().GetString("category")
			display, _ := cmd.Flags().GetString("display")

			if normalized == "" && category == "" {
				return common.NewUserError("Provide --normalized, --category, or both", nil)
			}

			return withStorage(cmd, func(store *storage.SQLiteStorage) error {
				mapping := &model.MerchantMapping{
					Alias:          args[0],
					NormalizedName: normalized,
					DisplayName:    display,
					Category:       category,
					Source:         model.MappingSourceManual,
				}
				if err := store.SaveMapping(cmd.Context(), mapping); err != nil {
					return common.NewUserError("Failed to save mapping", err)
				}

				writeln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("%s → %s (%s)",
					mapping.Alias, mapping.NormalizedName, categoryLabel(mapping.Category))))
				return nil
			})
		},
	}

	cmd.Flags().String("normalized", "", "canonical merchant name")
	cmd.Flags().String("category", "", "category to assign")
	cmd.Flags().String("display", "", "display name")

	return cmd
}

func mappingsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <alias>",
		Short: "Delete a merchant mapping",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStorage(cmd, func(store *storage.SQLiteStorage) error {
				if err := store.DeleteMapping(cmd.Context(), args[0]); err != nil {
					if storage.IsNotFound(err) {
						return common.NewUserError(fmt.Sprintf("No mapping for %q", args[0]), nil)
					}
					return err
				}
				writeln(cmd.OutOrStdout(), cli.FormatSuccess("Deleted mapping for "+args[0]))
				return nil
			})
		},
	}
}

func categoryLabel(category string) string {
	if category == "" {
		return "-"
	}
	return category
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
