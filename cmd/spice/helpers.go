package main

import (
	"context"
	"fmt"
	"io"

	"github.com/Veraticus/spice-sms/internal/categorize"
	"github.com/Veraticus/spice-sms/internal/common"
	"github.com/Veraticus/spice-sms/internal/config"
	"github.com/Veraticus/spice-sms/internal/model"
	"github.com/Veraticus/spice-sms/internal/parser"
	"github.com/Veraticus/spice-sms/internal/rules"
	"github.com/Veraticus/spice-sms/internal/storage"
	"github.com/spf13/cobra"
)

// loadSettings resolves and validates the configuration.
func loadSettings() (*config.Settings, error) {
	settings, err := config.Load()
	if err != nil {
		return nil, common.NewUserError("Invalid configuration", err)
	}
	return settings, nil
}

// initStorage opens the database and brings its schema up to date.
func initStorage(ctx context.Context, settings *config.Settings) (*storage.SQLiteStorage, error) {
	store, err := storage.NewSQLiteStorage(settings.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", settings.DatabasePath, err)
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// bankLoader returns the loader for the configured bank rules.
func bankLoader(settings *config.Settings) *rules.Loader[model.RuleDocument] {
	return rules.NewBankLoader(rules.SourceFor(settings.BankRulesPath, rules.EmbeddedBankRules()))
}

// merchantLoader returns the loader for the configured merchant rules.
func merchantLoader(settings *config.Settings) *rules.Loader[model.MerchantRulesConfig] {
	return rules.NewMerchantLoader(rules.SourceFor(settings.MerchantRulesPath, rules.EmbeddedMerchantRules()))
}

// initParser builds the SMS parser. store may be nil.
func initParser(settings *config.Settings, store parser.NormalizationStore) *parser.Parser {
	opts := []parser.Option{parser.WithStrictRules(settings.StrictRules)}
	if store != nil {
		opts = append(opts, parser.WithNormalizationStore(store))
	}
	return parser.New(bankLoader(settings), opts...)
}

// initCategorizer builds the categorization engine. store may be nil.
func initCategorizer(settings *config.Settings, store categorize.MappingStore) *categorize.Engine {
	var opts []categorize.Option
	if store != nil {
		opts = append(opts, categorize.WithMappingStore(store))
	}
	return categorize.New(merchantLoader(settings), opts...)
}

func closeStorage(store *storage.SQLiteStorage) {
	if err := store.Close(); err != nil {
		common.LogWarn("Failed to close database", common.Fields{"error": err.Error()})
	}
}

func writeln(w io.Writer, a ...any) {
	_, _ = fmt.Fprintln(w, a...)
}

func writef(w io.Writer, format string, a ...any) {
	_, _ = fmt.Fprintf(w, format, a...)
}

// withStorage opens the configured database for the duration of fn.
func withStorage(cmd *cobra.Command, fn func(store *storage.SQLiteStorage) error) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}

	store, err := initStorage(cmd.Context(), settings)
	if err != nil {
		return common.NewUserError("Failed to initialize storage", err)
	}
	defer closeStorage(store)

	return fn(store)
}
