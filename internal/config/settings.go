package config

import (
	"fmt"
	"os"
	"runtime"

	"github.com/Veraticus/spice-sms/internal/common"
	"github.com/spf13/viper"
)

// Defaults applied when neither the config file nor the environment set a key.
const (
	DefaultDatabasePath = "$HOME/.local/share/spice-sms/spice-sms.db"
	DefaultLogLevel     = "info"
	DefaultLogFormat    = "console"
	DefaultAutoAccept   = 0.85
	DefaultManualReview = 0.50
)

// Settings is the resolved runtime configuration.
type Settings struct {
	BankRulesPath     string
	MerchantRulesPath string
	DatabasePath      string
	LogLevel          string
	LogFormat         string
	Workers           int
	// AutoAccept and ManualReview only affect how scores are highlighted in the CLI.
	AutoAccept   float64
	ManualReview float64
	StrictRules  bool
}

// DefaultSettings returns settings with every default filled in.
func DefaultSettings() Settings {
	return Settings{
		DatabasePath: DefaultDatabasePath,
		LogLevel:     DefaultLogLevel,
		LogFormat:    DefaultLogFormat,
		Workers:      runtime.NumCPU(),
		AutoAccept:   DefaultAutoAccept,
		ManualReview: DefaultManualReview,
	}
}

// Load resolves settings from the global viper instance.
func Load() (*Settings, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom resolves settings from v. Precedence:
// 1. Viper (config file, bound flags or SPICE_SMS_* env vars)
// 2. Direct environment variables (SPICE_SMS_DB)
// 3. Default values
func LoadFrom(v *viper.Viper) (*Settings, error) {
	s := DefaultSettings()

	if p := v.GetString("rules.bank_path"); p != "" {
		s.BankRulesPath = ExpandPath(p)
	}
	if p := v.GetString("rules.merchant_path"); p != "" {
		s.MerchantRulesPath = ExpandPath(p)
	}
	s.StrictRules = v.GetBool("rules.strict")

	if p := v.GetString("database.path"); p != "" {
		s.DatabasePath = p
	} else if p := os.Getenv("SPICE_SMS_DB"); p != "" {
		s.DatabasePath = p
	}
	s.DatabasePath = ExpandPath(s.DatabasePath)

	if v.IsSet("import.workers") {
		s.Workers = v.GetInt("import.workers")
	}
	if v.IsSet("confidence.auto_accept") {
		s.AutoAccept = v.GetFloat64("confidence.auto_accept")
	}
	if v.IsSet("confidence.manual_review") {
		s.ManualReview = v.GetFloat64("confidence.manual_review")
	}
	if l := v.GetString("logging.level"); l != "" {
		s.LogLevel = l
	}
	if f := v.GetString("logging.format"); f != "" {
		s.LogFormat = f
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks that the settings are usable.
func (s Settings) Validate() error {
	if s.DatabasePath == "" {
		return fmt.Errorf("%w: database.path", common.ErrMissingConfig)
	}
	if s.Workers < 1 {
		return fmt.Errorf("%w: import.workers must be at least 1, got %d", common.ErrInvalidConfig, s.Workers)
	}
	if s.ManualReview < 0 || s.AutoAccept > 1 || s.ManualReview > s.AutoAccept {
		return fmt.Errorf("%w: confidence thresholds must satisfy 0 <= manual_review <= auto_accept <= 1, got %.2f/%.2f",
			common.ErrInvalidConfig, s.ManualReview, s.AutoAccept)
	}
	if _, err := common.ParseLevel(s.LogLevel); err != nil {
		return err
	}
	if s.LogFormat != "console" && s.LogFormat != "json" {
		return fmt.Errorf("%w: log format %q", common.ErrInvalidConfig, s.LogFormat)
	}
	return nil
}
