package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Serper     SerperConfig     `yaml:"serper" mapstructure:"serper"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Sheets     SheetsConfig     `yaml:"sheets" mapstructure:"sheets"`
	Classifier ClassifierConfig `yaml:"classifier" mapstructure:"classifier"`
	Backfill   BackfillConfig   `yaml:"backfill" mapstructure:"backfill"`
	Journal    JournalConfig    `yaml:"journal" mapstructure:"journal"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// SerperConfig holds Serper.dev news search settings.
type SerperConfig struct {
	Key        string `yaml:"key" mapstructure:"key"`
	BaseURL    string `yaml:"base_url" mapstructure:"base_url"`
	Country    string `yaml:"country" mapstructure:"country"`
	NumResults int    `yaml:"num_results" mapstructure:"num_results"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// SheetsConfig holds the Google Sheets target and credentials.
type SheetsConfig struct {
	SpreadsheetID   string `yaml:"spreadsheet_id" mapstructure:"spreadsheet_id"`
	CredentialsJSON string `yaml:"credentials_json" mapstructure:"credentials_json"`
	Worksheet       string `yaml:"worksheet" mapstructure:"worksheet"`
}

// ClassifierConfig controls the per-batch retry state machine.
type ClassifierConfig struct {
	// MaxAttempts is the total call budget per batch when rate limited
	// (including the first call).
	MaxAttempts int `yaml:"max_attempts" mapstructure:"max_attempts"`

	// RateLimitBackoffSecs is the base backoff; attempt n sleeps n×base.
	RateLimitBackoffSecs int `yaml:"rate_limit_backoff_secs" mapstructure:"rate_limit_backoff_secs"`

	// ParseRetryDelaySecs is the fixed delay before the single retry taken
	// when a non-empty response parses to zero records.
	ParseRetryDelaySecs int `yaml:"parse_retry_delay_secs" mapstructure:"parse_retry_delay_secs"`
}

// BackfillConfig configures the backfill run schedule.
type BackfillConfig struct {
	Queries        []string `yaml:"queries" mapstructure:"queries"`
	BatchSize      int      `yaml:"batch_size" mapstructure:"batch_size"`
	QueryPauseSecs int      `yaml:"query_pause_secs" mapstructure:"query_pause_secs"`
	BatchPauseSecs int      `yaml:"batch_pause_secs" mapstructure:"batch_pause_secs"`
	StartDate      string   `yaml:"start_date" mapstructure:"start_date"`
}

// JournalConfig configures the local run journal.
type JournalConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// defaultQueries is the fixed backfill query list for the Ghana cash-crop
// beat. Overridable via config file or the backfill --queries flag.
var defaultQueries = []string{
	"Ghana cocoa news",
	"COCOBOD announcement",
	"Ghana shea butter industry",
	"Ghana cashew export",
	"Ghana coffee farming",
	"Ghana cocoa investment funding",
	"Ghana agriculture startup funding",
	"cocoa farmer financing Ghana",
	"shea butter investment Africa",
	"Hershey cocoa Ghana",
	"Tony's Chocolonely Ghana",
	"ECOM cocoa Ghana",
	"World Cocoa Foundation Ghana",
	"Ghana Cocoa Board",
	"cocoa price Ghana",
	"sustainable cocoa Ghana",
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CROPWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("serper.base_url", "https://google.serper.dev")
	v.SetDefault("serper.country", "gh")
	v.SetDefault("serper.num_results", 20)
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 2000)
	v.SetDefault("sheets.worksheet", "News Data")
	v.SetDefault("classifier.max_attempts", 4)
	v.SetDefault("classifier.rate_limit_backoff_secs", 180)
	v.SetDefault("classifier.parse_retry_delay_secs", 10)
	v.SetDefault("backfill.queries", defaultQueries)
	v.SetDefault("backfill.batch_size", 3)
	v.SetDefault("backfill.query_pause_secs", 1)
	v.SetDefault("backfill.batch_pause_secs", 60)
	v.SetDefault("backfill.start_date", "2025-11-01")
	v.SetDefault("journal.path", "cropwatch.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// MissingCredentials returns the names of required credentials that are not
// set. A non-empty result is a fatal startup condition: the pipeline must
// not touch the network without all four.
func (c *Config) MissingCredentials() []string {
	var missing []string
	if c.Serper.Key == "" {
		missing = append(missing, "CROPWATCH_SERPER_KEY")
	}
	if c.Anthropic.Key == "" {
		missing = append(missing, "CROPWATCH_ANTHROPIC_KEY")
	}
	if c.Sheets.SpreadsheetID == "" {
		missing = append(missing, "CROPWATCH_SHEETS_SPREADSHEET_ID")
	}
	if c.Sheets.CredentialsJSON == "" {
		missing = append(missing, "CROPWATCH_SHEETS_CREDENTIALS_JSON")
	}
	return missing
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
