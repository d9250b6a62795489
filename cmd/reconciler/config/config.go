// Package config loads the reconciler configuration from flags, environment,
// an optional config file and an optional .env file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"bank-transfer-reconciler/internal/api"
	"bank-transfer-reconciler/internal/archive"
	"bank-transfer-reconciler/internal/lock"
	"bank-transfer-reconciler/internal/notify"
	"bank-transfer-reconciler/internal/ocr"
	"bank-transfer-reconciler/internal/outbox"
	"bank-transfer-reconciler/internal/parsers"
	"bank-transfer-reconciler/internal/reconciler"
	"bank-transfer-reconciler/internal/reporter"
	"bank-transfer-reconciler/internal/store"
	"bank-transfer-reconciler/pkg/errors"
	"bank-transfer-reconciler/pkg/logger"
)

// EnvPrefix prefixes every environment variable, e.g. RECONCILER_DATABASE_DSN.
const EnvPrefix = "RECONCILER"

// ReconcilerSettings tunes batch processing
type ReconcilerSettings struct {
	MaxConcurrentDocuments int      `mapstructure:"max_concurrent_documents"`
	LanguageHints          []string `mapstructure:"language_hints"`
}

// Config is the complete application configuration
type Config struct {
	Database   store.Config           `mapstructure:"database"`
	Redis      lock.RedisConfig       `mapstructure:"redis"`
	SMTP       notify.SMTPConfig      `mapstructure:"smtp"`
	Messaging  notify.MessagingConfig `mapstructure:"messaging"`
	Gemini     ocr.GeminiConfig       `mapstructure:"gemini"`
	S3         archive.Config         `mapstructure:"s3"`
	HTTP       api.Config             `mapstructure:"http"`
	Dispatcher outbox.Config          `mapstructure:"dispatcher"`
	Log        logger.Config          `mapstructure:"log"`
	Reconciler ReconcilerSettings     `mapstructure:"reconciler"`
}

// SetDefaults registers every key so environment variables are picked up by
// Unmarshal.
func SetDefaults(v *viper.Viper) {
	db := store.DefaultConfig()
	v.SetDefault("database.driver", db.Driver)
	v.SetDefault("database.dsn", db.DSN)
	v.SetDefault("database.max_retries", db.MaxRetries)
	v.SetDefault("database.retry_delay", db.RetryDelay)
	v.SetDefault("database.max_open_conns", 0)
	v.SetDefault("database.log_queries", false)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.lock_ttl", 30*time.Second)
	v.SetDefault("redis.lock_wait", 10*time.Second)

	v.SetDefault("smtp.host", "")
	v.SetDefault("smtp.port", "587")
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.sender", "")
	v.SetDefault("smtp.timeout", 15*time.Second)

	v.SetDefault("messaging.endpoint", "")
	v.SetDefault("messaging.token", "")
	v.SetDefault("messaging.timeout", 10*time.Second)

	v.SetDefault("gemini.enabled", false)
	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model", ocr.DefaultModelName)
	v.SetDefault("gemini.timeout", 90*time.Second)

	v.SetDefault("s3.bucket", "")
	v.SetDefault("s3.region", "")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.access_key_id", "")
	v.SetDefault("s3.secret_access_key", "")
	v.SetDefault("s3.prefix", archive.DefaultPrefix)

	httpConfig := api.DefaultConfig()
	v.SetDefault("http.addr", httpConfig.Addr)
	v.SetDefault("http.admin_token", "")
	v.SetDefault("http.max_upload_bytes", httpConfig.MaxUploadBytes)
	v.SetDefault("http.read_timeout", httpConfig.ReadTimeout)
	v.SetDefault("http.write_timeout", httpConfig.WriteTimeout)

	dispatcher := outbox.DefaultConfig()
	v.SetDefault("dispatcher.interval", dispatcher.Interval)
	v.SetDefault("dispatcher.batch_size", dispatcher.BatchSize)
	v.SetDefault("dispatcher.max_attempts", dispatcher.MaxAttempts)
	v.SetDefault("dispatcher.stuck_after", dispatcher.StuckAfter)

	logConfig := logger.DefaultConfig()
	v.SetDefault("log.level", string(logConfig.Level))
	v.SetDefault("log.format", string(logConfig.Format))
	v.SetDefault("log.output", string(logConfig.Output))
	v.SetDefault("log.file", "")
	v.SetDefault("log.caller_info", false)

	rec := reconciler.DefaultConfig()
	v.SetDefault("reconciler.max_concurrent_documents", rec.MaxConcurrentDocuments)
	v.SetDefault("reconciler.language_hints", rec.LanguageHints)
}

// BindEnv makes RECONCILER_SECTION_KEY variables override section.key
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
}

// LoadDotEnv loads variables from path into the process environment. A
// missing file is not an error. Variables already set win.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !os.IsNotExist(err) {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "env_file", path, err)
	}
	return nil
}

// Load decodes and validates the configuration held by v
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "config", nil, err).
			WithSuggestion("check the config file syntax and value types")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every section
func (c *Config) Validate() error {
	if err := c.Database.Validate(); err != nil {
		return err
	}
	if err := c.Dispatcher.Validate(); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "dispatcher", nil, err)
	}
	if err := c.Log.Validate(); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "log", nil, err)
	}
	if c.Gemini.Enabled && c.Gemini.APIKey == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, "gemini.api_key", "", nil).
			WithSuggestion("set RECONCILER_GEMINI_API_KEY or disable gemini")
	}
	if c.S3.Enabled() && c.S3.Region == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, "s3.region", "", nil)
	}
	if c.Reconciler.MaxConcurrentDocuments <= 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "reconciler.max_concurrent_documents",
			c.Reconciler.MaxConcurrentDocuments, nil)
	}
	return nil
}

// CreateReconcilerConfig builds the batch service configuration
func (c *Config) CreateReconcilerConfig() *reconciler.Config {
	config := reconciler.DefaultConfig()
	config.MaxConcurrentDocuments = c.Reconciler.MaxConcurrentDocuments
	if len(c.Reconciler.LanguageHints) > 0 {
		config.LanguageHints = c.Reconciler.LanguageHints
	}
	return config
}

// CreateRowParserConfig returns the row file layout with the given delimiter
func CreateRowParserConfig(delimiter string) (*parsers.RowParserConfig, error) {
	config := parsers.DefaultRowParserConfig()
	switch delimiter {
	case "", ",":
		config.Delimiter = ','
	case ";":
		config.Delimiter = ';'
	case "tab", "\\t", "\t":
		config.Delimiter = '\t'
	default:
		return nil, fmt.Errorf("unsupported delimiter %q, use ',', ';' or 'tab'", delimiter)
	}
	return config, config.Validate()
}

// CreateReportConfig creates a report configuration for the specified output format
func CreateReportConfig(format string) (*reporter.ReportConfig, error) {
	config := reporter.DefaultReportConfig()
	config.Format = reporter.OutputFormat(format)

	switch config.Format {
	case reporter.FormatConsole:
	case reporter.FormatJSON:
		config.IncludeSuccessful = true
	case reporter.FormatCSV:
		config.CSVHeaders = true
		config.CSVDelimiter = ','
	default:
		return nil, fmt.Errorf("invalid output format '%s'. Valid formats: console, json, csv", format)
	}
	return config, nil
}
