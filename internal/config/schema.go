package config

import "time"

// Config holds the runtime configuration.
// Default location: ./config.yaml or $HOME/.prism/config.yaml.
type Config struct {
	Provider ProviderCfg `mapstructure:"provider" yaml:"provider"`
	Limits   LimitsCfg   `mapstructure:"limits" yaml:"limits"`
	Airtable AirtableCfg `mapstructure:"airtable" yaml:"airtable"`
	Export   ExportCfg   `mapstructure:"export" yaml:"export"`

	// FieldsFile is the path to the declarative field specification.
	FieldsFile string `mapstructure:"fields_file" yaml:"fields_file"`
}

// ProviderCfg configures the LLM provider.
type ProviderCfg struct {
	Type        string        `mapstructure:"type" yaml:"type"`   // "openai"
	Model       string        `mapstructure:"model" yaml:"model"` // Model name
	APIKey      string        `mapstructure:"api_key" yaml:"api_key"` // Supports ${ENV_VAR} syntax
	Temperature float64       `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	MaxAttempts uint          `mapstructure:"max_attempts" yaml:"max_attempts"` // First try plus retries
	RetryDelay  time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`   // Backoff seed
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// LimitsCfg configures call admission and run concurrency.
type LimitsCfg struct {
	MaxConcurrentCalls int           `mapstructure:"max_concurrent_calls" yaml:"max_concurrent_calls"`
	MinCallInterval    time.Duration `mapstructure:"min_call_interval" yaml:"min_call_interval"`
	AdmitTimeout       time.Duration `mapstructure:"admit_timeout" yaml:"admit_timeout"`
	MaxWorkers         int           `mapstructure:"max_workers" yaml:"max_workers"` // Concurrent documents
}

// AirtableCfg configures the record store.
type AirtableCfg struct {
	APIKey         string `mapstructure:"api_key" yaml:"api_key"` // Supports ${ENV_VAR} syntax
	BaseID         string `mapstructure:"base_id" yaml:"base_id"`
	Table          string `mapstructure:"table" yaml:"table"`
	PendingFormula string `mapstructure:"pending_formula" yaml:"pending_formula"`
}

// ExportCfg configures spreadsheet exports.
type ExportCfg struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Provider: ProviderCfg{
			Type:        "openai",
			Model:       "gpt-4o-mini",
			APIKey:      "${OPENAI_API_KEY}",
			Temperature: 0,
			MaxAttempts: 4,
			RetryDelay:  500 * time.Millisecond,
			Timeout:     120 * time.Second,
		},
		Limits: LimitsCfg{
			MaxConcurrentCalls: 2,
			MinCallInterval:    200 * time.Millisecond,
			AdmitTimeout:       2 * time.Minute,
			MaxWorkers:         4,
		},
		Airtable: AirtableCfg{
			APIKey: "${AIRTABLE_API_KEY}",
			BaseID: "${AIRTABLE_BASE_ID}",
			Table:  "Studies",
		},
		Export: ExportCfg{
			Dir: "exports",
		},
		FieldsFile: "fields.yaml",
	}
}
