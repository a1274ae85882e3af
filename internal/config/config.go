// Package config handles loading, defaulting and hot-reloading of the
// runtime configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Manager handles loading and hot-reloading configuration.
type Manager struct {
	v *viper.Viper

	mu        sync.RWMutex
	config    *Config
	callbacks []func(*Config)
}

// NewManager creates a config manager and loads the initial config. A
// missing config file is not an error; defaults apply.
func NewManager(cfgFile string) (*Manager, error) {
	cm := &Manager{
		v:         viper.New(),
		callbacks: make([]func(*Config), 0),
	}

	if err := cm.initViper(cfgFile); err != nil {
		return nil, err
	}

	cfg, err := cm.load()
	if err != nil {
		return nil, err
	}
	cm.config = cfg

	return cm, nil
}

// initViper sets up viper with defaults and the config file.
func (cm *Manager) initViper(cfgFile string) error {
	defaults := DefaultConfig()
	cm.v.SetDefault("provider.type", defaults.Provider.Type)
	cm.v.SetDefault("provider.model", defaults.Provider.Model)
	cm.v.SetDefault("provider.api_key", defaults.Provider.APIKey)
	cm.v.SetDefault("provider.temperature", defaults.Provider.Temperature)
	cm.v.SetDefault("provider.max_tokens", defaults.Provider.MaxTokens)
	cm.v.SetDefault("provider.max_attempts", defaults.Provider.MaxAttempts)
	cm.v.SetDefault("provider.retry_delay", defaults.Provider.RetryDelay)
	cm.v.SetDefault("provider.timeout", defaults.Provider.Timeout)
	cm.v.SetDefault("limits.max_concurrent_calls", defaults.Limits.MaxConcurrentCalls)
	cm.v.SetDefault("limits.min_call_interval", defaults.Limits.MinCallInterval)
	cm.v.SetDefault("limits.admit_timeout", defaults.Limits.AdmitTimeout)
	cm.v.SetDefault("limits.max_workers", defaults.Limits.MaxWorkers)
	cm.v.SetDefault("airtable.api_key", defaults.Airtable.APIKey)
	cm.v.SetDefault("airtable.base_id", defaults.Airtable.BaseID)
	cm.v.SetDefault("airtable.table", defaults.Airtable.Table)
	cm.v.SetDefault("airtable.pending_formula", defaults.Airtable.PendingFormula)
	cm.v.SetDefault("export.dir", defaults.Export.Dir)
	cm.v.SetDefault("fields_file", defaults.FieldsFile)

	// Environment variables with PRISM_ prefix
	cm.v.SetEnvPrefix("PRISM")
	cm.v.AutomaticEnv()

	if cfgFile != "" {
		cm.v.SetConfigFile(cfgFile)
	} else {
		cm.v.SetConfigName("config")
		cm.v.SetConfigType("yaml")
		cm.v.AddConfigPath(".")
		cm.v.AddConfigPath("$HOME/.prism")
	}

	if err := cm.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return nil
}

// load parses the current viper state into a Config struct.
func (cm *Manager) load() (*Config, error) {
	var cfg Config
	if err := cm.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Get returns the current configuration (thread-safe).
func (cm *Manager) Get() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// OnChange registers a callback for config changes.
func (cm *Manager) OnChange(fn func(*Config)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks = append(cm.callbacks, fn)
}

// WatchConfig enables hot-reloading of the configuration file.
func (cm *Manager) WatchConfig() {
	cm.v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := cm.load()
		if err != nil {
			return
		}

		cm.mu.Lock()
		cm.config = cfg
		callbacks := make([]func(*Config), len(cm.callbacks))
		copy(callbacks, cm.callbacks)
		cm.mu.Unlock()

		for _, fn := range callbacks {
			fn(cfg)
		}
	})
	cm.v.WatchConfig()
}

// ResolveEnvVars expands ${ENV_VAR} references in a string.
func ResolveEnvVars(value string) string {
	if value == "" {
		return value
	}
	pattern := regexp.MustCompile(`\$\{([^}]+)\}`)
	return pattern.ReplaceAllStringFunc(value, func(match string) string {
		varName := match[2 : len(match)-1]
		return os.Getenv(varName)
	})
}

// WriteDefault writes the default configuration to the specified path.
func WriteDefault(path string) error {
	cfg := DefaultConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# PRISM configuration
# API keys use ${ENV_VAR} syntax to reference environment variables
# Set these in your shell: export OPENAI_API_KEY=xxx AIRTABLE_API_KEY=xxx AIRTABLE_BASE_ID=xxx

`)
	return os.WriteFile(path, append(header, data...), 0o644)
}
