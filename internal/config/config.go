package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"

	"github.com/folio-health/folio/internal/capability"
)

// Manager handles loading and hot-reloading configuration.
type Manager struct {
	mu        sync.RWMutex
	config    *Config
	callbacks []func(*Config)
}

// NewManager creates a new config manager and loads initial config.
func NewManager(cfgFile string) (*Manager, error) {
	cm := &Manager{
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

// initViper sets up viper with defaults and config file.
func (cm *Manager) initViper(cfgFile string) error {
	defaults := DefaultConfig()
	viper.SetDefault("detectors", defaults.Detectors)
	viper.SetDefault("recognizers", defaults.Recognizers)
	viper.SetDefault("ingest", defaults.Ingest)
	viper.SetDefault("pipeline", defaults.Pipeline)
	viper.SetDefault("server", defaults.Server)
	viper.SetDefault("events", defaults.Events)

	// Environment variables with FOLIO_ prefix
	viper.SetEnvPrefix("FOLIO")
	viper.AutomaticEnv()

	// Config file
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.folio")
	}

	// Try to read config file (not required)
	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	if path := viper.ConfigFileUsed(); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
		if err := ValidateFile(data); err != nil {
			return fmt.Errorf("invalid config file %s: %w", path, err)
		}
	}

	return nil
}

// load parses the current viper state into a Config struct.
func (cm *Manager) load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
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

// WatchConfig enables hot-reloading of configuration.
func (cm *Manager) WatchConfig() {
	viper.OnConfigChange(func(e fsnotify.Event) {
		// Keep the previous config when the edited file is invalid.
		if data, err := os.ReadFile(e.Name); err == nil {
			if err := ValidateFile(data); err != nil {
				return
			}
		}

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
	viper.WatchConfig()
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

// BuildRegistry constructs the capability registry from the enabled
// providers, resolving ${ENV_VAR} references in API keys.
func (c *Config) BuildRegistry() (*capability.Registry, error) {
	reg := capability.NewRegistry()

	for name, det := range c.EnabledDetectors() {
		switch det.Type {
		case "http":
			reg.RegisterDetector(capability.NewHTTPDetector(capability.HTTPDetectorConfig{
				BaseURL:   det.BaseURL,
				APIKey:    ResolveEnvVars(det.APIKey),
				Model:     det.Model,
				RateLimit: det.RateLimit,
			}))
		default:
			return nil, fmt.Errorf("detector %q has unknown type %q", name, det.Type)
		}
	}

	for name, rec := range c.EnabledRecognizers() {
		switch rec.Type {
		case "http":
			reg.RegisterRecognizer(capability.NewHTTPRecognizer(capability.HTTPRecognizerConfig{
				BaseURL:   rec.BaseURL,
				APIKey:    ResolveEnvVars(rec.APIKey),
				Model:     rec.Model,
				RateLimit: rec.RateLimit,
			}))
		case "openai-vision":
			reg.RegisterRecognizer(capability.NewOpenAIRecognizer(capability.OpenAIRecognizerConfig{
				APIKey:    ResolveEnvVars(rec.APIKey),
				Model:     rec.Model,
				RateLimit: rec.RateLimit,
				BaseURL:   rec.BaseURL,
			}))
		default:
			return nil, fmt.Errorf("recognizer %q has unknown type %q", name, rec.Type)
		}
	}

	return reg, nil
}

// MaxUploadBytes converts the configured upload limit to bytes.
func (c *IngestCfg) MaxUploadBytes() int64 {
	if c.MaxUploadMB <= 0 {
		return 50 << 20
	}
	return int64(c.MaxUploadMB) << 20
}

// Retention returns the job retention window with a default applied.
func (c *PipelineCfg) Retention() time.Duration {
	if c.JobRetention <= 0 {
		return 7 * 24 * time.Hour
	}
	return c.JobRetention
}

// WriteDefault writes the default configuration to the specified path.
func WriteDefault(path string) error {
	cfg := DefaultConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# Folio configuration
# API keys use ${ENV_VAR} syntax to reference environment variables
# Set these in your shell: export FOLIO_DETECTOR_API_KEY=xxx FOLIO_OCR_API_KEY=xxx OPENAI_API_KEY=xxx

`)
	return os.WriteFile(path, append(header, data...), 0o644)
}
