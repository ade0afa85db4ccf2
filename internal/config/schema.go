package config

import "time"

// Config holds folio configuration.
// Stored at: {home}/config.yaml
type Config struct {
	Detectors   map[string]DetectorCfg   `mapstructure:"detectors" yaml:"detectors"`
	Recognizers map[string]RecognizerCfg `mapstructure:"recognizers" yaml:"recognizers"`
	Ingest      IngestCfg                `mapstructure:"ingest" yaml:"ingest"`
	Pipeline    PipelineCfg              `mapstructure:"pipeline" yaml:"pipeline"`
	Server      ServerCfg                `mapstructure:"server" yaml:"server"`
	Events      EventsCfg                `mapstructure:"events" yaml:"events"`
}

// DetectorCfg configures a region detection provider.
type DetectorCfg struct {
	Type      string  `mapstructure:"type" yaml:"type"`             // "http"
	BaseURL   string  `mapstructure:"base_url" yaml:"base_url"`     // Detection service URL
	Model     string  `mapstructure:"model" yaml:"model"`           // Model name
	APIKey    string  `mapstructure:"api_key" yaml:"api_key"`       // API key (supports ${ENV_VAR} syntax)
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit"` // Requests per second
	Enabled   bool    `mapstructure:"enabled" yaml:"enabled"`
}

// RecognizerCfg configures a text recognition provider.
type RecognizerCfg struct {
	Type      string  `mapstructure:"type" yaml:"type"`             // "http", "openai-vision"
	BaseURL   string  `mapstructure:"base_url" yaml:"base_url"`     // OCR service URL (http type)
	Model     string  `mapstructure:"model" yaml:"model"`           // Model name
	APIKey    string  `mapstructure:"api_key" yaml:"api_key"`       // API key (supports ${ENV_VAR} syntax)
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit"` // Requests per second
	Enabled   bool    `mapstructure:"enabled" yaml:"enabled"`
}

// IngestCfg configures the upload gate.
type IngestCfg struct {
	MaxUploadMB  int    `mapstructure:"max_upload_mb" yaml:"max_upload_mb"`
	MaxPages     int    `mapstructure:"max_pages" yaml:"max_pages"`
	RasterDPI    int    `mapstructure:"raster_dpi" yaml:"raster_dpi"`
	PdftoppmPath string `mapstructure:"pdftoppm_path" yaml:"pdftoppm_path"`
}

// PipelineCfg configures the pipeline scheduler.
type PipelineCfg struct {
	Workers           int           `mapstructure:"workers" yaml:"workers"`
	QueueSize         int           `mapstructure:"queue_size" yaml:"queue_size"`
	Detector          string        `mapstructure:"detector" yaml:"detector"`     // Default detector name
	Recognizer        string        `mapstructure:"recognizer" yaml:"recognizer"` // Default recognizer name
	PageConcurrency   int           `mapstructure:"page_concurrency" yaml:"page_concurrency"`
	RegionConcurrency int           `mapstructure:"region_concurrency" yaml:"region_concurrency"`
	RetryAttempts     int           `mapstructure:"retry_attempts" yaml:"retry_attempts"`
	RetryDelay        time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
	LowConfidence     float64       `mapstructure:"low_confidence" yaml:"low_confidence"`
	JobRetention      time.Duration `mapstructure:"job_retention" yaml:"job_retention"`
}

// ServerCfg configures the HTTP server.
type ServerCfg struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
}

// EventsCfg configures completion event delivery.
type EventsCfg struct {
	WebhookTargets []string      `mapstructure:"webhook_targets" yaml:"webhook_targets"`
	SendTimeout    time.Duration `mapstructure:"send_timeout" yaml:"send_timeout"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Detectors: map[string]DetectorCfg{
			"yolo": {
				Type:      "http",
				BaseURL:   "http://localhost:8600",
				Model:     "folio-regions-v2",
				APIKey:    "${FOLIO_DETECTOR_API_KEY}",
				RateLimit: 5.0,
				Enabled:   true,
			},
		},
		Recognizers: map[string]RecognizerCfg{
			"ocr": {
				Type:      "http",
				BaseURL:   "http://localhost:8601",
				APIKey:    "${FOLIO_OCR_API_KEY}",
				RateLimit: 10.0,
				Enabled:   true,
			},
			"openai": {
				Type:      "openai-vision",
				Model:     "gpt-4o-mini",
				APIKey:    "${OPENAI_API_KEY}",
				RateLimit: 3.0,
				Enabled:   false,
			},
		},
		Ingest: IngestCfg{
			MaxUploadMB: 50,
			MaxPages:    50,
			RasterDPI:   220,
		},
		Pipeline: PipelineCfg{
			Workers:           4,
			QueueSize:         64,
			Detector:          "detector-http",
			Recognizer:        "ocr-http",
			PageConcurrency:   4,
			RegionConcurrency: 8,
			RetryAttempts:     3,
			RetryDelay:        time.Second,
			LowConfidence:     0.5,
			JobRetention:      7 * 24 * time.Hour,
		},
		Server: ServerCfg{
			Host: "127.0.0.1",
			Port: 8580,
		},
		Events: EventsCfg{
			SendTimeout: 10 * time.Second,
		},
	}
}

// GetDetector returns a detector config by name.
func (c *Config) GetDetector(name string) (DetectorCfg, bool) {
	cfg, ok := c.Detectors[name]
	return cfg, ok
}

// GetRecognizer returns a recognizer config by name.
func (c *Config) GetRecognizer(name string) (RecognizerCfg, bool) {
	cfg, ok := c.Recognizers[name]
	return cfg, ok
}

// EnabledDetectors returns all enabled detectors.
func (c *Config) EnabledDetectors() map[string]DetectorCfg {
	result := make(map[string]DetectorCfg)
	for name, cfg := range c.Detectors {
		if cfg.Enabled {
			result[name] = cfg
		}
	}
	return result
}

// EnabledRecognizers returns all enabled recognizers.
func (c *Config) EnabledRecognizers() map[string]RecognizerCfg {
	result := make(map[string]RecognizerCfg)
	for name, cfg := range c.Recognizers {
		if cfg.Enabled {
			result[name] = cfg
		}
	}
	return result
}
