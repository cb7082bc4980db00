package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	API      APIConfig      `mapstructure:"api"`
	Database DatabaseConfig `mapstructure:"database"`
	Upload   UploadConfig   `mapstructure:"upload"`
	Compress CompressConfig `mapstructure:"compress"`
	Models   ModelsConfig   `mapstructure:"models"`
	Watcher  WatcherConfig  `mapstructure:"watcher"`
	Devis    DevisConfig    `mapstructure:"devis"`
}

type APIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type UploadConfig struct {
	// Concurrency bounds how many tasks of one batch cohort run at once.
	Concurrency int `mapstructure:"concurrency"`

	// Polling knobs for job status. The interval split between small and
	// large cohorts is a tuning knob, not a contract.
	PollMaxAttempts   int           `mapstructure:"poll_max_attempts"`
	PollIntervalSmall time.Duration `mapstructure:"poll_interval_small"`
	PollIntervalLarge time.Duration `mapstructure:"poll_interval_large"`
}

type CompressConfig struct {
	// MaxDimension is the longest edge after downscale. 2K reads fine for
	// OCR while cutting bandwidth drastically.
	MaxDimension int `mapstructure:"max_dimension"`
	JPEGQuality  int `mapstructure:"jpeg_quality"`
}

type ModelsConfig struct {
	Default string `mapstructure:"default"`
}

type WatcherConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Roots    []string      `mapstructure:"roots"`
	Debounce time.Duration `mapstructure:"debounce"`
}

type DevisConfig struct {
	Entreprise string  `mapstructure:"entreprise"`
	TVARate    float64 `mapstructure:"tva_rate"`
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable override
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set defaults
	v.SetDefault("api.base_url", "http://localhost:8000")
	v.SetDefault("api.timeout", "120s")
	v.SetDefault("database.path", "./data/docling.db")
	v.SetDefault("upload.concurrency", 3)
	v.SetDefault("upload.poll_max_attempts", 60)
	v.SetDefault("upload.poll_interval_small", "2s")
	v.SetDefault("upload.poll_interval_large", "3s")
	v.SetDefault("compress.max_dimension", 2000)
	v.SetDefault("compress.jpeg_quality", 85)
	v.SetDefault("models.default", "gemini-3-flash-preview")
	v.SetDefault("watcher.enabled", false)
	v.SetDefault("watcher.roots", []string{})
	v.SetDefault("watcher.debounce", "500ms")
	v.SetDefault("devis.entreprise", "Mon Entreprise BTP")
	v.SetDefault("devis.tva_rate", 21)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for sensitive data
	v.BindEnv("api.base_url", "DOCLING_API_URL")
	v.BindEnv("api.token", "DOCLING_TOKEN")
	v.BindEnv("database.path", "DOCLING_DB_PATH")
	v.BindEnv("models.default", "DOCLING_MODEL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
