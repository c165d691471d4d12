// Package config loads vigil settings from defaults, an optional YAML file
// and VIGIL_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the complete vigil configuration.
type Config struct {
	// DB is the SQLite database path.
	DB string `mapstructure:"db"`
	// Listen is the HTTP listen address for serve.
	Listen string `mapstructure:"listen"`
	// Models lists the model ids queries may target. Empty allows any.
	Models    []string        `mapstructure:"models"`
	Artifacts ArtifactsConfig `mapstructure:"artifacts"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Grounding GroundingConfig `mapstructure:"grounding"`
	Sweep     SweepConfig     `mapstructure:"sweep"`
}

// ArtifactsConfig selects the model artifact store. Bucket selects GCS,
// Dir a local directory.
type ArtifactsConfig struct {
	Bucket          string        `mapstructure:"bucket"`
	Dir             string        `mapstructure:"dir"`
	CredentialsFile string        `mapstructure:"credentials_file"`
	FetchTimeout    time.Duration `mapstructure:"fetch_timeout"`
}

type CacheConfig struct {
	// MaxEntries bounds loaded model handles; 0 is unbounded.
	MaxEntries int `mapstructure:"max_entries"`
}

type GroundingConfig struct {
	URL     string        `mapstructure:"url"`
	Table   string        `mapstructure:"table"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type SweepConfig struct {
	FindDelta bool `mapstructure:"find_delta"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("db", "vigil.db")
	v.SetDefault("listen", ":8080")
	v.SetDefault("models", []string{})
	v.SetDefault("artifacts.bucket", "")
	v.SetDefault("artifacts.dir", "")
	v.SetDefault("artifacts.credentials_file", "")
	v.SetDefault("artifacts.fetch_timeout", 60*time.Second)
	v.SetDefault("cache.max_entries", 0)
	v.SetDefault("grounding.url", "")
	v.SetDefault("grounding.table", "")
	v.SetDefault("grounding.timeout", 10*time.Second)
	v.SetDefault("sweep.find_delta", true)
}

// Load reads configuration. With an empty path, vigil.yaml is looked up in
// the working directory and then $HOME/.config/vigil; a missing file is not
// an error. An explicit path must exist.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("VIGIL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("vigil")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "vigil"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that would otherwise fail late.
func (c *Config) Validate() error {
	if c.DB == "" {
		return fmt.Errorf("config: db must be set")
	}
	if c.Artifacts.Bucket != "" && c.Artifacts.Dir != "" {
		return fmt.Errorf("config: artifacts.bucket and artifacts.dir are mutually exclusive")
	}
	if c.Artifacts.FetchTimeout <= 0 {
		return fmt.Errorf("config: artifacts.fetch_timeout must be positive")
	}
	if c.Cache.MaxEntries < 0 {
		return fmt.Errorf("config: cache.max_entries must not be negative")
	}
	if c.Grounding.Timeout <= 0 {
		return fmt.Errorf("config: grounding.timeout must be positive")
	}
	return nil
}
