// Package config loads and validates crawler configuration via Viper.
package config

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Upstream site constants are stored base64-obfuscated and decoded exactly
// once, at load time. Domain logic only ever sees the plain values.
var (
	defaultBaseURL          = mustDecode("aHR0cHM6Ly9rb21pa2luZG8uY2g=")
	defaultSensitiveDomains = []string{mustDecode("a29taWtpbmRv")}
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Archive ArchiveConfig `mapstructure:"archive"`
	Site    SiteConfig    `mapstructure:"site"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ArchiveConfig locates the on-disk JSON archive.
type ArchiveConfig struct {
	DataDir string `mapstructure:"data_dir"`
}

// SiteConfig identifies the upstream site and the URL set the codec
// obfuscates on disk.
type SiteConfig struct {
	BaseURL          string   `mapstructure:"base_url"`
	ListPath         string   `mapstructure:"list_path"`
	SensitiveDomains []string `mapstructure:"sensitive_domains"`
}

// HTTPConfig controls fetch pacing and timeouts.
type HTTPConfig struct {
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	DelaySeconds   float64 `mapstructure:"delay_seconds"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from defaults, environment variables, and whatever
// config file the supplied Viper instance has been pointed at.
func Load(v *viper.Viper) (Config, error) {
	v.SetEnvPrefix("KOMIKARSIP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("archive.data_dir", "data")
	v.SetDefault("site.base_url", defaultBaseURL)
	v.SetDefault("site.list_path", "/komik-terbaru/")
	v.SetDefault("site.sensitive_domains", defaultSensitiveDomains)
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.delay_seconds", 1.0)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Archive.DataDir) == "" {
		return fmt.Errorf("archive.data_dir must be set")
	}
	if !strings.HasPrefix(c.Site.BaseURL, "http") {
		return fmt.Errorf("site.base_url must be an absolute URL")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.DelaySeconds < 0 {
		return fmt.Errorf("http.delay_seconds must be >= 0")
	}
	return nil
}

// ListURL returns the absolute catalog listing URL.
func (c Config) ListURL() string {
	return strings.TrimRight(c.Site.BaseURL, "/") + c.Site.ListPath
}

// Timeout converts the configured timeout into a duration.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// Delay converts the configured inter-request delay into a duration.
func (c Config) Delay() time.Duration {
	return time.Duration(c.HTTP.DelaySeconds * float64(time.Second))
}

func mustDecode(s string) string {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		panic(fmt.Sprintf("config: bad encoded constant: %v", err))
	}
	return string(raw)
}
