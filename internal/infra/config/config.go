// Package config provides configuration loading from YAML files.
package config

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Bot       BotConfig               `yaml:"bot"`
	AudioNode AudioNodeConfig         `yaml:"audio_node"`
	Sources   map[string]SourceConfig `yaml:"sources"`
	Resolver  ResolverConfig          `yaml:"resolver"`
	Filters   map[string]FilterConfig `yaml:"filters"`
	Database  DatabaseConfig          `yaml:"database"`
	Log       LogConfig               `yaml:"log"`
}

// BotConfig represents chat platform credentials and bot behavior.
type BotConfig struct {
	Token                string `yaml:"token" validate:"required"`
	UserID               string `yaml:"user_id" validate:"required"`
	InactivityTimeoutSec int    `yaml:"inactivity_timeout_sec" default:"600" validate:"gte=0"`
}

// AudioNodeConfig represents the audio node connection.
type AudioNodeConfig struct {
	Address  string `yaml:"address" default:"localhost:2333"`
	Password string `yaml:"password" validate:"required"`
	Secure   bool   `yaml:"secure"`
}

// SourceConfig represents one music source's configuration. Settings
// are source-specific and decoded on demand.
type SourceConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Settings map[string]any `yaml:"settings,omitempty"`
}

// FilterConfig represents one admission filter's configuration.
type FilterConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Settings map[string]any `yaml:"settings,omitempty"`
}

// ResolverConfig represents track resolution configuration.
type ResolverConfig struct {
	ConfidenceThreshold int `yaml:"confidence_threshold" default:"72" validate:"gte=0,lte=100"`
}

// DatabaseConfig represents the settings database location.
type DatabaseConfig struct {
	Path string `yaml:"path" default:"melba.db"`
}

// LogConfig represents logger configuration.
type LogConfig struct {
	Output string `yaml:"output" default:"stdout"`
	Level  string `yaml:"level" default:"info"`
	File   string `yaml:"file"`
}

// SpotifySettings are the decoded settings of the "spotify" source.
type SpotifySettings struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RefreshToken string `mapstructure:"refresh_token"`
}

// LastFMSettings are the decoded settings of the "lastfm" source.
type LastFMSettings struct {
	APIKey       string `mapstructure:"api_key"`
	SharedSecret string `mapstructure:"shared_secret"`
	SessionKey   string `mapstructure:"session_key"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for secrets.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	cfg.overrideFromEnv()

	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("BOT_TOKEN"); v != "" {
		c.Bot.Token = v
	}
	if v := os.Getenv("BOT_USER_ID"); v != "" {
		c.Bot.UserID = v
	}
	if v := os.Getenv("AUDIO_NODE_PASSWORD"); v != "" {
		c.AudioNode.Password = v
	}
	c.overrideSourceFromEnv("spotify", map[string]string{
		"client_id":     "SPOTIFY_CLIENT_ID",
		"client_secret": "SPOTIFY_CLIENT_SECRET",
		"refresh_token": "SPOTIFY_REFRESH_TOKEN",
	})
	c.overrideSourceFromEnv("lastfm", map[string]string{
		"api_key":       "LASTFM_API_KEY",
		"shared_secret": "LASTFM_SHARED_SECRET",
		"session_key":   "LASTFM_SESSION_KEY",
	})
}

func (c *Config) overrideSourceFromEnv(source string, envKeys map[string]string) {
	src, ok := c.Sources[source]
	if !ok {
		return
	}
	for key, envKey := range envKeys {
		if v := os.Getenv(envKey); v != "" {
			if src.Settings == nil {
				src.Settings = map[string]any{}
			}
			src.Settings[key] = v
		}
	}
	c.Sources[source] = src
}

// SourceEnabled reports whether the named source is configured and
// enabled.
func (c *Config) SourceEnabled(name string) bool {
	src, ok := c.Sources[name]
	return ok && src.Enabled
}

// SpotifySettings decodes the spotify source settings.
func (c *Config) SpotifySettings() (*SpotifySettings, error) {
	var s SpotifySettings
	if err := c.decodeSource("spotify", &s); err != nil {
		return nil, err
	}
	if s.ClientID == "" || s.ClientSecret == "" || s.RefreshToken == "" {
		return nil, errors.New("spotify source requires client_id, client_secret and refresh_token")
	}
	return &s, nil
}

// LastFMSettings decodes the lastfm source settings.
func (c *Config) LastFMSettings() (*LastFMSettings, error) {
	var s LastFMSettings
	if err := c.decodeSource("lastfm", &s); err != nil {
		return nil, err
	}
	if s.APIKey == "" || s.SharedSecret == "" {
		return nil, errors.New("lastfm source requires api_key and shared_secret")
	}
	return &s, nil
}

func (c *Config) decodeSource(name string, out any) error {
	src, ok := c.Sources[name]
	if !ok {
		return errors.Newf("source %q is not configured", name)
	}
	if err := mapstructure.Decode(src.Settings, out); err != nil {
		return errors.Wrapf(err, "failed to decode %s settings", name)
	}
	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	// Enabled sources must carry decodable, complete settings.
	if c.SourceEnabled("spotify") {
		if _, err := c.SpotifySettings(); err != nil {
			return err
		}
	}
	if c.SourceEnabled("lastfm") {
		if _, err := c.LastFMSettings(); err != nil {
			return err
		}
	}
	return nil
}
