package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"ambientcast.app/ambientcast/playback"
)

const (
	EnvLogLevel   = "AMBIENTCAST_LOG_LEVEL"
	EnvCastDevice = "AMBIENTCAST_CAST_DEVICE"

	DefaultSoundNamespace = "urn:x-cast:app.ambientcast.sound"
	DefaultEventNamespace = "urn:x-cast:app.ambientcast.event"
	// DefaultReceiverAppID is the Cast default media receiver.
	DefaultReceiverAppID = "CC1AD845"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	FadeInDuration  time.Duration `json:"fadeInDuration"`
	FadeOutDuration time.Duration `json:"fadeOutDuration"`
	Volume          float64       `json:"volume"`
	SoundNamespace  string        `json:"soundNamespace"`
	EventNamespace  string        `json:"eventNamespace"`
	ReceiverAppID   string        `json:"receiverAppId"`
	AudioBitrate    string        `json:"audioBitrate"`
	PremiumSegments bool          `json:"premiumSegments"`
	LogLevel        string        `json:"logLevel"`
	CastDevice      string        `json:"castDevice"`
}

func Default() *Config {
	return &Config{
		FadeInDuration:  playback.DefaultFadeInDuration,
		FadeOutDuration: playback.DefaultFadeOutDuration,
		Volume:          1,
		SoundNamespace:  DefaultSoundNamespace,
		EventNamespace:  DefaultEventNamespace,
		ReceiverAppID:   DefaultReceiverAppID,
		AudioBitrate:    "128k",
		LogLevel:        "info",
	}
}

// GetAppConfig loads the settings file from the user config directory,
// creating it with defaults on first run.
func GetAppConfig() (*Config, error) {
	path, err := AppPath()
	if err != nil {
		return nil, fmt.Errorf("GetAppConfig: failed to access config path due to error %w", err)
	}

	return Load(path)
}

// Load reads path on top of the defaults, then applies environment
// overrides. A missing file is created with the defaults.
func Load(path string) (*Config, error) {
	conf := Default()

	b, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		if err := conf.Save(path); err != nil {
			return nil, fmt.Errorf("Load: failed to create default config due to error %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("Load: failed to open config due to error %w", err)
	default:
		if err := decode(b, conf); err != nil {
			return nil, fmt.Errorf("Load: failed to decode config due to error %w", err)
		}
	}

	conf.applyEnv()
	conf.Volume = playback.ClampVolume(conf.Volume)

	if err := conf.Validate(); err != nil {
		return nil, err
	}

	return conf, nil
}

func decode(b []byte, conf *Config) error {
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
		),
		TagName:     "json",
		ErrorUnused: true,
		Result:      conf,
	})
	if err != nil {
		return err
	}

	return dec.Decode(raw)
}

// LoadEnv reads a dotenv file into the process environment. Variables
// that are already set win. A missing file is not an error.
func LoadEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("LoadEnv: failed to read %s due to error %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		c.LogLevel = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvCastDevice)); v != "" {
		c.CastDevice = v
	}
}

func (c *Config) Validate() error {
	if c.FadeInDuration < 0 {
		return errors.Wrapf(ErrInvalidConfig, "fadeInDuration %v is negative", c.FadeInDuration)
	}
	if c.FadeOutDuration < 0 {
		return errors.Wrapf(ErrInvalidConfig, "fadeOutDuration %v is negative", c.FadeOutDuration)
	}
	if c.SoundNamespace == "" || c.EventNamespace == "" {
		return errors.Wrap(ErrInvalidConfig, "namespaces must not be empty")
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrapf(ErrInvalidConfig, "logLevel %q", c.LogLevel)
	}
	return nil
}

// ZerologLevel returns the parsed LogLevel. Validate guarantees it parses.
func (c *Config) ZerologLevel() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}

// ReceiverSettings returns the settings pushed to a cast receiver.
func (c *Config) ReceiverSettings() playback.ReceiverSettings {
	return playback.ReceiverSettings{
		FadeIn:          c.FadeInDuration,
		FadeOut:         c.FadeOutDuration,
		AudioBitrate:    c.AudioBitrate,
		PremiumSegments: c.PremiumSegments,
	}
}

// Save writes c to path. Durations are stored in their string form.
func (c *Config) Save(path string) error {
	b, err := json.MarshalIndent(c.fileView(), "", "  ")
	if err != nil {
		return fmt.Errorf("Save: failed to marshal json due to error %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("Save: failed to create config path due to error %w", err)
	}

	if err := os.WriteFile(path, b, 0600); err != nil {
		return fmt.Errorf("Save: failed save config due to error %w", err)
	}

	return nil
}

// SaveAppConfig writes c to the user config directory.
func (c *Config) SaveAppConfig() error {
	path, err := AppPath()
	if err != nil {
		return fmt.Errorf("SaveAppConfig: failed to access config path due to error %w", err)
	}
	return c.Save(path)
}

func (c *Config) fileView() map[string]any {
	return map[string]any{
		"fadeInDuration":  c.FadeInDuration.String(),
		"fadeOutDuration": c.FadeOutDuration.String(),
		"volume":          c.Volume,
		"soundNamespace":  c.SoundNamespace,
		"eventNamespace":  c.EventNamespace,
		"receiverAppId":   c.ReceiverAppID,
		"audioBitrate":    c.AudioBitrate,
		"premiumSegments": c.PremiumSegments,
		"logLevel":        c.LogLevel,
		"castDevice":      c.CastDevice,
	}
}

func AppPath() (string, error) {
	oscfg, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("AppPath: failed to get config file due to error %w", err)
	}

	return filepath.Join(oscfg, "ambientcast", "settings.json"), nil
}
