// Package config loads caps-indicator settings from defaults, the
// environment and command-line flags. There is no configuration file.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every key when read from the environment,
// e.g. CAPS_INDICATOR_SOCKET_PATH.
const EnvPrefix = "CAPS_INDICATOR"

// Config is the effective daemon configuration.
type Config struct {
	// Display is the X display to use; empty means $DISPLAY.
	Display       string `toml:"display" json:"display" mapstructure:"display"`
	SocketPath    string `toml:"socket_path" json:"socket_path" mapstructure:"socket_path"`
	PIDFile       string `toml:"pid_file" json:"pid_file" mapstructure:"pid_file"`
	Border        int    `toml:"border" json:"border" mapstructure:"border"`
	AccentColor   string `toml:"accent_color" json:"accent_color" mapstructure:"accent_color"`
	ReadTimeoutMS int    `toml:"read_timeout_ms" json:"read_timeout_ms" mapstructure:"read_timeout_ms"`
	Foreground    bool   `toml:"foreground" json:"foreground" mapstructure:"foreground"`
	LogLevel      string `toml:"log_level" json:"log_level" mapstructure:"log_level"`
}

// LoadOptions carries values from explicitly set flags, keyed by config key.
type LoadOptions struct {
	FlagOverrides map[string]any
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		SocketPath:    "/tmp/caps-indicator.socket",
		PIDFile:       "/tmp/capslock.pid",
		Border:        24,
		AccentColor:   "#DC143C",
		ReadTimeoutMS: 500,
		LogLevel:      "info",
	}
}

// Keys lists every configuration key.
func Keys() []string {
	return []string{
		"display",
		"socket_path",
		"pid_file",
		"border",
		"accent_color",
		"read_timeout_ms",
		"foreground",
		"log_level",
	}
}

func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("display", cfg.Display)
	v.SetDefault("socket_path", cfg.SocketPath)
	v.SetDefault("pid_file", cfg.PIDFile)
	v.SetDefault("border", cfg.Border)
	v.SetDefault("accent_color", cfg.AccentColor)
	v.SetDefault("read_timeout_ms", cfg.ReadTimeoutMS)
	v.SetDefault("foreground", cfg.Foreground)
	v.SetDefault("log_level", cfg.LogLevel)
}

// Load resolves the configuration. Precedence: defaults < env < flags.
func Load(opts LoadOptions) (Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	for key, val := range opts.FlagOverrides {
		v.Set(key, val)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid field at once.
func Validate(cfg Config) error {
	var errs []error
	if strings.TrimSpace(cfg.SocketPath) == "" {
		errs = append(errs, errors.New("socket_path must not be empty"))
	}
	if strings.TrimSpace(cfg.PIDFile) == "" {
		errs = append(errs, errors.New("pid_file must not be empty"))
	}
	if cfg.Border <= 0 {
		errs = append(errs, fmt.Errorf("border must be positive, got %d", cfg.Border))
	}
	if _, err := ParseColor(cfg.AccentColor); err != nil {
		errs = append(errs, err)
	}
	if cfg.ReadTimeoutMS < 0 {
		errs = append(errs, fmt.Errorf("read_timeout_ms must not be negative, got %d", cfg.ReadTimeoutMS))
	}
	if _, err := log.ParseLevel(cfg.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %w", errors.Join(errs...))
	}
	return nil
}

// ParseColor accepts "#RRGGBB", "0xRRGGBB" or "RRGGBB".
func ParseColor(s string) (uint32, error) {
	hex := strings.TrimSpace(s)
	hex = strings.TrimPrefix(hex, "#")
	hex = strings.TrimPrefix(strings.TrimPrefix(hex, "0x"), "0X")
	if len(hex) != 6 {
		return 0, fmt.Errorf("accent_color %q is not a 6-digit hex colour", s)
	}
	n, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("accent_color %q is not a 6-digit hex colour", s)
	}
	return uint32(n), nil
}

// Color returns the accent colour as a pixel value. The config must be valid.
func (c Config) Color() uint32 {
	n, _ := ParseColor(c.AccentColor)
	return n
}

// ReadTimeout returns the control socket read deadline.
func (c Config) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutMS) * time.Millisecond
}

// Level returns the parsed log level. The config must be valid.
func (c Config) Level() log.Level {
	lvl, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}
