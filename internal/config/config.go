package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables supplying the bridge connection. The token is the
// application key registered with the bridge developer API, the unit is the
// HTTP endpoint of the bridge itself.
const (
	EnvToken  = "LIGHT_USER"
	EnvBridge = "LIGHT_UNIT"
)

// ErrMissingEnv indicates a required environment variable is absent. Fatal at startup.
var ErrMissingEnv = errors.New("missing required environment variable")

// Config represents the application configuration
type Config struct {
	Bridge          BridgeConfig `yaml:"bridge"`
	Log             LogConfig    `yaml:"log"`
	Cache           CacheConfig  `yaml:"cache"`
	Fade            FadeConfig   `yaml:"fade"`
	ShutdownTimeout Duration     `yaml:"shutdown_timeout"` // Bound on waiting for running effects at exit
}

// BridgeConfig contains Hue bridge connection settings
type BridgeConfig struct {
	Address      string   `yaml:"address"`
	Token        string   `yaml:"token"`
	Timeout      Duration `yaml:"timeout"`        // HTTP timeout for bridge requests
	RateLimitRPS float64  `yaml:"rate_limit_rps"` // Outbound request rate limit
}

// LogConfig contains logging settings
type LogConfig struct {
	Level   string `yaml:"level"`
	Colors  bool   `yaml:"colors"`
	UseJSON bool   `yaml:"json"`
}

// CacheConfig contains device snapshot cache settings
type CacheConfig struct {
	Path string `yaml:"path"`
}

// FadeConfig contains defaults for the color sweep effect
type FadeConfig struct {
	Brightness int      `yaml:"brightness"`
	Step       int      `yaml:"step"`
	Interval   Duration `yaml:"interval"`
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Load reads the optional configuration file and fills the bridge connection
// from the environment. A missing file is not an error; a missing bridge
// address or token is.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, err
		}
		if err == nil {
			// Expand environment variables
			expanded := expandEnvVars(string(data))
			if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
				return nil, err
			}
		}
	}

	// Environment fills whatever the file left empty
	if cfg.Bridge.Address == "" {
		cfg.Bridge.Address = os.Getenv(EnvBridge)
	}
	if cfg.Bridge.Token == "" {
		cfg.Bridge.Token = os.Getenv(EnvToken)
	}

	if cfg.Bridge.Address == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingEnv, EnvBridge)
	}
	if cfg.Bridge.Token == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingEnv, EnvToken)
	}

	// Set defaults
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Bridge.Timeout == 0 {
		cfg.Bridge.Timeout = Duration(10 * time.Second)
	}
	if cfg.Bridge.RateLimitRPS == 0 {
		cfg.Bridge.RateLimitRPS = 10.0
	}
	if cfg.Cache.Path == "" {
		cfg.Cache.Path = "./huectl-snapshot.sqlite"
	}
	if cfg.Fade.Brightness == 0 {
		cfg.Fade.Brightness = 254
	}
	if cfg.Fade.Step == 0 {
		cfg.Fade.Step = 200
	}
	if cfg.Fade.Interval == 0 {
		cfg.Fade.Interval = Duration(1 * time.Second)
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = Duration(5 * time.Second)
	}

	return &cfg, nil
}

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	re := regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

	return re.ReplaceAllStringFunc(input, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}
