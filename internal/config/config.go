// Package config loads geocouple settings from defaults, an optional YAML
// file, GEOCOUPLE_* environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/tingold/geocouple/internal/geodata"
)

// EnvPrefix prefixes every environment override, e.g.
// GEOCOUPLE_PIPELINE_CLIP_POLICY.
const EnvPrefix = "GEOCOUPLE"

type Config struct {
	Workdir  string   `mapstructure:"workdir" yaml:"workdir"`
	Pipeline Pipeline `mapstructure:"pipeline" yaml:"pipeline"`
	HTTP     HTTP     `mapstructure:"http" yaml:"http"`
	Log      Log      `mapstructure:"log" yaml:"log"`
	Serve    Serve    `mapstructure:"serve" yaml:"serve"`
}

type Pipeline struct {
	SimplifyTolerance float64 `mapstructure:"simplify_tolerance" yaml:"simplify_tolerance"`
	ClipPolicy        string  `mapstructure:"clip_policy" yaml:"clip_policy"`
}

type HTTP struct {
	// Timeout bounds a whole request. Zero leaves it to the transport.
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"`
	UserAgent string        `mapstructure:"user_agent" yaml:"user_agent"`
	MaxBytes  int64         `mapstructure:"max_bytes" yaml:"max_bytes"`
}

type Log struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

type Serve struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Workdir: "temp",
		Pipeline: Pipeline{
			SimplifyTolerance: geodata.DefaultTolerance,
			ClipPolicy:        string(geodata.Intersects),
		},
		HTTP: HTTP{
			Timeout:   2 * time.Minute,
			UserAgent: "geocouple/" + Version,
			MaxBytes:  256 << 20,
		},
		Log:   Log{Level: "info", Format: "text"},
		Serve: Serve{Addr: ":8080"},
	}
}

// Version is set at build time.
var Version = "0.1.0"

// New returns a viper instance holding the defaults and reading
// GEOCOUPLE_* variables.
func New() *viper.Viper {
	v := viper.New()
	d := Default()
	v.SetDefault("workdir", d.Workdir)
	v.SetDefault("pipeline.simplify_tolerance", d.Pipeline.SimplifyTolerance)
	v.SetDefault("pipeline.clip_policy", d.Pipeline.ClipPolicy)
	v.SetDefault("http.timeout", d.HTTP.Timeout)
	v.SetDefault("http.user_agent", d.HTTP.UserAgent)
	v.SetDefault("http.max_bytes", d.HTTP.MaxBytes)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("serve.addr", d.Serve.Addr)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// ReadFile reads file into v. Without a file, $HOME/.geocouple/config.yaml
// is used when it exists. It returns the file actually read, if any.
func ReadFile(v *viper.Viper, file string) (string, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return "", fmt.Errorf("config: read %s: %w", file, err)
		}
		return v.ConfigFileUsed(), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", nil
	}
	v.AddConfigPath(filepath.Join(home, ".geocouple"))
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return "", nil
		}
		return "", fmt.Errorf("config: %w", err)
	}
	return v.ConfigFileUsed(), nil
}

// Decode unmarshals and validates the effective settings of v.
func Decode(v *viper.Viper) (Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Workdir) == "" {
		return errors.New("config: workdir is empty")
	}
	if c.Pipeline.SimplifyTolerance < 0 {
		return fmt.Errorf("config: pipeline.simplify_tolerance must not be negative, got %v", c.Pipeline.SimplifyTolerance)
	}
	if _, err := geodata.ParseClipPolicy(c.Pipeline.ClipPolicy); err != nil {
		return fmt.Errorf("config: pipeline.clip_policy: %w", err)
	}
	if c.HTTP.Timeout < 0 {
		return fmt.Errorf("config: http.timeout must not be negative, got %s", c.HTTP.Timeout)
	}
	if c.HTTP.MaxBytes <= 0 {
		return fmt.Errorf("config: http.max_bytes must be positive, got %d", c.HTTP.MaxBytes)
	}
	return nil
}
