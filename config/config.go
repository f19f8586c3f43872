package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// ServerConfig defines the HTTP action surface configuration.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// CheckerConfig defines how to reach the external analysis service.
type CheckerConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// LoggingConfig defines the logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// Config is the top-level configuration struct.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Checker CheckerConfig `mapstructure:"checker"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// AppConfig holds the loaded configuration.
var AppConfig *Config

// Load reads config.yaml from the current working directory. A missing file
// is not an error; defaults and VERISYNC_* environment variables apply.
func Load() error {
	return LoadFrom(".")
}

// LoadFrom reads config.yaml from dir.
func LoadFrom(dir string) error {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)

	v.SetEnvPrefix("VERISYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.port", 8090)
	v.SetDefault("checker.base_url", "http://127.0.0.1:8091")
	v.SetDefault("checker.timeout_seconds", 0)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stdout")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("could not read config file in %s: %w", dir, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("could not parse config: %w", err)
	}

	AppConfig = &cfg
	return nil
}
