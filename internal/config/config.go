// Package config provides configuration management for clai, including
// defaults, config file loading and environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// ProjectConfigFileName is the config file looked up in the working
// directory when no explicit path is given.
const ProjectConfigFileName = "clai.yaml"

// Defaults
const (
	DefaultPort           = 8080
	DefaultTimeoutSeconds = 30
	DefaultMaxCallDepth   = 8
	DefaultDefinitionsDir = "./tools"
)

// LogFormat is the log output format.
type LogFormat string

// LogFormat constants
const (
	LogFormatPretty LogFormat = "pretty"
	LogFormatJSON   LogFormat = "json"
)

// Config represents the clai configuration: where tool definitions are
// discovered, how the server listens, and how calls are bounded.
type Config struct {
	DefinitionsDir string    `yaml:"definitions_dir,omitempty" mapstructure:"definitions_dir" validate:"required"`
	Port           int       `yaml:"port,omitempty" mapstructure:"port" validate:"min=0,max=65535"`
	Timeout        int       `yaml:"timeout,omitempty" mapstructure:"timeout" validate:"min=1"`
	MaxCallDepth   int       `yaml:"max_call_depth,omitempty" mapstructure:"max_call_depth" validate:"min=1,max=64"`
	LogFormat      LogFormat `yaml:"log_format,omitempty" mapstructure:"log_format" validate:"oneof=json pretty"`
	LogLevel       string    `yaml:"log_level,omitempty" mapstructure:"log_level" validate:"oneof=debug info warn error fatal"`
}

var validate = validator.New()

// setupViper configures viper with defaults, config file locations and
// environment variables. If configPath is non-empty, only that file is
// read; otherwise clai.yaml in the working directory is used when
// present.
func setupViper(configPath string) error {
	viper.Reset()
	setViperDefaults()
	viper.SetEnvPrefix("CLAI")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if configPath != "" {
		viper.SetConfigFile(configPath)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
		return nil
	}

	if _, err := os.Stat(ProjectConfigFileName); err == nil {
		zap.L().Debug("Found project config in current directory", zap.String("path", ProjectConfigFileName))
		viper.SetConfigFile(ProjectConfigFileName)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read project config file: %w", err)
		}
	}

	return nil
}

// setViperDefaults sets default values in viper
func setViperDefaults() {
	viper.SetDefault("definitions_dir", DefaultDefinitionsDir)
	viper.SetDefault("port", DefaultPort)
	viper.SetDefault("timeout", DefaultTimeoutSeconds)
	viper.SetDefault("max_call_depth", DefaultMaxCallDepth)
	viper.SetDefault("log_format", string(LogFormatJSON))
	viper.SetDefault("log_level", "info")
}

// Load loads configuration with precedence: env > config file >
// defaults. If configPath is provided, it is read instead of the
// project file; relative definitions directories resolve against the
// config file's directory.
func Load(configPath string) (*Config, error) {
	if err := setupViper(configPath); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	baseDir := ""
	if configPath != "" {
		baseDir = filepath.Dir(configPath)
	} else if viper.ConfigFileUsed() != "" {
		baseDir = filepath.Dir(viper.ConfigFileUsed())
	}

	if err := cfg.SetDefinitionsDir(resolveDir(cfg.DefinitionsDir, baseDir)); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a configuration with default values.
func Default() (*Config, error) {
	cfg := &Config{
		Port:         DefaultPort,
		Timeout:      DefaultTimeoutSeconds,
		MaxCallDepth: DefaultMaxCallDepth,
		LogFormat:    LogFormatJSON,
		LogLevel:     "info",
	}
	if err := cfg.SetDefinitionsDir(DefaultDefinitionsDir); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid default configuration: %w", err)
	}
	return cfg, nil
}

// SetDefinitionsDir updates the definitions directory, resolving it to
// an absolute path.
func (cfg *Config) SetDefinitionsDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("definitions directory cannot be empty")
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve definitions directory path: %w", err)
	}
	cfg.DefinitionsDir = absDir
	return nil
}

// Validate validates configuration values.
func (cfg *Config) Validate() error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Warn if timeout is very large (3600 seconds = 1 hour)
	if cfg.Timeout > 3600 {
		zap.L().Warn("Timeout is very large, consider using a value less than 3600 seconds",
			zap.Int("timeout", cfg.Timeout))
	}

	return nil
}

// resolveDir resolves dir against baseDir when dir is relative and a
// base is known.
func resolveDir(dir, baseDir string) string {
	if dir == "" || baseDir == "" || filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Clean(filepath.Join(baseDir, dir))
}
