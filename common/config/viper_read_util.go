// Package config reads a binary's per-environment YAML file into its typed configuration.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"

	"github.com/enset/storefront/common/env"
	"github.com/enset/storefront/common/logger"
)

const (
	fileFormat     = ".yaml"        // File format of the config files
	relativePath   = "./cmd/config" // Default relative path for config files (base path)
	binaryPath     = "./config"     // Path for binary build config (base path)
	binaryDir      = "target"       // Directory name for the binary target
	binaryInDocker = "app"          // Directory name for Docker deployment
	envVarPrefix   = "env://"       // Prefix for environment variables
)

// YamlReadConfig holds the configuration paths (relative and absolute).
type YamlReadConfig struct {
	RelativePath string // Path relative to the current directory
	AbsolutePath string // Absolute path if provided
	DynamicDir   string // Optional subdirectory, one per binary
}

// ReadConfigOption is a function signature used to set configuration options.
type ReadConfigOption func(*YamlReadConfig)

// WithRelativePath sets a relative path for the config file.
func WithRelativePath(path string) ReadConfigOption {
	return func(config *YamlReadConfig) {
		config.RelativePath = path
	}
}

// WithAbsolutePath sets an absolute path for the config file.
func WithAbsolutePath(path string) ReadConfigOption {
	return func(config *YamlReadConfig) {
		config.AbsolutePath = path
	}
}

// WithDynamicDir appends a subdirectory to the configuration path, e.g. "gateway".
func WithDynamicDir(dynamicDir string) ReadConfigOption {
	return func(config *YamlReadConfig) {
		config.DynamicDir = dynamicDir
	}
}

// LoadConfig reads <path>/<ENVIRONMENT>.yaml into conf. Values of the form "env://VAR"
// are replaced by the VAR environment variable, or "" when it is unset.
func LoadConfig(conf any, log *logger.Logger, options ...ReadConfigOption) error {
	config := &YamlReadConfig{RelativePath: relativePath}
	for _, option := range options {
		option(config)
	}

	currentDir, err := os.Getwd()
	if err != nil {
		return errors.Wrap(err, "getting current working directory")
	}

	// Adjust config path if running from binary target or Docker container
	if base := filepath.Base(currentDir); base == binaryDir || base == binaryInDocker {
		log.Info("Running from binary directory", logger.String("directory", currentDir))
		config.RelativePath = binaryPath
	}

	pathToConfigDir := config.RelativePath
	if config.AbsolutePath != "" {
		pathToConfigDir = config.AbsolutePath
	}
	if config.DynamicDir != "" {
		pathToConfigDir = filepath.Join(pathToConfigDir, config.DynamicDir)
	}

	currentEnv, err := env.GetApplicationEnv()
	if err != nil {
		return errors.Wrap(err, "invalid environment")
	}

	filePath := filepath.Join(pathToConfigDir, currentEnv.String()+fileFormat)
	log.Info("Reading config file", logger.String("path", filePath))

	v := viper.New()
	v.SetConfigFile(filePath)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return errors.Wrapf(err, "reading configuration file %s", filePath)
	}

	for _, key := range v.AllKeys() {
		resolveEnvPlaceholder(v, key, log)
	}

	if err := v.Unmarshal(conf); err != nil {
		return errors.Wrap(err, "unmarshalling configuration")
	}
	return nil
}

func resolveEnvPlaceholder(v *viper.Viper, key string, log *logger.Logger) {
	str, ok := v.Get(key).(string)
	if !ok || !strings.HasPrefix(str, envVarPrefix) {
		return
	}
	envVar := strings.TrimPrefix(str, envVarPrefix)
	if envValue, exists := os.LookupEnv(envVar); exists {
		v.Set(key, envValue)
		log.Debug("resolved environment variable", logger.String("variableName", envVar))
		return
	}
	v.Set(key, "")
	log.Warn("environment variable not found", logger.String("variableName", envVar))
}
