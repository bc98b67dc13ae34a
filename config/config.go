// Package config loads and validates server configuration from files,
// environment variables, and CLI flags.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	coffrehttp "github.com/toccatech/coffre/http"
)

// Config is the root configuration struct for the coffre server.
type Config struct {
	Env       string                `mapstructure:"env"`
	Server    ServerConfig          `mapstructure:"server"`
	Uploads   UploadsConfig         `mapstructure:"uploads"`
	Metastore MetastoreConfig       `mapstructure:"metastore"`
	Auth      AuthConfig            `mapstructure:"auth"`
	CORS      coffrehttp.CORSConfig `mapstructure:"cors"`
	Log       LogConfig             `mapstructure:"log"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port          int   `mapstructure:"port" validate:"required,min=1,max=65535"`
	MaxUploadSize int64 `mapstructure:"max_upload_size" validate:"min=0"`
}

// UploadsConfig holds blob storage configuration.
type UploadsConfig struct {
	Dir            string `mapstructure:"dir" validate:"required"`
	CleanupTimeout int    `mapstructure:"cleanup_timeout" validate:"min=1"`
}

// MetastoreConfig holds the external metadata store configuration.
type MetastoreConfig struct {
	URL     string `mapstructure:"url" validate:"required,url"`
	Timeout int    `mapstructure:"timeout" validate:"min=1"`
}

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	// Mode controls how identity-service transport failures are handled:
	// "soft" degrades to anonymous, "strict" fails the request.
	Mode     string `mapstructure:"mode" validate:"required,oneof=soft strict"`
	KeyFile  string `mapstructure:"key_file" validate:"required"`
	Subject  string `mapstructure:"subject" validate:"required"`
	Issuer   string `mapstructure:"issuer" validate:"required"`
	Audience string `mapstructure:"audience" validate:"required"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
}

// configKey is the context key for storing the loaded configuration.
type configKey struct{}

// WithContext returns a new context with the config stored.
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

// FromContext retrieves the config from context.
// Returns an error if config is not found.
func FromContext(ctx context.Context) (*Config, error) {
	cfg, ok := ctx.Value(configKey{}).(*Config)
	if !ok || cfg == nil {
		return nil, errors.New("config not found in context")
	}
	return cfg, nil
}

// flagToViperKey maps CLI flag names to viper configuration keys.
var flagToViperKey = map[string]string{
	"port":          "server.port",
	"uploads-dir":   "uploads.dir",
	"metastore-url": "metastore.url",
	"auth-key":      "auth.key_file",
}

// bindFlags binds CLI flags to viper keys with custom name mapping.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) {
	flags.VisitAll(func(f *pflag.Flag) {
		viperKey := f.Name
		if mapped, ok := flagToViperKey[viperKey]; ok {
			viperKey = mapped
		}

		// Only bind if the flag was explicitly set
		if f.Changed {
			_ = v.BindPFlag(viperKey, f)
		}
	})
}

// setDefaults configures default values on the viper instance.
func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "dev")

	v.SetDefault("server.port", 3001)
	v.SetDefault("server.max_upload_size", 0) // 0 means no limit

	v.SetDefault("uploads.dir", "./uploads")
	v.SetDefault("uploads.cleanup_timeout", 30) // seconds

	v.SetDefault("metastore.url", "http://localhost:8080/graphql")
	v.SetDefault("metastore.timeout", 30) // seconds

	v.SetDefault("auth.mode", "soft")
	v.SetDefault("auth.key_file", "coffre.pem")
	v.SetDefault("auth.subject", "coffre")
	v.SetDefault("auth.issuer", "coffre")
	v.SetDefault("auth.audience", "metastore")

	v.SetDefault("log.level", "info")
}

// Load reads configuration and returns a validated Config struct.
// Order of precedence (highest to lowest): flags > env > config files > defaults
//
// Parameters:
//   - configFiles: list of config file paths (later files override earlier ones)
//   - flags: cobra flag set for flag binding (can be nil)
func Load(configFiles []string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	// 1. Set defaults
	setDefaults(v)

	// 2. Read config files
	if len(configFiles) > 0 {
		v.SetConfigFile(configFiles[0])
		if err := v.ReadInConfig(); err != nil {
			slog.Warn("error reading config file", "file", configFiles[0], "err", err)
		}

		for _, cf := range configFiles[1:] {
			v.SetConfigFile(cf)
			if err := v.MergeInConfig(); err != nil {
				slog.Warn("error merging config file", "file", cf, "err", err)
			}
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")

		if err := v.ReadInConfig(); err != nil {
			var configNotFound viper.ConfigFileNotFoundError
			if !errors.As(err, &configNotFound) {
				slog.Warn("error reading config file", "err", err)
			}
		}
	}

	// 3. Bind environment variables
	v.SetEnvPrefix("COFFRE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 4. Bind flags (if provided)
	if flags != nil {
		bindFlags(v, flags)
	}

	// 5. Unmarshal into Config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// 6. Validate using go-playground/validator
	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}
