package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	customhttp "github.com/BenjaminSRussell/urlmon/internal/http"
	"github.com/BenjaminSRussell/urlmon/internal/types"
)

// Default returns the built-in configuration
func Default() types.Config {
	return types.Config{
		ConnectTimeout:  customhttp.DefaultConnectTimeout,
		ExchangeTimeout: customhttp.DefaultExchangeTimeout,
		MaxBodyBytes:    customhttp.DefaultMaxBodyBytes,
		MaxHops:         5,
		MaxVisits:       20,
		FollowMode:      types.FollowFirst,
		TLSProfile:      customhttp.DefaultTLSProfile.Name,
		MaxRetries:      0,
		Log: types.LogConfig{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// fileConfig mirrors types.Config with durations as strings ("5s")
type fileConfig struct {
	ConnectTimeout  string          `yaml:"connect_timeout"`
	ExchangeTimeout string          `yaml:"exchange_timeout"`
	MaxBodyBytes    *int64          `yaml:"max_body_bytes"`
	MaxHops         *int            `yaml:"max_hops"`
	MaxVisits       *int            `yaml:"max_visits"`
	FollowMode      string          `yaml:"follow_mode"`
	TLSProfile      string          `yaml:"tls_profile"`
	MaxRetries      *int            `yaml:"max_retries"`
	RespectRobots   *bool           `yaml:"respect_robots"`
	DataDir         string          `yaml:"data_dir"`
	SQLitePath      string          `yaml:"sqlite_path"`
	Log             types.LogConfig `yaml:"log"`
}

// Load reads an optional YAML file over the defaults. An empty path
// returns the defaults.
func Load(path string) (types.Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	if err := Merge(&cfg, data); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	return cfg, nil
}

// Marshal renders cfg as YAML that Load reads back unchanged
func Marshal(cfg types.Config) ([]byte, error) {
	fc := fileConfig{
		ConnectTimeout:  cfg.ConnectTimeout.String(),
		ExchangeTimeout: cfg.ExchangeTimeout.String(),
		MaxBodyBytes:    &cfg.MaxBodyBytes,
		MaxHops:         &cfg.MaxHops,
		MaxVisits:       &cfg.MaxVisits,
		FollowMode:      cfg.FollowMode,
		TLSProfile:      cfg.TLSProfile,
		MaxRetries:      &cfg.MaxRetries,
		RespectRobots:   &cfg.RespectRobots,
		DataDir:         cfg.DataDir,
		SQLitePath:      cfg.SQLitePath,
		Log:             cfg.Log,
	}
	return yaml.Marshal(fc)
}

// Merge applies YAML data onto cfg; keys absent from data keep their value
func Merge(cfg *types.Config, data []byte) error {
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return err
	}

	if err := setDuration(&cfg.ConnectTimeout, fc.ConnectTimeout, "connect_timeout"); err != nil {
		return err
	}
	if err := setDuration(&cfg.ExchangeTimeout, fc.ExchangeTimeout, "exchange_timeout"); err != nil {
		return err
	}
	if fc.MaxBodyBytes != nil {
		cfg.MaxBodyBytes = *fc.MaxBodyBytes
	}
	if fc.MaxHops != nil {
		cfg.MaxHops = *fc.MaxHops
	}
	if fc.MaxVisits != nil {
		cfg.MaxVisits = *fc.MaxVisits
	}
	if fc.FollowMode != "" {
		cfg.FollowMode = strings.ToLower(fc.FollowMode)
	}
	if fc.TLSProfile != "" {
		cfg.TLSProfile = strings.ToLower(fc.TLSProfile)
	}
	if fc.MaxRetries != nil {
		cfg.MaxRetries = *fc.MaxRetries
	}
	if fc.RespectRobots != nil {
		cfg.RespectRobots = *fc.RespectRobots
	}
	if fc.DataDir != "" {
		cfg.DataDir = fc.DataDir
	}
	if fc.SQLitePath != "" {
		cfg.SQLitePath = fc.SQLitePath
	}

	if fc.Log.Level != "" {
		cfg.Log.Level = strings.ToLower(fc.Log.Level)
	}
	if fc.Log.Format != "" {
		cfg.Log.Format = strings.ToLower(fc.Log.Format)
	}
	if fc.Log.File != "" {
		cfg.Log.File = fc.Log.File
	}
	if fc.Log.MaxSizeMB > 0 {
		cfg.Log.MaxSizeMB = fc.Log.MaxSizeMB
	}
	if fc.Log.MaxBackups > 0 {
		cfg.Log.MaxBackups = fc.Log.MaxBackups
	}

	return nil
}

func setDuration(dst *time.Duration, value, field string) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	*dst = d
	return nil
}

// Validate checks cfg against its struct tags
func Validate(cfg types.Config) error {
	validate := validator.New()

	_ = validate.RegisterValidation("tlsprofile", func(fl validator.FieldLevel) bool {
		_, err := customhttp.TLSProfileByName(fl.Field().String())
		return err == nil
	})

	if err := validate.Struct(cfg); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid configuration: %s failed %q (value: %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}

	return nil
}
