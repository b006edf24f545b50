// Package config loads runtime settings from configs/config.yml and DRONE_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"drone_commander/internal/correlator"

	"github.com/spf13/viper"
)

const envPrefix = "DRONE"

// Config is the typed view of the configuration file.
type Config struct {
	Drone     DroneConfig     `mapstructure:"drone"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	DB        DBConfig        `mapstructure:"db"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Log       LogConfig       `mapstructure:"log"`
	Export    ExportConfig    `mapstructure:"export"`
	Flush     FlushConfig     `mapstructure:"flush"`
}

type DroneConfig struct {
	Address         string        `mapstructure:"address"`
	LocalPort       int           `mapstructure:"local_port"`
	CommandTimeout  time.Duration `mapstructure:"command_timeout"`
	LateReplyPolicy string        `mapstructure:"late_reply_policy"`
	Handshake       bool          `mapstructure:"handshake"`
	MaxDatagram     int           `mapstructure:"max_datagram"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
}

type TelemetryConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

type DBConfig struct {
	Path string `mapstructure:"path"`
}

type HTTPConfig struct {
	Port              string  `mapstructure:"port"`
	CommandsPerSecond float64 `mapstructure:"commands_per_second"`
	CommandBurst      int     `mapstructure:"command_burst"`
}

type AuthConfig struct {
	SigningKey string        `mapstructure:"signing_key"`
	TokenTTL   time.Duration `mapstructure:"token_ttl"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

type ExportConfig struct {
	Path string `mapstructure:"path"`
}

type FlushConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// setDefaults registers every key so env overrides work without a file.
func setDefaults(v *viper.Viper) {
	v.SetDefault("drone.address", "192.168.10.1:8889")
	v.SetDefault("drone.local_port", 8889)
	v.SetDefault("drone.command_timeout", correlator.DefaultTimeout)
	v.SetDefault("drone.late_reply_policy", string(correlator.LateAttach))
	v.SetDefault("drone.handshake", true)
	v.SetDefault("drone.max_datagram", 1024)
	v.SetDefault("drone.poll_interval", 250*time.Millisecond)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.interval", 5*time.Second)

	v.SetDefault("db.path", "drone.db")

	v.SetDefault("http.port", "8080")
	v.SetDefault("http.commands_per_second", 5.0)
	v.SetDefault("http.command_burst", 1)

	v.SetDefault("auth.signing_key", "")
	v.SetDefault("auth.token_ttl", time.Hour)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)

	v.SetDefault("export.path", "CommandResponseLog.txt")
	v.SetDefault("flush.interval", 10*time.Second)
}

// Load reads path when given, otherwise looks for config.yml under ./configs
// and the working directory. A missing file is not an error when path is
// empty; defaults and environment variables still apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath("configs") // configs/config.yml
		v.AddConfigPath(".")
		v.SetConfigName("config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the client cannot run with.
func (c *Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.Drone.Address); err != nil {
		return fmt.Errorf("invalid drone.address %q: %w", c.Drone.Address, err)
	}
	if c.Drone.LocalPort < 0 || c.Drone.LocalPort > 65535 {
		return fmt.Errorf("invalid drone.local_port %d", c.Drone.LocalPort)
	}
	if c.Drone.CommandTimeout <= 0 {
		return fmt.Errorf("drone.command_timeout must be positive, got %s", c.Drone.CommandTimeout)
	}
	if _, err := correlator.ParseLatePolicy(c.Drone.LateReplyPolicy); err != nil {
		return err
	}
	if c.Telemetry.Enabled && c.Telemetry.Interval <= 0 {
		return fmt.Errorf("telemetry.interval must be positive, got %s", c.Telemetry.Interval)
	}
	if c.HTTP.CommandsPerSecond < 0 {
		return fmt.Errorf("http.commands_per_second must not be negative")
	}
	if c.Flush.Interval < 0 {
		return fmt.Errorf("flush.interval must not be negative")
	}
	return nil
}

// LatePolicy returns the parsed late reply policy. Validate guarantees it parses.
func (c *Config) LatePolicy() correlator.LatePolicy {
	p, _ := correlator.ParseLatePolicy(c.Drone.LateReplyPolicy)
	return p
}
