// Package config provides configuration management for streamcore using
// Viper: configuration from a file, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultServerPort      = 8099
	defaultServerTimeout   = 15 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultSampleRate      = 48000
	defaultChannelCount    = 2
	defaultVideoWidth      = 1280
	defaultVideoHeight     = 720
	defaultVideoFPS        = 30.0
	defaultVideoBitrate    = 4_000_000
	defaultAudioBitrate    = 128_000
	defaultAdvisorInterval = 5 * time.Second
)

// Config holds all configuration for the daemon.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Audio    AudioConfig    `mapstructure:"audio"`
	Video    VideoConfig    `mapstructure:"video"`
	Output   OutputConfig   `mapstructure:"output"`
	Bitrate  BitrateConfig  `mapstructure:"bitrate"`
}

// ServerConfig holds the status API's HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds the session ledger's database configuration.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // sqlite, mysql, postgres
	DSN    string `mapstructure:"dsn"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// AudioConfig holds the default audio track negotiation.
type AudioConfig struct {
	SampleRate   int    `mapstructure:"sample_rate"`
	ChannelCount int    `mapstructure:"channel_count"`
	Profile      string `mapstructure:"profile"` // LC, HE, HEv2
	StartBitrate int    `mapstructure:"start_bitrate"`
}

// VideoConfig holds the default video track negotiation.
type VideoConfig struct {
	Width        int     `mapstructure:"width"`
	Height       int     `mapstructure:"height"`
	FPS          float64 `mapstructure:"fps"`
	StartBitrate int     `mapstructure:"start_bitrate"`
	Profile      string  `mapstructure:"profile"`
	Level        string  `mapstructure:"level"`
}

// OutputConfig holds the default sink/container target.
type OutputConfig struct {
	URI           string `mapstructure:"uri"`
	ContainerType string `mapstructure:"container_type"` // TS, FLV, MP4, RTMP
	SinkType      string `mapstructure:"sink_type"`      // file, network, content
}

// BitrateConfig holds the reference BitrateAdvisor's thresholds.
type BitrateConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	HighLoadPercent float64       `mapstructure:"high_load_percent"`
	LowLoadPercent  float64       `mapstructure:"low_load_percent"`
	MinBitrate      int64         `mapstructure:"min_bitrate"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
}

// Load reads configuration from configPath (or the default search path
// when empty), environment variables prefixed STREAMCORE_, and the
// defaults set below. Environment variables take precedence over the
// file, and the file over the defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/streamcore")
		v.AddConfigPath("$HOME/.streamcore")
	}

	v.SetEnvPrefix("STREAMCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

// SetDefaults configures default values for every configuration option.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", defaultServerTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "streamcore.db")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	v.SetDefault("audio.sample_rate", defaultSampleRate)
	v.SetDefault("audio.channel_count", defaultChannelCount)
	v.SetDefault("audio.profile", "LC")
	v.SetDefault("audio.start_bitrate", defaultAudioBitrate)

	v.SetDefault("video.width", defaultVideoWidth)
	v.SetDefault("video.height", defaultVideoHeight)
	v.SetDefault("video.fps", defaultVideoFPS)
	v.SetDefault("video.start_bitrate", defaultVideoBitrate)
	v.SetDefault("video.profile", "high")
	v.SetDefault("video.level", "4.0")

	v.SetDefault("output.uri", "./output.ts")
	v.SetDefault("output.container_type", "TS")
	v.SetDefault("output.sink_type", "file")

	v.SetDefault("bitrate.enabled", true)
	v.SetDefault("bitrate.high_load_percent", 85.0)
	v.SetDefault("bitrate.low_load_percent", 60.0)
	v.SetDefault("bitrate.min_bitrate", 500_000)
	v.SetDefault("bitrate.poll_interval", defaultAdvisorInterval)
}

// Validate checks the configuration for errors a malformed file or
// environment override could introduce.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	switch c.Database.Driver {
	case "sqlite", "mysql", "postgres":
	default:
		return fmt.Errorf("database.driver %q not supported", c.Database.Driver)
	}
	switch c.Output.ContainerType {
	case "TS", "FLV", "MP4", "RTMP":
	default:
		return fmt.Errorf("output.container_type %q not supported", c.Output.ContainerType)
	}
	if c.Audio.ChannelCount != 1 && c.Audio.ChannelCount != 2 {
		return fmt.Errorf("audio.channel_count %d not supported", c.Audio.ChannelCount)
	}
	if c.Video.Width <= 0 || c.Video.Height <= 0 {
		return fmt.Errorf("video dimensions must be positive, got %dx%d", c.Video.Width, c.Video.Height)
	}
	return nil
}

// Address returns host:port for the status API server.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
