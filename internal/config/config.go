package config

import (
	"errors"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/latoulicious/Kolega/pkg/logging"
	"github.com/latoulicious/Kolega/pkg/player"
)

var (
	ErrDiscordTokenNotSet   = errors.New("DISCORD_TOKEN is not set")
	ErrInvalidTimeout       = errors.New("voice connect timeout must be positive")
	ErrInvalidBitrate       = errors.New("voice bitrate must be between 8 and 512 kbps")
	ErrInvalidVolume        = errors.New("voice volume must be positive")
	ErrEmptyQualityOrder    = errors.New("audio quality order is empty")
	ErrInvalidRetention     = errors.New("history retention must be positive")
	ErrInvalidCommandLimits = errors.New("command rate and burst must be positive")
)

type Config struct {
	DiscordToken  string `env:"DISCORD_TOKEN"`
	CommandPrefix string `env:"COMMAND_PREFIX" envDefault:"!"`

	Log   logging.Config `envPrefix:"LOG_"`
	Voice VoiceConfig

	AudioQualityOrder []string `env:"AUDIO_QUALITY_ORDER" envSeparator:","`

	History HistoryConfig

	CommandRate  float64 `env:"COMMAND_RATE" envDefault:"1"`
	CommandBurst int     `env:"COMMAND_BURST" envDefault:"3"`
}

type VoiceConfig struct {
	ConnectTimeout time.Duration `env:"VOICE_CONNECT_TIMEOUT" envDefault:"30s"`
	Bitrate        int           `env:"VOICE_BITRATE" envDefault:"64"`
	Volume         int           `env:"VOICE_VOLUME" envDefault:"256"`
	BufferedFrames int           `env:"VOICE_BUFFERED_FRAMES" envDefault:"100"`
}

type HistoryConfig struct {
	// Path of the sqlite file. Empty disables history.
	Path      string        `env:"HISTORY_PATH" envDefault:"kolega.db"`
	Retention time.Duration `env:"HISTORY_RETENTION" envDefault:"720h"`
	Schedule  string        `env:"HISTORY_SCHEDULE" envDefault:"0 0 4 * * *"`
}

// LoadConfig reads .env when present, then the process environment
func LoadConfig() (*Config, error) {
	// A missing .env is fine, the environment may already be set
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	return Parse()
}

// Parse builds the config from the process environment only
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if len(cfg.AudioQualityOrder) == 0 {
		cfg.AudioQualityOrder = append([]string(nil), player.DefaultQualityOrder...)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.DiscordToken == "" {
		return ErrDiscordTokenNotSet
	}
	if c.Voice.ConnectTimeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.Voice.Bitrate < 8 || c.Voice.Bitrate > 512 {
		return ErrInvalidBitrate
	}
	if c.Voice.Volume <= 0 {
		return ErrInvalidVolume
	}
	if len(c.AudioQualityOrder) == 0 {
		return ErrEmptyQualityOrder
	}
	if c.History.Path != "" && c.History.Retention <= 0 {
		return ErrInvalidRetention
	}
	if c.CommandRate <= 0 || c.CommandBurst <= 0 {
		return ErrInvalidCommandLimits
	}
	return nil
}
