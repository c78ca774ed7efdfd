package xrplayer

import (
	"time"
)

const (
	DefaultPollInterval  = 5 * time.Millisecond
	DefaultInputTimeout  = 2 * time.Millisecond
	DefaultOutputTimeout = 0
)

type Config struct {
	// Loop restarts the playback from the beginning at the end of the
	// stream. If disabled, the player drains the decoders, signals
	// EndOfStream and stops decoding.
	Loop bool `yaml:"loop"`

	PollInterval  time.Duration `yaml:"poll_interval"`
	InputTimeout  time.Duration `yaml:"input_timeout"`
	OutputTimeout time.Duration `yaml:"output_timeout"`

	// VideoOnly ignores the audio track.
	VideoOnly bool `yaml:"video_only"`
}

func DefaultConfig() Config {
	return Config{
		Loop:          true,
		PollInterval:  DefaultPollInterval,
		InputTimeout:  DefaultInputTimeout,
		OutputTimeout: DefaultOutputTimeout,
	}
}

func (cfg Config) withDefaults() Config {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.InputTimeout < 0 {
		cfg.InputTimeout = 0
	}
	if cfg.OutputTimeout < 0 {
		cfg.OutputTimeout = 0
	}
	return cfg
}
