package main

import (
	"fmt"
	"os"

	"github.com/xaionaro-go/xrplayer"
	"github.com/xaionaro-go/xrplayer/audio/oto"
	codeclibav "github.com/xaionaro-go/xrplayer/codec/libav"
	demuxerlibav "github.com/xaionaro-go/xrplayer/demuxer/libav"
	"gopkg.in/yaml.v3"
)

type config struct {
	Player  xrplayer.Config     `yaml:"player"`
	Decoder codeclibav.Config   `yaml:"decoder"`
	Demuxer demuxerlibav.Config `yaml:"demuxer"`
	Audio   oto.Config          `yaml:"audio"`
}

func defaultConfig() config {
	return config{
		Player:  xrplayer.DefaultConfig(),
		Decoder: codeclibav.DefaultConfig(),
		Audio:   oto.DefaultConfig(),
	}
}

func readConfig(path string) (config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("unable to read '%s': %w", path, err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("unable to parse '%s': %w", path, err)
	}
	return cfg, nil
}
