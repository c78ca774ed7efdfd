// Package oto implements audio.Sink over github.com/hajimehoshi/oto/v2.
package oto

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/hajimehoshi/oto/v2"
	"github.com/xaionaro-go/xrplayer/audio"
	"github.com/xaionaro-go/xrplayer/logger"
	"github.com/xaionaro-go/xsync"
)

// DefaultBufferDuration is two bursts of a typical low-latency output stream.
const DefaultBufferDuration = 40 * time.Millisecond

type Config struct {
	BufferDuration time.Duration `yaml:"buffer_duration"`
}

func DefaultConfig() Config {
	return Config{
		BufferDuration: DefaultBufferDuration,
	}
}

func (cfg Config) withDefaults() Config {
	if cfg.BufferDuration <= 0 {
		cfg.BufferDuration = DefaultBufferDuration
	}
	return cfg
}

// oto allows only one context per process.
var otoContext struct {
	locker  xsync.Mutex
	context *oto.Context
	format  audio.Format
}

func getOtoContext(
	ctx context.Context,
	format audio.Format,
) (*oto.Context, error) {
	return xsync.DoR2(ctx, &otoContext.locker, func() (*oto.Context, error) {
		if otoContext.context != nil {
			if otoContext.format != format {
				return nil, fmt.Errorf("the audio output is already opened as %s, cannot reopen as %s", otoContext.format, format)
			}
			return otoContext.context, nil
		}

		otoCtx, ready, err := oto.NewContext(format.SampleRate, format.ChannelCount, oto.FormatSignedInt16LE)
		if err != nil {
			return nil, fmt.Errorf("unable to initialize the audio output %s: %w", format, err)
		}
		select {
		case <-ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		otoContext.context = otoCtx
		otoContext.format = format
		logger.Debugf(ctx, "initialized the audio output: %s", format)
		return otoCtx, nil
	})
}

type Sink struct {
	format audio.Format
	buffer *pcmBuffer
	player oto.Player

	closeOnce sync.Once
}

var _ audio.Sink = (*Sink)(nil)

func NewSink(
	ctx context.Context,
	format audio.Format,
	cfg Config,
) (_ret *Sink, _err error) {
	logger.Debugf(ctx, "NewSink(%s)", format)
	defer func() { logger.Debugf(ctx, "/NewSink(%s): %v", format, _err) }()
	if format.SampleRate <= 0 || format.ChannelCount <= 0 {
		return nil, fmt.Errorf("invalid audio format: %s", format)
	}
	cfg = cfg.withDefaults()

	otoCtx, err := getOtoContext(ctx, format)
	if err != nil {
		return nil, err
	}

	bufFrames := int(cfg.BufferDuration * time.Duration(format.SampleRate) / time.Second)
	if bufFrames < 1 {
		bufFrames = 1
	}
	s := &Sink{
		format: format,
		buffer: newPCMBuffer(bufFrames * format.FrameSize()),
	}
	s.player = otoCtx.NewPlayer(s.buffer)
	if setter, ok := s.player.(interface{ SetBufferSize(int) }); ok {
		setter.SetBufferSize(bufFrames * format.FrameSize())
	}
	s.player.Play()
	return s, nil
}

// NewFactory returns an audio.Factory opening oto sinks.
func NewFactory(cfg Config) audio.Factory {
	return audio.FactoryFunc(func(ctx context.Context, format audio.Format) (audio.Sink, error) {
		return NewSink(ctx, format, cfg)
	})
}

func (s *Sink) String() string {
	return fmt.Sprintf("OtoSink(%s)", s.format)
}

func (s *Sink) Write(
	ctx context.Context,
	pcm []byte,
	frameCount int,
	timeout time.Duration,
) (int, error) {
	frameSize := s.format.FrameSize()
	if size := frameCount * frameSize; size < len(pcm) {
		pcm = pcm[:size]
	}
	n, err := s.buffer.Write(ctx, pcm, frameSize, timeout)
	if err == io.ErrClosedPipe {
		return n / frameSize, fmt.Errorf("the sink is closed: %w", err)
	}
	if err != nil {
		return n / frameSize, err
	}
	if n/frameSize < frameCount {
		return n / frameSize, audio.ErrShortWrite
	}
	return n / frameSize, nil
}

func (s *Sink) Close(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "Close")
	defer func() { logger.Debugf(ctx, "/Close: %v", _err) }()
	s.closeOnce.Do(func() {
		s.buffer.Close()
		if err := s.player.Close(); err != nil {
			_err = fmt.Errorf("unable to close the audio player: %w", err)
		}
	})
	return
}
