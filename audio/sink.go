// Package audio defines the audio output sink the decode loop writes PCM to.
package audio

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// BytesPerSample is the size of one signed 16-bit little-endian sample.
const BytesPerSample = 2

var ErrShortWrite = errors.New("the sink accepted less frames than offered")

// Format describes interleaved signed 16-bit PCM.
type Format struct {
	SampleRate   int
	ChannelCount int
}

func (f Format) String() string {
	return fmt.Sprintf("s16le %dHz %dch", f.SampleRate, f.ChannelCount)
}

// FrameSize is the byte size of one PCM frame (one sample per channel).
func (f Format) FrameSize() int {
	return f.ChannelCount * BytesPerSample
}

// FramesDuration returns how long frameCount frames take to play.
func (f Format) FramesDuration(frameCount int) time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(frameCount) * time.Second / time.Duration(f.SampleRate)
}

type Sink interface {
	// Write blocks up to timeout; it returns the amount of frames accepted
	// and ErrShortWrite if that is less than frameCount.
	Write(ctx context.Context, pcm []byte, frameCount int, timeout time.Duration) (int, error)
	Close(ctx context.Context) error
}

type Factory interface {
	OpenSink(ctx context.Context, format Format) (Sink, error)
}

type FactoryFunc func(ctx context.Context, format Format) (Sink, error)

func (fn FactoryFunc) OpenSink(ctx context.Context, format Format) (Sink, error) {
	return fn(ctx, format)
}
