// Package codec defines the decoder contract the player drives: an input
// slot queue for encoded samples and an output buffer queue for decoded
// data, where every dequeued output buffer is released exactly once.
package codec

import (
	"context"
	"time"

	"github.com/xaionaro-go/xrplayer/types"
)

type BufferHandle = types.BufferHandle
type SlotIndex = types.SlotIndex
type BufferFlags = types.BufferFlags

// OutputInfo describes a dequeued output buffer.
type OutputInfo struct {
	Buffer             BufferHandle
	Offset             int
	Size               int
	PresentationTimeUs int64
	Flags              BufferFlags

	// Video only.
	Width  int
	Height int
}

// Decoder is the hardware/software decoder adapter.
//
// Implementations must be safe for concurrent use: buffers are released
// from the render goroutine while the decode loop keeps feeding the codec.
type Decoder interface {
	Configure(ctx context.Context, format Format, surface Surface) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error

	// DequeueInputSlot waits up to timeout for a free input slot.
	DequeueInputSlot(ctx context.Context, timeout time.Duration) (SlotIndex, bool)
	InputSlotBuffer(ctx context.Context, slot SlotIndex) ([]byte, error)
	Submit(ctx context.Context, slot SlotIndex, length int, presentationTimeUs int64, flags BufferFlags) error

	// DequeueOutputFrame waits up to timeout for a decoded buffer.
	DequeueOutputFrame(ctx context.Context, timeout time.Duration) (OutputInfo, bool)
	OutputBuffer(ctx context.Context, buffer BufferHandle) ([]byte, error)
	ReleaseOutputFrame(ctx context.Context, buffer BufferHandle, render bool) error

	Close(ctx context.Context) error
}

type Factory interface {
	NewDecoder(ctx context.Context, format Format) (Decoder, error)
}

type FactoryFunc func(ctx context.Context, format Format) (Decoder, error)

func (fn FactoryFunc) NewDecoder(ctx context.Context, format Format) (Decoder, error) {
	return fn(ctx, format)
}
