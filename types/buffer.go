package types

import (
	"fmt"
	"strings"
)

// BufferHandle identifies a decoded output buffer owned by a decoder until
// it is released back to it.
type BufferHandle uint64

const InvalidBufferHandle = BufferHandle(0)

func (h BufferHandle) IsValid() bool {
	return h != InvalidBufferHandle
}

func (h BufferHandle) String() string {
	if !h.IsValid() {
		return "Buffer(invalid)"
	}
	return fmt.Sprintf("Buffer(%d)", uint64(h))
}

// SlotIndex identifies a decoder input slot.
type SlotIndex int

type BufferFlags uint32

const (
	BufferFlagKeyFrame = BufferFlags(1 << iota)
	BufferFlagCodecConfig
	BufferFlagEndOfStream
)

func (f BufferFlags) Has(flag BufferFlags) bool {
	return f&flag == flag
}

func (f BufferFlags) String() string {
	var parts []string
	if f.Has(BufferFlagKeyFrame) {
		parts = append(parts, "key")
	}
	if f.Has(BufferFlagCodecConfig) {
		parts = append(parts, "config")
	}
	if f.Has(BufferFlagEndOfStream) {
		parts = append(parts, "eos")
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// TrackIndex is a demuxer track number; a negative value means the end of
// the stream was reached.
type TrackIndex int

const TrackIndexEndOfStream = TrackIndex(-1)

func (i TrackIndex) IsEndOfStream() bool {
	return i < 0
}
