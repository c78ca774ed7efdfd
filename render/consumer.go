// Package render binds the player's frame queue to the graphics backend:
// once per display refresh it uploads the current picture and retires it.
package render

import (
	"context"
	"fmt"

	"github.com/xaionaro-go/typing"
	"github.com/xaionaro-go/xrplayer/framequeue"
	"github.com/xaionaro-go/xrplayer/logger"
	"github.com/xaionaro-go/xrplayer/types"
	"go.uber.org/atomic"
)

// FrameSource is implemented by *xrplayer.Player.
type FrameSource interface {
	PeekCurrent(ctx context.Context) typing.Optional[framequeue.Frame]
	Retire(ctx context.Context, f framequeue.Frame) bool
}

// TextureUploader copies a decoded picture into the video texture. The
// frame's PlaneData must not be retained after UploadFrame returns.
type TextureUploader interface {
	UploadFrame(ctx context.Context, f framequeue.Frame) error
}

type frameID struct {
	Buffer             types.BufferHandle
	PresentationTimeMs int64
}

type Statistics struct {
	Cycles   uint64 `json:"cycles"`
	Uploaded uint64 `json:"uploaded"`
	Reused   uint64 `json:"reused"`
	Empty    uint64 `json:"empty"`
	Retired  uint64 `json:"retired"`
}

// Consumer must be driven from a single goroutine (the render loop).
type Consumer struct {
	source   FrameSource
	uploader TextureUploader
	lastID   typing.Optional[frameID]

	cycles   atomic.Uint64
	uploaded atomic.Uint64
	reused   atomic.Uint64
	empty    atomic.Uint64
	retired  atomic.Uint64
}

func NewConsumer(
	source FrameSource,
	uploader TextureUploader,
) *Consumer {
	return &Consumer{
		source:   source,
		uploader: uploader,
	}
}

// RenderFrame runs one display cycle. It returns true if a new picture was
// uploaded; otherwise the renderer keeps showing the last texture.
func (c *Consumer) RenderFrame(ctx context.Context) (_uploaded bool, _err error) {
	c.cycles.Inc()
	cur := c.source.PeekCurrent(ctx)
	if !cur.IsSet() {
		c.empty.Inc()
		return false, nil
	}
	f := cur.Get()
	id := frameID{Buffer: f.Buffer, PresentationTimeMs: f.PresentationTimeMs}

	var err error
	if c.lastID.IsSet() && c.lastID.Get() == id {
		c.reused.Inc()
	} else {
		err = c.uploader.UploadFrame(ctx, f)
		if err == nil {
			_uploaded = true
			c.uploaded.Inc()
			c.lastID = typing.Opt(id)
		}
	}

	if c.source.Retire(ctx, f) {
		c.retired.Inc()
	}
	if err != nil {
		logger.Debugf(ctx, "unable to upload %s: %v", f, err)
		return false, fmt.Errorf("unable to upload %s: %w", f, err)
	}
	return _uploaded, nil
}

func (c *Consumer) Stats() Statistics {
	return Statistics{
		Cycles:   c.cycles.Load(),
		Uploaded: c.uploaded.Load(),
		Reused:   c.reused.Load(),
		Empty:    c.empty.Load(),
		Retired:  c.retired.Load(),
	}
}
