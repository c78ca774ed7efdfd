// Package framequeue implements the hand-off between the decode loop (which
// only pushes) and the render loop (which peeks and retires).
//
// Retirement policy: the oldest frame is popped only once it is due and a
// newer frame is already queued, so the renderer always has a frame to show
// and presentation times observed through PeekCurrent never go backwards.
package framequeue

import (
	"context"
	"fmt"

	"github.com/xaionaro-go/typing"
	"github.com/xaionaro-go/xrplayer/clock"
	"github.com/xaionaro-go/xrplayer/logger"
	"github.com/xaionaro-go/xrplayer/types"
	"github.com/xaionaro-go/xsync"
	"go.uber.org/atomic"
)

// Releaser returns a buffer to the decoder it came from.
type Releaser interface {
	ReleaseOutputFrame(ctx context.Context, buffer types.BufferHandle, render bool) error
}

type Statistics struct {
	Pushed   uint64 `json:"pushed"`
	Retired  uint64 `json:"retired"`
	Flushed  uint64 `json:"flushed"`
	Depth    int    `json:"depth"`
	MaxDepth int    `json:"max_depth"`
}

// Queue must have a single consumer: PeekCurrent and Retire are expected
// to be called from the same goroutine. Push and Flush may be called
// concurrently with them.
type Queue struct {
	locker   xsync.Mutex
	frames   []Frame
	maxDepth int

	// retiring is the buffer Retire is releasing; Flush leaves it to Retire.
	retiring typing.Optional[types.BufferHandle]

	releaser Releaser
	clock    clock.Clock

	pushed  atomic.Uint64
	retired atomic.Uint64
	flushed atomic.Uint64
}

func New(
	releaser Releaser,
	clock clock.Clock,
) *Queue {
	return &Queue{
		releaser: releaser,
		clock:    clock,
	}
}

func (q *Queue) String() string {
	return fmt.Sprintf("FrameQueue(len:%d)", q.Len(context.Background()))
}

// Push appends a frame; the queue takes over the right to release its buffer.
func (q *Queue) Push(ctx context.Context, f Frame) {
	logger.Tracef(ctx, "Push(%s)", f)
	q.locker.Do(xsync.WithNoLogging(ctx, true), func() {
		q.frames = append(q.frames, f)
		if len(q.frames) > q.maxDepth {
			q.maxDepth = len(q.frames)
		}
	})
	q.pushed.Inc()
}

// PeekCurrent returns the oldest queued frame without removing it.
func (q *Queue) PeekCurrent(ctx context.Context) typing.Optional[Frame] {
	return xsync.DoR1(xsync.WithNoLogging(ctx, true), &q.locker, func() typing.Optional[Frame] {
		if len(q.frames) == 0 {
			return typing.Optional[Frame]{}
		}
		return typing.Opt(q.frames[0])
	})
}

func (q *Queue) Len(ctx context.Context) int {
	return xsync.DoR1(xsync.WithNoLogging(ctx, true), &q.locker, func() int {
		return len(q.frames)
	})
}

// Retire is called once per display cycle with the frame previously
// returned by PeekCurrent. It returns true if the frame was released and
// removed from the queue.
func (q *Queue) Retire(ctx context.Context, f Frame) bool {
	nowMs := q.clock.NowMs()
	shouldRetire := xsync.DoR1(xsync.WithNoLogging(ctx, true), &q.locker, func() bool {
		if len(q.frames) == 0 || q.frames[0].Buffer != f.Buffer {
			return false
		}
		if nowMs < q.frames[0].PresentationTimeMs {
			return false
		}
		if len(q.frames) < 2 {
			return false
		}
		q.retiring = typing.Opt(f.Buffer)
		return true
	})
	if !shouldRetire {
		logger.Tracef(ctx, "keeping %s at %dms", f, nowMs)
		return false
	}

	// the mutex must not be held across the decoder call
	if err := q.releaser.ReleaseOutputFrame(ctx, f.Buffer, true); err != nil {
		logger.Errorf(ctx, "unable to release %s: %v", f, err)
	}

	q.locker.Do(xsync.WithNoLogging(ctx, true), func() {
		q.retiring = typing.Optional[types.BufferHandle]{}
		// a concurrent Flush may have emptied the queue meanwhile
		if len(q.frames) > 0 && q.frames[0].Buffer == f.Buffer {
			q.frames[0] = Frame{}
			q.frames = q.frames[1:]
		}
	})
	q.retired.Inc()
	logger.Tracef(ctx, "retired %s at %dms", f, nowMs)
	return true
}

// Flush releases every queued frame without displaying it. A frame that
// Retire is releasing at the same time is dropped from the queue but
// released only by Retire.
func (q *Queue) Flush(ctx context.Context) int {
	var frames []Frame
	q.locker.Do(xsync.WithNoLogging(ctx, true), func() {
		frames = q.frames
		q.frames = nil
		if len(frames) > 0 && q.retiring.IsSet() && frames[0].Buffer == q.retiring.Get() {
			frames = frames[1:]
		}
	})
	for _, f := range frames {
		if err := q.releaser.ReleaseOutputFrame(ctx, f.Buffer, false); err != nil {
			logger.Errorf(ctx, "unable to release %s: %v", f, err)
		}
	}
	q.flushed.Add(uint64(len(frames)))
	logger.Debugf(ctx, "flushed %d frames", len(frames))
	return len(frames)
}

func (q *Queue) Stats(ctx context.Context) Statistics {
	stats := Statistics{
		Pushed:  q.pushed.Load(),
		Retired: q.retired.Load(),
		Flushed: q.flushed.Load(),
	}
	q.locker.Do(xsync.WithNoLogging(ctx, true), func() {
		stats.Depth = len(q.frames)
		stats.MaxDepth = q.maxDepth
	})
	return stats
}
