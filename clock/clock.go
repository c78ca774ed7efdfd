// Package clock provides the wall time source used to decide when a decoded
// frame becomes due.
package clock

import (
	"context"
	"time"

	"github.com/xaionaro-go/xsync"
)

// Clock returns milliseconds since an arbitrary but consistent epoch.
type Clock interface {
	NowMs() int64
}

type Monotonic struct {
	start time.Time
}

var _ Clock = (*Monotonic)(nil)

func NewMonotonic() *Monotonic {
	return &Monotonic{start: time.Now()}
}

func (c *Monotonic) NowMs() int64 {
	return time.Since(c.start).Milliseconds()
}

// Manual is a clock that moves only when told to.
type Manual struct {
	locker xsync.Mutex
	nowMs  int64
}

var _ Clock = (*Manual)(nil)

func NewManual(nowMs int64) *Manual {
	return &Manual{nowMs: nowMs}
}

func (c *Manual) NowMs() int64 {
	return xsync.DoR1(xsync.WithNoLogging(context.TODO(), true), &c.locker, func() int64 {
		return c.nowMs
	})
}

func (c *Manual) Set(nowMs int64) {
	c.locker.Do(xsync.WithNoLogging(context.TODO(), true), func() {
		c.nowMs = nowMs
	})
}

func (c *Manual) Advance(d time.Duration) int64 {
	return xsync.DoR1(xsync.WithNoLogging(context.TODO(), true), &c.locker, func() int64 {
		c.nowMs += d.Milliseconds()
		return c.nowMs
	})
}
