// Package closuresignaler provides a one-shot broadcast signal, e.g. "the
// decode loop reached the end of the stream".
package closuresignaler

import (
	"context"
	"sync"

	"github.com/xaionaro-go/xrplayer/logger"
)

type ClosureSignaler struct {
	closeOnce sync.Once
	c         chan struct{}
}

func New() *ClosureSignaler {
	return &ClosureSignaler{
		c: make(chan struct{}),
	}
}

func (c *ClosureSignaler) CloseChan() <-chan struct{} {
	return c.c
}

// Close fires the signal; calling it again is a no-op.
func (c *ClosureSignaler) Close(ctx context.Context) {
	c.closeOnce.Do(func() {
		logger.Debugf(ctx, "signaling closure")
		close(c.c)
	})
}

func (c *ClosureSignaler) IsClosed() bool {
	select {
	case <-c.c:
		return true
	default:
		return false
	}
}

// Wait blocks until the signal fires or ctx is done.
func (c *ClosureSignaler) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.c:
		return nil
	}
}
