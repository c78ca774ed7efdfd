package oto

import (
	"context"
	"io"
	"time"

	"github.com/xaionaro-go/xrplayer/audio"
	"github.com/xaionaro-go/xsync"
)

// pcmBuffer is a bounded ring buffer between Sink.Write and oto's pull
// reader. Writers wait (up to a timeout) for room; the reader waits for data.
type pcmBuffer struct {
	locker   xsync.Mutex
	data     []byte
	start    int
	size     int
	isClosed bool

	dataAvailable  chan struct{}
	spaceAvailable chan struct{}
}

var _ io.Reader = (*pcmBuffer)(nil)

func newPCMBuffer(capacity int) *pcmBuffer {
	return &pcmBuffer{
		data:           make([]byte, capacity),
		dataAvailable:  make(chan struct{}, 1),
		spaceAvailable: make(chan struct{}, 1),
	}
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// Write copies whole frames of frameSize bytes; it returns the amount of
// bytes copied and audio.ErrShortWrite if the timeout elapsed first.
func (b *pcmBuffer) Write(
	ctx context.Context,
	p []byte,
	frameSize int,
	timeout time.Duration,
) (int, error) {
	if frameSize <= 0 {
		frameSize = 1
	}
	p = p[:len(p)/frameSize*frameSize]

	var deadline <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		deadline = t.C
	}

	written := 0
	for {
		n, isClosed := xsync.DoR2(xsync.WithNoLogging(ctx, true), &b.locker, func() (int, bool) {
			if b.isClosed {
				return 0, true
			}
			free := (len(b.data) - b.size) / frameSize * frameSize
			n := len(p) - written
			if n > free {
				n = free
			}
			b.pushLocked(p[written : written+n])
			return n, false
		})
		if isClosed {
			return written, io.ErrClosedPipe
		}
		if n > 0 {
			written += n
			signal(b.dataAvailable)
		}
		if written == len(p) {
			return written, nil
		}
		if deadline == nil {
			return written, audio.ErrShortWrite
		}

		select {
		case <-b.spaceAvailable:
		case <-deadline:
			return written, audio.ErrShortWrite
		case <-ctx.Done():
			return written, ctx.Err()
		}
	}
}

func (b *pcmBuffer) pushLocked(p []byte) {
	end := (b.start + b.size) % len(b.data)
	n := copy(b.data[end:], p)
	copy(b.data, p[n:])
	b.size += len(p)
}

func (b *pcmBuffer) popLocked(p []byte) int {
	if len(p) > b.size {
		p = p[:b.size]
	}
	n := copy(p, b.data[b.start:])
	if n < len(p) {
		n += copy(p[n:], b.data)
	}
	b.start = (b.start + n) % len(b.data)
	b.size -= n
	return n
}

// Read blocks until some data is buffered; it returns io.EOF once the
// buffer is closed and drained.
func (b *pcmBuffer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	ctx := xsync.WithNoLogging(context.TODO(), true)
	for {
		n, isClosed := xsync.DoR2(ctx, &b.locker, func() (int, bool) {
			return b.popLocked(p), b.isClosed
		})
		if n > 0 {
			signal(b.spaceAvailable)
			return n, nil
		}
		if isClosed {
			return 0, io.EOF
		}
		<-b.dataAvailable
	}
}

func (b *pcmBuffer) Buffered() int {
	return xsync.DoR1(xsync.WithNoLogging(context.TODO(), true), &b.locker, func() int {
		return b.size
	})
}

func (b *pcmBuffer) Close() {
	b.locker.Do(xsync.WithNoLogging(context.TODO(), true), func() {
		b.isClosed = true
	})
	signal(b.dataAvailable)
	signal(b.spaceAvailable)
}
