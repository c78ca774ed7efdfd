package libav

import (
	"github.com/xaionaro-go/xrplayer/codec"
	"github.com/xaionaro-go/xrplayer/types"
)

type decodedFrame struct {
	Data               []byte
	PresentationTimeUs int64
	Flags              types.BufferFlags
	Width              int
	Height             int
}

// outputTable tracks decoded frames from the moment libav returns them
// until the consumer releases them. It is not thread-safe.
type outputTable struct {
	maxOutstanding int
	ready          []decodedFrame
	outstanding    map[types.BufferHandle]decodedFrame
	lastHandle     types.BufferHandle
}

func newOutputTable(maxOutstanding int) *outputTable {
	return &outputTable{
		maxOutstanding: maxOutstanding,
		outstanding:    map[types.BufferHandle]decodedFrame{},
	}
}

func (t *outputTable) Add(f decodedFrame) {
	t.ready = append(t.ready, f)
}

// IsFull reports whether the consumer holds (or is about to hold) as many
// buffers as allowed.
func (t *outputTable) IsFull() bool {
	return len(t.outstanding)+len(t.ready) >= t.maxOutstanding
}

func (t *outputTable) HasReady() bool {
	return len(t.ready) > 0
}

// Dequeue hands out the oldest ready frame under a fresh handle.
func (t *outputTable) Dequeue() (codec.OutputInfo, bool) {
	if len(t.ready) == 0 || len(t.outstanding) >= t.maxOutstanding {
		return codec.OutputInfo{}, false
	}
	f := t.ready[0]
	t.ready[0] = decodedFrame{}
	t.ready = t.ready[1:]

	t.lastHandle++
	if !t.lastHandle.IsValid() {
		t.lastHandle++
	}
	h := t.lastHandle
	t.outstanding[h] = f
	return codec.OutputInfo{
		Buffer:             h,
		Size:               len(f.Data),
		PresentationTimeUs: f.PresentationTimeUs,
		Flags:              f.Flags,
		Width:              f.Width,
		Height:             f.Height,
	}, true
}

func (t *outputTable) Get(h types.BufferHandle) ([]byte, error) {
	f, ok := t.outstanding[h]
	if !ok {
		return nil, codec.ErrUnknownBuffer
	}
	if f.Data == nil {
		return nil, codec.ErrNoBuffer
	}
	return f.Data, nil
}

func (t *outputTable) Release(h types.BufferHandle) error {
	if _, ok := t.outstanding[h]; !ok {
		return codec.ErrUnknownBuffer
	}
	delete(t.outstanding, h)
	return nil
}

// Reset drops every frame; the handles given out so far become invalid.
func (t *outputTable) Reset() {
	t.ready = nil
	t.outstanding = map[types.BufferHandle]decodedFrame{}
}

func (t *outputTable) OutstandingCount() int {
	return len(t.outstanding)
}
