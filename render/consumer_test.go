package render

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/xrplayer/clock"
	"github.com/xaionaro-go/xrplayer/framequeue"
	"github.com/xaionaro-go/xrplayer/types"
)

type dummyReleaser struct {
	released []types.BufferHandle
}

func (r *dummyReleaser) ReleaseOutputFrame(_ context.Context, buffer types.BufferHandle, _ bool) error {
	r.released = append(r.released, buffer)
	return nil
}

type dummyUploader struct {
	uploaded []int64
	err      error
}

func (u *dummyUploader) UploadFrame(_ context.Context, f framequeue.Frame) error {
	if u.err != nil {
		return u.err
	}
	u.uploaded = append(u.uploaded, f.PresentationTimeMs)
	return nil
}

func TestConsumer(t *testing.T) {
	ctx := context.Background()
	rel := &dummyReleaser{}
	clk := clock.NewManual(0)
	q := framequeue.New(rel, clk)
	up := &dummyUploader{}
	c := NewConsumer(q, up)

	uploaded, err := c.RenderFrame(ctx)
	require.NoError(t, err)
	require.False(t, uploaded)

	for i, ts := range []int64{0, 33, 66} {
		q.Push(ctx, framequeue.Frame{PresentationTimeMs: ts, Buffer: types.BufferHandle(i + 1)})
	}

	var results []bool
	for _, now := range []int64{0, 10, 40, 50, 70, 80} {
		clk.Set(now)
		uploaded, err := c.RenderFrame(ctx)
		require.NoError(t, err)
		results = append(results, uploaded)
	}

	require.Equal(t, []bool{true, true, false, true, false, false}, results)
	require.Equal(t, []int64{0, 33, 66}, up.uploaded)
	require.Equal(t, []types.BufferHandle{1, 2}, rel.released)
	require.Equal(t, Statistics{Cycles: 7, Uploaded: 3, Reused: 3, Empty: 1, Retired: 2}, c.Stats())
}

func TestConsumerUploadError(t *testing.T) {
	ctx := context.Background()
	rel := &dummyReleaser{}
	q := framequeue.New(rel, clock.NewManual(100))
	up := &dummyUploader{err: fmt.Errorf("device lost")}
	c := NewConsumer(q, up)

	q.Push(ctx, framequeue.Frame{PresentationTimeMs: 0, Buffer: 1})
	q.Push(ctx, framequeue.Frame{PresentationTimeMs: 10, Buffer: 2})

	uploaded, err := c.RenderFrame(ctx)
	require.Error(t, err)
	require.False(t, uploaded)
	// the frame is retired anyway so that the queue keeps moving
	require.Equal(t, []types.BufferHandle{1}, rel.released)

	up.err = nil
	uploaded, err = c.RenderFrame(ctx)
	require.NoError(t, err)
	require.True(t, uploaded)
}
