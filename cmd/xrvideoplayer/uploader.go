package main

import (
	"context"

	"github.com/xaionaro-go/xrplayer/framequeue"
	"github.com/xaionaro-go/xrplayer/render"
	"go.uber.org/atomic"
)

// nullUploader stands in for a GPU texture: it only accounts what would
// have been uploaded for each eye.
type nullUploader struct {
	videoMode render.VideoMode
	bytes     atomic.Uint64
	eyePixels atomic.Uint64
}

var _ render.TextureUploader = (*nullUploader)(nil)

func (u *nullUploader) UploadFrame(ctx context.Context, f framequeue.Frame) error {
	u.bytes.Add(uint64(len(f.PlaneData)))
	eyes := 1
	if u.videoMode.IsStereo() {
		eyes = 2
	}
	w, h := u.videoMode.EyeSize(f.Width, f.Height)
	u.eyePixels.Add(uint64(eyes * w * h))
	return nil
}
