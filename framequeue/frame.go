package framequeue

import (
	"fmt"

	"github.com/xaionaro-go/xrplayer/types"
)

// Frame is a decoded picture waiting to be displayed.
//
// PlaneData is a view into the decoder's output buffer: it stays valid only
// until Buffer is released, and the Frame never owns a copy.
type Frame struct {
	PresentationTimeMs int64
	Width              int
	Height             int
	PlaneData          []byte
	Buffer             types.BufferHandle

	// SourcePTSUs is the stream timestamp including the restart epoch.
	SourcePTSUs int64
}

func (f Frame) String() string {
	return fmt.Sprintf("Frame(%s, %dx%d, at %dms)", f.Buffer, f.Width, f.Height, f.PresentationTimeMs)
}
