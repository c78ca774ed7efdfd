package codec

import (
	"fmt"

	"github.com/xaionaro-go/xrplayer/types"
)

// Format describes an elementary stream to a decoder.
type Format struct {
	MIMEType  string
	MediaType types.MediaType

	// Video; Width and Height are aligned the way the decoder outputs them.
	Width  int
	Height int

	// Audio.
	SampleRate   int
	ChannelCount int

	DurationUs int64

	// MaxInputSize is a hint for the size of the largest encoded sample.
	MaxInputSize int

	// Platform carries the platform-specific codec parameters
	// (e.g. *astiav.CodecParameters for the libav adapter).
	Platform any
}

func (f Format) String() string {
	switch f.MediaType {
	case types.MediaTypeVideo:
		return fmt.Sprintf("%s %dx%d", f.MIMEType, f.Width, f.Height)
	case types.MediaTypeAudio:
		return fmt.Sprintf("%s %dHz %dch", f.MIMEType, f.SampleRate, f.ChannelCount)
	default:
		return f.MIMEType
	}
}

// Surface is an output surface a decoder may render into directly
// (window-composited playback). A nil Surface means that the caller reads
// the decoded planes itself.
type Surface interface {
	fmt.Stringer
}
