// Package demuxer defines the sample extractor contract: a cursor over the
// interleaved samples of the selected tracks of a media file.
package demuxer

import (
	"context"

	"github.com/xaionaro-go/xrplayer/codec"
	"github.com/xaionaro-go/xrplayer/types"
)

// VideoAlignment is the alignment applied to reported video dimensions.
const VideoAlignment = 16

type Demuxer interface {
	TrackCount() int
	TrackFormat(track int) (codec.Format, error)
	SelectTrack(track int) error

	// SampleTrackIndex returns the track of the current sample, or a
	// negative index if the end of the stream is reached.
	SampleTrackIndex() types.TrackIndex
	SampleTimeUs() int64
	SampleSize() int
	SampleFlags() types.BufferFlags

	// ReadSampleData copies the current sample into buf without advancing.
	ReadSampleData(buf []byte) (int, error)

	// Advance moves to the next sample; it returns false at the end of the stream.
	Advance() bool

	SeekTo(ctx context.Context, timeUs int64) error
	DurationUs() int64

	Close() error
}

// FindTrack returns the first track of the given media type, or -1.
func FindTrack(d Demuxer, mediaType types.MediaType) int {
	for i := 0; i < d.TrackCount(); i++ {
		f, err := d.TrackFormat(i)
		if err != nil {
			continue
		}
		if f.MediaType == mediaType {
			return i
		}
	}
	return -1
}
