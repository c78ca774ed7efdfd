package avconv

import (
	"github.com/asticode/go-astiav"
)

func FindStreamByIndex(
	fmtCtx *astiav.FormatContext,
	streamIndex int,
) *astiav.Stream {
	for _, stream := range fmtCtx.Streams() {
		if stream.Index() == streamIndex {
			return stream
		}
	}
	return nil
}

// MIMEType returns an Android-style MIME type for a libav codec, falling
// back to "<media type>/<codec name>".
func MIMEType(codecParams *astiav.CodecParameters) string {
	switch codecParams.CodecID() {
	case astiav.CodecIDH264:
		return "video/avc"
	case astiav.CodecIDHevc:
		return "video/hevc"
	case astiav.CodecIDVp8:
		return "video/x-vnd.on2.vp8"
	case astiav.CodecIDVp9:
		return "video/x-vnd.on2.vp9"
	case astiav.CodecIDAv1:
		return "video/av01"
	case astiav.CodecIDMpeg4:
		return "video/mp4v-es"
	case astiav.CodecIDAac:
		return "audio/mp4a-latm"
	case astiav.CodecIDOpus:
		return "audio/opus"
	case astiav.CodecIDMp3:
		return "audio/mpeg"
	case astiav.CodecIDVorbis:
		return "audio/vorbis"
	case astiav.CodecIDFlac:
		return "audio/flac"
	}
	switch codecParams.MediaType() {
	case astiav.MediaTypeVideo:
		return "video/" + codecParams.CodecID().Name()
	case astiav.MediaTypeAudio:
		return "audio/" + codecParams.CodecID().Name()
	default:
		return "application/" + codecParams.CodecID().Name()
	}
}
