// media_type.go defines the MediaType enum and its methods.

package types

import (
	"fmt"
	"strings"
)

type MediaType int

const (
	MediaTypeUnknown = MediaType(-1)
	MediaTypeVideo   = MediaType(0)
	MediaTypeAudio   = MediaType(1)
)

func (t MediaType) String() string {
	switch t {
	case MediaTypeVideo:
		return "video"
	case MediaTypeAudio:
		return "audio"
	case MediaTypeUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("MediaType(%d)", int(t))
	}
}

// MediaTypeFromMIME classifies a MIME type like "video/avc" or "audio/mp4a-latm".
func MediaTypeFromMIME(mime string) MediaType {
	switch {
	case strings.HasPrefix(mime, "video/"):
		return MediaTypeVideo
	case strings.HasPrefix(mime, "audio/"):
		return MediaTypeAudio
	default:
		return MediaTypeUnknown
	}
}
