package render

import (
	"fmt"
	"strings"
)

type Eye int

const (
	EyeLeft = Eye(iota)
	EyeRight
)

func (e Eye) String() string {
	switch e {
	case EyeLeft:
		return "left"
	case EyeRight:
		return "right"
	default:
		return fmt.Sprintf("unknown_eye_%d", int(e))
	}
}

// Region is a sub-rectangle of the video texture in normalized texture
// coordinates with the origin at the bottom-left corner.
type Region struct {
	U0, V0 float32
	U1, V1 float32
}

var fullRegion = Region{U0: 0, V0: 0, U1: 1, V1: 1}

// VideoMode is the layout of the pictures in the video file.
type VideoMode int

const (
	VideoModeUndefined = VideoMode(iota)
	VideoMode2D
	VideoMode3DSideBySide
	VideoMode3DOverUnder
	VideoMode360
	EndOfVideoMode
)

func (m VideoMode) String() string {
	switch m {
	case VideoModeUndefined:
		return "<undefined>"
	case VideoMode2D:
		return "2D"
	case VideoMode3DSideBySide:
		return "3D-SBS"
	case VideoMode3DOverUnder:
		return "3D-OU"
	case VideoMode360:
		return "360"
	default:
		return fmt.Sprintf("unknown_video_mode_%d", int(m))
	}
}

func ParseVideoMode(s string) (VideoMode, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for m := VideoModeUndefined + 1; m < EndOfVideoMode; m++ {
		if m.String() == s {
			return m, nil
		}
	}
	return VideoModeUndefined, fmt.Errorf("unknown video mode '%s'", s)
}

func (m VideoMode) IsStereo() bool {
	return m == VideoMode3DSideBySide || m == VideoMode3DOverUnder
}

// EyeRegion returns the part of the picture shown to the given eye.
func (m VideoMode) EyeRegion(eye Eye) Region {
	switch m {
	case VideoMode3DSideBySide:
		if eye == EyeRight {
			return Region{U0: 0.5, V0: 0, U1: 1, V1: 1}
		}
		return Region{U0: 0, V0: 0, U1: 0.5, V1: 1}
	case VideoMode3DOverUnder:
		if eye == EyeRight {
			return Region{U0: 0, V0: 0, U1: 1, V1: 0.5}
		}
		return Region{U0: 0, V0: 0.5, U1: 1, V1: 1}
	default:
		return fullRegion
	}
}

// EyeSize returns the size in pixels of one eye's picture.
func (m VideoMode) EyeSize(width, height int) (int, int) {
	switch m {
	case VideoMode3DSideBySide:
		return width / 2, height
	case VideoMode3DOverUnder:
		return width, height / 2
	default:
		return width, height
	}
}
