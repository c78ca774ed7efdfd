package codec

import (
	"errors"
)

var (
	ErrNotConfigured = errors.New("the decoder is not configured")
	ErrNotStarted    = errors.New("the decoder is not started")
	ErrUnknownSlot   = errors.New("unknown input slot")
	ErrUnknownBuffer = errors.New("unknown (or already released) output buffer")
	ErrNoBuffer      = errors.New("the output buffer has no CPU-accessible data")
	ErrShortBuffer   = errors.New("the buffer is too small for the sample")
)
