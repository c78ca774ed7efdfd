package avconv

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAlignUp(t *testing.T) {
	require.Equal(t, 1920, AlignUp(1920, 16))
	require.Equal(t, 1088, AlignUp(1080, 16))
	require.Equal(t, int32(16), AlignUp(int32(1), int32(16)))
	require.Equal(t, 7, AlignUp(7, 1))
}

func TestMicrosecondsToMilliseconds(t *testing.T) {
	require.Equal(t, int64(33), MicrosecondsToMilliseconds(33_366))
	require.Equal(t, int64(0), MicrosecondsToMilliseconds(999))
	require.Equal(t, int64(1), MicrosecondsToMilliseconds(1999))
	require.LessOrEqual(t, MicrosecondsToMilliseconds(1999), MicrosecondsToMilliseconds(2000))
	require.Equal(t, int64(-1), MicrosecondsToMilliseconds(-1))
	require.Equal(t, int64(-2), MicrosecondsToMilliseconds(-1001))
}
