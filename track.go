package xrplayer

import (
	"context"
	"fmt"

	"github.com/xaionaro-go/xrplayer/codec"
	"github.com/xaionaro-go/xrplayer/logger"
	"github.com/xaionaro-go/xrplayer/types"
)

// track is an elementary stream being decoded. Only the decode loop touches
// its fields; the decoder itself is also used by the render side to release
// video buffers.
type track struct {
	index     int
	mediaType types.MediaType
	format    codec.Format
	decoder   codec.Decoder
	stats     *commonsTrackStatistics

	isInputEOS  bool
	isOutputEOS bool

	lastSampleTimeUs int64
	lastSampleStepUs int64
	hasSampleTime    bool
}

func (t *track) String() string {
	return fmt.Sprintf("%s track #%d (%s)", t.mediaType, t.index, t.format)
}

func (t *track) observeSampleTime(timeUs int64) {
	if t.hasSampleTime && timeUs > t.lastSampleTimeUs {
		t.lastSampleStepUs = timeUs - t.lastSampleTimeUs
	}
	if !t.hasSampleTime || timeUs > t.lastSampleTimeUs {
		t.lastSampleTimeUs = timeUs
	}
	t.hasSampleTime = true
}

// openTrack creates, configures and starts a decoder for the track; on
// failure nothing is left open.
func openTrack(
	ctx context.Context,
	decoderFactory codec.Factory,
	trackIndex int,
	format codec.Format,
	stats *commonsTrackStatistics,
) (_ret *track, _err error) {
	logger.Debugf(ctx, "openTrack(%d, %s)", trackIndex, format)
	defer func() { logger.Debugf(ctx, "/openTrack(%d, %s): %v", trackIndex, format, _err) }()

	decoder, err := decoderFactory.NewDecoder(ctx, format)
	if err != nil {
		return nil, fmt.Errorf("unable to create a decoder for %s: %w", format, err)
	}
	if err := decoder.Configure(ctx, format, nil); err != nil {
		closeDecoder(ctx, decoder)
		return nil, fmt.Errorf("unable to configure the decoder for %s: %w", format, err)
	}
	if err := decoder.Start(ctx); err != nil {
		closeDecoder(ctx, decoder)
		return nil, fmt.Errorf("unable to start the decoder for %s: %w", format, err)
	}
	return &track{
		index:     trackIndex,
		mediaType: format.MediaType,
		format:    format,
		decoder:   decoder,
		stats:     stats,
	}, nil
}

func closeDecoder(ctx context.Context, decoder codec.Decoder) {
	if err := decoder.Stop(ctx); err != nil {
		logger.Errorf(ctx, "unable to stop the decoder: %v", err)
	}
	if err := decoder.Close(ctx); err != nil {
		logger.Errorf(ctx, "unable to close the decoder: %v", err)
	}
}
