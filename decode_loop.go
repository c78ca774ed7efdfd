package xrplayer

import (
	"context"
	"errors"
	"fmt"

	"github.com/asticode/go-astikit"
	"github.com/facebookincubator/go-belt"
	"github.com/xaionaro-go/typing"
	"github.com/xaionaro-go/xrplayer/audio"
	"github.com/xaionaro-go/xrplayer/avconv"
	"github.com/xaionaro-go/xrplayer/codec"
	"github.com/xaionaro-go/xrplayer/framequeue"
	"github.com/xaionaro-go/xrplayer/logger"
	"github.com/xaionaro-go/xrplayer/types"
)

func (p *Player) decodeLoop(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "decodeLoop")
	defer func() { logger.Debugf(ctx, "/decodeLoop: %v", _err) }()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if isFinished := p.iterate(ctx); isFinished {
			p.endOfStream.Close(ctx)
			return nil
		}
		astikit.Sleep(ctx, p.config.PollInterval)
	}
}

// iterate runs one round of feeding and draining the decoders. It returns
// true once a non-looping playback has nothing left to decode.
func (p *Player) iterate(ctx context.Context) bool {
	trackIdx := p.demuxer.SampleTrackIndex()
	if trackIdx.IsEndOfStream() {
		if p.config.Loop {
			p.restart(ctx)
		} else {
			p.submitEndOfStream(ctx)
		}
	} else {
		p.feedSample(ctx, int(trackIdx))
	}

	p.drainAudio(ctx)
	p.drainVideo(ctx)
	return !p.config.Loop && p.isFullyDrained()
}

func (p *Player) liveTracks() []*track {
	result := make([]*track, 0, 2)
	for _, t := range []*track{p.video, p.audio} {
		if t != nil {
			result = append(result, t)
		}
	}
	return result
}

func (p *Player) trackByIndex(trackIdx int) *track {
	for _, t := range p.liveTracks() {
		if t.index == trackIdx {
			return t
		}
	}
	return nil
}

// restart seeks back to the beginning of the stream and moves the
// timestamp epoch forward, so that timestamps keep increasing.
func (p *Player) restart(ctx context.Context) {
	durationUs := p.demuxer.DurationUs()
	if durationUs <= 0 {
		durationUs = p.observedDurationUs()
		logger.Debugf(ctx, "the stream duration is unknown, using the observed one: %dus", durationUs)
	}
	if err := p.demuxer.SeekTo(ctx, 0); err != nil {
		logger.Errorf(ctx, "unable to seek to the beginning: %v", err)
		return
	}
	p.epochUs += durationUs
	p.stats.Restarts.Inc()
	for _, t := range p.liveTracks() {
		t.hasSampleTime = false
	}
	logger.Debugf(ctx, "restarted the playback, epoch is now %dus", p.epochUs)
}

func (p *Player) observedDurationUs() int64 {
	var result int64
	for _, t := range p.liveTracks() {
		if !t.hasSampleTime {
			continue
		}
		if end := t.lastSampleTimeUs + t.lastSampleStepUs; end > result {
			result = end
		}
	}
	return result
}

func (p *Player) feedSample(ctx context.Context, trackIdx int) {
	t := p.trackByIndex(trackIdx)
	if t == nil || t.isInputEOS {
		// a sample of a track we do not decode
		p.demuxer.Advance()
		return
	}
	ctx = belt.WithField(ctx, "media_type", t.mediaType.String())

	slot, ok := t.decoder.DequeueInputSlot(ctx, p.config.InputTimeout)
	if !ok {
		logger.Tracef(ctx, "no input slot available")
		return
	}

	sampleTimeUs := p.demuxer.SampleTimeUs()
	buf, err := t.decoder.InputSlotBuffer(ctx, slot)
	if err != nil {
		logger.Errorf(ctx, "unable to get the buffer of input slot %d: %v", slot, err)
		p.dropSample(ctx, t, slot)
		return
	}
	n, err := p.demuxer.ReadSampleData(buf)
	if err != nil {
		logger.Errorf(ctx, "unable to read the sample at %dus: %v", sampleTimeUs, err)
		p.dropSample(ctx, t, slot)
		return
	}

	err = t.decoder.Submit(ctx, slot, n, p.epochUs+sampleTimeUs, p.demuxer.SampleFlags())
	if err != nil {
		logger.Errorf(ctx, "unable to submit the sample at %dus: %v", sampleTimeUs, err)
		t.stats.SamplesDropped.Inc()
	} else {
		t.stats.SamplesSubmitted.Inc()
	}
	t.observeSampleTime(sampleTimeUs)
	p.demuxer.Advance()
}

// dropSample skips a sample that cannot be decoded; the slot is handed
// back to the decoder empty.
func (p *Player) dropSample(
	ctx context.Context,
	t *track,
	slot types.SlotIndex,
) {
	if err := t.decoder.Submit(ctx, slot, 0, p.epochUs+p.demuxer.SampleTimeUs(), 0); err != nil {
		logger.Debugf(ctx, "unable to return input slot %d: %v", slot, err)
	}
	t.stats.SamplesDropped.Inc()
	p.demuxer.Advance()
}

// submitEndOfStream asks every decoder to flush its remaining frames.
func (p *Player) submitEndOfStream(ctx context.Context) {
	for _, t := range p.liveTracks() {
		if t.isInputEOS {
			continue
		}
		slot, ok := t.decoder.DequeueInputSlot(ctx, p.config.InputTimeout)
		if !ok {
			continue
		}
		err := t.decoder.Submit(ctx, slot, 0, 0, types.BufferFlagEndOfStream)
		if err != nil {
			logger.Errorf(ctx, "unable to submit the end of stream to %s: %v", t, err)
			t.isOutputEOS = true
		}
		t.isInputEOS = true
		logger.Debugf(ctx, "submitted the end of stream to %s", t)
	}
}

func (p *Player) isFullyDrained() bool {
	for _, t := range p.liveTracks() {
		if !t.isOutputEOS {
			return false
		}
	}
	return true
}

func (p *Player) drainAudio(ctx context.Context) {
	t := p.audio
	if t == nil || t.isOutputEOS {
		return
	}
	ctx = belt.WithField(ctx, "media_type", t.mediaType.String())
	for {
		out, ok := t.decoder.DequeueOutputFrame(ctx, p.config.OutputTimeout)
		if !ok {
			return
		}
		if out.Size > 0 {
			p.writeAudio(ctx, t, out)
		}
		if err := t.decoder.ReleaseOutputFrame(ctx, out.Buffer, false); err != nil {
			logger.Errorf(ctx, "unable to release the audio buffer %s: %v", out.Buffer, err)
		}
		if out.Flags.Has(types.BufferFlagEndOfStream) {
			logger.Debugf(ctx, "the audio decoder is drained")
			t.isOutputEOS = true
			return
		}
	}
}

func (p *Player) writeAudio(
	ctx context.Context,
	t *track,
	out codec.OutputInfo,
) {
	t.stats.FramesDecoded.Inc()
	data, err := t.decoder.OutputBuffer(ctx, out.Buffer)
	if err != nil {
		logger.Errorf(ctx, "unable to get the audio buffer %s: %v", out.Buffer, err)
		return
	}
	data, err = outputBytes(data, out)
	if err != nil {
		logger.Errorf(ctx, "invalid audio buffer %s: %v", out.Buffer, err)
		return
	}

	frameCount := len(data) / p.audioFormat.FrameSize()
	if frameCount == 0 {
		return
	}
	written, err := p.audioSink.Write(ctx, data, frameCount, p.audioFormat.FramesDuration(frameCount))
	p.stats.AudioFramesWritten.Add(uint64(written))
	switch {
	case err == nil:
	case errors.Is(err, audio.ErrShortWrite):
		p.stats.AudioShortWrites.Inc()
		logger.Warnf(ctx, "short audio write at %dus: %d of %d frames", out.PresentationTimeUs, written, frameCount)
	default:
		p.stats.AudioShortWrites.Inc()
		logger.Warnf(ctx, "unable to write audio at %dus: %v", out.PresentationTimeUs, err)
	}
}

func (p *Player) drainVideo(ctx context.Context) {
	t := p.video
	if t == nil || t.isOutputEOS {
		return
	}
	ctx = belt.WithField(ctx, "media_type", t.mediaType.String())
	for {
		out, ok := t.decoder.DequeueOutputFrame(ctx, p.config.OutputTimeout)
		if !ok {
			return
		}
		isEOS := out.Flags.Has(types.BufferFlagEndOfStream)
		if out.Size > 0 || !isEOS {
			p.pushVideo(ctx, t, out)
		} else if err := t.decoder.ReleaseOutputFrame(ctx, out.Buffer, false); err != nil {
			logger.Errorf(ctx, "unable to release the video buffer %s: %v", out.Buffer, err)
		}
		if isEOS {
			logger.Debugf(ctx, "the video decoder is drained")
			t.isOutputEOS = true
			return
		}
	}
}

// pushVideo hands the output buffer over to the frame queue, which
// releases it once the frame is superseded.
func (p *Player) pushVideo(
	ctx context.Context,
	t *track,
	out codec.OutputInfo,
) {
	t.stats.FramesDecoded.Inc()
	ptsMs := avconv.MicrosecondsToMilliseconds(out.PresentationTimeUs)
	if !p.originMs.IsSet() {
		p.originMs = typing.Opt(p.clock.NowMs() - ptsMs)
		logger.Debugf(ctx, "the presentation origin is %dms", p.originMs.Get())
	}

	width, height := out.Width, out.Height
	if width <= 0 || height <= 0 {
		width, height = t.format.Width, t.format.Height
	}
	p.setVideoSize(width, height)

	var planeData []byte
	if data, err := t.decoder.OutputBuffer(ctx, out.Buffer); err != nil {
		if !errors.Is(err, codec.ErrNoBuffer) {
			logger.Errorf(ctx, "unable to get the video buffer %s: %v", out.Buffer, err)
		}
	} else if planeData, err = outputBytes(data, out); err != nil {
		logger.Errorf(ctx, "invalid video buffer %s: %v", out.Buffer, err)
	}

	p.queue.Push(ctx, framequeue.Frame{
		PresentationTimeMs: p.originMs.Get() + ptsMs,
		Width:              width,
		Height:             height,
		PlaneData:          planeData,
		Buffer:             out.Buffer,
		SourcePTSUs:        out.PresentationTimeUs,
	})
}

// outputBytes narrows the decoder's buffer to the range the output
// describes.
func outputBytes(data []byte, out codec.OutputInfo) ([]byte, error) {
	if out.Offset < 0 || out.Size < 0 || out.Offset+out.Size > len(data) {
		return nil, fmt.Errorf("the range [%d:%d] is out of the buffer of size %d", out.Offset, out.Offset+out.Size, len(data))
	}
	return data[out.Offset : out.Offset+out.Size], nil
}
