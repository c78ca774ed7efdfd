package xrplayer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xaionaro-go/xrplayer/audio"
	"github.com/xaionaro-go/xrplayer/codec"
	"github.com/xaionaro-go/xrplayer/types"
)

type dummySample struct {
	Track  int
	TimeUs int64
	Data   []byte
	Flags  types.BufferFlags
}

type dummyDemuxer struct {
	formats    []codec.Format
	samples    []dummySample
	durationUs int64

	selected     map[int]bool
	pos          int
	advanceCount int
	seekCount    int
	isClosed     bool
}

func newDummyDemuxer(durationUs int64, formats []codec.Format, samples ...dummySample) *dummyDemuxer {
	return &dummyDemuxer{
		formats:    formats,
		samples:    samples,
		durationUs: durationUs,
		selected:   map[int]bool{},
	}
}

func (d *dummyDemuxer) TrackCount() int { return len(d.formats) }

func (d *dummyDemuxer) TrackFormat(track int) (codec.Format, error) {
	if track < 0 || track >= len(d.formats) {
		return codec.Format{}, fmt.Errorf("no track %d", track)
	}
	return d.formats[track], nil
}

func (d *dummyDemuxer) SelectTrack(track int) error {
	d.selected[track] = true
	return nil
}

func (d *dummyDemuxer) SampleTrackIndex() types.TrackIndex {
	if d.pos >= len(d.samples) {
		return types.TrackIndexEndOfStream
	}
	return types.TrackIndex(d.samples[d.pos].Track)
}

func (d *dummyDemuxer) SampleTimeUs() int64 {
	if d.pos >= len(d.samples) {
		return -1
	}
	return d.samples[d.pos].TimeUs
}

func (d *dummyDemuxer) SampleSize() int {
	if d.pos >= len(d.samples) {
		return -1
	}
	return len(d.samples[d.pos].Data)
}

func (d *dummyDemuxer) SampleFlags() types.BufferFlags {
	if d.pos >= len(d.samples) {
		return types.BufferFlagEndOfStream
	}
	return d.samples[d.pos].Flags
}

func (d *dummyDemuxer) ReadSampleData(buf []byte) (int, error) {
	data := d.samples[d.pos].Data
	if len(buf) < len(data) {
		return 0, codec.ErrShortBuffer
	}
	return copy(buf, data), nil
}

func (d *dummyDemuxer) Advance() bool {
	d.advanceCount++
	if d.pos < len(d.samples) {
		d.pos++
	}
	return d.pos < len(d.samples)
}

func (d *dummyDemuxer) SeekTo(ctx context.Context, timeUs int64) error {
	d.seekCount++
	d.pos = 0
	return nil
}

func (d *dummyDemuxer) DurationUs() int64 { return d.durationUs }

func (d *dummyDemuxer) Close() error {
	d.isClosed = true
	return nil
}

type submission struct {
	Length             int
	PresentationTimeUs int64
	Flags              types.BufferFlags
}

// dummyDecoder "decodes" every submitted sample into one output buffer
// carrying the same timestamp and payload.
type dummyDecoder struct {
	locker sync.Mutex
	format codec.Format

	configureErr error
	startErr     error

	// refuseSlots makes the next DequeueInputSlot calls fail.
	refuseSlots       int
	dequeueInputCalls int
	submissions       []submission
	slot              []byte
	pending           []codec.OutputInfo
	outputData        map[types.BufferHandle][]byte
	lastHandle        types.BufferHandle
	releases          map[types.BufferHandle]int
	releasedRendered  []types.BufferHandle
	isStarted         bool
	isClosed          bool
	dequeuedOutputs   []types.BufferHandle
	outputWidth       int
	outputHeight      int
}

func newDummyDecoder(format codec.Format) *dummyDecoder {
	return &dummyDecoder{
		format:     format,
		slot:       make([]byte, 1<<16),
		outputData: map[types.BufferHandle][]byte{},
		releases:   map[types.BufferHandle]int{},
	}
}

func (d *dummyDecoder) Configure(ctx context.Context, format codec.Format, surface codec.Surface) error {
	return d.configureErr
}

func (d *dummyDecoder) Start(ctx context.Context) error {
	d.locker.Lock()
	defer d.locker.Unlock()
	if d.startErr != nil {
		return d.startErr
	}
	d.isStarted = true
	return nil
}

func (d *dummyDecoder) Stop(ctx context.Context) error {
	d.locker.Lock()
	defer d.locker.Unlock()
	d.isStarted = false
	return nil
}

func (d *dummyDecoder) DequeueInputSlot(ctx context.Context, timeout time.Duration) (types.SlotIndex, bool) {
	d.locker.Lock()
	defer d.locker.Unlock()
	d.dequeueInputCalls++
	if d.refuseSlots > 0 {
		d.refuseSlots--
		return 0, false
	}
	return 0, true
}

func (d *dummyDecoder) InputSlotBuffer(ctx context.Context, slot types.SlotIndex) ([]byte, error) {
	return d.slot, nil
}

func (d *dummyDecoder) Submit(
	ctx context.Context,
	slot types.SlotIndex,
	length int,
	presentationTimeUs int64,
	flags types.BufferFlags,
) error {
	d.locker.Lock()
	defer d.locker.Unlock()
	if !d.isStarted {
		return codec.ErrNotStarted
	}
	d.submissions = append(d.submissions, submission{
		Length:             length,
		PresentationTimeUs: presentationTimeUs,
		Flags:              flags,
	})
	if length == 0 && !flags.Has(types.BufferFlagEndOfStream) {
		return nil
	}
	d.lastHandle++
	h := d.lastHandle
	d.outputData[h] = append([]byte(nil), d.slot[:length]...)
	d.pending = append(d.pending, codec.OutputInfo{
		Buffer:             h,
		Size:               length,
		PresentationTimeUs: presentationTimeUs,
		Flags:              flags & types.BufferFlagEndOfStream,
		Width:              d.outputWidth,
		Height:             d.outputHeight,
	})
	return nil
}

func (d *dummyDecoder) DequeueOutputFrame(ctx context.Context, timeout time.Duration) (codec.OutputInfo, bool) {
	d.locker.Lock()
	defer d.locker.Unlock()
	if len(d.pending) == 0 {
		return codec.OutputInfo{}, false
	}
	out := d.pending[0]
	d.pending = d.pending[1:]
	d.dequeuedOutputs = append(d.dequeuedOutputs, out.Buffer)
	return out, true
}

func (d *dummyDecoder) OutputBuffer(ctx context.Context, buffer types.BufferHandle) ([]byte, error) {
	d.locker.Lock()
	defer d.locker.Unlock()
	data, ok := d.outputData[buffer]
	if !ok {
		return nil, codec.ErrUnknownBuffer
	}
	return data, nil
}

func (d *dummyDecoder) ReleaseOutputFrame(ctx context.Context, buffer types.BufferHandle, render bool) error {
	d.locker.Lock()
	defer d.locker.Unlock()
	d.releases[buffer]++
	if d.releases[buffer] > 1 {
		return codec.ErrUnknownBuffer
	}
	if render {
		d.releasedRendered = append(d.releasedRendered, buffer)
	}
	delete(d.outputData, buffer)
	return nil
}

func (d *dummyDecoder) Close(ctx context.Context) error {
	d.locker.Lock()
	defer d.locker.Unlock()
	d.isClosed = true
	return nil
}

func (d *dummyDecoder) Submissions() []submission {
	d.locker.Lock()
	defer d.locker.Unlock()
	return append([]submission(nil), d.submissions...)
}

func (d *dummyDecoder) Releases() map[types.BufferHandle]int {
	d.locker.Lock()
	defer d.locker.Unlock()
	result := map[types.BufferHandle]int{}
	for k, v := range d.releases {
		result[k] = v
	}
	return result
}

func (d *dummyDecoder) DequeuedOutputs() []types.BufferHandle {
	d.locker.Lock()
	defer d.locker.Unlock()
	return append([]types.BufferHandle(nil), d.dequeuedOutputs...)
}

type dummyDecoderFactory struct {
	decoders map[types.MediaType]*dummyDecoder
}

func (f *dummyDecoderFactory) NewDecoder(ctx context.Context, format codec.Format) (codec.Decoder, error) {
	d, ok := f.decoders[format.MediaType]
	if !ok {
		return nil, fmt.Errorf("no decoder for %s", format)
	}
	return d, nil
}

type dummySink struct {
	locker sync.Mutex
	format audio.Format

	// maxFrames limits each write; 0 means unlimited.
	maxFrames int

	writes   []int
	timeouts []time.Duration
	isClosed bool
}

func (s *dummySink) Write(
	ctx context.Context,
	pcm []byte,
	frameCount int,
	timeout time.Duration,
) (int, error) {
	s.locker.Lock()
	defer s.locker.Unlock()
	s.writes = append(s.writes, frameCount)
	s.timeouts = append(s.timeouts, timeout)
	if s.maxFrames > 0 && frameCount > s.maxFrames {
		return s.maxFrames, audio.ErrShortWrite
	}
	return frameCount, nil
}

func (s *dummySink) Close(ctx context.Context) error {
	s.locker.Lock()
	defer s.locker.Unlock()
	s.isClosed = true
	return nil
}

func (s *dummySink) Factory() audio.Factory {
	return audio.FactoryFunc(func(ctx context.Context, format audio.Format) (audio.Sink, error) {
		s.format = format
		return s, nil
	})
}
