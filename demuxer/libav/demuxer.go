// Package libav implements demuxer.Demuxer on top of libavformat.
package libav

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"sort"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"
	"github.com/davecgh/go-spew/spew"
	"github.com/xaionaro-go/xrplayer/avconv"
	"github.com/xaionaro-go/xrplayer/codec"
	"github.com/xaionaro-go/xrplayer/demuxer"
	"github.com/xaionaro-go/xrplayer/logger"
	"github.com/xaionaro-go/xrplayer/types"
)

type Config struct {
	// InputFormat forces the container format (like ffmpeg's "-f").
	InputFormat string `yaml:"input_format"`

	// Options are passed to the libavformat demuxer as is.
	Options map[string]string `yaml:"options"`
}

type Demuxer struct {
	closer        *astikit.Closer
	formatContext *astiav.FormatContext
	url           string
	streams       []*astiav.Stream
	formats       []codec.Format
	selected      map[int]struct{}

	packet    *astiav.Packet
	hasPacket bool
	isEOF     bool

	durationUs int64
	cycle      cycleDuration
}

var _ demuxer.Demuxer = (*Demuxer)(nil)

func Open(
	ctx context.Context,
	path string,
	cfg Config,
) (_ret *Demuxer, _err error) {
	logger.Debugf(ctx, "Open(%s)", path)
	defer func() { logger.Debugf(ctx, "/Open(%s): %v", path, _err) }()
	if path == "" {
		return nil, fmt.Errorf("the provided path is empty")
	}
	if u, err := url.Parse(path); err != nil || u.Scheme == "" || u.Scheme == "file" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("unable to access '%s': %w", path, err)
		}
	}

	d := &Demuxer{
		closer:   astikit.NewCloser(),
		url:      path,
		selected: map[int]struct{}{},
	}

	var inputFormat *astiav.InputFormat
	if cfg.InputFormat != "" {
		inputFormat = astiav.FindInputFormat(cfg.InputFormat)
		if inputFormat == nil {
			logger.Errorf(ctx, "unable to find input format by name '%s'", cfg.InputFormat)
		}
	}

	var dict *astiav.Dictionary
	if len(cfg.Options) > 0 {
		dict = astiav.NewDictionary()
		d.closer.Add(dict.Free)
		keys := make([]string, 0, len(cfg.Options))
		for k := range cfg.Options {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			logger.Debugf(ctx, "input.Dictionary['%s'] = '%s'", k, cfg.Options[k])
			if err := dict.Set(k, cfg.Options[k], 0); err != nil {
				d.closer.Close()
				return nil, fmt.Errorf("unable to set option '%s': %w", k, err)
			}
		}
	}

	d.formatContext = astiav.AllocFormatContext()
	if d.formatContext == nil {
		d.closer.Close()
		return nil, fmt.Errorf("unable to allocate a format context")
	}
	if err := d.formatContext.OpenInput(path, inputFormat, dict); err != nil {
		d.formatContext.Free()
		d.closer.Close()
		return nil, fmt.Errorf("unable to open input '%s': %w", path, err)
	}
	d.closer.Add(func() {
		d.formatContext.CloseInput()
		d.formatContext.Free()
	})

	if err := d.formatContext.FindStreamInfo(nil); err != nil {
		d.closer.Close()
		return nil, fmt.Errorf("unable to get stream info: %w", err)
	}

	d.packet = astiav.AllocPacket()
	d.closer.Add(d.packet.Free)

	d.streams = d.formatContext.Streams()
	for _, stream := range d.streams {
		format := streamFormat(stream, d.formatContext.Duration())
		logger.Debugf(ctx, "input stream #%d: %s: %s", stream.Index(), format, spew.Sdump(describeCodecParameters(stream.CodecParameters())))
		d.formats = append(d.formats, format)
	}
	d.durationUs = d.probeDuration()
	return d, nil
}

func (d *Demuxer) String() string {
	return fmt.Sprintf("LibavDemuxer(%s)", d.url)
}

func streamFormat(
	stream *astiav.Stream,
	containerDuration int64,
) codec.Format {
	cp := stream.CodecParameters()
	format := codec.Format{
		MIMEType: avconv.MIMEType(cp),
		Platform: cp,
	}
	switch cp.MediaType() {
	case astiav.MediaTypeVideo:
		format.MediaType = types.MediaTypeVideo
		format.Width = avconv.AlignUp(cp.Width(), demuxer.VideoAlignment)
		format.Height = avconv.AlignUp(cp.Height(), demuxer.VideoAlignment)
	case astiav.MediaTypeAudio:
		format.MediaType = types.MediaTypeAudio
		format.SampleRate = cp.SampleRate()
		format.ChannelCount = cp.ChannelLayout().Channels()
	default:
		format.MediaType = types.MediaTypeUnknown
	}

	switch {
	case stream.Duration() > 0 && !avconv.IsNoPTS(stream.Duration()):
		format.DurationUs = avconv.ToMicroseconds(stream.Duration(), stream.TimeBase())
	case containerDuration > 0 && !avconv.IsNoPTS(containerDuration):
		format.DurationUs = containerDuration // AV_TIME_BASE is 1/1e6
	}
	return format
}

type codecParametersDescription struct {
	CodecID      string
	MediaType    string
	Width        int
	Height       int
	SampleRate   int
	ChannelCount int
	BitRate      int64
	ExtraData    int
}

func describeCodecParameters(cp *astiav.CodecParameters) codecParametersDescription {
	return codecParametersDescription{
		CodecID:      cp.CodecID().String(),
		MediaType:    cp.MediaType().String(),
		Width:        cp.Width(),
		Height:       cp.Height(),
		SampleRate:   cp.SampleRate(),
		ChannelCount: cp.ChannelLayout().Channels(),
		BitRate:      cp.BitRate(),
		ExtraData:    len(cp.ExtraData()),
	}
}

// probeDuration returns the container duration, else the longest stream.
func (d *Demuxer) probeDuration() int64 {
	if dur := d.formatContext.Duration(); dur > 0 && !avconv.IsNoPTS(dur) {
		return dur
	}
	var result int64
	for _, format := range d.formats {
		if format.DurationUs > result {
			result = format.DurationUs
		}
	}
	return result
}

func (d *Demuxer) TrackCount() int {
	return len(d.formats)
}

func (d *Demuxer) TrackFormat(track int) (codec.Format, error) {
	if track < 0 || track >= len(d.formats) {
		return codec.Format{}, fmt.Errorf("track %d is out of range [0, %d)", track, len(d.formats))
	}
	return d.formats[track], nil
}

func (d *Demuxer) SelectTrack(track int) error {
	if track < 0 || track >= len(d.formats) {
		return fmt.Errorf("track %d is out of range [0, %d)", track, len(d.formats))
	}
	d.selected[d.streams[track].Index()] = struct{}{}
	return nil
}

// current makes sure the read-ahead packet is loaded; it returns false at
// the end of the stream.
func (d *Demuxer) current() bool {
	if d.hasPacket {
		return true
	}
	if d.isEOF {
		return false
	}
	for {
		d.packet.Unref()
		err := d.formatContext.ReadFrame(d.packet)
		if err != nil {
			if !errors.Is(err, astiav.ErrEof) && !errors.Is(err, astiav.ErrEio) {
				logger.Errorf(context.TODO(), "unable to read a packet from '%s': %v", d.url, err)
			}
			d.isEOF = true
			d.cycle.Finish()
			return false
		}
		if _, ok := d.selected[d.packet.StreamIndex()]; !ok {
			continue
		}
		d.hasPacket = true
		d.cycle.Observe(d.SampleTimeUs(), d.sampleDurationUs())
		return true
	}
}

func (d *Demuxer) stream() *astiav.Stream {
	return avconv.FindStreamByIndex(d.formatContext, d.packet.StreamIndex())
}

func (d *Demuxer) SampleTrackIndex() types.TrackIndex {
	if !d.current() {
		return types.TrackIndexEndOfStream
	}
	for idx, stream := range d.streams {
		if stream.Index() == d.packet.StreamIndex() {
			return types.TrackIndex(idx)
		}
	}
	return types.TrackIndexEndOfStream
}

func (d *Demuxer) SampleTimeUs() int64 {
	if !d.current() {
		return -1
	}
	ts := d.packet.Pts()
	if avconv.IsNoPTS(ts) {
		ts = d.packet.Dts()
	}
	if avconv.IsNoPTS(ts) {
		return 0
	}
	return avconv.ToMicroseconds(ts, d.stream().TimeBase())
}

func (d *Demuxer) sampleDurationUs() int64 {
	return avconv.ToMicroseconds(d.packet.Duration(), d.stream().TimeBase())
}

// SampleFlags reports the flags of the current sample.
func (d *Demuxer) SampleFlags() types.BufferFlags {
	if !d.current() {
		return types.BufferFlagEndOfStream
	}
	var flags types.BufferFlags
	if d.packet.Flags().Has(astiav.PacketFlagKey) {
		flags |= types.BufferFlagKeyFrame
	}
	return flags
}

func (d *Demuxer) SampleSize() int {
	if !d.current() {
		return -1
	}
	return d.packet.Size()
}

func (d *Demuxer) ReadSampleData(buf []byte) (int, error) {
	if !d.current() {
		return 0, fmt.Errorf("end of stream")
	}
	data := d.packet.Data()
	if len(buf) < len(data) {
		return 0, fmt.Errorf("%w: %d < %d", codec.ErrShortBuffer, len(buf), len(data))
	}
	return copy(buf, data), nil
}

func (d *Demuxer) Advance() bool {
	if !d.current() {
		return false
	}
	d.hasPacket = false
	return d.current()
}

func (d *Demuxer) SeekTo(ctx context.Context, timeUs int64) (_err error) {
	logger.Debugf(ctx, "SeekTo(%d)", timeUs)
	defer func() { logger.Debugf(ctx, "/SeekTo(%d): %v", timeUs, _err) }()
	d.packet.Unref()
	d.hasPacket = false
	d.isEOF = false
	err := d.formatContext.SeekFrame(-1, timeUs, astiav.NewSeekFlags(astiav.SeekFlagBackward))
	if err != nil {
		return fmt.Errorf("unable to seek to %dus: %w", timeUs, err)
	}
	return nil
}

func (d *Demuxer) DurationUs() int64 {
	if d.durationUs > 0 {
		return d.durationUs
	}
	return d.cycle.DurationUs()
}

func (d *Demuxer) Close() error {
	return d.closer.Close()
}
