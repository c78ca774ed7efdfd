// Package libav implements codec.Decoder on top of FFmpeg's send/receive API.
//
// libav has no notion of input slots or output buffer indices, so the
// adapter emulates them: a fixed set of input slots the caller fills, and a
// table of decoded frames handed out under handles that must be released.
package libav

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"
	"github.com/xaionaro-go/xrplayer/avconv"
	"github.com/xaionaro-go/xrplayer/codec"
	"github.com/xaionaro-go/xrplayer/logger"
	"github.com/xaionaro-go/xrplayer/types"
	"github.com/xaionaro-go/xsync"
)

const (
	DefaultInputSlots      = 4
	DefaultInputBufferSize = 4 << 20
	DefaultOutputBuffers   = 8
)

type Config struct {
	InputSlots      int `yaml:"input_slots"`
	InputBufferSize int `yaml:"input_buffer_size"`

	// OutputBuffers is the maximum amount of decoded frames the consumer
	// may hold at the same time.
	OutputBuffers int `yaml:"output_buffers"`

	// HardwareDeviceType is a libav hardware device type name
	// ("vaapi", "cuda", "mediacodec", ...); empty means software decoding.
	HardwareDeviceType string `yaml:"hardware_device_type"`
}

func DefaultConfig() Config {
	return Config{
		InputSlots:      DefaultInputSlots,
		InputBufferSize: DefaultInputBufferSize,
		OutputBuffers:   DefaultOutputBuffers,
	}
}

func (cfg Config) withDefaults() Config {
	if cfg.InputSlots <= 0 {
		cfg.InputSlots = DefaultInputSlots
	}
	if cfg.InputBufferSize <= 0 {
		cfg.InputBufferSize = DefaultInputBufferSize
	}
	if cfg.OutputBuffers <= 0 {
		cfg.OutputBuffers = DefaultOutputBuffers
	}
	return cfg
}

type Decoder struct {
	locker             xsync.Mutex
	closer             *astikit.Closer
	config             Config
	hardwareDeviceType astiav.HardwareDeviceType

	format                codec.Format
	codec                 *astiav.Codec
	codecContext          *astiav.CodecContext
	hardwareDeviceContext *astiav.HardwareDeviceContext
	hardwarePixelFormat   astiav.PixelFormat
	resampleContext       *astiav.SoftwareResampleContext

	isStarted       bool
	slots           [][]byte
	freeSlots       chan types.SlotIndex
	pendingPackets  []*astiav.Packet
	isInputEOS      bool
	isFlushSent     bool
	isOutputEOS     bool
	outputs         *outputTable
	outputAvailable chan struct{}
}

var _ codec.Decoder = (*Decoder)(nil)

func NewDecoder(
	ctx context.Context,
	cfg Config,
) *Decoder {
	cfg = cfg.withDefaults()
	hwDeviceType := avconv.HardwareDeviceTypeFromString(cfg.HardwareDeviceType)
	if cfg.HardwareDeviceType != "" && hwDeviceType == astiav.HardwareDeviceTypeNone {
		logger.Warnf(ctx, "unknown hardware device type '%s', using software decoding", cfg.HardwareDeviceType)
	}
	return &Decoder{
		closer:              astikit.NewCloser(),
		config:              cfg,
		hardwareDeviceType:  hwDeviceType,
		hardwarePixelFormat: astiav.PixelFormatNone,
		slots:               make([][]byte, cfg.InputSlots),
		freeSlots:           make(chan types.SlotIndex, cfg.InputSlots),
		outputs:             newOutputTable(cfg.OutputBuffers),
		outputAvailable:     make(chan struct{}, 1),
	}
}

// NewFactory returns a codec.Factory producing libav decoders.
func NewFactory(cfg Config) codec.Factory {
	return codec.FactoryFunc(func(ctx context.Context, format codec.Format) (codec.Decoder, error) {
		return NewDecoder(ctx, cfg), nil
	})
}

func (d *Decoder) String() string {
	if d.codec == nil {
		return "LibavDecoder"
	}
	return fmt.Sprintf("LibavDecoder(%s)", d.codec.Name())
}

func (d *Decoder) Configure(
	ctx context.Context,
	format codec.Format,
	surface codec.Surface,
) (_err error) {
	logger.Debugf(ctx, "Configure(%s, %v)", format, surface)
	defer func() { logger.Debugf(ctx, "/Configure(%s, %v): %v", format, surface, _err) }()
	return xsync.DoR1(ctx, &d.locker, func() error {
		return d.configureLocked(ctx, format, surface)
	})
}

func (d *Decoder) configureLocked(
	ctx context.Context,
	format codec.Format,
	surface codec.Surface,
) (_err error) {
	if d.codecContext != nil {
		return fmt.Errorf("already configured")
	}
	codecParams, ok := format.Platform.(*astiav.CodecParameters)
	if !ok || codecParams == nil {
		return fmt.Errorf("the format %s carries no libav codec parameters (got %T)", format, format.Platform)
	}
	if surface != nil {
		logger.Warnf(ctx, "rendering directly to surface %s is not supported by libav; the frames will be read back to CPU memory", surface)
	}

	d.codec = astiav.FindDecoder(codecParams.CodecID())
	if d.codec == nil {
		return fmt.Errorf("unable to find a decoder for %s", codecParams.CodecID())
	}

	codecContext, err := newCodecContext(d.codec, codecParams)
	if err != nil {
		return err
	}
	d.codecContext = codecContext
	d.closer.Add(d.codecContext.Free)

	if format.MediaType == types.MediaTypeVideo && d.hardwareDeviceType != astiav.HardwareDeviceTypeNone {
		if err := d.initHardware(ctx); err != nil {
			logger.Warnf(ctx, "unable to initialize %s hardware decoding, falling back to software: %v", d.hardwareDeviceType, err)
			d.hardwarePixelFormat = astiav.PixelFormatNone
		}
	}

	if err := d.codecContext.Open(d.codec, nil); err != nil {
		return fmt.Errorf("unable to open the codec %s: %w", d.codec.Name(), err)
	}

	if format.MediaType == types.MediaTypeAudio {
		d.resampleContext = astiav.AllocSoftwareResampleContext()
		if d.resampleContext == nil {
			return fmt.Errorf("unable to allocate a resample context")
		}
		d.closer.Add(d.resampleContext.Free)
	}

	bufSize := d.config.InputBufferSize
	if format.MaxInputSize > bufSize {
		bufSize = format.MaxInputSize
	}
	for i := range d.slots {
		d.slots[i] = make([]byte, bufSize)
	}
	d.format = format
	return nil
}

func newCodecContext(
	c *astiav.Codec,
	codecParams *astiav.CodecParameters,
) (*astiav.CodecContext, error) {
	codecContext := astiav.AllocCodecContext(c)
	if codecContext == nil {
		return nil, fmt.Errorf("unable to allocate a codec context for %s", c.Name())
	}
	if err := codecParams.ToCodecContext(codecContext); err != nil {
		codecContext.Free()
		return nil, fmt.Errorf("unable to copy the codec parameters to the codec context: %w", err)
	}
	// packets are submitted with microsecond timestamps
	codecContext.SetPktTimeBase(avconv.MicrosecondTimeBase)
	return codecContext, nil
}

func (d *Decoder) initHardware(ctx context.Context) (_err error) {
	logger.Tracef(ctx, "initHardware(%s)", d.hardwareDeviceType)
	defer func() { logger.Tracef(ctx, "/initHardware(%s): %v", d.hardwareDeviceType, _err) }()

	for _, hwCfg := range d.codec.HardwareConfigs() {
		if hwCfg.HardwareDeviceType() != d.hardwareDeviceType {
			continue
		}
		if !hwCfg.MethodFlags().Has(astiav.CodecHardwareConfigMethodFlagHwDeviceCtx) {
			continue
		}
		d.hardwarePixelFormat = hwCfg.PixelFormat()
		break
	}
	if d.hardwarePixelFormat == astiav.PixelFormatNone {
		return fmt.Errorf("the decoder %s does not support hardware device type %s", d.codec.Name(), d.hardwareDeviceType)
	}

	hwDevCtx, err := astiav.CreateHardwareDeviceContext(d.hardwareDeviceType, "", nil, 0)
	if err != nil {
		return fmt.Errorf("unable to create a %s device context: %w", d.hardwareDeviceType, err)
	}
	d.hardwareDeviceContext = hwDevCtx
	d.closer.Add(hwDevCtx.Free)
	d.codecContext.SetHardwareDeviceContext(hwDevCtx)

	hwPixFmt := d.hardwarePixelFormat
	d.codecContext.SetPixelFormatCallback(func(pfs []astiav.PixelFormat) astiav.PixelFormat {
		for _, pf := range pfs {
			if pf == hwPixFmt {
				return pf
			}
		}
		logger.Errorf(ctx, "unable to find appropriate pixel format")
		return astiav.PixelFormatNone
	})
	return nil
}

func (d *Decoder) Start(ctx context.Context) error {
	logger.Debugf(ctx, "Start")
	return xsync.DoR1(ctx, &d.locker, func() error {
		if d.codecContext == nil {
			return codec.ErrNotConfigured
		}
		if d.isStarted {
			return nil
		}
		d.isStarted = true
		d.isInputEOS, d.isFlushSent, d.isOutputEOS = false, false, false
		for i := range d.slots {
			d.freeSlots <- types.SlotIndex(i)
		}
		return nil
	})
}

func (d *Decoder) Stop(ctx context.Context) error {
	logger.Debugf(ctx, "Stop")
	d.locker.Do(ctx, func() {
		d.stopLocked(ctx)
	})
	return nil
}

func (d *Decoder) stopLocked(ctx context.Context) {
	if !d.isStarted {
		return
	}
	d.isStarted = false
drainSlots:
	for {
		select {
		case <-d.freeSlots:
		default:
			break drainSlots
		}
	}
	for _, pkt := range d.pendingPackets {
		packetPool.Put(pkt)
	}
	d.pendingPackets = nil
	d.outputs.Reset()
	d.codecContext.FlushBuffers()
}

func (d *Decoder) DequeueInputSlot(
	ctx context.Context,
	timeout time.Duration,
) (types.SlotIndex, bool) {
	isBlocked := xsync.DoR1(xsync.WithNoLogging(ctx, true), &d.locker, func() bool {
		return !d.isStarted || d.isInputEOS || d.outputs.IsFull()
	})
	if isBlocked {
		return 0, false
	}

	select {
	case slot := <-d.freeSlots:
		return slot, true
	default:
	}
	if timeout <= 0 {
		return 0, false
	}

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case slot := <-d.freeSlots:
		return slot, true
	case <-t.C:
		return 0, false
	case <-ctx.Done():
		return 0, false
	}
}

func (d *Decoder) InputSlotBuffer(
	ctx context.Context,
	slot types.SlotIndex,
) ([]byte, error) {
	return xsync.DoR2(xsync.WithNoLogging(ctx, true), &d.locker, func() ([]byte, error) {
		if slot < 0 || int(slot) >= len(d.slots) {
			return nil, fmt.Errorf("%w: %d", codec.ErrUnknownSlot, slot)
		}
		if d.slots[slot] == nil {
			return nil, codec.ErrNotConfigured
		}
		return d.slots[slot], nil
	})
}

func (d *Decoder) Submit(
	ctx context.Context,
	slot types.SlotIndex,
	length int,
	presentationTimeUs int64,
	flags types.BufferFlags,
) (_err error) {
	logger.Tracef(ctx, "Submit(%d, %d, %d, %s)", slot, length, presentationTimeUs, flags)
	defer func() { logger.Tracef(ctx, "/Submit(%d, %d, %d, %s): %v", slot, length, presentationTimeUs, flags, _err) }()
	err := xsync.DoR1(xsync.WithNoLogging(ctx, true), &d.locker, func() error {
		if slot < 0 || int(slot) >= len(d.slots) {
			return fmt.Errorf("%w: %d", codec.ErrUnknownSlot, slot)
		}
		if !d.isStarted {
			return codec.ErrNotStarted
		}
		defer d.returnSlot(ctx, slot)

		if flags.Has(types.BufferFlagEndOfStream) {
			d.isInputEOS = true
			return d.pumpLocked(ctx)
		}

		if length == 0 {
			// an empty packet would flush libav's decoder
			return nil
		}
		if length < 0 || length > len(d.slots[slot]) {
			return fmt.Errorf("%w: %d > %d", codec.ErrShortBuffer, length, len(d.slots[slot]))
		}
		pkt := packetPool.Get()
		if err := pkt.FromData(d.slots[slot][:length]); err != nil {
			packetPool.Put(pkt)
			return fmt.Errorf("unable to fill a packet: %w", err)
		}
		pkt.SetPts(presentationTimeUs)
		pkt.SetDts(presentationTimeUs)
		if flags.Has(types.BufferFlagKeyFrame) {
			pkt.SetFlags(pkt.Flags().Add(astiav.PacketFlagKey))
		}
		d.pendingPackets = append(d.pendingPackets, pkt)
		return d.pumpLocked(ctx)
	})
	d.notifyOutput()
	return err
}

// pumpLocked moves data through libav: it sends every pending packet the
// decoder accepts and collects every frame it has ready.
func (d *Decoder) pumpLocked(ctx context.Context) error {
	for {
		if err := d.receiveFramesLocked(ctx); err != nil {
			return err
		}
		if len(d.pendingPackets) == 0 {
			break
		}
		pkt := d.pendingPackets[0]
		err := d.codecContext.SendPacket(pkt)
		if errors.Is(err, astiav.ErrEagain) {
			// the decoder wants us to drain the output first, but the
			// consumer holds too many buffers; retry on the next call
			logger.Tracef(ctx, "SendPacket: EAGAIN, %d packets pending", len(d.pendingPackets))
			return nil
		}
		d.pendingPackets[0] = nil
		d.pendingPackets = d.pendingPackets[1:]
		packetPool.Put(pkt)
		if err != nil {
			logger.Warnf(ctx, "unable to decode a packet: %v", err)
		}
	}

	if d.isInputEOS && !d.isFlushSent {
		err := d.codecContext.SendPacket(nil)
		switch {
		case err == nil, errors.Is(err, astiav.ErrEof):
			d.isFlushSent = true
		case errors.Is(err, astiav.ErrEagain):
			return nil
		default:
			return fmt.Errorf("unable to send the flush request: %w", err)
		}
		return d.receiveFramesLocked(ctx)
	}
	return nil
}

func (d *Decoder) receiveFramesLocked(ctx context.Context) error {
	for !d.isOutputEOS && !d.outputs.IsFull() {
		f := framePool.Get()
		err := d.codecContext.ReceiveFrame(f)
		if err != nil {
			framePool.Put(f)
			switch {
			case errors.Is(err, astiav.ErrEagain):
				return nil
			case errors.Is(err, astiav.ErrEof):
				d.isOutputEOS = true
				d.outputs.Add(decodedFrame{
					PresentationTimeUs: 0,
					Flags:              types.BufferFlagEndOfStream,
				})
				return nil
			default:
				return fmt.Errorf("unable to receive a frame: %w", err)
			}
		}

		decoded, err := d.toDecodedFrame(ctx, f)
		framePool.Put(f)
		if err != nil {
			logger.Errorf(ctx, "unable to read out the decoded frame: %v", err)
			continue
		}
		d.outputs.Add(decoded)
	}
	return nil
}

func (d *Decoder) toDecodedFrame(
	ctx context.Context,
	f *astiav.Frame,
) (decodedFrame, error) {
	result := decodedFrame{
		PresentationTimeUs: f.Pts(),
	}
	if avconv.IsNoPTS(result.PresentationTimeUs) {
		result.PresentationTimeUs = f.PktDts()
	}

	switch d.format.MediaType {
	case types.MediaTypeVideo:
		if d.hardwareDeviceContext != nil && f.PixelFormat() == d.hardwarePixelFormat {
			ramFrame := framePool.Get()
			defer framePool.Put(ramFrame)
			if err := f.TransferHardwareData(ramFrame); err != nil {
				return decodedFrame{}, fmt.Errorf("failed to transfer frame from hardware decoder to RAM: %w", err)
			}
			f = ramFrame
		}
		data, err := f.Data().Bytes(1)
		if err != nil {
			return decodedFrame{}, fmt.Errorf("unable to copy the picture: %w", err)
		}
		result.Data = data
		result.Width = f.Width()
		result.Height = f.Height()
	case types.MediaTypeAudio:
		data, err := d.toS16(ctx, f)
		if err != nil {
			return decodedFrame{}, err
		}
		result.Data = data
	}
	return result, nil
}

func (d *Decoder) toS16(
	ctx context.Context,
	f *astiav.Frame,
) ([]byte, error) {
	if f.SampleFormat() == astiav.SampleFormatS16 {
		return f.Data().Bytes(1)
	}

	converted := framePool.Get()
	defer framePool.Put(converted)
	converted.SetChannelLayout(f.ChannelLayout())
	converted.SetSampleRate(f.SampleRate())
	converted.SetSampleFormat(astiav.SampleFormatS16)
	converted.SetNbSamples(f.NbSamples())
	if err := converted.AllocBuffer(0); err != nil {
		return nil, fmt.Errorf("unable to allocate a buffer for the S16 samples: %w", err)
	}
	if err := d.resampleContext.ConvertFrame(f, converted); err != nil {
		return nil, fmt.Errorf("unable to convert %s samples to S16: %w", f.SampleFormat(), err)
	}
	logger.Tracef(ctx, "converted %d samples of %s to S16", converted.NbSamples(), f.SampleFormat())
	return converted.Data().Bytes(1)
}

func (d *Decoder) returnSlot(ctx context.Context, slot types.SlotIndex) {
	select {
	case d.freeSlots <- slot:
	default:
		logger.Errorf(ctx, "input slot %d is returned twice", slot)
	}
}

func (d *Decoder) notifyOutput() {
	select {
	case d.outputAvailable <- struct{}{}:
	default:
	}
}

func (d *Decoder) DequeueOutputFrame(
	ctx context.Context,
	timeout time.Duration,
) (codec.OutputInfo, bool) {
	ctx = xsync.WithNoLogging(ctx, true)
	dequeue := func() (codec.OutputInfo, bool) {
		info, ok, err := xsync.DoR3(ctx, &d.locker, func() (codec.OutputInfo, bool, error) {
			if !d.isStarted {
				return codec.OutputInfo{}, false, nil
			}
			if !d.outputs.HasReady() {
				if err := d.pumpLocked(ctx); err != nil {
					return codec.OutputInfo{}, false, err
				}
			}
			info, ok := d.outputs.Dequeue()
			return info, ok, nil
		})
		if err != nil {
			logger.Errorf(ctx, "%s: %v", d, err)
		}
		return info, ok
	}

	if info, ok := dequeue(); ok || timeout <= 0 {
		return info, ok
	}

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-d.outputAvailable:
	case <-t.C:
	case <-ctx.Done():
		return codec.OutputInfo{}, false
	}
	return dequeue()
}

func (d *Decoder) OutputBuffer(
	ctx context.Context,
	buffer types.BufferHandle,
) ([]byte, error) {
	return xsync.DoR2(xsync.WithNoLogging(ctx, true), &d.locker, func() ([]byte, error) {
		return d.outputs.Get(buffer)
	})
}

func (d *Decoder) ReleaseOutputFrame(
	ctx context.Context,
	buffer types.BufferHandle,
	render bool,
) error {
	logger.Tracef(ctx, "ReleaseOutputFrame(%s, %t)", buffer, render)
	err := xsync.DoR1(xsync.WithNoLogging(ctx, true), &d.locker, func() error {
		return d.outputs.Release(buffer)
	})
	if err != nil {
		return fmt.Errorf("unable to release %s: %w", buffer, err)
	}
	return nil
}

func (d *Decoder) Close(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "Close")
	defer func() { logger.Debugf(ctx, "/Close: %v", _err) }()
	return xsync.DoR1(ctx, &d.locker, func() error {
		if d.codecContext != nil {
			d.stopLocked(ctx)
		}
		for i := range d.slots {
			d.slots[i] = nil
		}
		return d.closer.Close()
	})
}
