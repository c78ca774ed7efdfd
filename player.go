// Package xrplayer decodes a media file in the background and hands the
// decoded video frames to a render loop at their presentation time.
//
// The decode loop keeps the decoders fed from the demuxer and drained into
// the audio sink and the frame queue; the render loop calls PeekCurrent and
// Retire once per display refresh.
package xrplayer

import (
	"context"
	"errors"
	"fmt"

	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/experimental/errmon"
	"github.com/go-ng/xatomic"
	"github.com/xaionaro-go/observability"
	"github.com/xaionaro-go/typing"
	"github.com/xaionaro-go/xcontext"
	"github.com/xaionaro-go/xrplayer/audio"
	"github.com/xaionaro-go/xrplayer/clock"
	"github.com/xaionaro-go/xrplayer/codec"
	"github.com/xaionaro-go/xrplayer/demuxer"
	"github.com/xaionaro-go/xrplayer/framequeue"
	"github.com/xaionaro-go/xrplayer/helpers/closuresignaler"
	"github.com/xaionaro-go/xrplayer/logger"
	"github.com/xaionaro-go/xrplayer/types"
	"github.com/xaionaro-go/xsync"
)

type VideoSize struct {
	Width  int
	Height int
}

type Player struct {
	config  Config
	demuxer demuxer.Demuxer
	clock   clock.Clock
	queue   *framequeue.Queue

	video       *track
	audio       *track
	audioSink   audio.Sink
	audioFormat audio.Format

	videoSize *VideoSize
	stats     commonsStatistics

	locker      xsync.Mutex
	cancelFn    context.CancelFunc
	loopDone    chan struct{}
	isClosed    bool
	endOfStream *closuresignaler.ClosureSignaler

	// decode loop state
	epochUs  int64
	originMs typing.Optional[int64]
}

// NewPlayer selects the first video and the first audio track of the
// demuxer and prepares a decoder for each. A track that cannot be set up is
// logged and skipped; an error is returned only if no track is usable.
//
// audioSinkFactory may be nil to play without sound. On success the player
// owns the demuxer and closes it in Close.
func NewPlayer(
	ctx context.Context,
	demux demuxer.Demuxer,
	decoderFactory codec.Factory,
	audioSinkFactory audio.Factory,
	clk clock.Clock,
	cfg Config,
) (_ret *Player, _err error) {
	logger.Debugf(ctx, "NewPlayer(%+v)", cfg)
	defer func() { logger.Debugf(ctx, "/NewPlayer(%+v): %v", cfg, _err) }()
	if clk == nil {
		clk = clock.NewMonotonic()
	}
	p := &Player{
		config:      cfg.withDefaults(),
		demuxer:     demux,
		clock:       clk,
		loopDone:    make(chan struct{}),
		endOfStream: closuresignaler.New(),
	}

	if trackIdx := demuxer.FindTrack(demux, types.MediaTypeVideo); trackIdx >= 0 {
		p.video = p.setupTrack(ctx, decoderFactory, trackIdx, &p.stats.Video)
	} else {
		logger.Errorf(ctx, "no video track found")
	}

	if p.config.VideoOnly {
		logger.Debugf(ctx, "the audio track is ignored")
	} else if audioSinkFactory == nil {
		logger.Debugf(ctx, "no audio output is provided, the audio track is ignored")
	} else if trackIdx := demuxer.FindTrack(demux, types.MediaTypeAudio); trackIdx >= 0 {
		p.audio = p.setupTrack(ctx, decoderFactory, trackIdx, &p.stats.Audio)
		if p.audio != nil {
			p.audioFormat = audio.Format{
				SampleRate:   p.audio.format.SampleRate,
				ChannelCount: p.audio.format.ChannelCount,
			}
			if p.audioFormat.SampleRate <= 0 || p.audioFormat.FrameSize() <= 0 {
				logger.Errorf(ctx, "invalid audio format %s", p.audioFormat)
				p.abandonTrack(ctx, p.audio)
				p.audio = nil
			} else if sink, err := audioSinkFactory.OpenSink(ctx, p.audioFormat); err != nil {
				logger.Errorf(ctx, "unable to open the audio output %s: %v", p.audioFormat, err)
				p.abandonTrack(ctx, p.audio)
				p.audio = nil
			} else {
				p.audioSink = sink
			}
		}
	} else {
		logger.Debugf(ctx, "no audio track found")
	}

	if p.video == nil && p.audio == nil {
		return nil, fmt.Errorf("no track could be set up for playback")
	}

	var releaser framequeue.Releaser
	if p.video != nil {
		releaser = p.video.decoder
		p.setVideoSize(p.video.format.Width, p.video.format.Height)
	}
	p.queue = framequeue.New(releaser, clk)
	return p, nil
}

func (p *Player) setupTrack(
	ctx context.Context,
	decoderFactory codec.Factory,
	trackIdx int,
	stats *commonsTrackStatistics,
) *track {
	format, err := p.demuxer.TrackFormat(trackIdx)
	if err != nil {
		logger.Errorf(ctx, "unable to get the format of track #%d: %v", trackIdx, err)
		return nil
	}
	ctx = belt.WithField(ctx, "media_type", format.MediaType.String())
	if err := p.demuxer.SelectTrack(trackIdx); err != nil {
		logger.Errorf(ctx, "unable to select track #%d: %v", trackIdx, err)
		return nil
	}
	t, err := openTrack(ctx, decoderFactory, trackIdx, format, stats)
	if err != nil {
		logger.Errorf(ctx, "%s playback is abandoned: %v", format.MediaType, err)
		return nil
	}
	logger.Infof(ctx, "playing %s", t)
	return t
}

func (p *Player) abandonTrack(ctx context.Context, t *track) {
	logger.Errorf(ctx, "abandoning %s", t)
	closeDecoder(ctx, t.decoder)
}

func (p *Player) String() string {
	return "Player"
}

// Start launches the decode loop; starting an already started player is
// a no-op.
func (p *Player) Start(ctx context.Context) error {
	return xsync.DoR1(ctx, &p.locker, func() error {
		if p.isClosed {
			return fmt.Errorf("the player is closed")
		}
		if p.cancelFn != nil {
			logger.Debugf(ctx, "the decode loop is already started")
			return nil
		}
		ctx, cancelFn := context.WithCancel(xcontext.DetachDone(ctx))
		p.cancelFn = cancelFn
		observability.Go(ctx, func(ctx context.Context) {
			defer close(p.loopDone)
			err := p.decodeLoop(ctx)
			if err != nil && ctx.Err() == nil {
				logger.Errorf(ctx, "the decode loop failed: %v", err)
				errmon.ObserveErrorCtx(ctx, err)
			}
		})
		return nil
	})
}

// PeekCurrent returns the frame to display now, if any. It must be called
// from the same goroutine as Retire.
func (p *Player) PeekCurrent(ctx context.Context) typing.Optional[framequeue.Frame] {
	return p.queue.PeekCurrent(ctx)
}

// Retire is called once per display cycle with the frame returned by
// PeekCurrent, after the renderer finished sampling it.
func (p *Player) Retire(ctx context.Context, f framequeue.Frame) bool {
	return p.queue.Retire(ctx, f)
}

// EndOfStream is closed when a non-looping playback decoded everything.
func (p *Player) EndOfStream() <-chan struct{} {
	return p.endOfStream.CloseChan()
}

// VideoSize returns the dimensions of the decoded pictures; they are zero
// if there is no video.
func (p *Player) VideoSize() VideoSize {
	size := xatomic.LoadPointer(&p.videoSize)
	if size == nil {
		return VideoSize{}
	}
	return *size
}

func (p *Player) setVideoSize(width, height int) {
	if cur := p.VideoSize(); cur.Width == width && cur.Height == height {
		return
	}
	xatomic.StorePointer(&p.videoSize, &VideoSize{Width: width, Height: height})
}

func (p *Player) Stats(ctx context.Context) Statistics {
	stats := p.stats.Convert()
	stats.Queue = p.queue.Stats(ctx)
	return stats
}

// Close stops the decode loop and releases everything the player holds:
// every queued video frame is released exactly once before the decoders
// are closed.
func (p *Player) Close(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "Close")
	defer func() { logger.Debugf(ctx, "/Close: %v", _err) }()

	var (
		cancelFn  context.CancelFunc
		wasClosed bool
	)
	p.locker.Do(ctx, func() {
		wasClosed = p.isClosed
		p.isClosed = true
		cancelFn = p.cancelFn
	})
	if wasClosed {
		return nil
	}

	if cancelFn != nil {
		cancelFn()
		<-p.loopDone
	}

	var mErr []error
	p.queue.Flush(ctx)
	for _, t := range []*track{p.video, p.audio} {
		if t == nil {
			continue
		}
		if err := t.decoder.Stop(ctx); err != nil {
			mErr = append(mErr, fmt.Errorf("unable to stop the decoder of %s: %w", t, err))
		}
		if err := t.decoder.Close(ctx); err != nil {
			mErr = append(mErr, fmt.Errorf("unable to close the decoder of %s: %w", t, err))
		}
	}
	if p.audioSink != nil {
		if err := p.audioSink.Close(ctx); err != nil {
			mErr = append(mErr, fmt.Errorf("unable to close the audio output: %w", err))
		}
	}
	if err := p.demuxer.Close(); err != nil {
		mErr = append(mErr, fmt.Errorf("unable to close the demuxer: %w", err))
	}
	return errors.Join(mErr...)
}
