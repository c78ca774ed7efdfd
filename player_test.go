package xrplayer

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/xrplayer/clock"
	"github.com/xaionaro-go/xrplayer/codec"
	"github.com/xaionaro-go/xrplayer/logger"
	"github.com/xaionaro-go/xrplayer/types"
)

var (
	testVideoFormat = codec.Format{
		MIMEType:  "video/avc",
		MediaType: types.MediaTypeVideo,
		Width:     1920,
		Height:    1088,
	}
	testAudioFormat = codec.Format{
		MIMEType:     "audio/mp4a-latm",
		MediaType:    types.MediaTypeAudio,
		SampleRate:   48000,
		ChannelCount: 2,
	}
)

const (
	videoTrack = 0
	audioTrack = 1
)

func testCtx(t *testing.T) context.Context {
	l := logrus.Default().WithLevel(logger.LevelWarning)
	ctx := logger.CtxWithLogger(context.Background(), l)
	t.Cleanup(func() { belt.Flush(ctx) })
	return ctx
}

func videoSample(timeUs int64) dummySample {
	return dummySample{Track: videoTrack, TimeUs: timeUs, Data: []byte("picture"), Flags: types.BufferFlagKeyFrame}
}

func audioSample(timeUs int64, frames int) dummySample {
	return dummySample{Track: audioTrack, TimeUs: timeUs, Data: make([]byte, frames*4)}
}

type testPlayer struct {
	*Player
	Demuxer *dummyDemuxer
	Video   *dummyDecoder
	Audio   *dummyDecoder
	Sink    *dummySink
	Clock   *clock.Manual
}

func newTestPlayer(
	t *testing.T,
	ctx context.Context,
	cfg Config,
	durationUs int64,
	samples ...dummySample,
) *testPlayer {
	tp := &testPlayer{
		Demuxer: newDummyDemuxer(durationUs, []codec.Format{testVideoFormat, testAudioFormat}, samples...),
		Video:   newDummyDecoder(testVideoFormat),
		Audio:   newDummyDecoder(testAudioFormat),
		Sink:    &dummySink{},
		Clock:   clock.NewManual(1000),
	}
	factory := &dummyDecoderFactory{decoders: map[types.MediaType]*dummyDecoder{
		types.MediaTypeVideo: tp.Video,
		types.MediaTypeAudio: tp.Audio,
	}}
	p, err := NewPlayer(ctx, tp.Demuxer, factory, tp.Sink.Factory(), tp.Clock, cfg)
	require.NoError(t, err)
	tp.Player = p
	return tp
}

func (tp *testPlayer) iterateN(ctx context.Context, n int) {
	for i := 0; i < n; i++ {
		tp.iterate(ctx)
	}
}

// presentedTimes retires everything that can be retired and returns the
// presentation times seen through PeekCurrent.
func (tp *testPlayer) presentedTimes(ctx context.Context) []int64 {
	var result []int64
	for {
		cur := tp.PeekCurrent(ctx)
		if !cur.IsSet() {
			return result
		}
		result = append(result, cur.Get().PresentationTimeMs)
		if !tp.Retire(ctx, cur.Get()) {
			return result
		}
	}
}

func TestBackpressure(t *testing.T) {
	ctx := testCtx(t)
	tp := newTestPlayer(t, ctx, DefaultConfig(), 100_000,
		videoSample(0),
		videoSample(33_333),
		videoSample(66_666),
	)
	tp.Video.refuseSlots = 3

	for i := 0; i < 3; i++ {
		tp.iterate(ctx)
		require.Equal(t, 0, tp.Demuxer.pos)
		require.Equal(t, 0, tp.Demuxer.advanceCount)
	}
	tp.iterateN(ctx, 2)

	require.Equal(t, 5, tp.Video.dequeueInputCalls)
	require.Equal(t, 2, tp.Demuxer.advanceCount)
	require.Equal(t, 2, tp.Demuxer.pos)
	require.Equal(t, []submission{
		{Length: 7, PresentationTimeUs: 0, Flags: types.BufferFlagKeyFrame},
		{Length: 7, PresentationTimeUs: 33_333, Flags: types.BufferFlagKeyFrame},
	}, tp.Video.Submissions())
}

func TestLoopRestartEpoch(t *testing.T) {
	ctx := testCtx(t)
	const durationUs = 100_000
	tp := newTestPlayer(t, ctx, DefaultConfig(), durationUs,
		videoSample(0),
		videoSample(33_333),
		videoSample(66_666),
	)

	// three passes: three samples each, plus a restart between the passes
	tp.iterateN(ctx, 11)

	var pts []int64
	for _, s := range tp.Video.Submissions() {
		pts = append(pts, s.PresentationTimeUs)
	}
	var expected []int64
	for k := int64(0); k < 3; k++ {
		for _, ts := range []int64{0, 33_333, 66_666} {
			expected = append(expected, ts+k*durationUs)
		}
	}
	require.Equal(t, expected, pts)
	require.Equal(t, 2, tp.Demuxer.seekCount)
	require.Equal(t, uint64(2), tp.Stats(ctx).Restarts)

	tp.Clock.Set(1_000_000)
	require.Equal(t,
		[]int64{1000, 1033, 1066, 1100, 1133, 1166, 1200, 1233, 1266},
		tp.presentedTimes(ctx),
	)
}

func TestLoopRestartUnknownDuration(t *testing.T) {
	ctx := testCtx(t)
	tp := newTestPlayer(t, ctx, DefaultConfig(), 0,
		videoSample(0),
		videoSample(40_000),
		videoSample(80_000),
	)
	tp.iterateN(ctx, 5)

	subs := tp.Video.Submissions()
	require.Len(t, subs, 4)
	require.Equal(t, int64(120_000), subs[3].PresentationTimeUs)
}

func TestFiniteMode(t *testing.T) {
	ctx := testCtx(t)
	cfg := DefaultConfig()
	cfg.Loop = false
	cfg.PollInterval = time.Millisecond
	tp := newTestPlayer(t, ctx, cfg, 66_666,
		videoSample(0),
		audioSample(0, 100),
		videoSample(33_333),
		audioSample(2_083, 100),
	)

	require.NoError(t, tp.Start(ctx))
	require.NoError(t, tp.Start(ctx))
	select {
	case <-tp.EndOfStream():
	case <-time.After(5 * time.Second):
		t.Fatal("the end of stream is not signaled")
	}
	<-tp.loopDone

	for _, dec := range []*dummyDecoder{tp.Video, tp.Audio} {
		subs := dec.Submissions()
		require.Len(t, subs, 3)
		require.True(t, subs[2].Flags.Has(types.BufferFlagEndOfStream))
	}
	require.Zero(t, tp.Demuxer.seekCount)
	require.Equal(t, []int{100, 100}, tp.Sink.writes)

	// the last picture stays available to the renderer
	tp.Clock.Set(1_000_000)
	require.Equal(t, []int64{1000, 1033}, tp.presentedTimes(ctx))

	require.NoError(t, tp.Close(ctx))
	for _, dec := range []*dummyDecoder{tp.Video, tp.Audio} {
		for _, h := range dec.DequeuedOutputs() {
			require.Equal(t, 1, dec.Releases()[h], "buffer %s", h)
		}
	}
}

func TestAudioIsWrittenAndReleased(t *testing.T) {
	ctx := testCtx(t)
	tp := newTestPlayer(t, ctx, DefaultConfig(), 100_000,
		audioSample(0, 480),
		audioSample(10_000, 480),
	)
	tp.Sink.maxFrames = 100
	tp.iterateN(ctx, 2)

	require.Equal(t, []int{480, 480}, tp.Sink.writes)
	require.Equal(t, []time.Duration{10 * time.Millisecond, 10 * time.Millisecond}, tp.Sink.timeouts)
	stats := tp.Stats(ctx)
	require.Equal(t, uint64(2), stats.AudioShortWrites)
	require.Equal(t, uint64(200), stats.AudioFramesWritten)
	require.Equal(t, uint64(2), stats.Audio.FramesDecoded)

	dequeued := tp.Audio.DequeuedOutputs()
	require.Len(t, dequeued, 2)
	for _, h := range dequeued {
		require.Equal(t, 1, tp.Audio.Releases()[h])
	}
	require.Zero(t, tp.queue.Len(ctx))
}

func TestFailedAudioTrackDoesNotStopVideo(t *testing.T) {
	ctx := testCtx(t)
	demux := newDummyDemuxer(100_000, []codec.Format{testVideoFormat, testAudioFormat},
		videoSample(0),
		audioSample(0, 10),
		videoSample(33_333),
	)
	video := newDummyDecoder(testVideoFormat)
	audioDec := newDummyDecoder(testAudioFormat)
	audioDec.configureErr = fmt.Errorf("unsupported profile")
	factory := &dummyDecoderFactory{decoders: map[types.MediaType]*dummyDecoder{
		types.MediaTypeVideo: video,
		types.MediaTypeAudio: audioDec,
	}}
	sink := &dummySink{}

	p, err := NewPlayer(ctx, demux, factory, sink.Factory(), clock.NewManual(0), DefaultConfig())
	require.NoError(t, err)
	require.True(t, audioDec.isClosed)
	for i := 0; i < 3; i++ {
		p.iterate(ctx)
	}

	require.Equal(t, 3, demux.advanceCount)
	require.Len(t, video.Submissions(), 2)
	require.Empty(t, audioDec.Submissions())
	require.Empty(t, sink.writes)
	require.Equal(t, 2, p.queue.Len(ctx))
}

func TestAudioTrackWithoutChannelsIsAbandoned(t *testing.T) {
	ctx := testCtx(t)
	audioFormat := testAudioFormat
	audioFormat.ChannelCount = 0
	demux := newDummyDemuxer(100_000, []codec.Format{testVideoFormat, audioFormat},
		videoSample(0),
		audioSample(0, 10),
		videoSample(33_333),
	)
	video := newDummyDecoder(testVideoFormat)
	audioDec := newDummyDecoder(audioFormat)
	factory := &dummyDecoderFactory{decoders: map[types.MediaType]*dummyDecoder{
		types.MediaTypeVideo: video,
		types.MediaTypeAudio: audioDec,
	}}
	sink := &dummySink{}

	p, err := NewPlayer(ctx, demux, factory, sink.Factory(), clock.NewManual(0), DefaultConfig())
	require.NoError(t, err)
	require.Nil(t, p.audio)
	require.Nil(t, p.audioSink)
	require.True(t, audioDec.isClosed)
	require.Zero(t, sink.format)

	for i := 0; i < 3; i++ {
		p.iterate(ctx)
	}
	require.Len(t, video.Submissions(), 2)
	require.Empty(t, audioDec.Submissions())
	require.Empty(t, sink.writes)
}

func TestNoUsableTrack(t *testing.T) {
	ctx := testCtx(t)
	demux := newDummyDemuxer(0, []codec.Format{testVideoFormat, testAudioFormat})
	video := newDummyDecoder(testVideoFormat)
	video.startErr = fmt.Errorf("no hardware")
	factory := &dummyDecoderFactory{decoders: map[types.MediaType]*dummyDecoder{
		types.MediaTypeVideo: video,
	}}

	_, err := NewPlayer(ctx, demux, factory, (&dummySink{}).Factory(), clock.NewManual(0), DefaultConfig())
	require.Error(t, err)
	require.True(t, video.isClosed)
}

func TestVideoOnly(t *testing.T) {
	ctx := testCtx(t)
	cfg := DefaultConfig()
	cfg.VideoOnly = true
	tp := newTestPlayer(t, ctx, cfg, 100_000,
		audioSample(0, 10),
		videoSample(0),
	)
	tp.iterateN(ctx, 2)

	require.Nil(t, tp.audio)
	require.Empty(t, tp.Audio.Submissions())
	require.Len(t, tp.Video.Submissions(), 1)
	require.False(t, tp.Demuxer.selected[audioTrack])
}

func TestCloseReleasesEveryBufferOnce(t *testing.T) {
	ctx := testCtx(t)
	tp := newTestPlayer(t, ctx, DefaultConfig(), 166_666,
		videoSample(0),
		videoSample(33_333),
		videoSample(66_666),
		videoSample(100_000),
		videoSample(133_333),
	)
	tp.iterateN(ctx, 5)
	require.Equal(t, 5, tp.queue.Len(ctx))

	for _, now := range []int64{1000, 1040} {
		tp.Clock.Set(now)
		cur := tp.PeekCurrent(ctx)
		require.True(t, cur.IsSet())
		require.True(t, tp.Retire(ctx, cur.Get()))
	}

	require.NoError(t, tp.Close(ctx))
	require.NoError(t, tp.Close(ctx))

	dequeued := tp.Video.DequeuedOutputs()
	require.Len(t, dequeued, 5)
	releases := tp.Video.Releases()
	for _, h := range dequeued {
		require.Equal(t, 1, releases[h], "buffer %s", h)
	}
	require.Len(t, tp.Video.releasedRendered, 2)
	require.True(t, tp.Video.isClosed)
	require.True(t, tp.Audio.isClosed)
	require.True(t, tp.Sink.isClosed)
	require.True(t, tp.Demuxer.isClosed)
	require.Error(t, tp.Start(ctx))
}

func TestVideoSize(t *testing.T) {
	ctx := testCtx(t)
	tp := newTestPlayer(t, ctx, DefaultConfig(), 100_000, videoSample(0))
	require.Equal(t, VideoSize{Width: 1920, Height: 1088}, tp.VideoSize())

	tp.Video.outputWidth, tp.Video.outputHeight = 1280, 720
	tp.iterate(ctx)
	require.Equal(t, VideoSize{Width: 1280, Height: 720}, tp.VideoSize())

	f := tp.PeekCurrent(ctx).Get()
	require.Equal(t, 1280, f.Width)
	require.Equal(t, []byte("picture"), f.PlaneData)
	require.Equal(t, int64(1000), f.PresentationTimeMs)
}

func TestConfigWithDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	require.Equal(t, DefaultPollInterval, cfg.PollInterval)
	require.False(t, cfg.Loop)

	cfg = Config{InputTimeout: -time.Second, PollInterval: time.Second}.withDefaults()
	require.Zero(t, cfg.InputTimeout)
	require.Equal(t, time.Second, cfg.PollInterval)
}
