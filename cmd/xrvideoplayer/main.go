package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/xaionaro-go/observability"
	"github.com/xaionaro-go/xrplayer"
	"github.com/xaionaro-go/xrplayer/audio"
	"github.com/xaionaro-go/xrplayer/audio/oto"
	"github.com/xaionaro-go/xrplayer/clock"
	codeclibav "github.com/xaionaro-go/xrplayer/codec/libav"
	demuxerlibav "github.com/xaionaro-go/xrplayer/demuxer/libav"
	xrlogger "github.com/xaionaro-go/xrplayer/logger"
	"github.com/xaionaro-go/xrplayer/render"
	"golang.org/x/sync/errgroup"
)

const (
	envVideoFile = "XRPLAYER_VIDEO_FILE"
	envVideoMode = "XRPLAYER_VIDEO_MODE"
)

func main() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "syntax: %s [flags] <video-file>\n", os.Args[0])
		pflag.PrintDefaults()
	}

	// a missing .env is fine
	_ = godotenv.Load()

	loggerLevel := logger.LevelWarning
	pflag.Var(&loggerLevel, "log-level", "Log level")
	videoModeString := pflag.String("video-mode", envOr(envVideoMode, render.VideoMode2D.String()), "the layout of the pictures: 2D, 3D-SBS, 3D-OU or 360")
	refreshRate := pflag.Float64("refresh-rate", 72, "the simulated display refresh rate, in Hz")
	noLoop := pflag.Bool("no-loop", false, "stop at the end of the file instead of restarting")
	mute := pflag.Bool("mute", false, "do not play the audio track")
	hwAccel := pflag.String("hwaccel", "", "the hardware device type to decode video with (e.g. vaapi, cuda); empty means software decoding")
	configPath := pflag.String("config", "", "a YAML file with the player configuration")
	netPprofAddr := pflag.String("net-pprof-listen-addr", "", "an address to listen for incoming net/pprof connections")
	pflag.Parse()

	videoFile := os.Getenv(envVideoFile)
	switch len(pflag.Args()) {
	case 0:
	case 1:
		videoFile = pflag.Arg(0)
	default:
		pflag.Usage()
		os.Exit(1)
	}
	if videoFile == "" {
		pflag.Usage()
		os.Exit(1)
	}

	l := logrus.Default().WithLevel(loggerLevel)
	rootCtx := logger.CtxWithLogger(context.Background(), l)
	ctx, cancelFn := context.WithCancel(rootCtx)
	defer cancelFn()
	xrlogger.SetDefault(func() logger.Logger {
		return l
	})
	defer belt.Flush(rootCtx)

	if *netPprofAddr != "" {
		observability.Go(ctx, func(ctx context.Context) { l.Error(http.ListenAndServe(*netPprofAddr, nil)) })
	}

	xrlogger.RouteAstiavLogs(ctx, l.Level())

	videoMode, err := render.ParseVideoMode(*videoModeString)
	if err != nil {
		l.Fatal(err)
	}

	cfg, err := readConfig(*configPath)
	if err != nil {
		l.Fatal(err)
	}
	if *noLoop {
		cfg.Player.Loop = false
	}
	if *hwAccel != "" {
		cfg.Decoder.HardwareDeviceType = *hwAccel
	}

	l.Debugf("opening '%s'...", videoFile)
	demux, err := demuxerlibav.Open(ctx, videoFile, cfg.Demuxer)
	if err != nil {
		l.Fatal(err)
	}

	var audioSinkFactory audio.Factory
	if !*mute {
		audioSinkFactory = oto.NewFactory(cfg.Audio)
	}

	player, err := xrplayer.NewPlayer(
		ctx,
		demux,
		codeclibav.NewFactory(cfg.Decoder),
		audioSinkFactory,
		clock.NewMonotonic(),
		cfg.Player,
	)
	if err != nil {
		demux.Close()
		l.Fatal(err)
	}
	defer func() {
		if err := player.Close(rootCtx); err != nil {
			l.Error(err)
		}
	}()

	if err := player.Start(ctx); err != nil {
		l.Fatal(err)
	}
	size := player.VideoSize()
	eyeW, eyeH := videoMode.EyeSize(size.Width, size.Height)
	l.Infof("playing '%s' (%dx%d, %s, %dx%d per eye)", videoFile, size.Width, size.Height, videoMode, eyeW, eyeH)

	uploader := &nullUploader{videoMode: videoMode}
	consumer := render.NewConsumer(player, uploader)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return renderLoop(gCtx, consumer, *refreshRate)
	})
	g.Go(func() error {
		return printStats(gCtx, player, consumer, uploader)
	})
	g.Go(func() error {
		select {
		case <-gCtx.Done():
			return nil
		case <-player.EndOfStream():
			l.Infof("the end of the stream is reached")
			cancelFn()
			return nil
		}
	})
	if err := g.Wait(); err != nil && gCtx.Err() == nil {
		l.Error(err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func renderLoop(
	ctx context.Context,
	consumer *render.Consumer,
	refreshRate float64,
) error {
	if refreshRate <= 0 {
		return fmt.Errorf("the refresh rate must be positive, but it is %f", refreshRate)
	}
	t := time.NewTicker(time.Duration(float64(time.Second) / refreshRate))
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if _, err := consumer.RenderFrame(ctx); err != nil {
				xrlogger.Errorf(ctx, "unable to render a frame: %v", err)
			}
		}
	}
}

func printStats(
	ctx context.Context,
	player *xrplayer.Player,
	consumer *render.Consumer,
	uploader *nullUploader,
) error {
	t := time.NewTicker(time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			playerStatsJSON, err := json.Marshal(player.Stats(ctx))
			if err != nil {
				return fmt.Errorf("unable to serialize the player statistics: %w", err)
			}
			renderStatsJSON, err := json.Marshal(consumer.Stats())
			if err != nil {
				return fmt.Errorf("unable to serialize the render statistics: %w", err)
			}
			fmt.Printf(
				"player:%s -> render:%s uploaded:%s eye_pixels:%s\n",
				playerStatsJSON, renderStatsJSON,
				humanize.Bytes(uploader.bytes.Load()),
				humanize.Comma(int64(uploader.eyePixels.Load())),
			)
		}
	}
}
