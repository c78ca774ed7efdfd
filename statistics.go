package xrplayer

import (
	"github.com/xaionaro-go/xrplayer/framequeue"
	"go.uber.org/atomic"
)

type TrackStatistics struct {
	SamplesSubmitted uint64 `json:"samples_submitted"`
	SamplesDropped   uint64 `json:"samples_dropped"`
	FramesDecoded    uint64 `json:"frames_decoded"`
}

type Statistics struct {
	Video TrackStatistics `json:"video"`
	Audio TrackStatistics `json:"audio"`

	AudioFramesWritten uint64 `json:"audio_frames_written"`
	AudioShortWrites   uint64 `json:"audio_short_writes"`
	Restarts           uint64 `json:"restarts"`

	Queue framequeue.Statistics `json:"queue"`
}

type commonsTrackStatistics struct {
	SamplesSubmitted atomic.Uint64
	SamplesDropped   atomic.Uint64
	FramesDecoded    atomic.Uint64
}

func (stats *commonsTrackStatistics) Convert() TrackStatistics {
	return TrackStatistics{
		SamplesSubmitted: stats.SamplesSubmitted.Load(),
		SamplesDropped:   stats.SamplesDropped.Load(),
		FramesDecoded:    stats.FramesDecoded.Load(),
	}
}

type commonsStatistics struct {
	Video              commonsTrackStatistics
	Audio              commonsTrackStatistics
	AudioFramesWritten atomic.Uint64
	AudioShortWrites   atomic.Uint64
	Restarts           atomic.Uint64
}

func (stats *commonsStatistics) Convert() Statistics {
	return Statistics{
		Video:              stats.Video.Convert(),
		Audio:              stats.Audio.Convert(),
		AudioFramesWritten: stats.AudioFramesWritten.Load(),
		AudioShortWrites:   stats.AudioShortWrites.Load(),
		Restarts:           stats.Restarts.Load(),
	}
}
