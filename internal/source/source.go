// Package source defines the Source contract (C5): a frame source
// (audio, pull-based) or a surface source (video, push-based from the
// driver's own worker). Capture drivers themselves are external
// collaborators; this package holds the contract plus minimal
// fixture/test sources.
package source

import (
	"context"

	"github.com/kestrelav/streamcore/internal/model"
)

// FrameSource is the audio-source contract: GetFrame fills buf and
// returns a Frame tagged with a monotonic timestamp.
type FrameSource interface {
	Configure(cfg model.AudioConfig) error
	StartStream() error
	StopStream() error
	Release() error
	GetFrame(ctx context.Context, buf []byte) (model.Frame, error)
}

// SurfaceSource is the video-source contract: the encoder consumes a
// drawable target the source posts frames to at the configured FPS.
// Source implementations outside this package own the actual surface
// type (platform-specific); this interface only covers the lifecycle
// every surface source shares.
type SurfaceSource interface {
	Configure(cfg model.VideoConfig) error
	StartStream() error
	StopStream() error
	Release() error
}

// FixedFrameSource replays a fixed sequence of frames, one per GetFrame
// call, cycling timestamps forward by an interval derived from the
// configured sample rate. Useful for tests and for a silence/filler
// source when no live capture is attached.
type FixedFrameSource struct {
	cfg       model.AudioConfig
	frames    [][]byte
	idx       int
	nextPTS   int64
	intervalUs int64
}

// NewFixedFrameSource returns a source that replays frames in order.
func NewFixedFrameSource(frames [][]byte) *FixedFrameSource {
	return &FixedFrameSource{frames: frames}
}

func (s *FixedFrameSource) Configure(cfg model.AudioConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.cfg = cfg
	s.intervalUs = 1_000_000 * 1024 / int64(cfg.SampleRate) // one AAC frame's worth of samples
	return nil
}

func (s *FixedFrameSource) StartStream() error { s.nextPTS = 0; return nil }
func (s *FixedFrameSource) StopStream() error  { return nil }
func (s *FixedFrameSource) Release() error     { return nil }

func (s *FixedFrameSource) GetFrame(ctx context.Context, buf []byte) (model.Frame, error) {
	select {
	case <-ctx.Done():
		return model.Frame{}, ctx.Err()
	default:
	}
	if len(s.frames) == 0 {
		return model.Frame{}, model.ErrNotConfigured
	}
	payload := s.frames[s.idx%len(s.frames)]
	s.idx++
	f := model.Frame{
		Buffer:     payload,
		Mime:       s.cfg.MimeType,
		PTS:        s.nextPTS,
		IsKeyFrame: true,
	}
	s.nextPTS += s.intervalUs
	return f, nil
}
