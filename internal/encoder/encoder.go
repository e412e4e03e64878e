// Package encoder defines the Encoder contract (C4): consume raw media,
// emit tagged encoded frames via a caller-supplied listener. Real codec
// engines are external collaborators (platform hardware encoders); this
// package holds the contract plus a software reference implementation
// usable in tests and for sinks that accept raw/passthrough payloads.
package encoder

import (
	"context"

	"github.com/kestrelav/streamcore/internal/model"
	"github.com/kestrelav/streamcore/internal/source"
)

// FrameListener receives one encoded frame at a time, in PTS order.
type FrameListener func(model.Frame)

// Video is the contract a video encoder (hardware or software) must
// satisfy. src is the posted surface the driver feeds; reference
// implementations that expect frames pushed in via Feed instead ignore it.
type Video interface {
	Configure(cfg model.VideoConfig) error
	StartStream(ctx context.Context, src source.SurfaceSource, onFrame FrameListener) error
	StopStream() error
	Release() error
	SetBitrate(bps int64)
}

// Audio is the contract an audio encoder must satisfy. StartStream owns
// the pull loop against src for the duration of the stream, per C4/C5's
// "consumes raw buffers pulled from a source".
type Audio interface {
	Configure(cfg model.AudioConfig) error
	StartStream(ctx context.Context, src source.FrameSource, onFrame FrameListener) error
	StopStream() error
	Release() error
	SetBitrate(bps int64)
}

// PassthroughVideo wraps an already-encoded Source (e.g. a remux path
// where upstream frames arrive pre-encoded) as a Video encoder: it copies
// frames through unchanged, satisfying the "must guarantee PTS
// monotonicity" requirement by rejecting non-increasing timestamps at the
// boundary rather than silently reordering.
type PassthroughVideo struct {
	cfg      model.VideoConfig
	lastPTS  int64
	hasLast  bool
	bitrate  int64
}

func NewPassthroughVideo() *PassthroughVideo { return &PassthroughVideo{} }

func (p *PassthroughVideo) Configure(cfg model.VideoConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	p.cfg = cfg
	p.hasLast = false
	return nil
}

// Feed delivers a pre-encoded frame from an upstream source into onFrame,
// used by callers driving PassthroughVideo directly instead of through
// StartStream's blocking loop. The frame's Format is stamped with the
// fingerprint of the config this encoder was last Configure'd with, so a
// downstream router can detect a silent reconfigure.
func (p *PassthroughVideo) Feed(f model.Frame, onFrame FrameListener) error {
	if p.hasLast && f.PTS <= p.lastPTS {
		return model.NewStreamError(model.ErrInvalidConfig, f.Mime, 0, "non-monotonic pts")
	}
	p.lastPTS = f.PTS
	p.hasLast = true
	f.Format = withFingerprint(f.Format, p.cfg)
	onFrame(f)
	return nil
}

// StartStream blocks until ctx is cancelled: PassthroughVideo carries no
// pull loop of its own (a SurfaceSource is push-based, driven by its own
// worker), so a caller wanting to feed it explicitly calls Feed directly.
func (p *PassthroughVideo) StartStream(ctx context.Context, src source.SurfaceSource, onFrame FrameListener) error {
	<-ctx.Done()
	return nil
}

func (p *PassthroughVideo) StopStream() error { p.hasLast = false; return nil }
func (p *PassthroughVideo) Release() error    { return nil }
func (p *PassthroughVideo) SetBitrate(bps int64) { p.bitrate = bps }

// PassthroughAudio is the audio analogue of PassthroughVideo.
type PassthroughAudio struct {
	cfg     model.AudioConfig
	lastPTS int64
	hasLast bool
	bitrate int64
}

func NewPassthroughAudio() *PassthroughAudio { return &PassthroughAudio{} }

func (p *PassthroughAudio) Configure(cfg model.AudioConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	p.cfg = cfg
	p.hasLast = false
	return nil
}

func (p *PassthroughAudio) Feed(f model.Frame, onFrame FrameListener) error {
	if p.hasLast && f.PTS <= p.lastPTS {
		return model.NewStreamError(model.ErrInvalidConfig, f.Mime, 0, "non-monotonic pts")
	}
	p.lastPTS = f.PTS
	p.hasLast = true
	f.Format = withFingerprint(f.Format, p.cfg)
	onFrame(f)
	return nil
}

// withFingerprint returns format with model.FormatKeyFingerprint set to
// cfg's fingerprint, copying format rather than mutating the caller's map.
func withFingerprint(format map[string]any, cfg model.StreamConfig) map[string]any {
	out := make(map[string]any, len(format)+1)
	for k, v := range format {
		out[k] = v
	}
	out[model.FormatKeyFingerprint] = model.FingerprintOf(cfg)
	return out
}

// StartStream pulls frames from src until ctx is cancelled or src is
// exhausted, feeding each one through onFrame. A nil src means frames
// arrive via external Feed calls instead (e.g. a remux path).
func (p *PassthroughAudio) StartStream(ctx context.Context, src source.FrameSource, onFrame FrameListener) error {
	if src == nil {
		<-ctx.Done()
		return nil
	}
	buf := make([]byte, 8192)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		f, err := src.GetFrame(ctx, buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := p.Feed(f, onFrame); err != nil {
			return err
		}
	}
}

func (p *PassthroughAudio) StopStream() error     { p.hasLast = false; return nil }
func (p *PassthroughAudio) Release() error        { return nil }
func (p *PassthroughAudio) SetBitrate(bps int64)  { p.bitrate = bps }
