// Package router implements the codec-agnostic FrameRouter (C3): it sits
// between encoders and a muxer, rebasing timestamps to a per-session zero
// point, gating frames before a fingerprint is registered or (optionally)
// before the first video key frame, and guaranteeing FIFO delivery per
// track.
package router

import (
	"sync"

	"github.com/kestrelav/streamcore/internal/model"
)

// Sink is the minimal surface the router needs from a muxer: a
// pid-addressed frame write. internal/muxer/ts.Muxer and
// internal/muxer/flv.Muxer (mime-addressed) are both adaptable to this
// via small wrapper closures at wiring time.
type Sink interface {
	Write(pid int, frame model.Frame) error
}

type trackState struct {
	pid         int
	fingerprint model.Fingerprint
	baseTS      int64
	baseLatched bool
	mu          sync.Mutex
}

// Router rebases timestamps and forwards frames to a muxer, one call at a
// time per track (the caller is expected to serialize writes per track,
// matching the §5 single-muxer-writer-worker model; Router itself adds no
// extra locking beyond what's needed to update its own track state).
type Router struct {
	mu     sync.Mutex
	tracks map[model.Mime]*trackState
	sink   Sink

	gateAudioBeforeVideoKey bool
	videoKeySeen            bool
}

// New returns a Router delivering to sink. gateAudioBeforeVideoKey mirrors
// the FLV muxer's own startup gate at the router level too, for container
// types (open question in §9) where the implementer chooses to gate
// audio upstream of the muxer; callers targeting MPEG-TS should leave it
// false, since TS does not require the gate.
func New(sink Sink, gateAudioBeforeVideoKey bool) *Router {
	return &Router{
		tracks:                  make(map[model.Mime]*trackState),
		sink:                    sink,
		gateAudioBeforeVideoKey: gateAudioBeforeVideoKey,
	}
}

// Register binds mime to pid with its negotiated fingerprint, as produced
// by a prior add_stream(s) call on the muxer.
func (r *Router) Register(pid int, cfg model.StreamConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tracks[cfg.Mime()] = &trackState{pid: pid, fingerprint: model.FingerprintOf(cfg)}
}

// Unregister removes mime's route, e.g. after remove_streams.
func (r *Router) Unregister(mime model.Mime) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tracks, mime)
}

// Route rebases frame's timestamp against its track's latched base and
// forwards it to the sink. Returns UnknownStream if mime has no registered
// route, or if frame.Format carries a model.FormatKeyFingerprint that no
// longer matches the Fingerprint the track was registered with — an
// encoder reconfigured mid-session (changed width/height/sample rate)
// without a matching Unregister/Register is treated as an unknown stream
// rather than routed to the stale PID.
func (r *Router) Route(frame model.Frame) error {
	r.mu.Lock()
	track, ok := r.tracks[frame.Mime]
	r.mu.Unlock()
	if !ok {
		return model.NewStreamError(model.ErrUnknownStream, frame.Mime, 0, "mime not registered with router")
	}

	if fp, carried := frame.Format[model.FormatKeyFingerprint].(model.Fingerprint); carried && fp != track.fingerprint {
		return model.NewStreamError(model.ErrUnknownStream, frame.Mime, 0, "stream reconfigured: fingerprint no longer matches registration")
	}

	track.mu.Lock()
	if !track.baseLatched {
		track.baseTS = frame.PTS
		track.baseLatched = true
	}
	rebased := frame
	rebased.PTS = frame.PTS - track.baseTS
	if rebased.PTS < 0 {
		rebased.PTS = 0
	}
	if frame.DTS != 0 {
		rebased.DTS = frame.DTS - track.baseTS
		if rebased.DTS < 0 {
			rebased.DTS = 0
		}
	}
	pid := track.pid
	track.mu.Unlock()

	if len(rebased.Buffer) == 0 && len(rebased.Extra) > 0 {
		// codec-configuration-only payload already carried via Extra;
		// downstream muxers consume config through Extra, not Buffer.
		return nil
	}

	if frame.Mime.IsVideo() && frame.IsKeyFrame {
		r.mu.Lock()
		r.videoKeySeen = true
		r.mu.Unlock()
	}
	if r.gateAudioBeforeVideoKey && frame.Mime.IsAudio() {
		r.mu.Lock()
		hasVideo := r.hasVideoTrackLocked()
		seen := r.videoKeySeen
		r.mu.Unlock()
		if hasVideo && !seen {
			return nil
		}
	}

	return r.sink.Write(pid, rebased)
}

func (r *Router) hasVideoTrackLocked() bool {
	for mime := range r.tracks {
		if mime.IsVideo() {
			return true
		}
	}
	return false
}
