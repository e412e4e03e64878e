// Package orchestrator implements the pipeline orchestrator (C6): the
// state machine owning configuration, sources, encoders, the FrameRouter,
// a container muxer and a sink, and coordinating them through
// open/start_stream/stop_stream/close/release per §4.6.
package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kestrelav/streamcore/internal/encoder"
	"github.com/kestrelav/streamcore/internal/model"
	"github.com/kestrelav/streamcore/internal/observable"
	"github.com/kestrelav/streamcore/internal/router"
	"github.com/kestrelav/streamcore/internal/sink"
	"github.com/kestrelav/streamcore/internal/source"
)

// BitrateAdvisor is consulted periodically while streaming to suggest a
// new target bitrate for the video encoder, e.g. in response to host CPU
// or network pressure. A nil advisor disables the adjustment.
type BitrateAdvisor func(ctx context.Context) (bps int64, ok bool)

// Pipeline is the orchestrator described in §4.6: it owns the lifecycle
// state and every collaborator a live session wires together.
type Pipeline struct {
	mu sync.Mutex

	logger  *slog.Logger
	advisor BitrateAdvisor

	state       *observable.Value[model.PipelineState]
	isOpen      *observable.Value[bool]
	isStreaming *observable.Value[bool]
	lastError   *observable.Value[error]
	audioSrcTag *observable.Value[string]
	videoSrcTag *observable.Value[string]

	audioConfig *model.AudioConfig
	videoConfig *model.VideoConfig

	audioSource source.FrameSource
	videoSource source.SurfaceSource
	audioEnc    encoder.Audio
	videoEnc    encoder.Video

	descriptor model.MediaDescriptor
	snk        sink.Sink
	box        *container
	rt         *router.Router

	audioPID int

	// traceID correlates every log line emitted for one open/close cycle,
	// independent of the durable session id sessionlog assigns.
	traceID     string
	traceLogger *slog.Logger

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	pktCh   chan model.Packet
	writeWG sync.WaitGroup
}

// New returns a Pipeline in StateIdle. advisor may be nil.
func New(logger *slog.Logger, advisor BitrateAdvisor) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		logger:      logger,
		traceLogger: logger,
		advisor:     advisor,
		state:       observable.New(model.StateIdle),
		isOpen:      observable.New(false),
		isStreaming: observable.New(false),
		lastError:   observable.New[error](nil),
		audioSrcTag: observable.New(""),
		videoSrcTag: observable.New(""),
	}
}

// State returns the observable lifecycle state.
func (p *Pipeline) State() *observable.Value[model.PipelineState] { return p.state }

// IsOpen, IsStreaming, LastError, AudioSource and VideoSource are the
// observables §4.6 names alongside state itself.
func (p *Pipeline) IsOpen() *observable.Value[bool]        { return p.isOpen }
func (p *Pipeline) IsStreaming() *observable.Value[bool]    { return p.isStreaming }
func (p *Pipeline) LastError() *observable.Value[error]     { return p.lastError }
func (p *Pipeline) AudioSource() *observable.Value[string]  { return p.audioSrcTag }
func (p *Pipeline) VideoSource() *observable.Value[string]  { return p.videoSrcTag }

func (p *Pipeline) setState(s model.PipelineState) {
	p.state.Set(s)
	p.isOpen.Set(s == model.StateOpen || s == model.StateStreaming)
	p.isStreaming.Set(s == model.StateStreaming)
}

func (p *Pipeline) fail(err error) error {
	p.lastError.Set(err)
	return err
}

// requireState returns a *StateError unless the pipeline is currently in
// one of allowed.
func (p *Pipeline) requireState(op string, allowed ...model.PipelineState) error {
	cur := p.state.Get()
	for _, s := range allowed {
		if cur == s {
			return nil
		}
	}
	return p.fail(&StateError{From: cur, Op: op})
}

// SetAudioConfig stores cfg, permitted from Idle or Configured (not once
// Open, since stream configuration is negotiated before opening).
func (p *Pipeline) SetAudioConfig(cfg model.AudioConfig) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.requireState("set_audio_config", model.StateIdle, model.StateConfigured); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return p.fail(err)
	}
	p.audioConfig = &cfg
	p.setState(model.StateConfigured)
	return nil
}

// SetVideoConfig stores cfg, permitted from Idle or Configured.
func (p *Pipeline) SetVideoConfig(cfg model.VideoConfig) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.requireState("set_video_config", model.StateIdle, model.StateConfigured); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return p.fail(err)
	}
	p.videoConfig = &cfg
	p.setState(model.StateConfigured)
	return nil
}

// SetConfig sets both configs atomically.
func (p *Pipeline) SetConfig(audio model.AudioConfig, video model.VideoConfig) error {
	if err := p.SetAudioConfig(audio); err != nil {
		return err
	}
	return p.SetVideoConfig(video)
}

// SetAudioSource and SetVideoSource bind the pull/push source an encoder
// will drive. Disallowed once Streaming: the open question in §9 is
// resolved here as a StateViolation, matching the other set_* operations'
// treatment of Streaming as a closed state for reconfiguration.
func (p *Pipeline) SetAudioSource(src source.FrameSource, tag string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.requireState("set_audio_source", model.StateIdle, model.StateConfigured, model.StateOpen); err != nil {
		return err
	}
	p.audioSource = src
	p.audioSrcTag.Set(tag)
	return nil
}

func (p *Pipeline) SetVideoSource(src source.SurfaceSource, tag string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.requireState("set_video_source", model.StateIdle, model.StateConfigured, model.StateOpen); err != nil {
		return err
	}
	p.videoSource = src
	p.videoSrcTag.Set(tag)
	return nil
}

// SetEncoders binds the encoder instances used once streaming starts.
// Real deployments wire hardware-backed encoders here; tests wire the
// Passthrough references.
func (p *Pipeline) SetEncoders(audio encoder.Audio, video encoder.Video) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.audioEnc = audio
	p.videoEnc = video
}

// Open builds the container muxer and sink for descriptor, registers the
// configured streams, and opens the sink connection. Requires Configured
// with at least one of audio/video config set.
func (p *Pipeline) Open(ctx context.Context, descriptor model.MediaDescriptor) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.requireState("open", model.StateConfigured); err != nil {
		return err
	}
	if p.audioConfig == nil && p.videoConfig == nil {
		return p.fail(model.ErrNotConfigured)
	}

	snk, err := newSink(descriptor)
	if err != nil {
		return p.fail(err)
	}
	if err := snk.Open(ctx, descriptor); err != nil {
		return p.fail(err)
	}

	pktCh := make(chan model.Packet, 64)
	box, err := newContainer(descriptor, func(buf []byte) {
		pktCh <- model.Packet{Buffer: buf, Type: model.PacketMixed}
	}, p.logger)
	if err != nil {
		snk.Close()
		return p.fail(err)
	}

	rt := router.New(routerSink{box}, descriptor.ContainerType != model.ContainerTS)

	if p.audioConfig != nil {
		pid, err := box.addAud(*p.audioConfig)
		if err != nil {
			snk.Close()
			return p.fail(err)
		}
		p.audioPID = pid
		rt.Register(pid, *p.audioConfig)
	}
	if p.videoConfig != nil {
		pid, err := box.addVid(*p.videoConfig)
		if err != nil {
			snk.Close()
			return p.fail(err)
		}
		rt.Register(pid, *p.videoConfig)
	}

	p.traceID = uuid.NewString()
	p.traceLogger = p.logger.With(slog.String("trace_id", p.traceID))

	p.descriptor = descriptor
	p.snk = snk
	p.box = box
	p.rt = rt
	p.pktCh = pktCh
	p.setState(model.StateOpen)
	return nil
}

// TraceID returns the correlation id assigned to the current open/close
// cycle, for a host application to tie its own logs to the pipeline's.
// Empty when the pipeline has never been opened.
func (p *Pipeline) TraceID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.traceID
}

// routerSink adapts *container to router.Sink.
type routerSink struct{ box *container }

func (r routerSink) Write(pid int, frame model.Frame) error { return r.box.write(pid, frame) }

// Close tears the session down to Configured: stops the sink/muxer and
// drops the per-session wiring, but keeps the negotiated audio/video config
// so a caller can Open again without reconfiguring.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.requireState("close", model.StateOpen); err != nil {
		return err
	}
	p.teardownLocked()
	p.setState(model.StateConfigured)
	return nil
}

func (p *Pipeline) teardownLocked() {
	if p.box != nil {
		p.box.release()
	}
	if p.snk != nil {
		p.snk.Close()
	}
	if p.pktCh != nil {
		close(p.pktCh)
	}
	p.snk = nil
	p.box = nil
	p.rt = nil
	p.pktCh = nil
}

// StartStream moves Open -> Streaming: starts the container muxer, the
// single writer worker draining packets to the sink, and one goroutine
// per configured encoder feeding the router. A configured track with no
// bound encoder fails the call outright (before anything is started) and
// the pipeline remains Open with last_error set, per the error-containment
// requirement in §4.6.
func (p *Pipeline) StartStream(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.requireState("start_stream", model.StateOpen); err != nil {
		return err
	}
	if p.audioConfig != nil && p.audioEnc == nil {
		return p.fail(model.NewStreamError(model.ErrMissingCodecConfig, model.MimeAAC, p.audioPID, "audio configured with no encoder bound"))
	}
	if p.videoConfig != nil && p.videoEnc == nil {
		return p.fail(model.NewStreamError(model.ErrMissingCodecConfig, p.videoConfig.MimeType, 0, "video configured with no encoder bound"))
	}

	streamCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.box.start()

	p.writeWG.Add(1)
	go p.runWriter()

	if p.audioConfig != nil && p.audioEnc != nil {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			err := p.audioEnc.StartStream(streamCtx, p.audioSource, func(f model.Frame) {
				if routeErr := p.rt.Route(f); routeErr != nil {
					p.traceLogger.Error("audio frame routing failed", slog.Any("error", routeErr))
					p.lastError.Set(routeErr)
				}
			})
			if err != nil && streamCtx.Err() == nil {
				p.traceLogger.Error("audio encoder stopped", slog.Any("error", err))
				p.lastError.Set(err)
			}
		}()
	}
	if p.videoConfig != nil && p.videoEnc != nil {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			err := p.videoEnc.StartStream(streamCtx, p.videoSource, func(f model.Frame) {
				if routeErr := p.rt.Route(f); routeErr != nil {
					p.traceLogger.Error("video frame routing failed", slog.Any("error", routeErr))
					p.lastError.Set(routeErr)
				}
			})
			if err != nil && streamCtx.Err() == nil {
				p.traceLogger.Error("video encoder stopped", slog.Any("error", err))
				p.lastError.Set(err)
			}
		}()
	}

	if p.advisor != nil && p.videoEnc != nil {
		p.wg.Add(1)
		go p.runBitrateAdvisor(streamCtx)
	}

	p.setState(model.StateStreaming)
	return nil
}

func (p *Pipeline) runWriter() {
	defer p.writeWG.Done()
	ctx := context.Background()
	for pkt := range p.pktCh {
		if err := p.snk.Write(ctx, pkt); err != nil {
			p.traceLogger.Error("sink write failed", slog.Any("error", err))
			p.lastError.Set(err)
		}
	}
}

// bitrateAdvisorInterval is how often the advisor is polled while streaming.
const bitrateAdvisorInterval = 5 * time.Second

func (p *Pipeline) runBitrateAdvisor(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(bitrateAdvisorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if bps, ok := p.advisor(ctx); ok {
				p.videoEnc.SetBitrate(bps)
			}
		}
	}
}

// StopStream moves Streaming -> Open: cancels the encoder/advisor
// goroutines, stops the container muxer, releases the video encoder (the
// restart semantics in §4.6 require the next start_stream to reconfigure
// it from scratch), and drains the writer worker.
func (p *Pipeline) StopStream() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.requireState("stop_stream", model.StateStreaming); err != nil {
		return err
	}

	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.box.stop()

	if p.videoEnc != nil {
		_ = p.videoEnc.StopStream()
		_ = p.videoEnc.Release()
		if p.videoConfig != nil {
			_ = p.videoEnc.Configure(*p.videoConfig)
		}
	}
	if p.audioEnc != nil {
		_ = p.audioEnc.StopStream()
	}

	p.setState(model.StateOpen)
	return nil
}

// Release tears the pipeline down permanently from any state. Idempotent.
func (p *Pipeline) Release() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state.Get() == model.StateReleased {
		return nil
	}
	if p.state.Get() == model.StateStreaming {
		if p.cancel != nil {
			p.cancel()
		}
		p.wg.Wait()
	}
	if p.state.Get() == model.StateStreaming || p.state.Get() == model.StateOpen {
		p.teardownLocked()
	}
	if p.audioEnc != nil {
		_ = p.audioEnc.Release()
	}
	if p.videoEnc != nil {
		_ = p.videoEnc.Release()
	}
	p.setState(model.StateReleased)
	return nil
}
