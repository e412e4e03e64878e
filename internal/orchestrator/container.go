package orchestrator

import (
	"log/slog"

	"github.com/kestrelav/streamcore/internal/codec"
	"github.com/kestrelav/streamcore/internal/model"
	"github.com/kestrelav/streamcore/internal/muxer/flv"
	"github.com/kestrelav/streamcore/internal/muxer/fmp4"
	"github.com/kestrelav/streamcore/internal/muxer/ts"
)

// container adapts one of the three concrete muxers to the uniform
// surface the pipeline drives: register streams, accept routed frames
// (router.Sink), and move through the start/stop/release lifecycle the
// MPEG-TS muxer alone actually needs.
type container struct {
	write   func(pid int, frame model.Frame) error
	addAud  func(cfg model.AudioConfig) (int, error)
	addVid  func(cfg model.VideoConfig) (int, error)
	start   func()
	stop    func()
	release func()
}

// newContainer builds the adapter for descriptor.ContainerType, wiring its
// Listener to onPacket.
func newContainer(descriptor model.MediaDescriptor, onPacket func([]byte), logger *slog.Logger) (*container, error) {
	switch descriptor.ContainerType {
	case model.ContainerTS:
		m := ts.NewMuxer(1, ts.Listener(onPacket), logger)
		return &container{
			write: m.Write,
			addAud: func(cfg model.AudioConfig) (int, error) {
				if !codec.SupportedInTS(cfg.Mime()) {
					return 0, model.NewConfigError("audio.mime_type", "codec not supported in MPEG-TS: "+string(cfg.Mime()))
				}
				return m.AddStream(cfg)
			},
			addVid: func(cfg model.VideoConfig) (int, error) {
				if !codec.SupportedInTS(cfg.Mime()) {
					return 0, model.NewConfigError("video.mime_type", "codec not supported in MPEG-TS: "+string(cfg.Mime()))
				}
				return m.AddStream(cfg)
			},
			start: m.StartStream,
			// stop is a no-op, not m.StopStream: that wipes every
			// registered service/stream, which would break a
			// stop_stream/start_stream cycle within the same Open
			// session. Full teardown happens through release instead.
			stop:    func() {},
			release: m.Release,
		}, nil

	case model.ContainerFLV, model.ContainerRTMP:
		m := flv.NewMuxer(flv.Listener(onPacket), logger)
		return &container{
			write: func(pid int, frame model.Frame) error { return m.Write(frame) },
			addAud: func(cfg model.AudioConfig) (int, error) {
				if err := m.AddAudioStream(cfg); err != nil {
					return 0, err
				}
				return 2, nil
			},
			addVid: func(cfg model.VideoConfig) (int, error) {
				if err := m.AddVideoStream(cfg); err != nil {
					return 0, err
				}
				return 1, nil
			},
			start:   func() {},
			stop:    func() {},
			release: func() {},
		}, nil

	case model.ContainerMP4:
		m := fmp4.NewMuxer(fmp4.Listener(onPacket), logger)
		return &container{
			write: func(pid int, frame model.Frame) error { return m.Write(frame) },
			addAud: func(cfg model.AudioConfig) (int, error) {
				if err := m.AddAudioStream(cfg); err != nil {
					return 0, err
				}
				return 2, nil
			},
			addVid: func(cfg model.VideoConfig) (int, error) {
				if err := m.AddVideoStream(cfg); err != nil {
					return 0, err
				}
				return 1, nil
			},
			start:   func() {},
			stop:    m.Flush,
			release: func() {},
		}, nil

	default:
		return nil, model.NewConfigError("container_type", "unsupported container "+string(descriptor.ContainerType))
	}
}
