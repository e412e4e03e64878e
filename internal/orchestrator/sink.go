package orchestrator

import (
	"github.com/kestrelav/streamcore/internal/model"
	"github.com/kestrelav/streamcore/internal/sink"
)

// newSink picks the concrete Sink for descriptor: RTMP containers always
// get the RTMP sink regardless of sink_type, since the handshake and AMF0
// command sequence are RTMP-specific; everything else follows sink_type.
func newSink(descriptor model.MediaDescriptor) (sink.Sink, error) {
	if descriptor.ContainerType == model.ContainerRTMP {
		return sink.NewRTMPSink(), nil
	}
	switch descriptor.SinkType {
	case model.SinkFile:
		return sink.NewFileSink(), nil
	case model.SinkNetwork, model.SinkContent:
		return sink.NewNetworkSink(), nil
	default:
		return nil, model.NewConfigError("sink_type", "unsupported sink type "+string(descriptor.SinkType))
	}
}
