// Package sink implements the Sink contract (§6.1): open/write/close
// against a destination. FileSink, NetworkSink and RTMPSink are the
// concrete instances this repository ships; real transports beyond
// plain TCP remain external collaborators.
package sink

import (
	"context"

	"github.com/kestrelav/streamcore/internal/model"
	"github.com/kestrelav/streamcore/internal/observable"
)

// Sink is the contract every destination implements.
type Sink interface {
	Open(ctx context.Context, descriptor model.MediaDescriptor) error
	Write(ctx context.Context, pkt model.Packet) error
	Close() error
	// Connected reports true from a successful Open until Close, and
	// reports connection-loss events for sinks with a transport that can
	// drop mid-session; file sinks change only on Open and Close.
	Connected() *observable.Value[bool]
}
