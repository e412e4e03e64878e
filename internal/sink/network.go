package sink

import (
	"context"
	"net"
	"net/url"

	"github.com/kestrelav/streamcore/internal/model"
	"github.com/kestrelav/streamcore/internal/observable"
)

// NetworkSink is a reliable-datagram-style sink: a TCP connection to the
// host:port of the descriptor URI. The URI's query string is not read, so
// stream_id and passphrase parameters have no effect. It stands in for the SRT/QUIC
// transport §6.1 names as an external collaborator, exercising the full
// Sink contract (open/write/close, lost-connection observable) against a
// concrete connection.
type NetworkSink struct {
	conn      net.Conn
	connected *observable.Value[bool]
}

// NewNetworkSink returns an unopened NetworkSink.
func NewNetworkSink() *NetworkSink {
	return &NetworkSink{connected: observable.New(false)}
}

func (s *NetworkSink) Open(ctx context.Context, descriptor model.MediaDescriptor) error {
	u, err := url.Parse(descriptor.URI)
	if err != nil {
		return model.NewSinkError(model.ErrSinkOpenFailed, descriptor.URI, err)
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", u.Host)
	if err != nil {
		return model.NewSinkError(model.ErrSinkOpenFailed, descriptor.URI, err)
	}
	s.conn = conn
	s.connected.Set(true)
	return nil
}

func (s *NetworkSink) Write(ctx context.Context, pkt model.Packet) error {
	if s.conn == nil {
		return model.ErrNotConfigured
	}
	if _, err := s.conn.Write(pkt.Buffer); err != nil {
		s.connected.Set(false)
		return model.NewSinkError(model.ErrSinkWriteFailed, s.conn.RemoteAddr().String(), err)
	}
	return nil
}

func (s *NetworkSink) Close() error {
	s.connected.Set(false)
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func (s *NetworkSink) Connected() *observable.Value[bool] { return s.connected }
