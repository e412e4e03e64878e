package sink

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/kestrelav/streamcore/internal/model"
	"github.com/kestrelav/streamcore/internal/observable"
)

const rtmpHandshakeSize = 1536

// RTMPSink opens an RTMP connection (plain, unencrypted), performs the
// minimal C0/C1/C2 handshake, sends the AMF0 connect/createStream/publish
// commands, then writes each FLV-tag-framed media packet as an RTMP
// message. It is not a full RTMP
// stack: enough of the handshake and chunk stream to reach an ingest
// server accepting an unauthenticated publish.
type RTMPSink struct {
	conn      net.Conn
	connected *observable.Value[bool]
	chunkSize int
}

// NewRTMPSink returns an unopened RTMPSink.
func NewRTMPSink() *RTMPSink {
	return &RTMPSink{connected: observable.New(false), chunkSize: 128}
}

func (s *RTMPSink) Open(ctx context.Context, descriptor model.MediaDescriptor) error {
	u, err := url.Parse(descriptor.URI)
	if err != nil {
		return model.NewSinkError(model.ErrSinkOpenFailed, descriptor.URI, err)
	}
	host := u.Host
	if !strings.Contains(host, ":") {
		host += ":1935"
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", host)
	if err != nil {
		return model.NewSinkError(model.ErrSinkOpenFailed, descriptor.URI, err)
	}
	s.conn = conn

	if err := s.handshake(); err != nil {
		conn.Close()
		return model.NewSinkError(model.ErrSinkOpenFailed, descriptor.URI, err)
	}
	if err := s.sendConnectAndPublish(u); err != nil {
		conn.Close()
		return model.NewSinkError(model.ErrSinkOpenFailed, descriptor.URI, err)
	}

	s.connected.Set(true)
	return nil
}

// handshake performs the plain (unencrypted) RTMP handshake: C0 (version
// byte 3) + C1 (1536 random bytes) out, S0/S1/S2 in, then C2 echoing S1.
func (s *RTMPSink) handshake() error {
	c0c1 := make([]byte, 1+rtmpHandshakeSize)
	c0c1[0] = 3
	binary.BigEndian.PutUint32(c0c1[1:5], 0) // time
	binary.BigEndian.PutUint32(c0c1[5:9], 0) // zero
	if _, err := rand.Read(c0c1[9:]); err != nil {
		return err
	}
	if _, err := s.conn.Write(c0c1); err != nil {
		return err
	}

	s0s1s2 := make([]byte, 1+2*rtmpHandshakeSize)
	if _, err := readFull(s.conn, s0s1s2); err != nil {
		return err
	}
	s1 := s0s1s2[1 : 1+rtmpHandshakeSize]

	c2 := make([]byte, rtmpHandshakeSize)
	copy(c2, s1)
	_, err := s.conn.Write(c2)
	return err
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// sendConnectAndPublish writes the minimal AMF0 "connect", "createStream"
// and "publish" command sequence on chunk stream 3: connect and
// createStream on message stream 0, publish on message stream 1.
func (s *RTMPSink) sendConnectAndPublish(u *url.URL) error {
	app := strings.TrimPrefix(u.Path, "/")
	streamKey := ""
	if idx := strings.LastIndex(app, "/"); idx >= 0 {
		streamKey = app[idx+1:]
		app = app[:idx]
	}

	connectCmd := encodeAMF0Command("connect", 1, map[string]any{
		"app":      app,
		"type":     "nonprivate",
		"flashVer": "streamcore",
	})
	if err := s.writeChunk(0x14, 0, connectCmd); err != nil {
		return err
	}

	createStreamCmd := encodeAMF0SimpleCommand("createStream", 2)
	if err := s.writeChunk(0x14, 0, createStreamCmd); err != nil {
		return err
	}

	publishCmd := encodeAMF0PublishCommand(streamKey, 3)
	return s.writeChunk(0x14, 1, publishCmd)
}

// writeChunk frames body as one RTMP message on chunk stream 3: a Type 0
// header, then the body in chunkSize pieces separated by Type 3
// continuation headers. Commands and media packets from Write both go
// out through it.
func (s *RTMPSink) writeChunk(msgTypeID byte, streamID uint32, body []byte) error {
	header := make([]byte, 0, 12)
	header = append(header, 0x03) // fmt=0, chunk stream id=3
	header = append(header, 0, 0, 0) // timestamp
	header = append(header, byte(len(body)>>16), byte(len(body)>>8), byte(len(body)))
	header = append(header, msgTypeID)
	sidBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(sidBuf, streamID)
	header = append(header, sidBuf...)

	if _, err := s.conn.Write(header); err != nil {
		return err
	}
	for len(body) > s.chunkSize {
		if _, err := s.conn.Write(body[:s.chunkSize]); err != nil {
			return err
		}
		if _, err := s.conn.Write([]byte{0xC3}); err != nil { // fmt=3, chunk stream id=3
			return err
		}
		body = body[s.chunkSize:]
	}
	_, err := s.conn.Write(body)
	return err
}

func (s *RTMPSink) Write(ctx context.Context, pkt model.Packet) error {
	if s.conn == nil {
		return model.ErrNotConfigured
	}
	msgType := byte(0x09) // video
	if pkt.Type == model.PacketAudio {
		msgType = 0x08
	}
	if err := s.writeChunk(msgType, 1, pkt.Buffer); err != nil {
		s.connected.Set(false)
		return model.NewSinkError(model.ErrSinkWriteFailed, "rtmp", err)
	}
	return nil
}

func (s *RTMPSink) Close() error {
	s.connected.Set(false)
	if s.conn == nil {
		return nil
	}
	_ = s.conn.SetDeadline(time.Now())
	return s.conn.Close()
}

func (s *RTMPSink) Connected() *observable.Value[bool] { return s.connected }
