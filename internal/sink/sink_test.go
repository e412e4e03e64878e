package sink

import (
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelav/streamcore/internal/model"
)

func TestFileSink_WritesInArrivalOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.ts")
	s := NewFileSink()
	ctx := context.Background()

	require.NoError(t, s.Open(ctx, model.MediaDescriptor{URI: path}))
	assert.True(t, s.Connected().Get())

	require.NoError(t, s.Write(ctx, model.Packet{Buffer: []byte("first-")}))
	require.NoError(t, s.Write(ctx, model.Packet{Buffer: []byte("second")}))
	require.NoError(t, s.Close())
	assert.False(t, s.Connected().Get())

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "first-second", string(got))
}

func TestFileSink_BrotliSuffixCompresses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.ts.br")
	s := NewFileSink()
	ctx := context.Background()

	require.NoError(t, s.Open(ctx, model.MediaDescriptor{URI: path}))
	require.NoError(t, s.Write(ctx, model.Packet{Buffer: []byte("payload")}))
	require.NoError(t, s.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotEqual(t, []byte("payload"), raw, "brotli-compressed output should not match the plain payload")
}

func TestNetworkSink_WritesToListener(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	received := make(chan []byte, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 64)
		n, _ := io.ReadFull(conn, buf[:5])
		received <- buf[:n]
	}()

	s := NewNetworkSink()
	ctx := context.Background()
	require.NoError(t, s.Open(ctx, model.MediaDescriptor{URI: "tcp://" + ln.Addr().String()}))
	assert.True(t, s.Connected().Get())

	require.NoError(t, s.Write(ctx, model.Packet{Buffer: []byte("hello")}))
	assert.Equal(t, []byte("hello"), <-received)

	require.NoError(t, s.Close())
	assert.False(t, s.Connected().Get())
}

func TestNetworkSink_WriteBeforeOpenFails(t *testing.T) {
	s := NewNetworkSink()
	err := s.Write(context.Background(), model.Packet{Buffer: []byte("x")})
	assert.ErrorIs(t, err, model.ErrNotConfigured)
}
