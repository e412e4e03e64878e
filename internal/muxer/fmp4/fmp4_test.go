package fmp4

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelav/streamcore/internal/model"
)

func collectSegments() (*[][]byte, Listener) {
	segs := &[][]byte{}
	return segs, func(seg []byte) { *segs = append(*segs, append([]byte(nil), seg...)) }
}

func TestMuxer_FirstWriteEmitsInitSegment(t *testing.T) {
	segs, onSeg := collectSegments()
	m := NewMuxer(onSeg, nil)
	require.NoError(t, m.AddVideoStream(model.VideoConfig{MimeType: model.MimeH264, Width: 1280, Height: 720}))
	require.NoError(t, m.AddAudioStream(model.AudioConfig{MimeType: model.MimeAAC, SampleRate: 48000, ChannelCount: 2}))

	require.NoError(t, m.Write(model.Frame{Mime: model.MimeH264, PTS: 0, IsKeyFrame: true, Buffer: []byte{0x65}}))

	require.Len(t, *segs, 1)
	init := (*segs)[0]
	assert.True(t, bytes.Contains(init, []byte("ftyp")))
	assert.True(t, bytes.Contains(init, []byte("moov")))
	assert.True(t, bytes.Contains(init, []byte("trak")))
	assert.True(t, bytes.Contains(init, []byte("mvex")))
}

func TestMuxer_KeyFrameFlushesPriorFragment(t *testing.T) {
	segs, onSeg := collectSegments()
	m := NewMuxer(onSeg, nil)
	require.NoError(t, m.AddVideoStream(model.VideoConfig{MimeType: model.MimeH264, Width: 1280, Height: 720}))

	require.NoError(t, m.Write(model.Frame{Mime: model.MimeH264, PTS: 0, IsKeyFrame: true, Buffer: []byte{0x65}}))
	require.NoError(t, m.Write(model.Frame{Mime: model.MimeH264, PTS: 33_000, Buffer: []byte{0x61}}))
	require.Len(t, *segs, 1, "buffered frames wait for the next key frame or an explicit Flush")

	require.NoError(t, m.Write(model.Frame{Mime: model.MimeH264, PTS: 66_000, IsKeyFrame: true, Buffer: []byte{0x65}}))
	require.Len(t, *segs, 2, "the second key frame must flush the first group as a fragment")

	frag := (*segs)[1]
	assert.True(t, bytes.Contains(frag, []byte("moof")))
	assert.True(t, bytes.Contains(frag, []byte("mdat")))
}

func TestMuxer_Flush_EmitsBufferedFrames(t *testing.T) {
	segs, onSeg := collectSegments()
	m := NewMuxer(onSeg, nil)
	require.NoError(t, m.AddVideoStream(model.VideoConfig{MimeType: model.MimeH264, Width: 1280, Height: 720}))

	require.NoError(t, m.Write(model.Frame{Mime: model.MimeH264, PTS: 0, IsKeyFrame: true, Buffer: []byte{0x65}}))
	require.Len(t, *segs, 1)

	m.Flush()
	require.Len(t, *segs, 2)

	m.Flush()
	assert.Len(t, *segs, 2, "flushing with nothing buffered is a no-op")
}

func TestMuxer_AudioOnlyFlushesEveryFortyEightFrames(t *testing.T) {
	segs, onSeg := collectSegments()
	m := NewMuxer(onSeg, nil)
	require.NoError(t, m.AddAudioStream(model.AudioConfig{MimeType: model.MimeAAC, SampleRate: 48000, ChannelCount: 2}))

	for i := 0; i < 48; i++ {
		require.NoError(t, m.Write(model.Frame{Mime: model.MimeAAC, PTS: int64(i) * 21_333, Buffer: []byte{0xAA}}))
	}
	require.Len(t, *segs, 2, "init segment plus one fragment after 48 buffered audio frames")
}

func TestMuxer_SecondAudioStreamRejected(t *testing.T) {
	_, onSeg := collectSegments()
	m := NewMuxer(onSeg, nil)
	require.NoError(t, m.AddAudioStream(model.AudioConfig{MimeType: model.MimeAAC}))
	err := m.AddAudioStream(model.AudioConfig{MimeType: model.MimeAAC})
	assert.ErrorIs(t, err, model.ErrUnsupported)
}
