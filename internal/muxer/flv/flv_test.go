package flv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelav/streamcore/internal/model"
)

func collectTags() (*[][]byte, Listener) {
	tags := &[][]byte{}
	return tags, func(tag []byte) { *tags = append(*tags, append([]byte(nil), tag...)) }
}

func TestNewMuxer_EmitsFileHeaderImmediately(t *testing.T) {
	tags, onTag := collectTags()
	NewMuxer(onTag, nil)
	require.Len(t, *tags, 1)
	assert.Equal(t, []byte("FLV"), (*tags)[0][0:3])
	assert.Equal(t, byte(0x01), (*tags)[0][3])
}

func TestMuxer_AddStreamsEmitMetadata(t *testing.T) {
	tags, onTag := collectTags()
	m := NewMuxer(onTag, nil)

	require.NoError(t, m.AddVideoStream(model.VideoConfig{MimeType: model.MimeH264, Width: 1280, Height: 720}))
	require.NoError(t, m.AddAudioStream(model.AudioConfig{MimeType: model.MimeAAC, SampleRate: 48000, ChannelCount: 2}))
	require.Len(t, *tags, 1, "registering tracks must not emit metadata before the first Write")

	require.NoError(t, m.Write(model.Frame{Mime: model.MimeAAC, PTS: 0, Buffer: []byte{0xAA}, Extra: [][]byte{{0x12, 0x10}}}))
	require.Len(t, *tags, 2, "header + exactly one onMetaData tag on first Write")
	assert.Equal(t, byte(tagTypeScript), (*tags)[1][0])

	require.NoError(t, m.Write(model.Frame{Mime: model.MimeAAC, PTS: 21_333, Buffer: []byte{0xAA}}))
	for _, tag := range (*tags)[2:] {
		assert.NotEqual(t, byte(tagTypeScript), tag[0], "onMetaData must not re-emit on later writes")
	}
}

func TestMuxer_SecondVideoStreamRejected(t *testing.T) {
	_, onTag := collectTags()
	m := NewMuxer(onTag, nil)
	require.NoError(t, m.AddVideoStream(model.VideoConfig{MimeType: model.MimeH264}))
	err := m.AddVideoStream(model.VideoConfig{MimeType: model.MimeH264})
	assert.ErrorIs(t, err, model.ErrUnsupported)
}

func TestMuxer_Write_GatesAudioUntilVideoKeyFrame(t *testing.T) {
	tags, onTag := collectTags()
	m := NewMuxer(onTag, nil)
	require.NoError(t, m.AddVideoStream(model.VideoConfig{MimeType: model.MimeH264, Width: 1280, Height: 720}))
	require.NoError(t, m.AddAudioStream(model.AudioConfig{MimeType: model.MimeAAC, SampleRate: 48000, ChannelCount: 2}))
	before := len(*tags)

	require.NoError(t, m.Write(model.Frame{Mime: model.MimeAAC, PTS: 0, Buffer: []byte{0xAA}, Extra: [][]byte{{0x12, 0x10}}}))
	assert.Len(t, *tags, before+1, "the dropped audio frame still triggers the one-time onMetaData emission")
	assert.Equal(t, byte(tagTypeScript), (*tags)[before][0])
	before = len(*tags)

	sps := []byte{0x00, 0x00, 0x00, 0x01, 0x67, 0x64, 0x00, 0x1F}
	pps := []byte{0x00, 0x00, 0x00, 0x01, 0x68, 0xEB}
	require.NoError(t, m.Write(model.Frame{
		Mime: model.MimeH264, PTS: 0, IsKeyFrame: true,
		Buffer: []byte{0x00, 0x00, 0x00, 0x01, 0x65, 0x01},
		Extra:  [][]byte{sps, pps},
	}))
	assert.Greater(t, len(*tags), before, "the key frame must unblock the stream")

	videoTag := (*tags)[len(*tags)-1]
	assert.Equal(t, byte(tagTypeVideo), videoTag[0])
}

func TestMuxer_WriteVideo_MissingParamsFails(t *testing.T) {
	_, onTag := collectTags()
	m := NewMuxer(onTag, nil)
	require.NoError(t, m.AddVideoStream(model.VideoConfig{MimeType: model.MimeH264}))

	err := m.Write(model.Frame{Mime: model.MimeH264, IsKeyFrame: true, Buffer: []byte{0x65}})
	assert.ErrorIs(t, err, model.ErrMissingCodecConfig)
}

func TestMuxer_WriteAudio_UnknownStreamFails(t *testing.T) {
	_, onTag := collectTags()
	m := NewMuxer(onTag, nil)
	err := m.Write(model.Frame{Mime: model.MimeAAC, Buffer: []byte{0x01}})
	assert.ErrorIs(t, err, model.ErrUnknownStream)
}
