package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelav/streamcore/internal/model"
)

type recordingSink struct {
	writes []model.Frame
	pids   []int
}

func (s *recordingSink) Write(pid int, frame model.Frame) error {
	s.pids = append(s.pids, pid)
	s.writes = append(s.writes, frame)
	return nil
}

func TestRouter_RebasesTimestampsToFirstFrame(t *testing.T) {
	snk := &recordingSink{}
	r := New(snk, false)
	r.Register(1, model.AudioConfig{MimeType: model.MimeAAC, SampleRate: 48000, ChannelCount: 2})

	require.NoError(t, r.Route(model.Frame{Mime: model.MimeAAC, PTS: 10_000, Buffer: []byte{0x01}}))
	require.NoError(t, r.Route(model.Frame{Mime: model.MimeAAC, PTS: 30_000, Buffer: []byte{0x02}}))

	require.Len(t, snk.writes, 2)
	assert.Equal(t, int64(0), snk.writes[0].PTS)
	assert.Equal(t, int64(20_000), snk.writes[1].PTS)
}

func TestRouter_UnregisteredMimeFails(t *testing.T) {
	r := New(&recordingSink{}, false)
	err := r.Route(model.Frame{Mime: model.MimeH264, Buffer: []byte{0x01}})
	assert.ErrorIs(t, err, model.ErrUnknownStream)
}

func TestRouter_UnregisterStopsRouting(t *testing.T) {
	snk := &recordingSink{}
	r := New(snk, false)
	r.Register(1, model.AudioConfig{MimeType: model.MimeAAC})
	r.Unregister(model.MimeAAC)

	err := r.Route(model.Frame{Mime: model.MimeAAC, Buffer: []byte{0x01}})
	assert.ErrorIs(t, err, model.ErrUnknownStream)
}

func TestRouter_ConfigOnlyFrameIsSwallowed(t *testing.T) {
	snk := &recordingSink{}
	r := New(snk, false)
	r.Register(1, model.AudioConfig{MimeType: model.MimeAAC})

	require.NoError(t, r.Route(model.Frame{Mime: model.MimeAAC, Extra: [][]byte{{0x01}}}))
	assert.Empty(t, snk.writes)
}

func TestRouter_GatesAudioBeforeFirstVideoKeyFrame(t *testing.T) {
	snk := &recordingSink{}
	r := New(snk, true)
	r.Register(1, model.AudioConfig{MimeType: model.MimeAAC})
	r.Register(2, model.VideoConfig{MimeType: model.MimeH264, Width: 1280, Height: 720})

	require.NoError(t, r.Route(model.Frame{Mime: model.MimeAAC, PTS: 0, Buffer: []byte{0x01}}))
	assert.Empty(t, snk.writes, "audio must be gated until the first video key frame")

	require.NoError(t, r.Route(model.Frame{Mime: model.MimeH264, PTS: 0, IsKeyFrame: true, Buffer: []byte{0x65}}))
	require.NoError(t, r.Route(model.Frame{Mime: model.MimeAAC, PTS: 10_000, Buffer: []byte{0x02}}))

	require.Len(t, snk.writes, 2)
	assert.Equal(t, model.MimeH264, snk.writes[0].Mime)
	assert.Equal(t, model.MimeAAC, snk.writes[1].Mime)
}

func TestRouter_ReconfiguredFingerprintFails(t *testing.T) {
	snk := &recordingSink{}
	r := New(snk, false)
	r.Register(1, model.VideoConfig{MimeType: model.MimeH264, Width: 1280, Height: 720})

	sameFP := model.FingerprintOf(model.VideoConfig{MimeType: model.MimeH264, Width: 1280, Height: 720})
	require.NoError(t, r.Route(model.Frame{
		Mime: model.MimeH264, PTS: 0, Buffer: []byte{0x65},
		Format: map[string]any{model.FormatKeyFingerprint: sameFP},
	}))
	require.Len(t, snk.writes, 1, "a matching fingerprint routes normally")

	changedFP := model.FingerprintOf(model.VideoConfig{MimeType: model.MimeH264, Width: 1920, Height: 1080})
	err := r.Route(model.Frame{
		Mime: model.MimeH264, PTS: 33_000, Buffer: []byte{0x65},
		Format: map[string]any{model.FormatKeyFingerprint: changedFP},
	})
	assert.ErrorIs(t, err, model.ErrUnknownStream)
	assert.Len(t, snk.writes, 1, "the reconfigured frame must not reach the sink")
}

func TestRouter_NoFingerprintCarriedRoutesNormally(t *testing.T) {
	snk := &recordingSink{}
	r := New(snk, false)
	r.Register(1, model.AudioConfig{MimeType: model.MimeAAC, SampleRate: 48000})

	require.NoError(t, r.Route(model.Frame{Mime: model.MimeAAC, PTS: 0, Buffer: []byte{0x01}}))
	assert.Len(t, snk.writes, 1, "a frame with no Format fingerprint is not reconfigure-checked")
}

func TestRouter_NoGateWhenDisabled(t *testing.T) {
	snk := &recordingSink{}
	r := New(snk, false)
	r.Register(1, model.AudioConfig{MimeType: model.MimeAAC})
	r.Register(2, model.VideoConfig{MimeType: model.MimeH264})

	require.NoError(t, r.Route(model.Frame{Mime: model.MimeAAC, PTS: 0, Buffer: []byte{0x01}}))
	assert.Len(t, snk.writes, 1)
}
