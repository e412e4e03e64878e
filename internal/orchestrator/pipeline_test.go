package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelav/streamcore/internal/encoder"
	"github.com/kestrelav/streamcore/internal/model"
)

func audioCfg() model.AudioConfig {
	return model.AudioConfig{MimeType: model.MimeAAC, SampleRate: 48000, ChannelCount: 2, Profile: model.AACProfileLC}
}

func videoCfg() model.VideoConfig {
	return model.VideoConfig{MimeType: model.MimeH264, Width: 1280, Height: 720, FPS: 30}
}

func descriptor(t *testing.T, container model.ContainerType) model.MediaDescriptor {
	t.Helper()
	return model.MediaDescriptor{
		URI:           t.TempDir() + "/out.bin",
		ContainerType: container,
		SinkType:      model.SinkFile,
	}
}

func TestPipeline_StateTransitions(t *testing.T) {
	p := New(nil, nil)
	assert.Equal(t, model.StateIdle, p.State().Get())

	require.NoError(t, p.SetAudioConfig(audioCfg()))
	assert.Equal(t, model.StateConfigured, p.State().Get())

	require.NoError(t, p.Open(context.Background(), descriptor(t, model.ContainerTS)))
	assert.Equal(t, model.StateOpen, p.State().Get())
	assert.True(t, p.IsOpen().Get())
	firstTrace := p.TraceID()
	assert.NotEmpty(t, firstTrace)

	p.SetEncoders(encoder.NewPassthroughAudio(), encoder.NewPassthroughVideo())
	require.NoError(t, p.audioEnc.Configure(audioCfg()))

	require.NoError(t, p.StartStream(context.Background()))
	assert.Equal(t, model.StateStreaming, p.State().Get())
	assert.True(t, p.IsStreaming().Get())

	require.NoError(t, p.StopStream())
	assert.Equal(t, model.StateOpen, p.State().Get())
	assert.False(t, p.IsStreaming().Get())

	require.NoError(t, p.Close())
	assert.Equal(t, model.StateConfigured, p.State().Get())

	require.NoError(t, p.Release())
	assert.Equal(t, model.StateReleased, p.State().Get())
}

func TestPipeline_TraceIDChangesAcrossOpenCycles(t *testing.T) {
	p := New(nil, nil)
	require.NoError(t, p.SetAudioConfig(audioCfg()))
	require.NoError(t, p.Open(context.Background(), descriptor(t, model.ContainerTS)))
	first := p.TraceID()
	require.NoError(t, p.Close())

	require.NoError(t, p.Open(context.Background(), descriptor(t, model.ContainerTS)))
	second := p.TraceID()
	assert.NotEqual(t, first, second)
}

// TestPipeline_IllegalTransitionsReturnStateError walks every operation
// attempted from Idle that requires a later state, asserting each one
// fails with a *StateError rather than panicking, per the
// never-panics-under-illegal-sequences property.
func TestPipeline_IllegalTransitionsReturnStateError(t *testing.T) {
	p := New(nil, nil)

	err := p.Open(context.Background(), descriptor(t, model.ContainerTS))
	require.Error(t, err)
	var stateErr *StateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, model.StateIdle, stateErr.From)

	err = p.StartStream(context.Background())
	require.Error(t, err)
	require.ErrorAs(t, err, &stateErr)

	err = p.StopStream()
	require.Error(t, err)
	require.ErrorAs(t, err, &stateErr)

	err = p.Close()
	require.Error(t, err)
	require.ErrorAs(t, err, &stateErr)

	require.True(t, errors.Is(err, model.ErrStateViolation))
}

// TestPipeline_StartStreamWithoutEncoderFails covers the "configured track
// with no bound encoder" guard: start_stream must fail cleanly and leave
// the pipeline in Open, not Streaming.
func TestPipeline_StartStreamWithoutEncoderFails(t *testing.T) {
	p := New(nil, nil)
	require.NoError(t, p.SetAudioConfig(audioCfg()))
	require.NoError(t, p.Open(context.Background(), descriptor(t, model.ContainerTS)))

	err := p.StartStream(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrMissingCodecConfig))
	assert.Equal(t, model.StateOpen, p.State().Get())
}

// TestPipeline_RestartReconfiguresVideoEncoder exercises the restart
// semantics: stop_stream must release and reconfigure the video encoder,
// and start_stream must be safe to call repeatedly.
func TestPipeline_RestartReconfiguresVideoEncoder(t *testing.T) {
	p := New(nil, nil)
	require.NoError(t, p.SetVideoConfig(videoCfg()))
	require.NoError(t, p.Open(context.Background(), descriptor(t, model.ContainerTS)))

	ve := encoder.NewPassthroughVideo()
	p.SetEncoders(nil, ve)
	require.NoError(t, ve.Configure(videoCfg()))

	for i := 0; i < 20; i++ {
		require.NoError(t, p.StartStream(context.Background()))
		require.NoError(t, p.StopStream())
	}
	assert.Equal(t, model.StateOpen, p.State().Get())
}

func TestPipeline_ReleaseIsIdempotentFromAnyState(t *testing.T) {
	p := New(nil, nil)
	require.NoError(t, p.Release())
	require.NoError(t, p.Release())
	assert.Equal(t, model.StateReleased, p.State().Get())

	p2 := New(nil, nil)
	require.NoError(t, p2.SetAudioConfig(audioCfg()))
	require.NoError(t, p2.Open(context.Background(), descriptor(t, model.ContainerTS)))
	p2.SetEncoders(encoder.NewPassthroughAudio(), nil)
	require.NoError(t, p2.audioEnc.Configure(audioCfg()))
	require.NoError(t, p2.StartStream(context.Background()))
	require.NoError(t, p2.Release())
	assert.Equal(t, model.StateReleased, p2.State().Get())
}
