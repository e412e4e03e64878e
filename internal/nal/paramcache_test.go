package nal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func annexB(nalType byte) []byte {
	return []byte{0x00, 0x00, 0x00, 0x01, nalType}
}

func TestParamSetCache_H264_BuildsKeyFramePrefix(t *testing.T) {
	c := NewParamSetCache()
	assert.False(t, c.HasH264Params())

	sps := append(annexB(byte(H264NALSPS)), 0x64, 0x00, 0x1F)
	pps := annexB(byte(H264NALPPS))

	prefix, ok := c.BuildH264KeyFramePrefix([][]byte{sps, pps})
	require.True(t, ok)
	assert.True(t, c.HasH264Params())
	assert.Contains(t, string(prefix), string(AUDH264))
}

func TestParamSetCache_H264_MissingParamsFails(t *testing.T) {
	c := NewParamSetCache()
	_, ok := c.BuildH264KeyFramePrefix(nil)
	assert.False(t, ok)
}

func TestParamSetCache_H264_CachesAcrossCalls(t *testing.T) {
	c := NewParamSetCache()
	sps := append(annexB(byte(H264NALSPS)), 0x64, 0x00, 0x1F)
	pps := annexB(byte(H264NALPPS))
	_, ok := c.BuildH264KeyFramePrefix([][]byte{sps, pps})
	require.True(t, ok)

	// A later key frame carries no fresh params; the cache must still serve them.
	prefix, ok := c.BuildH264KeyFramePrefix(nil)
	require.True(t, ok)
	assert.NotEmpty(t, prefix)
}

func TestParamSetCache_HEVC_BuildsKeyFramePrefix(t *testing.T) {
	c := NewParamSetCache()
	vps := []byte{0x00, 0x00, 0x00, 0x01, byte(HEVCNALVPS) << 1}
	sps := []byte{0x00, 0x00, 0x00, 0x01, byte(HEVCNALSPS) << 1}
	pps := []byte{0x00, 0x00, 0x00, 0x01, byte(HEVCNALPPS) << 1}

	prefix, ok := c.BuildHEVCKeyFramePrefix([][]byte{vps, sps, pps})
	require.True(t, ok)
	assert.True(t, c.HasHEVCParams())
	assert.Contains(t, string(prefix), string(AUDHEVC))
}

func TestIsH264IDR(t *testing.T) {
	assert.True(t, IsH264IDR([]byte{byte(H264NALSliceIDR)}))
	assert.False(t, IsH264IDR([]byte{byte(H264NALSliceNonIDR)}))
	assert.False(t, IsH264IDR(nil))
}

func TestIsHEVCIDR(t *testing.T) {
	assert.True(t, IsHEVCIDR([]byte{byte(HEVCNALIDRWRAD) << 1}))
	assert.True(t, IsHEVCIDR([]byte{byte(HEVCNALIDRNLP) << 1}))
	assert.False(t, IsHEVCIDR([]byte{byte(HEVCNALTrailR) << 1}))
}
