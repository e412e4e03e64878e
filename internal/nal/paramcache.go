// Package nal adapts codec-parameter-set handling for Annex-B H.264/HEVC
// streams: caching the most recent SPS/PPS/VPS seen on a track and
// prepending an access-unit delimiter plus those parameter sets onto key
// frames, the way the TS muxer requires on every key frame per §4.1.
package nal

import (
	"sync"

	"github.com/kestrelav/streamcore/internal/bitio"
)

// H.264 NAL unit types (nal_unit_type, low 5 bits of the NAL header byte).
const (
	H264NALSliceNonIDR = 1
	H264NALSliceIDR    = 5
	H264NALSEI         = 6
	H264NALSPS         = 7
	H264NALPPS         = 8
	H264NALAUD         = 9
)

// HEVC NAL unit types (nal_unit_type, bits 1-6 of the first header byte).
const (
	HEVCNALTrailR  = 1
	HEVCNALIDRWRAD = 19
	HEVCNALIDRNLP  = 20
	HEVCNALVPS     = 32
	HEVCNALSPS     = 33
	HEVCNALPPS     = 34
	HEVCNALAUD     = 35
)

// AUDH264 is the access-unit-delimiter NAL the TS muxer prepends to every
// H.264 key frame: start code + nal_ref_idc/type byte (0x09) + primary
// pic type byte (0xF0, "any slice type").
var AUDH264 = []byte{0x00, 0x00, 0x00, 0x01, 0x09, 0xF0}

// AUDHEVC is the HEVC equivalent: start code + 2-byte NAL header (type 35)
// + primary pic type byte.
var AUDHEVC = []byte{0x00, 0x00, 0x00, 0x01, 0x46, 0x01, 0x50}

func h264Type(nalu []byte) int {
	if len(nalu) == 0 {
		return -1
	}
	return int(nalu[0] & 0x1F)
}

func hevcType(nalu []byte) int {
	if len(nalu) == 0 {
		return -1
	}
	return int((nalu[0] >> 1) & 0x3F)
}

// IsH264IDR reports whether nalu (start-code stripped) is an IDR slice.
func IsH264IDR(nalu []byte) bool { return h264Type(nalu) == H264NALSliceIDR }

// IsHEVCIDR reports whether nalu (start-code stripped) is an IDR slice.
func IsHEVCIDR(nalu []byte) bool {
	t := hevcType(nalu)
	return t == HEVCNALIDRWRAD || t == HEVCNALIDRNLP
}

// ParamSetCache holds the most recently seen parameter-set NALs for one
// video track, guarded by a mutex since the muxer may read it from the
// sink-writing worker while a concurrent reconfigure updates it.
type ParamSetCache struct {
	mu sync.RWMutex

	h264SPS []byte
	h264PPS []byte

	hevcVPS []byte
	hevcSPS []byte
	hevcPPS []byte
}

// NewParamSetCache returns an empty cache.
func NewParamSetCache() *ParamSetCache { return &ParamSetCache{} }

// ObserveH264 scans extra (each entry a possibly start-code-prefixed NAL)
// and remembers any SPS/PPS found.
func (c *ParamSetCache) ObserveH264(extra [][]byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range extra {
		n := bitio.StripStartCode(e)
		switch h264Type(n) {
		case H264NALSPS:
			c.h264SPS = append([]byte(nil), n...)
		case H264NALPPS:
			c.h264PPS = append([]byte(nil), n...)
		}
	}
}

// ObserveHEVC scans extra and remembers any VPS/SPS/PPS found.
func (c *ParamSetCache) ObserveHEVC(extra [][]byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range extra {
		n := bitio.StripStartCode(e)
		switch hevcType(n) {
		case HEVCNALVPS:
			c.hevcVPS = append([]byte(nil), n...)
		case HEVCNALSPS:
			c.hevcSPS = append([]byte(nil), n...)
		case HEVCNALPPS:
			c.hevcPPS = append([]byte(nil), n...)
		}
	}
}

// HasH264Params reports whether both SPS and PPS have been observed.
func (c *ParamSetCache) HasH264Params() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.h264SPS) > 0 && len(c.h264PPS) > 0
}

// HasHEVCParams reports whether VPS, SPS and PPS have all been observed.
func (c *ParamSetCache) HasHEVCParams() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.hevcVPS) > 0 && len(c.hevcSPS) > 0 && len(c.hevcPPS) > 0
}

// BuildH264KeyFramePrefix returns AUD + SPS + PPS (each 4-byte start-code
// prefixed), using extra if it carries fresh parameter sets, otherwise
// falling back to the cache. Reports false if neither source has both
// SPS and PPS.
func (c *ParamSetCache) BuildH264KeyFramePrefix(extra [][]byte) ([]byte, bool) {
	c.ObserveH264(extra)
	if !c.HasH264Params() {
		return nil, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := append([]byte(nil), AUDH264...)
	out = append(out, 0, 0, 0, 1)
	out = append(out, c.h264SPS...)
	out = append(out, 0, 0, 0, 1)
	out = append(out, c.h264PPS...)
	return out, true
}

// BuildHEVCKeyFramePrefix is the HEVC analogue of BuildH264KeyFramePrefix.
func (c *ParamSetCache) BuildHEVCKeyFramePrefix(extra [][]byte) ([]byte, bool) {
	c.ObserveHEVC(extra)
	if !c.HasHEVCParams() {
		return nil, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := append([]byte(nil), AUDHEVC...)
	out = append(out, 0, 0, 0, 1)
	out = append(out, c.hevcVPS...)
	out = append(out, 0, 0, 0, 1)
	out = append(out, c.hevcSPS...)
	out = append(out, 0, 0, 0, 1)
	out = append(out, c.hevcPPS...)
	return out, true
}
