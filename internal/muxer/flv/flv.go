// Package flv implements a hand-rolled Adobe FLV 10.1 muxer: the 13-byte
// file header, the onMetaData script tag, AVC/HEVC sequence headers, and
// coded-frame tags — including the enhanced-RTMP extended video tag
// header for HEVC/AV1/VP9, per §4.2.
package flv

import (
	"log/slog"

	"github.com/kestrelav/streamcore/internal/bitio"
	"github.com/kestrelav/streamcore/internal/model"
	"github.com/kestrelav/streamcore/internal/nal"
)

const (
	tagTypeAudio = 8
	tagTypeVideo = 9
	tagTypeScript = 18

	flvVideoCodecAVC = 7

	flvFrameTypeKey   = 1
	flvFrameTypeInter = 2

	avcPacketTypeSeqHeader = 0
	avcPacketTypeNALU      = 1

	aacPacketTypeSeqHeader = 0
	aacPacketTypeRaw       = 1
)

var fourCCHEVC = [4]byte{'h', 'v', 'c', '1'}
var fourCCAV1 = [4]byte{'a', 'v', '0', '1'}
var fourCCVP9 = [4]byte{'v', 'p', '0', '9'}

// Listener receives one framed FLV tag (including its trailing
// previous_tag_size) at a time, in emission order.
type Listener func(tag []byte)

// Muxer accepts at most one audio and one video stream and emits an FLV
// byte stream through Listener.
type Muxer struct {
	logger *slog.Logger
	onTag  Listener

	audio *trackState
	video *trackState

	metadataSent bool

	startupLatched bool
	startUpTimeUs  int64
}

type trackState struct {
	config       model.StreamConfig
	sentSeqHdr   bool
}

// NewMuxer returns an FLV muxer. It immediately emits the file header.
func NewMuxer(onTag Listener, logger *slog.Logger) *Muxer {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Muxer{logger: logger, onTag: onTag}
	m.emitFileHeader()
	return m
}

func (m *Muxer) emitFileHeader() {
	h := make([]byte, 0, 13)
	h = append(h, 'F', 'L', 'V', 0x01)
	h = append(h, 0x05) // type flags: audio+video present
	h = bitio.PutUint32BE(h, 9) // data offset
	h = bitio.PutUint32BE(h, 0) // previous_tag_size0
	m.emit(h)
}

func (m *Muxer) emit(b []byte) {
	if m.onTag != nil {
		m.onTag(b)
	}
}

// AddVideoStream registers the single permitted video track.
func (m *Muxer) AddVideoStream(cfg model.VideoConfig) error {
	if m.video != nil {
		return model.NewStreamError(model.ErrUnsupported, cfg.Mime(), 0, "second video stream")
	}
	m.video = &trackState{config: cfg}
	return nil
}

// AddAudioStream registers the single permitted audio track.
func (m *Muxer) AddAudioStream(cfg model.AudioConfig) error {
	if m.audio != nil {
		return model.NewStreamError(model.ErrUnsupported, cfg.Mime(), 0, "second audio stream")
	}
	m.audio = &trackState{config: cfg}
	return nil
}

// ensureMetadata emits the single onMetaData script tag once the track set
// registered by the time of the first Write is known, mirroring fmp4's
// ensureInit. A later AddAudioStream/AddVideoStream call (mid-session track
// addition) does not re-emit it.
func (m *Muxer) ensureMetadata() {
	if m.metadataSent {
		return
	}
	m.metadataSent = true
	body := buildOnMetaData(m.video, m.audio)
	m.emitTag(tagTypeScript, 0, body)
}

// Write routes an encoded frame to the appropriate tag builder, applying
// the startup key-frame gate and pts rebasing of §4.2.
func (m *Muxer) Write(frame model.Frame) error {
	m.ensureMetadata()

	if !m.startupLatched {
		if frame.Mime.IsVideo() {
			if !frame.IsKeyFrame {
				return nil // dropped: waiting for first video key frame
			}
			m.startUpTimeUs = frame.PTS
			m.startupLatched = true
		} else if m.video == nil {
			m.startUpTimeUs = frame.PTS
			m.startupLatched = true
		} else {
			return nil // audio gated until video's first key frame
		}
	}

	rebasedUs := frame.PTS - m.startUpTimeUs
	if rebasedUs < 0 {
		rebasedUs = 0
	}
	tsMs := uint32(rebasedUs / 1000)

	if frame.Mime.IsVideo() {
		return m.writeVideo(frame, tsMs)
	}
	return m.writeAudio(frame, tsMs)
}

func (m *Muxer) writeVideo(frame model.Frame, tsMs uint32) error {
	if m.video == nil {
		return model.NewStreamError(model.ErrUnknownStream, frame.Mime, 0, "no video stream registered")
	}

	if !m.video.sentSeqHdr {
		hdr, err := buildVideoSequenceHeader(frame)
		if err != nil {
			return err
		}
		if err := m.emitVideoTag(frame.Mime, flvFrameTypeKey, avcPacketTypeSeqHeader, 0, hdr); err != nil {
			return err
		}
		m.video.sentSeqHdr = true
	}

	payload := frame.Buffer
	if frame.Mime == model.MimeH264 || frame.Mime == model.MimeHEVC {
		payload = lengthPrefixNALUs(bitio.SplitAnnexB(frame.Buffer))
	}

	frameType := flvFrameTypeInter
	if frame.IsKeyFrame {
		frameType = flvFrameTypeKey
	}
	return m.emitVideoTag(frame.Mime, frameType, avcPacketTypeNALU, tsMs, payload)
}

func (m *Muxer) writeAudio(frame model.Frame, tsMs uint32) error {
	if m.audio == nil {
		return model.NewStreamError(model.ErrUnknownStream, frame.Mime, 0, "no audio stream registered")
	}
	ac, _ := m.audio.config.(model.AudioConfig)

	if !m.audio.sentSeqHdr && frame.Mime == model.MimeAAC {
		if len(frame.Extra) == 0 {
			return model.NewStreamError(model.ErrMissingCodecConfig, frame.Mime, 0, "missing AudioSpecificConfig")
		}
		body := buildAudioTagHeader(ac)
		body = append(body, byte(aacPacketTypeSeqHeader))
		body = append(body, frame.Extra[0]...)
		m.emitTag(tagTypeAudio, tsMs, body)
		m.audio.sentSeqHdr = true
	}

	body := buildAudioTagHeader(ac)
	if frame.Mime == model.MimeAAC {
		body = append(body, byte(aacPacketTypeRaw))
	}
	body = append(body, frame.Buffer...)
	m.emitTag(tagTypeAudio, tsMs, body)
	return nil
}

func (m *Muxer) emitVideoTag(mime model.Mime, frameType, packetType int, tsMs uint32, body []byte) error {
	var tagBody []byte
	switch mime {
	case model.MimeH264:
		tagBody = append(tagBody, byte(frameType<<4|flvVideoCodecAVC))
		tagBody = append(tagBody, byte(packetType))
		tagBody = append(tagBody, 0, 0, 0) // composition time, unused here
		tagBody = append(tagBody, body...)
	case model.MimeHEVC:
		tagBody = buildExtendedVideoHeader(fourCCHEVC, frameType, packetType, body)
	case model.MimeAV1:
		tagBody = buildExtendedVideoHeader(fourCCAV1, frameType, packetType, body)
	case model.MimeVP9:
		tagBody = buildExtendedVideoHeader(fourCCVP9, frameType, packetType, body)
	default:
		return model.NewStreamError(model.ErrUnsupported, mime, 0, "unsupported video codec")
	}
	m.emitTag(tagTypeVideo, tsMs, tagBody)
	return nil
}

// buildExtendedVideoHeader builds the enhanced-RTMP extended video tag
// header: IsExHeader bit (0x80) | frame type in bits 4-6 | packet type in
// the low nibble, then FourCC, then the codec payload.
func buildExtendedVideoHeader(fourCC [4]byte, frameType, packetType int, body []byte) []byte {
	out := make([]byte, 0, 5+len(body))
	out = append(out, byte(0x80|(frameType<<4)|packetType))
	out = append(out, fourCC[:]...)
	out = append(out, body...)
	return out
}

func buildAudioTagHeader(ac model.AudioConfig) []byte {
	soundFormat := byte(10) // AAC
	if ac.MimeType != model.MimeAAC {
		soundFormat = 0
	}
	soundRate := byte(3) // 44kHz bucket; AAC ignores this field at decode
	soundSize := byte(1) // 16-bit
	soundType := byte(0)
	if ac.ChannelCount == 2 {
		soundType = 1
	}
	return []byte{soundFormat<<4 | soundRate<<2 | soundSize<<1 | soundType}
}

func lengthPrefixNALUs(nalus [][]byte) []byte {
	out := make([]byte, 0)
	for _, n := range nalus {
		out = bitio.PutUint32BE(out, uint32(len(n)))
		out = append(out, n...)
	}
	return out
}

// buildVideoSequenceHeader assembles the AVCDecoderConfigurationRecord
// (H.264) or HEVCDecoderConfigurationRecord (HEVC), requiring SPS/PPS
// (and VPS for HEVC) from extra.
func buildVideoSequenceHeader(frame model.Frame) ([]byte, error) {
	switch frame.Mime {
	case model.MimeH264:
		sps, pps := extractH264Params(frame.Extra)
		if sps == nil || pps == nil {
			return nil, model.NewStreamError(model.ErrMissingCodecConfig, frame.Mime, 0, "missing SPS/PPS")
		}
		return buildAVCDecoderConfigurationRecord(sps, pps), nil
	case model.MimeHEVC:
		vps, sps, pps := extractHEVCParams(frame.Extra)
		if vps == nil || sps == nil || pps == nil {
			return nil, model.NewStreamError(model.ErrMissingCodecConfig, frame.Mime, 0, "missing VPS/SPS/PPS")
		}
		return buildHEVCDecoderConfigurationRecord(vps, sps, pps), nil
	default:
		if len(frame.Extra) == 0 {
			return nil, model.NewStreamError(model.ErrMissingCodecConfig, frame.Mime, 0, "missing codec config")
		}
		return frame.Extra[0], nil
	}
}

func extractH264Params(extra [][]byte) (sps, pps []byte) {
	for _, e := range extra {
		n := bitio.StripStartCode(e)
		if len(n) == 0 {
			continue
		}
		switch n[0] & 0x1F {
		case nal.H264NALSPS:
			sps = n
		case nal.H264NALPPS:
			pps = n
		}
	}
	return sps, pps
}

func extractHEVCParams(extra [][]byte) (vps, sps, pps []byte) {
	for _, e := range extra {
		n := bitio.StripStartCode(e)
		if len(n) == 0 {
			continue
		}
		switch (n[0] >> 1) & 0x3F {
		case nal.HEVCNALVPS:
			vps = n
		case nal.HEVCNALSPS:
			sps = n
		case nal.HEVCNALPPS:
			pps = n
		}
	}
	return vps, sps, pps
}

func buildAVCDecoderConfigurationRecord(sps, pps []byte) []byte {
	out := make([]byte, 0, 11+len(sps)+len(pps))
	out = append(out, 0x01)             // configurationVersion
	out = append(out, sps[1], sps[2], sps[3]) // profile/compat/level from SPS
	out = append(out, 0xFF)             // reserved + lengthSizeMinusOne=3
	out = append(out, 0xE1)             // reserved + numOfSPS=1
	out = bitio.PutUint16BE(out, uint16(len(sps)))
	out = append(out, sps...)
	out = append(out, 0x01) // numOfPPS
	out = bitio.PutUint16BE(out, uint16(len(pps)))
	out = append(out, pps...)
	return out
}

func buildHEVCDecoderConfigurationRecord(vps, sps, pps []byte) []byte {
	out := make([]byte, 0, 23+len(vps)+len(sps)+len(pps))
	out = append(out, 0x01)          // configurationVersion
	out = append(out, 0x00)          // profile space/tier/idc, simplified
	out = bitio.PutUint32BE(out, 0)  // compatibility flags, simplified
	out = append(out, make([]byte, 6)...) // constraint flags
	out = append(out, 0x00)          // level_idc
	out = bitio.PutUint16BE(out, 0xF000) // min_spatial_segmentation_idc
	out = append(out, 0xFC)          // parallelismType
	out = append(out, 0xFC)          // chromaFormat
	out = append(out, 0xF8)          // bitDepthLumaMinus8
	out = append(out, 0xF8)          // bitDepthChromaMinus8
	out = bitio.PutUint16BE(out, 0)  // avgFrameRate
	out = append(out, 0x0F)          // constantFrameRate/numTemporalLayers/temporalIdNested/lengthSizeMinusOne=3

	out = append(out, 0x03) // numOfArrays
	out = appendHEVCArray(out, nal.HEVCNALVPS, vps)
	out = appendHEVCArray(out, nal.HEVCNALSPS, sps)
	out = appendHEVCArray(out, nal.HEVCNALPPS, pps)
	return out
}

func appendHEVCArray(out []byte, nalType int, payload []byte) []byte {
	out = append(out, byte(nalType&0x3F))
	out = bitio.PutUint16BE(out, 1) // numNalus
	out = bitio.PutUint16BE(out, uint16(len(payload)))
	out = append(out, payload...)
	return out
}

func (m *Muxer) emitTag(tagType byte, tsMs uint32, body []byte) {
	tag := make([]byte, 0, 11+len(body)+4)
	tag = append(tag, tagType)
	tag = bitio.PutUint24BE(tag, uint32(len(body)))
	tag = bitio.PutUint24BE(tag, tsMs&0xFFFFFF)
	tag = append(tag, byte(tsMs>>24)) // timestamp_ext
	tag = bitio.PutUint24BE(tag, 0)   // stream_id
	tag = append(tag, body...)
	tag = bitio.PutUint32BE(tag, uint32(11+len(body)))
	m.emit(tag)
}
