// Package codec reports which of streamcore's codec-agnostic model.Mime
// values the MPEG-TS container can actually carry, grounded on what
// bluenviron/mediacommon/v2 exposes for mpegts payloads.
package codec

import "github.com/kestrelav/streamcore/internal/model"

// SupportedInTS reports whether mime can be packaged into an MPEG-TS PES
// stream. The router and TS muxer only ever see the mimes streamcore's own
// encoders produce, but this stays a real capability check rather than a
// static allow-list so it tracks whatever mediacommon actually demuxes.
func SupportedInTS(mime model.Mime) bool {
	switch mime {
	case model.MimeH264:
		return mediacommonSupportedCodecs.H264
	case model.MimeHEVC:
		return mediacommonSupportedCodecs.H265
	case model.MimeAAC:
		return mediacommonSupportedCodecs.AAC
	case model.MimeOpus:
		return mediacommonSupportedCodecs.Opus
	default:
		return false
	}
}
