// Package codec: this file detects which codecs mediacommon's mpegts
// package actually supports, at init time, so SupportedInTS stays correct
// as upstream adds or removes codecs without a code change here.
package codec

import (
	"github.com/bluenviron/mediacommon/v2/pkg/formats/mpegts"
)

var mediacommonSupportedCodecs = struct {
	H264  bool
	H265  bool
	AAC   bool
	Opus  bool
}{}

func init() {
	var h264 mpegts.Codec = &mpegts.CodecH264{}
	mediacommonSupportedCodecs.H264 = !isUnsupportedCodec(h264)

	var h265 mpegts.Codec = &mpegts.CodecH265{}
	mediacommonSupportedCodecs.H265 = !isUnsupportedCodec(h265)

	var aac mpegts.Codec = &mpegts.CodecMPEG4Audio{}
	mediacommonSupportedCodecs.AAC = !isUnsupportedCodec(aac)

	var opus mpegts.Codec = &mpegts.CodecOpus{}
	mediacommonSupportedCodecs.Opus = !isUnsupportedCodec(opus)
}

func isUnsupportedCodec(c mpegts.Codec) bool {
	_, isUnsupported := c.(*mpegts.CodecUnsupported)
	return isUnsupported
}
