package flv

import (
	"math"

	"github.com/kestrelav/streamcore/internal/bitio"
	"github.com/kestrelav/streamcore/internal/model"
)

// AMF0 type markers used by onMetaData.
const (
	amf0Number     = 0x00
	amf0Boolean    = 0x01
	amf0String     = 0x02
	amf0ECMAArray  = 0x08
	amf0ObjectEnd  = 0x09
)

func amfString(s string) []byte {
	out := make([]byte, 0, 3+len(s))
	out = bitio.PutUint16BE(out, uint16(len(s)))
	out = append(out, []byte(s)...)
	return out
}

func amfNumberProp(name string, v float64) []byte {
	out := make([]byte, 0, 2+len(name)+9)
	out = append(out, amfString(name)...)
	out = append(out, amf0Number)
	out = bitio.PutUint64BE(out, math.Float64bits(v))
	return out
}

// buildOnMetaData assembles the "onMetaData" AMF0 script-data tag body
// summarizing the registered tracks.
func buildOnMetaData(video *trackState, audio *trackState) []byte {
	out := make([]byte, 0, 128)
	out = append(out, amf0String)
	out = append(out, amfString("onMetaData")...)

	props := make([]byte, 0, 128)
	count := uint32(0)

	if video != nil {
		if vc, ok := video.config.(model.VideoConfig); ok {
			props = append(props, amfNumberProp("width", float64(vc.Width))...)
			count++
			props = append(props, amfNumberProp("height", float64(vc.Height))...)
			count++
			props = append(props, amfNumberProp("framerate", vc.FPS)...)
			count++
			props = append(props, amfNumberProp("videodatarate", float64(vc.StartBitrate)/1000)...)
			count++
		}
	}
	if audio != nil {
		if ac, ok := audio.config.(model.AudioConfig); ok {
			props = append(props, amfNumberProp("audiosamplerate", float64(ac.SampleRate))...)
			count++
			props = append(props, amfNumberProp("audiochannels", float64(ac.ChannelCount))...)
			count++
			props = append(props, amfNumberProp("audiodatarate", float64(ac.StartBitrate)/1000)...)
			count++
		}
	}

	out = append(out, amf0ECMAArray)
	out = bitio.PutUint32BE(out, count)
	out = append(out, props...)
	out = bitio.PutUint24BE(out, 0x000009) // empty-name + object-end marker
	return out
}
