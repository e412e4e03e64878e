package sink

import (
	"math"

	"github.com/kestrelav/streamcore/internal/bitio"
)

const (
	amf0Number = 0x00
	amf0String = 0x02
	amf0Null   = 0x05
	amf0Object = 0x03
)

func amfString(s string) []byte {
	out := make([]byte, 0, 3+len(s))
	out = append(out, amf0String)
	out = bitio.PutUint16BE(out, uint16(len(s)))
	out = append(out, []byte(s)...)
	return out
}

func amfNumber(v float64) []byte {
	out := make([]byte, 0, 9)
	out = append(out, amf0Number)
	out = bitio.PutUint64BE(out, math.Float64bits(v))
	return out
}

// encodeAMF0Command builds a "connect" command with an AMF0 command
// object carrying simple string properties.
func encodeAMF0Command(name string, txID float64, props map[string]any) []byte {
	out := append([]byte{}, amfString(name)...)
	out = append(out, amfNumber(txID)...)
	out = append(out, amf0Object)
	for k, v := range props {
		out = bitio.PutUint16BE(out, uint16(len(k)))
		out = append(out, []byte(k)...)
		if s, ok := v.(string); ok {
			out = append(out, amfString(s)...)
		}
	}
	out = bitio.PutUint24BE(out, 0x000009)
	return out
}

// encodeAMF0SimpleCommand builds a command with a null command-object
// (e.g. createStream).
func encodeAMF0SimpleCommand(name string, txID float64) []byte {
	out := append([]byte{}, amfString(name)...)
	out = append(out, amfNumber(txID)...)
	out = append(out, amf0Null)
	return out
}

// encodeAMF0PublishCommand builds the "publish" command with the stream
// key and publish type "live".
func encodeAMF0PublishCommand(streamKey string, txID float64) []byte {
	out := append([]byte{}, amfString("publish")...)
	out = append(out, amfNumber(txID)...)
	out = append(out, amf0Null)
	out = append(out, amfString(streamKey)...)
	out = append(out, amfString("live")...)
	return out
}
