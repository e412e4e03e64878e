// Package fmp4 is a hand-rolled fragmented-MP4 box writer: ftyp/moov once,
// then a moof+mdat pair per fragment. Box construction mirrors the
// header-peek idiom the codebase already uses for box *parsing* (size +
// four-character type, then a body), applied in reverse for writing.
package fmp4

import "github.com/kestrelav/streamcore/internal/bitio"

// box wraps body in a standard 32-bit-size ISO-BMFF box.
func box(boxType string, body []byte) []byte {
	out := make([]byte, 0, 8+len(body))
	out = bitio.PutUint32BE(out, uint32(8+len(body)))
	out = append(out, []byte(boxType)...)
	out = append(out, body...)
	return out
}

// fullBox is a box whose body begins with version(1)+flags(3).
func fullBox(boxType string, version byte, flags uint32, body []byte) []byte {
	head := make([]byte, 0, 4+len(body))
	head = append(head, version)
	head = bitio.PutUint24BE(head, flags)
	head = append(head, body...)
	return box(boxType, head)
}
