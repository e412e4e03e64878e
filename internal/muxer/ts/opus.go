package ts

import "github.com/kestrelav/streamcore/internal/bitio"

// WrapOpus prepends the control header §4.1 specifies for Opus-over-TS:
// an 11-bit prefix (0x3FF), a 5-bit flags field, and the payload length
// encoded as a run of 0xFF bytes plus a final remainder byte.
func WrapOpus(flags byte, payload []byte) []byte {
	w := bitio.NewBitWriter(4 + len(payload))
	w.PutUint(0x3FF, 11)
	w.PutUint(uint64(flags&0x1F), 5)

	n := len(payload)
	for n >= 255 {
		w.PutUint(0xFF, 8)
		n -= 255
	}
	w.PutUint(uint64(n), 8)

	w.Align()
	w.PutBytes(payload)
	return w.Bytes()
}
