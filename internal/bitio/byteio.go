package bitio

// PutUint16BE appends a big-endian uint16.
func PutUint16BE(buf []byte, v uint16) []byte {
	return append(buf, byte(v>>8), byte(v))
}

// PutUint24BE appends a big-endian 24-bit value (top 8 bits of v32 ignored).
func PutUint24BE(buf []byte, v uint32) []byte {
	return append(buf, byte(v>>16), byte(v>>8), byte(v))
}

// PutUint32BE appends a big-endian uint32.
func PutUint32BE(buf []byte, v uint32) []byte {
	return append(buf, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

// PutUint48BE appends a big-endian 48-bit value.
func PutUint48BE(buf []byte, v uint64) []byte {
	return append(buf,
		byte(v>>40), byte(v>>32), byte(v>>24),
		byte(v>>16), byte(v>>8), byte(v))
}

// PutUint64BE appends a big-endian uint64.
func PutUint64BE(buf []byte, v uint64) []byte {
	return append(buf,
		byte(v>>56), byte(v>>48), byte(v>>40), byte(v>>32),
		byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

// Uint16BE reads a big-endian uint16 at offset 0 of b.
func Uint16BE(b []byte) uint16 { return uint16(b[0])<<8 | uint16(b[1]) }

// Uint24BE reads a big-endian 24-bit value at offset 0 of b.
func Uint24BE(b []byte) uint32 {
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}

// Uint32BE reads a big-endian uint32 at offset 0 of b.
func Uint32BE(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
