package ts

// pcrFromMicros splits a frame pts (microseconds) into the 33-bit PCR
// base (27MHz/300) and 9-bit extension, per §4.1:
// `pcr_ext = (timestamp_us * 27) mod 300`.
func pcrFromMicros(us int64) (base uint64, ext uint16) {
	ticks27M := uint64(us) * 27
	base = (ticks27M / 300) & ((1 << 33) - 1)
	ext = uint16(ticks27M % 300)
	return base, ext
}

// padAdaptationField returns a stuffing-only adaptation field occupying
// exactly totalLen bytes (including its own length byte).
func padAdaptationField(totalLen int) []byte {
	if totalLen <= 0 {
		return nil
	}
	if totalLen == 1 {
		return []byte{0x00}
	}
	afLen := totalLen - 1
	out := make([]byte, 0, totalLen)
	out = append(out, byte(afLen))
	out = append(out, 0x00) // flags byte, all zero
	for i := 1; i < afLen; i++ {
		out = append(out, 0xFF)
	}
	return out
}

// pcrAdaptationField returns an adaptation field carrying a PCR, padded
// with trailing stuffing bytes out to totalLen bytes.
func pcrAdaptationField(pcrBase uint64, pcrExt uint16, totalLen int) []byte {
	const pcrBodyLen = 7 // flags byte + 6 PCR bytes
	if totalLen < 1+pcrBodyLen {
		totalLen = 1 + pcrBodyLen
	}
	afLen := totalLen - 1
	out := make([]byte, 0, totalLen)
	out = append(out, byte(afLen))
	out = append(out, 0x10) // PCR_flag = 1, all other flags 0

	reservedExt := uint64(0x3F)<<9 | uint64(pcrExt&0x1FF)
	pcr48 := (pcrBase<<15)&0xFFFFFFFF8000 | reservedExt
	out = append(out,
		byte(pcr48>>40), byte(pcr48>>32), byte(pcr48>>24),
		byte(pcr48>>16), byte(pcr48>>8), byte(pcr48))

	for i := 1 + pcrBodyLen; i < totalLen; i++ {
		out = append(out, 0xFF)
	}
	return out
}

// packetize splits data into 188-byte TS packets carrying pid, advancing
// *cc (mod 16) once per packet. If pointerField is true a single 0x00
// pointer_field byte precedes data in the first packet, as PSI sections
// require. If pcrUs is non-nil, the first packet carries a PCR
// adaptation field derived from *pcrUs.
func packetize(pid int, data []byte, pointerField bool, pcrUs *int64, cc *byte) [][]byte {
	if pointerField {
		withPointer := make([]byte, 0, len(data)+1)
		withPointer = append(withPointer, 0x00)
		withPointer = append(withPointer, data...)
		data = withPointer
	}

	var packets [][]byte
	cursor := 0
	first := true
	for cursor < len(data) || first {
		remaining := data[cursor:]
		pusi := byte(0)
		if first {
			pusi = 1
		}

		var af []byte
		const headerLen = 4
		payloadBudget := PacketSize - headerLen

		if first && pcrUs != nil {
			base, ext := pcrFromMicros(*pcrUs)
			const pcrAFLen = 8
			budget := payloadBudget - pcrAFLen
			n := budget
			if len(remaining) < n {
				n = len(remaining)
			}
			extra := budget - n
			af = pcrAdaptationField(base, ext, pcrAFLen+extra)
			payloadBudget -= len(af)
		} else if len(remaining) < payloadBudget {
			stuffLen := payloadBudget - len(remaining)
			af = padAdaptationField(stuffLen)
			payloadBudget -= len(af)
		}

		n := payloadBudget
		if len(remaining) < n {
			n = len(remaining)
		}

		afc := byte(0x01) // payload only
		if len(af) > 0 {
			afc = 0x03 // adaptation field + payload
		}

		pkt := make([]byte, 0, PacketSize)
		pkt = append(pkt, 0x47)
		pkt = append(pkt, (pusi<<6)|byte((pid>>8)&0x1F))
		pkt = append(pkt, byte(pid&0xFF))
		pkt = append(pkt, (afc<<4)|(*cc&0x0F))
		pkt = append(pkt, af...)
		pkt = append(pkt, remaining[:n]...)

		packets = append(packets, pkt)
		cursor += n
		*cc = (*cc + 1) & 0x0F
		first = false
	}
	return packets
}
