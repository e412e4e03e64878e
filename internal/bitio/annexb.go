package bitio

// StartCodeSize returns the length of the Annex-B start code at the front
// of b (3 for 00 00 01, 4 for 00 00 00 01), or 0 if b does not begin with
// one.
func StartCodeSize(b []byte) int {
	if len(b) >= 4 && b[0] == 0 && b[1] == 0 && b[2] == 0 && b[3] == 1 {
		return 4
	}
	if len(b) >= 3 && b[0] == 0 && b[1] == 0 && b[2] == 1 {
		return 3
	}
	return 0
}

// StripStartCode removes a leading Annex-B start code from b, if present.
func StripStartCode(b []byte) []byte {
	if n := StartCodeSize(b); n > 0 {
		return b[n:]
	}
	return b
}

// SplitAnnexB splits a contiguous Annex-B byte stream into individual NAL
// units (start codes removed). It tolerates a mix of 3- and 4-byte start
// codes.
func SplitAnnexB(b []byte) [][]byte {
	var nalus [][]byte
	i := 0
	start := -1
	for i < len(b) {
		if n := StartCodeSize(b[i:]); n > 0 {
			if start >= 0 {
				end := i
				for end > start && b[end-1] == 0 {
					end--
				}
				nalus = append(nalus, b[start:end])
			}
			i += n
			start = i
			continue
		}
		i++
	}
	if start >= 0 && start < len(b) {
		nalus = append(nalus, b[start:])
	}
	return nalus
}

// JoinAnnexB writes nalus back out as an Annex-B stream, each prefixed
// with a 4-byte start code.
func JoinAnnexB(nalus [][]byte) []byte {
	out := make([]byte, 0, 4*len(nalus)+sumLen(nalus))
	for _, n := range nalus {
		out = append(out, 0, 0, 0, 1)
		out = append(out, n...)
	}
	return out
}

func sumLen(nalus [][]byte) int {
	total := 0
	for _, n := range nalus {
		total += len(n)
	}
	return total
}
