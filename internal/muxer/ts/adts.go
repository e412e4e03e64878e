package ts

// adtsSampleRateIndex is the fixed table §4.1.1 references for the
// 4-bit sampling_frequency_index field.
var adtsSampleRateIndex = map[int]byte{
	96000: 0, 88200: 1, 64000: 2, 48000: 3, 44100: 4, 32000: 5,
	24000: 6, 22050: 7, 16000: 8, 12000: 9, 11025: 10, 8000: 11, 7350: 12,
}

// buildADTSHeader returns the 7-byte ADTS header (no CRC) for an AAC-LC
// frame whose payload is payloadLen bytes.
func buildADTSHeader(sampleRate, channelCount, payloadLen int) []byte {
	freqIdx, ok := adtsSampleRateIndex[sampleRate]
	if !ok {
		freqIdx = adtsSampleRateIndex[44100]
	}
	frameLen := uint16(7 + payloadLen)

	h := make([]byte, 7)
	h[0] = 0xFF
	h[1] = 0xF1 // syncword tail(4)=1111, ID=0, layer=00, protection_absent=1
	const profile = 1 // AAC LC object type (2) minus 1
	h[2] = byte(profile<<6) | byte(freqIdx<<2) | byte((channelCount>>2)&0x01)
	h[3] = byte((channelCount&0x03)<<6) | byte((frameLen>>11)&0x03)
	h[4] = byte((frameLen >> 3) & 0xFF)
	h[5] = byte((frameLen&0x07)<<5) | 0x1F
	h[6] = 0xFC
	return h
}

// WrapADTS prepends an ADTS header to payload.
func WrapADTS(sampleRate, channelCount int, payload []byte) []byte {
	out := make([]byte, 0, 7+len(payload))
	out = append(out, buildADTSHeader(sampleRate, channelCount, len(payload))...)
	out = append(out, payload...)
	return out
}
