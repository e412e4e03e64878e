package ts

import "github.com/kestrelav/streamcore/internal/bitio"

// buildAudioSpecificConfig bit-packs a minimal AudioSpecificConfig:
// audioObjectType(5), samplingFrequencyIndex(4) [+24 explicit bits if
// index is the escape value 0xF], channelConfiguration(4), then the three
// GASpecificConfig flag bits.
func buildAudioSpecificConfig(w *bitio.BitWriter, objectType uint64, sampleRate, channelCount int) {
	freqIdx, ok := adtsSampleRateIndex[sampleRate]
	w.PutUint(objectType, 5)
	if !ok {
		w.PutUint(0x0F, 4)
		w.PutUint(uint64(sampleRate), 24)
	} else {
		w.PutUint(uint64(freqIdx), 4)
	}
	w.PutUint(uint64(channelCount), 4)
	// GASpecificConfig, minimal: frameLengthFlag, dependsOnCoreCoder,
	// extensionFlag all 0.
	w.PutBool(false)
	w.PutBool(false)
	w.PutBool(false)
}

// buildStreamMuxConfig writes a single-program/single-layer
// StreamMuxConfig carrying one AudioSpecificConfig.
func buildStreamMuxConfig(w *bitio.BitWriter, objectType uint64, sampleRate, channelCount int) {
	w.PutUint(0, 1) // audioMuxVersion = 0
	w.PutBool(true)  // allStreamsSameTimeFraming
	w.PutUint(0, 6)  // numSubFrames - 1 = 0
	w.PutUint(0, 4)  // numProgram - 1 = 0
	w.PutUint(0, 3)  // numLayer - 1 = 0

	buildAudioSpecificConfig(w, objectType, sampleRate, channelCount)

	w.PutUint(0, 3)    // frameLengthType = 0 (variable, payloadLengthInfo byte-counted)
	w.PutUint(0xFF, 8) // latmBufferFullness

	w.PutBool(false) // otherDataPresent
	w.PutBool(false) // crcCheckPresent
}

// writePayloadLengthInfo emits muxSlotLengthBytes as a run of 0xFF bytes
// plus a final remainder byte, per frameLengthType == 0.
func writePayloadLengthInfo(w *bitio.BitWriter, payloadLen int) {
	n := payloadLen
	for n >= 255 {
		w.PutUint(255, 8)
		n -= 255
	}
	w.PutUint(uint64(n), 8)
}

// WrapLATM builds a LATM AudioMuxElement carrying payload. useSameConfig
// selects the back-reference flag instead of re-emitting StreamMuxConfig;
// objectType is the MPEG-4 audio object type (5 = HE-AAC's SBR extension
// signaling is out of scope here; 2 = AAC LC, used as the base object
// type when callers route HE/HEv2 profiles through LATM).
func WrapLATM(useSameConfig bool, objectType uint64, sampleRate, channelCount int, payload []byte) []byte {
	w := bitio.NewBitWriter(16 + len(payload))
	w.PutBool(useSameConfig)
	if !useSameConfig {
		buildStreamMuxConfig(w, objectType, sampleRate, channelCount)
	}
	writePayloadLengthInfo(w, len(payload))
	w.Align()
	w.PutBytes(payload)
	return w.Bytes()
}
