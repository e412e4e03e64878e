// Package ts implements a hand-rolled MPEG-TS (ISO/IEC 13818-1) muxer:
// PAT/PMT/SDT table construction and retransmission policy, PES framing
// with PTS/DTS and PCR encoding, AAC ADTS/LATM and Opus control-header
// wrapping, and 188-byte packetization with continuity counters.
//
// The bit-exact algorithms are hand-written rather than delegated to a
// muxing library because the retransmission cadence, output batching, and
// CRC/PCR arithmetic are independently testable properties that a
// black-box muxer would not expose control over.
package ts

const (
	PacketSize = 188

	PIDPAT = 0x0000
	PIDSDT = 0x0011
	PIDNIT = 0x0010

	pidBase = 0x0100
	pidMax  = 0x1FFA

	// Table retransmission cadence, in TS packets emitted since the last
	// table packet of that kind.
	patPacketPeriod = 40
	sdtPacketPeriod = 200

	// MaxOutputPacketNumber bounds how many 188-byte packets accumulate
	// in a single call to the output listener, amortizing I/O while
	// keeping latency bounded.
	MaxOutputPacketNumber = 7

	tableIDPAT = 0x00
	tableIDPMT = 0x02
	tableIDSDT = 0x42

	streamTypeH264 = 0x1B
	streamTypeHEVC = 0x24
	streamTypeAAC  = 0x0F // ADTS; LATM uses 0x11
	streamTypeLATM = 0x11
	streamTypeAV1  = 0x06 // private data; the PMT writes no registration descriptor
	streamTypeVP9  = 0x06
	streamTypeOpus = 0x06

	streamIDVideo      = 0xE0
	streamIDAudio      = 0xC0
	pesMaxPayloadBytes = 0xFFFF - 3 // bound past which PES_packet_length is forced to 0
)
