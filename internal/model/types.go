// Package model holds the value types shared by every stage of the
// streaming pipeline: frames produced by encoders, packets produced by
// muxers, the track/service registry, and the descriptor/config records
// used to configure them.
package model

// Mime identifies a codec from the closed set the pipeline understands.
type Mime string

const (
	MimeH264     Mime = "h264"
	MimeHEVC     Mime = "hevc"
	MimeAV1      Mime = "av1"
	MimeVP9      Mime = "vp9"
	MimeAAC      Mime = "aac"
	MimeOpus     Mime = "opus"
	MimeRawAudio Mime = "raw-audio"
)

// IsVideo reports whether m identifies a video codec.
func (m Mime) IsVideo() bool {
	switch m {
	case MimeH264, MimeHEVC, MimeAV1, MimeVP9:
		return true
	default:
		return false
	}
}

// IsAudio reports whether m identifies an audio codec.
func (m Mime) IsAudio() bool {
	switch m {
	case MimeAAC, MimeOpus, MimeRawAudio:
		return true
	default:
		return false
	}
}

// AACProfile distinguishes the AAC object types the TS/FLV muxers must wrap
// differently (ADTS for LC, LATM otherwise).
type AACProfile string

const (
	AACProfileLC   AACProfile = "LC"
	AACProfileHE   AACProfile = "HE"
	AACProfileHEv2 AACProfile = "HEv2"
)

// Frame is a unit flowing between an encoder and the FrameRouter/muxer.
type Frame struct {
	Buffer     []byte
	Mime       Mime
	PTS        int64 // microseconds, monotonic within a track
	DTS        int64 // microseconds; equals PTS when not set explicitly
	IsKeyFrame bool  // ignored for audio; treated as always true
	Extra      [][]byte
	Format     map[string]any
}

// EffectiveDTS returns DTS when the frame set one explicitly (non-zero and
// not after PTS), otherwise PTS.
func (f Frame) EffectiveDTS() int64 {
	if f.DTS != 0 && f.DTS <= f.PTS {
		return f.DTS
	}
	return f.PTS
}

// FormatKeyFingerprint is the Frame.Format key an encoder sets to the
// Fingerprint of the StreamConfig it last negotiated, so a downstream
// FrameRouter can detect a silent reconfigure without importing the
// encoder's config type.
const FormatKeyFingerprint = "fingerprint"

// Fingerprint identifies a track's negotiated parameters: the subset of a
// StreamConfig that, if it changes mid-session under the same mime, means
// the track was reconfigured rather than merely continuing.
type Fingerprint struct {
	Mime         Mime
	SampleRate   int
	ChannelCount int
	Width        int
	Height       int
}

// FingerprintOf computes cfg's Fingerprint.
func FingerprintOf(cfg StreamConfig) Fingerprint {
	switch c := cfg.(type) {
	case AudioConfig:
		return Fingerprint{Mime: c.MimeType, SampleRate: c.SampleRate, ChannelCount: c.ChannelCount}
	case VideoConfig:
		return Fingerprint{Mime: c.MimeType, Width: c.Width, Height: c.Height}
	default:
		return Fingerprint{Mime: cfg.Mime()}
	}
}

// PacketType classifies the container bytes a muxer hands to a sink.
type PacketType string

const (
	PacketVideo    PacketType = "video"
	PacketAudio    PacketType = "audio"
	PacketMetadata PacketType = "metadata"
	PacketMixed    PacketType = "mixed"
)

// Packet is a unit flowing between a muxer and a Sink.
type Packet struct {
	Buffer []byte
	PTS    int64
	Type   PacketType
}

// StreamConfig is either an AudioConfig or a VideoConfig, type-asserted by
// muxer code that needs codec-specific detail.
type StreamConfig interface {
	Mime() Mime
	Validate() error
}

// AudioConfig describes an audio track as configured at add-stream time.
type AudioConfig struct {
	MimeType     Mime
	SampleRate   int
	ChannelCount int
	ByteFormat   string
	StartBitrate int
	Profile      AACProfile
}

func (c AudioConfig) Mime() Mime { return c.MimeType }

// VideoConfig describes a video track as configured at add-stream time.
type VideoConfig struct {
	MimeType     Mime
	Width        int
	Height       int
	FPS          float64
	StartBitrate int
	Profile      string
	Level        string
	DynamicRange string
}

func (c VideoConfig) Mime() Mime { return c.MimeType }

// Stream is a registered media track inside a muxer.
type Stream struct {
	Config     StreamConfig
	PID        int
	SendHeader bool // latched false after headers are emitted once
}

// ServiceInfo identifies a logical program in an MPEG-TS multiplex.
type ServiceInfo struct {
	ServiceType  byte
	ID           uint16
	Name         string
	ProviderName string
}

// Service is a logical program: a PMT plus its ordered streams.
type Service struct {
	Info    ServiceInfo
	PMTPID  int
	PCRPID  int
	Streams []*Stream
}

// ContainerType is the wire format a MediaDescriptor targets.
type ContainerType string

const (
	ContainerTS   ContainerType = "TS"
	ContainerFLV  ContainerType = "FLV"
	ContainerMP4  ContainerType = "MP4"
	ContainerRTMP ContainerType = "RTMP"
	ContainerSRT  ContainerType = "SRT"
)

// SinkType is the transport class backing a MediaDescriptor.
type SinkType string

const (
	SinkFile    SinkType = "file"
	SinkContent SinkType = "content"
	SinkNetwork SinkType = "network"
)

// MediaDescriptor addresses an output destination.
type MediaDescriptor struct {
	URI           string
	ContainerType ContainerType
	SinkType      SinkType
}

// PipelineState is a node in the orchestrator's lifecycle state machine.
type PipelineState string

const (
	StateIdle       PipelineState = "idle"
	StateConfigured PipelineState = "configured"
	StateOpen       PipelineState = "open"
	StateStreaming  PipelineState = "streaming"
	StateReleased   PipelineState = "released"
)
