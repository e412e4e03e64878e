package ts

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/kestrelav/streamcore/internal/model"
	"github.com/kestrelav/streamcore/internal/nal"
)

// streamState is the muxer's private view of a registered Stream: its
// assigned PID, the config it was added with, and per-track mux state
// (continuity counter, parameter-set cache for video).
type streamState struct {
	pid        int
	config     model.StreamConfig
	sendHeader bool
	cc         byte
	params     *nal.ParamSetCache // non-nil for h264/hevc streams
}

// serviceState is the muxer's private view of a registered Service.
type serviceState struct {
	info    model.ServiceInfo
	pmtPID  int
	pmtCC   *byte
	streams []*streamState
	version uint8
}

func (s *serviceState) pcrPID() int {
	for _, st := range s.streams {
		if st.config.Mime().IsVideo() {
			return st.pid
		}
	}
	if len(s.streams) > 0 {
		return s.streams[0].pid
	}
	return s.pmtPID
}

// Listener receives a batch of concatenated 188-byte TS packets (a
// multiple of PacketSize bytes).
type Listener func(batch []byte)

// Muxer produces an MPEG-TS byte stream from registered services and
// streams, per ISO/IEC 13818-1.
type Muxer struct {
	mu sync.Mutex

	logger *slog.Logger
	onPkt  Listener

	transportStreamID uint16
	services          []*serviceState
	usedPIDs          map[int]bool

	patCC, sdtCC       byte
	patVersion         uint8
	sdtVersion         uint8
	packetsSincePAT    int
	packetsSinceSDT    int

	started  bool
	released bool
}

// NewMuxer returns a Muxer that invokes onPkt for every output batch.
func NewMuxer(transportStreamID uint16, onPkt Listener, logger *slog.Logger) *Muxer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Muxer{
		logger:             logger,
		onPkt:              onPkt,
		transportStreamID:  transportStreamID,
		usedPIDs:           make(map[int]bool),
		patCC:              0,
		sdtCC:              0,
	}
}

// AddService registers a new service. Fails if a service with the same
// info.ID is already registered.
func (m *Muxer) AddService(info model.ServiceInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.services {
		if s.info.ID == info.ID {
			return model.NewStreamError(model.ErrInvalidConfig, "", 0, fmt.Sprintf("service %d already registered", info.ID))
		}
	}
	m.services = append(m.services, &serviceState{info: info})
	m.patVersion = (m.patVersion + 1) % 32
	m.packetsSincePAT = patPacketPeriod // force immediate retransmission
	return nil
}

// RemoveService unregisters a service and frees its streams' PIDs. The
// PAT no longer advertises the removed service's PMT PID after this call.
func (m *Muxer) RemoveService(serviceID uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, s := range m.services {
		if s.info.ID == serviceID {
			delete(m.usedPIDs, s.pmtPID)
			for _, st := range s.streams {
				delete(m.usedPIDs, st.pid)
			}
			m.services = append(m.services[:i], m.services[i+1:]...)
			m.patVersion = (m.patVersion + 1) % 32
			m.packetsSincePAT = patPacketPeriod
			return nil
		}
	}
	return model.NewStreamError(model.ErrUnknownStream, "", 0, fmt.Sprintf("service %d not registered", serviceID))
}

func (m *Muxer) findService(serviceID uint16) *serviceState {
	for _, s := range m.services {
		if s.info.ID == serviceID {
			return s
		}
	}
	return nil
}

// allocatePID scans from pidBase for the first value not already in use,
// up to pidMax.
func (m *Muxer) allocatePID() (int, error) {
	for pid := pidBase; pid <= pidMax; pid++ {
		if !m.usedPIDs[pid] {
			m.usedPIDs[pid] = true
			return pid, nil
		}
	}
	return 0, model.NewStreamError(model.ErrExhausted, "", 0, "PID space exhausted")
}

// AddStreams registers configs under service, returning the PID assigned
// to each. Bumps the service's PMT version.
func (m *Muxer) AddStreams(serviceID uint16, configs []model.StreamConfig) (map[model.StreamConfig]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	svc := m.findService(serviceID)
	if svc == nil {
		return nil, model.NewStreamError(model.ErrUnknownStream, "", 0, fmt.Sprintf("service %d not registered", serviceID))
	}

	result := make(map[model.StreamConfig]int, len(configs))
	for _, cfg := range configs {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		pid, err := m.allocatePID()
		if err != nil {
			return nil, err
		}
		ss := &streamState{pid: pid, config: cfg, sendHeader: true}
		if cfg.Mime() == model.MimeH264 || cfg.Mime() == model.MimeHEVC {
			ss.params = nal.NewParamSetCache()
		}
		svc.streams = append(svc.streams, ss)
		result[cfg] = pid
	}

	if svc.pmtPID == 0 {
		pmtPID, err := m.allocatePID()
		if err != nil {
			return nil, err
		}
		svc.pmtPID = pmtPID
	}

	svc.version = (svc.version + 1) % 32
	m.packetsSincePAT = patPacketPeriod
	return result, nil
}

// AddStream adds cfg to the first registered service, creating a default
// service if none exists yet.
func (m *Muxer) AddStream(cfg model.StreamConfig) (int, error) {
	m.mu.Lock()
	if len(m.services) == 0 {
		m.services = append(m.services, &serviceState{info: model.ServiceInfo{ID: 1, Name: "Service01", ProviderName: "streamcore"}})
		m.patVersion = (m.patVersion + 1) % 32
		m.packetsSincePAT = patPacketPeriod
	}
	serviceID := m.services[0].info.ID
	m.mu.Unlock()

	pids, err := m.AddStreams(serviceID, []model.StreamConfig{cfg})
	if err != nil {
		return 0, err
	}
	return pids[cfg], nil
}

// RemoveStreams removes the listed PIDs from service and frees them.
func (m *Muxer) RemoveStreams(serviceID uint16, pids []int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	svc := m.findService(serviceID)
	if svc == nil {
		return model.NewStreamError(model.ErrUnknownStream, "", 0, fmt.Sprintf("service %d not registered", serviceID))
	}
	want := make(map[int]bool, len(pids))
	for _, p := range pids {
		want[p] = true
	}
	kept := svc.streams[:0]
	for _, st := range svc.streams {
		if want[st.pid] {
			delete(m.usedPIDs, st.pid)
			continue
		}
		kept = append(kept, st)
	}
	svc.streams = kept
	svc.version = (svc.version + 1) % 32
	m.packetsSincePAT = patPacketPeriod
	return nil
}

// StartStream marks the muxer ready to accept Write calls.
func (m *Muxer) StartStream() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = true
	m.packetsSincePAT = patPacketPeriod // force tables on first write
	m.packetsSinceSDT = sdtPacketPeriod
}

// StopStream clears all services and streams, freeing every PID.
func (m *Muxer) StopStream() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = false
	m.services = nil
	m.usedPIDs = make(map[int]bool)
}

// Release stops the muxer permanently; Write after Release returns
// ErrStateViolation, never a runtime panic.
func (m *Muxer) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.released = true
	m.services = nil
	m.usedPIDs = nil
}

func (m *Muxer) findStream(pid int) (*serviceState, *streamState) {
	for _, s := range m.services {
		for _, st := range s.streams {
			if st.pid == pid {
				return s, st
			}
		}
	}
	return nil, nil
}

// Write transforms frame into TS packets for the stream registered at pid
// and emits them through the configured Listener.
func (m *Muxer) Write(pid int, frame model.Frame) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.released || !m.started {
		return model.ErrStateViolation
	}

	svc, st := m.findStream(pid)
	if st == nil {
		return model.NewStreamError(model.ErrUnknownStream, frame.Mime, pid, "pid not registered")
	}

	payload, err := m.wrapPayload(st, frame)
	if err != nil {
		return err
	}

	var batch [][]byte

	forcePAT := frame.Mime.IsVideo() && frame.IsKeyFrame
	if forcePAT || m.packetsSincePAT >= patPacketPeriod {
		batch = append(batch, m.emitPAT()...)
		batch = append(batch, m.emitPMT(svc)...)
		m.packetsSincePAT = 0
	}
	if m.packetsSinceSDT >= sdtPacketPeriod {
		batch = append(batch, m.emitSDT()...)
		m.packetsSinceSDT = 0
	}

	streamID := streamIDAudio
	if frame.Mime.IsVideo() {
		streamID = streamIDVideo
	}
	pes := buildPES(byte(streamID), frame.PTS, frame.EffectiveDTS(), payload)

	var pcrUs *int64
	if frame.Mime.IsVideo() && frame.IsKeyFrame {
		p := frame.PTS
		pcrUs = &p
	}
	pesPackets := packetize(pid, pes, false, pcrUs, &st.cc)
	batch = append(batch, pesPackets...)

	m.packetsSincePAT += len(batch)
	m.packetsSinceSDT += len(batch)

	m.flush(batch)
	return nil
}

// wrapPayload applies the codec-specific frame-to-PES translation of
// §4.1: AUD + parameter-set prepending for H.264/HEVC, ADTS/LATM wrapping
// for AAC, control-header wrapping for Opus.
func (m *Muxer) wrapPayload(st *streamState, frame model.Frame) ([]byte, error) {
	switch frame.Mime {
	case model.MimeH264:
		if !frame.IsKeyFrame {
			return frame.Buffer, nil
		}
		prefix, ok := st.params.BuildH264KeyFramePrefix(frame.Extra)
		if !ok {
			return nil, model.NewStreamError(model.ErrMissingCodecConfig, frame.Mime, st.pid, "key frame missing SPS/PPS")
		}
		out := make([]byte, 0, len(prefix)+4+len(frame.Buffer))
		out = append(out, prefix...)
		out = append(out, 0, 0, 0, 1)
		out = append(out, frame.Buffer...)
		return out, nil

	case model.MimeHEVC:
		if !frame.IsKeyFrame {
			return frame.Buffer, nil
		}
		prefix, ok := st.params.BuildHEVCKeyFramePrefix(frame.Extra)
		if !ok {
			return nil, model.NewStreamError(model.ErrMissingCodecConfig, frame.Mime, st.pid, "key frame missing VPS/SPS/PPS")
		}
		out := make([]byte, 0, len(prefix)+4+len(frame.Buffer))
		out = append(out, prefix...)
		out = append(out, 0, 0, 0, 1)
		out = append(out, frame.Buffer...)
		return out, nil

	case model.MimeAAC:
		ac, _ := st.config.(model.AudioConfig)
		if ac.Profile == model.AACProfileLC || ac.Profile == "" {
			return WrapADTS(ac.SampleRate, ac.ChannelCount, frame.Buffer), nil
		}
		useSame := !st.sendHeader
		st.sendHeader = false
		return WrapLATM(useSame, 2, ac.SampleRate, ac.ChannelCount, frame.Buffer), nil

	case model.MimeOpus:
		return WrapOpus(0, frame.Buffer), nil

	case model.MimeAV1, model.MimeVP9:
		return frame.Buffer, nil

	default:
		return nil, model.NewStreamError(model.ErrUnsupported, frame.Mime, st.pid, "unknown codec mime")
	}
}

func (m *Muxer) emitPAT() [][]byte {
	pat := buildPAT(m.transportStreamID, m.patVersion, m.services)
	return packetize(PIDPAT, pat, true, nil, &m.patCC)
}

func (m *Muxer) emitPMT(svc *serviceState) [][]byte {
	if svc.pmtCC == nil {
		cc := byte(0)
		svc.pmtCC = &cc
	}
	pmt := buildPMT(svc, svc.version)
	return packetize(svc.pmtPID, pmt, true, nil, svc.pmtCC)
}

func (m *Muxer) emitSDT() [][]byte {
	sdt := buildSDT(m.transportStreamID, m.sdtVersion, m.services)
	return packetize(PIDSDT, sdt, true, nil, &m.sdtCC)
}

// flush delivers packets to the listener in chunks of at most
// MaxOutputPacketNumber, preserving order so table packets always
// precede the PES packets generated in the same Write call.
func (m *Muxer) flush(packets [][]byte) {
	if m.onPkt == nil {
		return
	}
	for i := 0; i < len(packets); i += MaxOutputPacketNumber {
		end := i + MaxOutputPacketNumber
		if end > len(packets) {
			end = len(packets)
		}
		buf := make([]byte, 0, PacketSize*(end-i))
		for _, p := range packets[i:end] {
			buf = append(buf, p...)
		}
		m.onPkt(buf)
	}
}
