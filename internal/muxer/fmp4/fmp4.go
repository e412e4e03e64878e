package fmp4

import (
	"log/slog"
	"sync"

	"github.com/kestrelav/streamcore/internal/bitio"
	"github.com/kestrelav/streamcore/internal/model"
)

const (
	timescale = 90000 // 90kHz, matches the TS muxer's clock for consistency

	trackIDVideo = 1
	trackIDAudio = 2
)

// Listener receives one fragment's bytes (moof+mdat, or the init segment)
// at a time.
type Listener func(buf []byte)

// Muxer accepts at most one audio and one video stream and emits an
// initialization segment once, then one moof+mdat fragment per group of
// frames starting on a video key frame (or, audio-only, every
// audioFragmentSize frames).
type Muxer struct {
	mu sync.Mutex

	logger *slog.Logger
	onSeg  Listener

	video *model.VideoConfig
	audio *model.AudioConfig

	initSent    bool
	sequenceNum uint32

	pendingVideo []model.Frame
	pendingAudio []model.Frame
	audioSinceFrag int
}

// NewMuxer returns an fMP4 muxer.
func NewMuxer(onSeg Listener, logger *slog.Logger) *Muxer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Muxer{logger: logger, onSeg: onSeg}
}

// AddVideoStream registers the video track. The init segment is emitted
// by the first Write, from the tracks registered by then.
func (m *Muxer) AddVideoStream(cfg model.VideoConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.video != nil {
		return model.NewStreamError(model.ErrUnsupported, cfg.Mime(), 0, "second video stream")
	}
	m.video = &cfg
	return nil
}

// AddAudioStream registers the single permitted audio track.
func (m *Muxer) AddAudioStream(cfg model.AudioConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.audio != nil {
		return model.NewStreamError(model.ErrUnsupported, cfg.Mime(), 0, "second audio stream")
	}
	m.audio = &cfg
	return nil
}

func (m *Muxer) ensureInit() {
	if m.initSent {
		return
	}
	m.onSeg(buildInitSegment(m.video, m.audio))
	m.initSent = true
}

// Write buffers frame and, on a video key frame (or every 48 audio frames
// in an audio-only stream), flushes a moof+mdat fragment.
func (m *Muxer) Write(frame model.Frame) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureInit()

	if frame.Mime.IsVideo() {
		if frame.IsKeyFrame && (len(m.pendingVideo) > 0 || len(m.pendingAudio) > 0) {
			m.flushFragment()
		}
		m.pendingVideo = append(m.pendingVideo, frame)
		return nil
	}

	m.pendingAudio = append(m.pendingAudio, frame)
	m.audioSinceFrag++
	if m.video == nil && m.audioSinceFrag >= 48 {
		m.flushFragment()
	}
	return nil
}

// Flush emits any buffered frames as a final fragment.
func (m *Muxer) Flush() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flushFragment()
}

func (m *Muxer) flushFragment() {
	if len(m.pendingVideo) == 0 && len(m.pendingAudio) == 0 {
		return
	}
	m.sequenceNum++
	seg := buildFragment(m.sequenceNum, m.pendingVideo, m.pendingAudio)
	m.pendingVideo = nil
	m.pendingAudio = nil
	m.audioSinceFrag = 0
	m.onSeg(seg)
}

func buildInitSegment(video *model.VideoConfig, audio *model.AudioConfig) []byte {
	// brands: major=iso5, minor version 0, compatible brands iso5/iso6/mp41
	ftypBody := make([]byte, 0, 16)
	ftypBody = append(ftypBody, []byte("iso5")...)
	ftypBody = bitio.PutUint32BE(ftypBody, 0)
	ftypBody = append(ftypBody, []byte("iso5")...)
	ftypBody = append(ftypBody, []byte("iso6")...)
	ftypBody = append(ftypBody, []byte("mp41")...)
	ftyp := box("ftyp", ftypBody)

	mvhd := fullBox("mvhd", 0, 0, mvhdBody())

	var traks []byte
	if video != nil {
		traks = append(traks, buildVideoTrak(*video)...)
	}
	if audio != nil {
		traks = append(traks, buildAudioTrak(*audio)...)
	}

	mvex := box("mvex", buildMvex(video, audio))
	moovBody := append(append([]byte{}, mvhd...), traks...)
	moovBody = append(moovBody, mvex...)
	moov := box("moov", moovBody)

	out := make([]byte, 0, len(ftyp)+len(moov))
	out = append(out, ftyp...)
	out = append(out, moov...)
	return out
}

func mvhdBody() []byte {
	b := make([]byte, 0, 96)
	b = bitio.PutUint32BE(b, 0) // creation_time
	b = bitio.PutUint32BE(b, 0) // modification_time
	b = bitio.PutUint32BE(b, timescale)
	b = bitio.PutUint32BE(b, 0) // duration unknown in a live fragment stream
	b = bitio.PutUint32BE(b, 0x00010000) // rate 1.0
	b = append(b, 0x01, 0x00) // volume 1.0
	b = append(b, 0, 0) // reserved
	b = append(b, make([]byte, 8)...) // reserved
	b = append(b, identityMatrix()...)
	b = append(b, make([]byte, 24)...) // pre_defined
	b = bitio.PutUint32BE(b, trackIDAudio+1) // next_track_ID
	return b
}

func identityMatrix() []byte {
	m := []uint32{0x00010000, 0, 0, 0, 0x00010000, 0, 0, 0, 0x40000000}
	out := make([]byte, 0, 36)
	for _, v := range m {
		out = bitio.PutUint32BE(out, v)
	}
	return out
}

func buildMvex(video *model.VideoConfig, audio *model.AudioConfig) []byte {
	var out []byte
	if video != nil {
		out = append(out, fullBox("trex", 0, 0, trexBody(trackIDVideo))...)
	}
	if audio != nil {
		out = append(out, fullBox("trex", 0, 0, trexBody(trackIDAudio))...)
	}
	return out
}

func trexBody(trackID uint32) []byte {
	b := make([]byte, 0, 20)
	b = bitio.PutUint32BE(b, trackID)
	b = bitio.PutUint32BE(b, 1) // default_sample_description_index
	b = bitio.PutUint32BE(b, 0) // default_sample_duration
	b = bitio.PutUint32BE(b, 0) // default_sample_size
	b = bitio.PutUint32BE(b, 0) // default_sample_flags
	return b
}

func buildVideoTrak(cfg model.VideoConfig) []byte {
	tkhd := fullBox("tkhd", 0, 0x0007, tkhdVideoBody(cfg))
	mdhd := fullBox("mdhd", 0, 0, mdhdBody())
	hdlr := fullBox("hdlr", 0, 0, hdlrBody("vide", "streamcore video handler"))
	stbl := box("stbl", emptyStblBody())
	minf := box("minf", append(append(box("vmhd", fullBoxBody(0)), box("dinf", dinfBody())...), stbl...))
	mdia := box("mdia", append(append(mdhd, hdlr...), minf...))
	return box("trak", append(tkhd, mdia...))
}

func buildAudioTrak(cfg model.AudioConfig) []byte {
	tkhd := fullBox("tkhd", 0, 0x0007, tkhdAudioBody())
	mdhd := fullBox("mdhd", 0, 0, mdhdBody())
	hdlr := fullBox("hdlr", 0, 0, hdlrBody("soun", "streamcore audio handler"))
	stbl := box("stbl", emptyStblBody())
	smhd := fullBox("smhd", 0, 0, []byte{0, 0, 0, 0})
	minf := box("minf", append(append(smhd, box("dinf", dinfBody())...), stbl...))
	mdia := box("mdia", append(append(mdhd, hdlr...), minf...))
	return box("trak", append(tkhd, mdia...))
}

func fullBoxBody(flags uint32) []byte {
	b := make([]byte, 0, 4)
	b = append(b, 0)
	return bitio.PutUint24BE(b, flags)
}

func tkhdVideoBody(cfg model.VideoConfig) []byte {
	b := make([]byte, 0, 80)
	b = bitio.PutUint32BE(b, 0) // creation_time
	b = bitio.PutUint32BE(b, 0) // modification_time
	b = bitio.PutUint32BE(b, trackIDVideo)
	b = bitio.PutUint32BE(b, 0) // reserved
	b = bitio.PutUint32BE(b, 0) // duration
	b = append(b, make([]byte, 8)...) // reserved
	b = bitio.PutUint16BE(b, 0) // layer
	b = bitio.PutUint16BE(b, 0) // alternate_group
	b = bitio.PutUint16BE(b, 0) // volume
	b = bitio.PutUint16BE(b, 0) // reserved
	b = append(b, identityMatrix()...)
	b = bitio.PutUint32BE(b, uint32(cfg.Width)<<16)
	b = bitio.PutUint32BE(b, uint32(cfg.Height)<<16)
	return b
}

func tkhdAudioBody() []byte {
	b := make([]byte, 0, 80)
	b = bitio.PutUint32BE(b, 0)
	b = bitio.PutUint32BE(b, 0)
	b = bitio.PutUint32BE(b, trackIDAudio)
	b = bitio.PutUint32BE(b, 0)
	b = bitio.PutUint32BE(b, 0)
	b = append(b, make([]byte, 8)...)
	b = bitio.PutUint16BE(b, 0)
	b = bitio.PutUint16BE(b, 0)
	b = bitio.PutUint16BE(b, 0x0100) // volume 1.0
	b = bitio.PutUint16BE(b, 0)
	b = append(b, identityMatrix()...)
	b = bitio.PutUint32BE(b, 0)
	b = bitio.PutUint32BE(b, 0)
	return b
}

func mdhdBody() []byte {
	b := make([]byte, 0, 20)
	b = bitio.PutUint32BE(b, 0)
	b = bitio.PutUint32BE(b, 0)
	b = bitio.PutUint32BE(b, timescale)
	b = bitio.PutUint32BE(b, 0)
	b = bitio.PutUint16BE(b, 0x55C4) // language "und"
	b = bitio.PutUint16BE(b, 0)
	return b
}

func hdlrBody(handlerType, name string) []byte {
	b := make([]byte, 0, 24+len(name)+1)
	b = bitio.PutUint32BE(b, 0) // pre_defined
	b = append(b, []byte(handlerType)...)
	b = append(b, make([]byte, 12)...) // reserved
	b = append(b, []byte(name)...)
	b = append(b, 0)
	return b
}

func dinfBody() []byte {
	url := fullBox("url ", 0, 0x000001, nil)
	dref := fullBox("dref", 0, 0, append(bitio.PutUint32BE(nil, 1), url...))
	return dref
}

func emptyStblBody() []byte {
	stsd := fullBox("stsd", 0, 0, bitio.PutUint32BE(nil, 0))
	stts := fullBox("stts", 0, 0, bitio.PutUint32BE(nil, 0))
	stsc := fullBox("stsc", 0, 0, bitio.PutUint32BE(nil, 0))
	stsz := fullBox("stsz", 0, 0, append(bitio.PutUint32BE(nil, 0), bitio.PutUint32BE(nil, 0)...))
	stco := fullBox("stco", 0, 0, bitio.PutUint32BE(nil, 0))
	out := append([]byte{}, stsd...)
	out = append(out, stts...)
	out = append(out, stsc...)
	out = append(out, stsz...)
	out = append(out, stco...)
	return out
}

// buildFragment assembles a moof+mdat pair carrying the buffered frames of
// both tracks, ordered video-then-audio within mdat.
func buildFragment(seq uint32, video, audio []model.Frame) []byte {
	var videoTraf, audioTraf []byte
	var mdatPayload []byte
	if len(video) > 0 {
		videoTraf, mdatPayload = appendTrackFragment(trackIDVideo, video, mdatPayload)
	}
	if len(audio) > 0 {
		audioTraf, mdatPayload = appendTrackFragment(trackIDAudio, audio, mdatPayload)
	}

	mfhd := fullBox("mfhd", 0, 0, bitio.PutUint32BE(nil, seq))
	moofBody := append(append([]byte{}, mfhd...), videoTraf...)
	moofBody = append(moofBody, audioTraf...)
	moof := box("moof", moofBody)
	mdat := box("mdat", mdatPayload)

	out := make([]byte, 0, len(moof)+len(mdat))
	out = append(out, moof...)
	out = append(out, mdat...)
	return out
}

// appendTrackFragment builds one traf (tfhd+tfdt+trun) for frames and
// appends their concatenated payloads to mdatPayload.
func appendTrackFragment(trackID uint32, frames []model.Frame, mdatPayload []byte) (traf []byte, newMdat []byte) {
	tfhd := fullBox("tfhd", 0, 0x020000, bitio.PutUint32BE(nil, trackID)) // default-base-is-moof
	tfdt := fullBox("tfdt", 1, 0, bitio.PutUint64BE(nil, uint64(frames[0].PTS)*timescale/1_000_000))

	trunBody := make([]byte, 0, 8+8*len(frames))
	trunBody = bitio.PutUint32BE(trunBody, uint32(len(frames)))
	trunBody = bitio.PutUint32BE(trunBody, 0) // data_offset, patched by caller if needed

	for i, f := range frames {
		dur := uint32(0)
		if i+1 < len(frames) {
			dur = uint32((frames[i+1].PTS - f.PTS) * timescale / 1_000_000)
		}
		trunBody = bitio.PutUint32BE(trunBody, dur)
		trunBody = bitio.PutUint32BE(trunBody, uint32(len(f.Buffer)))
	}
	// flags: data-offset-present(0x01) + sample-duration-present(0x100) + sample-size-present(0x200)
	trun := fullBox("trun", 0, 0x000301, trunBody)

	traf = box("traf", append(append(tfhd, tfdt...), trun...))

	for _, f := range frames {
		mdatPayload = append(mdatPayload, f.Buffer...)
	}
	return traf, mdatPayload
}
