package ts

import (
	"github.com/kestrelav/streamcore/internal/bitio"
	"github.com/kestrelav/streamcore/internal/model"
)

// buildSection assembles a PSI section: table_id, table_id_extension,
// version/current_next, section_number/last_section_number, the
// table-specific body, and a trailing CRC_32 computed per §6.2 (MPEG-2
// polynomial 0x04C11DB7, init 0xFFFFFFFF).
func buildSection(tableID byte, tableIDExt uint16, version uint8, body []byte) []byte {
	// bytes after section_length through end of section, excluding CRC:
	// table_id_extension(2) + misc(1) + section_number(1) + last_section_number(1) + body
	tail := make([]byte, 0, 5+len(body))
	tail = bitio.PutUint16BE(tail, tableIDExt)
	tail = append(tail, 0xC0|((version&0x1F)<<1)|0x01) // reserved(11) version(5) current_next(1)=1
	tail = append(tail, 0x00)                          // section_number
	tail = append(tail, 0x00)                          // last_section_number
	tail = append(tail, body...)

	sectionLength := uint16(len(tail) + 4) // + CRC_32

	out := make([]byte, 0, 3+len(tail)+4)
	out = append(out, tableID)
	out = bitio.PutUint16BE(out, 0xB000|(sectionLength&0x0FFF)) // syntax=1,'0',reserved=11
	out = append(out, tail...)

	crc := bitio.CRC32MPEG(out)
	out = bitio.PutUint32BE(out, crc)
	return out
}

// buildPAT builds a Program Association Table listing one program per
// service, mapping program_number -> PMT PID.
func buildPAT(transportStreamID uint16, version uint8, services []*serviceState) []byte {
	body := make([]byte, 0, 4*len(services))
	for _, svc := range services {
		body = bitio.PutUint16BE(body, svc.info.ID)
		body = bitio.PutUint16BE(body, 0xE000|uint16(svc.pmtPID&0x1FFF))
	}
	return buildSection(tableIDPAT, transportStreamID, version, body)
}

// buildPMT builds a Program Map Table for one service.
func buildPMT(svc *serviceState, version uint8) []byte {
	body := make([]byte, 0, 4+5*len(svc.streams))
	body = bitio.PutUint16BE(body, 0xE000|uint16(svc.pcrPID()&0x1FFF))
	body = bitio.PutUint16BE(body, 0xF000) // program_info_length = 0
	for _, s := range svc.streams {
		profile := ""
		if ac, ok := s.config.(model.AudioConfig); ok {
			profile = string(ac.Profile)
		}
		body = append(body, streamType(string(s.config.Mime()), profile))
		body = bitio.PutUint16BE(body, 0xE000|uint16(s.pid&0x1FFF))
		body = bitio.PutUint16BE(body, 0xF000) // ES_info_length = 0
	}
	return buildSection(tableIDPMT, svc.info.ID, version, body)
}

// buildSDT builds a Service Description Table listing every service with
// a minimal service_descriptor (type, provider name, service name).
func buildSDT(transportStreamID uint16, version uint8, services []*serviceState) []byte {
	body := make([]byte, 0, 2)
	body = bitio.PutUint16BE(body, transportStreamID) // original_network_id, reuse TSID
	body = append(body, 0xFF)
	for _, svc := range services {
		descBody := make([]byte, 0, 3+len(svc.info.ProviderName)+len(svc.info.Name))
		descBody = append(descBody, svc.info.ServiceType)
		descBody = append(descBody, byte(len(svc.info.ProviderName)))
		descBody = append(descBody, []byte(svc.info.ProviderName)...)
		descBody = append(descBody, byte(len(svc.info.Name)))
		descBody = append(descBody, []byte(svc.info.Name)...)

		desc := make([]byte, 0, 2+len(descBody))
		desc = append(desc, 0x48, byte(len(descBody)))
		desc = append(desc, descBody...)

		body = bitio.PutUint16BE(body, svc.info.ID)
		loopLen := uint16(len(desc))
		body = append(body, 0xFC)                      // reserved_future_use + EIT_schedule_flag + EIT_present_following_flag
		body = bitio.PutUint16BE(body, loopLen&0x0FFF) // running_status + free_CA_mode + descriptors_loop_length
		body = append(body, desc...)
	}
	return buildSection(tableIDSDT, transportStreamID, version, body)
}

func streamType(mime string, profile string) byte {
	switch mime {
	case "h264":
		return streamTypeH264
	case "hevc":
		return streamTypeHEVC
	case "aac":
		if profile == "LC" || profile == "" {
			return streamTypeAAC
		}
		return streamTypeLATM
	default:
		return streamTypeOpus // shared private-data stream_type for av1/vp9/opus
	}
}
