package ascs

import (
	"encoding/binary"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/leaudio/pacs"
)

// Parsing errors.
var (
	// ErrTruncated indicates the notification ended mid-structure.
	ErrTruncated = errors.New("ascs: truncated notification")

	// ErrMalformedLTV indicates a corrupt LTV entry.
	ErrMalformedLTV = errors.New("ascs: malformed ltv entry")
)

func uint24(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16
}

// ParseNotification decodes an ASE characteristic notification or
// read response.
func ParseNotification(value []byte) (*Notification, error) {
	if len(value) < 2 {
		return nil, ErrTruncated
	}

	ntf := &Notification{
		AseID: value[0],
		State: State(value[1]),
	}
	params := value[2:]

	switch ntf.State {
	case StateIdle, StateReleasing:
		// No additional parameters.

	case StateCodecConfigured:
		if len(params) < 23 {
			return nil, ErrTruncated
		}
		ntf.Framing = params[0]
		ntf.PreferredPHY = params[1]
		ntf.PreferredRTN = params[2]
		ntf.MaxTransportLatency = binary.LittleEndian.Uint16(params[3:])
		ntf.PresDelayMinUs = uint24(params[5:])
		ntf.PresDelayMaxUs = uint24(params[8:])
		ntf.PrefPresDelayMinUs = uint24(params[11:])
		ntf.PrefPresDelayMaxUs = uint24(params[14:])
		ntf.Codec.Format = params[17]
		ntf.Codec.CompanyID = binary.LittleEndian.Uint16(params[18:])
		ntf.Codec.VendorCodecID = binary.LittleEndian.Uint16(params[20:])
		confLen := int(params[22])
		if len(params) < 23+confLen {
			return nil, ErrTruncated
		}
		if err := parseCodecConfig(params[23:23+confLen], &ntf.CodecConfig); err != nil {
			return nil, err
		}

	case StateQoSConfigured:
		if len(params) < 15 {
			return nil, ErrTruncated
		}
		ntf.QoS.CIGID = params[0]
		ntf.QoS.CISID = params[1]
		ntf.QoS.SDUIntervalUs = uint24(params[2:])
		ntf.QoS.Framing = params[5]
		ntf.QoS.PHY = params[6]
		ntf.QoS.MaxSDU = binary.LittleEndian.Uint16(params[7:])
		ntf.QoS.RetransmissionCount = params[9]
		ntf.QoS.MaxTransportLatency = binary.LittleEndian.Uint16(params[10:])
		ntf.QoS.PresentationDelayUs = uint24(params[12:])

	case StateEnabling, StateStreaming, StateDisabling:
		if len(params) < 3 {
			return nil, ErrTruncated
		}
		ntf.QoS.CIGID = params[0]
		ntf.QoS.CISID = params[1]
		metaLen := int(params[2])
		if len(params) < 3+metaLen {
			return nil, ErrTruncated
		}
		if err := parseStreamMetadata(params[3:3+metaLen], &ntf.Metadata); err != nil {
			return nil, err
		}

	default:
		logrus.WithFields(logrus.Fields{
			"function": "ParseNotification",
			"ase_id":   ntf.AseID,
			"state":    uint8(ntf.State),
		}).Warn("Notification carries unknown ASE state")
	}

	return ntf, nil
}

// ParseCodecConfig decodes a codec specific configuration LTV block.
func ParseCodecConfig(ltv []byte) (CodecConfig, error) {
	var conf CodecConfig
	err := parseCodecConfig(ltv, &conf)
	return conf, err
}

func parseCodecConfig(ltv []byte, conf *CodecConfig) error {
	return walkLTV(ltv, func(typ uint8, val []byte) error {
		switch typ {
		case ConfTypeSamplingFrequency:
			if len(val) != 1 {
				return ErrMalformedLTV
			}
			conf.SamplingFrequency = val[0]
		case ConfTypeFrameDuration:
			if len(val) != 1 {
				return ErrMalformedLTV
			}
			conf.FrameDuration = val[0]
		case ConfTypeChannelAllocation:
			if len(val) != 4 {
				return ErrMalformedLTV
			}
			conf.ChannelAllocation = pacs.AudioLocations(binary.LittleEndian.Uint32(val))
		case ConfTypeOctetsPerFrame:
			if len(val) != 2 {
				return ErrMalformedLTV
			}
			conf.OctetsPerFrame = binary.LittleEndian.Uint16(val)
		case ConfTypeFrameBlocksPerSDU:
			if len(val) != 1 {
				return ErrMalformedLTV
			}
			conf.FrameBlocksPerSDU = val[0]
		}
		return nil
	})
}

func parseStreamMetadata(ltv []byte, meta *Metadata) error {
	return walkLTV(ltv, func(typ uint8, val []byte) error {
		if typ == pacs.MetaTypeStreamingContexts {
			if len(val) != 2 {
				return ErrMalformedLTV
			}
			meta.StreamingContexts = pacs.AudioContexts(binary.LittleEndian.Uint16(val))
		}
		return nil
	})
}

func walkLTV(data []byte, visit func(typ uint8, val []byte) error) error {
	pos := 0
	for pos < len(data) {
		l := int(data[pos])
		if l == 0 || pos+1+l > len(data) {
			return ErrMalformedLTV
		}
		if err := visit(data[pos+1], data[pos+2:pos+1+l]); err != nil {
			return err
		}
		pos += 1 + l
	}
	return nil
}

// ParseControlPointNotification decodes an ASE Control Point
// notification.
//
// Wire format:
//
//	[OPCODE(1)][NUM_ASES(1)] then per ASE:
//	[ASE_ID(1)][RESPONSE_CODE(1)][REASON(1)]
func ParseControlPointNotification(value []byte) (*ControlPointNotification, error) {
	if len(value) < 2 {
		return nil, ErrTruncated
	}

	ntf := &ControlPointNotification{Opcode: Opcode(value[0])}
	num := int(value[1])

	if len(value) < 2+num*3 {
		return nil, ErrTruncated
	}

	for i := 0; i < num; i++ {
		off := 2 + i*3
		ntf.Entries = append(ntf.Entries, ControlPointEntry{
			AseID:    value[off],
			Response: ResponseCode(value[off+1]),
			Reason:   Reason(value[off+2]),
		})
	}
	return ntf, nil
}
