package pacs

import (
	"encoding/binary"
	"errors"

	"github.com/sirupsen/logrus"
)

// Parsing errors.
var (
	// ErrTruncated indicates the value ended inside a structure.
	ErrTruncated = errors.New("pacs: truncated value")

	// ErrMalformedLTV indicates an LTV entry whose length field runs
	// past the enclosing buffer.
	ErrMalformedLTV = errors.New("pacs: malformed ltv entry")
)

// ParseRecords decodes a Sink/Source PAC characteristic value.
//
// Wire format:
//
//	[NUM_RECORDS(1)] then per record:
//	[CODEC_ID(5)][CAP_LEN(1)][CAP_LTVs...][META_LEN(1)][META_LTVs...]
func ParseRecords(value []byte) ([]Record, error) {
	if len(value) < 1 {
		return nil, ErrTruncated
	}

	num := int(value[0])
	pos := 1
	records := make([]Record, 0, num)

	for i := 0; i < num; i++ {
		if len(value)-pos < 7 {
			return nil, ErrTruncated
		}

		var rec Record
		rec.Codec.Format = value[pos]
		rec.Codec.CompanyID = binary.LittleEndian.Uint16(value[pos+1:])
		rec.Codec.VendorCodecID = binary.LittleEndian.Uint16(value[pos+3:])
		pos += 5

		capLen := int(value[pos])
		pos++
		if len(value)-pos < capLen {
			return nil, ErrTruncated
		}
		if err := parseCapabilities(value[pos:pos+capLen], &rec.Capabilities); err != nil {
			return nil, err
		}
		pos += capLen

		if len(value)-pos < 1 {
			return nil, ErrTruncated
		}
		metaLen := int(value[pos])
		pos++
		if len(value)-pos < metaLen {
			return nil, ErrTruncated
		}
		if err := parseMetadata(value[pos:pos+metaLen], &rec); err != nil {
			return nil, err
		}
		pos += metaLen

		records = append(records, rec)
	}

	logrus.WithFields(logrus.Fields{
		"function": "ParseRecords",
		"records":  len(records),
	}).Debug("Parsed PAC records")

	return records, nil
}

func parseCapabilities(ltv []byte, caps *CodecCapabilities) error {
	return walkLTV(ltv, func(typ uint8, val []byte) error {
		switch typ {
		case CapTypeSamplingFrequencies:
			if len(val) != 2 {
				return ErrMalformedLTV
			}
			caps.SamplingFrequencies = binary.LittleEndian.Uint16(val)
		case CapTypeFrameDurations:
			if len(val) != 1 {
				return ErrMalformedLTV
			}
			caps.FrameDurations = val[0]
		case CapTypeChannelCounts:
			if len(val) != 1 {
				return ErrMalformedLTV
			}
			caps.ChannelCounts = val[0]
		case CapTypeOctetsPerFrame:
			if len(val) != 4 {
				return ErrMalformedLTV
			}
			caps.MinOctetsPerFrame = binary.LittleEndian.Uint16(val)
			caps.MaxOctetsPerFrame = binary.LittleEndian.Uint16(val[2:])
		case CapTypeMaxFramesPerSDU:
			if len(val) != 1 {
				return ErrMalformedLTV
			}
			caps.MaxFramesPerSDU = val[0]
		}
		// Unknown capability types are skipped, not rejected.
		return nil
	})
}

func parseMetadata(ltv []byte, rec *Record) error {
	return walkLTV(ltv, func(typ uint8, val []byte) error {
		switch typ {
		case MetaTypePreferredContexts:
			if len(val) != 2 {
				return ErrMalformedLTV
			}
			rec.PreferredContexts = AudioContexts(binary.LittleEndian.Uint16(val))
		case MetaTypeStreamingContexts:
			if len(val) != 2 {
				return ErrMalformedLTV
			}
			rec.StreamingContexts = AudioContexts(binary.LittleEndian.Uint16(val))
		}
		return nil
	})
}

// walkLTV iterates [LEN(1)][TYPE(1)][VALUE(LEN-1)] entries.
func walkLTV(data []byte, visit func(typ uint8, val []byte) error) error {
	pos := 0
	for pos < len(data) {
		l := int(data[pos])
		if l == 0 || pos+1+l > len(data) {
			return ErrMalformedLTV
		}
		typ := data[pos+1]
		val := data[pos+2 : pos+1+l]
		if err := visit(typ, val); err != nil {
			return err
		}
		pos += 1 + l
	}
	return nil
}

// ParseAudioLocations decodes a Sink/Source Audio Locations value.
func ParseAudioLocations(value []byte) (AudioLocations, error) {
	if len(value) < 4 {
		return 0, ErrTruncated
	}
	return AudioLocations(binary.LittleEndian.Uint32(value)), nil
}

// ParseAvailableContexts decodes the Available Audio Contexts value
// into its (sink, source) pair.
func ParseAvailableContexts(value []byte) (sink, source AudioContexts, err error) {
	if len(value) < 4 {
		return 0, 0, ErrTruncated
	}
	sink = AudioContexts(binary.LittleEndian.Uint16(value))
	source = AudioContexts(binary.LittleEndian.Uint16(value[2:]))
	return sink, source, nil
}

// ParseSupportedContexts decodes the Supported Audio Contexts value.
// Same wire shape as the available contexts.
func ParseSupportedContexts(value []byte) (sink, source AudioContexts, err error) {
	return ParseAvailableContexts(value)
}
