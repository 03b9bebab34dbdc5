package pacs

import "encoding/binary"

// SerializeRecords encodes PAC records back to the characteristic wire
// format. The LTV entries come out in ascending type order, which is
// the layout every observed peer uses.
func SerializeRecords(records []Record) []byte {
	out := []byte{byte(len(records))}

	for _, rec := range records {
		out = append(out, rec.Codec.Format)
		out = binary.LittleEndian.AppendUint16(out, rec.Codec.CompanyID)
		out = binary.LittleEndian.AppendUint16(out, rec.Codec.VendorCodecID)

		caps := serializeCapabilities(rec.Capabilities)
		out = append(out, byte(len(caps)))
		out = append(out, caps...)

		meta := serializeMetadata(rec)
		out = append(out, byte(len(meta)))
		out = append(out, meta...)
	}
	return out
}

func serializeCapabilities(caps CodecCapabilities) []byte {
	var out []byte

	if caps.SamplingFrequencies != 0 {
		out = append(out, 3, CapTypeSamplingFrequencies)
		out = binary.LittleEndian.AppendUint16(out, caps.SamplingFrequencies)
	}
	if caps.FrameDurations != 0 {
		out = append(out, 2, CapTypeFrameDurations, caps.FrameDurations)
	}
	if caps.ChannelCounts != 0 {
		out = append(out, 2, CapTypeChannelCounts, caps.ChannelCounts)
	}
	if caps.MinOctetsPerFrame != 0 || caps.MaxOctetsPerFrame != 0 {
		out = append(out, 5, CapTypeOctetsPerFrame)
		out = binary.LittleEndian.AppendUint16(out, caps.MinOctetsPerFrame)
		out = binary.LittleEndian.AppendUint16(out, caps.MaxOctetsPerFrame)
	}
	if caps.MaxFramesPerSDU != 0 {
		out = append(out, 2, CapTypeMaxFramesPerSDU, caps.MaxFramesPerSDU)
	}
	return out
}

func serializeMetadata(rec Record) []byte {
	var out []byte

	if rec.PreferredContexts != 0 {
		out = append(out, 3, MetaTypePreferredContexts)
		out = binary.LittleEndian.AppendUint16(out, uint16(rec.PreferredContexts))
	}
	if rec.StreamingContexts != 0 {
		out = append(out, 3, MetaTypeStreamingContexts)
		out = binary.LittleEndian.AppendUint16(out, uint16(rec.StreamingContexts))
	}
	return out
}

// SerializeAudioLocations encodes an audio locations bitmap.
func SerializeAudioLocations(loc AudioLocations) []byte {
	out := make([]byte, 4)
	binary.LittleEndian.PutUint32(out, uint32(loc))
	return out
}

// SerializeContexts encodes a (sink, source) context pair, used for
// both the available and the supported contexts characteristics.
func SerializeContexts(sink, source AudioContexts) []byte {
	out := make([]byte, 4)
	binary.LittleEndian.PutUint16(out, uint16(sink))
	binary.LittleEndian.PutUint16(out[2:], uint16(source))
	return out
}
