package ascs

import "encoding/binary"

func appendUint24(out []byte, v uint32) []byte {
	return append(out, byte(v), byte(v>>8), byte(v>>16))
}

// SerializeCodecConfig encodes a codec specific configuration LTV
// block, ascending type order.
func SerializeCodecConfig(conf CodecConfig) []byte {
	var out []byte
	out = append(out, 2, ConfTypeSamplingFrequency, conf.SamplingFrequency)
	out = append(out, 2, ConfTypeFrameDuration, conf.FrameDuration)
	out = append(out, 5, ConfTypeChannelAllocation)
	out = binary.LittleEndian.AppendUint32(out, uint32(conf.ChannelAllocation))
	out = append(out, 3, ConfTypeOctetsPerFrame)
	out = binary.LittleEndian.AppendUint16(out, conf.OctetsPerFrame)
	if conf.FrameBlocksPerSDU > 0 {
		out = append(out, 2, ConfTypeFrameBlocksPerSDU, conf.FrameBlocksPerSDU)
	}
	return out
}

func serializeMetadata(meta Metadata) []byte {
	var out []byte
	if meta.StreamingContexts != 0 {
		out = append(out, 3, 0x02) // streaming audio contexts
		out = binary.LittleEndian.AppendUint16(out, uint16(meta.StreamingContexts))
	}
	return out
}

// ConfigCodecEntry is one ASE's portion of a Config Codec operation.
type ConfigCodecEntry struct {
	AseID         uint8
	TargetLatency uint8
	TargetPHY     uint8
	Config        CodecConfig
}

// Target latency values for Config Codec.
const (
	TargetLatencyLow            = 0x01
	TargetLatencyBalanced       = 0x02
	TargetLatencyHighReliability = 0x03
)

// SerializeConfigCodec builds the Config Codec control point payload.
func SerializeConfigCodec(entries []ConfigCodecEntry) []byte {
	out := []byte{byte(OpConfigCodec), byte(len(entries))}
	for _, e := range entries {
		out = append(out, e.AseID, e.TargetLatency, e.TargetPHY)
		// Codec ID: LC3, no vendor extension.
		out = append(out, 0x06, 0, 0, 0, 0)
		conf := SerializeCodecConfig(e.Config)
		out = append(out, byte(len(conf)))
		out = append(out, conf...)
	}
	return out
}

// ConfigQoSEntry is one ASE's portion of a Config QoS operation.
type ConfigQoSEntry struct {
	AseID uint8
	QoS   QoSConfig
}

// SerializeConfigQoS builds the Config QoS control point payload.
func SerializeConfigQoS(entries []ConfigQoSEntry) []byte {
	out := []byte{byte(OpConfigQoS), byte(len(entries))}
	for _, e := range entries {
		out = append(out, e.AseID, e.QoS.CIGID, e.QoS.CISID)
		out = appendUint24(out, e.QoS.SDUIntervalUs)
		out = append(out, e.QoS.Framing, e.QoS.PHY)
		out = binary.LittleEndian.AppendUint16(out, e.QoS.MaxSDU)
		out = append(out, e.QoS.RetransmissionCount)
		out = binary.LittleEndian.AppendUint16(out, e.QoS.MaxTransportLatency)
		out = appendUint24(out, e.QoS.PresentationDelayUs)
	}
	return out
}

// MetadataEntry is one ASE's portion of Enable or Update Metadata.
type MetadataEntry struct {
	AseID    uint8
	Metadata Metadata
}

// SerializeEnable builds the Enable control point payload.
func SerializeEnable(entries []MetadataEntry) []byte {
	return serializeWithMetadata(OpEnable, entries)
}

// SerializeUpdateMetadata builds the Update Metadata payload.
func SerializeUpdateMetadata(entries []MetadataEntry) []byte {
	return serializeWithMetadata(OpUpdateMetadata, entries)
}

func serializeWithMetadata(op Opcode, entries []MetadataEntry) []byte {
	out := []byte{byte(op), byte(len(entries))}
	for _, e := range entries {
		meta := serializeMetadata(e.Metadata)
		out = append(out, e.AseID, byte(len(meta)))
		out = append(out, meta...)
	}
	return out
}

// SerializeReceiverStartReady builds the Receiver Start Ready payload.
func SerializeReceiverStartReady(aseIDs []uint8) []byte {
	return serializeIDsOnly(OpReceiverStartReady, aseIDs)
}

// SerializeReceiverStopReady builds the Receiver Stop Ready payload.
func SerializeReceiverStopReady(aseIDs []uint8) []byte {
	return serializeIDsOnly(OpReceiverStopReady, aseIDs)
}

// SerializeDisable builds the Disable payload.
func SerializeDisable(aseIDs []uint8) []byte {
	return serializeIDsOnly(OpDisable, aseIDs)
}

// SerializeRelease builds the Release payload.
func SerializeRelease(aseIDs []uint8) []byte {
	return serializeIDsOnly(OpRelease, aseIDs)
}

func serializeIDsOnly(op Opcode, aseIDs []uint8) []byte {
	out := []byte{byte(op), byte(len(aseIDs))}
	return append(out, aseIDs...)
}
