// Package ascs models the Audio Stream Control Service wire formats:
// ASE state notifications, control point operations and their
// responses.
package ascs

import (
	"fmt"

	"github.com/opd-ai/leaudio/pacs"
)

// State is an ASE state as reported in ASE notifications.
type State uint8

// ASE states.
const (
	StateIdle            State = 0x00
	StateCodecConfigured State = 0x01
	StateQoSConfigured   State = 0x02
	StateEnabling        State = 0x03
	StateStreaming       State = 0x04
	StateDisabling       State = 0x05
	StateReleasing       State = 0x06
)

// String names the state for logs.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateCodecConfigured:
		return "CODEC_CONFIGURED"
	case StateQoSConfigured:
		return "QOS_CONFIGURED"
	case StateEnabling:
		return "ENABLING"
	case StateStreaming:
		return "STREAMING"
	case StateDisabling:
		return "DISABLING"
	case StateReleasing:
		return "RELEASING"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02x)", uint8(s))
	}
}

// Direction of an ASE, from the peer's point of view: a sink ASE
// consumes audio from the central.
type Direction uint8

// ASE directions.
const (
	DirectionSink   Direction = 0x01
	DirectionSource Direction = 0x02
)

// String names the direction for logs.
func (d Direction) String() string {
	switch d {
	case DirectionSink:
		return "sink"
	case DirectionSource:
		return "source"
	default:
		return fmt.Sprintf("direction(0x%02x)", uint8(d))
	}
}

// Opcode is an ASE Control Point operation code.
type Opcode uint8

// Control point opcodes.
const (
	OpConfigCodec        Opcode = 0x01
	OpConfigQoS          Opcode = 0x02
	OpEnable             Opcode = 0x03
	OpReceiverStartReady Opcode = 0x04
	OpDisable            Opcode = 0x05
	OpReceiverStopReady  Opcode = 0x06
	OpUpdateMetadata     Opcode = 0x07
	OpRelease            Opcode = 0x08
)

// ResponseCode is a per-ASE control point response code.
type ResponseCode uint8

// Control point response codes.
const (
	ResponseSuccess                          ResponseCode = 0x00
	ResponseUnsupportedOpcode                ResponseCode = 0x01
	ResponseInvalidLength                    ResponseCode = 0x02
	ResponseInvalidAseID                     ResponseCode = 0x03
	ResponseInvalidTransition                ResponseCode = 0x04
	ResponseInvalidAseDirection              ResponseCode = 0x05
	ResponseUnsupportedAudioCapabilities     ResponseCode = 0x06
	ResponseUnsupportedConfigParameterValue  ResponseCode = 0x07
	ResponseRejectedConfigParameterValue     ResponseCode = 0x08
	ResponseInvalidConfigParameterValue      ResponseCode = 0x09
	ResponseUnsupportedMetadata              ResponseCode = 0x0A
	ResponseRejectedMetadata                 ResponseCode = 0x0B
	ResponseInvalidMetadata                  ResponseCode = 0x0C
	ResponseInsufficientResources            ResponseCode = 0x0D
	ResponseUnspecifiedError                 ResponseCode = 0x0E
)

// Reason qualifies a parameter-value response code.
type Reason uint8

// Response reasons.
const (
	ReasonNone                 Reason = 0x00
	ReasonCodecID              Reason = 0x01
	ReasonCodecConfiguration   Reason = 0x02
	ReasonSDUInterval          Reason = 0x03
	ReasonFraming              Reason = 0x04
	ReasonPHY                  Reason = 0x05
	ReasonMaximumSDUSize       Reason = 0x06
	ReasonRetransmissionNumber Reason = 0x07
	ReasonMaxTransportLatency  Reason = 0x08
	ReasonPresentationDelay    Reason = 0x09
	ReasonInvalidAseCisMapping Reason = 0x0A
)

// Codec configuration LTV types (codec specific configuration).
const (
	ConfTypeSamplingFrequency  = 0x01
	ConfTypeFrameDuration      = 0x02
	ConfTypeChannelAllocation  = 0x03
	ConfTypeOctetsPerFrame     = 0x04
	ConfTypeFrameBlocksPerSDU  = 0x05
)

// Sampling frequency enumeration used in codec configurations.
const (
	SamplingFreq8000  uint8 = 0x01
	SamplingFreq16000 uint8 = 0x03
	SamplingFreq24000 uint8 = 0x05
	SamplingFreq32000 uint8 = 0x06
	SamplingFreq44100 uint8 = 0x07
	SamplingFreq48000 uint8 = 0x08
)

// Frame duration enumeration.
const (
	FrameDuration7500  uint8 = 0x00
	FrameDuration10000 uint8 = 0x01
)

// SamplingFreqToHz maps the configuration enum to Hz, 0 when unknown.
func SamplingFreqToHz(code uint8) uint32 {
	switch code {
	case SamplingFreq8000:
		return 8000
	case SamplingFreq16000:
		return 16000
	case SamplingFreq24000:
		return 24000
	case SamplingFreq32000:
		return 32000
	case SamplingFreq44100:
		return 44100
	case SamplingFreq48000:
		return 48000
	default:
		return 0
	}
}

// HzToSamplingFreq is the inverse of SamplingFreqToHz, 0 when the rate
// has no enumeration value.
func HzToSamplingFreq(hz uint32) uint8 {
	switch hz {
	case 8000:
		return SamplingFreq8000
	case 16000:
		return SamplingFreq16000
	case 24000:
		return SamplingFreq24000
	case 32000:
		return SamplingFreq32000
	case 44100:
		return SamplingFreq44100
	case 48000:
		return SamplingFreq48000
	default:
		return 0
	}
}

// FrameDurationToUs maps the duration enum to microseconds.
func FrameDurationToUs(code uint8) uint32 {
	switch code {
	case FrameDuration7500:
		return 7500
	case FrameDuration10000:
		return 10000
	default:
		return 0
	}
}

// CodecConfig is a parsed codec specific configuration.
type CodecConfig struct {
	SamplingFrequency uint8
	FrameDuration     uint8
	ChannelAllocation pacs.AudioLocations
	OctetsPerFrame    uint16
	FrameBlocksPerSDU uint8
}

// SamplingFrequencyHz resolves the enum to Hz.
func (c CodecConfig) SamplingFrequencyHz() uint32 {
	return SamplingFreqToHz(c.SamplingFrequency)
}

// FrameDurationUs resolves the enum to microseconds.
func (c CodecConfig) FrameDurationUs() uint32 {
	return FrameDurationToUs(c.FrameDuration)
}

// ChannelCount is the number of allocated channels; a zero allocation
// is one mono/unspecified channel.
func (c CodecConfig) ChannelCount() int {
	if n := c.ChannelAllocation.ChannelCount(); n > 0 {
		return n
	}
	return 1
}

// QoSConfig is the parameter set written with Config QoS and echoed in
// the QoS Configured state.
type QoSConfig struct {
	CIGID               uint8
	CISID               uint8
	SDUIntervalUs       uint32
	Framing             uint8
	PHY                 uint8
	MaxSDU              uint16
	RetransmissionCount uint8
	MaxTransportLatency uint16
	PresentationDelayUs uint32
}

// Metadata carried with Enable and Update Metadata.
type Metadata struct {
	StreamingContexts pacs.AudioContexts
}

// Notification is a parsed ASE state notification.
type Notification struct {
	AseID uint8
	State State

	// CodecConfigured fields, valid in StateCodecConfigured.
	Framing              uint8
	PreferredPHY         uint8
	PreferredRTN         uint8
	MaxTransportLatency  uint16
	PresDelayMinUs       uint32
	PresDelayMaxUs       uint32
	PrefPresDelayMinUs   uint32
	PrefPresDelayMaxUs   uint32
	Codec                pacs.CodecID
	CodecConfig          CodecConfig

	// QoS fields, valid in StateQoSConfigured; CIGID/CISID are also
	// valid in Enabling, Streaming and Disabling.
	QoS QoSConfig

	// Metadata, valid in Enabling, Streaming and Disabling.
	Metadata Metadata
}

// ControlPointEntry is one per-ASE entry of a control point
// notification.
type ControlPointEntry struct {
	AseID    uint8
	Response ResponseCode
	Reason   Reason
}

// ControlPointNotification is the parsed ASE Control Point
// notification.
type ControlPointNotification struct {
	Opcode  Opcode
	Entries []ControlPointEntry
}
