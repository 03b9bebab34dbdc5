// Package pacs models the Published Audio Capabilities Service: audio
// contexts, audio locations and PAC records, with bit-exact parsers
// and serializers for the characteristic values.
package pacs

// ContextType is a single audio context bit as carried in PACS values
// and ASCS metadata.
type ContextType uint16

// Audio context types.
const (
	ContextUnspecified     ContextType = 0x0001
	ContextConversational  ContextType = 0x0002
	ContextMedia           ContextType = 0x0004
	ContextGame            ContextType = 0x0008
	ContextInstructional   ContextType = 0x0010
	ContextVoiceAssistants ContextType = 0x0020
	ContextLive            ContextType = 0x0040
	ContextSoundEffects    ContextType = 0x0080
	ContextNotifications   ContextType = 0x0100
	ContextRingtone        ContextType = 0x0200
	ContextAlerts          ContextType = 0x0400
	ContextEmergencyAlarm  ContextType = 0x0800
	ContextRFU             ContextType = 0x1000
)

// String names the context for logs.
func (c ContextType) String() string {
	switch c {
	case ContextUnspecified:
		return "Unspecified"
	case ContextConversational:
		return "Conversational"
	case ContextMedia:
		return "Media"
	case ContextGame:
		return "Game"
	case ContextInstructional:
		return "Instructional"
	case ContextVoiceAssistants:
		return "VoiceAssistants"
	case ContextLive:
		return "Live"
	case ContextSoundEffects:
		return "SoundEffects"
	case ContextNotifications:
		return "Notifications"
	case ContextRingtone:
		return "Ringtone"
	case ContextAlerts:
		return "Alerts"
	case ContextEmergencyAlarm:
		return "EmergencyAlarm"
	default:
		return "RFU"
	}
}

// AudioContexts is a bitmap of ContextType values.
type AudioContexts uint16

// Has reports whether the bitmap carries the context bit.
func (a AudioContexts) Has(c ContextType) bool {
	return a&AudioContexts(c) != 0
}

// Any reports whether any bit is set.
func (a AudioContexts) Any() bool { return a != 0 }

// AudioLocations is the 32-bit audio channel location bitmap.
type AudioLocations uint32

// Channel location bits relevant to the unicast client.
const (
	LocationFrontLeft         AudioLocations = 0x00000001
	LocationFrontRight        AudioLocations = 0x00000002
	LocationFrontCenter       AudioLocations = 0x00000004
	LocationBackLeft          AudioLocations = 0x00000010
	LocationBackRight         AudioLocations = 0x00000020
	LocationFrontLeftOfCenter AudioLocations = 0x00000040
	LocationSideLeft          AudioLocations = 0x00000400
	LocationSideRight         AudioLocations = 0x00000800
	LocationTopFrontLeft      AudioLocations = 0x00001000
	LocationTopFrontRight     AudioLocations = 0x00002000
	LocationTopBackLeft       AudioLocations = 0x00010000
	LocationTopBackRight      AudioLocations = 0x00020000
	LocationTopSideLeft       AudioLocations = 0x00040000
	LocationTopSideRight      AudioLocations = 0x00080000
	LocationBottomFrontLeft   AudioLocations = 0x00400000
	LocationBottomFrontRight  AudioLocations = 0x00800000
)

// Composite masks for left/right classification of a CIS.
const (
	LocationAnyLeft = LocationFrontLeft | LocationBackLeft |
		LocationFrontLeftOfCenter | LocationSideLeft |
		LocationTopFrontLeft | LocationTopBackLeft |
		LocationTopSideLeft | LocationBottomFrontLeft

	LocationAnyRight = LocationFrontRight | LocationBackRight |
		LocationSideRight | LocationTopFrontRight |
		LocationTopBackRight | LocationTopSideRight |
		LocationBottomFrontRight
)

// IsLeft reports whether the location bitmap carries any left channel.
func (l AudioLocations) IsLeft() bool { return l&LocationAnyLeft != 0 }

// IsRight reports whether the location bitmap carries any right channel.
func (l AudioLocations) IsRight() bool { return l&LocationAnyRight != 0 }

// ChannelCount is the number of location bits set.
func (l AudioLocations) ChannelCount() int {
	n := 0
	for v := uint32(l); v != 0; v &= v - 1 {
		n++
	}
	return n
}

// CodecID identifies a codec in PAC records and ASE configurations.
type CodecID struct {
	Format        uint8
	CompanyID     uint16
	VendorCodecID uint16
}

// CodecFormatLC3 is the coding format assigned to LC3.
const CodecFormatLC3 = 0x06

// LC3CodecID is the codec id every unicast configuration uses.
var LC3CodecID = CodecID{Format: CodecFormatLC3}

// IsLC3 reports whether the codec id selects LC3.
func (c CodecID) IsLC3() bool {
	return c.Format == CodecFormatLC3 && c.CompanyID == 0 && c.VendorCodecID == 0
}

// Codec capability LTV types carried inside PAC records.
const (
	CapTypeSamplingFrequencies = 0x01
	CapTypeFrameDurations      = 0x02
	CapTypeChannelCounts       = 0x03
	CapTypeOctetsPerFrame      = 0x04
	CapTypeMaxFramesPerSDU     = 0x05
)

// Metadata LTV types.
const (
	MetaTypePreferredContexts = 0x01
	MetaTypeStreamingContexts = 0x02
)

// Sampling frequency capability bits.
const (
	SamplingFreq8000Hz  uint16 = 0x0001
	SamplingFreq16000Hz uint16 = 0x0004
	SamplingFreq24000Hz uint16 = 0x0010
	SamplingFreq32000Hz uint16 = 0x0020
	SamplingFreq44100Hz uint16 = 0x0040
	SamplingFreq48000Hz uint16 = 0x0080
)

// Frame duration capability bits.
const (
	FrameDuration7500Us  uint8 = 0x01
	FrameDuration10000Us uint8 = 0x02
)

// Channel count capability bits: bit N-1 set means N channels.
const (
	ChannelCountOne uint8 = 0x01
	ChannelCountTwo uint8 = 0x02
)

// CodecCapabilities is the parsed codec-specific capabilities LTV set
// of one PAC record.
type CodecCapabilities struct {
	SamplingFrequencies uint16
	FrameDurations      uint8
	ChannelCounts       uint8
	MinOctetsPerFrame   uint16
	MaxOctetsPerFrame   uint16
	MaxFramesPerSDU     uint8
}

// SupportsFrequencyHz checks a concrete sampling rate against the
// capability bitfield.
func (c CodecCapabilities) SupportsFrequencyHz(hz uint32) bool {
	switch hz {
	case 8000:
		return c.SamplingFrequencies&SamplingFreq8000Hz != 0
	case 16000:
		return c.SamplingFrequencies&SamplingFreq16000Hz != 0
	case 24000:
		return c.SamplingFrequencies&SamplingFreq24000Hz != 0
	case 32000:
		return c.SamplingFrequencies&SamplingFreq32000Hz != 0
	case 44100:
		return c.SamplingFrequencies&SamplingFreq44100Hz != 0
	case 48000:
		return c.SamplingFrequencies&SamplingFreq48000Hz != 0
	default:
		return false
	}
}

// SupportsFrameDurationUs checks a concrete frame duration.
func (c CodecCapabilities) SupportsFrameDurationUs(us uint32) bool {
	switch us {
	case 7500:
		return c.FrameDurations&FrameDuration7500Us != 0
	case 10000:
		return c.FrameDurations&FrameDuration10000Us != 0
	default:
		return false
	}
}

// SupportsOctetsPerFrame checks a concrete SDU payload size.
func (c CodecCapabilities) SupportsOctetsPerFrame(octets uint16) bool {
	return octets >= c.MinOctetsPerFrame && octets <= c.MaxOctetsPerFrame
}

// Record is one PAC record: codec id, its capabilities and metadata.
type Record struct {
	Codec             CodecID
	Capabilities      CodecCapabilities
	PreferredContexts AudioContexts
	StreamingContexts AudioContexts
}
