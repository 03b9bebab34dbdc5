package codec

import (
	"github.com/opd-ai/leaudio/ascs"
	"github.com/opd-ai/leaudio/pacs"
)

// SetEntry is one direction's requirements within an audio set
// configuration.
type SetEntry struct {
	Direction ascs.Direction
	// DeviceCount devices each carrying AseCount active ASEs.
	DeviceCount int
	AseCount    int
	// ChannelCount per ASE.
	ChannelCount uint8

	SampleRateHz      uint32
	FrameDurationUs   uint32
	OctetsPerFrame    uint16
	FrameBlocksPerSDU uint8

	// QoS parameters applied with Config QoS.
	RetransmissionCount uint8
	MaxTransportLatency uint16
}

// AudioSetConfiguration is one named entry of the configuration
// catalogue, in the priority order the matcher walks.
type AudioSetConfiguration struct {
	Name    string
	Entries []SetEntry
}

// EntryByDirection returns the entry for a direction, nil when the
// configuration has none.
func (c *AudioSetConfiguration) EntryByDirection(dir ascs.Direction) *SetEntry {
	for i := range c.Entries {
		if c.Entries[i].Direction == dir {
			return &c.Entries[i]
		}
	}
	return nil
}

// DevicesInConfiguration is the device count of the sink entry, or of
// the source entry for source-only configurations. This drives the
// attach-versus-reconfigure decision for late joiners.
func (c *AudioSetConfiguration) DevicesInConfiguration() int {
	if e := c.EntryByDirection(ascs.DirectionSink); e != nil {
		return e.DeviceCount
	}
	if e := c.EntryByDirection(ascs.DirectionSource); e != nil {
		return e.DeviceCount
	}
	return 0
}

// PresentationDelayUs applied with Config QoS.
const PresentationDelayUs = 40000

func sinkEntry(devices, ases int, channels uint8, rate, durUs uint32, octets uint16, rtn uint8, lat uint16) SetEntry {
	return SetEntry{
		Direction: ascs.DirectionSink, DeviceCount: devices, AseCount: ases,
		ChannelCount: channels, SampleRateHz: rate, FrameDurationUs: durUs,
		OctetsPerFrame: octets, FrameBlocksPerSDU: 1,
		RetransmissionCount: rtn, MaxTransportLatency: lat,
	}
}

func sourceEntry(devices, ases int, channels uint8, rate, durUs uint32, octets uint16, rtn uint8, lat uint16) SetEntry {
	e := sinkEntry(devices, ases, channels, rate, durUs, octets, rtn, lat)
	e.Direction = ascs.DirectionSource
	return e
}

// The configuration catalogue. Names end with the BAP codec setting
// the entries are built from (kHz_variant, "_2" being the 10 ms
// variant); conversational entries carry low-latency QoS, media
// entries high-reliability QoS.
var (
	dualDevStereoSnk48_2 = &AudioSetConfiguration{
		Name: "DualDev_OneChanStereoSnk_48_2",
		Entries: []SetEntry{
			sinkEntry(2, 1, 1, 48000, 10000, 100, 13, 95),
		},
	}

	singleDevStereoSnk48_2 = &AudioSetConfiguration{
		Name: "SingleDev_TwoChanStereoSnk_48_2",
		Entries: []SetEntry{
			sinkEntry(1, 2, 1, 48000, 10000, 100, 13, 95),
		},
	}

	singleDevMonoSnk48_2 = &AudioSetConfiguration{
		Name: "SingleDev_OneChanMonoSnk_48_2",
		Entries: []SetEntry{
			sinkEntry(1, 1, 1, 48000, 10000, 100, 13, 95),
		},
	}

	singleDevMonoSnk16_2 = &AudioSetConfiguration{
		Name: "SingleDev_OneChanMonoSnk_16_2",
		Entries: []SetEntry{
			sinkEntry(1, 1, 1, 16000, 10000, 40, 13, 95),
		},
	}

	dualDevConversational16_2 = &AudioSetConfiguration{
		Name: "DualDev_OneChanStereoSnk_OneChanMonoSrc_16_2",
		Entries: []SetEntry{
			sinkEntry(2, 1, 1, 16000, 10000, 40, 2, 10),
			sourceEntry(1, 1, 1, 16000, 10000, 40, 2, 10),
		},
	}

	singleDevConversational16_2 = &AudioSetConfiguration{
		Name: "SingleDev_OneChanMonoSnk_OneChanMonoSrc_16_2",
		Entries: []SetEntry{
			sinkEntry(1, 1, 1, 16000, 10000, 40, 2, 10),
			sourceEntry(1, 1, 1, 16000, 10000, 40, 2, 10),
		},
	}
)

var mediaConfigurations = []*AudioSetConfiguration{
	dualDevStereoSnk48_2,
	singleDevStereoSnk48_2,
	singleDevMonoSnk48_2,
	singleDevMonoSnk16_2,
}

var conversationalConfigurations = []*AudioSetConfiguration{
	dualDevConversational16_2,
	singleDevConversational16_2,
}

// ConfigurationsForContext returns the candidate configurations for a
// context, highest priority first.
func ConfigurationsForContext(ctx pacs.ContextType) []*AudioSetConfiguration {
	switch ctx {
	case pacs.ContextConversational:
		return conversationalConfigurations
	case pacs.ContextMedia, pacs.ContextGame, pacs.ContextRingtone,
		pacs.ContextNotifications, pacs.ContextInstructional,
		pacs.ContextAlerts, pacs.ContextEmergencyAlarm,
		pacs.ContextUnspecified:
		return mediaConfigurations
	default:
		return mediaConfigurations
	}
}

// EntryCodecConfig builds the per-ASE codec configuration for a set
// entry with the given channel allocation.
func EntryCodecConfig(e *SetEntry, allocation pacs.AudioLocations) ascs.CodecConfig {
	return ascs.CodecConfig{
		SamplingFrequency: ascs.HzToSamplingFreq(e.SampleRateHz),
		FrameDuration:     frameDurationCode(e.FrameDurationUs),
		ChannelAllocation: allocation,
		OctetsPerFrame:    e.OctetsPerFrame,
		FrameBlocksPerSDU: e.FrameBlocksPerSDU,
	}
}

func frameDurationCode(us uint32) uint8 {
	if us == 7500 {
		return ascs.FrameDuration7500
	}
	return ascs.FrameDuration10000
}

// EntrySupportedByPACs checks a set entry against one device's PAC
// records for the entry's direction.
func EntrySupportedByPACs(e *SetEntry, records []pacs.Record) bool {
	for _, rec := range records {
		if !rec.Codec.IsLC3() {
			continue
		}
		caps := rec.Capabilities
		if !caps.SupportsFrequencyHz(e.SampleRateHz) {
			continue
		}
		if !caps.SupportsFrameDurationUs(e.FrameDurationUs) {
			continue
		}
		if !caps.SupportsOctetsPerFrame(e.OctetsPerFrame) {
			continue
		}
		if caps.ChannelCounts != 0 && caps.ChannelCounts&(1<<(e.ChannelCount-1)) == 0 {
			continue
		}
		return true
	}
	return false
}
