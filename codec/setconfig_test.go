package codec

import (
	"testing"

	"github.com/opd-ai/leaudio/ascs"
	"github.com/opd-ai/leaudio/pacs"
)

func mediaPACRecord() pacs.Record {
	return pacs.Record{
		Codec: pacs.LC3CodecID,
		Capabilities: pacs.CodecCapabilities{
			SamplingFrequencies: pacs.SamplingFreq48000Hz | pacs.SamplingFreq16000Hz,
			FrameDurations:      pacs.FrameDuration10000Us,
			ChannelCounts:       pacs.ChannelCountOne,
			MinOctetsPerFrame:   40,
			MaxOctetsPerFrame:   120,
		},
	}
}

// TestConfigurationsForContext verifies catalogue selection by
// context.
func TestConfigurationsForContext(t *testing.T) {
	media := ConfigurationsForContext(pacs.ContextMedia)
	if len(media) == 0 {
		t.Fatal("Media catalogue is empty")
	}
	if media[0].EntryByDirection(ascs.DirectionSource) != nil {
		t.Error("Media configurations should be sink only")
	}

	conv := ConfigurationsForContext(pacs.ContextConversational)
	if len(conv) == 0 {
		t.Fatal("Conversational catalogue is empty")
	}
	if conv[0].EntryByDirection(ascs.DirectionSource) == nil {
		t.Error("Conversational configurations need a source direction")
	}
}

// TestEntrySupportedByPACs exercises the capability matcher.
func TestEntrySupportedByPACs(t *testing.T) {
	entry := &ConfigurationsForContext(pacs.ContextMedia)[0].Entries[0]

	if !EntrySupportedByPACs(entry, []pacs.Record{mediaPACRecord()}) {
		t.Error("Record should satisfy the top media entry")
	}

	narrow := mediaPACRecord()
	narrow.Capabilities.SamplingFrequencies = pacs.SamplingFreq16000Hz
	if EntrySupportedByPACs(entry, []pacs.Record{narrow}) {
		t.Error("16 kHz-only record should not satisfy a 48 kHz entry")
	}

	if EntrySupportedByPACs(entry, nil) {
		t.Error("No records should never match")
	}
}

// TestEntryCodecConfig verifies the per-ASE configuration builder.
func TestEntryCodecConfig(t *testing.T) {
	entry := &ConfigurationsForContext(pacs.ContextMedia)[0].Entries[0]
	conf := EntryCodecConfig(entry, pacs.LocationFrontLeft)

	if conf.SamplingFrequencyHz() != entry.SampleRateHz {
		t.Errorf("Rate mismatch: %d", conf.SamplingFrequencyHz())
	}
	if conf.FrameDurationUs() != entry.FrameDurationUs {
		t.Errorf("Duration mismatch: %d", conf.FrameDurationUs())
	}
	if conf.OctetsPerFrame != entry.OctetsPerFrame {
		t.Errorf("Octets mismatch: %d", conf.OctetsPerFrame)
	}
	if conf.ChannelAllocation != pacs.LocationFrontLeft {
		t.Errorf("Allocation mismatch: 0x%08x", uint32(conf.ChannelAllocation))
	}
	if conf.ChannelCount() != 1 {
		t.Errorf("Channel count mismatch: %d", conf.ChannelCount())
	}
}

// TestDevicesInConfiguration drives the attach-versus-reconfigure
// input.
func TestDevicesInConfiguration(t *testing.T) {
	media := ConfigurationsForContext(pacs.ContextMedia)
	if got := media[0].DevicesInConfiguration(); got != 2 {
		t.Errorf("Dual-device configuration reports %d devices", got)
	}

	var single *AudioSetConfiguration
	for _, conf := range media {
		if conf.DevicesInConfiguration() == 1 {
			single = conf
			break
		}
	}
	if single == nil {
		t.Fatal("Catalogue needs a single-device media fallback")
	}
}
