package pacs

import (
	"reflect"
	"testing"
)

func legalRecord() Record {
	return Record{
		Codec: LC3CodecID,
		Capabilities: CodecCapabilities{
			SamplingFrequencies: SamplingFreq16000Hz | SamplingFreq48000Hz,
			FrameDurations:      FrameDuration10000Us,
			ChannelCounts:       ChannelCountOne,
			MinOctetsPerFrame:   40,
			MaxOctetsPerFrame:   120,
			MaxFramesPerSDU:     1,
		},
		PreferredContexts: AudioContexts(ContextMedia | ContextConversational),
		StreamingContexts: AudioContexts(ContextMedia),
	}
}

// TestRecordRoundTrip verifies parse(serialize(x)) == x for legal
// records.
func TestRecordRoundTrip(t *testing.T) {
	records := []Record{legalRecord()}

	parsed, err := ParseRecords(SerializeRecords(records))
	if err != nil {
		t.Fatalf("ParseRecords failed: %v", err)
	}
	if !reflect.DeepEqual(records, parsed) {
		t.Errorf("Round trip mismatch:\n got %+v\nwant %+v", parsed, records)
	}
}

// TestMultipleRecordsRoundTrip covers a PAC value carrying several
// records.
func TestMultipleRecordsRoundTrip(t *testing.T) {
	second := legalRecord()
	second.Capabilities.ChannelCounts = ChannelCountOne | ChannelCountTwo
	second.Capabilities.MinOctetsPerFrame = 80
	second.Capabilities.MaxOctetsPerFrame = 155
	records := []Record{legalRecord(), second}

	parsed, err := ParseRecords(SerializeRecords(records))
	if err != nil {
		t.Fatalf("ParseRecords failed: %v", err)
	}
	if len(parsed) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(parsed))
	}
	if !reflect.DeepEqual(records, parsed) {
		t.Errorf("Round trip mismatch")
	}
}

// TestParseRecordsTruncated verifies corrupt values are rejected.
func TestParseRecordsTruncated(t *testing.T) {
	good := SerializeRecords([]Record{legalRecord()})

	for cut := 1; cut < len(good); cut++ {
		if _, err := ParseRecords(good[:cut]); err == nil {
			// Cuts landing exactly between records could parse if the
			// count matched, but the count byte promises one record.
			t.Errorf("Expected error parsing %d-byte prefix", cut)
		}
	}

	if _, err := ParseRecords(nil); err == nil {
		t.Error("Expected error parsing empty value")
	}
}

// TestParseRecordsMalformedLTV verifies a bad LTV length is rejected.
func TestParseRecordsMalformedLTV(t *testing.T) {
	value := []byte{
		1,             // one record
		6, 0, 0, 0, 0, // codec id
		2,        // cap length
		0xFF, 1, // LTV length overruns the block
		0, // metadata length
	}
	if _, err := ParseRecords(value); err == nil {
		t.Error("Expected error on malformed LTV")
	}
}

// TestAudioLocationsRoundTrip exercises the locations codec.
func TestAudioLocationsRoundTrip(t *testing.T) {
	loc := LocationFrontLeft | LocationFrontRight

	parsed, err := ParseAudioLocations(SerializeAudioLocations(loc))
	if err != nil {
		t.Fatalf("ParseAudioLocations failed: %v", err)
	}
	if parsed != loc {
		t.Errorf("Expected 0x%08x, got 0x%08x", uint32(loc), uint32(parsed))
	}

	if _, err := ParseAudioLocations([]byte{1, 2}); err == nil {
		t.Error("Expected error on short value")
	}
}

// TestContextsRoundTrip exercises the available/supported contexts
// codec.
func TestContextsRoundTrip(t *testing.T) {
	sink := AudioContexts(ContextMedia | ContextRingtone)
	source := AudioContexts(ContextConversational)

	gotSink, gotSource, err := ParseAvailableContexts(SerializeContexts(sink, source))
	if err != nil {
		t.Fatalf("ParseAvailableContexts failed: %v", err)
	}
	if gotSink != sink || gotSource != source {
		t.Errorf("Expected (%04x,%04x), got (%04x,%04x)",
			uint16(sink), uint16(source), uint16(gotSink), uint16(gotSource))
	}
}

// TestCapabilityChecks exercises the capability predicates.
func TestCapabilityChecks(t *testing.T) {
	caps := legalRecord().Capabilities

	if !caps.SupportsFrequencyHz(48000) {
		t.Error("48 kHz should be supported")
	}
	if caps.SupportsFrequencyHz(44100) {
		t.Error("44.1 kHz should not be supported")
	}
	if !caps.SupportsFrameDurationUs(10000) {
		t.Error("10 ms should be supported")
	}
	if caps.SupportsFrameDurationUs(7500) {
		t.Error("7.5 ms should not be supported")
	}
	if !caps.SupportsOctetsPerFrame(100) {
		t.Error("100 octets should be inside the range")
	}
	if caps.SupportsOctetsPerFrame(130) {
		t.Error("130 octets should be outside the range")
	}
}

// TestLocationClassification exercises left/right masks and channel
// counting.
func TestLocationClassification(t *testing.T) {
	if !LocationFrontLeft.IsLeft() || LocationFrontLeft.IsRight() {
		t.Error("Front left misclassified")
	}
	if !LocationFrontRight.IsRight() || LocationFrontRight.IsLeft() {
		t.Error("Front right misclassified")
	}

	stereo := LocationFrontLeft | LocationFrontRight
	if stereo.ChannelCount() != 2 {
		t.Errorf("Expected 2 channels, got %d", stereo.ChannelCount())
	}
	if AudioLocations(0).ChannelCount() != 0 {
		t.Error("Empty bitmap should have 0 channels")
	}
}
