package ascs

import (
	"reflect"
	"testing"

	"github.com/opd-ai/leaudio/pacs"
)

func testCodecConfig() CodecConfig {
	return CodecConfig{
		SamplingFrequency: SamplingFreq48000,
		FrameDuration:     FrameDuration10000,
		ChannelAllocation: pacs.LocationFrontLeft,
		OctetsPerFrame:    100,
		FrameBlocksPerSDU: 1,
	}
}

// TestCodecConfigRoundTrip verifies the codec configuration LTV
// codec.
func TestCodecConfigRoundTrip(t *testing.T) {
	conf := testCodecConfig()

	parsed, err := ParseCodecConfig(SerializeCodecConfig(conf))
	if err != nil {
		t.Fatalf("ParseCodecConfig failed: %v", err)
	}
	if !reflect.DeepEqual(conf, parsed) {
		t.Errorf("Round trip mismatch:\n got %+v\nwant %+v", parsed, conf)
	}
}

// TestParseNotificationIdle covers the parameterless states.
func TestParseNotificationIdle(t *testing.T) {
	ntf, err := ParseNotification([]byte{0x01, byte(StateIdle)})
	if err != nil {
		t.Fatalf("ParseNotification failed: %v", err)
	}
	if ntf.AseID != 1 || ntf.State != StateIdle {
		t.Errorf("Unexpected notification: %+v", ntf)
	}

	if _, err := ParseNotification([]byte{0x01}); err == nil {
		t.Error("Expected error on truncated notification")
	}
}

// TestParseNotificationCodecConfigured covers the codec-configured
// parameter block.
func TestParseNotificationCodecConfigured(t *testing.T) {
	conf := SerializeCodecConfig(testCodecConfig())

	value := []byte{
		0x02, byte(StateCodecConfigured),
		0x00,       // framing
		0x02,       // preferred PHY
		0x05,       // preferred RTN
		0x5F, 0x00, // max transport latency
		0x40, 0x9C, 0x00, // pres delay min (40000us)
		0x80, 0x38, 0x01, // pres delay max (80000us)
		0x40, 0x9C, 0x00, // preferred min
		0x80, 0x38, 0x01, // preferred max
		0x06, 0x00, 0x00, 0x00, 0x00, // codec id
		byte(len(conf)),
	}
	value = append(value, conf...)

	ntf, err := ParseNotification(value)
	if err != nil {
		t.Fatalf("ParseNotification failed: %v", err)
	}
	if ntf.State != StateCodecConfigured {
		t.Fatalf("Wrong state: %s", ntf.State)
	}
	if ntf.PresDelayMinUs != 40000 || ntf.PresDelayMaxUs != 80000 {
		t.Errorf("Presentation delay mismatch: %d/%d", ntf.PresDelayMinUs, ntf.PresDelayMaxUs)
	}
	if !ntf.Codec.IsLC3() {
		t.Error("Codec should be LC3")
	}
	if !reflect.DeepEqual(ntf.CodecConfig, testCodecConfig()) {
		t.Errorf("Codec config mismatch: %+v", ntf.CodecConfig)
	}
}

// TestParseNotificationQoSConfigured covers the QoS parameter block.
func TestParseNotificationQoSConfigured(t *testing.T) {
	value := []byte{
		0x03, byte(StateQoSConfigured),
		0x01,             // CIG id
		0x02,             // CIS id
		0x10, 0x27, 0x00, // SDU interval 10000us
		0x00,       // framing
		0x02,       // PHY
		0x64, 0x00, // max SDU 100
		0x05,       // RTN
		0x5F, 0x00, // max transport latency 95
		0x40, 0x9C, 0x00, // presentation delay 40000us
	}

	ntf, err := ParseNotification(value)
	if err != nil {
		t.Fatalf("ParseNotification failed: %v", err)
	}
	want := QoSConfig{
		CIGID: 1, CISID: 2, SDUIntervalUs: 10000, Framing: 0, PHY: 2,
		MaxSDU: 100, RetransmissionCount: 5, MaxTransportLatency: 95,
		PresentationDelayUs: 40000,
	}
	if ntf.QoS != want {
		t.Errorf("QoS mismatch:\n got %+v\nwant %+v", ntf.QoS, want)
	}
}

// TestParseNotificationEnabling covers the metadata-carrying states.
func TestParseNotificationEnabling(t *testing.T) {
	value := []byte{
		0x03, byte(StateEnabling),
		0x01, 0x02, // CIG, CIS
		0x04,                   // metadata length
		0x03, 0x02, 0x04, 0x00, // streaming contexts: media
	}

	ntf, err := ParseNotification(value)
	if err != nil {
		t.Fatalf("ParseNotification failed: %v", err)
	}
	if !ntf.Metadata.StreamingContexts.Has(pacs.ContextMedia) {
		t.Error("Streaming contexts should carry media")
	}
}

// TestParseControlPointNotification covers the response list parsing
// and replay idempotence.
func TestParseControlPointNotification(t *testing.T) {
	value := []byte{
		byte(OpEnable), 2,
		0x01, byte(ResponseSuccess), byte(ReasonNone),
		0x02, byte(ResponseInvalidConfigParameterValue), byte(ReasonInvalidAseCisMapping),
	}

	first, err := ParseControlPointNotification(value)
	if err != nil {
		t.Fatalf("ParseControlPointNotification failed: %v", err)
	}
	second, err := ParseControlPointNotification(value)
	if err != nil {
		t.Fatalf("Replay parse failed: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("Parse is not idempotent under replay")
	}

	if len(first.Entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(first.Entries))
	}
	if first.Entries[1].Reason != ReasonInvalidAseCisMapping {
		t.Errorf("Wrong reason: %d", first.Entries[1].Reason)
	}

	if _, err := ParseControlPointNotification(value[:4]); err == nil {
		t.Error("Expected error on truncated entry list")
	}
}

// TestSerializeControlPointOps verifies the control point payload
// layouts.
func TestSerializeControlPointOps(t *testing.T) {
	codecOp := SerializeConfigCodec([]ConfigCodecEntry{{
		AseID:         1,
		TargetLatency: TargetLatencyBalanced,
		TargetPHY:     0x02,
		Config:        testCodecConfig(),
	}})
	if codecOp[0] != byte(OpConfigCodec) || codecOp[1] != 1 {
		t.Errorf("Bad Config Codec header: % x", codecOp[:2])
	}
	if codecOp[2] != 1 || codecOp[3] != TargetLatencyBalanced {
		t.Errorf("Bad Config Codec entry prefix: % x", codecOp[2:4])
	}
	// Codec ID follows: LC3, zero company and vendor ids.
	if codecOp[5] != 0x06 {
		t.Errorf("Expected LC3 coding format, got 0x%02x", codecOp[5])
	}

	qosOp := SerializeConfigQoS([]ConfigQoSEntry{{
		AseID: 1,
		QoS: QoSConfig{
			CIGID: 1, CISID: 0, SDUIntervalUs: 10000, PHY: 2,
			MaxSDU: 100, RetransmissionCount: 13, MaxTransportLatency: 95,
			PresentationDelayUs: 40000,
		},
	}})
	if qosOp[0] != byte(OpConfigQoS) {
		t.Errorf("Bad opcode: 0x%02x", qosOp[0])
	}
	// Fixed size: header(2) + per-ase 16 bytes.
	if len(qosOp) != 2+16 {
		t.Errorf("Bad Config QoS length: %d", len(qosOp))
	}

	enableOp := SerializeEnable([]MetadataEntry{{
		AseID:    1,
		Metadata: Metadata{StreamingContexts: pacs.AudioContexts(pacs.ContextMedia)},
	}})
	if enableOp[0] != byte(OpEnable) || enableOp[1] != 1 {
		t.Errorf("Bad Enable header: % x", enableOp[:2])
	}

	release := SerializeRelease([]uint8{1, 3})
	if release[0] != byte(OpRelease) || release[1] != 2 || release[2] != 1 || release[3] != 3 {
		t.Errorf("Bad Release payload: % x", release)
	}

	start := SerializeReceiverStartReady([]uint8{2})
	if start[0] != byte(OpReceiverStartReady) || start[2] != 2 {
		t.Errorf("Bad Receiver Start Ready payload: % x", start)
	}
}

// TestSamplingFrequencyMapping verifies the enum/Hz mappings invert
// each other.
func TestSamplingFrequencyMapping(t *testing.T) {
	for _, hz := range []uint32{8000, 16000, 24000, 32000, 44100, 48000} {
		if got := SamplingFreqToHz(HzToSamplingFreq(hz)); got != hz {
			t.Errorf("Mapping broken for %d Hz: %d", hz, got)
		}
	}
	if HzToSamplingFreq(11025) != 0 {
		t.Error("Unknown rate should map to 0")
	}
}
