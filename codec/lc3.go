// Package codec owns the LC3 plane of the unicast client: codec
// instance lifecycles, the audio set configuration catalogue, PCM
// buffer sizing and the channel adaptation between the audio framework
// layout and the Bluetooth stream layout.
//
// The LC3 implementation itself is an external collaborator injected
// through the LC3Codec interface.
package codec

import "errors"

// Codec errors.
var (
	// ErrBadInterval rejects frame intervals LC3 does not define.
	ErrBadInterval = errors.New("codec: unsupported frame interval")

	// ErrNotConfigured indicates encode/decode before setup.
	ErrNotConfigured = errors.New("codec: instance not configured")

	// ErrEncodeFailed wraps encoder errors; frames are dropped, the
	// stream continues.
	ErrEncodeFailed = errors.New("codec: encode failed")

	// ErrDecodeFailed wraps decoder errors.
	ErrDecodeFailed = errors.New("codec: decode failed")
)

// Encoder is one LC3 encoder instance, bound to a frame interval,
// stream rate and PCM input rate at setup time.
type Encoder interface {
	// Encode consumes FrameSamples PCM samples read with the given
	// stride and writes exactly len(out) octets.
	Encode(pcm []int16, stride int, out []byte) error
}

// Decoder is one LC3 decoder instance.
type Decoder interface {
	// Decode writes FrameSamples samples into out. A nil or
	// wrong-sized input must be handled by the caller by passing nil,
	// which runs packet loss concealment.
	Decode(in []byte, stride int, out []int16) error
}

// LC3Codec is the factory surface of the external LC3 library.
type LC3Codec interface {
	// FrameSamples returns the PCM samples per channel per frame for
	// the interval/rate pair, 0 when unsupported.
	FrameSamples(intervalUs int, sampleRateHz int) int
	// NewEncoder creates an encoder for streams at streamHz fed with
	// PCM at pcmHz.
	NewEncoder(intervalUs, streamHz, pcmHz int) (Encoder, error)
	// NewDecoder creates a decoder producing PCM at pcmHz.
	NewDecoder(intervalUs, streamHz, pcmHz int) (Decoder, error)
}

// PCMConfig describes one side of a PCM session.
type PCMConfig struct {
	NumChannels   uint8
	SampleRateHz  uint32
	BitsPerSample uint8
	IntervalUs    uint32
}

// IsInvalid reports an all-zero configuration.
func (c PCMConfig) IsInvalid() bool {
	return c.NumChannels == 0 && c.SampleRateHz == 0 &&
		c.BitsPerSample == 0 && c.IntervalUs == 0
}

// DecodedBufferSamples returns the per-channel PCM buffer size for a
// decoded frame, per the LC3 frame tables: 44.1 kHz streams borrow the
// 48 kHz frame length.
func DecodedBufferSamples(intervalUs int, frameworkHz int) (int, error) {
	switch intervalUs {
	case 10000:
		if frameworkHz == 44100 {
			return 480, nil
		}
		return frameworkHz / 100, nil
	case 7500:
		if frameworkHz == 44100 {
			return 360, nil
		}
		return frameworkHz * 3 / 400, nil
	default:
		return 0, ErrBadInterval
	}
}
