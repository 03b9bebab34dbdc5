package codec

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Engine owns the codec instances of the active stream: up to two
// encoders (left/right CIS) and two decoders. Instances are created on
// enter-streaming and must be released before any transition that
// re-creates them; the engine tracks counts so tests can assert no
// instance leaks across suspend/resume cycles.
type Engine struct {
	lc3 LC3Codec

	encoderLeft  Encoder
	encoderRight Encoder
	decoderLeft  Decoder
	decoderRight Decoder

	encoderSamples int
	decoderSamples int

	encodersLive int
	decodersLive int
}

// NewEngine creates an engine on top of the external LC3 library.
func NewEngine(lc3 LC3Codec) *Engine {
	return &Engine{lc3: lc3}
}

// SetupEncoders allocates the left/right encoder pair. Existing
// instances are released first; that situation is logged because the
// caller should have released them already.
func (e *Engine) SetupEncoders(intervalUs, streamHz, frameworkHz int) error {
	if e.encoderLeft != nil {
		logrus.WithFields(logrus.Fields{
			"function": "SetupEncoders",
		}).Warn("Encoder instances should have been released already")
		e.ReleaseEncoders()
	}

	left, err := e.lc3.NewEncoder(intervalUs, streamHz, frameworkHz)
	if err != nil {
		return fmt.Errorf("setting up left encoder: %w", err)
	}
	right, err := e.lc3.NewEncoder(intervalUs, streamHz, frameworkHz)
	if err != nil {
		return fmt.Errorf("setting up right encoder: %w", err)
	}

	e.encoderLeft = left
	e.encoderRight = right
	e.encoderSamples = e.lc3.FrameSamples(intervalUs, frameworkHz)
	e.encodersLive += 2

	logrus.WithFields(logrus.Fields{
		"function":      "SetupEncoders",
		"interval_us":   intervalUs,
		"stream_hz":     streamHz,
		"framework_hz":  frameworkHz,
		"frame_samples": e.encoderSamples,
	}).Info("Encoder pair configured")

	return nil
}

// SetupDecoders allocates the left/right decoder pair.
func (e *Engine) SetupDecoders(intervalUs, streamHz, frameworkHz int) error {
	if e.decoderLeft != nil {
		logrus.WithFields(logrus.Fields{
			"function": "SetupDecoders",
		}).Warn("Decoder instances should have been released already")
		e.ReleaseDecoders()
	}

	left, err := e.lc3.NewDecoder(intervalUs, streamHz, frameworkHz)
	if err != nil {
		return fmt.Errorf("setting up left decoder: %w", err)
	}
	right, err := e.lc3.NewDecoder(intervalUs, streamHz, frameworkHz)
	if err != nil {
		return fmt.Errorf("setting up right decoder: %w", err)
	}

	e.decoderLeft = left
	e.decoderRight = right
	samples, err := DecodedBufferSamples(intervalUs, frameworkHz)
	if err != nil {
		return err
	}
	e.decoderSamples = samples
	e.decodersLive += 2

	return nil
}

// ReleaseEncoders drops the encoder pair.
func (e *Engine) ReleaseEncoders() {
	if e.encoderLeft != nil {
		e.encoderLeft = nil
		e.encoderRight = nil
		e.encodersLive -= 2
	}
}

// ReleaseDecoders drops the decoder pair.
func (e *Engine) ReleaseDecoders() {
	if e.decoderLeft != nil {
		e.decoderLeft = nil
		e.decoderRight = nil
		e.decodersLive -= 2
	}
}

// Release drops every codec instance.
func (e *Engine) Release() {
	e.ReleaseEncoders()
	e.ReleaseDecoders()
}

// LiveInstances reports allocated (encoders, decoders), for leak
// checks and DebugDump.
func (e *Engine) LiveInstances() (int, int) {
	return e.encodersLive, e.decodersLive
}

// HasEncoders reports whether the encoder pair is configured.
func (e *Engine) HasEncoders() bool { return e.encoderLeft != nil }

// HasDecoders reports whether the decoder pair is configured.
func (e *Engine) HasDecoders() bool { return e.decoderLeft != nil }

// FrameSamples is the per-channel sample count one encoded frame
// consumes from the framework PCM.
func (e *Engine) FrameSamples() int { return e.encoderSamples }

// DecodedSamples is the per-channel PCM size one decoded frame
// produces.
func (e *Engine) DecodedSamples() int { return e.decoderSamples }

// EncodeStereoSplit encodes interleaved stereo PCM into two SDUs of
// octets bytes each, left channel first.
func (e *Engine) EncodeStereoSplit(pcm []int16, octets int) (left, right []byte, err error) {
	if e.encoderLeft == nil {
		return nil, nil, ErrNotConfigured
	}

	left = make([]byte, octets)
	right = make([]byte, octets)

	if err := e.encoderLeft.Encode(pcm, 2, left); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrEncodeFailed, err)
	}
	if err := e.encoderRight.Encode(pcm[1:], 2, right); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrEncodeFailed, err)
	}
	return left, right, nil
}

// EncodeMono downmixes interleaved stereo PCM and encodes one SDU of
// octets bytes on the requested side's encoder.
func (e *Engine) EncodeMono(pcm []int16, octets int, useRight bool) ([]byte, error) {
	if e.encoderLeft == nil {
		return nil, ErrNotConfigured
	}

	mono := DownmixToMono(pcm, e.encoderSamples)
	out := make([]byte, octets)

	enc := e.encoderLeft
	if useRight {
		enc = e.encoderRight
	}
	if err := enc.Encode(mono, 1, out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncodeFailed, err)
	}
	return out, nil
}

// EncodeDualChannel encodes both channels of interleaved stereo PCM
// into one concatenated SDU of 2*octets bytes, for a single device
// carrying two channels on one CIS.
func (e *Engine) EncodeDualChannel(pcm []int16, octets int) ([]byte, error) {
	if e.encoderLeft == nil {
		return nil, ErrNotConfigured
	}

	out := make([]byte, 2*octets)
	if err := e.encoderLeft.Encode(pcm, 2, out[:octets]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncodeFailed, err)
	}
	if err := e.encoderRight.Encode(pcm[1:], 2, out[octets:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncodeFailed, err)
	}
	return out, nil
}

// Decode runs one channel's SDU through the matching decoder. A nil
// payload performs packet loss concealment.
func (e *Engine) Decode(isLeft bool, payload []byte) ([]int16, error) {
	if e.decoderLeft == nil {
		return nil, ErrNotConfigured
	}

	out := make([]int16, e.decoderSamples)
	dec := e.decoderLeft
	if !isLeft {
		dec = e.decoderRight
	}
	if err := dec.Decode(payload, 1, out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}
	return out, nil
}

// DownmixToMono folds interleaved stereo into mono with a 1-bit
// headroom shift on each channel before averaging, so the sum cannot
// overflow int16.
func DownmixToMono(pcm []int16, samplesPerChannel int) []int16 {
	mono := make([]int16, 0, samplesPerChannel)
	for i := 0; i < samplesPerChannel; i++ {
		left := pcm[2*i] >> 1
		right := pcm[2*i+1] >> 1
		mono = append(mono, int16((int32(left)+int32(right))>>1))
	}
	return mono
}

// MixToFramework adapts decoded Bluetooth channels to the framework
// layout. Exactly one of left/right may be nil when btStereo is false.
//
// The four cases: stereo→stereo interleaves, stereo→mono averages,
// mono→stereo duplicates into both slots, mono→mono passes through.
func MixToFramework(btStereo, afStereo bool, left, right []int16) []int16 {
	switch {
	case !btStereo && !afStereo:
		mono := left
		if mono == nil {
			mono = right
		}
		return mono

	case btStereo && afStereo:
		mixed := make([]int16, 2*len(left))
		for i := range left {
			mixed[2*i] = left[i]
			mixed[2*i+1] = right[i]
		}
		return mixed

	case btStereo && !afStereo:
		mixed := make([]int16, len(left))
		for i := range left {
			mixed[i] = int16((int32(left[i]) + int32(right[i])) / 2)
		}
		return mixed

	default: // mono over bluetooth, framework expects stereo
		mono := left
		if mono == nil {
			mono = right
		}
		mixed := make([]int16, 2*len(mono))
		for i := range mono {
			mixed[2*i] = mono[i]
			mixed[2*i+1] = mono[i]
		}
		return mixed
	}
}
