package leaudio

import (
	"errors"

	"github.com/opd-ai/leaudio/audio"
	"github.com/opd-ai/leaudio/codec"
	"github.com/opd-ai/leaudio/config"
	"github.com/opd-ai/leaudio/gatt"
	"github.com/opd-ai/leaudio/iso"
)

// Options collects the external collaborators and tunables of a
// Client.
type Options struct {
	// Config holds the tunables; nil selects the defaults.
	Config *config.Config

	// GattClient is the platform attribute-protocol client.
	GattClient gatt.Client

	// IsoManager is the HCI/ISO manager.
	IsoManager iso.Manager

	// LC3 is the codec library.
	LC3 codec.LC3Codec

	// AudioSource and AudioSink are the platform audio framework
	// sessions.
	AudioSource audio.SourceSession
	AudioSink   audio.SinkSession

	// Storage is the bonded-device store.
	Storage Storage

	// Groups is the CSIS/group-membership service.
	Groups GroupService
}

// Option validation errors.
var (
	ErrNoGattClient  = errors.New("leaudio: gatt client is required")
	ErrNoIsoManager  = errors.New("leaudio: iso manager is required")
	ErrNoCodec       = errors.New("leaudio: lc3 codec is required")
	ErrNoAudioSource = errors.New("leaudio: audio source session is required")
	ErrNoAudioSink   = errors.New("leaudio: audio sink session is required")
	ErrNoCallbacks   = errors.New("leaudio: callbacks are required")
)

func (o *Options) validate() error {
	switch {
	case o.GattClient == nil:
		return ErrNoGattClient
	case o.IsoManager == nil:
		return ErrNoIsoManager
	case o.LC3 == nil:
		return ErrNoCodec
	case o.AudioSource == nil:
		return ErrNoAudioSource
	case o.AudioSink == nil:
		return ErrNoAudioSink
	}
	return nil
}
