// Package audio implements the audio-session coordinator: the twin
// sender/receiver sub-state-machines interlocking the platform audio
// framework's resume/suspend handshake with the group state machine's
// stream readiness, plus the PCM/SDU data plane between them.
package audio

import (
	"fmt"

	"github.com/opd-ai/leaudio/codec"
)

// State is one sub-machine's position in the framework handshake.
type State uint8

// Session states.
const (
	StateIdle State = iota
	StateReadyToStart
	StateStarted
	StateReadyToRelease
	StateReleasing
)

// String names the state for logs.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateReadyToStart:
		return "READY_TO_START"
	case StateStarted:
		return "STARTED"
	case StateReadyToRelease:
		return "READY_TO_RELEASE"
	case StateReleasing:
		return "RELEASING"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(s))
	}
}

// SourceSession is the platform audio source: the framework side that
// feeds PCM for the peripherals (speaker path). Acquire/Start pairs
// with Release/Stop; the streaming request handshake confirms or
// cancels a resume.
type SourceSession interface {
	Acquire() bool
	Release()
	Start(conf codec.PCMConfig, callbacks SourceCallbacks) bool
	Stop()
	ConfirmStreamingRequest()
	CancelStreamingRequest()
	SuspendedForReconfiguration()
	UpdateRemoteDelay(delayMs uint16)
}

// SinkSession is the platform audio sink: the framework side that
// consumes decoded microphone PCM.
type SinkSession interface {
	Acquire() bool
	Release()
	Start(conf codec.PCMConfig, callbacks SinkCallbacks) bool
	Stop()
	ConfirmStreamingRequest()
	CancelStreamingRequest()
	SuspendedForReconfiguration()
	UpdateRemoteDelay(delayMs uint16)
	// SendData delivers interleaved S16 PCM; returns bytes accepted.
	SendData(pcm []byte) int
}

// SourceCallbacks is implemented by the coordinator for the source
// session. All callbacks run on the main loop; done must be invoked
// synchronously before OnAudioSuspend returns so the framework
// observes ordering.
type SourceCallbacks interface {
	OnAudioDataReady(pcm []byte)
	OnAudioSuspend(done func())
	OnAudioResume()
	OnAudioMetadataUpdate(tracks []TrackMetadata)
}

// SinkCallbacks is implemented by the coordinator for the sink
// session.
type SinkCallbacks interface {
	OnAudioSuspend(done func())
	OnAudioResume()
}
