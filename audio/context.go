package audio

import "github.com/opd-ai/leaudio/pacs"

// ContentType is the audio framework's track content classification.
type ContentType uint8

// Content types.
const (
	ContentUnknown ContentType = iota
	ContentSpeech
	ContentMusic
	ContentMovie
	ContentSonification
)

// Usage is the audio framework's track usage classification.
type Usage uint8

// Usages.
const (
	UsageUnknown Usage = iota
	UsageMedia
	UsageVoiceCommunication
	UsageGame
	UsageNotification
	UsageRingtone
	UsageAlarm
	UsageEmergency
)

// TrackMetadata describes one playing track.
type TrackMetadata struct {
	Content ContentType
	Usage   Usage
	Gain    float64
}

// classifyTrack maps (content, usage) to a context type. An ongoing
// conversational session is sticky: speech-adjacent content or
// call-adjacent usages keep it conversational.
func classifyTrack(current pacs.ContextType, content ContentType, usage Usage) pacs.ContextType {
	if current == pacs.ContextConversational {
		switch content {
		case ContentSonification, ContentSpeech:
			return pacs.ContextConversational
		}
		switch usage {
		case UsageRingtone, UsageNotification, UsageAlarm,
			UsageEmergency, UsageVoiceCommunication:
			return pacs.ContextConversational
		}
	}

	switch content {
	case ContentSpeech:
		return pacs.ContextConversational
	case ContentMusic, ContentMovie, ContentSonification:
		return pacs.ContextMedia
	}

	switch usage {
	case UsageVoiceCommunication:
		return pacs.ContextConversational
	case UsageGame:
		return pacs.ContextGame
	case UsageNotification:
		return pacs.ContextNotifications
	case UsageRingtone:
		return pacs.ContextRingtone
	case UsageAlarm:
		return pacs.ContextAlerts
	case UsageEmergency:
		return pacs.ContextEmergencyAlarm
	}

	return pacs.ContextMedia
}

// chooseContext selects from multiple candidates. Mini policy: voice
// first, media second, otherwise the first listed.
func chooseContext(candidates []pacs.ContextType) pacs.ContextType {
	for _, c := range candidates {
		if c == pacs.ContextConversational {
			return c
		}
	}
	for _, c := range candidates {
		if c == pacs.ContextMedia {
			return c
		}
	}
	return candidates[0]
}
