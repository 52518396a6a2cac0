package vad

// VADEvent represents a voice activity detection result for a single audio frame.
type VADEvent struct {
	// Type is the detection result.
	Type VADEventType

	// Probability is the speech probability score (0.0–1.0). Binary engines
	// report 1 for speech and 0 for silence.
	Probability float64
}

// IsSpeech reports whether the frame carrying this event contained speech.
func (e VADEvent) IsSpeech() bool {
	return e.Type == VADSpeechStart || e.Type == VADSpeechContinue
}

// VADEventType enumerates VAD detection states.
type VADEventType int

const (
	// VADSpeechStart indicates speech has just begun.
	VADSpeechStart VADEventType = iota

	// VADSpeechContinue indicates ongoing speech.
	VADSpeechContinue

	// VADSpeechEnd indicates speech has just ended.
	VADSpeechEnd

	// VADSilence indicates no speech detected.
	VADSilence
)

// String returns the human-readable name of the event type.
func (t VADEventType) String() string {
	switch t {
	case VADSpeechStart:
		return "speech_start"
	case VADSpeechContinue:
		return "speech_continue"
	case VADSpeechEnd:
		return "speech_end"
	case VADSilence:
		return "silence"
	default:
		return "unknown"
	}
}

// Transition converts a per-frame speech decision into an event, given
// whether the previous frame was speech.
func Transition(wasSpeech, isSpeech bool) VADEventType {
	switch {
	case isSpeech && !wasSpeech:
		return VADSpeechStart
	case isSpeech:
		return VADSpeechContinue
	case wasSpeech:
		return VADSpeechEnd
	default:
		return VADSilence
	}
}
