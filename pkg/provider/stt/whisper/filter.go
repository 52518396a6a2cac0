package whisper

import (
	"fmt"

	"github.com/MrWong99/voxwriter/pkg/audio"
	"github.com/MrWong99/voxwriter/pkg/provider/vad"
)

const (
	defaultFilterFrameMs = 30
	defaultFilterPadMs   = 210
)

// SpeechFilter removes non-speech audio from a recording before inference.
// Frames within PadMs of a speech frame are kept so that word onsets and
// tails survive.
type SpeechFilter struct {
	Engine         vad.Engine
	FrameMs        int
	Aggressiveness int
	PadMs          int
}

// Apply classifies samples frame by frame and returns the concatenation of
// speech frames plus padding. A trailing partial frame is dropped. The result
// is empty when no frame contains speech.
func (f SpeechFilter) Apply(samples []int16, sampleRate int) ([]int16, error) {
	frameMs := f.FrameMs
	if frameMs <= 0 {
		frameMs = defaultFilterFrameMs
	}
	padMs := f.PadMs
	if padMs < 0 {
		padMs = 0
	} else if padMs == 0 {
		padMs = defaultFilterPadMs
	}

	sess, err := f.Engine.NewSession(vad.Config{
		SampleRate:     sampleRate,
		FrameSizeMs:    frameMs,
		Aggressiveness: f.Aggressiveness,
	})
	if err != nil {
		return nil, fmt.Errorf("whisper: vad filter: %w", err)
	}
	defer sess.Close()

	frameLen := audio.FrameSamples(sampleRate, frameMs)
	nFrames := len(samples) / frameLen
	speech := make([]bool, nFrames)
	for i := range nFrames {
		ev, err := sess.ProcessFrame(audio.Int16ToBytes(samples[i*frameLen : (i+1)*frameLen]))
		if err != nil {
			return nil, fmt.Errorf("whisper: vad filter frame %d: %w", i, err)
		}
		speech[i] = ev.IsSpeech()
	}

	pad := padMs / frameMs
	keep := make([]bool, nFrames)
	for i, s := range speech {
		if !s {
			continue
		}
		for j := max(0, i-pad); j <= min(nFrames-1, i+pad); j++ {
			keep[j] = true
		}
	}

	var out []int16
	for i, k := range keep {
		if k {
			out = append(out, samples[i*frameLen:(i+1)*frameLen]...)
		}
	}
	return out, nil
}
