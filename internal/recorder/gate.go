package recorder

import (
	"fmt"

	"github.com/MrWong99/voxwriter/pkg/audio"
	"github.com/MrWong99/voxwriter/pkg/provider/vad"
)

// Classifier labels a frame as speech or non-speech.
type Classifier interface {
	Classify(f audio.Frame) (bool, error)
}

// GateAggressiveness is the VAD aggressiveness of every speech gate. It is
// the highest level, so borderline frames are rejected as non-speech.
const GateAggressiveness = 3

// Gate is the speech gate: a [Classifier] backed by one VAD session at
// [GateAggressiveness]. A Gate is used by a single recorder and is not safe
// for concurrent use.
type Gate struct {
	sess       vad.SessionHandle
	frameBytes int
}

// NewGate opens a VAD session on engine. The aggressiveness in cfg is
// replaced by [GateAggressiveness]. The engine rejects configurations whose
// frame duration it cannot classify with an error wrapping [vad.ErrFrameSize].
func NewGate(engine vad.Engine, cfg vad.Config) (*Gate, error) {
	cfg.Aggressiveness = GateAggressiveness
	sess, err := engine.NewSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("recorder: open speech gate: %w", err)
	}
	return &Gate{sess: sess, frameBytes: cfg.FrameBytes()}, nil
}

// Classify implements [Classifier]. A frame whose length differs from the
// configured frame size yields an error wrapping [vad.ErrFrameSize].
func (g *Gate) Classify(f audio.Frame) (bool, error) {
	pcm := audio.Int16ToBytes(f.Samples)
	if len(pcm) != g.frameBytes {
		return false, fmt.Errorf("recorder: classify frame: %w: got %d bytes, want %d", vad.ErrFrameSize, len(pcm), g.frameBytes)
	}
	ev, err := g.sess.ProcessFrame(pcm)
	if err != nil {
		return false, fmt.Errorf("recorder: classify frame: %w", err)
	}
	return ev.IsSpeech(), nil
}

// Close releases the VAD session.
func (g *Gate) Close() error {
	return g.sess.Close()
}
