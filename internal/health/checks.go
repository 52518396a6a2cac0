package health

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/voxwriter/pkg/audio"
	"github.com/MrWong99/voxwriter/pkg/provider/vad"
)

// VAD returns a [Checker] named "vad" that opens and closes a session on
// engine with cfg, proving the speech gate can be built for the configured
// frame format.
func VAD(engine vad.Engine, cfg vad.Config) Checker {
	return Checker{
		Name: "vad",
		Check: func(context.Context) error {
			sess, err := engine.NewSession(cfg)
			if err != nil {
				return err
			}
			return sess.Close()
		},
	}
}

// Capture returns a [Checker] named "capture". When dev can enumerate its
// inputs, at least one device with an input channel must exist.
func Capture(dev audio.Device) Checker {
	return Checker{
		Name: "capture",
		Check: func(context.Context) error {
			l, ok := dev.(audio.Lister)
			if !ok {
				return nil
			}
			devices, err := l.Devices()
			if err != nil {
				return fmt.Errorf("list devices: %w", err)
			}
			for _, d := range devices {
				if d.MaxInputChannels > 0 {
					return nil
				}
			}
			return errors.New("no input device")
		},
	}
}

// Transcriber returns a [Checker] named "transcriber" that calls ready, which
// should report whether a transcription backend can be constructed.
func Transcriber(ready func(ctx context.Context) error) Checker {
	return Checker{Name: "transcriber", Check: ready}
}
