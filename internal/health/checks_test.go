package health

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/voxwriter/pkg/audio"
	audiomock "github.com/MrWong99/voxwriter/pkg/audio/mock"
	"github.com/MrWong99/voxwriter/pkg/provider/vad"
	vadmock "github.com/MrWong99/voxwriter/pkg/provider/vad/mock"
)

func TestVADCheck(t *testing.T) {
	cfg := vad.Config{SampleRate: 16000, FrameSizeMs: 30, Aggressiveness: 3}

	sess := &vadmock.Session{}
	engine := &vadmock.Engine{Session: sess}
	if err := VAD(engine, cfg).Check(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sess.CloseCallCount != 1 {
		t.Errorf("session closed %d times, want 1", sess.CloseCallCount)
	}
	if got := engine.NewSessionCalls[0].Cfg; got != cfg {
		t.Errorf("NewSession cfg = %+v, want %+v", got, cfg)
	}

	engine = &vadmock.Engine{NewSessionErr: vad.ErrFrameSize}
	if err := VAD(engine, cfg).Check(context.Background()); !errors.Is(err, vad.ErrFrameSize) {
		t.Errorf("err = %v, want ErrFrameSize", err)
	}
}

func TestCaptureCheck(t *testing.T) {
	tests := []struct {
		name    string
		dev     *audiomock.Device
		wantErr bool
	}{
		{"input present", &audiomock.Device{DevicesResult: []audio.DeviceInfo{
			{ID: "0", Name: "HDMI", MaxInputChannels: 0},
			{ID: "1", Name: "USB Mic", MaxInputChannels: 1},
		}}, false},
		{"output only", &audiomock.Device{DevicesResult: []audio.DeviceInfo{{ID: "0", Name: "HDMI"}}}, true},
		{"no devices", &audiomock.Device{}, true},
		{"list error", &audiomock.Device{DevicesErr: errors.New("portaudio not initialised")}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Capture(tt.dev).Check(context.Background())
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

type openOnly struct{}

func (openOnly) Open(audio.CaptureConfig, audio.PushFunc) (audio.Stream, error) { return nil, nil }

func TestCaptureCheck_NoLister(t *testing.T) {
	if err := Capture(openOnly{}).Check(context.Background()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestTranscriberCheck(t *testing.T) {
	want := errors.New("model missing")
	c := Transcriber(func(context.Context) error { return want })
	if c.Name != "transcriber" {
		t.Errorf("Name = %q", c.Name)
	}
	if err := c.Check(context.Background()); !errors.Is(err, want) {
		t.Errorf("err = %v, want %v", err, want)
	}
}
