package audio

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// wavFormatPCM is the RIFF audio format tag for uncompressed PCM.
const wavFormatPCM = 1

// WriteWAV writes samples as a single-channel 16-bit PCM WAV container at
// sampleRate.
func WriteWAV(w io.WriteSeeker, samples []int16, sampleRate int) error {
	if sampleRate <= 0 {
		return fmt.Errorf("audio: wav sample rate must be positive, got %d", sampleRate)
	}
	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}

	enc := wav.NewEncoder(w, sampleRate, BitsPerSample, 1, wavFormatPCM)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: BitsPerSample,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("audio: write wav samples: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("audio: finalise wav header: %w", err)
	}
	return nil
}

// ReadWAV decodes a 16-bit PCM WAV container. Multi-channel input is
// down-mixed to mono by averaging.
func ReadWAV(r io.ReadSeeker) (samples []int16, sampleRate int, err error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, 0, errors.New("audio: not a valid wav file")
	}
	if dec.BitDepth != BitsPerSample {
		return nil, 0, fmt.Errorf("audio: unsupported wav bit depth %d", dec.BitDepth)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("audio: decode wav: %w", err)
	}

	channels := int(dec.NumChans)
	if channels <= 1 {
		return IntsToInt16(buf.Data), int(dec.SampleRate), nil
	}
	mono := make([]int, len(buf.Data)/channels)
	for i := range mono {
		sum := 0
		for ch := range channels {
			sum += buf.Data[i*channels+ch]
		}
		mono[i] = sum / channels
	}
	return IntsToInt16(mono), int(dec.SampleRate), nil
}

// ReadWAVFile opens path and decodes it with ReadWAV.
func ReadWAVFile(path string) (samples []int16, sampleRate int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("audio: open wav %q: %w", path, err)
	}
	defer f.Close()
	return ReadWAV(f)
}

// WithTempWAV writes samples to a new temporary WAV file in dir (the system
// temp directory when dir is empty), calls fn with its path, and removes the
// file before returning, whether fn succeeded, failed, or panicked. A removal
// failure is joined to fn's error.
func WithTempWAV(dir string, samples []int16, sampleRate int, fn func(path string) error) (err error) {
	f, err := os.CreateTemp(dir, "voxwriter-*.wav")
	if err != nil {
		return fmt.Errorf("audio: create temp wav: %w", err)
	}
	path := f.Name()

	defer func() {
		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			err = errors.Join(err, fmt.Errorf("audio: remove temp wav %q: %w", path, rmErr))
		}
	}()

	writeErr := WriteWAV(f, samples, sampleRate)
	closeErr := f.Close()
	if writeErr != nil {
		return writeErr
	}
	if closeErr != nil {
		return fmt.Errorf("audio: close temp wav: %w", closeErr)
	}

	return fn(path)
}
