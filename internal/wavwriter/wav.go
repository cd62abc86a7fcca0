// Package wavwriter records the stereo output of the sound unit as a 16-bit
// PCM WAV file. Samples are buffered in memory and written on Close.
package wavwriter

import (
	"fmt"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	channels = 2
	bitDepth = 16
	pcm      = 1 // WAVE_FORMAT_PCM
)

type WavWriter struct {
	filename   string
	sampleRate int
	buffer     []int
}

func New(filename string, sampleRate int) (*WavWriter, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("wavwriter: invalid sample rate %d", sampleRate)
	}
	return &WavWriter{filename: filename, sampleRate: sampleRate}, nil
}

// WriteStereo appends interleaved L,R frames.
func (w *WavWriter) WriteStereo(frames []int16) {
	for _, s := range frames {
		w.buffer = append(w.buffer, int(s))
	}
}

// Frames returns the number of stereo frames buffered so far.
func (w *WavWriter) Frames() int { return len(w.buffer) / channels }

// Close writes the buffered audio to disk.
func (w *WavWriter) Close() (rerr error) {
	f, err := os.Create(w.filename)
	if err != nil {
		return fmt.Errorf("wavwriter: %w", err)
	}
	defer func() {
		if err := f.Close(); err != nil && rerr == nil {
			rerr = fmt.Errorf("wavwriter: %w", err)
		}
	}()

	enc := wav.NewEncoder(f, w.sampleRate, bitDepth, channels, pcm)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: w.sampleRate},
		Data:           w.buffer,
		SourceBitDepth: bitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("wavwriter: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("wavwriter: %w", err)
	}
	return nil
}
