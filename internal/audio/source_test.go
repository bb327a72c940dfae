package audio

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/faiface/beep"
	"github.com/faiface/beep/wav"
)

// writeWAV writes frames of a constant stereo level at rate Hz.
func writeWAV(t *testing.T, rate, frames int, level float64) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	dc := beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		for i := range samples {
			samples[i] = [2]float64{level, level}
		}
		return len(samples), true
	})
	format := beep.Format{SampleRate: beep.SampleRate(rate), NumChannels: 2, Precision: 2}
	if err := wav.Encode(f, beep.Take(frames, dc), format); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSilenceSourceClearsWindow(t *testing.T) {
	w := []int16{5, -5, 7}
	if err := (SilenceSource{}).Read(w); err != nil {
		t.Fatal(err)
	}
	if MeanLevel(w) != 0 {
		t.Fatalf("window = %v, want zeros", w)
	}
}

func TestWAVSourceLoops(t *testing.T) {
	path := writeWAV(t, 16000, 100, 0.25)
	tests := []struct {
		name string
		rate int
	}{
		{"native rate", 16000},
		{"resampled", 44100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := OpenWAV(path, tt.rate)
			if err != nil {
				t.Fatal(err)
			}
			defer src.Close()

			// 5 windows of 256 samples is far past the 100 frame clip.
			w := make([]int16, 256)
			for i := 0; i < 5; i++ {
				if err := src.Read(w); err != nil {
					if errors.Is(err, ErrShortRead) {
						t.Fatalf("window %d: clip did not loop", i)
					}
					t.Fatalf("window %d: %v", i, err)
				}
				if lvl := MeanLevel(w); lvl < 0.2 || lvl > 0.3 {
					t.Fatalf("window %d: level = %.3f, want ~0.25", i, lvl)
				}
			}
		})
	}
}

func TestOpenWAVMissingFile(t *testing.T) {
	if _, err := OpenWAV(filepath.Join(t.TempDir(), "nope.wav"), 16000); err == nil {
		t.Fatal("expected error for missing file")
	}
}
