package detector

import (
	"math"

	"github.com/lmor152/jarvis-monorepo/internal/audio"
)

// defaultRMSThreshold is a raw int16 RMS level; roughly quiet-room speech on a
// consumer microphone.
const defaultRMSThreshold = 300.0

// EnergyVAD is a frame-energy voice activity detector with short-window
// majority smoothing. It reports the fraction of recent frames whose RMS
// crossed the threshold, so the probability settles quickly but single noisy
// frames do not flip the voice flag.
type EnergyVAD struct {
	threshold float64
	window    []bool
	windowN   int
}

// NewEnergyVAD creates a detector with the default threshold and a 4-frame
// smoothing window.
func NewEnergyVAD(frameLength int) *EnergyVAD {
	_ = frameLength // energy VAD accepts any frame length
	return &EnergyVAD{threshold: defaultRMSThreshold, windowN: 4}
}

// Process returns the smoothed voice probability for the frame.
func (v *EnergyVAD) Process(frame audio.Frame) (float64, error) {
	if len(frame) == 0 {
		return 0, nil
	}
	var sum float64
	for _, s := range frame {
		f := float64(s)
		sum += f * f
	}
	rms := math.Sqrt(sum / float64(len(frame)))

	v.window = append(v.window, rms >= v.threshold)
	if len(v.window) > v.windowN {
		v.window = v.window[len(v.window)-v.windowN:]
	}
	voiced := 0
	for _, b := range v.window {
		if b {
			voiced++
		}
	}
	return float64(voiced) / float64(len(v.window)), nil
}

// Reset clears the smoothing window.
func (v *EnergyVAD) Reset() {
	v.window = v.window[:0]
}

// Release is a no-op; the energy VAD holds no engine resources.
func (v *EnergyVAD) Release() {}
