// Package detector defines the capability interfaces for the acoustic engines
// the satellite consumes. The engines themselves are external: each variant is
// selected once at construction and never switched mid-turn.
package detector

import (
	"fmt"

	"github.com/lmor152/jarvis-monorepo/internal/audio"
	"github.com/lmor152/jarvis-monorepo/internal/speakerid"
)

// WakeSpotter detects a trigger phrase in a continuous frame stream.
type WakeSpotter interface {
	FrameLength() int
	SampleRate() int
	// Process returns the index of the matched keyword, or -1 for no match.
	Process(frame audio.Frame) (int, error)
	Release()
}

// VoiceActivityDetector scores one frame with a voice probability in [0,1].
type VoiceActivityDetector interface {
	Process(frame audio.Frame) (float64, error)
	Reset()
	Release()
}

// SpeakerIdentifier scores one frame against the enrolled speaker profiles,
// returning one raw score per profile in Labels() order.
type SpeakerIdentifier interface {
	Labels() []string
	Process(frame audio.Frame) ([]float64, error)
	Release()
}

// NewVAD constructs the voice activity detector for the configured provider.
func NewVAD(provider string, frameLength int) (VoiceActivityDetector, error) {
	switch provider {
	case "energy":
		return NewEnergyVAD(frameLength), nil
	default:
		return nil, fmt.Errorf("detector: unsupported vad provider %q", provider)
	}
}

// NewSpeakerIdentifier constructs the speaker identifier for the configured
// provider. Profiles are loaded by the caller so enrollment problems surface
// before any engine is created. The "none" provider disables attribution.
func NewSpeakerIdentifier(provider string, profiles []speakerid.Profile) (SpeakerIdentifier, error) {
	switch provider {
	case "", "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("detector: unsupported recognition provider %q", provider)
	}
}
