package detector

import (
	"fmt"
	"strings"

	porcupine "github.com/Picovoice/porcupine/binding/go/v3"

	"github.com/lmor152/jarvis-monorepo/internal/audio"
)

var builtInKeywords = map[string]porcupine.BuiltInKeyword{
	"alexa":       porcupine.ALEXA,
	"americano":   porcupine.AMERICANO,
	"blueberry":   porcupine.BLUEBERRY,
	"bumblebee":   porcupine.BUMBLEBEE,
	"computer":    porcupine.COMPUTER,
	"grapefruit":  porcupine.GRAPEFRUIT,
	"grasshopper": porcupine.GRASSHOPPER,
	"jarvis":      porcupine.JARVIS,
	"picovoice":   porcupine.PICOVOICE,
	"porcupine":   porcupine.PORCUPINE,
	"terminator":  porcupine.TERMINATOR,
}

// PorcupineWake spots wake keywords with the Picovoice Porcupine engine. It
// serves both the wake phrase and the interrupt keyword; the orchestrator
// holds one instance for each.
type PorcupineWake struct {
	engine      porcupine.Porcupine
	keywords    []string
	frameLength int
	sampleRate  int
}

// NewPorcupineWake builds a spotter for the given keywords. The sensitivity
// list is padded with its last value or truncated to match the keyword list.
func NewPorcupineWake(accessKey string, keywords []string, sensitivities []float64) (*PorcupineWake, error) {
	if accessKey == "" {
		return nil, fmt.Errorf("detector: picovoice access key is required")
	}
	if len(keywords) == 0 {
		return nil, fmt.Errorf("detector: at least one wake keyword is required")
	}

	builtins := make([]porcupine.BuiltInKeyword, 0, len(keywords))
	for _, kw := range keywords {
		b, ok := builtInKeywords[strings.ToLower(strings.TrimSpace(kw))]
		if !ok {
			return nil, fmt.Errorf("detector: unsupported wake keyword %q", kw)
		}
		builtins = append(builtins, b)
	}

	sens := normalizeSensitivities(sensitivities, len(keywords))

	w := &PorcupineWake{
		engine: porcupine.Porcupine{
			AccessKey:       accessKey,
			BuiltInKeywords: builtins,
			Sensitivities:   sens,
		},
		keywords: append([]string(nil), keywords...),
	}
	if err := w.engine.Init(); err != nil {
		return nil, fmt.Errorf("detector: init porcupine: %w", err)
	}
	w.frameLength = porcupine.FrameLength
	w.sampleRate = porcupine.SampleRate
	return w, nil
}

// Keywords returns the configured keyword labels in Process index order.
func (w *PorcupineWake) Keywords() []string { return w.keywords }

func (w *PorcupineWake) FrameLength() int { return w.frameLength }

func (w *PorcupineWake) SampleRate() int { return w.sampleRate }

// Process returns the matched keyword index or -1.
func (w *PorcupineWake) Process(frame audio.Frame) (int, error) {
	return w.engine.Process(frame)
}

// Release disposes the underlying engine.
func (w *PorcupineWake) Release() {
	_ = w.engine.Delete()
}

// normalizeSensitivities pads the list with its last value or truncates it so
// one sensitivity lines up with each keyword.
func normalizeSensitivities(sens []float64, n int) []float32 {
	out := make([]float32, 0, n)
	for _, s := range sens {
		out = append(out, float32(s))
	}
	if len(out) == 0 {
		out = append(out, 0.5)
	}
	for len(out) < n {
		out = append(out, out[len(out)-1])
	}
	return out[:n]
}
