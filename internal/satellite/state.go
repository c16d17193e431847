// Package satellite implements the turn-taking state machine that coordinates
// wake spotting, transcription, speaker attribution, dialogue exchanges, and
// interruptible playback over a shared microphone frame stream.
package satellite

import "log"

// Mode is the satellite's top-level state. The machine runs for process
// lifetime; there is no terminal mode.
type Mode int

const (
	ModeIdle Mode = iota
	ModeListening
	ModeThinking
	ModeSpeaking
)

func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "idle"
	case ModeListening:
		return "listening"
	case ModeThinking:
		return "thinking"
	case ModeSpeaking:
		return "speaking"
	default:
		return "unknown"
	}
}

// Feedback receives state changes and user-visible text. Implementations
// drive LEDs, displays, or logs; calls arrive from the frame path and must
// return quickly.
type Feedback interface {
	SetState(mode Mode)
	DisplayText(text string)
}

// ConsoleFeedback logs state changes and text to the process log.
type ConsoleFeedback struct{}

func (ConsoleFeedback) SetState(mode Mode) { log.Printf("satellite: state -> %s", mode) }

func (ConsoleFeedback) DisplayText(text string) {
	if text != "" {
		log.Printf("satellite: %s", text)
	}
}

// NopFeedback discards all feedback.
type NopFeedback struct{}

func (NopFeedback) SetState(Mode)      {}
func (NopFeedback) DisplayText(string) {}
