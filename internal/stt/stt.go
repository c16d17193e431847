// Package stt adapts transcription engines to the frame-level interface the
// orchestrator consumes. Two strategies sit behind the same Adapter: a
// low-latency streaming engine that detects endpoints itself, and a
// silence-triggered batch accumulator for one-shot transcription backends.
package stt

import (
	"log"

	"github.com/lmor152/jarvis-monorepo/internal/audio"
)

// Adapter is the frame-level transcription interface.
//
// Process accepts one PCM frame and returns any newly recognized partial text
// plus whether the utterance endpoint was reached. Flush forces transcription
// of whatever is buffered. Reset discards buffered audio so a new turn starts
// clean. Release disposes engine resources.
type Adapter interface {
	Process(frame audio.Frame) (string, bool)
	Flush() string
	Reset()
	Release()
}

// Engine is a transcription engine with native frame-by-frame endpointing.
type Engine interface {
	Process(frame audio.Frame) (string, bool, error)
	Flush() (string, error)
	Reset()
	Release()
}

// Streaming wraps a native-endpointing engine, degrading engine failures to
// "no text this frame" so one bad frame never aborts a turn.
type Streaming struct {
	engine Engine
}

// NewStreaming wraps the given engine.
func NewStreaming(engine Engine) *Streaming {
	return &Streaming{engine: engine}
}

func (s *Streaming) Process(frame audio.Frame) (string, bool) {
	text, endpoint, err := s.engine.Process(frame)
	if err != nil {
		log.Printf("stt: engine process error: %v", err)
		return "", false
	}
	return text, endpoint
}

func (s *Streaming) Flush() string {
	text, err := s.engine.Flush()
	if err != nil {
		log.Printf("stt: engine flush error: %v", err)
		return ""
	}
	return text
}

func (s *Streaming) Reset() { s.engine.Reset() }

func (s *Streaming) Release() { s.engine.Release() }
