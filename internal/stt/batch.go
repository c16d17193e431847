package stt

import (
	"context"
	"log"
	"math"
	"time"

	"github.com/lmor152/jarvis-monorepo/internal/audio"
)

// BatchTranscriber performs one-shot transcription of a buffered utterance.
type BatchTranscriber interface {
	Transcribe(ctx context.Context, pcm []int16) (string, error)
	Release()
}

// Batch accumulates frames and emits a single transcription request once
// voiced audio has been followed by enough consecutive low-energy frames.
// Endpointing is driven by mean absolute sample energy, so it works with any
// backend that only transcribes complete clips.
type Batch struct {
	transcriber BatchTranscriber
	timeout     time.Duration

	minEnergy      float64
	endpointFrames int

	buffer        []int16
	silenceFrames int
	hasVoice      bool
}

// NewBatch derives the silence-frame threshold from endpointSilenceMs and the
// frame duration implied by frameLength/sampleRate.
func NewBatch(transcriber BatchTranscriber, sampleRate, frameLength, endpointSilenceMs int, minEnergy float64, timeout time.Duration) *Batch {
	frameDurationMs := 1000.0 * float64(frameLength) / float64(sampleRate)
	frames := 1
	if frameDurationMs > 0 {
		frames = int(math.Ceil(float64(endpointSilenceMs) / frameDurationMs))
		if frames < 1 {
			frames = 1
		}
	}
	return &Batch{
		transcriber:    transcriber,
		timeout:        timeout,
		minEnergy:      minEnergy,
		endpointFrames: frames,
	}
}

func (b *Batch) Process(frame audio.Frame) (string, bool) {
	b.buffer = append(b.buffer, frame...)

	if audio.MeanAbs(frame) >= b.minEnergy {
		b.silenceFrames = 0
		b.hasVoice = true
	} else {
		b.silenceFrames++
	}

	if b.hasVoice && b.silenceFrames >= b.endpointFrames {
		return b.transcribeBuffer(), true
	}
	return "", false
}

// Flush forces transcription of whatever is buffered.
func (b *Batch) Flush() string {
	return b.transcribeBuffer()
}

// Reset discards buffered audio and clears the voice-seen flag.
func (b *Batch) Reset() {
	b.buffer = b.buffer[:0]
	b.silenceFrames = 0
	b.hasVoice = false
}

func (b *Batch) Release() {
	b.transcriber.Release()
}

func (b *Batch) transcribeBuffer() string {
	if len(b.buffer) == 0 {
		return ""
	}
	pcm := make([]int16, len(b.buffer))
	copy(pcm, b.buffer)
	b.Reset()

	ctx := context.Background()
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}
	text, err := b.transcriber.Transcribe(ctx, pcm)
	if err != nil {
		log.Printf("stt: batch transcription error: %v", err)
		return ""
	}
	return text
}
