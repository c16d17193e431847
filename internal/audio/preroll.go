package audio

import "math"

// PreRoll retains the most recent frames heard while the satellite is idle so
// the tail of the wake phrase can be replayed into a fresh turn.
//
// It is owned by the audio-callback path and is not safe for concurrent use;
// callers serialize access through the orchestrator.
type PreRoll struct {
	frames []Frame
	max    int
}

// NewPreRoll sizes the buffer to hold roughly seconds worth of frames.
func NewPreRoll(sampleRate, frameLength int, seconds float64) *PreRoll {
	max := 1
	if sampleRate > 0 && frameLength > 0 && seconds > 0 {
		max = int(math.Ceil(float64(sampleRate) * seconds / float64(frameLength)))
		if max < 1 {
			max = 1
		}
	}
	return &PreRoll{frames: make([]Frame, 0, max), max: max}
}

// Push appends a copy of the frame, evicting the oldest on overflow.
func (p *PreRoll) Push(f Frame) {
	if len(p.frames) == p.max {
		copy(p.frames, p.frames[1:])
		p.frames = p.frames[:len(p.frames)-1]
	}
	p.frames = append(p.frames, Clone(f))
}

// Drain returns all buffered frames in arrival order and empties the buffer.
func (p *PreRoll) Drain() []Frame {
	out := p.frames
	p.frames = make([]Frame, 0, p.max)
	return out
}

// Clear discards all buffered frames.
func (p *PreRoll) Clear() {
	p.frames = p.frames[:0]
}

// Len reports the number of buffered frames.
func (p *PreRoll) Len() int { return len(p.frames) }

// Cap reports the fixed frame capacity.
func (p *PreRoll) Cap() int { return p.max }
