package audio

import (
	"math"
	"time"
)

// Frame is one fixed-length block of signed 16-bit mono PCM samples.
// Frame length and sample rate are fixed for the process lifetime and must
// match across every detector consuming the stream.
type Frame []int16

// Clone returns an independent copy of the frame. The capture callback reuses
// its buffers, so anything held past the callback must be cloned.
func Clone(f Frame) Frame {
	out := make(Frame, len(f))
	copy(out, f)
	return out
}

// MeanAbs returns the mean absolute sample value of the frame.
func MeanAbs(f Frame) float64 {
	if len(f) == 0 {
		return 0
	}
	var sum float64
	for _, s := range f {
		sum += math.Abs(float64(s))
	}
	return sum / float64(len(f))
}

// RMS returns the root-mean-square energy of the frame normalized to [0,1].
func RMS(f Frame) float64 {
	if len(f) == 0 {
		return 0
	}
	var sum float64
	for _, s := range f {
		v := float64(s) / 32768.0
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(f)))
}

// FrameDuration returns the wall-clock duration of one frame.
func FrameDuration(frameLength, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(frameLength) / float64(sampleRate) * float64(time.Second))
}

// BytesToFrame decodes little-endian 16-bit PCM bytes into a Frame.
// A trailing odd byte is ignored.
func BytesToFrame(b []byte) Frame {
	n := len(b) / 2
	f := make(Frame, n)
	for i := 0; i < n; i++ {
		f[i] = int16(uint16(b[2*i]) | uint16(b[2*i+1])<<8)
	}
	return f
}

// FrameToBytes encodes a Frame as little-endian 16-bit PCM bytes.
func FrameToBytes(f Frame) []byte {
	b := make([]byte, 2*len(f))
	for i, s := range f {
		b[2*i] = byte(uint16(s))
		b[2*i+1] = byte(uint16(s) >> 8)
	}
	return b
}
