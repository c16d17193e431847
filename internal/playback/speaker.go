package playback

import (
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// Speaker plays audio through the default output device. The underlying oto
// context is created once, on first Open, at the sample rate requested there.
type Speaker struct {
	mu         sync.Mutex
	ctx        *oto.Context
	sampleRate int
}

// NewSpeaker returns an uninitialized speaker. The audio context comes up
// lazily so construction never touches the device.
func NewSpeaker() *Speaker {
	return &Speaker{}
}

// Open returns a stream for one utterance. The first call fixes the device
// sample rate; later calls must use the same rate.
func (s *Speaker) Open(sampleRate int) (OutputStream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx == nil {
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: 1,
			Format:       oto.FormatSignedInt16LE,
		})
		if err != nil {
			return nil, fmt.Errorf("init audio output: %w", err)
		}
		<-ready
		s.ctx = ctx
		s.sampleRate = sampleRate
	}
	if sampleRate != s.sampleRate {
		return nil, fmt.Errorf("output device runs at %d Hz, got %d Hz", s.sampleRate, sampleRate)
	}

	st := &speakerStream{}
	st.cond = sync.NewCond(&st.mu)
	st.ctx = s.ctx
	return st, nil
}

// speakerStream buffers PCM and feeds it to an oto player, which pulls via
// Read. The player starts on the first write so silent jobs never open one.
type speakerStream struct {
	ctx    *oto.Context
	player *oto.Player

	mu     sync.Mutex
	cond   *sync.Cond
	buf    []byte
	closed bool
}

func (st *speakerStream) Write(chunk []float32) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.closed {
		return fmt.Errorf("write to closed output stream")
	}

	for _, f := range chunk {
		if f > 1 {
			f = 1
		} else if f < -1 {
			f = -1
		}
		v := int16(f * 32767)
		st.buf = append(st.buf, byte(v), byte(v>>8))
	}

	if st.player == nil {
		st.player = st.ctx.NewPlayer(st)
		st.player.Play()
	}
	st.cond.Signal()
	return nil
}

// Read implements io.Reader for the oto player.
func (st *speakerStream) Read(p []byte) (int, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	for len(st.buf) == 0 && !st.closed {
		st.cond.Wait()
	}
	if len(st.buf) == 0 {
		// Closed and drained: feed silence so oto plays out its own buffer.
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}
	n := copy(p, st.buf)
	st.buf = st.buf[n:]
	if len(st.buf) == 0 {
		st.cond.Broadcast()
	}
	return n, nil
}

// Close blocks until the buffered audio has been handed to the device, then
// tears the player down.
func (st *speakerStream) Close() error {
	st.mu.Lock()
	for len(st.buf) > 0 && st.player != nil && !st.closed {
		st.cond.Wait()
	}
	st.closed = true
	player := st.player
	st.player = nil
	st.cond.Broadcast()
	st.mu.Unlock()

	if player != nil {
		// oto holds a short internal buffer; let it play out before closing.
		time.Sleep(100 * time.Millisecond)
		return player.Close()
	}
	return nil
}

// Abort drops everything still buffered and stops the player immediately.
func (st *speakerStream) Abort() {
	st.mu.Lock()
	st.buf = st.buf[:0]
	st.closed = true
	player := st.player
	st.player = nil
	st.cond.Broadcast()
	st.mu.Unlock()

	if player != nil {
		player.Pause()
		player.Reset()
		player.Close()
	}
}
