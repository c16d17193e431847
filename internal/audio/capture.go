package audio

import (
	"fmt"
	"log"

	"github.com/gen2brain/malgo"
)

// Capture owns the microphone input device and invokes a single callback per
// fixed-length frame. The device callback runs on a realtime audio thread;
// the frame callback must never block.
type Capture struct {
	ctx      *malgo.AllocatedContext
	device   *malgo.Device
	rest     []byte
	frameLen int
	onFrame  func(Frame)
}

// NewCapture opens the default mono input device at the given rate. Incoming
// byte buffers are re-sliced into exact frameLength sample frames before the
// callback fires.
func NewCapture(sampleRate, frameLength int, onFrame func(Frame)) (*Capture, error) {
	if frameLength <= 0 {
		return nil, fmt.Errorf("capture: invalid frame length %d", frameLength)
	}

	ctxConfig := malgo.ContextConfig{}
	ctxConfig.ThreadPriority = malgo.ThreadPriorityRealtime
	ctx, err := malgo.InitContext(nil, ctxConfig, nil)
	if err != nil {
		return nil, fmt.Errorf("capture: init context: %w", err)
	}

	c := &Capture{
		ctx:      ctx,
		rest:     make([]byte, 0, frameLength*4),
		frameLen: frameLength,
		onFrame:  onFrame,
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(sampleRate)
	deviceConfig.PeriodSizeInMilliseconds = 20

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			c.consume(input)
		},
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, callbacks)
	if err != nil {
		_ = ctx.Uninit()
		return nil, fmt.Errorf("capture: init device: %w", err)
	}
	c.device = device
	return c, nil
}

// Start begins delivering frames.
func (c *Capture) Start() error {
	if err := c.device.Start(); err != nil {
		return fmt.Errorf("capture: start device: %w", err)
	}
	return nil
}

// Close stops the device and releases the audio context.
func (c *Capture) Close() {
	if c.device != nil {
		if err := c.device.Stop(); err != nil {
			log.Printf("capture: stop device: %v", err)
		}
		c.device.Uninit()
	}
	if c.ctx != nil {
		_ = c.ctx.Uninit()
		c.ctx.Free()
	}
}

// consume splits the device buffer into exact frames. Runs on the device
// callback thread only, so the carry-over slice needs no locking.
func (c *Capture) consume(input []byte) {
	c.rest = append(c.rest, input...)
	frameBytes := c.frameLen * 2
	for len(c.rest) >= frameBytes {
		frame := BytesToFrame(c.rest[:frameBytes])
		c.rest = c.rest[:copy(c.rest, c.rest[frameBytes:])]
		if c.onFrame != nil {
			c.onFrame(frame)
		}
	}
}
