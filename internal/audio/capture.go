package audio

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
)

const (
	SampleRate = 16000
	Channels   = 1

	frameBytes = 3200 // 100ms @ 16kHz mono s16
)

// Capture streams fixed-size PCM frames from one Pulse source.
type Capture struct {
	device Device

	client *pulse.Client
	stream *pulse.RecordStream

	frames chan []byte
	stopCh chan struct{}

	mu       sync.Mutex
	pending  []byte
	stopped  bool
	inflight sync.WaitGroup
}

// StartCapture opens a 16 kHz mono s16 record stream on device. The capture
// stops when ctx ends or Release is called.
func StartCapture(ctx context.Context, device Device, mediaName string) (*Capture, error) {
	client, err := newClient()
	if err != nil {
		return nil, err
	}

	source, err := client.SourceByID(device.ID)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("resolve source %q: %w", device.ID, err)
	}

	c := &Capture{
		device: device,
		client: client,
		frames: make(chan []byte, 64),
		stopCh: make(chan struct{}),
	}

	writer := pulse.NewWriter(writerFunc(c.onPCM), pulseproto.FormatInt16LE)
	stream, err := client.NewRecord(
		writer,
		pulse.RecordSource(source),
		pulse.RecordMono,
		pulse.RecordSampleRate(SampleRate),
		pulse.RecordBufferFragmentSize(frameBytes),
		pulse.RecordMediaName(mediaName),
	)
	if err != nil {
		_ = c.Release()
		return nil, fmt.Errorf("create pulse record stream: %w", err)
	}
	c.stream = stream
	stream.Start()

	go func() {
		select {
		case <-ctx.Done():
			_ = c.Release()
		case <-c.stopCh:
		}
	}()
	return c, nil
}

// Device returns the captured source.
func (c *Capture) Device() Device {
	return c.device
}

// Frames delivers PCM frames until the capture is released.
func (c *Capture) Frames() <-chan []byte {
	return c.frames
}

// Release stops the stream, flushes the residual partial frame and closes
// Frames. It is safe to call more than once.
func (c *Capture) Release() error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	close(c.stopCh)
	c.mu.Unlock()

	if c.stream != nil {
		c.stream.Stop()
		c.stream.Close()
	}
	if c.client != nil {
		c.client.Close()
	}

	c.inflight.Wait()

	c.mu.Lock()
	tail := c.pending
	c.pending = nil
	c.mu.Unlock()

	if len(tail) > 0 {
		select {
		case c.frames <- tail:
		default:
		}
	}
	close(c.frames)
	return nil
}

// onPCM receives raw Pulse buffers and slices them into frames.
func (c *Capture) onPCM(buffer []byte) (int, error) {
	if len(buffer) == 0 {
		return 0, nil
	}

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return 0, io.EOF
	}
	// Add shares the lock with stopped so Release never races Wait.
	c.inflight.Add(1)
	defer c.inflight.Done()

	c.pending = append(c.pending, buffer...)
	var ready [][]byte
	for len(c.pending) >= frameBytes {
		frame := make([]byte, frameBytes)
		copy(frame, c.pending[:frameBytes])
		c.pending = c.pending[frameBytes:]
		ready = append(ready, frame)
	}
	c.mu.Unlock()

	for _, frame := range ready {
		select {
		case <-c.stopCh:
			return 0, io.EOF
		case c.frames <- frame:
		}
	}
	return len(buffer), nil
}

// writerFunc adapts a function to io.Writer for pulse.NewWriter.
type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(b []byte) (int, error) {
	return f(b)
}
