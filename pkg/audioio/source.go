package audioio

import (
	"context"
	"io"
	"time"
)

// AudioChunk is one buffer of interleaved PCM16 samples.
type AudioChunk struct {
	Samples    []int16
	SampleRate int
	Channels   int
}

// Bytes encodes the samples little-endian, the layout arecord and aplay use.
func (c *AudioChunk) Bytes() []byte {
	buf := make([]byte, len(c.Samples)*2)
	for i, s := range c.Samples {
		buf[i*2] = byte(s)
		buf[i*2+1] = byte(s >> 8)
	}
	return buf
}

// FromBytes populates the chunk from raw PCM16 bytes. A trailing odd byte is dropped.
func (c *AudioChunk) FromBytes(data []byte, sampleRate, channels int) {
	c.SampleRate = sampleRate
	c.Channels = channels
	c.Samples = make([]int16, len(data)/2)
	for i := range c.Samples {
		c.Samples[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
}

// Duration returns the playback length of this chunk.
func (c *AudioChunk) Duration() time.Duration {
	if c.SampleRate == 0 || c.Channels == 0 {
		return 0
	}
	return time.Duration(len(c.Samples)) * time.Second / time.Duration(c.SampleRate*c.Channels)
}

// Level returns the peak amplitude of the chunk on the 0..255 scale.
func (c *AudioChunk) Level() uint8 {
	return Amplitude(c.Samples)
}

// Source is a microphone capture. The device is held from Start until
// Stop, and only one of calibration or recognition holds it at a time.
type Source interface {
	// Start fails with a *voice.Error from ClassifyDeviceError.
	Start(ctx context.Context) error
	// Stop is idempotent.
	Stop() error
	// Read returns io.EOF once the capture is stopped and drained.
	Read(ctx context.Context) (AudioChunk, error)
	// Stream is closed when the capture stops.
	Stream() <-chan AudioChunk
	Config() Config
	Name() string
	io.Closer
}

// SourceOpener creates a fresh, unstarted Source.
// Calibration and recognition each open their own capture.
type SourceOpener func() (Source, error)
