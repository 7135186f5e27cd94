package audioio

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// MockSource is a fake microphone. Each chunk is a square wave whose peak
// follows a script of 0..255 levels, so calibration and the level meter
// see exactly the levels a test asks for. Without a script it is silent.
type MockSource struct {
	cfg    Config
	logger *slog.Logger

	levels      []uint8
	startErr    error
	unprocessed bool

	mu        sync.Mutex
	out       chan AudioChunk
	stop      chan struct{}
	running   bool
	closed    bool
	next      int
	requested Processing
	applied   Processing

	starts atomic.Int64
}

type MockSourceOption func(*MockSource)

// WithLevels scripts the peak of successive chunks; the last level holds.
func WithLevels(levels ...uint8) MockSourceOption {
	return func(m *MockSource) { m.levels = levels }
}

// WithStartError makes Start fail as a missing or busy device would.
func WithStartError(err error) MockSourceOption {
	return func(m *MockSource) { m.startErr = err }
}

// WithoutProcessing simulates a device that cannot apply voice processing.
func WithoutProcessing() MockSourceOption {
	return func(m *MockSource) { m.unprocessed = true }
}

func NewMockSource(cfg Config, logger *slog.Logger, opts ...MockSourceOption) *MockSource {
	if logger == nil {
		logger = slog.Default()
	}
	m := &MockSource{
		cfg:    cfg,
		logger: logger.With("component", "audioio.mock_source"),
		out:       make(chan AudioChunk),
		requested: cfg.Processing(),
	}
	close(m.out)
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MockSource) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case m.closed:
		return ErrClosed
	case m.running:
		return nil
	case m.startErr != nil:
		return ClassifyDeviceError(m.startErr)
	case m.unprocessed && m.requested.Any() && m.cfg.StrictProcessing:
		return ClassifyDeviceError(ErrProcessingUnavailable)
	}

	m.applied = m.requested
	if m.unprocessed {
		m.applied = Processing{}
	}

	m.running = true
	m.starts.Add(1)
	m.out = make(chan AudioChunk, 10)
	m.stop = make(chan struct{})
	go m.capture(ctx, m.out, m.stop)

	m.logger.Debug("mock capture started", "scripted_levels", len(m.levels))
	return nil
}

func (m *MockSource) capture(ctx context.Context, out chan<- AudioChunk, stop <-chan struct{}) {
	defer close(out)
	tick := time.NewTicker(m.cfg.BufferDuration)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			m.Stop()
			return
		case <-stop:
			return
		case <-tick.C:
		}
		select {
		case out <- m.chunk():
		case <-stop:
			return
		default:
			// dropped, as a device overrun would
		}
	}
}

func (m *MockSource) chunk() AudioChunk {
	m.mu.Lock()
	var level uint8
	if n := len(m.levels); n > 0 {
		level = m.levels[min(m.next, n-1)]
		m.next++
	}
	m.mu.Unlock()

	samples := make([]int16, m.cfg.BufferSize()*m.cfg.Channels)
	peak := int16(int32(level) * 128)
	for i := range samples {
		if i%2 == 0 {
			samples[i] = peak
		} else {
			samples[i] = -peak
		}
	}
	return AudioChunk{Samples: samples, SampleRate: m.cfg.SampleRate, Channels: m.cfg.Channels}
}

func (m *MockSource) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		m.running = false
		close(m.stop)
	}
	return nil
}

func (m *MockSource) Read(ctx context.Context) (AudioChunk, error) {
	select {
	case <-ctx.Done():
		return AudioChunk{}, ctx.Err()
	case c, ok := <-m.Stream():
		if !ok {
			return AudioChunk{}, io.EOF
		}
		return c, nil
	}
}

func (m *MockSource) Stream() <-chan AudioChunk {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.out
}

func (m *MockSource) Config() Config { return m.cfg }
func (m *MockSource) Name() string { return "mock" }

// Active reports whether the fake device is held.
func (m *MockSource) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *MockSource) Starts() int { return int(m.starts.Load()) }

func (m *MockSource) RequestProcessing(p Processing) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requested = p
}

// Requested returns the processing asked of the device.
func (m *MockSource) Requested() Processing {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requested
}

func (m *MockSource) Processing() Processing {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.applied
}

func (m *MockSource) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return m.Stop()
}

var _ ProcessingSource = (*MockSource)(nil)

// MockSink is a fake speaker. Flush sleeps for the buffered audio's
// duration divided by the speedup, so playback timing stays realistic
// without slowing tests down.
type MockSink struct {
	cfg      Config
	logger   *slog.Logger
	speedup  float64
	writeErr error

	mu        sync.Mutex
	running   bool
	closed    bool
	buffered  []AudioChunk
	interrupt chan struct{}

	chunks  atomic.Int64
	samples atomic.Int64
	clears  atomic.Int64
}

type MockSinkOption func(*MockSink)

// WithSpeedup plays faster than real time; 1 is real time.
func WithSpeedup(factor float64) MockSinkOption {
	return func(m *MockSink) {
		if factor > 0 {
			m.speedup = factor
		}
	}
}

// WithWriteError fails every Write, as an unplugged speaker would.
func WithWriteError(err error) MockSinkOption {
	return func(m *MockSink) { m.writeErr = err }
}

func NewMockSink(cfg Config, logger *slog.Logger, opts ...MockSinkOption) *MockSink {
	if logger == nil {
		logger = slog.Default()
	}
	m := &MockSink{
		cfg:       cfg,
		logger:    logger.With("component", "audioio.mock_sink"),
		speedup:   100,
		interrupt: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MockSink) Start(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.running = true
	return nil
}

func (m *MockSink) Stop() error {
	m.mu.Lock()
	m.running = false
	m.mu.Unlock()
	return nil
}

func (m *MockSink) Write(_ context.Context, chunk AudioChunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || !m.running {
		return ErrClosed
	}
	if m.writeErr != nil {
		return m.writeErr
	}
	m.buffered = append(m.buffered, chunk)
	m.chunks.Add(1)
	m.samples.Add(int64(len(chunk.Samples)))
	return nil
}

func (m *MockSink) Flush(ctx context.Context) error {
	m.mu.Lock()
	var total time.Duration
	for i := range m.buffered {
		total += m.buffered[i].Duration()
	}
	interrupt := m.interrupt
	m.mu.Unlock()

	t := time.NewTimer(time.Duration(float64(total) / m.speedup))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-interrupt:
		return ErrInterrupted
	case <-t.C:
	}

	m.mu.Lock()
	m.buffered = m.buffered[:0]
	m.mu.Unlock()
	return nil
}

// Clear drops buffered audio and wakes any pending Flush.
func (m *MockSink) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buffered = m.buffered[:0]
	close(m.interrupt)
	m.interrupt = make(chan struct{})
	m.clears.Add(1)
	return nil
}

func (m *MockSink) Config() Config { return m.cfg }
func (m *MockSink) Name() string { return "mock" }

func (m *MockSink) Close() error {
	m.mu.Lock()
	m.closed = true
	m.running = false
	m.mu.Unlock()
	return nil
}

func (m *MockSink) Stats() SinkStats {
	m.mu.Lock()
	var buffered int64
	for _, c := range m.buffered {
		buffered += int64(len(c.Samples))
	}
	running := m.running
	m.mu.Unlock()

	return SinkStats{
		ChunksWritten:   m.chunks.Load(),
		SamplesWritten:  m.samples.Load(),
		Clears:          m.clears.Load(),
		Running:         running,
		Backend:         "mock",
		BufferedSamples: buffered,
	}
}

var _ SinkWithStats = (*MockSink)(nil)
