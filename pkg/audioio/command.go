package audioio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// startupProbe bounds how long Start waits for the capture tool to either
// produce audio or fail, so device errors surface from Start itself.
const startupProbe = 750 * time.Millisecond

// rawArgs returns the PCM16 format flags shared by arecord and aplay.
func rawArgs(cfg Config) []string {
	args := []string{
		"-q", "-t", "raw", "-f", "S16_LE",
		"-r", strconv.Itoa(cfg.SampleRate),
		"-c", strconv.Itoa(cfg.Channels),
	}
	if cfg.Device != "" {
		args = append(args, "-D", cfg.Device)
	}
	return args
}

// CommandSource captures microphone audio by reading raw PCM from an
// external recorder (arecord by default).
type CommandSource struct {
	cfg    Config
	logger *slog.Logger

	mu        sync.Mutex
	cmd       *exec.Cmd
	stderr    *bytes.Buffer
	running   bool
	closed    bool
	streamCh  chan AudioChunk
	requested Processing
	applied   Processing
	warned    bool

	chunksRead atomic.Int64
	overruns   atomic.Int64
}

// NewCommandSource creates an unstarted capture source.
func NewCommandSource(cfg Config, logger *slog.Logger) *CommandSource {
	if logger == nil {
		logger = slog.Default()
	}
	ch := make(chan AudioChunk)
	close(ch)
	return &CommandSource{
		cfg:       cfg,
		logger:    logger.With("component", "audioio.command_source"),
		streamCh:  ch,
		requested: cfg.Processing(),
	}
}

// RequestProcessing replaces the processing asked of the next Start.
func (s *CommandSource) RequestProcessing(p Processing) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requested = p
}

// Processing returns what the running capture applies.
func (s *CommandSource) Processing() Processing {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applied
}

// captureArgs picks the capture device for the requested processing.
// mu must be held.
func (s *CommandSource) captureArgs() ([]string, Processing, error) {
	cfg := s.cfg
	switch {
	case !s.requested.Any():
		return rawArgs(cfg), Processing{}, nil
	case cfg.ProcessingDevice != "":
		cfg.Device = cfg.ProcessingDevice
		return rawArgs(cfg), s.requested, nil
	case cfg.StrictProcessing:
		return nil, Processing{}, ErrProcessingUnavailable
	}
	if !s.warned {
		s.warned = true
		s.logger.Warn("no processing device configured, capturing unprocessed audio",
			"echo_cancellation", s.requested.EchoCancellation,
			"noise_suppression", s.requested.NoiseSuppression,
			"auto_gain", s.requested.AutoGain,
		)
	}
	return rawArgs(cfg), Processing{}, nil
}

// Start launches the recorder and waits briefly for the device to open.
func (s *CommandSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.running {
		return nil
	}

	name := s.cfg.CaptureCommand
	if name == "" {
		name = "arecord"
	}
	args, applied, err := s.captureArgs()
	if err != nil {
		return ClassifyDeviceError(err)
	}
	cmd := exec.Command(name, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return ClassifyDeviceError(err)
	}
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return ClassifyDeviceError(fmt.Errorf("start %s: %w", name, err))
	}

	out := make(chan AudioChunk, 10)
	first := make(chan struct{})
	exited := make(chan error, 1)

	go s.captureLoop(ctx, stdout, out, first, func() {
		exited <- cmd.Wait()
	})

	select {
	case <-first:
	case err := <-exited:
		msg := bytes.TrimSpace(stderr.Bytes())
		if len(msg) == 0 && err == nil {
			msg = []byte("capture tool exited immediately")
		}
		return ClassifyDeviceError(fmt.Errorf("%s: %s: %w", name, msg, errOrEOF(err)))
	case <-time.After(startupProbe):
		s.logger.Debug("no audio yet, assuming device is open", "command", name)
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		return ctx.Err()
	}

	s.cmd = cmd
	s.stderr = stderr
	s.streamCh = out
	s.running = true
	s.applied = applied

	s.logger.Info("audio capture started",
		"command", name,
		"args", args,
		"processed", applied.Any(),
		"sample_rate", s.cfg.SampleRate,
	)
	return nil
}

func errOrEOF(err error) error {
	if err == nil {
		return io.EOF
	}
	return err
}

func (s *CommandSource) captureLoop(ctx context.Context, r io.Reader, out chan AudioChunk, first chan struct{}, wait func()) {
	defer wait()
	defer close(out)

	buf := make([]byte, s.cfg.BufferBytes())
	signalled := false
	for {
		if _, err := io.ReadFull(r, buf); err != nil {
			return
		}
		if !signalled {
			close(first)
			signalled = true
		}

		var chunk AudioChunk
		chunk.FromBytes(buf, s.cfg.SampleRate, s.cfg.Channels)

		select {
		case out <- chunk:
			s.chunksRead.Add(1)
		case <-ctx.Done():
			s.Stop()
			return
		default:
			s.overruns.Add(1)
		}
	}
}

// Stop kills the recorder, releasing the device.
func (s *CommandSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false
	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	s.logger.Info("audio capture stopped", "chunks", s.chunksRead.Load(), "overruns", s.overruns.Load())
	return nil
}

// Read reads the next audio chunk.
func (s *CommandSource) Read(ctx context.Context) (AudioChunk, error) {
	ch := s.Stream()
	select {
	case <-ctx.Done():
		return AudioChunk{}, ctx.Err()
	case chunk, ok := <-ch:
		if !ok {
			return AudioChunk{}, io.EOF
		}
		return chunk, nil
	}
}

// Stream returns the audio chunk channel of the current capture.
func (s *CommandSource) Stream() <-chan AudioChunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamCh
}

// Config returns the audio configuration.
func (s *CommandSource) Config() Config { return s.cfg }

// Name returns "command".
func (s *CommandSource) Name() string { return "command" }

// Close stops capture permanently.
func (s *CommandSource) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return s.Stop()
}

var _ ProcessingSource = (*CommandSource)(nil)

// CommandSink plays audio by piping raw PCM into an external player
// (aplay by default). One player process serves one utterance: Write
// spawns it on demand and Flush waits for it to drain and exit.
type CommandSink struct {
	cfg    Config
	logger *slog.Logger

	mu          sync.Mutex
	cmd         *exec.Cmd
	stdin       io.WriteCloser
	done        chan error
	running     bool
	closed      bool
	interrupted bool

	chunksWritten  atomic.Int64
	samplesWritten atomic.Int64
	clears         atomic.Int64
}

// NewCommandSink creates a playback sink.
func NewCommandSink(cfg Config, logger *slog.Logger) *CommandSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &CommandSink{
		cfg:    cfg,
		logger: logger.With("component", "audioio.command_sink"),
	}
}

// Start enables playback.
func (s *CommandSink) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.running = true
	return nil
}

// spawn must be called with mu held.
func (s *CommandSink) spawn() error {
	name := s.cfg.PlaybackCommand
	if name == "" {
		name = "aplay"
	}
	cmd := exec.Command(name, rawArgs(s.cfg)...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return ClassifyDeviceError(fmt.Errorf("start %s: %w", name, err))
	}
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	s.cmd = cmd
	s.stdin = stdin
	s.done = done
	s.interrupted = false
	return nil
}

// Write pipes a chunk to the player.
func (s *CommandSink) Write(ctx context.Context, chunk AudioChunk) error {
	s.mu.Lock()
	if s.closed || !s.running {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.cmd == nil {
		if err := s.spawn(); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	stdin := s.stdin
	s.mu.Unlock()

	// The pipe blocks at real-time rate; Clear must not wait on it.
	if _, err := stdin.Write(chunk.Bytes()); err != nil {
		s.mu.Lock()
		interrupted := s.interrupted
		s.mu.Unlock()
		if interrupted {
			return ErrInterrupted
		}
		return fmt.Errorf("write audio: %w", err)
	}
	s.chunksWritten.Add(1)
	s.samplesWritten.Add(int64(len(chunk.Samples)))
	return nil
}

// Flush closes the player's input and waits for it to finish.
func (s *CommandSink) Flush(ctx context.Context) error {
	s.mu.Lock()
	if s.cmd == nil {
		s.mu.Unlock()
		return nil
	}
	_ = s.stdin.Close()
	done := s.done
	s.mu.Unlock()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		_ = s.Clear()
		<-done
		err = ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	interrupted := s.interrupted
	s.cmd, s.stdin, s.done = nil, nil, nil
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if interrupted {
		return ErrInterrupted
	}
	if err != nil {
		return fmt.Errorf("player exited: %w", err)
	}
	return nil
}

// Clear kills the player, discarding queued audio.
func (s *CommandSink) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clears.Add(1)
	if s.cmd == nil || s.cmd.Process == nil {
		return nil
	}
	s.interrupted = true
	if err := s.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		s.logger.Debug("kill player", "error", err)
	}
	return nil
}

// Stop disables playback, cutting off anything in flight.
func (s *CommandSink) Stop() error {
	_ = s.Clear()
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	return nil
}

// Config returns the audio configuration.
func (s *CommandSink) Config() Config { return s.cfg }

// Name returns "command".
func (s *CommandSink) Name() string { return "command" }

// Close stops playback permanently.
func (s *CommandSink) Close() error {
	err := s.Stop()
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return err
}

// Stats returns sink statistics.
func (s *CommandSink) Stats() SinkStats {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	return SinkStats{
		ChunksWritten:  s.chunksWritten.Load(),
		SamplesWritten: s.samplesWritten.Load(),
		Clears:         s.clears.Load(),
		Running:        running,
		Backend:        "command",
	}
}

var _ SinkWithStats = (*CommandSink)(nil)
