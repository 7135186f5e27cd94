package audioio

import (
	"fmt"
	"log/slog"
	"os/exec"
)

// NewSource opens an unstarted microphone capture.
func NewSource(cfg Config, logger *slog.Logger) (Source, error) {
	backend, logger, err := resolve(cfg, logger, cfg.CaptureCommand, "arecord")
	if err != nil {
		return nil, err
	}
	if backend == BackendCommand {
		return NewCommandSource(cfg, logger), nil
	}
	return NewMockSource(cfg, logger), nil
}

// NewSink opens an unstarted speaker.
func NewSink(cfg Config, logger *slog.Logger) (Sink, error) {
	backend, logger, err := resolve(cfg, logger, cfg.PlaybackCommand, "aplay")
	if err != nil {
		return nil, err
	}
	if backend == BackendCommand {
		return NewCommandSink(cfg, logger), nil
	}
	return NewMockSink(cfg, logger), nil
}

// Opener opens a fresh capture per call, since calibration and each
// listening turn take the microphone in turn.
func Opener(cfg Config, logger *slog.Logger) SourceOpener {
	return func() (Source, error) { return NewSource(cfg, logger) }
}

func resolve(cfg Config, logger *slog.Logger, tool, fallback string) (Backend, *slog.Logger, error) {
	if err := cfg.Validate(); err != nil {
		return "", nil, fmt.Errorf("audio config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if tool == "" {
		tool = fallback
	}

	backend := cfg.Backend
	switch backend {
	case BackendAuto:
		backend = BackendMock
		if _, err := exec.LookPath(tool); err == nil {
			backend = BackendCommand
		} else {
			logger.Warn("audio tool not found, using silent mock device", "tool", tool)
		}
	case BackendCommand, BackendMock:
	default:
		return "", nil, fmt.Errorf("unsupported audio backend %q", backend)
	}

	logger.Debug("audio device", "backend", backend, "tool", tool, "sample_rate", cfg.SampleRate, "channels", cfg.Channels)
	return backend, logger, nil
}
