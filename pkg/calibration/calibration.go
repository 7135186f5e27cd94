// Package calibration measures microphone input before recognition starts.
//
// A Calibrator opens its own capture, samples the peak level at a fixed
// cadence for a short window, and always releases the device before
// returning. A quiet microphone produces a warning, never a failure:
//
//	cal := calibration.New(audioio.Opener(cfg, logger), calibration.WithLogger(logger))
//	res, err := cal.Calibrate(ctx, time.Second)
//	if err != nil {
//	    // *voice.Error: PermissionDenied, DeviceNotFound, DeviceBusy, ConfigurationRejected
//	}
//	if !res.Usable {
//	    fmt.Println(res.Warning) // proceed to recognition anyway
//	}
package calibration

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/teslashibe/go-companion/pkg/audioio"
	"github.com/teslashibe/go-companion/pkg/voice"
)

// Result is the outcome of one calibration window.
type Result struct {
	// Usable is false when the peak stayed below the low threshold.
	Usable bool `json:"usable"`

	// PeakAmplitude is the loudest level observed, 0..255.
	PeakAmplitude uint8 `json:"peakAmplitude"`

	// Samples are the level readings taken at the sampling cadence.
	Samples []audioio.LevelSample `json:"samples,omitempty"`

	// Warning is set when Usable is false.
	Warning string `json:"warning,omitempty"`

	// Duration is how long the device was held.
	Duration time.Duration `json:"duration"`

	// Processing is what the device applied of the requested processing.
	Processing audioio.Processing `json:"processing"`
}

// Calibrator measures input level on a freshly opened source.
type Calibrator struct {
	open       audioio.SourceOpener
	interval   time.Duration
	low        uint8
	processing audioio.Processing
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures a Calibrator.
type Option func(*Calibrator)

// WithInterval sets the sampling cadence. Default: 100ms.
func WithInterval(d time.Duration) Option {
	return func(c *Calibrator) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithLowThreshold sets the amplitude below which input is "very low". Default: 8.
func WithLowThreshold(level uint8) Option {
	return func(c *Calibrator) {
		c.low = level
	}
}

// WithProcessing sets the processing requested from the microphone.
// Default: audioio.VoiceProcessing.
func WithProcessing(p audioio.Processing) Option {
	return func(c *Calibrator) {
		c.processing = p
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Calibrator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// FromConfig applies the calibration settings of a voice.Config.
func FromConfig(cfg voice.Config) Option {
	return func(c *Calibrator) {
		if cfg.SampleInterval > 0 {
			c.interval = cfg.SampleInterval
		}
		c.low = cfg.LowAmplitude
	}
}

// New creates a Calibrator opening capture sources with open.
func New(open audioio.SourceOpener, opts ...Option) *Calibrator {
	c := &Calibrator{
		open:       open,
		interval:   100 * time.Millisecond,
		low:        8,
		processing: audioio.VoiceProcessing,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "calibration.calibrator")
	return c
}

// Calibrate samples the microphone for window and reports its peak level.
// The device is released before Calibrate returns, on every path.
// Cancelling ctx ends the window early and returns an Aborted error.
func (c *Calibrator) Calibrate(ctx context.Context, window time.Duration) (Result, error) {
	if window <= 0 {
		return Result{}, fmt.Errorf("calibration: window must be positive, got %v", window)
	}

	src, err := c.open()
	if err != nil {
		return Result{}, audioio.ClassifyDeviceError(err)
	}
	defer src.Close()

	ps, processed := src.(audioio.ProcessingSource)
	if processed {
		ps.RequestProcessing(c.processing)
	}

	started := c.now()
	if err := src.Start(ctx); err != nil {
		verr := audioio.ClassifyDeviceError(err)
		c.logger.Warn("microphone unavailable", "kind", verr.Kind, "code", verr.Code)
		return Result{}, verr
	}
	defer src.Stop()

	var (
		res     Result
		current uint8
	)
	if processed {
		res.Processing = ps.Processing()
		if c.processing.Any() && !res.Processing.Any() {
			c.logger.Debug("microphone applies no voice processing")
		}
	}
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	deadline := time.NewTimer(window)
	defer deadline.Stop()
	stream := src.Stream()

loop:
	for {
		select {
		case <-ctx.Done():
			return Result{}, voice.NewError(voice.KindAborted, ctx.Err())
		case chunk, ok := <-stream:
			if !ok {
				stream = nil
				continue
			}
			if lvl := chunk.Level(); lvl > current {
				current = lvl
			}
		case <-ticker.C:
			res.Samples = append(res.Samples, audioio.LevelSample{Level: current, At: c.now()})
			if current > res.PeakAmplitude {
				res.PeakAmplitude = current
			}
			current = 0
		case <-deadline.C:
			break loop
		}
	}

	// Chunks seen after the last tick still count towards the peak.
	if current > res.PeakAmplitude {
		res.PeakAmplitude = current
	}
	res.Duration = c.now().Sub(started)
	res.Usable = res.PeakAmplitude >= c.low
	if !res.Usable {
		res.Warning = voice.LowInputWarning
		c.logger.Warn("very low microphone input", "peak", res.PeakAmplitude, "threshold", c.low)
	} else {
		c.logger.Debug("calibration complete", "peak", res.PeakAmplitude, "samples", len(res.Samples))
	}
	return res, nil
}
