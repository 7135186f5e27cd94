package audioio

import (
	"sync"
	"time"
)

// Amplitude returns the peak absolute sample scaled to 0..255.
func Amplitude(samples []int16) uint8 {
	var peak int32
	for _, s := range samples {
		v := int32(s)
		if v < 0 {
			v = -v
		}
		if v > peak {
			peak = v
		}
	}
	// 32768 / 128 = 256, clamp the single overflow case (-32768)
	level := peak / 128
	if level > 255 {
		level = 255
	}
	return uint8(level)
}

// LevelSample is one throttled microphone level reading.
type LevelSample struct {
	Level uint8     `json:"level"`
	At    time.Time `json:"at"`
}

// LevelRing is a bounded buffer of recent level samples.
// Once full, the oldest sample is overwritten.
type LevelRing struct {
	mu    sync.Mutex
	buf   []LevelSample
	next  int
	count int
}

// NewLevelRing creates a ring holding at most size samples.
func NewLevelRing(size int) *LevelRing {
	if size < 1 {
		size = 1
	}
	return &LevelRing{buf: make([]LevelSample, size)}
}

// Push appends a sample.
func (r *LevelRing) Push(s LevelSample) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.next] = s
	r.next = (r.next + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
}

// Len returns the number of stored samples.
func (r *LevelRing) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Snapshot returns stored samples oldest first.
func (r *LevelRing) Snapshot() []LevelSample {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]LevelSample, 0, r.count)
	start := (r.next - r.count + len(r.buf)) % len(r.buf)
	for i := 0; i < r.count; i++ {
		out = append(out, r.buf[(start+i)%len(r.buf)])
	}
	return out
}

// Peak returns the loudest stored level.
func (r *LevelRing) Peak() uint8 {
	var peak uint8
	for _, s := range r.Snapshot() {
		if s.Level > peak {
			peak = s.Level
		}
	}
	return peak
}

// Throttle passes through at most one value per interval.
type Throttle struct {
	interval time.Duration
	last     time.Time
}

// NewThrottle creates a throttle with the given minimum spacing.
func NewThrottle(interval time.Duration) *Throttle {
	return &Throttle{interval: interval}
}

// Allow reports whether a value observed at now may pass.
func (t *Throttle) Allow(now time.Time) bool {
	if !t.last.IsZero() && now.Sub(t.last) < t.interval {
		return false
	}
	t.last = now
	return true
}
