package audioio

import (
	"context"
	"io"
)

// Sink is a speaker. Playback of one reply is Write until the synthesized
// stream ends, then Flush; a cancelled reply is Clear.
type Sink interface {
	Start(ctx context.Context) error
	Stop() error
	Write(ctx context.Context, chunk AudioChunk) error
	// Flush blocks until queued audio has played, or returns
	// ErrInterrupted when Clear runs first.
	Flush(ctx context.Context) error
	Clear() error
	Config() Config
	Name() string
	io.Closer
}

// SinkStats are cumulative counters since the sink was created.
type SinkStats struct {
	ChunksWritten   int64  `json:"chunks_written"`
	SamplesWritten  int64  `json:"samples_written"`
	Clears          int64  `json:"clears"`
	Running         bool   `json:"running"`
	Backend         string `json:"backend"`
	BufferedSamples int64  `json:"buffered_samples"`
}

type SinkWithStats interface {
	Sink
	Stats() SinkStats
}
