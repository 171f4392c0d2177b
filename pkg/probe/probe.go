package probe

import (
	"github.com/cuemby/streamsched/pkg/types"
)

// SizeProbe wraps the external stream admin's size query. A probe call
// returns the current persistent byte count of a stream; it carries no
// timestamp. TimedProbe pairs the count with the wall-clock time of the
// query, in milliseconds.
type SizeProbe interface {
	// FetchStreamSize returns the current size in bytes for the given
	// stream config. A failure wraps types.ErrProbe.
	FetchStreamSize(config types.StreamConfig) (int64, error)
}

// StreamAdmin resolves a StreamId to the config a SizeProbe needs, and
// exposes the probe itself. Kept as one interface because, in practice,
// both calls hit the same external system (the stream's backing store).
type StreamAdmin interface {
	SizeProbe

	// GetConfig resolves a stream identifier to its probe-ready config.
	// A failure wraps types.ErrProbe.
	GetConfig(streamID types.StreamId) (types.StreamConfig, error)
}
