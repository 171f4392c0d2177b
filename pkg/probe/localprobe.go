package probe

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cuemby/streamsched/pkg/types"
)

// DefaultStreamsPath is the base directory under which LocalDirAdmin
// resolves stream names to on-disk directories, mirroring the base-path
// convention of a local storage driver.
const DefaultStreamsPath = "/var/lib/streamsched/streams"

// LocalDirAdmin implements StreamAdmin over a directory tree on the local
// filesystem: one subdirectory per stream, sized by walking its contents.
// It is the reference StreamAdmin used when no external stream store is
// configured; production deployments are expected to supply their own.
type LocalDirAdmin struct {
	basePath string
}

// NewLocalDirAdmin creates a local directory-backed StreamAdmin rooted at
// basePath (DefaultStreamsPath if empty). The root directory is created if
// it does not already exist.
func NewLocalDirAdmin(basePath string) (*LocalDirAdmin, error) {
	if basePath == "" {
		basePath = DefaultStreamsPath
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create streams directory: %v", types.ErrProbe, err)
	}
	return &LocalDirAdmin{basePath: basePath}, nil
}

// GetConfig resolves streamID to its directory path, creating the
// directory if it does not yet exist.
func (a *LocalDirAdmin) GetConfig(streamID types.StreamId) (types.StreamConfig, error) {
	path := filepath.Join(a.basePath, streamID.Namespace, streamID.Name)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return types.StreamConfig{}, fmt.Errorf("%w: create stream directory: %v", types.ErrProbe, err)
	}
	return types.StreamConfig{StreamId: streamID, Location: path}, nil
}

// FetchStreamSize walks config.Location and sums the size of every
// regular file beneath it, treating the total as the stream's current
// persistent byte count.
func (a *LocalDirAdmin) FetchStreamSize(config types.StreamConfig) (int64, error) {
	var total int64
	err := filepath.WalkDir(config.Location, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: walk %s: %v", types.ErrProbe, config.Location, err)
	}
	return total, nil
}

// clockSource abstracts time.Now so tests can control the timestamp a
// TimedProbe attaches to an observation without sleeping.
type clockSource func() time.Time

// TimedProbe pairs a SizeProbe with a wall clock to produce the
// (size, ts) pair the Subscriber needs, per §4.4.
type TimedProbe struct {
	probe SizeProbe
	clock clockSource
}

// NewTimedProbe wraps probe with time.Now as its clock.
func NewTimedProbe(probe SizeProbe) *TimedProbe {
	return &TimedProbe{probe: probe, clock: time.Now}
}

// Observe queries probe and stamps the result with the current wall
// clock, in milliseconds. A probe failure wraps types.ErrProbe.
func (t *TimedProbe) Observe(config types.StreamConfig) (types.SizeObservation, error) {
	size, err := t.probe.FetchStreamSize(config)
	if err != nil {
		return types.SizeObservation{}, err
	}
	return types.SizeObservation{
		Size: size,
		Ts:   t.clock().UnixMilli(),
	}, nil
}
