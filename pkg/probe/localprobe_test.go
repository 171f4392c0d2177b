package probe

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cuemby/streamsched/pkg/types"
)

func TestLocalDirAdminFetchStreamSize(t *testing.T) {
	dir := t.TempDir()
	admin, err := NewLocalDirAdmin(dir)
	if err != nil {
		t.Fatalf("NewLocalDirAdmin: %v", err)
	}

	streamID := types.StreamId{Namespace: "ns", Name: "clicks"}
	config, err := admin.GetConfig(streamID)
	if err != nil {
		t.Fatalf("GetConfig: %v", err)
	}

	if err := os.WriteFile(filepath.Join(config.Location, "part-0"), make([]byte, 100), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(config.Location, "part-1"), make([]byte, 250), 0o644); err != nil {
		t.Fatal(err)
	}

	size, err := admin.FetchStreamSize(config)
	if err != nil {
		t.Fatalf("FetchStreamSize: %v", err)
	}
	if size != 350 {
		t.Errorf("FetchStreamSize() = %d, want 350", size)
	}
}

func TestLocalDirAdminGetConfigCreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	admin, err := NewLocalDirAdmin(dir)
	if err != nil {
		t.Fatalf("NewLocalDirAdmin: %v", err)
	}

	streamID := types.StreamId{Namespace: "ns", Name: "orders"}
	config, err := admin.GetConfig(streamID)
	if err != nil {
		t.Fatalf("GetConfig: %v", err)
	}

	if _, err := os.Stat(config.Location); err != nil {
		t.Errorf("expected directory %s to exist: %v", config.Location, err)
	}
}

type fakeProbe struct {
	size int64
	err  error
}

func (f *fakeProbe) FetchStreamSize(types.StreamConfig) (int64, error) {
	return f.size, f.err
}

func TestTimedProbeObserve(t *testing.T) {
	want := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tp := &TimedProbe{
		probe: &fakeProbe{size: 42},
		clock: func() time.Time { return want },
	}

	obs, err := tp.Observe(types.StreamConfig{})
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}
	if obs.Size != 42 {
		t.Errorf("Size = %d, want 42", obs.Size)
	}
	if obs.Ts != want.UnixMilli() {
		t.Errorf("Ts = %d, want %d", obs.Ts, want.UnixMilli())
	}
}

func TestTimedProbeObserveError(t *testing.T) {
	tp := &TimedProbe{
		probe: &fakeProbe{err: types.ErrProbe},
		clock: time.Now,
	}

	if _, err := tp.Observe(types.StreamConfig{}); err == nil {
		t.Fatal("expected error, got nil")
	}
}
