package store

import "github.com/cuemby/streamsched/pkg/types"

// ScheduleStore is the persistent schedule store the Registry consults
// only when a caller requests persist=true (spec §6, consumed). Its
// concrete format is opaque to the scheduler core.
type ScheduleStore interface {
	// Upsert writes or overwrites the snapshot for snapshot.ScheduleId.
	Upsert(snapshot types.TaskSnapshot) error

	// Delete removes the snapshot for id, if any. Deleting an unknown id
	// is not an error.
	Delete(id types.ScheduleId) error

	// LoadAll returns every persisted snapshot, for use by the daemon's
	// startup recovery path (schedule each with persist=false).
	LoadAll() ([]types.TaskSnapshot, error)

	// Close releases the store's underlying resources.
	Close() error
}
