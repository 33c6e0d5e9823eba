// Package api defines the Central Storage contract (spec §2 component E):
// a blob store for checkpoint artifacts, local-disk or remote-blob, seen
// only as opaque identifiers and times by the rest of LLS (spec §6).
package api

import (
	"context"
	"time"
)

// Manifest describes a published checkpoint artifact (spec §6).
type Manifest struct {
	CheckpointID  string
	CheckpointTime time.Time
	SequencePoint uint64
}

// Backend is the Central Storage contract.
type Backend interface {
	// PutBlob publishes a checkpoint artifact, returning its assigned id.
	PutBlob(ctx context.Context, data []byte) (checkpointID string, err error)
	// GetBlob fetches a previously published artifact by id.
	GetBlob(ctx context.Context, checkpointID string) ([]byte, error)
	// DeleteBlob removes a previously published artifact, used to clean up
	// a blob left orphaned by a failed manifest publish. Deleting an
	// unknown checkpointID is not an error.
	DeleteBlob(ctx context.Context, checkpointID string) error

	// PutManifest publishes the manifest for a checkpoint, making it
	// discoverable via Latest.
	PutManifest(ctx context.Context, m Manifest) error
	// Latest returns the most recently published manifest, or ok=false if
	// none has ever been published.
	Latest(ctx context.Context) (Manifest, bool, error)
}
