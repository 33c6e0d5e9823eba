// Package api is the thin contract to the authoritative location directory
// and role-lease service (spec §2 component G, §6 "Global Store RPCs
// consumed").
package api

import (
	"context"
	"time"

	"github.com/distcache/lls/hash"
	"github.com/distcache/lls/machine"
)

// Role is this node's role as assigned by the global store's lease
// protocol.
type Role int

const (
	// RoleUnknown is the initial, pre-lease state.
	RoleUnknown Role = iota
	// RoleWorker consumes the event stream but does not produce it.
	RoleWorker
	// RoleMaster produces the event stream and creates checkpoints.
	RoleMaster
)

func (r Role) String() string {
	switch r {
	case RoleWorker:
		return "worker"
	case RoleMaster:
		return "master"
	default:
		return "unknown"
	}
}

// CheckpointState is the response to get_checkpoint_state (spec §4.3
// step 1).
type CheckpointState struct {
	Role               Role
	StartSequencePoint uint64
	CheckpointID       string
	CheckpointAvailable bool
	CheckpointTime      time.Time
}

// LocationEntry is a single resolved location as returned by the Global
// get_bulk RPC.
type LocationEntry struct {
	Hash      hash.ContentHash
	Size      uint64
	Locations []machine.Location
}

// HashSize pairs a hash with its size for eager registration calls.
type HashSize struct {
	Hash hash.ContentHash
	Size uint64
}

// ClusterStateUpdate is the payload pushed via update_cluster_state:
// this node's view of machine liveness, written back only by the Master
// (spec §4.3 step 5).
type ClusterStateUpdate struct {
	Machines map[machine.ID]machine.Location
	Active   map[machine.ID]bool
}

// Client is the Global Store contract consumed by LLS (spec §6).
type Client interface {
	// GetCheckpointState fetches this node's current role and checkpoint
	// pointer.
	GetCheckpointState(ctx context.Context) (CheckpointState, error)

	// ReleaseRoleIfNecessary asks the lease service to reconsider this
	// node's role, returning whatever role it holds after the call.
	ReleaseRoleIfNecessary(ctx context.Context) (Role, error)

	// UpdateClusterState pushes this node's view of cluster membership.
	UpdateClusterState(ctx context.Context, state ClusterStateUpdate) error

	// RegisterLocalLocation performs an eager write of this machine as a
	// holder of each hash in items.
	RegisterLocalLocation(ctx context.Context, machineID machine.ID, items []HashSize) error

	// GetBulk resolves each hash to its authoritative location entry.
	GetBulk(ctx context.Context, hashes []hash.ContentHash) ([]LocationEntry, error)

	// InvalidateLocalMachine asks the global store to drop this
	// machine's registrations entirely.
	InvalidateLocalMachine(ctx context.Context, machineID machine.ID) error

	// PutBlob and GetBlob store/fetch opaque checkpoint artifacts,
	// exposed here because some deployments back Central Storage
	// directly with the global store's own blob RPCs rather than a
	// dedicated blob service.
	PutBlob(ctx context.Context, data []byte) (checkpointID string, err error)
	GetBlob(ctx context.Context, checkpointID string) ([]byte, error)
}
