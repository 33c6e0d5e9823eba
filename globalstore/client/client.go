// Package client wraps a raw Global Store transport with bounded retry,
// the same cenkalti/backoff pattern used throughout the rest of LLS for
// RPCs to external collaborators (spec §7: "TransientRemote... bubbled
// up - callers retry via heartbeat", which this package turns into a
// bounded number of immediate retries before bubbling up).
package client

import (
	"context"

	gsapi "github.com/distcache/lls/globalstore/api"
	"github.com/distcache/lls/common/backoff"
	cerrors "github.com/distcache/lls/common/errors"
	"github.com/distcache/lls/hash"
	"github.com/distcache/lls/machine"
)

// isTransient classifies every error surfaced by the raw transport as
// retryable except a KindCancelled one, since wire transport to the
// global store is an out-of-scope external collaborator and any other
// failure it reports (dial failure, deadline, remote unavailability) is a
// TransientRemote condition (spec §7).
func isTransient(err error) bool {
	return !cerrors.Is(err, cerrors.KindCancelled)
}

// Client wraps a raw gsapi.Client with retry.
type Client struct {
	raw    gsapi.Client
	policy backoff.Policy
}

var _ gsapi.Client = (*Client)(nil)

// New wraps raw with the given retry policy.
func New(raw gsapi.Client, policy backoff.Policy) *Client {
	return &Client{raw: raw, policy: policy}
}

func (c *Client) GetCheckpointState(ctx context.Context) (gsapi.CheckpointState, error) {
	var out gsapi.CheckpointState
	err := backoff.Retry(ctx, c.policy, isTransient, func() error {
		var err error
		out, err = c.raw.GetCheckpointState(ctx)
		return err
	})
	return out, err
}

func (c *Client) ReleaseRoleIfNecessary(ctx context.Context) (gsapi.Role, error) {
	var out gsapi.Role
	err := backoff.Retry(ctx, c.policy, isTransient, func() error {
		var err error
		out, err = c.raw.ReleaseRoleIfNecessary(ctx)
		return err
	})
	return out, err
}

func (c *Client) UpdateClusterState(ctx context.Context, state gsapi.ClusterStateUpdate) error {
	return backoff.Retry(ctx, c.policy, isTransient, func() error {
		return c.raw.UpdateClusterState(ctx, state)
	})
}

func (c *Client) RegisterLocalLocation(ctx context.Context, machineID machine.ID, items []gsapi.HashSize) error {
	return backoff.Retry(ctx, c.policy, isTransient, func() error {
		return c.raw.RegisterLocalLocation(ctx, machineID, items)
	})
}

func (c *Client) GetBulk(ctx context.Context, hashes []hash.ContentHash) ([]gsapi.LocationEntry, error) {
	var out []gsapi.LocationEntry
	err := backoff.Retry(ctx, c.policy, isTransient, func() error {
		var err error
		out, err = c.raw.GetBulk(ctx, hashes)
		return err
	})
	return out, err
}

func (c *Client) InvalidateLocalMachine(ctx context.Context, machineID machine.ID) error {
	return backoff.Retry(ctx, c.policy, isTransient, func() error {
		return c.raw.InvalidateLocalMachine(ctx, machineID)
	})
}

func (c *Client) PutBlob(ctx context.Context, data []byte) (string, error) {
	var id string
	err := backoff.Retry(ctx, c.policy, isTransient, func() error {
		var err error
		id, err = c.raw.PutBlob(ctx, data)
		return err
	})
	return id, err
}

func (c *Client) GetBlob(ctx context.Context, checkpointID string) ([]byte, error) {
	var data []byte
	err := backoff.Retry(ctx, c.policy, isTransient, func() error {
		var err error
		data, err = c.raw.GetBlob(ctx, checkpointID)
		return err
	})
	return data, err
}
