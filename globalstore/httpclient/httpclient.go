// Package httpclient is the concrete wire binding for the Global Store
// contract (spec §6 lists its RPCs but leaves the transport "not defined
// here"). It speaks a small CBOR-over-HTTP protocol, one POST per RPC,
// the same "encode the request body with common/cbor, decode the
// response the same way" shape storage/mkvs/db/badger/badger.go uses for
// on-disk encoding, carried here over net/http instead of a file.
package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/distcache/lls/common/cbor"
	gsapi "github.com/distcache/lls/globalstore/api"
	"github.com/distcache/lls/hash"
	"github.com/distcache/lls/machine"
)

// Config configures the HTTP transport.
type Config struct {
	// BaseURL is the global store's base URL, e.g. "http://globalstore:8080".
	BaseURL string
	// Timeout bounds a single RPC round trip.
	Timeout time.Duration
}

// Client is a raw, non-retrying gsapi.Client over CBOR-over-HTTP. Callers
// needing bounded retry should wrap it with globalstore/client.Client.
type Client struct {
	baseURL string
	hc      *http.Client
}

var _ gsapi.Client = (*Client)(nil)

// New constructs a Client from cfg.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &Client{baseURL: cfg.BaseURL, hc: &http.Client{Timeout: timeout}}
}

func (c *Client) call(ctx context.Context, method string, req, resp interface{}) error {
	body := cbor.Marshal(req)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("globalstore httpclient: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/cbor")

	httpResp, err := c.hc.Do(httpReq)
	if err != nil {
		return fmt.Errorf("globalstore httpclient: %s: %w", method, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return fmt.Errorf("globalstore httpclient: %s: read response: %w", method, err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return fmt.Errorf("globalstore httpclient: %s: status %d: %s", method, httpResp.StatusCode, respBody)
	}
	if resp == nil {
		return nil
	}
	if err := cbor.Unmarshal(respBody, resp); err != nil {
		return fmt.Errorf("globalstore httpclient: %s: decode response: %w", method, err)
	}
	return nil
}

func (c *Client) GetCheckpointState(ctx context.Context) (gsapi.CheckpointState, error) {
	var resp gsapi.CheckpointState
	err := c.call(ctx, "get_checkpoint_state", struct{}{}, &resp)
	return resp, err
}

func (c *Client) ReleaseRoleIfNecessary(ctx context.Context) (gsapi.Role, error) {
	var resp struct{ Role gsapi.Role }
	err := c.call(ctx, "release_role_if_necessary", struct{}{}, &resp)
	return resp.Role, err
}

func (c *Client) UpdateClusterState(ctx context.Context, state gsapi.ClusterStateUpdate) error {
	return c.call(ctx, "update_cluster_state", state, nil)
}

func (c *Client) RegisterLocalLocation(ctx context.Context, machineID machine.ID, items []gsapi.HashSize) error {
	req := struct {
		MachineID machine.ID
		Items     []gsapi.HashSize
	}{machineID, items}
	return c.call(ctx, "register_local_location", req, nil)
}

func (c *Client) GetBulk(ctx context.Context, hashes []hash.ContentHash) ([]gsapi.LocationEntry, error) {
	var resp struct{ Entries []gsapi.LocationEntry }
	err := c.call(ctx, "get_bulk", struct{ Hashes []hash.ContentHash }{hashes}, &resp)
	return resp.Entries, err
}

func (c *Client) InvalidateLocalMachine(ctx context.Context, machineID machine.ID) error {
	return c.call(ctx, "invalidate_local_machine", struct{ MachineID machine.ID }{machineID}, nil)
}

func (c *Client) PutBlob(ctx context.Context, data []byte) (string, error) {
	var resp struct{ CheckpointID string }
	err := c.call(ctx, "put_blob", struct{ Data []byte }{data}, &resp)
	return resp.CheckpointID, err
}

func (c *Client) GetBlob(ctx context.Context, checkpointID string) ([]byte, error) {
	var resp struct{ Data []byte }
	err := c.call(ctx, "get_blob", struct{ CheckpointID string }{checkpointID}, &resp)
	return resp.Data, err
}
