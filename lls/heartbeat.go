package lls

import (
	"context"
	"time"

	esapi "github.com/distcache/lls/eventstore/api"
	gsapi "github.com/distcache/lls/globalstore/api"
	"github.com/distcache/lls/machine"
)

// runHeartbeatGated runs the heartbeat body through the non-blocking
// heartbeat gate: a reentrant fire while one is already running is dropped
// (spec §5 "heartbeat gate").
func (c *Core) runHeartbeatGated(ctx context.Context, forceRestore bool) {
	if !c.heartbeatGate.tryAcquire() {
		return
	}
	defer c.heartbeatGate.release()

	err := c.heartbeatBody(ctx, forceRestore)
	if err != nil {
		c.logger.Warn("heartbeat failed", "err", err)
	}
	c.recordPostInit(err)
}

// heartbeatBody implements spec §4.3.
func (c *Core) heartbeatBody(ctx context.Context, forceRestore bool) error {
	state, err := c.deps.Global.GetCheckpointState(ctx)
	if err != nil {
		return err
	}
	now := time.Now()

	c.mu.Lock()
	oldRole := c.currentRole
	lastRestore := c.lastRestore
	roleSwitched := state.Role != oldRole
	c.mu.Unlock()

	if roleSwitched {
		c.deps.ContentDB.SetWriteable(state.Role == gsapi.RoleMaster)
	}

	shouldRestore := roleSwitched || forceRestore ||
		(state.Role == gsapi.RoleWorker && (lastRestore.IsZero() || now.Sub(lastRestore) >= c.cfg.RestoreCheckpointInterval))

	if shouldRestore {
		if err := c.restore(ctx, state, now); err != nil {
			c.logger.Warn("checkpoint restore failed", "err", err)
		} else {
			c.mu.Lock()
			c.lastRestore = now
			c.lastCheckpointTime = now
			c.mu.Unlock()
		}
	}

	if state.Role == gsapi.RoleMaster {
		if err := c.pushClusterState(ctx); err != nil {
			c.logger.Warn("failed to push cluster state", "err", err)
		}
	}

	if state.Role == gsapi.RoleMaster {
		if err := c.deps.EventStore.StartProcessing(ctx, esapi.SequencePoint(state.StartSequencePoint)); err != nil {
			c.logger.Warn("failed to resume event production", "err", err)
		}
	} else if err := c.deps.EventStore.SuspendProcessing(ctx); err != nil {
		c.logger.Warn("failed to suspend event production", "err", err)
	}

	if state.Role == gsapi.RoleMaster {
		c.mu.Lock()
		lastCheckpoint := c.lastCheckpoint
		c.mu.Unlock()

		if now.Sub(lastCheckpoint) >= c.cfg.CreateCheckpointInterval {
			seq, err := c.deps.EventStore.LastProcessedSequencePoint(ctx)
			switch {
			case err != nil:
				c.logger.Warn("failed to read last processed sequence point", "err", err)
			case seq != esapi.Zero:
				if _, err := c.deps.Checkpoint.Create(ctx, uint64(seq), now); err != nil {
					c.logger.Warn("failed to create checkpoint", "err", err)
				} else {
					llsLastCheckpointSequencePoint.WithLabelValues(c.machineLabel()).Set(float64(seq))
				}
			}
			c.mu.Lock()
			c.lastCheckpoint = now
			c.mu.Unlock()
		}
	}

	c.mu.Lock()
	c.currentRole = state.Role
	c.mu.Unlock()

	llsCurrentRole.WithLabelValues(c.machineLabel()).Set(float64(state.Role))
	llsLastHeartbeatTime.WithLabelValues(c.machineLabel()).Set(float64(now.Unix()))

	return nil
}

// pushClusterState publishes this node's view of cluster membership,
// called only by the Master (spec §4.3 step 5).
func (c *Core) pushClusterState(ctx context.Context) error {
	snap := c.deps.ClusterState.Snapshot()
	update := gsapi.ClusterStateUpdate{
		Machines: make(map[machine.ID]machine.Location, len(snap.Machines)),
		Active:   make(map[machine.ID]bool, len(snap.Machines)),
	}
	for id, e := range snap.Machines {
		update.Machines[id] = e.Location
		update.Active[id] = e.Active
	}
	return c.deps.Global.UpdateClusterState(ctx, update)
}
