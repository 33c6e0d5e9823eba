package lls

import (
	"context"
	"time"

	gsapi "github.com/distcache/lls/globalstore/api"
)

// restore implements spec §4.4. The CheckpointState already carries the
// checkpoint pointer and its age from the Global Store's own view (spec §6
// get_checkpoint_state), so there is a single source of truth for "the
// latest known checkpoint" rather than a second independent query to the
// Checkpoint Manager; see DESIGN.md for this simplification.
func (c *Core) restore(ctx context.Context, state gsapi.CheckpointState, now time.Time) error {
	c.mu.Lock()
	firstRestoreDone := c.firstRestoreDone
	lastCheckpointID := c.lastCheckpointID
	c.mu.Unlock()

	if !state.CheckpointAvailable {
		c.mu.Lock()
		c.firstRestoreDone = true
		c.mu.Unlock()
		return nil
	}

	if !firstRestoreDone {
		age := now.Sub(state.CheckpointTime)
		if age <= c.cfg.RestoreCheckpointAgeThreshold {
			c.mu.Lock()
			c.firstRestoreDone = true
			c.mu.Unlock()
			return nil
		}
	}

	if state.CheckpointID == lastCheckpointID {
		c.mu.Lock()
		c.firstRestoreDone = true
		c.mu.Unlock()
		return nil
	}

	if err := c.deps.Checkpoint.Restore(ctx, state.CheckpointID); err != nil {
		return err
	}

	c.mu.Lock()
	c.lastCheckpointID = state.CheckpointID
	wasFirst := !c.firstRestoreDone
	c.firstRestoreDone = true
	triggerReconcile := wasFirst && !c.reconcileTriggered
	if triggerReconcile {
		c.reconcileTriggered = true
	}
	c.mu.Unlock()

	if triggerReconcile {
		c.triggerPostRestoreTasks(ctx)
	}

	return nil
}

// triggerPostRestoreTasks runs reconciliation once, then (if enabled)
// starts proactive replication, per spec §4.4 step 5.
func (c *Core) triggerPostRestoreTasks(ctx context.Context) {
	if c.cfg.EnableReconciliation {
		if err := c.Reconcile(ctx); err != nil {
			c.logger.Warn("post-restore reconciliation failed", "err", err)
		}
	}

	if !c.cfg.EnableProactiveReplication {
		return
	}
	if c.cfg.InlineProactiveReplication {
		c.runProactiveReplication(ctx)
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.runProactiveReplication(c.ctx)
	}()
}
