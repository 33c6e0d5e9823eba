// Package lls is the LLS core (spec §2 component I): startup/shutdown, the
// heartbeat-driven role state machine, the public register/get/trim/touch
// API, the reconciliation driver, the proactive replication driver, and
// eviction-order streaming. Everything else in this repository is a
// collaborator behind a narrow interface that this package wires together,
// the same way worker/storage/committee/node.go wires its watcher,
// checkpointer and storage client behind one long-lived Node.
package lls

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/eapache/channels"
	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/distcache/lls/checkpoint"
	clapi "github.com/distcache/lls/contentlocation/api"
	"github.com/distcache/lls/clusterstate"
	cerrors "github.com/distcache/lls/common/errors"
	"github.com/distcache/lls/common/logging"
	esapi "github.com/distcache/lls/eventstore/api"
	gsapi "github.com/distcache/lls/globalstore/api"
	"github.com/distcache/lls/hash"
	"github.com/distcache/lls/machine"
	"github.com/distcache/lls/reputation"
	"github.com/distcache/lls/volatile"
)

// Deps bundles the collaborators the core wires together. Each is owned and
// constructed by the caller (cmd/lls-node's config wiring); Core only
// drives their lifecycle and calls their public contracts.
type Deps struct {
	ClusterState  *clusterstate.State
	ContentDB     clapi.DB
	EventStore    esapi.Store
	// NewEventStore constructs a fresh, independently-sequenced event
	// store instance wired to the same consumer as EventStore, used by
	// reconciliation for its short-lived ordering-guarantee store (spec
	// §4.5 step 5).
	NewEventStore func() (esapi.Store, error)
	Global        gsapi.Client
	Checkpoint    *checkpoint.Manager
	Reputation    *reputation.Tracker
	LocalStore    LocalContentStore
	CopyFunc      CopyFunc
}

// Core is the LLS core.
type Core struct {
	cfg    Config
	logger *logging.Logger
	deps   Deps

	recentlyAdded   *volatile.Set
	recentlyRemoved *volatile.Set
	recentlyTouched *volatile.Set

	mu                 sync.Mutex
	currentRole        gsapi.Role
	lastRestore        time.Time
	lastCheckpoint     time.Time
	lastCheckpointTime time.Time
	lastCheckpointID   string
	firstRestoreDone   bool
	reconcileTriggered bool

	heartbeatGate      *gate
	dbInvalidationGate *gate

	replMu     sync.Mutex
	replCancel context.CancelFunc

	postInitOnce sync.Once
	postInitCh   chan struct{}
	postInitErr  error
	postInitMu   sync.RWMutex

	// forceHeartbeatCh decouples the corruption-callback producer (which
	// must never block behind a busy heartbeat loop) from the heartbeat
	// consumer, the same way worker/storage/committee/node.go's blockCh
	// decouples block delivery from its sync loop.
	forceHeartbeatCh *channels.InfiniteChannel

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

// New constructs a Core. Start must be called before any public operation.
func New(cfg Config, deps Deps) *Core {
	c := &Core{
		cfg:                cfg,
		logger:             logging.GetLogger("lls"),
		deps:               deps,
		recentlyAdded:      volatile.NewSet(cfg.TouchFrequency),
		recentlyRemoved:    volatile.NewSet(cfg.TouchFrequency),
		recentlyTouched:    volatile.NewSet(cfg.TouchFrequency),
		heartbeatGate:      newGate(),
		dbInvalidationGate: newGate(),
		postInitCh:         make(chan struct{}),
		forceHeartbeatCh:   channels.NewInfiniteChannel(),
	}
	deps.ContentDB.OnCorruption(c.onCorruption)
	prometheusOnce.Do(func() {
		prometheus.MustRegister(llsCollectors...)
	})
	return c
}

// eventConsumer adapts incoming Event Store deliveries into the Content
// Location Database and Cluster State (spec §4.8, §9 "adapter objects").
type eventConsumer struct {
	db clapi.DB
	cs *clusterstate.State
}

var _ esapi.Consumer = (*eventConsumer)(nil)

func (a *eventConsumer) LocationAdded(ctx context.Context, machineID machine.ID, items []esapi.HashSize, now time.Time) error {
	a.cs.MarkActive(machineID, now)
	converted := make([]clapi.HashSize, len(items))
	for i, it := range items {
		converted[i] = clapi.HashSize{Hash: it.Hash, Size: it.Size}
	}
	return a.db.ApplyAdd(ctx, machineID, converted, false, now)
}

func (a *eventConsumer) LocationRemoved(ctx context.Context, machineID machine.ID, items []hash.ContentHash) error {
	a.cs.MarkActive(machineID, time.Now())
	return a.db.ApplyRemove(ctx, machineID, items)
}

func (a *eventConsumer) ContentTouched(ctx context.Context, machineID machine.ID, items []hash.ContentHash, now time.Time) error {
	a.cs.MarkActive(machineID, now)
	return a.db.ApplyTouch(ctx, items, now)
}

// NewEventConsumer builds the adapter an Event Store should be constructed
// with, wiring incoming events into db and cs.
func NewEventConsumer(db clapi.DB, cs *clusterstate.State) esapi.Consumer {
	return &eventConsumer{db: db, cs: cs}
}

// Start begins the heartbeat loop and, unless InlinePostInitialization is
// set, returns before the first heartbeat completes (spec §5
// "Initialization").
func (c *Core) Start(ctx context.Context) error {
	var startErr error
	c.startOnce.Do(func() {
		c.ctx, c.cancel = context.WithCancel(ctx)

		if c.cfg.InlinePostInitialization {
			c.runHeartbeatGated(c.ctx, false)
			c.wg.Add(1)
			go c.heartbeatLoop(c.cfg.HeartbeatInterval)
		} else {
			c.wg.Add(1)
			go c.heartbeatLoop(0)
		}
	})
	return startErr
}

func (c *Core) heartbeatLoop(initialDelay time.Duration) {
	defer c.wg.Done()

	timer := time.NewTimer(initialDelay)
	defer timer.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case msg := <-c.forceHeartbeatCh.Out():
			c.runHeartbeatGated(c.ctx, msg.(bool))
		case <-timer.C:
			c.runHeartbeatGated(c.ctx, false)
			timer.Reset(c.cfg.HeartbeatInterval)
		}
	}
}

// onCorruption is C's one-shot corruption callback (spec §4.3): it forces a
// heartbeat with forceRestore=true, deduplicated by the database-invalidation
// gate.
func (c *Core) onCorruption(err error) {
	c.logger.Warn("content location database signalled corruption, forcing restore", "err", err)
	if !c.dbInvalidationGate.tryAcquire() {
		return
	}
	defer c.dbInvalidationGate.release()
	c.forceHeartbeatCh.In() <- true
}

// awaitPostInit blocks until the first heartbeat attempt has completed, then
// returns whatever error the most recent heartbeat recorded (spec §5: "a
// subsequent successful heartbeat replaces the post-init state with
// success").
func (c *Core) awaitPostInit(ctx context.Context) error {
	select {
	case <-c.postInitCh:
	case <-ctx.Done():
		return ctx.Err()
	}
	c.postInitMu.RLock()
	defer c.postInitMu.RUnlock()
	return c.postInitErr
}

func (c *Core) recordPostInit(err error) {
	c.postInitMu.Lock()
	c.postInitErr = err
	c.postInitMu.Unlock()
	c.postInitOnce.Do(func() { close(c.postInitCh) })
}

// Stop awaits any pending post-init and in-flight heartbeat, then tears
// down D, C, G, E in that order, aggregating individual failures (spec §7).
func (c *Core) Stop(ctx context.Context) error {
	var stopErr error
	c.stopOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		c.wg.Wait()

		c.replMu.Lock()
		if c.replCancel != nil {
			c.replCancel()
		}
		c.replMu.Unlock()

		var result *multierror.Error
		if err := closeIfCloser(c.deps.EventStore); err != nil {
			result = multierror.Append(result, fmt.Errorf("event store: %w", err))
		}
		if err := c.deps.ContentDB.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("content location database: %w", err))
		}
		if err := closeIfCloser(c.deps.Global); err != nil {
			result = multierror.Append(result, fmt.Errorf("global store client: %w", err))
		}
		if err := closeIfCloser(c.deps.Checkpoint); err != nil {
			result = multierror.Append(result, fmt.Errorf("checkpoint manager: %w", err))
		}
		if result != nil {
			stopErr = result.ErrorOrNil()
		}
	})
	return stopErr
}

func closeIfCloser(v interface{}) error {
	if c, ok := v.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// precondition returns a PreconditionViolated error for caller misuse.
func precondition(format string, args ...interface{}) error {
	return cerrors.New(cerrors.KindPreconditionViolated, fmt.Sprintf(format, args...))
}

// eviction's DBLookup adapter, shared by GetHashesInEvictionOrder.
func (c *Core) evictionLookup(ctx context.Context, h hash.ContentHash) (uint64, time.Time, int, error) {
	e, err := c.deps.ContentDB.Get(ctx, h)
	if err != nil {
		return 0, time.Time{}, 0, err
	}
	if e.IsMissing() {
		return 0, time.Time{}, 0, nil
	}
	return e.Size, e.LastAccessUTC, e.Locations.Count(), nil
}
