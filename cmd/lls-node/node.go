package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	csapi "github.com/distcache/lls/centralstorage/api"
	"github.com/distcache/lls/centralstorage/cachingclient"
	"github.com/distcache/lls/centralstorage/localdisk"
	"github.com/distcache/lls/checkpoint"
	"github.com/distcache/lls/clusterstate"
	"github.com/distcache/lls/common/backoff"
	llsconfig "github.com/distcache/lls/config"
	"github.com/distcache/lls/contentlocation/badgerdb"
	esapi "github.com/distcache/lls/eventstore/api"
	"github.com/distcache/lls/eventstore/memstore"
	"github.com/distcache/lls/globalstore/client"
	"github.com/distcache/lls/globalstore/httpclient"
	"github.com/distcache/lls/hash"
	"github.com/distcache/lls/lls"
	"github.com/distcache/lls/localcontent/dirstore"
	"github.com/distcache/lls/machine"
	"github.com/distcache/lls/reputation"
)

// nodeCtx bundles the running node's background context and the LLS core
// so main's Run callback and the signal-driven shutdown path can share
// them.
type nodeCtx struct {
	ctx    context.Context
	cancel context.CancelFunc
	core   *lls.Core
}

func buildNode() (*nodeCtx, error) {
	llsCfg := llsconfig.Load()
	storageCfg := llsconfig.LoadStorageConfig()

	if llsCfg.WorkingDir == "" {
		return nil, fmt.Errorf("lls-node: working directory not configured")
	}
	if err := os.MkdirAll(llsCfg.WorkingDir, 0o700); err != nil {
		return nil, fmt.Errorf("lls-node: create working dir: %w", err)
	}

	contentDB, err := badgerdb.New(&badgerdb.Config{Dir: llsconfig.ContentDBDir()})
	if err != nil {
		return nil, fmt.Errorf("lls-node: open content location database: %w", err)
	}

	storageBackend, err := buildStorageBackend(storageCfg)
	if err != nil {
		return nil, err
	}
	checkpointMgr := checkpoint.New(contentDB, storageBackend)

	clusterState := clusterstate.New()
	consumer := lls.NewEventConsumer(contentDB, clusterState)
	eventStore := memstore.New(consumer)

	rawGlobal := httpclient.New(httpclient.Config{BaseURL: os.Getenv("LLS_GLOBAL_STORE_URL")})
	globalClient := client.New(rawGlobal, backoff.DefaultPolicy)

	localStore := dirstore.New(filepath.Join(llsCfg.WorkingDir, "blobs"))

	deps := lls.Deps{
		ClusterState: clusterState,
		ContentDB:    contentDB,
		EventStore:   eventStore,
		NewEventStore: func() (esapi.Store, error) {
			return memstore.New(consumer), nil
		},
		Global:     globalClient,
		Checkpoint: checkpointMgr,
		Reputation: reputation.New(),
		LocalStore: localStore,
		CopyFunc:   noopCopy,
	}

	core := lls.New(llsCfg, deps)

	ctx, cancel := context.WithCancel(context.Background())
	return &nodeCtx{ctx: ctx, cancel: cancel, core: core}, nil
}

func buildStorageBackend(cfg llsconfig.StorageConfig) (csapi.Backend, error) {
	if cfg.LocalDiskDir == "" {
		return nil, fmt.Errorf("lls-node: central storage directory not configured")
	}
	base, err := localdisk.New(&localdisk.Config{Dir: cfg.LocalDiskDir})
	if err != nil {
		return nil, fmt.Errorf("lls-node: open central storage: %w", err)
	}
	switch cfg.Backend {
	case llsconfig.BackendLocalDisk, "":
		return base, nil
	case llsconfig.BackendCachingClient:
		return cachingclient.New(base, cachingclient.Config{CacheSizeBytes: cfg.CachingClientBytes}), nil
	default:
		return nil, fmt.Errorf("lls-node: unknown central storage backend %q", cfg.Backend)
	}
}

func noopCopy(ctx context.Context, h hash.ContentHash, target machine.ID) error {
	// Blob transfer between peers is out of LLS's scope; a real deployment
	// wires this to the node's own content-fetch RPC.
	logger.Warn("proactive replication copy requested but no copy transport is configured", "hash", h, "target", target)
	return nil
}

func waitForShutdown(n *nodeCtx) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("lls node shutting down")
	n.cancel()
	if err := n.core.Stop(context.Background()); err != nil {
		logger.Error("error during shutdown", "err", err)
	}
}
