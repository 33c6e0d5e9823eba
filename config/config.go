// Package config registers LLS's cobra/viper configuration surface (spec
// §6 "Configuration surface"), grounded on storage/init.go's
// cfgX-constant + RegisterFlags + viper.BindPFlag idiom, and builds an
// lls.Config from the bound flags.
package config

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/distcache/lls/lls"
)

const (
	cfgLocalMachineID   = "lls.local_machine_id"
	cfgWorkingDir       = "lls.working_dir"
	cfgCheckpointPrefix = "lls.checkpoint_prefix"

	cfgTouchFrequency                  = "lls.touch_frequency"
	cfgLocationEntryExpiry             = "lls.location_entry_expiry"
	cfgRecomputeInactiveMachinesExpiry = "lls.recompute_inactive_machines_expiry"
	cfgSkipRedundantContentLocationAdd = "lls.skip_redundant_content_location_add"
	cfgSafeToLazilyUpdateThreshold     = "lls.safe_to_lazily_update_machine_count_threshold"

	cfgHeartbeatInterval             = "lls.heartbeat_interval"
	cfgCreateCheckpointInterval      = "lls.create_checkpoint_interval"
	cfgRestoreCheckpointInterval     = "lls.restore_checkpoint_interval"
	cfgRestoreCheckpointAgeThreshold = "lls.restore_checkpoint_age_threshold"

	cfgReconciliationCycleFrequency = "lls.reconciliation_cycle_frequency"
	cfgReconciliationMaxCycleSize   = "lls.reconciliation_max_cycle_size"
	cfgEnableReconciliation         = "lls.enable_reconciliation"

	cfgEnableProactiveReplication      = "lls.enable_proactive_replication"
	cfgInlineProactiveReplication      = "lls.inline_proactive_replication"
	cfgProactiveCopyLocationsThreshold = "lls.proactive_copy_locations_threshold"
	cfgDelayForProactiveReplication    = "lls.delay_for_proactive_replication"
	cfgProactiveReplicationCopyLimit   = "lls.proactive_replication_copy_limit"

	cfgEvictionPoolSize        = "lls.eviction_pool_size"
	cfgEvictionWindowSize      = "lls.eviction_window_size"
	cfgEvictionRemovalFraction = "lls.eviction_removal_fraction"
	cfgEvictionDiscardFraction = "lls.eviction_discard_fraction"
	cfgEvictionMinAge          = "lls.eviction_min_age"
	cfgContentLifetime         = "lls.content_lifetime"
	cfgMachineRisk             = "lls.machine_risk"

	cfgInlinePostInitialization = "lls.inline_post_initialization"

	cfgDataDir = "lls.data_dir"

	cfgContentDBDir = "lls.contentdb.dir"

	cfgCentralStorageBackend = "lls.centralstorage.backend"
	cfgCentralStorageDir     = "lls.centralstorage.localdisk.dir"
	cfgCentralStorageCacheBytes = "lls.centralstorage.cachingclient.cache_size_bytes"

	// BackendLocalDisk and BackendCachingClient are the recognized
	// lls.centralstorage.backend values.
	BackendLocalDisk     = "localdisk"
	BackendCachingClient = "cachingclient"
)

// RegisterFlags registers every recognized LLS configuration flag on cmd
// (spec §6), and binds each to viper, the same two-step
// cmd.Flags()/viper.BindPFlag dance storage/init.go uses.
func RegisterFlags(cmd *cobra.Command) {
	if !cmd.Flags().Parsed() {
		cmd.Flags().Uint32(cfgLocalMachineID, 0, "This node's machine id, assigned by the global store")
		cmd.Flags().String(cfgWorkingDir, "/var/lib/lls", "Working directory for the reconcile marker file")
		cmd.Flags().String(cfgCheckpointPrefix, "default", "Checkpoint lineage prefix expected by this node")

		cmd.Flags().Duration(cfgTouchFrequency, 5*time.Minute, "Touch dedup and DB entry staleness window")
		cmd.Flags().Duration(cfgLocationEntryExpiry, 30*time.Minute, "Drives the reconcile freshness window via x0.75")
		cmd.Flags().Duration(cfgRecomputeInactiveMachinesExpiry, time.Minute, "x5 defines the recent-inactivity window")
		cmd.Flags().Bool(cfgSkipRedundantContentLocationAdd, true, "Enable volatile-set suppression in the registration policy")
		cmd.Flags().Int(cfgSafeToLazilyUpdateThreshold, 3, "Replica count at or above which Add may be lazy")

		cmd.Flags().Duration(cfgHeartbeatInterval, 10*time.Second, "Heartbeat interval")
		cmd.Flags().Duration(cfgCreateCheckpointInterval, 10*time.Minute, "Minimum interval between master-created checkpoints")
		cmd.Flags().Duration(cfgRestoreCheckpointInterval, time.Hour, "Minimum interval between worker checkpoint restores")
		cmd.Flags().Duration(cfgRestoreCheckpointAgeThreshold, 5*time.Minute, "Max checkpoint age that lets the first restore be skipped")

		cmd.Flags().Duration(cfgReconciliationCycleFrequency, 100*time.Millisecond, "Delay between reconciliation cycles")
		cmd.Flags().Int(cfgReconciliationMaxCycleSize, 10000, "Max diff size per reconciliation cycle")
		cmd.Flags().Bool(cfgEnableReconciliation, true, "Enable reconciliation after the first successful restore")

		cmd.Flags().Bool(cfgEnableProactiveReplication, true, "Enable proactive replication after the first successful restore")
		cmd.Flags().Bool(cfgInlineProactiveReplication, false, "Run proactive replication inline rather than as a background task")
		cmd.Flags().Int(cfgProactiveCopyLocationsThreshold, 3, "Replica count below which proactive replication copies a hash")
		cmd.Flags().Duration(cfgDelayForProactiveReplication, 50*time.Millisecond, "Pacing delay between proactive replication copies")
		cmd.Flags().Int(cfgProactiveReplicationCopyLimit, 1000, "Max copy outcomes per proactive replication run")

		cmd.Flags().Int(cfgEvictionPoolSize, 1024, "Bounded pool size for the eviction approximate sort")
		cmd.Flags().Int(cfgEvictionWindowSize, 256, "Page size pulled per eviction sort step")
		cmd.Flags().Float64(cfgEvictionRemovalFraction, 0.25, "Fraction of the eviction pool emitted per step")
		cmd.Flags().Float64(cfgEvictionDiscardFraction, 0.1, "Fraction of the eviction pool discarded per step")
		cmd.Flags().Duration(cfgEvictionMinAge, time.Hour, "Minimum effective age before a candidate is eviction-eligible")
		cmd.Flags().Duration(cfgContentLifetime, 7*24*time.Hour, "Assumed content lifetime used in the effective-last-access formula")
		cmd.Flags().Float64(cfgMachineRisk, 0.1, "Assumed per-replica unavailability risk in the effective-last-access formula")

		cmd.Flags().Bool(cfgInlinePostInitialization, false, "Await the initial heartbeat synchronously during startup")

		cmd.Flags().String(cfgDataDir, "/var/lib/lls", "Base data directory")
		cmd.Flags().String(cfgContentDBDir, "", "Content location database directory (empty = in-memory)")

		cmd.Flags().String(cfgCentralStorageBackend, BackendLocalDisk, "Central Storage backend: localdisk or cachingclient")
		cmd.Flags().String(cfgCentralStorageDir, "", "Local-disk Central Storage directory")
		cmd.Flags().Int64(cfgCentralStorageCacheBytes, 256<<20, "Caching-client local cache size in bytes")
	}

	for _, v := range []string{
		cfgLocalMachineID, cfgWorkingDir, cfgCheckpointPrefix,
		cfgTouchFrequency, cfgLocationEntryExpiry, cfgRecomputeInactiveMachinesExpiry,
		cfgSkipRedundantContentLocationAdd, cfgSafeToLazilyUpdateThreshold,
		cfgHeartbeatInterval, cfgCreateCheckpointInterval, cfgRestoreCheckpointInterval, cfgRestoreCheckpointAgeThreshold,
		cfgReconciliationCycleFrequency, cfgReconciliationMaxCycleSize, cfgEnableReconciliation,
		cfgEnableProactiveReplication, cfgInlineProactiveReplication, cfgProactiveCopyLocationsThreshold,
		cfgDelayForProactiveReplication, cfgProactiveReplicationCopyLimit,
		cfgEvictionPoolSize, cfgEvictionWindowSize, cfgEvictionRemovalFraction, cfgEvictionDiscardFraction,
		cfgEvictionMinAge, cfgContentLifetime, cfgMachineRisk,
		cfgInlinePostInitialization,
		cfgDataDir, cfgContentDBDir,
		cfgCentralStorageBackend, cfgCentralStorageDir, cfgCentralStorageCacheBytes,
	} {
		_ = viper.BindPFlag(v, cmd.Flags().Lookup(v))
	}
}

// StorageConfig is the subset of configuration that selects and configures
// the Central Storage backend (spec §2 component E).
type StorageConfig struct {
	Backend             string
	LocalDiskDir         string
	CachingClientBytes   int64
}

// Load builds an lls.Config from bound viper state.
func Load() lls.Config {
	return lls.Config{
		LocalMachineID: viper.GetUint32(cfgLocalMachineID),

		WorkingDir:       viper.GetString(cfgWorkingDir),
		CheckpointPrefix: viper.GetString(cfgCheckpointPrefix),

		TouchFrequency:                  viper.GetDuration(cfgTouchFrequency),
		LocationEntryExpiry:             viper.GetDuration(cfgLocationEntryExpiry),
		RecomputeInactiveMachinesExpiry: viper.GetDuration(cfgRecomputeInactiveMachinesExpiry),
		SkipRedundantContentLocationAdd: viper.GetBool(cfgSkipRedundantContentLocationAdd),
		SafeToLazilyUpdateMachineCountThreshold: viper.GetInt(cfgSafeToLazilyUpdateThreshold),

		HeartbeatInterval:             viper.GetDuration(cfgHeartbeatInterval),
		CreateCheckpointInterval:      viper.GetDuration(cfgCreateCheckpointInterval),
		RestoreCheckpointInterval:     viper.GetDuration(cfgRestoreCheckpointInterval),
		RestoreCheckpointAgeThreshold: viper.GetDuration(cfgRestoreCheckpointAgeThreshold),

		ReconciliationCycleFrequency: viper.GetDuration(cfgReconciliationCycleFrequency),
		ReconciliationMaxCycleSize:   viper.GetInt(cfgReconciliationMaxCycleSize),
		EnableReconciliation:         viper.GetBool(cfgEnableReconciliation),

		EnableProactiveReplication:      viper.GetBool(cfgEnableProactiveReplication),
		InlineProactiveReplication:      viper.GetBool(cfgInlineProactiveReplication),
		ProactiveCopyLocationsThreshold: viper.GetInt(cfgProactiveCopyLocationsThreshold),
		DelayForProactiveReplication:    viper.GetDuration(cfgDelayForProactiveReplication),
		ProactiveReplicationCopyLimit:   viper.GetInt(cfgProactiveReplicationCopyLimit),

		EvictionPoolSize:        viper.GetInt(cfgEvictionPoolSize),
		EvictionWindowSize:      viper.GetInt(cfgEvictionWindowSize),
		EvictionRemovalFraction: viper.GetFloat64(cfgEvictionRemovalFraction),
		EvictionDiscardFraction: viper.GetFloat64(cfgEvictionDiscardFraction),
		EvictionMinAge:          viper.GetDuration(cfgEvictionMinAge),
		ContentLifetime:         viper.GetDuration(cfgContentLifetime),
		MachineRisk:             viper.GetFloat64(cfgMachineRisk),

		InlinePostInitialization: viper.GetBool(cfgInlinePostInitialization),
	}
}

// DataDir returns the configured base data directory.
func DataDir() string { return viper.GetString(cfgDataDir) }

// ContentDBDir returns the configured content location database directory.
func ContentDBDir() string { return viper.GetString(cfgContentDBDir) }

// LoadStorageConfig builds a StorageConfig from bound viper state.
func LoadStorageConfig() StorageConfig {
	return StorageConfig{
		Backend:           viper.GetString(cfgCentralStorageBackend),
		LocalDiskDir:       viper.GetString(cfgCentralStorageDir),
		CachingClientBytes: viper.GetInt64(cfgCentralStorageCacheBytes),
	}
}
