package rediscluster

import (
	"github.com/joomcode/errorx"

	"github.com/joomcode/redisrouter/redis"
)

var (
	// ErrCluster - some cluster related errors.
	ErrCluster = redis.Errors.NewSubNamespace("cluster")
	// ErrConfiguration - no seeds given, seed address is malformed, or options are wrong.
	ErrConfiguration = ErrCluster.NewType("configuration")
	// ErrTopologyDiscovery - cluster layout could not be learned: seeds are unreachable,
	// CLUSTER NODES failed or is not parsable, nodes disagree on slot owners, or not all slots are covered.
	ErrTopologyDiscovery = ErrCluster.NewType("topology_discovery")
	// ErrReplicaLookup - master owning slots has no replica in CLUSTER NODES listing.
	ErrReplicaLookup = ErrTopologyDiscovery.NewSubtype("replica_lookup")
	// ErrNotReady - topology is not discovered (yet, or after failed refresh).
	ErrNotReady = ErrCluster.NewType("not_ready", errorx.Temporary())
	// ErrPoolExhausted - there is no connected and free connection to server.
	ErrPoolExhausted = ErrCluster.NewType("pool_exhausted", errorx.Temporary())
	// ErrRedirected - server replied with MOVED or ASK. Topology is probably stale.
	ErrRedirected = ErrCluster.NewType("redirected")
	// ErrNoSlotKey - command has no key argument to calculate slot from.
	ErrNoSlotKey = ErrCluster.NewType("no_slot_key")
)

var (
	// EKSeed - seed address (or list of seed addresses) discovery were attempted with.
	EKSeed = errorx.RegisterPrintableProperty("seed")
	// EKPoolSize - configured number of connections per server.
	EKPoolSize = errorx.RegisterPrintableProperty("pool_size")
	// EKServer - name of server request were routed to.
	EKServer = errorx.RegisterPrintableProperty("server")
	// EKInUse - number of busy connections in the whole pool.
	EKInUse = errorx.RegisterPrintableProperty("in_use")
	// EKConnected - number of connected connections in the whole pool.
	EKConnected = errorx.RegisterPrintableProperty("connected")
	// EKDisagreements - list of slot ownership disagreements.
	EKDisagreements = errorx.RegisterProperty("disagreements")
	// EKCovered - number of slots covered by discovered layout.
	EKCovered = errorx.RegisterPrintableProperty("covered")
)
