package rediscluster

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/joomcode/errorx"
	"go.opentelemetry.io/otel/metric"

	"github.com/joomcode/redisrouter/redis"
	"github.com/joomcode/redisrouter/rediscluster/redisclusterutil"
	"github.com/joomcode/redisrouter/redisconn"
)

// MaxDisagreements is a number of slot ownership disagreements tolerated in CLUSTER NODES listing.
// Discovery aborts when there are more.
const MaxDisagreements = 5

// SeedPolicy defines how seeds are asked for topology.
type SeedPolicy int

const (
	// SeedTryAll asks seeds in order until one of them returns valid topology.
	SeedTryAll SeedPolicy = iota
	// SeedFirstOnly asks only first seed.
	SeedFirstOnly
)

func (p SeedPolicy) String() string {
	switch p {
	case SeedTryAll:
		return "try-all"
	case SeedFirstOnly:
		return "first-only"
	}
	return fmt.Sprintf("SeedPolicy(%d)", int(p))
}

// ParseSeedPolicy parses result of SeedPolicy.String.
func ParseSeedPolicy(s string) (SeedPolicy, error) {
	switch strings.ToLower(s) {
	case "", "try-all":
		return SeedTryAll, nil
	case "first-only":
		return SeedFirstOnly, nil
	}
	return 0, ErrConfiguration.New("unknown seed policy %q", s)
}

// TopologyOpts - options for Topology.
type TopologyOpts struct {
	// SeedPolicy - how seeds are asked. Default is SeedTryAll.
	SeedPolicy SeedPolicy
	// AllowNoReplicas - do not fail discovery if master has no replica.
	AllowNoReplicas bool
	// Dial is used to establish short-lived connection for CLUSTER NODES.
	// Default is DefaultDial.
	Dial DialFunc
	// ConnOpts - options passed to Dial.
	ConnOpts redisconn.Opts
	// Logger
	Logger Logger
	// MeterProvider for discovery metrics. Default is global otel MeterProvider.
	MeterProvider metric.MeterProvider
}

// Topology learns and keeps cluster layout.
// Layout is published as immutable *Snapshot, and it is safe to read it concurrently with discovery.
type Topology struct {
	seeds []string
	opts  TopologyOpts

	// m serializes discovery.
	m sync.Mutex
	// learned is a seed list merged with addresses of last good snapshot.
	learned []string

	snapshot atomic.Value // *Snapshot

	metrics *metrics
}

// NewTopology creates Topology. Discovery is not performed until Initialize is called.
// Seeds are "host:port" addresses; duplicates are removed.
func NewTopology(seeds []string, opts TopologyOpts) (*Topology, error) {
	if len(seeds) == 0 {
		return nil, ErrConfiguration.New("no seed addresses given")
	}
	norm, err := normalizeSeeds(seeds)
	if err != nil {
		return nil, err
	}
	if opts.SeedPolicy != SeedTryAll && opts.SeedPolicy != SeedFirstOnly {
		return nil, ErrConfiguration.New("unknown seed policy %s", opts.SeedPolicy)
	}
	if opts.Dial == nil {
		opts.Dial = DefaultDial
	}
	if opts.Logger == nil {
		opts.Logger = ZapLogger{}
	}
	if opts.ConnOpts.Logger == nil {
		opts.ConnOpts.Logger = defaultConnLogger{opts.Logger}
	}
	// discovery connections are closed right after CLUSTER NODES
	opts.ConnOpts.AutoReconnect = false

	t := &Topology{
		seeds:   norm,
		opts:    opts,
		metrics: newMetrics(opts.MeterProvider),
	}
	t.snapshot.Store((*Snapshot)(nil))
	return t, nil
}

// Seeds returns original (deduplicated) seeds.
func (t *Topology) Seeds() []string {
	return append([]string(nil), t.seeds...)
}

// Ready returns true if valid topology is discovered.
func (t *Topology) Ready() bool {
	return t.Snapshot() != nil
}

// Snapshot returns current topology, or nil if topology is not ready.
func (t *Topology) Snapshot() *Snapshot {
	return t.snapshot.Load().(*Snapshot)
}

// invalidate makes topology not ready, unless snap was already replaced by newer discovery.
func (t *Topology) invalidate(snap *Snapshot) {
	t.snapshot.CompareAndSwap(snap, (*Snapshot)(nil))
}

// Initialize discovers topology.
// Topology is not ready while discovery is in progress and after it failed.
// If previous discovery succeeded, seeds merged with addresses learned that time are asked first.
func (t *Topology) Initialize(ctx context.Context) error {
	if ctx == nil {
		return redis.ErrContextIsNil.New("no context is given")
	}
	t.m.Lock()
	defer t.m.Unlock()
	return t.discover(ctx, mergeOrdered(t.learned, t.seeds))
}

// Reset forgets everything learned and discovers topology using original seeds only.
func (t *Topology) Reset(ctx context.Context) error {
	if ctx == nil {
		return redis.ErrContextIsNil.New("no context is given")
	}
	t.m.Lock()
	defer t.m.Unlock()
	t.learned = nil
	return t.discover(ctx, t.seeds)
}

func (t *Topology) report(event LogEvent) {
	t.opts.Logger.Report(event)
}

func (t *Topology) discover(ctx context.Context, candidates []string) error {
	t.snapshot.Store((*Snapshot)(nil))

	var failed []string
	var lastErr error
	for i, seed := range candidates {
		if i > 0 && t.opts.SeedPolicy == SeedFirstOnly {
			break
		}
		snap, err := t.discoverFrom(ctx, seed, candidates)
		if err == nil {
			t.learned = snap.seeds
			t.snapshot.Store(snap)
			t.metrics.discovered(ctx, "ok")
			t.report(LogTopologyReady{
				Seed:          seed,
				Servers:       len(snap.servers),
				Disagreements: snap.disagreements,
				PubSubTarget:  snap.pubsub.Name(),
			})
			return nil
		}
		failed = append(failed, seed)
		lastErr = err
		t.report(LogSeedFailed{Seed: seed, Error: err})
		if ctx.Err() != nil {
			break
		}
	}

	var err *errorx.Error
	msg := "cluster topology discovery failed, seeds tried: " + strings.Join(failed, ", ")
	if errorx.IsOfType(lastErr, ErrTopologyDiscovery) {
		err = errorx.Decorate(lastErr, "%s", msg)
	} else {
		err = ErrTopologyDiscovery.Wrap(lastErr, "%s", msg)
	}
	err = err.WithProperty(EKSeed, failed)
	t.metrics.discovered(ctx, "error")
	t.report(LogTopologyFailed{Error: err})
	return err
}

func (t *Topology) discoverFrom(ctx context.Context, seed string, candidates []string) (*Snapshot, error) {
	conn, err := t.opts.Dial(ctx, seed, t.opts.ConnOpts)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	data, err := conn.ClusterNodes(ctx)
	if err != nil {
		return nil, err
	}
	infos, err := redisclusterutil.ParseClusterNodes(data)
	if err != nil {
		return nil, ErrTopologyDiscovery.Wrap(err, "CLUSTER NODES reply is not parsable").
			WithProperty(EKSeed, seed)
	}
	return buildSnapshot(seed, candidates, infos, t.opts.AllowNoReplicas, t.report)
}

// Snapshot is an immutable cluster layout.
type Snapshot struct {
	source        string
	slots         [NumSlots][]*Server
	servers       map[string]*Server
	sorted        []*Server
	seeds         []string
	pubsub        *Server
	disagreements []string
}

// SlotRange is a range of slots with same owners.
type SlotRange struct {
	From   uint16
	To     uint16
	Owners []*Server
}

// Owners returns servers owning slot: master first, then replicas.
// Returned slice should not be modified.
func (s *Snapshot) Owners(slot uint16) []*Server {
	if int(slot) >= NumSlots {
		return nil
	}
	return s.slots[slot]
}

// Master returns master of slot.
func (s *Snapshot) Master(slot uint16) *Server {
	owners := s.Owners(slot)
	if len(owners) == 0 {
		return nil
	}
	return owners[0]
}

// Servers returns all registered servers sorted by name.
func (s *Snapshot) Servers() []*Server {
	return append([]*Server(nil), s.sorted...)
}

// Server returns server by its name ("host:port"), or nil.
func (s *Snapshot) Server(name string) *Server {
	return s.servers[name]
}

// Seeds returns seeds merged with all discovered addresses, sorted.
func (s *Snapshot) Seeds() []string {
	return append([]string(nil), s.seeds...)
}

// PubSubTarget returns server which should be used for pub/sub.
func (s *Snapshot) PubSubTarget() *Server {
	return s.pubsub
}

// Disagreements returns tolerated slot ownership disagreements.
func (s *Snapshot) Disagreements() []string {
	return append([]string(nil), s.disagreements...)
}

// Source returns seed the snapshot were learned from.
func (s *Snapshot) Source() string {
	return s.source
}

// Ranges returns contiguous slot ranges grouped by owners.
func (s *Snapshot) Ranges() []SlotRange {
	var ranges []SlotRange
	for slot := 0; slot < NumSlots; slot++ {
		owners := s.slots[slot]
		if n := len(ranges); n > 0 && sameOwners(ranges[n-1].Owners, owners) && int(ranges[n-1].To) == slot-1 {
			ranges[n-1].To = uint16(slot)
			continue
		}
		ranges = append(ranges, SlotRange{From: uint16(slot), To: uint16(slot), Owners: owners})
	}
	return ranges
}

func sameOwners(a, b []*Server) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

type masterInfo struct {
	server *Server
	slots  [][2]uint16
}

// buildSnapshot builds slot table from CLUSTER NODES listing.
func buildSnapshot(source string, seeds []string, infos redisclusterutil.InstanceInfos,
	allowNoReplicas bool, report func(LogEvent)) (*Snapshot, error) {
	snap := &Snapshot{
		source:  source,
		servers: make(map[string]*Server, len(infos)),
	}

	var masters []masterInfo
	var replicas []*Server
	for i := range infos {
		ii := &infos[i]
		for _, tok := range ii.BadTokens {
			report(LogBadSlotToken{Seed: source, Node: ii.Addr, Token: tok})
		}
		if !ii.Usable() {
			continue
		}
		srv := &Server{Host: ii.IP, Port: ii.Port, Role: RoleMaster, ID: ii.Uuid}
		if ii.IsMaster() {
			masters = append(masters, masterInfo{server: srv, slots: ii.Slots})
		} else {
			srv.Role = RoleReplica
			srv.MasterID = ii.SlaveOf
			replicas = append(replicas, srv)
		}
		snap.servers[srv.Name()] = srv
	}

	covered := 0
	for _, m := range masters {
		if len(m.slots) == 0 {
			continue
		}
		owners := []*Server{m.server}
		for _, r := range replicas {
			if r.MasterID == m.server.ID {
				owners = append(owners, r)
			}
		}
		if len(owners) == 1 && !allowNoReplicas {
			return nil, ErrReplicaLookup.New("no replica found for master %s (%s)", m.server.Name(), m.server.ID).
				WithProperty(EKServer, m.server.Name()).
				WithProperty(EKSeed, source)
		}
		for _, r := range m.slots {
			for slot := int(r[0]); slot <= int(r[1]); slot++ {
				cur := snap.slots[slot]
				if cur == nil {
					snap.slots[slot] = owners
					covered++
					continue
				}
				if cur[0].Name() == m.server.Name() {
					continue
				}
				snap.disagreements = append(snap.disagreements,
					fmt.Sprintf("%s vs %s on slot: %d", cur[0].Name(), m.server.Name(), slot))
				if len(snap.disagreements) > MaxDisagreements {
					return nil, ErrTopologyDiscovery.New("nodes could not agree on a valid slots cache: %s",
						strings.Join(snap.disagreements, ", ")).
						WithProperty(EKDisagreements, snap.disagreements).
						WithProperty(EKSeed, source)
				}
			}
		}
	}

	snap.sorted = make([]*Server, 0, len(snap.servers))
	names := make([]string, 0, len(snap.servers))
	for name, srv := range snap.servers {
		snap.sorted = append(snap.sorted, srv)
		names = append(names, name)
	}
	sort.Slice(snap.sorted, func(i, j int) bool {
		return snap.sorted[i].Name() < snap.sorted[j].Name()
	})
	snap.seeds = mergeSeeds(seeds, names)

	if covered != NumSlots {
		return nil, ErrTopologyDiscovery.New("all slots are not covered: %d of %d covered", covered, NumSlots).
			WithProperty(EKCovered, covered).
			WithProperty(EKSeed, source)
	}

	snap.pubsub = DeterminePubSubTarget(snap.sorted)
	return snap, nil
}

// mergeOrdered returns addresses of first list followed by missing addresses of second one.
func mergeOrdered(first, second []string) []string {
	res := make([]string, 0, len(first)+len(second))
	seen := make(map[string]struct{}, len(first)+len(second))
	for _, list := range [][]string{first, second} {
		for _, addr := range list {
			if _, ok := seen[addr]; ok {
				continue
			}
			seen[addr] = struct{}{}
			res = append(res, addr)
		}
	}
	return res
}
