package rediscluster

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/joomcode/errorx"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/joomcode/redisrouter/redis"
	"github.com/joomcode/redisrouter/redisconn"
)

// Opts is a options for Pool
type Opts struct {
	// PoolSize is a number of connections to each server. Default is 1.
	PoolSize int
	// Password for AUTH. Overrides HostOpts.Password if not empty.
	Password string
	// DB to SELECT. Overrides HostOpts.DB if not zero.
	DB int
	// Encoder for command arguments. Overrides HostOpts.Encoder if set.
	Encoder redis.Encoder
	// AutoReconnect enables reconnection of broken connections. Overrides HostOpts.AutoReconnect if set.
	AutoReconnect bool
	// HostOpts - per host options.
	// Note that HostOpts.Handle will be overwritten to ClusterHandle{ cluster.opts.Handle, conn.Addr() }
	HostOpts redisconn.Opts
	// Handle is returned with Pool.Handle()
	// Also it is part of per-connection handle
	Handle interface{}
	// Dial establishes connections. Default is DefaultDial.
	Dial DialFunc
	// SeedPolicy for topology discovery.
	SeedPolicy SeedPolicy
	// AllowNoReplicas - do not fail discovery if some master has no replica.
	AllowNoReplicas bool
	// Name of a cluster.
	Name string
	// Logger for pool and topology events.
	// Default logger writes to zap.L() with "cluster" field set to Name.
	Logger Logger
	// MeterProvider for pool metrics. Default is global otel MeterProvider.
	MeterProvider metric.MeterProvider
}

// ClusterHandle is used to wrap cluster's handle and set it as connection's handle.
// You can use it in connection's logging.
type ClusterHandle struct {
	Handle  interface{}
	Address string
	N       int
}

// Route is a result of routing decision for a key.
type Route struct {
	Slot uint16
	// Index among slot owners: 0 is master, >0 is replica.
	Index  int
	Server *Server
}

// ServerStat is a state of connections to single server.
type ServerStat struct {
	Server    string
	Size      int
	InUse     int
	Connected int
}

// Pool routes commands to cluster nodes by key slot.
// It keeps PoolSize connections to each discovered server.
type Pool struct {
	ctx    context.Context
	cancel context.CancelFunc

	opts     Opts
	topology *Topology
	metrics  *metrics

	// m serializes pool growth and close.
	m      sync.Mutex
	nodes  atomic.Value // nodeMap
	closed uint32
}

type nodeMap map[string]*node

type node struct {
	name  string
	m     sync.Mutex
	conns []Conn
}

// NewPool discovers cluster topology using seeds and opens connections to every discovered server.
// If discovery or any connection fails, everything already opened is closed and error is returned.
// Pool is closed when ctx is done.
func NewPool(ctx context.Context, seeds []string, opts Opts) (*Pool, error) {
	if ctx == nil {
		return nil, redis.ErrContextIsNil.New("no context is given")
	}
	if opts.PoolSize < 0 {
		return nil, ErrConfiguration.New("pool size should not be negative: %d", opts.PoolSize)
	}
	if opts.PoolSize == 0 {
		opts.PoolSize = 1
	}
	if opts.Logger == nil {
		l := zap.L()
		if opts.Name != "" {
			l = l.With(zap.String("cluster", opts.Name))
		}
		opts.Logger = ZapLogger{L: l}
	}
	if opts.Dial == nil {
		opts.Dial = DefaultDial
	}

	host := opts.HostOpts
	if opts.Password != "" {
		host.Password = opts.Password
	}
	if opts.DB != 0 {
		host.DB = opts.DB
	}
	if opts.Encoder != nil {
		host.Encoder = opts.Encoder
	}
	if opts.AutoReconnect {
		host.AutoReconnect = true
	}
	if host.Logger == nil {
		host.Logger = defaultConnLogger{opts.Logger}
	}
	opts.HostOpts = host

	topology, err := NewTopology(seeds, TopologyOpts{
		SeedPolicy:      opts.SeedPolicy,
		AllowNoReplicas: opts.AllowNoReplicas,
		Dial:            opts.Dial,
		ConnOpts:        host,
		Logger:          opts.Logger,
		MeterProvider:   opts.MeterProvider,
	})
	if err != nil {
		return nil, err
	}

	p := &Pool{
		opts:     opts,
		topology: topology,
		metrics:  topology.metrics,
	}
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.nodes.Store(nodeMap{})

	if err := topology.Initialize(p.ctx); err != nil {
		p.cancel()
		return nil, err
	}
	if err := p.openNodes(); err != nil {
		p.Close()
		return nil, err
	}

	context.AfterFunc(p.ctx, func() { p.Close() })
	return p, nil
}

// Name returns configured cluster name.
func (p *Pool) Name() string {
	return p.opts.Name
}

// Handle returns configured handle.
func (p *Pool) Handle() interface{} {
	return p.opts.Handle
}

// Topology returns pool's topology manager.
func (p *Pool) Topology() *Topology {
	return p.topology
}

// PoolSize returns configured number of connections per server.
func (p *Pool) PoolSize() int {
	return p.opts.PoolSize
}

func (p *Pool) report(event LogEvent) {
	p.opts.Logger.Report(event)
}

func (p *Pool) getNodes() nodeMap {
	return p.nodes.Load().(nodeMap)
}

func (p *Pool) isClosed() bool {
	return atomic.LoadUint32(&p.closed) != 0
}

// Initialize refreshes topology and opens connections to newly discovered servers.
// Commands fail with ErrNotReady while refresh is in progress.
func (p *Pool) Initialize(ctx context.Context) error {
	if p.isClosed() {
		return redis.ErrContextClosed.New("pool is closed")
	}
	if err := p.topology.Initialize(ctx); err != nil {
		return err
	}
	return p.openNodes()
}

// Reset rediscovers topology from original seeds and opens connections to newly discovered servers.
func (p *Pool) Reset(ctx context.Context) error {
	if p.isClosed() {
		return redis.ErrContextClosed.New("pool is closed")
	}
	if err := p.topology.Reset(ctx); err != nil {
		return err
	}
	return p.openNodes()
}

// openNodes opens connections to every server of current snapshot which has no connections yet.
// Either all new servers get their connections, or none. In latter case topology is dropped,
// so commands fail with ErrNotReady instead of being routed to servers without connections.
func (p *Pool) openNodes() error {
	snap := p.topology.Snapshot()
	if snap == nil {
		return ErrNotReady.New("topology is not discovered")
	}

	p.m.Lock()
	defer p.m.Unlock()
	if p.isClosed() {
		return redis.ErrContextClosed.New("pool is closed")
	}

	old := p.getNodes()
	nodes := make(nodeMap, len(old))
	for name, n := range old {
		nodes[name] = n
	}
	var opened []*node
	for _, srv := range snap.Servers() {
		if _, ok := nodes[srv.Name()]; ok {
			continue
		}
		n, err := p.openNode(srv)
		if err != nil {
			for _, o := range opened {
				o.close()
			}
			p.topology.invalidate(snap)
			return err
		}
		opened = append(opened, n)
		nodes[n.name] = n
	}
	if len(opened) > 0 {
		p.nodes.Store(nodes)
	}
	return nil
}

func (p *Pool) openNode(srv *Server) (*node, error) {
	n := &node{name: srv.Name(), conns: make([]Conn, 0, p.opts.PoolSize)}
	for i := 0; i < p.opts.PoolSize; i++ {
		opts := p.opts.HostOpts
		opts.Handle = ClusterHandle{Handle: p.opts.Handle, Address: n.name, N: i}
		conn, err := p.opts.Dial(p.ctx, n.name, opts)
		if err != nil {
			n.close()
			if e := errorx.Cast(err); e != nil {
				return nil, e.WithProperty(EKServer, n.name)
			}
			return nil, err
		}
		n.conns = append(n.conns, conn)
	}
	return n, nil
}

// acquire rotates connections, so load is spread between them,
// and returns first connected and not busy one.
func (n *node) acquire() Conn {
	n.m.Lock()
	defer n.m.Unlock()
	if len(n.conns) > 1 {
		first := n.conns[0]
		copy(n.conns, n.conns[1:])
		n.conns[len(n.conns)-1] = first
	}
	for _, c := range n.conns {
		if c.IsConnected() && !c.IsBusy() {
			return c
		}
	}
	return nil
}

func (n *node) stat() ServerStat {
	n.m.Lock()
	defer n.m.Unlock()
	st := ServerStat{Server: n.name, Size: len(n.conns)}
	for _, c := range n.conns {
		if c.IsBusy() {
			st.InUse++
		}
		if c.IsConnected() {
			st.Connected++
		}
	}
	return st
}

func (n *node) close() error {
	n.m.Lock()
	defer n.m.Unlock()
	var err error
	for _, c := range n.conns {
		if e := c.Close(); e != nil && err == nil {
			err = e
		}
	}
	return err
}

// Route returns slot, owner index and server for key.
// Writes always go to master. Reads are spread uniformly among master and replicas.
func (p *Pool) Route(key string, read bool) (Route, error) {
	snap := p.topology.Snapshot()
	if snap == nil {
		return Route{}, ErrNotReady.New("topology is not discovered")
	}
	slot := Slot(key)
	owners := snap.Owners(slot)
	if len(owners) == 0 {
		return Route{}, ErrNotReady.New("slot %d has no owner", slot).WithProperty(redis.EKSlot, int64(slot))
	}
	index := 0
	if read && len(owners) > 1 {
		index = rand.Intn(len(owners))
	}
	return Route{Slot: slot, Index: index, Server: owners[index]}, nil
}

// AcquireConnection returns connected and not busy connection to server,
// or nil if there is no such connection.
func (p *Pool) AcquireConnection(server string) Conn {
	n := p.getNodes()[server]
	if n == nil {
		return nil
	}
	return n.acquire()
}

// Stats returns per server connection counters sorted by server name.
func (p *Pool) Stats() []ServerStat {
	nodes := p.getNodes()
	stats := make([]ServerStat, 0, len(nodes))
	for _, n := range nodes {
		stats = append(stats, n.stat())
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Server < stats[j].Server })
	return stats
}

// ConnectionsInUse returns number of busy connections in the whole pool.
func (p *Pool) ConnectionsInUse() int {
	total := 0
	for _, n := range p.getNodes() {
		total += n.stat().InUse
	}
	return total
}

// ConnectionsConnected returns number of established connections in the whole pool.
func (p *Pool) ConnectionsConnected() int {
	total := 0
	for _, n := range p.getNodes() {
		total += n.stat().Connected
	}
	return total
}

// Do executes command on the node owning slot of its key.
func (p *Pool) Do(ctx context.Context, cmd string, args ...interface{}) (interface{}, error) {
	return p.Send(ctx, Request{Cmd: cmd, Args: args})
}

// Send executes request on the node owning slot of its key.
// Read commands may be executed on replica.
// MOVED and ASK replies are not followed: they are returned as ErrRedirected.
func (p *Pool) Send(ctx context.Context, req Request) (interface{}, error) {
	if p.isClosed() {
		return nil, redis.ErrContextClosed.New("pool is closed").WithProperty(redis.EKCommand, req.Cmd)
	}
	key, info, ok := routingKey(req)
	if !ok {
		return nil, ErrNoSlotKey.New("command has no key argument").WithProperty(redis.EKCommand, req.Cmd)
	}
	route, err := p.Route(key, info.Read)
	if err != nil {
		return nil, errorx.Decorate(err, "command %s could not be routed", req.Cmd)
	}
	name := route.Server.Name()

	conn := p.AcquireConnection(name)
	if conn == nil {
		return nil, p.exhausted(ctx, req.Cmd, name)
	}

	p.report(LogDispatch{Command: req.Cmd, Slot: route.Slot, Server: name, Index: route.Index, Conn: conn})
	p.metrics.dispatched(ctx, req.Cmd, route.Server.Role)

	if route.Index > 0 {
		if err := conn.ReadOnly(ctx); err != nil {
			return nil, withServer(err, name)
		}
	}

	res, err := conn.Do(ctx, req.Cmd, req.Args...)
	if err != nil {
		if errorx.IsOfType(err, redis.ErrMoved) || errorx.IsOfType(err, redis.ErrAsk) {
			return nil, redirected(err, route)
		}
		return nil, withServer(err, name)
	}
	return res, nil
}

func (p *Pool) exhausted(ctx context.Context, cmd, name string) error {
	p.metrics.poolExhausted(ctx, name)
	p.report(LogPoolExhausted{Command: cmd, Server: name})
	inUse, connected := p.ConnectionsInUse(), p.ConnectionsConnected()
	return ErrPoolExhausted.New("no available connections in the pool").
		WithProperty(EKPoolSize, p.opts.PoolSize).
		WithProperty(EKServer, name).
		WithProperty(EKInUse, inUse).
		WithProperty(EKConnected, connected).
		WithProperty(redis.EKCommand, cmd)
}

func redirected(err error, route Route) error {
	slot, ok := errorx.ExtractProperty(err, redis.EKSlot)
	if !ok {
		slot = int64(route.Slot)
	}
	movedTo, _ := errorx.ExtractProperty(err, redis.EKMovedTo)
	return ErrRedirected.Wrap(err, "cluster topology is probably stale").
		WithProperty(redis.EKSlot, slot).
		WithProperty(redis.EKMovedTo, movedTo).
		WithProperty(EKServer, route.Server.Name())
}

func withServer(err error, name string) error {
	if e := errorx.Cast(err); e != nil {
		return e.WithProperty(EKServer, name)
	}
	return err
}

// PubSubConn returns connection to pub/sub target server.
func (p *Pool) PubSubConn() (Conn, error) {
	snap := p.topology.Snapshot()
	if snap == nil {
		return nil, ErrNotReady.New("topology is not discovered")
	}
	target := snap.PubSubTarget()
	conn := p.AcquireConnection(target.Name())
	if conn == nil {
		return nil, ErrPoolExhausted.New("no available connections to pubsub target").
			WithProperty(EKPoolSize, p.opts.PoolSize).
			WithProperty(EKServer, target.Name())
	}
	return conn, nil
}

// Close closes all connections. Pool could not be used after.
func (p *Pool) Close() error {
	if !atomic.CompareAndSwapUint32(&p.closed, 0, 1) {
		return nil
	}
	p.m.Lock()
	nodes := p.getNodes()
	p.nodes.Store(nodeMap{})
	p.m.Unlock()

	var err error
	for _, n := range nodes {
		if e := n.close(); e != nil && err == nil {
			err = e
		}
	}
	reason := p.ctx.Err()
	p.cancel()
	if reason == nil {
		reason = context.Canceled
	}
	p.report(LogContextClosed{Error: reason})
	return err
}
