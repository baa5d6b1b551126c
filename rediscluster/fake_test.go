package rediscluster_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/joomcode/redisrouter/redis"
	. "github.com/joomcode/redisrouter/rediscluster"
	"github.com/joomcode/redisrouter/redisconn"
)

// fakeNet is an in-memory set of cluster nodes reachable with fakeNet.Dial.
type fakeNet struct {
	mu    sync.Mutex
	nodes map[string]*fakeNode
	dials []string
	conns []*fakeConn
}

type fakeNode struct {
	listing      string
	listingErr   error
	dialErr      error
	dialsAllowed int // if > 0, dials after this number fail
	dialCount    int
	reply        func(cmd string, args []interface{}) (interface{}, error)
}

func newFakeNet() *fakeNet {
	return &fakeNet{nodes: make(map[string]*fakeNode)}
}

func (n *fakeNet) node(addr string) *fakeNode {
	n.mu.Lock()
	defer n.mu.Unlock()
	nd := n.nodes[addr]
	if nd == nil {
		nd = &fakeNode{}
		n.nodes[addr] = nd
	}
	return nd
}

// setListing makes every node in addrs return same CLUSTER NODES listing.
func (n *fakeNet) setListing(listing string, addrs ...string) {
	for _, addr := range addrs {
		nd := n.node(addr)
		n.mu.Lock()
		nd.listing = listing
		n.mu.Unlock()
	}
}

// setReply makes nodes in addrs answer data commands with reply.
func (n *fakeNet) setReply(reply func(cmd string, args []interface{}) (interface{}, error), addrs ...string) {
	for _, addr := range addrs {
		nd := n.node(addr)
		n.mu.Lock()
		nd.reply = reply
		n.mu.Unlock()
	}
}

func (n *fakeNet) Dial(ctx context.Context, addr string, opts redisconn.Opts) (Conn, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.dials = append(n.dials, addr)
	nd := n.nodes[addr]
	if nd == nil {
		return nil, redis.ErrDial.New("connection refused").WithProperty(redis.EKAddress, addr)
	}
	if nd.dialErr != nil {
		return nil, nd.dialErr
	}
	nd.dialCount++
	if nd.dialsAllowed > 0 && nd.dialCount > nd.dialsAllowed {
		return nil, redis.ErrDial.New("too many connections").WithProperty(redis.EKAddress, addr)
	}
	c := &fakeConn{net: n, node: nd, addr: addr, connected: 1}
	n.conns = append(n.conns, c)
	return c, nil
}

func (n *fakeNet) dialed() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.dials...)
}

func (n *fakeNet) resetDials() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.dials = nil
}

// connsTo returns connections dialed to addr, including closed ones.
func (n *fakeNet) connsTo(addr string) []*fakeConn {
	n.mu.Lock()
	defer n.mu.Unlock()
	var res []*fakeConn
	for _, c := range n.conns {
		if c.addr == addr {
			res = append(res, c)
		}
	}
	return res
}

func (n *fakeNet) openConns() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	cnt := 0
	for _, c := range n.conns {
		if atomic.LoadInt32(&c.closed) == 0 {
			cnt++
		}
	}
	return cnt
}

type fakeConn struct {
	net  *fakeNet
	node *fakeNode
	addr string

	connected int32
	busy      int32
	closed    int32
	readonly  int32

	mu   sync.Mutex
	cmds []string
}

func (c *fakeConn) Addr() string      { return c.addr }
func (c *fakeConn) IsConnected() bool { return atomic.LoadInt32(&c.connected) != 0 }
func (c *fakeConn) IsBusy() bool      { return atomic.LoadInt32(&c.busy) != 0 }

func (c *fakeConn) setConnected(v bool) {
	var i int32
	if v {
		i = 1
	}
	atomic.StoreInt32(&c.connected, i)
}

func (c *fakeConn) setBusy(v bool) {
	var i int32
	if v {
		i = 1
	}
	atomic.StoreInt32(&c.busy, i)
}

func (c *fakeConn) Do(ctx context.Context, cmd string, args ...interface{}) (interface{}, error) {
	c.mu.Lock()
	parts := []string{cmd}
	for _, a := range args {
		parts = append(parts, fmt.Sprint(a))
	}
	c.cmds = append(c.cmds, strings.Join(parts, " "))
	c.mu.Unlock()

	c.net.mu.Lock()
	reply := c.node.reply
	c.net.mu.Unlock()
	if reply != nil {
		return reply(cmd, args)
	}
	return "OK@" + c.addr, nil
}

func (c *fakeConn) ReadOnly(ctx context.Context) error {
	atomic.AddInt32(&c.readonly, 1)
	return nil
}

func (c *fakeConn) ClusterNodes(ctx context.Context) ([]byte, error) {
	c.net.mu.Lock()
	defer c.net.mu.Unlock()
	if c.node.listingErr != nil {
		return nil, c.node.listingErr
	}
	return []byte(c.node.listing), nil
}

func (c *fakeConn) Close() error {
	atomic.StoreInt32(&c.closed, 1)
	c.setConnected(false)
	return nil
}

func (c *fakeConn) commands() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.cmds...)
}

// nodeLine formats CLUSTER NODES line. master is empty for masters.
func nodeLine(id, addr, master string, slots ...string) string {
	flags, masterID := "master", "-"
	if master != "" {
		flags, masterID = "slave", master
	}
	line := fmt.Sprintf("%s %s@1%s %s %s 0 1700000000000 1 connected",
		id, addr, addr[strings.LastIndexByte(addr, ':')+1:], flags, masterID)
	if len(slots) > 0 {
		line += " " + strings.Join(slots, " ")
	}
	return line
}

func listing(lines ...string) string {
	return strings.Join(lines, "\n") + "\n"
}

const (
	idA = "a000000000000000000000000000000000000000"
	idB = "b000000000000000000000000000000000000000"
	idC = "c000000000000000000000000000000000000000"
	idD = "d000000000000000000000000000000000000000"
	idE = "e000000000000000000000000000000000000000"

	addrA = "127.0.0.1:7000"
	addrB = "127.0.0.1:7001"
	addrC = "127.0.0.1:7002"
	addrD = "127.0.0.1:7003"
	addrE = "127.0.0.1:7004"
)

// twoShards is a cluster with masters A and C, and their replicas B and D.
var twoShards = listing(
	nodeLine(idA, addrA, "", "0-8191"),
	nodeLine(idB, addrB, idA),
	nodeLine(idC, addrC, "", "8192-16383"),
	nodeLine(idD, addrD, idC),
)

func newTwoShards() *fakeNet {
	n := newFakeNet()
	n.setListing(twoShards, addrA, addrB, addrC, addrD)
	return n
}

// recordLogger collects reported events.
type recordLogger struct {
	mu     sync.Mutex
	events []LogEvent
}

func (l *recordLogger) Report(event LogEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *recordLogger) badTokens() []LogBadSlotToken {
	l.mu.Lock()
	defer l.mu.Unlock()
	var res []LogBadSlotToken
	for _, ev := range l.events {
		if bt, ok := ev.(LogBadSlotToken); ok {
			res = append(res, bt)
		}
	}
	return res
}
