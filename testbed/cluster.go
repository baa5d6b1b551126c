package testbed

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/joomcode/redisrouter/rediscluster/redisclusterutil"
)

// Node is a member of fake Cluster.
type Node struct {
	*Server
	NodeID string
	// MasterID is empty for masters.
	MasterID string
	// Slots is a slot range [from, to] served by master. Empty for replicas.
	Slots [][2]int
}

// IsMaster returns true if node is a master.
func (n *Node) IsMaster() bool {
	return n.MasterID == ""
}

// Cluster is a set of fake servers which report consistent CLUSTER NODES.
// Slots are split evenly between masters in order.
type Cluster struct {
	Node []*Node
}

// NewCluster starts masters*(1+replicasPerMaster) servers.
// First `masters` nodes are masters, then replicas follow, replicasPerMaster for each master in order.
func NewCluster(masters, replicasPerMaster int) (*Cluster, error) {
	cl := &Cluster{}
	for i := 0; i < masters; i++ {
		from := i * redisclusterutil.NumSlots / masters
		to := (i+1)*redisclusterutil.NumSlots/masters - 1
		cl.Node = append(cl.Node, &Node{
			Server: NewServer(),
			NodeID: nodeID(len(cl.Node)),
			Slots:  [][2]int{{from, to}},
		})
	}
	for i := 0; i < masters; i++ {
		for j := 0; j < replicasPerMaster; j++ {
			cl.Node = append(cl.Node, &Node{
				Server:   NewServer(),
				NodeID:   nodeID(len(cl.Node)),
				MasterID: cl.Node[i].NodeID,
			})
		}
	}
	for _, n := range cl.Node {
		if err := n.Start(); err != nil {
			cl.Stop()
			return nil, err
		}
	}
	cl.Publish()
	return cl, nil
}

func nodeID(i int) string {
	return fmt.Sprintf("%040x", i+1)
}

// Publish regenerates CLUSTER NODES text on every node.
// It should be called after Node's Slots or MasterID were changed.
func (cl *Cluster) Publish() {
	for i, n := range cl.Node {
		n.SetClusterNodes(cl.NodesText(i))
	}
}

// NodesText renders CLUSTER NODES as seen by node with index myself.
func (cl *Cluster) NodesText(myself int) string {
	var b strings.Builder
	for i, n := range cl.Node {
		port := n.Port()
		flags := "master"
		master := "-"
		if !n.IsMaster() {
			flags = "slave"
			master = n.MasterID
		}
		if i == myself {
			flags = "myself," + flags
		}
		fmt.Fprintf(&b, "%s 127.0.0.1:%d@%d %s %s 0 1700000000000 %d connected",
			n.NodeID, port, port+10000, flags, master, i+1)
		for _, r := range n.Slots {
			if r[0] == r[1] {
				b.WriteString(" " + strconv.Itoa(r[0]))
			} else {
				fmt.Fprintf(&b, " %d-%d", r[0], r[1])
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// Seeds returns addresses of masters.
func (cl *Cluster) Seeds() []string {
	var seeds []string
	for _, n := range cl.Node {
		if n.IsMaster() {
			seeds = append(seeds, n.Addr())
		}
	}
	return seeds
}

// ByAddr returns node with address, or nil.
func (cl *Cluster) ByAddr(addr string) *Node {
	for _, n := range cl.Node {
		if n.Addr() == addr {
			return n
		}
	}
	return nil
}

// Stop stops all nodes.
func (cl *Cluster) Stop() {
	for _, n := range cl.Node {
		n.Stop()
	}
}
