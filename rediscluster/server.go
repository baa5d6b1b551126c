package rediscluster

import (
	"net"
	"sort"
	"strconv"
	"strings"
)

// Role of server in cluster.
type Role int

const (
	// RoleMaster - server is a master and serves writes for its slots.
	RoleMaster Role = iota
	// RoleReplica - server replicates some master.
	RoleReplica
)

func (r Role) String() string {
	switch r {
	case RoleMaster:
		return "master"
	case RoleReplica:
		return "replica"
	}
	return "role(" + strconv.Itoa(int(r)) + ")"
}

// Server is a cluster node as it were seen during topology discovery.
// Servers are never mutated after Snapshot is published.
type Server struct {
	Host string
	Port int
	Role Role
	// ID is a cluster node id.
	ID string
	// MasterID is a node id of master for replica.
	MasterID string
}

// Name returns "host:port".
func (s *Server) Name() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

func (s *Server) String() string {
	return s.Name() + "(" + s.Role.String() + ")"
}

// DeterminePubSubTarget returns server with the highest port.
// If several servers have same port, server with smallest name is chosen,
// so result doesn't depend on servers order.
func DeterminePubSubTarget(servers []*Server) *Server {
	var target *Server
	for _, s := range servers {
		if s == nil {
			continue
		}
		if target == nil || s.Port > target.Port || (s.Port == target.Port && s.Name() < target.Name()) {
			target = s
		}
	}
	return target
}

type hostPort struct {
	host string
	port int
}

func (hp hostPort) String() string {
	return net.JoinHostPort(hp.host, strconv.Itoa(hp.port))
}

func parseAddr(addr string) (hostPort, error) {
	host, port, err := net.SplitHostPort(strings.TrimSpace(addr))
	if err != nil {
		return hostPort{}, ErrConfiguration.Wrap(err, "address %q is malformed", addr).
			WithProperty(EKSeed, addr)
	}
	p, err := strconv.Atoi(port)
	if err != nil || p <= 0 || p > 65535 || host == "" {
		return hostPort{}, ErrConfiguration.New("address %q has invalid host or port", addr).
			WithProperty(EKSeed, addr)
	}
	return hostPort{host: host, port: p}, nil
}

// normalizeSeeds parses addresses and removes duplicates preserving order of first appearance.
func normalizeSeeds(addrs []string) ([]string, error) {
	seen := make(map[hostPort]struct{}, len(addrs))
	res := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		hp, err := parseAddr(addr)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[hp]; ok {
			continue
		}
		seen[hp] = struct{}{}
		res = append(res, hp.String())
	}
	return res, nil
}

// mergeSeeds unions address lists, deduplicates them by (host, port) and sorts.
// Unparsable addresses are skipped.
func mergeSeeds(lists ...[]string) []string {
	seen := make(map[hostPort]struct{})
	var res []string
	for _, list := range lists {
		for _, addr := range list {
			hp, err := parseAddr(addr)
			if err != nil {
				continue
			}
			if _, ok := seen[hp]; ok {
				continue
			}
			seen[hp] = struct{}{}
			res = append(res, hp.String())
		}
	}
	sort.Strings(res)
	return res
}
